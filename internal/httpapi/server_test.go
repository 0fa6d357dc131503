// Copyright 2023 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAuthenticatedRejectsMissingOrWrongBearerToken(t *testing.T) {
	s := &Server{AuthToken: "secret"}
	called := false
	h := s.authenticated(func(w http.ResponseWriter, r *http.Request) { called = true })

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status/summary", nil)
	h(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.False(t, called)
}

func TestAuthenticatedAcceptsMatchingBearerToken(t *testing.T) {
	s := &Server{AuthToken: "secret"}
	called := false
	h := s.authenticated(func(w http.ResponseWriter, r *http.Request) { called = true })

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status/summary", nil)
	req.Header.Set("Authorization", "Bearer secret")
	h(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, called)
}

func TestAuthenticatedSkipsCheckWhenDisabled(t *testing.T) {
	s := &Server{DisableAuth: true}
	called := false
	h := s.authenticated(func(w http.ResponseWriter, r *http.Request) { called = true })

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status/summary", nil)
	h(rec, req)

	require.True(t, called)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestIntParamParsesOrFallsBackToDefault(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/campaigns/run?batchSize=7&maxCampaigns=bogus", nil)

	require.Equal(t, 7, intParam(req, "batchSize", 4))
	require.Equal(t, 0, intParam(req, "maxCampaigns", 0))
	require.Equal(t, 99, intParam(req, "missing", 99))
}

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

// Package httpapi is the thin control surface: it
// exposes the handful of operations an external HTTP layer needs to
// trigger and observe engine runs. The dashboard-read API and the
// mart layer's own query surface are out of scope.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/reyer3/pulso-etl/internal/etlengine"
	"github.com/reyer3/pulso-etl/internal/orchestrator"
	"github.com/reyer3/pulso-etl/internal/watermark"
)

// Server adapts the orchestrator and watermark store to HTTP.
type Server struct {
	Orchestrator *orchestrator.Orchestrator
	Engine       *etlengine.Engine
	Watermarks   *watermark.Store

	AuthToken   string
	DisableAuth bool
}

// Routes returns the control-surface's handler, ready to be served
// directly or wrapped in TLS by the caller.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/campaigns/run", s.authenticated(s.handleRunCampaigns))
	mux.HandleFunc("/campaigns/cancel", s.authenticated(s.handleCancel))
	mux.HandleFunc("/tables/refresh", s.authenticated(s.handleRefreshTable))
	mux.HandleFunc("/status/summary", s.authenticated(s.handleSummary))
	mux.HandleFunc("/status/watermark", s.authenticated(s.handleWatermark))
	return mux
}

func (s *Server) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.DisableAuth {
			token := r.Header.Get("Authorization")
			if token != "Bearer "+s.AuthToken {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleRunCampaigns(w http.ResponseWriter, r *http.Request) {
	batchSize := intParam(r, "batchSize", 4)
	maxCampaigns := intParam(r, "maxCampaigns", 0)
	forceAll := r.URL.Query().Get("forceAll") == "true"

	summary := s.Orchestrator.RunAllPending(r.Context(), batchSize, maxCampaigns, forceAll)
	writeJSON(w, summary)
}

func (s *Server) handleCancel(w http.ResponseWriter, _ *http.Request) {
	s.Orchestrator.Cancel()
	writeJSON(w, map[string]string{"status": "cancel requested"})
}

func (s *Server) handleRefreshTable(w http.ResponseWriter, r *http.Request) {
	table := r.URL.Query().Get("table")
	if table == "" {
		http.Error(w, "table query parameter is required", http.StatusBadRequest)
		return
	}
	force := r.URL.Query().Get("force") == "true"

	result := s.Engine.Run(r.Context(), table, nil, force, nil, true)
	writeJSON(w, result)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.Watermarks.Summary(r.Context())
	if err != nil {
		log.WithError(err).Error("failed to compute watermark summary")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, summary)
}

func (s *Server) handleWatermark(w http.ResponseWriter, r *http.Request) {
	table := r.URL.Query().Get("table")
	if table == "" {
		http.Error(w, "table query parameter is required", http.StatusBadRequest)
		return
	}
	wm, found, err := s.Watermarks.Get(r.Context(), table)
	if err != nil {
		log.WithError(err).Errorf("failed to fetch watermark for %s", table)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "no watermark for table", http.StatusNotFound)
		return
	}
	writeJSON(w, wm)
}

func intParam(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("failed to encode response")
	}
}

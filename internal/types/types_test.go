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

package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCampaignIsOpen(t *testing.T) {
	open := Campaign{Archivo: "A", OpenDate: time.Now()}
	require.True(t, open.IsOpen())

	closed := time.Now()
	shut := Campaign{Archivo: "B", OpenDate: time.Now(), CloseDate: &closed}
	require.False(t, shut.IsOpen())
}

func TestLayerString(t *testing.T) {
	require.Equal(t, "raw", LayerRaw.String())
	require.Equal(t, "aux", LayerAux.String())
	require.Equal(t, "mart", LayerMart.String())
	require.Equal(t, "unknown", LayerUnknown.String())
}

func TestWindowEmpty(t *testing.T) {
	now := time.Now()
	require.True(t, Window{Start: now, End: now}.Empty())
	require.True(t, Window{Start: now.Add(time.Hour), End: now}.Empty())
	require.False(t, Window{Start: now, End: now.Add(time.Hour)}.Empty())
}

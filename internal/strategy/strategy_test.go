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

package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/reyer3/pulso-etl/internal/types"
)

func TestSelectDecisionTable(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name     string
		campaign *types.Campaign
		wm       *types.Watermark
		want     Strategy
	}{
		{
			name:     "bootstrap: no campaign, no watermark",
			campaign: nil,
			wm:       nil,
			want:     Calendar,
		},
		{
			name:     "campaign present, no watermark",
			campaign: &types.Campaign{Archivo: "c1", OpenDate: now},
			wm:       nil,
			want:     Calendar,
		},
		{
			name:     "no campaign, watermark present",
			campaign: nil,
			wm:       &types.Watermark{LastExtractedAt: now},
			want:     Watermark,
		},
		{
			name:     "watermark newer than campaign open date",
			campaign: &types.Campaign{Archivo: "c1", OpenDate: now},
			wm:       &types.Watermark{LastExtractedAt: now.Add(time.Hour)},
			want:     Watermark,
		},
		{
			name:     "campaign older than 90 days falls back to watermark",
			campaign: &types.Campaign{Archivo: "c1", OpenDate: now.Add(-100 * 24 * time.Hour)},
			wm:       &types.Watermark{LastExtractedAt: now.Add(-150 * 24 * time.Hour)},
			want:     Watermark,
		},
		{
			name:     "recent campaign with stale watermark stays calendar",
			campaign: &types.Campaign{Archivo: "c1", OpenDate: now.Add(-time.Hour)},
			wm:       &types.Watermark{LastExtractedAt: now.Add(-2 * time.Hour)},
			want:     Calendar,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Select("trandeuda", tt.campaign, tt.wm, nil)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestSelectForcedShortCircuits(t *testing.T) {
	forced := Watermark
	got := Select("trandeuda", &types.Campaign{}, nil, &forced)
	require.Equal(t, Watermark, got)
}

func TestStrategyString(t *testing.T) {
	require.Equal(t, "calendar", Calendar.String())
	require.Equal(t, "watermark", Watermark.String())
}

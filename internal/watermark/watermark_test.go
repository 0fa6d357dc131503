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

package watermark

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/reyer3/pulso-etl/internal/types"
)

func TestUsableFloorOnlySuccessAndReset(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		status types.WatermarkStatus
		wantOK bool
	}{
		{types.StatusSuccess, true},
		{types.StatusReset, true},
		{types.StatusRunning, false},
		{types.StatusFailed, false},
	}

	for _, tt := range tests {
		wm := types.Watermark{LastExtractedAt: now, Status: tt.status}
		got, ok, err := usableFloor(wm)
		require.NoError(t, err)
		require.Equal(t, tt.wantOK, ok, "status %s", tt.status)
		if tt.wantOK {
			require.Equal(t, now, got)
		} else {
			require.True(t, got.IsZero())
		}
	}
}

func TestSchemaDDLDeclaresTableAndIndexes(t *testing.T) {
	require.Contains(t, schemaDDL, tableName)
	require.Contains(t, schemaDDL, "etl_watermarks_table_name_idx")
	require.Contains(t, schemaDDL, "etl_watermarks_status_idx")
	require.Contains(t, schemaDDL, "etl_watermarks_updated_at_idx")
}

func TestCompleteTemplateUpsertsOnTableName(t *testing.T) {
	require.Contains(t, completeTemplate, "ON CONFLICT (table_name) DO UPDATE SET")
	require.Contains(t, completeTemplate, "last_extracted_at")
}

func TestReapStaleTemplateTargetsRunningOnly(t *testing.T) {
	require.Contains(t, reapStaleTemplate, "WHERE last_extraction_status = 'running'")
	require.Contains(t, reapStaleTemplate, "last_extraction_status = 'failed'")
}

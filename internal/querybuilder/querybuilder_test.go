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

package querybuilder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/reyer3/pulso-etl/internal/strategy"
	"github.com/reyer3/pulso-etl/internal/types"
)

func mustParse(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestFilterForceFullRefreshAlwaysWins(t *testing.T) {
	b := New("proj", "ds")
	table := types.TableConfig{Name: "trandeuda", DefaultMode: types.ModeCalendar, IncrementalColumn: "fecha_trandeuda"}
	campaign := &types.Campaign{Archivo: "X", OpenDate: mustParse("2026-01-01")}

	got := b.filter(table, strategy.Calendar, campaign, &types.Watermark{}, true)
	require.Equal(t, "1=1", got)
}

func TestFilterFullRefreshTableAlwaysFullScan(t *testing.T) {
	b := New("", "")
	table := types.TableConfig{Name: "homologacion_mibotair", Refresh: types.ModeFullRefresh}
	got := b.filter(table, strategy.Calendar, nil, nil, false)
	require.Equal(t, "1=1", got)
}

func TestFilterIncrementalTableWithNoCampaignOrWatermarkIsFullScan(t *testing.T) {
	b := New("", "")
	table := types.TableConfig{Name: "trandeuda", DefaultMode: types.ModeCalendar}
	got := b.filter(table, strategy.Calendar, nil, nil, false)
	require.Equal(t, "1=1", got)
}

func TestFilterWatermarkWithPriorWatermark(t *testing.T) {
	b := New("", "")
	table := types.TableConfig{
		Name: "pagos", DefaultMode: types.ModeWatermark,
		IncrementalColumn: "fecha_pago", LookbackDays: 30,
	}
	wm := &types.Watermark{LastExtractedAt: mustParse("2026-06-01")}

	got := b.filter(table, strategy.Watermark, nil, wm, false)
	require.Contains(t, got, "fecha_pago BETWEEN")
	require.Contains(t, got, "'2026-05-02T00:00:00Z'") // 30 days before the watermark
}

func TestFilterWatermarkNoWatermarkNoCampaignIsFullScan(t *testing.T) {
	b := New("", "")
	table := types.TableConfig{Name: "pagos", DefaultMode: types.ModeWatermark}
	got := b.filter(table, strategy.Watermark, nil, nil, false)
	require.Equal(t, "1=1", got)
}

func TestFilterWatermarkNoWatermarkWithCampaignFallsBackToCalendar(t *testing.T) {
	b := New("", "")
	table := types.TableConfig{Name: "otros", DefaultMode: types.ModeWatermark, IncrementalColumn: "col"}
	campaign := &types.Campaign{Archivo: "X", OpenDate: mustParse("2026-01-10")}

	got := b.filter(table, strategy.Watermark, campaign, nil, false)
	// non-extended calendar window: pre=post=0, so the window starts
	// exactly on the open date (no close date supplied falls back to
	// today on the end side, but the start side is unpadded).
	require.Contains(t, got, "'2026-01-10'")
}

func TestCalendarPredicateAssignacionesCarvesOutArchivoMatch(t *testing.T) {
	table := types.TableConfig{Name: "asignaciones", IncrementalColumn: "fecha_asignacion"}
	campaign := &types.Campaign{Archivo: "CAMP_2026_01", OpenDate: mustParse("2026-01-01")}

	got := calendarPredicate(table, campaign, true)
	require.Contains(t, got, "archivo = 'CAMP_2026_01'")
	require.Contains(t, got, "DATE(fecha_asignacion) BETWEEN")
}

func TestCalendarPredicateTrandeudaCarvesOutBasenameLike(t *testing.T) {
	table := types.TableConfig{Name: "trandeuda", IncrementalColumn: "fecha_trandeuda"}
	campaign := &types.Campaign{Archivo: "CAMP_2026_01_v2", OpenDate: mustParse("2026-01-01")}

	got := calendarPredicate(table, campaign, true)
	require.Contains(t, got, "archivo LIKE 'CAMP%'")
}

func TestWindowForAppliesPerTablePrePostOffsets(t *testing.T) {
	campaign := &types.Campaign{OpenDate: mustParse("2026-03-01")}

	start, end := windowFor(types.TableConfig{Name: "trandeuda"}, campaign, true)
	require.Equal(t, mustParse("2026-02-22"), start) // 7 days pre
	require.True(t, end.After(start))

	closeDate := mustParse("2026-03-10")
	campaign.CloseDate = &closeDate
	_, end = windowFor(types.TableConfig{Name: "trandeuda"}, campaign, true)
	require.Equal(t, mustParse("2026-04-09"), end) // 30 days post close
}

func TestBuildSubstitutesIncrementalFilterAndCampaignArchivo(t *testing.T) {
	b := New("my-project", "my-dataset")
	table := types.TableConfig{
		Name:              "calendario",
		DefaultMode:       types.ModeCalendar,
		IncrementalColumn: "fecha_actualizacion",
		SQLTemplate:       "SELECT * FROM `{project_id}.{dataset_id}.calendario` WHERE {incremental_filter} AND archivo != {campaign_archivo}",
	}
	campaign := &types.Campaign{Archivo: "X'1", OpenDate: mustParse("2026-01-01")}

	got := b.Build(table, strategy.Calendar, campaign, nil, false)
	require.Contains(t, got, "`my-project.my-dataset.calendario`")
	require.Contains(t, got, "archivo != 'X''1'") // quote-escaped literal
	require.NotContains(t, got, "{incremental_filter}")
}

func TestQuoteLiteralEscapesSingleQuotes(t *testing.T) {
	require.Equal(t, "'O''Brien'", quoteLiteral("O'Brien"))
}

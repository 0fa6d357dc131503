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

// Package catalog is the static table registry: for every logical
// table the engine knows about, it records the layer it belongs to,
// its primary key, its incremental column, its default extraction
// mode, and the per-table tuning knobs (lookback window, batch size,
// refresh cadence) that the rest of the engine consults instead of
// hard-coding per-table behavior.
package catalog

import (
	"fmt"

	"github.com/reyer3/pulso-etl/internal/types"
)

// Catalog is a read-only registry of table configurations, keyed by
// table name.
type Catalog struct {
	tables map[string]types.TableConfig
}

// New builds a Catalog from the given table configurations. It panics
// if two entries share a name, since that would indicate a
// programming error in the static registry, not a runtime condition.
func New(tables ...types.TableConfig) *Catalog {
	m := make(map[string]types.TableConfig, len(tables))
	for _, t := range tables {
		if _, dup := m[t.Name]; dup {
			panic(fmt.Sprintf("catalog: duplicate table %q", t.Name))
		}
		m[t.Name] = t
	}
	return &Catalog{tables: m}
}

// Lookup returns the configuration for the named table.
func (c *Catalog) Lookup(name string) (types.TableConfig, bool) {
	t, ok := c.tables[name]
	return t, ok
}

// Tables returns every table in the catalog belonging to the given
// layer, in a stable order. An empty layer returns every table.
func (c *Catalog) Tables(layer types.Layer) []types.TableConfig {
	var ret []types.TableConfig
	for _, name := range c.Names() {
		t := c.tables[name]
		if layer == types.LayerUnknown || t.Layer == layer {
			ret = append(ret, t)
		}
	}
	return ret
}

// Names returns every table name in the catalog, sorted.
func (c *Catalog) Names() []string {
	ret := make([]string, 0, len(c.tables))
	for name := range c.tables {
		ret = append(ret, name)
	}
	sortStrings(ret)
	return ret
}

// sortStrings avoids pulling in "sort" just for a one-line call site
// at the handful of places that need deterministic table ordering.
func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// Default returns the production table catalog for the debt-
// collection data model. Lookback days, batch sizes, and incremental
// columns mirror the source system's extraction configuration.
func Default() *Catalog {
	return New(
		types.TableConfig{
			Name:                  "calendario",
			Layer:                 types.LayerRaw,
			SourceIdentifier:      "warehouse.raw.calendario",
			PrimaryKey:            []string{"archivo", "fecha"},
			IncrementalColumn:     "fecha_actualizacion",
			DefaultMode:           types.ModeCalendar,
			LookbackDays:          7,
			BatchSize:             10000,
			RefreshFrequencyHours: 24,
			SQLTemplate: "SELECT * FROM `warehouse.raw.calendario` WHERE {incremental_filter}",
		},
		types.TableConfig{
			Name:                  "asignaciones",
			Layer:                 types.LayerRaw,
			SourceIdentifier:      "warehouse.raw.asignaciones",
			PrimaryKey:            []string{"archivo", "cod_cuenta"},
			IncrementalColumn:     "fecha_asignacion",
			DefaultMode:           types.ModeCalendar,
			LookbackDays:          30,
			BatchSize:             50000,
			RefreshFrequencyHours: 24,
			SQLTemplate: "SELECT * FROM `warehouse.raw.asignaciones` WHERE {incremental_filter}",
		},
		types.TableConfig{
			Name:                  "trandeuda",
			Layer:                 types.LayerRaw,
			SourceIdentifier:      "warehouse.raw.trandeuda",
			PrimaryKey:            []string{"archivo", "cod_cuenta", "fecha_trandeuda"},
			IncrementalColumn:     "fecha_trandeuda",
			DefaultMode:           types.ModeCalendar,
			LookbackDays:          14,
			BatchSize:             100000,
			RefreshFrequencyHours: 6,
			SQLTemplate: "SELECT * FROM `warehouse.raw.trandeuda` WHERE monto_exigible > 0 AND motivo_rechazo IS NULL AND {incremental_filter}",
		},
		types.TableConfig{
			Name:                  "pagos",
			Layer:                 types.LayerRaw,
			SourceIdentifier:      "warehouse.raw.pagos",
			PrimaryKey:            []string{"archivo", "cod_cuenta", "fecha_pago"},
			IncrementalColumn:     "fecha_pago",
			DefaultMode:           types.ModeCalendar,
			LookbackDays:          30,
			BatchSize:             25000,
			RefreshFrequencyHours: 6,
			SQLTemplate: "SELECT * FROM `warehouse.raw.pagos` WHERE monto_cancelado > 0 AND motivo_rechazo IS NULL AND {incremental_filter}",
		},
		types.TableConfig{
			Name:                  "gestiones_unificadas",
			Layer:                 types.LayerRaw,
			SourceIdentifier:      "warehouse.raw.gestiones_unificadas",
			PrimaryKey:            []string{"archivo", "cod_cuenta", "fecha_gestion", "canal"},
			IncrementalColumn:     "fecha_gestion",
			DefaultMode:           types.ModeWatermark,
			LookbackDays:          3,
			BatchSize:             75000,
			RefreshFrequencyHours: 1,
			SQLTemplate: "SELECT * FROM `warehouse.raw.gestiones_unificadas` WHERE {incremental_filter}",
		},
		// homologacion_mibotair is a small dimension table with no
		// incremental column: every run replaces it wholesale.
		types.TableConfig{
			Name:                  "homologacion_mibotair",
			Layer:                 types.LayerRaw,
			SourceIdentifier:      "warehouse.raw.homologacion_mibotair",
			PrimaryKey:            []string{"n_1", "n_2", "n_3"},
			DefaultMode:           types.ModeWatermark,
			Refresh:               types.ModeFullRefresh,
			BatchSize:             10000,
			RefreshFrequencyHours: 24,
			SQLTemplate: "SELECT * FROM `warehouse.raw.homologacion_mibotair`",
		},
	)
}

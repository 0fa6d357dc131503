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

package transform

import "github.com/reyer3/pulso-etl/internal/types"

// DefaultTables returns the production transformer configuration for
// the debt-collection raw layer, keyed by table name.
func DefaultTables() map[string]*Table {
	tables := []*Table{
		{
			Name:       "calendario",
			PrimaryKey: []string{"archivo", "fecha"},
			Columns: []ColumnSpec{
				{Name: "archivo", Type: TypeString, MaxLength: 64},
				{Name: "fecha", Type: TypeDate},
				{Name: "fecha_actualizacion", Type: TypeDateTime},
				{Name: "portfolio_type", Type: TypeString, MaxLength: 32},
				{Name: "status", Type: TypeString, MaxLength: 16},
			},
		},
		{
			Name:       "asignaciones",
			PrimaryKey: []string{"archivo", "cod_cuenta"},
			Columns: []ColumnSpec{
				{Name: "archivo", Type: TypeString, MaxLength: 64},
				{Name: "cod_cuenta", Type: TypeString, MaxLength: 64},
				{Name: "fecha_asignacion", Type: TypeDateTime},
				{Name: "monto_deuda", Type: TypeDecimal},
			},
		},
		{
			Name:       "trandeuda",
			PrimaryKey: []string{"archivo", "cod_cuenta", "fecha_trandeuda"},
			Columns: []ColumnSpec{
				{Name: "archivo", Type: TypeString, MaxLength: 64},
				{Name: "cod_cuenta", Type: TypeString, MaxLength: 64},
				{Name: "fecha_trandeuda", Type: TypeDateTime},
				{Name: "monto_exigible", Type: TypeDecimal},
				{Name: "motivo_rechazo", Type: TypeString, MaxLength: 128},
			},
			RequiredCheck: func(r types.Row) bool {
				amount, _ := r["monto_exigible"].(float64)
				return amount > 0 && r["motivo_rechazo"] == nil
			},
		},
		{
			Name:       "pagos",
			PrimaryKey: []string{"archivo", "cod_cuenta", "fecha_pago"},
			Columns: []ColumnSpec{
				{Name: "archivo", Type: TypeString, MaxLength: 64},
				{Name: "cod_cuenta", Type: TypeString, MaxLength: 64},
				{Name: "fecha_pago", Type: TypeDateTime},
				{Name: "monto_cancelado", Type: TypeDecimal},
				{Name: "motivo_rechazo", Type: TypeString, MaxLength: 128},
			},
			RequiredCheck: func(r types.Row) bool {
				amount, _ := r["monto_cancelado"].(float64)
				return amount > 0 && r["motivo_rechazo"] == nil
			},
		},
		{
			Name:       "gestiones_unificadas",
			PrimaryKey: []string{"archivo", "cod_cuenta", "fecha_gestion", "canal"},
			Columns: []ColumnSpec{
				{Name: "archivo", Type: TypeString, MaxLength: 64},
				{Name: "cod_cuenta", Type: TypeString, MaxLength: 64},
				{Name: "fecha_gestion", Type: TypeDateTime},
				{Name: "canal", Type: TypeEnum, EnumValues: []string{"BOT", "HUMANO"}, EnumDefault: "BOT"},
				{Name: "resultado", Type: TypeString, MaxLength: 64},
			},
		},
	}

	out := make(map[string]*Table, len(tables))
	for _, t := range tables {
		out[t.Name] = t
	}
	return out
}

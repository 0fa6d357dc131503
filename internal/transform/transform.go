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

// Package transform coerces raw warehouse row dictionaries into
// typed, validated, de-nullified sink records, one logical table at a
// time.
package transform

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/reyer3/pulso-etl/internal/types"
)

// ColumnType is the declared type of a sink column.
type ColumnType int

// The column types the transformer knows how to coerce.
const (
	TypeString ColumnType = iota
	TypeInt
	TypeDecimal
	TypeBool
	TypeDate
	TypeDateTime
	TypeEnum
)

// ColumnSpec describes how one column of a logical table should be
// coerced and validated.
type ColumnSpec struct {
	Name         string
	Type         ColumnType
	MaxLength    int      // 0 means unbounded; only applies to TypeString
	EnumValues   []string // only applies to TypeEnum
	EnumDefault  string   // only applies to TypeEnum
}

// RequiredCheck validates a row against a table-specific business
// rule (e.g. "monto_exigible > 0 AND motivo_rechazo IS NULL" for debt
// rows) after type coercion. It returns false if the row should be
// dropped.
type RequiredCheck func(types.Row) bool

// Table is a per-logical-table transformer.
type Table struct {
	Name          string
	PrimaryKey    []string
	Columns       []ColumnSpec
	RequiredCheck RequiredCheck
}

// Counters tracks the outcome of one call to Transform.
type Counters struct {
	Processed   int
	Transformed int
	Skipped     int
	Errors      int
}

var truthy = map[string]bool{
	"true": true, "1": true, "yes": true, "si": true, "sí": true,
}

// Transform coerces and validates every row in batch, returning the
// surviving rows and run counters. A row that fails to coerce, is
// missing a primary-key field, or fails the table's RequiredCheck is
// dropped and counted, but never aborts the batch.
func (t *Table) Transform(batch []types.Row) ([]types.Row, Counters) {
	var counters Counters
	out := make([]types.Row, 0, len(batch))

	for _, raw := range batch {
		counters.Processed++

		row, err := t.transformRow(raw)
		if err != nil {
			counters.Errors++
			log.WithFields(log.Fields{
				"table": t.Name,
				"pk":    pkValues(raw, t.PrimaryKey),
				"error": err,
			}).Warn("row transform failed")
			continue
		}

		if !hasPrimaryKey(row, t.PrimaryKey) {
			counters.Skipped++
			continue
		}
		if t.RequiredCheck != nil && !t.RequiredCheck(row) {
			counters.Skipped++
			continue
		}

		out = append(out, row)
		counters.Transformed++
	}

	return out, counters
}

func (t *Table) transformRow(raw types.Row) (types.Row, error) {
	row := make(types.Row, len(t.Columns))
	for _, col := range t.Columns {
		v, ok := raw[col.Name]
		coerced, err := coerce(col, v, ok)
		if err != nil {
			return nil, err
		}
		row[col.Name] = coerced
	}
	return row, nil
}

func coerce(col ColumnSpec, v any, present bool) (any, error) {
	if !present || v == nil {
		if col.Type == TypeBool {
			return false, nil
		}
		return nil, nil
	}

	switch col.Type {
	case TypeString:
		s := strings.TrimSpace(toString(v))
		if s == "" {
			return nil, nil
		}
		if col.MaxLength > 0 && len(s) > col.MaxLength {
			s = s[:col.MaxLength]
		}
		return s, nil

	case TypeInt:
		return parseInt(v)

	case TypeDecimal:
		return parseDecimal(v)

	case TypeBool:
		return truthy[strings.ToLower(strings.TrimSpace(toString(v)))], nil

	case TypeDate, TypeDateTime:
		return parseTime(v, col.Type == TypeDate)

	case TypeEnum:
		s := strings.ToUpper(strings.TrimSpace(toString(v)))
		for _, allowed := range col.EnumValues {
			if s == allowed {
				return s, nil
			}
		}
		return col.EnumDefault, nil

	default:
		return v, nil
	}
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}

// parseInt strips grouping separators (spaces, commas, underscores)
// before conversion, so warehouse exports that render integers with
// thousands separators still coerce cleanly.
func parseInt(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case float64:
		return int64(x), nil
	case string:
		cleaned := stripNonDigits(x)
		if cleaned == "" {
			return 0, nil
		}
		return strconv.ParseInt(cleaned, 10, 64)
	default:
		return 0, nil
	}
}

func stripNonDigits(s string) string {
	neg := strings.HasPrefix(strings.TrimSpace(s), "-")
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if neg && b.Len() > 0 {
		return "-" + b.String()
	}
	return b.String()
}

func parseDecimal(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int64:
		return float64(x), nil
	case int:
		return float64(x), nil
	case string:
		cleaned := strings.ReplaceAll(strings.TrimSpace(x), ",", "")
		if cleaned == "" {
			return 0, nil
		}
		return strconv.ParseFloat(cleaned, 64)
	default:
		return 0, nil
	}
}

// parseTime normalizes to UTC; naive (timezone-less) datetimes are
// assumed to already be in UTC.
func parseTime(v any, dateOnly bool) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x.UTC(), nil
	case string:
		layouts := []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"}
		var lastErr error
		for _, layout := range layouts {
			if t, err := time.Parse(layout, x); err == nil {
				if dateOnly {
					return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
				}
				return t.UTC(), nil
			} else {
				lastErr = err
			}
		}
		return time.Time{}, lastErr
	default:
		return time.Time{}, nil
	}
}

func hasPrimaryKey(row types.Row, pk []string) bool {
	for _, col := range pk {
		if v, ok := row[col]; !ok || v == nil {
			return false
		}
	}
	return true
}

func pkValues(row types.Row, pk []string) map[string]any {
	out := make(map[string]any, len(pk))
	for _, col := range pk {
		out[col] = row[col]
	}
	return out
}

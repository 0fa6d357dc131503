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

// Package querybuilder turns a catalog entry, a chosen strategy, and
// an optional campaign/watermark pair into the concrete SQL the
// warehouse reader executes. It owns the single `{incremental_filter}`
// substitution point in each table's SQL template.
package querybuilder

import (
	"fmt"
	"strings"
	"time"

	"github.com/reyer3/pulso-etl/internal/strategy"
	"github.com/reyer3/pulso-etl/internal/types"
)

const isoDate = "2006-01-02"

// Builder produces warehouse SQL from catalog templates.
type Builder struct {
	// ProjectID and DatasetID are substituted into templates that
	// reference {project_id}/{dataset_id}, if any do.
	ProjectID string
	DatasetID string
}

// New returns a Builder bound to the given warehouse project/dataset.
func New(projectID, datasetID string) *Builder {
	return &Builder{ProjectID: projectID, DatasetID: datasetID}
}

// Build renders the final SQL for one extraction of table, given the
// chosen strategy and the optional campaign/watermark context. A nil
// watermark means no prior successful extraction is on record.
func (b *Builder) Build(
	table types.TableConfig,
	strat strategy.Strategy,
	campaign *types.Campaign,
	watermark *types.Watermark,
	forceFullRefresh bool,
) string {
	filter := b.filter(table, strat, campaign, watermark, forceFullRefresh)

	sql := table.SQLTemplate
	sql = strings.ReplaceAll(sql, "{incremental_filter}", filter)
	sql = strings.ReplaceAll(sql, "{project_id}", b.ProjectID)
	sql = strings.ReplaceAll(sql, "{dataset_id}", b.DatasetID)
	if campaign != nil {
		sql = strings.ReplaceAll(sql, "{campaign_archivo}", quoteLiteral(campaign.Archivo))
	}
	return sql
}

// filter implements the incremental-filter predicate table. Every input feeding the
// generated predicate comes from the catalog or the calendar, both of
// which are trusted; nothing here is safe to feed with user input.
func (b *Builder) filter(
	table types.TableConfig,
	strat strategy.Strategy,
	campaign *types.Campaign,
	watermark *types.Watermark,
	forceFullRefresh bool,
) string {
	if forceFullRefresh || table.Refresh == types.ModeFullRefresh {
		return "1=1"
	}

	switch strat {
	case strategy.Watermark:
		if watermark != nil {
			return watermarkPredicate(table, watermark)
		}
		if campaign != nil {
			return calendarPredicate(table, campaign, false /* extended */)
		}
		return "1=1"

	default: // strategy.Calendar, or anything unrecognized falls back to it
		if campaign == nil {
			return "1=1"
		}
		return calendarPredicate(table, campaign, true /* extended */)
	}
}

func watermarkPredicate(table types.TableConfig, wm *types.Watermark) string {
	floor := wm.LastExtractedAt.AddDate(0, 0, -table.LookbackDays)
	return fmt.Sprintf("%s BETWEEN %s AND %s",
		table.IncrementalColumn, literalTimestamp(floor), literalToday())
}

// windowFor returns the inclusive [start, end] calendar window for table,
// following the per-table window rules. extended selects the padded
// (pre/post lookback) window used by the calendar strategy; a
// non-extended window is used when the watermark strategy falls back
// to calendar rules with no prior watermark.
func windowFor(table types.TableConfig, campaign *types.Campaign, extended bool) (start, end time.Time) {
	open := campaign.OpenDate
	close := open
	if campaign.CloseDate != nil {
		close = *campaign.CloseDate
	}
	today := time.Now().UTC()

	pre, post := 0, 0
	hasClose := campaign.CloseDate != nil
	switch table.Name {
	case "asignaciones":
		pre, post = 30, 15
	case "trandeuda":
		pre, post = 7, 30
	case "pagos":
		pre, post = 7, 45
	case "bot_interacciones", "human_interacciones":
		pre, post = 0, 90
	default:
		pre, post = 15, 15
	}
	if !extended {
		pre, post = 0, 0
	}

	start = open.AddDate(0, 0, -pre)
	if hasClose {
		end = close.AddDate(0, 0, post)
	} else {
		end = today.AddDate(0, 0, post)
	}
	return start, end
}

// calendarPredicate implements the calendar-strategy rows of the
// predicate table, including the table-specific late-bound-row carve-outs
// (an exact archivo match for assignments, a basename LIKE match for
// debts).
func calendarPredicate(table types.TableConfig, campaign *types.Campaign, extended bool) string {
	start, end := windowFor(table, campaign, extended)
	col := table.IncrementalColumn
	window := fmt.Sprintf("DATE(%s) BETWEEN %s AND %s", col, literalDate(start), literalDate(end))

	switch table.Name {
	case "asignaciones":
		return fmt.Sprintf("(%s OR archivo = %s)", window, quoteLiteral(campaign.Archivo))
	case "trandeuda":
		basename := campaign.Archivo
		if i := strings.IndexByte(basename, '_'); i >= 0 {
			basename = basename[:i]
		}
		return fmt.Sprintf("(%s OR archivo LIKE %s)", window, quoteLiteral(basename+"%"))
	default:
		return window
	}
}

func literalDate(t time.Time) string {
	return quoteLiteral(t.Format(isoDate))
}

func literalTimestamp(t time.Time) string {
	return quoteLiteral(t.UTC().Format(time.RFC3339))
}

func literalToday() string {
	return quoteLiteral(time.Now().UTC().Format(isoDate))
}

// quoteLiteral wraps a trusted, engine-generated string in single
// quotes. It is not a general-purpose escaping routine and must never
// be handed a value that originated outside the catalog or calendar.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

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

// Package watermark is the durable extraction bookkeeping store: one
// row per logical table, recording the last successful extraction
// timestamp, the status of the most recent attempt, and enough detail
// to correlate that attempt with its logs and metrics.
package watermark

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/reyer3/pulso-etl/internal/types"
)

// tableName is the engine-internal watermark table; it lives
// in the public schema alongside the execution log.
const tableName = "public.etl_watermarks"

const schemaDDL = `
CREATE TABLE IF NOT EXISTS ` + tableName + ` (
  table_name                  TEXT PRIMARY KEY,
  last_extracted_at           TIMESTAMPTZ,
  last_extraction_status      TEXT NOT NULL DEFAULT 'reset',
  records_extracted           INT NOT NULL DEFAULT 0,
  extraction_duration_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
  error_message               TEXT,
  extraction_id               TEXT,
  metadata                    JSONB,
  created_at                  TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at                  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS etl_watermarks_table_name_idx ON ` + tableName + ` (table_name);
CREATE INDEX IF NOT EXISTS etl_watermarks_status_idx ON ` + tableName + ` (last_extraction_status);
CREATE INDEX IF NOT EXISTS etl_watermarks_updated_at_idx ON ` + tableName + ` (updated_at);
`

// Store persists and serves per-table extraction state. It depends
// only on types.SinkQuerier, not a concrete pool, so tests can supply
// a fake querier instead of a live database.
type Store struct {
	pool types.SinkQuerier
}

// New wraps a sink connection pool as a watermark Store.
func New(pool types.SinkQuerier) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the watermark table and its indexes if they do
// not already exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schemaDDL)
	return errors.WithStack(err)
}

const startTemplate = `
INSERT INTO ` + tableName + ` (table_name, last_extraction_status, extraction_id, updated_at)
VALUES ($1, 'running', $2, now())
ON CONFLICT (table_name) DO UPDATE SET
  last_extraction_status = 'running',
  extraction_id = EXCLUDED.extraction_id,
  updated_at = now()
`

// Start marks table as currently being extracted under extractionID.
// It is idempotent: calling it again for an already-running table
// simply refreshes the extraction ID and the updated_at checkpoint
// used by ReapStale.
func (s *Store) Start(ctx context.Context, table, extractionID string) error {
	_, err := s.pool.Exec(ctx, startTemplate, table, extractionID)
	if err != nil {
		return errors.WithStack(err)
	}
	log.WithFields(log.Fields{"table": table, "extractionId": extractionID}).Trace("watermark started")
	return nil
}

const completeTemplate = `
INSERT INTO ` + tableName + ` (
  table_name, last_extracted_at, last_extraction_status, records_extracted,
  extraction_duration_seconds, error_message, extraction_id, metadata, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
ON CONFLICT (table_name) DO UPDATE SET
  last_extracted_at           = EXCLUDED.last_extracted_at,
  last_extraction_status      = EXCLUDED.last_extraction_status,
  records_extracted           = EXCLUDED.records_extracted,
  extraction_duration_seconds = EXCLUDED.extraction_duration_seconds,
  error_message                = EXCLUDED.error_message,
  extraction_id                = EXCLUDED.extraction_id,
  metadata                     = EXCLUDED.metadata,
  updated_at                   = now()
`

// Complete atomically records the final outcome of an extraction
// attempt. When status is not Success, lastExtractedAt should be the
// table's previous floor (callers must not advance the floor on a
// failed or cancelled attempt).
func (s *Store) Complete(
	ctx context.Context,
	table string,
	lastExtractedAt time.Time,
	records int,
	duration time.Duration,
	status types.WatermarkStatus,
	errMsg *string,
	extractionID string,
	metadata map[string]any,
) error {
	var metaJSON []byte
	if metadata != nil {
		var err error
		metaJSON, err = json.Marshal(metadata)
		if err != nil {
			return errors.Wrap(err, "marshal watermark metadata")
		}
	}

	_, err := s.pool.Exec(ctx, completeTemplate,
		table, lastExtractedAt, string(status), records,
		duration.Seconds(), errMsg, extractionID, metaJSON,
	)
	if err != nil {
		return errors.WithStack(err)
	}
	log.WithFields(log.Fields{
		"table":   table,
		"status":  status,
		"records": records,
	}).Debug("watermark completed")
	return nil
}

const getTemplate = `
SELECT table_name, last_extracted_at, last_extraction_status, records_extracted,
       extraction_duration_seconds, error_message, extraction_id, metadata, created_at, updated_at
FROM ` + tableName + ` WHERE table_name = $1
`

// Get returns the current watermark record for table, or (zero value,
// false) if none exists.
func (s *Store) Get(ctx context.Context, table string) (types.Watermark, bool, error) {
	var wm types.Watermark
	var lastExtractedAt *time.Time
	var metaJSON []byte
	var status string

	row := s.pool.QueryRow(ctx, getTemplate, table)
	err := row.Scan(
		&wm.TableName, &lastExtractedAt, &status, &wm.RecordsExtracted,
		&wm.DurationSeconds, &wm.ErrorMessage, &wm.ExtractionID, &metaJSON,
		&wm.CreatedAt, &wm.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.Watermark{}, false, nil
	}
	if err != nil {
		return types.Watermark{}, false, errors.WithStack(err)
	}

	wm.Status = types.WatermarkStatus(status)
	if lastExtractedAt != nil {
		wm.LastExtractedAt = *lastExtractedAt
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &wm.Metadata); err != nil {
			return types.Watermark{}, false, errors.Wrap(err, "unmarshal watermark metadata")
		}
	}
	return wm, true, nil
}

// LastExtractionTime returns the usable floor for incremental
// extraction: only success and reset states advance it. A failed or
// still-running watermark does not produce a usable floor, so callers
// treat the table as if no watermark existed.
func (s *Store) LastExtractionTime(ctx context.Context, table string) (time.Time, bool, error) {
	wm, ok, err := s.Get(ctx, table)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	return usableFloor(wm)
}

// usableFloor implements the floor rule in isolation from the
// database round trip: a watermark only advances the incremental
// floor while in the success or reset states. A running or failed
// watermark yields no floor, so the caller falls back to the table's
// default strategy as if no watermark existed.
func usableFloor(wm types.Watermark) (time.Time, bool, error) {
	if wm.Status != types.StatusSuccess && wm.Status != types.StatusReset {
		return time.Time{}, false, nil
	}
	return wm.LastExtractedAt, true, nil
}

const resetTemplate = `
INSERT INTO ` + tableName + ` (table_name, last_extracted_at, last_extraction_status, updated_at)
VALUES ($1, $2, 'reset', now())
ON CONFLICT (table_name) DO UPDATE SET
  last_extracted_at      = EXCLUDED.last_extracted_at,
  last_extraction_status = 'reset',
  error_message           = NULL,
  updated_at              = now()
`

// Reset is an operator action that pins a table's floor to an
// explicit timestamp, bypassing whatever the last attempt recorded.
func (s *Store) Reset(ctx context.Context, table string, at time.Time) error {
	_, err := s.pool.Exec(ctx, resetTemplate, table, at)
	return errors.WithStack(err)
}

const reapStaleTemplate = `
UPDATE ` + tableName + ` SET
  last_extraction_status = 'failed',
  error_message           = 'reaped: exceeded stale-run timeout',
  updated_at              = now()
WHERE last_extraction_status = 'running'
  AND updated_at < now() - $1::interval
`

// ReapStale flips any watermark that has been stuck in the running
// state for longer than timeout to failed, returning the number of
// records reaped. Doing so releases the at-most-one-concurrent-
// extraction slot the running marker otherwise holds open forever.
func (s *Store) ReapStale(ctx context.Context, timeout time.Duration) (int, error) {
	tag, err := s.pool.Exec(ctx, reapStaleTemplate, fmt.Sprintf("%d seconds", int(timeout.Seconds())))
	if err != nil {
		return 0, errors.WithStack(err)
	}
	n := int(tag.RowsAffected())
	if n > 0 {
		log.Warnf("reaped %d stale watermark(s)", n)
	}
	return n, nil
}

// Summary aggregates the watermark table for the control surface's
// status endpoint.
type Summary struct {
	TotalTables     int
	SuccessCount    int
	FailedCount     int
	RunningCount    int
	TotalRecords    int64
	AvgDurationSecs float64
	LastActivity    *time.Time
}

const summaryTemplate = `
SELECT
  count(*),
  count(*) FILTER (WHERE last_extraction_status = 'success'),
  count(*) FILTER (WHERE last_extraction_status = 'failed'),
  count(*) FILTER (WHERE last_extraction_status = 'running'),
  coalesce(sum(records_extracted), 0),
  coalesce(avg(extraction_duration_seconds), 0),
  max(updated_at)
FROM ` + tableName

// Summary computes the aggregate counters over every watermark row.
func (s *Store) Summary(ctx context.Context) (Summary, error) {
	var out Summary
	row := s.pool.QueryRow(ctx, summaryTemplate)
	if err := row.Scan(
		&out.TotalTables, &out.SuccessCount, &out.FailedCount, &out.RunningCount,
		&out.TotalRecords, &out.AvgDurationSecs, &out.LastActivity,
	); err != nil {
		return Summary{}, errors.WithStack(err)
	}
	return out, nil
}

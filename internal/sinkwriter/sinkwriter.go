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

// Package sinkwriter applies transformed row batches to the
// Postgres-compatible operational sink, using a single parametrized,
// multi-row statement per batch rather than one round trip per row.
package sinkwriter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/reyer3/pulso-etl/internal/metrics"
	"github.com/reyer3/pulso-etl/internal/types"
)

// Status is the terminal state of a load operation.
type Status string

// The three load statuses.
const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// Result summarizes one call to LoadBatch, LoadStream, or
// TruncateAndLoad.
type Result struct {
	TotalReceived int
	Inserted      int
	Updated       int
	Skipped       int
	Duration      time.Duration
	Status        Status
	Err           error
}

// Writer loads row batches into sink tables.
type Writer struct {
	pool *types.SinkPool
}

// New wraps a sink connection pool as a Writer.
func New(pool *types.SinkPool) *Writer {
	return &Writer{pool: pool}
}

// LoadBatch builds and executes one upsert (or plain insert, when mode
// is LoadFullRefresh-style insert-only) for the given rows.
func (w *Writer) LoadBatch(
	ctx context.Context, sinkTable string, rows []types.Row, primaryKey []string, mode types.LoadMode,
) Result {
	start := time.Now()
	res := Result{TotalReceived: len(rows)}

	rows, dropped := dropNullKeyRows(rows, primaryKey)
	res.Skipped += dropped

	if len(rows) == 0 {
		res.Duration = time.Since(start)
		res.Status = StatusSuccess
		return res
	}

	sql, args := buildUpsert(sinkTable, rows, primaryKey, mode)

	tag, err := w.pool.Exec(ctx, sql, args...)
	res.Duration = time.Since(start)
	if err != nil {
		res.Status = StatusFailed
		res.Err = errors.WithStack(err)
		metrics.LoadErrors.WithLabelValues(sinkTable).Inc()
		return res
	}

	metrics.LoadRows.WithLabelValues(sinkTable).Add(float64(len(rows)))
	metrics.LoadDurations.WithLabelValues(sinkTable).Observe(res.Duration.Seconds())

	res.Inserted = int(tag.RowsAffected())
	res.Status = StatusSuccess
	return res
}

// BatchSource yields successive pages of already-transformed rows,
// returning (nil, io.EOF)-style termination via the ok return value.
type BatchSource func(ctx context.Context) (rows []types.Row, ok bool, err error)

// LoadStream drives source to completion, loading one batch at a time
// so the writer never buffers more than a single page in memory. A
// failed batch does not stop the stream; the final status is Partial
// if any batch failed.
func (w *Writer) LoadStream(
	ctx context.Context, sinkTable string, primaryKey []string, mode types.LoadMode, source BatchSource,
) Result {
	start := time.Now()
	total := Result{Status: StatusSuccess}

	for {
		rows, ok, err := source(ctx)
		if err != nil {
			total.Status = StatusFailed
			total.Err = err
			break
		}
		if !ok {
			break
		}

		batchResult := w.LoadBatch(ctx, sinkTable, rows, primaryKey, mode)
		total.TotalReceived += batchResult.TotalReceived
		total.Inserted += batchResult.Inserted
		total.Skipped += batchResult.Skipped

		if batchResult.Status == StatusFailed {
			log.WithFields(log.Fields{"table": sinkTable, "error": batchResult.Err}).
				Warn("batch failed, continuing stream")
			if total.Status == StatusSuccess {
				total.Status = StatusPartial
			}
			if total.Err == nil {
				total.Err = batchResult.Err
			}
		}
	}

	total.Duration = time.Since(start)
	return total
}

// TruncateAndLoad empties sinkTable and reloads it with rows, all
// within a single transaction, so a failed reload leaves the prior
// contents untouched.
func (w *Writer) TruncateAndLoad(
	ctx context.Context, sinkTable string, rows []types.Row, primaryKey []string,
) Result {
	start := time.Now()
	res := Result{TotalReceived: len(rows)}

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		res.Status = StatusFailed
		res.Err = errors.WithStack(err)
		return res
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, fmt.Sprintf("TRUNCATE %s RESTART IDENTITY", sinkTable)); err != nil {
		res.Status = StatusFailed
		res.Err = errors.WithStack(err)
		return res
	}

	rows, dropped := dropNullKeyRows(rows, primaryKey)
	res.Skipped += dropped

	if len(rows) > 0 {
		sql, args := buildUpsert(sinkTable, rows, primaryKey, types.LoadFullRefresh)
		tag, err := tx.Exec(ctx, sql, args...)
		if err != nil {
			res.Status = StatusFailed
			res.Err = errors.WithStack(err)
			return res
		}
		res.Inserted = int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		res.Status = StatusFailed
		res.Err = errors.WithStack(err)
		return res
	}

	res.Duration = time.Since(start)
	res.Status = StatusSuccess
	return res
}

// dropNullKeyRows removes rows missing any primary-key value, per the
// the table's required-column validation rule; they are counted as skipped, not failed.
func dropNullKeyRows(rows []types.Row, primaryKey []string) ([]types.Row, int) {
	if len(primaryKey) == 0 {
		return rows, 0
	}
	out := make([]types.Row, 0, len(rows))
	dropped := 0
	for _, r := range rows {
		ok := true
		for _, col := range primaryKey {
			if v, present := r[col]; !present || v == nil {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, r)
		} else {
			dropped++
		}
	}
	return out, dropped
}

// buildUpsert builds one parametrized, multi-row
// INSERT ... ON CONFLICT ... DO UPDATE SET statement. Column order is
// derived from the union of keys across rows so that a batch with
// sparse rows still produces a single well-formed statement.
func buildUpsert(sinkTable string, rows []types.Row, primaryKey []string, mode types.LoadMode) (string, []any) {
	columns := unionColumns(rows)
	pkSet := make(map[string]bool, len(primaryKey))
	for _, c := range primaryKey {
		pkSet[c] = true
	}

	var stmt strings.Builder
	fmt.Fprintf(&stmt, "INSERT INTO %s (%s) VALUES ", sinkTable, strings.Join(columns, ", "))

	args := make([]any, 0, len(rows)*len(columns))
	placeholder := 1
	for i, row := range rows {
		if i > 0 {
			stmt.WriteString(", ")
		}
		stmt.WriteByte('(')
		for j, col := range columns {
			if j > 0 {
				stmt.WriteString(", ")
			}
			fmt.Fprintf(&stmt, "$%d", placeholder)
			placeholder++
			args = append(args, row[col])
		}
		stmt.WriteByte(')')
	}

	if mode != types.LoadFullRefresh && len(primaryKey) > 0 {
		fmt.Fprintf(&stmt, " ON CONFLICT (%s) DO UPDATE SET ", strings.Join(primaryKey, ", "))
		first := true
		for _, col := range columns {
			if pkSet[col] {
				continue
			}
			if !first {
				stmt.WriteString(", ")
			}
			fmt.Fprintf(&stmt, "%s = EXCLUDED.%s", col, col)
			first = false
		}
	}

	return stmt.String(), args
}

func unionColumns(rows []types.Row) []string {
	seen := make(map[string]bool)
	var cols []string
	for _, r := range rows {
		for col := range r {
			if !seen[col] {
				seen[col] = true
				cols = append(cols, col)
			}
		}
	}
	sortStrings(cols)
	return cols
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

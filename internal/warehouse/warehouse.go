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

// Package warehouse implements the source-side half of the pipeline:
// running a SQL query against the cloud warehouse and yielding its
// result set one page at a time, never materializing the whole thing
// in memory.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/reyer3/pulso-etl/internal/types"
	"github.com/reyer3/pulso-etl/internal/util/retry"
)

// Limits describes the resources a single query may consume
// "Resource limits". Reader applies QueryTimeout to each Stream call;
// MaxBilledBytes is carried but not enforced by Reader.
type Limits struct {
	MaxBilledBytes int64
	QueryTimeout   time.Duration
}

// DefaultLimits is the conservative default: a 10 GB billed-bytes
// ceiling and a 5-minute wall clock per query.
var DefaultLimits = Limits{
	MaxBilledBytes: 10 << 30,
	QueryTimeout:   5 * time.Minute,
}

// Reader executes SQL against a database/sql-compatible warehouse
// driver and streams the results in pages.
type Reader struct {
	db     *sql.DB
	limits Limits
	retry  retry.Policy
}

// New wraps a database/sql handle as a warehouse Reader. Any driver
// capable of these source warehouse protocol capabilities may
// be registered beneath db; the reader concerns itself only with the
// SQL it is handed, never with the dialect.
func New(db *sql.DB, limits Limits) *Reader {
	return &Reader{db: db, limits: limits, retry: retry.DefaultPolicy}
}

var _ types.WarehouseClient = (*Reader)(nil)

// Test runs a bounded readiness probe: a bare SELECT 1 with a
// 30-second timeout, regardless of the reader's configured query
// timeout. It does not query any table and applies no row LIMIT.
func (r *Reader) Test(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	row := r.db.QueryRowContext(ctx, "SELECT 1")
	var one int
	if err := row.Scan(&one); err != nil {
		return Classify(errors.Wrap(err, "warehouse readiness probe failed"), ClassTransient)
	}
	return nil
}

// Stream runs query against the warehouse and delivers its result set
// in pages of at most pageSize rows. The row and error channels are
// both closed when the stream is exhausted or a non-retryable error
// occurs; at most one value is ever sent on the error channel.
func (r *Reader) Stream(ctx context.Context, query string, pageSize int) (<-chan types.RowBatch, <-chan error) {
	if pageSize <= 0 {
		pageSize = 1000
	}

	out := make(chan types.RowBatch)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		ctx, cancel := context.WithTimeout(ctx, r.limits.QueryTimeout)
		defer cancel()

		offset := int64(0)
		for {
			var batch types.RowBatch
			err := retry.Do(ctx, r.retry, Retryable, func(ctx context.Context) error {
				b, err := r.fetchPage(ctx, query, pageSize, offset)
				if err != nil {
					return err
				}
				batch = b
				return nil
			})
			if err != nil {
				errc <- err
				return
			}

			select {
			case out <- batch:
			case <-ctx.Done():
				errc <- errors.WithStack(ctx.Err())
				return
			}

			if batch.Done {
				return
			}
			offset = batch.NextOffset
		}
	}()

	return out, errc
}

// fetchPage runs a single paginated fetch. The paging strategy
// (wrapping the caller's query in an outer LIMIT/OFFSET) works for
// any SQL dialect that supports those clauses, which keeps the reader
// decoupled from any one warehouse's native pagination API.
func (r *Reader) fetchPage(ctx context.Context, query string, pageSize int, offset int64) (types.RowBatch, error) {
	paged := fmt.Sprintf("SELECT * FROM (%s) AS page_source LIMIT %d OFFSET %d", query, pageSize+1, offset)

	rows, err := r.db.QueryContext(ctx, paged)
	if err != nil {
		return types.RowBatch{}, classify(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return types.RowBatch{}, Classify(errors.WithStack(err), ClassPermanent)
	}

	var out []types.Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return types.RowBatch{}, Classify(errors.WithStack(err), ClassPermanent)
		}

		row := make(types.Row, len(cols))
		for i, col := range cols {
			row[col] = normalize(vals[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return types.RowBatch{}, classify(err)
	}

	done := len(out) <= pageSize
	if !done {
		out = out[:pageSize]
	}
	log.WithFields(log.Fields{"rows": len(out), "offset": offset, "done": done}).Trace("fetched warehouse page")

	return types.RowBatch{Rows: out, NextOffset: offset + int64(len(out)), Done: done}, nil
}

// normalize coerces the handful of driver value shapes the transform
// stage does not need to re-discover: []byte becomes string, and
// anything already UTC-normalized is passed through untouched.
func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// classify maps a raw driver error onto the retry-classification taxonomy using a best
// effort textual heuristic, since database/sql does not expose a
// portable error-code type across dialects.
func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Classify(errors.WithStack(err), ClassTimeout)
	case strings.Contains(msg, "auth") || strings.Contains(msg, "permission") || strings.Contains(msg, "denied"):
		return Classify(errors.WithStack(err), ClassAuth)
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return Classify(errors.WithStack(err), ClassTimeout)
	case strings.Contains(msg, "connection") || strings.Contains(msg, "reset") || strings.Contains(msg, "unavailable"):
		return Classify(errors.WithStack(err), ClassTransient)
	default:
		return Classify(errors.WithStack(err), ClassPermanent)
	}
}

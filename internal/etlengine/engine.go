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

// Package etlengine drives one table's extraction end to end: it
// opens a warehouse page stream, pipes it through the row transformer
// under a hard batch-size cap, and feeds the result to the sink
// writer, updating the table's watermark at the end.
package etlengine

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/reyer3/pulso-etl/internal/catalog"
	"github.com/reyer3/pulso-etl/internal/metrics"
	"github.com/reyer3/pulso-etl/internal/querybuilder"
	"github.com/reyer3/pulso-etl/internal/sinkwriter"
	"github.com/reyer3/pulso-etl/internal/strategy"
	"github.com/reyer3/pulso-etl/internal/transform"
	"github.com/reyer3/pulso-etl/internal/types"
	"github.com/reyer3/pulso-etl/internal/util/idgen"
	"github.com/reyer3/pulso-etl/internal/watermark"
)

// Engine composes the components each table extraction needs.
type Engine struct {
	Catalog    *catalog.Catalog
	Builder    *querybuilder.Builder
	Warehouse  types.WarehouseClient
	Sink       *sinkwriter.Writer
	Watermarks *watermark.Store
	Transforms map[string]*transform.Table // keyed by table name

	// MaxBatchSize is the hard per-batch cap applied uniformly; pages
	// larger than this are split before being handed to the sink
	// writer.
	MaxBatchSize int
}

// Run extracts table, optionally scoped to campaign, and (unless the
// caller is only testing a query) persists the table's watermark at
// the end.
func (e *Engine) Run(
	ctx context.Context,
	tableName string,
	campaign *types.Campaign,
	forceFullRefresh bool,
	forcedStrategy *strategy.Strategy,
	updateWatermark bool,
) sinkwriter.Result {
	start := time.Now()

	table, ok := e.Catalog.Lookup(tableName)
	if !ok {
		return sinkwriter.Result{Status: sinkwriter.StatusFailed, Err: errNoSuchTable(tableName)}
	}

	extractionID := idgen.New()

	var watermarkRec *types.Watermark
	priorFloor, hasFloor, err := e.Watermarks.LastExtractionTime(ctx, tableName)
	if err != nil {
		return sinkwriter.Result{Status: sinkwriter.StatusFailed, Err: err}
	}
	if hasFloor {
		watermarkRec = &types.Watermark{TableName: tableName, LastExtractedAt: priorFloor}
	}

	strat := strategy.Select(tableName, campaign, watermarkRec, forcedStrategy)

	if updateWatermark {
		if err := e.Watermarks.Start(ctx, tableName, extractionID); err != nil {
			return sinkwriter.Result{Status: sinkwriter.StatusFailed, Err: err}
		}
	}

	sql := e.Builder.Build(table, strat, campaign, watermarkRec, forceFullRefresh)
	batches, errc := e.Warehouse.Stream(ctx, sql, table.BatchSize)

	result := e.drive(ctx, table, batches)

	// Surface a warehouse-stream error, if any, as the terminal error.
	if streamErr := <-errc; streamErr != nil && result.Err == nil {
		result.Status = sinkwriter.StatusFailed
		result.Err = streamErr
	}

	result.Duration = time.Since(start)
	metrics.ExtractRows.WithLabelValues(tableName).Add(float64(result.TotalReceived))
	metrics.ExtractDurations.WithLabelValues(tableName).Observe(result.Duration.Seconds())
	if result.Status == sinkwriter.StatusFailed {
		metrics.ExtractErrors.WithLabelValues(tableName).Inc()
	}

	if updateWatermark {
		e.finalize(ctx, table, campaign, strat, extractionID, result, priorFloor, hasFloor)
	}

	return result
}

// drive pumps batches through the transformer and the sink writer,
// preserving warehouse-reader order and splitting any page larger
// than MaxBatchSize before it reaches the writer.
func (e *Engine) drive(ctx context.Context, table types.TableConfig, batches <-chan types.RowBatch) sinkwriter.Result {
	tf := e.Transforms[table.Name]

	total := sinkwriter.Result{Status: sinkwriter.StatusSuccess}
	var aggCounters transform.Counters

	for batch := range batches {
		for _, chunk := range chunkRows(batch.Rows, e.maxBatchSize()) {
			var transformed []types.Row
			if tf != nil {
				var counters transform.Counters
				transformed, counters = tf.Transform(chunk)
				aggCounters.Processed += counters.Processed
				aggCounters.Transformed += counters.Transformed
				aggCounters.Skipped += counters.Skipped
				aggCounters.Errors += counters.Errors
			} else {
				transformed = chunk
			}

			if len(transformed) == 0 {
				continue
			}

			sinkName := sinkTableName(table)
			res := e.Sink.LoadBatch(ctx, sinkName, transformed, table.PrimaryKey, types.LoadUpsert)
			total.TotalReceived += res.TotalReceived
			total.Inserted += res.Inserted
			total.Skipped += res.Skipped

			if res.Status == sinkwriter.StatusFailed {
				log.WithFields(log.Fields{"table": table.Name, "error": res.Err}).
					Warn("batch load failed, continuing stream")
				if total.Status == sinkwriter.StatusSuccess {
					total.Status = sinkwriter.StatusPartial
				}
				if total.Err == nil {
					total.Err = res.Err
				}
			}
		}

		select {
		case <-ctx.Done():
			total.Status = sinkwriter.StatusFailed
			total.Err = ctx.Err()
			return total
		default:
		}
	}

	log.WithFields(log.Fields{
		"table":       table.Name,
		"processed":   aggCounters.Processed,
		"transformed": aggCounters.Transformed,
		"skipped":     aggCounters.Skipped,
		"errors":      aggCounters.Errors,
	}).Debug("transform counters")

	return total
}

func (e *Engine) maxBatchSize() int {
	if e.MaxBatchSize > 0 {
		return e.MaxBatchSize
	}
	return 1000
}

func chunkRows(rows []types.Row, size int) [][]types.Row {
	if len(rows) <= size {
		return [][]types.Row{rows}
	}
	var out [][]types.Row
	for len(rows) > 0 {
		n := size
		if n > len(rows) {
			n = len(rows)
		}
		out = append(out, rows[:n])
		rows = rows[n:]
	}
	return out
}

// finalize computes the watermark timestamp and persists the terminal
// status of this extraction. On anything but a successful outcome the
// floor must not advance: lastExtractedAt is carried through from
// priorFloor (or left zero if none existed) rather than set to now,
// so a failed attempt cannot make the table's watermark look fresher
// than it actually is.
func (e *Engine) finalize(
	ctx context.Context,
	table types.TableConfig,
	campaign *types.Campaign,
	strat strategy.Strategy,
	extractionID string,
	result sinkwriter.Result,
	priorFloor time.Time,
	hadPriorFloor bool,
) {
	status := types.StatusSuccess
	var errMsg *string
	if result.Status != sinkwriter.StatusSuccess {
		status = types.StatusFailed
		if result.Err != nil {
			msg := result.Err.Error()
			errMsg = &msg
		}
	}

	watermarkTime := time.Time{}
	if hadPriorFloor {
		watermarkTime = priorFloor
	}
	if status == types.StatusSuccess {
		watermarkTime = time.Now().UTC()
		if strat == strategy.Calendar && campaign != nil {
			if campaign.CloseDate != nil {
				watermarkTime = midnightUTC(*campaign.CloseDate)
			} else {
				watermarkTime = midnightUTC(campaign.OpenDate)
			}
		}
	}

	if err := e.Watermarks.Complete(
		ctx, table.Name, watermarkTime, result.Inserted, result.Duration,
		status, errMsg, extractionID, nil,
	); err != nil {
		log.WithError(err).Errorf("failed to persist watermark for %s", table.Name)
	}
}

func midnightUTC(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func sinkTableName(table types.TableConfig) string {
	return "public." + table.Name
}

type noSuchTableError struct{ table string }

func (e *noSuchTableError) Error() string { return "no such table in catalog: " + e.table }

func errNoSuchTable(table string) error { return &noSuchTableError{table: table} }

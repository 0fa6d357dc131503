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

// Package types contains the data types and interfaces shared across
// the extraction, transformation, and load stages of the engine. The
// goal of placing them here, separate from any one component, is to
// make it easy to compose functionality as the engine evolves.
package types

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Layer identifies where in the raw -> aux -> mart model a table lives.
type Layer int

// The three layers of the data model.
const (
	LayerUnknown Layer = iota
	LayerRaw
	LayerAux
	LayerMart
)

func (l Layer) String() string {
	switch l {
	case LayerRaw:
		return "raw"
	case LayerAux:
		return "aux"
	case LayerMart:
		return "mart"
	default:
		return "unknown"
	}
}

// ExtractionMode is the catalog's informational hint for which
// strategy a table is expected to use; the strategy selector decides
// the actual per-run strategy independently, so this is advisory only.
type ExtractionMode int

// The two supported extraction modes.
const (
	ModeUnknown ExtractionMode = iota
	// ModeCalendar derives the window from the owning campaign's
	// open/close dates, regardless of the watermark.
	ModeCalendar
	// ModeWatermark derives the window from the table's last
	// successful extraction, with a lookback applied to the floor.
	ModeWatermark
)

// RefreshMode governs whether a table is loaded incrementally or
// replaced wholesale on every run, independent of which Strategy
// windows the extraction.
type RefreshMode int

// The two supported refresh modes.
const (
	// ModeIncremental applies the incremental-filter predicate the
	// table's strategy computes.
	ModeIncremental RefreshMode = iota
	// ModeFullRefresh re-extracts the whole source table every run,
	// ignoring watermarks and campaign windows. It is used for small
	// dimension/homologation tables with no incremental column.
	ModeFullRefresh
)

// WatermarkStatus is the lifecycle state of a table's extraction.
type WatermarkStatus string

// The four watermark statuses.
const (
	StatusSuccess WatermarkStatus = "success"
	StatusRunning WatermarkStatus = "running"
	StatusFailed  WatermarkStatus = "failed"
	StatusReset   WatermarkStatus = "reset"
)

// Campaign is a debt-collection campaign window: a named batch of
// accounts (archivo) opened and, eventually, closed for work.
type Campaign struct {
	Archivo       string
	PortfolioType string
	Status        string
	OpenDate      time.Time
	CloseDate     *time.Time
}

// IsOpen reports whether the campaign has not yet been closed.
func (c Campaign) IsOpen() bool {
	return c.CloseDate == nil
}

// TableConfig is the catalog entry describing how a single logical
// table is extracted, transformed, and loaded.
type TableConfig struct {
	Name                  string
	Layer                 Layer
	SourceIdentifier      string // fully-qualified warehouse table/view
	PrimaryKey            []string
	IncrementalColumn     string
	DefaultMode           ExtractionMode
	Refresh               RefreshMode
	LookbackDays          int
	BatchSize             int
	RefreshFrequencyHours int
	SQLTemplate           string // contains a single {incremental_filter} placeholder
}

// Watermark is the durable extraction bookkeeping record for one
// table, as persisted in the sink's etl_watermarks table.
type Watermark struct {
	TableName         string
	LastExtractedAt   time.Time
	Status            WatermarkStatus
	RecordsExtracted  int
	DurationSeconds   float64
	ExtractionID      string
	ErrorMessage      *string
	Metadata          map[string]any
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Row is the duck-typed envelope used to move a single warehouse
// record through the transform stage before it is given table-
// specific shape by a loader.
type Row map[string]any

// RowBatch is a page of rows read from the warehouse, together with
// the offset at which the next page should resume.
type RowBatch struct {
	Rows       []Row
	NextOffset int64
	Done       bool
}

// Window is a half-open time interval [Start, End) used to bound an
// incremental extraction query.
type Window struct {
	Start time.Time
	End   time.Time
}

// Empty reports whether the window contains no instants.
func (w Window) Empty() bool {
	return !w.Start.Before(w.End)
}

// WarehouseClient is the capability contract the engine requires of a
// source data warehouse connection. Any driver able to run paginated,
// parametrized SQL and report basic job metadata can satisfy it.
type WarehouseClient interface {
	// Stream runs sql against the warehouse and delivers results in
	// pages on the returned channel. The error channel carries at most
	// one value and is closed after the row channel is closed.
	Stream(ctx context.Context, sql string, pageSize int) (<-chan RowBatch, <-chan error)

	// Test verifies connectivity and credentials without running a
	// user query.
	Test(ctx context.Context) error
}

// SinkQuerier is implemented by pgxpool.Pool, pgxpool.Conn, pgxpool.Tx,
// pgx.Conn, and pgx.Tx. It lets sink-side code accept whichever handle
// to the operational database is most convenient for the caller.
type SinkQuerier interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...interface{}) pgx.Row
}

var (
	_ SinkQuerier = (*pgxpool.Conn)(nil)
	_ SinkQuerier = (*pgxpool.Pool)(nil)
	_ SinkQuerier = (*pgxpool.Tx)(nil)
	_ SinkQuerier = (*pgx.Conn)(nil)
	_ SinkQuerier = (pgx.Tx)(nil)
)

// SinkPool is an injection point for the connection pool to the
// operational/analytical sink database.
type SinkPool struct {
	*pgxpool.Pool
	_ noCopy
}

type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// LoadMode selects how a batch of rows is applied to a sink table.
type LoadMode int

// The two supported load modes.
const (
	LoadUpsert LoadMode = iota
	LoadFullRefresh
)

// ExtractionResult summarizes the outcome of extracting and loading a
// single table within a campaign run.
type ExtractionResult struct {
	TableName        string
	ExtractionID      string
	RecordsExtracted int
	Duration         time.Duration
	Err              error
}

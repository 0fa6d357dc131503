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

// Package metrics declares the Prometheus instrumentation shared
// across the engine's components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// LatencyBuckets is used for all duration histograms in this package.
var LatencyBuckets = []float64{
	.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800,
}

// TableLabels is applied to every per-table counter and histogram.
var TableLabels = []string{"table"}

// CampaignLabels is applied to per-campaign counters.
var CampaignLabels = []string{"archivo"}

var (
	// ExtractRows counts rows pulled from the warehouse per table.
	ExtractRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "etl_extract_rows_total",
		Help: "the number of rows read from the source warehouse",
	}, TableLabels)

	// ExtractDurations times a full extraction of a single table.
	ExtractDurations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "etl_extract_duration_seconds",
		Help:    "the length of time it took to extract a table",
		Buckets: LatencyBuckets,
	}, TableLabels)

	// ExtractErrors counts failed extraction attempts per table.
	ExtractErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "etl_extract_errors_total",
		Help: "the number of times an error was encountered while extracting a table",
	}, TableLabels)

	// LoadRows counts rows applied to the sink per table.
	LoadRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "etl_load_rows_total",
		Help: "the number of rows upserted into the sink",
	}, TableLabels)

	// LoadDurations times a single batch load.
	LoadDurations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "etl_load_duration_seconds",
		Help:    "the length of time it took to load a batch into the sink",
		Buckets: LatencyBuckets,
	}, TableLabels)

	// LoadErrors counts failed batch loads per table.
	LoadErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "etl_load_errors_total",
		Help: "the number of times an error was encountered while loading a batch",
	}, TableLabels)

	// WatermarkStatus reports the last known status of a table's
	// watermark as a gauge (1 == success, 0 == anything else), so it
	// can be alerted on directly.
	WatermarkStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "etl_watermark_success",
		Help: "1 if the table's last extraction succeeded, 0 otherwise",
	}, TableLabels)

	// CampaignDurations times a full campaign run across all tables.
	CampaignDurations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "etl_campaign_duration_seconds",
		Help:    "the length of time it took to process a campaign",
		Buckets: LatencyBuckets,
	}, CampaignLabels)

	// CampaignRuns counts campaign runs by terminal status.
	CampaignRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "etl_campaign_runs_total",
		Help: "the number of campaign runs by terminal status",
	}, []string{"status"})
)

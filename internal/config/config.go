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

// Package config holds the process-wide configuration for the ETL
// engine: connection strings, concurrency limits, and the control
// surface's bind address.
package config

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

// Config contains the user-visible configuration for running the
// engine, whether as a one-shot campaign refresh or as a
// long-lived server exposing the control surface described in the
// external-interfaces section.
type Config struct {
	// WarehouseConn is a driver-specific connection string for the
	// source data warehouse.
	WarehouseConn string
	// SinkConn is a libpq-style connection string for the Postgres-
	// compatible operational/analytical sink.
	SinkConn string

	// BindAddr is the network address the control surface listens on.
	BindAddr string

	// StaleRunTimeout bounds how long a watermark may sit in the
	// "running" state before the reaper considers it abandoned.
	StaleRunTimeout time.Duration

	// CampaignConcurrency bounds how many raw tables may be extracted
	// concurrently within a single campaign.
	CampaignConcurrency int

	// ChunkConcurrency is validated by Preflight but not read by the
	// orchestrator; how many campaigns run concurrently is set by the
	// batchSize passed to RunAllPending.
	ChunkConcurrency int

	// MaxBatchSize is the hard per-batch row cap applied uniformly
	// across tables, regardless of any table-specific batch size in
	// the catalog.
	MaxBatchSize int

	// DisableAuth, when true, skips bearer-token checks on the control
	// surface. Not recommended for production use.
	DisableAuth bool
	// AuthToken is the bearer token the control surface requires when
	// DisableAuth is false.
	AuthToken string
}

// Bind registers the configuration's flags on the given flag set.
func (c *Config) Bind(flags *pflag.FlagSet) {
	flags.StringVar(&c.WarehouseConn, "warehouseConn", "",
		"connection string for the source data warehouse")
	flags.StringVar(&c.SinkConn, "sinkConn", "",
		"connection string for the Postgres-compatible sink")
	flags.StringVar(&c.BindAddr, "bindAddr", ":8080",
		"the network address the control surface binds to")
	flags.DurationVar(&c.StaleRunTimeout, "staleRunTimeout", 30*time.Minute,
		"how long a watermark may remain in the running state before it is reaped")
	flags.IntVar(&c.CampaignConcurrency, "campaignConcurrency", 3,
		"maximum number of raw tables extracted concurrently within a campaign")
	flags.IntVar(&c.ChunkConcurrency, "chunkConcurrency", 4,
		"validated at startup but not read by the orchestrator; campaigns per chunk come from the run command's batchSize")
	flags.IntVar(&c.MaxBatchSize, "maxBatchSize", 1000,
		"hard upper bound on the number of rows written to the sink in a single batch")
	flags.BoolVar(&c.DisableAuth, "disableAuthentication", false,
		"disable bearer-token authentication on the control surface; not recommended for production")
	flags.StringVar(&c.AuthToken, "authToken", "",
		"bearer token required by the control surface when authentication is enabled")
}

// Preflight validates the configuration once flags have been parsed.
func (c *Config) Preflight() error {
	if c.WarehouseConn == "" {
		return errors.New("warehouseConn unset")
	}
	if c.SinkConn == "" {
		return errors.New("sinkConn unset")
	}
	if c.BindAddr == "" {
		return errors.New("bindAddr unset")
	}
	if c.StaleRunTimeout <= 0 {
		return errors.New("staleRunTimeout must be positive")
	}
	if c.CampaignConcurrency <= 0 {
		return errors.New("campaignConcurrency must be positive")
	}
	if c.ChunkConcurrency <= 0 {
		return errors.New("chunkConcurrency must be positive")
	}
	if c.MaxBatchSize <= 0 {
		return errors.New("maxBatchSize must be positive")
	}
	if !c.DisableAuth && c.AuthToken == "" {
		return errors.New("authToken must be set unless disableAuthentication is true")
	}
	return nil
}

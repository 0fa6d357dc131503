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

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		WarehouseConn:       "warehouse://dsn",
		SinkConn:            "postgres://dsn",
		BindAddr:            ":8080",
		StaleRunTimeout:     30 * time.Minute,
		CampaignConcurrency: 3,
		ChunkConcurrency:    4,
		MaxBatchSize:        1000,
		DisableAuth:         true,
	}
}

func TestPreflightAcceptsValidConfig(t *testing.T) {
	c := validConfig()
	require.NoError(t, c.Preflight())
}

func TestPreflightRejectsMissingWarehouseConn(t *testing.T) {
	c := validConfig()
	c.WarehouseConn = ""
	require.Error(t, c.Preflight())
}

func TestPreflightRejectsMissingSinkConn(t *testing.T) {
	c := validConfig()
	c.SinkConn = ""
	require.Error(t, c.Preflight())
}

func TestPreflightRejectsMissingBindAddr(t *testing.T) {
	c := validConfig()
	c.BindAddr = ""
	require.Error(t, c.Preflight())
}

func TestPreflightRejectsNonPositiveDurationsAndCounts(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"stale run timeout", func(c *Config) { c.StaleRunTimeout = 0 }},
		{"campaign concurrency", func(c *Config) { c.CampaignConcurrency = 0 }},
		{"chunk concurrency", func(c *Config) { c.ChunkConcurrency = -1 }},
		{"max batch size", func(c *Config) { c.MaxBatchSize = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(&c)
			require.Error(t, c.Preflight())
		})
	}
}

func TestPreflightRequiresAuthTokenUnlessDisabled(t *testing.T) {
	c := validConfig()
	c.DisableAuth = false
	c.AuthToken = ""
	require.Error(t, c.Preflight())

	c.AuthToken = "secret"
	require.NoError(t, c.Preflight())
}

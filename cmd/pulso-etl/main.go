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

// Command pulso-etl drives the incremental ETL engine: a one-off
// refresh of a single table, a campaign catch-up run, reaping of
// stale watermarks, or a long-lived process exposing the control
// surface over HTTP.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/reyer3/pulso-etl/internal/config"
	"github.com/reyer3/pulso-etl/internal/httpapi"
	"github.com/reyer3/pulso-etl/internal/wire"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.WithError(err).Fatal("pulso-etl exited with an error")
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config.Config{}

	root := &cobra.Command{
		Use:           "pulso-etl",
		Short:         "Incremental ETL engine for the debt-collection-campaign data model",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cfg.Bind(root.PersistentFlags())

	root.AddCommand(
		newServeCmd(cfg),
		newRunCmd(cfg),
		newRefreshTableCmd(cfg),
		newReapStaleCmd(cfg),
	)
	return root
}

// newServeCmd starts the long-lived control surface.
func newServeCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP control surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Preflight(); err != nil {
				return errors.Wrap(err, "invalid configuration")
			}
			ctx, cancel := signalContext()
			defer cancel()

			app, cleanup, err := wire.InitializeEngine(ctx, cfg)
			if err != nil {
				return errors.Wrap(err, "wire engine")
			}
			defer cleanup()

			server := &httpapi.Server{
				Orchestrator: app.Orchestrator,
				Engine:       app.Engine,
				Watermarks:   app.Watermarks,
				AuthToken:    cfg.AuthToken,
				DisableAuth:  cfg.DisableAuth,
			}

			httpServer := &http.Server{Addr: cfg.BindAddr, Handler: server.Routes()}
			errCh := make(chan error, 1)
			go func() { errCh <- httpServer.ListenAndServe() }()

			log.WithField("bindAddr", cfg.BindAddr).Info("control surface listening")
			select {
			case <-ctx.Done():
				return httpServer.Shutdown(context.Background())
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return errors.Wrap(err, "serve control surface")
			}
		},
	}
}

// newRunCmd runs a single campaign catch-up pass and exits.
func newRunCmd(cfg *config.Config) *cobra.Command {
	var batchSize, maxCampaigns int
	var forceAll bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one campaign catch-up pass across all pending campaigns",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Preflight(); err != nil {
				return errors.Wrap(err, "invalid configuration")
			}
			ctx, cancel := signalContext()
			defer cancel()

			app, cleanup, err := wire.InitializeEngine(ctx, cfg)
			if err != nil {
				return errors.Wrap(err, "wire engine")
			}
			defer cleanup()

			summary := app.Orchestrator.RunAllPending(ctx, batchSize, maxCampaigns, forceAll)
			log.WithFields(log.Fields{
				"status":     summary.Status,
				"found":      summary.TotalFound,
				"eligible":   summary.Eligible,
				"processed":  summary.Processed,
				"successful": summary.Successful,
				"partial":    summary.Partial,
				"failed":     summary.Failed,
			}).Info("catch-up run complete")
			if summary.Status == "failed" {
				return errors.New("catch-up run failed")
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&batchSize, "batchSize", 4, "number of campaigns processed concurrently per chunk")
	cmd.Flags().IntVar(&maxCampaigns, "maxCampaigns", 0, "cap on the number of eligible campaigns processed, 0 for unbounded")
	cmd.Flags().BoolVar(&forceAll, "forceAll", false, "bypass the per-campaign watermark eligibility filter")
	return cmd
}

// newRefreshTableCmd runs a single raw/aux table extraction and exits.
func newRefreshTableCmd(cfg *config.Config) *cobra.Command {
	var table string
	var force bool

	cmd := &cobra.Command{
		Use:   "refresh-table",
		Short: "Run a single table extraction outside of a campaign run",
		RunE: func(cmd *cobra.Command, args []string) error {
			if table == "" {
				return errors.New("--table is required")
			}
			if err := cfg.Preflight(); err != nil {
				return errors.Wrap(err, "invalid configuration")
			}
			ctx, cancel := signalContext()
			defer cancel()

			app, cleanup, err := wire.InitializeEngine(ctx, cfg)
			if err != nil {
				return errors.Wrap(err, "wire engine")
			}
			defer cleanup()

			result := app.Engine.Run(ctx, table, nil, force, nil, true)
			log.WithFields(log.Fields{
				"table":  table,
				"status": result.Status,
			}).Info("table refresh complete")
			if result.Err != nil {
				return result.Err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&table, "table", "", "catalog table name to refresh")
	cmd.Flags().BoolVar(&force, "force", false, "force a full refresh, ignoring the table's current strategy and watermark")
	return cmd
}

// newReapStaleCmd flips watermarks stuck in the running state back to
// failed, using the stale-run handling rules.
func newReapStaleCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reap-stale",
		Short: "Reap watermarks stuck in the running state past the stale-run timeout",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Preflight(); err != nil {
				return errors.Wrap(err, "invalid configuration")
			}
			ctx, cancel := signalContext()
			defer cancel()

			app, cleanup, err := wire.InitializeEngine(ctx, cfg)
			if err != nil {
				return errors.Wrap(err, "wire engine")
			}
			defer cleanup()

			reaped, err := app.Watermarks.ReapStale(ctx, cfg.StaleRunTimeout)
			if err != nil {
				return errors.Wrap(err, "reap stale watermarks")
			}
			log.WithField("reaped", reaped).Info("stale-run reap complete")
			return nil
		},
	}
	return cmd
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

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

// Package orchestrator implements the campaign-driven top level of the
// engine: deciding which campaigns need (re-)processing, running them
// in bounded-concurrency chunks, and aggregating the results.
package orchestrator

import (
	"context"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/reyer3/pulso-etl/internal/types"
	"github.com/reyer3/pulso-etl/internal/util/stopper"
)

// RunStatus is the top-level outcome of one call to RunAllPending.
type RunStatus string

// The orchestrator's terminal run statuses.
const (
	RunSuccess        RunStatus = "success"
	RunPartial        RunStatus = "partial"
	RunFailed         RunStatus = "failed"
	RunAlreadyRunning RunStatus = "already_running"
	RunCancelled      RunStatus = "cancelled"
)

// Summary aggregates one orchestrator run.
type Summary struct {
	Status              RunStatus
	TotalFound          int
	Eligible            int
	Processed           int
	Successful          int
	Partial             int
	Failed              int
	RawRecords          int
	FailedCampaigns     []CampaignLoadResult
	Duration            time.Duration
	Cancelled           bool
}

// Orchestrator enumerates and drives campaigns through a
// CampaignPipeline, honoring the at-most-one-running guard and
// cooperative cancellation.
type Orchestrator struct {
	Source   CampaignSource
	Pipeline *CampaignPipeline

	running atomic.Bool
	// stop holds the stopper.Context for the in-flight RunAllPending
	// call, if any, so that Cancel can reach it. It is threaded through
	// runChunk down to the per-table checkpoint in runRawTables, so a
	// Cancel call takes effect before the next raw table starts
	// loading, not just between chunks.
	stop atomic.Pointer[stopper.Context]
}

// RunAllPending implements runAllPendingCampaigns. A second concurrent
// call, while one is already in flight, returns immediately with
// RunAlreadyRunning rather than starting a second traversal.
func (o *Orchestrator) RunAllPending(ctx context.Context, batchSize int, maxCampaigns int, forceAll bool) Summary {
	start := time.Now()

	if !o.running.CompareAndSwap(false, true) {
		return Summary{Status: RunAlreadyRunning}
	}
	defer o.running.Store(false)

	stop := stopper.WithContext(ctx)
	o.stop.Store(stop)
	defer o.stop.Store(nil)

	if batchSize <= 0 {
		batchSize = 1
	}

	campaigns, err := o.Source.ListCampaigns(ctx)
	if err != nil {
		return Summary{Status: RunFailed, Duration: time.Since(start)}
	}
	if maxCampaigns > 0 && len(campaigns) > maxCampaigns {
		campaigns = campaigns[:maxCampaigns]
	}

	var eligibleCampaigns []types.Campaign
	for _, c := range campaigns {
		if eligible(ctx, o.Pipeline.Watermarks, c, forceAll) {
			eligibleCampaigns = append(eligibleCampaigns, c)
		}
	}

	summary := Summary{
		Status:     RunSuccess,
		TotalFound: len(campaigns),
		Eligible:   len(eligibleCampaigns),
	}

	for _, chunk := range chunkCampaigns(eligibleCampaigns, batchSize) {
		select {
		case <-stop.Stopping():
			summary.Cancelled = true
		default:
		}
		if summary.Cancelled {
			break
		}

		for _, result := range o.runChunk(stop, chunk) {
			summary.Processed++
			summary.RawRecords += result.RawRecords
			switch result.Status {
			case CampaignSuccess:
				summary.Successful++
			case CampaignPartial:
				summary.Partial++
				summary.FailedCampaigns = append(summary.FailedCampaigns, result)
			default:
				summary.Failed++
				summary.FailedCampaigns = append(summary.FailedCampaigns, result)
			}
		}
	}

	summary.Duration = time.Since(start)
	summary.Status = overallStatus(summary)
	log.WithFields(log.Fields{
		"found":     summary.TotalFound,
		"eligible":  summary.Eligible,
		"processed": summary.Processed,
		"status":    summary.Status,
	}).Info("campaign catch-up run finished")

	return summary
}

// Cancel requests that any in-flight RunAllPending stop. It is
// checked between chunks and, inside each running campaign, before
// every raw-table load starts — so already-loading tables finish, but
// no new chunk or raw table begins once Cancel has been called.
func (o *Orchestrator) Cancel() {
	if stop := o.stop.Load(); stop != nil {
		stop.Stop(0)
	}
}

// runChunk runs the pipeline for every campaign in chunk concurrently
// and waits for all of them; a panicking or erroring campaign task is
// turned into a failed CampaignLoadResult rather than unwinding the
// orchestrator.
func (o *Orchestrator) runChunk(ctx *stopper.Context, chunk []types.Campaign) []CampaignLoadResult {
	results := make([]CampaignLoadResult, len(chunk))
	done := make(chan struct{}, len(chunk))

	for i, c := range chunk {
		i, c := i, c
		go func() {
			defer func() {
				if r := recover(); r != nil {
					results[i] = CampaignLoadResult{
						Archivo: c.Archivo,
						Status:  CampaignFailed,
						Err:     panicError{r},
					}
				}
				done <- struct{}{}
			}()
			results[i] = o.Pipeline.Run(ctx, c)
		}()
	}

	for range chunk {
		<-done
	}
	return results
}

func chunkCampaigns(campaigns []types.Campaign, size int) [][]types.Campaign {
	var out [][]types.Campaign
	for len(campaigns) > 0 {
		n := size
		if n > len(campaigns) {
			n = len(campaigns)
		}
		out = append(out, campaigns[:n])
		campaigns = campaigns[n:]
	}
	return out
}

func overallStatus(s Summary) RunStatus {
	if s.Cancelled {
		return RunCancelled
	}
	if s.Failed > 0 && s.Successful == 0 && s.Partial == 0 {
		return RunFailed
	}
	if s.Failed > 0 || s.Partial > 0 {
		return RunPartial
	}
	return RunSuccess
}

type panicError struct{ value any }

func (p panicError) Error() string {
	return "campaign pipeline panicked"
}

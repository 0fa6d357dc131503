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

package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	log "github.com/sirupsen/logrus"

	"github.com/reyer3/pulso-etl/internal/mart"
	"github.com/reyer3/pulso-etl/internal/sinkwriter"
	"github.com/reyer3/pulso-etl/internal/strategy"
	"github.com/reyer3/pulso-etl/internal/types"
	"github.com/reyer3/pulso-etl/internal/util/stopper"
	"github.com/reyer3/pulso-etl/internal/watermark"
)

// errCancelled is reported on raw tables that were skipped because a
// Cancel request arrived before their load started.
var errCancelled = errors.New("campaign run cancelled")

// EngineRunner is the capability CampaignPipeline needs from a table
// extraction engine. *etlengine.Engine satisfies it directly; tests
// substitute a fake to exercise fan-out and cancellation without a
// live warehouse or sink.
type EngineRunner interface {
	Run(
		ctx context.Context,
		tableName string,
		campaign *types.Campaign,
		forceFullRefresh bool,
		forcedStrategy *strategy.Strategy,
		updateWatermark bool,
	) sinkwriter.Result
}

// CampaignStatus is the terminal state of one campaign's pipeline run.
type CampaignStatus string

// The campaign pipeline's terminal statuses.
const (
	CampaignSuccess   CampaignStatus = "success"
	CampaignPartial   CampaignStatus = "partial"
	CampaignFailed    CampaignStatus = "failed"
	CampaignCancelled CampaignStatus = "cancelled"
)

// MartStatus reports how the campaign's mart build fared.
type MartStatus string

// The mart-build outcomes.
const (
	MartSuccess            MartStatus = "success"
	MartFailed             MartStatus = "failed"
	MartSkippedRawErrors   MartStatus = "skipped_due_to_raw_errors"
)

// CampaignLoadResult is the outcome of running the pipeline for one
// campaign.
type CampaignLoadResult struct {
	Archivo      string
	Status       CampaignStatus
	MartStatus   MartStatus
	RawResults   map[string]sinkwriter.Result
	RawRecords   int
	Duration     time.Duration
	Err          error
}

// CampaignPipeline runs the raw-table extractions and mart build for
// a single campaign (C10).
type CampaignPipeline struct {
	Engine      EngineRunner
	Watermarks  *watermark.Store
	MartBuilder mart.Builder
	RawTables   []string
	Concurrency int
}

// Run drives one campaign through its raw tables and the mart build.
func (p *CampaignPipeline) Run(ctx *stopper.Context, campaign types.Campaign) CampaignLoadResult {
	start := time.Now()
	extractionID := fmt.Sprintf("e2e_run_%d", start.UnixNano())

	campaignKey := campaignWatermarkKey(campaign.Archivo)
	if err := p.Watermarks.Start(ctx, campaignKey, extractionID); err != nil {
		return CampaignLoadResult{Archivo: campaign.Archivo, Status: CampaignFailed, Err: err, Duration: time.Since(start)}
	}

	results := p.runRawTables(ctx, campaign)

	rawOk := true
	rawRecords := 0
	var firstErr error
	for _, r := range results {
		rawRecords += r.Inserted
		if r.Status == sinkwriter.StatusFailed {
			rawOk = false
			if firstErr == nil {
				firstErr = r.Err
			}
		}
	}

	cancelled := ctx.Err() != nil
	select {
	case <-ctx.Stopping():
		cancelled = true
	default:
	}

	var martStatus MartStatus
	if rawOk && p.MartBuilder != nil {
		if err := p.MartBuilder.Build(ctx, campaign); err != nil {
			martStatus = MartFailed
			if firstErr == nil {
				firstErr = err
			}
		} else {
			martStatus = MartSuccess
		}
	} else {
		martStatus = MartSkippedRawErrors
	}

	status := p.finalStatus(cancelled, rawOk, results, martStatus)

	var errMsg *string
	if firstErr != nil {
		msg := firstErr.Error()
		errMsg = &msg
	}

	wmStatus := types.StatusSuccess
	if status != CampaignSuccess {
		wmStatus = types.StatusFailed
	}
	if err := p.Watermarks.Complete(
		ctx, campaignKey, time.Now().UTC(), rawRecords, time.Since(start),
		wmStatus, errMsg, extractionID, map[string]any{"martStatus": string(martStatus)},
	); err != nil {
		log.WithError(err).Errorf("failed to persist campaign watermark for %s", campaign.Archivo)
	}

	return CampaignLoadResult{
		Archivo:    campaign.Archivo,
		Status:     status,
		MartStatus: martStatus,
		RawResults: results,
		RawRecords: rawRecords,
		Duration:   time.Since(start),
		Err:        firstErr,
	}
}

// runRawTables loads every configured raw table concurrently, capped
// at p.Concurrency in-flight at a time, and checks for cancellation —
// both the parent context's hard Done() and an operator-requested
// Cancel's softer Stopping() — before starting each one.
func (p *CampaignPipeline) runRawTables(ctx *stopper.Context, campaign types.Campaign) map[string]sinkwriter.Result {
	n := p.Concurrency
	if n <= 0 {
		n = 3
	}
	sem := semaphore.NewWeighted(int64(n))

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]sinkwriter.Result, len(p.RawTables))
	)

	for _, table := range p.RawTables {
		table := table

		select {
		case <-ctx.Done():
			mu.Lock()
			results[table] = sinkwriter.Result{Status: sinkwriter.StatusFailed, Err: ctx.Err()}
			mu.Unlock()
			continue
		case <-ctx.Stopping():
			mu.Lock()
			results[table] = sinkwriter.Result{Status: sinkwriter.StatusFailed, Err: errCancelled}
			mu.Unlock()
			continue
		default:
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			results[table] = sinkwriter.Result{Status: sinkwriter.StatusFailed, Err: err}
			mu.Unlock()
			continue
		}

		// A cancellation may have landed while this table waited for a
		// slot; the parent's hard cancellation takes precedence.
		startErr := ctx.Err()
		if startErr == nil {
			select {
			case <-ctx.Stopping():
				startErr = errCancelled
			default:
			}
		}
		if startErr != nil {
			sem.Release(1)
			mu.Lock()
			results[table] = sinkwriter.Result{Status: sinkwriter.StatusFailed, Err: startErr}
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			res := p.Engine.Run(ctx, table, &campaign, false, nil, true)

			mu.Lock()
			results[table] = res
			mu.Unlock()
		}()
	}

	wg.Wait()
	return results
}

func (p *CampaignPipeline) finalStatus(
	cancelled, rawOk bool, results map[string]sinkwriter.Result, martStatus MartStatus,
) CampaignStatus {
	if cancelled {
		return CampaignCancelled
	}
	if rawOk && martStatus != MartFailed {
		return CampaignSuccess
	}

	anySucceeded := false
	for _, r := range results {
		if r.Status != sinkwriter.StatusFailed {
			anySucceeded = true
			break
		}
	}
	if anySucceeded {
		return CampaignPartial
	}
	return CampaignFailed
}

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
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/reyer3/pulso-etl/internal/types"
	"github.com/reyer3/pulso-etl/internal/watermark"
)

var errBoom = errors.New("boom")

// fakeSinkQuerier satisfies types.SinkQuerier with no-op writes, just
// enough to let a watermark.Store back a CampaignPipeline in tests
// without a live sink database.
type fakeSinkQuerier struct{}

func (fakeSinkQuerier) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (fakeSinkQuerier) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	panic("fakeSinkQuerier: Query not supported")
}

func (fakeSinkQuerier) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	panic("fakeSinkQuerier: QueryRow not supported")
}

type fakeCampaignSource struct {
	campaigns []types.Campaign
	err       error
}

func (f *fakeCampaignSource) ListCampaigns(ctx context.Context) ([]types.Campaign, error) {
	return f.campaigns, f.err
}

func TestRunAllPendingRejectsConcurrentCall(t *testing.T) {
	o := &Orchestrator{Source: &fakeCampaignSource{}, Pipeline: &CampaignPipeline{}}
	o.running.Store(true)

	summary := o.RunAllPending(context.Background(), 4, 0, false)
	require.Equal(t, RunAlreadyRunning, summary.Status)
}

func TestRunAllPendingNoEligibleCampaignsSucceedsTrivially(t *testing.T) {
	o := &Orchestrator{Source: &fakeCampaignSource{}, Pipeline: &CampaignPipeline{}}

	summary := o.RunAllPending(context.Background(), 4, 0, false)
	require.Equal(t, RunSuccess, summary.Status)
	require.Equal(t, 0, summary.TotalFound)
	require.Equal(t, 0, summary.Eligible)
	require.False(t, o.running.Load(), "guard must be released after the run")
}

func TestRunAllPendingSourceErrorFails(t *testing.T) {
	o := &Orchestrator{
		Source:   &fakeCampaignSource{err: errBoom},
		Pipeline: &CampaignPipeline{},
	}

	summary := o.RunAllPending(context.Background(), 4, 0, false)
	require.Equal(t, RunFailed, summary.Status)
	require.False(t, o.running.Load(), "guard must be released even on error")
}

func TestChunkCampaigns(t *testing.T) {
	campaigns := make([]types.Campaign, 5)
	for i := range campaigns {
		campaigns[i].Archivo = string(rune('A' + i))
	}

	chunks := chunkCampaigns(campaigns, 2)
	require.Len(t, chunks, 3)
	require.Len(t, chunks[0], 2)
	require.Len(t, chunks[1], 2)
	require.Len(t, chunks[2], 1)
}

func TestOverallStatus(t *testing.T) {
	tests := []struct {
		name string
		s    Summary
		want RunStatus
	}{
		{"cancelled wins", Summary{Cancelled: true, Failed: 1}, RunCancelled},
		{"all failed", Summary{Failed: 3}, RunFailed},
		{"mixed is partial", Summary{Successful: 1, Failed: 1}, RunPartial},
		{"some partial", Summary{Successful: 1, Partial: 1}, RunPartial},
		{"all successful", Summary{Successful: 3}, RunSuccess},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, overallStatus(tt.s))
		})
	}
}

func TestPanicErrorMessage(t *testing.T) {
	err := panicError{value: "boom"}
	require.Equal(t, "campaign pipeline panicked", err.Error())
}

// TestRunAllPendingCancelAfterFirstBatchSkipsRemainingChunks reproduces
// an operator calling Cancel mid-run: the campaign already in flight
// when Cancel lands still finishes, but the next chunk never starts.
func TestRunAllPendingCancelAfterFirstBatchSkipsRemainingChunks(t *testing.T) {
	watermarks := watermark.New(fakeSinkQuerier{})
	engine := &fakeEngineRunner{}

	var o *Orchestrator
	engine.onRun = func(table string) {
		o.Cancel()
	}

	o = &Orchestrator{
		Source: &fakeCampaignSource{campaigns: []types.Campaign{
			{Archivo: "A"}, {Archivo: "B"},
		}},
		Pipeline: &CampaignPipeline{
			Engine:     engine,
			Watermarks: watermarks,
			RawTables:  []string{"t1"},
		},
	}

	summary := o.RunAllPending(context.Background(), 1, 0, true)

	require.Equal(t, RunCancelled, summary.Status)
	require.True(t, summary.Cancelled)
	require.Equal(t, 1, summary.Processed, "the second chunk must not start once Cancel landed")
	require.Equal(t, []string{"t1"}, engine.calledTables())
	require.False(t, o.running.Load(), "guard must be released after a cancelled run")
}

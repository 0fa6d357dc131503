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

	"github.com/pkg/errors"

	"github.com/reyer3/pulso-etl/internal/types"
	"github.com/reyer3/pulso-etl/internal/watermark"
)

// CampaignSource loads the set of campaigns the orchestrator may need
// to (re-)process. The calendar table that backs it lives in
// the sink and is owned externally; the core only reads from it.
type CampaignSource interface {
	// ListCampaigns returns every known campaign, ordered by open date.
	ListCampaigns(ctx context.Context) ([]types.Campaign, error)
}

const listCampaignsTemplate = `
SELECT archivo, portfolio_type, status, open_date, close_date
FROM public.etl_campaign_calendar
ORDER BY open_date
`

// SinkCampaignSource reads the calendar table directly from the sink
// via the same connection pool used for watermarks and loads.
type SinkCampaignSource struct {
	pool *types.SinkPool
}

// NewSinkCampaignSource wraps a sink pool as a CampaignSource.
func NewSinkCampaignSource(pool *types.SinkPool) *SinkCampaignSource {
	return &SinkCampaignSource{pool: pool}
}

var _ CampaignSource = (*SinkCampaignSource)(nil)

// ListCampaigns implements CampaignSource.
func (s *SinkCampaignSource) ListCampaigns(ctx context.Context) ([]types.Campaign, error) {
	rows, err := s.pool.Query(ctx, listCampaignsTemplate)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	var out []types.Campaign
	for rows.Next() {
		var c types.Campaign
		if err := rows.Scan(&c.Archivo, &c.PortfolioType, &c.Status, &c.OpenDate, &c.CloseDate); err != nil {
			return nil, errors.WithStack(err)
		}
		out = append(out, c)
	}
	return out, errors.WithStack(rows.Err())
}

// eligible implements the eligibility filter: a campaign is worth
// (re-)processing if the caller forced it, there is no campaign-level
// watermark yet, the last run did not succeed, or the campaign is
// still open.
func eligible(ctx context.Context, wms *watermark.Store, c types.Campaign, forceAll bool) bool {
	if forceAll || c.IsOpen() {
		return true
	}
	wm, found, err := wms.Get(ctx, campaignWatermarkKey(c.Archivo))
	if err != nil || !found {
		return true
	}
	return wm.Status != types.StatusSuccess
}

func campaignWatermarkKey(archivo string) string {
	return "campaign:" + archivo
}

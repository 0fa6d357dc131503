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

// Package strategy decides, for a single (table, campaign) pair,
// whether the next extraction should be bounded by the campaign's
// calendar window or by the table's watermark.
package strategy

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/reyer3/pulso-etl/internal/types"
)

// Strategy is the decision produced by Select.
type Strategy int

// The two extraction strategies.
const (
	Calendar Strategy = iota
	Watermark
)

func (s Strategy) String() string {
	if s == Watermark {
		return "watermark"
	}
	return "calendar"
}

// oldCampaignAge is the age beyond which a campaign is
// considered cheap enough to serve from the watermark alone.
const oldCampaignAge = 90 * 24 * time.Hour

// Select implements the extraction-strategy decision table. forced, when non-nil,
// short-circuits the decision; it exists so that operators can pin a
// table refresh to a specific strategy.
func Select(tableName string, campaign *types.Campaign, watermark *types.Watermark, forced *Strategy) Strategy {
	if forced != nil {
		log.WithFields(log.Fields{
			"table":    tableName,
			"strategy": forced.String(),
			"reason":   "forced",
		}).Debug("strategy selected")
		return *forced
	}

	strat, reason := decide(campaign, watermark)
	log.WithFields(log.Fields{
		"table":    tableName,
		"strategy": strat.String(),
		"reason":   reason,
	}).Debug("strategy selected")
	return strat
}

func decide(campaign *types.Campaign, watermark *types.Watermark) (Strategy, string) {
	switch {
	case campaign != nil && watermark == nil:
		return Calendar, "campaign present, no watermark"

	case campaign != nil && watermark != nil && campaign.OpenDate.Before(watermark.LastExtractedAt):
		return Watermark, "watermark newer than campaign open date"

	case campaign != nil && time.Since(campaign.OpenDate) > oldCampaignAge:
		return Watermark, "campaign older than 90 days"

	case campaign != nil:
		return Calendar, "campaign present"

	case watermark != nil:
		return Watermark, "no campaign, watermark present"

	default:
		return Calendar, "bootstrap: no campaign, no watermark"
	}
}

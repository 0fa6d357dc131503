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

// Package mart defines the boundary between the core pipeline and the
// mart-build step. The mart builder is treated as an external
// collaborator with a single entry point; its internal aggregation
// algorithms live outside this engine.
package mart

import (
	"context"

	"github.com/reyer3/pulso-etl/internal/types"
)

// Builder is satisfied by whatever system materializes the mart
// layer for a campaign once its raw tables have loaded successfully.
type Builder interface {
	Build(ctx context.Context, campaign types.Campaign) error
}

// NoopBuilder is a Builder that does nothing. It lets the orchestrator
// and its tests run without a real mart-build dependency wired in.
type NoopBuilder struct{}

// Build implements Builder.
func (NoopBuilder) Build(context.Context, types.Campaign) error { return nil }

var _ Builder = NoopBuilder{}

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

//go:build wireinject

// Package wire assembles the engine's components into the two
// top-level objects the cmd/pulso-etl binary needs: an etlengine.Engine
// for one-off table refreshes and an orchestrator.Orchestrator for
// campaign catch-up runs.
package wire

import (
	"context"

	"github.com/google/wire"

	"github.com/reyer3/pulso-etl/internal/config"
)

// Set is consumed by `go run github.com/google/wire/cmd/wire` to
// regenerate wire_gen.go; it is not part of the build.
var Set = wire.NewSet(
	ProvideWarehousePool,
	ProvideSinkPool,
	ProvideCatalog,
	ProvideQueryBuilder,
	ProvideTransforms,
	ProvideWarehouseReader,
	ProvideSinkWriter,
	ProvideWatermarkStore,
	ProvideMartBuilder,
	ProvideEngine,
	ProvideCampaignSource,
	ProvidePipeline,
	ProvideOrchestrator,
	wire.Struct(new(App), "*"),
)

// InitializeEngine wires up everything needed to run a single table
// refresh or a full campaign catch-up.
func InitializeEngine(ctx context.Context, cfg *config.Config) (*App, func(), error) {
	panic(wire.Build(Set))
}

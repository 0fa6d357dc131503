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

package wire

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq" // warehouse driver registration; any database/sql driver works here
	"github.com/pkg/errors"

	"github.com/reyer3/pulso-etl/internal/catalog"
	"github.com/reyer3/pulso-etl/internal/config"
	"github.com/reyer3/pulso-etl/internal/etlengine"
	"github.com/reyer3/pulso-etl/internal/mart"
	"github.com/reyer3/pulso-etl/internal/orchestrator"
	"github.com/reyer3/pulso-etl/internal/querybuilder"
	"github.com/reyer3/pulso-etl/internal/sinkwriter"
	"github.com/reyer3/pulso-etl/internal/transform"
	"github.com/reyer3/pulso-etl/internal/types"
	"github.com/reyer3/pulso-etl/internal/warehouse"
	"github.com/reyer3/pulso-etl/internal/watermark"
)

// App bundles the two entry points cmd/pulso-etl drives.
type App struct {
	Engine       *etlengine.Engine
	Orchestrator *orchestrator.Orchestrator
	Watermarks   *watermark.Store
}

// ProvideWarehousePool opens the source warehouse connection.
func ProvideWarehousePool(cfg *config.Config) (*sql.DB, func(), error) {
	db, err := sql.Open("postgres", cfg.WarehouseConn)
	if err != nil {
		return nil, nil, errors.Wrap(err, "open warehouse connection")
	}
	db.SetConnMaxLifetime(5 * time.Minute)
	return db, func() { _ = db.Close() }, nil
}

// ProvideSinkPool opens the operational/analytical sink pool.
func ProvideSinkPool(ctx context.Context, cfg *config.Config) (*types.SinkPool, func(), error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.SinkConn)
	if err != nil {
		return nil, nil, errors.Wrap(err, "parse sink connection string")
	}
	poolCfg.MinConns = 2
	poolCfg.MaxConns = 10
	poolCfg.MaxConnLifetime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, errors.Wrap(err, "open sink connection pool")
	}
	ret := &types.SinkPool{Pool: pool}
	return ret, pool.Close, nil
}

// ProvideCatalog returns the production table catalog.
func ProvideCatalog() *catalog.Catalog { return catalog.Default() }

// ProvideQueryBuilder returns the query builder. Project/dataset
// identifiers are not part of Config today because the warehouse
// connection string already scopes them; templates that need
// {project_id}/{dataset_id} substitution can supply them via a
// dedicated Config field when such a table is added to the catalog.
func ProvideQueryBuilder() *querybuilder.Builder { return querybuilder.New("", "") }

// ProvideTransforms returns the per-table transformers, keyed by
// table name, used by the streaming ETL engine.
func ProvideTransforms(cat *catalog.Catalog) map[string]*transform.Table {
	return transform.DefaultTables()
}

// ProvideWarehouseReader wraps the warehouse pool with retry and
// pagination behavior.
func ProvideWarehouseReader(db *sql.DB) types.WarehouseClient {
	return warehouse.New(db, warehouse.DefaultLimits)
}

// ProvideSinkWriter wraps the sink pool as a batch loader.
func ProvideSinkWriter(pool *types.SinkPool) *sinkwriter.Writer {
	return sinkwriter.New(pool)
}

// ProvideWatermarkStore wraps the sink pool as the watermark store and
// ensures its schema exists before anything else touches it.
func ProvideWatermarkStore(ctx context.Context, pool *types.SinkPool) (*watermark.Store, error) {
	store := watermark.New(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// ProvideMartBuilder returns the mart-build collaborator. Production
// deployments are expected to override this provider with a real
// implementation; absent one, the engine still loads raw/aux tables
// and simply skips the mart step.
func ProvideMartBuilder() mart.Builder { return mart.NoopBuilder{} }

// ProvideEngine assembles the streaming ETL engine (C7).
func ProvideEngine(
	cat *catalog.Catalog,
	qb *querybuilder.Builder,
	reader types.WarehouseClient,
	writer *sinkwriter.Writer,
	watermarks *watermark.Store,
	transforms map[string]*transform.Table,
	cfg *config.Config,
) *etlengine.Engine {
	return &etlengine.Engine{
		Catalog:      cat,
		Builder:      qb,
		Warehouse:    reader,
		Sink:         writer,
		Watermarks:   watermarks,
		Transforms:   transforms,
		MaxBatchSize: cfg.MaxBatchSize,
	}
}

// ProvideCampaignSource wraps the sink pool as the campaign calendar
// reader used by the orchestrator.
func ProvideCampaignSource(pool *types.SinkPool) orchestrator.CampaignSource {
	return orchestrator.NewSinkCampaignSource(pool)
}

// ProvidePipeline assembles the per-campaign pipeline (C10).
func ProvidePipeline(
	engine *etlengine.Engine, watermarks *watermark.Store, builder mart.Builder,
	cat *catalog.Catalog, cfg *config.Config,
) *orchestrator.CampaignPipeline {
	var rawTables []string
	for _, t := range cat.Tables(types.LayerRaw) {
		rawTables = append(rawTables, t.Name)
	}
	return &orchestrator.CampaignPipeline{
		Engine:      engine,
		Watermarks:  watermarks,
		MartBuilder: builder,
		RawTables:   rawTables,
		Concurrency: cfg.CampaignConcurrency,
	}
}

// ProvideOrchestrator assembles the campaign orchestrator (C9).
func ProvideOrchestrator(source orchestrator.CampaignSource, pipeline *orchestrator.CampaignPipeline) *orchestrator.Orchestrator {
	return &orchestrator.Orchestrator{Source: source, Pipeline: pipeline}
}

// Package app assembles the stores and services shared by the HTTP server and
// the admin CLI.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"explorer/internal/catalog"
	"explorer/internal/changelog"
	cmetrics "explorer/internal/contradiction/metrics"
	"explorer/internal/contradiction/resolver"
	cservice "explorer/internal/contradiction/service"
	cstore "explorer/internal/contradiction/store"
	dpmetrics "explorer/internal/datapoint/metrics"
	dpservice "explorer/internal/datapoint/service"
	dpstore "explorer/internal/datapoint/store"
	"explorer/internal/dataset"
	"explorer/internal/platform/config"
	"explorer/internal/platform/database"
	"explorer/internal/query"
	qmetrics "explorer/internal/query/metrics"
	sourcemetrics "explorer/internal/source/metrics"
	sourceservice "explorer/internal/source/service"
	sourcestore "explorer/internal/source/store"
	"explorer/internal/trust"
)

// Services is the wired service graph over one database.
type Services struct {
	DB             *database.DB
	Catalog        *catalog.Catalog
	Sources        *sourceservice.Service
	DataPoints     *dpservice.Service
	Contradictions *cservice.Service
	Datasets       *dataset.Store
	Engine         *query.Engine
	Tx             *database.TxRunner
}

// New opens the configured database, applies the schema and wires every
// service. Metrics register on reg; a nil reg disables them.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger, reg prometheus.Registerer) (*Services, error) {
	cat, err := catalog.Load()
	if err != nil {
		return nil, err
	}
	policy, err := resolver.NewPolicy(cfg.Policy.UntrustedTiers, cfg.Policy.TieBreak)
	if err != nil {
		return nil, fmt.Errorf("recommendation policy: %w", err)
	}

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, cat.DatasetDDL(db.Dialect)...); err != nil {
		_ = db.Close()
		return nil, err
	}

	var (
		sm *sourcemetrics.Metrics
		cm *cmetrics.Metrics
		dm *dpmetrics.Metrics
		qm *qmetrics.Metrics
	)
	if reg != nil {
		sm, cm, dm, qm = sourcemetrics.NewWith(reg), cmetrics.NewWith(reg), dpmetrics.NewWith(reg), qmetrics.NewWith(reg)
	}

	txRunner := database.NewTxRunner(db.DB, cfg.Database.TxTimeout)
	changes := changelog.New(db)
	sources := sourcestore.New(db)
	points := dpstore.New(db)

	contradictions := cservice.New(cstore.New(db), policy, log, cm)
	annotator := trust.NewAnnotator(sources, contradictions, points, cfg.Cache.SourceTTL)

	return &Services{
		DB:             db,
		Catalog:        cat,
		Sources:        sourceservice.New(sources, changes, txRunner, log, sm),
		Contradictions: contradictions,
		DataPoints: dpservice.New(points, sources, contradictions, annotator, changes, txRunner,
			dpservice.WithLogger(log), dpservice.WithMetrics(dm)),
		Datasets: dataset.New(db, cat),
		Engine: query.New(db, cat, annotator, query.Config{
			DefaultLimit:  cfg.Query.DefaultLimit,
			MaxLimit:      cfg.Query.MaxLimit,
			MaxExportRows: cfg.Query.MaxExportRows,
		}, query.WithLogger(log), query.WithMetrics(qm)),
		Tx: txRunner,
	}, nil
}

// Close releases the database.
func (s *Services) Close() error {
	return s.DB.Close()
}

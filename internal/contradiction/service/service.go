// Package service keeps the contradictions table in step with data point
// writes. Callers run it inside their own transaction so a data point and its
// contradiction commit together.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"explorer/internal/contradiction/metrics"
	"explorer/internal/contradiction/models"
	"explorer/internal/contradiction/resolver"
	"explorer/pkg/domain"
	dErrors "explorer/pkg/domain-errors"
	"explorer/pkg/platform/sentinel"
	"explorer/pkg/requestcontext"
)

type Store interface {
	FindOpen(ctx context.Context, metric string) (*models.Contradiction, error)
	Insert(ctx context.Context, c *models.Contradiction) (domain.ContradictionID, error)
	Update(ctx context.Context, c *models.Contradiction) error
	Resolve(ctx context.Context, metric string, at time.Time) error
	ListByMetric(ctx context.Context, metric string) ([]*models.Contradiction, error)
	OpenMetrics(ctx context.Context, metrics []string) (map[string]bool, error)
}

type Service struct {
	store   Store
	policy  resolver.Policy
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func New(store Store, policy resolver.Policy, logger *slog.Logger, metrics *metrics.Metrics) *Service {
	return &Service{store: store, policy: policy, logger: logger, metrics: metrics}
}

// Record upserts the single open contradiction for in.MetricName: the open
// row is superseded in place, otherwise a new one is inserted.
func (s *Service) Record(ctx context.Context, in resolver.Input) (*models.Contradiction, error) {
	if in.Date.IsZero() {
		in.Date = requestcontext.Now(ctx).UTC()
	}
	prior, err := s.store.FindOpen(ctx, in.MetricName)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load open contradiction")
	}
	c := s.policy.Resolve(in, prior)

	action := "superseded"
	if prior == nil {
		action = "created"
		id, err := s.store.Insert(ctx, &c)
		switch {
		case errors.Is(err, sentinel.ErrConflict):
			// A concurrent write opened the contradiction after our lookup.
			prior, err = s.store.FindOpen(ctx, in.MetricName)
			if err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load open contradiction")
			}
			action = "superseded"
			c = s.policy.Resolve(in, prior)
			if err := s.store.Update(ctx, &c); err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to supersede contradiction")
			}
		case err != nil:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record contradiction")
		default:
			c.ID = id
		}
	} else if err := s.store.Update(ctx, &c); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to supersede contradiction")
	}

	s.metrics.IncrementUpsert(string(c.Severity), action)
	s.logger.InfoContext(ctx, "contradiction "+action,
		"request_id", requestcontext.RequestID(ctx),
		"metric_name", c.MetricName,
		"contradiction_id", int64(c.ID),
		"severity", c.Severity,
		"recommended_figure", c.RecommendedFigure,
	)
	return &c, nil
}

// Converged resolves the open contradiction for metric, if any.
func (s *Service) Converged(ctx context.Context, metric string) error {
	err := s.store.Resolve(ctx, metric, requestcontext.Now(ctx).UTC())
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve contradiction")
	}
	s.metrics.IncrementResolved()
	s.logger.InfoContext(ctx, "contradiction resolved",
		"request_id", requestcontext.RequestID(ctx),
		"metric_name", metric,
	)
	return nil
}

// ForMetric returns the contradiction history of metric, newest first.
func (s *Service) ForMetric(ctx context.Context, metric string) ([]*models.Contradiction, error) {
	out, err := s.store.ListByMetric(ctx, metric)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list contradictions")
	}
	return out, nil
}

// OpenMetrics reports which metrics have an open contradiction.
func (s *Service) OpenMetrics(ctx context.Context, metrics []string) (map[string]bool, error) {
	out, err := s.store.OpenMetrics(ctx, metrics)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load open contradictions")
	}
	return out, nil
}

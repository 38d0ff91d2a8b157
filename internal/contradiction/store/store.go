// Package store persists contradictions. The schema allows a single open row
// per metric (partial unique index); resolved rows are kept as history.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"explorer/internal/contradiction/models"
	"explorer/internal/platform/database"
	"explorer/pkg/domain"
	"explorer/pkg/platform/sentinel"
	"explorer/pkg/platform/tx"
)

type Store struct {
	db      *sql.DB
	dialect database.Dialect
}

func New(db *database.DB) *Store {
	return &Store{db: db.DB, dialect: db.Dialect}
}

func (s *Store) execer(ctx context.Context) tx.Executor {
	return tx.Pick(ctx, s.db)
}

const columns = `id, metric_name, metric_category, data_point_id, government_claim,
	government_source_id, independent_finding, independent_source_id, discrepancy_explanation,
	recommended_figure, recommendation_rationale, use_with_caution, severity, status,
	date_identified, resolved_at`

// FindOpen returns the open contradiction for metric or sentinel.ErrNotFound.
func (s *Store) FindOpen(ctx context.Context, metric string) (*models.Contradiction, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		s.dialect.Rebind(`SELECT `+columns+` FROM contradictions WHERE metric_name = ? AND status = 'open'`),
		metric)
	c, err := scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find open contradiction: %w", err)
	}
	return c, nil
}

// Insert saves a new contradiction. A second open row for the same metric
// fails with sentinel.ErrConflict. The conflict is absorbed by ON CONFLICT so
// the surrounding transaction stays usable.
func (s *Store) Insert(ctx context.Context, c *models.Contradiction) (domain.ContradictionID, error) {
	query := s.dialect.Rebind(`
		INSERT INTO contradictions (metric_name, metric_category, data_point_id, government_claim,
			government_source_id, independent_finding, independent_source_id, discrepancy_explanation,
			recommended_figure, recommendation_rationale, use_with_caution, severity, status,
			date_identified, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (metric_name) WHERE status = 'open' DO NOTHING
		RETURNING id`)
	var id int64
	err := s.execer(ctx).QueryRowContext(ctx, query,
		c.MetricName, c.MetricCategory, nullableID(int64(c.DataPointID)), c.GovernmentClaim,
		nullableID(int64(c.GovernmentSourceID)), c.IndependentFinding, nullableID(int64(c.IndependentSourceID)),
		c.DiscrepancyExplanation, c.RecommendedFigure, c.RecommendationRationale,
		database.BoolInt(c.UseWithCaution), string(c.Severity), string(c.Status),
		domain.FormatDate(c.DateIdentified), database.NullableTimestamp(c.ResolvedAt),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, sentinel.ErrConflict
	}
	if err != nil {
		return 0, fmt.Errorf("insert contradiction: %w", database.Classify(err))
	}
	return domain.ContradictionID(id), nil
}

// Update overwrites the mutable fields of an existing contradiction.
func (s *Store) Update(ctx context.Context, c *models.Contradiction) error {
	query := s.dialect.Rebind(`
		UPDATE contradictions SET metric_category = ?, data_point_id = ?, government_claim = ?,
			government_source_id = ?, independent_finding = ?, independent_source_id = ?,
			discrepancy_explanation = ?, recommended_figure = ?, recommendation_rationale = ?,
			use_with_caution = ?, severity = ?, status = ?, resolved_at = ?
		WHERE id = ?`)
	res, err := s.execer(ctx).ExecContext(ctx, query,
		c.MetricCategory, nullableID(int64(c.DataPointID)), c.GovernmentClaim,
		nullableID(int64(c.GovernmentSourceID)), c.IndependentFinding, nullableID(int64(c.IndependentSourceID)),
		c.DiscrepancyExplanation, c.RecommendedFigure, c.RecommendationRationale,
		database.BoolInt(c.UseWithCaution), string(c.Severity), string(c.Status),
		database.NullableTimestamp(c.ResolvedAt), int64(c.ID),
	)
	if err != nil {
		return fmt.Errorf("update contradiction %d: %w", c.ID, database.Classify(err))
	}
	return database.ExpectOne(res)
}

// Resolve closes the open contradiction for metric. It returns
// sentinel.ErrNotFound when none is open.
func (s *Store) Resolve(ctx context.Context, metric string, at time.Time) error {
	res, err := s.execer(ctx).ExecContext(ctx,
		s.dialect.Rebind(`UPDATE contradictions SET status = 'resolved', resolved_at = ? WHERE metric_name = ? AND status = 'open'`),
		database.Timestamp(at), metric)
	if err != nil {
		return fmt.Errorf("resolve contradiction: %w", database.Classify(err))
	}
	return database.ExpectOne(res)
}

// ListByMetric returns every contradiction for metric, newest first.
func (s *Store) ListByMetric(ctx context.Context, metric string) ([]*models.Contradiction, error) {
	rows, err := s.execer(ctx).QueryContext(ctx,
		s.dialect.Rebind(`SELECT `+columns+` FROM contradictions WHERE metric_name = ? ORDER BY id DESC`), metric)
	if err != nil {
		return nil, fmt.Errorf("list contradictions: %w", err)
	}
	defer rows.Close()
	var out []*models.Contradiction
	for rows.Next() {
		c, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contradiction: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// OpenMetrics reports which of metrics currently have an open contradiction.
// Names are bound MaxInList at a time.
func (s *Store) OpenMetrics(ctx context.Context, metrics []string) (map[string]bool, error) {
	out := make(map[string]bool, len(metrics))
	for part := range slices.Chunk(metrics, database.MaxInList) {
		args := make([]any, len(part))
		for i, m := range part {
			args[i] = m
		}
		if err := s.openMetrics(ctx, args, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) openMetrics(ctx context.Context, args []any, out map[string]bool) error {
	rows, err := s.execer(ctx).QueryContext(ctx, s.dialect.Rebind(
		`SELECT metric_name FROM contradictions WHERE status = 'open' AND metric_name IN (`+database.Placeholders(len(args))+`)`),
		args...)
	if err != nil {
		return fmt.Errorf("open contradictions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var metric string
		if err := rows.Scan(&metric); err != nil {
			return fmt.Errorf("scan metric: %w", err)
		}
		out[metric] = true
	}
	return rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (*models.Contradiction, error) {
	var (
		c                           models.Contradiction
		id                          int64
		dataPointID, govID, indepID sql.NullInt64
		caution                     int64
		severity, status, date      string
		resolvedAt                  sql.NullString
	)
	err := row.Scan(&id, &c.MetricName, &c.MetricCategory, &dataPointID, &c.GovernmentClaim,
		&govID, &c.IndependentFinding, &indepID, &c.DiscrepancyExplanation,
		&c.RecommendedFigure, &c.RecommendationRationale, &caution, &severity, &status,
		&date, &resolvedAt)
	if err != nil {
		return nil, err
	}
	c.ID = domain.ContradictionID(id)
	c.DataPointID = domain.DataPointID(dataPointID.Int64)
	c.GovernmentSourceID = domain.SourceID(govID.Int64)
	c.IndependentSourceID = domain.SourceID(indepID.Int64)
	c.UseWithCaution = caution != 0
	c.Severity = models.Severity(severity)
	c.Status = models.Status(status)
	c.DateIdentified, _ = time.Parse(domain.DateLayout, date)
	if resolvedAt.Valid {
		t := database.ParseTimestamp(resolvedAt.String)
		c.ResolvedAt = &t
	}
	return &c, nil
}

func nullableID(id int64) any {
	if id <= 0 {
		return nil
	}
	return id
}

// Package store persists data points and their ordered cross-references.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"explorer/internal/datapoint/models"
	"explorer/internal/platform/database"
	"explorer/internal/trust"
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

const columns = `id, metric_name, metric_category, value, value_numeric, unit, date_reported,
	date_retrieved, primary_source_id, verification_status, government_figure, independent_figure,
	government_source_id, independent_source_id, discrepancy_notes, methodology_notes, caveats,
	trust_badge, created_at, updated_at`

// Insert saves dp and its cross-references and returns the new ID.
func (s *Store) Insert(ctx context.Context, dp *models.DataPoint) (domain.DataPointID, error) {
	query := s.dialect.Rebind(`
		INSERT INTO data_points (metric_name, metric_category, value, value_numeric, unit,
			date_reported, date_retrieved, primary_source_id, verification_status,
			government_figure, independent_figure, government_source_id, independent_source_id,
			discrepancy_notes, methodology_notes, caveats, trust_badge, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`)
	var id int64
	err := s.execer(ctx).QueryRowContext(ctx, query,
		dp.MetricName, dp.MetricCategory, dp.Value, nullableFloat(dp.ValueNumeric), dp.Unit,
		domain.NullableDate(dp.DateReported), domain.NullableDate(dp.DateRetrieved),
		int64(dp.PrimarySourceID), string(dp.VerificationStatus),
		database.NullableString(dp.GovernmentFigure), database.NullableString(dp.IndependentFigure),
		nullableID(dp.GovernmentSourceID), nullableID(dp.IndependentSourceID),
		dp.DiscrepancyNotes, dp.MethodologyNotes, dp.Caveats, dp.TrustBadge,
		database.Timestamp(dp.CreatedAt), database.Timestamp(dp.UpdatedAt),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert data point: %w", database.Classify(err))
	}
	if err := s.writeCrossReferences(ctx, domain.DataPointID(id), dp.CrossReferences); err != nil {
		return 0, err
	}
	return domain.DataPointID(id), nil
}

// Update overwrites every column of an existing data point and replaces its
// cross-references.
func (s *Store) Update(ctx context.Context, dp *models.DataPoint) error {
	query := s.dialect.Rebind(`
		UPDATE data_points SET metric_name = ?, metric_category = ?, value = ?, value_numeric = ?,
			unit = ?, date_reported = ?, date_retrieved = ?, primary_source_id = ?,
			verification_status = ?, government_figure = ?, independent_figure = ?,
			government_source_id = ?, independent_source_id = ?, discrepancy_notes = ?,
			methodology_notes = ?, caveats = ?, trust_badge = ?, updated_at = ?
		WHERE id = ?`)
	res, err := s.execer(ctx).ExecContext(ctx, query,
		dp.MetricName, dp.MetricCategory, dp.Value, nullableFloat(dp.ValueNumeric), dp.Unit,
		domain.NullableDate(dp.DateReported), domain.NullableDate(dp.DateRetrieved),
		int64(dp.PrimarySourceID), string(dp.VerificationStatus),
		database.NullableString(dp.GovernmentFigure), database.NullableString(dp.IndependentFigure),
		nullableID(dp.GovernmentSourceID), nullableID(dp.IndependentSourceID),
		dp.DiscrepancyNotes, dp.MethodologyNotes, dp.Caveats, dp.TrustBadge,
		database.Timestamp(dp.UpdatedAt), int64(dp.ID),
	)
	if err != nil {
		return fmt.Errorf("update data point %d: %w", dp.ID, database.Classify(err))
	}
	if err := database.ExpectOne(res); err != nil {
		return err
	}
	if _, err := s.execer(ctx).ExecContext(ctx,
		s.dialect.Rebind(`DELETE FROM data_point_cross_references WHERE data_point_id = ?`), int64(dp.ID)); err != nil {
		return fmt.Errorf("clear cross references: %w", err)
	}
	return s.writeCrossReferences(ctx, dp.ID, dp.CrossReferences)
}

func (s *Store) writeCrossReferences(ctx context.Context, id domain.DataPointID, refs []domain.SourceID) error {
	query := s.dialect.Rebind(`INSERT INTO data_point_cross_references (data_point_id, source_id, position) VALUES (?, ?, ?)`)
	for i, ref := range refs {
		if _, err := s.execer(ctx).ExecContext(ctx, query, int64(id), int64(ref), i); err != nil {
			return fmt.Errorf("insert cross reference: %w", database.Classify(err))
		}
	}
	return nil
}

// SetBadge stores the stamped trust badge.
func (s *Store) SetBadge(ctx context.Context, id domain.DataPointID, badge trust.Badge) error {
	res, err := s.execer(ctx).ExecContext(ctx,
		s.dialect.Rebind(`UPDATE data_points SET trust_badge = ? WHERE id = ?`), string(badge), int64(id))
	if err != nil {
		return fmt.Errorf("set trust badge: %w", err)
	}
	return database.ExpectOne(res)
}

// FindByID returns the data point with its cross-references, or sentinel.ErrNotFound.
func (s *Store) FindByID(ctx context.Context, id domain.DataPointID) (*models.DataPoint, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		s.dialect.Rebind(`SELECT `+columns+` FROM data_points WHERE id = ?`), int64(id))
	dp, err := scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find data point %d: %w", id, err)
	}
	refs, err := s.crossReferences(ctx, id)
	if err != nil {
		return nil, err
	}
	dp.CrossReferences = refs
	return dp, nil
}

func (s *Store) crossReferences(ctx context.Context, id domain.DataPointID) ([]domain.SourceID, error) {
	rows, err := s.execer(ctx).QueryContext(ctx,
		s.dialect.Rebind(`SELECT source_id FROM data_point_cross_references WHERE data_point_id = ? ORDER BY position`),
		int64(id))
	if err != nil {
		return nil, fmt.Errorf("list cross references: %w", err)
	}
	defer rows.Close()
	refs := []domain.SourceID{}
	for rows.Next() {
		var ref int64
		if err := rows.Scan(&ref); err != nil {
			return nil, fmt.Errorf("scan cross reference: %w", err)
		}
		refs = append(refs, domain.SourceID(ref))
	}
	return refs, rows.Err()
}

// CountCrossReferences counts cross-references per data point. Points without
// any are absent from the result. Keys are bound MaxInList at a time.
func (s *Store) CountCrossReferences(ctx context.Context, ids []domain.DataPointID) (map[domain.DataPointID]int, error) {
	out := make(map[domain.DataPointID]int, len(ids))
	for part := range slices.Chunk(ids, database.MaxInList) {
		args := make([]any, len(part))
		for i, id := range part {
			args[i] = int64(id)
		}
		if err := s.countCrossReferences(ctx, args, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) countCrossReferences(ctx context.Context, args []any, out map[domain.DataPointID]int) error {
	rows, err := s.execer(ctx).QueryContext(ctx, s.dialect.Rebind(`
		SELECT data_point_id, COUNT(*) FROM data_point_cross_references
		WHERE data_point_id IN (`+database.Placeholders(len(args))+`)
		GROUP BY data_point_id`), args...)
	if err != nil {
		return fmt.Errorf("count cross references: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, n int64
		if err := rows.Scan(&id, &n); err != nil {
			return fmt.Errorf("scan cross reference count: %w", err)
		}
		out[domain.DataPointID(id)] = int(n)
	}
	return rows.Err()
}

// WithBothFigures lists the data points of metric that carry a government and
// an independent figure, most recently updated first. Cross-references are
// not loaded.
func (s *Store) WithBothFigures(ctx context.Context, metric string) ([]*models.DataPoint, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, s.dialect.Rebind(`
		SELECT `+columns+` FROM data_points
		WHERE metric_name = ? AND government_figure IS NOT NULL AND independent_figure IS NOT NULL
		ORDER BY updated_at DESC, id DESC`), metric)
	if err != nil {
		return nil, fmt.Errorf("list dual figure data points: %w", err)
	}
	defer rows.Close()
	var out []*models.DataPoint
	for rows.Next() {
		dp, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan data point: %w", err)
		}
		out = append(out, dp)
	}
	return out, rows.Err()
}

// SubjectsByMetric lists the badge inputs of every data point for metric.
func (s *Store) SubjectsByMetric(ctx context.Context, metric string) ([]trust.Subject, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, s.dialect.Rebind(`
		SELECT id, metric_name, primary_source_id, verification_status
		FROM data_points WHERE metric_name = ? ORDER BY id`), metric)
	if err != nil {
		return nil, fmt.Errorf("list data points for metric: %w", err)
	}
	defer rows.Close()
	var out []trust.Subject
	for rows.Next() {
		var (
			id, sourceID int64
			subject      trust.Subject
			status       string
		)
		if err := rows.Scan(&id, &subject.MetricName, &sourceID, &status); err != nil {
			return nil, fmt.Errorf("scan subject: %w", err)
		}
		subject.ID = domain.DataPointID(id)
		subject.PrimarySourceID = domain.SourceID(sourceID)
		subject.Status = domain.VerificationStatus(status)
		out = append(out, subject)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (*models.DataPoint, error) {
	var (
		dp                           models.DataPoint
		id, primary                  int64
		numeric                      sql.NullFloat64
		reported, retrieved          sql.NullString
		govFigure, indepFigure       sql.NullString
		govSource, indepSource       sql.NullInt64
		status, createdAt, updatedAt string
	)
	err := row.Scan(&id, &dp.MetricName, &dp.MetricCategory, &dp.Value, &numeric, &dp.Unit,
		&reported, &retrieved, &primary, &status, &govFigure, &indepFigure,
		&govSource, &indepSource, &dp.DiscrepancyNotes, &dp.MethodologyNotes, &dp.Caveats,
		&dp.TrustBadge, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	dp.ID = domain.DataPointID(id)
	dp.PrimarySourceID = domain.SourceID(primary)
	dp.VerificationStatus = domain.VerificationStatus(status)
	if numeric.Valid {
		v := numeric.Float64
		dp.ValueNumeric = &v
	}
	dp.DateReported = parseDate(reported)
	dp.DateRetrieved = parseDate(retrieved)
	dp.GovernmentFigure = database.StringPtr(govFigure)
	dp.IndependentFigure = database.StringPtr(indepFigure)
	dp.GovernmentSourceID = domain.SourceID(govSource.Int64)
	dp.IndependentSourceID = domain.SourceID(indepSource.Int64)
	dp.CreatedAt = database.ParseTimestamp(createdAt)
	dp.UpdatedAt = database.ParseTimestamp(updatedAt)
	return &dp, nil
}

func parseDate(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	d, err := time.Parse(domain.DateLayout, ns.String)
	if err != nil {
		return nil
	}
	return &d
}

func nullableFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func nullableID(id domain.SourceID) any {
	if id.IsNil() {
		return nil
	}
	return int64(id)
}

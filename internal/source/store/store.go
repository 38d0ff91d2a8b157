// Package store persists sources and their version history.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"explorer/internal/platform/database"
	"explorer/internal/source/models"
	"explorer/pkg/domain"
	"explorer/pkg/platform/sentinel"
	"explorer/pkg/platform/tx"
)

// Store is the SQL-backed source registry.
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

const sourceColumns = `id, name, category, trust_tier, url, archive_url, last_verified,
	verification_notes, known_limitations, derived, version, retired_at, created_at, updated_at`

// Insert saves a new source and returns its assigned ID.
func (s *Store) Insert(ctx context.Context, src *models.Source) (domain.SourceID, error) {
	query := s.dialect.Rebind(`
		INSERT INTO sources (name, category, trust_tier, url, archive_url, last_verified,
			verification_notes, known_limitations, derived, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`)
	var id int64
	err := s.execer(ctx).QueryRowContext(ctx, query,
		src.Name, string(src.Category), string(src.TrustTier), src.URL,
		database.NullableString(src.ArchiveURL), domain.NullableDate(src.LastVerified),
		src.VerificationNotes, src.KnownLimitations, database.BoolInt(src.Derived), src.Version,
		database.Timestamp(src.CreatedAt), database.Timestamp(src.UpdatedAt),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert source: %w", database.Classify(err))
	}
	return domain.SourceID(id), nil
}

// FindByID returns the source or sentinel.ErrNotFound.
func (s *Store) FindByID(ctx context.Context, id domain.SourceID) (*models.Source, error) {
	return s.findByID(ctx, id, "")
}

// Lock is FindByID that also locks the row for update until the surrounding
// transaction ends.
func (s *Store) Lock(ctx context.Context, id domain.SourceID) (*models.Source, error) {
	return s.findByID(ctx, id, s.dialect.ForUpdate())
}

func (s *Store) findByID(ctx context.Context, id domain.SourceID, lock string) (*models.Source, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		s.dialect.Rebind(`SELECT `+sourceColumns+` FROM sources WHERE id = ?`+lock), int64(id))
	src, err := scanSource(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find source %d: %w", id, err)
	}
	return src, nil
}

// FindMany returns the sources that exist among ids, keyed by ID.
func (s *Store) FindMany(ctx context.Context, ids []domain.SourceID) (map[domain.SourceID]*models.Source, error) {
	return s.findMany(ctx, ids, "")
}

// ShareMany is FindMany that holds a share lock on the rows found, so none of
// them can be retired before the surrounding transaction ends.
func (s *Store) ShareMany(ctx context.Context, ids []domain.SourceID) (map[domain.SourceID]*models.Source, error) {
	return s.findMany(ctx, ids, s.dialect.ForShare())
}

func (s *Store) findMany(ctx context.Context, ids []domain.SourceID, lock string) (map[domain.SourceID]*models.Source, error) {
	out := make(map[domain.SourceID]*models.Source, len(ids))
	for part := range slices.Chunk(ids, database.MaxInList) {
		args := make([]any, len(part))
		for i, id := range part {
			args[i] = int64(id)
		}
		// Rows are locked in id order so concurrent writers cannot deadlock.
		query := s.dialect.Rebind(`SELECT ` + sourceColumns + ` FROM sources WHERE id IN (` +
			database.Placeholders(len(args)) + `) ORDER BY id` + lock)
		if err := s.scanInto(ctx, query, args, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) scanInto(ctx context.Context, query string, args []any, out map[domain.SourceID]*models.Source) error {
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("find sources: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return fmt.Errorf("scan source: %w", err)
		}
		out[src.ID] = src
	}
	return rows.Err()
}

// List returns sources in registration order.
func (s *Store) List(ctx context.Context, filter models.ListFilter) ([]*models.Source, error) {
	var (
		where []string
		args  []any
	)
	if filter.Category != nil {
		where = append(where, "category = ?")
		args = append(args, string(*filter.Category))
	}
	if filter.Tier != nil {
		where = append(where, "trust_tier = ?")
		args = append(args, string(*filter.Tier))
	}
	if !filter.IncludeRetired {
		where = append(where, "retired_at IS NULL")
	}
	query := `SELECT ` + sourceColumns + ` FROM sources`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	rows, err := s.execer(ctx).QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()
	var out []*models.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// UpdateVerification persists the re-verification fields and version.
func (s *Store) UpdateVerification(ctx context.Context, src *models.Source) error {
	res, err := s.execer(ctx).ExecContext(ctx, s.dialect.Rebind(`
		UPDATE sources
		SET last_verified = ?, verification_notes = ?, archive_url = ?, version = ?, updated_at = ?
		WHERE id = ?`),
		domain.NullableDate(src.LastVerified), src.VerificationNotes, database.NullableString(src.ArchiveURL),
		src.Version, database.Timestamp(src.UpdatedAt), int64(src.ID),
	)
	if err != nil {
		return fmt.Errorf("update source %d: %w", src.ID, err)
	}
	return database.ExpectOne(res)
}

// Retire marks a source withdrawn. The row itself is kept.
func (s *Store) Retire(ctx context.Context, id domain.SourceID, at time.Time, version int) error {
	res, err := s.execer(ctx).ExecContext(ctx, s.dialect.Rebind(`
		UPDATE sources SET retired_at = ?, version = ?, updated_at = ? WHERE id = ? AND retired_at IS NULL`),
		database.Timestamp(at), version, database.Timestamp(at), int64(id))
	if err != nil {
		return fmt.Errorf("retire source %d: %w", id, err)
	}
	return database.ExpectOne(res)
}

// CountReferences counts data points and contradictions that cite the source
// in any role.
func (s *Store) CountReferences(ctx context.Context, id domain.SourceID) (int, error) {
	query := s.dialect.Rebind(`
		SELECT
			(SELECT COUNT(*) FROM data_points
				WHERE primary_source_id = ? OR government_source_id = ? OR independent_source_id = ?)
			+ (SELECT COUNT(*) FROM data_point_cross_references WHERE source_id = ?)
			+ (SELECT COUNT(*) FROM contradictions
				WHERE government_source_id = ? OR independent_source_id = ?)`)
	n := int64(id)
	var count int
	if err := s.execer(ctx).QueryRowContext(ctx, query, n, n, n, n, n, n).Scan(&count); err != nil {
		return 0, fmt.Errorf("count references to source %d: %w", id, err)
	}
	return count, nil
}

// AppendVersion stores a snapshot of the source as it is after a change.
func (s *Store) AppendVersion(ctx context.Context, v models.Version) error {
	snapshot, err := json.Marshal(v.Snapshot)
	if err != nil {
		return fmt.Errorf("marshal source snapshot: %w", err)
	}
	_, err = s.execer(ctx).ExecContext(ctx, s.dialect.Rebind(`
		INSERT INTO source_versions (source_id, version, snapshot, reason, changed_at)
		VALUES (?, ?, ?, ?, ?)`),
		int64(v.SourceID), v.Version, string(snapshot), v.Reason, database.Timestamp(v.ChangedAt))
	if err != nil {
		return fmt.Errorf("append source version: %w", database.Classify(err))
	}
	return nil
}

// ListVersions returns a source's versions oldest first.
func (s *Store) ListVersions(ctx context.Context, id domain.SourceID) ([]models.Version, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, s.dialect.Rebind(`
		SELECT source_id, version, snapshot, reason, changed_at
		FROM source_versions WHERE source_id = ? ORDER BY version`), int64(id))
	if err != nil {
		return nil, fmt.Errorf("list source versions: %w", err)
	}
	defer rows.Close()
	var out []models.Version
	for rows.Next() {
		var (
			v        models.Version
			sourceID int64
			snapshot string
			at       string
		)
		if err := rows.Scan(&sourceID, &v.Version, &snapshot, &v.Reason, &at); err != nil {
			return nil, fmt.Errorf("scan source version: %w", err)
		}
		if err := json.Unmarshal([]byte(snapshot), &v.Snapshot); err != nil {
			return nil, fmt.Errorf("decode source snapshot: %w", err)
		}
		v.SourceID = domain.SourceID(sourceID)
		v.ChangedAt = database.ParseTimestamp(at)
		out = append(out, v)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSource(row scanner) (*models.Source, error) {
	var (
		src                      models.Source
		id, derived              int64
		category, tier           string
		archiveURL, lastVerified sql.NullString
		retiredAt                sql.NullString
		createdAt, updatedAt     string
	)
	err := row.Scan(&id, &src.Name, &category, &tier, &src.URL, &archiveURL, &lastVerified,
		&src.VerificationNotes, &src.KnownLimitations, &derived, &src.Version, &retiredAt,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	src.ID = domain.SourceID(id)
	src.Category = domain.SourceCategory(category)
	src.TrustTier = domain.TrustTier(tier)
	src.Derived = derived != 0
	src.ArchiveURL = database.StringPtr(archiveURL)
	if lastVerified.Valid {
		if d, err := time.Parse(domain.DateLayout, lastVerified.String); err == nil {
			src.LastVerified = &d
		}
	}
	if retiredAt.Valid {
		t := database.ParseTimestamp(retiredAt.String)
		src.RetiredAt = &t
	}
	src.CreatedAt = database.ParseTimestamp(createdAt)
	src.UpdatedAt = database.ParseTimestamp(updatedAt)
	return &src, nil
}

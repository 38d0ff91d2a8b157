// Package changelog appends correction and re-verification records to the
// data_changelog table. Rows are never updated or removed.
package changelog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"explorer/internal/platform/database"
	"explorer/pkg/platform/tx"
	"explorer/pkg/requestcontext"
)

// Change types.
const (
	ChangeCreate   = "create"
	ChangeUpdate   = "update"
	ChangeReverify = "reverify"
	ChangeRetire   = "retire"
)

// Entry is one field-level change to a record.
type Entry struct {
	Table      string
	RecordID   int64
	ChangeType string
	Field      string
	OldValue   *string
	NewValue   *string
	Reason     string
	ChangedAt  time.Time
}

// Store writes entries through the context transaction when one is open.
type Store struct {
	db      *sql.DB
	dialect database.Dialect
}

func New(db *database.DB) *Store {
	return &Store{db: db.DB, dialect: db.Dialect}
}

// Append records entries in order. Actor and request ID come from the context.
func (s *Store) Append(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	query := s.dialect.Rebind(`
		INSERT INTO data_changelog
			(table_name, record_id, change_type, field, old_value, new_value, reason, actor, request_id, changed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	actor := requestcontext.Actor(ctx)
	requestID := requestcontext.RequestID(ctx)
	exec := tx.Pick(ctx, s.db)
	for _, e := range entries {
		changedAt := e.ChangedAt
		if changedAt.IsZero() {
			changedAt = requestcontext.Now(ctx)
		}
		_, err := exec.ExecContext(ctx, query,
			e.Table, e.RecordID, e.ChangeType, e.Field,
			nullString(e.OldValue), nullString(e.NewValue),
			e.Reason, actor, requestID, changedAt.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("append changelog %s/%d: %w", e.Table, e.RecordID, err)
		}
	}
	return nil
}

// ForRecord lists a record's history oldest first.
func (s *Store) ForRecord(ctx context.Context, table string, id int64) ([]Entry, error) {
	rows, err := tx.Pick(ctx, s.db).QueryContext(ctx, s.dialect.Rebind(`
		SELECT table_name, record_id, change_type, field, old_value, new_value, reason, changed_at
		FROM data_changelog WHERE table_name = ? AND record_id = ? ORDER BY id`), table, id)
	if err != nil {
		return nil, fmt.Errorf("list changelog: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e          Entry
			prev, next sql.NullString
			at         string
		)
		if err := rows.Scan(&e.Table, &e.RecordID, &e.ChangeType, &e.Field, &prev, &next, &e.Reason, &at); err != nil {
			return nil, fmt.Errorf("scan changelog: %w", err)
		}
		e.OldValue = fromNull(prev)
		e.NewValue = fromNull(next)
		e.ChangedAt, _ = time.Parse(time.RFC3339, at)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Diff returns an update entry when old and new differ, treating nil as absent.
func Diff(table string, id int64, field string, before, after *string, reason string) (Entry, bool) {
	if equal(before, after) {
		return Entry{}, false
	}
	return Entry{
		Table: table, RecordID: id, ChangeType: ChangeUpdate,
		Field: field, OldValue: before, NewValue: after, Reason: reason,
	}, true
}

func equal(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func fromNull(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

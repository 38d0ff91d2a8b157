// Package dataset loads rows into the catalog's non-core tables. The
// provenance tables have their own services; this store refuses to touch them.
package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"explorer/internal/catalog"
	"explorer/internal/platform/database"
	"explorer/pkg/domain"
	dErrors "explorer/pkg/domain-errors"
	"explorer/pkg/platform/tx"
)

// Store inserts dataset rows after validating them against the catalog.
type Store struct {
	db      *sql.DB
	dialect database.Dialect
	catalog *catalog.Catalog
}

func New(db *database.DB, cat *catalog.Catalog) *Store {
	return &Store{db: db.DB, dialect: db.Dialect, catalog: cat}
}

func (s *Store) execer(ctx context.Context) tx.Executor {
	return tx.Pick(ctx, s.db)
}

// Insert stores one row and returns its assigned id. Keys must be catalog
// columns of table; id is always assigned by the store.
func (s *Store) Insert(ctx context.Context, table string, row map[string]any) (int64, error) {
	t, ok := s.catalog.Table(table)
	if !ok || t.Core {
		return 0, dErrors.New(dErrors.CodeUnknownTable, fmt.Sprintf("unknown dataset table %q", table))
	}
	if len(row) == 0 {
		return 0, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("row for %s has no columns", table))
	}

	names := make([]string, 0, len(row))
	for name := range row {
		names = append(names, name)
	}
	sort.Strings(names)

	cols := make([]string, len(names))
	marks := make([]string, len(names))
	args := make([]any, len(names))
	for i, name := range names {
		col, ok := t.Column(name)
		if !ok || name == catalog.KeyColumn {
			return 0, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s has no writable column %q", table, name))
		}
		v, err := value(col, row[name])
		if err != nil {
			return 0, err
		}
		cols[i] = `"` + name + `"`
		marks[i] = "?"
		args[i] = v
	}

	query := s.dialect.Rebind(fmt.Sprintf(`INSERT INTO %q (%s) VALUES (%s) RETURNING id`,
		t.Name, strings.Join(cols, ", "), strings.Join(marks, ", ")))
	var id int64
	if err := s.execer(ctx).QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert into %s: %w", table, database.Classify(err))
	}
	return id, nil
}

// value converts a decoded YAML or JSON value into the column's storage type.
// nil is stored as NULL.
func value(col catalog.Column, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch col.Type {
	case catalog.TypeText:
		switch x := v.(type) {
		case string:
			return x, nil
		case int, int64, float64, bool:
			return fmt.Sprint(x), nil
		}
	case catalog.TypeInteger:
		switch x := v.(type) {
		case int:
			return int64(x), nil
		case int64:
			return x, nil
		case float64:
			if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
				return int64(x), nil
			}
		case string:
			if i, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64); err == nil {
				return i, nil
			}
		}
	case catalog.TypeNumeric:
		switch x := v.(type) {
		case int:
			return float64(x), nil
		case int64:
			return float64(x), nil
		case float64:
			if !math.IsInf(x, 0) && !math.IsNaN(x) {
				return x, nil
			}
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
				return f, nil
			}
		}
	case catalog.TypeDate:
		switch x := v.(type) {
		case time.Time:
			return domain.FormatDate(x), nil
		case string:
			if d, err := domain.ParseDate(col.Name, x); err == nil {
				return domain.FormatDate(d), nil
			}
		}
	}
	return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("value %v is not a valid %s for %q", v, col.Type, col.Name))
}

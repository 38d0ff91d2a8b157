package database

import (
	"strconv"
	"strings"
)

// Dialect captures the SQL differences between the supported stores.
// Queries are written with '?' placeholders and rebound per dialect.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// DriverName is the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	if d == Postgres {
		return "pgx"
	}
	return "sqlite"
}

// Rebind rewrites '?' placeholders into $n for Postgres. Placeholders inside
// single-quoted literals are left alone.
func (d Dialect) Rebind(query string) string {
	if d != Postgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// PrimaryKey is the column definition of an auto-assigned int64 key.
func (d Dialect) PrimaryKey() string {
	if d == Postgres {
		return "id BIGSERIAL PRIMARY KEY"
	}
	return "id INTEGER PRIMARY KEY AUTOINCREMENT"
}

// Type maps a portable column kind (text, integer, bigint, numeric) to DDL.
func (d Dialect) Type(kind string) string {
	switch kind {
	case "integer", "bigint":
		if d == Postgres {
			return "BIGINT"
		}
		return "INTEGER"
	case "numeric":
		if d == Postgres {
			return "DOUBLE PRECISION"
		}
		return "REAL"
	default:
		return "TEXT"
	}
}

// Expand replaces {{pk}}, {{bigint}} and {{numeric}} in a DDL template.
func (d Dialect) Expand(ddl string) string {
	return strings.NewReplacer(
		"{{pk}}", d.PrimaryKey(),
		"{{bigint}}", d.Type("bigint"),
		"{{numeric}}", d.Type("numeric"),
	).Replace(ddl)
}

// ForUpdate is the row-lock suffix for rows about to change. SQLite has no
// row locks; its single connection already serialises transactions.
func (d Dialect) ForUpdate() string {
	if d == Postgres {
		return " FOR UPDATE"
	}
	return ""
}

// ForShare is the row-lock suffix that keeps rows from changing until the
// transaction ends while letting other readers share the lock.
func (d Dialect) ForShare() string {
	if d == Postgres {
		return " FOR SHARE"
	}
	return ""
}

// MaxInList bounds the values bound into one IN (...) list. SQLite allows
// 32766 variables per statement and Postgres 65535, so callers with more
// keys split them with slices.Chunk.
const MaxInList = 500

// Placeholders returns n comma separated '?' placeholders.
func Placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

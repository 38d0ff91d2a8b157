package database

import (
	"database/sql"
	"time"

	"explorer/pkg/platform/sentinel"
)

// Column encodings shared by both dialects: timestamps are RFC 3339 text and
// booleans are 0/1 integers.

func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func ParseTimestamp(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func NullableTimestamp(t *time.Time) any {
	if t == nil {
		return nil
	}
	return Timestamp(*t)
}

func NullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func BoolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// StringPtr converts a scanned NULL-able column.
func StringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

// ExpectOne maps a zero-row update to sentinel.ErrNotFound.
func ExpectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

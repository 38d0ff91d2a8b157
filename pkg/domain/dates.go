package domain

import (
	"strings"
	"time"

	dErrors "explorer/pkg/domain-errors"
)

// DateLayout is the persisted and wire format of calendar dates.
const DateLayout = "2006-01-02"

// ParseDate parses an ISO calendar date. field names the input in errors.
func ParseDate(field, s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, dErrors.New(dErrors.CodeValidation, field+" must be a YYYY-MM-DD date")
	}
	return t, nil
}

// FormatDate renders t as an ISO calendar date in UTC.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// NullableDate converts an optional date into its persisted form.
func NullableDate(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return FormatDate(*t)
}

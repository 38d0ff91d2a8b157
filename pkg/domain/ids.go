package domain

import (
	"strconv"
	"strings"

	dErrors "explorer/pkg/domain-errors"
)

// Typed identifiers for persisted records. IDs are assigned by the store and
// are always positive; the zero value means "not assigned".
type (
	SourceID        int64
	DataPointID     int64
	ContradictionID int64
)

func (id SourceID) IsNil() bool        { return id <= 0 }
func (id DataPointID) IsNil() bool     { return id <= 0 }
func (id ContradictionID) IsNil() bool { return id <= 0 }

func (id SourceID) String() string        { return strconv.FormatInt(int64(id), 10) }
func (id DataPointID) String() string     { return strconv.FormatInt(int64(id), 10) }
func (id ContradictionID) String() string { return strconv.FormatInt(int64(id), 10) }

// ParseSourceID parses a source ID from a path segment or flag.
func ParseSourceID(s string) (SourceID, error) {
	n, err := parsePositive(s, "source id")
	return SourceID(n), err
}

// ParseDataPointID parses a data point ID from a path segment or flag.
func ParseDataPointID(s string) (DataPointID, error) {
	n, err := parsePositive(s, "data point id")
	return DataPointID(n), err
}

func parsePositive(s, what string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, dErrors.New(dErrors.CodeValidation, what+" cannot be empty")
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeValidation, "invalid "+what)
	}
	if n <= 0 {
		return 0, dErrors.New(dErrors.CodeValidation, what+" must be positive")
	}
	return n, nil
}

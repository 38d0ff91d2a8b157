package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	t.Run("matches direct code", func(t *testing.T) {
		err := New(CodeInvalidFilter, "column not filterable")
		assert.True(t, HasCode(err, CodeInvalidFilter))
		assert.False(t, HasCode(err, CodeInvalidSort))
	})

	t.Run("matches through fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("execute: %w", New(CodeUnknownTable, "unknown table"))
		assert.True(t, HasCode(err, CodeUnknownTable))
	})

	t.Run("matches nested domain errors", func(t *testing.T) {
		inner := New(CodeUnknownSource, "source 9 does not exist")
		outer := Wrap(inner, CodeValidation, "invalid data point")
		assert.True(t, HasCode(outer, CodeValidation))
		assert.True(t, HasCode(outer, CodeUnknownSource))
		assert.Equal(t, CodeValidation, CodeOf(outer))
	})

	t.Run("plain errors have no code", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("boom"), CodeInternal))
		assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	})
}

func TestWrap(t *testing.T) {
	assert.NoError(t, Wrap(nil, CodeInternal, "unused"))

	base := errors.New("disk full")
	err := Wrap(base, CodeInternal, "save source")
	require.Error(t, err)
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "save source: disk full", err.Error())
	assert.Equal(t, "save source", MessageOf(err))
}

func TestStatus(t *testing.T) {
	cases := map[Code]int{
		CodeValidation:           http.StatusBadRequest,
		CodeInvalidFilter:        http.StatusBadRequest,
		CodeUnknownTable:         http.StatusNotFound,
		CodeReferentialIntegrity: http.StatusConflict,
		CodeExportTooLarge:       http.StatusRequestEntityTooLarge,
		CodeRateLimited:          http.StatusTooManyRequests,
		CodeInternal:             http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, Status(code), string(code))
	}
}

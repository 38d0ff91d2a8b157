package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "explorer/pkg/domain-errors"
)

func TestParseEnums(t *testing.T) {
	t.Run("category is case-insensitive", func(t *testing.T) {
		c, err := ParseSourceCategory(" NGO ")
		require.NoError(t, err)
		assert.Equal(t, CategoryNGO, c)
	})

	t.Run("unknown category is a validation error", func(t *testing.T) {
		_, err := ParseSourceCategory("blog")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("empty tier is rejected", func(t *testing.T) {
		_, err := ParseTrustTier("")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("all statuses parse", func(t *testing.T) {
		for _, s := range []string{"verified", "unverified", "contested", "retracted"} {
			v, err := ParseVerificationStatus(s)
			require.NoError(t, err)
			assert.Equal(t, s, v.String())
		}
	})
}

func TestParseIDs(t *testing.T) {
	tests := []struct {
		input   string
		want    SourceID
		wantErr bool
	}{
		{input: "42", want: 42},
		{input: " 7 ", want: 7},
		{input: "", wantErr: true},
		{input: "0", wantErr: true},
		{input: "-3", wantErr: true},
		{input: "abc", wantErr: true},
		{input: "1; DROP TABLE sources", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			id, err := ParseSourceID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)
			assert.False(t, id.IsNil())
		})
	}
}

func TestDates(t *testing.T) {
	d, err := ParseDate("last_verified", " 2025-03-09 ")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-09", FormatDate(d))
	assert.Equal(t, "2025-03-09", NullableDate(&d))
	assert.Nil(t, NullableDate(nil))

	_, err = ParseDate("last_verified", "03/09/2025")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "last_verified")
}

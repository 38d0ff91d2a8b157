package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrimLower(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{"nil slice", nil, nil},
		{"empty slice", []string{}, []string{}},
		{"tier list from config", []string{" Low", "contested ", "LOW"}, []string{"low", "contested"}},
		{"blank entries dropped", []string{"", "  ", "medium"}, []string{"medium"}},
		{"only blanks", []string{" ", ""}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeAndTrimLower(tt.input))
		})
	}
}

func TestDedupe(t *testing.T) {
	assert.Nil(t, Dedupe[int64](nil))
	assert.Equal(t, []int64{3, 1, 2}, Dedupe([]int64{3, 1, 3, 2, 1}))
	assert.Equal(t, []int64{0, 5}, Dedupe([]int64{0, 5, 0}), "zero values are ordinary elements")
	assert.Equal(t, []string{"ice", "trac"}, Dedupe([]string{"ice", "trac", "ice"}))
}

package trust

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"explorer/pkg/domain"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name  string
		facts Facts
		want  Badge
	}{
		{
			name:  "retraction beats everything",
			facts: Facts{Tier: domain.TierHigh, Status: domain.StatusRetracted, OpenContradiction: true},
			want:  BadgeUnverified,
		},
		{
			name:  "open contradiction beats a verified high tier source",
			facts: Facts{Tier: domain.TierHigh, Status: domain.StatusVerified, OpenContradiction: true},
			want:  BadgeContested,
		},
		{
			name:  "high tier and verified",
			facts: Facts{Tier: domain.TierHigh, Category: domain.CategoryGovernment, Status: domain.StatusVerified},
			want:  BadgeVerified,
		},
		{
			name:  "uncorroborated government figure",
			facts: Facts{Tier: domain.TierMedium, Category: domain.CategoryGovernment, Status: domain.StatusVerified},
			want:  BadgeGovernmentOnly,
		},
		{
			name:  "corroborated government figure",
			facts: Facts{Tier: domain.TierMedium, Category: domain.CategoryGovernment, Status: domain.StatusVerified, CrossReferences: 2},
			want:  BadgeUnverified,
		},
		{
			name:  "medium tier ngo",
			facts: Facts{Tier: domain.TierMedium, Category: domain.CategoryNGO, Status: domain.StatusVerified},
			want:  BadgeUnverified,
		},
		{
			name:  "high tier but unverified",
			facts: Facts{Tier: domain.TierHigh, Category: domain.CategoryAcademic, Status: domain.StatusUnverified},
			want:  BadgeUnverified,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(tt.facts))
			assert.Equal(t, Score(tt.facts), Score(tt.facts))
		})
	}
}

func TestPercentVerified(t *testing.T) {
	assert.Zero(t, PercentVerified(nil))
	assert.InDelta(t, 50.0, PercentVerified([]Badge{BadgeVerified, BadgeContested}), 1e-9)
	assert.InDelta(t, 100.0, PercentVerified([]Badge{BadgeVerified}), 1e-9)
	assert.InDelta(t, 25.0, PercentVerified([]Badge{BadgeVerified, BadgeUnverified, BadgeGovernmentOnly, BadgeUnverified}), 1e-9)
}

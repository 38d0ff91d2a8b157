package resolver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"explorer/internal/contradiction/models"
	"explorer/pkg/domain"
	dErrors "explorer/pkg/domain-errors"
)

var identified = time.Date(2025, 12, 20, 0, 0, 0, 0, time.UTC)

func deathsInput() Input {
	return Input{
		MetricName:     "Deaths in Custody (2025)",
		MetricCategory: "Deaths",
		DataPointID:    7,
		Government:     Claim{Figure: "10", SourceID: 1, Tier: domain.TierMedium},
		Independent:    Claim{Figure: "32", SourceID: 2, Tier: domain.TierHigh},
		Date:           identified,
	}
}

func TestResolve(t *testing.T) {
	policy := DefaultPolicy()

	t.Run("trusted independent figure is recommended", func(t *testing.T) {
		c := policy.Resolve(deathsInput(), nil)
		assert.Equal(t, "32", c.RecommendedFigure)
		assert.False(t, c.UseWithCaution)
		assert.Equal(t, models.StatusOpen, c.Status)
		assert.Equal(t, models.SeverityCritical, c.Severity)
		assert.Equal(t, "10", c.GovernmentClaim)
		assert.Equal(t, "32", c.IndependentFinding)
		assert.Contains(t, c.DiscrepancyExplanation, "reports 10")
	})

	t.Run("untrusted independent falls back to corroboration", func(t *testing.T) {
		in := deathsInput()
		in.Independent.Tier = domain.TierLow
		in.Government.Support = 2
		in.Independent.Support = 1
		c := policy.Resolve(in, nil)
		assert.Equal(t, "10", c.RecommendedFigure)
		assert.False(t, c.UseWithCaution)

		in.Independent.Support = 3
		c = policy.Resolve(in, nil)
		assert.Equal(t, "32", c.RecommendedFigure)
	})

	t.Run("tie keeps the government figure with caution", func(t *testing.T) {
		in := deathsInput()
		in.Independent.Tier = domain.TierContested
		c := policy.Resolve(in, nil)
		assert.Equal(t, "10", c.RecommendedFigure)
		assert.True(t, c.UseWithCaution)
		assert.Contains(t, c.RecommendationRationale, "use with caution")
	})

	t.Run("tie break is configurable", func(t *testing.T) {
		p, err := NewPolicy([]string{"low", "contested"}, "independent")
		require.NoError(t, err)
		in := deathsInput()
		in.Independent.Tier = domain.TierLow
		c := p.Resolve(in, nil)
		assert.Equal(t, "32", c.RecommendedFigure)
		assert.True(t, c.UseWithCaution)
	})

	t.Run("independent claim without a source is untrusted", func(t *testing.T) {
		in := deathsInput()
		in.Independent.SourceID = 0
		in.Independent.Tier = ""
		c := policy.Resolve(in, nil)
		assert.Equal(t, "10", c.RecommendedFigure)
		assert.Contains(t, c.RecommendationRationale, "unrated")
	})

	t.Run("supersedes the open contradiction", func(t *testing.T) {
		prior := &models.Contradiction{
			ID:                     4,
			MetricName:             "Deaths in Custody (2025)",
			DiscrepancyExplanation: "Narrow definition excludes contractor facilities",
			Status:                 models.StatusOpen,
			DateIdentified:         time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		}
		in := deathsInput()
		in.Independent.Figure = "33"
		c := policy.Resolve(in, prior)
		assert.Equal(t, domain.ContradictionID(4), c.ID)
		assert.Equal(t, prior.DateIdentified, c.DateIdentified)
		assert.Equal(t, prior.DiscrepancyExplanation, c.DiscrepancyExplanation)
		assert.Equal(t, "33", c.RecommendedFigure)

		in.Notes = "Guardian count updated"
		c = policy.Resolve(in, prior)
		assert.Equal(t, "Guardian count updated", c.DiscrepancyExplanation)
	})

	t.Run("resolved prior is not reused", func(t *testing.T) {
		prior := &models.Contradiction{ID: 4, Status: models.StatusResolved}
		c := policy.Resolve(deathsInput(), prior)
		assert.True(t, c.ID.IsNil())
		assert.Equal(t, identified, c.DateIdentified)
	})

	t.Run("is deterministic", func(t *testing.T) {
		assert.Equal(t, policy.Resolve(deathsInput(), nil), policy.Resolve(deathsInput(), nil))
	})
}

func TestSeverity(t *testing.T) {
	tests := []struct {
		gov, ind string
		want     models.Severity
	}{
		{"100", "110", models.SeverityMinor},
		{"100", "150", models.SeveritySignificant},
		{"$17,121", "$35,000", models.SeverityMajor},
		{"10", "32", models.SeverityCritical},
		{"0", "4", models.SeverityCritical},
		{"Meets standards", "Widespread violations", models.SeverityMajor},
	}
	for _, tt := range tests {
		t.Run(tt.gov+" vs "+tt.ind, func(t *testing.T) {
			assert.Equal(t, tt.want, Severity(tt.gov, tt.ind))
		})
	}
}

func TestNewPolicy(t *testing.T) {
	p, err := NewPolicy([]string{"LOW", "low"}, "")
	require.NoError(t, err)
	assert.Equal(t, []domain.TrustTier{domain.TierLow}, p.UntrustedTiers)
	assert.Equal(t, TieBreakGovernment, p.TieBreak)

	_, err = NewPolicy([]string{"shaky"}, "government")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = NewPolicy(nil, "coin-flip")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

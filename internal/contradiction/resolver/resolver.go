// Package resolver decides which of two disagreeing figures to recommend.
// Everything here is a pure function of its inputs; persistence belongs to
// the contradiction service.
package resolver

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"explorer/internal/contradiction/models"
	"explorer/internal/figures"
	"explorer/pkg/domain"
	dErrors "explorer/pkg/domain-errors"
)

// TieBreak picks the side recommended when corroboration is even.
type TieBreak string

const (
	TieBreakGovernment  TieBreak = "government"
	TieBreakIndependent TieBreak = "independent"
)

// Policy configures the recommendation.
type Policy struct {
	// UntrustedTiers disqualify the independent figure from being preferred outright.
	UntrustedTiers []domain.TrustTier
	TieBreak       TieBreak
}

// DefaultPolicy distrusts low and contested independent sources and keeps
// the government figure on a tie.
func DefaultPolicy() Policy {
	return Policy{
		UntrustedTiers: []domain.TrustTier{domain.TierLow, domain.TierContested},
		TieBreak:       TieBreakGovernment,
	}
}

// NewPolicy parses configured tier names and tie-break side.
func NewPolicy(untrusted []string, tieBreak string) (Policy, error) {
	p := Policy{}
	for _, raw := range untrusted {
		tier, err := domain.ParseTrustTier(raw)
		if err != nil {
			return Policy{}, err
		}
		if !slices.Contains(p.UntrustedTiers, tier) {
			p.UntrustedTiers = append(p.UntrustedTiers, tier)
		}
	}
	switch TieBreak(strings.ToLower(strings.TrimSpace(tieBreak))) {
	case "", TieBreakGovernment:
		p.TieBreak = TieBreakGovernment
	case TieBreakIndependent:
		p.TieBreak = TieBreakIndependent
	default:
		return Policy{}, dErrors.New(dErrors.CodeValidation, "invalid tie_break: "+tieBreak)
	}
	return p, nil
}

func (p Policy) untrusted(tier domain.TrustTier) bool {
	return tier == "" || slices.Contains(p.UntrustedTiers, tier)
}

// Claim is one side of a disagreement. Support counts the cross-references
// from sources on the same side (government category for the government
// claim, any other category for the independent one).
type Claim struct {
	Figure   string
	SourceID domain.SourceID
	Tier     domain.TrustTier
	Support  int
}

// Input is the dual-figure state of a data point at write time.
type Input struct {
	MetricName     string
	MetricCategory string
	DataPointID    domain.DataPointID
	Government     Claim
	Independent    Claim
	Notes          string
	Date           time.Time
}

// Resolve builds the open contradiction for in. When prior is the currently
// open contradiction for the same metric, the result supersedes it: it keeps
// the prior ID and identification date and, absent new notes, its
// explanation.
func (p Policy) Resolve(in Input, prior *models.Contradiction) models.Contradiction {
	c := models.Contradiction{
		MetricName:          in.MetricName,
		MetricCategory:      in.MetricCategory,
		DataPointID:         in.DataPointID,
		GovernmentClaim:     strings.TrimSpace(in.Government.Figure),
		GovernmentSourceID:  in.Government.SourceID,
		IndependentFinding:  strings.TrimSpace(in.Independent.Figure),
		IndependentSourceID: in.Independent.SourceID,
		Severity:            Severity(in.Government.Figure, in.Independent.Figure),
		Status:              models.StatusOpen,
		DateIdentified:      in.Date,
	}
	c.DiscrepancyExplanation = strings.TrimSpace(in.Notes)
	if prior != nil && prior.IsOpen() {
		c.ID = prior.ID
		c.DateIdentified = prior.DateIdentified
		if c.DiscrepancyExplanation == "" {
			c.DiscrepancyExplanation = prior.DiscrepancyExplanation
		}
	}
	if c.DiscrepancyExplanation == "" {
		c.DiscrepancyExplanation = fmt.Sprintf("Government source reports %s; independent source reports %s.",
			c.GovernmentClaim, c.IndependentFinding)
	}
	c.RecommendedFigure, c.RecommendationRationale, c.UseWithCaution = p.recommend(in)
	return c
}

func (p Policy) recommend(in Input) (figure, rationale string, caution bool) {
	gov, ind := in.Government, in.Independent
	tier := string(ind.Tier)
	if tier == "" {
		tier = "unrated"
	}
	if !p.untrusted(ind.Tier) {
		return strings.TrimSpace(ind.Figure),
			fmt.Sprintf("Independent source is rated %s; independent figure preferred.", tier),
			false
	}
	switch {
	case ind.Support > gov.Support:
		return strings.TrimSpace(ind.Figure),
			fmt.Sprintf("Independent source is rated %s but its figure has more corroborating cross-references (%d vs %d).",
				tier, ind.Support, gov.Support),
			false
	case gov.Support > ind.Support:
		return strings.TrimSpace(gov.Figure),
			fmt.Sprintf("Independent source is rated %s and the government figure has more corroborating cross-references (%d vs %d).",
				tier, gov.Support, ind.Support),
			false
	}
	side, fig := TieBreakGovernment, gov.Figure
	if p.TieBreak == TieBreakIndependent {
		side, fig = TieBreakIndependent, ind.Figure
	}
	return strings.TrimSpace(fig),
		fmt.Sprintf("Independent source is rated %s and corroboration is tied (%d each); %s figure kept, use with caution.",
			tier, gov.Support, side),
		true
}

// Severity grades a disagreement by the ratio of the two figures. Figures
// that are not both numeric are graded major.
func Severity(government, independent string) models.Severity {
	ratio, ok := figures.Ratio(government, independent)
	switch {
	case !ok:
		return models.SeverityMajor
	case math.IsInf(ratio, 1) || ratio >= 3:
		return models.SeverityCritical
	case ratio >= 2:
		return models.SeverityMajor
	case ratio >= 1.25:
		return models.SeveritySignificant
	default:
		return models.SeverityMinor
	}
}

// Package trust computes the confidence badge shown next to every data point.
// Score is the single rule used by the write path (stamping trust_badge) and
// by every read path (live badges), so the two never disagree.
package trust

import (
	"explorer/pkg/domain"
)

// Badge is the user-facing confidence label.
type Badge string

const (
	BadgeVerified       Badge = "VERIFIED"
	BadgeContested      Badge = "CONTESTED"
	BadgeGovernmentOnly Badge = "GOVERNMENT_ONLY"
	BadgeUnverified     Badge = "UNVERIFIED"
)

func (b Badge) String() string { return string(b) }

// Facts is everything the badge depends on.
type Facts struct {
	Tier              domain.TrustTier
	Category          domain.SourceCategory
	Status            domain.VerificationStatus
	OpenContradiction bool
	CrossReferences   int
}

// Score applies the badge rules in order; the first match wins.
func Score(f Facts) Badge {
	switch {
	case f.Status == domain.StatusRetracted:
		return BadgeUnverified
	case f.OpenContradiction:
		return BadgeContested
	case f.Tier == domain.TierHigh && f.Status == domain.StatusVerified:
		return BadgeVerified
	case f.Category.IsGovernment() && f.CrossReferences == 0:
		return BadgeGovernmentOnly
	default:
		return BadgeUnverified
	}
}

// PercentVerified is the share of VERIFIED badges, 0..100. An empty set is 0.
func PercentVerified(badges []Badge) float64 {
	if len(badges) == 0 {
		return 0
	}
	verified := 0
	for _, b := range badges {
		if b == BadgeVerified {
			verified++
		}
	}
	return float64(verified) * 100 / float64(len(badges))
}

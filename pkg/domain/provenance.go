package domain

import (
	"strings"

	dErrors "explorer/pkg/domain-errors"
)

// SourceCategory classifies who publishes a source.
// Invariant: the value is one of the enumerated categories.
type SourceCategory string

const (
	CategoryGovernment SourceCategory = "government"
	CategoryNGO        SourceCategory = "ngo"
	CategoryAcademic   SourceCategory = "academic"
	CategoryMedia      SourceCategory = "media"
	CategoryLegal      SourceCategory = "legal"
)

var validCategories = map[SourceCategory]bool{
	CategoryGovernment: true,
	CategoryNGO:        true,
	CategoryAcademic:   true,
	CategoryMedia:      true,
	CategoryLegal:      true,
}

// ParseSourceCategory constructs a SourceCategory from external input.
// Matching is case-insensitive; the result is always lower case.
func ParseSourceCategory(s string) (SourceCategory, error) {
	c := SourceCategory(strings.ToLower(strings.TrimSpace(s)))
	if c == "" {
		return "", dErrors.New(dErrors.CodeValidation, "category is required")
	}
	if !c.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "invalid category: "+s)
	}
	return c, nil
}

func (c SourceCategory) IsValid() bool  { return validCategories[c] }
func (c SourceCategory) String() string { return string(c) }

// IsGovernment reports whether figures from this category count as official.
func (c SourceCategory) IsGovernment() bool { return c == CategoryGovernment }

// TrustTier is the editorial trust classification of a source.
type TrustTier string

const (
	TierHigh      TrustTier = "high"
	TierMedium    TrustTier = "medium"
	TierLow       TrustTier = "low"
	TierContested TrustTier = "contested"
)

var validTiers = map[TrustTier]bool{
	TierHigh:      true,
	TierMedium:    true,
	TierLow:       true,
	TierContested: true,
}

// ParseTrustTier constructs a TrustTier from external input.
func ParseTrustTier(s string) (TrustTier, error) {
	t := TrustTier(strings.ToLower(strings.TrimSpace(s)))
	if t == "" {
		return "", dErrors.New(dErrors.CodeValidation, "trust_tier is required")
	}
	if !t.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "invalid trust_tier: "+s)
	}
	return t, nil
}

func (t TrustTier) IsValid() bool  { return validTiers[t] }
func (t TrustTier) String() string { return string(t) }

// VerificationStatus tracks editorial verification of a data point.
type VerificationStatus string

const (
	StatusVerified   VerificationStatus = "verified"
	StatusUnverified VerificationStatus = "unverified"
	StatusContested  VerificationStatus = "contested"
	StatusRetracted  VerificationStatus = "retracted"
)

var validStatuses = map[VerificationStatus]bool{
	StatusVerified:   true,
	StatusUnverified: true,
	StatusContested:  true,
	StatusRetracted:  true,
}

// ParseVerificationStatus constructs a VerificationStatus from external input.
func ParseVerificationStatus(s string) (VerificationStatus, error) {
	v := VerificationStatus(strings.ToLower(strings.TrimSpace(s)))
	if v == "" {
		return "", dErrors.New(dErrors.CodeValidation, "verification_status is required")
	}
	if !v.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "invalid verification_status: "+s)
	}
	return v, nil
}

func (v VerificationStatus) IsValid() bool  { return validStatuses[v] }
func (v VerificationStatus) String() string { return string(v) }

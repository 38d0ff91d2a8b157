package models

import (
	"net/url"
	"strings"
	"time"

	"explorer/pkg/domain"
	dErrors "explorer/pkg/domain-errors"
)

// Source is a citation entity. Once a data point references it, only the
// re-verification fields (last_verified, verification_notes, archive_url)
// change; every change bumps Version and is kept in source_versions.
type Source struct {
	ID                domain.SourceID       `json:"id"`
	Name              string                `json:"name"`
	Category          domain.SourceCategory `json:"category"`
	TrustTier         domain.TrustTier      `json:"trust_tier"`
	URL               string                `json:"url"`
	ArchiveURL        *string               `json:"archive_url,omitempty"`
	LastVerified      *time.Time            `json:"last_verified,omitempty"`
	VerificationNotes string                `json:"verification_notes"`
	KnownLimitations  string                `json:"known_limitations"`
	// Derived marks figures computed in-house (aggregations, imputations);
	// they have no external URL.
	Derived   bool       `json:"derived"`
	Version   int        `json:"version"`
	RetiredAt *time.Time `json:"retired_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// IsRetired reports whether the source was withdrawn from use.
func (s *Source) IsRetired() bool {
	return s.RetiredAt != nil
}

// Validate enforces registration invariants.
func (s *Source) Validate() error {
	s.Name = strings.TrimSpace(s.Name)
	s.URL = strings.TrimSpace(s.URL)
	if s.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	if len(s.Name) > 300 {
		return dErrors.New(dErrors.CodeValidation, "name must be at most 300 characters")
	}
	if !s.Category.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "invalid category: "+string(s.Category))
	}
	if !s.TrustTier.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "invalid trust_tier: "+string(s.TrustTier))
	}
	if s.URL == "" && !s.Derived {
		return dErrors.New(dErrors.CodeValidation, "url is required for sources that are not derived")
	}
	if s.URL != "" {
		if err := validateURL("url", s.URL); err != nil {
			return err
		}
	}
	if s.ArchiveURL != nil {
		if err := validateURL("archive_url", *s.ArchiveURL); err != nil {
			return err
		}
	}
	return nil
}

func validateURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return dErrors.New(dErrors.CodeValidation, field+" must be an absolute http(s) URL")
	}
	return nil
}

// Reverification records a fresh check of a source.
type Reverification struct {
	Date       time.Time
	Notes      string
	ArchiveURL *string
}

// Validate checks the reverification request.
func (r *Reverification) Validate() error {
	if r.Date.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "date is required")
	}
	if r.ArchiveURL != nil {
		return validateURL("archive_url", *r.ArchiveURL)
	}
	return nil
}

// ListFilter narrows List. Nil fields match everything.
type ListFilter struct {
	Category       *domain.SourceCategory
	Tier           *domain.TrustTier
	IncludeRetired bool
}

// Version is one audited snapshot of a source.
type Version struct {
	SourceID  domain.SourceID `json:"source_id"`
	Version   int             `json:"version"`
	Snapshot  Source          `json:"snapshot"`
	Reason    string          `json:"reason"`
	ChangedAt time.Time       `json:"changed_at"`
}

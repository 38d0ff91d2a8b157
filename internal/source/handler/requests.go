package handler

import (
	"strings"
	"time"

	"explorer/internal/source/models"
	"explorer/pkg/domain"
	dErrors "explorer/pkg/domain-errors"
)

// RegisterSourceRequest is the body of POST /admin/sources.
type RegisterSourceRequest struct {
	Name              string  `json:"name"`
	Category          string  `json:"category"`
	TrustTier         string  `json:"trust_tier"`
	URL               string  `json:"url"`
	ArchiveURL        *string `json:"archive_url,omitempty"`
	LastVerified      string  `json:"last_verified,omitempty"`
	VerificationNotes string  `json:"verification_notes,omitempty"`
	KnownLimitations  string  `json:"known_limitations,omitempty"`
	Derived           bool    `json:"derived,omitempty"`

	source models.Source
}

// Validate parses enumerations and dates into the domain model.
func (r *RegisterSourceRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	category, err := domain.ParseSourceCategory(r.Category)
	if err != nil {
		return err
	}
	tier, err := domain.ParseTrustTier(r.TrustTier)
	if err != nil {
		return err
	}
	r.source = models.Source{
		Name:              r.Name,
		Category:          category,
		TrustTier:         tier,
		URL:               r.URL,
		ArchiveURL:        r.ArchiveURL,
		VerificationNotes: strings.TrimSpace(r.VerificationNotes),
		KnownLimitations:  strings.TrimSpace(r.KnownLimitations),
		Derived:           r.Derived,
	}
	if r.LastVerified != "" {
		d, err := domain.ParseDate("last_verified", r.LastVerified)
		if err != nil {
			return err
		}
		r.source.LastVerified = &d
	}
	return r.source.Validate()
}

// Source returns the parsed source.
func (r *RegisterSourceRequest) Source() models.Source {
	return r.source
}

// ReverifyRequest is the body of POST /admin/sources/{id}/reverify.
type ReverifyRequest struct {
	Date       string  `json:"date"`
	Notes      string  `json:"notes"`
	ArchiveURL *string `json:"archive_url,omitempty"`

	parsed models.Reverification
}

func (r *ReverifyRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	d, err := domain.ParseDate("date", r.Date)
	if err != nil {
		return err
	}
	r.parsed = models.Reverification{Date: d, Notes: r.Notes, ArchiveURL: r.ArchiveURL}
	return r.parsed.Validate()
}

func (r *ReverifyRequest) Reverification() models.Reverification {
	return r.parsed
}

// SourceResponse is the wire form of a source.
type SourceResponse struct {
	ID                int64   `json:"id"`
	Name              string  `json:"name"`
	Category          string  `json:"category"`
	TrustTier         string  `json:"trust_tier"`
	URL               string  `json:"url"`
	ArchiveURL        *string `json:"archive_url,omitempty"`
	LastVerified      *string `json:"last_verified,omitempty"`
	VerificationNotes string  `json:"verification_notes"`
	KnownLimitations  string  `json:"known_limitations"`
	Derived           bool    `json:"derived"`
	Version           int     `json:"version"`
	Retired           bool    `json:"retired"`
	UpdatedAt         string  `json:"updated_at"`
}

func toResponse(s *models.Source) SourceResponse {
	resp := SourceResponse{
		ID:                int64(s.ID),
		Name:              s.Name,
		Category:          string(s.Category),
		TrustTier:         string(s.TrustTier),
		URL:               s.URL,
		ArchiveURL:        s.ArchiveURL,
		VerificationNotes: s.VerificationNotes,
		KnownLimitations:  s.KnownLimitations,
		Derived:           s.Derived,
		Version:           s.Version,
		Retired:           s.IsRetired(),
		UpdatedAt:         s.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if s.LastVerified != nil {
		d := domain.FormatDate(*s.LastVerified)
		resp.LastVerified = &d
	}
	return resp
}

// VersionResponse is one entry of GET /sources/{id}/history.
type VersionResponse struct {
	Version   int            `json:"version"`
	Reason    string         `json:"reason"`
	ChangedAt string         `json:"changed_at"`
	Snapshot  SourceResponse `json:"snapshot"`
}

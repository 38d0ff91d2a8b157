package models

import (
	"slices"
	"strings"
	"time"

	"explorer/internal/figures"
	"explorer/pkg/domain"
	dErrors "explorer/pkg/domain-errors"
)

// DataPoint is one reported figure with its provenance. When both the
// government and the independent figure are present and disagree, the row is
// contested and an open contradiction exists for its metric.
type DataPoint struct {
	ID                  domain.DataPointID        `json:"id"`
	MetricName          string                    `json:"metric_name"`
	MetricCategory      string                    `json:"metric_category"`
	Value               string                    `json:"value"`
	ValueNumeric        *float64                  `json:"value_numeric,omitempty"`
	Unit                string                    `json:"unit"`
	DateReported        *time.Time                `json:"date_reported,omitempty"`
	DateRetrieved       *time.Time                `json:"date_retrieved,omitempty"`
	PrimarySourceID     domain.SourceID           `json:"primary_source_id"`
	VerificationStatus  domain.VerificationStatus `json:"verification_status"`
	CrossReferences     []domain.SourceID         `json:"cross_references"`
	GovernmentFigure    *string                   `json:"government_figure,omitempty"`
	IndependentFigure   *string                   `json:"independent_figure,omitempty"`
	GovernmentSourceID  domain.SourceID           `json:"government_source_id,omitempty"`
	IndependentSourceID domain.SourceID           `json:"independent_source_id,omitempty"`
	DiscrepancyNotes    string                    `json:"discrepancy_notes"`
	MethodologyNotes    string                    `json:"methodology_notes"`
	Caveats             string                    `json:"caveats"`
	TrustBadge          string                    `json:"trust_badge"`
	CreatedAt           time.Time                 `json:"created_at"`
	UpdatedAt           time.Time                 `json:"updated_at"`
}

// Validate normalises free text and checks the write invariants that do not
// need the store.
func (d *DataPoint) Validate() error {
	d.MetricName = strings.TrimSpace(d.MetricName)
	d.MetricCategory = strings.TrimSpace(d.MetricCategory)
	d.Value = strings.TrimSpace(d.Value)
	d.Unit = strings.TrimSpace(d.Unit)
	d.GovernmentFigure = trimmedOrNil(d.GovernmentFigure)
	d.IndependentFigure = trimmedOrNil(d.IndependentFigure)

	if d.MetricName == "" {
		return dErrors.New(dErrors.CodeValidation, "metric_name is required")
	}
	if len(d.MetricName) > 300 {
		return dErrors.New(dErrors.CodeValidation, "metric_name must be at most 300 characters")
	}
	if d.Value == "" {
		return dErrors.New(dErrors.CodeValidation, "value is required")
	}
	if d.PrimarySourceID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "primary_source_id is required")
	}
	if d.VerificationStatus == "" {
		d.VerificationStatus = domain.StatusUnverified
	}
	if !d.VerificationStatus.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "invalid verification_status: "+string(d.VerificationStatus))
	}
	for _, id := range d.CrossReferences {
		if id.IsNil() {
			return dErrors.New(dErrors.CodeValidation, "cross_references must hold positive source ids")
		}
	}
	if d.DateReported != nil && d.DateRetrieved != nil && d.DateRetrieved.Before(*d.DateReported) {
		return dErrors.New(dErrors.CodeValidation, "date_retrieved cannot precede date_reported")
	}
	return nil
}

// HasBothFigures reports whether the government and independent figures are both set.
func (d *DataPoint) HasBothFigures() bool {
	return d.GovernmentFigure != nil && d.IndependentFigure != nil
}

// Divergent reports whether both figures are present and disagree.
func (d *DataPoint) Divergent() bool {
	return d.HasBothFigures() && figures.Diverge(*d.GovernmentFigure, *d.IndependentFigure)
}

// ReferencedSources lists every source the row cites, primary first.
func (d *DataPoint) ReferencedSources() []domain.SourceID {
	ids := []domain.SourceID{d.PrimarySourceID}
	ids = append(ids, d.CrossReferences...)
	for _, id := range []domain.SourceID{d.GovernmentSourceID, d.IndependentSourceID} {
		if !id.IsNil() {
			ids = append(ids, id)
		}
	}
	return ids
}

// Clone returns a deep copy.
func (d *DataPoint) Clone() *DataPoint {
	c := *d
	c.CrossReferences = slices.Clone(d.CrossReferences)
	c.ValueNumeric = clonePtr(d.ValueNumeric)
	c.DateReported = clonePtr(d.DateReported)
	c.DateRetrieved = clonePtr(d.DateRetrieved)
	c.GovernmentFigure = clonePtr(d.GovernmentFigure)
	c.IndependentFigure = clonePtr(d.IndependentFigure)
	return &c
}

// Patch is a partial correction. Nil fields are left unchanged; an empty
// figure string clears that figure.
type Patch struct {
	MetricName          *string
	MetricCategory      *string
	Value               *string
	ValueNumeric        *float64
	Unit                *string
	DateReported        *time.Time
	DateRetrieved       *time.Time
	PrimarySourceID     *domain.SourceID
	VerificationStatus  *domain.VerificationStatus
	CrossReferences     *[]domain.SourceID
	GovernmentFigure    *string
	IndependentFigure   *string
	GovernmentSourceID  *domain.SourceID
	IndependentSourceID *domain.SourceID
	DiscrepancyNotes    *string
	MethodologyNotes    *string
	Caveats             *string
	// Reason is recorded in the changelog.
	Reason string
}

// Apply merges the patch into d. A new Value without an explicit
// ValueNumeric drops the stored number so it is derived again.
func (p Patch) Apply(d *DataPoint) {
	setIf(&d.MetricName, p.MetricName)
	setIf(&d.MetricCategory, p.MetricCategory)
	if p.Value != nil {
		if *p.Value != d.Value && p.ValueNumeric == nil {
			d.ValueNumeric = nil
		}
		d.Value = *p.Value
	}
	if p.ValueNumeric != nil {
		v := *p.ValueNumeric
		d.ValueNumeric = &v
	}
	setIf(&d.Unit, p.Unit)
	if p.DateReported != nil {
		d.DateReported = clonePtr(p.DateReported)
	}
	if p.DateRetrieved != nil {
		d.DateRetrieved = clonePtr(p.DateRetrieved)
	}
	setIf(&d.PrimarySourceID, p.PrimarySourceID)
	setIf(&d.VerificationStatus, p.VerificationStatus)
	if p.CrossReferences != nil {
		d.CrossReferences = slices.Clone(*p.CrossReferences)
	}
	if p.GovernmentFigure != nil {
		d.GovernmentFigure = trimmedOrNil(p.GovernmentFigure)
	}
	if p.IndependentFigure != nil {
		d.IndependentFigure = trimmedOrNil(p.IndependentFigure)
	}
	setIf(&d.GovernmentSourceID, p.GovernmentSourceID)
	setIf(&d.IndependentSourceID, p.IndependentSourceID)
	setIf(&d.DiscrepancyNotes, p.DiscrepancyNotes)
	setIf(&d.MethodologyNotes, p.MethodologyNotes)
	setIf(&d.Caveats, p.Caveats)
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.MetricName == nil && p.MetricCategory == nil && p.Value == nil &&
		p.ValueNumeric == nil && p.Unit == nil && p.DateReported == nil &&
		p.DateRetrieved == nil && p.PrimarySourceID == nil && p.VerificationStatus == nil &&
		p.CrossReferences == nil && p.GovernmentFigure == nil && p.IndependentFigure == nil &&
		p.GovernmentSourceID == nil && p.IndependentSourceID == nil &&
		p.DiscrepancyNotes == nil && p.MethodologyNotes == nil && p.Caveats == nil
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

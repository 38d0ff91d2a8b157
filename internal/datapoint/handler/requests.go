package handler

import (
	"time"

	"explorer/internal/changelog"
	cmodels "explorer/internal/contradiction/models"
	"explorer/internal/datapoint/models"
	"explorer/internal/datapoint/service"
	"explorer/pkg/domain"
	dErrors "explorer/pkg/domain-errors"
)

// RecordRequest is the body of POST /admin/data-points.
type RecordRequest struct {
	MetricName          string   `json:"metric_name"`
	MetricCategory      string   `json:"metric_category,omitempty"`
	Value               string   `json:"value"`
	ValueNumeric        *float64 `json:"value_numeric,omitempty"`
	Unit                string   `json:"unit,omitempty"`
	DateReported        string   `json:"date_reported,omitempty"`
	DateRetrieved       string   `json:"date_retrieved,omitempty"`
	PrimarySourceID     int64    `json:"primary_source_id"`
	VerificationStatus  string   `json:"verification_status,omitempty"`
	CrossReferences     []int64  `json:"cross_references,omitempty"`
	GovernmentFigure    *string  `json:"government_figure,omitempty"`
	IndependentFigure   *string  `json:"independent_figure,omitempty"`
	GovernmentSourceID  int64    `json:"government_source_id,omitempty"`
	IndependentSourceID int64    `json:"independent_source_id,omitempty"`
	DiscrepancyNotes    string   `json:"discrepancy_notes,omitempty"`
	MethodologyNotes    string   `json:"methodology_notes,omitempty"`
	Caveats             string   `json:"caveats,omitempty"`

	parsed models.DataPoint
}

func (r *RecordRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	dp := models.DataPoint{
		MetricName:          r.MetricName,
		MetricCategory:      r.MetricCategory,
		Value:               r.Value,
		ValueNumeric:        r.ValueNumeric,
		Unit:                r.Unit,
		PrimarySourceID:     domain.SourceID(r.PrimarySourceID),
		CrossReferences:     sourceIDs(r.CrossReferences),
		GovernmentFigure:    r.GovernmentFigure,
		IndependentFigure:   r.IndependentFigure,
		GovernmentSourceID:  domain.SourceID(r.GovernmentSourceID),
		IndependentSourceID: domain.SourceID(r.IndependentSourceID),
		DiscrepancyNotes:    r.DiscrepancyNotes,
		MethodologyNotes:    r.MethodologyNotes,
		Caveats:             r.Caveats,
	}
	if r.VerificationStatus != "" {
		status, err := domain.ParseVerificationStatus(r.VerificationStatus)
		if err != nil {
			return err
		}
		dp.VerificationStatus = status
	}
	var err error
	if dp.DateReported, err = optionalDate("date_reported", r.DateReported); err != nil {
		return err
	}
	if dp.DateRetrieved, err = optionalDate("date_retrieved", r.DateRetrieved); err != nil {
		return err
	}
	if err := dp.Validate(); err != nil {
		return err
	}
	r.parsed = dp
	return nil
}

func (r *RecordRequest) DataPoint() models.DataPoint {
	return r.parsed
}

// PatchRequest is the body of PATCH /admin/data-points/{id}. Absent fields
// are left unchanged.
type PatchRequest struct {
	MetricName          *string  `json:"metric_name,omitempty"`
	MetricCategory      *string  `json:"metric_category,omitempty"`
	Value               *string  `json:"value,omitempty"`
	ValueNumeric        *float64 `json:"value_numeric,omitempty"`
	Unit                *string  `json:"unit,omitempty"`
	DateReported        *string  `json:"date_reported,omitempty"`
	DateRetrieved       *string  `json:"date_retrieved,omitempty"`
	PrimarySourceID     *int64   `json:"primary_source_id,omitempty"`
	VerificationStatus  *string  `json:"verification_status,omitempty"`
	CrossReferences     *[]int64 `json:"cross_references,omitempty"`
	GovernmentFigure    *string  `json:"government_figure,omitempty"`
	IndependentFigure   *string  `json:"independent_figure,omitempty"`
	GovernmentSourceID  *int64   `json:"government_source_id,omitempty"`
	IndependentSourceID *int64   `json:"independent_source_id,omitempty"`
	DiscrepancyNotes    *string  `json:"discrepancy_notes,omitempty"`
	MethodologyNotes    *string  `json:"methodology_notes,omitempty"`
	Caveats             *string  `json:"caveats,omitempty"`
	Reason              string   `json:"reason"`

	parsed models.Patch
}

func (r *PatchRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	p := models.Patch{
		MetricName:        r.MetricName,
		MetricCategory:    r.MetricCategory,
		Value:             r.Value,
		ValueNumeric:      r.ValueNumeric,
		Unit:              r.Unit,
		GovernmentFigure:  r.GovernmentFigure,
		IndependentFigure: r.IndependentFigure,
		DiscrepancyNotes:  r.DiscrepancyNotes,
		MethodologyNotes:  r.MethodologyNotes,
		Caveats:           r.Caveats,
		Reason:            r.Reason,
	}
	if r.PrimarySourceID != nil {
		id := domain.SourceID(*r.PrimarySourceID)
		p.PrimarySourceID = &id
	}
	if r.GovernmentSourceID != nil {
		id := domain.SourceID(*r.GovernmentSourceID)
		p.GovernmentSourceID = &id
	}
	if r.IndependentSourceID != nil {
		id := domain.SourceID(*r.IndependentSourceID)
		p.IndependentSourceID = &id
	}
	if r.CrossReferences != nil {
		refs := sourceIDs(*r.CrossReferences)
		p.CrossReferences = &refs
	}
	if r.VerificationStatus != nil {
		status, err := domain.ParseVerificationStatus(*r.VerificationStatus)
		if err != nil {
			return err
		}
		p.VerificationStatus = &status
	}
	for _, d := range []struct {
		field string
		raw   *string
		dst   **time.Time
	}{
		{"date_reported", r.DateReported, &p.DateReported},
		{"date_retrieved", r.DateRetrieved, &p.DateRetrieved},
	} {
		if d.raw == nil {
			continue
		}
		t, err := domain.ParseDate(d.field, *d.raw)
		if err != nil {
			return err
		}
		*d.dst = &t
	}
	if p.IsEmpty() {
		return dErrors.New(dErrors.CodeValidation, "patch changes nothing")
	}
	r.parsed = p
	return nil
}

func (r *PatchRequest) Patch() models.Patch {
	return r.parsed
}

// DataPointResponse is the wire form of a data point.
type DataPointResponse struct {
	ID                  int64                  `json:"id"`
	MetricName          string                 `json:"metric_name"`
	MetricCategory      string                 `json:"metric_category"`
	Value               string                 `json:"value"`
	ValueNumeric        *float64               `json:"value_numeric"`
	Unit                string                 `json:"unit"`
	DateReported        *string                `json:"date_reported"`
	DateRetrieved       *string                `json:"date_retrieved"`
	PrimarySourceID     int64                  `json:"primary_source_id"`
	VerificationStatus  string                 `json:"verification_status"`
	CrossReferences     []int64                `json:"cross_references"`
	GovernmentFigure    *string                `json:"government_figure"`
	IndependentFigure   *string                `json:"independent_figure"`
	GovernmentSourceID  *int64                 `json:"government_source_id"`
	IndependentSourceID *int64                 `json:"independent_source_id"`
	DiscrepancyNotes    string                 `json:"discrepancy_notes"`
	MethodologyNotes    string                 `json:"methodology_notes"`
	Caveats             string                 `json:"caveats"`
	TrustBadge          string                 `json:"trust_badge"`
	UpdatedAt           string                 `json:"updated_at"`
	Contradiction       *cmodels.Contradiction `json:"contradiction,omitempty"`
}

func toResponse(dp *models.DataPoint) DataPointResponse {
	refs := make([]int64, len(dp.CrossReferences))
	for i, id := range dp.CrossReferences {
		refs[i] = int64(id)
	}
	return DataPointResponse{
		ID:                  int64(dp.ID),
		MetricName:          dp.MetricName,
		MetricCategory:      dp.MetricCategory,
		Value:               dp.Value,
		ValueNumeric:        dp.ValueNumeric,
		Unit:                dp.Unit,
		DateReported:        formatDate(dp.DateReported),
		DateRetrieved:       formatDate(dp.DateRetrieved),
		PrimarySourceID:     int64(dp.PrimarySourceID),
		VerificationStatus:  string(dp.VerificationStatus),
		CrossReferences:     refs,
		GovernmentFigure:    dp.GovernmentFigure,
		IndependentFigure:   dp.IndependentFigure,
		GovernmentSourceID:  optionalID(dp.GovernmentSourceID),
		IndependentSourceID: optionalID(dp.IndependentSourceID),
		DiscrepancyNotes:    dp.DiscrepancyNotes,
		MethodologyNotes:    dp.MethodologyNotes,
		Caveats:             dp.Caveats,
		TrustBadge:          dp.TrustBadge,
		UpdatedAt:           dp.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func viewResponse(v *service.View) DataPointResponse {
	resp := toResponse(v.DataPoint)
	resp.TrustBadge = string(v.Badge)
	resp.Contradiction = v.Contradiction
	return resp
}

// ChangeResponse is one entry of GET /data-points/{id}/history.
type ChangeResponse struct {
	ChangeType string  `json:"change_type"`
	Field      string  `json:"field"`
	OldValue   *string `json:"old_value"`
	NewValue   *string `json:"new_value"`
	Reason     string  `json:"reason"`
	ChangedAt  string  `json:"changed_at"`
}

func toChangeResponse(e changelog.Entry) ChangeResponse {
	return ChangeResponse{
		ChangeType: e.ChangeType,
		Field:      e.Field,
		OldValue:   e.OldValue,
		NewValue:   e.NewValue,
		Reason:     e.Reason,
		ChangedAt:  e.ChangedAt.UTC().Format(time.RFC3339),
	}
}

func sourceIDs(raw []int64) []domain.SourceID {
	out := make([]domain.SourceID, len(raw))
	for i, id := range raw {
		out[i] = domain.SourceID(id)
	}
	return out
}

func optionalDate(field, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := domain.ParseDate(field, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := domain.FormatDate(*t)
	return &s
}

func optionalID(id domain.SourceID) *int64 {
	if id.IsNil() {
		return nil
	}
	v := int64(id)
	return &v
}

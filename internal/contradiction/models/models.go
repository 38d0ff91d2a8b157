package models

import (
	"time"

	"explorer/pkg/domain"
)

// Severity grades how far apart the two figures are.
type Severity string

const (
	SeverityMinor       Severity = "minor"
	SeveritySignificant Severity = "significant"
	SeverityMajor       Severity = "major"
	SeverityCritical    Severity = "critical"
)

// Status of a contradiction. At most one open row exists per metric.
type Status string

const (
	StatusOpen     Status = "open"
	StatusResolved Status = "resolved"
)

// Contradiction records a disagreement between the government figure and an
// independent finding for one metric. It is derived from data point writes and
// never edited by hand; when the figures converge it is resolved, not removed.
type Contradiction struct {
	ID                      domain.ContradictionID `json:"id"`
	MetricName              string                 `json:"metric_name"`
	MetricCategory          string                 `json:"metric_category"`
	DataPointID             domain.DataPointID     `json:"data_point_id"`
	GovernmentClaim         string                 `json:"government_claim"`
	GovernmentSourceID      domain.SourceID        `json:"government_source_id,omitempty"`
	IndependentFinding      string                 `json:"independent_finding"`
	IndependentSourceID     domain.SourceID        `json:"independent_source_id,omitempty"`
	DiscrepancyExplanation  string                 `json:"discrepancy_explanation"`
	RecommendedFigure       string                 `json:"recommended_figure"`
	RecommendationRationale string                 `json:"recommendation_rationale"`
	UseWithCaution          bool                   `json:"use_with_caution"`
	Severity                Severity               `json:"severity"`
	Status                  Status                 `json:"status"`
	DateIdentified          time.Time              `json:"date_identified"`
	ResolvedAt              *time.Time             `json:"resolved_at,omitempty"`
}

func (c *Contradiction) IsOpen() bool {
	return c.Status == StatusOpen
}

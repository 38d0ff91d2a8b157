package handler

import (
	"strings"

	"explorer/internal/query"
	dErrors "explorer/pkg/domain-errors"
)

// FilterRequest is one column restriction.
type FilterRequest struct {
	Column   string `json:"column"`
	Operator string `json:"operator"`
	Value    any    `json:"value,omitempty"`
	Min      any    `json:"min,omitempty"`
	Max      any    `json:"max,omitempty"`
}

// SortRequest orders the result.
type SortRequest struct {
	Column    string `json:"column"`
	Direction string `json:"direction,omitempty"`
}

// QueryRequest is the body of POST /query. Exports take the same body and
// ignore offset, limit and summary.
type QueryRequest struct {
	Table   string          `json:"table"`
	Filters []FilterRequest `json:"filters,omitempty"`
	Search  string          `json:"search,omitempty"`
	Sort    *SortRequest    `json:"sort,omitempty"`
	Offset  int             `json:"offset,omitempty"`
	Limit   int             `json:"limit,omitempty"`
	Summary bool            `json:"summary,omitempty"`

	query query.Request
}

// Validate checks the envelope; column and operator validation belongs to
// the engine, which knows the catalog.
func (r *QueryRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Table = strings.TrimSpace(r.Table)
	if r.Table == "" {
		return dErrors.New(dErrors.CodeValidation, "table is required")
	}
	if r.Offset < 0 {
		return dErrors.New(dErrors.CodeValidation, "offset cannot be negative")
	}
	r.query = query.Request{
		Table:   r.Table,
		Search:  r.Search,
		Page:    query.Page{Offset: r.Offset, Limit: r.Limit},
		Summary: r.Summary,
	}
	for _, f := range r.Filters {
		r.query.Filters = append(r.query.Filters, query.Filter{
			Column:   strings.TrimSpace(f.Column),
			Operator: query.Operator(f.Operator),
			Value:    f.Value,
			Min:      f.Min,
			Max:      f.Max,
		})
	}
	if r.Sort != nil {
		r.query.Sort = &query.Sort{
			Column:    strings.TrimSpace(r.Sort.Column),
			Direction: query.Direction(r.Sort.Direction),
		}
	}
	return nil
}

// Query returns the engine request.
func (r *QueryRequest) Query() query.Request {
	return r.query
}

// QueryResponse is one page of results.
type QueryResponse struct {
	Table          string          `json:"table"`
	Columns        []string        `json:"columns"`
	Rows           []query.Row     `json:"rows"`
	TotalMatched   int64           `json:"total_matched"`
	Offset         int             `json:"offset"`
	Limit          int             `json:"limit"`
	AppliedFilters []FilterRequest `json:"applied_filters"`
	AppliedSort    *SortRequest    `json:"applied_sort,omitempty"`
	Search         string          `json:"search,omitempty"`
	Summary        *query.Summary  `json:"summary,omitempty"`
}

func toResponse(res *query.Result) QueryResponse {
	resp := QueryResponse{
		Table:          res.Table,
		Columns:        res.Columns,
		Rows:           res.Rows,
		TotalMatched:   res.TotalMatched,
		Offset:         res.Offset,
		Limit:          res.Limit,
		AppliedFilters: make([]FilterRequest, 0, len(res.AppliedFilters)),
		Search:         res.Search,
		Summary:        res.Summary,
	}
	if resp.Rows == nil {
		resp.Rows = []query.Row{}
	}
	for _, f := range res.AppliedFilters {
		resp.AppliedFilters = append(resp.AppliedFilters, FilterRequest{
			Column: f.Column, Operator: string(f.Operator), Value: f.Value, Min: f.Min, Max: f.Max,
		})
	}
	if res.AppliedSort != nil {
		resp.AppliedSort = &SortRequest{Column: res.AppliedSort.Column, Direction: string(res.AppliedSort.Direction)}
	}
	return resp
}

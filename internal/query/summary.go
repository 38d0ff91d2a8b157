package query

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"explorer/internal/catalog"
	"explorer/internal/trust"
)

// ColumnSummary aggregates one numeric column over the matched set. Fields
// are nil when every matched value is NULL.
type ColumnSummary struct {
	Min *float64 `json:"min"`
	Max *float64 `json:"max"`
	Sum *float64 `json:"sum"`
	Avg *float64 `json:"avg"`
}

// Summary describes the whole matched set, not just the returned page.
type Summary struct {
	Columns map[string]ColumnSummary `json:"columns"`
	// PercentVerified is set for badged tables only.
	PercentVerified *float64 `json:"percent_verified,omitempty"`
}

// summaryColumns are the numeric columns worth aggregating; keys and
// references are skipped.
func summaryColumns(t *catalog.Table) []catalog.Column {
	var cols []catalog.Column
	for _, c := range t.Columns {
		if !c.Type.IsNumeric() || c.Name == catalog.KeyColumn || strings.HasSuffix(c.Name, "_id") {
			continue
		}
		cols = append(cols, c)
	}
	return cols
}

func (e *Engine) summarize(ctx context.Context, p *plan, where string, args []any) (*Summary, error) {
	s := &Summary{Columns: map[string]ColumnSummary{}}

	if cols := summaryColumns(p.table); len(cols) > 0 {
		exprs := make([]string, 0, 4*len(cols))
		for _, c := range cols {
			q := quote(c.Name)
			exprs = append(exprs,
				"MIN("+q+")", "MAX("+q+")",
				"SUM(CAST("+q+" AS DOUBLE PRECISION))", "AVG(CAST("+q+" AS DOUBLE PRECISION))")
		}
		dest := make([]any, len(exprs))
		vals := make([]sql.NullFloat64, len(exprs))
		for i := range vals {
			dest[i] = &vals[i]
		}
		query := e.dialect.Rebind("SELECT " + strings.Join(exprs, ", ") + " FROM " + quote(p.table.Name) + where)
		if err := e.execer(ctx).QueryRowContext(ctx, query, args...).Scan(dest...); err != nil {
			return nil, fmt.Errorf("summarize %s: %w", p.table.Name, err)
		}
		for i, c := range cols {
			s.Columns[c.Name] = ColumnSummary{
				Min: floatPtr(vals[4*i]),
				Max: floatPtr(vals[4*i+1]),
				Sum: floatPtr(vals[4*i+2]),
				Avg: floatPtr(vals[4*i+3]),
			}
		}
	}

	if p.table.Badged {
		pct, err := e.percentVerified(ctx, p, where, args)
		if err != nil {
			return nil, err
		}
		s.PercentVerified = &pct
	}
	return s, nil
}

// percentVerified badges the matched set, bounded by the export cap.
func (e *Engine) percentVerified(ctx context.Context, p *plan, where string, args []any) (float64, error) {
	query := p.selectSQL() + where + " ORDER BY " + quote(catalog.KeyColumn) + " ASC LIMIT ?"
	rows, err := e.scanAll(ctx, p.table, e.dialect.Rebind(query), append(append([]any{}, args...), e.cfg.MaxExportRows))
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	if err := e.annotate(ctx, rows); err != nil {
		return 0, err
	}
	badges := make([]trust.Badge, len(rows))
	for i, r := range rows {
		badges[i] = trust.Badge(r[BadgeColumn].(string))
	}
	return trust.PercentVerified(badges), nil
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

package query

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"explorer/internal/catalog"
	"explorer/pkg/domain"
	dErrors "explorer/pkg/domain-errors"
)

// Operator is a filter comparison.
type Operator string

const (
	OpEquals   Operator = "equals"
	OpContains Operator = "contains"
	OpRange    Operator = "range"
)

// allows reports whether op is meaningful for a column of type t: text
// columns take equals and contains, numbers and dates take equals and range.
func (op Operator) allows(t catalog.SemanticType) bool {
	switch op {
	case OpEquals:
		return true
	case OpContains:
		return t == catalog.TypeText
	case OpRange:
		return t.IsNumeric() || t == catalog.TypeDate
	}
	return false
}

// Filter restricts one column. Equals and contains use Value; range uses
// Min and/or Max, both inclusive.
type Filter struct {
	Column   string   `json:"column"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value,omitempty"`
	Min      any      `json:"min,omitempty"`
	Max      any      `json:"max,omitempty"`
}

// Direction orders a sort.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Sort orders results by one sortable column. Ties break on insertion order.
type Sort struct {
	Column    string    `json:"column"`
	Direction Direction `json:"direction"`
}

// Page selects a window of the ordered result.
type Page struct {
	Offset int
	Limit  int
}

// Request is a parameterized read of one catalog table. Filters are ANDed;
// Search is ORed across the table's filterable text columns and ANDed with
// the filters.
type Request struct {
	Table   string
	Filters []Filter
	Search  string
	Sort    *Sort
	Page    Page
	Summary bool
}

// Row is one result row keyed by column name.
type Row map[string]any

// Result is one page of a query.
type Result struct {
	Table          string   `json:"table"`
	Columns        []string `json:"columns"`
	Rows           []Row    `json:"rows"`
	TotalMatched   int64    `json:"total_matched"`
	Offset         int      `json:"offset"`
	Limit          int      `json:"limit"`
	AppliedFilters []Filter `json:"applied_filters"`
	AppliedSort    *Sort    `json:"applied_sort,omitempty"`
	Search         string   `json:"search,omitempty"`
	Summary        *Summary `json:"summary,omitempty"`
}

// predicate is one bound SQL condition.
type predicate struct {
	sql  string
	args []any
}

// plan is a validated request: every identifier has been checked against
// the catalog and every value coerced to the column's type.
type plan struct {
	table      *catalog.Table
	filters    []Filter
	sort       *Sort
	search     string
	predicates []predicate
}

func invalidFilter(format string, args ...any) error {
	return dErrors.New(dErrors.CodeInvalidFilter, fmt.Sprintf(format, args...))
}

func compile(cat *catalog.Catalog, req Request) (*plan, error) {
	table, ok := cat.Table(strings.TrimSpace(req.Table))
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnknownTable, fmt.Sprintf("unknown table %q", req.Table))
	}
	p := &plan{table: table}

	for _, f := range req.Filters {
		pred, applied, err := compileFilter(table, f)
		if err != nil {
			return nil, err
		}
		p.predicates = append(p.predicates, pred)
		p.filters = append(p.filters, applied)
	}

	if term := strings.TrimSpace(req.Search); term != "" {
		cols := table.SearchColumns()
		if len(cols) == 0 {
			return nil, invalidFilter("table %s has no searchable columns", table.Name)
		}
		pattern := likePattern(term)
		parts := make([]string, len(cols))
		args := make([]any, len(cols))
		for i, c := range cols {
			parts[i] = containsSQL(c.Name)
			args[i] = pattern
		}
		p.predicates = append(p.predicates, predicate{sql: "(" + strings.Join(parts, " OR ") + ")", args: args})
		p.search = term
	}

	if req.Sort != nil && req.Sort.Column != "" {
		col, ok := table.Column(req.Sort.Column)
		if !ok || !col.Sortable {
			return nil, dErrors.New(dErrors.CodeInvalidSort, fmt.Sprintf("column %q of %s is not sortable", req.Sort.Column, table.Name))
		}
		dir := Direction(strings.ToLower(strings.TrimSpace(string(req.Sort.Direction))))
		switch dir {
		case "":
			dir = Asc
		case Asc, Desc:
		default:
			return nil, dErrors.New(dErrors.CodeInvalidSort, fmt.Sprintf("sort direction must be asc or desc, got %q", req.Sort.Direction))
		}
		p.sort = &Sort{Column: col.Name, Direction: dir}
	}
	return p, nil
}

func compileFilter(table *catalog.Table, f Filter) (predicate, Filter, error) {
	col, ok := table.Column(f.Column)
	if !ok {
		return predicate{}, f, invalidFilter("unknown column %q in %s", f.Column, table.Name)
	}
	if !col.Filterable {
		return predicate{}, f, invalidFilter("column %q of %s is not filterable", f.Column, table.Name)
	}
	op := Operator(strings.ToLower(strings.TrimSpace(string(f.Operator))))
	if op == "" {
		op = OpEquals
	}
	if !op.allows(col.Type) {
		return predicate{}, f, invalidFilter("operator %q does not apply to %s column %q", f.Operator, col.Type, col.Name)
	}
	applied := Filter{Column: col.Name, Operator: op}

	switch op {
	case OpEquals:
		v, err := coerce(col, f.Value)
		if err != nil {
			return predicate{}, f, err
		}
		applied.Value = v
		return predicate{sql: quote(col.Name) + " = ?", args: []any{v}}, applied, nil

	case OpContains:
		s, ok := f.Value.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return predicate{}, f, invalidFilter("contains on %q needs a non-empty text value", col.Name)
		}
		applied.Value = s
		return predicate{sql: containsSQL(col.Name), args: []any{likePattern(s)}}, applied, nil

	default: // range
		var (
			parts []string
			args  []any
		)
		if f.Min != nil {
			v, err := coerce(col, f.Min)
			if err != nil {
				return predicate{}, f, err
			}
			applied.Min = v
			parts = append(parts, quote(col.Name)+" >= ?")
			args = append(args, v)
		}
		if f.Max != nil {
			v, err := coerce(col, f.Max)
			if err != nil {
				return predicate{}, f, err
			}
			applied.Max = v
			parts = append(parts, quote(col.Name)+" <= ?")
			args = append(args, v)
		}
		if len(parts) == 0 {
			return predicate{}, f, invalidFilter("range on %q needs min or max", col.Name)
		}
		if len(args) == 2 && greater(args[0], args[1]) {
			return predicate{}, f, invalidFilter("range on %q has min above max", col.Name)
		}
		return predicate{sql: strings.Join(parts, " AND "), args: args}, applied, nil
	}
}

// coerce converts a decoded JSON or CLI value into the Go type bound for the
// column. Numbers arrive as float64 from JSON and as strings from the CLI.
func coerce(col catalog.Column, v any) (any, error) {
	if v == nil {
		return nil, invalidFilter("filter on %q needs a value", col.Name)
	}
	switch col.Type {
	case catalog.TypeText:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case catalog.TypeInteger:
		switch n := v.(type) {
		case float64:
			if n == math.Trunc(n) && math.Abs(n) < 1<<53 {
				return int64(n), nil
			}
		case int:
			return int64(n), nil
		case int64:
			return n, nil
		case string:
			if i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64); err == nil {
				return i, nil
			}
		}
	case catalog.TypeNumeric:
		switch n := v.(type) {
		case float64:
			return n, nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
				return f, nil
			}
		}
	case catalog.TypeDate:
		if s, ok := v.(string); ok {
			if _, err := time.Parse(domain.DateLayout, strings.TrimSpace(s)); err == nil {
				return strings.TrimSpace(s), nil
			}
		}
	}
	return nil, invalidFilter("value %v is not a valid %s for %q", v, col.Type, col.Name)
}

func greater(a, b any) bool {
	switch x := a.(type) {
	case int64:
		return x > b.(int64)
	case float64:
		return x > b.(float64)
	case string:
		return x > b.(string)
	}
	return false
}

// quote renders a catalog identifier. Both dialects accept double quotes.
func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func containsSQL(column string) string {
	return "LOWER(" + quote(column) + `) LIKE ? ESCAPE '\'`
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern builds a case-insensitive substring pattern with LIKE
// metacharacters in term matched literally.
func likePattern(term string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(strings.TrimSpace(term))) + "%"
}

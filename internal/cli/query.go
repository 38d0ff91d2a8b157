package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"explorer/internal/query"
)

// parseFilter reads one --filter expression:
//
//	column=value       equals
//	column~text        contains (case-insensitive)
//	column=min..max    inclusive range; either bound may be empty
func parseFilter(expr string) (query.Filter, error) {
	if i := strings.Index(expr, "~"); i > 0 && !strings.Contains(expr[:i], "=") {
		return query.Filter{Column: strings.TrimSpace(expr[:i]), Operator: query.OpContains, Value: expr[i+1:]}, nil
	}
	col, val, ok := strings.Cut(expr, "=")
	col = strings.TrimSpace(col)
	if !ok || col == "" {
		return query.Filter{}, fmt.Errorf("filter %q: want column=value, column~text or column=min..max", expr)
	}
	if lo, hi, isRange := strings.Cut(val, ".."); isRange {
		f := query.Filter{Column: col, Operator: query.OpRange}
		if lo = strings.TrimSpace(lo); lo != "" {
			f.Min = lo
		}
		if hi = strings.TrimSpace(hi); hi != "" {
			f.Max = hi
		}
		if f.Min == nil && f.Max == nil {
			return query.Filter{}, fmt.Errorf("filter %q: a range needs at least one bound", expr)
		}
		return f, nil
	}
	return query.Filter{Column: col, Operator: query.OpEquals, Value: val}, nil
}

// parseSort reads "column" or "column:desc".
func parseSort(expr string) *query.Sort {
	if expr == "" {
		return nil
	}
	col, dir, _ := strings.Cut(expr, ":")
	return &query.Sort{Column: strings.TrimSpace(col), Direction: query.Direction(strings.ToLower(strings.TrimSpace(dir)))}
}

func addRequestFlags(cmd *cobra.Command) {
	cmd.Flags().StringArrayP("filter", "f", nil, "column=value, column~text or column=min..max (repeatable)")
	cmd.Flags().String("search", "", "free text across the table's text columns")
	cmd.Flags().String("sort", "", "column or column:desc")
}

func requestFromFlags(cmd *cobra.Command, table string) (query.Request, error) {
	req := query.Request{Table: table}
	exprs, _ := cmd.Flags().GetStringArray("filter")
	for _, expr := range exprs {
		f, err := parseFilter(expr)
		if err != nil {
			return req, err
		}
		req.Filters = append(req.Filters, f)
	}
	req.Search, _ = cmd.Flags().GetString("search")
	s, _ := cmd.Flags().GetString("sort")
	req.Sort = parseSort(s)
	return req, nil
}

func queryCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query [table]",
		Short: "Query one catalog table",
		Long: `Query one catalog table with filters, search, sorting and pagination.

Examples:
  explorerctl query data_points -f metric_name="Deaths in Custody (2025)"
  explorerctl query detention_population -f year=2020..2024 --sort population:desc --summary
  explorerctl query sources -f name~aclu --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := requestFromFlags(cmd, args[0])
			if err != nil {
				return err
			}
			req.Page.Offset, _ = cmd.Flags().GetInt("offset")
			req.Page.Limit, _ = cmd.Flags().GetInt("limit")
			req.Summary, _ = cmd.Flags().GetBool("summary")

			s, err := e.open(cmd)
			if err != nil {
				return err
			}
			res, err := s.Engine.Execute(cmd.Context(), req)
			if err != nil {
				return err
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			return printResult(cmd, res)
		},
	}
	addRequestFlags(cmd)
	cmd.Flags().Int("offset", 0, "rows to skip")
	cmd.Flags().Int("limit", 0, "page size (default and cap come from config)")
	cmd.Flags().Bool("summary", false, "aggregate numeric columns over the whole match")
	cmd.Flags().Bool("json", false, "print the raw result as JSON")
	return cmd
}

func printResult(cmd *cobra.Command, res *query.Result) error {
	out := cmd.OutOrStdout()
	w := newTable(out)
	header := make([]string, len(res.Columns))
	for i, c := range res.Columns {
		header[i] = strings.ToUpper(c)
	}
	row(w, header...)
	for _, r := range res.Rows {
		cells := make([]string, len(res.Columns))
		for i, c := range res.Columns {
			cells[i] = cell(c, r[c])
		}
		row(w, cells...)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if len(res.Rows) == 0 {
		fmt.Fprintf(out, "\nNo rows of %s match (%d total).\n", res.Table, res.TotalMatched)
	} else {
		fmt.Fprintf(out, "\nShowing %d-%d of %d rows of %s.\n",
			res.Offset+1, res.Offset+len(res.Rows), res.TotalMatched, res.Table)
	}
	if res.Summary == nil {
		return nil
	}

	fmt.Fprintln(out)
	if res.Summary.PercentVerified != nil {
		fmt.Fprintf(out, "Verified: %s%%\n", strconv.FormatFloat(*res.Summary.PercentVerified, 'f', 1, 64))
	}
	names := make([]string, 0, len(res.Summary.Columns))
	for name := range res.Summary.Columns {
		names = append(names, name)
	}
	sort.Strings(names)
	w = newTable(out)
	row(w, "COLUMN", "MIN", "MAX", "SUM", "AVG")
	for _, name := range names {
		cs := res.Summary.Columns[name]
		row(w, name, number(cs.Min), number(cs.Max), number(cs.Sum), number(cs.Avg))
	}
	return w.Flush()
}

func number(f *float64) string {
	if f == nil {
		return faint.Sprint("-")
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

func exportCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [table]",
		Short: "Export every matching row as CSV or JSON",
		Long: `Export every row of a table matching the filters. Exports are refused,
never truncated, when the match exceeds query.max_export_rows.

Examples:
  explorerctl export deaths_in_custody
  explorerctl export arrests -f year=2025 --format json --out -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := requestFromFlags(cmd, args[0])
			if err != nil {
				return err
			}
			f, _ := cmd.Flags().GetString("format")
			format := query.Format(strings.ToLower(f))

			s, err := e.open(cmd)
			if err != nil {
				return err
			}
			x, err := s.Engine.Export(cmd.Context(), req, format)
			if err != nil {
				return err
			}

			path, _ := cmd.Flags().GetString("out")
			if path == "-" {
				return x.Write(cmd.OutOrStdout())
			}
			if path == "" {
				path = x.Filename()
			}
			file, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("create %s: %w", path, err)
			}
			if err := x.Write(file); err != nil {
				_ = file.Close()
				return fmt.Errorf("write %s: %w", path, err)
			}
			if err := file.Close(); err != nil {
				return err
			}
			success(cmd.ErrOrStderr(), "Wrote %d rows to %s", len(x.Rows), path)
			return nil
		},
	}
	addRequestFlags(cmd)
	cmd.Flags().String("format", string(query.FormatCSV), "csv or json")
	cmd.Flags().StringP("out", "o", "", "output file; - for stdout (default <table>-export-<date>.<format>)")
	return cmd
}

package cli

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"explorer/internal/query"
	dErrors "explorer/pkg/domain-errors"
)

// run executes one explorerctl invocation against the sqlite file at dsn.
func run(t *testing.T, dsn string, args ...string) (string, error) {
	t.Helper()
	cmd := Root()
	var out, diag bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&diag)
	cmd.SetArgs(append([]string{"--database-driver", "sqlite", "--database-dsn", dsn}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func seeded(t *testing.T) string {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "explorer.db")
	out, err := run(t, dsn, "seed", filepath.Join("testdata", "seed.yaml"))
	require.NoError(t, err, out)
	return dsn
}

// line returns the fields of the first output line whose first field is key.
func line(out, key string) []string {
	for _, l := range strings.Split(out, "\n") {
		if f := strings.Fields(l); len(f) > 0 && f[0] == key {
			return f
		}
	}
	return nil
}

func TestSeed(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "explorer.db")
	out, err := run(t, dsn, "seed", filepath.Join("testdata", "seed.yaml"))
	require.NoError(t, err, out)
	assert.Contains(t, out, "sources: 3 registered, 0 already present")
	assert.Contains(t, out, "data points: 2 recorded")
	assert.Contains(t, out, "arrests: 3 rows")
	assert.Contains(t, out, "deaths_in_custody: 2 rows")

	t.Run("sources are matched by name on re-seed", func(t *testing.T) {
		more := filepath.Join(t.TempDir(), "more.yaml")
		require.NoError(t, os.WriteFile(more, []byte(`
sources:
  - name: TRAC Immigration
    category: academic
    trust_tier: high
    url: https://tracreports.org/immigration/
  - name: Marshall Project
    category: media
    trust_tier: high
    url: https://www.themarshallproject.org/
`), 0o600))
		out, err := run(t, dsn, "seed", more)
		require.NoError(t, err, out)
		assert.Contains(t, out, "sources: 1 registered, 1 already present")
	})

	t.Run("unknown source key", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(bad, []byte(`
data_points:
  - metric_name: Orphan
    value: "1"
    primary_source: nobody
`), 0o600))
		_, err := run(t, dsn, "seed", bad)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `primary_source "nobody"`)
	})

	t.Run("bad dataset row rolls back its table", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "rows.yaml")
		require.NoError(t, os.WriteFile(bad, []byte(`
datasets:
  staffing:
    - {year: 2025, agency: ICE, employees: 21000}
    - {year: 2025, agency: CBP, headcount: 60000}
`), 0o600))
		_, err := run(t, dsn, "seed", bad)
		require.Error(t, err)
		assert.Equal(t, dErrors.CodeValidation, dErrors.CodeOf(err))

		out, err := run(t, dsn, "query", "staffing")
		require.NoError(t, err)
		assert.Contains(t, out, "No rows of staffing match (0 total).")
	})
}

func TestQuery(t *testing.T) {
	dsn := seeded(t)

	t.Run("badges contested data points", func(t *testing.T) {
		out, err := run(t, dsn, "query", "data_points", "-f", "metric_name=Deaths in Custody (2025)")
		require.NoError(t, err)
		assert.Contains(t, out, "CONTESTED")
		assert.Contains(t, out, "Showing 1-1 of 1 rows of data_points.")
	})

	t.Run("filters, sorts, pages and summarizes", func(t *testing.T) {
		out, err := run(t, dsn, "query", "arrests", "-f", "year=2025", "-f", "month=6..8",
			"--sort", "arrests:desc", "--limit", "2", "--summary")
		require.NoError(t, err)
		assert.Contains(t, out, "Showing 1-2 of 3 rows of arrests.")
		assert.Less(t, strings.Index(out, "40300"), strings.Index(out, "31000"))
		assert.Nil(t, line(out, "1"), "the lowest arrest count is past the page")

		summary := line(out, "arrests")
		require.Len(t, summary, 5)
		assert.Equal(t, []string{"arrests", "30000", "40300", "101300"}, summary[:4])
	})

	t.Run("contains is case-insensitive", func(t *testing.T) {
		out, err := run(t, dsn, "query", "sources", "-f", "name~aclu")
		require.NoError(t, err)
		assert.Contains(t, out, "Guardian/ACLU/PHR Investigation")
		assert.Contains(t, out, "of 1 rows of sources")
	})

	t.Run("json output", func(t *testing.T) {
		out, err := run(t, dsn, "query", "deaths_in_custody", "--json")
		require.NoError(t, err)
		var res struct {
			Columns      []string         `json:"columns"`
			Rows         []map[string]any `json:"rows"`
			TotalMatched int64            `json:"total_matched"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &res))
		assert.Equal(t, int64(2), res.TotalMatched)
		assert.Equal(t, "id", res.Columns[0])
	})

	t.Run("engine errors keep their code", func(t *testing.T) {
		_, err := run(t, dsn, "query", "deaths_in_custody", "--sort", "notes")
		assert.Equal(t, dErrors.CodeInvalidSort, dErrors.CodeOf(err))

		_, err = run(t, dsn, "query", "users")
		assert.Equal(t, dErrors.CodeUnknownTable, dErrors.CodeOf(err))
	})
}

func TestExport(t *testing.T) {
	dsn := seeded(t)

	t.Run("csv to a file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "deaths.csv")
		_, err := run(t, dsn, "export", "deaths_in_custody", "--out", path)
		require.NoError(t, err)

		f, err := os.Open(path)
		require.NoError(t, err)
		defer f.Close()
		records, err := csv.NewReader(f).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, []string{"id", "year", "deaths", "preventable_percentage", "notes", "source"}, records[0])
		assert.Equal(t, []string{"1", "2024", "12", "95", "PHR review of medical records", ""}, records[1])
	})

	t.Run("json to stdout", func(t *testing.T) {
		out, err := run(t, dsn, "export", "arrests", "-f", "month=7..", "--format", "json", "--out", "-")
		require.NoError(t, err)
		var rows []map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &rows))
		assert.Len(t, rows, 2)
	})

	t.Run("unsupported format", func(t *testing.T) {
		_, err := run(t, dsn, "export", "arrests", "--format", "xml", "--out", "-")
		assert.Equal(t, dErrors.CodeBadRequest, dErrors.CodeOf(err))
	})
}

func TestSources(t *testing.T) {
	dsn := seeded(t)

	out, err := run(t, dsn, "sources", "list", "--tier", "high")
	require.NoError(t, err)
	assert.Contains(t, out, "TRAC Immigration")
	assert.NotContains(t, out, "ICE Detention Statistics")

	out, err = run(t, dsn, "sources", "register", "Marshall Project",
		"--category", "media", "--tier", "high", "--url", "https://www.themarshallproject.org/")
	require.NoError(t, err)
	assert.Contains(t, out, "Registered source #4: Marshall Project")

	out, err = run(t, dsn, "sources", "reverify", "4", "--date", "2026-01-10", "--notes", "link checked")
	require.NoError(t, err)
	assert.Contains(t, out, "Source #4 verified on 2026-01-10 (version 2)")

	out, err = run(t, dsn, "sources", "history", "4")
	require.NoError(t, err)
	assert.Equal(t, "registered", line(out, "1")[1])
	assert.Equal(t, "reverified", line(out, "2")[1])

	_, err = run(t, dsn, "sources", "delete", "1")
	assert.Equal(t, dErrors.CodeReferentialIntegrity, dErrors.CodeOf(err), "ICE is cited by both data points")

	out, err = run(t, dsn, "sources", "delete", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "Source #4 retired")

	out, err = run(t, dsn, "sources", "list")
	require.NoError(t, err)
	assert.NotContains(t, out, "Marshall Project")
}

func TestCatalog(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "unused.db")

	out, err := run(t, dsn, "catalog")
	require.NoError(t, err)
	assert.Contains(t, line(out, "data_points"), "badged")
	assert.Contains(t, out, "deaths_in_custody")

	out, err = run(t, dsn, "catalog", "deaths_in_custody")
	require.NoError(t, err)
	assert.Equal(t, []string{"preventable_percentage", "numeric", "yes", "yes"}, line(out, "preventable_percentage")[:4])

	_, err = run(t, dsn, "catalog", "users")
	assert.Equal(t, dErrors.CodeUnknownTable, dErrors.CodeOf(err))
	_, statErr := os.Stat(dsn)
	assert.True(t, os.IsNotExist(statErr), "catalog never opens the database")
}

func TestParseFilter(t *testing.T) {
	cases := []struct {
		expr string
		want query.Filter
	}{
		{"year=2024", query.Filter{Column: "year", Operator: query.OpEquals, Value: "2024"}},
		{"metric_name=Deaths in Custody (2025)", query.Filter{Column: "metric_name", Operator: query.OpEquals, Value: "Deaths in Custody (2025)"}},
		{"name~aclu", query.Filter{Column: "name", Operator: query.OpContains, Value: "aclu"}},
		{"notes=a~b", query.Filter{Column: "notes", Operator: query.OpEquals, Value: "a~b"}},
		{"year=2020..2024", query.Filter{Column: "year", Operator: query.OpRange, Min: "2020", Max: "2024"}},
		{"date=..2025-06-30", query.Filter{Column: "date", Operator: query.OpRange, Max: "2025-06-30"}},
		{"value_numeric=1.5..", query.Filter{Column: "value_numeric", Operator: query.OpRange, Min: "1.5"}},
	}
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			got, err := parseFilter(tc.expr)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	for _, bad := range []string{"year", "=2024", "year=..", "~x"} {
		_, err := parseFilter(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseSort(t *testing.T) {
	assert.Nil(t, parseSort(""))
	assert.Equal(t, &query.Sort{Column: "year"}, parseSort("year"))
	assert.Equal(t, &query.Sort{Column: "year", Direction: query.Desc}, parseSort("year:DESC"))
}

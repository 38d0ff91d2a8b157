package query

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"explorer/internal/catalog"
	"explorer/internal/platform/database"
	"explorer/internal/trust"
	"explorer/pkg/domain"
	dErrors "explorer/pkg/domain-errors"
	"explorer/pkg/testutil"
)

const testCatalog = `
tables:
  - name: budgets
    columns:
      - {name: id, type: integer, filterable: true, sortable: true}
      - {name: year, type: integer, filterable: true, sortable: true}
      - {name: agency, type: text, filterable: true, sortable: true}
      - {name: amount, type: numeric, filterable: true}
      - {name: notes, type: text}
  - name: data_points
    badged: true
    columns:
      - {name: id, type: integer, filterable: true, sortable: true}
      - {name: metric_name, type: text, filterable: true}
      - {name: primary_source_id, type: integer, filterable: true}
      - {name: verification_status, type: text, filterable: true}
`

type stubBadger struct {
	badges map[domain.DataPointID]trust.Badge
	seen   []trust.Subject
}

func (b *stubBadger) Badges(_ context.Context, subjects []trust.Subject) (map[domain.DataPointID]trust.Badge, error) {
	b.seen = append(b.seen, subjects...)
	return b.badges, nil
}

func newMockEngine(t *testing.T, badger Badger) (*Engine, sqlmock.Sqlmock) {
	t.Helper()
	cat, err := catalog.Parse([]byte(testCatalog))
	require.NoError(t, err)
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	e := New(&database.DB{DB: db, Dialect: database.Postgres}, cat, badger, Config{}, WithLogger(testutil.DiscardLogger()))
	return e, mock
}

func TestExecuteBuildsParameterizedSQL(t *testing.T) {
	e, mock := newMockEngine(t, nil)
	where := ` WHERE "year" >= $1 AND "year" <= $2 AND LOWER("agency") LIKE $3 ESCAPE '\'`

	mock.ExpectQuery(`SELECT COUNT(*) FROM "budgets"`+where).
		WithArgs(2020, 2024, "%ice%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(1500)))
	mock.ExpectQuery(`SELECT "id", "year", "agency", "amount", "notes" FROM "budgets"`+where+
		` ORDER BY "agency" DESC NULLS LAST, "id" ASC LIMIT $4 OFFSET $5`).
		WithArgs(2020, 2024, "%ice%", 1000, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "year", "agency", "amount", "notes"}).
			AddRow(int64(3), int64(2024), "ICE", 9.5, nil))

	res, err := e.Execute(context.Background(), Request{
		Table: "budgets",
		Filters: []Filter{
			{Column: "year", Operator: OpRange, Min: float64(2020), Max: "2024"},
			{Column: "agency", Operator: OpContains, Value: "ICE"},
		},
		Sort: &Sort{Column: "agency", Direction: "DESC"},
		Page: Page{Offset: -4, Limit: 5000},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, 1000, res.Limit)
	assert.Equal(t, 0, res.Offset)
	assert.Equal(t, int64(1500), res.TotalMatched)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, Row{"id": int64(3), "year": int64(2024), "agency": "ICE", "amount": 9.5, "notes": nil}, res.Rows[0])
	assert.Equal(t, []string{"id", "year", "agency", "amount", "notes"}, res.Columns)
	require.Len(t, res.AppliedFilters, 2)
	assert.Equal(t, int64(2020), res.AppliedFilters[0].Min)
	assert.Equal(t, int64(2024), res.AppliedFilters[0].Max)
	assert.Equal(t, &Sort{Column: "agency", Direction: Desc}, res.AppliedSort)
}

func TestExecuteEscapesLikeMetacharacters(t *testing.T) {
	e, mock := newMockEngine(t, nil)
	mock.ExpectQuery(`SELECT COUNT(*) FROM "budgets" WHERE (LOWER("agency") LIKE $1 ESCAPE '\')`).
		WithArgs(`%50\% of\_total%`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(0)))
	mock.ExpectQuery(`SELECT "id", "year", "agency", "amount", "notes" FROM "budgets" WHERE (LOWER("agency") LIKE $1 ESCAPE '\') ORDER BY "id" ASC LIMIT $2 OFFSET $3`).
		WithArgs(`%50\% of\_total%`, 100, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "year", "agency", "amount", "notes"}))

	res, err := e.Execute(context.Background(), Request{Table: "budgets", Search: "  50% OF_total "})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Empty(t, res.Rows)
	assert.NotNil(t, res.Rows)
	assert.Equal(t, "50% OF_total", res.Search)
}

func TestExecuteSummary(t *testing.T) {
	e, mock := newMockEngine(t, nil)
	mock.ExpectQuery(`SELECT COUNT(*) FROM "budgets" WHERE "agency" = $1`).
		WithArgs("ICE").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(2)))
	mock.ExpectQuery(`SELECT "id", "year", "agency", "amount", "notes" FROM "budgets" WHERE "agency" = $1 ORDER BY "id" ASC LIMIT $2 OFFSET $3`).
		WithArgs("ICE", 100, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "year", "agency", "amount", "notes"}).
			AddRow(int64(1), int64(2023), "ICE", 8.0, "a").
			AddRow(int64(2), int64(2024), "ICE", nil, "b"))
	mock.ExpectQuery(`SELECT MIN("year"), MAX("year"), SUM(CAST("year" AS DOUBLE PRECISION)), AVG(CAST("year" AS DOUBLE PRECISION)), ` +
		`MIN("amount"), MAX("amount"), SUM(CAST("amount" AS DOUBLE PRECISION)), AVG(CAST("amount" AS DOUBLE PRECISION)) FROM "budgets" WHERE "agency" = $1`).
		WithArgs("ICE").
		WillReturnRows(sqlmock.NewRows([]string{"a", "b", "c", "d", "e", "f", "g", "h"}).
			AddRow(int64(2023), int64(2024), 4047.0, 2023.5, 8.0, 8.0, 8.0, 8.0))

	res, err := e.Execute(context.Background(), Request{
		Table:   "budgets",
		Filters: []Filter{{Column: "agency", Value: "ICE"}},
		Summary: true,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	require.NotNil(t, res.Summary)
	assert.Nil(t, res.Summary.PercentVerified)
	year := res.Summary.Columns["year"]
	require.NotNil(t, year.Avg)
	assert.Equal(t, 2023.5, *year.Avg)
	assert.Equal(t, 2023.0, *year.Min)
	assert.NotContains(t, res.Summary.Columns, "id")
}

func TestExecuteBadgesDataPoints(t *testing.T) {
	badger := &stubBadger{badges: map[domain.DataPointID]trust.Badge{7: trust.BadgeContested}}
	e, mock := newMockEngine(t, badger)
	cols := []string{"id", "metric_name", "primary_source_id", "verification_status"}

	mock.ExpectQuery(`SELECT COUNT(*) FROM "data_points"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(2)))
	mock.ExpectQuery(`SELECT "id", "metric_name", "primary_source_id", "verification_status" FROM "data_points" ORDER BY "id" ASC LIMIT $1 OFFSET $2`).
		WithArgs(100, 0).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(int64(7), "Deaths in Custody (2025)", int64(2), "contested").
			AddRow(int64(8), "Arrests", int64(1), "unverified"))

	res, err := e.Execute(context.Background(), Request{Table: "data_points"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, append(cols, BadgeColumn), res.Columns)
	assert.Equal(t, "CONTESTED", res.Rows[0][BadgeColumn])
	assert.Equal(t, "UNVERIFIED", res.Rows[1][BadgeColumn], "rows the badger skips default to UNVERIFIED")
	require.Len(t, badger.seen, 2)
	assert.Equal(t, trust.Subject{ID: 7, MetricName: "Deaths in Custody (2025)", PrimarySourceID: 2, Status: domain.StatusContested}, badger.seen[0])
}

func TestCompileRejections(t *testing.T) {
	cases := []struct {
		name string
		req  Request
		code dErrors.Code
	}{
		{"unknown table", Request{Table: "users"}, dErrors.CodeUnknownTable},
		{"unknown column", Request{Table: "budgets", Filters: []Filter{{Column: "password", Value: "x"}}}, dErrors.CodeInvalidFilter},
		{"unfilterable column", Request{Table: "budgets", Filters: []Filter{{Column: "notes", Value: "x"}}}, dErrors.CodeInvalidFilter},
		{"contains on a number", Request{Table: "budgets", Filters: []Filter{{Column: "year", Operator: OpContains, Value: "20"}}}, dErrors.CodeInvalidFilter},
		{"range on text", Request{Table: "budgets", Filters: []Filter{{Column: "agency", Operator: OpRange, Min: "a"}}}, dErrors.CodeInvalidFilter},
		{"unknown operator", Request{Table: "budgets", Filters: []Filter{{Column: "year", Operator: "like", Value: "1"}}}, dErrors.CodeInvalidFilter},
		{"empty range", Request{Table: "budgets", Filters: []Filter{{Column: "year", Operator: OpRange}}}, dErrors.CodeInvalidFilter},
		{"inverted range", Request{Table: "budgets", Filters: []Filter{{Column: "year", Operator: OpRange, Min: 2025.0, Max: 2020.0}}}, dErrors.CodeInvalidFilter},
		{"fractional integer", Request{Table: "budgets", Filters: []Filter{{Column: "year", Value: 2020.5}}}, dErrors.CodeInvalidFilter},
		{"text for a number", Request{Table: "budgets", Filters: []Filter{{Column: "amount", Value: "lots"}}}, dErrors.CodeInvalidFilter},
		{"missing value", Request{Table: "budgets", Filters: []Filter{{Column: "agency"}}}, dErrors.CodeInvalidFilter},
		{"unsortable column", Request{Table: "budgets", Sort: &Sort{Column: "amount"}}, dErrors.CodeInvalidSort},
		{"unknown sort column", Request{Table: "budgets", Sort: &Sort{Column: "x"}}, dErrors.CodeInvalidSort},
		{"bad direction", Request{Table: "budgets", Sort: &Sort{Column: "year", Direction: "sideways"}}, dErrors.CodeInvalidSort},
	}
	cat, err := catalog.Parse([]byte(testCatalog))
	require.NoError(t, err)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := compile(cat, tc.req)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, tc.code), "got %v", err)
		})
	}
}

func TestRejectedQueryNeverTouchesTheStore(t *testing.T) {
	e, mock := newMockEngine(t, nil)
	_, err := e.Execute(context.Background(), Request{Table: "budgets; DROP TABLE sources"})
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeUnknownTable, dErrors.CodeOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExportTooLarge(t *testing.T) {
	cat, err := catalog.Parse([]byte(testCatalog))
	require.NoError(t, err)
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()
	e := New(&database.DB{DB: db, Dialect: database.SQLite}, cat, nil, Config{MaxExportRows: 10}, WithLogger(testutil.DiscardLogger()))

	mock.ExpectQuery(`SELECT COUNT(*) FROM "budgets"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(11)))

	_, err = e.Export(context.Background(), Request{Table: "budgets"}, FormatCSV)
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeExportTooLarge, dErrors.CodeOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

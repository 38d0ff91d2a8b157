package catalog

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"explorer/internal/platform/database"
)

func TestLoadEmbedded(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)

	dp, ok := c.Table("data_points")
	require.True(t, ok)
	assert.True(t, dp.Core)
	assert.True(t, dp.Badged)

	metric, ok := dp.Column("metric_name")
	require.True(t, ok)
	assert.Equal(t, TypeText, metric.Type)
	assert.True(t, metric.Filterable)
	assert.Equal(t, "Metric", metric.Label)

	caveats, ok := dp.Column("caveats")
	require.True(t, ok)
	assert.False(t, caveats.Filterable)
	assert.False(t, caveats.Sortable)

	_, ok = c.Table("users")
	assert.False(t, ok)

	for _, tbl := range c.Tables() {
		assert.Equal(t, KeyColumn, tbl.Columns[0].Name, tbl.Name)
	}
}

func TestParseRejectsUnsafeIdentifiers(t *testing.T) {
	cases := map[string]string{
		"table name":   "tables:\n  - name: \"x; DROP TABLE sources\"\n    columns:\n      - {name: id, type: integer}\n",
		"column name":  "tables:\n  - name: t\n    columns:\n      - {name: id, type: integer}\n      - {name: \"a b\", type: text}\n",
		"unknown type": "tables:\n  - name: t\n    columns:\n      - {name: id, type: integer}\n      - {name: a, type: blob}\n",
		"missing key":  "tables:\n  - name: t\n    columns:\n      - {name: a, type: text}\n",
		"dup column":   "tables:\n  - name: t\n    columns:\n      - {name: id, type: integer}\n      - {name: id, type: integer}\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.Error(t, err)
		})
	}
}

func TestSearchColumns(t *testing.T) {
	c := MustLoad()
	news, _ := c.Table("news_articles")
	names := []string{}
	for _, col := range news.SearchColumns() {
		names = append(names, col.Name)
	}
	assert.Contains(t, names, "headline")
	assert.NotContains(t, names, "url")
	assert.NotContains(t, names, "sentiment_score")
}

func TestDatasetDDLAppliesOnSQLite(t *testing.T) {
	c := MustLoad()
	ddl := c.DatasetDDL(database.SQLite)
	require.NotEmpty(t, ddl)
	for _, stmt := range ddl {
		assert.False(t, strings.Contains(stmt, "TABLE IF NOT EXISTS data_points"))
	}

	ctx := context.Background()
	db, err := database.OpenSQLiteMemory(ctx, ddl...)
	require.NoError(t, err)
	defer db.Close()

	for _, tbl := range c.Tables() {
		rows, err := db.QueryContext(ctx, "SELECT "+strings.Join(tbl.ColumnNames(), ", ")+" FROM "+tbl.Name+" LIMIT 1")
		require.NoError(t, err, tbl.Name)
		require.NoError(t, rows.Close())
	}
}

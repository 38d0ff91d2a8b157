package testutil

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"explorer/internal/catalog"
	"explorer/internal/platform/database"
)

// NewSQLite opens a private in-memory store with the provenance schema and
// every catalog dataset table. It is closed when the test ends.
func NewSQLite(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.OpenSQLiteMemory(context.Background(), catalog.MustLoad().DatasetDDL(database.SQLite)...)
	require.NoError(t, err, "open sqlite")
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

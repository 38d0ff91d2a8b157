package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"explorer/internal/datapoint/models"
	"explorer/internal/platform/database"
	"explorer/pkg/domain"
	"explorer/pkg/testutil"
)

func insertSource(ctx context.Context, t *testing.T, db *database.DB, name string) domain.SourceID {
	t.Helper()
	var id int64
	err := db.QueryRowContext(ctx, `INSERT INTO sources (name, category, trust_tier, created_at, updated_at)
		VALUES (?, 'media', 'high', '2026-01-01T00:00:00Z', '2026-01-01T00:00:00Z') RETURNING id`, name).Scan(&id)
	require.NoError(t, err)
	return domain.SourceID(id)
}

func TestCountCrossReferencesAcrossManyIDs(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewSQLite(t)
	s := New(db)
	guardian := insertSource(ctx, t, db, "Guardian/ACLU/PHR Investigation")
	ice := insertSource(ctx, t, db, "ICE Detention Statistics")
	at := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

	ids := make([]domain.DataPointID, 2*database.MaxInList+3)
	for i := range ids {
		dp := &models.DataPoint{
			MetricName: fmt.Sprintf("Arrests by State %04d", i), Value: "100",
			PrimarySourceID: guardian, VerificationStatus: domain.StatusUnverified,
			CreatedAt: at, UpdatedAt: at,
		}
		if i%3 == 0 {
			dp.CrossReferences = []domain.SourceID{ice}
		}
		id, err := s.Insert(ctx, dp)
		require.NoError(t, err)
		ids[i] = id
	}

	counts, err := s.CountCrossReferences(ctx, ids)
	require.NoError(t, err)
	assert.Len(t, counts, (len(ids)+2)/3)
	assert.Equal(t, 1, counts[ids[0]])
	assert.Equal(t, 1, counts[ids[len(ids)-1]], "the last chunk is counted too")
	_, ok := counts[ids[1]]
	assert.False(t, ok)
}

func TestWithBothFiguresNewestFirst(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewSQLite(t)
	s := New(db)
	guardian := insertSource(ctx, t, db, "Guardian/ACLU/PHR Investigation")
	ten, thirtyTwo := "10", "32"

	insert := func(gov, ind *string, at time.Time) domain.DataPointID {
		id, err := s.Insert(ctx, &models.DataPoint{
			MetricName: "Deaths in Custody (2025)", Value: "32", PrimarySourceID: guardian,
			VerificationStatus: domain.StatusContested, GovernmentFigure: gov, IndependentFigure: ind,
			CreatedAt: at, UpdatedAt: at,
		})
		require.NoError(t, err)
		return id
	}
	older := insert(&ten, &thirtyTwo, time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC))
	insert(&ten, nil, time.Date(2025, 12, 5, 0, 0, 0, 0, time.UTC))
	newer := insert(&thirtyTwo, &thirtyTwo, time.Date(2025, 12, 10, 0, 0, 0, 0, time.UTC))

	got, err := s.WithBothFigures(ctx, "Deaths in Custody (2025)")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, newer, got[0].ID)
	assert.Equal(t, older, got[1].ID)
}

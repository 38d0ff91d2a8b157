package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"explorer/internal/changelog"
	"explorer/internal/platform/database"
	"explorer/internal/source/models"
	"explorer/internal/source/store"
	"explorer/pkg/domain"
	dErrors "explorer/pkg/domain-errors"
	"explorer/pkg/requestcontext"
	"explorer/pkg/testutil"
)

type SourceServiceSuite struct {
	suite.Suite
	ctx     context.Context
	db      *database.DB
	service *Service
}

func TestSourceServiceSuite(t *testing.T) {
	suite.Run(t, new(SourceServiceSuite))
}

func (s *SourceServiceSuite) SetupTest() {
	s.db = testutil.NewSQLite(s.T())
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC))
	s.service = New(
		store.New(s.db),
		changelog.New(s.db),
		database.NewTxRunner(s.db.DB, 0),
		testutil.DiscardLogger(),
		nil,
	)
}

func (s *SourceServiceSuite) register(name string, category domain.SourceCategory, tier domain.TrustTier) *models.Source {
	src, err := s.service.Register(s.ctx, models.Source{
		Name: name, Category: category, TrustTier: tier, URL: "https://example.org/" + string(category),
	})
	s.Require().NoError(err)
	return src
}

func (s *SourceServiceSuite) TestRegister() {
	s.Run("assigns id and first version", func() {
		src := s.register("ICE Detention Statistics", domain.CategoryGovernment, domain.TierMedium)
		s.False(src.ID.IsNil())
		s.Equal(1, src.Version)

		got, err := s.service.Get(s.ctx, src.ID)
		s.Require().NoError(err)
		s.Equal("ICE Detention Statistics", got.Name)
		s.Equal(domain.TierMedium, got.TrustTier)

		history, err := s.service.History(s.ctx, src.ID)
		s.Require().NoError(err)
		s.Require().Len(history, 1)
		s.Equal("registered", history[0].Reason)
	})

	s.Run("duplicate name conflicts", func() {
		_, err := s.service.Register(s.ctx, models.Source{
			Name: "ICE Detention Statistics", Category: domain.CategoryGovernment,
			TrustTier: domain.TierMedium, URL: "https://ice.gov",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("invalid tier is a validation error", func() {
		_, err := s.service.Register(s.ctx, models.Source{
			Name: "Blog", Category: domain.CategoryMedia, TrustTier: "viral", URL: "https://blog.example",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("derived source needs no url", func() {
		src, err := s.service.Register(s.ctx, models.Source{
			Name: "Internal aggregation", Category: domain.CategoryAcademic, TrustTier: domain.TierMedium, Derived: true,
		})
		s.Require().NoError(err)
		s.True(src.Derived)
	})
}

func (s *SourceServiceSuite) TestGetUnknown() {
	_, err := s.service.Get(s.ctx, 404)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *SourceServiceSuite) TestListFilters() {
	s.register("DHS OIG", domain.CategoryGovernment, domain.TierHigh)
	s.register("TRAC", domain.CategoryAcademic, domain.TierHigh)
	s.register("Tabloid", domain.CategoryMedia, domain.TierLow)

	all, err := s.service.List(s.ctx, models.ListFilter{})
	s.Require().NoError(err)
	s.Len(all, 3)
	s.Equal("DHS OIG", all[0].Name)

	high := domain.TierHigh
	onlyHigh, err := s.service.List(s.ctx, models.ListFilter{Tier: &high})
	s.Require().NoError(err)
	s.Len(onlyHigh, 2)

	gov := domain.CategoryGovernment
	govHigh, err := s.service.List(s.ctx, models.ListFilter{Tier: &high, Category: &gov})
	s.Require().NoError(err)
	s.Require().Len(govHigh, 1)
	s.Equal("DHS OIG", govHigh[0].Name)
}

func (s *SourceServiceSuite) TestMarkReverified() {
	src := s.register("ACLU", domain.CategoryNGO, domain.TierHigh)
	archive := "https://web.archive.org/web/2025/aclu.org"
	ctx := requestcontext.WithTime(s.ctx, time.Date(2025, 8, 2, 0, 0, 0, 0, time.UTC))

	updated, err := s.service.MarkReverified(ctx, src.ID, models.Reverification{
		Date: time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC), Notes: "link checked", ArchiveURL: &archive,
	})
	s.Require().NoError(err)
	s.Equal(2, updated.Version)
	s.Equal("2025-08-01", domain.FormatDate(*updated.LastVerified))
	s.Equal(archive, *updated.ArchiveURL)

	history, err := s.service.History(ctx, src.ID)
	s.Require().NoError(err)
	s.Require().Len(history, 2)
	s.Nil(history[0].Snapshot.LastVerified)
	s.Equal("link checked", history[1].Snapshot.VerificationNotes)

	entries, err := changelog.New(s.db).ForRecord(ctx, "sources", int64(src.ID))
	s.Require().NoError(err)
	s.Len(entries, 4) // create + last_verified + notes + archive_url
	s.Equal(changelog.ChangeReverify, entries[1].ChangeType)

	s.Run("unknown source", func() {
		_, err := s.service.MarkReverified(ctx, 999, models.Reverification{Date: time.Now()})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *SourceServiceSuite) TestDelete() {
	s.Run("referenced source is rejected and unchanged", func() {
		src := s.register("Referenced", domain.CategoryGovernment, domain.TierMedium)
		_, err := s.db.ExecContext(s.ctx, `INSERT INTO data_points
			(metric_name, value, primary_source_id, verification_status, created_at, updated_at)
			VALUES ('Detention population', '61,000', ?, 'unverified', '2025-01-01', '2025-01-01')`, int64(src.ID))
		s.Require().NoError(err)

		err = s.service.Delete(s.ctx, src.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeReferentialIntegrity))

		got, err := s.service.Get(s.ctx, src.ID)
		s.Require().NoError(err)
		s.False(got.IsRetired())
		s.Equal(1, got.Version)
	})

	s.Run("cross reference counts as a reference", func() {
		primary := s.register("Primary", domain.CategoryNGO, domain.TierHigh)
		xref := s.register("Cross", domain.CategoryAcademic, domain.TierHigh)
		var dpID int64
		s.Require().NoError(s.db.QueryRowContext(s.ctx, `INSERT INTO data_points
			(metric_name, value, primary_source_id, verification_status, created_at, updated_at)
			VALUES ('Arrests', '1', ?, 'unverified', '2025-01-01', '2025-01-01') RETURNING id`, int64(primary.ID)).Scan(&dpID))
		_, err := s.db.ExecContext(s.ctx, `INSERT INTO data_point_cross_references (data_point_id, source_id, position) VALUES (?, ?, 0)`, dpID, int64(xref.ID))
		s.Require().NoError(err)

		s.True(dErrors.HasCode(s.service.Delete(s.ctx, xref.ID), dErrors.CodeReferentialIntegrity))
	})

	s.Run("unreferenced source is retired", func() {
		src := s.register("Unused", domain.CategoryLegal, domain.TierMedium)
		s.Require().NoError(s.service.Delete(s.ctx, src.ID))

		got, err := s.service.Get(s.ctx, src.ID)
		s.Require().NoError(err)
		s.True(got.IsRetired())

		active, err := s.service.List(s.ctx, models.ListFilter{})
		s.Require().NoError(err)
		for _, a := range active {
			s.NotEqual(src.ID, a.ID)
		}
	})
}

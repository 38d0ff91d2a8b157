package handler

//go:generate mockgen -source=handler.go -destination=mocks/datapoint-mocks.go -package=mocks Service

import (
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"explorer/internal/changelog"
	cmodels "explorer/internal/contradiction/models"
	"explorer/internal/datapoint/handler/mocks"
	"explorer/internal/datapoint/models"
	"explorer/internal/datapoint/service"
	"explorer/internal/trust"
	"explorer/pkg/domain"
	dErrors "explorer/pkg/domain-errors"
	"explorer/pkg/platform/middleware/admin"
	"explorer/pkg/testutil"
)

type HandlerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	service *mocks.MockService
	router  http.Handler
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)
	logger := testutil.DiscardLogger()

	h := New(s.service, logger)
	r := chi.NewRouter()
	h.Register(r)
	r.Route("/admin", func(r chi.Router) {
		r.Use(admin.RequireAdminToken(testutil.TestAdminToken, logger))
		h.RegisterAdmin(r)
	})
	s.router = r
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func figure(s string) *string { return &s }

func contested(id domain.DataPointID) *models.DataPoint {
	n := 32.0
	return &models.DataPoint{
		ID:                  id,
		MetricName:          "Deaths in Custody (2025)",
		Value:               "32",
		ValueNumeric:        &n,
		PrimarySourceID:     2,
		VerificationStatus:  domain.StatusContested,
		CrossReferences:     []domain.SourceID{1},
		GovernmentFigure:    figure("10"),
		IndependentFigure:   figure("32"),
		GovernmentSourceID:  1,
		IndependentSourceID: 2,
		TrustBadge:          string(trust.BadgeContested),
		UpdatedAt:           time.Date(2025, 12, 20, 10, 0, 0, 0, time.UTC),
	}
}

func (s *HandlerSuite) TestGet() {
	s.Run("renders the live badge and open contradiction", func() {
		dp := contested(5)
		dp.TrustBadge = string(trust.BadgeUnverified) // stale stamp
		s.service.EXPECT().Get(gomock.Any(), domain.DataPointID(5)).Return(&service.View{
			DataPoint: dp,
			Badge:     trust.BadgeContested,
			Contradiction: &cmodels.Contradiction{
				ID: 1, MetricName: dp.MetricName, RecommendedFigure: "32", Status: cmodels.StatusOpen,
			},
		}, nil)

		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodGet, "/data-points/5", nil))
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
		resp := testutil.UnmarshalResponse[DataPointResponse](s.T(), rr)
		assert.Equal(s.T(), "CONTESTED", resp.TrustBadge)
		require.NotNil(s.T(), resp.Contradiction)
		assert.Equal(s.T(), "32", resp.Contradiction.RecommendedFigure)
		assert.Equal(s.T(), []int64{1}, resp.CrossReferences)
	})

	s.Run("unknown id is 404", func() {
		s.service.EXPECT().Get(gomock.Any(), domain.DataPointID(6)).
			Return(nil, dErrors.New(dErrors.CodeNotFound, "data point 6 not found"))
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodGet, "/data-points/6", nil))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, string(dErrors.CodeNotFound))
	})
}

func (s *HandlerSuite) TestHistory() {
	s.service.EXPECT().History(gomock.Any(), domain.DataPointID(5)).Return([]changelog.Entry{
		{ChangeType: changelog.ChangeUpdate, Field: "government_figure", OldValue: figure("10"), NewValue: figure("32"),
			Reason: "ICE revised count", ChangedAt: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)},
	}, nil)

	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodGet, "/data-points/5/history", nil))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	resp := testutil.UnmarshalResponse[struct {
		Changes []ChangeResponse `json:"changes"`
	}](s.T(), rr)
	require.Len(s.T(), resp.Changes, 1)
	assert.Equal(s.T(), "2026-01-02T00:00:00Z", resp.Changes[0].ChangedAt)
}

func (s *HandlerSuite) TestRecord() {
	body := map[string]any{
		"metric_name":        "Deaths in Custody (2025)",
		"value":              "32",
		"primary_source_id":  2,
		"cross_references":   []int64{1},
		"government_figure":  "10",
		"independent_figure": "32",
		"date_reported":      "2025-12-20",
	}

	s.Run("admin token required", func() {
		rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/admin/data-points", body))
		testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
	})

	s.Run("records and returns 201", func() {
		s.service.EXPECT().Record(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ any, dp models.DataPoint) (*models.DataPoint, error) {
				assert.Equal(s.T(), domain.SourceID(2), dp.PrimarySourceID)
				assert.Equal(s.T(), []domain.SourceID{1}, dp.CrossReferences)
				require.NotNil(s.T(), dp.DateReported)
				return contested(9), nil
			})
		rr := testutil.DoRequest(s.router, testutil.NewAdminJSONRequest(s.T(), http.MethodPost, "/admin/data-points", body))
		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
		resp := testutil.UnmarshalResponse[DataPointResponse](s.T(), rr)
		assert.Equal(s.T(), "contested", resp.VerificationStatus)
		assert.Equal(s.T(), int64(9), resp.ID)
	})

	s.Run("unknown source maps to 400", func() {
		s.service.EXPECT().Record(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeUnknownSource, "primary_source_id: source 2 does not exist"))
		rr := testutil.DoRequest(s.router, testutil.NewAdminJSONRequest(s.T(), http.MethodPost, "/admin/data-points", body))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeUnknownSource))
	})

	s.Run("bad date is rejected before the service", func() {
		bad := map[string]any{"metric_name": "m", "value": "1", "primary_source_id": 2, "date_reported": "20/12/2025"}
		rr := testutil.DoRequest(s.router, testutil.NewAdminJSONRequest(s.T(), http.MethodPost, "/admin/data-points", bad))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeValidation))
	})
}

func (s *HandlerSuite) TestUpdate() {
	s.Run("passes only the supplied fields", func() {
		s.service.EXPECT().Update(gomock.Any(), domain.DataPointID(9), gomock.Any()).DoAndReturn(
			func(_ any, _ domain.DataPointID, p models.Patch) (*models.DataPoint, error) {
				require.NotNil(s.T(), p.IndependentFigure)
				assert.Equal(s.T(), "27%", *p.IndependentFigure)
				assert.Nil(s.T(), p.GovernmentFigure)
				assert.Equal(s.T(), "CATO analysis", p.Reason)
				return contested(9), nil
			})
		req := testutil.NewAdminJSONRequest(s.T(), http.MethodPatch, "/admin/data-points/9",
			map[string]any{"independent_figure": "27%", "reason": "CATO analysis"})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusOK)
	})

	s.Run("empty patch is a validation error", func() {
		req := testutil.NewAdminJSONRequest(s.T(), http.MethodPatch, "/admin/data-points/9", map[string]any{"reason": "nothing"})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeValidation))
	})

	s.Run("invalid status is a validation error", func() {
		req := testutil.NewAdminJSONRequest(s.T(), http.MethodPatch, "/admin/data-points/9", map[string]any{"verification_status": "maybe"})
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeValidation))
	})
}

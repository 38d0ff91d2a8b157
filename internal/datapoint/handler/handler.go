package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"explorer/internal/changelog"
	"explorer/internal/datapoint/models"
	"explorer/internal/datapoint/service"
	"explorer/pkg/domain"
	"explorer/pkg/platform/httputil"
	"explorer/pkg/requestcontext"
)

// Service defines the data point operations the handler needs.
type Service interface {
	Record(ctx context.Context, dp models.DataPoint) (*models.DataPoint, error)
	Update(ctx context.Context, id domain.DataPointID, patch models.Patch) (*models.DataPoint, error)
	Get(ctx context.Context, id domain.DataPointID) (*service.View, error)
	History(ctx context.Context, id domain.DataPointID) ([]changelog.Entry, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/data-points/{id}", h.HandleGet)
	r.Get("/data-points/{id}/history", h.HandleHistory)
}

func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/data-points", h.HandleRecord)
	r.Patch("/data-points/{id}", h.HandleUpdate)
}

// HandleGet handles GET /data-points/{id}. The badge is computed live.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseDataPointID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	view, err := h.service.Get(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, viewResponse(view))
}

// HandleHistory handles GET /data-points/{id}/history.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseDataPointID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	entries, err := h.service.History(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]ChangeResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toChangeResponse(e))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"data_point_id": int64(id), "changes": out})
}

// HandleRecord handles POST /admin/data-points.
func (h *Handler) HandleRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[RecordRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	dp, err := h.service.Record(ctx, req.DataPoint())
	if err != nil {
		h.logger.WarnContext(ctx, "record data point failed",
			"request_id", requestID,
			"metric_name", req.MetricName,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toResponse(dp))
}

// HandleUpdate handles PATCH /admin/data-points/{id}.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	id, err := domain.ParseDataPointID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[PatchRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	dp, err := h.service.Update(ctx, id, req.Patch())
	if err != nil {
		h.logger.WarnContext(ctx, "update data point failed",
			"request_id", requestID,
			"data_point_id", id,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(dp))
}

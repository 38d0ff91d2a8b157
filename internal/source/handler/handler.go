package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"explorer/internal/source/models"
	"explorer/pkg/domain"
	"explorer/pkg/platform/httputil"
	"explorer/pkg/requestcontext"
)

// Service defines the source registry operations the handler needs.
type Service interface {
	Register(ctx context.Context, src models.Source) (*models.Source, error)
	Get(ctx context.Context, id domain.SourceID) (*models.Source, error)
	List(ctx context.Context, filter models.ListFilter) ([]*models.Source, error)
	MarkReverified(ctx context.Context, id domain.SourceID, rv models.Reverification) (*models.Source, error)
	Delete(ctx context.Context, id domain.SourceID) error
	History(ctx context.Context, id domain.SourceID) ([]models.Version, error)
}

// Handler exposes the source registry over HTTP.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the public read routes.
func (h *Handler) Register(r chi.Router) {
	r.Get("/sources", h.HandleList)
	r.Get("/sources/{id}", h.HandleGet)
	r.Get("/sources/{id}/history", h.HandleHistory)
}

// RegisterAdmin mounts write routes; the caller applies the admin guard.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/sources", h.HandleRegister)
	r.Post("/sources/{id}/reverify", h.HandleReverify)
	r.Delete("/sources/{id}", h.HandleDelete)
}

// HandleList handles GET /sources?category=&tier=.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var filter models.ListFilter
	if c := r.URL.Query().Get("category"); c != "" {
		category, err := domain.ParseSourceCategory(c)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		filter.Category = &category
	}
	if t := r.URL.Query().Get("tier"); t != "" {
		tier, err := domain.ParseTrustTier(t)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		filter.Tier = &tier
	}
	filter.IncludeRetired = r.URL.Query().Get("include_retired") == "true"

	sources, err := h.service.List(ctx, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "list sources failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	out := make([]SourceResponse, 0, len(sources))
	for _, s := range sources {
		out = append(out, toResponse(s))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"sources": out})
}

// HandleGet handles GET /sources/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseSourceID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	src, err := h.service.Get(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(src))
}

// HandleHistory handles GET /sources/{id}/history.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseSourceID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	versions, err := h.service.History(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]VersionResponse, 0, len(versions))
	for i := range versions {
		v := versions[i]
		out = append(out, VersionResponse{
			Version:   v.Version,
			Reason:    v.Reason,
			ChangedAt: v.ChangedAt.UTC().Format(time.RFC3339),
			Snapshot:  toResponse(&v.Snapshot),
		})
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"source_id": int64(id), "versions": out})
}

// HandleRegister handles POST /admin/sources.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[RegisterSourceRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	src, err := h.service.Register(ctx, req.Source())
	if err != nil {
		h.logger.WarnContext(ctx, "register source failed",
			"request_id", requestID,
			"name", req.Name,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toResponse(src))
}

// HandleReverify handles POST /admin/sources/{id}/reverify.
func (h *Handler) HandleReverify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	id, err := domain.ParseSourceID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[ReverifyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	src, err := h.service.MarkReverified(ctx, id, req.Reverification())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(src))
}

// HandleDelete handles DELETE /admin/sources/{id}.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseSourceID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

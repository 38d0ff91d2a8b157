package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"explorer/internal/catalog"
	"explorer/internal/query"
	dErrors "explorer/pkg/domain-errors"
	"explorer/pkg/platform/httputil"
	"explorer/pkg/requestcontext"
)

// Service defines the query engine operations the handler needs.
type Service interface {
	Execute(ctx context.Context, req query.Request) (*query.Result, error)
	Export(ctx context.Context, req query.Request, format query.Format) (*query.Export, error)
}

// Handler exposes the catalog, paginated queries and exports over HTTP.
type Handler struct {
	service      Service
	catalog      *catalog.Catalog
	logger       *slog.Logger
	exportGuards []func(http.Handler) http.Handler
}

// New builds the handler. exportGuards wrap the export routes only, which is
// where the rate limiter goes.
func New(service Service, cat *catalog.Catalog, logger *slog.Logger, exportGuards ...func(http.Handler) http.Handler) *Handler {
	return &Handler{service: service, catalog: cat, logger: logger, exportGuards: exportGuards}
}

// Register mounts the public read routes.
func (h *Handler) Register(r chi.Router) {
	r.Get("/catalog", h.HandleCatalog)
	r.Get("/catalog/{table}", h.HandleTable)
	r.Post("/query", h.HandleQuery)
	r.Group(func(r chi.Router) {
		r.Use(h.exportGuards...)
		r.Post("/export/csv", h.HandleExport(query.FormatCSV))
		r.Post("/export/json", h.HandleExport(query.FormatJSON))
	})
}

// HandleCatalog handles GET /catalog.
func (h *Handler) HandleCatalog(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"tables": h.catalog.Tables()})
}

// HandleTable handles GET /catalog/{table}.
func (h *Handler) HandleTable(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "table")
	t, ok := h.catalog.Table(name)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnknownTable, fmt.Sprintf("unknown table %q", name)))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, t)
}

// HandleQuery handles POST /query.
func (h *Handler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[QueryRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	res, err := h.service.Execute(ctx, req.Query())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(res))
}

// HandleExport handles POST /export/csv and /export/json. The body is only
// written once the whole result set is known to fit under the cap.
func (h *Handler) HandleExport(format query.Format) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := requestcontext.RequestID(ctx)
		req, ok := httputil.DecodeAndPrepare[QueryRequest](w, r, h.logger, ctx, requestID)
		if !ok {
			return
		}
		q := req.Query()
		q.Page = query.Page{}
		q.Summary = false

		x, err := h.service.Export(ctx, q, format)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		w.Header().Set("Content-Type", format.ContentType())
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, x.Filename()))
		w.WriteHeader(http.StatusOK)
		if err := x.Write(w); err != nil {
			// Headers are already sent; all that is left is to log it.
			h.logger.ErrorContext(ctx, "export write failed",
				"request_id", requestID,
				"table", x.Table,
				"error", err,
			)
		}
	}
}

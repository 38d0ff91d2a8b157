package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"explorer/internal/app"
	dphandler "explorer/internal/datapoint/handler"
	"explorer/internal/platform/config"
	"explorer/internal/platform/database"
	httpmetrics "explorer/internal/platform/metrics"
	queryhandler "explorer/internal/query/handler"
	sourcehandler "explorer/internal/source/handler"
	"explorer/pkg/platform/httputil"
	"explorer/pkg/platform/middleware/admin"
	"explorer/pkg/platform/middleware/ratelimit"
	"explorer/pkg/platform/middleware/requestid"
	"explorer/pkg/platform/middleware/requesttime"
)

// server owns the service graph and the assembled router.
type server struct {
	services *app.Services
	router   http.Handler
}

func newServer(ctx context.Context, cfg *config.Config, log *slog.Logger, reg *prometheus.Registry) (*server, error) {
	services, err := app.New(ctx, cfg, log, reg)
	if err != nil {
		return nil, err
	}

	limiter := ratelimit.New(cfg.Server.ExportsPerMinute, cfg.Server.ExportBurst, log)
	sourceHandler := sourcehandler.New(services.Sources, log)
	pointHandler := dphandler.New(services.DataPoints, log)
	queryHandler := queryhandler.New(services.Engine, services.Catalog, log, limiter.Middleware)

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(requestid.Middleware)
	r.Use(requesttime.Middleware)
	r.Use(httpmetrics.NewWith(reg).Middleware)

	r.Get("/healthz", healthz(services.DB))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	queryHandler.Register(r)
	sourceHandler.Register(r)
	pointHandler.Register(r)
	r.Route("/admin", func(r chi.Router) {
		r.Use(admin.RequireAdminToken(cfg.Server.AdminToken, log))
		sourceHandler.RegisterAdmin(r)
		pointHandler.RegisterAdmin(r)
	})

	if cfg.Server.AdminToken == "" {
		log.Warn("server.admin_token is empty; admin routes will reject every request")
	}
	return &server{services: services, router: r}, nil
}

func (s *server) Close() error {
	return s.services.Close()
}

func healthz(db *database.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "driver": string(db.Dialect)})
	}
}

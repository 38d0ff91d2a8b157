package admin

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"explorer/pkg/requestcontext"
)

func TestRequireAdminToken(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var actor string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor = requestcontext.Actor(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	t.Run("accepts matching token", func(t *testing.T) {
		h := RequireAdminToken("s3cret", logger)(next)
		req := httptest.NewRequest(http.MethodPost, "/admin/sources", nil)
		req.Header.Set("X-Admin-Token", "s3cret")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, ActorAdminAPI, actor)
	})

	t.Run("rejects wrong token", func(t *testing.T) {
		h := RequireAdminToken("s3cret", logger)(next)
		req := httptest.NewRequest(http.MethodPost, "/admin/sources", nil)
		req.Header.Set("X-Admin-Token", "nope")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "unauthorized")
	})

	t.Run("empty configured token fails closed", func(t *testing.T) {
		h := RequireAdminToken("", logger)(next)
		req := httptest.NewRequest(http.MethodPost, "/admin/sources", nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

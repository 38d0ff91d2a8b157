package ratelimit

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLimiter(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	send := func(h http.Handler, ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/export/csv", nil)
		req.RemoteAddr = ip + ":5555"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	t.Run("burst then reject", func(t *testing.T) {
		h := New(1, 2, logger).Middleware(ok)
		assert.Equal(t, http.StatusOK, send(h, "10.0.0.1").Code)
		assert.Equal(t, http.StatusOK, send(h, "10.0.0.1").Code)
		w := send(h, "10.0.0.1")
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.NotEmpty(t, w.Header().Get("Retry-After"))
	})

	t.Run("buckets are per client", func(t *testing.T) {
		h := New(1, 1, logger).Middleware(ok)
		assert.Equal(t, http.StatusOK, send(h, "10.0.0.2").Code)
		assert.Equal(t, http.StatusOK, send(h, "10.0.0.3").Code)
		assert.Equal(t, http.StatusTooManyRequests, send(h, "10.0.0.2").Code)
	})

	t.Run("disabled when rate is zero", func(t *testing.T) {
		h := New(0, 0, logger).Middleware(ok)
		for i := 0; i < 5; i++ {
			assert.Equal(t, http.StatusOK, send(h, "10.0.0.4").Code)
		}
	})
}

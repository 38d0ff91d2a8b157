// Package ratelimit throttles expensive read endpoints (exports) per client IP
// with a token bucket. Idle buckets expire from an in-process cache.
package ratelimit

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"explorer/pkg/platform/httputil"
	"explorer/pkg/platform/middleware/metadata"
	"explorer/pkg/requestcontext"
)

// Limiter hands out one token bucket per client IP.
type Limiter struct {
	perMinute int
	burst     int
	buckets   *gocache.Cache
	logger    *slog.Logger
}

// New builds a limiter allowing perMinute requests per client with the given burst.
// A non-positive perMinute disables limiting.
func New(perMinute, burst int, logger *slog.Logger) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		perMinute: perMinute,
		burst:     burst,
		buckets:   gocache.New(10*time.Minute, 20*time.Minute),
		logger:    logger,
	}
}

func (l *Limiter) bucket(key string) *rate.Limiter {
	if v, ok := l.buckets.Get(key); ok {
		return v.(*rate.Limiter)
	}
	lim := rate.NewLimiter(rate.Limit(float64(l.perMinute)/60.0), l.burst)
	if err := l.buckets.Add(key, lim, gocache.DefaultExpiration); err != nil {
		// Lost a race with another request from the same client.
		if v, ok := l.buckets.Get(key); ok {
			return v.(*rate.Limiter)
		}
	}
	return lim
}

// Middleware rejects requests beyond the client's budget with 429.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l == nil || l.perMinute <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		ip := metadata.ClientIPFromRequest(r)
		lim := l.bucket(ip)
		reservation := lim.Reserve()
		if delay := reservation.Delay(); delay > 0 {
			reservation.Cancel()
			retryAfter := int(math.Ceil(delay.Seconds()))
			ctx := r.Context()
			l.logger.WarnContext(ctx, "export rate limit exceeded",
				"request_id", requestcontext.RequestID(ctx),
				"client_ip", ip,
				"retry_after", retryAfter,
			)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			httputil.WriteJSON(w, http.StatusTooManyRequests, map[string]any{
				"error":             "rate_limited",
				"error_description": "too many export requests, try again later",
				"retry_after":       retryAfter,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

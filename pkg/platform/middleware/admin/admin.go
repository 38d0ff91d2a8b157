package admin

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	dErrors "explorer/pkg/domain-errors"
	"explorer/pkg/platform/httputil"
	"explorer/pkg/requestcontext"
)

// ActorAdminAPI is recorded as the actor for writes made through the admin API.
const ActorAdminAPI = "admin-api"

// RequireAdminToken guards administrative write routes with a shared token
// carried in the X-Admin-Token header. An empty expected token rejects every
// request so a misconfigured deployment fails closed.
func RequireAdminToken(expectedToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token := r.Header.Get("X-Admin-Token")
			if expectedToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
				logger.WarnContext(ctx, "admin token mismatch",
					"request_id", requestcontext.RequestID(ctx),
					"path", r.URL.Path,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "admin token required"))
				return
			}
			ctx = requestcontext.WithActor(ctx, ActorAdminAPI)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

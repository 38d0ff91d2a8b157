package requestid

import (
	"net/http"

	"github.com/google/uuid"

	"explorer/pkg/requestcontext"
)

// Header is echoed on every response.
const Header = "X-Request-ID"

// Middleware propagates an inbound X-Request-ID or mints a new UUID.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(Header)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(Header, id)
		ctx := requestcontext.WithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

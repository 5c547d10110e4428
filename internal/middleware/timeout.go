package middleware

import (
	"context"
	"net/http"
	"time"
)

// TimeoutMiddleware bounds each request's context with the given deadline,
// so a hung storage round trip cannot pin a handler forever. A non-positive
// duration disables the bound.
func TimeoutMiddleware(d time.Duration) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

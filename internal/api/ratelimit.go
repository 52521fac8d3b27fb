package api

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimitMiddleware limits requests per client IP over a sliding window.
func RateLimitMiddleware(resolver *ClientIPResolver, limit int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(limit, window,
		httprate.WithKeyFuncs(resolver.KeyFunc),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusTooManyRequests, ErrCodeRateLimited, "Too many requests, please try again later")
		}),
	)
}

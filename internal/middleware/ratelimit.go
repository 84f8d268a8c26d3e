package middleware

import (
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/yolla/server/internal/repo"
)

// RateLimitMiddleware admits at most limit requests per window for each key, using a shared store.
// A store failure rejects the request.
func RateLimitMiddleware(limiter repo.RateLimitRepo, limit int, window time.Duration, keyFunc func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			ok, err := limiter.Allow(r.Context(), key, limit, window)
			if err != nil {
				log.Printf("rate limiter unavailable for %s: %v", key, err)
				respondWithError(w, http.StatusServiceUnavailable, "rate limiter unavailable")
				return
			}
			if !ok {
				w.Header().Set("Retry-After", retryAfter(window))
				respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// retryAfter is the Retry-After value in whole seconds
func retryAfter(window time.Duration) string {
	return strconv.Itoa(int(window / time.Second))
}

// ClientIP returns the client address without port. chi's RealIP middleware has already
// replaced RemoteAddr with X-Forwarded-For / X-Real-IP when present.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// KeyByRoute builds a rate limit key scoped to a route name and the client IP
func KeyByRoute(route string) func(*http.Request) string {
	return func(r *http.Request) string {
		return route + ":ip:" + ClientIP(r)
	}
}

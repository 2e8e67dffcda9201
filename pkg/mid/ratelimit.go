package mid

import (
	"net/http"
	"strconv"
)

// Allower decides whether one more request for key may proceed.
type Allower interface {
	Allow(key string) bool
}

// RateLimit rejects requests with 429 once their key's budget is spent. key
// picks the bucket, for example a URL parameter; an empty key is not limited.
func RateLimit(l Allower, key func(*http.Request) string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if k := key(r); k != "" && !l.Allow(k) {
				w.Header().Set("Retry-After", strconv.Itoa(1))
				WriteJSONError(w, http.StatusTooManyRequests, "rate limited")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

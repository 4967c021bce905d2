package auth

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"

	"vaultgram/pkg/logger"
)

// SecConfig configures the query API gate. With no keys configured the
// middleware only rate-limits; the API is meant for loopback use and keys
// are the opt-in for exposing it further.
type SecConfig struct {
	APIKeys []string
	RPS     float64
	Burst   int
}

// Middleware authenticates requests by API key and rate-limits per caller.
// Health and readiness probes stay open so deployment systems can poll
// without credentials.
func Middleware(cfg SecConfig) func(http.Handler) http.Handler {
	limiters := newLimiterPool(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if probePath(r) {
				next.ServeHTTP(w, r)
				return
			}

			key := requestKey(r)
			if len(cfg.APIKeys) > 0 && !keyAllowed(key, cfg.APIKeys) {
				logger.Warn("request_unauthorized", "path", r.URL.Path, "remote", r.RemoteAddr)
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}

			if cfg.RPS > 0 {
				limKey := key
				if limKey == "" {
					limKey = clientIP(r)
				}
				if !limiters.Allow(limKey) {
					logger.Warn("request_rate_limited", "path", r.URL.Path, "remote", r.RemoteAddr)
					http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func probePath(r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	return r.URL.Path == "/healthz" || r.URL.Path == "/readyz"
}

// requestKey pulls the caller's key from X-API-Key or a bearer token.
func requestKey(r *http.Request) string {
	if k := strings.TrimSpace(r.Header.Get("X-API-Key")); k != "" {
		return k
	}
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
	}
	return ""
}

func keyAllowed(key string, allowed []string) bool {
	if key == "" {
		return false
	}
	ok := false
	for _, a := range allowed {
		if subtle.ConstantTimeCompare([]byte(key), []byte(a)) == 1 {
			ok = true
		}
	}
	return ok
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i > 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

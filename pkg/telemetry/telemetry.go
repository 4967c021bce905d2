// Package telemetry provides minimal, low-overhead request timing for the
// query API. Only slow requests are logged by default; a small deterministic
// sample of all requests is logged at debug level.
package telemetry

import (
	"net/http"
	"sync/atomic"
	"time"

	"vaultgram/pkg/logger"
)

var (
	requestCtr    uint64
	sampleEvery   int64 = 1000
	slowThreshold       = 200 * time.Millisecond
)

// SetSlowThreshold sets the duration above which a request gets a log line.
func SetSlowThreshold(d time.Duration) {
	if d > 0 {
		slowThreshold = d
	}
}

// Middleware wraps the handler and records request timing.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		n := atomic.AddUint64(&requestCtr, 1)

		srw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(srw, r)

		dur := time.Since(start)
		switch {
		case dur > slowThreshold:
			logger.Warn("slow_request",
				"seq", n,
				"method", r.Method,
				"path", r.URL.Path,
				"status", srw.status,
				"duration_ms", dur.Milliseconds())
		case sampleEvery > 0 && int64(n)%sampleEvery == 0:
			logger.Debug("request_sample",
				"seq", n,
				"method", r.Method,
				"path", r.URL.Path,
				"status", srw.status,
				"duration_ms", dur.Milliseconds())
		}
	})
}

// statusRecorder captures the response status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

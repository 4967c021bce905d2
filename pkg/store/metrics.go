package store

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	writesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vaultgram_store_writes_total",
		Help: "Successful record writes by namespace.",
	}, []string{"namespace"})

	readsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vaultgram_store_reads_total",
		Help: "Successful record point reads by namespace.",
	}, []string{"namespace"})

	integritySkips = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vaultgram_store_integrity_skips_total",
		Help: "Records skipped because decryption or authentication failed.",
	})

	writeRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vaultgram_store_write_retries_total",
		Help: "Write attempts beyond the first.",
	})

	retryExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vaultgram_store_retry_exhausted_total",
		Help: "Writes that failed after the full retry budget.",
	})

	purgedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vaultgram_store_purged_total",
		Help: "Records removed by retention sweeps, by namespace.",
	}, []string{"namespace"})
)

// namespaceOf extracts the leading key namespace for metric labels.
func namespaceOf(key []byte) string {
	s := string(key)
	if i := strings.IndexByte(s, ':'); i > 0 {
		return s[:i]
	}
	return "unknown"
}

package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"
)

var idSeq uint64

// GenID returns a short unique identifier: random hex with a timestamp and
// sequence fallback when the random source is unavailable.
func GenID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err == nil {
		return hex.EncodeToString(b)
	}
	return fmt.Sprintf("%d-%06d", time.Now().UTC().UnixNano(), atomic.AddUint64(&idSeq, 1))
}

package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/pebble"

	"vaultgram/pkg/logger"
	"vaultgram/pkg/models"
)

// PurgeStats summarizes a single retention sweep.
type PurgeStats struct {
	Revisions int
	Deletions int
	Skipped   int
	Truncated bool
}

// PurgeExpired removes revision and deletion records whose timestamps fall
// before cutoff (unix nanoseconds). Message records are never purged.
// limit caps the number of records removed in one sweep; Truncated reports
// that the cap was hit and another sweep is needed. With dryRun the sweep
// only counts.
func (s *Store) PurgeExpired(ctx context.Context, cutoff int64, limit int, dryRun bool) (PurgeStats, error) {
	var stats PurgeStats
	if s.db == nil {
		return stats, fmt.Errorf("%w: store not opened", ErrStorageUnavailable)
	}
	budget := limit
	if budget <= 0 {
		budget = 1 << 30
	}

	var victims [][]byte
	err := s.scan([]byte(nsDeletion+":"), func(key, _ []byte) {
		if stats.Truncated || ctx.Err() != nil {
			stats.Truncated = true
			return
		}
		chat, ts, id, perr := parseDelKey(key)
		if perr != nil {
			logger.Warn("retention_key_unparseable", "key", string(key), "error", perr)
			stats.Skipped++
			return
		}
		if ts >= cutoff {
			return
		}
		if len(victims)+2 > budget {
			stats.Truncated = true
			return
		}
		victims = append(victims, key, delIDKey(chat, id))
		stats.Deletions++
	})
	if err != nil {
		return stats, err
	}

	err = s.scan([]byte(nsRevision+":"), func(key, value []byte) {
		if stats.Truncated || ctx.Err() != nil {
			stats.Truncated = true
			return
		}
		var rev models.Revision
		if uerr := s.unseal(key, value, &rev); uerr != nil {
			logger.Warn("retention_record_unreadable", "key", string(key), "error", uerr)
			stats.Skipped++
			return
		}
		if rev.EditedTS >= cutoff {
			return
		}
		if len(victims)+1 > budget {
			stats.Truncated = true
			return
		}
		victims = append(victims, key)
		stats.Revisions++
	})
	if err != nil {
		return stats, err
	}

	if dryRun {
		return stats, nil
	}
	for _, key := range victims {
		if derr := s.db.Delete(key, pebble.Sync); derr != nil {
			return stats, fmt.Errorf("%w: delete %s: %v", ErrStorageUnavailable, key, derr)
		}
		purgedTotal.WithLabelValues(namespaceOf(key)).Inc()
	}
	return stats, ctx.Err()
}

// parseDelKey recovers chat, deleted_ts and message id from a deletion key
// (del:<chat>:<padded ts>-<seq>:<id>).
func parseDelKey(key []byte) (chat, ts, id int64, err error) {
	parts := strings.Split(string(key), ":")
	if len(parts) != 4 || parts[0] != nsDeletion {
		return 0, 0, 0, fmt.Errorf("unexpected deletion key shape")
	}
	chat, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, 0, err
	}
	tsPart, _, ok := strings.Cut(parts[2], "-")
	if !ok {
		return 0, 0, 0, fmt.Errorf("missing sequence suffix")
	}
	ts, err = strconv.ParseInt(tsPart, 10, 64)
	if err != nil {
		return 0, 0, 0, err
	}
	id, err = strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return 0, 0, 0, err
	}
	return chat, ts, id, nil
}

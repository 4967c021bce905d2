package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"

	"vaultgram/pkg/kms"
	"vaultgram/pkg/logger"
	"vaultgram/pkg/models"
)

// Key namespaces. Message and deletion-index keys are point lookups; the
// deletion namespace embeds a padded local timestamp so a prefix scan
// yields records ordered by deleted_at.
//
//	msg:<chat>:<id>
//	rev:<chat>:<id>:<seq, padded>
//	del:<chat>:<deleted_ts, padded>-<seq>:<id>
//	delid:<chat>:<id>
const (
	nsMessage      = "msg"
	nsRevision     = "rev"
	nsDeletion     = "del"
	nsDeletionByID = "delid"
)

// seq reduces key collisions when multiple deletions share the same
// nanosecond timestamp.
var seq uint64

// Options tune write retry behavior. Zero values fall back to defaults.
type Options struct {
	// OpTimeout bounds a single pebble operation; a stalled write fails
	// with ErrStorageUnavailable instead of blocking its event lane.
	OpTimeout time.Duration
	// RetryAttempts is the number of additional attempts after the first.
	RetryAttempts int
	// RetryBackoff is the initial backoff between attempts; it doubles
	// per attempt.
	RetryBackoff time.Duration
}

func (o Options) withDefaults() Options {
	if o.OpTimeout <= 0 {
		o.OpTimeout = 5 * time.Second
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = 2
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 50 * time.Millisecond
	}
	return o
}

// lockStripes sizes the identity lock table; writes for distinct
// identities rarely contend, writes for one identity always serialize.
const lockStripes = 128

// Store is a durable, encrypted record store backed by pebble. All records
// are JSON-marshaled and sealed by the provider with the record key as
// associated data, so a record cannot be silently moved between keys.
// Safe for concurrent use: check-then-set paths serialize per identity, so
// a buffer eviction flush arriving off-lane cannot interleave with an edit
// of the same message.
type Store struct {
	db    *pebble.DB
	prov  kms.Provider
	opts  Options
	path  string
	locks [lockStripes]sync.Mutex
}

func (s *Store) lockIdentity(chat, id int64) *sync.Mutex {
	var b [16]byte
	binary.LittleEndian.PutUint64(b[:8], uint64(chat))
	binary.LittleEndian.PutUint64(b[8:], uint64(id))
	h := fnv.New32a()
	_, _ = h.Write(b[:])
	return &s.locks[h.Sum32()%lockStripes]
}

// Open opens (or creates) a pebble database at the given path.
func Open(path string, prov kms.Provider, opts Options) (*Store, error) {
	logger.Info("opening_pebble_db", "path", path)
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return nil, fmt.Errorf("%w: open %s: %v", ErrStorageUnavailable, path, err)
	}
	logger.Info("pebble_opened", "path", path)
	return &Store{db: db, prov: prov, opts: opts.withDefaults(), path: path}, nil
}

// Close closes the pebble handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return err
	}
	s.db = nil
	logger.Info("pebble_closed", "path", s.path)
	return nil
}

// Ready reports whether the store is opened and usable.
func (s *Store) Ready() bool { return s != nil && s.db != nil }

func msgKey(chat, id int64) []byte {
	return []byte(fmt.Sprintf("%s:%d:%d", nsMessage, chat, id))
}

func revKey(chat, id int64, rseq int) []byte {
	return []byte(fmt.Sprintf("%s:%d:%d:%010d", nsRevision, chat, id, rseq))
}

func revPrefix(chat, id int64) []byte {
	return []byte(fmt.Sprintf("%s:%d:%d:", nsRevision, chat, id))
}

func delKey(chat, deletedTS int64, n uint64, id int64) []byte {
	return []byte(fmt.Sprintf("%s:%d:%020d-%06d:%d", nsDeletion, chat, deletedTS, n, id))
}

func delPrefix(chat int64) []byte {
	return []byte(fmt.Sprintf("%s:%d:", nsDeletion, chat))
}

func delIDKey(chat, id int64) []byte {
	return []byte(fmt.Sprintf("%s:%d:%d", nsDeletionByID, chat, id))
}

// seal encrypts a record for storage under key.
func (s *Store) seal(key []byte, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	ct, err := s.prov.Encrypt(data, key)
	if err != nil {
		return nil, fmt.Errorf("encrypt record: %w", err)
	}
	return ct, nil
}

// unseal decrypts and unmarshals a stored record. Authentication failure
// surfaces as ErrIntegrity.
func (s *Store) unseal(key, value []byte, v any) error {
	pt, err := s.prov.Decrypt(value, key)
	if err != nil {
		integritySkips.Inc()
		return fmt.Errorf("%w: key %s: %v", ErrIntegrity, key, err)
	}
	if err := json.Unmarshal(pt, v); err != nil {
		integritySkips.Inc()
		return fmt.Errorf("%w: key %s: %v", ErrIntegrity, key, err)
	}
	return nil
}

// setRetry writes key/value with bounded per-attempt timeout and backoff.
func (s *Store) setRetry(ctx context.Context, key, value []byte) error {
	if s.db == nil {
		return fmt.Errorf("%w: store not opened", ErrStorageUnavailable)
	}
	backoff := s.opts.RetryBackoff
	var lastErr error
	for attempt := 0; attempt <= s.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", ErrStorageUnavailable, ctx.Err())
			}
			backoff *= 2
			writeRetries.Inc()
		}
		lastErr = s.bounded(func() error {
			return s.db.Set(key, value, pebble.Sync)
		})
		if lastErr == nil {
			writesTotal.WithLabelValues(namespaceOf(key)).Inc()
			return nil
		}
	}
	retryExhausted.Inc()
	logger.Error("store_write_failed", "key", string(key), "error", lastErr)
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, lastErr)
}

// bounded runs fn and gives up after OpTimeout. A timed-out pebble call is
// abandoned to its goroutine; the caller's event lane must not stall.
func (s *Store) bounded(fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-time.After(s.opts.OpTimeout):
		return errors.New("operation timed out")
	}
}

func (s *Store) get(key []byte, v any) error {
	if s.db == nil {
		return fmt.Errorf("%w: store not opened", ErrStorageUnavailable)
	}
	val, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	buf := append([]byte(nil), val...)
	if closer != nil {
		_ = closer.Close()
	}
	readsTotal.WithLabelValues(namespaceOf(key)).Inc()
	return s.unseal(key, buf, v)
}

// PutMessage persists a message record. Re-putting an identical record is
// a no-op; a content mutation is rejected with ErrImmutable (edits must go
// through UpdateMessageContent).
func (s *Store) PutMessage(ctx context.Context, msg models.Message) error {
	mu := s.lockIdentity(msg.ChatID, msg.MessageID)
	mu.Lock()
	defer mu.Unlock()

	key := msgKey(msg.ChatID, msg.MessageID)
	var existing models.Message
	err := s.get(key, &existing)
	switch {
	case err == nil:
		if existing.Content.Equal(msg.Content) {
			return nil
		}
		logger.Warn("message_put_rejected", "chat", msg.ChatID, "id", msg.MessageID)
		return fmt.Errorf("%w: message %d/%d", ErrImmutable, msg.ChatID, msg.MessageID)
	case errors.Is(err, ErrNotFound):
	case errors.Is(err, ErrIntegrity):
		// unreadable prior record; overwrite with the fresh capture
		logger.Warn("message_overwriting_corrupt_record", "chat", msg.ChatID, "id", msg.MessageID)
	default:
		return err
	}
	ct, err := s.seal(key, msg)
	if err != nil {
		return err
	}
	return s.setRetry(ctx, key, ct)
}

// GetMessage returns the message record for the identity or ErrNotFound.
func (s *Store) GetMessage(ctx context.Context, chat, id int64) (models.Message, error) {
	var msg models.Message
	err := s.get(msgKey(chat, id), &msg)
	return msg, err
}

// UpdateMessageContent overwrites the canonical message content. This is
// the single sanctioned mutation path, used by the edit-history tracker
// after the prior content has been preserved as a revision. A record that
// does not exist yet is created from the edit.
func (s *Store) UpdateMessageContent(ctx context.Context, chat, id int64, content models.Content, ts int64) error {
	mu := s.lockIdentity(chat, id)
	mu.Lock()
	defer mu.Unlock()

	key := msgKey(chat, id)
	var msg models.Message
	err := s.get(key, &msg)
	if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrIntegrity) {
		return err
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrIntegrity) {
		msg = models.Message{ChatID: chat, MessageID: id, TS: ts}
	}
	msg.Content = content
	ct, serr := s.seal(key, msg)
	if serr != nil {
		return serr
	}
	return s.setRetry(ctx, key, ct)
}

// PutRevision appends a revision record.
func (s *Store) PutRevision(ctx context.Context, rev models.Revision) error {
	key := revKey(rev.ChatID, rev.MessageID, rev.Seq)
	ct, err := s.seal(key, rev)
	if err != nil {
		return err
	}
	return s.setRetry(ctx, key, ct)
}

// ListRevisions returns all revisions for a message ordered by seq.
// Records that fail integrity checks are skipped; the partial result is
// returned together with the joined per-record errors.
func (s *Store) ListRevisions(ctx context.Context, chat, id int64) ([]models.Revision, error) {
	var out []models.Revision
	var errs error
	err := s.scan(revPrefix(chat, id), func(key, value []byte) {
		var rev models.Revision
		if uerr := s.unseal(key, value, &rev); uerr != nil {
			logger.Warn("revision_skipped", "key", string(key), "error", uerr)
			errs = errors.Join(errs, uerr)
			return
		}
		out = append(out, rev)
	})
	if err != nil {
		return out, err
	}
	return out, errs
}

// NextRevisionSeq returns max existing seq + 1, or 0 when no revisions
// exist for the identity. Unreadable revisions still occupy their seq.
func (s *Store) NextRevisionSeq(ctx context.Context, chat, id int64) (int, error) {
	n := 0
	err := s.scan(revPrefix(chat, id), func(key, value []byte) {
		n++
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// PutDeletion records a tombstone for the identity. It is written at most
// once: a second deletion event for the same message is a no-op.
func (s *Store) PutDeletion(ctx context.Context, del models.Deletion) error {
	mu := s.lockIdentity(del.ChatID, del.MessageID)
	mu.Lock()
	defer mu.Unlock()

	idKey := delIDKey(del.ChatID, del.MessageID)
	var existing models.Deletion
	err := s.get(idKey, &existing)
	if err == nil {
		logger.Debug("deletion_already_recorded", "chat", del.ChatID, "id", del.MessageID)
		return nil
	}
	if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrIntegrity) {
		return err
	}
	n := atomic.AddUint64(&seq, 1)
	tsKey := delKey(del.ChatID, del.DeletedTS, n, del.MessageID)
	ct, serr := s.seal(tsKey, del)
	if serr != nil {
		return serr
	}
	if werr := s.setRetry(ctx, tsKey, ct); werr != nil {
		return werr
	}
	// point index for at-most-once checks and direct lookups
	idCT, serr := s.seal(idKey, del)
	if serr != nil {
		return serr
	}
	return s.setRetry(ctx, idKey, idCT)
}

// GetDeletion returns the deletion record for the identity or ErrNotFound.
func (s *Store) GetDeletion(ctx context.Context, chat, id int64) (models.Deletion, error) {
	var del models.Deletion
	err := s.get(delIDKey(chat, id), &del)
	return del, err
}

// ListDeletions returns all deletion records for a chat ordered by
// deleted_at ascending. Unreadable records are skipped and reported in the
// joined error alongside the partial result.
func (s *Store) ListDeletions(ctx context.Context, chat int64) ([]models.Deletion, error) {
	var out []models.Deletion
	var errs error
	err := s.scan(delPrefix(chat), func(key, value []byte) {
		var del models.Deletion
		if uerr := s.unseal(key, value, &del); uerr != nil {
			logger.Warn("deletion_skipped", "key", string(key), "error", uerr)
			errs = errors.Join(errs, uerr)
			return
		}
		out = append(out, del)
	})
	if err != nil {
		return out, err
	}
	return out, errs
}

// scan iterates all keys under prefix in key order.
func (s *Store) scan(prefix []byte, fn func(key, value []byte)) error {
	if s.db == nil {
		return fmt.Errorf("%w: store not opened", ErrStorageUnavailable)
	}
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer iter.Close()
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		k := append([]byte(nil), iter.Key()...)
		v := append([]byte(nil), iter.Value()...)
		fn(k, v)
	}
	return iter.Error()
}

// ListKeys returns all keys with the given prefix; used by the inspect
// utility.
func (s *Store) ListKeys(prefix string) ([]string, error) {
	var out []string
	err := s.scan([]byte(prefix), func(key, _ []byte) {
		out = append(out, string(key))
	})
	return out, err
}

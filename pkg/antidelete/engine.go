// Package antidelete captures every observed message before the remote
// service can remove it, and promotes captured copies into permanent
// tombstone records when deletion events arrive.
//
// Per message identity the engine moves Unseen -> Captured -> Tombstoned:
// a new-message event writes through buffer and store; a delete event looks
// the content up (buffer, then store, then content-unknown) and persists a
// deletion record. The original message record is kept as historical
// evidence, never removed.
package antidelete

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"vaultgram/pkg/buffer"
	"vaultgram/pkg/logger"
	"vaultgram/pkg/models"
	"vaultgram/pkg/store"
	"vaultgram/pkg/utils"
)

var (
	capturedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vaultgram_antidelete_captured_total",
		Help: "Messages captured on arrival.",
	})
	tombstonedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vaultgram_antidelete_tombstoned_total",
		Help: "Deletion records written, by content recovery source.",
	}, []string{"source"})
)

// Result is the per-identity outcome of one item in a deletion batch.
type Result struct {
	MessageID int64 `json:"message_id"`
	// ContentKnown reports whether any content was recovered.
	ContentKnown bool  `json:"content_known"`
	Err          error `json:"-"`
}

// Store is the slice of the record store the engine writes through.
type Store interface {
	PutMessage(ctx context.Context, msg models.Message) error
	GetMessage(ctx context.Context, chat, id int64) (models.Message, error)
	PutDeletion(ctx context.Context, del models.Deletion) error
	ListDeletions(ctx context.Context, chat int64) ([]models.Deletion, error)
}

// Engine wires the capture buffer and store into the event path.
type Engine struct {
	store Store
	buf   *buffer.Buffer
}

// New constructs the engine.
func New(st Store, buf *buffer.Buffer) *Engine {
	return &Engine{store: st, buf: buf}
}

// HandleNewMessage captures a message: write-through to the store plus a
// buffer entry for fast deletion answers. A store failure degrades to
// buffer-only protection (the buffer flushes on eviction) and is logged,
// not returned, so ingestion keeps running.
func (e *Engine) HandleNewMessage(ctx context.Context, msg models.Message) error {
	err := e.store.PutMessage(ctx, msg)
	switch {
	case err == nil:
		e.buf.Observe(msg, true)
		capturedTotal.Inc()
		return nil
	case errors.Is(err, store.ErrImmutable):
		// duplicate delivery with diverged content; keep the first capture
		logger.Warn("capture_conflicting_duplicate", "chat", msg.ChatID, "id", msg.MessageID)
		return nil
	default:
		logger.Error("capture_store_write_failed", "chat", msg.ChatID, "id", msg.MessageID, "error", err)
		e.buf.Observe(msg, false)
		capturedTotal.Inc()
		return nil
	}
}

// HandleDeleted processes one deletion batch for a chat. Every id is
// handled independently: a failing item is reported in its Result and
// never aborts the rest of the batch.
func (e *Engine) HandleDeleted(ctx context.Context, chatID int64, ids []int64) []Result {
	batchID := utils.GenID()
	now := time.Now().UTC().UnixNano()
	results := make([]Result, 0, len(ids))
	for _, id := range ids {
		res := e.tombstone(ctx, chatID, id, batchID, now)
		if res.Err != nil {
			logger.Error("tombstone_failed", "chat", chatID, "id", id, "batch", batchID, "error", res.Err)
		}
		results = append(results, res)
	}
	logger.Info("deletion_batch_processed", "chat", chatID, "batch", batchID, "count", len(ids))
	return results
}

func (e *Engine) tombstone(ctx context.Context, chatID, id int64, batchID string, now int64) Result {
	del := models.Deletion{
		ChatID:    chatID,
		MessageID: id,
		DeletedTS: now,
		BatchID:   batchID,
	}
	source := "unknown"
	if msg, ok := e.buf.Lookup(models.Ref{ChatID: chatID, MessageID: id}); ok {
		c := msg.Content
		del.LastKnown = &c
		del.Envelope = msg.Envelope
		source = "buffer"
	} else if msg, err := e.store.GetMessage(ctx, chatID, id); err == nil {
		c := msg.Content
		del.LastKnown = &c
		del.Envelope = msg.Envelope
		source = "store"
	}
	if err := e.store.PutDeletion(ctx, del); err != nil {
		return Result{MessageID: id, ContentKnown: del.ContentKnown(), Err: err}
	}
	tombstonedTotal.WithLabelValues(source).Inc()
	return Result{MessageID: id, ContentKnown: del.ContentKnown()}
}

// DeletedMessages returns all deletion records for a chat ordered by
// deleted_at ascending. A joined integrity error may accompany a partial
// result.
func (e *Engine) DeletedMessages(ctx context.Context, chatID int64) ([]models.Deletion, error) {
	return e.store.ListDeletions(ctx, chatID)
}

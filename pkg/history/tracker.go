// Package history preserves every prior revision of an edited message.
// Revision 0 is the first content ever observed; when the edit arrives for
// a message never seen before, revision 0 is backfilled from the capture
// buffer, the store, or a rate-limited transport fetch, in that order.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	"vaultgram/pkg/buffer"
	"vaultgram/pkg/logger"
	"vaultgram/pkg/models"
	"vaultgram/pkg/store"
)

// ErrNoHistory is returned when a message has no recorded revisions.
var ErrNoHistory = errors.New("history: no revisions for message")

var (
	revisionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vaultgram_history_revisions_total",
		Help: "Revision records appended.",
	})
	backfillsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vaultgram_history_backfills_total",
		Help: "Revision-0 backfills by source.",
	}, []string{"source"})
)

// Fetcher retrieves current server-side message content; satisfied by the
// external transport.
type Fetcher interface {
	FetchMessage(ctx context.Context, chatID, messageID int64) (models.Message, error)
}

// Tracker appends revision records on edit events and answers history
// queries.
type Tracker struct {
	store   *store.Store
	buf     *buffer.Buffer
	fetch   Fetcher
	limiter *rate.Limiter
	// fetchWait bounds how long a backfill may block its event lane.
	fetchWait time.Duration
}

// New constructs a tracker. fetch may be nil when no transport backfill is
// available; fetchRPS caps backfill calls against the remote service.
func New(st *store.Store, buf *buffer.Buffer, fetch Fetcher, fetchRPS float64) *Tracker {
	if fetchRPS <= 0 {
		fetchRPS = 2
	}
	return &Tracker{
		store:     st,
		buf:       buf,
		fetch:     fetch,
		limiter:   rate.NewLimiter(rate.Limit(fetchRPS), 1),
		fetchWait: 3 * time.Second,
	}
}

// HandleEdited preserves the prior content as a revision, appends the new
// content as the next revision, and only then updates the canonical message
// record through the store's sanctioned mutation path.
func (t *Tracker) HandleEdited(ctx context.Context, chatID, messageID int64, content models.Content, editedTS, editedBy int64) error {
	if editedTS == 0 {
		editedTS = time.Now().UTC().UnixNano()
	}
	next, err := t.store.NextRevisionSeq(ctx, chatID, messageID)
	if err != nil {
		return err
	}
	if next == 0 {
		orig := t.backfillOriginal(ctx, chatID, messageID)
		if err := t.store.PutRevision(ctx, orig); err != nil {
			return err
		}
		revisionsTotal.Inc()
		next = 1
	}
	rev := models.Revision{
		ChatID:    chatID,
		MessageID: messageID,
		Seq:       next,
		Content:   content,
		EditedTS:  editedTS,
		EditedBy:  editedBy,
	}
	if err := t.store.PutRevision(ctx, rev); err != nil {
		return err
	}
	revisionsTotal.Inc()

	if err := t.store.UpdateMessageContent(ctx, chatID, messageID, content, editedTS); err != nil {
		// the revision is safe; the stale canonical record is tolerable
		logger.Error("canonical_update_failed", "chat", chatID, "id", messageID, "error", err)
	}
	if msg, gerr := t.store.GetMessage(ctx, chatID, messageID); gerr == nil {
		t.buf.Observe(msg, true)
	}
	return nil
}

// backfillOriginal synthesizes revision 0 for a message edited before any
// revision existed. A failed backfill records an unavailable marker rather
// than blocking the incoming revision.
func (t *Tracker) backfillOriginal(ctx context.Context, chatID, messageID int64) models.Revision {
	rev := models.Revision{ChatID: chatID, MessageID: messageID, Seq: 0}

	if msg, ok := t.buf.Lookup(models.Ref{ChatID: chatID, MessageID: messageID}); ok {
		rev.Content = msg.Content
		rev.EditedTS = msg.TS
		rev.EditedBy = msg.SenderID
		backfillsTotal.WithLabelValues("buffer").Inc()
		return rev
	}
	if msg, err := t.store.GetMessage(ctx, chatID, messageID); err == nil {
		rev.Content = msg.Content
		rev.EditedTS = msg.TS
		rev.EditedBy = msg.SenderID
		backfillsTotal.WithLabelValues("store").Inc()
		return rev
	}
	if t.fetch != nil {
		fctx, cancel := context.WithTimeout(ctx, t.fetchWait)
		defer cancel()
		if err := t.limiter.Wait(fctx); err == nil {
			if msg, err := t.fetch.FetchMessage(fctx, chatID, messageID); err == nil {
				rev.Content = msg.Content
				rev.EditedTS = msg.TS
				rev.EditedBy = msg.SenderID
				backfillsTotal.WithLabelValues("transport").Inc()
				return rev
			} else {
				logger.Warn("backfill_fetch_failed", "chat", chatID, "id", messageID, "error", err)
			}
		}
	}
	rev.Unavailable = true
	rev.Content = models.Content{Kind: "unavailable"}
	backfillsTotal.WithLabelValues("unavailable").Inc()
	return rev
}

// EditHistory returns all recorded revisions ordered by seq ascending, or
// ErrNoHistory when the identity has none.
func (t *Tracker) EditHistory(ctx context.Context, chatID, messageID int64) ([]models.Revision, error) {
	revs, err := t.store.ListRevisions(ctx, chatID, messageID)
	if len(revs) == 0 && err == nil {
		return nil, ErrNoHistory
	}
	return revs, err
}

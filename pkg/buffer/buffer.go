// Package buffer holds the capture buffer: a bounded, insertion-ordered
// index of recently seen messages. It exists to answer deletion events that
// arrive with identifiers only, so eviction is least-recently-inserted
// rather than least-recently-used ("was this recently seen", not a general
// cache). The buffer is never the sole copy of protected data: entries not
// yet persisted are flushed to the store on eviction.
package buffer

import (
	"container/list"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"vaultgram/pkg/logger"
	"vaultgram/pkg/models"
)

var (
	evictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vaultgram_buffer_evictions_total",
		Help: "Entries evicted from the capture buffer.",
	})
	flushFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vaultgram_buffer_flush_failures_total",
		Help: "Eviction flushes to the store that failed.",
	})
)

// FlushFunc persists an entry that is about to leave the buffer.
type FlushFunc func(models.Message) error

type entry struct {
	msg       models.Message
	persisted bool
}

// Buffer is internally synchronized.
type Buffer struct {
	mu         sync.Mutex
	maxEntries int
	maxBytes   int64
	bytes      int64
	flush      FlushFunc
	order      *list.List // of models.Ref, oldest insertion first
	index      map[models.Ref]*list.Element
	entries    map[models.Ref]*entry
}

// New creates a buffer bounded by entry count and byte budget. Either
// bound may be zero to disable it, but not both. flush may be nil when no
// write-behind target exists (tests).
func New(maxEntries int, maxBytes int64, flush FlushFunc) *Buffer {
	if maxEntries <= 0 && maxBytes <= 0 {
		maxEntries = 4096
	}
	return &Buffer{
		maxEntries: maxEntries,
		maxBytes:   maxBytes,
		flush:      flush,
		order:      list.New(),
		index:      make(map[models.Ref]*list.Element),
		entries:    make(map[models.Ref]*entry),
	}
}

// Observe inserts or refreshes an entry. A refresh counts as a fresh
// insertion for eviction purposes. persisted records whether the caller
// already wrote the message through to the store.
func (b *Buffer) Observe(msg models.Message, persisted bool) {
	ref := msg.Ref()
	b.mu.Lock()
	if el, ok := b.index[ref]; ok {
		e := b.entries[ref]
		b.bytes += msg.Size() - e.msg.Size()
		e.msg = msg
		e.persisted = persisted
		b.order.MoveToBack(el)
	} else {
		b.index[ref] = b.order.PushBack(ref)
		b.entries[ref] = &entry{msg: msg, persisted: persisted}
		b.bytes += msg.Size()
	}
	evicted := b.evictLocked()
	b.mu.Unlock()

	// flush outside the lock; a slow store must not block ingestion
	for _, e := range evicted {
		b.flushEntry(e)
	}
}

// Lookup returns the buffered message for the identity. It does not affect
// eviction order.
func (b *Buffer) Lookup(ref models.Ref) (models.Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[ref]
	if !ok {
		return models.Message{}, false
	}
	return e.msg, true
}

// MarkPersisted records that the entry now exists in the store, so its
// eviction needs no flush.
func (b *Buffer) MarkPersisted(ref models.Ref) {
	b.mu.Lock()
	if e, ok := b.entries[ref]; ok {
		e.persisted = true
	}
	b.mu.Unlock()
}

// Len returns the current entry count.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.order.Len()
}

// FlushAll flushes every unpersisted entry to the store. Used during
// orderly shutdown; entries stay in the buffer.
func (b *Buffer) FlushAll() {
	b.mu.Lock()
	var pending []*entry
	for _, e := range b.entries {
		if !e.persisted {
			pending = append(pending, e)
		}
	}
	b.mu.Unlock()
	for _, e := range pending {
		b.flushEntry(e)
	}
}

// evictLocked removes oldest-inserted entries until both bounds hold and
// returns the evicted unpersisted entries for flushing.
func (b *Buffer) evictLocked() []*entry {
	var out []*entry
	for b.order.Len() > 0 {
		over := (b.maxEntries > 0 && b.order.Len() > b.maxEntries) ||
			(b.maxBytes > 0 && b.bytes > b.maxBytes)
		if !over {
			break
		}
		el := b.order.Front()
		ref := el.Value.(models.Ref)
		e := b.entries[ref]
		b.order.Remove(el)
		delete(b.index, ref)
		delete(b.entries, ref)
		b.bytes -= e.msg.Size()
		evictionsTotal.Inc()
		if !e.persisted {
			out = append(out, e)
		}
	}
	return out
}

// flushEntry writes an entry to the store. Failure degrades protection for
// that one message; it is logged and never blocks the caller.
func (b *Buffer) flushEntry(e *entry) {
	if b.flush == nil {
		return
	}
	if err := b.flush(e.msg); err != nil {
		flushFailures.Inc()
		logger.Error("buffer_flush_failed", "chat", e.msg.ChatID, "id", e.msg.MessageID, "error", err)
		return
	}
	b.mu.Lock()
	if cur, ok := b.entries[e.msg.Ref()]; ok {
		cur.persisted = true
	}
	b.mu.Unlock()
}

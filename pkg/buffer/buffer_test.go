package buffer

import (
	"sync"
	"testing"

	"vaultgram/pkg/models"
)

func msg(chat, id int64, text string) models.Message {
	return models.Message{
		ChatID:    chat,
		MessageID: id,
		TS:        id,
		Content:   models.Content{Kind: "text", Text: text},
	}
}

// TestObserveLookup verifies basic insert and lookup.
func TestObserveLookup(t *testing.T) {
	b := New(10, 0, nil)
	m := msg(1, 1, "hello")
	b.Observe(m, false)

	got, ok := b.Lookup(m.Ref())
	if !ok {
		t.Fatalf("entry missing")
	}
	if got.Content.Text != "hello" {
		t.Fatalf("wrong content: %q", got.Content.Text)
	}
	if _, ok := b.Lookup(models.Ref{ChatID: 1, MessageID: 99}); ok {
		t.Fatalf("lookup hit for unknown identity")
	}
}

// TestObserveIdempotent verifies re-observing the same identity keeps one
// entry.
func TestObserveIdempotent(t *testing.T) {
	b := New(10, 0, nil)
	m := msg(1, 1, "v1")
	b.Observe(m, false)
	b.Observe(m, false)
	if b.Len() != 1 {
		t.Fatalf("want 1 entry, got %d", b.Len())
	}
}

// TestEvictionOrder verifies least-recently-inserted eviction: a refreshed
// entry survives older ones.
func TestEvictionOrder(t *testing.T) {
	b := New(3, 0, nil)
	b.Observe(msg(1, 1, "a"), true)
	b.Observe(msg(1, 2, "b"), true)
	b.Observe(msg(1, 3, "c"), true)

	// refresh 1, making 2 the oldest insertion
	b.Observe(msg(1, 1, "a2"), true)
	b.Observe(msg(1, 4, "d"), true)

	if _, ok := b.Lookup(models.Ref{ChatID: 1, MessageID: 2}); ok {
		t.Fatalf("oldest insertion not evicted")
	}
	if _, ok := b.Lookup(models.Ref{ChatID: 1, MessageID: 1}); !ok {
		t.Fatalf("refreshed entry evicted")
	}
	if b.Len() != 3 {
		t.Fatalf("want 3 entries, got %d", b.Len())
	}
}

// TestEvictionFlushesUnpersisted verifies an evicted entry that never made
// it to the store is flushed, and persisted entries are not.
func TestEvictionFlushesUnpersisted(t *testing.T) {
	var mu sync.Mutex
	var flushed []int64
	b := New(1, 0, func(m models.Message) error {
		mu.Lock()
		flushed = append(flushed, m.MessageID)
		mu.Unlock()
		return nil
	})

	b.Observe(msg(1, 1, "unpersisted"), false)
	b.Observe(msg(1, 2, "persisted"), true)
	b.Observe(msg(1, 3, "next"), true)

	mu.Lock()
	defer mu.Unlock()
	if len(flushed) != 1 || flushed[0] != 1 {
		t.Fatalf("want flush of id 1 only, got %v", flushed)
	}
}

// TestByteBound verifies the byte budget evicts independently of the entry
// count.
func TestByteBound(t *testing.T) {
	big := msg(1, 1, "0123456789012345678901234567890123456789")
	b := New(0, big.Size()+1, nil)
	b.Observe(big, true)
	b.Observe(msg(1, 2, "0123456789012345678901234567890123456789"), true)
	if b.Len() != 1 {
		t.Fatalf("byte bound not enforced: %d entries", b.Len())
	}
}

// TestFlushAll verifies shutdown flushing covers every unpersisted entry
// and entries stay resident.
func TestFlushAll(t *testing.T) {
	var mu sync.Mutex
	flushed := map[int64]bool{}
	b := New(10, 0, func(m models.Message) error {
		mu.Lock()
		flushed[m.MessageID] = true
		mu.Unlock()
		return nil
	})

	b.Observe(msg(1, 1, "a"), false)
	b.Observe(msg(1, 2, "b"), true)
	b.Observe(msg(1, 3, "c"), false)
	b.FlushAll()

	mu.Lock()
	if !flushed[1] || !flushed[3] {
		mu.Unlock()
		t.Fatalf("unpersisted entries not flushed: %v", flushed)
	}
	if flushed[2] {
		mu.Unlock()
		t.Fatalf("persisted entry flushed")
	}
	if b.Len() != 3 {
		mu.Unlock()
		t.Fatalf("FlushAll dropped entries: %d", b.Len())
	}
	mu.Unlock()

	// a second FlushAll is a no-op; everything is persisted now
	mu.Lock()
	before := len(flushed)
	mu.Unlock()
	b.FlushAll()
	mu.Lock()
	if len(flushed) != before {
		t.Fatalf("second FlushAll re-flushed entries")
	}
	mu.Unlock()
}

// TestMarkPersisted verifies a marked entry skips the eviction flush.
func TestMarkPersisted(t *testing.T) {
	var mu sync.Mutex
	var flushes int
	b := New(1, 0, func(models.Message) error {
		mu.Lock()
		flushes++
		mu.Unlock()
		return nil
	})

	m := msg(1, 1, "a")
	b.Observe(m, false)
	b.MarkPersisted(m.Ref())
	b.Observe(msg(1, 2, "b"), true)

	mu.Lock()
	defer mu.Unlock()
	if flushes != 0 {
		t.Fatalf("marked entry flushed %d times", flushes)
	}
}

package store

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"vaultgram/pkg/kms"
	"vaultgram/pkg/models"
)

func testProvider(t *testing.T, keyByte byte) kms.Provider {
	t.Helper()
	prov, err := kms.NewAEADProvider(context.Background(), bytes.Repeat([]byte{keyByte}, 32))
	if err != nil {
		t.Fatalf("NewAEADProvider: %v", err)
	}
	return prov
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(t.TempDir(), testProvider(t, 0x42), Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func textMsg(chat, id int64, text string) models.Message {
	return models.Message{
		ChatID:    chat,
		MessageID: id,
		SenderID:  7,
		TS:        1000 + id,
		Content:   models.Content{Kind: "text", Text: text},
		Envelope:  []byte(`{"id":` + string(rune('0'+id%10)) + `}`),
	}
}

// TestMessageRoundTrip verifies a sealed record decrypts back to the same
// message.
func TestMessageRoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	msg := textMsg(-100123, 42, "hello")
	if err := st.PutMessage(ctx, msg); err != nil {
		t.Fatalf("PutMessage: %v", err)
	}
	got, err := st.GetMessage(ctx, -100123, 42)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if got.ChatID != msg.ChatID || got.MessageID != msg.MessageID {
		t.Fatalf("identity mismatch: got %d/%d", got.ChatID, got.MessageID)
	}
	if !got.Content.Equal(msg.Content) {
		t.Fatalf("content mismatch: got %+v want %+v", got.Content, msg.Content)
	}
	if !bytes.Equal(got.Envelope, msg.Envelope) {
		t.Fatalf("envelope mismatch")
	}
}

// TestPutMessageIdempotent verifies duplicate writes with equal content are
// accepted without error.
func TestPutMessageIdempotent(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	msg := textMsg(1, 1, "same")
	if err := st.PutMessage(ctx, msg); err != nil {
		t.Fatalf("first put: %v", err)
	}
	if err := st.PutMessage(ctx, msg); err != nil {
		t.Fatalf("duplicate put: %v", err)
	}
}

// TestPutMessageImmutable verifies that a duplicate identity with different
// content is rejected with ErrImmutable.
func TestPutMessageImmutable(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.PutMessage(ctx, textMsg(1, 1, "original")); err != nil {
		t.Fatalf("put: %v", err)
	}
	err := st.PutMessage(ctx, textMsg(1, 1, "diverged"))
	if !errors.Is(err, ErrImmutable) {
		t.Fatalf("want ErrImmutable, got %v", err)
	}
	got, err := st.GetMessage(ctx, 1, 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Content.Text != "original" {
		t.Fatalf("first capture lost: %q", got.Content.Text)
	}
}

// TestUpdateMessageContent verifies the sanctioned mutation path changes
// the canonical record.
func TestUpdateMessageContent(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.PutMessage(ctx, textMsg(1, 2, "v1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	next := models.Content{Kind: "text", Text: "v2"}
	if err := st.UpdateMessageContent(ctx, 1, 2, next, 2000); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := st.GetMessage(ctx, 1, 2)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Content.Text != "v2" {
		t.Fatalf("content not updated: %q", got.Content.Text)
	}
}

func TestGetMessageNotFound(t *testing.T) {
	st := openTestStore(t)
	_, err := st.GetMessage(context.Background(), 9, 9)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

// TestRevisionOrdering verifies revisions list in sequence order and
// NextRevisionSeq counts them.
func TestRevisionOrdering(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		rev := models.Revision{
			ChatID:    5,
			MessageID: 6,
			Seq:       i,
			Content:   models.Content{Kind: "text", Text: string(rune('a' + i))},
			EditedTS:  int64(1000 + i),
		}
		if err := st.PutRevision(ctx, rev); err != nil {
			t.Fatalf("put rev %d: %v", i, err)
		}
	}
	revs, err := st.ListRevisions(ctx, 5, 6)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(revs) != 4 {
		t.Fatalf("want 4 revisions, got %d", len(revs))
	}
	for i, rev := range revs {
		if rev.Seq != i {
			t.Fatalf("revision %d out of order: seq %d", i, rev.Seq)
		}
	}
	next, err := st.NextRevisionSeq(ctx, 5, 6)
	if err != nil {
		t.Fatalf("next seq: %v", err)
	}
	if next != 4 {
		t.Fatalf("want next seq 4, got %d", next)
	}
}

// TestDeletionAtMostOnce verifies a second tombstone for the same identity
// is a no-op.
func TestDeletionAtMostOnce(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	del := models.Deletion{ChatID: 3, MessageID: 4, DeletedTS: 5000, BatchID: "b1"}
	if err := st.PutDeletion(ctx, del); err != nil {
		t.Fatalf("first tombstone: %v", err)
	}
	del.BatchID = "b2"
	del.DeletedTS = 6000
	if err := st.PutDeletion(ctx, del); err != nil {
		t.Fatalf("second tombstone: %v", err)
	}
	list, err := st.ListDeletions(ctx, 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("want 1 deletion, got %d", len(list))
	}
	if list[0].BatchID != "b1" {
		t.Fatalf("first tombstone overwritten: %s", list[0].BatchID)
	}
}

// TestDeletionOrdering verifies deletions list ordered by local deletion
// time, not message id.
func TestDeletionOrdering(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	for i, d := range []models.Deletion{
		{ChatID: 8, MessageID: 300, DeletedTS: 3000, BatchID: "b"},
		{ChatID: 8, MessageID: 100, DeletedTS: 1000, BatchID: "b"},
		{ChatID: 8, MessageID: 200, DeletedTS: 2000, BatchID: "b"},
	} {
		if err := st.PutDeletion(ctx, d); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}
	list, err := st.ListDeletions(ctx, 8)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("want 3 deletions, got %d", len(list))
	}
	want := []int64{100, 200, 300}
	for i, d := range list {
		if d.MessageID != want[i] {
			t.Fatalf("position %d: want id %d, got %d", i, want[i], d.MessageID)
		}
	}
}

// TestIntegritySkip verifies that records sealed under a different key are
// skipped and reported while readable records still return.
func TestIntegritySkip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	st, err := Open(dir, testProvider(t, 0x01), Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	rev := models.Revision{ChatID: 1, MessageID: 1, Seq: 0, Content: models.Content{Kind: "text", Text: "x"}, EditedTS: 1}
	if err := st.PutRevision(ctx, rev); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// reopen with a different key; the record must not decrypt
	st2, err := Open(dir, testProvider(t, 0x02), Options{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st2.Close()

	revs, err := st2.ListRevisions(ctx, 1, 1)
	if err == nil {
		t.Fatalf("want integrity error, got none")
	}
	if !errors.Is(err, ErrIntegrity) {
		t.Fatalf("want ErrIntegrity, got %v", err)
	}
	if len(revs) != 0 {
		t.Fatalf("unreadable record leaked into result: %d", len(revs))
	}
}

// TestConcurrentStaleFlushAndEdit verifies per-identity serialization: a
// stale buffered capture written concurrently with an edit of the same
// message never ends up as the canonical content. Whichever order the two
// writes land in, the edit wins: an edit applied first makes the stale put
// an immutability violation, an edit applied second overwrites the capture.
func TestConcurrentStaleFlushAndEdit(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	const n = 64
	fresh := models.Content{Kind: "text", Text: "edited"}
	var wg sync.WaitGroup
	for i := int64(1); i <= n; i++ {
		wg.Add(2)
		go func(id int64) {
			defer wg.Done()
			_ = st.PutMessage(ctx, textMsg(9, id, "stale"))
		}(i)
		go func(id int64) {
			defer wg.Done()
			if err := st.UpdateMessageContent(ctx, 9, id, fresh, 2000); err != nil {
				t.Errorf("update %d: %v", id, err)
			}
		}(i)
	}
	wg.Wait()

	for i := int64(1); i <= n; i++ {
		got, err := st.GetMessage(ctx, 9, i)
		if err != nil {
			t.Fatalf("get %d: %v", i, err)
		}
		if got.Content.Text != "edited" {
			t.Fatalf("message %d: stale capture overwrote the edit: %q", i, got.Content.Text)
		}
	}
}

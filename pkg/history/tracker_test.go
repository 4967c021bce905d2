package history

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"vaultgram/pkg/buffer"
	"vaultgram/pkg/kms"
	"vaultgram/pkg/models"
	"vaultgram/pkg/store"
	"vaultgram/pkg/transport"
)

// fakeFetcher serves canned messages, counting calls.
type fakeFetcher struct {
	msgs  map[models.Ref]models.Message
	calls int
}

func (f *fakeFetcher) FetchMessage(ctx context.Context, chatID, messageID int64) (models.Message, error) {
	f.calls++
	if m, ok := f.msgs[models.Ref{ChatID: chatID, MessageID: messageID}]; ok {
		return m, nil
	}
	return models.Message{}, fmt.Errorf("%w: no such message", transport.ErrNotFound)
}

func newTracker(t *testing.T, fetch Fetcher) (*Tracker, *store.Store, *buffer.Buffer) {
	t.Helper()
	prov, err := kms.NewAEADProvider(context.Background(), bytes.Repeat([]byte{0x42}, 32))
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	st, err := store.Open(t.TempDir(), prov, store.Options{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	buf := buffer.New(64, 0, nil)
	return New(st, buf, fetch, 100), st, buf
}

func text(s string) models.Content { return models.Content{Kind: "text", Text: s} }

// TestEditsYieldOrderedRevisions verifies N edits of a captured message
// produce N+1 revisions: the original plus one per edit.
func TestEditsYieldOrderedRevisions(t *testing.T) {
	tr, st, buf := newTracker(t, nil)
	ctx := context.Background()

	orig := models.Message{ChatID: 1, MessageID: 10, SenderID: 7, TS: 100, Content: text("v0")}
	if err := st.PutMessage(ctx, orig); err != nil {
		t.Fatalf("seed: %v", err)
	}
	buf.Observe(orig, true)

	for i := 1; i <= 3; i++ {
		if err := tr.HandleEdited(ctx, 1, 10, text(fmt.Sprintf("v%d", i)), int64(100+i), 7); err != nil {
			t.Fatalf("edit %d: %v", i, err)
		}
	}

	revs, err := tr.EditHistory(ctx, 1, 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(revs) != 4 {
		t.Fatalf("want 4 revisions, got %d", len(revs))
	}
	for i, rev := range revs {
		if rev.Seq != i {
			t.Fatalf("revision %d has seq %d", i, rev.Seq)
		}
		if want := fmt.Sprintf("v%d", i); rev.Content.Text != want {
			t.Fatalf("revision %d content %q, want %q", i, rev.Content.Text, want)
		}
	}

	// canonical record follows the latest edit
	msg, err := st.GetMessage(ctx, 1, 10)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if msg.Content.Text != "v3" {
		t.Fatalf("canonical content %q, want v3", msg.Content.Text)
	}
}

// TestBackfillFromStore verifies revision 0 comes from the store when the
// buffer no longer holds the message.
func TestBackfillFromStore(t *testing.T) {
	tr, st, _ := newTracker(t, nil)
	ctx := context.Background()

	if err := st.PutMessage(ctx, models.Message{ChatID: 2, MessageID: 1, TS: 50, Content: text("stored")}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := tr.HandleEdited(ctx, 2, 1, text("edited"), 60, 7); err != nil {
		t.Fatalf("edit: %v", err)
	}
	revs, err := tr.EditHistory(ctx, 2, 1)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(revs) != 2 {
		t.Fatalf("want 2 revisions, got %d", len(revs))
	}
	if revs[0].Content.Text != "stored" || revs[0].Unavailable {
		t.Fatalf("revision 0 not backfilled from store: %+v", revs[0])
	}
}

// TestBackfillFromTransport verifies an edit of a never-seen message pulls
// the original through the fetcher.
func TestBackfillFromTransport(t *testing.T) {
	f := &fakeFetcher{msgs: map[models.Ref]models.Message{
		{ChatID: 3, MessageID: 9}: {ChatID: 3, MessageID: 9, TS: 40, Content: text("remote")},
	}}
	tr, _, _ := newTracker(t, f)
	ctx := context.Background()

	if err := tr.HandleEdited(ctx, 3, 9, text("edited"), 70, 7); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if f.calls != 1 {
		t.Fatalf("want 1 fetch, got %d", f.calls)
	}
	revs, err := tr.EditHistory(ctx, 3, 9)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if revs[0].Content.Text != "remote" || revs[0].Unavailable {
		t.Fatalf("revision 0 not backfilled from transport: %+v", revs[0])
	}
}

// TestBackfillUnavailable verifies a failed fetch records an unavailable
// marker instead of blocking the edit.
func TestBackfillUnavailable(t *testing.T) {
	tr, _, _ := newTracker(t, &fakeFetcher{})
	ctx := context.Background()

	if err := tr.HandleEdited(ctx, 4, 9, text("edited"), 70, 7); err != nil {
		t.Fatalf("edit: %v", err)
	}
	revs, err := tr.EditHistory(ctx, 4, 9)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(revs) != 2 {
		t.Fatalf("want 2 revisions, got %d", len(revs))
	}
	if !revs[0].Unavailable || revs[0].Content.Kind != "unavailable" {
		t.Fatalf("revision 0 should be unavailable: %+v", revs[0])
	}
	if revs[1].Content.Text != "edited" {
		t.Fatalf("incoming edit lost: %+v", revs[1])
	}
}

// TestEditHistoryEmpty verifies querying an identity with no revisions
// returns ErrNoHistory.
func TestEditHistoryEmpty(t *testing.T) {
	tr, _, _ := newTracker(t, nil)
	_, err := tr.EditHistory(context.Background(), 9, 9)
	if !errors.Is(err, ErrNoHistory) {
		t.Fatalf("want ErrNoHistory, got %v", err)
	}
}

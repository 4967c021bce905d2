package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"vaultgram/pkg/models"
)

// TestSameChatOrdering verifies events for one chat are handled strictly
// in enqueue order.
func TestSameChatOrdering(t *testing.T) {
	var mu sync.Mutex
	var seen []int64
	sink := Sink{
		NewMessage: func(_ context.Context, msg models.Message) error {
			mu.Lock()
			seen = append(seen, msg.MessageID)
			mu.Unlock()
			return nil
		},
	}
	d := New(sink, 4, 8)
	ctx := context.Background()

	const n = 200
	for i := int64(1); i <= n; i++ {
		ev := NewMessage{Message: models.Message{ChatID: -1001, MessageID: i}}
		if err := d.Enqueue(ctx, ev); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	d.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != n {
		t.Fatalf("want %d events, got %d", n, len(seen))
	}
	for i, id := range seen {
		if id != int64(i+1) {
			t.Fatalf("position %d: got id %d", i, id)
		}
	}
}

// TestCrossChatFanout verifies events for different chats all get handled.
func TestCrossChatFanout(t *testing.T) {
	var mu sync.Mutex
	counts := map[int64]int{}
	sink := Sink{
		NewMessage: func(_ context.Context, msg models.Message) error {
			mu.Lock()
			counts[msg.ChatID]++
			mu.Unlock()
			return nil
		},
	}
	d := New(sink, 4, 8)
	ctx := context.Background()

	for chat := int64(1); chat <= 10; chat++ {
		for i := int64(1); i <= 5; i++ {
			if err := d.Enqueue(ctx, NewMessage{Message: models.Message{ChatID: chat, MessageID: i}}); err != nil {
				t.Fatalf("enqueue: %v", err)
			}
		}
	}
	d.Close()

	mu.Lock()
	defer mu.Unlock()
	for chat := int64(1); chat <= 10; chat++ {
		if counts[chat] != 5 {
			t.Fatalf("chat %d: want 5 events, got %d", chat, counts[chat])
		}
	}
}

// TestStatusInline verifies presence updates are decided at the boundary
// without touching lanes.
func TestStatusInline(t *testing.T) {
	var decided []int64
	sink := Sink{
		Status: func(st models.UserStatus) bool {
			decided = append(decided, st.UserID)
			return false
		},
	}
	d := New(sink, 2, 4)
	defer d.Close()

	// no lane involved; the handler runs synchronously on this goroutine
	if err := d.Enqueue(context.Background(), UserStatus{Status: models.UserStatus{UserID: 42, Online: true}}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if len(decided) != 1 || decided[0] != 42 {
		t.Fatalf("status not decided inline: %v", decided)
	}
}

// TestEnqueueAfterClose verifies intake fails closed.
func TestEnqueueAfterClose(t *testing.T) {
	d := New(Sink{}, 2, 4)
	d.Close()
	err := d.Enqueue(context.Background(), MessagesDeleted{ChatID: 1, MessageIDs: []int64{1}})
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("want ErrClosed, got %v", err)
	}
}

// TestHandlerErrorKeepsLaneAlive verifies a failing handler does not stop
// subsequent events on the same lane.
func TestHandlerErrorKeepsLaneAlive(t *testing.T) {
	var mu sync.Mutex
	var handled []int64
	sink := Sink{
		NewMessage: func(_ context.Context, msg models.Message) error {
			mu.Lock()
			handled = append(handled, msg.MessageID)
			mu.Unlock()
			if msg.MessageID == 1 {
				return errors.New("boom")
			}
			return nil
		},
	}
	d := New(sink, 1, 4)
	ctx := context.Background()
	for i := int64(1); i <= 3; i++ {
		if err := d.Enqueue(ctx, NewMessage{Message: models.Message{ChatID: 1, MessageID: i}}); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	d.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(handled) != 3 {
		t.Fatalf("lane died after handler error: handled %v", handled)
	}
}

// Package dispatch fans the external event stream out to the capture,
// history and ghost components. Events for one chat are processed in strict
// arrival order through a single lane; different chats run concurrently.
// Chat-level ordering is deliberately stricter than per-message ordering:
// deletion batches only carry chat scope, so the chat is the cheapest
// correct lane key, and it guarantees a delete is never evaluated before
// the new-message event it refers to.
package dispatch

import (
	"context"
	"errors"
	"hash/fnv"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"vaultgram/pkg/logger"
	"vaultgram/pkg/models"
)

// ErrClosed is returned by Enqueue once shutdown has begun.
var ErrClosed = errors.New("dispatch: dispatcher closed")

const defaultLanes = 8
const defaultLaneDepth = 1024

var (
	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vaultgram_dispatch_events_total",
		Help: "Events accepted by kind.",
	}, []string{"kind"})
	handlerFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vaultgram_dispatch_handler_failures_total",
		Help: "Handler invocations that returned an error.",
	})
	laneDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vaultgram_dispatch_lane_depth",
		Help: "Queued events per lane.",
	}, []string{"lane"})
)

// Sink receives normalized events. Handler errors are logged and counted;
// they never stop the lane.
type Sink struct {
	NewMessage func(ctx context.Context, msg models.Message) error
	Edited     func(ctx context.Context, ev MessageEdited) error
	Deleted    func(ctx context.Context, ev MessagesDeleted) error
	// Status decides an inbound presence update at the dispatch boundary;
	// returning false drops it. Runs inline, no lane.
	Status func(st models.UserStatus) bool
}

// Dispatcher routes events onto per-chat ordered lanes.
type Dispatcher struct {
	sink  Sink
	lanes []chan Event

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// New starts lanes worker goroutines, each consuming one bounded queue.
func New(sink Sink, lanes, depth int) *Dispatcher {
	if lanes <= 0 {
		lanes = defaultLanes
	}
	if depth <= 0 {
		depth = defaultLaneDepth
	}
	d := &Dispatcher{sink: sink, lanes: make([]chan Event, lanes)}
	for i := range d.lanes {
		d.lanes[i] = make(chan Event, depth)
		d.wg.Add(1)
		go d.runLane(i, d.lanes[i])
	}
	logger.Info("dispatcher_started", "lanes", lanes, "depth", depth)
	return d
}

// Enqueue routes one event. It blocks when the target lane is full (the
// stream is ordered; events are never dropped or reordered) and fails with
// ErrClosed after shutdown begins. UserStatus events are decided inline.
func (d *Dispatcher) Enqueue(ctx context.Context, ev Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	switch e := ev.(type) {
	case UserStatus:
		eventsTotal.WithLabelValues("user_status").Inc()
		if d.sink.Status != nil && !d.sink.Status(e.Status) {
			logger.Debug("status_suppressed", "user", e.Status.UserID)
		}
		return nil
	case NewMessage:
		eventsTotal.WithLabelValues("new_message").Inc()
		return d.send(ctx, e.Message.ChatID, ev)
	case MessageEdited:
		eventsTotal.WithLabelValues("message_edited").Inc()
		return d.send(ctx, e.ChatID, ev)
	case MessagesDeleted:
		eventsTotal.WithLabelValues("messages_deleted").Inc()
		return d.send(ctx, e.ChatID, ev)
	default:
		return errors.New("dispatch: unhandled event variant")
	}
}

func (d *Dispatcher) send(ctx context.Context, chatID int64, ev Event) error {
	lane := d.laneFor(chatID)
	select {
	case d.lanes[lane] <- ev:
		laneDepth.WithLabelValues(strconv.Itoa(lane)).Set(float64(len(d.lanes[lane])))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// laneFor hashes a chat id onto a lane, so all events of one chat (hence
// one message identity) share a lane.
func (d *Dispatcher) laneFor(chatID int64) int {
	h := fnv.New32a()
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(chatID >> (8 * i))
	}
	_, _ = h.Write(b[:])
	return int(h.Sum32() % uint32(len(d.lanes)))
}

func (d *Dispatcher) runLane(n int, ch <-chan Event) {
	defer d.wg.Done()
	ctx := context.Background()
	for ev := range ch {
		var err error
		switch e := ev.(type) {
		case NewMessage:
			if d.sink.NewMessage != nil {
				err = d.sink.NewMessage(ctx, e.Message)
			}
		case MessageEdited:
			if d.sink.Edited != nil {
				err = d.sink.Edited(ctx, e)
			}
		case MessagesDeleted:
			if d.sink.Deleted != nil {
				err = d.sink.Deleted(ctx, e)
			}
		}
		if err != nil {
			handlerFailures.Inc()
			logger.Error("event_handler_failed", "lane", n, "error", err)
		}
		laneDepth.WithLabelValues(strconv.Itoa(n)).Set(float64(len(ch)))
	}
}

// Close stops intake and drains every lane. Safe to call once.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, ch := range d.lanes {
		close(ch)
	}
	d.mu.Unlock()
	d.wg.Wait()
	logger.Info("dispatcher_drained")
}

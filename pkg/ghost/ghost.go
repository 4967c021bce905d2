// Package ghost suppresses outbound presence signals and forces silent
// delivery. It holds no persisted state; every decision is a pure function
// of the event or action plus the current flags.
package ghost

import (
	"context"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"vaultgram/pkg/logger"
	"vaultgram/pkg/models"
	"vaultgram/pkg/transport"
)

var suppressedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "vaultgram_ghost_suppressed_total",
	Help: "Signals suppressed by the ghost filter.",
}, []string{"signal"})

// Flags is an immutable toggle set. Enabled forces silent delivery of all
// outbound sends; the Hide* axes suppress individual signal kinds.
type Flags struct {
	Enabled    bool
	HideOnline bool
	HideTyping bool
	HideRead   bool
}

// Filter wraps the transport's outbound calls and decides inbound presence
// updates. Flag swaps take effect immediately for subsequent calls.
type Filter struct {
	flags atomic.Pointer[Flags]
	tr    transport.Transport
}

// New constructs a filter over the given transport with initial flags.
func New(tr transport.Transport, flags Flags) *Filter {
	f := &Filter{tr: tr}
	f.flags.Store(&flags)
	return f
}

// Flags returns the current flag set.
func (f *Filter) Flags() Flags { return *f.flags.Load() }

// SetFlags replaces the flag set. Subsequent calls observe the new flags
// immediately.
func (f *Filter) SetFlags(flags Flags) {
	f.flags.Store(&flags)
	logger.Info("ghost_flags_updated",
		"enabled", flags.Enabled,
		"hide_online", flags.HideOnline,
		"hide_typing", flags.HideTyping,
		"hide_read", flags.HideRead)
}

// AllowStatus decides an inbound presence update. False means the update
// is dropped at the dispatch boundary.
func (f *Filter) AllowStatus(st models.UserStatus) bool {
	if f.Flags().HideOnline {
		suppressedTotal.WithLabelValues("status").Inc()
		return false
	}
	return true
}

// SendMessage forwards the send, forcing the silent flag whenever ghost
// mode is enabled regardless of what the caller asked for.
func (f *Filter) SendMessage(ctx context.Context, chatID int64, text string, silent bool) (transport.SendResult, error) {
	if f.Flags().Enabled && !silent {
		suppressedTotal.WithLabelValues("notify").Inc()
		silent = true
	}
	return f.tr.SendMessage(ctx, chatID, text, silent)
}

// SendTyping emits a typing indicator unless HideTyping is set, in which
// case it is a no-op.
func (f *Filter) SendTyping(ctx context.Context, chatID int64) error {
	if f.Flags().HideTyping {
		suppressedTotal.WithLabelValues("typing").Inc()
		return nil
	}
	return f.tr.SendTyping(ctx, chatID)
}

// MarkRead acknowledges a message unless HideRead is set, in which case it
// is a no-op.
func (f *Filter) MarkRead(ctx context.Context, chatID, messageID int64) error {
	if f.Flags().HideRead {
		suppressedTotal.WithLabelValues("read").Inc()
		return nil
	}
	return f.tr.MarkRead(ctx, chatID, messageID)
}

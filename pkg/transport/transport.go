// Package transport declares the narrow contract against the external
// session layer that authenticates to the remote messaging service, and the
// translation step that turns its loosely-typed wire updates into the
// dispatcher's closed event variants.
package transport

import (
	"context"
	"errors"
	"fmt"

	"vaultgram/pkg/models"
)

var (
	// ErrNotFound is returned when the remote service has no such message.
	ErrNotFound = errors.New("transport: message not found")

	// ErrTransport covers session/network failures; callers degrade
	// gracefully rather than failing their event.
	ErrTransport = errors.New("transport: request failed")
)

// SendResult is the delivery outcome of an outbound message.
type SendResult struct {
	MessageID int64 `json:"message_id"`
	Silent    bool  `json:"silent"`
}

// Transport is implemented by the external session layer. All calls honor
// context cancellation.
type Transport interface {
	// FetchMessage retrieves current server-side content, used for
	// edit-history backfill. Fails with ErrNotFound or ErrTransport.
	FetchMessage(ctx context.Context, chatID, messageID int64) (models.Message, error)

	// SendMessage sends text to a chat. silent suppresses the recipient
	// notification.
	SendMessage(ctx context.Context, chatID int64, text string, silent bool) (SendResult, error)

	// SendTyping emits a typing indicator for the chat.
	SendTyping(ctx context.Context, chatID int64) error

	// MarkRead acknowledges a message as read.
	MarkRead(ctx context.Context, chatID, messageID int64) error
}

// Unconnected returns a Transport for feed-only deployments with no
// outbound session. Every call fails with ErrTransport, which callers
// already degrade on.
func Unconnected() Transport { return unconnected{} }

type unconnected struct{}

func (unconnected) FetchMessage(context.Context, int64, int64) (models.Message, error) {
	return models.Message{}, fmt.Errorf("%w: not connected", ErrTransport)
}

func (unconnected) SendMessage(context.Context, int64, string, bool) (SendResult, error) {
	return SendResult{}, fmt.Errorf("%w: not connected", ErrTransport)
}

func (unconnected) SendTyping(context.Context, int64) error {
	return fmt.Errorf("%w: not connected", ErrTransport)
}

func (unconnected) MarkRead(context.Context, int64, int64) error {
	return fmt.Errorf("%w: not connected", ErrTransport)
}

package models

import (
	"bytes"
	"encoding/json"
)

// Ref identifies a message within the protocol: chat id plus the
// chat-scoped message id.
type Ref struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int64 `json:"message_id"`
}

// Content is the typed payload of a message. Kind "text" carries Text,
// media kinds carry MediaRef; any other protocol kind keeps its opaque
// tag plus the raw payload so nothing is lost on round-trip.
type Content struct {
	Kind     string          `json:"kind"`
	Text     string          `json:"text,omitempty"`
	MediaRef string          `json:"media_ref,omitempty"`
	Raw      json.RawMessage `json:"raw,omitempty"`
}

// Equal reports whether two contents are identical field for field.
func (c Content) Equal(o Content) bool {
	return c.Kind == o.Kind && c.Text == o.Text && c.MediaRef == o.MediaRef &&
		bytes.Equal(c.Raw, o.Raw)
}

// Message is the canonical record of one observed protocol message.
// Envelope holds the full original wire payload.
type Message struct {
	ChatID    int64   `json:"chat_id"`
	MessageID int64   `json:"message_id"`
	SenderID  int64   `json:"sender_id,omitempty"`
	TS        int64   `json:"ts"`
	Content   Content `json:"content"`
	Envelope  []byte  `json:"envelope,omitempty"`
}

// Ref returns the message identity.
func (m Message) Ref() Ref { return Ref{ChatID: m.ChatID, MessageID: m.MessageID} }

// Size is a rough byte accounting used by the capture buffer budget.
func (m Message) Size() int64 {
	return int64(len(m.Content.Text) + len(m.Content.MediaRef) + len(m.Content.Raw) + len(m.Envelope) + 64)
}

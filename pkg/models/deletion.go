package models

// Deletion is the permanent tombstone written when the remote service
// removes a message. DeletedTS is local capture time in nanoseconds; the
// protocol does not supply one. LastKnown is nil when the message was never
// observed and the content could not be recovered.
type Deletion struct {
	ChatID    int64    `json:"chat_id"`
	MessageID int64    `json:"message_id"`
	DeletedTS int64    `json:"deleted_ts"`
	BatchID   string   `json:"batch_id"`
	LastKnown *Content `json:"last_known,omitempty"`
	Envelope  []byte   `json:"envelope,omitempty"`
}

// Ref returns the identity of the deleted message.
func (d Deletion) Ref() Ref { return Ref{ChatID: d.ChatID, MessageID: d.MessageID} }

// ContentKnown reports whether any content was recovered before deletion.
func (d Deletion) ContentKnown() bool { return d.LastKnown != nil }

// UserStatus is an inbound presence update for a single user.
type UserStatus struct {
	UserID  int64 `json:"user_id"`
	Online  bool  `json:"online"`
	Expires int64 `json:"expires,omitempty"`
}

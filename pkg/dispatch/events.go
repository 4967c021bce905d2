package dispatch

import "vaultgram/pkg/models"

// Event is the closed set of typed updates the dispatcher accepts. Wire
// payloads are normalized into these variants before any core component
// sees them.
type Event interface {
	isEvent()
}

// NewMessage carries one freshly observed message.
type NewMessage struct {
	Message models.Message
}

// MessageEdited carries the replacement content for one message.
type MessageEdited struct {
	ChatID    int64
	MessageID int64
	Content   models.Content
	EditedTS  int64
	EditedBy  int64
}

// MessagesDeleted carries one chat's batch of deleted message ids, as the
// protocol delivers them.
type MessagesDeleted struct {
	ChatID     int64
	MessageIDs []int64
}

// UserStatus is an inbound presence update. It is decided at the dispatch
// boundary by the ghost filter and never enters a lane.
type UserStatus struct {
	Status models.UserStatus
}

func (NewMessage) isEvent()      {}
func (MessageEdited) isEvent()   {}
func (MessagesDeleted) isEvent() {}
func (UserStatus) isEvent()      {}

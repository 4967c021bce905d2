package models

// Revision is one captured content snapshot of a message. Seq 0 is always
// the first content ever observed for the identity; later seqs are appended
// per edit, strictly increasing.
type Revision struct {
	ChatID    int64   `json:"chat_id"`
	MessageID int64   `json:"message_id"`
	Seq       int     `json:"seq"`
	Content   Content `json:"content"`
	EditedTS  int64   `json:"edited_ts"`
	EditedBy  int64   `json:"edited_by,omitempty"`
	// Unavailable marks a revision-0 backfill that failed everywhere
	// (buffer, store and transport); the seq still exists so history
	// numbering stays dense.
	Unavailable bool `json:"unavailable,omitempty"`
}

// Ref returns the identity of the edited message.
func (r Revision) Ref() Ref { return Ref{ChatID: r.ChatID, MessageID: r.MessageID} }

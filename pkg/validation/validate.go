// Package validation applies sanity rules to normalized events before they
// reach the persistence path. Rules are global, set once at startup from
// config.
package validation

import (
	"fmt"

	"vaultgram/pkg/dispatch"
)

// Rules bounds event payloads. Zero values disable a bound.
type Rules struct {
	MaxTextBytes     int
	MaxEnvelopeBytes int
	MaxBatchSize     int
}

var rules Rules

// SetRules installs the active rule set.
func SetRules(r Rules) { rules = r }

// ValidateEvent rejects events that would corrupt the shadow store:
// non-positive identities, oversized payloads, empty deletion batches.
func ValidateEvent(ev dispatch.Event) error {
	switch e := ev.(type) {
	case dispatch.NewMessage:
		m := e.Message
		if m.ChatID == 0 || m.MessageID == 0 {
			return fmt.Errorf("new message missing identity")
		}
		if rules.MaxTextBytes > 0 && len(m.Content.Text) > rules.MaxTextBytes {
			return fmt.Errorf("message text exceeds %d bytes", rules.MaxTextBytes)
		}
		if rules.MaxEnvelopeBytes > 0 && len(m.Envelope) > rules.MaxEnvelopeBytes {
			return fmt.Errorf("message envelope exceeds %d bytes", rules.MaxEnvelopeBytes)
		}
	case dispatch.MessageEdited:
		if e.ChatID == 0 || e.MessageID == 0 {
			return fmt.Errorf("edit missing identity")
		}
		if rules.MaxTextBytes > 0 && len(e.Content.Text) > rules.MaxTextBytes {
			return fmt.Errorf("edit text exceeds %d bytes", rules.MaxTextBytes)
		}
	case dispatch.MessagesDeleted:
		if e.ChatID == 0 {
			return fmt.Errorf("deletion missing chat id")
		}
		if len(e.MessageIDs) == 0 {
			return fmt.Errorf("deletion batch is empty")
		}
		if rules.MaxBatchSize > 0 && len(e.MessageIDs) > rules.MaxBatchSize {
			return fmt.Errorf("deletion batch exceeds %d ids", rules.MaxBatchSize)
		}
	case dispatch.UserStatus:
		if e.Status.UserID == 0 {
			return fmt.Errorf("status missing user id")
		}
	}
	return nil
}

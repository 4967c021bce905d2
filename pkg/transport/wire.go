package transport

import (
	"encoding/json"
	"fmt"

	"vaultgram/pkg/dispatch"
	"vaultgram/pkg/models"
)

// Wire update kinds understood by ParseUpdate. The remote protocol
// discriminates updates with an "@type" field.
const (
	updNewMessage     = "updateNewMessage"
	updMessageContent = "updateMessageContent"
	updDeleteMessages = "updateDeleteMessages"
	updUserStatus     = "updateUserStatus"
)

// ErrUnknownUpdate marks update kinds this system does not consume; the
// caller drops them silently.
type ErrUnknownUpdate struct {
	Type string
}

func (e ErrUnknownUpdate) Error() string {
	return fmt.Sprintf("transport: unknown update type %q", e.Type)
}

type wireUpdate struct {
	Type       string          `json:"@type"`
	Message    json.RawMessage `json:"message,omitempty"`
	ChatID     int64           `json:"chat_id,omitempty"`
	MessageID  int64           `json:"message_id,omitempty"`
	MessageIDs []int64         `json:"message_ids,omitempty"`
	NewContent json.RawMessage `json:"new_content,omitempty"`
	FromCache  bool            `json:"from_cache,omitempty"`
	UserID     int64           `json:"user_id,omitempty"`
	Status     json.RawMessage `json:"status,omitempty"`
}

type wireMessage struct {
	ID       int64           `json:"id"`
	ChatID   int64           `json:"chat_id"`
	SenderID json.RawMessage `json:"sender_id,omitempty"`
	Date     int64           `json:"date"`
	EditDate int64           `json:"edit_date,omitempty"`
	Content  json.RawMessage `json:"content"`
}

type wireContent struct {
	Type string `json:"@type"`
	Text struct {
		Text string `json:"text"`
	} `json:"text"`
	Caption struct {
		Text string `json:"text"`
	} `json:"caption"`
}

type wireStatus struct {
	Type    string `json:"@type"`
	Expires int64  `json:"expires,omitempty"`
}

// ParseUpdate validates and normalizes a loosely-typed wire update into one
// of the dispatcher's closed event variants. Updates of kinds this system
// does not consume return ErrUnknownUpdate; malformed payloads return a
// descriptive error and never reach core components.
func ParseUpdate(raw []byte) (dispatch.Event, error) {
	var u wireUpdate
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("transport: malformed update: %w", err)
	}
	switch u.Type {
	case updNewMessage:
		if len(u.Message) == 0 {
			return nil, fmt.Errorf("transport: %s without message", u.Type)
		}
		msg, err := parseMessage(u.Message)
		if err != nil {
			return nil, err
		}
		return dispatch.NewMessage{Message: msg}, nil

	case updMessageContent:
		if u.ChatID == 0 || u.MessageID == 0 {
			return nil, fmt.Errorf("transport: %s missing identity", u.Type)
		}
		if len(u.NewContent) == 0 {
			return nil, fmt.Errorf("transport: %s without new_content", u.Type)
		}
		return dispatch.MessageEdited{
			ChatID:    u.ChatID,
			MessageID: u.MessageID,
			Content:   parseContent(u.NewContent),
		}, nil

	case updDeleteMessages:
		if u.ChatID == 0 {
			return nil, fmt.Errorf("transport: %s missing chat_id", u.Type)
		}
		if len(u.MessageIDs) == 0 {
			return nil, fmt.Errorf("transport: %s with empty batch", u.Type)
		}
		if u.FromCache {
			// cache evictions are not deletions
			return nil, ErrUnknownUpdate{Type: u.Type + "/from_cache"}
		}
		return dispatch.MessagesDeleted{ChatID: u.ChatID, MessageIDs: u.MessageIDs}, nil

	case updUserStatus:
		if u.UserID == 0 {
			return nil, fmt.Errorf("transport: %s missing user_id", u.Type)
		}
		var st wireStatus
		if len(u.Status) > 0 {
			if err := json.Unmarshal(u.Status, &st); err != nil {
				return nil, fmt.Errorf("transport: malformed status: %w", err)
			}
		}
		return dispatch.UserStatus{Status: models.UserStatus{
			UserID:  u.UserID,
			Online:  st.Type == "userStatusOnline",
			Expires: st.Expires,
		}}, nil

	default:
		return nil, ErrUnknownUpdate{Type: u.Type}
	}
}

func parseMessage(raw json.RawMessage) (models.Message, error) {
	var wm wireMessage
	if err := json.Unmarshal(raw, &wm); err != nil {
		return models.Message{}, fmt.Errorf("transport: malformed message: %w", err)
	}
	if wm.ChatID == 0 || wm.ID == 0 {
		return models.Message{}, fmt.Errorf("transport: message missing identity")
	}
	msg := models.Message{
		ChatID:    wm.ChatID,
		MessageID: wm.ID,
		SenderID:  parseSender(wm.SenderID),
		TS:        wm.Date,
		Content:   parseContent(wm.Content),
		Envelope:  append([]byte(nil), raw...),
	}
	return msg, nil
}

// parseSender accepts either a bare integer or the object form
// {"@type":"messageSenderUser","user_id":N}.
func parseSender(raw json.RawMessage) int64 {
	if len(raw) == 0 {
		return 0
	}
	var id int64
	if err := json.Unmarshal(raw, &id); err == nil {
		return id
	}
	var obj struct {
		UserID int64 `json:"user_id"`
		ChatID int64 `json:"chat_id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.UserID != 0 {
			return obj.UserID
		}
		return obj.ChatID
	}
	return 0
}

// parseContent normalizes a wire content object. Text messages become
// kind "text"; media kinds keep their protocol tag, caption and raw payload
// and get the remote file id extracted as MediaRef; anything else stays an
// opaque tag plus raw payload.
func parseContent(raw json.RawMessage) models.Content {
	var wc wireContent
	if len(raw) == 0 || json.Unmarshal(raw, &wc) != nil || wc.Type == "" {
		return models.Content{Kind: "unknown", Raw: append(json.RawMessage(nil), raw...)}
	}
	if wc.Type == "messageText" {
		return models.Content{Kind: "text", Text: wc.Text.Text}
	}
	return models.Content{
		Kind:     wc.Type,
		Text:     wc.Caption.Text,
		MediaRef: mediaRef(wc.Type, raw),
		Raw:      append(json.RawMessage(nil), raw...),
	}
}

// wireFile is the transferable-file object carried inside media payloads.
// The remote unique_id is the stable reference across sessions; the plain
// id is session-scoped and used only when unique_id is absent.
type wireFile struct {
	Remote struct {
		UniqueID string `json:"unique_id"`
		ID       string `json:"id"`
	} `json:"remote"`
}

func (f wireFile) ref() string {
	if f.Remote.UniqueID != "" {
		return f.Remote.UniqueID
	}
	return f.Remote.ID
}

// mediaFiles maps media content tags to the outer/inner field pair that
// holds the file object, e.g. content.video.video for messageVideo.
var mediaFiles = map[string][2]string{
	"messageVideo":     {"video", "video"},
	"messageDocument":  {"document", "document"},
	"messageAudio":     {"audio", "audio"},
	"messageSticker":   {"sticker", "sticker"},
	"messageAnimation": {"animation", "animation"},
	"messageVoiceNote": {"voice_note", "voice"},
	"messageVideoNote": {"video_note", "video"},
}

// mediaRef extracts the remote file id for known media kinds. Unknown kinds
// and payloads without a remote file yield an empty ref; the raw payload is
// still preserved on the record.
func mediaRef(kind string, raw json.RawMessage) string {
	if kind == "messagePhoto" {
		// photos carry several sizes, largest last
		var pc struct {
			Photo struct {
				Sizes []struct {
					Photo wireFile `json:"photo"`
				} `json:"sizes"`
			} `json:"photo"`
		}
		if err := json.Unmarshal(raw, &pc); err != nil || len(pc.Photo.Sizes) == 0 {
			return ""
		}
		return pc.Photo.Sizes[len(pc.Photo.Sizes)-1].Photo.ref()
	}
	fields, ok := mediaFiles[kind]
	if !ok {
		return ""
	}
	var outer map[string]json.RawMessage
	if json.Unmarshal(raw, &outer) != nil {
		return ""
	}
	var inner map[string]json.RawMessage
	if json.Unmarshal(outer[fields[0]], &inner) != nil {
		return ""
	}
	var f wireFile
	if json.Unmarshal(inner[fields[1]], &f) != nil {
		return ""
	}
	return f.ref()
}

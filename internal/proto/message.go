package proto

import (
	"encoding/json"
	"strings"
)

// Inbound is a frame coming from the client.
type Inbound struct {
	Message json.RawMessage `json:"message"`
}

const (
	OutboundTypeMessage = "message"
	OutboundTypeJoined  = "joined"
	OutboundTypeLeft    = "left"
	OutboundTypeError   = "error"
)

// Outbound is a frame sent to the client. Type tells presence notices and
// errors apart from user messages that happen to carry the same text.
type Outbound struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Name      string `json:"name"`
	Timestamp int64  `json:"timestamp"`
	Code      string `json:"code,omitempty"`
}

// HistoryEntry is one persisted message in a history response.
type HistoryEntry struct {
	Seq       uint64 `json:"seq"`
	Message   string `json:"message"`
	Name      string `json:"name"`
	Timestamp int64  `json:"timestamp"`
}

// HistoryResponse is a page of room history.
type HistoryResponse struct {
	Room     string         `json:"room"`
	Messages []HistoryEntry `json:"messages"`
	Next     uint64         `json:"next,omitempty"`
}

// RoomStatus describes a live room.
type RoomStatus struct {
	Room    string `json:"room"`
	Members int    `json:"members"`
}

// DecodeMessage extracts the message text from a raw inbound frame.
// It reports false when the payload is not a JSON object, the message field is
// missing or not a string, or the text is blank.
func DecodeMessage(raw []byte) (string, bool) {
	var inbound Inbound
	if err := json.Unmarshal(raw, &inbound); err != nil {
		return "", false
	}
	if len(inbound.Message) == 0 {
		return "", false
	}
	var text string
	if err := json.Unmarshal(inbound.Message, &text); err != nil {
		return "", false
	}
	if strings.TrimSpace(text) == "" {
		return "", false
	}
	return text, true
}

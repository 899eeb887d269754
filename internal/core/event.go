package core

// EventKind is a notification the core emits to sessions.
type EventKind int

const (
	// EventPosted is a user-authored chat message. It is the only persisted kind.
	EventPosted EventKind = iota
	// EventJoined notifies members that someone connected to the room.
	EventJoined
	// EventLeft notifies members that someone disconnected from the room.
	EventLeft
	// EventError notifies a single session about a failed request.
	EventError
)

// Fixed texts carried by presence events.
const (
	JoinedText = "joined the chat"
	LeftText   = "left the chat"
)

func (k EventKind) String() string {
	switch k {
	case EventPosted:
		return "message"
	case EventJoined:
		return "joined"
	case EventLeft:
		return "left"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// ChatEvent is an immutable value describing something that happened in a room.
type ChatEvent struct {
	Kind      EventKind
	Room      string
	Author    string
	Body      string // set for EventPosted only
	Timestamp int64  // unix milliseconds
	Seq       uint64 // history position, set for EventPosted only
	Error     *CoreError
}

// Text returns what the wire carries in the message field.
func (e ChatEvent) Text() string {
	switch e.Kind {
	case EventJoined:
		return JoinedText
	case EventLeft:
		return LeftText
	case EventError:
		if e.Error != nil {
			return e.Error.Message
		}
		return ""
	default:
		return e.Body
	}
}

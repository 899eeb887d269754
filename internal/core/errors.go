package core

import "errors"

// ErrCodePersistFailed is reported to an author whose message was not saved.
const ErrCodePersistFailed = "persist_failed"

var (
	ErrInvalidRoom      = errors.New("invalid room id")
	ErrEmptyMessage     = errors.New("empty message")
	ErrNotInRoom        = errors.New("not in room")
	ErrSessionClosed    = errors.New("session closed")
	ErrSlowConsumer     = errors.New("session outbox full")
	ErrDispatcherClosed = errors.New("dispatcher closed")
	ErrRoomClosed       = errors.New("room closed")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks
package store

import (
	"context"
	"errors"
)

// ErrConflict is returned when an append reuses a sequence number already
// present in the room's partition.
var ErrConflict = errors.New("history entry already exists")

// Message is a persisted Posted event.
type Message struct {
	Room      string
	Seq       uint64
	Author    string
	Body      string
	Timestamp int64 // unix milliseconds
}

// Head describes the newest entry of a room partition.
// The zero value means the partition is empty.
type Head struct {
	Seq       uint64
	Timestamp int64
}

// RoomSummary describes a stored partition.
type RoomSummary struct {
	Room     string
	Messages int64
	Head     Head
}

// HistoryStore is an append-only, ordered log partitioned by room.
//
// Callers assign Seq; within a room Seq is strictly increasing and Timestamp
// never decreases, so key order equals append order.
type HistoryStore interface {
	// Append persists msg. It returns ErrConflict if the (room, seq) pair exists.
	Append(ctx context.Context, msg *Message) error

	// Scan returns up to limit messages of room with after < Seq <= upTo,
	// ordered by Seq. upTo == 0 means no upper bound and limit <= 0 means
	// no page limit.
	Scan(ctx context.Context, room string, after, upTo uint64, limit int) ([]*Message, error)

	// Head returns the newest entry of room, or the zero Head.
	Head(ctx context.Context, room string) (Head, error)

	// Rooms lists every room with at least one persisted message.
	Rooms(ctx context.Context) ([]RoomSummary, error)

	// Close releases the underlying database.
	Close() error
}

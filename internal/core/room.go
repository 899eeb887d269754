package core

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/vovakirdan/wirechat-rooms/internal/store"
)

// Room groups the sessions connected to one room and tracks the head of its
// history partition. It is owned by a single room actor and is not safe for
// concurrent use.
type Room struct {
	ID      string
	members map[*Session]struct{}
	head    store.Head
	opened  bool
}

// NewRoom constructs a room with no members.
func NewRoom(id string) *Room {
	return &Room{
		ID:      id,
		members: make(map[*Session]struct{}),
	}
}

// Register inserts a session. Returns true if newly added.
func (r *Room) Register(s *Session) bool {
	if _, exists := r.members[s]; exists {
		return false
	}
	r.members[s] = struct{}{}
	return true
}

// Deregister deletes a session. Returns true if removed.
func (r *Room) Deregister(s *Session) bool {
	if _, exists := r.members[s]; !exists {
		return false
	}
	delete(r.members, s)
	return true
}

// Has reports whether s is a member.
func (r *Room) Has(s *Session) bool {
	_, ok := r.members[s]
	return ok
}

// Len returns the number of members.
func (r *Room) Len() int {
	return len(r.members)
}

// Empty returns true if no sessions are in the room.
func (r *Room) Empty() bool {
	return len(r.members) == 0
}

// Snapshot returns the current membership. Broadcasts iterate the snapshot so
// membership changes never race the loop.
func (r *Room) Snapshot() []*Session {
	return lo.Keys(r.members)
}

// Head returns the newest persisted position known to the room.
func (r *Room) Head() store.Head {
	return r.head
}

// Broadcast sends ev to every member except exclude.
func (r *Room) Broadcast(logger *zerolog.Logger, ev ChatEvent, exclude *Session) int {
	return broadcast(logger, r.Snapshot(), ev, exclude)
}

// open loads the partition head once. The partition itself is never reset.
func (r *Room) open(ctx context.Context, history store.HistoryStore) error {
	if r.opened {
		return nil
	}
	head, err := history.Head(ctx, r.ID)
	if err != nil {
		return err
	}
	r.head = head
	r.opened = true
	return nil
}

// next builds the history entry for a new post. Timestamps never go backwards
// within a room; equal timestamps are ordered by seq.
func (r *Room) next(author, body string, now int64) *store.Message {
	return &store.Message{
		Room:      r.ID,
		Seq:       r.head.Seq + 1,
		Author:    author,
		Body:      body,
		Timestamp: max(now, r.head.Timestamp),
	}
}

// advance records msg as the new head after a successful append.
func (r *Room) advance(msg *store.Message) {
	r.head = store.Head{Seq: msg.Seq, Timestamp: msg.Timestamp}
}

package core

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/wirechat-rooms/internal/store"
)

// commandKind describes what a session asks its room to do.
type commandKind int

const (
	commandJoin commandKind = iota
	commandLeave
	commandPost
)

type command struct {
	kind    commandKind
	session *Session
	body    string
	reply   chan error
}

// roomActor serializes every mutation of one Room on a single goroutine.
type roomActor struct {
	room      *Room
	mailbox   chan command
	done      chan struct{}
	cancel    context.CancelFunc
	history   store.HistoryStore
	publisher Publisher
	now       func() time.Time
	log       zerolog.Logger

	members atomic.Int64
	refs    int // guarded by Dispatcher.mu
}

func (a *roomActor) run(ctx context.Context) {
	defer close(a.done)
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-a.mailbox:
			cmd.reply <- a.handle(ctx, cmd)
		}
	}
}

// call submits cmd and waits for the result. Once the command is in the
// mailbox the caller waits for the reply even if ctx ends, so a join is
// never half-applied from the caller's point of view.
func (a *roomActor) call(ctx context.Context, cmd command) error {
	cmd.reply = make(chan error, 1)
	select {
	case a.mailbox <- cmd:
	case <-a.done:
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-cmd.reply:
		return err
	case <-a.done:
		return ErrRoomClosed
	}
}

func (a *roomActor) handle(ctx context.Context, cmd command) error {
	switch cmd.kind {
	case commandJoin:
		return a.join(ctx, cmd.session)
	case commandLeave:
		return a.leave(cmd.session)
	case commandPost:
		return a.post(ctx, cmd.session, cmd.body)
	default:
		return fmt.Errorf("unknown command %d", cmd.kind)
	}
}

// join registers s, announces it to the others and fixes its replay cursor.
func (a *roomActor) join(ctx context.Context, s *Session) error {
	if err := a.room.open(ctx, a.history); err != nil {
		a.log.Error().Err(err).Msg("open history partition")
		return fmt.Errorf("open history %s: %w", a.room.ID, err)
	}
	if !a.room.Register(s) {
		return nil
	}
	a.members.Store(int64(a.room.Len()))

	a.room.Broadcast(&a.log, ChatEvent{
		Kind:      EventJoined,
		Room:      a.room.ID,
		Author:    s.Name,
		Timestamp: a.now().UnixMilli(),
	}, s)
	s.replayUpTo = a.room.Head().Seq

	a.log.Info().
		Str("session_id", s.ID).
		Str("name", s.Name).
		Int("members", a.room.Len()).
		Uint64("replay_up_to", s.replayUpTo).
		Msg("session joined")
	return nil
}

func (a *roomActor) leave(s *Session) error {
	if !a.room.Deregister(s) {
		return ErrNotInRoom
	}
	a.members.Store(int64(a.room.Len()))

	a.room.Broadcast(&a.log, ChatEvent{
		Kind:      EventLeft,
		Room:      a.room.ID,
		Author:    s.Name,
		Timestamp: a.now().UnixMilli(),
	}, s)

	a.log.Info().
		Str("session_id", s.ID).
		Str("name", s.Name).
		Int("members", a.room.Len()).
		Msg("session left")
	return nil
}

// post appends first and broadcasts second. When the append fails nothing is
// broadcast and only the author hears about it.
func (a *roomActor) post(ctx context.Context, s *Session, body string) error {
	if !a.room.Has(s) {
		return ErrNotInRoom
	}

	msg := a.room.next(s.Name, body, a.now().UnixMilli())
	if err := a.history.Append(ctx, msg); err != nil {
		a.log.Error().Err(err).Str("session_id", s.ID).Uint64("seq", msg.Seq).Msg("append history")
		_ = s.enqueue(ChatEvent{
			Kind:      EventError,
			Room:      a.room.ID,
			Timestamp: msg.Timestamp,
			Error:     coreError(ErrCodePersistFailed, "message could not be saved"),
		})
		return fmt.Errorf("append history: %w", err)
	}
	a.room.advance(msg)

	ev := postedFromMessage(msg)
	a.room.Broadcast(&a.log, ev, nil)

	if err := a.publisher.Publish(ctx, ev); err != nil {
		a.log.Warn().Err(err).Uint64("seq", ev.Seq).Msg("publish posted event")
	}
	return nil
}

package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vovakirdan/wirechat-rooms/internal/store"
)

// AnonymousName is used when a client connects without a usable display name.
const AnonymousName = "Anonymous"

// Reasons passed to Conn.Close when the server ends a session.
const (
	CloseReasonSlowConsumer = "slow consumer"
	CloseReasonShutdown     = "server shutting down"
)

// Conn is the transport half of a session: one live duplex connection.
type Conn interface {
	// WriteEvent serializes and writes one event.
	WriteEvent(ctx context.Context, ev ChatEvent) error
	// Close terminates the connection. It must be safe to call more than once.
	Close(reason string) error
}

// SessionOptions bound per-session buffering and write time.
type SessionOptions struct {
	SendBuffer     int
	WriteTimeout   time.Duration
	ReplayPageSize int
}

// DefaultSessionOptions returns the options used when none are configured.
func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		SendBuffer:     64,
		WriteTimeout:   10 * time.Second,
		ReplayPageSize: 256,
	}
}

// Session is one connected participant in one room.
type Session struct {
	ID   string
	Name string
	Room string

	conn    Conn
	outbox  chan ChatEvent
	done    chan struct{}
	history store.HistoryStore

	writeTimeout time.Duration
	replayPage   int

	// replayUpTo is the partition head observed at registration. Everything
	// at or below it is replayed, everything above it arrives through outbox.
	replayUpTo uint64
	actor      *roomActor

	closeOnce sync.Once
	leaveOnce sync.Once
}

// DisplayName trims requested and falls back to AnonymousName when blank.
func DisplayName(requested string) string {
	name := strings.TrimSpace(requested)
	if name == "" {
		return AnonymousName
	}
	return name
}

// Open wraps an accepted connection into a session. No I/O is performed.
func Open(conn Conn, roomID, requestedName string, opts SessionOptions) *Session {
	defaults := DefaultSessionOptions()
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaults.SendBuffer
	}
	if opts.ReplayPageSize <= 0 {
		opts.ReplayPageSize = defaults.ReplayPageSize
	}
	return &Session{
		ID:           uuid.NewString(),
		Name:         DisplayName(requestedName),
		Room:         roomID,
		conn:         conn,
		outbox:       make(chan ChatEvent, opts.SendBuffer),
		done:         make(chan struct{}),
		writeTimeout: opts.WriteTimeout,
		replayPage:   opts.ReplayPageSize,
	}
}

// Send writes one event to the connection, bounded by the write timeout.
func (s *Session) Send(ctx context.Context, ev ChatEvent) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	if s.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.writeTimeout)
		defer cancel()
	}
	if err := s.conn.WriteEvent(ctx, ev); err != nil {
		return fmt.Errorf("write %s event: %w", ev.Kind, err)
	}
	return nil
}

// enqueue hands ev to the pump without blocking the caller.
func (s *Session) enqueue(ev ChatEvent) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	select {
	case s.outbox <- ev:
		return nil
	default:
		return ErrSlowConsumer
	}
}

// Close stops the pump and closes the connection. Safe to call repeatedly.
func (s *Session) Close(reason string) {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close(reason)
	})
}

// Done is closed once the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Pump replays the room history the session is entitled to, then writes live
// events until ctx ends, the session closes, or a write fails.
func (s *Session) Pump(ctx context.Context) error {
	if err := s.replay(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return ErrSessionClosed
		case ev := <-s.outbox:
			if err := s.Send(ctx, ev); err != nil {
				return err
			}
		}
	}
}

func (s *Session) replay(ctx context.Context) error {
	if s.history == nil || s.replayUpTo == 0 {
		return nil
	}

	var after uint64
	for after < s.replayUpTo {
		page, err := s.history.Scan(ctx, s.Room, after, s.replayUpTo, s.replayPage)
		if err != nil {
			return fmt.Errorf("replay %s: %w", s.Room, err)
		}
		if len(page) == 0 {
			return nil
		}
		for _, msg := range page {
			if err := s.Send(ctx, postedFromMessage(msg)); err != nil {
				return err
			}
			after = msg.Seq
		}
	}
	return nil
}

func postedFromMessage(msg *store.Message) ChatEvent {
	return ChatEvent{
		Kind:      EventPosted,
		Room:      msg.Room,
		Author:    msg.Author,
		Body:      msg.Body,
		Timestamp: msg.Timestamp,
		Seq:       msg.Seq,
	}
}

package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/vovakirdan/wirechat-rooms/internal/store"
)

// RoomInfo describes a live room.
type RoomInfo struct {
	Room    string
	Members int
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithPublisher mirrors persisted Posted events to p.
func WithPublisher(p Publisher) Option {
	return func(d *Dispatcher) {
		if p != nil {
			d.publisher = p
		}
	}
}

// WithClock overrides the time source used for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// WithSessionOptions sets buffering and timeouts for new sessions.
func WithSessionOptions(opts SessionOptions) Option {
	return func(d *Dispatcher) {
		d.sessionOpts = opts
	}
}

// Dispatcher routes sessions and posts to per-room actors. A room actor is
// created on first connect and reclaimed once its last session disconnects;
// the room's history outlives it.
type Dispatcher struct {
	history     store.HistoryStore
	publisher   Publisher
	log         *zerolog.Logger
	now         func() time.Time
	sessionOpts SessionOptions

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	rooms  map[string]*roomActor
	closed bool
}

// NewDispatcher creates a dispatcher backed by history.
func NewDispatcher(history store.HistoryStore, logger *zerolog.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		history:     history,
		publisher:   nopPublisher{},
		log:         logger,
		now:         time.Now,
		sessionOpts: DefaultSessionOptions(),
		ctx:         ctx,
		cancel:      cancel,
		rooms:       make(map[string]*roomActor),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run blocks until ctx is cancelled, then shuts every room down.
func (d *Dispatcher) Run(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-d.ctx.Done():
	}
	d.Shutdown()
}

// Shutdown stops all room actors and closes their sessions.
func (d *Dispatcher) Shutdown() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	actors := lo.Values(d.rooms)
	d.rooms = make(map[string]*roomActor)
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()

	closed := 0
	for _, a := range actors {
		for _, s := range a.room.Snapshot() {
			s.Close(CloseReasonShutdown)
			closed++
		}
	}
	d.log.Info().Int("rooms", len(actors)).Int("sessions", closed).Msg("dispatcher stopped")
}

// Connect opens a session for conn in roomID: the session is registered, the
// other members get a Joined event, and the session's replay cursor is fixed.
// The caller must run Session.Pump to deliver replay and live events and must
// call Disconnect when the connection ends.
func (d *Dispatcher) Connect(ctx context.Context, roomID string, conn Conn, requestedName string) (*Session, error) {
	if strings.TrimSpace(roomID) == "" {
		return nil, ErrInvalidRoom
	}

	s := Open(conn, roomID, requestedName, d.sessionOpts)
	s.history = d.history

	a, err := d.acquire(roomID)
	if err != nil {
		return nil, err
	}
	if err := a.call(ctx, command{kind: commandJoin, session: s}); err != nil {
		d.release(a)
		return nil, fmt.Errorf("join %s: %w", roomID, err)
	}
	s.actor = a
	return s, nil
}

// Post validates body and hands it to the session's room, which persists it
// and broadcasts it to every member.
func (d *Dispatcher) Post(ctx context.Context, s *Session, body string) error {
	if strings.TrimSpace(body) == "" {
		return ErrEmptyMessage
	}
	if s == nil || s.actor == nil {
		return ErrNotInRoom
	}
	return s.actor.call(ctx, command{kind: commandPost, session: s, body: body})
}

// Disconnect deregisters s and tells the remaining members it left. Only the
// session itself is used; code, reason and clean are logged. Repeated calls
// are no-ops.
func (d *Dispatcher) Disconnect(s *Session, code int, reason string, clean bool) {
	if s == nil {
		return
	}
	s.leaveOnce.Do(func() {
		s.Close(reason)
		a := s.actor
		if a == nil {
			return
		}
		if err := a.call(context.Background(), command{kind: commandLeave, session: s}); err != nil && !errors.Is(err, ErrRoomClosed) {
			d.log.Warn().Err(err).Str("room", s.Room).Str("session_id", s.ID).Msg("leave room")
		}
		d.log.Debug().
			Str("room", s.Room).
			Str("session_id", s.ID).
			Int("code", code).
			Str("reason", reason).
			Bool("clean", clean).
			Msg("session disconnected")
		d.release(a)
	})
}

// ActiveRooms lists live rooms ordered by id.
func (d *Dispatcher) ActiveRooms() []RoomInfo {
	d.mu.Lock()
	infos := lo.MapToSlice(d.rooms, func(id string, a *roomActor) RoomInfo {
		return RoomInfo{Room: id, Members: int(a.members.Load())}
	})
	d.mu.Unlock()

	slices.SortFunc(infos, func(a, b RoomInfo) int {
		return strings.Compare(a.Room, b.Room)
	})
	return infos
}

// History reads up to limit persisted events of room with seq > after.
// It does not require the room to be live.
func (d *Dispatcher) History(ctx context.Context, room string, after uint64, limit int) ([]ChatEvent, error) {
	msgs, err := d.history.Scan(ctx, room, after, 0, limit)
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", room, err)
	}
	return lo.Map(msgs, func(msg *store.Message, _ int) ChatEvent {
		return postedFromMessage(msg)
	}), nil
}

// acquire returns the actor for roomID, starting it if needed, and takes a
// reference on it. References are only taken and dropped under d.mu, so an
// actor with zero references can be reclaimed without racing a connect.
func (d *Dispatcher) acquire(roomID string) (*roomActor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrDispatcherClosed
	}

	a, ok := d.rooms[roomID]
	if !ok {
		ctx, cancel := context.WithCancel(d.ctx)
		a = &roomActor{
			room:      NewRoom(roomID),
			mailbox:   make(chan command),
			done:      make(chan struct{}),
			cancel:    cancel,
			history:   d.history,
			publisher: d.publisher,
			now:       d.now,
			log:       d.log.With().Str("room", roomID).Logger(),
		}
		d.rooms[roomID] = a
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			a.run(ctx)
		}()
		d.log.Debug().Str("room", roomID).Msg("room activated")
	}
	a.refs++
	return a, nil
}

func (d *Dispatcher) release(a *roomActor) {
	d.mu.Lock()
	defer d.mu.Unlock()

	a.refs--
	if a.refs > 0 {
		return
	}
	if cur, ok := d.rooms[a.room.ID]; ok && cur == a {
		delete(d.rooms, a.room.ID)
	}
	a.cancel()
	d.log.Debug().Str("room", a.room.ID).Msg("room reclaimed")
}

package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/vovakirdan/wirechat-rooms/internal/store"
	"github.com/vovakirdan/wirechat-rooms/internal/store/sqlite"
)

var errWriteFailed = errors.New("write failed")

// fakeConn records written events on a channel.
type fakeConn struct {
	events chan ChatEvent

	// failAfter makes every write after the first n fail; negative disables.
	failAfter atomic.Int64
	writes    atomic.Int64

	mu     sync.Mutex
	closed bool
	reason string
}

func newFakeConn() *fakeConn {
	c := &fakeConn{events: make(chan ChatEvent, 256)}
	c.failAfter.Store(-1)
	return c
}

func (c *fakeConn) WriteEvent(ctx context.Context, ev ChatEvent) error {
	n := c.writes.Add(1)
	if limit := c.failAfter.Load(); limit >= 0 && n > limit {
		return errWriteFailed
	}
	select {
	case c.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *fakeConn) Close(reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.reason = reason
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// stepClock returns a clock that advances by one millisecond per call.
func stepClock(start int64) func() time.Time {
	var ms atomic.Int64
	ms.Store(start)
	return func() time.Time {
		return time.UnixMilli(ms.Add(1))
	}
}

func newTestStore(t *testing.T) store.HistoryStore {
	t.Helper()

	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newTestDispatcher(t *testing.T, st store.HistoryStore, opts ...Option) *Dispatcher {
	t.Helper()

	logger := zerolog.Nop()
	d := NewDispatcher(st, &logger, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)
	t.Cleanup(cancel)
	return d
}

// connect opens a session and starts its pump.
func connect(t *testing.T, d *Dispatcher, room, name string) (*Session, *fakeConn) {
	t.Helper()

	conn := newFakeConn()
	s, err := d.Connect(context.Background(), room, conn, name)
	require.NoError(t, err)
	go func() { _ = s.Pump(context.Background()) }()
	return s, conn
}

func mustEvent(t *testing.T, ch <-chan ChatEvent, kind EventKind) ChatEvent {
	t.Helper()

	select {
	case ev := <-ch:
		require.Equal(t, kind, ev.Kind, "unexpected event %+v", ev)
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("expected event kind %v not received", kind)
		return ChatEvent{}
	}
}

func mustNoEvent(t *testing.T, ch <-chan ChatEvent) {
	t.Helper()

	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/vovakirdan/wirechat-rooms/internal/store"
	"github.com/vovakirdan/wirechat-rooms/internal/store/mocks"
	"go.uber.org/mock/gomock"
)

func TestDispatcherLobbyScenario(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	d := newTestDispatcher(t, st, WithClock(stepClock(1_000)))

	x, xConn := connect(t, d, "lobby", "X")
	mustNoEvent(t, xConn.events)

	y, yConn := connect(t, d, "lobby", "Y")
	joined := mustEvent(t, xConn.events, EventJoined)
	require.Equal(t, "Y", joined.Author)
	require.Equal(t, JoinedText, joined.Text())
	mustNoEvent(t, yConn.events)

	require.NoError(t, d.Post(ctx, y, "hi"))
	posted := mustEvent(t, xConn.events, EventPosted)
	require.Equal(t, "Y", posted.Author)
	require.Equal(t, "hi", posted.Text())
	echo := mustEvent(t, yConn.events, EventPosted)
	require.Equal(t, posted, echo)

	msgs, err := st.Scan(ctx, "lobby", 0, 0, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "Y", msgs[0].Author)
	require.Equal(t, "hi", msgs[0].Body)
	require.Equal(t, posted.Timestamp, msgs[0].Timestamp)

	d.Disconnect(x, 1000, "bye", true)
	left := mustEvent(t, yConn.events, EventLeft)
	require.Equal(t, "X", left.Author)
	require.Equal(t, LeftText, left.Text())

	_, zConn := connect(t, d, "lobby", "Z")
	replayed := mustEvent(t, zConn.events, EventPosted)
	require.Equal(t, posted, replayed)
	mustNoEvent(t, zConn.events)

	joinedZ := mustEvent(t, yConn.events, EventJoined)
	require.Equal(t, "Z", joinedZ.Author)
}

func TestReplayPrecedesLiveEvents(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	d := newTestDispatcher(t, st, WithSessionOptions(SessionOptions{SendBuffer: 64, ReplayPageSize: 3}))

	author, _ := connect(t, d, "lobby", "author")
	for i := range 10 {
		require.NoError(t, d.Post(ctx, author, fmt.Sprintf("m%d", i)))
	}

	_, late := connect(t, d, "lobby", "late")
	require.NoError(t, d.Post(ctx, author, "live"))

	for i := range 10 {
		ev := mustEvent(t, late.events, EventPosted)
		require.Equal(t, fmt.Sprintf("m%d", i), ev.Body)
		require.Equal(t, uint64(i+1), ev.Seq)
	}
	live := mustEvent(t, late.events, EventPosted)
	require.Equal(t, "live", live.Body)
	require.Equal(t, uint64(11), live.Seq)
}

func TestEmptyMessagesAreDropped(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	d := newTestDispatcher(t, st)

	_, watcherConn := connect(t, d, "lobby", "watcher")
	s, _ := connect(t, d, "lobby", "author")
	mustEvent(t, watcherConn.events, EventJoined)

	for _, body := range []string{"", "   ", "\n\t"} {
		require.ErrorIs(t, d.Post(ctx, s, body), ErrEmptyMessage)
	}

	head, err := st.Head(ctx, "lobby")
	require.NoError(t, err)
	require.Zero(t, head.Seq)
	mustNoEvent(t, watcherConn.events)
}

func TestRoomsAreIsolated(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	d := newTestDispatcher(t, st)

	a, aConn := connect(t, d, "a", "alice")
	_, bConn := connect(t, d, "b", "bob")

	require.NoError(t, d.Post(ctx, a, "only in a"))
	mustEvent(t, aConn.events, EventPosted)
	mustNoEvent(t, bConn.events)

	head, err := st.Head(ctx, "b")
	require.NoError(t, err)
	require.Zero(t, head.Seq)
	require.Equal(t, []RoomInfo{{Room: "a", Members: 1}, {Room: "b", Members: 1}}, d.ActiveRooms())
}

func TestPersistFailureSuppressesBroadcast(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	st := mocks.NewMockHistoryStore(ctrl)

	st.EXPECT().Head(gomock.Any(), "lobby").Return(store.Head{}, nil).Times(1)
	gomock.InOrder(
		st.EXPECT().Append(gomock.Any(), gomock.Any()).Return(errors.New("disk full")),
		st.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, msg *store.Message) error {
			if msg.Seq != 1 {
				return fmt.Errorf("expected seq 1 after failed append, got %d", msg.Seq)
			}
			return nil
		}),
	)

	d := newTestDispatcher(t, st)
	_, xConn := connect(t, d, "lobby", "X")
	y, yConn := connect(t, d, "lobby", "Y")
	mustEvent(t, xConn.events, EventJoined)

	require.Error(t, d.Post(ctx, y, "lost"))
	failure := mustEvent(t, yConn.events, EventError)
	require.Equal(t, ErrCodePersistFailed, failure.Error.Code)
	mustNoEvent(t, xConn.events)

	require.NoError(t, d.Post(ctx, y, "kept"))
	ev := mustEvent(t, xConn.events, EventPosted)
	require.Equal(t, "kept", ev.Body)
	require.Equal(t, uint64(1), ev.Seq)
}

func TestRoomReclaimedHistoryRetained(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	d := newTestDispatcher(t, st)

	alice, _ := connect(t, d, "lobby", "alice")
	require.NoError(t, d.Post(ctx, alice, "kept"))
	d.Disconnect(alice, 1000, "bye", true)
	require.Empty(t, d.ActiveRooms())

	_, bobConn := connect(t, d, "lobby", "bob")
	require.Equal(t, []RoomInfo{{Room: "lobby", Members: 1}}, d.ActiveRooms())
	ev := mustEvent(t, bobConn.events, EventPosted)
	require.Equal(t, "kept", ev.Body)
	require.Equal(t, "alice", ev.Author)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	d := newTestDispatcher(t, st)

	_, watcherConn := connect(t, d, "lobby", "watcher")
	s, _ := connect(t, d, "lobby", "leaver")
	mustEvent(t, watcherConn.events, EventJoined)

	d.Disconnect(s, 1000, "bye", true)
	d.Disconnect(s, 1006, "again", false)

	mustEvent(t, watcherConn.events, EventLeft)
	mustNoEvent(t, watcherConn.events)
	require.ErrorIs(t, d.Post(context.Background(), s, "late"), ErrNotInRoom)
}

func TestDisconnectDuringReplay(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	d := newTestDispatcher(t, st)

	author, authorConn := connect(t, d, "lobby", "author")
	for i := range 5 {
		require.NoError(t, d.Post(ctx, author, fmt.Sprintf("m%d", i)))
		mustEvent(t, authorConn.events, EventPosted)
	}

	conn := newFakeConn()
	conn.failAfter.Store(2)
	s, err := d.Connect(ctx, "lobby", conn, "flaky")
	require.NoError(t, err)
	mustEvent(t, authorConn.events, EventJoined)

	require.ErrorIs(t, s.Pump(ctx), errWriteFailed)
	require.Len(t, conn.events, 2)

	d.Disconnect(s, 1006, "write failed", false)
	left := mustEvent(t, authorConn.events, EventLeft)
	require.Equal(t, "flaky", left.Author)
	require.Equal(t, []RoomInfo{{Room: "lobby", Members: 1}}, d.ActiveRooms())
}

func TestConcurrentPostsKeepOneOrder(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	d := newTestDispatcher(t, st, WithSessionOptions(SessionOptions{SendBuffer: 256}))

	const writers, perWriter = 4, 20
	sessions := make([]*Session, writers)
	conns := make([]*fakeConn, writers)
	for i := range writers {
		sessions[i], conns[i] = connect(t, d, "lobby", fmt.Sprintf("w%d", i))
	}
	// Drain join notifications: writer i sees the writers-1-i that joined after it.
	for i := range writers {
		for range writers - 1 - i {
			mustEvent(t, conns[i].events, EventJoined)
		}
	}

	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			for j := range perWriter {
				_ = d.Post(ctx, s, fmt.Sprintf("%s-%d", s.Name, j))
			}
		}(sessions[i])
	}
	wg.Wait()

	msgs, err := st.Scan(ctx, "lobby", 0, 0, writers*perWriter+1)
	require.NoError(t, err)
	require.Len(t, msgs, writers*perWriter)
	for i, msg := range msgs {
		require.Equal(t, uint64(i+1), msg.Seq)
		if i > 0 {
			require.GreaterOrEqual(t, msg.Timestamp, msgs[i-1].Timestamp)
		}
	}

	for _, conn := range conns {
		for _, msg := range msgs {
			ev := mustEvent(t, conn.events, EventPosted)
			require.Equal(t, msg.Seq, ev.Seq)
			require.Equal(t, msg.Body, ev.Body)
		}
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []ChatEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev ChatEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return errors.New("broker unavailable")
}

func TestPublisherMirrorsPersistedPosts(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	pub := &recordingPublisher{}
	d := newTestDispatcher(t, st, WithPublisher(pub))

	s, conn := connect(t, d, "lobby", "alice")
	require.NoError(t, d.Post(ctx, s, "one"))
	require.NoError(t, d.Post(ctx, s, "two"))
	mustEvent(t, conn.events, EventPosted)
	mustEvent(t, conn.events, EventPosted)

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.events, 2)
	require.Equal(t, "one", pub.events[0].Body)
	require.Equal(t, uint64(2), pub.events[1].Seq)
}

func TestShutdownClosesSessions(t *testing.T) {
	st := newTestStore(t)
	logger := zerolog.Nop()
	d := NewDispatcher(st, &logger)

	_, conn := connect(t, d, "lobby", "alice")
	d.Shutdown()

	require.True(t, conn.isClosed())
	_, err := d.Connect(context.Background(), "lobby", newFakeConn(), "bob")
	require.ErrorIs(t, err, ErrDispatcherClosed)
}

func TestConnectRejectsBlankRoom(t *testing.T) {
	d := newTestDispatcher(t, newTestStore(t))

	_, err := d.Connect(context.Background(), "  ", newFakeConn(), "alice")
	require.ErrorIs(t, err, ErrInvalidRoom)
}

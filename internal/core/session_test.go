package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDisplayNameDefaults(t *testing.T) {
	tests := []struct {
		requested string
		want      string
	}{
		{"", AnonymousName},
		{"   ", AnonymousName},
		{"\t\n", AnonymousName},
		{"  alice ", "alice"},
		{"bob", "bob"},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, DisplayName(tt.requested), "requested %q", tt.requested)
	}
}

func TestOpenAssignsIdentity(t *testing.T) {
	a := Open(newFakeConn(), "lobby", " ", SessionOptions{})
	b := Open(newFakeConn(), "lobby", "bob", SessionOptions{})

	require.Equal(t, AnonymousName, a.Name)
	require.Equal(t, "lobby", a.Room)
	require.NotEmpty(t, a.ID)
	require.NotEqual(t, a.ID, b.ID)
	require.Equal(t, DefaultSessionOptions().SendBuffer, cap(a.outbox))
}

func TestEnqueueOverflowAndClose(t *testing.T) {
	s := Open(newFakeConn(), "lobby", "alice", SessionOptions{SendBuffer: 1})

	require.NoError(t, s.enqueue(ChatEvent{Kind: EventPosted, Body: "one"}))
	require.ErrorIs(t, s.enqueue(ChatEvent{Kind: EventPosted, Body: "two"}), ErrSlowConsumer)

	s.Close("bye")
	s.Close("again")
	require.ErrorIs(t, s.enqueue(ChatEvent{Kind: EventPosted}), ErrSessionClosed)
	require.ErrorIs(t, s.Send(context.Background(), ChatEvent{Kind: EventPosted}), ErrSessionClosed)
}

func TestSendReportsWriteFailure(t *testing.T) {
	conn := newFakeConn()
	conn.failAfter.Store(0)
	s := Open(conn, "lobby", "alice", SessionOptions{})

	err := s.Send(context.Background(), ChatEvent{Kind: EventPosted, Body: "hi"})
	require.ErrorIs(t, err, errWriteFailed)
}

func TestPumpStopsWhenClosed(t *testing.T) {
	s := Open(newFakeConn(), "lobby", "alice", SessionOptions{})
	done := make(chan error, 1)
	go func() { done <- s.Pump(context.Background()) }()

	s.Close("bye")
	require.ErrorIs(t, <-done, ErrSessionClosed)
}

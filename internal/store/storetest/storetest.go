// Package storetest holds behaviour tests shared by every HistoryStore backend.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wirechat-rooms/internal/store"
)

// Factory returns an empty store. The store is closed by the caller.
type Factory func(t *testing.T) store.HistoryStore

// Run exercises a HistoryStore implementation.
func Run(t *testing.T, newStore Factory) {
	t.Run("EmptyRoom", func(t *testing.T) { testEmptyRoom(t, newStore(t)) })
	t.Run("AppendOrder", func(t *testing.T) { testAppendOrder(t, newStore(t)) })
	t.Run("Paging", func(t *testing.T) { testPaging(t, newStore(t)) })
	t.Run("UpperBound", func(t *testing.T) { testUpperBound(t, newStore(t)) })
	t.Run("AfterBeyondRange", func(t *testing.T) { testAfterBeyondRange(t, newStore(t)) })
	t.Run("Conflict", func(t *testing.T) { testConflict(t, newStore(t)) })
	t.Run("RoomIsolation", func(t *testing.T) { testRoomIsolation(t, newStore(t)) })
	t.Run("Rooms", func(t *testing.T) { testRooms(t, newStore(t)) })
}

func appendN(t *testing.T, st store.HistoryStore, room string, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 1; i <= n; i++ {
		require.NoError(t, st.Append(ctx, &store.Message{
			Room:      room,
			Seq:       uint64(i),
			Author:    "author",
			Body:      fmt.Sprintf("%s-%d", room, i),
			Timestamp: int64(1000 + i/2), // repeats timestamps
		}))
	}
}

func seqs(messages []*store.Message) []uint64 {
	out := make([]uint64, 0, len(messages))
	for _, msg := range messages {
		out = append(out, msg.Seq)
	}
	return out
}

func testEmptyRoom(t *testing.T, st store.HistoryStore) {
	defer st.Close()
	ctx := context.Background()

	head, err := st.Head(ctx, "nobody")
	require.NoError(t, err)
	require.Equal(t, store.Head{}, head)

	messages, err := st.Scan(ctx, "nobody", 0, 0, 10)
	require.NoError(t, err)
	require.Empty(t, messages)

	rooms, err := st.Rooms(ctx)
	require.NoError(t, err)
	require.Empty(t, rooms)
}

func testAppendOrder(t *testing.T, st store.HistoryStore) {
	defer st.Close()
	ctx := context.Background()
	appendN(t, st, "lobby", 5)

	messages, err := st.Scan(ctx, "lobby", 0, 0, 0)
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2, 3, 4, 5}, seqs(messages))

	first := messages[0]
	require.Equal(t, "lobby", first.Room)
	require.Equal(t, "author", first.Author)
	require.Equal(t, "lobby-1", first.Body)
	require.Equal(t, int64(1000), first.Timestamp)

	head, err := st.Head(ctx, "lobby")
	require.NoError(t, err)
	require.Equal(t, store.Head{Seq: 5, Timestamp: 1002}, head)
}

func testPaging(t *testing.T, st store.HistoryStore) {
	defer st.Close()
	ctx := context.Background()
	appendN(t, st, "lobby", 7)

	var got []uint64
	var after uint64
	for {
		page, err := st.Scan(ctx, "lobby", after, 0, 3)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		require.LessOrEqual(t, len(page), 3)
		got = append(got, seqs(page)...)
		after = page[len(page)-1].Seq
	}
	require.Equal(t, []uint64{1, 2, 3, 4, 5, 6, 7}, got)
}

func testUpperBound(t *testing.T, st store.HistoryStore) {
	defer st.Close()
	ctx := context.Background()
	appendN(t, st, "lobby", 6)

	messages, err := st.Scan(ctx, "lobby", 2, 4, 10)
	require.NoError(t, err)
	require.Equal(t, []uint64{3, 4}, seqs(messages))

	messages, err = st.Scan(ctx, "lobby", 4, 4, 10)
	require.NoError(t, err)
	require.Empty(t, messages)
}

func testAfterBeyondRange(t *testing.T, st store.HistoryStore) {
	defer st.Close()
	ctx := context.Background()
	appendN(t, st, "lobby", 3)

	for _, after := range []uint64{math.MaxInt64, math.MaxInt64 + 1, math.MaxUint64} {
		messages, err := st.Scan(ctx, "lobby", after, 0, 10)
		require.NoError(t, err)
		require.Empty(t, messages, "after=%d", after)
	}

	messages, err := st.Scan(ctx, "lobby", 0, math.MaxUint64, 10)
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2, 3}, seqs(messages))
}

func testConflict(t *testing.T, st store.HistoryStore) {
	defer st.Close()
	ctx := context.Background()
	appendN(t, st, "lobby", 2)

	err := st.Append(ctx, &store.Message{Room: "lobby", Seq: 2, Author: "x", Body: "dup", Timestamp: 2000})
	require.Error(t, err)
	require.True(t, errors.Is(err, store.ErrConflict), "got %v", err)

	messages, err := st.Scan(ctx, "lobby", 0, 0, 0)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	require.Equal(t, "lobby-2", messages[1].Body)
}

func testRoomIsolation(t *testing.T, st store.HistoryStore) {
	defer st.Close()
	ctx := context.Background()
	appendN(t, st, "a", 2)
	appendN(t, st, "a:b", 3)
	appendN(t, st, "ab", 1)

	messages, err := st.Scan(ctx, "a", 0, 0, 0)
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2}, seqs(messages))
	for _, msg := range messages {
		require.Equal(t, "a", msg.Room)
	}

	head, err := st.Head(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, uint64(2), head.Seq)

	head, err = st.Head(ctx, "a:b")
	require.NoError(t, err)
	require.Equal(t, uint64(3), head.Seq)
}

func testRooms(t *testing.T, st store.HistoryStore) {
	defer st.Close()
	appendN(t, st, "zeta", 1)
	appendN(t, st, "alpha", 3)

	rooms, err := st.Rooms(context.Background())
	require.NoError(t, err)
	require.Equal(t, []store.RoomSummary{
		{Room: "alpha", Messages: 3, Head: store.Head{Seq: 3, Timestamp: 1001}},
		{Room: "zeta", Messages: 1, Head: store.Head{Seq: 1, Timestamp: 1000}},
	}, rooms)
}

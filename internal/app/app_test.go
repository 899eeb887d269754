package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wirechat-rooms/internal/config"
	"github.com/vovakirdan/wirechat-rooms/internal/store"
)

func TestOpenHistoryDrivers(t *testing.T) {
	for _, driver := range []string{"sqlite", "badger"} {
		t.Run(driver, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "history")
			st, err := OpenHistory(config.HistoryConfig{Driver: driver, Path: path})
			require.NoError(t, err)
			defer st.Close()

			ctx := context.Background()
			require.NoError(t, st.Append(ctx, &store.Message{Room: "r", Seq: 1, Author: "a", Body: "b", Timestamp: 1}))

			head, err := st.Head(ctx, "r")
			require.NoError(t, err)
			require.Equal(t, uint64(1), head.Seq)
		})
	}
}

func TestOpenHistoryUnknownDriver(t *testing.T) {
	_, err := OpenHistory(config.HistoryConfig{Driver: "mongo", Path: "x"})
	require.Error(t, err)
}

package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-rooms/internal/app"
	"github.com/vovakirdan/wirechat-rooms/internal/store"
)

func newRoomsCmd(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "rooms",
		Short: "List rooms with stored history",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := app.OpenHistory(state.cfg.History)
			if err != nil {
				return err
			}
			defer st.Close()

			rooms, err := st.Rooms(cmd.Context())
			if err != nil {
				return err
			}
			renderRooms(cmd.OutOrStdout(), rooms)
			return nil
		},
	}
}

func renderRooms(out io.Writer, rooms []store.RoomSummary) {
	table := newTable(out, []string{"Room", "Messages", "Last Seq", "Last Message"})
	for _, r := range rooms {
		table.Append([]string{
			r.Room,
			strconv.FormatInt(r.Messages, 10),
			strconv.FormatUint(r.Head.Seq, 10),
			formatMillis(r.Head.Timestamp),
		})
	}
	table.Render()
	fmt.Fprintf(out, "%d room(s)\n", len(rooms))
}

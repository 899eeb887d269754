package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-rooms/internal/app"
	"github.com/vovakirdan/wirechat-rooms/internal/store"
)

func newHistoryCmd(state *cliState) *cobra.Command {
	var (
		room  string
		after uint64
		limit int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the stored messages of a room",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := app.OpenHistory(state.cfg.History)
			if err != nil {
				return err
			}
			defer st.Close()

			messages, err := st.Scan(cmd.Context(), room, after, 0, limit)
			if err != nil {
				return err
			}
			renderHistory(cmd.OutOrStdout(), messages)
			return nil
		},
	}

	cmd.Flags().StringVar(&room, "room", "", "room id")
	cmd.Flags().Uint64Var(&after, "after", 0, "only messages with a greater sequence number")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of messages")
	_ = cmd.MarkFlagRequired("room")
	return cmd
}

func renderHistory(out io.Writer, messages []*store.Message) {
	table := newTable(out, []string{"Seq", "Time", "Name", "Message"})
	for _, msg := range messages {
		table.Append([]string{
			strconv.FormatUint(msg.Seq, 10),
			formatMillis(msg.Timestamp),
			msg.Author,
			msg.Body,
		})
	}
	table.Render()
	fmt.Fprintf(out, "%d message(s)\n", len(messages))
}

func newTable(out io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(out)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

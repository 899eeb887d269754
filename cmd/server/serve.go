package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-rooms/internal/app"
	"github.com/vovakirdan/wirechat-rooms/internal/config"
)

func newServeCmd(state *cliState) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := state.cfg
			cfg.UpdateFrom(config.Config{Addr: addr})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(&cfg, state.logger)
			if err != nil {
				return err
			}

			state.logger.Info().Str("addr", cfg.Addr).Msg("starting wirechat rooms server")
			if err := application.Run(ctx); err != nil {
				state.logger.Error().Err(err).Msg("server exited with error")
				return err
			}
			state.logger.Info().Msg("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides config)")
	return cmd
}

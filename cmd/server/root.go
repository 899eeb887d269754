package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-rooms/internal/config"
	"github.com/vovakirdan/wirechat-rooms/internal/log"
)

type cliState struct {
	configPath string
	logLevel   string

	cfg    config.Config
	logger *zerolog.Logger
}

func newRootCmd() *cobra.Command {
	state := &cliState{}

	root := &cobra.Command{
		Use:          "wirechat-rooms",
		Short:        "Room-scoped chat server with durable history",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return state.load()
		},
	}

	root.PersistentFlags().StringVar(&state.configPath, "config", "", "path to config file")
	root.PersistentFlags().StringVar(&state.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(state),
		newHistoryCmd(state),
		newRoomsCmd(state),
	)
	return root
}

func (s *cliState) load() error {
	bootstrap := log.New("info", "console")

	cfg, path, err := config.Load(bootstrap, s.configPath)
	if err != nil {
		return err
	}
	cfg.UpdateFrom(config.Config{LogLevel: s.logLevel})

	s.cfg = cfg
	s.logger = log.New(cfg.LogLevel, cfg.LogFormat)
	s.logger.Debug().Str("config", path).Msg("configuration loaded")
	return nil
}

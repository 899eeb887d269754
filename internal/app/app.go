package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-rooms/internal/config"
	"github.com/vovakirdan/wirechat-rooms/internal/core"
	"github.com/vovakirdan/wirechat-rooms/internal/notify"
	"github.com/vovakirdan/wirechat-rooms/internal/store"
	"github.com/vovakirdan/wirechat-rooms/internal/store/badger"
	"github.com/vovakirdan/wirechat-rooms/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/wirechat-rooms/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	dispatcher      *core.Dispatcher
	store           store.HistoryStore
	nats            *notify.NATSPublisher
	log             *zerolog.Logger
}

// OpenHistory opens the history backend selected by cfg.
func OpenHistory(cfg config.HistoryConfig) (store.HistoryStore, error) {
	switch cfg.Driver {
	case "", "sqlite":
		st, err := sqlite.New(cfg.Path)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "badger":
		st, err := badger.New(cfg.Path)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown history driver %q", cfg.Driver)
	}
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := OpenHistory(cfg.History)
	if err != nil {
		return nil, fmt.Errorf("init history: %w", err)
	}
	logger.Info().
		Str("driver", cfg.History.Driver).
		Str("path", cfg.History.Path).
		Msg("history store initialized")

	opts := []core.Option{
		core.WithSessionOptions(core.SessionOptions{
			SendBuffer:     cfg.SendBuffer,
			WriteTimeout:   cfg.WriteTimeout,
			ReplayPageSize: cfg.ReplayPageSize,
		}),
	}

	var publisher *notify.NATSPublisher
	if cfg.NATS.URL != "" {
		publisher, err = notify.Connect(cfg.NATS.URL, cfg.NATS.Subject, logger)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("init nats: %w", err)
		}
		opts = append(opts, core.WithPublisher(publisher))
	}

	dispatcher := core.NewDispatcher(st, logger, opts...)
	server := transporthttp.NewServer(dispatcher, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		dispatcher:      dispatcher,
		store:           st,
		nats:            publisher,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go a.dispatcher.Run(ctx)

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		// Hijacked websocket connections are not tracked by Shutdown; the
		// dispatcher closes them.
		a.dispatcher.Shutdown()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes the history store and the NATS connection.
func (a *App) cleanup() {
	a.dispatcher.Shutdown()

	if a.nats != nil {
		if err := a.nats.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close nats")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}

// Package app wires the client together: push connection, event bus, REST
// gateway, persistence and the synchronized store.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mmynk/whobought/internal/config"
	"github.com/mmynk/whobought/internal/events"
	"github.com/mmynk/whobought/internal/gateway"
	"github.com/mmynk/whobought/internal/middleware"
	"github.com/mmynk/whobought/internal/storage"
	"github.com/mmynk/whobought/internal/storage/redis"
	"github.com/mmynk/whobought/internal/storage/sqlite"
	"github.com/mmynk/whobought/internal/store"
	"github.com/mmynk/whobought/internal/transport"
)

// App owns every long-lived component. Build it with New, then Start.
type App struct {
	Store *store.Store
	Conn  *transport.Manager
	Bus   *events.Bus

	state  storage.Store
	shim   *storage.Shim
	logger *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// New builds the components described by cfg. Nothing touches the network
// until Start.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	state, err := openState(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("State backend ready", "backend", cfg.StateBackend)

	runCtx, cancel := context.WithCancel(context.Background())

	settings := transport.DefaultSettings()
	settings.ReconnectTimeout = cfg.ReconnectDelay
	settings.QueueSize = cfg.QueueSize
	conn := transport.NewManager(runCtx, cfg.WSURL, middleware.BearerHeader(cfg.Token), settings, logger)
	conn.OnStateChange(func(s transport.State) {
		logger.Info("Push connection state changed", "state", s.String())
	})

	bus := events.NewBus(conn, logger)
	shim := storage.NewShim(state, logger)

	st, err := store.New(store.Options{
		Gateway: gateway.New(cfg.APIURL, gateway.Options{
			Token:   cfg.Token,
			Timeout: cfg.HTTPTimeout,
			Logger:  logger,
		}),
		Bus:         bus,
		Persistence: shim,
		Logger:      logger,
	})
	if err != nil {
		cancel()
		shim.Close()
		state.Close()
		return nil, err
	}

	return &App{
		Store:  st,
		Conn:   conn,
		Bus:    bus,
		state:  state,
		shim:   shim,
		logger: logger,
		cancel: cancel,
	}, nil
}

func openState(ctx context.Context, cfg config.Config) (storage.Store, error) {
	switch cfg.StateBackend {
	case config.BackendRedis:
		s, err := redis.New(ctx, redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			return nil, fmt.Errorf("failed to open redis state: %w", err)
		}
		return s, nil
	case config.BackendSQLite, "":
		s, err := sqlite.New(cfg.StatePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite state: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.StateBackend)
	}
}

// Start opens the push connection, starts dispatching inbound events,
// restores the cached session and refreshes it from the server. A refresh
// error is returned but leaves the app running on the cached session.
func (a *App) Start(ctx context.Context) error {
	a.Conn.Open()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.Bus.Run(context.Background(), a.Conn.Receive()); err != nil {
			a.logger.Warn("Event dispatch stopped", "error", err)
		}
	}()

	if a.Store.Restore(ctx) {
		a.logger.Info("Using cached session until refresh completes")
	}
	if err := a.Store.LoadSession(ctx); err != nil {
		return fmt.Errorf("failed to refresh session: %w", err)
	}
	return nil
}

// Close shuts everything down and flushes pending state writes.
func (a *App) Close() error {
	var err error
	a.once.Do(func() {
		a.Store.Close()
		// Closing the connection closes Receive, which ends Bus.Run.
		a.Conn.Close()
		a.wg.Wait()
		a.cancel()
		a.shim.Close()
		err = a.state.Close()
	})
	return err
}

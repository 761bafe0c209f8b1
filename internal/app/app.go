// Package app wires the relay core, persistence and transports into one
// server process.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	stdhttp "net/http"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/wirerelay/internal/attachments"
	"github.com/vovakirdan/wirerelay/internal/config"
	"github.com/vovakirdan/wirerelay/internal/core"
	"github.com/vovakirdan/wirerelay/internal/metrics"
	"github.com/vovakirdan/wirerelay/internal/relay"
	"github.com/vovakirdan/wirerelay/internal/store"
	"github.com/vovakirdan/wirerelay/internal/store/mysql"
	"github.com/vovakirdan/wirerelay/internal/store/sqlite"
	"github.com/vovakirdan/wirerelay/internal/transport/tcp"
	transporthttp "github.com/vovakirdan/wirerelay/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	cfg      config.ServerConfig
	store    store.Store
	bus      *core.Bus
	registry *core.Registry
	counters *metrics.Counters
	recorder *relay.Recorder
	handler  *relay.Handler
	tcp      *tcp.Server
	httpLn   net.Listener
	log      *zerolog.Logger
}

// New opens the store and binds the listeners. Nothing is served until Run.
func New(ctx context.Context, cfg config.ServerConfig, logger *zerolog.Logger) (*App, error) {
	st, err := openStore(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("driver", cfg.Database.Driver).Msg("database initialized")

	var files *attachments.Store
	if cfg.AttachmentsDir != "" {
		files = attachments.New(cfg.AttachmentsDir)
	}

	a := &App{
		cfg:      cfg,
		store:    st,
		bus:      core.NewBus(cfg.BusCapacity),
		registry: core.NewRegistry(),
		counters: metrics.NewCounters(),
		log:      logger,
	}
	a.recorder = relay.NewRecorder(st, files, cfg.PersistQueue, logger)
	a.handler = relay.NewHandler(a.bus, a.registry, st, a.recorder, a.counters, logger, relay.Options{
		MaxFrameBytes: cfg.MaxFrameBytes,
		WriteTimeout:  cfg.WriteTimeout,
		RequireUUID:   cfg.RequireUUID,
	})

	a.tcp, err = tcp.Listen(cfg.Addr(), a.handler, logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	if cfg.HTTPAddr != "" {
		a.httpLn, err = net.Listen("tcp", cfg.HTTPAddr)
		if err != nil {
			a.tcp.Close()
			st.Close()
			return nil, fmt.Errorf("listen %s: %w", cfg.HTTPAddr, err)
		}
	}
	return a, nil
}

func openStore(ctx context.Context, db config.DatabaseConfig) (store.Store, error) {
	switch db.Driver {
	case config.DriverSQLite:
		return sqlite.New(db.DSN)
	case config.DriverMySQL:
		return mysql.New(ctx, db.DSN)
	default:
		return nil, fmt.Errorf("unknown database driver %q", db.Driver)
	}
}

// TCPAddr returns the bound relay address.
func (a *App) TCPAddr() net.Addr { return a.tcp.Addr() }

// HTTPAddr returns the bound HTTP address, or nil when HTTP is disabled.
func (a *App) HTTPAddr() net.Addr {
	if a.httpLn == nil {
		return nil
	}
	return a.httpLn.Addr()
}

// Counters exposes the process metrics.
func (a *App) Counters() *metrics.Counters { return a.counters }

// Run serves until ctx is cancelled or a listener fails, then shuts down:
// connections end, the persist queue drains and the store is closed.
func (a *App) Run(ctx context.Context) error {
	go a.recorder.Run(ctx)
	defer a.cleanup()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.tcp.Serve(gctx); err != nil {
			return err
		}
		if gctx.Err() == nil {
			return errors.New("tcp listener closed")
		}
		return nil
	})

	if a.httpLn != nil {
		stats := transporthttp.NewStatsHandlers(a.counters, a.registry, a.store, a.log)
		server := transporthttp.NewServer(gctx, a.handler, stats, a.cfg, a.log)

		g.Go(func() error {
			a.log.Info().Str("addr", a.httpLn.Addr().String()).Msg("http server listening")
			if err := server.Serve(a.httpLn); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
			defer cancel()

			a.log.Info().Msg("shutting down http server")
			return server.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

// cleanup releases resources in dependency order.
func (a *App) cleanup() {
	a.bus.Close()
	a.recorder.Close()
	if err := a.store.Close(); err != nil {
		a.log.Warn().Err(err).Msg("failed to close store")
	} else {
		a.log.Info().Msg("store closed")
	}
}

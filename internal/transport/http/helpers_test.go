package http

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirerelay/internal/config"
	"github.com/vovakirdan/wirerelay/internal/core"
	"github.com/vovakirdan/wirerelay/internal/metrics"
	"github.com/vovakirdan/wirerelay/internal/relay"
	"github.com/vovakirdan/wirerelay/internal/store/sqlite"
)

type testEnv struct {
	server   *httptest.Server
	bus      *core.Bus
	registry *core.Registry
	counters *metrics.Counters
	store    *sqlite.SQLiteStore
}

// startTestServer wires a relay handler with an in-memory store behind the HTTP server.
func startTestServer(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger := zerolog.Nop()
	env := &testEnv{
		bus:      core.NewBus(16),
		registry: core.NewRegistry(),
		counters: metrics.NewCounters(),
		store:    st,
	}
	handler := relay.NewHandler(env.bus, env.registry, st, nil, env.counters, &logger, relay.Options{
		WriteTimeout: time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	cfg := config.Default().Server
	srv := NewServer(ctx, handler, NewStatsHandlers(env.counters, env.registry, st, &logger), cfg, &logger)

	env.server = httptest.NewUnstartedServer(srv.Handler)
	env.server.Config.BaseContext = srv.BaseContext
	env.server.Start()
	t.Cleanup(env.server.Close)
	return env
}

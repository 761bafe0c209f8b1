package http

import (
	"context"
	"net"
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirerelay/internal/config"
)

// ConnHandler owns a relay connection until it returns.
type ConnHandler interface {
	ServeConn(ctx context.Context, conn net.Conn) error
}

// NewServer builds the HTTP server: health and stats endpoints plus the
// WebSocket entry point to the relay. Request contexts derive from ctx, so
// cancelling it ends every upgraded connection.
func NewServer(ctx context.Context, relay ConnHandler, stats *StatsHandlers, cfg config.ServerConfig, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	router.GET("/health", healthHandler)
	router.GET("/stats", stats.Stats)

	// The WebSocket upgrade hijacks the connection, which gin's writer refuses.
	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(relay, cfg.MaxFrameBytes, logger))
	mux.Handle("/", router)

	return &stdhttp.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}

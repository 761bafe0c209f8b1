// Package tcp accepts relay connections on a plain TCP listener.
package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// ConnHandler owns an accepted connection until it returns.
type ConnHandler interface {
	ServeConn(ctx context.Context, conn net.Conn) error
}

// Server runs the accept loop. A failing connection never stops it.
type Server struct {
	ln      net.Listener
	handler ConnHandler
	log     *zerolog.Logger

	wg sync.WaitGroup
}

// Listen binds addr (host:port).
func Listen(addr string, handler ConnHandler, logger *zerolog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return NewServer(ln, handler, logger), nil
}

// NewServer wraps an existing listener.
func NewServer(ln net.Listener, handler ConnHandler, logger *zerolog.Logger) *Server {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Server{ln: ln, handler: handler, log: logger}
}

// Addr returns the bound address.
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// Serve accepts connections until ctx is cancelled, then closes the listener
// and waits for every connection goroutine to finish.
func (s *Server) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { s.ln.Close() })
	defer stop()
	defer s.wg.Wait()

	s.log.Info().Str("addr", s.Addr().String()).Msg("tcp relay listening")

	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = 5 * time.Millisecond
	retry.MaxInterval = time.Second
	retry.MaxElapsedTime = 0

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			wait := retry.NextBackOff()
			s.log.Warn().Err(err).Dur("retry_in", wait).Msg("accept failed")
			select {
			case <-time.After(wait):
				continue
			case <-ctx.Done():
				return nil
			}
		}
		retry.Reset()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.handler.ServeConn(ctx, conn); err != nil {
				s.log.Debug().Err(err).Str("addr", conn.RemoteAddr().String()).Msg("connection ended with error")
			}
		}()
	}
}

// Close stops accepting without waiting for connections.
func (s *Server) Close() error {
	return s.ln.Close()
}

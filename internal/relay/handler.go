// Package relay runs the server side of one relay connection: the
// authentication handshake followed by concurrent inbound and outbound loops.
package relay

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/wirerelay/internal/core"
	"github.com/vovakirdan/wirerelay/internal/errs"
	"github.com/vovakirdan/wirerelay/internal/metrics"
	"github.com/vovakirdan/wirerelay/internal/proto"
)

// MessageRecorder receives every broadcast message for persistence.
// Record must not block.
type MessageRecorder interface {
	Record(identifier string, msg proto.Message)
}

// Options tune a Handler.
type Options struct {
	MaxFrameBytes int
	WriteTimeout  time.Duration // 0 disables write deadlines
	RequireUUID   bool
}

// Handler serves relay connections. One Handler is shared by all transports.
type Handler struct {
	bus      *core.Bus
	registry *core.Registry
	auth     core.Authenticator
	recorder MessageRecorder
	metrics  metrics.Sink
	log      *zerolog.Logger
	opts     Options
}

// NewHandler builds a handler. auth and recorder may be nil; a nil sink discards metrics.
func NewHandler(bus *core.Bus, registry *core.Registry, auth core.Authenticator, recorder MessageRecorder, sink metrics.Sink, logger *zerolog.Logger, opts Options) *Handler {
	if sink == nil {
		sink = metrics.Nop
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Handler{
		bus:      bus,
		registry: registry,
		auth:     auth,
		recorder: recorder,
		metrics:  sink,
		log:      logger,
		opts:     opts,
	}
}

// ServeConn owns conn until the peer disconnects, a protocol violation occurs,
// or ctx is cancelled. conn is always closed on return. A clean disconnect
// returns nil.
func (h *Handler) ServeConn(ctx context.Context, conn net.Conn) error {
	addr := conn.RemoteAddr().String()
	logger := h.log.With().Str("addr", addr).Logger()

	c := &connection{
		h:    h,
		conn: conn,
		addr: addr,
		log:  &logger,
		dec:  proto.NewDecoder(conn, h.opts.MaxFrameBytes),
		enc:  proto.NewEncoder(conn, h.opts.MaxFrameBytes),
		gate: core.NewGate(addr, h.registry, h.auth, h.opts.RequireUUID),
	}

	err := c.run(ctx)
	conn.Close()
	c.logExit(err)

	if err == nil || isDisconnect(err) {
		return nil
	}
	return err
}

type connection struct {
	h    *Handler
	conn net.Conn
	addr string
	log  *zerolog.Logger
	dec  *proto.Decoder
	gate *core.Gate

	writeMu sync.Mutex
	enc     *proto.Encoder
}

func (c *connection) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, func() { c.conn.Close() })
	defer stop()

	ack, err := c.handshake(ctx)
	if err != nil {
		return err
	}

	identifier := c.gate.Identifier()
	logger := c.log.With().Str("identifier", identifier).Logger()
	c.log = &logger

	c.h.metrics.Gauge(metrics.ClientsConnected, 1)
	defer func() {
		if c.h.registry != nil {
			c.h.registry.Remove(c.addr)
		}
		c.h.metrics.Gauge(metrics.ClientsConnected, -1)
	}()

	sub := c.h.bus.Subscribe(c.addr)
	defer sub.Close()

	// The outbound loop starts only after the echo is written, so the echo is
	// the first frame this connection sees.
	if err := c.write(ack); err != nil {
		return err
	}
	c.log.Info().Msg("client authenticated")

	g, gctx := errgroup.WithContext(ctx)
	closeOnCancel := context.AfterFunc(gctx, func() { c.conn.Close() })
	defer closeOnCancel()

	g.Go(func() error { return c.inbound(gctx, identifier) })
	g.Go(func() error { return c.outbound(gctx, sub) })
	return g.Wait()
}

// handshake requires the first frame to be a valid Auth and returns the echo.
func (c *connection) handshake(ctx context.Context) (proto.Message, error) {
	msg, err := c.dec.Decode()
	if err != nil {
		c.rejectFrame(err)
		return proto.Message{}, err
	}

	ack, err := c.gate.Handshake(ctx, msg)
	if err != nil {
		if errs.Is(err, errs.KindAuth) {
			c.h.metrics.Increment(metrics.AuthFailures)
			c.replyError(reasonFor(err))
		}
		return proto.Message{}, err
	}
	return ack, nil
}

func (c *connection) inbound(ctx context.Context, identifier string) error {
	for {
		msg, err := c.dec.Decode()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.rejectFrame(err)
			return err
		}

		switch msg.Kind {
		case proto.KindAuth:
			c.log.Warn().Str("kind", msg.Kind.String()).Msg("auth after handshake")
			if err := c.write(proto.Error(core.ReasonAlreadyAuthenticated)); err != nil {
				return err
			}
		case proto.KindError:
			c.log.Warn().Str("reason", msg.Body).Msg("client reported error")
		default:
			c.h.bus.Publish(core.Envelope{Origin: c.addr, Identifier: identifier, Message: msg})
			c.h.metrics.Increment(metrics.MessagesTotal)
			if c.h.recorder != nil {
				c.h.recorder.Record(identifier, msg)
			}
			c.log.Debug().Str("kind", msg.Kind.String()).Msg("message relayed")
		}
	}
}

func (c *connection) outbound(ctx context.Context, sub *core.Subscription) error {
	var reported uint64
	for {
		env, err := sub.Next(ctx)
		if err != nil {
			return err
		}
		if dropped := sub.Dropped(); dropped > reported {
			c.log.Warn().Uint64("dropped", dropped-reported).Msg("slow subscriber lost messages")
			reported = dropped
		}
		if err := c.write(env.Message); err != nil {
			return err
		}
	}
}

// write encodes m under the connection's writer lock.
func (c *connection) write(m proto.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.h.opts.WriteTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.h.opts.WriteTimeout)); err != nil {
			return errs.Transport("set write deadline", err)
		}
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	return c.enc.Encode(m)
}

// rejectFrame tells the peer why its frame was refused. Transport errors get no reply.
func (c *connection) rejectFrame(err error) {
	if !errs.Is(err, errs.KindFormat) {
		return
	}
	c.h.metrics.Increment(metrics.FramesRejected)
	c.replyError(core.ReasonMalformedFrame)
}

// replyError is best effort; the connection is about to close anyway.
func (c *connection) replyError(reason string) {
	if err := c.write(proto.Error(reason)); err != nil {
		c.log.Debug().Err(err).Msg("write error reply")
	}
}

func (c *connection) logExit(err error) {
	switch {
	case err == nil, isDisconnect(err):
		c.log.Info().Msg("client disconnected")
	case errs.Is(err, errs.KindPersistence):
		c.log.Error().Err(err).Msg("connection closed")
	default:
		c.log.Warn().Err(err).Str("kind", errs.KindOf(err).String()).Msg("connection closed")
	}
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, core.ErrInvalidIdentifier):
		return core.ReasonInvalidIdentifier
	case errors.Is(err, core.ErrAlreadyAuthenticated):
		return core.ReasonAlreadyAuthenticated
	default:
		return core.ReasonNotAuthenticated
	}
}

// isDisconnect reports errors that end a connection normally: peer EOF,
// a closed socket after shutdown, or cancellation.
func isDisconnect(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, core.ErrBusClosed)
}

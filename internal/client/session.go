// Package client implements the interactive relay client: a session that
// authenticates, relays local input, renders inbound traffic and reconnects
// after transport failures until its retry budget is spent.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/wirerelay/internal/errs"
	"github.com/vovakirdan/wirerelay/internal/proto"
)

const outboxSize = 16

// Options configure a Session.
type Options struct {
	Identifier       string
	AuthTimeout      time.Duration
	RetryInterval    time.Duration
	RetryBudget      time.Duration
	RetryMultiplier  float64 // 1 keeps the interval fixed
	MaxRetryInterval time.Duration
	MaxFrameBytes    int

	// Clock measures outage time and drives the backoff. Defaults to the system clock.
	Clock backoff.Clock
	// OnStateChange, if set, is called synchronously on every transition.
	OnStateChange func(State)
}

// Session is one client's connection lifecycle.
type Session struct {
	dialer   Dialer
	input    io.Reader
	renderer *Renderer
	opts     Options
	log      *zerolog.Logger

	mu    sync.Mutex
	state State

	lines chan string
}

// NewSession creates a session reading commands from input.
func NewSession(dialer Dialer, input io.Reader, renderer *Renderer, opts Options, logger *zerolog.Logger) *Session {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if opts.Clock == nil {
		opts.Clock = backoff.SystemClock
	}
	if opts.RetryMultiplier < 1 {
		opts.RetryMultiplier = 1
	}
	if opts.MaxRetryInterval < opts.RetryInterval {
		opts.MaxRetryInterval = opts.RetryInterval
	}
	withID := logger.With().Str("identifier", opts.Identifier).Logger()
	return &Session{
		dialer:   dialer,
		input:    input,
		renderer: renderer,
		opts:     opts,
		log:      &withID,
		lines:    make(chan string),
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	prev := s.state
	s.state = st
	s.mu.Unlock()

	if prev != st {
		s.log.Debug().Str("state", st.String()).Str("from", prev.String()).Msg("session state")
	}
	if s.opts.OnStateChange != nil {
		s.opts.OnStateChange(st)
	}
}

// Run drives the session until the user quits (nil), ctx is cancelled
// (ctx.Err()), a fatal protocol error occurs, or the reconnect budget runs
// out (ErrGaveUp).
func (s *Session) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go s.pumpInput(done)

	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = s.opts.RetryInterval
	retry.Multiplier = s.opts.RetryMultiplier
	retry.RandomizationFactor = 0
	retry.MaxInterval = s.opts.MaxRetryInterval
	retry.MaxElapsedTime = 0
	retry.Clock = s.opts.Clock
	retry.Reset()

	var outageStart time.Time
	attempt := 0

	for {
		attempt++
		s.setState(StateConnecting)
		authenticated, err := s.connect(ctx)

		switch {
		case errors.Is(err, errQuit):
			s.setState(StateDisconnected)
			return nil
		case ctx.Err() != nil:
			s.setState(StateDisconnected)
			return ctx.Err()
		case err != nil && !errs.Is(err, errs.KindTransport):
			s.log.Error().Err(err).Str("kind", errs.KindOf(err).String()).Msg("session failed")
			s.setState(StateDisconnected)
			return err
		}

		if authenticated {
			outageStart = time.Time{}
			retry.Reset()
			attempt = 1
		}
		now := s.opts.Clock.Now()
		if outageStart.IsZero() {
			outageStart = now
		}
		elapsed := now.Sub(outageStart)

		if elapsed >= s.opts.RetryBudget {
			s.setState(StateGivingUp)
			s.log.Error().Err(err).Dur("elapsed", elapsed).Int("attempt", attempt).Msg("giving up")
			return fmt.Errorf("%w after %s: %w", ErrGaveUp, elapsed.Round(time.Millisecond), err)
		}

		s.setState(StateReconnecting)
		wait := retry.NextBackOff()
		if remaining := s.opts.RetryBudget - elapsed; wait > remaining {
			wait = remaining
		}
		s.log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", wait).Msg("connection lost")
		s.renderer.Notice("disconnected, retrying in %s", wait.Round(time.Millisecond))

		if err := s.wait(ctx, wait); err != nil {
			s.setState(StateDisconnected)
			if errors.Is(err, errQuit) {
				return nil
			}
			return err
		}
		s.setState(StateDisconnected)
	}
}

// connect runs one Connecting → Authenticating → Active pass. It reports
// whether authentication succeeded so the caller can reset the retry budget.
func (s *Session) connect(ctx context.Context) (bool, error) {
	conn, err := s.dialer.Dial(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	enc := proto.NewEncoder(conn, s.opts.MaxFrameBytes)
	dec := proto.NewDecoder(conn, s.opts.MaxFrameBytes)

	s.setState(StateAuthenticating)
	if err := s.authenticate(conn, enc, dec); err != nil {
		return false, err
	}

	s.setState(StateActive)
	s.log.Info().Msg("authenticated")
	s.renderer.Notice("connected as %s", s.opts.Identifier)
	return true, s.active(ctx, conn, enc, dec)
}

func (s *Session) authenticate(conn net.Conn, enc *proto.Encoder, dec *proto.Decoder) error {
	want := proto.Auth(s.opts.Identifier)
	if err := enc.Encode(want); err != nil {
		return err
	}

	if s.opts.AuthTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(s.opts.AuthTimeout)); err != nil {
			return errs.Transport("set read deadline", err)
		}
	}
	got, err := dec.Decode()
	if err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return errs.Auth("authenticate", ErrAuthTimeout)
		}
		return err
	}
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return errs.Transport("clear read deadline", err)
	}

	switch {
	case got.Kind == proto.KindError:
		return errs.Auth("authenticate", fmt.Errorf("%w: %s", ErrAuthRejected, got.Body))
	case !got.Equal(want):
		return errs.Auth("authenticate", fmt.Errorf("%w: sent %s, got %s", ErrAuthMismatch, want, got))
	}
	return nil
}

// active runs the three Active activities until one of them fails or the
// user quits. Quitting closes the outbox; the writer drains it first.
func (s *Session) active(ctx context.Context, conn net.Conn, enc *proto.Encoder, dec *proto.Decoder) error {
	outbox := make(chan proto.Message, outboxSize)

	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, func() { conn.Close() })
	defer stop()

	g.Go(func() error { return s.readInput(gctx, outbox) })
	g.Go(func() error { return s.writeLoop(gctx, enc, outbox) })
	g.Go(func() error { return s.readLoop(dec) })

	err := g.Wait()
	if errors.Is(err, errQuit) {
		return errQuit
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (s *Session) readInput(ctx context.Context, outbox chan<- proto.Message) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-s.lines:
			if !ok {
				close(outbox)
				return nil
			}
			cmd, err := ParseCommand(line)
			if err != nil {
				s.renderer.Notice("%v", err)
				continue
			}
			switch cmd.Kind {
			case CommandNone:
				continue
			case CommandQuit:
				close(outbox)
				return nil
			}
			if err := s.checkSize(cmd.Message); err != nil {
				s.renderer.Notice("%v", err)
				continue
			}
			select {
			case outbox <- cmd.Message:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (s *Session) writeLoop(ctx context.Context, enc *proto.Encoder, outbox <-chan proto.Message) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-outbox:
			if !ok {
				return errQuit
			}
			if err := enc.Encode(m); err != nil {
				s.log.Warn().Err(err).Str("kind", m.Kind.String()).Msg("send failed")
				return err
			}
		}
	}
}

func (s *Session) readLoop(dec *proto.Decoder) error {
	for {
		m, err := dec.Decode()
		if err != nil {
			return err
		}
		s.renderer.Render(m)
	}
}

// checkSize rejects messages the relay would refuse, so a large local file
// does not cost the connection.
func (s *Session) checkSize(m proto.Message) error {
	payload, err := proto.MarshalPayload(m)
	if err != nil {
		return errs.LocalInput("send", err)
	}
	limit := s.opts.MaxFrameBytes
	if limit <= 0 {
		limit = proto.DefaultMaxFrameBytes
	}
	if len(payload) > limit {
		return errs.LocalInput("send", fmt.Errorf("%w: %d > %d bytes", proto.ErrFrameTooLarge, len(payload), limit))
	}
	return nil
}

// wait sleeps for d while still honouring .quit and end of input.
func (s *Session) wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		select {
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-s.lines:
			if !ok {
				return errQuit
			}
			if cmd, err := ParseCommand(line); err == nil && cmd.Kind == CommandQuit {
				return errQuit
			}
			s.renderer.Notice("not connected, input discarded")
		}
	}
}

// pumpInput feeds local lines to whichever activity is reading them and
// closes s.lines at end of input.
func (s *Session) pumpInput(done <-chan struct{}) {
	scanner := bufio.NewScanner(s.input)
	scanner.Buffer(make([]byte, 64<<10), 1<<20)
	for scanner.Scan() {
		select {
		case s.lines <- scanner.Text():
		case <-done:
			return
		}
	}
	if err := scanner.Err(); err != nil {
		s.log.Warn().Err(err).Msg("read local input")
	}
	close(s.lines)
}

package relay

import (
	"context"
	"encoding/binary"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wirerelay/internal/attachments"
	"github.com/vovakirdan/wirerelay/internal/core"
	"github.com/vovakirdan/wirerelay/internal/errs"
	"github.com/vovakirdan/wirerelay/internal/metrics"
	"github.com/vovakirdan/wirerelay/internal/proto"
	"github.com/vovakirdan/wirerelay/internal/store/sqlite"
)

// addrConn gives each net.Pipe end a distinct remote address.
type addrConn struct {
	net.Conn
	remote net.Addr
}

func (c addrConn) RemoteAddr() net.Addr { return c.remote }

type testClient struct {
	conn net.Conn
	enc  *proto.Encoder
	dec  *proto.Decoder
	done chan error
}

func (c *testClient) send(t *testing.T, m proto.Message) {
	t.Helper()
	require.NoError(t, c.enc.Encode(m))
}

func (c *testClient) recv(t *testing.T) proto.Message {
	t.Helper()
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	m, err := c.dec.Decode()
	require.NoError(t, err)
	return m
}

func (c *testClient) expectSilence(t *testing.T) {
	t.Helper()
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	m, err := c.dec.Decode()
	require.Error(t, err, "unexpected frame %v", m)
	var nerr net.Error
	require.True(t, errors.As(err, &nerr) && nerr.Timeout(), "expected timeout, got %v", err)
}

func (c *testClient) expectClosed(t *testing.T) error {
	t.Helper()
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err := c.dec.Decode()
	require.True(t, errs.Is(err, errs.KindTransport), "expected transport error, got %v", err)

	select {
	case serveErr := <-c.done:
		return serveErr
	case <-time.After(2 * time.Second):
		t.Fatal("ServeConn did not return")
		return nil
	}
}

type harness struct {
	bus      *core.Bus
	registry *core.Registry
	store    *sqlite.SQLiteStore
	counters *metrics.Counters
	recorder *Recorder
	files    *attachments.Store
	handler  *Handler
	ctx      context.Context
	port     int
}

func newHarness(t *testing.T, auth core.Authenticator) *harness {
	t.Helper()

	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	h := &harness{
		bus:      core.NewBus(16),
		registry: core.NewRegistry(),
		store:    st,
		counters: metrics.NewCounters(),
		files:    attachments.New(filepath.Join(t.TempDir(), "files")),
		port:     40000,
	}
	if auth == nil {
		auth = st
	}
	h.recorder = NewRecorder(st, h.files, 16, nil)
	go h.recorder.Run(context.Background())
	t.Cleanup(h.recorder.Close)

	h.handler = NewHandler(h.bus, h.registry, auth, h.recorder, h.counters, nil, Options{
		MaxFrameBytes: 1024,
		WriteTimeout:  time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h.ctx = ctx
	return h
}

func (h *harness) connect(t *testing.T) *testClient {
	t.Helper()
	clientEnd, serverEnd := net.Pipe()
	h.port++
	server := addrConn{Conn: serverEnd, remote: &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: h.port}}

	c := &testClient{
		conn: clientEnd,
		enc:  proto.NewEncoder(clientEnd, 0),
		dec:  proto.NewDecoder(clientEnd, 0),
		done: make(chan error, 1),
	}
	go func() { c.done <- h.handler.ServeConn(h.ctx, server) }()
	t.Cleanup(func() { clientEnd.Close() })
	return c
}

func (h *harness) authenticated(t *testing.T, id string) *testClient {
	t.Helper()
	c := h.connect(t)
	c.send(t, proto.Auth(id))
	require.True(t, c.recv(t).Equal(proto.Auth(id)))
	return c
}

func TestUnauthenticatedMessageIsRejected(t *testing.T) {
	h := newHarness(t, nil)
	observer := h.bus.Subscribe("observer")
	defer observer.Close()

	c := h.connect(t)
	c.send(t, proto.Text("hi"))

	reply := c.recv(t)
	require.Equal(t, proto.Error(core.ReasonNotAuthenticated), reply)

	err := c.expectClosed(t)
	require.True(t, errs.Is(err, errs.KindAuth), "got %v", err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, nextErr := observer.Next(ctx)
	require.ErrorIs(t, nextErr, context.DeadlineExceeded)

	require.Equal(t, 0, h.registry.Len())
	require.Equal(t, int64(1), h.counters.Get(metrics.AuthFailures))
	require.Equal(t, int64(0), h.counters.Get(metrics.MessagesTotal))
}

func TestInvalidIdentifierIsRejected(t *testing.T) {
	h := newHarness(t, nil)

	c := h.connect(t)
	c.send(t, proto.Auth("has space"))
	require.Equal(t, proto.Error(core.ReasonInvalidIdentifier), c.recv(t))

	err := c.expectClosed(t)
	require.ErrorIs(t, err, core.ErrInvalidIdentifier)

	n, err := h.store.CountUsers(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestBroadcastSkipsSender(t *testing.T) {
	h := newHarness(t, nil)

	a := h.authenticated(t, "alice")
	b := h.authenticated(t, "bob")
	require.Eventually(t, func() bool { return h.bus.Subscribers() == 2 }, timeout, tick)

	a.send(t, proto.Text("hello"))
	require.Equal(t, proto.Text("hello"), b.recv(t))
	a.expectSilence(t)

	b.send(t, proto.Text("hi alice"))
	require.Equal(t, proto.Text("hi alice"), a.recv(t))

	require.Equal(t, 2, h.registry.Len())
	require.Equal(t, int64(2), h.counters.Get(metrics.ClientsConnected))
	require.Equal(t, int64(2), h.counters.Get(metrics.MessagesTotal))
}

func TestFileIsRelayedAndStoredByteExact(t *testing.T) {
	h := newHarness(t, nil)

	a := h.authenticated(t, "alice")
	b := h.authenticated(t, "bob")
	require.Eventually(t, func() bool { return h.bus.Subscribers() == 2 }, timeout, tick)

	file := proto.File("a.txt", []byte{0x68, 0x69})
	a.send(t, file)
	require.True(t, b.recv(t).Equal(file))

	h.recorder.Close()

	stored, err := os.ReadFile(filepath.Join(h.files.Dir(), "a.txt"))
	require.NoError(t, err)
	require.Equal(t, []byte("hi"), stored)

	records, err := h.store.ListMessages(context.Background(), "alice", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	got, err := records[0].Message()
	require.NoError(t, err)
	require.True(t, got.Equal(file))
}

func TestReusedIdentifierDoesNotDuplicate(t *testing.T) {
	h := newHarness(t, nil)

	first := h.authenticated(t, "u1")
	first.conn.Close()
	select {
	case err := <-first.done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("first session did not end")
	}
	require.Equal(t, 0, h.registry.Len())
	require.Equal(t, int64(0), h.counters.Get(metrics.ClientsConnected))

	h.authenticated(t, "u1")

	n, err := h.store.CountUsers(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestAuthAfterHandshakeKeepsConnection(t *testing.T) {
	h := newHarness(t, nil)

	a := h.authenticated(t, "alice")
	b := h.authenticated(t, "bob")
	require.Eventually(t, func() bool { return h.bus.Subscribers() == 2 }, timeout, tick)

	a.send(t, proto.Auth("mallory"))
	require.Equal(t, proto.Error(core.ReasonAlreadyAuthenticated), a.recv(t))
	b.expectSilence(t)

	a.send(t, proto.Text("still here"))
	require.Equal(t, proto.Text("still here"), b.recv(t))
}

func TestOversizedFrameClosesConnection(t *testing.T) {
	h := newHarness(t, nil)
	c := h.authenticated(t, "alice")

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], 1<<20)
	go c.conn.Write(header[:])

	require.Equal(t, proto.Error(core.ReasonMalformedFrame), c.recv(t))
	err := c.expectClosed(t)
	require.ErrorIs(t, err, proto.ErrFrameTooLarge)
	require.Equal(t, int64(1), h.counters.Get(metrics.FramesRejected))
	require.Equal(t, 0, h.registry.Len())
}

type failingAuth struct{}

func (failingAuth) Authenticate(context.Context, string) error { return errors.New("database is locked") }

func TestAuthenticatorFailureClosesWithoutEcho(t *testing.T) {
	h := newHarness(t, failingAuth{})

	c := h.connect(t)
	c.send(t, proto.Auth("alice"))

	err := c.expectClosed(t)
	require.True(t, errs.Is(err, errs.KindPersistence), "got %v", err)
	require.Equal(t, 0, h.registry.Len())
}

func TestShutdownEndsConnections(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(h.ctx)
	h.ctx = ctx

	c := h.authenticated(t, "alice")
	cancel()

	require.NoError(t, c.expectClosed(t))
	require.Equal(t, 0, h.bus.Subscribers())
}

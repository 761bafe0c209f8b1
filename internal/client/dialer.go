package client

import (
	"context"
	"net"
	"net/url"
	"time"

	"github.com/coder/websocket"

	"github.com/vovakirdan/wirerelay/internal/errs"
	"github.com/vovakirdan/wirerelay/internal/proto"
)

// Dialer opens one duplex byte stream to the relay.
type Dialer interface {
	Dial(ctx context.Context) (net.Conn, error)
}

// TCPDialer connects over plain TCP.
type TCPDialer struct {
	Addr    string
	Timeout time.Duration
}

func (d TCPDialer) Dial(ctx context.Context) (net.Conn, error) {
	nd := net.Dialer{Timeout: d.Timeout}
	conn, err := nd.DialContext(ctx, "tcp", d.Addr)
	if err != nil {
		return nil, errs.Transport("dial tcp", err)
	}
	return conn, nil
}

// WSDialer connects to the relay's WebSocket endpoint and exposes it as a
// byte stream carrying the same frames as TCP.
type WSDialer struct {
	URL           string
	Timeout       time.Duration
	MaxFrameBytes int
}

// WSURL builds ws://addr/path.
func WSURL(addr, path string) string {
	u := url.URL{Scheme: "ws", Host: addr, Path: path}
	return u.String()
}

func (d WSDialer) Dial(ctx context.Context) (net.Conn, error) {
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	conn, _, err := websocket.Dial(ctx, d.URL, nil)
	if err != nil {
		return nil, errs.Transport("dial ws", err)
	}

	limit := d.MaxFrameBytes
	if limit <= 0 {
		limit = proto.DefaultMaxFrameBytes
	}
	conn.SetReadLimit(int64(limit) + 4)

	// The stream outlives the dial context; Close ends it.
	return websocket.NetConn(context.Background(), conn, websocket.MessageBinary), nil
}

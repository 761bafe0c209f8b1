package http

import (
	"net"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirerelay/internal/proto"
)

// WSHandler upgrades HTTP connections and hands the resulting byte stream to
// the relay. Each binary WebSocket message carries one or more frames.
type WSHandler struct {
	relay    ConnHandler
	maxFrame int
	log      *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(relay ConnHandler, maxFrameBytes int, logger *zerolog.Logger) stdhttp.Handler {
	if maxFrameBytes <= 0 {
		maxFrameBytes = proto.DefaultMaxFrameBytes
	}
	return &WSHandler{relay: relay, maxFrame: maxFrameBytes, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	// A frame header plus the largest allowed payload must fit in one message.
	conn.SetReadLimit(int64(h.maxFrame) + 4)

	ctx := r.Context()
	stream := &addrConn{
		Conn:   websocket.NetConn(ctx, conn, websocket.MessageBinary),
		remote: wsAddr(r.RemoteAddr),
	}
	if err := h.relay.ServeConn(ctx, stream); err != nil {
		h.log.Debug().Err(err).Str("addr", r.RemoteAddr).Msg("ws relay connection ended with error")
	}
}

// addrConn reports the HTTP peer address instead of the opaque WebSocket one.
type addrConn struct {
	net.Conn
	remote net.Addr
}

func (c *addrConn) RemoteAddr() net.Addr { return c.remote }

type wsAddr string

func (wsAddr) Network() string  { return "websocket" }
func (a wsAddr) String() string { return string(a) }

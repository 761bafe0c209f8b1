// Command ws_smoke checks a running relay end to end over WebSocket: two
// clients authenticate, one sends a text message and the other must receive it.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/vovakirdan/wirerelay/internal/client"
	"github.com/vovakirdan/wirerelay/internal/proto"
)

type peer struct {
	conn net.Conn
	enc  *proto.Encoder
	dec  *proto.Decoder
}

func main() {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	dialer := client.WSDialer{URL: *addr}
	sender := mustJoin(ctx, dialer, "smoke-"+uuid.NewString())
	defer sender.conn.Close()
	receiver := mustJoin(ctx, dialer, "smoke-"+uuid.NewString())
	defer receiver.conn.Close()

	// Give the receiver's subscription a moment to attach before publishing.
	time.Sleep(100 * time.Millisecond)

	if err := sender.enc.Encode(proto.Text(*text)); err != nil {
		log.Fatalf("send: %v", err)
	}
	got, err := receiver.dec.Decode()
	if err != nil {
		log.Fatalf("receive: %v", err)
	}
	if !got.Equal(proto.Text(*text)) {
		log.Fatalf("unexpected message %s", got)
	}
	fmt.Printf("ok: relayed %q\n", *text)
}

func mustJoin(ctx context.Context, dialer client.Dialer, id string) *peer {
	conn, err := dialer.Dial(ctx)
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	p := &peer{conn: conn, enc: proto.NewEncoder(conn, 0), dec: proto.NewDecoder(conn, 0)}
	if err := p.enc.Encode(proto.Auth(id)); err != nil {
		log.Fatalf("auth: %v", err)
	}
	ack, err := p.dec.Decode()
	if err != nil {
		log.Fatalf("auth reply: %v", err)
	}
	if !ack.Equal(proto.Auth(id)) {
		log.Fatalf("auth rejected: %s", ack)
	}
	log.Printf("joined as %s", id)
	return p
}

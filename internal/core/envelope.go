package core

import "github.com/vovakirdan/wirerelay/internal/proto"

// Envelope pairs a message with the connection it came from.
// It only travels through the Bus and is never written to the wire.
type Envelope struct {
	Origin     string // remote address of the publishing connection
	Identifier string // authenticated identifier of the publisher
	Message    proto.Message
}

// DeliverableTo reports whether the connection at addr should receive e.
// Auth acknowledgements go only to their own origin; everything else goes
// to every connection except its origin.
func (e Envelope) DeliverableTo(addr string) bool {
	if e.Message.Kind == proto.KindAuth {
		return e.Origin == addr
	}
	return e.Origin != addr
}

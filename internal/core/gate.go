package core

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/vovakirdan/wirerelay/internal/errs"
	"github.com/vovakirdan/wirerelay/internal/proto"
)

// MaxIdentifierBytes bounds the length of a client identifier.
const MaxIdentifierBytes = 64

// Authenticator registers identifiers with the persistence collaborator.
// Registration must be idempotent.
type Authenticator interface {
	Authenticate(ctx context.Context, identifier string) error
}

// GateState is the authentication state of one connection.
type GateState int

const (
	// GateUnauthenticated admits only an Auth handshake.
	GateUnauthenticated GateState = iota
	// GateAuthenticated is terminal.
	GateAuthenticated
)

func (s GateState) String() string {
	if s == GateAuthenticated {
		return "authenticated"
	}
	return "unauthenticated"
}

// Gate admits one connection into the broadcast domain after a valid handshake.
// A Gate belongs to a single connection's inbound loop and is not safe for concurrent use.
type Gate struct {
	addr        string
	registry    *Registry
	auth        Authenticator
	requireUUID bool

	state      GateState
	identifier string
}

// NewGate creates a gate for the connection at addr. auth may be nil.
func NewGate(addr string, registry *Registry, auth Authenticator, requireUUID bool) *Gate {
	return &Gate{
		addr:        addr,
		registry:    registry,
		auth:        auth,
		requireUUID: requireUUID,
	}
}

// State returns the current state.
func (g *Gate) State() GateState { return g.state }

// Identifier returns the authenticated identifier, or "" before the handshake.
func (g *Gate) Identifier() string { return g.identifier }

// Handshake processes a message received while unauthenticated and returns the
// acknowledgement to send back to the same connection.
//
// Anything other than a well-formed Auth yields a KindAuth error; a failing
// Authenticator yields a KindPersistence error. In both cases the state is unchanged.
func (g *Gate) Handshake(ctx context.Context, msg proto.Message) (proto.Message, error) {
	if g.state == GateAuthenticated {
		return proto.Message{}, errs.Auth("handshake", ErrAlreadyAuthenticated)
	}
	if msg.Kind != proto.KindAuth {
		return proto.Message{}, errs.Auth("handshake", fmt.Errorf("%w: got %s", ErrNotAuthenticated, msg.Kind))
	}

	id := msg.Body
	if err := ValidateIdentifier(id, g.requireUUID); err != nil {
		return proto.Message{}, errs.Auth("handshake", err)
	}

	if g.auth != nil {
		if err := g.auth.Authenticate(ctx, id); err != nil {
			return proto.Message{}, errs.Persistence("authenticate", err)
		}
	}

	if g.registry != nil {
		g.registry.Register(g.addr, id)
	}
	g.state = GateAuthenticated
	g.identifier = id
	return proto.Auth(id), nil
}

// ValidateIdentifier checks that id is non-empty, at most MaxIdentifierBytes,
// valid UTF-8 and free of whitespace and control characters. With requireUUID
// it must also parse as a UUID.
func ValidateIdentifier(id string, requireUUID bool) error {
	switch {
	case strings.TrimSpace(id) == "":
		return fmt.Errorf("%w: empty", ErrInvalidIdentifier)
	case len(id) > MaxIdentifierBytes:
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidIdentifier, MaxIdentifierBytes)
	case !utf8.ValidString(id):
		return fmt.Errorf("%w: not valid utf-8", ErrInvalidIdentifier)
	}
	for _, r := range id {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("%w: contains whitespace or control characters", ErrInvalidIdentifier)
		}
	}
	if requireUUID {
		if _, err := uuid.Parse(id); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidIdentifier, err)
		}
	}
	return nil
}

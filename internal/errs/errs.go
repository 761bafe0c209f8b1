// Package errs defines the closed set of failure kinds shared by the relay
// server and client. Callers switch on Kind instead of probing concrete types.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by how the caller must react to it.
type Kind int

const (
	// KindUnknown is reported for errors that carry no classification.
	KindUnknown Kind = iota
	// KindTransport covers refused, reset and closed connections. Clients retry.
	KindTransport
	// KindFormat covers undecodable or oversized frames. Fatal for the connection.
	KindFormat
	// KindAuth covers malformed identifiers and handshake violations. Never retried.
	KindAuth
	// KindLocalInput covers bad local commands and unreadable files.
	KindLocalInput
	// KindPersistence covers storage and attachment failures. Logged only.
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindFormat:
		return "format"
	case KindAuth:
		return "auth"
	case KindLocalInput:
		return "local_input"
	case KindPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

// Error attaches a Kind and the failing operation to an underlying error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err with the given kind. A nil err yields nil.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Transport wraps err as a KindTransport error.
func Transport(op string, err error) error { return New(KindTransport, op, err) }

// Format wraps err as a KindFormat error.
func Format(op string, err error) error { return New(KindFormat, op, err) }

// Auth wraps err as a KindAuth error.
func Auth(op string, err error) error { return New(KindAuth, op, err) }

// LocalInput wraps err as a KindLocalInput error.
func LocalInput(op string, err error) error { return New(KindLocalInput, op, err) }

// Persistence wraps err as a KindPersistence error.
func Persistence(op string, err error) error { return New(KindPersistence, op, err) }

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

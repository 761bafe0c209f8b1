package client

import "errors"

var (
	// ErrGaveUp is returned by Session.Run once the reconnect budget is spent.
	ErrGaveUp = errors.New("gave up reconnecting")
	// ErrAuthMismatch means the server echoed a different identity.
	ErrAuthMismatch = errors.New("authentication echo mismatch")
	// ErrAuthRejected means the server answered the handshake with an Error frame.
	ErrAuthRejected = errors.New("authentication rejected")
	// ErrAuthTimeout means no echo arrived within the auth timeout.
	ErrAuthTimeout = errors.New("authentication timed out")

	errQuit = errors.New("quit")
)

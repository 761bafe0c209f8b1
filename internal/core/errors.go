package core

import "errors"

// Reasons sent to clients in Error frames.
const (
	ReasonNotAuthenticated     = "authentication required"
	ReasonAlreadyAuthenticated = "already authenticated"
	ReasonInvalidIdentifier    = "invalid identifier"
	ReasonMalformedFrame       = "malformed frame"
)

var (
	ErrNotAuthenticated     = errors.New("not authenticated")
	ErrAlreadyAuthenticated = errors.New("already authenticated")
	ErrInvalidIdentifier    = errors.New("invalid identifier")
)

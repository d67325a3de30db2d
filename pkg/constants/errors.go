package constants

import "errors"

// Errors
var (
	ErrNoClient       = errors.New("no client in context")
	ErrPrecondition   = errors.New("precondition failed")
	ErrClosed         = errors.New("already closed")
	ErrInvalidHandoff = errors.New("invalid hydration handoff")
	ErrUnsupported    = errors.New("operation not supported by this client")
	ErrCustomAPI      = errors.New("custom api request failed")
	ErrAIQuery        = errors.New("ai query failed")
	ErrNoBaseURL      = errors.New("base url not set")
	ErrUnknownScheme  = errors.New("unknown endpoint scheme")
)

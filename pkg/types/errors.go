package types

import "errors"

// Validation errors shared by the engine, the store server and the CLI
var (
	ErrInvalidUserID      = errors.New("user ID must be 1-256 characters without '/'")
	ErrInvalidMessage     = errors.New("comment message must be 1-4096 bytes")
	ErrInvalidIframeURL   = errors.New("iframe URL must be an absolute http(s) URL")
	ErrInvalidCollection  = errors.New("collection path must have an odd number of non-empty segments")
	ErrInvalidScope       = errors.New("classroom scope requires domain, class hash, offering ID and plugin ID")
	ErrUnknownSessionKind = errors.New("unknown session kind")
	ErrMissingCurrentUser = errors.New("authenticated session requires a current user ID")
)

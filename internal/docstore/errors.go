package docstore

import (
	"errors"

	"sharing/pkg/interfaces"
)

// Document errors
var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrInvalidPath      = errors.New("invalid collection or document path")
	ErrInvalidFieldPath = errors.New("invalid field path")
)

// Commit and transaction errors
var (
	ErrConflict        = errors.New("document changed since it was read")
	ErrReadAfterWrite  = errors.New("transaction reads must precede writes")
	ErrTooManyAttempts = errors.New("transaction aborted after repeated conflicts")
)

// Lifecycle errors
var (
	ErrStoreClosed     = errors.New("document store is closed")
	ErrWatchNotRunning = errors.New("watch hub is not running")
	ErrWriteTimeout    = errors.New("write operation timeout")
)

// ErrUnauthenticated is returned for document operations before sign-in
var ErrUnauthenticated = interfaces.ErrUnauthenticated

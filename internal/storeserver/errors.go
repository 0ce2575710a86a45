package storeserver

import (
	"errors"

	"sharing/internal/auth"
	"sharing/internal/docstore"
)

// Connection-related errors
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrWriteTimeout     = errors.New("write timeout")
	ErrInvalidJSON      = errors.New("invalid JSON data")
)

// Registry-related errors
var (
	ErrNilConnection       = errors.New("connection cannot be nil")
	ErrDuplicateConnection = errors.New("connection already registered")
)

// Request errors
var (
	ErrUnknownOp    = errors.New("unknown operation")
	ErrUnknownWatch = errors.New("unknown watch")
	ErrRateLimited  = errors.New("commit rate limit exceeded")
	ErrBadRequest   = errors.New("malformed request")
)

// Error codes on the wire
const (
	CodeUnauthenticated  = "unauthenticated"
	CodeInvalidToken     = "invalid_token"
	CodeNotFound         = "not_found"
	CodeConflict         = "conflict"
	CodeInvalidPath      = "invalid_path"
	CodeInvalidFieldPath = "invalid_field_path"
	CodeStoreClosed      = "store_closed"
	CodeRateLimited      = "rate_limited"
	CodeUnknownOp        = "unknown_op"
	CodeUnknownWatch     = "unknown_watch"
	CodeBadRequest       = "bad_request"
	CodeInternal         = "internal"
)

var codes = []struct {
	code string
	err  error
}{
	{CodeUnauthenticated, docstore.ErrUnauthenticated},
	{CodeInvalidToken, auth.ErrInvalidToken},
	{CodeNotFound, docstore.ErrDocumentNotFound},
	{CodeConflict, docstore.ErrConflict},
	{CodeInvalidPath, docstore.ErrInvalidPath},
	{CodeInvalidFieldPath, docstore.ErrInvalidFieldPath},
	{CodeStoreClosed, docstore.ErrStoreClosed},
	{CodeRateLimited, ErrRateLimited},
	{CodeUnknownOp, ErrUnknownOp},
	{CodeUnknownWatch, ErrUnknownWatch},
	{CodeBadRequest, ErrBadRequest},
}

// ErrorCode maps err to its wire code; unmapped errors are "internal"
func ErrorCode(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	if errors.Is(err, auth.ErrEmptyToken) || errors.Is(err, auth.ErrMissingIdentity) {
		return CodeInvalidToken
	}
	return CodeInternal
}

// ErrorFromCode returns the sentinel error for code, or nil for unknown codes
func ErrorFromCode(code string) error {
	for _, c := range codes {
		if c.code == code {
			return c.err
		}
	}
	return nil
}

func wireError(err error) *WireError {
	return &WireError{Code: ErrorCode(err), Message: err.Error()}
}

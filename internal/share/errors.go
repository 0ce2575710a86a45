package share

import (
	"errors"

	"sharing/pkg/types"
)

// Engine errors; callers match them with errors.Is
var (
	ErrAlreadyInitialized = errors.New("share engine already initialized")
	ErrNotInitialized     = errors.New("share engine not initialized")
	ErrClosed             = errors.New("share engine closed")
	ErrAuthentication     = errors.New("sign-in failed")
	ErrRemoteSubscription = errors.New("collection subscription failed")
	ErrSharingRejected    = errors.New("host rejected the shared flag change")
	ErrRemoteStore        = errors.New("remote store operation failed")
	ErrInvalidComment     = errors.New("invalid comment")
	ErrUnknownSessionKind = types.ErrUnknownSessionKind
)

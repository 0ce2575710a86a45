package interfaces

import "errors"

// Common interface errors used across components
var (
	ErrUnauthenticated = errors.New("client is not signed in")
)

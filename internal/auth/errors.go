package auth

import "errors"

var (
	ErrEmptyToken      = errors.New("token is empty")
	ErrInvalidToken    = errors.New("token is invalid")
	ErrMissingIdentity = errors.New("token carries no user identity")
	ErrMissingSecret   = errors.New("signing secret is not configured")
	ErrMissingClaims   = errors.New("token is missing portal claims")
)

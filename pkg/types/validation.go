package types

import (
	"net/url"
	"strings"
)

const (
	maxUserIDLength  = 256
	maxMessageLength = 4096
)

// IsValidUserID checks if a user ID can key a document in a collection
// Portal user paths must be normalized with NormalizePathSegment first.
func IsValidUserID(userID string) bool {
	if len(userID) < 1 || len(userID) > maxUserIDLength {
		return false
	}
	return !strings.Contains(userID, "/")
}

// IsValidMessage checks the size bounds of a comment message
func IsValidMessage(message string) bool {
	return len(strings.TrimSpace(message)) > 0 && len(message) <= maxMessageLength
}

// IsValidIframeURL checks that a shared interactive URL is absolute http(s)
func IsValidIframeURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// IsValidCollectionPath checks a slash separated collection path
// Collections sit at odd depths: coll, coll/doc/coll, ...
func IsValidCollectionPath(path string) bool {
	if path == "" {
		return false
	}
	segments := strings.Split(path, "/")
	if len(segments)%2 == 0 {
		return false
	}
	for _, s := range segments {
		if s == "" {
			return false
		}
	}
	return true
}

// NormalizePathSegment replaces path separators so a value can be used as one segment
func NormalizePathSegment(value string) string {
	return strings.ReplaceAll(value, "/", "-")
}

// Validate ensures the comment can be written to a shared document
func (c Comment) Validate() error {
	if !IsValidUserID(c.Recipient) {
		return ErrInvalidUserID
	}
	if !IsValidMessage(c.Message) {
		return ErrInvalidMessage
	}
	return nil
}

package types

import (
	"context"
	"fmt"
)

// ReportingURLFunc asks the host for the URL of the current interactive state
type ReportingURLFunc func(ctx context.Context) (string, error)

// SharedFlagFunc flips the host-side shared flag and returns the HTTP-like status
// of the host response; anything other than 200 counts as a rejection
type SharedFlagFunc func(ctx context.Context, shared bool) (int, error)

// SessionParams is the closed set of ways to start a sharing session
// Implemented by DemoParams, TestStubParams and AuthenticatedParams.
type SessionParams interface {
	Kind() SessionKind
	sessionParams()
}

// DemoParams starts an ephemeral demo session against a seeded roster
type DemoParams struct{}

// TestStubParams starts a session that never touches the remote store
type TestStubParams struct{}

// ClassroomScope identifies the collection a class offering shares into
type ClassroomScope struct {
	Domain     string `json:"domain" yaml:"domain"`
	ClassHash  string `json:"class_hash" yaml:"class_hash"`
	OfferingID string `json:"offering_id" yaml:"offering_id"`
	PluginID   string `json:"plugin_id" yaml:"plugin_id"`
}

// AuthenticatedParams starts a production session for one signed-in student
type AuthenticatedParams struct {
	CredentialToken string
	Scope           ClassroomScope
	CurrentUserID   string
	UserMap         UserMap
	InteractiveName string
	ReportingURL    ReportingURLFunc
	SetShared       SharedFlagFunc
}

func (DemoParams) Kind() SessionKind          { return SessionKindDemo }
func (TestStubParams) Kind() SessionKind      { return SessionKindTestStub }
func (AuthenticatedParams) Kind() SessionKind { return SessionKindAuthenticated }

func (DemoParams) sessionParams()          {}
func (TestStubParams) sessionParams()      {}
func (AuthenticatedParams) sessionParams() {}

// Validate ensures every scope field is present
func (s ClassroomScope) Validate() error {
	if s.Domain == "" || s.ClassHash == "" || s.OfferingID == "" || s.PluginID == "" {
		return ErrInvalidScope
	}
	return nil
}

// CollectionPath returns the bit-exact collection path of the scope
// The domain is normalized because the store path syntax reserves '/'.
func (s ClassroomScope) CollectionPath() string {
	return fmt.Sprintf("portals/%s/classes/%s/offerings/%s/plugins/%s/studentData",
		NormalizePathSegment(s.Domain), s.ClassHash, s.OfferingID, s.PluginID)
}

// Validate ensures authenticated parameters can open a session
func (p AuthenticatedParams) Validate() error {
	if err := p.Scope.Validate(); err != nil {
		return err
	}
	if p.CurrentUserID == "" {
		return ErrMissingCurrentUser
	}
	if !IsValidUserID(p.CurrentUserID) {
		return ErrInvalidUserID
	}
	return nil
}

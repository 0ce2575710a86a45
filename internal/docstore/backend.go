package docstore

import (
	"context"
	"time"

	"sharing/pkg/interfaces"
	"sharing/pkg/types"
)

// SignInMethod records how a client obtained its uid
type SignInMethod string

const (
	SignInAnonymous   SignInMethod = "anonymous"
	SignInCustomToken SignInMethod = "custom_token"
)

// SignIn is one audit record of a successful sign-in
type SignIn struct {
	UID       string
	Method    SignInMethod
	CreatedAt time.Time
}

// Backend is the storage engine behind every client of the document store
// Backends know nothing about identities; Client and the store server enforce sign-in.
type Backend interface {
	Committer

	// Snapshot reads a whole collection at the current commit sequence
	Snapshot(ctx context.Context, collection string) (*types.CollectionSnapshot, error)

	// Watch delivers the collection now and after every commit touching it
	Watch(ctx context.Context, collection string, handler interfaces.SnapshotHandler) (interfaces.CancelFunc, error)

	RecordSignIn(ctx context.Context, signIn SignIn) error
	HealthCheck(ctx context.Context) error
	Close() error
}

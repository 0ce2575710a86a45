package interfaces

import (
	"context"

	"sharing/pkg/types"
)

// Authenticator signs a client into the remote document store
// Both methods return the uid the store associates with the client.
type Authenticator interface {
	// SignInAnonymously creates a fresh anonymous identity
	SignInAnonymously(ctx context.Context) (string, error)

	// SignInWithCustomToken exchanges a host-issued token for an identity
	SignInWithCustomToken(ctx context.Context, token string) (string, error)
}

// CancelFunc stops a collection watch; calling it more than once is a no-op
type CancelFunc func()

// SnapshotHandler receives every collection snapshot, or the error that ended the watch
// Handlers for one watch are never invoked concurrently.
type SnapshotHandler func(snapshot *types.CollectionSnapshot, err error)

// DocumentStore is the per-document and per-collection surface of the remote store
type DocumentStore interface {
	// Get reads one document; a missing document yields Exists=false, not an error
	Get(ctx context.Context, collection, id string) (*types.DocumentSnapshot, error)

	// Set replaces a whole document, creating it when absent
	Set(ctx context.Context, collection, id string, data types.Document) error

	// Update applies field-path updates to an existing document
	Update(ctx context.Context, collection, id string, updates ...types.FieldUpdate) error

	// Delete removes a document; deleting a missing document succeeds
	Delete(ctx context.Context, collection, id string) error

	// RunTransaction runs fn with read-then-write atomicity, retrying on conflicting writers
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error

	// Watch delivers the current collection contents and again after every change
	Watch(ctx context.Context, collection string, handler SnapshotHandler) (CancelFunc, error)
}

// Transaction buffers writes until the transaction function returns nil
// All reads must happen before the first write.
type Transaction interface {
	Get(collection, id string) (*types.DocumentSnapshot, error)
	Set(collection, id string, data types.Document) error
	Update(collection, id string, updates ...types.FieldUpdate) error
	Delete(collection, id string) error
}

// RemoteStore is everything the share engine needs from the document database
type RemoteStore interface {
	Authenticator
	DocumentStore
}

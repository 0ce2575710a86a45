package docstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/golang/glog"

	"sharing/internal/auth"
	"sharing/internal/clock"
	"sharing/pkg/interfaces"
	"sharing/pkg/types"
)

// Client is an in-process interfaces.RemoteStore over a Backend
// Each client holds its own signed-in identity, so several engines can share one
// backend the way several browsers share one remote database.
type Client struct {
	backend Backend
	authn   *auth.Authenticator
	clock   clock.Clock

	mu  sync.RWMutex
	uid string
}

// NewClient creates a signed-out client
func NewClient(backend Backend, authn *auth.Authenticator) *Client {
	return &Client{backend: backend, authn: authn, clock: clock.RealClock{}}
}

// UID returns the signed-in uid, or "" before sign-in
func (c *Client) UID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.uid
}

func (c *Client) SignInAnonymously(ctx context.Context) (string, error) {
	identity := c.authn.SignInAnonymously()
	return c.signedIn(ctx, identity.UID, SignInAnonymous)
}

func (c *Client) SignInWithCustomToken(ctx context.Context, token string) (string, error) {
	identity, err := c.authn.VerifyCustomToken(token)
	if err != nil {
		return "", err
	}
	return c.signedIn(ctx, identity.UID, SignInCustomToken)
}

func (c *Client) signedIn(ctx context.Context, uid string, method SignInMethod) (string, error) {
	if err := c.backend.RecordSignIn(ctx, SignIn{UID: uid, Method: method, CreatedAt: c.clock.Now()}); err != nil {
		return "", fmt.Errorf("failed to record sign-in: %w", err)
	}
	c.mu.Lock()
	c.uid = uid
	c.mu.Unlock()
	glog.V(1).Infof("[client] signed in %s (%s)", uid, method)
	return uid, nil
}

func (c *Client) requireSignIn() error {
	if c.UID() == "" {
		return ErrUnauthenticated
	}
	return nil
}

func (c *Client) Get(ctx context.Context, collection, id string) (*types.DocumentSnapshot, error) {
	if err := c.requireSignIn(); err != nil {
		return nil, err
	}
	return c.backend.GetVersioned(ctx, collection, id)
}

func (c *Client) Set(ctx context.Context, collection, id string, data types.Document) error {
	return c.commit(ctx, types.Write{Collection: collection, ID: id, Kind: types.WriteSet, Data: data})
}

func (c *Client) Update(ctx context.Context, collection, id string, updates ...types.FieldUpdate) error {
	return c.commit(ctx, types.Write{Collection: collection, ID: id, Kind: types.WriteUpdate, Updates: updates})
}

func (c *Client) Delete(ctx context.Context, collection, id string) error {
	return c.commit(ctx, types.Write{Collection: collection, ID: id, Kind: types.WriteDelete})
}

func (c *Client) commit(ctx context.Context, w types.Write) error {
	if err := c.requireSignIn(); err != nil {
		return err
	}
	_, err := c.backend.Commit(ctx, []types.Write{w})
	return err
}

func (c *Client) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx interfaces.Transaction) error) error {
	if err := c.requireSignIn(); err != nil {
		return err
	}
	return RunTransaction(ctx, c.backend, fn)
}

func (c *Client) Watch(ctx context.Context, collection string, handler interfaces.SnapshotHandler) (interfaces.CancelFunc, error) {
	if err := c.requireSignIn(); err != nil {
		return nil, err
	}
	return c.backend.Watch(ctx, collection, handler)
}

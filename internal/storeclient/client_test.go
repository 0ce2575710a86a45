package storeclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sharing/internal/auth"
	"sharing/internal/docstore"
	"sharing/internal/storeserver"
	"sharing/pkg/interfaces"
	"sharing/pkg/types"
)

const testCollection = "portals/p/classes/c/offerings/o/plugins/x/studentData"

type fixture struct {
	backend  *docstore.MemoryBackend
	authn    *auth.Authenticator
	registry *storeserver.Registry
	server   *httptest.Server
	url      string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		backend:  docstore.NewMemoryBackend(),
		authn:    auth.NewAuthenticator("test-secret"),
		registry: storeserver.NewRegistry(),
	}
	handler := storeserver.NewHandler(f.backend, f.authn, f.registry, storeserver.DefaultHandlerConfig())
	f.server = httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	f.url = "ws" + strings.TrimPrefix(f.server.URL, "http")
	t.Cleanup(func() {
		f.server.Close()
		f.registry.CloseAll()
		_ = f.backend.Close()
	})
	return f
}

func (f *fixture) dial(t *testing.T) *Client {
	t.Helper()
	c, err := Dial(context.Background(), f.url, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClient_RequiresSignIn(t *testing.T) {
	f := newFixture(t)
	c := f.dial(t)
	ctx := context.Background()

	_, err := c.Get(ctx, testCollection, "A")
	assert.ErrorIs(t, err, docstore.ErrUnauthenticated)

	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, storeserver.CodeUnauthenticated, remote.Code)

	_, err = c.Watch(ctx, testCollection, func(*types.CollectionSnapshot, error) {})
	assert.ErrorIs(t, err, docstore.ErrUnauthenticated)
}

func TestClient_SignIn(t *testing.T) {
	f := newFixture(t)
	c := f.dial(t)
	ctx := context.Background()

	uid, err := c.SignInAnonymously(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uid, auth.AnonymousPrefix))
	assert.Equal(t, uid, c.UID())

	token, err := f.authn.IssueToken("teacher", nil, time.Hour)
	require.NoError(t, err)
	uid, err = c.SignInWithCustomToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "teacher", uid)

	_, err = c.SignInWithCustomToken(ctx, "not-a-jwt")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
	assert.Equal(t, "teacher", c.UID(), "a failed sign-in keeps the previous identity")
}

func TestClient_DocumentOperations(t *testing.T) {
	f := newFixture(t)
	c := f.dial(t)
	ctx := context.Background()
	_, err := c.SignInAnonymously(ctx)
	require.NoError(t, err)

	missing, err := c.Get(ctx, testCollection, "A")
	require.NoError(t, err)
	assert.False(t, missing.Exists)

	require.NoError(t, c.Set(ctx, testCollection, "A", types.Document{"userId": "A", "comments": []interface{}{}}))
	require.NoError(t, c.Update(ctx, testCollection, "A",
		types.ArrayUnion(types.Path("comments"), map[string]interface{}{"recipient": "B", "message": "hi", "time": 1})))

	doc, err := c.Get(ctx, testCollection, "A")
	require.NoError(t, err)
	assert.True(t, doc.Exists)
	assert.Len(t, doc.Data["comments"], 1)

	err = c.Update(ctx, testCollection, "missing", types.SetField(types.Path("x"), 1))
	assert.ErrorIs(t, err, docstore.ErrDocumentNotFound)

	require.NoError(t, c.Delete(ctx, testCollection, "A"))
	snap, err := c.Snapshot(ctx, testCollection)
	require.NoError(t, err)
	assert.Empty(t, snap.Documents)
}

func TestClient_TransactionsRetryAcrossClients(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const writers = 3
	clients := make([]*Client, writers)
	for i := range clients {
		clients[i] = f.dial(t)
		_, err := clients[i].SignInAnonymously(ctx)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for _, c := range clients {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			errs <- c.RunTransaction(ctx, func(ctx context.Context, tx interfaces.Transaction) error {
				snap, err := tx.Get(testCollection, "counter")
				if err != nil {
					return err
				}
				n := 0.0
				if snap.Exists {
					n = snap.Data["n"].(float64)
				}
				return tx.Set(testCollection, "counter", types.Document{"n": n + 1})
			})
		}(c)
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, docstore.ErrTooManyAttempts)
		}
	}

	doc, err := clients[0].Get(ctx, testCollection, "counter")
	require.NoError(t, err)
	assert.Equal(t, float64(succeeded), doc.Data["n"])
}

func TestClient_WatchSeesOtherClientsWrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	watcher, writer := f.dial(t), f.dial(t)
	_, err := watcher.SignInAnonymously(ctx)
	require.NoError(t, err)
	_, err = writer.SignInAnonymously(ctx)
	require.NoError(t, err)

	snaps := make(chan *types.CollectionSnapshot, 10)
	cancel, err := watcher.Watch(ctx, testCollection, func(snap *types.CollectionSnapshot, err error) {
		if err == nil {
			snaps <- snap
		}
	})
	require.NoError(t, err)

	first := receive(t, snaps)
	assert.Empty(t, first.Documents)

	require.NoError(t, writer.Set(ctx, testCollection, "B", types.Document{"userId": "B"}))
	var latest *types.CollectionSnapshot
	for latest == nil || len(latest.Documents) == 0 {
		latest = receive(t, snaps)
	}
	assert.Equal(t, "B", latest.Documents[0].ID)
	assert.Greater(t, latest.Seq, first.Seq)

	cancel()
	cancel()
	assert.Eventually(t, func() bool {
		return f.registry.GetStats()["active_watches"] == 0
	}, time.Second, 10*time.Millisecond)
}

func receive(t *testing.T, ch <-chan *types.CollectionSnapshot) *types.CollectionSnapshot {
	t.Helper()
	select {
	case snap := <-ch:
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}

func TestClient_ConnectionLossFailsWatches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.dial(t)
	_, err := c.SignInAnonymously(ctx)
	require.NoError(t, err)

	errs := make(chan error, 1)
	_, err = c.Watch(ctx, testCollection, func(_ *types.CollectionSnapshot, err error) {
		if err != nil {
			errs <- err
		}
	})
	require.NoError(t, err)

	f.registry.CloseAll()

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrConnectionLost)
	case <-time.After(2 * time.Second):
		t.Fatal("watch was not failed")
	}

	<-c.Done()
	_, err = c.Get(ctx, testCollection, "A")
	assert.ErrorIs(t, err, ErrConnectionLost)
}

func TestClient_StoreCloseEndsWatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.dial(t)
	_, err := c.SignInAnonymously(ctx)
	require.NoError(t, err)

	errs := make(chan error, 1)
	_, err = c.Watch(ctx, testCollection, func(_ *types.CollectionSnapshot, err error) {
		if err != nil {
			errs <- err
		}
	})
	require.NoError(t, err)

	require.NoError(t, f.backend.Close())
	select {
	case err := <-errs:
		assert.ErrorIs(t, err, docstore.ErrStoreClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("watch was not failed")
	}
}

func TestClient_Close(t *testing.T) {
	f := newFixture(t)
	c := f.dial(t)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Err(), ErrClientClosed)

	_, err := c.SignInAnonymously(context.Background())
	assert.ErrorIs(t, err, ErrClientClosed)
}

func TestClient_ContextCancellation(t *testing.T) {
	f := newFixture(t)
	c := f.dial(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.SignInAnonymously(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDial_Unreachable(t *testing.T) {
	_, err := Dial(context.Background(), "ws://127.0.0.1:1/ws", Options{HandshakeTimeout: 200 * time.Millisecond})
	assert.Error(t, err)
}

package storeclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"sharing/internal/docstore"
	"sharing/internal/storeserver"
	"sharing/pkg/interfaces"
	"sharing/pkg/types"
)

var (
	ErrConnectionLost = errors.New("connection to document store lost")
	ErrClientClosed   = errors.New("store client is closed")
)

// RemoteError is an error reported by the store server
// It unwraps to the matching docstore or auth sentinel when the code is known.
type RemoteError struct {
	Code    string
	Message string
	cause   error
}

func (e *RemoteError) Error() string {
	return e.Message
}

func (e *RemoteError) Unwrap() error {
	return e.cause
}

func remoteError(w *storeserver.WireError) error {
	if w == nil {
		return nil
	}
	return &RemoteError{Code: w.Code, Message: w.Message, cause: storeserver.ErrorFromCode(w.Code)}
}

// Options configures Dial
type Options struct {
	Header           http.Header
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

// DefaultOptions returns the timeouts used when Dial gets a zero value
func DefaultOptions() Options {
	return Options{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
	}
}

// Client is an interfaces.RemoteStore speaking the store server protocol
type Client struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	writeMu      sync.Mutex

	mu      sync.Mutex
	uid     string
	pending map[string]chan *storeserver.Message
	watches map[string]*remoteWatch
	closed  bool
	err     error
	done    chan struct{}
}

var _ interfaces.RemoteStore = (*Client)(nil)
var _ docstore.Committer = (*Client)(nil)

// Dial connects to the store server at url (ws:// or wss://)
func Dial(ctx context.Context, url string, opts Options) (*Client, error) {
	defaults := DefaultOptions()
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaults.HandshakeTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaults.WriteTimeout
	}

	dialer := websocket.Dialer{HandshakeTimeout: opts.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, opts.Header)
	if err != nil {
		return nil, fmt.Errorf("failed to dial document store: %w", err)
	}

	c := &Client{
		conn:         conn,
		writeTimeout: opts.WriteTimeout,
		pending:      make(map[string]chan *storeserver.Message),
		watches:      make(map[string]*remoteWatch),
		done:         make(chan struct{}),
	}
	go c.readLoop()

	glog.V(1).Infof("[storeclient] connected to %s", url)
	return c, nil
}

func (c *Client) readLoop() {
	var loopErr error
	defer func() { c.shutdown(loopErr) }()

	for {
		var msg storeserver.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			loopErr = err
			return
		}

		switch msg.Type {
		case storeserver.TypeResponse:
			c.mu.Lock()
			ch, ok := c.pending[msg.ID]
			delete(c.pending, msg.ID)
			c.mu.Unlock()
			if ok {
				ch <- &msg
			} else {
				glog.V(2).Infof("[storeclient] dropping response to unknown request %q", msg.ID)
			}

		case storeserver.TypeSnapshot, storeserver.TypeWatchError:
			c.mu.Lock()
			w, ok := c.watches[msg.WatchID]
			if ok && msg.Type == storeserver.TypeWatchError {
				delete(c.watches, msg.WatchID)
			}
			c.mu.Unlock()
			if !ok {
				continue
			}
			if msg.Type == storeserver.TypeWatchError {
				w.fail(remoteError(msg.Error))
			} else {
				w.deliver(msg.Snapshot)
			}

		default:
			glog.Warningf("[storeclient] unexpected message type %q", msg.Type)
		}
	}
}

// shutdown fails every pending call and watch once the connection ends
func (c *Client) shutdown(cause error) {
	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return
	}
	if c.closed {
		c.err = ErrClientClosed
	} else {
		c.err = fmt.Errorf("%w: %w", ErrConnectionLost, cause)
		glog.Warningf("[storeclient] %v", c.err)
	}
	err := c.err
	watches := c.watches
	c.watches = make(map[string]*remoteWatch)
	c.pending = make(map[string]chan *storeserver.Message)
	c.mu.Unlock()

	close(c.done)
	for _, w := range watches {
		w.fail(err)
	}
}

// roundTrip sends req and waits for its response
func (c *Client) roundTrip(ctx context.Context, req storeserver.Request) (*storeserver.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	req.ID = uuid.NewString()
	ch := make(chan *storeserver.Message, 1)

	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return nil, err
	}
	c.pending[req.ID] = ch
	c.mu.Unlock()

	if err := c.send(req); err != nil {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
		return nil, err
	}

	select {
	case msg := <-ch:
		if msg.Error != nil {
			return nil, remoteError(msg.Error)
		}
		return msg, nil
	case <-c.done:
		return nil, c.Err()
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
		return nil, ctx.Err()
	}
}

func (c *Client) send(req storeserver.Request) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionLost, err)
	}
	if err := c.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionLost, err)
	}
	return nil
}

// Err returns why the client stopped, or nil while it is connected
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Done is closed when the connection ends
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// UID returns the signed-in uid, or "" before sign-in
func (c *Client) UID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uid
}

func (c *Client) SignInAnonymously(ctx context.Context) (string, error) {
	return c.signIn(ctx, storeserver.Request{Op: storeserver.OpSignInAnonymously})
}

func (c *Client) SignInWithCustomToken(ctx context.Context, token string) (string, error) {
	return c.signIn(ctx, storeserver.Request{Op: storeserver.OpSignIn, Token: token})
}

func (c *Client) signIn(ctx context.Context, req storeserver.Request) (string, error) {
	resp, err := c.roundTrip(ctx, req)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.uid = resp.UID
	c.mu.Unlock()
	return resp.UID, nil
}

// GetVersioned reads one document with its version
func (c *Client) GetVersioned(ctx context.Context, collection, id string) (*types.DocumentSnapshot, error) {
	resp, err := c.roundTrip(ctx, storeserver.Request{Op: storeserver.OpGet, Collection: collection, DocID: id})
	if err != nil {
		return nil, err
	}
	if resp.Document == nil {
		return &types.DocumentSnapshot{ID: id}, nil
	}
	return resp.Document, nil
}

// Commit applies writes atomically on the server
func (c *Client) Commit(ctx context.Context, writes []types.Write) (int64, error) {
	resp, err := c.roundTrip(ctx, storeserver.Request{Op: storeserver.OpCommit, Writes: writes})
	if err != nil {
		return 0, err
	}
	return resp.Seq, nil
}

// Snapshot reads a whole collection once
func (c *Client) Snapshot(ctx context.Context, collection string) (*types.CollectionSnapshot, error) {
	resp, err := c.roundTrip(ctx, storeserver.Request{Op: storeserver.OpQuery, Collection: collection})
	if err != nil {
		return nil, err
	}
	if resp.Snapshot == nil {
		return &types.CollectionSnapshot{Collection: collection}, nil
	}
	return resp.Snapshot, nil
}

func (c *Client) Get(ctx context.Context, collection, id string) (*types.DocumentSnapshot, error) {
	return c.GetVersioned(ctx, collection, id)
}

func (c *Client) Set(ctx context.Context, collection, id string, data types.Document) error {
	return c.commitOne(ctx, types.Write{Collection: collection, ID: id, Kind: types.WriteSet, Data: data})
}

func (c *Client) Update(ctx context.Context, collection, id string, updates ...types.FieldUpdate) error {
	return c.commitOne(ctx, types.Write{Collection: collection, ID: id, Kind: types.WriteUpdate, Updates: updates})
}

func (c *Client) Delete(ctx context.Context, collection, id string) error {
	return c.commitOne(ctx, types.Write{Collection: collection, ID: id, Kind: types.WriteDelete})
}

func (c *Client) commitOne(ctx context.Context, w types.Write) error {
	_, err := c.Commit(ctx, []types.Write{w})
	return err
}

// RunTransaction runs fn optimistically; reads and the final commit each cost one round trip
func (c *Client) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx interfaces.Transaction) error) error {
	return docstore.RunTransaction(ctx, c, fn)
}

// Watch subscribes to collection; the handler runs on a goroutine owned by the watch
func (c *Client) Watch(ctx context.Context, collection string, handler interfaces.SnapshotHandler) (interfaces.CancelFunc, error) {
	watchID := uuid.NewString()
	w := newRemoteWatch(handler)

	// registered before the request so early snapshots are not dropped
	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return nil, err
	}
	c.watches[watchID] = w
	c.mu.Unlock()

	if _, err := c.roundTrip(ctx, storeserver.Request{Op: storeserver.OpWatch, Collection: collection, WatchID: watchID}); err != nil {
		c.mu.Lock()
		delete(c.watches, watchID)
		c.mu.Unlock()
		w.stop()
		return nil, err
	}

	go w.loop()

	var once sync.Once
	return func() {
		once.Do(func() {
			w.stop()
			c.mu.Lock()
			_, live := c.watches[watchID]
			delete(c.watches, watchID)
			c.mu.Unlock()
			if !live {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), c.writeTimeout)
			defer cancel()
			if _, err := c.roundTrip(ctx, storeserver.Request{Op: storeserver.OpUnwatch, WatchID: watchID}); err != nil {
				glog.V(1).Infof("[storeclient] unwatch %s: %v", watchID, err)
			}
		})
	}, nil
}

// Close ends the connection; pending calls and watches fail with ErrClientClosed
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(c.writeTimeout))
	c.writeMu.Unlock()

	err := c.conn.Close()
	<-c.done
	return err
}

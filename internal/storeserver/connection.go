package storeserver

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"sharing/pkg/interfaces"
)

// Connection wraps one websocket client
// All frames go through a single writer goroutine; gorilla connections allow
// only one concurrent writer.
type Connection struct {
	id           string
	conn         *websocket.Conn
	writeCh      chan []byte
	writeTimeout time.Duration
	ctx          context.Context
	cancel       context.CancelFunc
	closeOnce    sync.Once

	mu      sync.RWMutex
	uid     string
	watches map[string]interfaces.CancelFunc
}

// NewConnection wraps conn and starts its writer
func NewConnection(conn *websocket.Conn, writeTimeout time.Duration) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:           uuid.NewString(),
		conn:         conn,
		writeCh:      make(chan []byte, 100),
		writeTimeout: writeTimeout,
		ctx:          ctx,
		cancel:       cancel,
		watches:      make(map[string]interfaces.CancelFunc),
	}

	go c.writeLoop()

	return c
}

func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				_ = c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				glog.V(1).Infof("[conn %s] write failed: %v", c.id, err)
				_ = c.Close()
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// WriteJSON queues v for the writer, waiting at most the write timeout
func (c *Connection) WriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	timer := time.NewTimer(c.writeTimeout)
	defer timer.Stop()

	select {
	case c.writeCh <- data:
		return nil
	case <-timer.C:
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Close cancels every watch and closes the socket
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()

		c.mu.Lock()
		watches := c.watches
		c.watches = make(map[string]interfaces.CancelFunc)
		c.mu.Unlock()
		for _, cancel := range watches {
			cancel()
		}

		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

func (c *Connection) ID() string {
	return c.id
}

// Context is cancelled when the connection closes
func (c *Connection) Context() context.Context {
	return c.ctx
}

func (c *Connection) SetUID(uid string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.uid = uid
}

func (c *Connection) UID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.uid
}

func (c *Connection) IsAuthenticated() bool {
	return c.UID() != ""
}

// addWatch records cancel under id; false when the id is taken or the connection closed
func (c *Connection) addWatch(id string, cancel interfaces.CancelFunc) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx.Err() != nil {
		return false
	}
	if _, exists := c.watches[id]; exists {
		return false
	}
	c.watches[id] = cancel
	return true
}

// removeWatch cancels and forgets the watch; unknown ids report false
func (c *Connection) removeWatch(id string) bool {
	c.mu.Lock()
	cancel, ok := c.watches[id]
	delete(c.watches, id)
	c.mu.Unlock()

	if ok {
		cancel()
	}
	return ok
}

// forgetWatch drops a watch that already ended on its own
func (c *Connection) forgetWatch(id string) {
	c.mu.Lock()
	delete(c.watches, id)
	c.mu.Unlock()
}

func (c *Connection) WatchCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.watches)
}

// bindWatch attaches the real cancel to a reserved id; false when the watch is gone
func (c *Connection) bindWatch(id string, cancel interfaces.CancelFunc) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.watches[id]; !ok {
		return false
	}
	c.watches[id] = cancel
	return true
}

package storeserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"sharing/internal/auth"
	"sharing/internal/clock"
	"sharing/internal/docstore"
	"sharing/pkg/types"
)

// HandlerConfig holds the websocket timings and limits
type HandlerConfig struct {
	PingInterval     time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	MaxMessageSize   int64
	CommitsPerMinute int
	CheckOrigin      func(r *http.Request) bool
}

// DefaultHandlerConfig returns the production defaults
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		PingInterval:     30 * time.Second,
		ReadTimeout:      60 * time.Second,
		WriteTimeout:     5 * time.Second,
		MaxMessageSize:   1 << 20,
		CommitsPerMinute: 120,
	}
}

// Handler serves the document store protocol over websockets
type Handler struct {
	backend  docstore.Backend
	authn    *auth.Authenticator
	registry *Registry
	limiter  *RateLimiter
	clock    clock.Clock
	config   HandlerConfig
	upgrader websocket.Upgrader
}

// NewHandler creates a handler serving backend
func NewHandler(backend docstore.Backend, authn *auth.Authenticator, registry *Registry, config HandlerConfig) *Handler {
	checkOrigin := config.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Handler{
		backend:  backend,
		authn:    authn,
		registry: registry,
		limiter:  NewRateLimiter(config.CommitsPerMinute, clock.RealClock{}),
		clock:    clock.RealClock{},
		config:   config,
		upgrader: websocket.Upgrader{
			CheckOrigin:      checkOrigin,
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// Limiter exposes the commit limiter so the owner can clean it up periodically
func (h *Handler) Limiter() *RateLimiter {
	return h.limiter
}

// HandleWebSocket upgrades the request and serves the connection until it closes
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		glog.Warningf("[ws] upgrade failed: %v", err)
		return
	}

	wsConn := NewConnection(conn, h.config.WriteTimeout)
	if err := h.registry.Register(wsConn); err != nil {
		glog.Errorf("[ws] failed to register connection: %v", err)
		_ = wsConn.Close()
		return
	}
	glog.V(1).Infof("[ws] connection %s opened from %s", wsConn.ID(), r.RemoteAddr)

	go h.handleConnection(wsConn)
}

// handleConnection runs the heartbeat and the read pump for one connection
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		h.registry.Unregister(conn)
		h.limiter.Forget(conn.ID())
		_ = conn.Close()
		glog.V(1).Infof("[ws] connection %s closed", conn.ID())
	}()

	if h.config.MaxMessageSize > 0 {
		conn.conn.SetReadLimit(h.config.MaxMessageSize)
	}
	if err := conn.conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout)); err != nil {
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	})

	go h.pingLoop(conn)

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				glog.Warningf("[ws] connection %s read error: %v", conn.ID(), err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			h.reply(conn, &Message{Type: TypeResponse, Error: wireError(fmt.Errorf("%w: %v", ErrBadRequest, err))})
			continue
		}
		h.reply(conn, h.dispatch(conn, &req))
	}
}

func (h *Handler) pingLoop(conn *Connection) {
	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.config.WriteTimeout)); err != nil {
				return
			}
		case <-conn.Context().Done():
			return
		}
	}
}

func (h *Handler) reply(conn *Connection, msg *Message) {
	if err := conn.WriteJSON(msg); err != nil {
		glog.Warningf("[ws] failed to reply on %s: %v", conn.ID(), err)
	}
}

// dispatch executes one request and returns its response
func (h *Handler) dispatch(conn *Connection, req *Request) *Message {
	resp := &Message{Type: TypeResponse, ID: req.ID}
	ctx := conn.Context()

	glog.V(2).Infof("[ws] %s %s %s", conn.ID(), req.Op, req.Collection)

	var err error
	switch req.Op {
	case OpSignIn:
		resp.UID, err = h.signIn(ctx, conn, req.Token)
	case OpSignInAnonymously:
		resp.UID, err = h.signIn(ctx, conn, "")
	case OpGet:
		if err = requireAuth(conn); err == nil {
			resp.Document, err = h.backend.GetVersioned(ctx, req.Collection, req.DocID)
		}
	case OpQuery:
		if err = requireAuth(conn); err == nil {
			resp.Snapshot, err = h.backend.Snapshot(ctx, req.Collection)
		}
	case OpCommit:
		if err = requireAuth(conn); err == nil {
			resp.Seq, err = h.commit(ctx, conn, req.Writes)
		}
	case OpWatch:
		if err = requireAuth(conn); err == nil {
			resp.WatchID, err = h.watch(conn, req)
		}
	case OpUnwatch:
		if !conn.removeWatch(req.WatchID) {
			err = ErrUnknownWatch
		}
		resp.WatchID = req.WatchID
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownOp, req.Op)
	}

	if err != nil {
		resp.Error = wireError(err)
		resp.Document, resp.Snapshot = nil, nil
	}
	return resp
}

func requireAuth(conn *Connection) error {
	if !conn.IsAuthenticated() {
		return docstore.ErrUnauthenticated
	}
	return nil
}

func (h *Handler) signIn(ctx context.Context, conn *Connection, token string) (string, error) {
	method := docstore.SignInCustomToken
	var identity *auth.Identity
	if token == "" {
		method = docstore.SignInAnonymous
		identity = h.authn.SignInAnonymously()
	} else {
		var err error
		if identity, err = h.authn.VerifyCustomToken(token); err != nil {
			return "", err
		}
	}

	if err := h.backend.RecordSignIn(ctx, docstore.SignIn{UID: identity.UID, Method: method, CreatedAt: h.clock.Now()}); err != nil {
		return "", err
	}
	conn.SetUID(identity.UID)
	glog.V(1).Infof("[ws] connection %s signed in as %s (%s)", conn.ID(), identity.UID, method)
	return identity.UID, nil
}

func (h *Handler) commit(ctx context.Context, conn *Connection, writes []types.Write) (int64, error) {
	if len(writes) > 0 && !h.limiter.Allow(conn.ID()) {
		return 0, ErrRateLimited
	}
	for _, w := range writes {
		if err := docstore.ValidatePath(w.Collection, w.ID); err != nil {
			return 0, err
		}
	}
	return h.backend.Commit(ctx, writes)
}

func (h *Handler) watch(conn *Connection, req *Request) (string, error) {
	watchID := req.WatchID
	if watchID == "" {
		watchID = uuid.NewString()
	}

	// reserve the id first so events cannot race the bookkeeping
	ready := make(chan struct{})
	if !conn.addWatch(watchID, func() {}) {
		return "", fmt.Errorf("%w: watch %s already exists", ErrBadRequest, watchID)
	}

	cancel, err := h.backend.Watch(conn.Context(), req.Collection, func(snap *types.CollectionSnapshot, err error) {
		<-ready
		if err != nil {
			conn.forgetWatch(watchID)
			h.reply(conn, &Message{Type: TypeWatchError, WatchID: watchID, Error: wireError(err)})
			return
		}
		h.reply(conn, &Message{Type: TypeSnapshot, WatchID: watchID, Snapshot: snap})
	})
	if err != nil {
		conn.forgetWatch(watchID)
		close(ready)
		return "", err
	}

	if !conn.bindWatch(watchID, cancel) {
		// closed or unwatched meanwhile
		cancel()
	}
	close(ready)
	return watchID, nil
}

package share

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/golang/glog"

	"sharing/internal/clock"
	"sharing/internal/listeners"
	"sharing/pkg/interfaces"
	"sharing/pkg/types"
)

// Status is the lifecycle state of an Engine
type Status string

const (
	StatusUninitialized Status = "uninitialized"
	StatusInitializing  Status = "initializing"
	StatusLive          Status = "live"
	StatusError         Status = "error"
)

// Listener receives every published view model; nil means no snapshot yet
type Listener func(state *types.ClassShareState)

// Engine keeps one classroom collection in sync and republishes its view model
// The remote subscription is the only source of state: mutations write to the
// store and the resulting snapshot updates the view.
type Engine struct {
	store          interfaces.RemoteStore
	clock          clock.Clock
	demoCollection string
	availability   *Availability
	source         interfaces.AvailabilitySource
	listeners      *listeners.Registry[publication]

	mu           sync.RWMutex
	status       Status
	session      Session
	collection   string
	reportingURL types.ReportingURLFunc
	setShared    types.SharedFlagFunc
	state        *types.ClassShareState
	seq          uint64
	lastErr      error
	cancelWatch  interfaces.CancelFunc
	firstResult  chan error
	closed       bool
}

// Option configures an Engine
type Option func(*Engine)

// WithClock sets the clock used for comment and read-marker timestamps
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithAvailability sets the initial interactive availability and the host source
// that reports changes to it; source may be nil
func WithAvailability(initial bool, source interfaces.AvailabilitySource) Option {
	return func(e *Engine) {
		e.availability = NewAvailability(initial)
		e.source = source
	}
}

// WithDemoCollection overrides the collection demo sessions seed and watch
func WithDemoCollection(collection string) Option {
	return func(e *Engine) { e.demoCollection = collection }
}

// NewEngine creates an uninitialized engine over store
// store may be nil for engines that only ever run test-stub sessions.
func NewEngine(store interfaces.RemoteStore, opts ...Option) *Engine {
	e := &Engine{
		store:          store,
		clock:          clock.RealClock{},
		demoCollection: DemoCollection,
		availability:   NewAvailability(false),
		listeners:      listeners.New[publication]("share"),
		status:         StatusUninitialized,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Init starts the session described by params
// It returns once the first snapshot has been published to listeners.
func (e *Engine) Init(ctx context.Context, params types.SessionParams) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.status != StatusUninitialized {
		e.mu.Unlock()
		return ErrAlreadyInitialized
	}
	e.status = StatusInitializing
	e.mu.Unlock()

	e.availability.Bind(e.source)

	var err error
	switch p := params.(type) {
	case types.AuthenticatedParams:
		err = e.initAuthenticated(ctx, p)
	case *types.AuthenticatedParams:
		if p == nil {
			err = ErrUnknownSessionKind
			break
		}
		err = e.initAuthenticated(ctx, *p)
	case types.TestStubParams, *types.TestStubParams:
		err = e.initTestStub()
	case types.DemoParams, *types.DemoParams:
		err = e.initDemo(ctx)
	default:
		err = fmt.Errorf("%w: %T", ErrUnknownSessionKind, params)
	}

	if err != nil {
		e.mu.Lock()
		e.status = StatusError
		e.lastErr = err
		cancel := e.cancelWatch
		e.cancelWatch = nil
		e.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		glog.Errorf("[share] init failed: %v", err)
		return err
	}
	return nil
}

func (e *Engine) initAuthenticated(ctx context.Context, p types.AuthenticatedParams) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if e.store == nil {
		return fmt.Errorf("%w: no remote store configured", ErrAuthentication)
	}

	if err := e.signIn(ctx, p.CredentialToken); err != nil {
		return err
	}

	e.mu.Lock()
	e.session = Session{
		Kind:            types.SessionKindAuthenticated,
		CurrentUserID:   p.CurrentUserID,
		UserMap:         p.UserMap.Copy(),
		InteractiveName: p.InteractiveName,
	}
	e.collection = p.Scope.CollectionPath()
	e.reportingURL = p.ReportingURL
	e.setShared = p.SetShared
	e.mu.Unlock()

	return e.subscribe(ctx)
}

func (e *Engine) initTestStub() error {
	e.mu.Lock()
	e.session = Session{Kind: types.SessionKindTestStub, UserMap: types.UserMap{}, InteractiveName: TestInteractiveName}
	pub := e.publishLocked(EmptyState(e.session))
	e.status = StatusLive
	e.mu.Unlock()

	glog.Infof("[share] test-stub session live")
	e.listeners.Notify(pub)
	return nil
}

func (e *Engine) initDemo(ctx context.Context) error {
	if e.store == nil {
		return fmt.Errorf("%w: no remote store configured", ErrAuthentication)
	}
	if err := e.signIn(ctx, ""); err != nil {
		return err
	}

	e.mu.Lock()
	e.session = Session{
		Kind:            types.SessionKindDemo,
		CurrentUserID:   DemoCurrentUserID,
		UserMap:         DemoUserMap(),
		InteractiveName: DemoInteractiveName,
	}
	e.collection = e.demoCollection
	e.mu.Unlock()

	if err := e.seedDemo(ctx); err != nil {
		return err
	}
	return e.subscribe(ctx)
}

// seedDemo resets the demo current user and writes the sample roster in one commit
func (e *Engine) seedDemo(ctx context.Context) error {
	docs := DemoDocuments(e.clock.Now())
	err := e.store.RunTransaction(ctx, func(ctx context.Context, tx interfaces.Transaction) error {
		for _, doc := range docs {
			data, err := doc.ToDocument()
			if err != nil {
				return err
			}
			if err := tx.Set(e.demoCollection, doc.UserID, data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: failed to seed demo roster: %w", ErrRemoteStore, err)
	}
	glog.V(1).Infof("[share] seeded %d demo documents into %s", len(docs), e.demoCollection)
	return nil
}

func (e *Engine) signIn(ctx context.Context, token string) error {
	var uid string
	var err error
	if token == "" {
		uid, err = e.store.SignInAnonymously(ctx)
	} else {
		uid, err = e.store.SignInWithCustomToken(ctx, token)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAuthentication, err)
	}
	glog.V(1).Infof("[share] signed in as %s", uid)
	return nil
}

// subscribe watches the session collection and waits for the first snapshot
func (e *Engine) subscribe(ctx context.Context) error {
	first := make(chan error, 1)
	e.mu.Lock()
	e.firstResult = first
	collection := e.collection
	e.mu.Unlock()

	cancel, err := e.store.Watch(ctx, collection, e.handleSnapshot)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRemoteSubscription, err)
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		cancel()
		return ErrClosed
	}
	e.cancelWatch = cancel
	e.mu.Unlock()

	select {
	case err := <-first:
		if err != nil {
			return fmt.Errorf("%w: %w", ErrRemoteSubscription, err)
		}
		glog.Infof("[share] %s session live on %s", e.Session().Kind, collection)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handleSnapshot runs on the store's delivery goroutine, one call at a time
func (e *Engine) handleSnapshot(snap *types.CollectionSnapshot, err error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	first := e.firstResult
	collection := e.collection

	if err != nil {
		if first != nil {
			e.firstResult = nil
			e.mu.Unlock()
			first <- err
			return
		}
		// keep serving the last good state
		e.status = StatusError
		e.lastErr = fmt.Errorf("%w: %w", ErrRemoteSubscription, err)
		e.mu.Unlock()
		glog.Errorf("[share] subscription on %s ended, holding last state: %v", collection, err)
		return
	}

	state := Derive(e.session, DocumentsFromSnapshot(snap))
	pub := e.publishLocked(state)
	if first != nil {
		e.firstResult = nil
		e.status = StatusLive
	}
	e.mu.Unlock()

	glog.V(2).Infof("[share] snapshot seq=%d: %d documents, %d students", snap.Seq, len(snap.Documents), len(state.Students))
	e.listeners.Notify(pub)
	if first != nil {
		first <- nil
	}
}

// publishLocked installs state as the held view model; e.mu must be held
func (e *Engine) publishLocked(state *types.ClassShareState) publication {
	e.seq++
	e.state = state
	return publication{seq: e.seq, state: state}
}

// Subscribe registers fn and immediately calls it with the current state
// fn never sees a state older than one it has already been given.
func (e *Engine) Subscribe(fn Listener) (unsubscribe func()) {
	sub := &subscriber{fn: fn}
	h := e.listeners.Add(sub.deliver)

	// read after Add: anything published from here on also reaches Notify
	e.mu.RLock()
	current := publication{seq: e.seq, state: e.state}
	e.mu.RUnlock()

	e.listeners.Invoke(h, current)
	return func() { e.listeners.Remove(h) }
}

// publication is a view model tagged with its position in publish order
type publication struct {
	seq   uint64
	state *types.ClassShareState
}

// subscriber serializes calls to one listener and drops stale publications
type subscriber struct {
	mu        sync.Mutex
	fn        Listener
	seq       uint64
	delivered bool
}

func (s *subscriber) deliver(p publication) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.delivered && p.seq <= s.seq {
		return
	}
	s.delivered = true
	s.seq = p.seq
	s.fn(p.state)
}

// State returns the last published view model, or nil before the first snapshot
func (e *Engine) State() *types.ClassShareState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

// Err returns the error that moved the engine to StatusError
func (e *Engine) Err() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastErr
}

func (e *Engine) Session() Session {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.session
}

func (e *Engine) CurrentUserID() string {
	return e.Session().CurrentUserID
}

// CollectionPath returns the watched collection; empty for test-stub sessions
func (e *Engine) CollectionPath() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.collection
}

// UserMap returns a copy of the session's display names
func (e *Engine) UserMap() types.UserMap {
	return e.Session().UserMap.Copy()
}

// DisplayName resolves userID; an unnamed current user is "Unknown User"
func (e *Engine) DisplayName(userID string) string {
	s := e.Session()
	if name := s.UserMap[userID]; name != "" {
		return name
	}
	if userID != "" && userID == s.CurrentUserID {
		return UnknownUserName
	}
	return ""
}

func (e *Engine) Availability() *Availability {
	return e.availability
}

func (e *Engine) InteractiveAvailable() bool {
	return e.availability.Available()
}

// Close stops the collection watch and the availability handler
// Calls already in flight complete but no listener observes them.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	cancel := e.cancelWatch
	e.cancelWatch = nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.availability.Close()
	e.listeners.Clear()
	glog.V(1).Infof("[share] engine closed")
}

// ready returns the session for a mutation, or why mutations are not allowed
func (e *Engine) ready() (Session, *types.ClassShareState, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return Session{}, nil, ErrClosed
	}
	if e.state == nil {
		return Session{}, nil, ErrNotInitialized
	}
	return e.session, e.state, nil
}

func (e *Engine) hooks() (string, types.ReportingURLFunc, types.SharedFlagFunc) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.collection, e.reportingURL, e.setShared
}

func (e *Engine) flipSharedFlag(ctx context.Context, setShared types.SharedFlagFunc, shared bool) error {
	if setShared == nil {
		return nil
	}
	status, err := setShared(ctx, shared)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSharingRejected, err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrSharingRejected, status)
	}
	return nil
}

func remoteError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrRemoteStore, op, err)
}

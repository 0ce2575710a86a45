package docstore

import (
	"context"
	"sync"

	"github.com/golang/glog"

	"sharing/pkg/interfaces"
	"sharing/pkg/types"
)

// Loader reads the full current contents of a collection
type Loader func(collection string) (*types.CollectionSnapshot, error)

// Hub fans collection changes out to watchers
// A single goroutine owns the watcher table and loads every snapshot, so snapshots
// reach each watcher in commit order and a watcher registered between two commits
// sees the first one in its initial snapshot and the second one as a change.
type Hub struct {
	registerChannel   chan *registration
	unregisterChannel chan *watcher
	publishChannel    chan []string
	shutdownChannel   chan struct{}
	done              chan struct{}

	loader   Loader
	watchers map[string]map[*watcher]struct{} // owned by run

	running bool
	mu      sync.RWMutex
}

type registration struct {
	watcher *watcher
	reply   chan error
}

// NewHub creates a hub that loads snapshots with loader
func NewHub(loader Loader) *Hub {
	return &Hub{
		registerChannel:   make(chan *registration, 100),
		unregisterChannel: make(chan *watcher, 100),
		publishChannel:    make(chan []string, 1000),
		shutdownChannel:   make(chan struct{}),
		done:              make(chan struct{}),
		loader:            loader,
		watchers:          make(map[string]map[*watcher]struct{}),
	}
}

// Start begins hub processing
func (h *Hub) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return
	}
	h.running = true
	go h.run()
}

// Stop shuts the hub down and ends every watch with ErrStoreClosed
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	close(h.shutdownChannel)
	h.mu.Unlock()

	<-h.done
}

// Publish queues a change notification for collections
// Blocks only when the hub is saturated; a stopped hub drops the notification.
func (h *Hub) Publish(collections []string) {
	if len(collections) == 0 {
		return
	}
	select {
	case h.publishChannel <- collections:
	case <-h.done:
	}
}

// Watch registers handler for collection and returns once the initial snapshot is queued
func (h *Hub) Watch(ctx context.Context, collection string, handler interfaces.SnapshotHandler) (interfaces.CancelFunc, error) {
	h.mu.RLock()
	running := h.running
	h.mu.RUnlock()
	if !running {
		return nil, ErrWatchNotRunning
	}

	w := newWatcher(collection, handler)
	reg := &registration{watcher: w, reply: make(chan error, 1)}

	select {
	case h.registerChannel <- reg:
	case <-h.done:
		return nil, ErrStoreClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	// the hub always answers a registration it has accepted
	select {
	case err := <-reg.reply:
		if err != nil {
			return nil, err
		}
	case <-h.done:
		return nil, ErrStoreClosed
	}

	go w.loop()

	var once sync.Once
	return func() {
		once.Do(func() {
			w.stop()
			select {
			case h.unregisterChannel <- w:
			case <-h.done:
			}
		})
	}, nil
}

func (h *Hub) run() {
	defer close(h.done)
	defer glog.V(2).Infof("[hub] stopped")

	for {
		select {
		case reg := <-h.registerChannel:
			h.handleRegistration(reg)

		case w := <-h.unregisterChannel:
			h.handleDeregistration(w)

		case collections := <-h.publishChannel:
			h.handlePublish(collections)

		case <-h.shutdownChannel:
			h.shutdownWatchers()
			return
		}
	}
}

func (h *Hub) handleRegistration(reg *registration) {
	snap, err := h.loader(reg.watcher.collection)
	if err != nil {
		reg.reply <- err
		return
	}

	set, ok := h.watchers[reg.watcher.collection]
	if !ok {
		set = make(map[*watcher]struct{})
		h.watchers[reg.watcher.collection] = set
	}
	set[reg.watcher] = struct{}{}
	reg.watcher.deliver(snap)
	reg.reply <- nil

	glog.V(2).Infof("[hub] watch registered on %s (%d watchers)", reg.watcher.collection, len(set))
}

func (h *Hub) handleDeregistration(w *watcher) {
	set, ok := h.watchers[w.collection]
	if !ok {
		return
	}
	delete(set, w)
	if len(set) == 0 {
		delete(h.watchers, w.collection)
	}
}

func (h *Hub) handlePublish(collections []string) {
	for _, collection := range collections {
		set, ok := h.watchers[collection]
		if !ok {
			continue
		}

		snap, err := h.loader(collection)
		if err != nil {
			glog.Errorf("[hub] failed to load %s: %v", collection, err)
			for w := range set {
				w.fail(err)
			}
			delete(h.watchers, collection)
			continue
		}
		for w := range set {
			w.deliver(snap)
		}
	}
}

func (h *Hub) shutdownWatchers() {
	for collection, set := range h.watchers {
		for w := range set {
			w.fail(ErrStoreClosed)
		}
		delete(h.watchers, collection)
	}
}

// watcher delivers snapshots to one handler on its own goroutine
// Only the newest pending snapshot is kept; older undelivered ones are superseded.
type watcher struct {
	collection string
	handler    interfaces.SnapshotHandler

	mu       sync.Mutex
	pending  *types.CollectionSnapshot
	err      error
	lastSeq  int64
	signal   chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

func newWatcher(collection string, handler interfaces.SnapshotHandler) *watcher {
	return &watcher{
		collection: collection,
		handler:    handler,
		lastSeq:    -1,
		signal:     make(chan struct{}, 1),
		stopped:    make(chan struct{}),
	}
}

func (w *watcher) deliver(snap *types.CollectionSnapshot) {
	w.mu.Lock()
	if w.pending == nil || snap.Seq > w.pending.Seq {
		w.pending = snap
	}
	w.mu.Unlock()
	w.wake()
}

func (w *watcher) fail(err error) {
	w.mu.Lock()
	if w.err == nil {
		w.err = err
	}
	w.mu.Unlock()
	w.wake()
}

func (w *watcher) wake() {
	select {
	case w.signal <- struct{}{}:
	default:
	}
}

func (w *watcher) stop() {
	w.stopOnce.Do(func() { close(w.stopped) })
}

func (w *watcher) loop() {
	for {
		select {
		case <-w.stopped:
			return
		case <-w.signal:
		}

		w.mu.Lock()
		snap, err := w.pending, w.err
		w.pending = nil
		w.mu.Unlock()

		if snap != nil && snap.Seq > w.lastSeq {
			w.lastSeq = snap.Seq
			if !w.call(snap, nil) {
				return
			}
		}
		if err != nil {
			w.call(nil, err)
			w.stop()
			return
		}
	}
}

// call invokes the handler unless the watch was cancelled meanwhile
func (w *watcher) call(snap *types.CollectionSnapshot, err error) bool {
	select {
	case <-w.stopped:
		return false
	default:
	}
	w.handler(snap, err)
	return true
}

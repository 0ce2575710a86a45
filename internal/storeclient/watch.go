package storeclient

import (
	"sync"

	"github.com/golang/glog"

	"sharing/pkg/interfaces"
	"sharing/pkg/types"
)

// remoteWatch hands server events to one handler goroutine
// Snapshots are full collection states, so an undelivered snapshot is replaced
// by a newer one; an error is delivered once, after any pending snapshot.
type remoteWatch struct {
	handler interfaces.SnapshotHandler

	mu      sync.Mutex
	latest  *types.CollectionSnapshot
	err     error
	stopped bool
	wake    chan struct{}
}

func newRemoteWatch(handler interfaces.SnapshotHandler) *remoteWatch {
	return &remoteWatch{handler: handler, wake: make(chan struct{}, 1)}
}

func (w *remoteWatch) deliver(snap *types.CollectionSnapshot) {
	w.mu.Lock()
	if w.err == nil && (w.latest == nil || snap.Seq >= w.latest.Seq) {
		w.latest = snap
	}
	w.mu.Unlock()
	w.signal()
}

func (w *remoteWatch) fail(err error) {
	w.mu.Lock()
	if w.err == nil {
		w.err = err
	}
	w.mu.Unlock()
	w.signal()
}

func (w *remoteWatch) stop() {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()
	w.signal()
}

func (w *remoteWatch) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *remoteWatch) loop() {
	for range w.wake {
		w.mu.Lock()
		if w.stopped {
			w.mu.Unlock()
			return
		}
		snap, err := w.latest, w.err
		w.latest = nil
		w.mu.Unlock()

		if snap != nil && !w.call(snap, nil) {
			return
		}
		if err != nil {
			w.call(nil, err)
			return
		}
	}
}

// call runs the handler, reporting false once the watch was stopped
func (w *remoteWatch) call(snap *types.CollectionSnapshot, err error) bool {
	w.mu.Lock()
	stopped := w.stopped
	w.mu.Unlock()
	if stopped {
		return false
	}

	defer func() {
		if r := recover(); r != nil {
			glog.Errorf("[storeclient] watch handler panicked: %v", r)
		}
	}()
	w.handler(snap, err)
	return true
}

package listeners

import (
	"container/list"
	"sync"

	"github.com/golang/glog"
)

// Handle identifies one registration; handles are never reused within a Registry
type Handle uint64

type entry[T any] struct {
	handle Handle
	fn     func(T)
}

// Registry is an ordered set of callbacks keyed by registration handle
// Removal is O(1) and idempotent. Notify calls listeners synchronously in
// registration order and isolates a panicking listener from the others.
type Registry[T any] struct {
	name    string
	mu      sync.Mutex
	order   *list.List
	entries map[Handle]*list.Element
	next    Handle
}

// New creates an empty registry; name only appears in log lines
func New[T any](name string) *Registry[T] {
	return &Registry[T]{
		name:    name,
		order:   list.New(),
		entries: make(map[Handle]*list.Element),
	}
}

// Add appends fn and returns the handle that removes it
func (r *Registry[T]) Add(fn func(T)) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	h := r.next
	r.entries[h] = r.order.PushBack(&entry[T]{handle: h, fn: fn})
	return h
}

// Remove drops exactly one registration; unknown or already removed handles are ignored
func (r *Registry[T]) Remove(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	elem, ok := r.entries[h]
	if !ok {
		return false
	}
	r.order.Remove(elem)
	delete(r.entries, h)
	return true
}

// Len returns the number of registered listeners
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.order.Len()
}

// Clear removes every listener
func (r *Registry[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order.Init()
	r.entries = make(map[Handle]*list.Element)
}

// Notify invokes every listener with v and returns how many completed without panicking
// The listener set is captured before the first call, so listeners may add or
// remove registrations while being notified.
func (r *Registry[T]) Notify(v T) int {
	r.mu.Lock()
	snapshot := make([]*entry[T], 0, r.order.Len())
	for e := r.order.Front(); e != nil; e = e.Next() {
		snapshot = append(snapshot, e.Value.(*entry[T]))
	}
	r.mu.Unlock()

	ok := 0
	for _, e := range snapshot {
		if r.invoke(e, v) {
			ok++
		}
	}
	return ok
}

// Invoke calls the single listener behind h, with the same panic isolation as Notify
func (r *Registry[T]) Invoke(h Handle, v T) bool {
	r.mu.Lock()
	elem, exists := r.entries[h]
	r.mu.Unlock()
	if !exists {
		return false
	}
	return r.invoke(elem.Value.(*entry[T]), v)
}

func (r *Registry[T]) invoke(e *entry[T], v T) (ok bool) {
	defer func() {
		if recovered := recover(); recovered != nil {
			glog.Warningf("[%s] listener %d panicked: %v", r.name, e.handle, recovered)
			ok = false
		}
	}()
	e.fn(v)
	return true
}

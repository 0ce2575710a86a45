package share

import (
	"sync"

	"sharing/internal/listeners"
	"sharing/pkg/interfaces"
)

// Availability relays whether the wrapped interactive is ready for sharing
// The value is advisory; it never gates store access.
type Availability struct {
	mu        sync.RWMutex
	available bool
	cancel    interfaces.CancelFunc
	listeners *listeners.Registry[bool]
}

// NewAvailability creates a bridge holding initial until the host reports otherwise
func NewAvailability(initial bool) *Availability {
	return &Availability{
		available: initial,
		listeners: listeners.New[bool]("availability"),
	}
}

// Bind registers the single internal handler with the host event source
// Binding again, or binding a nil source, does nothing.
func (a *Availability) Bind(source interfaces.AvailabilitySource) {
	if source == nil {
		return
	}
	a.mu.Lock()
	if a.cancel != nil {
		a.mu.Unlock()
		return
	}
	a.cancel = func() {}
	a.mu.Unlock()

	cancel := source.OnAvailabilityChange(a.set)

	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()
}

// Available reports the last value the host sent
func (a *Availability) Available() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.available
}

// OnAvailabilityChange registers fn for every host change and returns its removal
func (a *Availability) OnAvailabilityChange(fn func(available bool)) func() {
	h := a.listeners.Add(fn)
	return func() { a.listeners.Remove(h) }
}

func (a *Availability) set(available bool) {
	a.mu.Lock()
	a.available = available
	a.mu.Unlock()
	a.listeners.Notify(available)
}

// Close detaches from the host and drops every listener
func (a *Availability) Close() {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	a.listeners.Clear()
}

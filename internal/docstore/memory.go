package docstore

import (
	"context"
	"sync"

	"golang.org/x/exp/slices"

	"sharing/internal/clock"
	"sharing/pkg/interfaces"
	"sharing/pkg/types"
)

// MemoryBackend is an in-process Backend
// Used for the demo, for tests and as the server's "memory" backend.
type MemoryBackend struct {
	mu          sync.RWMutex
	collections map[string]map[string]*types.DocumentSnapshot
	seq         int64
	signIns     []SignIn
	clock       clock.Clock
	hub         *Hub
	closed      bool
}

// MemoryOption configures a MemoryBackend
type MemoryOption func(*MemoryBackend)

// WithMemoryClock sets the clock used for document update times
func WithMemoryClock(c clock.Clock) MemoryOption {
	return func(m *MemoryBackend) { m.clock = c }
}

// NewMemoryBackend creates an empty running backend
func NewMemoryBackend(opts ...MemoryOption) *MemoryBackend {
	m := &MemoryBackend{
		collections: make(map[string]map[string]*types.DocumentSnapshot),
		clock:       clock.RealClock{},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.hub = NewHub(m.load)
	m.hub.Start()
	return m
}

func (m *MemoryBackend) GetVersioned(ctx context.Context, collection, id string) (*types.DocumentSnapshot, error) {
	if err := ValidatePath(collection, id); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStoreClosed
	}
	return m.lookup(collection, id), nil
}

// lookup returns a copy of the stored document; callers hold mu
func (m *MemoryBackend) lookup(collection, id string) *types.DocumentSnapshot {
	doc, ok := m.collections[collection][id]
	if !ok {
		return missingSnapshot(id)
	}
	return copySnapshot(doc)
}

func (m *MemoryBackend) Commit(ctx context.Context, writes []types.Write) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, ErrStoreClosed
	}
	if len(writes) == 0 {
		defer m.mu.Unlock()
		return m.seq, nil
	}

	seq := m.seq + 1
	staged, err := stage(writes, seq, m.clock.Now(), func(collection, id string) (*types.DocumentSnapshot, error) {
		return m.lookup(collection, id), nil
	})
	if err != nil {
		m.mu.Unlock()
		return 0, err
	}

	for _, doc := range staged {
		docs, ok := m.collections[doc.collection]
		if !ok {
			docs = make(map[string]*types.DocumentSnapshot)
			m.collections[doc.collection] = docs
		}
		if doc.snapshot.Exists {
			stored := doc.snapshot
			docs[stored.ID] = &stored
		} else {
			delete(docs, doc.snapshot.ID)
		}
	}
	m.seq = seq
	m.mu.Unlock()

	m.hub.Publish(affectedCollections(staged))
	return seq, nil
}

func (m *MemoryBackend) Snapshot(ctx context.Context, collection string) (*types.CollectionSnapshot, error) {
	if !types.IsValidCollectionPath(collection) {
		return nil, ErrInvalidPath
	}
	return m.load(collection)
}

func (m *MemoryBackend) load(collection string) (*types.CollectionSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStoreClosed
	}

	docs := m.collections[collection]
	snap := &types.CollectionSnapshot{
		Collection: collection,
		Seq:        m.seq,
		Documents:  make([]types.DocumentSnapshot, 0, len(docs)),
	}
	for _, doc := range docs {
		snap.Documents = append(snap.Documents, *copySnapshot(doc))
	}
	sortDocuments(snap.Documents)
	return snap, nil
}

func (m *MemoryBackend) Watch(ctx context.Context, collection string, handler interfaces.SnapshotHandler) (interfaces.CancelFunc, error) {
	if !types.IsValidCollectionPath(collection) {
		return nil, ErrInvalidPath
	}
	return m.hub.Watch(ctx, collection, handler)
}

func (m *MemoryBackend) RecordSignIn(ctx context.Context, signIn SignIn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	m.signIns = append(m.signIns, signIn)
	return nil
}

// SignIns returns every recorded sign-in in order
func (m *MemoryBackend) SignIns() []SignIn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.signIns)
}

func (m *MemoryBackend) HealthCheck(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrStoreClosed
	}
	return nil
}

func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.hub.Stop()
	return nil
}

func copySnapshot(doc *types.DocumentSnapshot) *types.DocumentSnapshot {
	out := *doc
	if doc.Data != nil {
		// stored data is already normalized, so this cannot fail
		out.Data, _ = Normalize(doc.Data)
	}
	return &out
}

func sortDocuments(docs []types.DocumentSnapshot) {
	slices.SortFunc(docs, func(a, b types.DocumentSnapshot) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}

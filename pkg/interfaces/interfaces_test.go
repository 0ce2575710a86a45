package interfaces_test

import (
	"context"
	"testing"

	"sharing/pkg/interfaces"
	"sharing/pkg/types"
)

// Mock implementations for testing

type mockStore struct{}

func (m *mockStore) SignInAnonymously(ctx context.Context) (string, error) { return "anon", nil }
func (m *mockStore) SignInWithCustomToken(ctx context.Context, token string) (string, error) {
	return "user", nil
}
func (m *mockStore) Get(ctx context.Context, collection, id string) (*types.DocumentSnapshot, error) {
	return &types.DocumentSnapshot{ID: id}, nil
}
func (m *mockStore) Set(ctx context.Context, collection, id string, data types.Document) error {
	return nil
}
func (m *mockStore) Update(ctx context.Context, collection, id string, updates ...types.FieldUpdate) error {
	return nil
}
func (m *mockStore) Delete(ctx context.Context, collection, id string) error { return nil }
func (m *mockStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx interfaces.Transaction) error) error {
	return fn(ctx, &mockTx{})
}
func (m *mockStore) Watch(ctx context.Context, collection string, handler interfaces.SnapshotHandler) (interfaces.CancelFunc, error) {
	handler(&types.CollectionSnapshot{Collection: collection}, nil)
	return func() {}, nil
}

type mockTx struct{}

func (m *mockTx) Get(collection, id string) (*types.DocumentSnapshot, error) {
	return &types.DocumentSnapshot{ID: id}, nil
}
func (m *mockTx) Set(collection, id string, data types.Document) error               { return nil }
func (m *mockTx) Update(collection, id string, updates ...types.FieldUpdate) error { return nil }
func (m *mockTx) Delete(collection, id string) error                                 { return nil }

type mockAvailability struct{}

func (m *mockAvailability) OnAvailabilityChange(handler func(bool)) interfaces.CancelFunc {
	handler(true)
	return func() {}
}

func TestInterfaces_ArchitecturalCompliance(t *testing.T) {
	var _ interfaces.RemoteStore = &mockStore{}
	var _ interfaces.Transaction = &mockTx{}
	var _ interfaces.AvailabilitySource = &mockAvailability{}
}

func TestRemoteStore_InterfaceContract(t *testing.T) {
	var store interfaces.RemoteStore = &mockStore{}
	ctx := context.Background()

	if _, err := store.SignInAnonymously(ctx); err != nil {
		t.Errorf("SignInAnonymously: %v", err)
	}
	if _, err := store.SignInWithCustomToken(ctx, "token"); err != nil {
		t.Errorf("SignInWithCustomToken: %v", err)
	}

	err := store.RunTransaction(ctx, func(ctx context.Context, tx interfaces.Transaction) error {
		if _, err := tx.Get("coll", "doc"); err != nil {
			return err
		}
		return tx.Update("coll", "doc", types.SetField(types.Path(types.FieldIframeURL), nil))
	})
	if err != nil {
		t.Errorf("RunTransaction: %v", err)
	}

	var received *types.CollectionSnapshot
	cancel, err := store.Watch(ctx, "coll", func(snap *types.CollectionSnapshot, err error) {
		received = snap
	})
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer cancel()

	if received == nil || received.Collection != "coll" {
		t.Errorf("expected initial snapshot for coll, got %+v", received)
	}
}

func TestAvailabilitySource_InterfaceContract(t *testing.T) {
	var source interfaces.AvailabilitySource = &mockAvailability{}

	var got bool
	cancel := source.OnAvailabilityChange(func(available bool) { got = available })
	defer cancel()

	if !got {
		t.Error("expected handler to observe availability")
	}
}

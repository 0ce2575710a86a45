package docstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sharing/pkg/interfaces"
	"sharing/pkg/types"
)

// conflictingCommitter fails every commit with ErrConflict
type conflictingCommitter struct {
	commits int
}

func (c *conflictingCommitter) GetVersioned(ctx context.Context, collection, id string) (*types.DocumentSnapshot, error) {
	return missingSnapshot(id), nil
}

func (c *conflictingCommitter) Commit(ctx context.Context, writes []types.Write) (int64, error) {
	c.commits++
	return 0, ErrConflict
}

func TestRunTransaction_RetriesAfterConcurrentWrite(t *testing.T) {
	b := NewMemoryBackend()
	defer b.Close()
	ctx := context.Background()

	_, err := b.Commit(ctx, []types.Write{{Collection: testCollection, ID: "A", Kind: types.WriteSet,
		Data: types.Document{"iframeUrl": nil, "comments": []interface{}{"kept"}}}})
	require.NoError(t, err)

	attempts := 0
	err = RunTransaction(ctx, b, func(ctx context.Context, tx interfaces.Transaction) error {
		attempts++
		snap, err := tx.Get(testCollection, "A")
		if err != nil {
			return err
		}
		require.True(t, snap.Exists)

		if attempts == 1 {
			// another writer lands between the read and the commit
			_, err := b.Commit(ctx, []types.Write{{Collection: testCollection, ID: "A", Kind: types.WriteUpdate,
				Updates: []types.FieldUpdate{types.ArrayUnion(types.Path("comments"), "concurrent")}}})
			require.NoError(t, err)
		}
		return tx.Update(testCollection, "A", types.SetField(types.Path("iframeUrl"), "https://x/y"))
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	doc, err := b.GetVersioned(ctx, testCollection, "A")
	require.NoError(t, err)
	assert.Equal(t, "https://x/y", doc.Data["iframeUrl"])
	assert.Equal(t, []interface{}{"kept", "concurrent"}, doc.Data["comments"])
}

func TestRunTransaction_GivesUpAfterMaxAttempts(t *testing.T) {
	c := &conflictingCommitter{}
	err := RunTransaction(context.Background(), c, func(ctx context.Context, tx interfaces.Transaction) error {
		if _, err := tx.Get(testCollection, "A"); err != nil {
			return err
		}
		return tx.Set(testCollection, "A", types.Document{})
	})
	assert.ErrorIs(t, err, ErrTooManyAttempts)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, MaxTransactionAttempts, c.commits)
}

func TestRunTransaction_FunctionErrorAborts(t *testing.T) {
	c := &conflictingCommitter{}
	boom := errors.New("boom")
	err := RunTransaction(context.Background(), c, func(ctx context.Context, tx interfaces.Transaction) error {
		_ = tx.Set(testCollection, "A", types.Document{})
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, c.commits, "nothing is committed")
}

func TestRunTransaction_ReadAfterWrite(t *testing.T) {
	b := NewMemoryBackend()
	defer b.Close()

	err := RunTransaction(context.Background(), b, func(ctx context.Context, tx interfaces.Transaction) error {
		require.NoError(t, tx.Set(testCollection, "A", types.Document{}))
		_, err := tx.Get(testCollection, "B")
		return err
	})
	assert.ErrorIs(t, err, ErrReadAfterWrite)
}

func TestRunTransaction_ReadOnlyCommitsNothing(t *testing.T) {
	c := &conflictingCommitter{}
	err := RunTransaction(context.Background(), c, func(ctx context.Context, tx interfaces.Transaction) error {
		_, err := tx.Get(testCollection, "A")
		return err
	})
	assert.NoError(t, err)
	assert.Zero(t, c.commits)
}

func TestRunTransaction_CreateRacesWithCreate(t *testing.T) {
	b := NewMemoryBackend()
	defer b.Close()
	ctx := context.Background()

	attempts := 0
	err := RunTransaction(ctx, b, func(ctx context.Context, tx interfaces.Transaction) error {
		attempts++
		snap, err := tx.Get(testCollection, "A")
		if err != nil {
			return err
		}
		if attempts == 1 {
			_, err := b.Commit(ctx, []types.Write{{Collection: testCollection, ID: "A", Kind: types.WriteSet, Data: types.Document{"by": "other"}}})
			require.NoError(t, err)
		}
		if snap.Exists {
			return tx.Update(testCollection, "A", types.SetField(types.Path("seen"), true))
		}
		return tx.Set(testCollection, "A", types.Document{"by": "me"})
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	doc, err := b.GetVersioned(ctx, testCollection, "A")
	require.NoError(t, err)
	assert.Equal(t, "other", doc.Data["by"], "the missing-document read became an absence precondition")
	assert.Equal(t, true, doc.Data["seen"])
}

package docstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang/glog"

	"sharing/pkg/interfaces"
	"sharing/pkg/types"
)

// MaxTransactionAttempts bounds optimistic retries of one transaction function
const MaxTransactionAttempts = 5

// Committer is the versioned read and conditional commit surface transactions run on
type Committer interface {
	// GetVersioned reads one document with its version; missing documents have version 0
	GetVersioned(ctx context.Context, collection, id string) (*types.DocumentSnapshot, error)

	// Commit applies all writes atomically and returns the commit sequence number
	// A write whose precondition does not match fails the commit with ErrConflict.
	Commit(ctx context.Context, writes []types.Write) (int64, error)
}

// RunTransaction runs fn optimistically against c
// Every document read inside fn becomes a version precondition on writes to it,
// so a concurrent writer makes the commit fail with ErrConflict and fn reruns.
// An error returned by fn aborts the transaction without retry.
func RunTransaction(ctx context.Context, c Committer, fn func(ctx context.Context, tx interfaces.Transaction) error) error {
	var lastErr error
	for attempt := 1; attempt <= MaxTransactionAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		tx := &transaction{ctx: ctx, committer: c, reads: make(map[string]int64)}
		if err := fn(ctx, tx); err != nil {
			return err
		}
		if len(tx.writes) == 0 {
			return nil
		}

		_, err := c.Commit(ctx, tx.writes)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrConflict) {
			return err
		}
		lastErr = err
		glog.V(2).Infof("[tx] attempt %d conflicted: %v", attempt, err)
	}
	return fmt.Errorf("%w: %w", ErrTooManyAttempts, lastErr)
}

type transaction struct {
	ctx       context.Context
	committer Committer
	reads     map[string]int64
	writes    []types.Write
}

func (t *transaction) Get(collection, id string) (*types.DocumentSnapshot, error) {
	if len(t.writes) > 0 {
		return nil, ErrReadAfterWrite
	}
	if err := ValidatePath(collection, id); err != nil {
		return nil, err
	}
	snap, err := t.committer.GetVersioned(t.ctx, collection, id)
	if err != nil {
		return nil, err
	}
	t.reads[docKey(collection, id)] = snap.Version
	return snap, nil
}

func (t *transaction) Set(collection, id string, data types.Document) error {
	return t.add(types.Write{Collection: collection, ID: id, Kind: types.WriteSet, Data: data})
}

func (t *transaction) Update(collection, id string, updates ...types.FieldUpdate) error {
	return t.add(types.Write{Collection: collection, ID: id, Kind: types.WriteUpdate, Updates: updates})
}

func (t *transaction) Delete(collection, id string) error {
	return t.add(types.Write{Collection: collection, ID: id, Kind: types.WriteDelete})
}

func (t *transaction) add(w types.Write) error {
	if err := ValidatePath(w.Collection, w.ID); err != nil {
		return err
	}
	if version, ok := t.reads[docKey(w.Collection, w.ID)]; ok {
		w.Precondition = &types.Precondition{Version: version}
	}
	t.writes = append(t.writes, w)
	return nil
}

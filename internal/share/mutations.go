package share

import (
	"context"
	"fmt"

	"sharing/internal/clock"
	"sharing/pkg/interfaces"
	"sharing/pkg/types"
)

// ToggleShare unshares a shared current user and shares an unshared one
// It reports whether the current user is now shared. An empty iframeURL is
// resolved through the session's reporting-URL provider.
func (e *Engine) ToggleShare(ctx context.Context, iframeURL string) (bool, error) {
	_, state, err := e.ready()
	if err != nil {
		return false, err
	}
	if state.CurrentUserIsShared {
		return false, e.Unshare(ctx)
	}
	return true, e.Share(ctx, iframeURL)
}

// Share exposes iframeURL as the current user's work
// Existing comments and read markers are kept.
func (e *Engine) Share(ctx context.Context, iframeURL string) error {
	s, _, err := e.ready()
	if err != nil {
		return err
	}
	collection, reportingURL, setShared := e.hooks()

	if iframeURL == "" && reportingURL != nil {
		if iframeURL, err = reportingURL(ctx); err != nil {
			return fmt.Errorf("%w: reporting URL unavailable: %w", ErrSharingRejected, err)
		}
	}
	if !types.IsValidIframeURL(iframeURL) {
		return types.ErrInvalidIframeURL
	}
	if s.Kind == types.SessionKindTestStub {
		return nil
	}

	if err := e.flipSharedFlag(ctx, setShared, true); err != nil {
		return err
	}

	err = e.store.RunTransaction(ctx, func(ctx context.Context, tx interfaces.Transaction) error {
		snap, err := tx.Get(collection, s.CurrentUserID)
		if err != nil {
			return err
		}
		if snap.Exists {
			return tx.Update(collection, s.CurrentUserID, types.SetField(types.Path(types.FieldIframeURL), iframeURL))
		}
		data, err := types.NewSharedDocument(s.CurrentUserID, &iframeURL).ToDocument()
		if err != nil {
			return err
		}
		return tx.Set(collection, s.CurrentUserID, data)
	})
	if err != nil {
		return remoteError("share", err)
	}
	return nil
}

// Unshare clears the current user's iframe URL; comments and read markers survive
func (e *Engine) Unshare(ctx context.Context) error {
	s, _, err := e.ready()
	if err != nil {
		return err
	}
	if s.Kind == types.SessionKindTestStub {
		return nil
	}
	collection, _, setShared := e.hooks()

	if err := e.flipSharedFlag(ctx, setShared, false); err != nil {
		return err
	}

	err = e.store.RunTransaction(ctx, func(ctx context.Context, tx interfaces.Transaction) error {
		snap, err := tx.Get(collection, s.CurrentUserID)
		if err != nil {
			return err
		}
		if !snap.Exists {
			return nil
		}
		return tx.Update(collection, s.CurrentUserID, types.SetField(types.Path(types.FieldIframeURL), nil))
	})
	if err != nil {
		return remoteError("unshare", err)
	}
	return nil
}

// PostComment appends a comment to recipient to the current user's document
func (e *Engine) PostComment(ctx context.Context, recipient, message string) error {
	s, _, err := e.ready()
	if err != nil {
		return err
	}
	comment := types.Comment{Recipient: recipient, Message: message, Time: clock.Millis(e.clock)}
	if err := comment.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidComment, err)
	}
	if s.Kind == types.SessionKindTestStub {
		return nil
	}
	collection, _, _ := e.hooks()

	err = e.store.RunTransaction(ctx, func(ctx context.Context, tx interfaces.Transaction) error {
		snap, err := tx.Get(collection, s.CurrentUserID)
		if err != nil {
			return err
		}
		if snap.Exists {
			return tx.Update(collection, s.CurrentUserID,
				types.ArrayUnion(types.Path(types.FieldComments), types.CommentValue(comment)))
		}
		doc := types.NewSharedDocument(s.CurrentUserID, nil)
		doc.Comments = append(doc.Comments, comment)
		data, err := doc.ToDocument()
		if err != nil {
			return err
		}
		return tx.Set(collection, s.CurrentUserID, data)
	})
	if err != nil {
		return remoteError("post comment", err)
	}
	return nil
}

// DeleteComment removes the exact comment from its sender's document
// A comment without a sender is taken to be the current user's.
func (e *Engine) DeleteComment(ctx context.Context, comment types.CommentReceived) error {
	s, _, err := e.ready()
	if err != nil {
		return err
	}
	sender := comment.Sender
	if sender == "" {
		sender = s.CurrentUserID
	}
	if !types.IsValidUserID(sender) {
		return fmt.Errorf("%w: %w", ErrInvalidComment, types.ErrInvalidUserID)
	}
	if s.Kind == types.SessionKindTestStub {
		return nil
	}
	collection, _, _ := e.hooks()

	err = e.store.RunTransaction(ctx, func(ctx context.Context, tx interfaces.Transaction) error {
		snap, err := tx.Get(collection, sender)
		if err != nil {
			return err
		}
		if !snap.Exists {
			return nil
		}
		return tx.Update(collection, sender,
			types.ArrayRemove(types.Path(types.FieldComments), types.CommentValue(comment.Comment())))
	})
	if err != nil {
		return remoteError("delete comment", err)
	}
	return nil
}

// MarkCommentsRead sets the current user's read marker for otherUserID to now
// Only that one key of lastCommentsSeen is written.
func (e *Engine) MarkCommentsRead(ctx context.Context, otherUserID string) error {
	s, _, err := e.ready()
	if err != nil {
		return err
	}
	if !types.IsValidUserID(otherUserID) {
		return types.ErrInvalidUserID
	}
	if s.Kind == types.SessionKindTestStub {
		return nil
	}
	collection, _, _ := e.hooks()
	now := clock.Millis(e.clock)

	err = e.store.RunTransaction(ctx, func(ctx context.Context, tx interfaces.Transaction) error {
		snap, err := tx.Get(collection, s.CurrentUserID)
		if err != nil {
			return err
		}
		if snap.Exists {
			return tx.Update(collection, s.CurrentUserID,
				types.SetField(types.Path(types.FieldLastCommentsSeen, otherUserID), now))
		}
		doc := types.NewSharedDocument(s.CurrentUserID, nil)
		doc.LastCommentsSeen[otherUserID] = now
		data, err := doc.ToDocument()
		if err != nil {
			return err
		}
		return tx.Set(collection, s.CurrentUserID, data)
	})
	if err != nil {
		return remoteError("mark comments read", err)
	}
	return nil
}

package share

import (
	"github.com/golang/glog"
	"golang.org/x/exp/slices"

	"sharing/pkg/types"
)

// Session is what derivation needs to know about the running session
type Session struct {
	Kind            types.SessionKind
	CurrentUserID   string
	UserMap         types.UserMap
	InteractiveName string
}

// EmptyState is the view published before any document is known
func EmptyState(s Session) *types.ClassShareState {
	return &types.ClassShareState{
		InteractiveName: s.InteractiveName,
		Type:            s.Kind,
		Students:        []types.StudentView{},
	}
}

// DocumentsFromSnapshot decodes every document of a collection snapshot
// Documents that do not decode as shared documents are skipped.
func DocumentsFromSnapshot(snap *types.CollectionSnapshot) []*types.SharedDocument {
	if snap == nil {
		return nil
	}
	docs := make([]*types.SharedDocument, 0, len(snap.Documents))
	for _, d := range snap.Documents {
		if !d.Exists {
			continue
		}
		doc, err := types.SharedDocumentFrom(d.ID, d.Data)
		if err != nil {
			glog.Warningf("[share] skipping document %s in %s: %v", d.ID, snap.Collection, err)
			continue
		}
		docs = append(docs, doc)
	}
	return docs
}

// Derive computes the view model for one set of documents
// It is pure: the same session and documents always give an equal state.
func Derive(s Session, docs []*types.SharedDocument) *types.ClassShareState {
	state := EmptyState(s)

	var seen map[string]int64
	index := make(map[string]int)
	for _, doc := range docs {
		if doc.UserID == s.CurrentUserID {
			state.CurrentUserIsShared = doc.IsShared()
			seen = doc.LastCommentsSeen
		}

		name := s.UserMap[doc.UserID]
		if name == "" {
			continue
		}
		if _, dup := index[doc.UserID]; dup {
			continue
		}
		index[doc.UserID] = len(state.Students)
		state.Students = append(state.Students, types.StudentView{
			UserID:           doc.UserID,
			DisplayName:      name,
			IframeURL:        copyString(doc.IframeURL),
			IsCurrentUser:    doc.UserID == s.CurrentUserID,
			CommentsReceived: []types.CommentReceived{},
			LastCommentSeen:  types.NoCommentSeen,
		})
	}

	// comments live in the sender's document
	for _, doc := range docs {
		for _, c := range doc.Comments {
			i, ok := index[c.Recipient]
			if !ok {
				continue
			}
			state.Students[i].CommentsReceived = append(state.Students[i].CommentsReceived, types.CommentReceived{
				Sender:    doc.UserID,
				Recipient: c.Recipient,
				Message:   c.Message,
				Time:      c.Time,
			})
		}
	}

	for i := range state.Students {
		slices.SortStableFunc(state.Students[i].CommentsReceived, func(a, b types.CommentReceived) int {
			return compareInt64(a.Time, b.Time)
		})
	}

	for other, ts := range seen {
		if i, ok := index[other]; ok {
			state.Students[i].LastCommentSeen = ts
		}
	}

	slices.SortStableFunc(state.Students, func(a, b types.StudentView) int {
		switch {
		case a.DisplayName < b.DisplayName:
			return -1
		case a.DisplayName > b.DisplayName:
			return 1
		}
		return 0
	})
	return state
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

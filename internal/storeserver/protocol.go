package storeserver

import (
	"sharing/pkg/types"
)

// Request operations
const (
	OpSignIn            = "signIn"
	OpSignInAnonymously = "signInAnonymously"
	OpGet               = "get"
	OpQuery             = "query"
	OpCommit            = "commit"
	OpWatch             = "watch"
	OpUnwatch           = "unwatch"
)

// Message types sent by the server
const (
	TypeResponse   = "response"
	TypeSnapshot   = "snapshot"
	TypeWatchError = "watchError"
)

// Request is one client call; ID echoes back on the matching response
// Watch ids are chosen by the client so events can arrive before the response.
type Request struct {
	ID         string        `json:"id"`
	Op         string        `json:"op"`
	Token      string        `json:"token,omitempty"`
	Collection string        `json:"collection,omitempty"`
	DocID      string        `json:"docId,omitempty"`
	Writes     []types.Write `json:"writes,omitempty"`
	WatchID    string        `json:"watchId,omitempty"`
}

// Message is every server-to-client frame: responses and pushed watch events
type Message struct {
	Type     string                    `json:"type"`
	ID       string                    `json:"id,omitempty"`
	WatchID  string                    `json:"watchId,omitempty"`
	UID      string                    `json:"uid,omitempty"`
	Seq      int64                     `json:"seq,omitempty"`
	Document *types.DocumentSnapshot   `json:"document,omitempty"`
	Snapshot *types.CollectionSnapshot `json:"snapshot,omitempty"`
	Error    *WireError                `json:"error,omitempty"`
}

// WireError carries a stable code plus a human readable message
type WireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Document is the generic field tree held by the remote document store
type Document map[string]interface{}

// FieldPath addresses a possibly nested field, one segment per map level
// Segments are kept separate so keys containing dots stay addressable.
type FieldPath []string

// Path builds a FieldPath from its segments
func Path(segments ...string) FieldPath {
	return FieldPath(segments)
}

func (p FieldPath) String() string {
	return strings.Join(p, ".")
}

// UpdateOp is the kind of change a FieldUpdate applies
type UpdateOp string

const (
	OpSet         UpdateOp = "set"
	OpDelete      UpdateOp = "delete"
	OpArrayUnion  UpdateOp = "arrayUnion"
	OpArrayRemove UpdateOp = "arrayRemove"
)

// FieldUpdate changes a single field without touching its siblings
type FieldUpdate struct {
	Path  FieldPath     `json:"path"`
	Op    UpdateOp      `json:"op"`
	Value interface{}   `json:"value,omitempty"`
	Items []interface{} `json:"items,omitempty"`
}

// SetField replaces the value at path
func SetField(path FieldPath, value interface{}) FieldUpdate {
	return FieldUpdate{Path: path, Op: OpSet, Value: value}
}

// DeleteField removes the value at path
func DeleteField(path FieldPath) FieldUpdate {
	return FieldUpdate{Path: path, Op: OpDelete}
}

// ArrayUnion appends each item not already present in the array at path
func ArrayUnion(path FieldPath, items ...interface{}) FieldUpdate {
	return FieldUpdate{Path: path, Op: OpArrayUnion, Items: items}
}

// ArrayRemove removes every element of the array at path equal to one of items
func ArrayRemove(path FieldPath, items ...interface{}) FieldUpdate {
	return FieldUpdate{Path: path, Op: OpArrayRemove, Items: items}
}

// DocumentSnapshot is a point-in-time read of a single document
// Version is 0 when the document does not exist.
type DocumentSnapshot struct {
	ID         string    `json:"id"`
	Data       Document  `json:"data,omitempty"`
	Version    int64     `json:"version"`
	Exists     bool      `json:"exists"`
	UpdateTime time.Time `json:"update_time,omitempty"`
}

// CollectionSnapshot is a full read of one collection
// Seq increases with every commit the store applies and orders snapshots.
type CollectionSnapshot struct {
	Collection string             `json:"collection"`
	Seq        int64              `json:"seq"`
	Documents  []DocumentSnapshot `json:"documents"`
}

// WriteKind is the kind of document mutation carried by a Write
type WriteKind string

const (
	WriteSet    WriteKind = "set"
	WriteUpdate WriteKind = "update"
	WriteDelete WriteKind = "delete"
)

// Precondition constrains a write to a known document version
// Version 0 requires the document to be absent.
type Precondition struct {
	Version int64 `json:"version"`
}

// Write is one mutation inside an atomic commit
type Write struct {
	Collection   string        `json:"collection"`
	ID           string        `json:"id"`
	Kind         WriteKind     `json:"kind"`
	Data         Document      `json:"data,omitempty"`
	Updates      []FieldUpdate `json:"updates,omitempty"`
	Precondition *Precondition `json:"precondition,omitempty"`
}

// ToDocument converts a shared document to the generic store form
func (d *SharedDocument) ToDocument() (Document, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal shared document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to convert shared document: %w", err)
	}
	return doc, nil
}

// SharedDocumentFrom decodes a generic store document
// Missing structures are filled in so callers never see nil maps or slices.
func SharedDocumentFrom(id string, doc Document) (*SharedDocument, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document %s: %w", id, err)
	}
	var shared SharedDocument
	if err := json.Unmarshal(raw, &shared); err != nil {
		return nil, fmt.Errorf("failed to decode shared document %s: %w", id, err)
	}
	if shared.UserID == "" {
		shared.UserID = id
	}
	if shared.Comments == nil {
		shared.Comments = []Comment{}
	}
	if shared.LastCommentsSeen == nil {
		shared.LastCommentsSeen = map[string]int64{}
	}
	return &shared, nil
}

// CommentValue returns the store form of a comment for array union/remove
func CommentValue(c Comment) map[string]interface{} {
	return map[string]interface{}{
		"recipient": c.Recipient,
		"message":   c.Message,
		"time":      c.Time,
	}
}

package docstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"sharing/pkg/types"
)

// Normalize returns a deep copy of doc in its canonical JSON form
// Numbers become float64 and nested structs become maps, so every backend and
// the wire protocol hold identical values for identical documents.
func Normalize(doc types.Document) (types.Document, error) {
	if doc == nil {
		return types.Document{}, nil
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	out := types.Document{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return out, nil
}

func normalizeValue(v interface{}) (interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode value: %w", err)
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode value: %w", err)
	}
	return out, nil
}

// canonical is the equality key for array union and removal
// encoding/json sorts map keys, so structurally equal values encode identically.
func canonical(v interface{}) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}

func equalValues(a, b interface{}) bool {
	ca, cb := canonical(a), canonical(b)
	return ca != nil && cb != nil && bytes.Equal(ca, cb)
}

// ValidatePath checks a collection path and document id
func ValidatePath(collection, id string) error {
	if !types.IsValidCollectionPath(collection) {
		return fmt.Errorf("%w: collection %q", ErrInvalidPath, collection)
	}
	if id == "" || strings.Contains(id, "/") {
		return fmt.Errorf("%w: document id %q", ErrInvalidPath, id)
	}
	return nil
}

func validateFieldPath(path types.FieldPath) error {
	if len(path) == 0 {
		return ErrInvalidFieldPath
	}
	for _, segment := range path {
		if segment == "" {
			return fmt.Errorf("%w: empty segment in %q", ErrInvalidFieldPath, path.String())
		}
	}
	return nil
}

// ApplyUpdates returns a copy of doc with every field update applied in order
// Sibling fields are never touched; intermediate maps are created as needed.
func ApplyUpdates(doc types.Document, updates []types.FieldUpdate) (types.Document, error) {
	out, err := Normalize(doc)
	if err != nil {
		return nil, err
	}
	for _, update := range updates {
		if err := applyUpdate(out, update); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func applyUpdate(doc types.Document, update types.FieldUpdate) error {
	if err := validateFieldPath(update.Path); err != nil {
		return err
	}

	switch update.Op {
	case types.OpSet:
		value, err := normalizeValue(update.Value)
		if err != nil {
			return err
		}
		setPath(doc, update.Path, value)
	case types.OpDelete:
		deletePath(doc, update.Path)
	case types.OpArrayUnion:
		items, err := normalizeItems(update.Items)
		if err != nil {
			return err
		}
		current := arrayAt(doc, update.Path)
		for _, item := range items {
			if !containsValue(current, item) {
				current = append(current, item)
			}
		}
		setPath(doc, update.Path, current)
	case types.OpArrayRemove:
		items, err := normalizeItems(update.Items)
		if err != nil {
			return err
		}
		current := arrayAt(doc, update.Path)
		kept := make([]interface{}, 0, len(current))
		for _, elem := range current {
			if !containsValue(items, elem) {
				kept = append(kept, elem)
			}
		}
		setPath(doc, update.Path, kept)
	default:
		return fmt.Errorf("%w: unknown update op %q", ErrInvalidFieldPath, update.Op)
	}
	return nil
}

func normalizeItems(items []interface{}) ([]interface{}, error) {
	out := make([]interface{}, 0, len(items))
	for _, item := range items {
		v, err := normalizeValue(item)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func containsValue(values []interface{}, v interface{}) bool {
	for _, existing := range values {
		if equalValues(existing, v) {
			return true
		}
	}
	return false
}

// arrayAt returns the array stored at path; any other value counts as empty
func arrayAt(doc types.Document, path types.FieldPath) []interface{} {
	v, ok := getPath(doc, path)
	if !ok {
		return []interface{}{}
	}
	arr, ok := v.([]interface{})
	if !ok {
		return []interface{}{}
	}
	out := make([]interface{}, len(arr))
	copy(out, arr)
	return out
}

func getPath(doc types.Document, path types.FieldPath) (interface{}, bool) {
	var current interface{} = map[string]interface{}(doc)
	for _, segment := range path {
		m, ok := asMap(current)
		if !ok {
			return nil, false
		}
		current, ok = m[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func setPath(doc types.Document, path types.FieldPath, value interface{}) {
	m := map[string]interface{}(doc)
	for _, segment := range path[:len(path)-1] {
		next, ok := asMap(m[segment])
		if !ok {
			next = map[string]interface{}{}
			m[segment] = next
		}
		m = next
	}
	m[path[len(path)-1]] = value
}

func deletePath(doc types.Document, path types.FieldPath) {
	m := map[string]interface{}(doc)
	for _, segment := range path[:len(path)-1] {
		next, ok := asMap(m[segment])
		if !ok {
			return
		}
		m = next
	}
	delete(m, path[len(path)-1])
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case types.Document:
		return m, true
	}
	return nil, false
}

func docKey(collection, id string) string {
	return collection + "/" + id
}

// stage applies writes in order and returns the resulting state of every touched document
// lookup reads the committed state; later writes see the staged result of earlier ones.
// Preconditions are checked against the state each write observes.
func stage(writes []types.Write, seq int64, now time.Time, lookup func(collection, id string) (*types.DocumentSnapshot, error)) ([]*stagedDocument, error) {
	staged := make(map[string]*stagedDocument)
	var order []*stagedDocument

	for _, w := range writes {
		if err := ValidatePath(w.Collection, w.ID); err != nil {
			return nil, err
		}

		key := docKey(w.Collection, w.ID)
		current, ok := staged[key]
		if !ok {
			snap, err := lookup(w.Collection, w.ID)
			if err != nil {
				return nil, err
			}
			current = &stagedDocument{collection: w.Collection, snapshot: *snap}
			staged[key] = current
			order = append(order, current)
		}

		if w.Precondition != nil && current.snapshot.Version != w.Precondition.Version {
			return nil, fmt.Errorf("%w: %s at version %d, expected %d",
				ErrConflict, key, current.snapshot.Version, w.Precondition.Version)
		}

		switch w.Kind {
		case types.WriteSet:
			data, err := Normalize(w.Data)
			if err != nil {
				return nil, err
			}
			current.snapshot.Data = data
			current.snapshot.Exists = true
		case types.WriteUpdate:
			if !current.snapshot.Exists {
				return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, key)
			}
			data, err := ApplyUpdates(current.snapshot.Data, w.Updates)
			if err != nil {
				return nil, err
			}
			current.snapshot.Data = data
		case types.WriteDelete:
			current.snapshot.Data = nil
			current.snapshot.Exists = false
		default:
			return nil, fmt.Errorf("%w: unknown write kind %q", ErrInvalidPath, w.Kind)
		}
	}

	for _, doc := range order {
		if doc.snapshot.Exists {
			doc.snapshot.Version = seq
			doc.snapshot.UpdateTime = now
		} else {
			doc.snapshot.Version = 0
			doc.snapshot.UpdateTime = time.Time{}
		}
	}
	return order, nil
}

type stagedDocument struct {
	collection string
	snapshot   types.DocumentSnapshot
}

func missingSnapshot(id string) *types.DocumentSnapshot {
	return &types.DocumentSnapshot{ID: id}
}

func affectedCollections(docs []*stagedDocument) []string {
	seen := make(map[string]bool)
	var out []string
	for _, doc := range docs {
		if !seen[doc.collection] {
			seen[doc.collection] = true
			out = append(out, doc.collection)
		}
	}
	return out
}

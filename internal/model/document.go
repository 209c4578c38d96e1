// Package model holds the storage-shape structs every kernel
// subsystem reads and writes: nouns, entities, events, relationship
// edges, hooks, subscriptions, integration hooks, dispatch-log
// entries, and tenant metadata (spec.md §3/§6).
package model

import "encoding/json"

// Document is the opaque, duck-typed payload shape entity bodies and
// event snapshots carry. List filter/sort does not walk this map:
// entitystore's list query pushes field lookup down into SQL over the
// stored JSON column, the "document-path extraction operator" design
// note in spec.md §9, rather than a fixed relational schema.
type Document map[string]any

// Clone returns a shallow copy; safe for independent before/after
// snapshots taken from the same underlying entity.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Get performs dot-free, single-level field lookup. Nested paths are
// not part of spec.md's filter/sort grammar (flat equality only).
func (d Document) Get(field string) (any, bool) {
	if d == nil {
		return nil, false
	}
	v, ok := d[field]
	return v, ok
}

// MarshalDocument renders a Document to raw JSON bytes suitable for a
// datatypes.JSON column. A nil Document marshals to a nil slice (SQL
// NULL), not the literal string "null".
func MarshalDocument(d Document) ([]byte, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal(d)
}

// UnmarshalDocument parses raw JSON column bytes back into a Document.
// Null-tolerant: an empty column yields a nil Document, not an error,
// satisfying spec.md §6's "old rows are read with null-tolerant
// parsing" forward-compatibility requirement.
func UnmarshalDocument(b []byte) (Document, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var d Document
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, err
	}
	return d, nil
}

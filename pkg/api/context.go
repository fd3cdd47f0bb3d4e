package api

import (
	"github.com/mitchellh/mapstructure"
)

// Context is the mutable key/value state threaded through a workflow run.
// It is both the universal input and the universal output channel between
// nodes: steps read their parameters from it and write their results back
// into it.
//
// The engine only mutates the context at node-completion points, which are
// serialized; steps themselves must treat the values they receive as
// read-only.
type Context map[string]any

// Clone returns a shallow copy of the context. Event records carry clones so
// observers never see later mutations.
func (c Context) Clone() Context {
	if c == nil {
		return Context{}
	}
	out := make(Context, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Merge copies every key from other into the context, overwriting existing
// keys of the same name.
func (c Context) Merge(other map[string]any) {
	for k, v := range other {
		c[k] = v
	}
}

// AsRecord converts a step result into a mergeable key/value record.
// Maps are returned as-is; structs (and pointers to structs) are decoded
// field-by-field via mapstructure. The second return value reports whether
// the value was a structured record at all.
func AsRecord(v any) (map[string]any, bool) {
	switch r := v.(type) {
	case nil:
		return nil, false
	case map[string]any:
		return r, true
	case Context:
		return r, true
	}

	var out map[string]any
	if err := mapstructure.Decode(v, &out); err != nil || out == nil {
		return nil, false
	}
	return out, true
}

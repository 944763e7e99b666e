package executor

import (
	"bytes"
	"encoding/json"
)

// Result is an insertion-ordered string map. The interpreter returns one per
// query object so result keys iterate, and marshal, in the order the named
// targets appeared in the query.
type Result struct {
	keys   []string
	values map[string]any
}

// NewResult returns an empty Result.
func NewResult() *Result {
	return &Result{values: make(map[string]any)}
}

// Set stores v under key, keeping the key's first insertion position.
func (r *Result) Set(key string, v any) {
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = v
}

// Get returns the value stored under key.
func (r *Result) Get(key string) (any, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (r *Result) Keys() []string { return r.keys }

// Len returns the number of entries.
func (r *Result) Len() int { return len(r.keys) }

// Map returns a plain map copy, losing key order.
func (r *Result) Map() map[string]any {
	out := make(map[string]any, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// MarshalJSON renders the entries in insertion order.
func (r *Result) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

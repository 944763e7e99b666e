package parser

import (
	"bytes"
	"encoding/json"
)

// Expression is the compiled, normalized form of a query. A single node
// describes one traversal step; a node with a non-nil Elements field is a
// sibling sequence evaluated against the same target (parallel when Parallel
// is set).
type Expression struct {
	// SourceKey is the attribute or method name read from the current
	// target. Empty means the current target is used as-is.
	SourceKey string

	// IsOptional makes a missing attribute or method yield undefined
	// instead of an error.
	IsOptional bool

	// Params holds the ordered method-call parameters. A nil slice means
	// the key is an attribute read; a non-nil (possibly empty) slice turns
	// the key into a method call.
	Params []any

	// Selector selects collection elements before further descent.
	Selector *CollectionSelector

	// SourceValue replaces the resolved target before descending.
	SourceValue    any
	HasSourceValue bool

	// Next is the single empty-target child ("=>" form); it replaces the
	// current output slot. Mutually exclusive with Nested.
	Next *Expression

	// Nested holds the named children in query insertion order.
	Nested []NestedExpression

	// Elements, when non-nil, makes this expression a sibling sequence.
	Elements []*Expression
	Parallel bool
}

// NestedExpression is one named child of an expression node.
type NestedExpression struct {
	TargetKey  string
	Expression *Expression
}

// CollectionSelector selects elements of a collection: a single index when
// Bounds is nil, otherwise a slice with 0, 1, or 2 bounds.
type CollectionSelector struct {
	Index  int
	Bounds []int
}

// IsRange reports whether the selector is the slice form.
func (s *CollectionSelector) IsRange() bool { return s.Bounds != nil }

// IsSequence reports whether e is a sibling sequence rather than a node.
func (e *Expression) IsSequence() bool { return e.Elements != nil }

// IsLeaf reports whether e has no children to descend into.
func (e *Expression) IsLeaf() bool { return e.Next == nil && len(e.Nested) == 0 }

// MarshalJSON renders the expression with nested children in insertion
// order, so compiled expressions have a stable textual form.
func (e *Expression) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := e.writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *Expression) writeJSON(buf *bytes.Buffer) error {
	if e.IsSequence() {
		if e.Parallel {
			buf.WriteString(`{"parallel":true,"expressions":`)
		}
		buf.WriteByte('[')
		for i, elem := range e.Elements {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := elem.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		if e.Parallel {
			buf.WriteByte('}')
		}
		return nil
	}

	buf.WriteByte('{')
	first := true
	field := func(name string, write func() error) error {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		key, _ := json.Marshal(name)
		buf.Write(key)
		buf.WriteByte(':')
		return write()
	}
	literal := func(name string, v any) error {
		return field(name, func() error {
			b, err := json.Marshal(v)
			if err != nil {
				return err
			}
			buf.Write(b)
			return nil
		})
	}

	if err := literal("sourceKey", e.SourceKey); err != nil {
		return err
	}
	if e.IsOptional {
		if err := literal("isOptional", true); err != nil {
			return err
		}
	}
	if e.Params != nil {
		if err := literal("params", e.Params); err != nil {
			return err
		}
	}
	if e.Selector != nil {
		var v any = e.Selector.Index
		if e.Selector.IsRange() {
			v = e.Selector.Bounds
		}
		if err := literal("useCollectionElements", v); err != nil {
			return err
		}
	}
	if e.HasSourceValue {
		if err := literal("sourceValue", e.SourceValue); err != nil {
			return err
		}
	}
	if e.Next != nil {
		if err := field("nextExpression", func() error { return e.Next.writeJSON(buf) }); err != nil {
			return err
		}
	}
	if len(e.Nested) > 0 {
		err := field("nestedExpressions", func() error {
			buf.WriteByte('{')
			for i, n := range e.Nested {
				if i > 0 {
					buf.WriteByte(',')
				}
				key, _ := json.Marshal(n.TargetKey)
				buf.Write(key)
				buf.WriteByte(':')
				if err := n.Expression.writeJSON(buf); err != nil {
					return err
				}
			}
			buf.WriteByte('}')
			return nil
		})
		if err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

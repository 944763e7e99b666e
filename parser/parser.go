// Package parser compiles JSON-shaped queries into executable expressions.
//
// A query is the literal true (a leaf), an object whose keys are user keys or
// the reserved markers "()", "[]", "<=", "=>", and "||", or an array of
// queries (a sibling sequence). Parsing is a pure structural recursion: it
// never touches the target graph.
package parser

import (
	"encoding/json"
	"math"
	"sort"
)

// Parse compiles query into an Expression. It fails with a *ParseError on
// any grammar violation. A nil opts uses NewOptions.
//
// Objects given as parser.Object keep their member order; a map[string]any
// is accepted too, with keys taken in sorted order so parsing stays
// deterministic.
func Parse(query any, opts *Options) (*Expression, error) {
	if opts == nil {
		opts = NewOptions()
	}
	return parseQuery(query, frame{}, opts)
}

// frame is the (sourceKey, isOptional) pair a child query inherits from the
// user key it was found under.
type frame struct {
	sourceKey  string
	isOptional bool
}

func parseQuery(query any, f frame, opts *Options) (*Expression, error) {
	switch q := query.(type) {
	case bool:
		if !q {
			return nil, parseErrorf("invalid query leaf: false")
		}
		return &Expression{SourceKey: f.sourceKey, IsOptional: f.isOptional}, nil
	case []any:
		return parseSequence(q, f, opts, false)
	case Object:
		if v, ok := q.Get(keyParallel); ok {
			if len(q) != 1 {
				return nil, parseErrorf("'%s' must be the only key of its object", keyParallel)
			}
			arr, ok := v.([]any)
			if !ok {
				return nil, parseErrorf("the value of '%s' must be an array", keyParallel)
			}
			return parseSequence(arr, f, opts, true)
		}
		return parseObject(q, f, opts)
	case map[string]any:
		return parseQuery(sortedObject(q), f, opts)
	default:
		return nil, parseErrorf("invalid query of type %T", query)
	}
}

func parseSequence(items []any, f frame, opts *Options, parallel bool) (*Expression, error) {
	elems := make([]*Expression, 0, len(items))
	for _, item := range items {
		e, err := parseQuery(item, f, opts)
		if err != nil {
			return nil, err
		}
		elems = append(elems, e)
	}
	return &Expression{Elements: elems, Parallel: parallel}, nil
}

func parseObject(obj Object, f frame, opts *Options) (*Expression, error) {
	expr := &Expression{SourceKey: f.sourceKey, IsOptional: f.isOptional}

	for _, m := range obj {
		switch m.Key {
		case keyParams:
			if expr.Params != nil {
				return nil, parseErrorf("duplicate '%s' key", keyParams)
			}
			params, ok := m.Value.([]any)
			if !ok {
				return nil, parseErrorf("the value of '%s' must be an array", keyParams)
			}
			expr.Params = plainValue(params).([]any)

		case keyCollection:
			if expr.Selector != nil {
				return nil, parseErrorf("duplicate '%s' key", keyCollection)
			}
			sel, err := parseCollectionSelector(m.Value)
			if err != nil {
				return nil, err
			}
			expr.Selector = sel

		case keySourceValue:
			if expr.HasSourceValue {
				return nil, parseErrorf("duplicate '%s' key", keySourceValue)
			}
			expr.SourceValue = plainValue(m.Value)
			expr.HasSourceValue = true

		case keyParallel:
			return nil, parseErrorf("'%s' must be the only key of its object", keyParallel)

		default:
			pk, err := parseKey(m.Key)
			if err != nil {
				return nil, err
			}
			if pk.sourceKey != "" && !opts.keepKey(pk.sourceKey) {
				continue
			}
			child, err := parseQuery(m.Value, frame{sourceKey: pk.sourceKey, isOptional: pk.isOptional}, opts)
			if err != nil {
				return nil, err
			}
			if pk.targetKey == "" {
				if expr.Next != nil {
					return nil, parseErrorf("multiple empty targets found in a query object")
				}
				if len(expr.Nested) > 0 {
					return nil, parseErrorf("empty and named targets cannot be mixed in a query object")
				}
				expr.Next = child
				continue
			}
			if expr.Next != nil {
				return nil, parseErrorf("empty and named targets cannot be mixed in a query object")
			}
			expr.setNested(pk.targetKey, child)
		}
	}
	return expr, nil
}

// setNested attaches child under targetKey. A repeated target keeps its
// original position but takes the last expression, matching object
// assignment semantics on the wire format.
func (e *Expression) setNested(targetKey string, child *Expression) {
	for i := range e.Nested {
		if e.Nested[i].TargetKey == targetKey {
			e.Nested[i].Expression = child
			return
		}
	}
	e.Nested = append(e.Nested, NestedExpression{TargetKey: targetKey, Expression: child})
}

func parseCollectionSelector(v any) (*CollectionSelector, error) {
	if n, ok := toInt(v); ok {
		return &CollectionSelector{Index: n}, nil
	}
	arr, ok := v.([]any)
	if !ok || len(arr) > 2 {
		return nil, parseErrorf("the value of '%s' must be a number or an array of 0, 1, or 2 numbers", keyCollection)
	}
	bounds := make([]int, len(arr))
	for i, b := range arr {
		n, ok := toInt(b)
		if !ok {
			return nil, parseErrorf("the value of '%s' must be a number or an array of 0, 1, or 2 numbers", keyCollection)
		}
		bounds[i] = n
	}
	return &CollectionSelector{Bounds: bounds}, nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n == math.Trunc(n) {
			return int(n), true
		}
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
	}
	return 0, false
}

// plainValue converts decoded Objects back into plain maps. Parameter and
// source values are data, not queries, so member order carries no meaning
// for them.
func plainValue(v any) any {
	switch t := v.(type) {
	case Object:
		m := make(map[string]any, len(t))
		for _, member := range t {
			m[member.Key] = plainValue(member.Value)
		}
		return m
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = plainValue(e)
		}
		return out
	default:
		return v
	}
}

func sortedObject(m map[string]any) Object {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	obj := make(Object, 0, len(m))
	for _, k := range keys {
		obj = append(obj, Member{Key: k, Value: m[k]})
	}
	return obj
}

// Package target provides string-keyed access to arbitrary Go values: maps,
// structs, methods, and func-valued attributes. It is the capability layer
// the interpreter uses to read attributes, invoke methods, and slice
// collections on a target graph.
package target

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

type undefinedValue struct{}

func (undefinedValue) String() string { return "undefined" }

// Undefined marks a missing attribute, method, or collection element. It is
// distinct from nil: a present nil value is null, a missing one is
// Undefined.
var Undefined any = undefinedValue{}

// IsUndefined reports whether v is the Undefined marker.
func IsUndefined(v any) bool {
	_, ok := v.(undefinedValue)
	return ok
}

var contextType = reflect.TypeOf((*context.Context)(nil)).Elem()

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Read looks up key on target. It understands maps with string-compatible
// keys, exported struct fields (by name, json tag, or case-insensitive
// fold), and methods (bound to the receiver). A missing key yields
// Undefined.
func Read(target any, key string) any {
	if target == nil {
		return Undefined
	}
	if m, ok := target.(map[string]any); ok {
		if v, ok := m[key]; ok {
			return v
		}
		return Undefined
	}

	rv := reflect.ValueOf(target)

	// Methods are looked up on the original value so pointer receivers
	// stay reachable.
	if mv := methodByName(rv, key); mv.IsValid() {
		return mv.Interface()
	}

	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return Undefined
		}
		rv = rv.Elem()
		if mv := methodByName(rv, key); mv.IsValid() {
			return mv.Interface()
		}
	}

	switch rv.Kind() {
	case reflect.Map:
		kt := rv.Type().Key()
		if kt.Kind() != reflect.String {
			return Undefined
		}
		kv := reflect.ValueOf(key).Convert(kt)
		v := rv.MapIndex(kv)
		if !v.IsValid() {
			return Undefined
		}
		return v.Interface()
	case reflect.Struct:
		if fv, ok := fieldByKey(rv, key); ok {
			return fv.Interface()
		}
		return Undefined
	default:
		return Undefined
	}
}

func methodByName(rv reflect.Value, key string) reflect.Value {
	if !rv.IsValid() {
		return reflect.Value{}
	}
	t := rv.Type()
	if m, ok := t.MethodByName(key); ok {
		return rv.Method(m.Index)
	}
	for i := range t.NumMethod() {
		if strings.EqualFold(t.Method(i).Name, key) {
			return rv.Method(i)
		}
	}
	return reflect.Value{}
}

func fieldByKey(rv reflect.Value, key string) (reflect.Value, bool) {
	t := rv.Type()
	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		if f.Name == key || jsonTagName(f) == key {
			return rv.Field(i), true
		}
	}
	for i := range t.NumField() {
		f := t.Field(i)
		if f.IsExported() && strings.EqualFold(f.Name, key) {
			return rv.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func jsonTagName(f reflect.StructField) string {
	tag, ok := f.Tag.Lookup("json")
	if !ok {
		return ""
	}
	name, _, _ := strings.Cut(tag, ",")
	return name
}

// IsCallable reports whether v can be invoked with Call.
func IsCallable(v any) bool {
	if v == nil {
		return false
	}
	return reflect.ValueOf(v).Kind() == reflect.Func
}

// Call invokes fn, a func value obtained from Read, with the given
// parameters. When the callee's first parameter is a context.Context, ctx is
// passed there. callCtx is appended as the trailing argument when the
// signature has room for it. Callees may return nothing, a single value, an
// error, or a (value, error) pair.
func Call(ctx context.Context, fn any, params []any, callCtx any) (any, error) {
	fv := reflect.ValueOf(fn)
	if fv.Kind() != reflect.Func {
		return nil, fmt.Errorf("value of type %T is not callable", fn)
	}
	t := fv.Type()

	var in []reflect.Value
	argPos := 0
	if t.NumIn() > 0 && t.In(0) == contextType {
		in = append(in, reflect.ValueOf(ctx))
		argPos = 1
	}

	args := params
	if !t.IsVariadic() && t.NumIn()-argPos == len(params)+1 {
		args = append(append([]any{}, params...), callCtx)
	}

	if t.IsVariadic() {
		if len(args) < t.NumIn()-argPos-1 {
			return nil, fmt.Errorf("wrong number of arguments: got %d, want at least %d", len(args), t.NumIn()-argPos-1)
		}
	} else if len(args) != t.NumIn()-argPos {
		return nil, fmt.Errorf("wrong number of arguments: got %d, want %d", len(args), t.NumIn()-argPos)
	}

	for i, arg := range args {
		var pt reflect.Type
		if t.IsVariadic() && argPos+i >= t.NumIn()-1 {
			pt = t.In(t.NumIn() - 1).Elem()
		} else {
			pt = t.In(argPos + i)
		}
		av, err := convertArg(arg, pt)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		in = append(in, av)
	}

	out := fv.Call(in)
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		if t.Out(0) == errorType {
			err, _ := out[0].Interface().(error)
			return nil, err
		}
		return out[0].Interface(), nil
	case 2:
		err, _ := out[1].Interface().(error)
		if err != nil {
			return nil, err
		}
		return out[0].Interface(), nil
	default:
		return nil, fmt.Errorf("unsupported return arity %d", len(out))
	}
}

func convertArg(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(t), nil
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}
	if n, ok := v.(json.Number); ok {
		switch t.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			i, err := n.Int64()
			if err != nil {
				return reflect.Value{}, err
			}
			return reflect.ValueOf(i).Convert(t), nil
		case reflect.Float32, reflect.Float64:
			f, err := n.Float64()
			if err != nil {
				return reflect.Value{}, err
			}
			return reflect.ValueOf(f).Convert(t), nil
		case reflect.String:
			return reflect.ValueOf(n.String()), nil
		case reflect.Interface:
			return rv, nil
		}
	}
	if rv.Type().ConvertibleTo(t) {
		return rv.Convert(t), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot use %T as %s", v, t)
}

// Elements converts a slice or array value into []any. The second return
// value is false when v is not a collection.
func Elements(v any) ([]any, bool) {
	if direct, ok := v.([]any); ok {
		return direct, true
	}
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range rv.Len() {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// Index selects items[i] with negative indexes rebased from the end.
// Out-of-range indexes yield Undefined.
func Index(items []any, i int) any {
	if i < 0 {
		i += len(items)
	}
	if i < 0 || i >= len(items) {
		return Undefined
	}
	return items[i]
}

// Slice applies end-exclusive slice semantics with 0, 1, or 2 bounds:
// negative bounds rebase from the end and both bounds clamp to the
// collection, so a reversed range is empty rather than an error.
func Slice(items []any, bounds []int) []any {
	lo, hi := 0, len(items)
	if len(bounds) > 0 {
		lo = clampBound(bounds[0], len(items))
	}
	if len(bounds) > 1 {
		hi = clampBound(bounds[1], len(items))
	}
	if lo > hi {
		return []any{}
	}
	return items[lo:hi]
}

func clampBound(b, length int) int {
	if b < 0 {
		b += length
	}
	if b < 0 {
		return 0
	}
	if b > length {
		return length
	}
	return b
}

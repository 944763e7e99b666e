package parser

import (
	"encoding"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
)

var (
	builtinOnce sync.Once
	builtinKeys map[string]struct{}
)

// builtinKeySet returns the process-wide set of ambient method names. Go has
// no universal prototype chain, so the set is the method names of the
// marshalling and formatting interfaces that arbitrary values commonly
// implement. Initialized on first use, never invalidated.
func builtinKeySet() map[string]struct{} {
	builtinOnce.Do(func() {
		builtinKeys = make(map[string]struct{})
		for _, t := range []reflect.Type{
			reflect.TypeOf((*fmt.Stringer)(nil)).Elem(),
			reflect.TypeOf((*fmt.GoStringer)(nil)).Elem(),
			reflect.TypeOf((*fmt.Formatter)(nil)).Elem(),
			reflect.TypeOf((*error)(nil)).Elem(),
			reflect.TypeOf((*json.Marshaler)(nil)).Elem(),
			reflect.TypeOf((*json.Unmarshaler)(nil)).Elem(),
			reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem(),
			reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem(),
		} {
			for i := range t.NumMethod() {
				builtinKeys[t.Method(i).Name] = struct{}{}
			}
		}
	})
	return builtinKeys
}

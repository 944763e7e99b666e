package executor

import "context"

// Operation identifies what the authorizer is asked to permit.
type Operation string

const (
	// OperationGet is an attribute read.
	OperationGet Operation = "get"
	// OperationCall is a method invocation.
	OperationCall Operation = "call"
)

// Authorizer decides whether key may be read (OperationGet) or invoked
// (OperationCall, with the call parameters). It returns a bool, or a
// *asyncval.Deferred resolving to one. Anything but true denies.
type Authorizer func(ctx context.Context, key string, op Operation, params []any) any

// ErrorHandler turns a recoverable evaluation error into a replacement
// value, which takes the failing expression node's output slot. Returning an
// error rethrows. Authorization denials never reach the handler.
type ErrorHandler func(ctx context.Context, err error) (any, error)

// Options control expression evaluation.
type Options struct {
	// Context is appended as the trailing argument to every method call
	// whose signature has room for it.
	Context any

	// Authorizer is consulted before every attribute read and method
	// invocation. Nil allows everything.
	Authorizer Authorizer

	// ErrorHandler recovers errors at the innermost expression node
	// being evaluated. Nil propagates errors unchanged.
	ErrorHandler ErrorHandler
}

type breakValue struct{ value any }

// Break wraps a replacement value returned by an ErrorHandler so that,
// inside a collection-range evaluation, the remaining elements are skipped
// and the wrapped value takes the failing element's slot.
func Break(v any) any { return breakValue{value: v} }

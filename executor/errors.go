package executor

import (
	"fmt"

	"github.com/containerd/errdefs"
)

// QueryOnUndefinedError reports an attempted descent through an undefined
// target without the '?' marker. It wraps errdefs.ErrNotFound.
type QueryOnUndefinedError struct {
	Key string
}

func (e *QueryOnUndefinedError) Error() string {
	return fmt.Sprintf("cannot execute a query on undefined (key: %q)", e.Key)
}

func (e *QueryOnUndefinedError) Unwrap() error { return errdefs.ErrNotFound }

// MethodNotFoundError reports a '()' invocation of a missing method without
// the '?' marker. It wraps errdefs.ErrNotFound.
type MethodNotFoundError struct {
	Key string
}

func (e *MethodNotFoundError) Error() string {
	return fmt.Sprintf("couldn't find a method matching the key %q", e.Key)
}

func (e *MethodNotFoundError) Unwrap() error { return errdefs.ErrNotFound }

// AuthorizationDeniedError reports an authorizer denial. It wraps
// errdefs.ErrPermissionDenied and is never routed through the error
// handler: denial is a security boundary, not a recoverable condition.
type AuthorizationDeniedError struct {
	Key       string
	Operation Operation
}

func (e *AuthorizationDeniedError) Error() string {
	return fmt.Sprintf("authorization denied (key: %q, operation: %q)", e.Key, e.Operation)
}

func (e *AuthorizationDeniedError) Unwrap() error { return errdefs.ErrPermissionDenied }

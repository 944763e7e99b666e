package parser

import (
	"fmt"

	"github.com/containerd/errdefs"
)

// ParseError reports a query grammar violation. It wraps
// errdefs.ErrInvalidArgument so callers can classify it with errors.Is.
type ParseError struct {
	Message string
}

func (e *ParseError) Error() string { return e.Message }

func (e *ParseError) Unwrap() error { return errdefs.ErrInvalidArgument }

func parseErrorf(format string, args ...any) *ParseError {
	return &ParseError{Message: fmt.Sprintf(format, args...)}
}

// Package deepr is a declarative query runtime for in-memory object graphs.
// A JSON-shaped query names the attributes to read and the methods to invoke
// on a root value; the runtime walks the graph and returns a result whose
// shape mirrors the query.
//
// The two core entry points are ParseQuery, which compiles the surface
// syntax into an execution tree, and InvokeExpression, which evaluates that
// tree against a target. InvokeQuery composes the two.
package deepr

import (
	"context"

	"github.com/AnishGupta/deepr/executor"
	"github.com/AnishGupta/deepr/parser"
)

// Options bundles parse-time and evaluation-time options for InvokeQuery.
type Options struct {
	Parser   *parser.Options
	Executor *executor.Options
}

// ParseQuery compiles a query into an expression. See parser.Parse.
func ParseQuery(query any, opts *parser.Options) (*parser.Expression, error) {
	return parser.Parse(query, opts)
}

// InvokeExpression evaluates a compiled expression against tgt and awaits
// the result. See executor.Invoke.
func InvokeExpression(ctx context.Context, tgt any, expr *parser.Expression, opts *executor.Options) (any, error) {
	return executor.Invoke(ctx, tgt, expr, opts)
}

// InvokeQuery parses query and evaluates it against tgt in one step.
func InvokeQuery(ctx context.Context, tgt any, query any, opts *Options) (any, error) {
	if opts == nil {
		opts = &Options{}
	}
	expr, err := parser.Parse(query, opts.Parser)
	if err != nil {
		return nil, err
	}
	return executor.Invoke(ctx, tgt, expr, opts.Executor)
}

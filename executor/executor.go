// Package executor evaluates compiled expressions against an in-memory
// object graph. Evaluation is possibly-async: a target attribute or method
// may produce a *asyncval.Deferred, and the interpreter composes both kinds
// uniformly, staying fully synchronous when the target does.
package executor

import (
	"context"
	"fmt"

	"github.com/containerd/errdefs"

	"github.com/AnishGupta/deepr/asyncval"
	"github.com/AnishGupta/deepr/internal/target"
	"github.com/AnishGupta/deepr/parser"
)

// Executor evaluates expressions with a fixed set of options.
type Executor struct {
	opts Options
}

// New creates an Executor. A nil opts allows everything and recovers
// nothing.
func New(opts *Options) *Executor {
	if opts == nil {
		opts = &Options{}
	}
	return &Executor{opts: *opts}
}

// Invoke evaluates expr against tgt and awaits the result. An undefined
// top-level result comes back as nil.
func (x *Executor) Invoke(ctx context.Context, tgt any, expr *parser.Expression) (any, error) {
	v, err := x.Start(ctx, tgt, expr)
	if err != nil {
		return nil, err
	}
	v, err = asyncval.Await(ctx, v)
	if err != nil {
		return nil, err
	}
	if target.IsUndefined(v) {
		return nil, nil
	}
	return v, nil
}

// Start evaluates expr without awaiting: the result is either a plain value
// or a *asyncval.Deferred when the target produced asynchronous work.
func (x *Executor) Start(ctx context.Context, tgt any, expr *parser.Expression) (any, error) {
	s := &state{ctx: ctx, opts: &x.opts}
	return s.invoke(tgt, expr)
}

// Invoke evaluates expr against tgt with the given options and awaits the
// result.
func Invoke(ctx context.Context, tgt any, expr *parser.Expression, opts *Options) (any, error) {
	return New(opts).Invoke(ctx, tgt, expr)
}

// state carries the evaluation context through one Invoke call.
type state struct {
	ctx  context.Context
	opts *Options
}

func (s *state) invoke(tgt any, e *parser.Expression) (any, error) {
	if e.IsSequence() {
		return s.evalSequence(tgt, e)
	}
	v, err := s.evalNode(tgt, e)
	return s.recover(v, err)
}

// evalNode resolves the node's source against tgt, then applies the
// remaining evaluation steps to the resolved value.
func (s *state) evalNode(tgt any, e *parser.Expression) (any, error) {
	resolved, err := s.resolveSource(tgt, e)
	if err != nil {
		return nil, err
	}
	return asyncval.Map(s.ctx, resolved, func(v any) (any, error) {
		return s.evalResolved(v, e)
	})
}

// resolveSource performs the attribute read or method call named by the
// node's source key. An empty source key leaves the target untouched.
func (s *state) resolveSource(tgt any, e *parser.Expression) (any, error) {
	if e.SourceKey == "" {
		return tgt, nil
	}

	v := target.Read(tgt, e.SourceKey)

	if e.Params == nil {
		return s.authorized(e.SourceKey, OperationGet, nil, func() (any, error) {
			return v, nil
		})
	}

	if target.IsUndefined(v) {
		if e.IsOptional {
			return target.Undefined, nil
		}
		return nil, &MethodNotFoundError{Key: e.SourceKey}
	}
	if !target.IsCallable(v) {
		return nil, &MethodNotFoundError{Key: e.SourceKey}
	}
	return s.authorized(e.SourceKey, OperationCall, e.Params, func() (any, error) {
		return target.Call(s.ctx, v, e.Params, s.opts.Context)
	})
}

// authorized consults the authorizer, then runs the guarded operation. The
// authorizer's decision may itself be deferred.
func (s *state) authorized(key string, op Operation, params []any, then func() (any, error)) (any, error) {
	if s.opts.Authorizer == nil {
		return then()
	}
	decision := s.opts.Authorizer(s.ctx, key, op, params)
	return asyncval.Map(s.ctx, decision, func(d any) (any, error) {
		if allowed, ok := d.(bool); !ok || !allowed {
			return nil, &AuthorizationDeniedError{Key: key, Operation: op}
		}
		return then()
	})
}

// evalResolved applies source override, collection selection, and descent to
// the awaited source value.
func (s *state) evalResolved(v any, e *parser.Expression) (any, error) {
	if e.HasSourceValue {
		// The source read, and its authorization check, already
		// happened; the resolved value is discarded here.
		v = e.SourceValue
	}

	if e.Selector == nil {
		return s.evalRemainder(v, e)
	}

	if isMissing(v) {
		if e.IsOptional {
			return target.Undefined, nil
		}
		return nil, &QueryOnUndefinedError{Key: e.SourceKey}
	}
	items, ok := target.Elements(v)
	if !ok {
		return nil, fmt.Errorf("cannot select collection elements from a value of type %T (key: %q)", v, e.SourceKey)
	}

	if !e.Selector.IsRange() {
		elem := target.Index(items, e.Selector.Index)
		return asyncval.Map(s.ctx, elem, func(ev any) (any, error) {
			return s.evalRemainder(ev, e)
		})
	}
	return s.mapElements(target.Slice(items, e.Selector.Bounds), e)
}

// evalRemainder evaluates the node's children against v. A leaf returns v
// unchanged; descent through a missing value applies the optional rule.
func (s *state) evalRemainder(v any, e *parser.Expression) (any, error) {
	if e.IsLeaf() {
		return v, nil
	}
	if isMissing(v) {
		if e.IsOptional {
			return target.Undefined, nil
		}
		return nil, &QueryOnUndefinedError{Key: e.SourceKey}
	}
	if e.Next != nil {
		return s.invoke(v, e.Next)
	}
	return s.evalNested(v, e.Nested)
}

// evalNested evaluates the named children in insertion order and merges
// their results into a Result with the same key order. Children producing
// deferred work are all started before any of them is awaited. Undefined
// child results are omitted.
func (s *state) evalNested(v any, nested []parser.NestedExpression) (any, error) {
	values := make([]any, len(nested))
	async := false
	for i, n := range nested {
		cv, err := s.invoke(v, n.Expression)
		if err != nil {
			return nil, err
		}
		values[i] = cv
		if asyncval.IsDeferred(cv) {
			async = true
		}
	}

	build := func(resolved []any) (any, error) {
		res := NewResult()
		for i, n := range nested {
			if target.IsUndefined(resolved[i]) {
				continue
			}
			res.Set(n.TargetKey, resolved[i])
		}
		return res, nil
	}

	if !async {
		return build(values)
	}
	return asyncval.Go(func() (any, error) {
		resolved := make([]any, len(values))
		for i, cv := range values {
			rv, err := asyncval.Await(s.ctx, cv)
			if err != nil {
				return nil, err
			}
			resolved[i] = rv
		}
		return build(resolved)
	}), nil
}

// mapElements evaluates the node's children against each selected element in
// order, one element at a time: element k+1 does not start until element k
// has fully resolved. A Break value from the error handler takes the failing
// element's slot and skips the rest.
func (s *state) mapElements(items []any, e *parser.Expression) (any, error) {
	results := make([]any, 0, len(items))
	for idx := 0; idx < len(items); idx++ {
		ev, err := s.evalElement(items[idx], e)
		if err != nil {
			return nil, err
		}
		if d, ok := ev.(*asyncval.Deferred); ok {
			rest := items[idx+1:]
			return asyncval.Go(func() (any, error) {
				rv, err := d.Wait(s.ctx)
				if err != nil {
					return nil, err
				}
				done, stop := appendElement(&results, rv)
				if stop {
					return done, nil
				}
				for _, item := range rest {
					ev, err := s.evalElement(item, e)
					if err != nil {
						return nil, err
					}
					rv, err := asyncval.Await(s.ctx, ev)
					if err != nil {
						return nil, err
					}
					done, stop := appendElement(&results, rv)
					if stop {
						return done, nil
					}
				}
				return results, nil
			}), nil
		}
		if done, stop := appendElement(&results, ev); stop {
			return done, nil
		}
	}
	return results, nil
}

// appendElement adds one element result, unwrapping a Break sentinel. It
// reports the completed slice and whether mapping should stop.
func appendElement(results *[]any, rv any) ([]any, bool) {
	if bv, ok := rv.(breakValue); ok {
		*results = append(*results, bv.value)
		return *results, true
	}
	if target.IsUndefined(rv) {
		rv = nil
	}
	*results = append(*results, rv)
	return nil, false
}

// evalElement evaluates the node's children against one collection element,
// which may itself be deferred, with error recovery attached.
func (s *state) evalElement(item any, e *parser.Expression) (any, error) {
	v, err := asyncval.Map(s.ctx, item, func(iv any) (any, error) {
		return s.evalRemainder(iv, e)
	})
	return s.recover(v, err)
}

// evalSequence evaluates sibling expressions against the same target. A
// parallel sequence starts every element before awaiting any of them; a
// sequential one observes each element's completion before starting the
// next. Result order is positional in both cases.
func (s *state) evalSequence(tgt any, e *parser.Expression) (any, error) {
	if e.Parallel {
		vs := make([]any, len(e.Elements))
		for i, child := range e.Elements {
			v, err := s.invoke(tgt, child)
			if err != nil {
				return nil, err
			}
			vs[i] = v
		}
		combined := asyncval.All(s.ctx, vs)
		return asyncval.Map(s.ctx, combined, func(rv any) (any, error) {
			return scrubSequence(rv.([]any)), nil
		})
	}

	results := make([]any, 0, len(e.Elements))
	for idx := 0; idx < len(e.Elements); idx++ {
		v, err := s.invoke(tgt, e.Elements[idx])
		if err != nil {
			return nil, err
		}
		if d, ok := v.(*asyncval.Deferred); ok {
			rest := e.Elements[idx+1:]
			return asyncval.Go(func() (any, error) {
				rv, err := d.Wait(s.ctx)
				if err != nil {
					return nil, err
				}
				results = append(results, scrubValue(rv))
				for _, child := range rest {
					v, err := s.invoke(tgt, child)
					if err != nil {
						return nil, err
					}
					rv, err := asyncval.Await(s.ctx, v)
					if err != nil {
						return nil, err
					}
					results = append(results, scrubValue(rv))
				}
				return results, nil
			}), nil
		}
		results = append(results, scrubValue(v))
	}
	return results, nil
}

func scrubValue(v any) any {
	if target.IsUndefined(v) {
		return nil
	}
	return v
}

func scrubSequence(vs []any) []any {
	for i, v := range vs {
		vs[i] = scrubValue(v)
	}
	return vs
}

// recover routes a node-level failure through the configured error handler.
// It applies to both eager errors and failures inside deferred work, so the
// handler always fires at the innermost failing node. Authorization denials
// pass through untouched.
func (s *state) recover(v any, err error) (any, error) {
	h := s.opts.ErrorHandler
	if h == nil {
		return v, err
	}
	if err != nil {
		if errdefs.IsPermissionDenied(err) {
			return nil, err
		}
		return h(s.ctx, err)
	}
	d, ok := v.(*asyncval.Deferred)
	if !ok {
		return v, nil
	}
	return asyncval.Go(func() (any, error) {
		rv, err := d.Wait(s.ctx)
		if err != nil {
			if errdefs.IsPermissionDenied(err) {
				return nil, err
			}
			return h(s.ctx, err)
		}
		return rv, nil
	}), nil
}

// isMissing reports whether v cannot be descended into: the Undefined
// marker or nil.
func isMissing(v any) bool {
	return v == nil || target.IsUndefined(v)
}

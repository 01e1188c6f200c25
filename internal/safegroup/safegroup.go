// Package safegroup wraps errgroup so panics in worker goroutines surface as
// errors carrying the worker's own stack.
package safegroup

import (
	"context"
	"fmt"
	"runtime/debug"

	"golang.org/x/sync/errgroup"
)

// Group is an [errgroup.Group] that converts panics into PanicError. The stock
// group would report the stack of the Wait call instead.
type Group struct {
	*errgroup.Group
}

func WithContext(ctx context.Context) (*Group, context.Context) {
	group, ctx := errgroup.WithContext(ctx)
	return &Group{Group: group}, ctx
}

type PanicError struct {
	recovered any
	stack     string
}

func (e PanicError) Error() string {
	return fmt.Sprintf("panic: %v\n%s", e.recovered, e.stack)
}

func (e PanicError) Unwrap() error {
	if err, ok := e.recovered.(error); ok {
		return err
	}
	return nil
}

func (e PanicError) Recovered() any {
	return e.recovered
}

func (e PanicError) Stack() string {
	return e.stack
}

func (g *Group) Go(f func() error) {
	g.Group.Go(func() error {
		return guard(f)
	})
}

func guard(f func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = PanicError{recovered: r, stack: string(debug.Stack())}
		}
	}()
	return f()
}

// Result pairs the output of one Map item with its error.
type Result[R any] struct {
	Value R
	Err   error
}

// Map runs fn over items with at most limit in flight and returns one result
// per item in input order. A failing item does not stop the others; only
// cancellation of ctx does.
func Map[T, R any](ctx context.Context, limit int, items []T, fn func(context.Context, T) (R, error)) []Result[R] {
	results := make([]Result[R], len(items))
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, item := range items {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			results[i].Err = guard(func() error {
				v, err := fn(ctx, item)
				results[i].Value = v
				return err
			})
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Package item provides item processors that are not tied to a domain.
package item

import (
	"context"

	port "github.com/datasus/sihrd/pkg/batch/core/application/port"
)

// PassThroughItemProcessor returns every item unchanged. It backs copy steps,
// where rows move from a source into a table without a transform.
type PassThroughItemProcessor[T any] struct{}

// NewPassThroughItemProcessor creates a new instance of [PassThroughItemProcessor].
func NewPassThroughItemProcessor[T any]() port.ItemProcessor[T, T] {
	return PassThroughItemProcessor[T]{}
}

// Process returns the input item as is.
func (PassThroughItemProcessor[T]) Process(ctx context.Context, item T) (T, error) {
	return item, nil
}

// FuncItemProcessor adapts a plain function to [port.ItemProcessor].
type FuncItemProcessor[I, O any] func(ctx context.Context, item I) (O, error)

// Process calls f.
func (f FuncItemProcessor[I, O]) Process(ctx context.Context, item I) (O, error) {
	return f(ctx, item)
}

var (
	_ port.ItemProcessor[any, any] = PassThroughItemProcessor[any]{}
	_ port.ItemProcessor[any, any] = FuncItemProcessor[any, any](nil)
)

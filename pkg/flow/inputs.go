package flow

import (
	"context"
	"iter"
)

// FromChan adapts ch to a sequence that ends when ch is closed or ctx is done.
func FromChan[T any](ctx context.Context, ch <-chan T) iter.Seq[T] {
	return func(yield func(T) bool) {
		for {
			select {
			case v, ok := <-ch:
				if !ok || !yield(v) {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}
}

// ToChan sends values on the returned channel, closing it once every value
// is sent or ctx is done.
func ToChan[T any](ctx context.Context, values ...T) <-chan T {
	in := make(chan T)

	go func() {
		defer close(in)

		for _, v := range values {
			select {
			case in <- v:
			case <-ctx.Done():
				return
			}
		}
	}()

	return in
}

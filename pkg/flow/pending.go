package flow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ib-77/flowline/pkg/flow/block"
)

// pendingValue is implemented by every *Pending[T].
type pendingValue interface {
	pending()
}

// Pending is a value that becomes available later.
type Pending[T any] struct {
	id        uuid.UUID
	createdAt time.Time
	done      chan struct{}
	value     T
	err       error
}

func newPending[T any]() *Pending[T] {
	return &Pending[T]{
		id:        uuid.New(),
		createdAt: time.Now().UTC(),
		done:      make(chan struct{}),
	}
}

// Go runs fn on its own goroutine and returns its pending result. A panic in
// fn resolves the value with an error wrapping block.ErrPanic.
func Go[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) *Pending[T] {
	p := newPending[T]()
	go func() {
		defer close(p.done)
		defer func() {
			if r := recover(); r != nil {
				p.err = fmt.Errorf("%w: pending %s: %v", block.ErrPanic, p.id, r)
			}
		}()
		p.value, p.err = fn(ctx)
	}()
	return p
}

// Resolved returns a pending value that is already available.
func Resolved[T any](v T) *Pending[T] {
	p := newPending[T]()
	p.value = v
	close(p.done)
	return p
}

// Failed returns a pending value that resolves with err.
func Failed[T any](err error) *Pending[T] {
	p := newPending[T]()
	p.err = err
	close(p.done)
	return p
}

// Await blocks until the value is available or ctx is done.
func (p *Pending[T]) Await(ctx context.Context) (T, error) {
	var zero T
	if p == nil {
		return zero, fmt.Errorf("%w: awaiting a nil pending value", ErrInvalidState)
	}

	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Done is closed once the value is available.
func (p *Pending[T]) Done() <-chan struct{} {
	return p.done
}

func (p *Pending[T]) ID() uuid.UUID {
	return p.id
}

func (p *Pending[T]) CreatedAt() time.Time {
	return p.createdAt
}

func (p *Pending[T]) pending() {}

// isPending reports whether T is a pending value type.
func isPending[T any]() bool {
	var zero T
	_, ok := any(zero).(pendingValue)
	return ok
}

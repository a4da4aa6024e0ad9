package block

import "context"

var (
	_ Target[string] = (*Transform[string, int])(nil)
	_ Source[int]    = (*Transform[string, int])(nil)
	_ Target[string] = (*Sink[string])(nil)
	_ Target[int]    = (*Broadcast[int])(nil)
	_ Source[int]    = (*Broadcast[int])(nil)
)

// Transform maps every input to zero, one or many outputs.
type Transform[In, Out any] struct {
	*engine[In]
	out *router[Out]
}

// NewTransform creates a block that applies fn to every input and routes
// the result to its links.
func NewTransform[In, Out any](fn func(ctx context.Context, in In) (Out, error), opts Options) *Transform[In, Out] {
	t := &Transform[In, Out]{}
	t.engine = newEngine(KindTransform, opts, func(ctx context.Context, item In) error {
		out, err := fn(ctx, item)
		if err != nil {
			return err
		}
		return t.out.deliver(ctx, out)
	})
	t.out = newRouter[Out](t.name, t.log)
	t.onFinish = t.out.finish
	return t
}

// NewMany creates a block whose fn returns a slice; every element is routed
// on its own, in slice order.
func NewMany[In, Out any](fn func(ctx context.Context, in In) ([]Out, error), opts Options) *Transform[In, Out] {
	t := &Transform[In, Out]{}
	t.engine = newEngine(KindMany, opts, func(ctx context.Context, item In) error {
		outs, err := fn(ctx, item)
		if err != nil {
			return err
		}
		for _, out := range outs {
			if err := t.out.deliver(ctx, out); err != nil {
				return err
			}
		}
		return nil
	})
	t.out = newRouter[Out](t.name, t.log)
	t.onFinish = t.out.finish
	return t
}

func (t *Transform[In, Out]) LinkTo(target Target[Out], opts LinkOptions, predicate func(Out) bool) error {
	return t.out.add(target, opts, predicate)
}

func (t *Transform[In, Out]) SetUnmatched(policy UnmatchedPolicy) {
	t.out.setUnmatched(policy)
}

// Sink consumes inputs.
type Sink[In any] struct {
	*engine[In]
}

func NewSink[In any](fn func(ctx context.Context, in In) error, opts Options) *Sink[In] {
	return &Sink[In]{engine: newEngine(KindSink, opts, fn)}
}

// Broadcast hands every input to every link. Links carry no predicate
// semantics: a predicate given to LinkTo is ignored.
type Broadcast[T any] struct {
	*engine[T]
	out *router[T]
}

// NewBroadcast creates a broadcast block. A non-nil clone is applied once per
// delivery so branches never share a mutable value.
func NewBroadcast[T any](clone func(T) T, opts Options) *Broadcast[T] {
	b := &Broadcast[T]{}
	b.engine = newEngine(KindBroadcast, opts, func(ctx context.Context, item T) error {
		return b.out.deliver(ctx, item)
	})
	b.out = newRouter[T](b.name, b.log)
	b.out.broadcast = true
	b.out.clone = clone
	b.onFinish = b.out.finish
	return b
}

func (b *Broadcast[T]) LinkTo(target Target[T], opts LinkOptions, _ func(T) bool) error {
	return b.out.add(target, opts, nil)
}

// SetUnmatched is a no-op: broadcast delivery never leaves an item unmatched.
func (b *Broadcast[T]) SetUnmatched(UnmatchedPolicy) {}

package flow

import (
	"context"
	"fmt"
	"reflect"

	"github.com/ib-77/flowline/pkg/flow/block"
)

// Cursor points at the last stage of a pipeline under construction. Out is
// the value type the next stage receives. A cursor goes stale as soon as
// another stage is added after it.
type Cursor[Out any] struct {
	g     *Graph
	stage *Stage
	// exactly one of src and pending is set, depending on whether the stage
	// is async
	src     block.Source[Out]
	pending block.Source[*Pending[Out]]
}

// Stage returns the stage the cursor points at.
func (c *Cursor[Out]) Stage() *Stage {
	return c.stage
}

func (c *Cursor[Out]) live() error {
	if c == nil || c.g == nil || c.stage == nil {
		return fmt.Errorf("%w: nil cursor", ErrArgument)
	}
	if c.g.state != StateProgress {
		return fmt.Errorf("%w: pipeline %q is %s, no stage can follow %q", ErrInvalidState, c.g.id, c.g.state, c.stage.Name())
	}
	if last := c.g.Last(); last != c.stage {
		return fmt.Errorf("%w: cursor on stage %q is stale, continue from the cursor of %q", ErrInvalidState, c.stage.Name(), last.Name())
	}
	return nil
}

// checkOutput compares the stage out tag with what a consumer of Out receives.
func (c *Cursor[Out]) checkOutput() error {
	want := typeOf[Out]()
	if c.stage.async {
		want = typeOf[*Pending[Out]]()
	}
	if c.stage.out != want {
		return fmt.Errorf("%w: stage %q emits %v, the next stage receives %v", ErrLinkTypeMismatch, c.stage.Name(), c.stage.out, want)
	}
	return nil
}

// AddFirst starts p with a synchronous stage.
func AddFirst[In, Out any](p *Pipeline[In], fn func(ctx context.Context, in In) (Out, error), opts ...Option) (*Cursor[Out], error) {
	if p == nil || p.g == nil || fn == nil {
		return nil, fmt.Errorf("%w: AddFirst needs a pipeline and a stage function", ErrArgument)
	}
	if err := p.g.expectEmpty("AddFirst"); err != nil {
		return nil, err
	}
	if isPending[Out]() {
		return nil, fmt.Errorf("%w: first stage of %q returns a pending value, use AddFirstAsync", ErrInvalidState, p.g.id)
	}

	cfg := newStageConfig(p.g, opts)
	t := block.NewTransform(fn, cfg.block)
	st := p.g.push(t, false, typeOf[In](), typeOf[Out]())
	return &Cursor[Out]{g: p.g, stage: st, src: t}, nil
}

// AddFirstAsync starts p with a stage that returns pending values.
func AddFirstAsync[In, Out any](p *Pipeline[In], fn func(ctx context.Context, in In) *Pending[Out], opts ...Option) (*Cursor[Out], error) {
	if p == nil || p.g == nil || fn == nil {
		return nil, fmt.Errorf("%w: AddFirstAsync needs a pipeline and a stage function", ErrArgument)
	}
	if err := p.g.expectEmpty("AddFirstAsync"); err != nil {
		return nil, err
	}

	cfg := newStageConfig(p.g, opts)
	t := block.NewTransform(deferred(cfg.block.Name, fn), cfg.block)
	st := p.g.push(t, true, typeOf[In](), typeOf[*Pending[Out]]())
	return &Cursor[Out]{g: p.g, stage: st, pending: t}, nil
}

// AddBlock appends a synchronous stage. A stage returning *Pending values is
// rejected unless AllowPendingOutput is given, in which case the pending
// values travel as plain values.
func AddBlock[In, Out any](c *Cursor[In], fn func(ctx context.Context, in In) (Out, error), opts ...Option) (*Cursor[Out], error) {
	if fn == nil {
		return nil, fmt.Errorf("%w: AddBlock needs a stage function", ErrArgument)
	}
	if err := c.live(); err != nil {
		return nil, err
	}

	cfg := newStageConfig(c.g, opts)
	if isPending[Out]() && !cfg.allowPending {
		return nil, fmt.Errorf("%w: stage %q returns a pending value, use AddAsyncBlock or pass AllowPendingOutput", ErrInvalidState, cfg.block.Name)
	}
	if err := c.checkOutput(); err != nil {
		return nil, err
	}

	src, in, err := transformAfter(c, fn, cfg)
	if err != nil {
		return nil, err
	}
	st := c.g.push(src, false, in, typeOf[Out]())
	return &Cursor[Out]{g: c.g, stage: st, src: src}, nil
}

// AddAsyncBlock appends a stage that returns pending values.
func AddAsyncBlock[In, Out any](c *Cursor[In], fn func(ctx context.Context, in In) *Pending[Out], opts ...Option) (*Cursor[Out], error) {
	if fn == nil {
		return nil, fmt.Errorf("%w: AddAsyncBlock needs a stage function", ErrArgument)
	}
	if err := c.live(); err != nil {
		return nil, err
	}
	if err := c.checkOutput(); err != nil {
		return nil, err
	}

	cfg := newStageConfig(c.g, opts)
	src, in, err := transformAfter(c, deferred(cfg.block.Name, fn), cfg)
	if err != nil {
		return nil, err
	}
	st := c.g.push(src, true, in, typeOf[*Pending[Out]]())
	return &Cursor[Out]{g: c.g, stage: st, pending: src}, nil
}

// AddManyBlock appends a stage whose every returned element is forwarded on
// its own.
func AddManyBlock[In, Out any](c *Cursor[In], fn func(ctx context.Context, in In) ([]Out, error), opts ...Option) (*Cursor[Out], error) {
	if fn == nil {
		return nil, fmt.Errorf("%w: AddManyBlock needs a stage function", ErrArgument)
	}
	if err := c.live(); err != nil {
		return nil, err
	}
	if err := c.checkOutput(); err != nil {
		return nil, err
	}

	cfg := newStageConfig(c.g, opts)
	var (
		src block.Source[Out]
		in  reflect.Type
		err error
	)
	if c.stage.async {
		m := block.NewMany(awaiting(fn), cfg.block)
		src, in, err = m, typeOf[*Pending[In]](), c.pending.LinkTo(m, cfg.link, nil)
	} else {
		m := block.NewMany(fn, cfg.block)
		src, in, err = m, typeOf[In](), c.src.LinkTo(m, cfg.link, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: linking stage %q: %w", ErrInvalidState, cfg.block.Name, err)
	}

	st := c.g.push(src, false, in, typeOf[Out]())
	return &Cursor[Out]{g: c.g, stage: st, src: src}, nil
}

// AddLastBlock terminates the pipeline with a sink.
func AddLastBlock[In any](c *Cursor[In], action func(ctx context.Context, in In) error, opts ...Option) error {
	if action == nil {
		return fmt.Errorf("%w: AddLastBlock needs an action", ErrArgument)
	}
	return addLast(c, action, false, opts)
}

// AddLastAsyncBlock terminates the pipeline with a sink whose action
// completes asynchronously. The sink awaits each action before taking the
// next item.
func AddLastAsyncBlock[In any](c *Cursor[In], action func(ctx context.Context, in In) *Pending[struct{}], opts ...Option) error {
	if action == nil {
		return fmt.Errorf("%w: AddLastAsyncBlock needs an action", ErrArgument)
	}
	return addLast(c, func(ctx context.Context, in In) error {
		_, err := action(ctx, in).Await(ctx)
		return err
	}, true, opts)
}

func addLast[In any](c *Cursor[In], action func(ctx context.Context, in In) error, async bool, opts []Option) error {
	if err := c.live(); err != nil {
		return err
	}
	if err := c.checkOutput(); err != nil {
		return err
	}

	cfg := newStageConfig(c.g, opts)
	var (
		sink block.Block
		in   reflect.Type
		err  error
	)
	if c.stage.async {
		s := block.NewSink(func(ctx context.Context, p *Pending[In]) error {
			v, err := p.Await(ctx)
			if err != nil {
				return err
			}
			return action(ctx, v)
		}, cfg.block)
		sink, in, err = s, typeOf[*Pending[In]](), c.pending.LinkTo(s, cfg.link, nil)
	} else {
		s := block.NewSink(action, cfg.block)
		sink, in, err = s, typeOf[In](), c.src.LinkTo(s, cfg.link, nil)
	}
	if err != nil {
		return fmt.Errorf("%w: linking stage %q: %w", ErrInvalidState, cfg.block.Name, err)
	}

	c.g.push(sink, async, in, nil)
	c.g.state = StateReadyForBuild
	return nil
}

// transformAfter creates the transform that follows the cursor stage and
// links it. It returns the type the new block receives.
func transformAfter[In, Out any](c *Cursor[In], fn func(ctx context.Context, in In) (Out, error), cfg stageConfig) (block.Source[Out], reflect.Type, error) {
	var (
		t   *block.Transform[In, Out]
		pt  *block.Transform[*Pending[In], Out]
		err error
	)
	if c.stage.async {
		pt = block.NewTransform(awaiting(fn), cfg.block)
		err = c.pending.LinkTo(pt, cfg.link, nil)
	} else {
		t = block.NewTransform(fn, cfg.block)
		err = c.src.LinkTo(t, cfg.link, nil)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: linking stage %q: %w", ErrInvalidState, cfg.block.Name, err)
	}

	if pt != nil {
		return pt, typeOf[*Pending[In]](), nil
	}
	return t, typeOf[In](), nil
}

// awaiting unwraps the pending output of an async predecessor before fn runs.
func awaiting[In, Out any](fn func(ctx context.Context, in In) (Out, error)) func(ctx context.Context, p *Pending[In]) (Out, error) {
	return func(ctx context.Context, p *Pending[In]) (Out, error) {
		v, err := p.Await(ctx)
		if err != nil {
			var zero Out
			return zero, err
		}
		return fn(ctx, v)
	}
}

// deferred adapts an async stage function to the block signature.
func deferred[In, Out any](stage string, fn func(ctx context.Context, in In) *Pending[Out]) func(ctx context.Context, in In) (*Pending[Out], error) {
	return func(ctx context.Context, in In) (*Pending[Out], error) {
		p := fn(ctx, in)
		if p == nil {
			return nil, fmt.Errorf("%w: stage %q returned a nil pending value", ErrInvalidState, stage)
		}
		return p, nil
	}
}

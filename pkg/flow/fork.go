package flow

import (
	"fmt"

	"github.com/ib-77/flowline/pkg/flow/block"
)

// Forker routes the values of a forked stage to branch pipelines. Each value
// goes to the first branch whose predicate accepts it, in the order the
// branches were attached.
type Forker[Out any] struct {
	g     *Graph
	stage *Stage
	src   block.Source[Out]
}

// Fork ends the chain at the cursor stage; its values are routed to the
// branches attached afterwards. Values no branch accepts are dropped unless
// WithUnmatched says otherwise.
func Fork[Out any](c *Cursor[Out], opts ...ForkOption) (*Forker[Out], error) {
	if err := c.live(); err != nil {
		return nil, err
	}
	if err := c.checkOutput(); err != nil {
		return nil, err
	}

	var cfg forkConfig
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	// an async stage cannot be routed; Branch reports it
	if c.src != nil {
		c.src.SetUnmatched(cfg.unmatched)
	}

	c.g.state = StateForked
	return &Forker[Out]{g: c.g, stage: c.stage, src: c.src}, nil
}

// Branch attaches child for the values predicate accepts.
func (f *Forker[Out]) Branch(predicate func(Out) bool, child *Pipeline[Out], linkOpts ...LinkOption) error {
	if predicate == nil {
		return fmt.Errorf("%w: Branch needs a predicate, use Default for a catch-all branch", ErrArgument)
	}
	return f.branch(predicate, child, RoutePredicate, linkOpts)
}

// Default attaches child for every value the earlier branches reject.
func (f *Forker[Out]) Default(child *Pipeline[Out], linkOpts ...LinkOption) error {
	return f.branch(nil, child, RouteDefault, linkOpts)
}

func (f *Forker[Out]) branch(predicate func(Out) bool, child *Pipeline[Out], route RouteKind, linkOpts []LinkOption) error {
	if f == nil || f.g == nil {
		return fmt.Errorf("%w: nil fork", ErrArgument)
	}
	if f.g.state != StateForked {
		return fmt.Errorf("%w: pipeline %q is %s, branches can only follow Fork", ErrInvalidState, f.g.id, f.g.state)
	}
	if f.src == nil {
		return fmt.Errorf("%w: stage %q of %q is asynchronous, add a synchronous AddBlock before Fork", ErrInvalidState, f.stage.Name(), f.g.id)
	}
	return attachBranch(f.g, f.src, child, predicate, route, linkOpts)
}

// Broadcaster hands every value of its broadcast stage to all branches.
type Broadcaster[Out any] struct {
	g     *Graph
	stage *Stage
	src   block.Source[Out]
}

// Broadcast appends a broadcast stage after the cursor stage. A non-nil
// clone is applied once per branch delivery.
func Broadcast[Out any](c *Cursor[Out], clone func(Out) Out, opts ...Option) (*Broadcaster[Out], error) {
	if err := c.live(); err != nil {
		return nil, err
	}
	if c.src == nil {
		return nil, fmt.Errorf("%w: stage %q of %q is asynchronous, add a synchronous AddBlock before Broadcast", ErrInvalidState, c.stage.Name(), c.g.id)
	}
	if err := c.checkOutput(); err != nil {
		return nil, err
	}

	cfg := newStageConfig(c.g, opts)
	b := block.NewBroadcast(clone, cfg.block)
	if err := c.src.LinkTo(b, cfg.link, nil); err != nil {
		return nil, fmt.Errorf("%w: linking stage %q: %w", ErrInvalidState, cfg.block.Name, err)
	}

	st := c.g.push(b, false, typeOf[Out](), typeOf[Out]())
	c.g.state = StateForked
	return &Broadcaster[Out]{g: c.g, stage: st, src: b}, nil
}

// Branch attaches child to receive every value.
func (b *Broadcaster[Out]) Branch(child *Pipeline[Out], linkOpts ...LinkOption) error {
	if b == nil || b.g == nil {
		return fmt.Errorf("%w: nil broadcaster", ErrArgument)
	}
	if b.g.state != StateForked {
		return fmt.Errorf("%w: pipeline %q is %s, branches can only follow Broadcast", ErrInvalidState, b.g.id, b.g.state)
	}
	return attachBranch(b.g, b.src, child, nil, RouteBroadcast, linkOpts)
}

func attachBranch[T any](g *Graph, src block.Source[T], child *Pipeline[T], predicate func(T) bool, route RouteKind, linkOpts []LinkOption) error {
	if child == nil || child.g == nil {
		return fmt.Errorf("%w: nil branch pipeline", ErrArgument)
	}
	if err := g.checkChild(child.g); err != nil {
		return err
	}

	first := child.g.stages[0]
	entry, ok := first.primitive.(block.Target[T])
	if !ok {
		return fmt.Errorf("%w: branch %q receives %v, pipeline %q emits %v", ErrLinkTypeMismatch, child.g.id, first.in, g.id, typeOf[T]())
	}
	if err := src.LinkTo(entry, newLinkOptions(linkOpts), predicate); err != nil {
		return fmt.Errorf("%w: linking branch %q: %w", ErrInvalidState, child.g.id, err)
	}

	g.attach(child.g, route)
	return nil
}

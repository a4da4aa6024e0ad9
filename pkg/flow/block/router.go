package block

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

type link[T any] struct {
	target    Target[T]
	opts      LinkOptions
	predicate func(T) bool
}

// router is the output side of a source block.
type router[T any] struct {
	owner     string
	log       *slog.Logger
	broadcast bool
	clone     func(T) T

	mu        sync.RWMutex
	links     []link[T]
	unmatched UnmatchedPolicy
	finished  bool
}

func newRouter[T any](owner string, log *slog.Logger) *router[T] {
	return &router[T]{owner: owner, log: log}
}

func (r *router[T]) add(target Target[T], opts LinkOptions, predicate func(T) bool) error {
	if target == nil {
		return fmt.Errorf("%w: %s cannot link to a nil target", ErrLinked, r.owner)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finished {
		return fmt.Errorf("%w: %s has already finished", ErrLinked, r.owner)
	}
	r.links = append(r.links, link[T]{target: target, opts: opts, predicate: predicate})
	return nil
}

func (r *router[T]) setUnmatched(policy UnmatchedPolicy) {
	r.mu.Lock()
	r.unmatched = policy
	r.mu.Unlock()
}

func (r *router[T]) deliver(ctx context.Context, item T) error {
	r.mu.RLock()
	links := r.links
	policy := r.unmatched
	r.mu.RUnlock()

	if r.broadcast {
		for _, l := range links {
			v := item
			if r.clone != nil {
				v = r.clone(item)
			}
			if err := r.send(ctx, l, v); err != nil {
				return err
			}
		}
		return nil
	}

	for _, l := range links {
		if l.predicate == nil || l.predicate(item) {
			return r.send(ctx, l, item)
		}
	}

	if policy == FaultUnmatched {
		return fmt.Errorf("%w: %s routes to %d links", ErrUnmatched, r.owner, len(links))
	}
	r.log.Debug("Dropping unmatched item.", "block", r.owner, "links", len(links))
	return nil
}

func (r *router[T]) send(ctx context.Context, l link[T], item T) error {
	err := l.target.Send(ctx, item)
	if errors.Is(err, ErrDeclined) {
		r.log.Debug("Target declined item.", "block", r.owner, "target", l.target.Name())
		return nil
	}
	return err
}

// finish propagates the source outcome along links configured for it.
func (r *router[T]) finish(err error) {
	r.mu.Lock()
	r.finished = true
	links := r.links
	r.mu.Unlock()

	for _, l := range links {
		if !l.opts.PropagateCompletion {
			continue
		}
		if err != nil {
			l.target.Fault(err)
		} else {
			l.target.Complete()
		}
	}
}

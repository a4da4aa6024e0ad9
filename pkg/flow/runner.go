package flow

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ib-77/flowline/internal/ctxlog"
	"github.com/ib-77/flowline/pkg/flow/block"
)

// Runner executes a built pipeline once.
type Runner[T any] struct {
	id       string
	entry    block.Target[T]
	leaves   []*Stage
	executed atomic.Bool
}

// Leaves returns the terminal stages the runner waits for.
func (r *Runner[T]) Leaves() []*Stage {
	return slices.Clone(r.leaves)
}

// Execute submits inputs in order and waits for every leaf stage.
func (r *Runner[T]) Execute(ctx context.Context, inputs []T) error {
	return r.ExecuteSeq(ctx, slices.Values(inputs))
}

// ExecuteChan submits values from inputs until it is closed.
func (r *Runner[T]) ExecuteChan(ctx context.Context, inputs <-chan T) error {
	if inputs == nil {
		return fmt.Errorf("%w: nil input channel", ErrArgument)
	}
	return r.ExecuteSeq(ctx, FromChan(ctx, inputs))
}

// ExecuteSeq submits every value of inputs to the first stage, completes it
// and waits for every leaf stage. It returns the first leaf fault.
//
// Cancelling ctx stops submission: the first stage is completed so that the
// submitted values drain, and the returned error matches both ErrCancelled
// and the context error. Stages stop early only when they were given the
// same context through WithContext.
func (r *Runner[T]) ExecuteSeq(ctx context.Context, inputs iter.Seq[T]) error {
	if inputs == nil {
		return fmt.Errorf("%w: nil input sequence", ErrArgument)
	}
	if !r.executed.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: runner of %q already ran or is running, build a new pipeline", ErrInvalidState, r.id)
	}

	log := ctxlog.FromContext(ctx).With("pipeline", r.id, "run", uuid.New())
	log.Debug("Pipeline run started.", "leaves", len(r.leaves))

	submitted := 0
	for item := range inputs {
		if ctx.Err() != nil {
			break
		}
		if err := r.entry.Send(ctx, item); err != nil {
			if errors.Is(err, block.ErrDeclined) {
				log.Warn("First stage declined input, submission stopped.", "submitted", submitted, "error", err)
			}
			break
		}
		submitted++
	}
	r.entry.Complete()

	if err := ctx.Err(); err != nil {
		log.Debug("Pipeline run cancelled.", "submitted", submitted, "error", err)
		return fmt.Errorf("%w: pipeline %q after %d inputs: %w", ErrCancelled, r.id, submitted, err)
	}

	if err := r.await(ctx); err != nil {
		log.Debug("Pipeline run failed.", "submitted", submitted, "error", err)
		return err
	}
	log.Debug("Pipeline run finished.", "submitted", submitted)
	return nil
}

func (r *Runner[T]) await(ctx context.Context) error {
	var g errgroup.Group
	for _, leaf := range r.leaves {
		g.Go(func() error {
			select {
			case <-leaf.primitive.Completion():
				if err := leaf.primitive.Err(); err != nil {
					return fmt.Errorf("stage %q of pipeline %q: %w", leaf.Name(), leaf.pipeline, err)
				}
				return nil
			case <-ctx.Done():
				return fmt.Errorf("%w: pipeline %q: %w", ErrCancelled, r.id, ctx.Err())
			}
		})
	}
	return g.Wait()
}

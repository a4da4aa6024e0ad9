package block

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// engine is the input side shared by every block: an input channel drained by
// Concurrency locomotives, plus the completion and fault signals.
type engine[In any] struct {
	id      uuid.UUID
	name    string
	kind    Kind
	opts    Options
	log     *slog.Logger
	in      chan In
	process func(ctx context.Context, item In) error
	// onFinish runs once every locomotive has stopped, before Completion closes.
	onFinish func(err error)

	startOnce   sync.Once
	declineOnce sync.Once
	faultOnce   sync.Once
	decline     chan struct{}
	faulted     chan struct{}
	done        chan struct{}
	wg          sync.WaitGroup

	mu  sync.Mutex
	err error
}

func newEngine[In any](kind Kind, opts Options, process func(ctx context.Context, item In) error) *engine[In] {
	opts = opts.normalize()
	id := uuid.New()
	name := opts.Name
	if name == "" {
		name = kind.String() + "-" + id.String()[:8]
	}

	return &engine[In]{
		id:      id,
		name:    name,
		kind:    kind,
		opts:    opts,
		log:     opts.Logger,
		in:      make(chan In, opts.Buffer),
		process: process,
		decline: make(chan struct{}),
		faulted: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (e *engine[In]) ID() uuid.UUID {
	return e.id
}

func (e *engine[In]) Name() string {
	return e.name
}

func (e *engine[In]) Kind() Kind {
	return e.kind
}

func (e *engine[In]) Completion() <-chan struct{} {
	return e.done
}

func (e *engine[In]) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

func (e *engine[In]) Wait(ctx context.Context) error {
	select {
	case <-e.done:
		return e.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *engine[In]) Send(ctx context.Context, item In) error {
	e.start()

	select {
	case <-e.decline:
		return e.declined()
	default:
	}

	select {
	case e.in <- item:
		return nil
	case <-e.decline:
		return e.declined()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *engine[In]) Complete() {
	e.start()
	e.declineOnce.Do(func() {
		close(e.decline)
	})
}

func (e *engine[In]) Fault(err error) {
	if err == nil {
		err = errors.New("block faulted")
	}

	e.faultOnce.Do(func() {
		e.mu.Lock()
		e.err = err
		e.mu.Unlock()
		close(e.faulted)
		e.log.Debug("Block faulted.", "block", e.name, "error", err)
	})
	e.declineOnce.Do(func() {
		close(e.decline)
	})
	e.start()
}

func (e *engine[In]) declined() error {
	if err := e.Err(); err != nil {
		return fmt.Errorf("%w: %s faulted: %v", ErrDeclined, e.name, err)
	}
	return fmt.Errorf("%w: %s is complete", ErrDeclined, e.name)
}

func (e *engine[In]) isFaulted() bool {
	select {
	case <-e.faulted:
		return true
	default:
		return false
	}
}

// start launches the locomotives on first use, so blocks that are never fed
// do not hold goroutines.
func (e *engine[In]) start() {
	e.startOnce.Do(func() {
		e.log.Debug("Block started.", "block", e.name, "kind", e.kind, "workers", e.opts.Concurrency)

		e.wg.Add(e.opts.Concurrency)
		for range e.opts.Concurrency {
			go e.locomotive()
		}

		go func() {
			e.wg.Wait()
			err := e.Err()
			if e.onFinish != nil {
				e.onFinish(err)
			}
			if err == nil {
				e.log.Debug("Block completed.", "block", e.name)
			}
			close(e.done)
		}()
	})
}

func (e *engine[In]) locomotive() {
	defer e.wg.Done()
	ctx := e.opts.Context

	for {
		select {
		case <-e.faulted:
			return
		case <-ctx.Done():
			e.Fault(fmt.Errorf("%s cancelled: %w", e.name, context.Cause(ctx)))
			return
		case item := <-e.in:
			if !e.handle(ctx, item) {
				return
			}
		case <-e.decline:
			e.drain(ctx)
			return
		}
	}
}

// drain processes what is still buffered after Complete.
func (e *engine[In]) drain(ctx context.Context) {
	for {
		select {
		case <-e.faulted:
			return
		case item := <-e.in:
			if !e.handle(ctx, item) {
				return
			}
		default:
			return
		}
	}
}

func (e *engine[In]) handle(ctx context.Context, item In) bool {
	if e.isFaulted() {
		return false
	}
	if err := e.invoke(ctx, item); err != nil {
		e.Fault(err)
		return false
	}
	return true
}

func (e *engine[In]) invoke(ctx context.Context, item In) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", ErrPanic, e.name, r)
		}
	}()
	return e.process(ctx, item)
}

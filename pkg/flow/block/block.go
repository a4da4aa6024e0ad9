package block

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrDeclined is returned by Send once a block has been completed or faulted.
	ErrDeclined = errors.New("block declined the item")
	// ErrUnmatched faults a source whose unmatched policy is FaultUnmatched.
	ErrUnmatched = errors.New("no link accepted the item")
	// ErrPanic wraps a panic raised by a block function.
	ErrPanic = errors.New("block function panicked")
	// ErrLinked is returned when linking to a block that can no longer accept links.
	ErrLinked = errors.New("block cannot be linked")
)

// Kind names the flavour of a block.
type Kind int

const (
	KindTransform Kind = iota
	KindMany
	KindSink
	KindBroadcast
)

func (k Kind) String() string {
	switch k {
	case KindTransform:
		return "transform"
	case KindMany:
		return "many"
	case KindSink:
		return "sink"
	case KindBroadcast:
		return "broadcast"
	default:
		return "unknown"
	}
}

// Block is the part of every block that does not depend on item types.
type Block interface {
	// ID identifies the block for logs and exports.
	ID() uuid.UUID
	// Name is the human readable name given through Options.
	Name() string
	// Kind reports the block flavour.
	Kind() Kind
	// Complete signals that no further items will be sent.
	Complete()
	// Fault stops the block with err; queued items are discarded.
	Fault(err error)
	// Completion is closed once the block has finished, successfully or not.
	Completion() <-chan struct{}
	// Err returns the fault that stopped the block, nil on success.
	Err() error
	// Wait blocks until Completion is closed or ctx is done.
	Wait(ctx context.Context) error
}

// Target accepts items.
type Target[T any] interface {
	Block
	// Send hands item to the block, blocking while the block's buffer is full.
	Send(ctx context.Context, item T) error
}

// Source produces items for linked targets.
type Source[T any] interface {
	Block
	// LinkTo connects the source to target. A nil predicate accepts every item.
	LinkTo(target Target[T], opts LinkOptions, predicate func(T) bool) error
	// SetUnmatched decides what happens to items no link accepts.
	SetUnmatched(policy UnmatchedPolicy)
}

// LinkOptions configures a link between two blocks.
type LinkOptions struct {
	// PropagateCompletion forwards completion and faults of the source to the target.
	PropagateCompletion bool
}

// DefaultLinkOptions propagates completion.
func DefaultLinkOptions() LinkOptions {
	return LinkOptions{PropagateCompletion: true}
}

// UnmatchedPolicy decides the fate of items no link accepts.
type UnmatchedPolicy int

const (
	// DropUnmatched silently discards the item.
	DropUnmatched UnmatchedPolicy = iota
	// FaultUnmatched faults the source with ErrUnmatched.
	FaultUnmatched
)

func (p UnmatchedPolicy) String() string {
	if p == FaultUnmatched {
		return "fault"
	}
	return "drop"
}

// Link connects src to dst.
func Link[T any](src Source[T], dst Target[T], opts LinkOptions, predicate func(T) bool) error {
	return src.LinkTo(dst, opts, predicate)
}

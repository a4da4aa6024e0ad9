package flow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ib-77/flowline/pkg/flow/block"
)

// UnmatchedPolicy decides what a fork does with values no branch accepts.
type UnmatchedPolicy = block.UnmatchedPolicy

const (
	DropUnmatched  = block.DropUnmatched
	FaultUnmatched = block.FaultUnmatched
)

type stageConfig struct {
	block        block.Options
	link         block.LinkOptions
	allowPending bool
}

// Option configures a stage.
type Option func(*stageConfig)

// LinkOption configures the link into a stage or branch.
type LinkOption func(*block.LinkOptions)

type forkConfig struct {
	unmatched UnmatchedPolicy
}

// ForkOption configures a fork.
type ForkOption func(*forkConfig)

func WithName(name string) Option {
	return func(c *stageConfig) {
		c.block.Name = name
	}
}

// WithConcurrency sets how many items the stage processes in parallel.
// Values above one give up ordering.
func WithConcurrency(n int) Option {
	return func(c *stageConfig) {
		c.block.Concurrency = n
	}
}

// WithBuffer sets the capacity of the stage input.
func WithBuffer(n int) Option {
	return func(c *stageConfig) {
		c.block.Buffer = n
	}
}

// WithContext ties the stage to ctx: cancelling ctx faults the stage, and the
// stage logs with the logger carried by ctx. Worker and buffer defaults set
// with block.WithWorkerOptions and block.WithBufferOptions are honoured.
func WithContext(ctx context.Context) Option {
	return func(c *stageConfig) {
		c.block.Context = ctx
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *stageConfig) {
		c.block.Logger = logger
	}
}

// WithLink configures the link from the previous stage.
func WithLink(opts ...LinkOption) Option {
	return func(c *stageConfig) {
		for _, opt := range opts {
			if opt != nil {
				opt(&c.link)
			}
		}
	}
}

// AllowPendingOutput lets AddBlock return a *Pending value as a plain output.
func AllowPendingOutput() Option {
	return func(c *stageConfig) {
		c.allowPending = true
	}
}

// PropagateCompletion decides whether completion and faults travel over the link.
func PropagateCompletion(on bool) LinkOption {
	return func(o *block.LinkOptions) {
		o.PropagateCompletion = on
	}
}

// WithUnmatched sets the fate of values no branch accepts. The default drops them.
func WithUnmatched(policy UnmatchedPolicy) ForkOption {
	return func(c *forkConfig) {
		c.unmatched = policy
	}
}

func newStageConfig(g *Graph, opts []Option) stageConfig {
	cfg := stageConfig{link: block.DefaultLinkOptions()}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.block.Name == "" {
		cfg.block.Name = fmt.Sprintf("%s/%d", g.id, len(g.stages))
	}
	return cfg
}

func newLinkOptions(opts []LinkOption) block.LinkOptions {
	lo := block.DefaultLinkOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&lo)
		}
	}
	return lo
}

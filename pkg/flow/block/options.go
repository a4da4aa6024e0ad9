package block

import (
	"context"
	"log/slog"

	"github.com/ib-77/flowline/internal/ctxlog"
)

type OptionKey string

const (
	WorkerOptionKey OptionKey = "worker_options"
	BufferOptionKey OptionKey = "buffer_options"
)

type MaxLimitOption struct {
	Value int
}

type WorkerOptions struct {
	MaxCount MaxLimitOption
}

type BufferOptions struct {
	Size int
}

// WithWorkerOptions sets the default worker count for blocks configured with ctx.
func WithWorkerOptions(ctx context.Context, maxWorkers int) context.Context {
	return context.WithValue(ctx, WorkerOptionKey, WorkerOptions{MaxLimitOption{Value: maxWorkers}})
}

// WithBufferOptions sets the default input buffer size for blocks configured with ctx.
func WithBufferOptions(ctx context.Context, size int) context.Context {
	return context.WithValue(ctx, BufferOptionKey, BufferOptions{Size: size})
}

func GetWorkerMaxCount(ctx context.Context, defaultMaxWorkers int) int {
	options, ok := ctx.Value(WorkerOptionKey).(WorkerOptions)
	if ok && options.MaxCount.Value > 0 {
		return options.MaxCount.Value
	}
	return defaultMaxWorkers
}

func GetBufferSize(ctx context.Context, defaultSize int) int {
	options, ok := ctx.Value(BufferOptionKey).(BufferOptions)
	if ok && options.Size >= 0 {
		return options.Size
	}
	return defaultSize
}

// Options configures a single block.
type Options struct {
	// Name is used in logs and exports.
	Name string
	// Concurrency is the number of items processed in parallel. Zero means
	// the worker count from Context, or 1.
	Concurrency int
	// Buffer is the input channel capacity. Zero means the buffer size from
	// Context, or an unbuffered channel.
	Buffer int
	// Context cancels the block when done and supplies the logger.
	Context context.Context
	// Logger overrides the logger taken from Context.
	Logger *slog.Logger
}

func (o Options) normalize() Options {
	if o.Context == nil {
		o.Context = context.Background()
	}
	if o.Concurrency <= 0 {
		o.Concurrency = GetWorkerMaxCount(o.Context, 1)
	}
	if o.Buffer <= 0 {
		o.Buffer = GetBufferSize(o.Context, 0)
	}
	if o.Logger == nil {
		o.Logger = ctxlog.FromContext(o.Context)
	}
	return o
}

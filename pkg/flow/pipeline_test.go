package flow_test

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ib-77/flowline/pkg/flow"
	"github.com/ib-77/flowline/pkg/flow/block"
)

type collector[T any] struct {
	mu    sync.Mutex
	items []T
}

func (c *collector[T]) add(_ context.Context, v T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, v)
	return nil
}

func (c *collector[T]) values() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]T(nil), c.items...)
}

func parseInt(_ context.Context, s string) (int, error) {
	return strconv.Atoi(s)
}

func identity[T any](_ context.Context, v T) (T, error) {
	return v, nil
}

func plus(n int) func(context.Context, int) (int, error) {
	return func(_ context.Context, v int) (int, error) { return v + n, nil }
}

func isEven(n int) bool {
	return n%2 == 0
}

// sinkPipeline builds a two stage branch pipeline ending in col.
func sinkPipeline[T any](t *testing.T, id string, col *collector[T]) *flow.Pipeline[T] {
	t.Helper()
	p, err := flow.New[T](id)
	require.NoError(t, err)
	c, err := flow.AddFirst(p, identity[T])
	require.NoError(t, err)
	require.NoError(t, flow.AddLastBlock(c, col.add))
	return p
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestNew_RejectsBlankID(t *testing.T) {
	t.Parallel()

	for _, id := range []string{"", "   "} {
		_, err := flow.New[int](id)
		require.ErrorIs(t, err, flow.ErrArgument)
	}

	p, err := flow.New[int]("orders")
	require.NoError(t, err)
	assert.Equal(t, "orders", p.ID())
	assert.Equal(t, flow.StateProgress, p.Graph().State())
}

func TestExecute_LinearChain(t *testing.T) {
	t.Parallel()

	got := &collector[int]{}
	p, err := flow.New[string]("linear")
	require.NoError(t, err)
	c1, err := flow.AddFirst(p, parseInt)
	require.NoError(t, err)
	c2, err := flow.AddBlock(c1, func(_ context.Context, n int) (int, error) { return n * 2, nil })
	require.NoError(t, err)
	require.NoError(t, flow.AddLastBlock(c2, got.add))

	runner, err := p.Build()
	require.NoError(t, err)
	require.NoError(t, runner.Execute(testContext(t), []string{"1", "2", "3"}))

	if diff := cmp.Diff([]int{2, 4, 6}, got.values()); diff != "" {
		t.Fatalf("unexpected output (-want +got):\n%s", diff)
	}

	stages := p.Graph().Stages()
	require.Len(t, stages, 3)
	for i, st := range stages {
		assert.Equal(t, "linear/"+strconv.Itoa(i), st.Name())
		assert.Equal(t, i, st.Index())
		assert.Equal(t, "linear", st.Pipeline())
		assert.False(t, st.IsAsync())
	}
	assert.Equal(t, block.KindSink, stages[2].Kind())
	assert.Nil(t, stages[2].OutType())
	assert.Equal(t, stages[0].OutType(), stages[1].InType())
}

func TestExecute_ForkRoutesByPredicate(t *testing.T) {
	t.Parallel()

	evens, odds := &collector[int]{}, &collector[int]{}
	p, _ := flow.New[string]("fork")
	c1, _ := flow.AddFirst(p, parseInt)
	c2, _ := flow.AddBlock(c1, plus(1))
	f, err := flow.Fork(c2)
	require.NoError(t, err)
	require.NoError(t, f.Branch(isEven, sinkPipeline(t, "even", evens)))
	require.NoError(t, f.Default(sinkPipeline(t, "odd", odds)))
	assert.Equal(t, flow.StateForked, p.Graph().State())

	runner, err := p.Build()
	require.NoError(t, err)
	require.NoError(t, runner.Execute(testContext(t), []string{"1", "2", "3"}))

	if diff := cmp.Diff([]int{2, 4}, evens.values()); diff != "" {
		t.Fatalf("even branch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{3}, odds.values()); diff != "" {
		t.Fatalf("odd branch (-want +got):\n%s", diff)
	}

	branches := p.Graph().Branches()
	require.Len(t, branches, 2)
	assert.Equal(t, flow.RoutePredicate, branches[0].Route())
	assert.Equal(t, flow.RouteDefault, branches[1].Route())
	assert.True(t, branches[0].Attached())
	assert.Equal(t, flow.StateBuilt, branches[1].State())
}

func TestExecute_BroadcastReachesEveryBranch(t *testing.T) {
	t.Parallel()

	left, right := &collector[int]{}, &collector[int]{}
	p, _ := flow.New[string]("broadcast")
	c1, _ := flow.AddFirst(p, parseInt)
	c2, _ := flow.AddBlock(c1, plus(1))
	b, err := flow.Broadcast(c2, nil)
	require.NoError(t, err)
	require.NoError(t, b.Branch(sinkPipeline(t, "left", left)))
	require.NoError(t, b.Branch(sinkPipeline(t, "right", right)))

	runner, err := p.Build()
	require.NoError(t, err)
	require.NoError(t, runner.Execute(testContext(t), []string{"1", "2", "3"}))

	assert.Equal(t, []int{2, 3, 4}, left.values())
	assert.Equal(t, []int{2, 3, 4}, right.values())

	stages := p.Graph().Stages()
	require.Len(t, stages, 3)
	assert.Equal(t, block.KindBroadcast, stages[2].Kind())
}

func TestExecute_BroadcastClonesPerBranch(t *testing.T) {
	t.Parallel()

	left, right := &collector[[]int]{}, &collector[[]int]{}
	p, _ := flow.New[int]("clone")
	c, _ := flow.AddFirst(p, func(_ context.Context, n int) ([]int, error) { return []int{n}, nil })
	b, _ := flow.Broadcast(c, func(v []int) []int { return append([]int(nil), v...) })

	mutating, _ := flow.New[[]int]("mutating")
	mc, _ := flow.AddFirst(mutating, func(_ context.Context, v []int) ([]int, error) {
		v[0] = 0
		return v, nil
	})
	require.NoError(t, flow.AddLastBlock(mc, left.add))
	require.NoError(t, b.Branch(mutating))
	require.NoError(t, b.Branch(sinkPipeline(t, "plain", right)))

	runner, err := p.Build()
	require.NoError(t, err)
	require.NoError(t, runner.Execute(testContext(t), []int{7, 8}))

	assert.Equal(t, [][]int{{0}, {0}}, left.values())
	assert.Equal(t, [][]int{{7}, {8}}, right.values())
}

func TestBuild_States(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		setup   func(t *testing.T) *flow.Pipeline[int]
		wantErr error
	}{
		{
			name: "empty pipeline",
			setup: func(t *testing.T) *flow.Pipeline[int] {
				p, _ := flow.New[int]("empty")
				return p
			},
			wantErr: flow.ErrInvalidState,
		},
		{
			name: "not terminated",
			setup: func(t *testing.T) *flow.Pipeline[int] {
				p, _ := flow.New[int]("open")
				_, err := flow.AddFirst(p, identity[int])
				require.NoError(t, err)
				return p
			},
			wantErr: flow.ErrInvalidState,
		},
		{
			name: "forked without branches",
			setup: func(t *testing.T) *flow.Pipeline[int] {
				p, _ := flow.New[int]("fork")
				c, _ := flow.AddFirst(p, identity[int])
				_, err := flow.Fork(c)
				require.NoError(t, err)
				return p
			},
			wantErr: flow.ErrInvalidState,
		},
		{
			name: "broadcast without branches",
			setup: func(t *testing.T) *flow.Pipeline[int] {
				p, _ := flow.New[int]("broadcast")
				c, _ := flow.AddFirst(p, identity[int])
				_, err := flow.Broadcast(c, nil)
				require.NoError(t, err)
				return p
			},
			wantErr: flow.ErrInvalidState,
		},
		{
			name: "terminated",
			setup: func(t *testing.T) *flow.Pipeline[int] {
				return sinkPipeline(t, "done", &collector[int]{})
			},
		},
		{
			name: "forked with a branch",
			setup: func(t *testing.T) *flow.Pipeline[int] {
				p, _ := flow.New[int]("fork")
				c, _ := flow.AddFirst(p, identity[int])
				f, _ := flow.Fork(c)
				require.NoError(t, f.Default(sinkPipeline(t, "all", &collector[int]{})))
				return p
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := tt.setup(t)
			before := p.Graph().State()
			runner, err := p.Build()
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, runner)
				assert.Equal(t, before, p.Graph().State())
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, runner)
			assert.Equal(t, flow.StateBuilt, p.Graph().State())
		})
	}
}

func TestBuild_TwiceFails(t *testing.T) {
	t.Parallel()

	p := sinkPipeline(t, "twice", &collector[int]{})
	_, err := p.Build()
	require.NoError(t, err)

	_, err = p.Build()
	require.ErrorIs(t, err, flow.ErrInvalidState)
	assert.Contains(t, err.Error(), "rebuild")
}

func TestBuild_BranchErrorLeavesTreeUntouched(t *testing.T) {
	t.Parallel()

	root, _ := flow.New[int]("root")
	rc, _ := flow.AddFirst(root, identity[int])
	rootFork, _ := flow.Fork(rc)

	a, _ := flow.New[int]("a")
	ac, _ := flow.AddFirst(a, identity[int])
	aFork, _ := flow.Fork(ac)

	// a1 is never terminated
	a1, _ := flow.New[int]("a1")
	_, err := flow.AddFirst(a1, identity[int])
	require.NoError(t, err)
	require.NoError(t, aFork.Default(a1))

	require.NoError(t, rootFork.Branch(isEven, sinkPipeline(t, "ok", &collector[int]{})))
	require.NoError(t, rootFork.Default(a))

	_, err = root.Build()
	require.ErrorIs(t, err, flow.ErrInvalidState)

	var branchErr *flow.BranchError
	require.ErrorAs(t, err, &branchErr)
	assert.Equal(t, "a", branchErr.BranchID)
	assert.Equal(t, []string{"a", "a1"}, branchErr.Path())

	assert.Equal(t, flow.StateForked, root.Graph().State())
	assert.Equal(t, flow.StateReadyForBuild, root.Graph().Branches()[0].State())
	assert.Equal(t, flow.StateForked, a.Graph().State())
	assert.Equal(t, flow.StateProgress, a1.Graph().State())
}

func TestBuild_AttachedBranchMustNotBeBuilt(t *testing.T) {
	t.Parallel()

	root, _ := flow.New[int]("root")
	c, _ := flow.AddFirst(root, identity[int])
	f, _ := flow.Fork(c)
	child := sinkPipeline(t, "child", &collector[int]{})
	require.NoError(t, f.Default(child))

	_, err := child.Build()
	require.ErrorIs(t, err, flow.ErrInvalidState)
	assert.Contains(t, err.Error(), "root pipeline")
}

func TestAddFirst_Guards(t *testing.T) {
	t.Parallel()

	p, _ := flow.New[int]("guards")
	_, err := flow.AddFirst(p, func(_ context.Context, n int) (*flow.Pending[int], error) {
		return flow.Resolved(n), nil
	})
	require.ErrorIs(t, err, flow.ErrInvalidState)
	assert.Contains(t, err.Error(), "AddFirstAsync")
	assert.Empty(t, p.Graph().Stages())

	_, err = flow.AddFirst[int, int](p, nil)
	require.ErrorIs(t, err, flow.ErrArgument)

	_, err = flow.AddFirst(p, identity[int])
	require.NoError(t, err)
	_, err = flow.AddFirst(p, identity[int])
	require.ErrorIs(t, err, flow.ErrInvalidState)
	_, err = flow.AddFirstAsync(p, func(_ context.Context, n int) *flow.Pending[int] { return flow.Resolved(n) })
	require.ErrorIs(t, err, flow.ErrInvalidState)
	assert.Len(t, p.Graph().Stages(), 1)
}

func TestAddBlock_PendingOutput(t *testing.T) {
	t.Parallel()

	toPending := func(_ context.Context, n int) (*flow.Pending[int], error) {
		return flow.Resolved(n * 3), nil
	}

	p, _ := flow.New[int]("pending")
	c, _ := flow.AddFirst(p, identity[int])

	_, err := flow.AddBlock(c, toPending)
	require.ErrorIs(t, err, flow.ErrInvalidState)
	assert.Len(t, p.Graph().Stages(), 1)

	pc, err := flow.AddBlock(c, toPending, flow.AllowPendingOutput())
	require.NoError(t, err)
	assert.False(t, pc.Stage().IsAsync())

	got := &collector[int]{}
	require.NoError(t, flow.AddLastBlock(pc, func(ctx context.Context, v *flow.Pending[int]) error {
		n, err := v.Await(ctx)
		if err != nil {
			return err
		}
		return got.add(ctx, n)
	}))

	runner, err := p.Build()
	require.NoError(t, err)
	require.NoError(t, runner.Execute(testContext(t), []int{1, 2}))
	assert.Equal(t, []int{3, 6}, got.values())
}

func TestAsync_StagesAreUnwrapped(t *testing.T) {
	t.Parallel()

	got := &collector[string]{}
	p, _ := flow.New[string]("async")
	c1, err := flow.AddFirstAsync(p, func(ctx context.Context, s string) *flow.Pending[int] {
		return flow.Go(ctx, func(context.Context) (int, error) { return strconv.Atoi(s) })
	})
	require.NoError(t, err)
	c2, err := flow.AddBlock(c1, func(_ context.Context, n int) (int, error) { return n * 10, nil })
	require.NoError(t, err)
	c3, err := flow.AddAsyncBlock(c2, func(ctx context.Context, n int) *flow.Pending[string] {
		return flow.Go(ctx, func(context.Context) (string, error) { return "#" + strconv.Itoa(n), nil })
	})
	require.NoError(t, err)
	c4, err := flow.AddAsyncBlock(c3, func(_ context.Context, s string) *flow.Pending[string] {
		return flow.Resolved(s + "!")
	})
	require.NoError(t, err)
	require.NoError(t, flow.AddLastAsyncBlock(c4, func(ctx context.Context, s string) *flow.Pending[struct{}] {
		return flow.Go(ctx, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, got.add(ctx, s)
		})
	}))

	stages := p.Graph().Stages()
	require.Len(t, stages, 5)
	var async []bool
	for _, st := range stages {
		async = append(async, st.IsAsync())
	}
	assert.Equal(t, []bool{true, false, true, true, true}, async)
	assert.Equal(t, stages[0].OutType(), stages[1].InType())
	assert.Equal(t, stages[3].OutType(), stages[4].InType())

	runner, err := p.Build()
	require.NoError(t, err)
	require.NoError(t, runner.Execute(testContext(t), []string{"1", "2"}))
	assert.Equal(t, []string{"#10!", "#20!"}, got.values())
}

package flow

import (
	"context"
	"fmt"
	"reflect"

	"github.com/google/uuid"

	"github.com/ib-77/flowline/pkg/flow/block"
)

// BuildState is the lifecycle phase of a pipeline graph.
type BuildState int

const (
	// StateProgress accepts new stages.
	StateProgress BuildState = iota
	// StateReadyForBuild ends with a sink.
	StateReadyForBuild
	// StateForked ends with a fork or broadcast and waits for branches.
	StateForked
	// StateBuilt is frozen.
	StateBuilt
)

func (s BuildState) String() string {
	switch s {
	case StateProgress:
		return "progress"
	case StateReadyForBuild:
		return "ready-for-build"
	case StateForked:
		return "forked"
	case StateBuilt:
		return "built"
	default:
		return "unknown"
	}
}

// RouteKind tells how a graph is attached to its parent.
type RouteKind int

const (
	RouteRoot RouteKind = iota
	RoutePredicate
	RouteDefault
	RouteBroadcast
)

func (r RouteKind) String() string {
	switch r {
	case RouteRoot:
		return "root"
	case RoutePredicate:
		return "predicate"
	case RouteDefault:
		return "default"
	case RouteBroadcast:
		return "broadcast"
	default:
		return "unknown"
	}
}

// Stage is one block of a pipeline together with its type tags.
type Stage struct {
	primitive block.Block
	async     bool
	in        reflect.Type
	out       reflect.Type
	pipeline  string
	index     int
}

func (s *Stage) ID() uuid.UUID {
	return s.primitive.ID()
}

func (s *Stage) Name() string {
	return s.primitive.Name()
}

func (s *Stage) Kind() block.Kind {
	return s.primitive.Kind()
}

// IsAsync reports whether the stage function completes asynchronously.
// Async stages other than sinks emit *Pending values.
func (s *Stage) IsAsync() bool {
	return s.async
}

// InType is the type the stage block receives.
func (s *Stage) InType() reflect.Type {
	return s.in
}

// OutType is the type the stage block emits, nil for sinks.
func (s *Stage) OutType() reflect.Type {
	return s.out
}

// Pipeline returns the id of the owning pipeline.
func (s *Stage) Pipeline() string {
	return s.pipeline
}

func (s *Stage) Index() int {
	return s.index
}

// Wait blocks until the stage block has finished and returns its fault.
func (s *Stage) Wait(ctx context.Context) error {
	return s.primitive.Wait(ctx)
}

// Graph is the structure of a pipeline: its stages and branch pipelines.
// It is mutated only by the builder functions and is read-only once built.
type Graph struct {
	id       string
	stages   []*Stage
	branches []*Graph
	state    BuildState
	route    RouteKind
	attached bool
}

func newGraph(id string) *Graph {
	return &Graph{id: id}
}

func (g *Graph) ID() string {
	return g.id
}

func (g *Graph) State() BuildState {
	return g.state
}

func (g *Graph) Route() RouteKind {
	return g.route
}

// Attached reports whether the graph is a branch of another graph.
func (g *Graph) Attached() bool {
	return g.attached
}

// Stages returns the stages in chain order.
func (g *Graph) Stages() []*Stage {
	return append([]*Stage(nil), g.stages...)
}

// Branches returns the branch graphs in declaration order.
func (g *Graph) Branches() []*Graph {
	return append([]*Graph(nil), g.branches...)
}

// Last returns the last stage or nil for an empty graph.
func (g *Graph) Last() *Stage {
	if len(g.stages) == 0 {
		return nil
	}
	return g.stages[len(g.stages)-1]
}

func (g *Graph) push(primitive block.Block, async bool, in, out reflect.Type) *Stage {
	st := &Stage{
		primitive: primitive,
		async:     async,
		in:        in,
		out:       out,
		pipeline:  g.id,
		index:     len(g.stages),
	}
	g.stages = append(g.stages, st)
	return st
}

func (g *Graph) expectEmpty(op string) error {
	if g.state != StateProgress || len(g.stages) > 0 {
		return fmt.Errorf("%w: %s on pipeline %q which already has stages, continue from its cursor", ErrInvalidState, op, g.id)
	}
	return nil
}

// contains reports whether other is g or one of its branches, at any depth.
func (g *Graph) contains(other *Graph) bool {
	if g == other {
		return true
	}
	for _, b := range g.branches {
		if b.contains(other) {
			return true
		}
	}
	return false
}

// checkChild validates child before it is attached to g as a branch.
func (g *Graph) checkChild(child *Graph) error {
	switch {
	case len(child.stages) == 0:
		return fmt.Errorf("%w: branch pipeline %q has no stages, call AddFirst on it first", ErrArgument, child.id)
	case child.state == StateBuilt:
		return fmt.Errorf("%w: branch pipeline %q is already built", ErrInvalidState, child.id)
	case child.attached:
		return fmt.Errorf("%w: branch pipeline %q is already attached to another pipeline", ErrInvalidState, child.id)
	case child.contains(g):
		return fmt.Errorf("%w: attaching %q to %q would create a cycle", ErrInvalidState, child.id, g.id)
	}
	return nil
}

func (g *Graph) attach(child *Graph, route RouteKind) {
	child.attached = true
	child.route = route
	g.branches = append(g.branches, child)
}

// validate checks the graph and every branch without changing them.
func (g *Graph) validate() error {
	switch g.state {
	case StateProgress:
		if len(g.stages) == 0 {
			return fmt.Errorf("%w: pipeline %q has no stages, call AddFirst", ErrInvalidState, g.id)
		}
		return fmt.Errorf("%w: pipeline %q is not terminated, call AddLastBlock or Fork", ErrInvalidState, g.id)
	case StateForked:
		if len(g.branches) == 0 {
			return fmt.Errorf("%w: pipeline %q is forked without branches, attach a Branch or Default", ErrInvalidState, g.id)
		}
	case StateBuilt:
		return fmt.Errorf("%w: pipeline %q is already built, rebuild is forbidden", ErrInvalidState, g.id)
	}

	for _, b := range g.branches {
		if err := b.validate(); err != nil {
			return &BranchError{BranchID: b.id, Err: err}
		}
	}
	return nil
}

func (g *Graph) freeze() {
	g.state = StateBuilt
	for _, b := range g.branches {
		b.freeze()
	}
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeFor[T]()
}

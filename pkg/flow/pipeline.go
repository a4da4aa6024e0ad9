package flow

import (
	"fmt"
	"strings"

	"github.com/ib-77/flowline/pkg/flow/block"
)

// Pipeline is a pipeline under construction whose first stage receives T.
type Pipeline[T any] struct {
	g *Graph
}

// New creates an empty pipeline. The id names the pipeline in errors, logs
// and exports.
func New[T any](id string) (*Pipeline[T], error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: pipeline id must not be empty", ErrArgument)
	}
	return &Pipeline[T]{g: newGraph(id)}, nil
}

func (p *Pipeline[T]) ID() string {
	return p.g.id
}

// Graph returns the read-only view of the pipeline structure.
func (p *Pipeline[T]) Graph() *Graph {
	return p.g
}

// Export renders the pipeline structure with r.
func (p *Pipeline[T]) Export(r Renderer) (string, error) {
	if p == nil {
		return "", fmt.Errorf("%w: nil pipeline", ErrArgument)
	}
	return Export(p.g, r)
}

// Build validates the pipeline and all of its branches, freezes them and
// returns the runner. Nothing is frozen when validation fails.
func (p *Pipeline[T]) Build() (*Runner[T], error) {
	if p == nil || p.g == nil {
		return nil, fmt.Errorf("%w: nil pipeline", ErrArgument)
	}
	g := p.g
	if g.attached {
		return nil, fmt.Errorf("%w: pipeline %q is a branch, build the root pipeline", ErrInvalidState, g.id)
	}
	if err := g.validate(); err != nil {
		return nil, err
	}

	entry, ok := g.stages[0].primitive.(block.Target[T])
	if !ok {
		return nil, fmt.Errorf("%w: first stage of %q receives %v, not %v", ErrLinkTypeMismatch, g.id, g.stages[0].in, typeOf[T]())
	}

	g.freeze()
	return &Runner[T]{id: g.id, entry: entry, leaves: CollectLeaves(g)}, nil
}

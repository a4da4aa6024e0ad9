package flow

import "fmt"

// Renderer turns a pipeline graph into a textual representation.
type Renderer interface {
	Render(g *Graph) (string, error)
}

// Export renders g with r.
func Export(g *Graph, r Renderer) (string, error) {
	if g == nil || r == nil {
		return "", fmt.Errorf("%w: Export needs a graph and a renderer", ErrArgument)
	}
	return r.Render(g)
}

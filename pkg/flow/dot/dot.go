package dot

import (
	"fmt"

	graphviz "github.com/emicklei/dot"

	"github.com/ib-77/flowline/pkg/flow"
)

var _ flow.Renderer = Renderer{}

// Renderer implements flow.Renderer.
type Renderer struct {
	// RankDir is the Graphviz rankdir attribute, "LR" when empty.
	RankDir string
}

func (r Renderer) Render(g *flow.Graph) (string, error) {
	if g == nil {
		return "", fmt.Errorf("%w: nil graph", flow.ErrArgument)
	}

	rankdir := r.RankDir
	if rankdir == "" {
		rankdir = "LR"
	}

	root := graphviz.NewGraph(graphviz.Directed)
	root.Attr("rankdir", rankdir)

	w := &writer{root: root}
	if first, ok := w.graph(g); ok {
		start := root.Node("start")
		start.Attr("label", "Start")
		start.Attr("shape", "circle")
		root.Edge(start, first)
	}
	return root.String(), nil
}

type writer struct {
	root *graphviz.Graph
	// clusters numbers subgraphs; pipeline ids need not be unique
	clusters int
}

// graph adds the cluster of g and its branches and returns the node of the
// first stage. ok is false when g has no stages.
func (w *writer) graph(g *flow.Graph) (first graphviz.Node, ok bool) {
	root := w.root
	w.clusters++
	cluster := root.Subgraph(fmt.Sprintf("%s#%d", g.ID(), w.clusters), graphviz.ClusterOption{})
	cluster.Attr("label", fmt.Sprintf("%s (%s)", g.ID(), g.State()))

	var prev graphviz.Node
	var prevStage *flow.Stage
	for _, st := range g.Stages() {
		n := cluster.Node(st.ID().String())
		n.Attr("label", fmt.Sprintf("%s\n%s", st.Name(), st.Kind()))
		n.Attr("shape", "box")
		if st.IsAsync() {
			n.Attr("style", "rounded")
		}

		if prevStage == nil {
			first = n
		} else {
			root.Edge(prev, n).Attr("label", typeName(prevStage))
		}
		prev, prevStage = n, st
	}

	for _, b := range g.Branches() {
		entry, ok := w.graph(b)
		if prevStage == nil || !ok {
			continue
		}

		e := root.Edge(prev, entry)
		e.Attr("label", typeName(prevStage))
		switch b.Route() {
		case flow.RouteBroadcast:
			e.Attr("color", "red")
		case flow.RouteDefault:
			e.Attr("color", "blue")
			e.Attr("style", "dashed")
		default:
			e.Attr("color", "blue")
		}
	}
	return first, prevStage != nil
}

func typeName(st *flow.Stage) string {
	if st.OutType() == nil {
		return ""
	}
	return st.OutType().String()
}

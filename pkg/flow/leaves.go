package flow

// CollectLeaves returns the terminal stages of g: its last stage when it has
// no branches, otherwise the leaves of every branch, depth first and in
// branch order.
func CollectLeaves(g *Graph) []*Stage {
	if g == nil {
		return nil
	}
	if len(g.branches) == 0 {
		if last := g.Last(); last != nil {
			return []*Stage{last}
		}
		return nil
	}

	var leaves []*Stage
	for _, b := range g.branches {
		leaves = append(leaves, CollectLeaves(b)...)
	}
	return leaves
}

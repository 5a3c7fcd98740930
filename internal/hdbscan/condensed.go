package hdbscan

import "sort"

// cnode is one node of the condensed cluster tree. A node is created either
// when two not-yet-established components merge and cross MinClusterSize
// together (a brand new cluster), or when two already-established nodes
// merge (a true split point in the hierarchy).
//
// formationLambda is 1/weight of the merge that created this node (its
// finest, highest-resolution lambda). absorptionLambda is 1/weight of the
// later, coarser merge that consumes this node into its parent; it stays 0
// for whichever single node survives to the root (never consumed).
type cnode struct {
	id                int
	formationLambda   float64
	absorptionLambda  float64
	members           []int
	children          []*cnode
	stability         float64
	stabilityComputed bool
	selected          bool
}

type unionFind struct {
	parent  []int
	size    []int
	members [][]int
	node    []*cnode // established cluster node for this root, nil if not yet promoted
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{
		parent:  make([]int, n),
		size:    make([]int, n),
		members: make([][]int, n),
		node:    make([]*cnode, n),
	}
	for i := 0; i < n; i++ {
		uf.parent[i] = i
		uf.size[i] = 1
		uf.members[i] = []int{i}
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

// union merges the roots of a and b, appending the smaller member list into
// the larger, and returns the new root plus the two prior (pre-merge) roots
// in no particular order.
func (uf *unionFind) union(a, b int) (newRoot, rootA, rootB int) {
	rootA, rootB = uf.find(a), uf.find(b)
	if rootA == rootB {
		return rootA, rootA, rootB
	}
	if uf.size[rootA] < uf.size[rootB] {
		rootA, rootB = rootB, rootA
	}
	uf.parent[rootB] = rootA
	uf.size[rootA] += uf.size[rootB]
	uf.members[rootA] = append(uf.members[rootA], uf.members[rootB]...)
	uf.members[rootB] = nil
	return rootA, rootA, rootB
}

// condensedTree is the outcome of sweeping the MST edges in ascending weight
// order and applying the promotion/absorption/split rules described above.
type condensedTree struct {
	roots            []*cnode // top-level nodes (normally exactly one)
	pointLeaveLambda []float64
}

// buildCondensedTree sweeps MST edges ascending by weight and constructs the
// cluster hierarchy per the promotion rules: a merge that lifts a component
// to >= minClusterSize for the first time creates a new cluster node; a
// merge of an established node with a too-small component folds the small
// component's points into the established node as lower-confidence members
// ("falls out", noise-at-this-scale) without creating a new node; a merge of
// two established nodes closes both and creates their parent.
func buildCondensedTree(n int, edges []mstEdge, minClusterSize int) *condensedTree {
	uf := newUnionFind(n)
	leaveLambda := make([]float64, n)
	for i := range leaveLambda {
		leaveLambda[i] = -1 // unset
	}

	sorted := make([]mstEdge, len(edges))
	copy(sorted, edges)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].weight < sorted[j].weight })

	nextID := n
	var lastNode *cnode

	for _, e := range sorted {
		rootA, rootB := uf.find(e.a), uf.find(e.b)
		if rootA == rootB {
			continue
		}
		lambda := 1.0 / float64(e.weight)
		sizeA, sizeB := uf.size[rootA], uf.size[rootB]
		nodeA, nodeB := uf.node[rootA], uf.node[rootB]

		switch {
		case nodeA != nil && nodeB != nil:
			// Two established clusters meet: both close, their parent is born.
			nodeA.absorptionLambda = lambda
			nodeB.absorptionLambda = lambda
			nodeA.stability = computeStability(nodeA, leaveLambda)
			nodeA.stabilityComputed = true
			nodeB.stability = computeStability(nodeB, leaveLambda)
			nodeB.stabilityComputed = true

			parent := &cnode{id: nextID, formationLambda: lambda, children: []*cnode{nodeA, nodeB}}
			nextID++
			parent.members = append(append([]int{}, nodeA.members...), nodeB.members...)

			newRoot, _, _ := uf.union(rootA, rootB)
			uf.node[newRoot] = parent
			lastNode = parent

		case nodeA != nil || nodeB != nil:
			big, small := nodeA, rootB
			if nodeA == nil {
				big, small = nodeB, rootA
			}
			for _, p := range uf.members[small] {
				if leaveLambda[p] < 0 {
					leaveLambda[p] = lambda
				}
			}
			big.members = append(big.members, uf.members[small]...)

			newRoot, _, _ := uf.union(rootA, rootB)
			uf.node[newRoot] = big
			lastNode = big

		default:
			newSize := sizeA + sizeB
			newRoot, _, _ := uf.union(rootA, rootB)
			if newSize >= minClusterSize {
				node := &cnode{id: nextID, formationLambda: lambda}
				nextID++
				node.members = append([]int{}, uf.members[newRoot]...)
				for _, p := range node.members {
					if leaveLambda[p] < 0 {
						leaveLambda[p] = lambda
					}
				}
				uf.node[newRoot] = node
				lastNode = node
			}
		}
	}

	// Any point never absorbed into a node (can happen only if the entire
	// dataset never reaches minClusterSize) is pure noise with no leave event.
	for i := range leaveLambda {
		if leaveLambda[i] < 0 {
			leaveLambda[i] = 0
		}
	}

	var roots []*cnode
	if lastNode != nil {
		if !lastNode.stabilityComputed {
			lastNode.stability = computeStability(lastNode, leaveLambda)
			lastNode.stabilityComputed = true
		}
		roots = []*cnode{lastNode}
	}

	return &condensedTree{roots: roots, pointLeaveLambda: leaveLambda}
}

func computeStability(node *cnode, leaveLambda []float64) float64 {
	var s float64
	for _, p := range node.members {
		s += leaveLambda[p] - node.absorptionLambda
	}
	return s
}

// selectClusters runs excess-of-mass or leaf selection over the condensed
// tree, assigning Selected in place, and returns the selected nodes in
// selection order (pre-order, so labels are stable and reproducible).
func selectClusters(roots []*cnode, method SelectionMethod) []*cnode {
	if method == SelectionLeaf {
		var leaves []*cnode
		var walk func(n *cnode)
		walk = func(n *cnode) {
			if len(n.children) == 0 {
				n.selected = true
				leaves = append(leaves, n)
				return
			}
			for _, c := range n.children {
				walk(c)
			}
		}
		for _, r := range roots {
			walk(r)
		}
		return leaves
	}

	var eom func(n *cnode) float64
	eom = func(n *cnode) float64 {
		if len(n.children) == 0 {
			n.selected = true
			return n.stability
		}
		var childSum float64
		for _, c := range n.children {
			childSum += eom(c)
		}
		if n.stability >= childSum {
			n.selected = true
			deselectDescendants(n)
			return n.stability
		}
		n.selected = false
		return childSum
	}
	for _, r := range roots {
		eom(r)
	}

	var selected []*cnode
	var collect func(n *cnode)
	collect = func(n *cnode) {
		if n.selected {
			selected = append(selected, n)
			return
		}
		for _, c := range n.children {
			collect(c)
		}
	}
	for _, r := range roots {
		collect(r)
	}
	return selected
}

func deselectDescendants(n *cnode) {
	for _, c := range n.children {
		c.selected = false
		deselectDescendants(c)
	}
}

// labelPoints assigns each point the label of the deepest selected node that
// contains it (pre-order so a deeper, more specific selected node overwrites
// its selected ancestor), and -1 for points touched by no selected node.
func labelPoints(n int, roots []*cnode) []int {
	labels := make([]int, n)
	for i := range labels {
		labels[i] = NoiseLabel
	}
	clusterIDs := map[int]int{}
	nextLabel := 0

	var walk func(node *cnode)
	walk = func(node *cnode) {
		if node.selected {
			if _, ok := clusterIDs[node.id]; !ok {
				clusterIDs[node.id] = nextLabel
				nextLabel++
			}
			label := clusterIDs[node.id]
			for _, p := range node.members {
				labels[p] = label
			}
		}
		for _, c := range node.children {
			walk(c)
		}
	}
	for _, r := range roots {
		walk(r)
	}
	return labels
}

// probabilitiesAndOutliers computes per-point soft membership strength and a
// GLOSH-like outlier score. For a point assigned to a selected node, the
// probability is its leave lambda over the node's formation lambda (1.0 for
// points that stayed core members all the way to the node's own formation,
// lower for points folded in from a smaller, absorbed component). The
// outlier score is 1 minus the leave lambda over the formation lambda of the
// deepest node the point ever touched, selected or not.
func probabilitiesAndOutliers(n int, roots []*cnode, leaveLambda []float64, labels []int) ([]float64, []float64) {
	probs := make([]float64, n)
	outliers := make([]float64, n)
	deepestFormation := make([]float64, n)
	selectedFormation := make([]float64, n)

	var walk func(node *cnode)
	walk = func(node *cnode) {
		for _, p := range node.members {
			deepestFormation[p] = node.formationLambda
			if node.selected {
				selectedFormation[p] = node.formationLambda
			}
		}
		for _, c := range node.children {
			walk(c)
		}
	}
	for _, r := range roots {
		walk(r)
	}

	for i := 0; i < n; i++ {
		if deepestFormation[i] > 0 {
			ratio := leaveLambda[i] / deepestFormation[i]
			outliers[i] = clamp01(1 - ratio)
		} else {
			outliers[i] = 1
		}

		if labels[i] == NoiseLabel || selectedFormation[i] <= 0 {
			probs[i] = 0
			continue
		}
		probs[i] = clamp01(leaveLambda[i] / selectedFormation[i])
	}
	return probs, outliers
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

package octree

import (
	"container/heap"

	"github.com/golang/geo/r3"
)

// QueryRange returns every object matching the given region: point objects
// whose position the region contains, bounded objects whose extent
// intersects it. Subtrees whose bounds do not intersect the region are never
// visited. The result order is unspecified.
func (o *Octree) QueryRange(region Box) []Object {
	var out []Object
	if !o.bounds.Intersects(region) {
		return out
	}
	o.root.mu.RLock()
	o.root.queryRange(region, &out)
	return out
}

// queryRange appends matching objects from this subtree to out. The caller
// holds n's read lock; it is released before returning so sibling subtrees
// are never locked together.
func (n *node) queryRange(region Box, out *[]Object) {
	for _, obj := range n.objects {
		if obj.matchesRegion(region) {
			*out = append(*out, obj)
		}
	}
	children := n.children
	n.mu.RUnlock()
	for _, child := range children {
		if child.bounds.Intersects(region) {
			child.mu.RLock()
			child.queryRange(region, out)
		}
	}
}

// QueryNearest returns up to k objects ordered by ascending distance from p
// to their position, ties broken by ascending id. The traversal is best
// first: nodes are visited in order of minimum possible distance and a
// subtree is skipped once it cannot beat the current k-th best candidate.
func (o *Octree) QueryNearest(p r3.Vector, k int) []Object {
	if k <= 0 {
		return nil
	}

	pending := &nodeQueue{nodeEntry{o.root, o.root.bounds.DistanceSquaredTo(p)}}
	best := &candidateHeap{}
	for pending.Len() > 0 {
		entry := heap.Pop(pending).(nodeEntry)
		if best.Len() == k && entry.distSq > (*best)[0].distSq {
			// Every remaining node is at least this far away.
			break
		}
		n := entry.n
		n.mu.RLock()
		for _, obj := range n.objects {
			d := obj.Position.Sub(p).Norm2()
			switch {
			case best.Len() < k:
				heap.Push(best, candidate{obj, d})
			case d < (*best)[0].distSq || (d == (*best)[0].distSq && obj.ID < (*best)[0].obj.ID):
				(*best)[0] = candidate{obj, d}
				heap.Fix(best, 0)
			}
		}
		children := n.children
		n.mu.RUnlock()
		for _, child := range children {
			heap.Push(pending, nodeEntry{child, child.bounds.DistanceSquaredTo(p)})
		}
	}

	out := make([]Object, best.Len())
	for i := best.Len() - 1; i >= 0; i-- {
		out[i] = heap.Pop(best).(candidate).obj
	}
	return out
}

type nodeEntry struct {
	n      *node
	distSq float64
}

// nodeQueue is a min-heap of unvisited nodes keyed by minimum possible
// distance to the query point.
type nodeQueue []nodeEntry

func (q nodeQueue) Len() int            { return len(q) }
func (q nodeQueue) Less(i, j int) bool  { return q[i].distSq < q[j].distSq }
func (q nodeQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *nodeQueue) Push(x interface{}) { *q = append(*q, x.(nodeEntry)) }
func (q *nodeQueue) Pop() interface{} {
	old := *q
	last := old[len(old)-1]
	*q = old[:len(old)-1]
	return last
}

type candidate struct {
	obj    Object
	distSq float64
}

// candidateHeap keeps the k best candidates seen so far with the worst on
// top, ordering by distance and then id so results are deterministic.
type candidateHeap []candidate

func (h candidateHeap) Len() int { return len(h) }
func (h candidateHeap) Less(i, j int) bool {
	if h[i].distSq != h[j].distSq {
		return h[i].distSq > h[j].distSq
	}
	return h[i].obj.ID > h[j].obj.ID
}
func (h candidateHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *candidateHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *candidateHeap) Pop() interface{} {
	old := *h
	last := old[len(old)-1]
	*h = old[:len(old)-1]
	return last
}

// NodeInfo describes one node of the tree at a point in time.
type NodeInfo struct {
	Bounds Box
	Depth  int
	// Leaf reports whether the node held its objects directly, with no
	// children.
	Leaf bool
	// Objects is how many objects the node held directly: its contents for
	// a leaf, boundary straddlers for an internal node.
	Objects int
}

// Nodes returns a snapshot of the current tree structure in depth-first
// order, useful for diagnostics and rendering.
func (o *Octree) Nodes() []NodeInfo {
	var out []NodeInfo
	o.root.mu.RLock()
	o.root.describe(&out)
	return out
}

func (n *node) describe(out *[]NodeInfo) {
	*out = append(*out, NodeInfo{Bounds: n.bounds, Depth: n.depth, Leaf: n.isLeaf(), Objects: len(n.objects)})
	children := n.children
	n.mu.RUnlock()
	for _, child := range children {
		child.mu.RLock()
		child.describe(out)
	}
}

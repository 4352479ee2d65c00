package octree

import "sync"

// node is a single region of the tree. A leaf holds objects directly; an
// internal node holds eight children covering its octants plus any objects
// whose extent straddles a child boundary. A node's state may only be read
// or changed while its lock is held, and operations that take multiple locks
// always acquire parent before child, children in octant order, so lock
// order follows tree order.
type node struct {
	mu       sync.RWMutex
	bounds   Box
	depth    int
	children []*node
	objects  map[ObjectID]Object

	// count is the number of objects stored in this node and everything
	// below it. Mutations adjust it on the way down while holding mu.
	count int
}

func newNode(bounds Box, depth int) *node {
	return &node{
		bounds:  bounds,
		depth:   depth,
		objects: map[ObjectID]Object{},
	}
}

func (n *node) isLeaf() bool {
	return n.children == nil
}

// childFor returns the child the object routes to, or nil when the object
// must stay at this node as overflow. Point objects always route to exactly
// one octant; bounded objects route only when the candidate octant fully
// contains their extent.
func (n *node) childFor(obj Object) *node {
	child := n.children[n.bounds.octantIndex(obj.routePoint())]
	if obj.Extent != nil && !child.bounds.ContainsBox(*obj.Extent) {
		return nil
	}
	return child
}

// split converts a leaf into an internal node, moving every object into the
// octant that holds it and keeping boundary straddlers local. The children
// are fully built and populated before anything links to them and the caller
// holds n's write lock throughout, so no reader can observe a partially
// populated split. A child pushed over the threshold by redistribution
// splits again before it becomes reachable.
func (n *node) split(cfg Config, counters *statCounters) {
	children := make([]*node, 8)
	for i := range children {
		children[i] = newNode(n.bounds.Octant(i), n.depth+1)
	}
	n.children = children

	keep := map[ObjectID]Object{}
	for id, obj := range n.objects {
		if child := n.childFor(obj); child != nil {
			child.objects[id] = obj
			child.count++
		} else {
			keep[id] = obj
		}
	}
	n.objects = keep
	counters.splits.Inc()
	counters.observeDepth(n.depth + 1)

	for _, child := range children {
		if len(child.objects) > cfg.SplitThreshold {
			if child.depth < cfg.MaxDepth {
				child.split(cfg, counters)
			} else {
				counters.depthLimited.Inc()
			}
		}
	}
}

// collapse flattens the whole subtree into this node, turning it back into a
// leaf. The caller holds n's write lock. Descendant object maps are copied
// rather than taken so that a reader already below this node keeps a
// consistent view of the region it entered; the detached nodes are dropped
// once those readers leave.
func (n *node) collapse(counters *statCounters) {
	merged := make(map[ObjectID]Object, n.count)
	for id, obj := range n.objects {
		merged[id] = obj
	}
	for _, child := range n.children {
		child.gatherLocked(merged)
	}
	n.children = nil
	n.objects = merged
	counters.merges.Inc()
}

// gatherLocked copies every object in the subtree into dst, locking each
// node before reading it. Mutations still in flight below the collapse point
// hold a lock on their current node, so the copy always lands behind them
// and picks up their finished writes.
func (n *node) gatherLocked(dst map[ObjectID]Object) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for id, obj := range n.objects {
		dst[id] = obj
	}
	for _, child := range n.children {
		child.gatherLocked(dst)
	}
}

// Package octree implements a concurrent spatial index over a bounded three
// dimensional volume. Objects with a position, and optionally an axis-aligned
// extent, are stored in a tree of cuboid regions that split into octants as
// they fill and merge back as they drain, so range and nearest-neighbor
// queries stay sub-linear while the population moves between ticks.
//
// Every operation may be called from any goroutine. Synchronization is per
// node, so work in disjoint regions proceeds in parallel, and operations on
// the same object id are strictly ordered. Queries do not block mutations;
// a query observes each node atomically and sees every object exactly once
// under a quiescent tree, while an object relocated mid-query may be observed
// at its old position, its new one, both or neither.
package octree

import (
	"context"
	"sync"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

// Config holds the occupancy thresholds that drive splitting and merging.
type Config struct {
	// SplitThreshold is the number of objects a leaf may hold before it
	// splits into octants.
	SplitThreshold int
	// MergeThreshold is the subtree occupancy at or below which an internal
	// node collapses its children back into a single leaf. It must not
	// exceed SplitThreshold or a merge would immediately re-split.
	MergeThreshold int
	// MaxDepth caps how deep the tree may split; the root is depth zero.
	// A leaf at the cap accepts occupancy beyond SplitThreshold instead of
	// splitting further, so degenerately clustered objects cannot recurse
	// forever.
	MaxDepth int
}

// DefaultConfig returns the thresholds used when callers have no tuning of
// their own.
func DefaultConfig() Config {
	return Config{SplitThreshold: 8, MergeThreshold: 4, MaxDepth: 10}
}

const indexStripes = 64

// Octree is a spatial index over a fixed cuboid volume. Create one with New.
type Octree struct {
	logger golog.Logger
	bounds Box
	cfg    Config
	root   *node

	// index tracks every live id and the object as last written. The map
	// itself is guarded by indexMu; ordering between operations on the same
	// id comes from the stripe locks, which are held across the whole
	// mutation so the index and the tree always agree on membership.
	indexMu sync.RWMutex
	index   map[ObjectID]Object
	stripes [indexStripes]sync.Mutex

	size     atomic.Int64
	counters statCounters
}

// New creates an empty octree indexing the given bounds.
func New(bounds Box, cfg Config, logger golog.Logger) (*Octree, error) {
	if err := bounds.validate(); err != nil {
		return nil, errors.Wrap(err, "invalid root bounds")
	}
	if cfg.SplitThreshold < 1 {
		return nil, errors.Errorf("split threshold must be at least 1, got %d", cfg.SplitThreshold)
	}
	if cfg.MergeThreshold < 0 || cfg.MergeThreshold > cfg.SplitThreshold {
		return nil, errors.Errorf("merge threshold must be between 0 and the split threshold, got %d", cfg.MergeThreshold)
	}
	if cfg.MaxDepth < 0 {
		return nil, errors.Errorf("max depth must be non-negative, got %d", cfg.MaxDepth)
	}
	if logger == nil {
		logger = golog.Global()
	}
	o := &Octree{
		logger: logger,
		bounds: bounds,
		cfg:    cfg,
		root:   newNode(bounds, 0),
		index:  map[ObjectID]Object{},
	}
	logger.Debugw("created octree", "center", bounds.Center, "half_extents", bounds.HalfExtents,
		"split_threshold", cfg.SplitThreshold, "merge_threshold", cfg.MergeThreshold, "max_depth", cfg.MaxDepth)
	return o, nil
}

// Bounds returns the volume the tree indexes.
func (o *Octree) Bounds() Box {
	return o.bounds
}

// Config returns the thresholds the tree was created with.
func (o *Octree) Config() Config {
	return o.cfg
}

// Size returns the number of objects currently stored.
func (o *Octree) Size() int {
	return int(o.size.Load())
}

// Stats returns a snapshot of the tree's activity counters.
func (o *Octree) Stats() Stats {
	return Stats{
		Objects:      o.size.Load(),
		Splits:       o.counters.splits.Load(),
		Merges:       o.counters.merges.Load(),
		DepthLimited: o.counters.depthLimited.Load(),
		MaxDepth:     o.counters.maxDepth.Load(),
	}
}

// Objects returns a snapshot of every object currently stored, in no
// particular order.
func (o *Octree) Objects() []Object {
	o.indexMu.RLock()
	defer o.indexMu.RUnlock()
	out := make([]Object, 0, len(o.index))
	for _, obj := range o.index {
		out = append(out, obj)
	}
	return out
}

func (o *Octree) stripeFor(id ObjectID) *sync.Mutex {
	return &o.stripes[uint64(id)&(indexStripes-1)]
}

// inBounds reports whether the tree's bounds hold the object: the whole
// extent for bounded objects, the position for point objects.
func (o *Octree) inBounds(obj Object) bool {
	if obj.Extent != nil {
		return o.bounds.ContainsBox(*obj.Extent)
	}
	return o.bounds.ContainsPoint(obj.Position)
}

// Insert adds an object to the tree. It fails with ErrOutOfBounds when the
// object does not fit inside the root bounds and with ErrDuplicateID when
// the id is already present; either way the tree is unchanged.
func (o *Octree) Insert(obj Object) error {
	if obj.Extent != nil {
		if err := obj.Extent.validate(); err != nil {
			return errors.Wrap(err, "invalid object extent")
		}
	}
	if !o.inBounds(obj) {
		return errors.Wrapf(ErrOutOfBounds, "cannot insert object %d at %v", obj.ID, obj.Position)
	}

	stripe := o.stripeFor(obj.ID)
	stripe.Lock()
	defer stripe.Unlock()

	o.indexMu.Lock()
	if _, ok := o.index[obj.ID]; ok {
		o.indexMu.Unlock()
		return errors.Wrapf(ErrDuplicateID, "cannot insert object %d", obj.ID)
	}
	o.indexMu.Unlock()

	o.insertIntoTree(obj)

	o.indexMu.Lock()
	o.index[obj.ID] = obj
	o.indexMu.Unlock()
	o.size.Inc()
	return nil
}

// InsertBatch loads objects across parallel workers, stopping at the first
// failure. Objects inserted before the failure remain in the tree.
func (o *Octree) InsertBatch(ctx context.Context, objs []Object, parallelism int) error {
	if parallelism < 1 {
		parallelism = 1
	}
	group, ctx := errgroup.WithContext(ctx)
	chunk := (len(objs) + parallelism - 1) / parallelism
	for start := 0; start < len(objs); start += chunk {
		batch := objs[start:min(start+chunk, len(objs))]
		group.Go(func() error {
			for _, obj := range batch {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := o.Insert(obj); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return group.Wait()
}

// Remove deletes the object with the given id, failing with ErrNotFound when
// it is not present.
func (o *Octree) Remove(id ObjectID) error {
	stripe := o.stripeFor(id)
	stripe.Lock()
	defer stripe.Unlock()

	o.indexMu.Lock()
	obj, ok := o.index[id]
	if !ok {
		o.indexMu.Unlock()
		return errors.Wrapf(ErrNotFound, "cannot remove object %d", id)
	}
	delete(o.index, id)
	o.indexMu.Unlock()

	if !o.removeFromTree(obj) {
		o.logger.Errorw("object missing from tree during remove", "id", id, "position", obj.Position)
	}
	o.size.Dec()
	return nil
}

// Update moves the object with the given id to a new position, translating
// any extent by the same offset. It fails with ErrNotFound for an unknown id
// and with ErrOutOfBounds when the destination leaves the root bounds; on
// failure the object stays where it was. When the new position keeps the
// object in the node already holding it, the move is applied in place
// without restructuring.
func (o *Octree) Update(id ObjectID, position r3.Vector) error {
	stripe := o.stripeFor(id)
	stripe.Lock()
	defer stripe.Unlock()

	o.indexMu.RLock()
	obj, ok := o.index[id]
	o.indexMu.RUnlock()
	if !ok {
		return errors.Wrapf(ErrNotFound, "cannot update object %d", id)
	}

	moved := obj.translatedTo(position)
	if !o.inBounds(moved) {
		return errors.Wrapf(ErrOutOfBounds, "cannot move object %d to %v", id, position)
	}

	if !o.tryUpdateInPlace(obj, moved) {
		if !o.removeFromTree(obj) {
			o.logger.Errorw("object missing from tree during update", "id", id, "position", obj.Position)
		}
		o.insertIntoTree(moved)
	}

	o.indexMu.Lock()
	o.index[id] = moved
	o.indexMu.Unlock()
	return nil
}

// insertIntoTree walks the object down to its home node with hand over hand
// write locking, bumping subtree counts on the way. The caller has already
// validated bounds and id, so the walk cannot fail.
func (o *Octree) insertIntoTree(obj Object) {
	n := o.root
	n.mu.Lock()
	for {
		n.count++
		if !n.isLeaf() {
			child := n.childFor(obj)
			if child == nil {
				// Straddles a child boundary; stays here as overflow.
				n.objects[obj.ID] = obj
				n.mu.Unlock()
				return
			}
			child.mu.Lock()
			n.mu.Unlock()
			n = child
			continue
		}

		n.objects[obj.ID] = obj
		if len(n.objects) > o.cfg.SplitThreshold {
			if n.depth < o.cfg.MaxDepth {
				n.split(o.cfg, &o.counters)
				o.logger.Debugw("split node", "center", n.bounds.Center, "depth", n.depth)
			} else {
				o.counters.depthLimited.Inc()
			}
		}
		n.mu.Unlock()
		return
	}
}

// removeFromTree walks toward the object's recorded placement, dropping
// subtree counts on the way and collapsing any internal node whose occupancy
// falls to the merge threshold. It reports whether the object was found; the
// stripe lock held by the caller guarantees it is, so false means the index
// and the tree disagree.
func (o *Octree) removeFromTree(obj Object) bool {
	n := o.root
	n.mu.Lock()
	for {
		n.count--
		if !n.isLeaf() && n.count <= o.cfg.MergeThreshold {
			n.collapse(&o.counters)
			o.logger.Debugw("merged subtree into leaf", "center", n.bounds.Center, "depth", n.depth, "occupancy", n.count)
		}
		if _, ok := n.objects[obj.ID]; ok {
			delete(n.objects, obj.ID)
			n.mu.Unlock()
			return true
		}
		if n.isLeaf() {
			n.mu.Unlock()
			return false
		}
		child := n.childFor(obj)
		if child == nil {
			n.mu.Unlock()
			return false
		}
		child.mu.Lock()
		n.mu.Unlock()
		n = child
	}
}

// tryUpdateInPlace walks to the node holding the object and, when that node
// remains the correct home for the moved object, swaps it in place without
// touching counts or structure. It reports whether the swap happened.
func (o *Octree) tryUpdateInPlace(obj, moved Object) bool {
	n := o.root
	n.mu.Lock()
	for {
		if _, ok := n.objects[obj.ID]; ok {
			if o.staysAt(n, moved) {
				n.objects[obj.ID] = moved
				n.mu.Unlock()
				return true
			}
			n.mu.Unlock()
			return false
		}
		if n.isLeaf() {
			n.mu.Unlock()
			return false
		}
		child := n.childFor(obj)
		if child == nil {
			n.mu.Unlock()
			return false
		}
		child.mu.Lock()
		n.mu.Unlock()
		n = child
	}
}

// staysAt reports whether n remains the correct home for the moved object:
// its bounds still hold the object and, for an internal node, the object
// still fails to fit into a single child.
func (o *Octree) staysAt(n *node, moved Object) bool {
	if moved.Extent != nil {
		if !n.bounds.ContainsBox(*moved.Extent) {
			return false
		}
	} else if !n.bounds.ContainsPoint(moved.Position) {
		return false
	}
	if n.isLeaf() {
		return true
	}
	return n.childFor(moved) == nil
}

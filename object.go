package octree

import "github.com/golang/geo/r3"

// ObjectID uniquely identifies an object within a single Octree. IDs are
// chosen by the caller; the tree never generates them.
type ObjectID uint64

// Object is a payload tracked by the index. Position is the point the object
// is stored and ranked by. Extent, when set, is the object's axis-aligned
// bounding volume; an object whose extent straddles an octant boundary is
// held by the deepest node that fully contains the extent instead of being
// pushed into a child.
type Object struct {
	ID       ObjectID
	Position r3.Vector
	Extent   *Box
}

// Bounded reports whether the object carries a bounding volume.
func (o Object) Bounded() bool {
	return o.Extent != nil
}

// routePoint is the point used to pick an octant for the object. Bounded
// objects route by the center of their extent so that routing stays
// deterministic even when the extent lies on a shared face.
func (o Object) routePoint() r3.Vector {
	if o.Extent != nil {
		return o.Extent.Center
	}
	return o.Position
}

// translatedTo returns a copy of the object moved so that its position
// becomes pos, with any extent shifted by the same offset.
func (o Object) translatedTo(pos r3.Vector) Object {
	moved := o
	moved.Position = pos
	if o.Extent != nil {
		extent := Box{Center: o.Extent.Center.Add(pos.Sub(o.Position)), HalfExtents: o.Extent.HalfExtents}
		moved.Extent = &extent
	}
	return moved
}

// matchesRegion reports whether the object belongs to a range query over
// region. Bounded objects match when their extent intersects the region,
// point objects when the region contains their position.
func (o Object) matchesRegion(region Box) bool {
	if o.Extent != nil {
		return region.Intersects(*o.Extent)
	}
	return region.ContainsPoint(o.Position)
}

package octree

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// Box is an axis-aligned cuboid described by its center and per-axis half
// extents. A zero half extent on an axis is valid and collapses the box to a
// single coordinate on that axis.
type Box struct {
	Center      r3.Vector
	HalfExtents r3.Vector
}

// NewBox creates a box from a center point and per-axis half extents.
func NewBox(center, halfExtents r3.Vector) (Box, error) {
	b := Box{Center: center, HalfExtents: halfExtents}
	if err := b.validate(); err != nil {
		return Box{}, err
	}
	return b, nil
}

func (b Box) validate() error {
	for _, v := range []float64{
		b.Center.X, b.Center.Y, b.Center.Z,
		b.HalfExtents.X, b.HalfExtents.Y, b.HalfExtents.Z,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Errorf("box coordinates must be finite, got center %v with half extents %v", b.Center, b.HalfExtents)
		}
	}
	if b.HalfExtents.X < 0 || b.HalfExtents.Y < 0 || b.HalfExtents.Z < 0 {
		return errors.Errorf("box half extents must be non-negative, got %v", b.HalfExtents)
	}
	return nil
}

// Min returns the corner of the box with the smallest coordinate on every axis.
func (b Box) Min() r3.Vector {
	return b.Center.Sub(b.HalfExtents)
}

// Max returns the corner of the box with the largest coordinate on every axis.
func (b Box) Max() r3.Vector {
	return b.Center.Add(b.HalfExtents)
}

// ContainsPoint reports whether p lies within the box. Each axis is treated
// as a half-open interval, closed at the minimum and open at the maximum, so
// a point on the face shared by two adjacent boxes belongs to exactly one of
// them. An axis with zero extent matches only its single coordinate.
func (b Box) ContainsPoint(p r3.Vector) bool {
	bMin, bMax := b.Min(), b.Max()
	return containsCoord(bMin.X, bMax.X, p.X) &&
		containsCoord(bMin.Y, bMax.Y, p.Y) &&
		containsCoord(bMin.Z, bMax.Z, p.Z)
}

func containsCoord(lo, hi, v float64) bool {
	if lo == hi {
		return v == lo
	}
	return lo <= v && v < hi
}

// ContainsBox reports whether other lies entirely within the box. Unlike
// ContainsPoint the comparison is closed on both sides, so a box that reaches
// an outer face still counts as contained.
func (b Box) ContainsBox(other Box) bool {
	bMin, bMax := b.Min(), b.Max()
	oMin, oMax := other.Min(), other.Max()
	return bMin.X <= oMin.X && oMax.X <= bMax.X &&
		bMin.Y <= oMin.Y && oMax.Y <= bMax.Y &&
		bMin.Z <= oMin.Z && oMax.Z <= bMax.Z
}

// Intersects reports whether the two boxes overlap. Boxes that only touch on
// a face, edge or corner count as intersecting.
func (b Box) Intersects(other Box) bool {
	return math.Abs(b.Center.X-other.Center.X) <= b.HalfExtents.X+other.HalfExtents.X &&
		math.Abs(b.Center.Y-other.Center.Y) <= b.HalfExtents.Y+other.HalfExtents.Y &&
		math.Abs(b.Center.Z-other.Center.Z) <= b.HalfExtents.Z+other.HalfExtents.Z
}

// Octant returns the i-th of the eight equal sub-boxes obtained by bisecting
// the box at its center. Bit 0 of i selects the upper x half, bit 1 the upper
// y half and bit 2 the upper z half.
func (b Box) Octant(i int) Box {
	half := b.HalfExtents.Mul(0.5)
	offset := half
	if i&1 == 0 {
		offset.X = -offset.X
	}
	if i&2 == 0 {
		offset.Y = -offset.Y
	}
	if i&4 == 0 {
		offset.Z = -offset.Z
	}
	return Box{Center: b.Center.Add(offset), HalfExtents: half}
}

// octantIndex returns the octant p routes to under the same bit convention as
// Octant. A coordinate equal to the center goes to the upper half, matching
// the closed minimum of the upper octant, so every point routes to exactly
// one octant.
func (b Box) octantIndex(p r3.Vector) int {
	i := 0
	if p.X >= b.Center.X {
		i |= 1
	}
	if p.Y >= b.Center.Y {
		i |= 2
	}
	if p.Z >= b.Center.Z {
		i |= 4
	}
	return i
}

// DistanceSquaredTo returns the squared distance from p to the closest point
// of the box, zero when p is inside it.
func (b Box) DistanceSquaredTo(p r3.Vector) float64 {
	bMin, bMax := b.Min(), b.Max()
	dx := axisDistance(bMin.X, bMax.X, p.X)
	dy := axisDistance(bMin.Y, bMax.Y, p.Y)
	dz := axisDistance(bMin.Z, bMax.Z, p.Z)
	return dx*dx + dy*dy + dz*dz
}

func axisDistance(lo, hi, v float64) float64 {
	switch {
	case v < lo:
		return lo - v
	case v > hi:
		return v - hi
	default:
		return 0
	}
}

package octree

import "go.uber.org/atomic"

// Stats is a point-in-time snapshot of tree activity.
type Stats struct {
	// Objects is the number of objects currently stored.
	Objects int64
	// Splits and Merges count structural changes since construction.
	Splits int64
	Merges int64
	// DepthLimited counts the times a leaf at MaxDepth accepted occupancy
	// beyond the split threshold instead of splitting further.
	DepthLimited int64
	// MaxDepth is the deepest level any split has created so far.
	MaxDepth int64
}

type statCounters struct {
	splits       atomic.Int64
	merges       atomic.Int64
	depthLimited atomic.Int64
	maxDepth     atomic.Int64
}

func (s *statCounters) observeDepth(depth int) {
	for {
		cur := s.maxDepth.Load()
		if int64(depth) <= cur || s.maxDepth.CompareAndSwap(cur, int64(depth)) {
			return
		}
	}
}

package octree

import (
	"context"
	"sync"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

// workerPosition derives a deterministic in-bounds position for an id at a
// given step, shared by the racing workers and the final assertions.
func workerPosition(id ObjectID, step int) r3.Vector {
	n := uint64(id)*31 + uint64(step)*17
	return r3.Vector{
		X: float64(n%37) - 18,
		Y: float64((n/37)%37) - 18,
		Z: float64((n/(37*37))%37) - 18,
	}
}

func TestConcurrentDisjointInserts(t *testing.T) {
	const workers = 8
	const perWorker = 250

	o := newTestOctree(t, testCube(20), Config{SplitThreshold: 4, MergeThreshold: 2, MaxDepth: 8})

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id := ObjectID(w*perWorker + i + 1)
				if err := o.Insert(Object{ID: id, Position: workerPosition(id, 0)}); err != nil {
					t.Error(err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	test.That(t, o.Size(), test.ShouldEqual, workers*perWorker)
	want := make([]ObjectID, workers*perWorker)
	for i := range want {
		want[i] = ObjectID(i + 1)
	}
	test.That(t, sortedIDs(o.QueryRange(o.Bounds())), test.ShouldResemble, want)
	validateTree(t, o)
}

func TestConcurrentMixedWorkload(t *testing.T) {
	const workers = 6
	const perWorker = 120
	const moves = 3

	o := newTestOctree(t, testCube(20), Config{SplitThreshold: 2, MergeThreshold: 1, MaxDepth: 8})

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			base := w * perWorker
			for i := 0; i < perWorker; i++ {
				id := ObjectID(base + i + 1)
				if err := o.Insert(Object{ID: id, Position: workerPosition(id, 0)}); err != nil {
					t.Error(err)
					return
				}
				for step := 1; step <= moves; step++ {
					if err := o.Update(id, workerPosition(id, step)); err != nil {
						t.Error(err)
						return
					}
				}
				if i%3 == 0 {
					if err := o.Remove(id); err != nil {
						t.Error(err)
						return
					}
				}
			}
		}(w)
	}

	// Readers run against the tree while the writers churn it. Their
	// results are transient by design; they only must stay well formed.
	done := make(chan struct{})
	var readers sync.WaitGroup
	for r := 0; r < 4; r++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			region := Box{Center: r3.Vector{X: 1, Y: 1, Z: 1}, HalfExtents: r3.Vector{X: 6, Y: 6, Z: 6}}
			for {
				select {
				case <-done:
					return
				default:
				}
				for _, obj := range o.QueryRange(region) {
					if obj.ID == 0 || obj.ID > workers*perWorker {
						t.Error("query returned an id that was never inserted")
						return
					}
				}
				o.QueryNearest(r3.Vector{X: -2, Y: 3, Z: 0}, 5)
			}
		}()
	}

	wg.Wait()
	close(done)
	readers.Wait()

	want := make([]ObjectID, 0, workers*perWorker)
	for w := 0; w < workers; w++ {
		for i := 0; i < perWorker; i++ {
			if i%3 != 0 {
				want = append(want, ObjectID(w*perWorker+i+1))
			}
		}
	}
	got := sortedIDs(o.QueryRange(o.Bounds()))
	test.That(t, got, test.ShouldResemble, want)
	test.That(t, o.Size(), test.ShouldEqual, len(want))

	// Every survivor sits at its final update destination.
	for _, obj := range o.Objects() {
		test.That(t, obj.Position, test.ShouldResemble, workerPosition(obj.ID, moves))
	}
	validateTree(t, o)
}

func TestConcurrentSameRegionChurn(t *testing.T) {
	// Everything lands in one small corner so racing inserts and removes
	// keep splitting and merging the same few nodes.
	const workers = 8
	const perWorker = 60

	o := newTestOctree(t, testCube(16), Config{SplitThreshold: 2, MergeThreshold: 1, MaxDepth: 6})

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id := ObjectID(w*perWorker + i + 1)
				p := r3.Vector{X: 10 + float64(i%3), Y: 10 + float64(w%3), Z: 10}
				if err := o.Insert(Object{ID: id, Position: p}); err != nil {
					t.Error(err)
					return
				}
				if i%2 == 1 {
					if err := o.Remove(id); err != nil {
						t.Error(err)
						return
					}
				}
			}
		}(w)
	}
	wg.Wait()

	test.That(t, o.Size(), test.ShouldEqual, workers*perWorker/2)
	test.That(t, len(o.QueryRange(o.Bounds())), test.ShouldEqual, workers*perWorker/2)
	test.That(t, o.Stats().Splits, test.ShouldBeGreaterThanOrEqualTo, 1)
	validateTree(t, o)
}

func TestConcurrentBatchInsertMatchesSequential(t *testing.T) {
	objs := make([]Object, 500)
	for i := range objs {
		objs[i] = Object{ID: ObjectID(i + 1), Position: workerPosition(ObjectID(i+1), 0)}
	}

	sequential := newTestOctree(t, testCube(20), Config{SplitThreshold: 4, MergeThreshold: 2, MaxDepth: 8})
	for _, obj := range objs {
		test.That(t, sequential.Insert(obj), test.ShouldBeNil)
	}

	parallel := newTestOctree(t, testCube(20), Config{SplitThreshold: 4, MergeThreshold: 2, MaxDepth: 8})
	test.That(t, parallel.InsertBatch(context.Background(), objs, 8), test.ShouldBeNil)

	test.That(t, sortedIDs(parallel.QueryRange(parallel.Bounds())),
		test.ShouldResemble, sortedIDs(sequential.QueryRange(sequential.Bounds())))
	test.That(t, parallel.Size(), test.ShouldEqual, sequential.Size())
	validateTree(t, parallel)
}

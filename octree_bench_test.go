package octree

import (
	"math/rand"
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
)

func benchObjects(n int, seed int64) []Object {
	rng := rand.New(rand.NewSource(seed))
	objs := make([]Object, n)
	for i := range objs {
		objs[i] = Object{ID: ObjectID(i + 1), Position: r3.Vector{
			X: rng.Float64()*200 - 100,
			Y: rng.Float64()*200 - 100,
			Z: rng.Float64()*200 - 100,
		}}
	}
	return objs
}

func newBenchOctree(b *testing.B) *Octree {
	b.Helper()
	o, err := New(testCube(100), DefaultConfig(), golog.NewLogger("octree_bench"))
	if err != nil {
		b.Fatal(err)
	}
	return o
}

func BenchmarkInsert(b *testing.B) {
	objs := benchObjects(100000, 1701)
	b.Run("sequential", func(b *testing.B) {
		o := newBenchOctree(b)
		b.ReportAllocs()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			if err := o.Insert(objs[i%len(objs)]); err != nil {
				b.StopTimer()
				o = newBenchOctree(b)
				b.StartTimer()
			}
		}
	})
}

func BenchmarkQueryRange(b *testing.B) {
	o := newBenchOctree(b)
	for _, obj := range benchObjects(20000, 1701) {
		if err := o.Insert(obj); err != nil {
			b.Fatal(err)
		}
	}
	region := Box{Center: r3.Vector{X: 10, Y: -5, Z: 20}, HalfExtents: r3.Vector{X: 12, Y: 12, Z: 12}}

	b.Run("window", func(b *testing.B) {
		b.ReportAllocs()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			_ = o.QueryRange(region)
		}
	})
	b.Run("full_root", func(b *testing.B) {
		b.ReportAllocs()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			_ = o.QueryRange(o.Bounds())
		}
	})
}

func BenchmarkQueryNearest(b *testing.B) {
	o := newBenchOctree(b)
	for _, obj := range benchObjects(20000, 1701) {
		if err := o.Insert(obj); err != nil {
			b.Fatal(err)
		}
	}
	b.Run("k10", func(b *testing.B) {
		b.ReportAllocs()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			_ = o.QueryNearest(r3.Vector{X: 1, Y: 2, Z: 3}, 10)
		}
	})
}

func BenchmarkUpdate(b *testing.B) {
	o := newBenchOctree(b)
	objs := benchObjects(10000, 1701)
	for _, obj := range objs {
		if err := o.Insert(obj); err != nil {
			b.Fatal(err)
		}
	}
	rng := rand.New(rand.NewSource(42))
	b.Run("small_displacement", func(b *testing.B) {
		b.ReportAllocs()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			obj := objs[i%len(objs)]
			next := obj.Position.Add(r3.Vector{X: rng.Float64() - 0.5, Y: rng.Float64() - 0.5, Z: rng.Float64() - 0.5})
			if !o.bounds.ContainsPoint(next) {
				next = obj.Position
			}
			if err := o.Update(obj.ID, next); err != nil {
				b.Fatal(err)
			}
		}
	})
}

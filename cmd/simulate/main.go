// Package main runs a random-walk population through an octree for a while
// and reports what the tree looked like afterwards, exercising the full
// insert/update/query surface the way a simulation driver would.
package main

import (
	"context"
	"image/color"
	"math/rand"
	"time"

	"github.com/edaniels/golog"
	"github.com/fogleman/gg"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/viam-labs/octree"
)

var logger = golog.NewDevelopmentLogger("octree_simulate")

func main() {
	utils.ContextualMain(mainWithArgs, logger)
}

// Arguments for the command.
type Arguments struct {
	Count    int    `flag:"count,default=2000,usage=number of objects to track"`
	Bound    int    `flag:"bound,default=100,usage=half extent of the indexed cube"`
	StepSize int    `flag:"stepsize,default=1,usage=maximum per-axis displacement per tick"`
	Interval int    `flag:"interval,default=16,usage=tick interval in milliseconds"`
	Duration int    `flag:"duration,default=5,usage=how many seconds to run the walk"`
	Seed     int    `flag:"seed,default=1701,usage=seed for placement and movement"`
	Render   string `flag:"render,usage=optional path for a PNG slice of the final tree"`
}

func mainWithArgs(ctx context.Context, args []string, logger golog.Logger) error {
	var argsParsed Arguments
	if err := utils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}
	if argsParsed.Count <= 0 || argsParsed.Bound <= 0 || argsParsed.Duration <= 0 {
		return errors.New("count, bound and duration must all be positive")
	}
	if argsParsed.Interval <= 0 {
		return errors.Errorf("interval must be positive, got %d", argsParsed.Interval)
	}

	half := float64(argsParsed.Bound)
	bounds := octree.Box{HalfExtents: r3.Vector{X: half, Y: half, Z: half}}
	tree, err := octree.New(bounds, octree.DefaultConfig(), logger)
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(int64(argsParsed.Seed)))
	inBounds := func() float64 { return (rng.Float64()*2 - 1) * half }
	for i := 0; i < argsParsed.Count; i++ {
		obj := octree.Object{
			ID:       octree.ObjectID(i + 1),
			Position: r3.Vector{X: inBounds(), Y: inBounds(), Z: inBounds()},
		}
		if err := tree.Insert(obj); err != nil {
			return err
		}
	}
	logger.Infow("population placed", "count", tree.Size(), "half_extent", half)

	// Random walk; moves that would leave the cube are rejected by the tree
	// and the object simply waits for the next tick. The tracker calls this
	// from its single tick goroutine, so sharing rng with the finished
	// placement loop is fine.
	step := float64(argsParsed.StepSize)
	walk := func(obj octree.Object) (r3.Vector, bool) {
		return obj.Position.Add(r3.Vector{
			X: (rng.Float64()*2 - 1) * step,
			Y: (rng.Float64()*2 - 1) * step,
			Z: (rng.Float64()*2 - 1) * step,
		}), true
	}

	tracker, err := octree.NewTracker(tree, time.Duration(argsParsed.Interval)*time.Millisecond, walk, logger)
	if err != nil {
		return err
	}
	if err := tracker.Start(ctx); err != nil {
		return err
	}
	if !utils.SelectContextOrWait(ctx, time.Duration(argsParsed.Duration)*time.Second) {
		tracker.Stop()
		return ctx.Err()
	}
	tracker.Stop()

	stats := tree.Stats()
	logger.Infow("walk finished",
		"ticks", tracker.Ticks(),
		"objects", stats.Objects,
		"splits", stats.Splits,
		"merges", stats.Merges,
		"depth_limited", stats.DepthLimited,
		"max_depth", stats.MaxDepth,
	)

	center := octree.Box{HalfExtents: r3.Vector{X: half / 4, Y: half / 4, Z: half / 4}}
	logger.Infow("sample range query", "region_half_extent", half/4, "hits", len(tree.QueryRange(center)))
	for i, obj := range tree.QueryNearest(r3.Vector{}, 5) {
		logger.Infow("nearest to origin", "rank", i+1, "id", obj.ID, "position", obj.Position)
	}

	if argsParsed.Render == "" {
		return nil
	}
	if err := renderSlice(tree, half, argsParsed.Render); err != nil {
		return err
	}
	logger.Infow("wrote slice", "path", argsParsed.Render)
	return nil
}

const renderSize = 800

// renderSlice draws the z=0 cross section of the tree: the x/y outline of
// every leaf whose bounds cross the plane, plus a dot per object, projected
// onto the image.
func renderSlice(tree *octree.Octree, half float64, path string) error {
	dc := gg.NewContext(renderSize, renderSize)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	scale := renderSize / (2 * half)
	toImage := func(x, y float64) (float64, float64) {
		return (x + half) * scale, (y + half) * scale
	}

	dc.SetColor(color.RGBA{R: 180, G: 180, B: 180, A: 255})
	dc.SetLineWidth(1)
	for _, info := range tree.Nodes() {
		if !info.Leaf {
			continue
		}
		minCorner, maxCorner := info.Bounds.Min(), info.Bounds.Max()
		if minCorner.Z > 0 || maxCorner.Z < 0 {
			continue
		}
		x, y := toImage(minCorner.X, minCorner.Y)
		dc.DrawRectangle(x, y, (maxCorner.X-minCorner.X)*scale, (maxCorner.Y-minCorner.Y)*scale)
		dc.Stroke()
	}

	dc.SetColor(color.RGBA{R: 200, A: 255})
	for _, obj := range tree.Objects() {
		x, y := toImage(obj.Position.X, obj.Position.Y)
		dc.DrawCircle(x, y, 1.5)
		dc.Fill()
	}

	return dc.SavePNG(path)
}

// Package main measures octree build and query time across growing
// population sizes and renders the timings as a line chart, so indexing
// changes can be compared run over run.
package main

import (
	"bufio"
	"context"
	"math/rand"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"go.viam.com/utils"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/viam-labs/octree"
)

var logger = golog.NewDevelopmentLogger("octree_bench")

func main() {
	utils.ContextualMain(mainWithArgs, logger)
}

// Arguments for the command.
type Arguments struct {
	Points      string `flag:"points,usage=optional file of points from pointgen"`
	Count       int    `flag:"count,default=10000,usage=maximum population size"`
	Step        int    `flag:"step,default=1000,usage=population increment between runs"`
	Loops       int    `flag:"loops,default=10,usage=timed repetitions per population size"`
	Queries     int    `flag:"queries,default=100,usage=range queries per timed repetition"`
	Parallelism int    `flag:"parallelism,default=0,usage=insert workers (0 means GOMAXPROCS)"`
	Bound       int    `flag:"bound,default=100000,usage=side length of the indexed cube"`
	Seed        int    `flag:"seed,default=1701,usage=seed when generating points in process"`
	Plot        string `flag:"plot,default=bench.png,usage=path of the timing chart (empty to skip)"`
}

func mainWithArgs(ctx context.Context, args []string, logger golog.Logger) error {
	var argsParsed Arguments
	if err := utils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}
	if argsParsed.Count <= 0 || argsParsed.Step <= 0 || argsParsed.Loops <= 0 || argsParsed.Queries <= 0 {
		return errors.New("count, step, loops and queries must all be positive")
	}
	if argsParsed.Bound <= 0 {
		return errors.Errorf("bound must be positive, got %d", argsParsed.Bound)
	}
	parallelism := argsParsed.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.GOMAXPROCS(0)
	}

	bound := float64(argsParsed.Bound)
	points, err := loadOrGeneratePoints(argsParsed, bound)
	if err != nil {
		return err
	}
	if len(points) < argsParsed.Count {
		return errors.Errorf("need %d points but only have %d", argsParsed.Count, len(points))
	}
	logger.Infow("benchmark starting", "points", argsParsed.Count, "step", argsParsed.Step,
		"loops", argsParsed.Loops, "parallelism", parallelism)

	bounds := octree.Box{
		Center:      r3.Vector{X: bound / 2, Y: bound / 2, Z: bound / 2},
		HalfExtents: r3.Vector{X: bound / 2, Y: bound / 2, Z: bound / 2},
	}
	queryRNG := rand.New(rand.NewSource(int64(argsParsed.Seed) + 1))
	regions := make([]octree.Box, argsParsed.Queries)
	for i := range regions {
		regions[i] = octree.Box{
			Center: r3.Vector{
				X: queryRNG.Float64() * bound,
				Y: queryRNG.Float64() * bound,
				Z: queryRNG.Float64() * bound,
			},
			HalfExtents: r3.Vector{X: bound / 20, Y: bound / 20, Z: bound / 20},
		}
	}

	var insertLine, queryLine plotter.XYs
	for size := argsParsed.Step; size <= argsParsed.Count; size += argsParsed.Step {
		if err := ctx.Err(); err != nil {
			return err
		}
		insertMs := make([]float64, 0, argsParsed.Loops)
		queryMs := make([]float64, 0, argsParsed.Loops)
		var hits int
		for loop := 0; loop < argsParsed.Loops; loop++ {
			tree, err := octree.New(bounds, octree.DefaultConfig(), logger)
			if err != nil {
				return err
			}
			objs := make([]octree.Object, size)
			for i := 0; i < size; i++ {
				objs[i] = octree.Object{ID: octree.ObjectID(i + 1), Position: points[i]}
			}

			start := time.Now()
			if err := tree.InsertBatch(ctx, objs, parallelism); err != nil {
				return err
			}
			insertMs = append(insertMs, float64(time.Since(start).Microseconds())/1000)

			start = time.Now()
			for _, region := range regions {
				hits += len(tree.QueryRange(region))
			}
			queryMs = append(queryMs, float64(time.Since(start).Microseconds())/1000)
		}

		insertSummary, err := summarize(insertMs)
		if err != nil {
			return err
		}
		querySummary, err := summarize(queryMs)
		if err != nil {
			return err
		}
		logger.Infow("population sized",
			"size", size,
			"insert_ms_mean", insertSummary.mean,
			"insert_ms_median", insertSummary.median,
			"insert_ms_p95", insertSummary.p95,
			"query_ms_mean", querySummary.mean,
			"query_ms_median", querySummary.median,
			"query_ms_p95", querySummary.p95,
			"hits", hits,
		)
		insertLine = append(insertLine, plotter.XY{X: float64(size), Y: insertSummary.mean})
		queryLine = append(queryLine, plotter.XY{X: float64(size), Y: querySummary.mean})
	}

	if argsParsed.Plot == "" {
		return nil
	}
	if err := renderChart(argsParsed.Plot, insertLine, queryLine); err != nil {
		return err
	}
	logger.Infow("wrote chart", "path", argsParsed.Plot)
	return nil
}

type summary struct {
	mean, median, p95 float64
}

func summarize(samples []float64) (summary, error) {
	mean, err := stats.Mean(samples)
	if err != nil {
		return summary{}, err
	}
	median, err := stats.Median(samples)
	if err != nil {
		return summary{}, err
	}
	p95, err := stats.Percentile(samples, 95)
	if err != nil {
		return summary{}, err
	}
	return summary{mean: mean, median: median, p95: p95}, nil
}

func renderChart(path string, insertLine, queryLine plotter.XYs) error {
	p := plot.New()
	p.Title.Text = "octree build and query time"
	p.X.Label.Text = "objects"
	p.Y.Label.Text = "milliseconds"
	if err := plotutil.AddLinePoints(p,
		"insert", insertLine,
		"query", queryLine,
	); err != nil {
		return err
	}
	return p.Save(8*vg.Inch, 5*vg.Inch, path)
}

func loadOrGeneratePoints(args Arguments, bound float64) ([]r3.Vector, error) {
	if args.Points == "" {
		rng := rand.New(rand.NewSource(int64(args.Seed)))
		points := make([]r3.Vector, args.Count)
		for i := range points {
			points[i] = r3.Vector{
				X: rng.Float64() * bound,
				Y: rng.Float64() * bound,
				Z: rng.Float64() * bound,
			}
		}
		return points, nil
	}

	f, err := os.Open(args.Points)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)

	var points []r3.Vector
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 3 {
			return nil, errors.Errorf("line %d: expected 3 coordinates, got %d", line, len(fields))
		}
		var coords [3]float64
		for i, field := range fields {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "line %d", line)
			}
			coords[i] = v
		}
		points = append(points, r3.Vector{X: coords[0], Y: coords[1], Z: coords[2]})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return points, nil
}

// Package main generates a reproducible set of random 3D points for feeding
// the benchmark binary.
package main

import (
	"bufio"
	"context"
	"fmt"
	"math/rand"
	"os"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
)

var logger = golog.NewDevelopmentLogger("pointgen")

func main() {
	utils.ContextualMain(mainWithArgs, logger)
}

// Arguments for the command.
type Arguments struct {
	Count  int    `flag:"count,default=100000,usage=number of points to generate"`
	Bound  int    `flag:"bound,default=100000,usage=points fall within [0, bound) on every axis"`
	Seed   int    `flag:"seed,default=1701,usage=seed for the point generator"`
	Output string `flag:"output,default=points.txt,usage=file to write the points to"`
}

func mainWithArgs(ctx context.Context, args []string, logger golog.Logger) error {
	var argsParsed Arguments
	if err := utils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}
	if argsParsed.Count <= 0 {
		return errors.Errorf("count must be positive, got %d", argsParsed.Count)
	}
	if argsParsed.Bound <= 0 {
		return errors.Errorf("bound must be positive, got %d", argsParsed.Bound)
	}

	out, err := os.Create(argsParsed.Output)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(out)

	rng := rand.New(rand.NewSource(int64(argsParsed.Seed)))
	bound := float64(argsParsed.Bound)
	for i := 0; i < argsParsed.Count; i++ {
		if ctx.Err() != nil {
			break
		}
		if _, err := fmt.Fprintf(w, "%f %f %f\n",
			rng.Float64()*bound, rng.Float64()*bound, rng.Float64()*bound); err != nil {
			return multierr.Combine(err, out.Close())
		}
	}

	if err := multierr.Combine(w.Flush(), out.Close(), ctx.Err()); err != nil {
		return err
	}
	logger.Infow("wrote points", "count", argsParsed.Count, "path", argsParsed.Output)
	return nil
}

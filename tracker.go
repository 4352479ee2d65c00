package octree

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.viam.com/utils"
)

// MoveFunc decides where an object goes on the next tick. It returns the new
// position and whether the object moved at all. It is called outside any
// tree lock, so it may call back into the Octree.
type MoveFunc func(obj Object) (r3.Vector, bool)

// Tracker drives an Octree from a simulation tick: on every interval it asks
// its MoveFunc for each tracked object's next position and applies the
// moves. Objects removed or rejected mid-tick are skipped, not fatal.
type Tracker struct {
	octree   *Octree
	move     MoveFunc
	interval time.Duration
	clock    clock.Clock
	logger   golog.Logger

	mu                      sync.Mutex
	cancel                  context.CancelFunc
	activeBackgroundWorkers sync.WaitGroup
	ticks                   atomic.Int64
}

// NewTracker creates a tracker for the given octree. Start must be called
// before any ticks run.
func NewTracker(octree *Octree, interval time.Duration, move MoveFunc, logger golog.Logger) (*Tracker, error) {
	if octree == nil {
		return nil, errors.New("octree cannot be nil")
	}
	if interval <= 0 {
		return nil, errors.Errorf("tick interval must be positive, got %v", interval)
	}
	if move == nil {
		return nil, errors.New("move function cannot be nil")
	}
	if logger == nil {
		logger = golog.Global()
	}
	return &Tracker{
		octree:   octree,
		move:     move,
		interval: interval,
		clock:    clock.New(),
		logger:   logger,
	}, nil
}

// Start launches the background tick loop. It fails if the tracker is
// already running.
func (t *Tracker) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return errors.New("tracker already started")
	}
	cancelCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.activeBackgroundWorkers.Add(1)
	utils.PanicCapturingGo(func() {
		defer t.activeBackgroundWorkers.Done()
		ticker := t.clock.Ticker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-cancelCtx.Done():
				return
			case <-ticker.C:
				t.tick()
			}
		}
	})
	return nil
}

// tick applies one round of moves over a snapshot of the population.
func (t *Tracker) tick() {
	var moved, skipped int
	for _, obj := range t.octree.Objects() {
		position, ok := t.move(obj)
		if !ok {
			continue
		}
		switch err := t.octree.Update(obj.ID, position); {
		case err == nil:
			moved++
		case errors.Is(err, ErrNotFound):
			// Removed since the snapshot was taken.
			skipped++
		case errors.Is(err, ErrOutOfBounds):
			skipped++
			t.logger.Debugw("move rejected", "id", obj.ID, "position", position)
		default:
			t.logger.Errorw("update failed", "id", obj.ID, "error", err)
		}
	}
	t.ticks.Inc()
	if skipped > 0 {
		t.logger.Debugw("tick finished with skipped moves", "moved", moved, "skipped", skipped)
	}
}

// Ticks returns how many ticks have completed since Start.
func (t *Tracker) Ticks() int64 {
	return t.ticks.Load()
}

// Stop halts the tick loop and waits for it to exit. Stopping a tracker that
// never started is a no-op.
func (t *Tracker) Stop() {
	t.mu.Lock()
	cancel := t.cancel
	t.cancel = nil
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	t.activeBackgroundWorkers.Wait()
}

package main

import (
	"context"
	"sync"
	"time"

	"github.com/helios-array/quality.monitor/internal/calo"
	"github.com/helios-array/quality.monitor/internal/calo/monitor"
	"github.com/helios-array/quality.monitor/internal/monitoring"
	"github.com/helios-array/quality.monitor/internal/qcdb"
	"github.com/helios-array/quality.monitor/internal/timeutil"
)

// Runner drives the aggregation engine from a single goroutine. The engine
// is not safe for concurrent use, so the runner owns every lifecycle hook
// and batch delivery; the rest of the process only ever sees published
// copies, the latest cycle snapshot and a status map, swapped under a lock.
// It implements monitor.SnapshotSource and monitor.StatusSource.
type Runner struct {
	task          *calo.Task
	batches       <-chan *calo.ReadoutBatch
	cycleInterval time.Duration
	clock         timeutil.Clock
	archive       *qcdb.DB             // nil disables cycle archiving
	plotter       *monitor.GridPlotter // nil or disabled skips PNG rendering
	logf          func(format string, v ...interface{})

	mu       sync.RWMutex
	snapshot *calo.Snapshot
	status   map[string]interface{}
}

// RunnerConfig contains configuration options for the engine runner.
type RunnerConfig struct {
	Task    *calo.Task
	Batches <-chan *calo.ReadoutBatch
	// CycleInterval is the monitoring cycle length; zero means one minute.
	CycleInterval time.Duration
	// Clock defaults to the real clock when nil.
	Clock   timeutil.Clock
	Archive *qcdb.DB
	Plotter *monitor.GridPlotter
}

// NewRunner creates a runner for the given engine and batch queue.
func NewRunner(config RunnerConfig) *Runner {
	clock := config.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	interval := config.CycleInterval
	if interval <= 0 {
		interval = time.Minute
	}
	return &Runner{
		task:          config.Task,
		batches:       config.Batches,
		cycleInterval: interval,
		clock:         clock,
		archive:       config.Archive,
		plotter:       config.Plotter,
		logf:          monitoring.Prefixed("runner"),
	}
}

// Run opens the activity and processes batches until the context is
// cancelled, closing a monitoring cycle on every tick. Cancellation ends
// the activity, publishing and storing the closing snapshot. It blocks;
// run it on its own goroutine.
func (r *Runner) Run(ctx context.Context, activityID string) error {
	r.task.BeginActivity(activityID)
	if err := r.task.BeginCycle(); err != nil {
		return err
	}
	r.publishStatus()

	ticker := r.clock.NewTicker(r.cycleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.finish()
			return ctx.Err()
		case batch := <-r.batches:
			if err := r.task.ProcessBatch(ctx, batch); err != nil {
				r.logf("batch dropped: %v", err)
			}
			r.publishStatus()
		case <-ticker.C():
			r.rotateCycle()
		}
	}
}

// rotateCycle closes the open cycle, publishes its snapshot, reopens, and
// stores the result.
func (r *Runner) rotateCycle() {
	s := r.task.EndCycle()
	if s == nil {
		return
	}
	r.publishSnapshot(s)
	if err := r.task.BeginCycle(); err != nil {
		r.logf("reopen cycle: %v", err)
	}
	r.publishStatus()
	r.store(s)
}

// finish ends the activity and publishes its closing snapshot.
func (r *Runner) finish() {
	s := r.task.EndActivity()
	r.publishStatus()
	if s == nil {
		return
	}
	r.publishSnapshot(s)
	r.store(s)
}

// store archives and renders one closed cycle. Both targets are optional;
// failures are logged, never fatal.
func (r *Runner) store(s *calo.Snapshot) {
	if r.archive != nil {
		if id, err := r.archive.SaveSnapshot(s); err != nil {
			r.logf("archive cycle %d: %v", s.Cycle, err)
		} else {
			r.logf("archived cycle %d as %s", s.Cycle, id)
		}
	}
	if r.plotter != nil {
		if n, err := r.plotter.PlotCycle(s); err != nil {
			r.logf("plot cycle %d: %v", s.Cycle, err)
		} else if n > 0 {
			r.logf("wrote %d plots for cycle %d", n, s.Cycle)
		}
	}
}

func (r *Runner) publishSnapshot(s *calo.Snapshot) {
	r.mu.Lock()
	r.snapshot = s
	r.mu.Unlock()
}

func (r *Runner) publishStatus() {
	st := r.task.Status()
	r.mu.Lock()
	r.status = st
	r.mu.Unlock()
}

// LatestSnapshot implements monitor.SnapshotSource. Snapshots are deep
// copies, so callers may read the returned value freely.
func (r *Runner) LatestSnapshot() *calo.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot
}

// EngineStatus implements monitor.StatusSource. The returned map is
// replaced wholesale on every publish and must be treated as read-only.
func (r *Runner) EngineStatus() map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

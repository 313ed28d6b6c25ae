package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/helios-array/quality.monitor/internal/calo"
	"github.com/helios-array/quality.monitor/internal/qcdb"
	"github.com/helios-array/quality.monitor/internal/timeutil"
)

// waitFor polls cond until it holds or the deadline expires.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

// oneEventBatch returns a batch with a single above-threshold reading.
func oneEventBatch() *calo.ReadoutBatch {
	return &calo.ReadoutBatch{
		Sequence: 1,
		Readings: []calo.ChannelReading{
			{Channel: 2048, Gain: calo.HighGain, Energy: 120, Time: 9e-9},
		},
		Events: []calo.EventSlice{{First: 0, Count: 1}},
	}
}

func TestNewRunnerDefaults(t *testing.T) {
	r := NewRunner(RunnerConfig{
		Task:    calo.NewTask(calo.DefaultTaskParams()),
		Batches: make(chan *calo.ReadoutBatch),
	})

	if r.clock == nil {
		t.Error("expected a default clock")
	}
	if r.cycleInterval != time.Minute {
		t.Errorf("cycleInterval = %v, want 1m default", r.cycleInterval)
	}
	if r.LatestSnapshot() != nil {
		t.Error("expected no snapshot before Run")
	}
	if r.EngineStatus() != nil {
		t.Error("expected no status before Run")
	}
}

func TestRunnerPublishesCycleSnapshot(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	batches := make(chan *calo.ReadoutBatch, 4)
	r := NewRunner(RunnerConfig{
		Task:          calo.NewTask(calo.DefaultTaskParams()),
		Batches:       batches,
		CycleInterval: time.Minute,
		Clock:         clock,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, "run-test") }()

	batches <- oneEventBatch()
	waitFor(t, func() bool {
		st := r.EngineStatus()
		return st != nil && st["batches"] == uint64(1)
	})

	clock.Advance(time.Minute)
	waitFor(t, func() bool { return r.LatestSnapshot() != nil })

	s := r.LatestSnapshot()
	if s.ActivityID != "run-test" {
		t.Errorf("ActivityID = %q, want run-test", s.ActivityID)
	}
	if s.Cycle != 1 {
		t.Errorf("Cycle = %d, want 1", s.Cycle)
	}
	if s.Counters.Readings != 1 {
		t.Errorf("Counters.Readings = %d, want 1", s.Counters.Readings)
	}
	if s.Grid2DByName("occupancy_m0") == nil {
		t.Error("baseline snapshot missing occupancy_m0")
	}

	// The next cycle opened right after the close.
	waitFor(t, func() bool {
		st := r.EngineStatus()
		return st != nil && st["cycle"] == 2
	})

	cancel()
	if err := <-done; err != context.Canceled {
		t.Errorf("Run returned %v, want context.Canceled", err)
	}
}

func TestRunnerFinalSnapshotOnShutdown(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	r := NewRunner(RunnerConfig{
		Task:          calo.NewTask(calo.DefaultTaskParams()),
		Batches:       make(chan *calo.ReadoutBatch),
		CycleInterval: time.Minute,
		Clock:         clock,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, "run-final") }()

	waitFor(t, func() bool {
		st := r.EngineStatus()
		return st != nil && st["state"] == "cycle"
	})

	cancel()
	<-done

	s := r.LatestSnapshot()
	if s == nil {
		t.Fatal("expected a closing snapshot after shutdown")
	}
	if s.Cycle != 1 {
		t.Errorf("closing snapshot cycle = %d, want 1", s.Cycle)
	}
	if got := r.EngineStatus()["state"]; got != "idle" {
		t.Errorf("state after shutdown = %v, want idle", got)
	}
}

func TestRunnerArchivesCycles(t *testing.T) {
	db, err := qcdb.NewDB(filepath.Join(t.TempDir(), "qc.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	defer db.Close()

	clock := timeutil.NewMockClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	batches := make(chan *calo.ReadoutBatch, 4)
	r := NewRunner(RunnerConfig{
		Task:          calo.NewTask(calo.DefaultTaskParams()),
		Batches:       batches,
		CycleInterval: time.Minute,
		Clock:         clock,
		Archive:       db,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, "run-arch") }()

	batches <- oneEventBatch()
	waitFor(t, func() bool {
		st := r.EngineStatus()
		return st != nil && st["batches"] == uint64(1)
	})

	clock.Advance(time.Minute)
	waitFor(t, func() bool {
		rows, err := db.RecentCycles(10)
		return err == nil && len(rows) == 1
	})

	// Shutdown archives the closing cycle too.
	cancel()
	<-done

	rows, err := db.RecentCycles(10)
	if err != nil {
		t.Fatalf("RecentCycles: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("archived %d cycles, want 2", len(rows))
	}
	seen := map[int]bool{}
	for _, rec := range rows {
		if rec.ActivityID != "run-arch" {
			t.Errorf("archived activity %q, want run-arch", rec.ActivityID)
		}
		seen[rec.Cycle] = true
	}
	if !seen[1] || !seen[2] {
		t.Errorf("archived cycles %v, want cycles 1 and 2", rows)
	}
}

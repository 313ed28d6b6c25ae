package qcdb

import (
	"errors"
	"testing"
	"time"

	"github.com/helios-array/quality.monitor/internal/calo"
)

func testSnapshot(activityID string, cycle int, createdAt time.Time) *calo.Snapshot {
	return &calo.Snapshot{
		ActivityID: activityID,
		Cycle:      cycle,
		Mode:       "pedestal",
		CreatedAt:  createdAt,
		Grids2D: []calo.Grid2D{{
			Name:  "ped_hg_mean_m0",
			Title: "HG pedestal mean, module 0",
			Rows:  calo.RowsPerModule,
			Cols:  calo.ColsPerModule,
			Hint:  calo.HintHeatmap,
			Cells: []float64{1.5, 2.5},
		}},
		Counters: calo.SnapshotCounters{Batches: 3, Events: 12, Readings: 480},
	}
}

func TestSaveAndLoadSnapshot(t *testing.T) {
	db := newTestDB(t)

	created := time.Date(2026, 8, 20, 10, 30, 0, 0, time.UTC)
	id, err := db.SaveSnapshot(testSnapshot("act-100", 3, created))
	if err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	if id == "" {
		t.Fatal("SaveSnapshot returned empty id")
	}

	s, err := db.SnapshotByID(id)
	if err != nil {
		t.Fatalf("SnapshotByID failed: %v", err)
	}
	if s.ActivityID != "act-100" || s.Cycle != 3 || s.Mode != "pedestal" {
		t.Errorf("loaded snapshot header = %s/%d/%s", s.ActivityID, s.Cycle, s.Mode)
	}
	if len(s.Grids2D) != 1 || s.Grids2D[0].Name != "ped_hg_mean_m0" {
		t.Fatalf("loaded grids = %+v", s.Grids2D)
	}
	if s.Grids2D[0].Cells[1] != 2.5 {
		t.Errorf("cell value = %v, want 2.5", s.Grids2D[0].Cells[1])
	}
	if s.Counters.Readings != 480 {
		t.Errorf("counters.readings = %d, want 480", s.Counters.Readings)
	}
}

func TestSnapshotByIDNotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := db.SnapshotByID("no-such-id")
	if !errors.Is(err, ErrCycleNotFound) {
		t.Errorf("err = %v, want ErrCycleNotFound", err)
	}
}

func TestRecentCyclesOrdering(t *testing.T) {
	db := newTestDB(t)

	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	for i := 1; i <= 3; i++ {
		if _, err := db.SaveSnapshot(testSnapshot("act-1", i, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("SaveSnapshot %d failed: %v", i, err)
		}
	}

	recent, err := db.RecentCycles(2)
	if err != nil {
		t.Fatalf("RecentCycles failed: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("got %d records, want 2", len(recent))
	}
	if recent[0].Cycle != 3 || recent[1].Cycle != 2 {
		t.Errorf("ordering = [%d %d], want [3 2]", recent[0].Cycle, recent[1].Cycle)
	}
	if !recent[0].CreatedAt.Equal(base.Add(3 * time.Minute)) {
		t.Errorf("CreatedAt = %v, want %v", recent[0].CreatedAt, base.Add(3*time.Minute))
	}
	if recent[0].Readings != 480 {
		t.Errorf("Readings = %d, want 480", recent[0].Readings)
	}
}

func TestCyclesForActivity(t *testing.T) {
	db := newTestDB(t)

	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	for i := 1; i <= 2; i++ {
		if _, err := db.SaveSnapshot(testSnapshot("act-a", i, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := db.SaveSnapshot(testSnapshot("act-b", 1, base.Add(5*time.Minute))); err != nil {
		t.Fatal(err)
	}

	cycles, err := db.CyclesForActivity("act-a")
	if err != nil {
		t.Fatalf("CyclesForActivity failed: %v", err)
	}
	if len(cycles) != 2 {
		t.Fatalf("got %d records, want 2", len(cycles))
	}
	if cycles[0].Cycle != 1 || cycles[1].Cycle != 2 {
		t.Errorf("ordering = [%d %d], want [1 2]", cycles[0].Cycle, cycles[1].Cycle)
	}
	for _, c := range cycles {
		if c.ActivityID != "act-a" {
			t.Errorf("record for activity %q leaked in", c.ActivityID)
		}
	}
}

func TestPruneCyclesBefore(t *testing.T) {
	db := newTestDB(t)

	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	for i := 1; i <= 4; i++ {
		if _, err := db.SaveSnapshot(testSnapshot("act-1", i, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatal(err)
		}
	}

	pruned, err := db.PruneCyclesBefore(base.Add(2*time.Hour + time.Minute))
	if err != nil {
		t.Fatalf("PruneCyclesBefore failed: %v", err)
	}
	if pruned != 2 {
		t.Errorf("pruned = %d, want 2", pruned)
	}

	remaining, err := db.RecentCycles(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 2 {
		t.Errorf("%d records remain, want 2", len(remaining))
	}
	for _, r := range remaining {
		if r.Cycle < 3 {
			t.Errorf("cycle %d survived the prune", r.Cycle)
		}
	}
}

package calo

import (
	"time"

	"gonum.org/v1/gonum/stat"
)

// Draw hints carried with published grids. Purely cosmetic; the rendering
// backend may ignore them.
const (
	HintHeatmap = "colz"
	HintHist    = "hist"
)

// Grid2D is one published 2D grid: a module plane, an error grid, or a 2D
// histogram. Cells are row-major.
type Grid2D struct {
	Name       string    `json:"name"`
	Title      string    `json:"title"`
	Rows       int       `json:"rows"`
	Cols       int       `json:"cols"`
	XTitle     string    `json:"x_title"`
	YTitle     string    `json:"y_title"`
	Hint       string    `json:"hint"`
	DisplayMin float64   `json:"display_min,omitempty"`
	DisplayMax float64   `json:"display_max,omitempty"`
	Cells      []float64 `json:"cells"`
}

// Grid1D is one published 1D histogram.
type Grid1D struct {
	Name   string    `json:"name"`
	Title  string    `json:"title"`
	Lo     float64   `json:"lo"`
	Hi     float64   `json:"hi"`
	XTitle string    `json:"x_title"`
	YTitle string    `json:"y_title"`
	Hint   string    `json:"hint"`
	Bins   []float64 `json:"bins"`
}

// GridStat summarizes one published grid over its populated cells.
type GridStat struct {
	Name      string  `json:"name"`
	Populated int     `json:"populated"`
	Mean      float64 `json:"mean"`
	StdDev    float64 `json:"std_dev"`
}

// SnapshotCounters are the engine's running totals, published for the
// status endpoint and sanity checks.
type SnapshotCounters struct {
	Batches          uint64 `json:"batches"`
	Events           uint64 `json:"events"`
	Readings         uint64 `json:"readings"`
	SkippedReadings  uint64 `json:"skipped_readings"`
	SliceViolations  uint64 `json:"slice_violations"`
	BelowThreshold   uint64 `json:"below_threshold"`
	ErrorsTallied    uint64 `json:"errors_tallied"`
	ErrorsDropped    uint64 `json:"errors_dropped"`
	QualitySamples   uint64 `json:"quality_samples"`
	QualitySkipped   uint64 `json:"quality_skipped"`
	QualityTruncated uint64 `json:"quality_truncated"`
	SpectraAllocated int    `json:"spectra_allocated"`
}

// Snapshot is the publishable output of one monitoring cycle: every grid
// the selected mode maintains, projected to display form. Snapshots are
// deep copies; the engine keeps accumulating after handing one out.
type Snapshot struct {
	ActivityID  string            `json:"activity_id"`
	Cycle       int               `json:"cycle"`
	Mode        string            `json:"mode"`
	CreatedAt   time.Time         `json:"created_at"`
	Grids2D     []Grid2D          `json:"grids_2d"`
	Grids1D     []Grid1D          `json:"grids_1d"`
	BadChannels BadChannelSummary `json:"bad_channels"`
	Counters    SnapshotCounters  `json:"counters"`
	GridStats   []GridStat        `json:"grid_stats"`
}

// Grid2DByName returns the named grid, nil when absent.
func (s *Snapshot) Grid2DByName(name string) *Grid2D {
	for i := range s.Grids2D {
		if s.Grids2D[i].Name == name {
			return &s.Grids2D[i]
		}
	}
	return nil
}

// Grid1DByName returns the named histogram, nil when absent.
func (s *Snapshot) Grid1DByName(name string) *Grid1D {
	for i := range s.Grids1D {
		if s.Grids1D[i].Name == name {
			return &s.Grids1D[i]
		}
	}
	return nil
}

// GridNames lists every published grid name, 2D then 1D.
func (s *Snapshot) GridNames() []string {
	names := make([]string, 0, len(s.Grids2D)+len(s.Grids1D))
	for i := range s.Grids2D {
		names = append(names, s.Grids2D[i].Name)
	}
	for i := range s.Grids1D {
		names = append(names, s.Grids1D[i].Name)
	}
	return names
}

// modulePlaneGrid wraps one module's cell plane as a published grid.
func modulePlaneGrid(name, title string, plane []float64) Grid2D {
	return Grid2D{
		Name:   name,
		Title:  title,
		Rows:   RowsPerModule,
		Cols:   ColsPerModule,
		XTitle: "column",
		YTitle: "row",
		Hint:   HintHeatmap,
		Cells:  plane,
	}
}

// hist1DGrid converts a histogram to its published form.
func hist1DGrid(h *Hist1D, title, xTitle string) Grid1D {
	lo, hi := h.Range()
	return Grid1D{
		Name:   h.Name(),
		Title:  title,
		Lo:     lo,
		Hi:     hi,
		XTitle: xTitle,
		YTitle: "entries",
		Hint:   HintHist,
		Bins:   h.Contents(),
	}
}

// hist2DGrid converts a 2D histogram to its published form.
func hist2DGrid(h *Hist2D, title, xTitle, yTitle string) Grid2D {
	nx, ny := h.Dims()
	return Grid2D{
		Name:   h.Name(),
		Title:  title,
		Rows:   ny,
		Cols:   nx,
		XTitle: xTitle,
		YTitle: yTitle,
		Hint:   HintHeatmap,
		Cells:  h.Contents(),
	}
}

// statOverPopulated summarizes the non-empty cells of a module plane, using
// the matching count plane to decide which cells are populated.
func statOverPopulated(name string, values, counts []float64) GridStat {
	populated := make([]float64, 0, len(values))
	for i, c := range counts {
		if c > 0 {
			populated = append(populated, values[i])
		}
	}
	gs := GridStat{Name: name, Populated: len(populated)}
	if len(populated) > 0 {
		gs.Mean, gs.StdDev = stat.MeanStdDev(populated, nil)
		if len(populated) < 2 {
			gs.StdDev = 0
		}
	}
	return gs
}

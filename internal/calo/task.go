// Package calo implements the online quality-monitoring engine for a
// four-module segmented calorimeter. It consumes decoded readout batches
// (per-event channel readings plus hardware-error and fit-quality side
// streams), aggregates them into per-channel and per-module statistics
// under one of three operating modes, and snapshots the result at the end
// of every monitoring cycle.
//
// The engine is single-threaded by contract: one goroutine drives the
// lifecycle hooks and batch deliveries strictly in sequence. Consumers
// never touch live grids; they receive deep-copied Snapshot values.
package calo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/helios-array/quality.monitor/internal/monitoring"
)

// TaskState is the engine lifecycle state.
type TaskState int

const (
	// StateIdle: allocated but no activity in progress. Entered at
	// construction and again after EndActivity's full reset.
	StateIdle TaskState = iota
	// StateActive: an activity is open, no cycle currently is.
	StateActive
	// StateCycle: a monitoring cycle is open and accepting batches.
	StateCycle
)

// String returns a short state label for logs and status.
func (s TaskState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateCycle:
		return "cycle"
	default:
		return "idle"
	}
}

// ErrNoActivity reports a batch or cycle hook delivered outside an activity.
var ErrNoActivity = errors.New("no activity in progress")

// TaskParams fixes the engine's behavior at construction.
type TaskParams struct {
	Mode                Mode
	EnableQualityMetric bool
	// OccupancyThreshold suppresses noise-level readings in the baseline
	// and LED pipelines (HG-equivalent ADC counts).
	OccupancyThreshold float64
	// LowGainScale converts low-gain energies to the high-gain scale.
	LowGainScale float64
	PeakSearch   PeakSearchParams
	// BadChannels, when non-nil, is queried once per activity on the first
	// batch delivery.
	BadChannels BadChannelSource
}

// DefaultTaskParams returns baseline-mode parameters with the standard
// threshold, gain ratio, and peak search settings.
func DefaultTaskParams() TaskParams {
	return TaskParams{
		Mode:               ModeBaseline,
		OccupancyThreshold: 10.0,
		LowGainScale:       16.0,
		PeakSearch:         DefaultPeakSearchParams(),
	}
}

// Task is the quality-monitoring engine. All methods must be called from a
// single goroutine; the host scheduler guarantees hooks never overlap.
type Task struct {
	params TaskParams
	state  TaskState

	activityID string
	cycle      int

	pipe    pipeline
	errors  *ErrorTally
	quality *QualityAggregator // nil unless enabled

	badSummary BadChannelSummary
	badFetched bool // one fetch attempt per activity, success or not

	batches         uint64
	events          uint64
	readings        uint64
	sliceViolations uint64
	earlyBatchSeen  bool

	logf func(format string, v ...interface{})
}

// NewTask allocates the engine with the mode-selected grid families. The
// returned task is idle; call BeginActivity before delivering batches.
func NewTask(params TaskParams) *Task {
	t := &Task{
		params: params,
		errors: NewErrorTally(),
		logf:   monitoring.Prefixed("engine"),
	}
	switch params.Mode {
	case ModePedestal:
		t.pipe = newPedestalPipeline()
	case ModeLED:
		t.pipe = newLEDPipeline(params.OccupancyThreshold, params.LowGainScale, params.PeakSearch)
	default:
		t.pipe = newBaselinePipeline(params.OccupancyThreshold, params.LowGainScale)
	}
	if params.EnableQualityMetric {
		t.quality = NewQualityAggregator()
	}
	return t
}

// Mode returns the fixed operating mode.
func (t *Task) Mode() Mode { return t.params.Mode }

// State returns the current lifecycle state.
func (t *Task) State() TaskState { return t.state }

// ActivityID returns the current activity id, empty when idle.
func (t *Task) ActivityID() string { return t.activityID }

// Cycle returns the current cycle number within the activity, starting at 1.
func (t *Task) Cycle() int { return t.cycle }

// BeginActivity clears every grid and counter and opens a new activity. The
// bad-channel map will be refetched lazily on the first batch.
func (t *Task) BeginActivity(activityID string) {
	t.resetAll()
	t.activityID = activityID
	t.state = StateActive
	t.logf("activity %s started, mode=%s quality=%v", activityID, t.params.Mode, t.quality != nil)
}

// BeginCycle opens a monitoring cycle. Cycle-scoped grids (the fit-quality
// family) restart from zero; activity-scoped grids keep their running
// totals. Calling it with a cycle already open is a logged no-op.
func (t *Task) BeginCycle() error {
	switch t.state {
	case StateIdle:
		return ErrNoActivity
	case StateCycle:
		t.logf("cycle %d already open", t.cycle)
		return nil
	}
	t.cycle++
	if t.quality != nil {
		t.quality.BeginCycle()
	}
	t.state = StateCycle
	return nil
}

// ProcessBatch aggregates one decoded readout batch. The first batch of an
// activity triggers the one-time bad-channel-map fetch; a fetch failure is
// logged and leaves the summary empty until the next activity. Readings are
// consumed event by event via the batch's slices; slices that overrun the
// reading block are skipped and counted, never fatal.
func (t *Task) ProcessBatch(ctx context.Context, batch *ReadoutBatch) error {
	if t.state == StateIdle {
		return ErrNoActivity
	}
	if t.state == StateActive && !t.earlyBatchSeen {
		// Tolerated: aggregate as if a cycle were open.
		t.logf("batch delivered before cycle start, processing anyway")
		t.earlyBatchSeen = true
	}

	t.fetchBadChannelsOnce(ctx)

	t.batches++
	n := len(batch.Readings)
	for _, s := range batch.Events {
		first, count := int(s.First), int(s.Count)
		if first+count > n {
			t.sliceViolations++
			continue
		}
		t.events++
		t.readings += uint64(count)
		t.pipe.processEvent(batch.Readings[first : first+count])
	}
	for _, rec := range batch.Errors {
		t.errors.Record(rec)
	}
	if t.quality != nil && len(batch.Quality) > 0 {
		t.quality.Consume(batch.Quality)
	}
	return nil
}

// EndCycle closes the cycle: mode-specific recomputation runs (the LED peak
// scan), every grid is projected to display form, and the snapshot is
// returned. Running sums are not modified, so a repeated EndCycle without
// new batches reproduces the same snapshot. Returns nil when idle.
func (t *Task) EndCycle() *Snapshot {
	if t.state == StateIdle {
		return nil
	}
	t.pipe.endCycle()
	s := t.buildSnapshot()
	t.state = StateActive
	t.logf("cycle %d closed: %d batches, %d events, %d readings",
		t.cycle, t.batches, t.events, t.readings)
	return s
}

// EndActivity closes the activity: one final EndCycle produces the closing
// snapshot, then everything is cleared and the engine returns to idle.
func (t *Task) EndActivity() *Snapshot {
	if t.state == StateIdle {
		return nil
	}
	s := t.EndCycle()
	t.logf("activity %s ended after %d cycles", t.activityID, t.cycle)
	t.resetAll()
	return s
}

// fetchBadChannelsOnce performs the once-per-activity bad-channel lookup,
// latching the attempt whether or not it succeeds.
func (t *Task) fetchBadChannelsOnce(ctx context.Context) {
	if t.badFetched {
		return
	}
	t.badFetched = true
	if t.params.BadChannels == nil {
		return
	}
	m, err := t.params.BadChannels.FetchBadChannels(ctx)
	if err != nil {
		t.logf("bad-channel map unavailable, summary stays empty this activity: %v", err)
		return
	}
	t.badSummary = SummarizeBadChannels(m)
	t.logf("bad-channel map loaded: %d flagged channels", m.BadCount())
}

// buildSnapshot projects the engine state into a publishable snapshot.
func (t *Task) buildSnapshot() *Snapshot {
	s := &Snapshot{
		ActivityID:  t.activityID,
		Cycle:       t.cycle,
		Mode:        t.params.Mode.String(),
		CreatedAt:   time.Now().UTC(),
		BadChannels: t.badSummary,
	}
	t.pipe.contribute(s)

	if t.quality != nil {
		for m := 0; m < NModules; m++ {
			means := t.quality.scores.moduleMeans(m)
			counts := t.quality.scores.moduleCounts(m)
			s.Grids2D = append(s.Grids2D,
				modulePlaneGrid(fmt.Sprintf("fit_quality_mean_m%d", m),
					fmt.Sprintf("Mean fit quality, module %d", m), means),
				modulePlaneGrid(fmt.Sprintf("fit_quality_norm_m%d", m),
					fmt.Sprintf("Fit quality sample count, module %d", m), counts))
			s.GridStats = append(s.GridStats,
				statOverPopulated(fmt.Sprintf("fit_quality_mean_m%d", m), means, counts))
		}
	}

	s.Grids2D = append(s.Grids2D,
		Grid2D{
			Name:   "hw_error_count",
			Title:  "Hardware error count",
			Rows:   ErrorBoards,
			Cols:   ErrorLinks,
			XTitle: "link",
			YTitle: "board",
			Hint:   HintHeatmap,
			Cells:  t.errors.countPlane(),
		},
		Grid2D{
			Name:   "hw_error_flags",
			Title:  "Hardware error type flags",
			Rows:   ErrorBoards,
			Cols:   ErrorLinks,
			XTitle: "link",
			YTitle: "board",
			Hint:   HintHeatmap,
			Cells:  t.errors.flagPlane(),
		})

	badBins := make([]float64, NModules)
	for m, n := range t.badSummary.PerModule {
		badBins[m] = float64(n)
	}
	s.Grids1D = append(s.Grids1D, Grid1D{
		Name:   "bad_channels_per_module",
		Title:  "Bad channels per module",
		Lo:     0,
		Hi:     NModules,
		XTitle: "module",
		YTitle: "bad channels",
		Hint:   HintHist,
		Bins:   badBins,
	})

	s.Counters = SnapshotCounters{
		Batches:         t.batches,
		Events:          t.events,
		Readings:        t.readings,
		SliceViolations: t.sliceViolations,
		ErrorsTallied:   t.errors.Total(),
		ErrorsDropped:   t.errors.Dropped(),
	}
	t.pipe.counters(&s.Counters)
	if t.quality != nil {
		s.Counters.QualitySamples = t.quality.decodedSamples
		s.Counters.QualitySkipped = t.quality.Skipped()
		s.Counters.QualityTruncated = t.quality.Truncated()
	}
	return s
}

// Status reports engine state for the monitoring endpoints.
func (t *Task) Status() map[string]interface{} {
	st := map[string]interface{}{
		"state":            t.state.String(),
		"mode":             t.params.Mode.String(),
		"activity_id":      t.activityID,
		"cycle":            t.cycle,
		"batches":          t.batches,
		"events":           t.events,
		"readings":         t.readings,
		"slice_violations": t.sliceViolations,
		"bad_map_loaded":   t.badSummary.Loaded,
	}
	if t.quality != nil {
		st["quality_samples"] = t.quality.decodedSamples
		st["quality_truncated"] = t.quality.Truncated()
	}
	return st
}

// resetAll clears every grid, spectrum, tally, and counter and returns the
// engine to idle. The bad-channel latch clears too, so the next activity
// refetches the map.
func (t *Task) resetAll() {
	t.pipe.reset()
	t.errors.Reset()
	if t.quality != nil {
		t.quality.Reset()
	}
	t.badSummary = BadChannelSummary{}
	t.badFetched = false
	t.batches = 0
	t.events = 0
	t.readings = 0
	t.sliceViolations = 0
	t.earlyBatchSeen = false
	t.cycle = 0
	t.activityID = ""
	t.state = StateIdle
}

package calo

import "github.com/helios-array/quality.monitor/internal/monitoring"

// Fit-quality stream encoding: two raw values per sample. The first is a
// channel address with bit 14 flagging the low-gain fit variant; the second
// is the raw score in fifths of a unit.
const (
	qualityGainFlag   uint16 = 1 << 14
	qualityScoreScale        = 0.2
)

// QualityAggregator accumulates the per-channel fit-quality score stream
// into a mean/occupancy grid scoped to one monitoring cycle. Unlike the
// activity-scoped grid families it restarts from zero at every cycle, so
// the published mean is always a single-cycle average.
type QualityAggregator struct {
	scores *ModuleGrid

	skipped        uint64 // samples with an undecodable channel address
	truncated      uint64 // odd-length streams seen (trailing value dropped)
	truncLogged    bool   // one log line per cycle is enough
	logf           func(format string, v ...interface{})
	decodedSamples uint64
}

// NewQualityAggregator returns an empty aggregator.
func NewQualityAggregator() *QualityAggregator {
	return &QualityAggregator{
		scores: NewModuleGrid("fit_quality"),
		logf:   monitoring.Prefixed("quality"),
	}
}

// Consume decodes and aggregates one raw fit-quality stream. A stream with
// an odd length is not rejected: the trailing unpaired value is dropped and
// counted, the rest is processed normally.
func (q *QualityAggregator) Consume(raw []uint16) {
	if len(raw)%2 != 0 {
		q.truncated++
		if !q.truncLogged {
			q.logf("odd-length stream (%d values), dropping trailing value", len(raw))
			q.truncLogged = true
		}
	}
	for i := 0; i+1 < len(raw); i += 2 {
		addr := raw[i] &^ qualityGainFlag
		pos, err := PositionOf(addr)
		if err != nil {
			q.skipped++
			continue
		}
		q.scores.Add(pos, float64(raw[i+1])*qualityScoreScale)
	}
	q.decodedSamples += uint64(len(raw) / 2)
}

// BeginCycle clears the cycle-scoped grid for a fresh accumulation.
func (q *QualityAggregator) BeginCycle() {
	q.scores.Reset()
	q.truncLogged = false
}

// Mean returns the current cycle's mean score at a position.
func (q *QualityAggregator) Mean(pos ChannelPosition) float64 {
	return q.scores.Mean(pos)
}

// Count returns the current cycle's sample count at a position.
func (q *QualityAggregator) Count(pos ChannelPosition) uint32 {
	return q.scores.Count(pos)
}

// Truncated returns how many odd-length streams were seen this activity.
func (q *QualityAggregator) Truncated() uint64 { return q.truncated }

// Skipped returns how many samples carried undecodable addresses.
func (q *QualityAggregator) Skipped() uint64 { return q.skipped }

// Reset clears everything, including activity counters.
func (q *QualityAggregator) Reset() {
	q.scores.Reset()
	q.skipped = 0
	q.truncated = 0
	q.truncLogged = false
	q.decodedSamples = 0
}

package calo

import "context"

// BadChannelMap is a point-in-time mask of channels flagged unusable by the
// calibration system. The zero value (or nil) treats every channel as good.
type BadChannelMap struct {
	bad []bool // indexed by SpectrumIndex
}

// NewBadChannelMap builds a map from a list of flagged channel ids.
// Out-of-range ids are ignored.
func NewBadChannelMap(badChannels []uint16) *BadChannelMap {
	m := &BadChannelMap{bad: make([]bool, SpectrumChannels)}
	for _, ch := range badChannels {
		if ch < FirstValidChannel || ch > MaxChannelID {
			continue
		}
		m.bad[SpectrumIndex(ch)] = true
	}
	return m
}

// IsGood reports whether the channel is usable. Channels outside the
// populated range are never good.
func (m *BadChannelMap) IsGood(channel uint16) bool {
	if channel < FirstValidChannel || channel > MaxChannelID {
		return false
	}
	if m == nil || m.bad == nil {
		return true
	}
	return !m.bad[SpectrumIndex(channel)]
}

// BadCount returns the number of flagged channels.
func (m *BadChannelMap) BadCount() int {
	if m == nil {
		return 0
	}
	n := 0
	for _, b := range m.bad {
		if b {
			n++
		}
	}
	return n
}

// BadChannelSource fetches the current bad-channel map from wherever the
// calibration system keeps it. The engine calls it at most once per
// activity; a failure leaves the summary empty until the next activity.
type BadChannelSource interface {
	FetchBadChannels(ctx context.Context) (*BadChannelMap, error)
}

// BadChannelSourceFunc adapts a function to the BadChannelSource interface.
type BadChannelSourceFunc func(ctx context.Context) (*BadChannelMap, error)

// FetchBadChannels calls f.
func (f BadChannelSourceFunc) FetchBadChannels(ctx context.Context) (*BadChannelMap, error) {
	return f(ctx)
}

// BadChannelSummary reduces a bad-channel map to a per-module count of
// flagged channels. Loaded reports whether a map was applied this activity.
type BadChannelSummary struct {
	PerModule [NModules]int `json:"per_module"`
	Loaded    bool          `json:"loaded"`
}

// SummarizeBadChannels scans the populated channel range and counts flagged
// channels per module.
func SummarizeBadChannels(m *BadChannelMap) BadChannelSummary {
	s := BadChannelSummary{Loaded: true}
	for ch := uint16(FirstValidChannel); ch <= MaxChannelID; ch++ {
		if m.IsGood(ch) {
			continue
		}
		pos, err := PositionOf(ch)
		if err != nil {
			continue
		}
		s.PerModule[pos.Module]++
	}
	return s
}

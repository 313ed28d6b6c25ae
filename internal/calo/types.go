package calo

// Gain identifies the amplifier branch a reading came from.
type Gain uint8

const (
	HighGain Gain = 0
	LowGain  Gain = 1
)

// String returns the conventional short label for the gain branch.
func (g Gain) String() string {
	if g == LowGain {
		return "LG"
	}
	return "HG"
}

// ChannelReading is one calibrated sample from a single channel: the fitted
// pulse energy (ADC counts) and arrival time (seconds relative to the
// trigger).
type ChannelReading struct {
	Channel uint16
	Gain    Gain
	Energy  float32
	Time    float32
}

// EventSlice delimits the readings of one collision event within a batch:
// the half-open index range [First, First+Count). Slices are contiguous,
// non-overlapping, and ordered by event.
type EventSlice struct {
	First uint16
	Count uint16
}

// HardwareErrorRecord is one decoding-error report from the readout chain.
// Code is a small integer used as a bit position (0-31).
type HardwareErrorRecord struct {
	Board uint8
	Link  uint8
	Code  uint8
}

// ReadoutBatch is one decoded event-batch delivery: the readings of one or
// more events, the slices that group them, the hardware-error side stream,
// and (when the readout has fit-quality reporting enabled) the raw
// fit-quality value stream consumed by the quality aggregator.
type ReadoutBatch struct {
	Sequence uint32
	Readings []ChannelReading
	Events   []EventSlice
	Errors   []HardwareErrorRecord
	Quality  []uint16
}

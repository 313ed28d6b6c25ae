package main

import (
	"math/rand"
	"time"

	"github.com/helios-array/quality.monitor/internal/calo"
	"github.com/helios-array/quality.monitor/internal/calo/parse"
)

// BatchSynthesizer builds physics-plausible readout batches: a configurable
// number of events per batch, readings drawn from per-mode energy
// distributions, occasional hardware-error records, and optionally the
// fit-quality side stream.
type BatchSynthesizer struct {
	// EventsPerBatch is the number of event slices packed into one batch.
	EventsPerBatch int
	// ReadingsPerEvent is the mean event size; actual sizes vary around it.
	ReadingsPerEvent int
	// ErrorRate is the probability of one hardware-error record per batch.
	ErrorRate float64
	// Quality adds the fit-quality stream to every batch.
	Quality bool

	mode calo.Mode
	seq  uint32
	rng  *rand.Rand
}

// NewBatchSynthesizer creates a generator for the given data shape. A zero
// seed picks a time-based one.
func NewBatchSynthesizer(mode calo.Mode, seed int64) *BatchSynthesizer {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &BatchSynthesizer{
		EventsPerBatch:   5,
		ReadingsPerEvent: 40,
		ErrorRate:        0.02,
		mode:             mode,
		rng:              rand.New(rand.NewSource(seed)),
	}
}

// NextBatch generates the next batch with a fresh sequence number.
func (g *BatchSynthesizer) NextBatch() *calo.ReadoutBatch {
	g.seq++
	b := &calo.ReadoutBatch{Sequence: g.seq}

	for ev := 0; ev < g.EventsPerBatch; ev++ {
		n := g.eventSize()
		if len(b.Readings)+n > parse.MAX_READINGS_PER_BATCH {
			break
		}
		first := len(b.Readings)
		for i := 0; i < n; i++ {
			b.Readings = append(b.Readings, g.reading())
		}
		b.Events = append(b.Events, calo.EventSlice{First: uint16(first), Count: uint16(n)})
		if g.Quality {
			b.Quality = append(b.Quality, g.qualitySamples()...)
		}
	}

	if g.rng.Float64() < g.ErrorRate {
		b.Errors = append(b.Errors, calo.HardwareErrorRecord{
			Board: uint8(g.rng.Intn(calo.ErrorBoards)),
			Link:  uint8(g.rng.Intn(calo.ErrorLinks)),
			Code:  uint8(g.rng.Intn(calo.MaxErrorCode + 1)),
		})
	}
	return b
}

func (g *BatchSynthesizer) eventSize() int {
	mean := g.ReadingsPerEvent
	if mean < 2 {
		mean = 2
	}
	return mean/2 + g.rng.Intn(mean)
}

func (g *BatchSynthesizer) randomChannel() uint16 {
	return uint16(calo.FirstValidChannel + g.rng.Intn(calo.MaxChannelID-calo.FirstValidChannel+1))
}

// reading draws one channel reading from the mode's energy distribution.
func (g *BatchSynthesizer) reading() calo.ChannelReading {
	r := calo.ChannelReading{
		Channel: g.randomChannel(),
		Time:    float32(g.rng.NormFloat64() * 1.2e-7),
	}

	switch g.mode {
	case calo.ModePedestal:
		// Raw baseline samples, distinct mean and spread per gain branch.
		if g.rng.Float64() < 0.5 {
			r.Gain = calo.LowGain
			r.Energy = float32(33 + g.rng.NormFloat64()*1.2)
		} else {
			r.Energy = float32(36 + g.rng.NormFloat64()*1.8)
		}
	case calo.ModeLED:
		// Pulser peak over a small noise floor.
		if g.rng.Float64() < 0.15 {
			r.Energy = float32(g.rng.ExpFloat64() * 4)
		} else {
			r.Energy = float32(480 + g.rng.NormFloat64()*24)
		}
		if g.rng.Float64() < 0.1 {
			r.Gain = calo.LowGain
			r.Energy /= 16
		}
	default:
		// Steeply falling physics spectrum over the noise pedestal.
		if g.rng.Float64() < 0.6 {
			r.Energy = float32(g.rng.ExpFloat64() * 4)
		} else {
			r.Energy = float32(50 + g.rng.ExpFloat64()*120)
		}
		if g.rng.Float64() < 0.15 {
			r.Gain = calo.LowGain
			r.Energy /= 16
		}
	}
	return r
}

// qualitySamples emits a few address/score pairs. Bit 14 of the address
// flags the low-gain fit variant; raw scores are fifths of a unit.
func (g *BatchSynthesizer) qualitySamples() []uint16 {
	n := 2 + g.rng.Intn(3)
	out := make([]uint16, 0, 2*n)
	for i := 0; i < n; i++ {
		addr := g.randomChannel()
		if g.rng.Float64() < 0.3 {
			addr |= 1 << 14
		}
		out = append(out, addr, uint16(g.rng.Intn(51)))
	}
	return out
}

package calo

import "fmt"

// LED spectrum binning. The range starts above the pedestal region so the
// accumulated spectra hold only pulsed-light amplitudes.
const (
	SpectrumBins = 487
	SpectrumLo   = 50.0
	SpectrumHi   = 1024.0
)

// SpectrumSet owns one high-gain energy spectrum per populated channel.
// Spectra are allocated on first fill and live for the whole activity; the
// peak scan therefore always sees cumulative statistics since activity
// start.
type SpectrumSet struct {
	spectra   []*Hist1D // indexed by SpectrumIndex, nil until first fill
	allocated int
}

// NewSpectrumSet returns an empty set covering every populated channel.
func NewSpectrumSet() *SpectrumSet {
	return &SpectrumSet{spectra: make([]*Hist1D, SpectrumChannels)}
}

// Fill adds one energy sample to the channel's spectrum. Returns false for
// ids outside the populated range.
func (s *SpectrumSet) Fill(channel uint16, energy float64) bool {
	if channel < FirstValidChannel || channel > MaxChannelID {
		return false
	}
	i := SpectrumIndex(channel)
	if s.spectra[i] == nil {
		s.spectra[i] = NewHist1D(fmt.Sprintf("channel_spectrum_%05d", channel), SpectrumBins, SpectrumLo, SpectrumHi)
		s.allocated++
	}
	s.spectra[i].Fill(energy)
	return true
}

// Spectrum returns the channel's spectrum, nil when the channel has never
// been filled or the id is out of range.
func (s *SpectrumSet) Spectrum(channel uint16) *Hist1D {
	if channel < FirstValidChannel || channel > MaxChannelID {
		return nil
	}
	return s.spectra[SpectrumIndex(channel)]
}

// Allocated returns how many channels have live spectra.
func (s *SpectrumSet) Allocated() int { return s.allocated }

// ScanPeaks runs the peak search over every live spectrum and writes the
// per-channel peak count into the whole-detector plane at the channel's
// grid position. Channels without a spectrum stay at 0.
func (s *SpectrumSet) ScanPeaks(params PeakSearchParams, plane []float64) {
	for i := range plane {
		plane[i] = 0
	}
	for idx, h := range s.spectra {
		if h == nil {
			continue
		}
		channel := uint16(idx + FirstValidChannel)
		pos, err := PositionOf(channel)
		if err != nil {
			continue
		}
		plane[cellIndex(pos)] = float64(CountPeaks(h, params))
	}
}

// Reset drops every spectrum.
func (s *SpectrumSet) Reset() {
	for i := range s.spectra {
		s.spectra[i] = nil
	}
	s.allocated = 0
}

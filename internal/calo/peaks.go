package calo

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// PeakSearchParams controls the spectrum peak search.
type PeakSearchParams struct {
	// MaxCandidates caps the number of reported peaks, strongest first.
	MaxCandidates int
	// Sigma is the smoothing width in bins.
	Sigma float64
	// MinRelHeight suppresses candidates below this fraction of the
	// smoothed spectrum maximum.
	MinRelHeight float64
}

// DefaultPeakSearchParams returns the standard LED-calibration search
// settings: at most 20 candidates, 2-bin smoothing, 10% relative height.
func DefaultPeakSearchParams() PeakSearchParams {
	return PeakSearchParams{MaxCandidates: 20, Sigma: 2.0, MinRelHeight: 0.1}
}

// Peak is one located spectrum peak.
type Peak struct {
	Bin    int     // bin index in the searched histogram
	X      float64 // bin-center coordinate
	Height float64 // smoothed height
}

// FindPeaks locates peaks in a histogram: the spectrum is Gaussian-smoothed
// with width Sigma, local maxima below MinRelHeight of the smoothed maximum
// are suppressed, maxima closer than 2*Sigma bins to a stronger accepted
// peak are treated as its shoulder, and at most MaxCandidates survive.
// Results are ordered by descending height.
func FindPeaks(h *Hist1D, p PeakSearchParams) []Peak {
	if h == nil || h.Integral() == 0 {
		return nil
	}
	if p.MaxCandidates < 1 {
		p.MaxCandidates = 1
	}
	if p.Sigma <= 0 {
		p.Sigma = 1
	}

	smoothed := gaussianSmooth(h.Contents(), p.Sigma)
	max := floats.Max(smoothed)
	if max <= 0 {
		return nil
	}
	floor := p.MinRelHeight * max

	// Local maxima, plateau-tolerant on the right edge. The first and last
	// bins never qualify: a rising edge at the boundary is not a peak.
	var cands []Peak
	for i := 1; i < len(smoothed)-1; i++ {
		if smoothed[i] < floor {
			continue
		}
		if smoothed[i] > smoothed[i-1] && smoothed[i] >= smoothed[i+1] {
			cands = append(cands, Peak{Bin: i, X: h.BinCenter(i), Height: smoothed[i]})
		}
	}
	if len(cands) == 0 {
		return nil
	}

	sort.Slice(cands, func(a, b int) bool { return cands[a].Height > cands[b].Height })

	minSep := int(2 * p.Sigma)
	if minSep < 1 {
		minSep = 1
	}
	var peaks []Peak
	for _, c := range cands {
		shoulder := false
		for _, acc := range peaks {
			if abs(c.Bin-acc.Bin) <= minSep {
				shoulder = true
				break
			}
		}
		if shoulder {
			continue
		}
		peaks = append(peaks, c)
		if len(peaks) == p.MaxCandidates {
			break
		}
	}
	return peaks
}

// CountPeaks returns the number of peaks FindPeaks locates.
func CountPeaks(h *Hist1D, p PeakSearchParams) int {
	return len(FindPeaks(h, p))
}

// gaussianSmooth convolves with a truncated Gaussian kernel (radius
// 3*sigma), renormalizing at the edges so boundary bins are not damped.
func gaussianSmooth(bins []float64, sigma float64) []float64 {
	radius := int(math.Ceil(3 * sigma))
	if radius < 1 {
		radius = 1
	}
	kernel := make([]float64, 2*radius+1)
	for k := -radius; k <= radius; k++ {
		kernel[k+radius] = math.Exp(-float64(k*k) / (2 * sigma * sigma))
	}

	out := make([]float64, len(bins))
	for i := range bins {
		var sum, weight float64
		for k := -radius; k <= radius; k++ {
			j := i + k
			if j < 0 || j >= len(bins) {
				continue
			}
			w := kernel[k+radius]
			sum += w * bins[j]
			weight += w
		}
		if weight > 0 {
			out[i] = sum / weight
		}
	}
	return out
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

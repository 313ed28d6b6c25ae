package calo

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Hist1D is a fixed-range histogram with uniform binning. Fills outside
// [Lo, Hi) land in under/overflow counters, never in bins.
type Hist1D struct {
	name    string
	lo, hi  float64
	binW    float64
	bins    []float64
	under   uint64
	over    uint64
	entries uint64
}

// NewHist1D allocates a histogram with n uniform bins over [lo, hi).
func NewHist1D(name string, n int, lo, hi float64) *Hist1D {
	if n < 1 || hi <= lo {
		panic(fmt.Sprintf("calo: bad histogram axis %s: n=%d range=[%g,%g)", name, n, lo, hi))
	}
	return &Hist1D{
		name: name,
		lo:   lo,
		hi:   hi,
		binW: (hi - lo) / float64(n),
		bins: make([]float64, n),
	}
}

// Name returns the histogram's publication name.
func (h *Hist1D) Name() string { return h.name }

// NBins returns the bin count.
func (h *Hist1D) NBins() int { return len(h.bins) }

// Range returns the axis bounds.
func (h *Hist1D) Range() (lo, hi float64) { return h.lo, h.hi }

// Fill adds a unit-weight entry at x.
func (h *Hist1D) Fill(x float64) {
	h.entries++
	if x < h.lo {
		h.under++
		return
	}
	if x >= h.hi {
		h.over++
		return
	}
	h.bins[int((x-h.lo)/h.binW)]++
}

// Entries returns the total number of Fill calls, including out-of-range.
func (h *Hist1D) Entries() uint64 { return h.entries }

// BinContent returns the weight in bin i.
func (h *Hist1D) BinContent(i int) float64 { return h.bins[i] }

// BinCenter returns the x coordinate at the middle of bin i.
func (h *Hist1D) BinCenter(i int) float64 {
	return h.lo + (float64(i)+0.5)*h.binW
}

// MaxContent returns the largest bin weight, 0 for an all-empty histogram.
func (h *Hist1D) MaxContent() float64 {
	if len(h.bins) == 0 {
		return 0
	}
	return floats.Max(h.bins)
}

// Integral returns the sum of all in-range bin weights.
func (h *Hist1D) Integral() float64 {
	return floats.Sum(h.bins)
}

// Contents returns a copy of the bin weights.
func (h *Hist1D) Contents() []float64 {
	out := make([]float64, len(h.bins))
	copy(out, h.bins)
	return out
}

// Reset zeroes every bin and counter.
func (h *Hist1D) Reset() {
	for i := range h.bins {
		h.bins[i] = 0
	}
	h.under, h.over, h.entries = 0, 0, 0
}

// Hist2D is a fixed-range 2D histogram with uniform binning on both axes.
// Out-of-range fills are dropped with a counter.
type Hist2D struct {
	name       string
	nx, ny     int
	xlo, xhi   float64
	ylo, yhi   float64
	binWX      float64
	binWY      float64
	bins       []float64 // y-major: bins[y*nx+x]
	outOfRange uint64
	entries    uint64
}

// NewHist2D allocates a 2D histogram with nx*ny uniform bins.
func NewHist2D(name string, nx int, xlo, xhi float64, ny int, ylo, yhi float64) *Hist2D {
	if nx < 1 || ny < 1 || xhi <= xlo || yhi <= ylo {
		panic(fmt.Sprintf("calo: bad histogram axes %s", name))
	}
	return &Hist2D{
		name:  name,
		nx:    nx,
		ny:    ny,
		xlo:   xlo,
		xhi:   xhi,
		ylo:   ylo,
		yhi:   yhi,
		binWX: (xhi - xlo) / float64(nx),
		binWY: (yhi - ylo) / float64(ny),
		bins:  make([]float64, nx*ny),
	}
}

// Name returns the histogram's publication name.
func (h *Hist2D) Name() string { return h.name }

// Dims returns the bin counts of both axes.
func (h *Hist2D) Dims() (nx, ny int) { return h.nx, h.ny }

// XRange returns the x axis bounds.
func (h *Hist2D) XRange() (lo, hi float64) { return h.xlo, h.xhi }

// YRange returns the y axis bounds.
func (h *Hist2D) YRange() (lo, hi float64) { return h.ylo, h.yhi }

// Fill adds a unit-weight entry at (x, y).
func (h *Hist2D) Fill(x, y float64) {
	h.entries++
	if x < h.xlo || x >= h.xhi || y < h.ylo || y >= h.yhi {
		h.outOfRange++
		return
	}
	ix := int((x - h.xlo) / h.binWX)
	iy := int((y - h.ylo) / h.binWY)
	h.bins[iy*h.nx+ix]++
}

// Entries returns the total number of Fill calls, including out-of-range.
func (h *Hist2D) Entries() uint64 { return h.entries }

// BinContent returns the weight of bin (ix, iy).
func (h *Hist2D) BinContent(ix, iy int) float64 {
	return h.bins[iy*h.nx+ix]
}

// Contents returns a copy of the bin weights, y-major.
func (h *Hist2D) Contents() []float64 {
	out := make([]float64, len(h.bins))
	copy(out, h.bins)
	return out
}

// Reset zeroes every bin and counter.
func (h *Hist2D) Reset() {
	for i := range h.bins {
		h.bins[i] = 0
	}
	h.outOfRange, h.entries = 0, 0
}

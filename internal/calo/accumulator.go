package calo

import "math"

// ModuleGrid is a whole-detector accumulator holding, per cell, an explicit
// running sum and sample count. The mean is a pure projection of the two and
// is never stored, so reading it at cycle boundaries costs nothing and the
// sum survives snapshotting exactly (no mean*count re-encoding round trip).
//
// Grids are owned by the engine goroutine and are not safe for concurrent
// use; consumers see deep-copied snapshots instead.
type ModuleGrid struct {
	name  string
	sum   []float64
	count []uint32
}

// NewModuleGrid allocates a zeroed accumulator covering the whole detector.
func NewModuleGrid(name string) *ModuleGrid {
	return &ModuleGrid{
		name:  name,
		sum:   make([]float64, TotalCells),
		count: make([]uint32, TotalCells),
	}
}

// Name returns the grid's publication name.
func (g *ModuleGrid) Name() string { return g.name }

// Add accumulates one sample at the given position.
func (g *ModuleGrid) Add(pos ChannelPosition, value float64) {
	i := cellIndex(pos)
	g.sum[i] += value
	g.count[i]++
}

// Sum returns the running sum at the position.
func (g *ModuleGrid) Sum(pos ChannelPosition) float64 {
	return g.sum[cellIndex(pos)]
}

// Count returns the occupancy (sample count) at the position.
func (g *ModuleGrid) Count(pos ChannelPosition) uint32 {
	return g.count[cellIndex(pos)]
}

// Mean returns sum/count at the position, 0 when the cell is empty. Empty
// cells are defined to read 0 rather than NaN.
func (g *ModuleGrid) Mean(pos ChannelPosition) float64 {
	i := cellIndex(pos)
	if g.count[i] == 0 {
		return 0
	}
	return g.sum[i] / float64(g.count[i])
}

// Reset zeroes every cell.
func (g *ModuleGrid) Reset() {
	for i := range g.sum {
		g.sum[i] = 0
		g.count[i] = 0
	}
}

// moduleMeans extracts one module's mean projection as a row-major plane.
func (g *ModuleGrid) moduleMeans(module int) []float64 {
	out := make([]float64, ChannelsPerModule)
	base := module * ChannelsPerModule
	for i := 0; i < ChannelsPerModule; i++ {
		if c := g.count[base+i]; c > 0 {
			out[i] = g.sum[base+i] / float64(c)
		}
	}
	return out
}

// moduleCounts extracts one module's occupancy plane.
func (g *ModuleGrid) moduleCounts(module int) []float64 {
	out := make([]float64, ChannelsPerModule)
	base := module * ChannelsPerModule
	for i := 0; i < ChannelsPerModule; i++ {
		out[i] = float64(g.count[base+i])
	}
	return out
}

// CountRange returns the smallest and largest occupancy over cells with at
// least one sample. ok is false when every cell is empty. Used to scale
// occupancy displays.
func (g *ModuleGrid) CountRange() (min, max uint32, ok bool) {
	for _, c := range g.count {
		if c == 0 {
			continue
		}
		if !ok {
			min, max, ok = c, c, true
			continue
		}
		if c < min {
			min = c
		}
		if c > max {
			max = c
		}
	}
	return min, max, ok
}

// VarianceGrid is a whole-detector running-variance accumulator using
// Welford's update, holding per cell the count, mean, and sum of squared
// deviations. It replaces second-moment bookkeeping that would otherwise
// lose precision on long activities.
type VarianceGrid struct {
	name  string
	count []uint32
	mean  []float64
	m2    []float64
}

// NewVarianceGrid allocates a zeroed variance accumulator.
func NewVarianceGrid(name string) *VarianceGrid {
	return &VarianceGrid{
		name:  name,
		count: make([]uint32, TotalCells),
		mean:  make([]float64, TotalCells),
		m2:    make([]float64, TotalCells),
	}
}

// Name returns the grid's publication name.
func (g *VarianceGrid) Name() string { return g.name }

// Add accumulates one sample at the given position.
func (g *VarianceGrid) Add(pos ChannelPosition, value float64) {
	i := cellIndex(pos)
	g.count[i]++
	delta := value - g.mean[i]
	g.mean[i] += delta / float64(g.count[i])
	g.m2[i] += delta * (value - g.mean[i])
}

// Count returns the occupancy at the position.
func (g *VarianceGrid) Count(pos ChannelPosition) uint32 {
	return g.count[cellIndex(pos)]
}

// Mean returns the running mean at the position, 0 when empty.
func (g *VarianceGrid) Mean(pos ChannelPosition) float64 {
	return g.mean[cellIndex(pos)]
}

// StdDev returns the population standard deviation at the position, 0 when
// the cell holds fewer than two samples.
func (g *VarianceGrid) StdDev(pos ChannelPosition) float64 {
	i := cellIndex(pos)
	if g.count[i] < 2 {
		return 0
	}
	return math.Sqrt(g.m2[i] / float64(g.count[i]))
}

// Reset zeroes every cell.
func (g *VarianceGrid) Reset() {
	for i := range g.count {
		g.count[i] = 0
		g.mean[i] = 0
		g.m2[i] = 0
	}
}

func (g *VarianceGrid) moduleMeans(module int) []float64 {
	out := make([]float64, ChannelsPerModule)
	base := module * ChannelsPerModule
	copy(out, g.mean[base:base+ChannelsPerModule])
	return out
}

func (g *VarianceGrid) moduleStdDevs(module int) []float64 {
	out := make([]float64, ChannelsPerModule)
	base := module * ChannelsPerModule
	for i := 0; i < ChannelsPerModule; i++ {
		if g.count[base+i] >= 2 {
			out[i] = math.Sqrt(g.m2[base+i] / float64(g.count[base+i]))
		}
	}
	return out
}

func (g *VarianceGrid) moduleCounts(module int) []float64 {
	out := make([]float64, ChannelsPerModule)
	base := module * ChannelsPerModule
	for i := 0; i < ChannelsPerModule; i++ {
		out[i] = float64(g.count[base+i])
	}
	return out
}

// CountRange is the occupancy display range over populated cells.
func (g *VarianceGrid) CountRange() (min, max uint32, ok bool) {
	for _, c := range g.count {
		if c == 0 {
			continue
		}
		if !ok {
			min, max, ok = c, c, true
			continue
		}
		if c < min {
			min = c
		}
		if c > max {
			max = c
		}
	}
	return min, max, ok
}

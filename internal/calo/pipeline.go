package calo

import (
	"fmt"
	"strings"
)

// Mode selects which fill pipeline the engine runs. It is fixed at engine
// construction; there is no runtime mode switching.
type Mode int

const (
	// ModeBaseline aggregates occupancy and mean energy of above-threshold
	// readings during normal data taking.
	ModeBaseline Mode = iota
	// ModePedestal aggregates per-gain baseline mean and spread with no
	// threshold, for electronics calibration runs.
	ModePedestal
	// ModeLED runs the baseline pipeline and additionally accumulates
	// per-channel pulsed-light spectra for peak counting.
	ModeLED
)

// String returns the configuration name of the mode.
func (m Mode) String() string {
	switch m {
	case ModePedestal:
		return "pedestal"
	case ModeLED:
		return "led"
	default:
		return "baseline"
	}
}

// ParseMode maps a configuration string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "baseline", "physics":
		return ModeBaseline, nil
	case "pedestal":
		return ModePedestal, nil
	case "led":
		return ModeLED, nil
	}
	return ModeBaseline, fmt.Errorf("unknown mode %q", s)
}

// pipeline is the per-mode fill implementation. Exactly one is selected at
// engine construction.
type pipeline interface {
	// processEvent aggregates the readings of one event.
	processEvent(readings []ChannelReading)
	// endCycle runs per-cycle recomputation (LED peak scan).
	endCycle()
	// contribute appends the pipeline's grids to the snapshot.
	contribute(s *Snapshot)
	// counters folds the pipeline's totals into the snapshot counters.
	counters(c *SnapshotCounters)
	// reset clears all pipeline state for a new activity.
	reset()
}

// baselinePipeline implements ModeBaseline: low-gain readings are rescaled
// to the high-gain-equivalent scale, noise-level readings below the
// occupancy threshold are discarded, and the survivors feed the mean-energy
// accumulator, the per-module energy-vs-time map, and the per-module energy
// spectrum.
type baselinePipeline struct {
	threshold float64
	lgScale   float64

	energy  *ModuleGrid
	timeVsE [NModules]*Hist2D
	spectra [NModules]*Hist1D

	below   uint64 // discarded below threshold
	skipped uint64 // geometry rejects
}

func newBaselinePipeline(threshold, lgScale float64) *baselinePipeline {
	p := &baselinePipeline{
		threshold: threshold,
		lgScale:   lgScale,
		energy:    NewModuleGrid("energy"),
	}
	for m := 0; m < NModules; m++ {
		p.timeVsE[m] = NewHist2D(fmt.Sprintf("time_vs_energy_m%d", m),
			50, 0, 1000, 50, -5e-7, 5e-7)
		p.spectra[m] = NewHist1D(fmt.Sprintf("module_spectrum_m%d", m),
			100, 0, 1000)
	}
	return p
}

func (p *baselinePipeline) processEvent(readings []ChannelReading) {
	for _, r := range readings {
		e := float64(r.Energy)
		if r.Gain == LowGain {
			e *= p.lgScale
		}
		if e < p.threshold {
			p.below++
			continue
		}
		pos, err := PositionOf(r.Channel)
		if err != nil {
			p.skipped++
			continue
		}
		p.energy.Add(pos, e)
		p.timeVsE[pos.Module].Fill(e, float64(r.Time))
		p.spectra[pos.Module].Fill(e)
	}
}

func (p *baselinePipeline) endCycle() {}

func (p *baselinePipeline) contribute(s *Snapshot) {
	for m := 0; m < NModules; m++ {
		means := p.energy.moduleMeans(m)
		counts := p.energy.moduleCounts(m)
		s.Grids2D = append(s.Grids2D,
			modulePlaneGrid(fmt.Sprintf("energy_mean_m%d", m),
				fmt.Sprintf("Mean energy, module %d", m), means),
			modulePlaneGrid(fmt.Sprintf("occupancy_m%d", m),
				fmt.Sprintf("Occupancy, module %d", m), counts),
			hist2DGrid(p.timeVsE[m],
				fmt.Sprintf("Time vs energy, module %d", m), "energy (ADC)", "time (s)"))
		s.Grids1D = append(s.Grids1D,
			hist1DGrid(p.spectra[m],
				fmt.Sprintf("Energy spectrum, module %d", m), "energy (ADC)"))
		s.GridStats = append(s.GridStats,
			statOverPopulated(fmt.Sprintf("energy_mean_m%d", m), means, counts))
	}
}

func (p *baselinePipeline) counters(c *SnapshotCounters) {
	c.BelowThreshold += p.below
	c.SkippedReadings += p.skipped
}

func (p *baselinePipeline) reset() {
	p.energy.Reset()
	for m := 0; m < NModules; m++ {
		p.timeVsE[m].Reset()
		p.spectra[m].Reset()
	}
	p.below = 0
	p.skipped = 0
}

// pedestalPipeline implements ModePedestal: every reading, keyed by gain,
// feeds a running mean/variance accumulator. No threshold and no gain
// rescaling; pedestal levels are gain-specific by nature.
type pedestalPipeline struct {
	gains   [2]*VarianceGrid // indexed by Gain
	skipped uint64
}

func newPedestalPipeline() *pedestalPipeline {
	return &pedestalPipeline{
		gains: [2]*VarianceGrid{
			NewVarianceGrid("ped_hg"),
			NewVarianceGrid("ped_lg"),
		},
	}
}

func (p *pedestalPipeline) processEvent(readings []ChannelReading) {
	for _, r := range readings {
		if r.Gain > LowGain {
			p.skipped++
			continue
		}
		pos, err := PositionOf(r.Channel)
		if err != nil {
			p.skipped++
			continue
		}
		p.gains[r.Gain].Add(pos, float64(r.Energy))
	}
}

func (p *pedestalPipeline) endCycle() {}

func (p *pedestalPipeline) contribute(s *Snapshot) {
	labels := [2]string{"hg", "lg"}
	// Mean and spread distributions across all populated cells, for the
	// at-a-glance pedestal health view.
	meanDist := [2]*Hist1D{
		NewHist1D("ped_hg_mean_dist", 100, 0, 100),
		NewHist1D("ped_lg_mean_dist", 100, 0, 100),
	}
	spreadDist := [2]*Hist1D{
		NewHist1D("ped_hg_stddev_dist", 100, 0, 10),
		NewHist1D("ped_lg_stddev_dist", 100, 0, 10),
	}

	for gi, g := range p.gains {
		min, max, ok := g.CountRange()
		for m := 0; m < NModules; m++ {
			means := g.moduleMeans(m)
			stddevs := g.moduleStdDevs(m)
			counts := g.moduleCounts(m)

			occupancyGrid := modulePlaneGrid(
				fmt.Sprintf("ped_%s_occupancy_m%d", labels[gi], m),
				fmt.Sprintf("%s pedestal occupancy, module %d", strings.ToUpper(labels[gi]), m),
				counts)
			if ok {
				occupancyGrid.DisplayMin = float64(min)
				occupancyGrid.DisplayMax = float64(max)
			}

			s.Grids2D = append(s.Grids2D,
				modulePlaneGrid(fmt.Sprintf("ped_%s_mean_m%d", labels[gi], m),
					fmt.Sprintf("%s pedestal mean, module %d", strings.ToUpper(labels[gi]), m), means),
				modulePlaneGrid(fmt.Sprintf("ped_%s_stddev_m%d", labels[gi], m),
					fmt.Sprintf("%s pedestal spread, module %d", strings.ToUpper(labels[gi]), m), stddevs),
				occupancyGrid)
			s.GridStats = append(s.GridStats,
				statOverPopulated(fmt.Sprintf("ped_%s_mean_m%d", labels[gi], m), means, counts),
				statOverPopulated(fmt.Sprintf("ped_%s_stddev_m%d", labels[gi], m), stddevs, counts))

			for i, c := range counts {
				if c > 0 {
					meanDist[gi].Fill(means[i])
					spreadDist[gi].Fill(stddevs[i])
				}
			}
		}
		s.Grids1D = append(s.Grids1D,
			hist1DGrid(meanDist[gi], strings.ToUpper(labels[gi])+" pedestal mean distribution", "pedestal mean (ADC)"),
			hist1DGrid(spreadDist[gi], strings.ToUpper(labels[gi])+" pedestal spread distribution", "pedestal spread (ADC)"))
	}
}

func (p *pedestalPipeline) counters(c *SnapshotCounters) {
	c.SkippedReadings += p.skipped
}

func (p *pedestalPipeline) reset() {
	p.gains[0].Reset()
	p.gains[1].Reset()
	p.skipped = 0
}

// ledPipeline implements ModeLED: the baseline pipeline runs unconditionally
// and every high-gain reading additionally feeds the channel's persistent
// spectrum. Peak counts are recomputed from the grown spectra at each cycle
// end.
type ledPipeline struct {
	*baselinePipeline
	spectra      *SpectrumSet
	peaks        []float64
	searchParams PeakSearchParams
}

func newLEDPipeline(threshold, lgScale float64, params PeakSearchParams) *ledPipeline {
	return &ledPipeline{
		baselinePipeline: newBaselinePipeline(threshold, lgScale),
		spectra:          NewSpectrumSet(),
		peaks:            make([]float64, TotalCells),
		searchParams:     params,
	}
}

func (p *ledPipeline) processEvent(readings []ChannelReading) {
	p.baselinePipeline.processEvent(readings)
	for _, r := range readings {
		if r.Gain != HighGain {
			continue
		}
		p.spectra.Fill(r.Channel, float64(r.Energy))
	}
}

func (p *ledPipeline) endCycle() {
	p.spectra.ScanPeaks(p.searchParams, p.peaks)
}

func (p *ledPipeline) contribute(s *Snapshot) {
	p.baselinePipeline.contribute(s)
	for m := 0; m < NModules; m++ {
		plane := make([]float64, ChannelsPerModule)
		copy(plane, p.peaks[m*ChannelsPerModule:(m+1)*ChannelsPerModule])
		s.Grids2D = append(s.Grids2D,
			modulePlaneGrid(fmt.Sprintf("peak_count_m%d", m),
				fmt.Sprintf("LED peak count, module %d", m), plane))
	}
}

func (p *ledPipeline) counters(c *SnapshotCounters) {
	p.baselinePipeline.counters(c)
	c.SpectraAllocated = p.spectra.Allocated()
}

func (p *ledPipeline) reset() {
	p.baselinePipeline.reset()
	p.spectra.Reset()
	for i := range p.peaks {
		p.peaks[i] = 0
	}
}

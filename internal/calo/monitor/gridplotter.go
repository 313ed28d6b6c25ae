package monitor

import (
	"fmt"
	"image/color"
	"net/http"
	"path/filepath"
	"strings"
	"sync"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/helios-array/quality.monitor/internal/calo"
	"github.com/helios-array/quality.monitor/internal/fsutil"
	"github.com/helios-array/quality.monitor/internal/httputil"
	"github.com/helios-array/quality.monitor/internal/security"
)

// moduleColors assigns each detector module a stable line color, sampled
// from the same viridis ramp the chart visual maps use.
var moduleColors = []color.Color{
	color.RGBA{R: 0x44, G: 0x01, B: 0x54, A: 0xff},
	color.RGBA{R: 0x31, G: 0x68, B: 0x8e, A: 0xff},
	color.RGBA{R: 0x35, G: 0xb7, B: 0x79, A: 0xff},
	color.RGBA{R: 0xfd, G: 0xe7, B: 0x25, A: 0xff},
}

// GridPlotter writes per-cycle summary plots as PNG files under a base
// directory, one subdirectory per activity. Plotting is optional; with an
// empty output directory the daemon serves charts over HTTP only.
type GridPlotter struct {
	mu        sync.Mutex
	outputDir string
	enabled   bool
	plotCount int
	fs        fsutil.FileSystem
}

// NewGridPlotter creates a plotter rooted at outputDir. An empty outputDir
// disables file output.
func NewGridPlotter(outputDir string) *GridPlotter {
	return &GridPlotter{
		outputDir: outputDir,
		enabled:   outputDir != "",
		fs:        fsutil.OSFileSystem{},
	}
}

// SetFileSystem replaces the backing filesystem. Tests use this to render
// into a MemoryFileSystem instead of the real disk.
func (gp *GridPlotter) SetFileSystem(fs fsutil.FileSystem) {
	gp.mu.Lock()
	defer gp.mu.Unlock()
	gp.fs = fs
}

// IsEnabled reports whether cycle plots will be written.
func (gp *GridPlotter) IsEnabled() bool {
	gp.mu.Lock()
	defer gp.mu.Unlock()
	return gp.enabled
}

// PlotCount returns the total number of PNG files written.
func (gp *GridPlotter) PlotCount() int {
	gp.mu.Lock()
	defer gp.mu.Unlock()
	return gp.plotCount
}

// PlotCycle renders one snapshot's distribution histograms and module
// spectra into <outputDir>/<activity>/cycle_<NNNN>_<name>.png files.
// Returns the number of files written.
func (gp *GridPlotter) PlotCycle(s *calo.Snapshot) (int, error) {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	if !gp.enabled || s == nil {
		return 0, nil
	}

	dir := filepath.Join(gp.outputDir, security.SanitizeFilename(s.ActivityID))
	if err := security.ValidatePathWithinDirectory(dir, gp.outputDir); err != nil {
		return 0, fmt.Errorf("plot directory rejected: %w", err)
	}
	if err := gp.fs.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create output dir: %w", err)
	}

	written := 0
	for i := range s.Grids1D {
		g := &s.Grids1D[i]
		if !strings.HasSuffix(g.Name, "_dist") {
			continue
		}
		p, err := renderHistPlot(g)
		if err != nil {
			return written, fmt.Errorf("%s: %w", g.Name, err)
		}
		file := filepath.Join(dir, fmt.Sprintf("cycle_%04d_%s.png", s.Cycle, g.Name))
		if err := gp.savePNG(p, file); err != nil {
			return written, fmt.Errorf("save %s: %w", g.Name, err)
		}
		written++
	}

	if p, ok := renderSpectraPlot(s); ok {
		file := filepath.Join(dir, fmt.Sprintf("cycle_%04d_module_spectra.png", s.Cycle))
		if err := gp.savePNG(p, file); err != nil {
			return written, fmt.Errorf("save module spectra: %w", err)
		}
		written++
	}

	gp.plotCount += written
	return written, nil
}

// ReadPlot returns a previously written plot file addressed relative to the
// output directory. The path is validated so request input cannot reach
// outside the plot tree.
func (gp *GridPlotter) ReadPlot(rel string) ([]byte, error) {
	gp.mu.Lock()
	defer gp.mu.Unlock()

	if !gp.enabled {
		return nil, fmt.Errorf("plot output disabled")
	}
	file := filepath.Join(gp.outputDir, rel)
	if err := security.ValidatePathWithinDirectory(file, gp.outputDir); err != nil {
		return nil, err
	}
	return gp.fs.ReadFile(file)
}

// savePNG renders a plot to PNG through the plotter's filesystem.
func (gp *GridPlotter) savePNG(p *plot.Plot, file string) error {
	wt, err := p.WriterTo(10*vg.Inch, 5*vg.Inch, "png")
	if err != nil {
		return err
	}
	f, err := gp.fs.Create(file)
	if err != nil {
		return err
	}
	if _, err := wt.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// binCenterPoints converts a histogram to XY points at bin centers.
func binCenterPoints(g *calo.Grid1D) plotter.XYs {
	if len(g.Bins) == 0 {
		return nil
	}
	binW := (g.Hi - g.Lo) / float64(len(g.Bins))
	pts := make(plotter.XYs, len(g.Bins))
	for i, v := range g.Bins {
		pts[i] = plotter.XY{X: g.Lo + (float64(i)+0.5)*binW, Y: v}
	}
	return pts
}

// renderHistPlot draws one histogram as a line over bin centers.
func renderHistPlot(g *calo.Grid1D) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = g.Title
	p.X.Label.Text = g.XTitle
	p.Y.Label.Text = g.YTitle

	line, err := plotter.NewLine(binCenterPoints(g))
	if err != nil {
		return nil, err
	}
	line.Color = moduleColors[1]
	line.Width = vg.Points(1)
	p.Add(line)
	return p, nil
}

// renderSpectraPlot overlays the summed energy spectra of all modules in
// one plot. Returns ok=false when the snapshot carries no module spectra.
func renderSpectraPlot(s *calo.Snapshot) (*plot.Plot, bool) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Module energy spectra, cycle %d", s.Cycle)
	p.X.Label.Text = "energy (ADC)"
	p.Y.Label.Text = "counts"

	found := false
	for m := 0; m < calo.NModules; m++ {
		g := s.Grid1DByName(fmt.Sprintf("module_spectrum_m%d", m))
		if g == nil {
			continue
		}
		line, err := plotter.NewLine(binCenterPoints(g))
		if err != nil {
			continue
		}
		line.Color = moduleColors[m%len(moduleColors)]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("module %d", m), line)
		found = true
	}
	if !found {
		return nil, false
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, true
}

// handlePlotFile serves PNG files previously written by the cycle plotter,
// addressed by their path relative to the plot output directory.
func (ws *WebServer) handlePlotFile(w http.ResponseWriter, r *http.Request) {
	if ws.plotter == nil || !ws.plotter.IsEnabled() {
		httputil.NotFound(w, "cycle plotting is disabled")
		return
	}
	rel := strings.TrimPrefix(r.URL.Path, "/plots/")
	if rel == "" || !strings.HasSuffix(rel, ".png") {
		httputil.BadRequest(w, "expected /plots/<activity>/<file>.png")
		return
	}
	data, err := ws.plotter.ReadPlot(rel)
	if err != nil {
		httputil.NotFound(w, fmt.Sprintf("plot not available: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if _, err := w.Write(data); err != nil {
		ws.logf("write plot file: %v", err)
	}
}

// handlePedestalPlot renders the pedestal distributions of both gains as a
// single on-the-fly PNG. Query params:
//
//	metric (optional, "mean" or "stddev", default "mean")
func (ws *WebServer) handlePedestalPlot(w http.ResponseWriter, r *http.Request) {
	metric := r.URL.Query().Get("metric")
	if metric == "" {
		metric = "mean"
	}
	if metric != "mean" && metric != "stddev" {
		httputil.BadRequest(w, `metric must be "mean" or "stddev"`)
		return
	}

	s := ws.latestSnapshot()
	if s == nil {
		httputil.NotFound(w, "no cycle snapshot published yet")
		return
	}
	hg := s.Grid1DByName("ped_hg_" + metric + "_dist")
	lg := s.Grid1DByName("ped_lg_" + metric + "_dist")
	if hg == nil && lg == nil {
		httputil.NotFound(w, fmt.Sprintf("no pedestal distributions in %s mode", s.Mode))
		return
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Pedestal %s, cycle %d", metric, s.Cycle)
	p.X.Label.Text = metric + " (ADC)"
	p.Y.Label.Text = "channels"

	for _, gain := range []struct {
		g     *calo.Grid1D
		label string
		color color.Color
	}{
		{hg, "high gain", moduleColors[1]},
		{lg, "low gain", moduleColors[2]},
	} {
		if gain.g == nil {
			continue
		}
		line, err := plotter.NewLine(binCenterPoints(gain.g))
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("build pedestal plot: %v", err))
			return
		}
		line.Color = gain.color
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(gain.label, line)
	}
	p.Legend.Top = true

	wt, err := p.WriterTo(10*vg.Inch, 5*vg.Inch, "png")
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render pedestal plot: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if _, err := wt.WriteTo(w); err != nil {
		ws.logf("write pedestal plot: %v", err)
	}
}

package monitor

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/helios-array/quality.monitor/internal/calo"
	"github.com/helios-array/quality.monitor/internal/httputil"
)

const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// viridisStops is the color ramp shared by the chart visual maps and the
// PNG plot palette.
var viridisStops = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// renderGridHeatmap renders a detector-plane grid as a colored scatter, one
// point per populated cell. This is a debugging-only endpoint (no auth) to
// eyeball a grid without the full QC GUI.
func (ws *WebServer) renderGridHeatmap(w http.ResponseWriter, s *calo.Snapshot, name string) {
	g := s.Grid2DByName(name)
	if g == nil {
		httputil.NotFound(w, fmt.Sprintf("no 2D grid named %q in cycle %d", name, s.Cycle))
		return
	}

	data := make([]opts.ScatterData, 0, len(g.Cells))
	maxVal := 0.0
	for row := 0; row < g.Rows; row++ {
		for col := 0; col < g.Cols; col++ {
			v := g.Cells[row*g.Cols+col]
			if v == 0 {
				continue
			}
			if v > maxVal {
				maxVal = v
			}
			data = append(data, opts.ScatterData{Value: []interface{}{col, row, v}})
		}
	}
	if maxVal == 0 {
		maxVal = 1
	}
	if g.DisplayMax > 0 {
		maxVal = g.DisplayMax
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: g.Title, Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: g.Title, Subtitle: fmt.Sprintf("activity=%s cycle=%d cells=%d", s.ActivityID, s.Cycle, len(data))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: g.Cols, Name: g.XTitle, NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: g.Rows, Name: g.YTitle, NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxVal),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridisStops},
		}),
	)
	scatter.AddSeries(g.Name, data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render heatmap chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleSpectrumChart renders one module's summed energy spectrum as a bar
// chart. Query params:
//
//	module (optional, default 0)
func (ws *WebServer) handleSpectrumChart(w http.ResponseWriter, r *http.Request) {
	module := 0
	if m := r.URL.Query().Get("module"); m != "" {
		if v, err := strconv.Atoi(m); err == nil && v >= 0 && v < calo.NModules {
			module = v
		}
	}

	s := ws.latestSnapshot()
	if s == nil {
		httputil.NotFound(w, "no cycle snapshot published yet")
		return
	}
	g := s.Grid1DByName(fmt.Sprintf("module_spectrum_m%d", module))
	if g == nil {
		httputil.NotFound(w, fmt.Sprintf("no spectrum for module %d in %s mode", module, s.Mode))
		return
	}

	binW := (g.Hi - g.Lo) / float64(len(g.Bins))
	x := make([]string, len(g.Bins))
	y := make([]opts.BarData, len(g.Bins))
	for i, v := range g.Bins {
		x[i] = fmt.Sprintf("%.0f", g.Lo+(float64(i)+0.5)*binW)
		y[i] = opts.BarData{Value: v}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: g.Title, Theme: "dark", Width: "100%", Height: "720px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: g.Title, Subtitle: fmt.Sprintf("activity=%s cycle=%d", s.ActivityID, s.Cycle)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: g.XTitle, NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: g.YTitle, NameLocation: "middle", NameGap: 40}),
	)
	bar.SetXAxis(x).AddSeries("counts", y)

	var buf bytes.Buffer
	if err := bar.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render spectrum chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

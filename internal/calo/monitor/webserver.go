package monitor

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/helios-array/quality.monitor/internal/calo"
	"github.com/helios-array/quality.monitor/internal/calo/network"
	"github.com/helios-array/quality.monitor/internal/httputil"
	"github.com/helios-array/quality.monitor/internal/monitoring"
	"github.com/helios-array/quality.monitor/internal/qcdb"
	"github.com/helios-array/quality.monitor/internal/version"
)

//go:embed status.html
var StatusHTML embed.FS

// SnapshotSource yields the most recently published cycle snapshot. The
// runner swaps in a fresh snapshot after every cycle close, so handlers
// never touch the live accumulation state.
type SnapshotSource interface {
	LatestSnapshot() *calo.Snapshot
}

// StatusSource reports live engine state for the status endpoints.
type StatusSource interface {
	EngineStatus() map[string]interface{}
}

// WebServer handles the HTTP interface for monitoring the QC engine.
// It provides endpoints for health checks, the published cycle snapshot,
// individual grids, chart renderings, and the archived cycle history.
type WebServer struct {
	address   string
	udpPort   int
	mode      string
	stats     *network.PacketStats
	snapshots SnapshotSource
	status    StatusSource
	db        *qcdb.DB
	plotter   *GridPlotter
	server    *http.Server
	logf      func(format string, v ...interface{})
}

// WebServerConfig contains configuration options for the web server.
// Stats, Snapshots, Status, DB, and Plotter may each be nil; the
// corresponding endpoints degrade rather than fail at construction.
type WebServerConfig struct {
	Address   string
	UDPPort   int
	Mode      string
	Stats     *network.PacketStats
	Snapshots SnapshotSource
	Status    StatusSource
	DB        *qcdb.DB
	Plotter   *GridPlotter
}

// NewWebServer creates a new web server with the provided configuration.
func NewWebServer(config WebServerConfig) *WebServer {
	ws := &WebServer{
		address:   config.Address,
		udpPort:   config.UDPPort,
		mode:      config.Mode,
		stats:     config.Stats,
		snapshots: config.Snapshots,
		status:    config.Status,
		db:        config.DB,
		plotter:   config.Plotter,
		logf:      monitoring.Prefixed("http"),
	}

	ws.server = &http.Server{
		Addr:    ws.address,
		Handler: ws.setupRoutes(),
	}

	return ws
}

// Start begins the HTTP server in a goroutine and handles graceful shutdown.
func (ws *WebServer) Start(ctx context.Context) error {
	go func() {
		ws.logf("starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			ws.logf("serve failed: %v", err)
		}
	}()

	<-ctx.Done()
	ws.logf("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		ws.logf("HTTP server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			ws.logf("HTTP server force close error: %v", err)
		}
	}

	ws.logf("HTTP server routine stopped")
	return nil
}

// setupRoutes configures the HTTP routes and handlers.
func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", ws.handleHealth)
	mux.HandleFunc("/", ws.handleStatusPage)
	mux.HandleFunc("/api/status", ws.handleStatus)
	mux.HandleFunc("/api/snapshot", ws.handleSnapshot)
	mux.HandleFunc("/api/grids", ws.handleGridIndex)
	mux.HandleFunc("/api/grids/", ws.handleGrid)
	mux.HandleFunc("/api/spectra/", ws.handleModuleSpectrum)
	mux.HandleFunc("/api/history", ws.handleHistory)
	mux.HandleFunc("/api/history/", ws.handleArchivedCycle)
	mux.HandleFunc("/api/charts/spectrum", ws.handleSpectrumChart)
	mux.HandleFunc("/api/plots/pedestal.png", ws.handlePedestalPlot)
	mux.HandleFunc("/plots/", ws.handlePlotFile)

	return mux
}

func (ws *WebServer) latestSnapshot() *calo.Snapshot {
	if ws.snapshots == nil {
		return nil
	}
	return ws.snapshots.LatestSnapshot()
}

// handleHealth handles the health check endpoint.
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "ok", "service": "qcmon", "version": "%s", "timestamp": "%s"}`,
		version.Version, time.Now().UTC().Format(time.RFC3339))
}

// handleStatus returns the machine-readable status: engine state, traffic
// rates from the last stats window, and a summary of the latest snapshot.
func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	st := map[string]interface{}{
		"service":  "qcmon",
		"mode":     ws.mode,
		"udp_port": ws.udpPort,
	}
	if ws.stats != nil {
		st["uptime"] = ws.stats.Uptime().Round(time.Second).String()
		if win := ws.stats.LatestWindow(); win != nil {
			st["traffic"] = win
		}
	}
	if ws.status != nil {
		st["engine"] = ws.status.EngineStatus()
	}
	if ws.plotter != nil && ws.plotter.IsEnabled() {
		st["plots_written"] = ws.plotter.PlotCount()
	}
	if s := ws.latestSnapshot(); s != nil {
		st["last_cycle"] = map[string]interface{}{
			"activity_id": s.ActivityID,
			"cycle":       s.Cycle,
			"created_at":  s.CreatedAt,
			"grids":       len(s.Grids2D) + len(s.Grids1D),
			"readings":    s.Counters.Readings,
		}
	}
	httputil.WriteJSONOK(w, st)
}

// handleSnapshot returns the full latest cycle snapshot as JSON.
func (ws *WebServer) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	s := ws.latestSnapshot()
	if s == nil {
		httputil.NotFound(w, "no cycle snapshot published yet")
		return
	}
	httputil.WriteJSONOK(w, s)
}

// handleGridIndex lists the grids in the latest snapshot along with their
// occupancy statistics.
func (ws *WebServer) handleGridIndex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	s := ws.latestSnapshot()
	if s == nil {
		httputil.NotFound(w, "no cycle snapshot published yet")
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"activity_id": s.ActivityID,
		"cycle":       s.Cycle,
		"created_at":  s.CreatedAt,
		"grids":       s.GridNames(),
		"grid_stats":  s.GridStats,
	})
}

// handleGrid serves a single grid by name. The path is either
// /api/grids/{name} for JSON or /api/grids/{name}/heatmap for an ECharts
// rendering of a 2D grid.
func (ws *WebServer) handleGrid(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/grids/")
	if rest == "" {
		httputil.BadRequest(w, "missing grid name")
		return
	}
	name := rest
	wantChart := false
	if strings.HasSuffix(rest, "/heatmap") {
		name = strings.TrimSuffix(rest, "/heatmap")
		wantChart = true
	}

	s := ws.latestSnapshot()
	if s == nil {
		httputil.NotFound(w, "no cycle snapshot published yet")
		return
	}
	if wantChart {
		ws.renderGridHeatmap(w, s, name)
		return
	}
	if g := s.Grid2DByName(name); g != nil {
		httputil.WriteJSONOK(w, g)
		return
	}
	if g := s.Grid1DByName(name); g != nil {
		httputil.WriteJSONOK(w, g)
		return
	}
	httputil.NotFound(w, fmt.Sprintf("no grid named %q in cycle %d", name, s.Cycle))
}

// handleModuleSpectrum serves the summed energy spectrum of one module from
// the latest snapshot. Path: /api/spectra/{module}.
func (ws *WebServer) handleModuleSpectrum(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/spectra/")
	module, err := strconv.Atoi(rest)
	if err != nil || module < 0 || module >= calo.NModules {
		httputil.BadRequest(w, fmt.Sprintf("module must be 0..%d", calo.NModules-1))
		return
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
	httputil.WriteJSONOK(w, g)
}

// handleHistory returns archived cycle records, newest first.
// Query params:
//
//	limit (optional, default 20, max 500)
//	activity_id (optional; restricts to one activity, oldest first)
func (ws *WebServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if ws.db == nil {
		httputil.InternalServerError(w, "no database configured for cycle history")
		return
	}

	if act := r.URL.Query().Get("activity_id"); act != "" {
		recs, err := ws.db.CyclesForActivity(act)
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("list cycles for activity: %v", err))
			return
		}
		httputil.WriteJSONOK(w, recs)
		return
	}

	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		fmt.Sscanf(l, "%d", &limit)
		if limit <= 0 || limit > 500 {
			limit = 20
		}
	}
	recs, err := ws.db.RecentCycles(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("list recent cycles: %v", err))
		return
	}
	httputil.WriteJSONOK(w, recs)
}

// handleArchivedCycle returns one archived snapshot by cycle id.
// Path: /api/history/{cycle_id}.
func (ws *WebServer) handleArchivedCycle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if ws.db == nil {
		httputil.InternalServerError(w, "no database configured for cycle history")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/history/")
	if id == "" {
		httputil.BadRequest(w, "missing cycle id")
		return
	}
	s, err := ws.db.SnapshotByID(id)
	if err != nil {
		if errors.Is(err, qcdb.ErrCycleNotFound) {
			httputil.NotFound(w, fmt.Sprintf("no archived cycle %q", id))
			return
		}
		httputil.InternalServerError(w, fmt.Sprintf("load archived cycle: %v", err))
		return
	}
	httputil.WriteJSONOK(w, s)
}

// handleStatusPage handles the main status page endpoint.
func (ws *WebServer) handleStatusPage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html")

	tmpl, err := template.ParseFS(StatusHTML, "status.html")
	if err != nil {
		http.Error(w, "Error loading template: "+err.Error(), http.StatusInternalServerError)
		return
	}

	uptime := ""
	var traffic *network.RateWindow
	if ws.stats != nil {
		uptime = ws.stats.Uptime().Round(time.Second).String()
		traffic = ws.stats.LatestWindow()
	}
	var engine map[string]interface{}
	if ws.status != nil {
		engine = ws.status.EngineStatus()
	}

	data := struct {
		Mode        string
		UDPPort     int
		HTTPAddress string
		Uptime      string
		Engine      map[string]interface{}
		Traffic     *network.RateWindow
		Snapshot    *calo.Snapshot
	}{
		Mode:        ws.mode,
		UDPPort:     ws.udpPort,
		HTTPAddress: ws.address,
		Uptime:      uptime,
		Engine:      engine,
		Traffic:     traffic,
		Snapshot:    ws.latestSnapshot(),
	}

	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, "Error executing template: "+err.Error(), http.StatusInternalServerError)
		return
	}
}

// Close shuts down the web server.
func (ws *WebServer) Close() error {
	if ws.server != nil {
		return ws.server.Close()
	}
	return nil
}

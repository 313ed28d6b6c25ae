// Command qcmon is the online quality monitor for the four-module
// segmented calorimeter. A UDP listener decodes readout datagrams into
// event batches, a single-goroutine runner feeds them to the aggregation
// engine and closes a monitoring cycle on a fixed interval, and an HTTP
// server publishes the per-cycle snapshots, charts, and archived history.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/helios-array/quality.monitor/internal/calo"
	"github.com/helios-array/quality.monitor/internal/calo/monitor"
	"github.com/helios-array/quality.monitor/internal/calo/network"
	"github.com/helios-array/quality.monitor/internal/config"
	"github.com/helios-array/quality.monitor/internal/qcdb"
	"github.com/helios-array/quality.monitor/internal/version"
)

var (
	configPath    = flag.String("config", "", "Path to a JSON tuning config (built-in defaults when empty)")
	listen        = flag.String("listen", "", "HTTP listen address (overrides config http_port)")
	udpPort       = flag.Int("udp-port", 0, "UDP port for readout datagrams (overrides config udp_port)")
	udpAddress    = flag.String("udp-addr", "", "UDP bind address (default: listen on all interfaces)")
	dbFile        = flag.String("db", "", "Path to the SQLite cycle archive (overrides config db_path)")
	runMode       = flag.String("mode", "", "Operating mode: baseline, pedestal or led (overrides config mode)")
	activity      = flag.String("activity", "", "Activity id for this run (default: derived from start time)")
	plotDir       = flag.String("plot-dir", "", "Directory for per-cycle PNG plots (overrides config plot_dir)")
	rcvBuf        = flag.Int("rcvbuf", 4<<20, "UDP receive buffer size in bytes (default 4MB)")
	pcapFile      = flag.String("pcap-file", "", "Replay readout datagrams from a PCAP capture instead of listening on UDP")
	noArchive     = flag.Bool("no-archive", false, "Disable cycle archiving to the database")
	runMigrations = flag.Bool("migrate", false, "Run database migration commands and exit (try '-migrate help')")
	migrationsDir = flag.String("migrations", "internal/qcdb/migrations", "Directory holding the migration .sql files")
	showVersion   = flag.Bool("version", false, "Print version information and exit")
)

// settings is the merged view of config file and command-line overrides
// that main wires the daemon from. Flags win over the config file, which
// wins over the built-in defaults.
type settings struct {
	mode          calo.Mode
	listenAddr    string
	udpAddr       string
	udpPort       int
	dbPath        string
	plotDir       string
	activityID    string
	archive       bool
	queueSize     int
	cycleInterval time.Duration
	statsInterval time.Duration
}

// buildSettings resolves the effective daemon settings from the loaded
// config and the package flag values. The start time seeds the generated
// activity id when none was given.
func buildSettings(cfg *config.TuningConfig, start time.Time) (settings, error) {
	modeName := cfg.GetMode()
	if *runMode != "" {
		modeName = *runMode
	}
	mode, err := calo.ParseMode(modeName)
	if err != nil {
		return settings{}, err
	}

	s := settings{
		mode:          mode,
		listenAddr:    fmt.Sprintf(":%d", cfg.GetHTTPPort()),
		udpPort:       cfg.GetUDPPort(),
		dbPath:        cfg.GetDBPath(),
		plotDir:       cfg.GetPlotDir(),
		activityID:    "run-" + start.UTC().Format("20060102-150405"),
		archive:       cfg.GetArchiveCycles() && !*noArchive,
		queueSize:     cfg.GetBatchQueueSize(),
		cycleInterval: cfg.GetCycleInterval(),
		statsInterval: cfg.GetStatsInterval(),
	}
	if *listen != "" {
		s.listenAddr = *listen
	}
	if *udpPort != 0 {
		s.udpPort = *udpPort
	}
	if *dbFile != "" {
		s.dbPath = *dbFile
	}
	if *plotDir != "" {
		s.plotDir = *plotDir
	}
	if *activity != "" {
		s.activityID = *activity
	}

	if *udpAddress == "" {
		s.udpAddr = fmt.Sprintf(":%d", s.udpPort)
	} else {
		s.udpAddr = fmt.Sprintf("%s:%d", *udpAddress, s.udpPort)
	}
	return s, nil
}

// taskParams maps the tuning config onto engine parameters.
func taskParams(cfg *config.TuningConfig, mode calo.Mode, bad calo.BadChannelSource) calo.TaskParams {
	return calo.TaskParams{
		Mode:                mode,
		EnableQualityMetric: cfg.GetEnableQualityMetric(),
		OccupancyThreshold:  cfg.GetOccupancyThreshold(),
		LowGainScale:        cfg.GetLowGainScale(),
		PeakSearch: calo.PeakSearchParams{
			MaxCandidates: cfg.GetPeakMaxCandidates(),
			Sigma:         cfg.GetPeakSigma(),
			MinRelHeight:  cfg.GetPeakMinRelHeight(),
		},
		BadChannels: bad,
	}
}

// badChannelSource selects where the engine fetches the bad-channel map
// from. Returns nil for the "none" source, which leaves the map empty.
func badChannelSource(cfg *config.TuningConfig, db *qcdb.DB) calo.BadChannelSource {
	switch cfg.GetBadChannelSource() {
	case config.BadChannelHTTP:
		return &calo.HTTPBadChannelSource{URL: cfg.GetBadChannelURL()}
	case config.BadChannelDB:
		if db == nil {
			return nil
		}
		return qcdb.NewBadChannelStore(db)
	default:
		return nil
	}
}

// Main
func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("qcmon %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	cfg := config.EmptyTuningConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config %s: %v", *configPath, err)
		}
	}

	// The migrate subcommand runs against the configured database and
	// exits without starting the daemon.
	if *runMigrations {
		dbPath := cfg.GetDBPath()
		if *dbFile != "" {
			dbPath = *dbFile
		}
		qcdb.RunMigrateCommand(flag.Args(), dbPath, *migrationsDir)
		return
	}

	s, err := buildSettings(cfg, time.Now())
	if err != nil {
		log.Fatalf("Invalid settings: %v", err)
	}

	db, err := qcdb.NewDB(s.dbPath)
	if err != nil {
		log.Fatalf("Failed to open cycle archive %s: %v", s.dbPath, err)
	}
	defer db.Close()

	stats := network.NewPacketStats()
	batchQueue := make(chan *calo.ReadoutBatch, s.queueSize)

	listener := network.NewUDPListener(network.UDPListenerConfig{
		Address:     s.udpAddr,
		RcvBuf:      *rcvBuf,
		LogInterval: s.statsInterval,
		Stats:       stats,
		Sink:        batchQueue,
	})

	task := calo.NewTask(taskParams(cfg, s.mode, badChannelSource(cfg, db)))

	var archive *qcdb.DB
	if s.archive {
		archive = db
	}
	if s.plotDir != "" {
		if err := os.MkdirAll(s.plotDir, 0755); err != nil {
			log.Fatalf("Failed to create plot directory %s: %v", s.plotDir, err)
		}
	}
	plotter := monitor.NewGridPlotter(s.plotDir)
	runner := NewRunner(RunnerConfig{
		Task:          task,
		Batches:       batchQueue,
		CycleInterval: s.cycleInterval,
		Archive:       archive,
		Plotter:       plotter,
	})

	web := monitor.NewWebServer(monitor.WebServerConfig{
		Address:   s.listenAddr,
		UDPPort:   s.udpPort,
		Mode:      s.mode.String(),
		Stats:     stats,
		Snapshots: runner,
		Status:    runner,
		DB:        db,
		Plotter:   plotter,
	})

	log.Printf("Starting quality monitor %s: mode=%s activity=%s udp=%s http=%s db=%s",
		version.Version, s.mode, s.activityID, s.udpAddr, s.listenAddr, s.dbPath)
	if *pcapFile != "" {
		log.Printf("PCAP replay enabled: %s", *pcapFile)
	}

	// One goroutine per subsystem; all stop on SIGINT/SIGTERM.
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if *pcapFile != "" {
			// Replay mode feeds the capture through the same decode path
			// as live UDP; the port selects the BPF filter.
			if err := network.ReadPCAPFile(ctx, *pcapFile, s.udpPort, listener); err != nil && err != context.Canceled {
				log.Printf("PCAP replay error: %v", err)
			}
			log.Print("PCAP replay routine terminated")
			return
		}
		if err := listener.Start(ctx); err != nil && err != context.Canceled {
			log.Printf("UDP listener error: %v", err)
		}
		log.Print("UDP listener routine terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := runner.Run(ctx, s.activityID); err != nil && err != context.Canceled {
			log.Printf("Engine runner error: %v", err)
		}
		log.Print("Engine runner routine terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := web.Start(ctx); err != nil {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

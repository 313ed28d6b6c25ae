package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/helios-array/quality.monitor/internal/calo"
	"github.com/helios-array/quality.monitor/internal/config"
	"github.com/helios-array/quality.monitor/internal/qcdb"
)

// TestDaemonFlagDefaults verifies the override flags default to "unset" so
// the config file keeps authority unless the operator intervenes.
func TestDaemonFlagDefaults(t *testing.T) {
	if *configPath != "" {
		t.Errorf("config default = %q, want empty", *configPath)
	}
	if *listen != "" {
		t.Errorf("listen default = %q, want empty", *listen)
	}
	if *udpPort != 0 {
		t.Errorf("udp-port default = %d, want 0", *udpPort)
	}
	if *rcvBuf != 4<<20 {
		t.Errorf("rcvbuf default = %d, want 4MB", *rcvBuf)
	}
	if *pcapFile != "" {
		t.Errorf("pcap-file default = %q, want empty", *pcapFile)
	}
	if *noArchive {
		t.Error("no-archive should default to false")
	}
	if *runMigrations {
		t.Error("migrate should default to false")
	}
	if *showVersion {
		t.Error("version should default to false")
	}
}

func TestBuildSettingsDefaults(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 30, 45, 0, time.UTC)
	s, err := buildSettings(config.EmptyTuningConfig(), start)
	if err != nil {
		t.Fatalf("buildSettings: %v", err)
	}

	if s.mode != calo.ModeBaseline {
		t.Errorf("mode = %v, want baseline", s.mode)
	}
	if s.listenAddr != ":8089" {
		t.Errorf("listenAddr = %q, want :8089", s.listenAddr)
	}
	if s.udpAddr != ":3563" {
		t.Errorf("udpAddr = %q, want :3563", s.udpAddr)
	}
	if s.udpPort != 3563 {
		t.Errorf("udpPort = %d, want 3563", s.udpPort)
	}
	if s.dbPath != "qcmon.db" {
		t.Errorf("dbPath = %q, want qcmon.db", s.dbPath)
	}
	if s.plotDir != "" {
		t.Errorf("plotDir = %q, want empty (disabled)", s.plotDir)
	}
	if !s.archive {
		t.Error("archive should default to true")
	}
	if s.queueSize != 256 {
		t.Errorf("queueSize = %d, want 256", s.queueSize)
	}
	if s.cycleInterval != 60*time.Second {
		t.Errorf("cycleInterval = %v, want 60s", s.cycleInterval)
	}
	if s.statsInterval != 10*time.Second {
		t.Errorf("statsInterval = %v, want 10s", s.statsInterval)
	}
	if s.activityID != "run-20250601-123045" {
		t.Errorf("activityID = %q, want run-20250601-123045", s.activityID)
	}
}

func TestBuildSettingsFlagOverrides(t *testing.T) {
	oldMode, oldListen, oldPort, oldAddr := *runMode, *listen, *udpPort, *udpAddress
	oldActivity, oldNoArchive := *activity, *noArchive
	defer func() {
		*runMode, *listen, *udpPort, *udpAddress = oldMode, oldListen, oldPort, oldAddr
		*activity, *noArchive = oldActivity, oldNoArchive
	}()

	*runMode = "led"
	*listen = ":9000"
	*udpPort = 4000
	*udpAddress = "127.0.0.1"
	*activity = "run-custom"
	*noArchive = true

	s, err := buildSettings(config.EmptyTuningConfig(), time.Now())
	if err != nil {
		t.Fatalf("buildSettings: %v", err)
	}

	if s.mode != calo.ModeLED {
		t.Errorf("mode = %v, want led", s.mode)
	}
	if s.listenAddr != ":9000" {
		t.Errorf("listenAddr = %q, want :9000", s.listenAddr)
	}
	if s.udpAddr != "127.0.0.1:4000" {
		t.Errorf("udpAddr = %q, want 127.0.0.1:4000", s.udpAddr)
	}
	if s.activityID != "run-custom" {
		t.Errorf("activityID = %q, want run-custom", s.activityID)
	}
	if s.archive {
		t.Error("no-archive flag should disable archiving")
	}
}

func TestBuildSettingsRejectsUnknownMode(t *testing.T) {
	oldMode := *runMode
	defer func() { *runMode = oldMode }()

	*runMode = "calibration"
	if _, err := buildSettings(config.EmptyTuningConfig(), time.Now()); err == nil {
		t.Error("expected an error for unknown mode")
	}
}

func TestTaskParamsFromConfig(t *testing.T) {
	p := taskParams(config.EmptyTuningConfig(), calo.ModePedestal, nil)

	if p.Mode != calo.ModePedestal {
		t.Errorf("Mode = %v, want pedestal", p.Mode)
	}
	if p.EnableQualityMetric {
		t.Error("quality metric should default to disabled")
	}
	if p.OccupancyThreshold != 10.0 {
		t.Errorf("OccupancyThreshold = %v, want 10.0", p.OccupancyThreshold)
	}
	if p.LowGainScale != 16.0 {
		t.Errorf("LowGainScale = %v, want 16.0", p.LowGainScale)
	}
	if p.PeakSearch.MaxCandidates != 20 || p.PeakSearch.Sigma != 2.0 || p.PeakSearch.MinRelHeight != 0.1 {
		t.Errorf("PeakSearch = %+v, want defaults 20/2.0/0.1", p.PeakSearch)
	}
}

func TestBadChannelSourceSelection(t *testing.T) {
	db, err := qcdb.NewDB(filepath.Join(t.TempDir(), "qc.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	defer db.Close()

	if src := badChannelSource(config.EmptyTuningConfig(), db); src != nil {
		t.Errorf("default source = %T, want nil", src)
	}

	httpCfg := config.EmptyTuningConfig()
	httpSource := config.BadChannelHTTP
	url := "http://calib.local/bad"
	httpCfg.BadChannelSource = &httpSource
	httpCfg.BadChannelURL = &url
	src := badChannelSource(httpCfg, db)
	h, ok := src.(*calo.HTTPBadChannelSource)
	if !ok {
		t.Fatalf("http source = %T, want *calo.HTTPBadChannelSource", src)
	}
	if h.URL != url {
		t.Errorf("http source URL = %q, want %q", h.URL, url)
	}

	dbCfg := config.EmptyTuningConfig()
	dbSource := config.BadChannelDB
	dbCfg.BadChannelSource = &dbSource
	if _, ok := badChannelSource(dbCfg, db).(*qcdb.BadChannelStore); !ok {
		t.Error("db source should be a *qcdb.BadChannelStore")
	}
	if src := badChannelSource(dbCfg, nil); src != nil {
		t.Errorf("db source without a database = %T, want nil", src)
	}
}

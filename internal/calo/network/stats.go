package network

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/helios-array/quality.monitor/internal/monitoring"
)

// RateWindow is the rate summary of one completed stats window, kept for
// the web interface.
type RateWindow struct {
	DatagramsPerSec float64   `json:"datagrams_per_sec"`
	MBPerSec        float64   `json:"mb_per_sec"`
	ReadingsPerSec  float64   `json:"readings_per_sec"`
	RejectedCount   int64     `json:"rejected_count"`
	DroppedCount    int64     `json:"dropped_count"`
	Timestamp       time.Time `json:"timestamp"`
}

// PacketStats tracks datagram statistics with thread-safe operations. The
// receive loop and the stats logger run on different goroutines.
type PacketStats struct {
	mu          sync.Mutex
	packetCount int64
	byteCount   int64
	rejectCount int64 // datagrams dropped by the parser
	dropCount   int64 // batches dropped because the engine queue was full
	readingCnt  int64
	lastReset   time.Time
	startTime   time.Time
	latest      *RateWindow
}

// NewPacketStats creates a new PacketStats instance.
func NewPacketStats() *PacketStats {
	now := time.Now()
	return &PacketStats{lastReset: now, startTime: now}
}

// AddPacket increments the datagram and byte counts.
func (ps *PacketStats) AddPacket(bytes int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.packetCount++
	ps.byteCount += int64(bytes)
}

// AddRejected increments the parse-rejection count.
func (ps *PacketStats) AddRejected() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.rejectCount++
}

// AddDropped increments the queue-drop count.
func (ps *PacketStats) AddDropped() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.dropCount++
}

// AddReadings increments the decoded-reading count.
func (ps *PacketStats) AddReadings(count int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.readingCnt += int64(count)
}

// GetAndReset returns the current counters and restarts the window.
func (ps *PacketStats) GetAndReset() (packets, bytes, rejected, dropped, readings int64, duration time.Duration) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := time.Now()
	duration = now.Sub(ps.lastReset)
	packets = ps.packetCount
	bytes = ps.byteCount
	rejected = ps.rejectCount
	dropped = ps.dropCount
	readings = ps.readingCnt

	ps.packetCount = 0
	ps.byteCount = 0
	ps.rejectCount = 0
	ps.dropCount = 0
	ps.readingCnt = 0
	ps.lastReset = now

	return
}

// LogStats logs one line of windowed rates, stores the window for the web
// interface, and resets the counters. Quiet windows log nothing.
func (ps *PacketStats) LogStats() {
	packets, bytes, rejected, dropped, readings, duration := ps.GetAndReset()
	if packets == 0 && rejected == 0 && dropped == 0 {
		return
	}

	secs := duration.Seconds()
	if secs <= 0 {
		secs = 1
	}
	window := &RateWindow{
		DatagramsPerSec: float64(packets) / secs,
		MBPerSec:        float64(bytes) / secs / (1024 * 1024),
		ReadingsPerSec:  float64(readings) / secs,
		RejectedCount:   rejected,
		DroppedCount:    dropped,
		Timestamp:       time.Now(),
	}
	ps.mu.Lock()
	ps.latest = window
	ps.mu.Unlock()

	line := fmt.Sprintf("stats (/sec): %.2f MB, %.1f datagrams, %s readings",
		window.MBPerSec,
		window.DatagramsPerSec,
		FormatWithCommas(int64(window.ReadingsPerSec)))
	if rejected > 0 {
		line += fmt.Sprintf(", %d rejected", rejected)
	}
	if dropped > 0 {
		line += fmt.Sprintf(", %d dropped on queue", dropped)
	}
	monitoring.Logf("[udp] %s", line)
}

// LatestWindow returns a copy of the most recent completed stats window,
// or nil before the first non-quiet window.
func (ps *PacketStats) LatestWindow() *RateWindow {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.latest == nil {
		return nil
	}
	w := *ps.latest
	return &w
}

// Uptime returns the time since the stats were created.
func (ps *PacketStats) Uptime() time.Duration {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return time.Since(ps.startTime)
}

// FormatWithCommas formats a count with thousands separators.
func FormatWithCommas(n int64) string {
	s := strconv.FormatInt(n, 10)
	start := 0
	if n < 0 {
		start = 1
	}
	for i := len(s) - 3; i > start; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	return s
}

package network

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/helios-array/quality.monitor/internal/calo"
	"github.com/helios-array/quality.monitor/internal/calo/parse"
	"github.com/helios-array/quality.monitor/internal/monitoring"
)

// PacketStatsInterface provides packet statistics management.
type PacketStatsInterface interface {
	AddPacket(bytes int)
	AddRejected()
	AddDropped()
	AddReadings(count int)
	LogStats()
}

// Parser decodes one datagram into a readout batch.
type Parser interface {
	ParseBatch(data []byte) (*calo.ReadoutBatch, error)
}

// UDPListener receives readout datagrams, decodes them, and hands the
// batches to the engine queue. The queue is never blocked on: when the
// engine falls behind, batches are dropped and counted.
type UDPListener struct {
	address     string
	rcvBuf      int
	logInterval time.Duration
	conn        *net.UDPConn
	stats       PacketStatsInterface
	parser      Parser
	sink        chan<- *calo.ReadoutBatch
	logf        func(format string, v ...interface{})
}

// UDPListenerConfig contains configuration options for the UDP listener.
type UDPListenerConfig struct {
	Address     string
	RcvBuf      int
	LogInterval time.Duration
	Stats       PacketStatsInterface
	Parser      Parser
	Sink        chan<- *calo.ReadoutBatch
}

// NewUDPListener creates a UDP listener with the provided configuration.
func NewUDPListener(config UDPListenerConfig) *UDPListener {
	// A no-op stats implementation keeps the hot path nil-check-free.
	stats := config.Stats
	if stats == nil {
		stats = &noopStats{}
	}
	parser := config.Parser
	if parser == nil {
		parser = parse.NewBatchParser()
	}
	logInterval := config.LogInterval
	if logInterval == 0 {
		logInterval = time.Minute
	}
	return &UDPListener{
		address:     config.Address,
		rcvBuf:      config.RcvBuf,
		logInterval: logInterval,
		stats:       stats,
		parser:      parser,
		sink:        config.Sink,
		logf:        monitoring.Prefixed("udp"),
	}
}

// noopStats is a PacketStatsInterface implementation that does nothing.
type noopStats struct{}

func (n *noopStats) AddPacket(bytes int)   {}
func (n *noopStats) AddRejected()          {}
func (n *noopStats) AddDropped()           {}
func (n *noopStats) AddReadings(count int) {}
func (n *noopStats) LogStats()             {}

// Start listens for datagrams until the context is cancelled. It blocks;
// run it on its own goroutine.
func (l *UDPListener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	l.conn = conn
	defer conn.Close()

	if l.rcvBuf > 0 {
		if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
			l.logf("warning: failed to set receive buffer to %d: %v", l.rcvBuf, err)
		}
	}
	l.logf("listening on %s", conn.LocalAddr())

	go l.startStatsLogging(ctx)

	buffer := make([]byte, parse.MAX_DATAGRAM_SIZE)
	for {
		select {
		case <-ctx.Done():
			l.logf("listener stopping: %v", ctx.Err())
			return ctx.Err()
		default:
			// Short read deadline so context cancellation is noticed.
			conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))

			n, addr, err := conn.ReadFromUDP(buffer)
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					continue
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				l.logf("read error: %v", err)
				continue
			}
			l.HandleDatagram(buffer[:n], addr)
		}
	}
}

// Addr returns the bound address, nil before Start.
func (l *UDPListener) Addr() net.Addr {
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// HandleDatagram decodes one datagram and queues the batch. Parse errors
// drop the datagram whole; a full queue drops the batch. Neither stops the
// listener. Exposed for the replay path, which bypasses the socket.
func (l *UDPListener) HandleDatagram(data []byte, addr net.Addr) {
	l.stats.AddPacket(len(data))

	batch, err := l.parser.ParseBatch(data)
	if err != nil {
		l.stats.AddRejected()
		l.logf("rejected datagram from %v: %v", addr, err)
		return
	}
	l.stats.AddReadings(len(batch.Readings))

	if l.sink == nil {
		return
	}
	select {
	case l.sink <- batch:
	default:
		l.stats.AddDropped()
	}
}

// startStatsLogging reports windowed rates on the configured interval. An
// early first report avoids a long silence after startup.
func (l *UDPListener) startStatsLogging(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(2 * time.Second):
		l.stats.LogStats()
	}

	ticker := time.NewTicker(l.logInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.stats.LogStats()
		}
	}
}

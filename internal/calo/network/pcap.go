//go:build pcap
// +build pcap

package network

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/helios-array/quality.monitor/internal/monitoring"
)

// ReadPCAPFile replays captured readout datagrams from a PCAP file through
// the listener's normal datagram path. Only available when building with
// the 'pcap' build tag.
func ReadPCAPFile(ctx context.Context, pcapFile string, udpPort int, listener *UDPListener) error {
	handle, err := pcap.OpenOffline(pcapFile)
	if err != nil {
		return fmt.Errorf("failed to open PCAP file %s: %w", pcapFile, err)
	}
	defer handle.Close()

	filterStr := fmt.Sprintf("udp port %d", udpPort)
	if err := handle.SetBPFFilter(filterStr); err != nil {
		return fmt.Errorf("failed to set BPF filter %q: %w", filterStr, err)
	}
	monitoring.Logf("[pcap] replaying %s with filter %q", pcapFile, filterStr)

	packetSource := gopacket.NewPacketSource(handle, handle.LinkType())
	packetCount := 0
	startTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("[pcap] replay stopping after %d packets: %v", packetCount, ctx.Err())
			return ctx.Err()
		case packet := <-packetSource.Packets():
			if packet == nil {
				monitoring.Logf("[pcap] replay complete: %d packets in %v", packetCount, time.Since(startTime))
				return nil
			}
			packetCount++

			udpLayer := packet.Layer(layers.LayerTypeUDP)
			if udpLayer == nil {
				continue
			}
			udp, ok := udpLayer.(*layers.UDP)
			if !ok || len(udp.Payload) == 0 {
				continue
			}
			listener.HandleDatagram(udp.Payload, nil)
			if packetCount%10000 == 0 {
				monitoring.Logf("[pcap] %d packets replayed", packetCount)
			}
		}
	}
}

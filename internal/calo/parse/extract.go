package parse

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/helios-array/quality.monitor/internal/calo"
	"github.com/helios-array/quality.monitor/internal/monitoring"
)

/*
Readout Batch Datagram Format

The readout concentrator ships one event batch per UDP datagram. All fields
are little-endian. The 16-byte header carries the section counts; the body
is four back-to-back sections in fixed order.

DATAGRAM STRUCTURE:
├── Header (16 bytes)
│   ├── Preamble (2 bytes, 0xCA10)
│   ├── Version (1 byte)
│   ├── Flags (1 byte, bit0 = quality stream present)
│   ├── Reading / slice / error / quality counts (4 × 2 bytes)
│   └── Sequence number (4 bytes)
├── Readings (12 bytes each) - channel, gain, reserved, energy, time
├── Event slices (4 bytes each) - [first, first+count) into the readings
├── Error records (4 bytes each) - board, link, code, reserved
└── Quality stream (2 bytes each) - raw uint16 values, address/score pairs

A datagram is accepted only when its length matches the header counts
exactly and every event slice stays inside the reading section. Rejected
datagrams are dropped whole; the listener keeps running.
*/

// Datagram format constants.
const (
	BATCH_PREAMBLE   = 0xCA10 // Header marker, first two bytes of every datagram
	PROTOCOL_VERSION = 1      // Only version currently emitted by the concentrator

	HEADER_SIZE        = 16 // Fixed header size in bytes
	READING_SIZE       = 12 // Per-reading record size: 2+1+1+4+4
	SLICE_SIZE         = 4  // Per-event-slice record size: 2+2
	ERROR_SIZE         = 4  // Per-error record size: 4 × 1
	QUALITY_VALUE_SIZE = 2  // Quality stream element size (uint16)

	// FLAG_QUALITY_PRESENT marks a datagram whose readout had fit-quality
	// reporting enabled.
	FLAG_QUALITY_PRESENT = 0x01

	// MAX_READINGS_PER_BATCH caps the reading section; the concentrator
	// never packs more into one datagram.
	MAX_READINGS_PER_BATCH = 1365

	// MAX_DATAGRAM_SIZE is the receive buffer size: the largest UDP payload
	// a batch datagram can occupy.
	MAX_DATAGRAM_SIZE = 65507
)

// Header field offsets within the datagram.
const (
	OFFSET_PREAMBLE      = 0
	OFFSET_VERSION       = 2
	OFFSET_FLAGS         = 3
	OFFSET_READING_COUNT = 4
	OFFSET_SLICE_COUNT   = 6
	OFFSET_ERROR_COUNT   = 8
	OFFSET_QUALITY_COUNT = 10
	OFFSET_SEQUENCE      = 12
)

// BatchParser decodes readout batch datagrams. It is stateless apart from a
// packet counter used for debug logging.
type BatchParser struct {
	packetCount  int
	debug        bool
	debugPackets int
}

// NewBatchParser creates a parser with debug logging disabled.
func NewBatchParser() *BatchParser {
	return &BatchParser{debugPackets: 10}
}

// SetDebug enables or disables per-packet debug logging.
func (p *BatchParser) SetDebug(enabled bool) {
	p.debug = enabled
}

// ParseBatch decodes one datagram into a readout batch. The datagram must
// match the header's counts exactly; any framing violation rejects it whole.
func (p *BatchParser) ParseBatch(data []byte) (*calo.ReadoutBatch, error) {
	p.packetCount++

	if len(data) < HEADER_SIZE {
		return nil, fmt.Errorf("datagram too short for header: need %d bytes, have %d", HEADER_SIZE, len(data))
	}
	if preamble := binary.LittleEndian.Uint16(data[OFFSET_PREAMBLE:]); preamble != BATCH_PREAMBLE {
		return nil, fmt.Errorf("invalid preamble: expected 0x%04X, got 0x%04X", BATCH_PREAMBLE, preamble)
	}
	if version := data[OFFSET_VERSION]; version != PROTOCOL_VERSION {
		return nil, fmt.Errorf("unsupported protocol version: expected %d, got %d", PROTOCOL_VERSION, version)
	}

	flags := data[OFFSET_FLAGS]
	readingCount := int(binary.LittleEndian.Uint16(data[OFFSET_READING_COUNT:]))
	sliceCount := int(binary.LittleEndian.Uint16(data[OFFSET_SLICE_COUNT:]))
	errorCount := int(binary.LittleEndian.Uint16(data[OFFSET_ERROR_COUNT:]))
	qualityCount := int(binary.LittleEndian.Uint16(data[OFFSET_QUALITY_COUNT:]))

	if readingCount > MAX_READINGS_PER_BATCH {
		return nil, fmt.Errorf("reading count %d exceeds maximum %d", readingCount, MAX_READINGS_PER_BATCH)
	}
	if qualityCount > 0 && flags&FLAG_QUALITY_PRESENT == 0 {
		return nil, fmt.Errorf("quality count %d without quality flag", qualityCount)
	}

	expected := HEADER_SIZE +
		readingCount*READING_SIZE +
		sliceCount*SLICE_SIZE +
		errorCount*ERROR_SIZE +
		qualityCount*QUALITY_VALUE_SIZE
	if len(data) != expected {
		return nil, fmt.Errorf("datagram length mismatch: header counts need %d bytes, got %d", expected, len(data))
	}

	batch := &calo.ReadoutBatch{
		Sequence: binary.LittleEndian.Uint32(data[OFFSET_SEQUENCE:]),
	}

	offset := HEADER_SIZE
	if readingCount > 0 {
		batch.Readings = make([]calo.ChannelReading, readingCount)
		for i := 0; i < readingCount; i++ {
			rec := data[offset : offset+READING_SIZE]
			batch.Readings[i] = calo.ChannelReading{
				Channel: binary.LittleEndian.Uint16(rec[0:2]),
				Gain:    calo.Gain(rec[2]),
				Energy:  math.Float32frombits(binary.LittleEndian.Uint32(rec[4:8])),
				Time:    math.Float32frombits(binary.LittleEndian.Uint32(rec[8:12])),
			}
			offset += READING_SIZE
		}
	}

	if sliceCount > 0 {
		batch.Events = make([]calo.EventSlice, sliceCount)
		for i := 0; i < sliceCount; i++ {
			s := calo.EventSlice{
				First: binary.LittleEndian.Uint16(data[offset:]),
				Count: binary.LittleEndian.Uint16(data[offset+2:]),
			}
			if int(s.First)+int(s.Count) > readingCount {
				return nil, fmt.Errorf("event slice %d overruns readings: [%d,%d) of %d",
					i, s.First, int(s.First)+int(s.Count), readingCount)
			}
			batch.Events[i] = s
			offset += SLICE_SIZE
		}
	}

	if errorCount > 0 {
		batch.Errors = make([]calo.HardwareErrorRecord, errorCount)
		for i := 0; i < errorCount; i++ {
			batch.Errors[i] = calo.HardwareErrorRecord{
				Board: data[offset],
				Link:  data[offset+1],
				Code:  data[offset+2],
			}
			offset += ERROR_SIZE
		}
	}

	if qualityCount > 0 {
		batch.Quality = make([]uint16, qualityCount)
		for i := 0; i < qualityCount; i++ {
			batch.Quality[i] = binary.LittleEndian.Uint16(data[offset:])
			offset += QUALITY_VALUE_SIZE
		}
	}

	if p.debug && p.packetCount <= p.debugPackets {
		monitoring.Logf("[parse] packet %d: seq=%d readings=%d slices=%d errors=%d quality=%d flags=0x%02x",
			p.packetCount, batch.Sequence, readingCount, sliceCount, errorCount, qualityCount, flags)
	}

	return batch, nil
}

// EncodeBatch builds the datagram for a batch, the exact inverse of
// ParseBatch. Used by the replay tool and tests; the production path only
// ever decodes.
func EncodeBatch(b *calo.ReadoutBatch) ([]byte, error) {
	if len(b.Readings) > MAX_READINGS_PER_BATCH {
		return nil, fmt.Errorf("too many readings for one datagram: %d > %d", len(b.Readings), MAX_READINGS_PER_BATCH)
	}
	if len(b.Events) > math.MaxUint16 || len(b.Errors) > math.MaxUint16 || len(b.Quality) > math.MaxUint16 {
		return nil, fmt.Errorf("section count exceeds uint16: %d slices, %d errors, %d quality values",
			len(b.Events), len(b.Errors), len(b.Quality))
	}

	size := HEADER_SIZE +
		len(b.Readings)*READING_SIZE +
		len(b.Events)*SLICE_SIZE +
		len(b.Errors)*ERROR_SIZE +
		len(b.Quality)*QUALITY_VALUE_SIZE
	data := make([]byte, size)

	binary.LittleEndian.PutUint16(data[OFFSET_PREAMBLE:], BATCH_PREAMBLE)
	data[OFFSET_VERSION] = PROTOCOL_VERSION
	if len(b.Quality) > 0 {
		data[OFFSET_FLAGS] = FLAG_QUALITY_PRESENT
	}
	binary.LittleEndian.PutUint16(data[OFFSET_READING_COUNT:], uint16(len(b.Readings)))
	binary.LittleEndian.PutUint16(data[OFFSET_SLICE_COUNT:], uint16(len(b.Events)))
	binary.LittleEndian.PutUint16(data[OFFSET_ERROR_COUNT:], uint16(len(b.Errors)))
	binary.LittleEndian.PutUint16(data[OFFSET_QUALITY_COUNT:], uint16(len(b.Quality)))
	binary.LittleEndian.PutUint32(data[OFFSET_SEQUENCE:], b.Sequence)

	offset := HEADER_SIZE
	for _, r := range b.Readings {
		binary.LittleEndian.PutUint16(data[offset:], r.Channel)
		data[offset+2] = uint8(r.Gain)
		binary.LittleEndian.PutUint32(data[offset+4:], math.Float32bits(r.Energy))
		binary.LittleEndian.PutUint32(data[offset+8:], math.Float32bits(r.Time))
		offset += READING_SIZE
	}
	for _, s := range b.Events {
		binary.LittleEndian.PutUint16(data[offset:], s.First)
		binary.LittleEndian.PutUint16(data[offset+2:], s.Count)
		offset += SLICE_SIZE
	}
	for _, e := range b.Errors {
		data[offset] = e.Board
		data[offset+1] = e.Link
		data[offset+2] = e.Code
		offset += ERROR_SIZE
	}
	for _, q := range b.Quality {
		binary.LittleEndian.PutUint16(data[offset:], q)
		offset += QUALITY_VALUE_SIZE
	}

	return data, nil
}

package parse

import (
	"encoding/binary"
	"math"
	"strings"
	"testing"

	"github.com/helios-array/quality.monitor/internal/calo"
)

// buildTestDatagram hand-assembles a datagram with one reading, one event
// slice, one error record, and one quality pair.
func buildTestDatagram() []byte {
	data := make([]byte, HEADER_SIZE+READING_SIZE+SLICE_SIZE+ERROR_SIZE+2*QUALITY_VALUE_SIZE)

	binary.LittleEndian.PutUint16(data[OFFSET_PREAMBLE:], BATCH_PREAMBLE)
	data[OFFSET_VERSION] = PROTOCOL_VERSION
	data[OFFSET_FLAGS] = FLAG_QUALITY_PRESENT
	binary.LittleEndian.PutUint16(data[OFFSET_READING_COUNT:], 1)
	binary.LittleEndian.PutUint16(data[OFFSET_SLICE_COUNT:], 1)
	binary.LittleEndian.PutUint16(data[OFFSET_ERROR_COUNT:], 1)
	binary.LittleEndian.PutUint16(data[OFFSET_QUALITY_COUNT:], 2)
	binary.LittleEndian.PutUint32(data[OFFSET_SEQUENCE:], 7001)

	// Reading: channel 2000, low gain, energy 2.5 ADC, time 1e-7 s.
	off := HEADER_SIZE
	binary.LittleEndian.PutUint16(data[off:], 2000)
	data[off+2] = 1
	binary.LittleEndian.PutUint32(data[off+4:], math.Float32bits(2.5))
	binary.LittleEndian.PutUint32(data[off+8:], math.Float32bits(1e-7))

	// Event slice covering the single reading.
	off += READING_SIZE
	binary.LittleEndian.PutUint16(data[off:], 0)
	binary.LittleEndian.PutUint16(data[off+2:], 1)

	// Error record: board 3, link 7, code 5.
	off += SLICE_SIZE
	data[off] = 3
	data[off+1] = 7
	data[off+2] = 5

	// Quality pair: address 2000 with the gain bit set, raw score 50.
	off += ERROR_SIZE
	binary.LittleEndian.PutUint16(data[off:], 2000|1<<14)
	binary.LittleEndian.PutUint16(data[off+2:], 50)

	return data
}

func TestParseBatchHandAssembled(t *testing.T) {
	parser := NewBatchParser()

	batch, err := parser.ParseBatch(buildTestDatagram())
	if err != nil {
		t.Fatalf("ParseBatch failed: %v", err)
	}

	if batch.Sequence != 7001 {
		t.Errorf("Sequence = %d, want 7001", batch.Sequence)
	}
	if len(batch.Readings) != 1 {
		t.Fatalf("got %d readings, want 1", len(batch.Readings))
	}
	r := batch.Readings[0]
	if r.Channel != 2000 || r.Gain != calo.LowGain {
		t.Errorf("reading = %+v, want channel 2000 LG", r)
	}
	if r.Energy != 2.5 {
		t.Errorf("Energy = %v, want 2.5", r.Energy)
	}
	if r.Time != 1e-7 {
		t.Errorf("Time = %v, want 1e-7", r.Time)
	}

	if len(batch.Events) != 1 || batch.Events[0] != (calo.EventSlice{First: 0, Count: 1}) {
		t.Errorf("Events = %+v, want [{0 1}]", batch.Events)
	}
	if len(batch.Errors) != 1 || batch.Errors[0] != (calo.HardwareErrorRecord{Board: 3, Link: 7, Code: 5}) {
		t.Errorf("Errors = %+v, want [{3 7 5}]", batch.Errors)
	}
	if len(batch.Quality) != 2 || batch.Quality[0] != 2000|1<<14 || batch.Quality[1] != 50 {
		t.Errorf("Quality = %v, want [18384 50]", batch.Quality)
	}
}

func TestParseBatchEmpty(t *testing.T) {
	data := make([]byte, HEADER_SIZE)
	binary.LittleEndian.PutUint16(data[OFFSET_PREAMBLE:], BATCH_PREAMBLE)
	data[OFFSET_VERSION] = PROTOCOL_VERSION
	binary.LittleEndian.PutUint32(data[OFFSET_SEQUENCE:], 1)

	batch, err := NewBatchParser().ParseBatch(data)
	if err != nil {
		t.Fatalf("ParseBatch failed on empty batch: %v", err)
	}
	if batch.Sequence != 1 || len(batch.Readings) != 0 || len(batch.Events) != 0 {
		t.Errorf("empty batch decoded as %+v", batch)
	}
}

func TestParseBatchRejections(t *testing.T) {
	valid := buildTestDatagram()

	corrupt := func(mutate func([]byte)) []byte {
		data := make([]byte, len(valid))
		copy(data, valid)
		mutate(data)
		return data
	}

	cases := []struct {
		name    string
		data    []byte
		wantErr string
	}{
		{
			name:    "short header",
			data:    valid[:HEADER_SIZE-1],
			wantErr: "too short",
		},
		{
			name:    "bad preamble",
			data:    corrupt(func(d []byte) { d[0] = 0xFF }),
			wantErr: "preamble",
		},
		{
			name:    "bad version",
			data:    corrupt(func(d []byte) { d[OFFSET_VERSION] = 9 }),
			wantErr: "version",
		},
		{
			name:    "truncated body",
			data:    valid[:len(valid)-1],
			wantErr: "length mismatch",
		},
		{
			name:    "trailing garbage",
			data:    append(corrupt(func([]byte) {}), 0x00),
			wantErr: "length mismatch",
		},
		{
			name: "reading count over maximum",
			data: corrupt(func(d []byte) {
				binary.LittleEndian.PutUint16(d[OFFSET_READING_COUNT:], MAX_READINGS_PER_BATCH+1)
			}),
			wantErr: "exceeds maximum",
		},
		{
			name: "quality without flag",
			data: corrupt(func(d []byte) { d[OFFSET_FLAGS] = 0 }),
			wantErr: "quality",
		},
		{
			name: "slice overruns readings",
			data: corrupt(func(d []byte) {
				binary.LittleEndian.PutUint16(d[HEADER_SIZE+READING_SIZE+2:], 4)
			}),
			wantErr: "overruns",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := NewBatchParser().ParseBatch(c.data)
			if err == nil {
				t.Fatal("expected parse error, got nil")
			}
			if !strings.Contains(err.Error(), c.wantErr) {
				t.Errorf("error %q does not mention %q", err, c.wantErr)
			}
		})
	}
}

func TestEncodeBatchRoundTrip(t *testing.T) {
	in := &calo.ReadoutBatch{
		Sequence: 42,
		Readings: []calo.ChannelReading{
			{Channel: 1793, Gain: calo.HighGain, Energy: 120.5, Time: 2e-8},
			{Channel: 14336, Gain: calo.LowGain, Energy: 37, Time: -1e-7},
		},
		Events: []calo.EventSlice{{First: 0, Count: 1}, {First: 1, Count: 1}},
		Errors: []calo.HardwareErrorRecord{{Board: 1, Link: 2, Code: 0}},
		Quality: []uint16{1793, 10, 14336 | 1<<14, 99},
	}

	data, err := EncodeBatch(in)
	if err != nil {
		t.Fatalf("EncodeBatch failed: %v", err)
	}
	out, err := NewBatchParser().ParseBatch(data)
	if err != nil {
		t.Fatalf("ParseBatch failed on encoded datagram: %v", err)
	}

	if out.Sequence != in.Sequence {
		t.Errorf("Sequence = %d, want %d", out.Sequence, in.Sequence)
	}
	for i := range in.Readings {
		if out.Readings[i] != in.Readings[i] {
			t.Errorf("reading %d = %+v, want %+v", i, out.Readings[i], in.Readings[i])
		}
	}
	for i := range in.Events {
		if out.Events[i] != in.Events[i] {
			t.Errorf("slice %d = %+v, want %+v", i, out.Events[i], in.Events[i])
		}
	}
	if out.Errors[0] != in.Errors[0] {
		t.Errorf("error record = %+v, want %+v", out.Errors[0], in.Errors[0])
	}
	for i := range in.Quality {
		if out.Quality[i] != in.Quality[i] {
			t.Errorf("quality[%d] = %d, want %d", i, out.Quality[i], in.Quality[i])
		}
	}
}

func TestEncodeBatchRejectsOversize(t *testing.T) {
	b := &calo.ReadoutBatch{Readings: make([]calo.ChannelReading, MAX_READINGS_PER_BATCH+1)}
	if _, err := EncodeBatch(b); err == nil {
		t.Error("expected error for oversized reading block")
	}
}

package calo

// Error-grid dimensions: readout boards per link direction and links per
// partition. Error codes are bit positions into a 32-bit flag word.
const (
	ErrorBoards  = 32
	ErrorLinks   = 15
	MaxErrorCode = 31
)

// ErrorTally accumulates hardware-error reports into a (board, link) grid of
// occurrence counts and a parallel grid of OR'd error-type flags. Both grids
// grow for the whole activity and clear only on Reset.
type ErrorTally struct {
	counts  []uint32
	flags   []uint32
	dropped uint64
}

// NewErrorTally allocates a zeroed tally.
func NewErrorTally() *ErrorTally {
	return &ErrorTally{
		counts: make([]uint32, ErrorBoards*ErrorLinks),
		flags:  make([]uint32, ErrorBoards*ErrorLinks),
	}
}

// Record tallies one error report. Reports with an out-of-range board, link,
// or code are dropped and counted, never partially applied.
func (t *ErrorTally) Record(rec HardwareErrorRecord) {
	if rec.Board >= ErrorBoards || rec.Link >= ErrorLinks || rec.Code > MaxErrorCode {
		t.dropped++
		return
	}
	i := int(rec.Board)*ErrorLinks + int(rec.Link)
	t.counts[i]++
	t.flags[i] |= 1 << rec.Code
}

// At returns the occurrence count and flag word at (board, link).
func (t *ErrorTally) At(board, link uint8) (count uint32, flags uint32) {
	if board >= ErrorBoards || link >= ErrorLinks {
		return 0, 0
	}
	i := int(board)*ErrorLinks + int(link)
	return t.counts[i], t.flags[i]
}

// Dropped returns how many malformed reports were rejected.
func (t *ErrorTally) Dropped() uint64 { return t.dropped }

// Total returns the number of tallied reports.
func (t *ErrorTally) Total() uint64 {
	var n uint64
	for _, c := range t.counts {
		n += uint64(c)
	}
	return n
}

// countPlane returns the count grid as a board-major float plane for
// snapshot publication.
func (t *ErrorTally) countPlane() []float64 {
	out := make([]float64, len(t.counts))
	for i, c := range t.counts {
		out[i] = float64(c)
	}
	return out
}

// flagPlane returns the flag grid as a board-major float plane.
func (t *ErrorTally) flagPlane() []float64 {
	out := make([]float64, len(t.flags))
	for i, f := range t.flags {
		out[i] = float64(f)
	}
	return out
}

// Reset zeroes both grids and the dropped counter.
func (t *ErrorTally) Reset() {
	for i := range t.counts {
		t.counts[i] = 0
		t.flags[i] = 0
	}
	t.dropped = 0
}

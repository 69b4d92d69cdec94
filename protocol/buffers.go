package protocol

// InputBuffer holds received bytes not yet consumed by a transport
type InputBuffer interface {
	// Data returns the unconsumed bytes
	Data() []byte

	Available() int

	// Pop discards n bytes from the front
	Pop(n int)
}

// OutputBuffer accumulates outgoing bytes. Transports patch the block
// length in place once the payload is written.
type OutputBuffer interface {
	Output(data []byte)
	CurPosition() int

	// Update overwrites the byte at pos
	Update(pos int, val byte)

	// DataSince returns the bytes written from pos on
	DataSince(pos int) []byte
}

// SliceInputBuffer is an InputBuffer over a fixed slice
type SliceInputBuffer struct {
	data []byte
}

func NewSliceInputBuffer(data []byte) *SliceInputBuffer {
	return &SliceInputBuffer{data: data}
}

func (s *SliceInputBuffer) Data() []byte   { return s.data }
func (s *SliceInputBuffer) Available() int { return len(s.data) }

func (s *SliceInputBuffer) Pop(n int) {
	s.data = s.data[min(n, len(s.data)):]
}

// ScratchOutput is a fixed-size OutputBuffer holding one flush worth of
// blocks. Bytes past MessageMax are dropped; Truncated reports it.
type ScratchOutput struct {
	buf       [MessageMax]byte
	pos       int
	truncated bool
}

func NewScratchOutput() *ScratchOutput {
	return &ScratchOutput{}
}

func (s *ScratchOutput) Output(data []byte) {
	n := copy(s.buf[s.pos:], data)
	s.pos += n
	if n < len(data) {
		s.truncated = true
	}
}

func (s *ScratchOutput) CurPosition() int { return s.pos }

func (s *ScratchOutput) Update(pos int, val byte) {
	if pos >= 0 && pos < s.pos {
		s.buf[pos] = val
	}
}

func (s *ScratchOutput) DataSince(pos int) []byte {
	if pos < 0 || pos > s.pos {
		return nil
	}
	return s.buf[pos:s.pos]
}

// Result returns everything written since the last Reset
func (s *ScratchOutput) Result() []byte { return s.buf[:s.pos] }

// Truncated reports whether output was dropped since the last Reset
func (s *ScratchOutput) Truncated() bool { return s.truncated }

func (s *ScratchOutput) Reset() {
	s.pos = 0
	s.truncated = false
}

// FifoBuffer collects received link bytes until a transport consumes whole
// blocks. Unconsumed bytes stay contiguous, so Data never copies; space
// freed by Pop is reclaimed by moving the tail down on the next Write.
type FifoBuffer struct {
	buf        []byte
	start, end int
}

// NewFifoBuffer creates a buffer holding up to capacity bytes
func NewFifoBuffer(capacity int) *FifoBuffer {
	return &FifoBuffer{buf: make([]byte, capacity)}
}

// Write appends as much of data as fits and returns the count
func (f *FifoBuffer) Write(data []byte) int {
	if f.end+len(data) > len(f.buf) && f.start > 0 {
		f.end = copy(f.buf, f.buf[f.start:f.end])
		f.start = 0
	}
	n := copy(f.buf[f.end:], data)
	f.end += n
	return n
}

func (f *FifoBuffer) Data() []byte { return f.buf[f.start:f.end] }

func (f *FifoBuffer) Available() int { return f.end - f.start }

// Free returns how many bytes the next Write accepts
func (f *FifoBuffer) Free() int { return len(f.buf) - f.Available() }

func (f *FifoBuffer) Pop(n int) {
	f.start += min(n, f.Available())
	if f.start == f.end {
		f.start, f.end = 0, 0
	}
}

func (f *FifoBuffer) Reset() {
	f.start, f.end = 0, 0
}

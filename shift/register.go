package shift

import "gopins/core"

// Register is a chain of serial-in parallel-out shift registers (74HC595
// style) fed with the board's ShiftOut
type Register struct {
	board *core.Board
	data  core.DigitalPin
	clock core.DigitalPin
	latch core.DigitalPin
	order core.BitOrder
	state []byte
}

// NewRegister configures the three control pins. length is the number of
// chained 8-bit registers.
func NewRegister(data, clock, latch core.DigitalPin, order core.BitOrder, length int) (*Register, error) {
	for _, p := range []core.DigitalPin{data, clock, latch} {
		if err := p.Pin().Mode(core.Output); err != nil {
			return nil, err
		}
	}
	if err := latch.Low(); err != nil {
		return nil, err
	}
	return &Register{
		board: data.Pin().Board(),
		data:  data,
		clock: clock,
		latch: latch,
		order: order,
		state: make([]byte, length),
	}, nil
}

// Write shifts values out, last register first, and latches them
func (r *Register) Write(values ...byte) error {
	n := copy(r.state, values)
	for i := n - 1; i >= 0; i-- {
		if err := r.board.ShiftOut(r.data, r.clock, r.order, r.state[i]); err != nil {
			return err
		}
	}
	if err := r.latch.High(); err != nil {
		return err
	}
	return r.latch.Low()
}

// SetOutput changes one output (register*8 + bit) and rewrites the chain
func (r *Register) SetOutput(output int, on bool) error {
	reg, bit := output/8, uint(output%8)
	if reg >= len(r.state) {
		return nil
	}
	if on {
		r.state[reg] |= 1 << bit
	} else {
		r.state[reg] &^= 1 << bit
	}
	return r.Write(r.state...)
}

// State returns the last latched bytes
func (r *Register) State() []byte {
	return append([]byte(nil), r.state...)
}

package firmware

import "sync/atomic"

// pendingSet is a 256-bit set of pins with an unreported interrupt. The
// interrupt path only sets bits; the server loop drains them. Several
// interrupts on one pin between two drains are reported once.
type pendingSet struct {
	words [8]atomic.Uint32
}

func (p *pendingSet) mark(pin uint8) {
	w := &p.words[pin/32]
	bit := uint32(1) << (pin % 32)
	for {
		old := w.Load()
		if old&bit != 0 || w.CompareAndSwap(old, old|bit) {
			return
		}
	}
}

// drain clears the set and calls fn for every pin that was in it, lowest first
func (p *pendingSet) drain(fn func(pin uint8)) {
	for i := range p.words {
		bits := p.words[i].Swap(0)
		for b := 0; bits != 0; b++ {
			if bits&1 != 0 {
				fn(uint8(i*32 + b))
			}
			bits >>= 1
		}
	}
}

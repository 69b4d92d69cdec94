// Package pio generates tones on RP2040 PIO state machines. One state
// machine plays one tone; a pin keeps its state machine until NoTone.
package pio

// Slot names one state machine
type Slot struct {
	PIO uint8 // 0 or 1
	SM  uint8 // 0-3
}

// Allocator hands out the 8 state machines (2 PIO blocks x 4) round-robin
type Allocator struct {
	used    [2][4]bool
	nextPIO uint8
	nextSM  uint8
}

// Allocate claims a free state machine. ok is false when all 8 are in use.
func (a *Allocator) Allocate() (Slot, bool) {
	for i := 0; i < 8; i++ {
		s := Slot{PIO: a.nextPIO, SM: a.nextSM}

		a.nextSM++
		if a.nextSM >= 4 {
			a.nextSM = 0
			a.nextPIO = (a.nextPIO + 1) % 2
		}

		if !a.used[s.PIO][s.SM] {
			a.used[s.PIO][s.SM] = true
			return s, true
		}
	}
	return Slot{}, false
}

// Release returns a state machine to the pool
func (a *Allocator) Release(s Slot) {
	a.used[s.PIO%2][s.SM%4] = false
}

// InUse returns the number of claimed state machines
func (a *Allocator) InUse() int {
	n := 0
	for _, block := range a.used {
		for _, u := range block {
			if u {
				n++
			}
		}
	}
	return n
}

const cyclesPerPeriod = 64

// ClockDivider returns the 16.8 fixed point divider producing frequency
// from a system clock of sysHz. Out-of-range frequencies clamp to the
// nearest reachable divider.
func ClockDivider(sysHz, frequency uint32) (whole uint16, frac uint8) {
	if frequency == 0 {
		return 0xFFFF, 0
	}
	div256 := uint64(sysHz) * 256 / (uint64(cyclesPerPeriod) * uint64(frequency))
	if div256 < 256 {
		div256 = 256
	}
	if div256 > 0xFFFF<<8 {
		div256 = 0xFFFF << 8
	}
	return uint16(div256 >> 8), uint8(div256)
}

// Frequency returns the tone frequency a divider produces
func Frequency(sysHz uint32, whole uint16, frac uint8) float64 {
	div := float64(whole) + float64(frac)/256
	return float64(sysHz) / (cyclesPerPeriod * div)
}

package core

import "sync/atomic"

// capability is a kind of view use checked by the mode tracker
type capability uint8

const (
	capDigitalWrite capability = iota
	capAnalogWrite
	capAnalogRead
	capTone
)

func (c capability) String() string {
	switch c {
	case capDigitalWrite:
		return "digital write"
	case capAnalogWrite:
		return "analog write"
	case capAnalogRead:
		return "analog read"
	default:
		return "tone"
	}
}

// modeTracker remembers the last mode set per pin. Slot value 0 means
// "never set", otherwise mode+1.
type modeTracker struct {
	modes      [256]atomic.Uint32
	mismatches atomic.Uint32
}

func newModeTracker() *modeTracker {
	return &modeTracker{}
}

func (t *modeTracker) set(pin uint8, m Mode) {
	t.modes[pin].Store(uint32(m) + 1)
}

func (t *modeTracker) get(pin uint8) (Mode, bool) {
	v := t.modes[pin].Load()
	if v == 0 {
		return 0, false
	}
	return Mode(v - 1), true
}

// check reports use of a capability that does not fit the recorded mode.
// Pins whose mode was never set are not reported.
func (t *modeTracker) check(pin uint8, c capability) {
	m, ok := t.get(pin)
	if !ok {
		return
	}
	var bad bool
	switch c {
	case capDigitalWrite, capAnalogWrite, capTone:
		bad = m != Output
	case capAnalogRead:
		bad = m == Output
	}
	if !bad {
		return
	}
	t.mismatches.Add(1)
	RecordEvent(EvtModeMismatch, pin, int32(m))
	DebugPrintln("[PIN] warning: " + c.String() + " on pin" + Itoa(int(pin)) + " configured as " + m.String())
}

// TrackedMode returns the last mode set on the pin when mode tracking is on
func (b *Board) TrackedMode(pin uint8) (Mode, bool) {
	if b.tracker == nil {
		return 0, false
	}
	return b.tracker.get(pin)
}

// ModeMismatches returns how many mismatched capability uses the tracker saw
func (b *Board) ModeMismatches() uint32 {
	if b.tracker == nil {
		return 0
	}
	return b.tracker.mismatches.Load()
}

package core

import "time"

// DefaultPulseTimeout is used when PulseIn is given a zero timeout (one second,
// as in the native runtime)
const DefaultPulseTimeout = 1000000

// Pulse is the result of a pulse measurement
type Pulse struct {
	// Width is the pulse length in microseconds. Zero when TimedOut.
	Width uint32

	// TimedOut is set when no complete pulse was seen within the timeout
	TimedOut bool
}

// Duration returns the pulse width as a time.Duration
func (p Pulse) Duration() time.Duration {
	return time.Duration(p.Width) * time.Microsecond
}

// PulseIn waits for the pin to go to state, then measures how long it stays
// there. Blocks for at most timeout microseconds (zero selects
// DefaultPulseTimeout); expiry is reported in the result, not as an error.
func (d DigitalPin) PulseIn(state DigitalValue, timeout uint32) (Pulse, error) {
	if timeout == 0 {
		timeout = DefaultPulseTimeout
	}
	b, err := d.pin.bound()
	if err != nil {
		return Pulse{}, err
	}
	width, err := b.backend.PulseIn(d.pin.id, state, timeout)
	if err != nil {
		return Pulse{}, err
	}
	if width == 0 {
		RecordEvent(EvtPulseTimeout, d.pin.id, int32(timeout))
		return Pulse{TimedOut: true}, nil
	}
	return Pulse{Width: width}, nil
}

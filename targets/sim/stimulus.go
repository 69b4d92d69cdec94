package sim

import "gopins/core"

// Stimuli and inspectors used by tests and the interactive tool.

// Drive forces the level seen on an input pin, as an external circuit would
func (s *Backend) Drive(pin uint8, level core.DigitalValue) {
	s.mu.Lock()
	ps := &s.pins[pin]
	ps.driven = true
	ps.drive = level
	fired := s.settle()
	s.mu.Unlock()
	s.fire(fired)
}

// Release stops driving the pin externally
func (s *Backend) Release(pin uint8) {
	s.mu.Lock()
	s.pins[pin].driven = false
	fired := s.settle()
	s.mu.Unlock()
	s.fire(fired)
}

// Connect wires two pins together. An Output pin drives every pin it is
// connected to.
func (s *Backend) Connect(a, b uint8) {
	s.mu.Lock()
	s.peers[a] = append(s.peers[a], b)
	s.peers[b] = append(s.peers[b], a)
	fired := s.settle()
	s.mu.Unlock()
	s.fire(fired)
}

// DriveAt schedules an external level change at the given virtual time in
// microseconds. Scheduled changes run when the clock passes them (Delay,
// DelayMicroseconds, PulseIn).
func (s *Backend) DriveAt(pin uint8, level core.DigitalValue, at uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertTimer(&timer{
		WakeTime: at,
		Handler: func(*timer) uint8 {
			ps := &s.pins[pin]
			ps.driven = true
			ps.drive = level
			return sfDone
		},
	})
}

// Pulse schedules a pulse of the given level and width, starting after delay
// microseconds from now. The pin is driven to the opposite level until then.
func (s *Backend) Pulse(pin uint8, level core.DigitalValue, delay, width uint32) {
	s.Drive(pin, level.Invert())
	now := s.Now()
	s.DriveAt(pin, level, now+uint64(delay))
	s.DriveAt(pin, level.Invert(), now+uint64(delay)+uint64(width))
}

// SetAnalogInput sets the sample seen by AnalogRead, as a 16-bit fraction of
// full scale
func (s *Backend) SetAnalogInput(pin uint8, sample uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pins[pin].analogIn = sample
}

// QueueShiftIn queues a byte that the device on dataPin presents to the next
// ShiftIn on that pin
func (s *Backend) QueueShiftIn(dataPin uint8, value byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shiftInQueue[dataPin] = append(s.shiftInQueue[dataPin], value)
}

// ForceRaw makes DigitalRead return raw verbatim, emulating a backend that
// reports values outside {0, 1}
func (s *Backend) ForceRaw(pin uint8, raw int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pins[pin].rawForced = true
	s.pins[pin].raw = raw
}

// Now returns the virtual clock in microseconds
func (s *Backend) Now() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Level returns the resolved electrical level of a pin
func (s *Backend) Level(pin uint8) core.DigitalValue {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.levelOf(pin)
}

// Mode returns the last mode set on a pin and whether one was set
func (s *Backend) Mode(pin uint8) (core.Mode, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pins[pin].mode, s.pins[pin].configured
}

// AnalogOutput returns the last analog value written to a pin
func (s *Backend) AnalogOutput(pin uint8) int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pins[pin].analogOut
}

// ToneInfo describes the tone state of a pin
type ToneInfo struct {
	Active    bool
	Frequency uint32
	Duration  uint32
}

// ToneState returns the tone state of a pin
func (s *Backend) ToneState(pin uint8) ToneInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := s.pins[pin].tone
	return ToneInfo{Active: ts.active, Frequency: ts.frequency, Duration: ts.duration}
}

// ShiftedOut returns every byte shifted out on dataPin so far
func (s *Backend) ShiftedOut(dataPin uint8) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.shiftLog[dataPin]...)
}

// AnalogSettings returns the reference and resolutions the backend holds
func (s *Backend) AnalogSettings() core.AnalogConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return core.AnalogConfig{
		Reference:       s.reference,
		ReadResolution:  s.readBits,
		WriteResolution: s.writeBits,
	}
}

// InterruptAttached reports whether a handler is attached to the pin
func (s *Backend) InterruptAttached(pin uint8) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pins[pin].attached
}

// Inits returns how many times Init was called
func (s *Backend) Inits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inits
}

package core

// Backend is the native pin runtime every view and controller call ends up in.
// Platform-specific implementations (targets/sim, targets/linux, host/remote,
// targets/rp2040) perform the actual hardware control.
//
// The call surface is fixed: pins are small unsigned integers and the enumerations
// use the encodings defined in values.go. Implementations must not track or verify
// pin modes on behalf of callers; a call on a pin in the "wrong" mode is forwarded
// as is. Errors report backend or transport failures only.
type Backend interface {
	// Init prepares the runtime. Called once by Board.Init.
	Init() error

	// SetMode configures the electrical mode of a pin
	SetMode(pin uint8, mode Mode) error

	DigitalWrite(pin uint8, value DigitalValue) error

	// DigitalRead returns the raw reading, conventionally 0 or 1
	DigitalRead(pin uint8) (int32, error)

	// AnalogWrite issues a PWM/DAC write. Range depends on the write resolution.
	AnalogWrite(pin uint8, value int32) error

	// AnalogRead samples the pin at the current read resolution
	AnalogRead(pin uint8) (int32, error)

	AnalogReference(ref AnalogReference) error
	AnalogReadResolution(bits int32) error
	AnalogWriteResolution(bits int32) error

	// Tone starts a square wave. A zero duration means until NoTone.
	Tone(pin uint8, frequency uint32, duration uint32) error

	// NoTone stops any tone on the pin. No-op when none is active.
	NoTone(pin uint8) error

	ShiftOut(dataPin, clockPin uint8, order BitOrder, value uint8) error
	ShiftIn(dataPin, clockPin uint8, order BitOrder) (uint8, error)

	// PulseIn blocks until a pulse at state completes and returns its width in
	// microseconds, or 0 if timeout microseconds elapse first.
	PulseIn(pin uint8, state DigitalValue, timeout uint32) (uint32, error)

	// Millis and Micros are non-decreasing counters since Init; wrap-around is
	// backend-defined.
	Millis() uint32
	Micros() uint32

	// Delay and DelayMicroseconds block the caller
	Delay(ms uint32)
	DelayMicroseconds(us uint32)

	// AttachInterrupt registers handler for the pin, replacing any previous one.
	// The handler may run concurrently with every other caller of the backend.
	AttachInterrupt(pin uint8, handler func(), trigger Trigger) error

	// DetachInterrupt removes the pin's handler. No-op when none is attached.
	DetachInterrupt(pin uint8) error
}

// Pin identity, capability views and the mode controller.
//
// A Pin names one physical pin on a Board. DigitalPin, AnalogPin and TonePin
// are views of the same pin that only expose the operations of one capability.
// Converting between a Pin and a view is a relabeling: it costs nothing and
// performs NO runtime validation. In particular nothing checks that the pin is
// currently configured for the capability being used; using an AnalogPin on a
// pin set to Input is forwarded to the backend unchanged. Keeping mode and use
// consistent is the caller's responsibility (see WithModeTracking for a
// development aid that reports mismatches).
//
// Many handles may name the same pin at once; they all alias the same hardware.
package core

// Pin is the identity of a physical pin on a board. Pins come from
// Board.Pin; operations on the zero Pin return ErrNoBackend.
type Pin struct {
	board *Board
	id    uint8
}

// DigitalPin is a pin used for two-valued I/O
type DigitalPin struct{ pin Pin }

// AnalogPin is a pin used for analog (ADC/PWM/DAC) I/O
type AnalogPin struct{ pin Pin }

// TonePin is a pin used for square-wave tone generation
type TonePin struct{ pin Pin }

// Raw returns the pin number
func (p Pin) Raw() uint8 { return p.id }

// Board returns the board the pin belongs to
func (p Pin) Board() *Board { return p.board }

// Digital relabels the pin as a digital view
func (p Pin) Digital() DigitalPin { return DigitalPin{pin: p} }

// Analog relabels the pin as an analog view
func (p Pin) Analog() AnalogPin { return AnalogPin{pin: p} }

// Tone relabels the pin as a tone view
func (p Pin) Tone() TonePin { return TonePin{pin: p} }

func (p Pin) String() string { return "pin" + Itoa(int(p.id)) }

// bound returns the pin's board, or ErrNoBackend for a Pin not made by one
func (p Pin) bound() (*Board, error) {
	if p.board == nil {
		return nil, ErrNoBackend
	}
	return p.board, nil
}

// Pin widens the view back to its identity
func (d DigitalPin) Pin() Pin { return d.pin }

// Raw returns the pin number
func (d DigitalPin) Raw() uint8 { return d.pin.id }

// Pin widens the view back to its identity
func (a AnalogPin) Pin() Pin { return a.pin }

// Raw returns the pin number
func (a AnalogPin) Raw() uint8 { return a.pin.id }

// Pin widens the view back to its identity
func (t TonePin) Pin() Pin { return t.pin }

// Raw returns the pin number
func (t TonePin) Raw() uint8 { return t.pin.id }

// Mode sets the electrical mode of the pin. The mode is not remembered by the
// pin layer and later view use is not checked against it.
func (p Pin) Mode(m Mode) error {
	if !m.Valid() {
		return ErrInvalidMode
	}
	b, err := p.bound()
	if err != nil {
		return err
	}
	if err := b.backend.SetMode(p.id, m); err != nil {
		return err
	}
	RecordEvent(EvtSetMode, p.id, int32(m))
	if b.tracker != nil {
		b.tracker.set(p.id, m)
	}
	return nil
}

// Write drives the pin to value
func (d DigitalPin) Write(value DigitalValue) error {
	b, err := d.pin.bound()
	if err != nil {
		return err
	}
	if b.tracker != nil {
		b.tracker.check(d.pin.id, capDigitalWrite)
	}
	if err := b.backend.DigitalWrite(d.pin.id, value); err != nil {
		return err
	}
	RecordEvent(EvtDigitalWrite, d.pin.id, int32(value))
	return nil
}

// High drives the pin high
func (d DigitalPin) High() error { return d.Write(High) }

// Low drives the pin low
func (d DigitalPin) Low() error { return d.Write(Low) }

// Read samples the pin. Any non-zero backend reading is High.
func (d DigitalPin) Read() (DigitalValue, error) {
	b, err := d.pin.bound()
	if err != nil {
		return Low, err
	}
	raw, err := b.backend.DigitalRead(d.pin.id)
	if err != nil {
		return Low, err
	}
	if raw != 0 && raw != 1 {
		RecordEvent(EvtRawOutOfSet, d.pin.id, raw)
		DebugPrintln("[PIN] digital read on " + d.pin.String() + " returned " + Itoa(int(raw)) + ", treating as high")
	}
	v := DigitalValueFromRaw(raw)
	RecordEvent(EvtDigitalRead, d.pin.id, int32(v))
	return v, nil
}

// Write issues an analog write. The range depends on the board's write
// resolution and is not validated here.
func (a AnalogPin) Write(value int32) error {
	b, err := a.pin.bound()
	if err != nil {
		return err
	}
	if b.tracker != nil {
		b.tracker.check(a.pin.id, capAnalogWrite)
	}
	if err := b.backend.AnalogWrite(a.pin.id, value); err != nil {
		return err
	}
	RecordEvent(EvtAnalogWrite, a.pin.id, value)
	return nil
}

// Read samples the pin at the board's current read resolution
func (a AnalogPin) Read() (int32, error) {
	b, err := a.pin.bound()
	if err != nil {
		return 0, err
	}
	if b.tracker != nil {
		b.tracker.check(a.pin.id, capAnalogRead)
	}
	v, err := b.backend.AnalogRead(a.pin.id)
	if err != nil {
		return 0, err
	}
	RecordEvent(EvtAnalogRead, a.pin.id, v)
	return v, nil
}

// Tone starts a square wave of frequency Hz for duration milliseconds.
// A zero duration plays until NoTone. Returns immediately.
func (t TonePin) Tone(frequency, duration uint32) error {
	b, err := t.pin.bound()
	if err != nil {
		return err
	}
	if b.tracker != nil {
		b.tracker.check(t.pin.id, capTone)
	}
	if err := b.backend.Tone(t.pin.id, frequency, duration); err != nil {
		return err
	}
	RecordEvent(EvtTone, t.pin.id, int32(frequency))
	return nil
}

// NoTone stops the tone on the pin. Calling it with no tone active is a no-op.
func (t TonePin) NoTone() error {
	b, err := t.pin.bound()
	if err != nil {
		return err
	}
	if err := b.backend.NoTone(t.pin.id); err != nil {
		return err
	}
	RecordEvent(EvtNoTone, t.pin.id, 0)
	return nil
}

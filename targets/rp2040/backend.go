//go:build rp2040

package main

import (
	"errors"
	"machine"
	"sync"
	"time"

	"gopins/core"
	"gopins/targets/pio"
)

var errNoStateMachine = errors.New("no free PIO state machine for tone")

const numPins = 30

// activeTone is a tone playing on one pin
type activeTone struct {
	gen  *pio.PIOTone
	slot pio.Slot
	seq  uint32
}

// Backend drives the RP2040 pins through the machine package
type Backend struct {
	mu sync.Mutex

	start     uint64
	readBits  int32
	writeBits int32
	reference core.AnalogReference

	adcs        map[uint8]*machine.ADC
	pwmChannels map[uint8]uint8

	alloc   pio.Allocator
	tones   map[uint8]*activeTone
	toneSeq uint32

	irqs map[uint8]bool
}

// NewBackend returns an uninitialised backend
func NewBackend() *Backend {
	return &Backend{
		readBits:    core.DefaultReadResolution,
		writeBits:   core.DefaultWriteResolution,
		reference:   core.ReferenceDefault,
		adcs:        make(map[uint8]*machine.ADC),
		pwmChannels: make(map[uint8]uint8),
		tones:       make(map[uint8]*activeTone),
		irqs:        make(map[uint8]bool),
	}
}

func (b *Backend) Init() error {
	machine.InitADC()
	b.start = hardwareUptime()
	return nil
}

func (b *Backend) SetMode(pin uint8, mode core.Mode) error {
	if pin >= numPins {
		return core.ErrNotSupported
	}
	b.mu.Lock()
	delete(b.pwmChannels, pin)
	b.mu.Unlock()

	p := machine.Pin(pin)
	switch mode {
	case core.Output:
		p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	case core.InputPullUp:
		p.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	default:
		p.Configure(machine.PinConfig{Mode: machine.PinInput})
	}
	return nil
}

func (b *Backend) DigitalWrite(pin uint8, value core.DigitalValue) error {
	if pin >= numPins {
		return core.ErrNotSupported
	}
	machine.Pin(pin).Set(value == core.High)
	return nil
}

func (b *Backend) DigitalRead(pin uint8) (int32, error) {
	if pin >= numPins {
		return 0, core.ErrNotSupported
	}
	if machine.Pin(pin).Get() {
		return 1, nil
	}
	return 0, nil
}

func (b *Backend) AnalogWrite(pin uint8, value int32) error {
	if pin >= numPins {
		return core.ErrNotSupported
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pwmWrite(pin, value, b.writeBits)
}

func (b *Backend) AnalogRead(pin uint8) (int32, error) {
	if !isADCPin(pin) {
		return 0, core.ErrNotSupported
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return scaleSample(b.sampleADC(pin), b.readBits), nil
}

// AnalogReference is recorded only; the RP2040 ADC always uses ADC_VREF
func (b *Backend) AnalogReference(ref core.AnalogReference) error {
	b.mu.Lock()
	b.reference = ref
	b.mu.Unlock()
	return nil
}

func (b *Backend) AnalogReadResolution(bits int32) error {
	b.mu.Lock()
	b.readBits = bits
	b.mu.Unlock()
	return nil
}

func (b *Backend) AnalogWriteResolution(bits int32) error {
	b.mu.Lock()
	b.writeBits = bits
	b.mu.Unlock()
	return nil
}

// Tone claims a PIO state machine for the pin. A pin already playing keeps
// its state machine and changes frequency.
func (b *Backend) Tone(pin uint8, frequency uint32, duration uint32) error {
	if pin >= numPins {
		return core.ErrNotSupported
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.tones[pin]
	if ok {
		t.gen.Stop()
	} else {
		slot, free := b.alloc.Allocate()
		if !free {
			return errNoStateMachine
		}
		t = &activeTone{gen: pio.NewPIOTone(slot.PIO, slot.SM), slot: slot}
		b.tones[pin] = t
	}
	if err := t.gen.Start(machine.Pin(pin), frequency); err != nil {
		b.alloc.Release(t.slot)
		delete(b.tones, pin)
		return err
	}

	b.toneSeq++
	t.seq = b.toneSeq
	if duration > 0 {
		seq := t.seq
		go func() {
			time.Sleep(time.Duration(duration) * time.Millisecond)
			b.mu.Lock()
			defer b.mu.Unlock()
			if cur, ok := b.tones[pin]; ok && cur.seq == seq {
				b.stopTone(pin, cur)
			}
		}()
	}
	return nil
}

func (b *Backend) NoTone(pin uint8) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.tones[pin]; ok {
		b.stopTone(pin, t)
	}
	return nil
}

// stopTone must be called with mu held
func (b *Backend) stopTone(pin uint8, t *activeTone) {
	t.gen.Stop()
	b.alloc.Release(t.slot)
	delete(b.tones, pin)
}

func bitAt(value uint8, i int, order core.BitOrder) bool {
	if order == core.MSBFirst {
		return value&(0x80>>i) != 0
	}
	return value&(1<<i) != 0
}

func (b *Backend) ShiftOut(dataPin, clockPin uint8, order core.BitOrder, value uint8) error {
	if dataPin >= numPins || clockPin >= numPins {
		return core.ErrNotSupported
	}
	data, clock := machine.Pin(dataPin), machine.Pin(clockPin)
	for i := 0; i < 8; i++ {
		data.Set(bitAt(value, i, order))
		clock.High()
		clock.Low()
	}
	return nil
}

func (b *Backend) ShiftIn(dataPin, clockPin uint8, order core.BitOrder) (uint8, error) {
	if dataPin >= numPins || clockPin >= numPins {
		return 0, core.ErrNotSupported
	}
	data, clock := machine.Pin(dataPin), machine.Pin(clockPin)
	var v uint8
	for i := 0; i < 8; i++ {
		clock.High()
		if data.Get() {
			if order == core.MSBFirst {
				v |= 0x80 >> i
			} else {
				v |= 1 << i
			}
		}
		clock.Low()
	}
	return v, nil
}

func (b *Backend) PulseIn(pin uint8, state core.DigitalValue, timeout uint32) (uint32, error) {
	if pin >= numPins {
		return 0, core.ErrNotSupported
	}
	p := machine.Pin(pin)
	want := state == core.High
	deadline := hardwareUptime() + uint64(timeout)

	waitFor := func(level bool) bool {
		for p.Get() != level {
			if hardwareUptime() >= deadline {
				return false
			}
		}
		return true
	}
	if !waitFor(!want) || !waitFor(want) {
		return 0, nil
	}
	begin := hardwareUptime()
	if !waitFor(!want) {
		return 0, nil
	}
	width := uint32(hardwareUptime() - begin)
	if width == 0 {
		width = 1
	}
	return width, nil
}

func (b *Backend) Millis() uint32 {
	return uint32((hardwareUptime() - b.start) / 1000)
}

func (b *Backend) Micros() uint32 {
	return uint32(hardwareUptime() - b.start)
}

func (b *Backend) Delay(ms uint32) {
	time.Sleep(time.Duration(ms) * time.Millisecond)
}

func (b *Backend) DelayMicroseconds(us uint32) {
	busyWaitMicros(us)
}

// AttachInterrupt uses edge interrupts for every trigger. Level triggers
// fire on the edge that enters the level; the RP2040 level interrupts
// would retrigger for as long as the level holds.
func (b *Backend) AttachInterrupt(pin uint8, handler func(), trigger core.Trigger) error {
	if pin >= numPins {
		return core.ErrNotSupported
	}
	var change machine.PinChange
	var check func(bool) bool
	switch trigger {
	case core.TriggerRising:
		change = machine.PinRising
	case core.TriggerFalling:
		change = machine.PinFalling
	case core.TriggerChange:
		change = machine.PinToggle
	case core.TriggerHigh:
		change = machine.PinToggle
		check = func(level bool) bool { return level }
	case core.TriggerLow:
		change = machine.PinToggle
		check = func(level bool) bool { return !level }
	default:
		return core.ErrInvalidTrigger
	}

	p := machine.Pin(pin)
	p.SetInterrupt(0, nil)
	err := p.SetInterrupt(change, func(p machine.Pin) {
		if check != nil && !check(p.Get()) {
			return
		}
		handler()
	})
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.irqs[pin] = true
	b.mu.Unlock()
	return nil
}

func (b *Backend) DetachInterrupt(pin uint8) error {
	b.mu.Lock()
	attached := b.irqs[pin]
	delete(b.irqs, pin)
	b.mu.Unlock()
	if !attached {
		return nil
	}
	return machine.Pin(pin).SetInterrupt(0, nil)
}

var _ core.Backend = (*Backend)(nil)

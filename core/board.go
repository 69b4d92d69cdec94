package core

import (
	"sync"
	"sync/atomic"
)

// AnalogConfig is the process-wide analog configuration last applied through
// a Board. Every AnalogPin read or write on the board is affected by it.
// Last call wins; nothing is scoped to a pin or a view.
type AnalogConfig struct {
	Reference       AnalogReference
	ReadResolution  int32 // bits
	WriteResolution int32 // bits
}

// Backend defaults of the native runtime
const (
	DefaultReadResolution  = 10
	DefaultWriteResolution = 8
)

// Board is the explicit context pins are created from. It owns the backend
// binding, the analog configuration, the interrupt table and the optional
// mode tracker. A Board is safe for concurrent use; the backend it wraps
// decides what concurrent pin access means electrically.
type Board struct {
	backend Backend

	analogMu sync.Mutex
	analog   AnalogConfig

	irq      interruptTable
	tracker  *modeTracker
	initDone atomic.Bool
}

// Option configures a Board
type Option func(*Board)

// WithModeTracking records the last mode set on each pin and reports
// capability use that does not match it through the debug channel.
// Intended for development: mismatches are never turned into errors.
func WithModeTracking() Option {
	return func(b *Board) {
		b.tracker = newModeTracker()
	}
}

// WithAnalogConfig seeds the recorded analog configuration, for backends that
// boot with non-default settings. It does not call the backend.
func WithAnalogConfig(cfg AnalogConfig) Option {
	return func(b *Board) {
		b.analog = cfg
	}
}

// NewBoard binds a backend. The backend is not initialised until Init.
func NewBoard(backend Backend, opts ...Option) (*Board, error) {
	if backend == nil {
		return nil, ErrNoBackend
	}
	b := &Board{
		backend: backend,
		analog: AnalogConfig{
			Reference:       ReferenceDefault,
			ReadResolution:  DefaultReadResolution,
			WriteResolution: DefaultWriteResolution,
		},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Init initialises the backend. Subsequent calls are no-ops.
func (b *Board) Init() error {
	if b.initDone.Load() {
		return nil
	}
	if err := b.backend.Init(); err != nil {
		return err
	}
	b.initDone.Store(true)
	return nil
}

// Backend returns the bound backend
func (b *Board) Backend() Backend {
	return b.backend
}

// Pin returns the identity of pin n on this board.
// No check is made that n exists on the hardware.
func (b *Board) Pin(n uint8) Pin {
	return Pin{board: b, id: n}
}

// AnalogReference selects the analog voltage reference for every analog pin
func (b *Board) AnalogReference(ref AnalogReference) error {
	b.analogMu.Lock()
	defer b.analogMu.Unlock()
	if err := b.backend.AnalogReference(ref); err != nil {
		return err
	}
	b.analog.Reference = ref
	return nil
}

// AnalogReadResolution sets the size in bits of values returned by AnalogPin.Read.
// Bounds are the backend's responsibility.
func (b *Board) AnalogReadResolution(bits int32) error {
	b.analogMu.Lock()
	defer b.analogMu.Unlock()
	if err := b.backend.AnalogReadResolution(bits); err != nil {
		return err
	}
	b.analog.ReadResolution = bits
	return nil
}

// AnalogWriteResolution sets the size in bits of values accepted by AnalogPin.Write
func (b *Board) AnalogWriteResolution(bits int32) error {
	b.analogMu.Lock()
	defer b.analogMu.Unlock()
	if err := b.backend.AnalogWriteResolution(bits); err != nil {
		return err
	}
	b.analog.WriteResolution = bits
	return nil
}

// AnalogConfig returns the configuration last applied through this board
func (b *Board) AnalogConfig() AnalogConfig {
	b.analogMu.Lock()
	defer b.analogMu.Unlock()
	return b.analog
}

// Millis returns milliseconds since the backend was initialised
func (b *Board) Millis() uint32 {
	return b.backend.Millis()
}

// Micros returns microseconds since the backend was initialised
func (b *Board) Micros() uint32 {
	return b.backend.Micros()
}

// Delay blocks the caller for ms milliseconds. Only interrupt callbacks run
// on the board meanwhile.
func (b *Board) Delay(ms uint32) {
	b.backend.Delay(ms)
}

// DelayMicros blocks the caller for us microseconds
func (b *Board) DelayMicros(us uint32) {
	b.backend.DelayMicroseconds(us)
}

// ShiftOut clocks value out on data, one bit per clock pulse
func (b *Board) ShiftOut(data, clock DigitalPin, order BitOrder, value uint8) error {
	return b.backend.ShiftOut(data.Raw(), clock.Raw(), order, value)
}

// ShiftIn clocks a byte in from data
func (b *Board) ShiftIn(data, clock DigitalPin, order BitOrder) (uint8, error) {
	return b.backend.ShiftIn(data.Raw(), clock.Raw(), order)
}

// Close detaches every interrupt attached through this board
func (b *Board) Close() error {
	var firstErr error
	b.irq.each(func(pin uint8) {
		if err := b.Pin(pin).DetachInterrupt(); err != nil && firstErr == nil {
			firstErr = err
		}
	})
	return firstErr
}

// Global default board, for code that mirrors the free-function style of the
// native runtime (Millis(), Delay(...)).
var defaultBoard atomic.Pointer[Board]

// SetBoard is called by platform setup code to register the default board
func SetBoard(b *Board) {
	defaultBoard.Store(b)
}

// MustBoard returns the default board or panics if missing
func MustBoard() *Board {
	b := defaultBoard.Load()
	if b == nil {
		panic("pin board not configured")
	}
	return b
}

// Millis returns milliseconds since initialisation of the default board
func Millis() uint32 { return MustBoard().Millis() }

// Micros returns microseconds since initialisation of the default board
func Micros() uint32 { return MustBoard().Micros() }

// Delay blocks for ms milliseconds on the default board
func Delay(ms uint32) { MustBoard().Delay(ms) }

// DelayMicros blocks for us microseconds on the default board
func DelayMicros(us uint32) { MustBoard().DelayMicros(us) }

// Package linux implements core.Backend on Linux single-board computers
// through periph.io. Pin n resolves to the periph pin "GPIO<n>" unless a
// name override is configured. Analog inputs come from registered
// analog.PinADC devices; analog output uses the pin's PWM.
package linux

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"periph.io/x/conn/v3/analog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"gopins/core"
)

// ErrUnknownPin is returned when a pin number resolves to no host GPIO
var ErrUnknownPin = errors.New("unknown GPIO")

// DefaultPWMFrequency is used by AnalogWrite
const DefaultPWMFrequency = 1000 * physic.Hertz

// edgePoll bounds how long an interrupt watcher blocks before checking for
// detach
const edgePoll = 50 * time.Millisecond

type watcher struct {
	stop chan struct{}
	done chan struct{}
}

type tone struct {
	stop  chan struct{}
	done  chan struct{}
	timer *time.Timer
}

// Backend drives host GPIOs
type Backend struct {
	log      *slog.Logger
	resolve  func(name string) gpio.PinIO
	hostInit func() error
	names    map[uint8]string
	adcs     map[uint8]analog.PinADC
	pwmFreq  physic.Frequency

	mu       sync.Mutex
	pins     map[uint8]gpio.PinIO
	pulls    map[uint8]gpio.Pull
	analog   core.AnalogConfig
	start    time.Time
	watchers map[uint8]*watcher
	tones    map[uint8]*tone
}

var _ core.Backend = (*Backend)(nil)

// Option configures a Backend
type Option func(*Backend)

// WithPinNames overrides the periph name of some pins
func WithPinNames(names map[uint8]string) Option {
	return func(b *Backend) {
		for n, name := range names {
			b.names[n] = name
		}
	}
}

// WithADC makes AnalogRead on pin sample adc
func WithADC(pin uint8, adc analog.PinADC) Option {
	return func(b *Backend) {
		b.adcs[pin] = adc
	}
}

// WithPWMFrequency sets the carrier frequency of AnalogWrite
func WithPWMFrequency(f physic.Frequency) Option {
	return func(b *Backend) {
		b.pwmFreq = f
	}
}

// WithLogger sets the logger; the default is slog.Default()
func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) {
		b.log = l
	}
}

// WithResolver replaces the periph pin registry lookup and host driver
// initialisation, for hosts with custom pin drivers
func WithResolver(resolve func(name string) gpio.PinIO, hostInit func() error) Option {
	return func(b *Backend) {
		b.resolve = resolve
		b.hostInit = hostInit
	}
}

// New creates a backend. Host drivers are loaded by Init.
func New(opts ...Option) *Backend {
	b := &Backend{
		log:     slog.Default(),
		resolve: gpioreg.ByName,
		hostInit: func() error {
			_, err := host.Init()
			return err
		},
		names:    make(map[uint8]string),
		adcs:     make(map[uint8]analog.PinADC),
		pwmFreq:  DefaultPWMFrequency,
		pins:     make(map[uint8]gpio.PinIO),
		pulls:    make(map[uint8]gpio.Pull),
		watchers: make(map[uint8]*watcher),
		tones:    make(map[uint8]*tone),
		analog: core.AnalogConfig{
			Reference:       core.ReferenceDefault,
			ReadResolution:  core.DefaultReadResolution,
			WriteResolution: core.DefaultWriteResolution,
		},
		start: time.Now(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.log.With("component", "linux")
	return b
}

func (b *Backend) Init() error {
	if err := b.hostInit(); err != nil {
		return fmt.Errorf("failed to initialise periph host: %w", err)
	}
	b.mu.Lock()
	b.start = time.Now()
	b.mu.Unlock()
	b.log.Info("host drivers loaded")
	return nil
}

// Close detaches all watchers and stops tones
func (b *Backend) Close() error {
	b.mu.Lock()
	pins := make([]uint8, 0, len(b.watchers)+len(b.tones))
	for p := range b.watchers {
		pins = append(pins, p)
	}
	for p := range b.tones {
		pins = append(pins, p)
	}
	b.mu.Unlock()
	for _, p := range pins {
		b.DetachInterrupt(p)
		b.NoTone(p)
	}
	return nil
}

func (b *Backend) pin(n uint8) (gpio.PinIO, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.pins[n]; ok {
		return p, nil
	}
	name, ok := b.names[n]
	if !ok {
		name = fmt.Sprintf("GPIO%d", n)
	}
	p := b.resolve(name)
	if p == nil {
		return nil, fmt.Errorf("%w: pin %d (%s)", ErrUnknownPin, n, name)
	}
	b.pins[n] = p
	return p, nil
}

func level(v core.DigitalValue) gpio.Level {
	return gpio.Level(v == core.High)
}

func (b *Backend) SetMode(pin uint8, mode core.Mode) error {
	p, err := b.pin(pin)
	if err != nil {
		return err
	}
	switch mode {
	case core.Output:
		return p.Out(gpio.Low)
	case core.InputPullUp:
		b.setPull(pin, gpio.PullUp)
		return p.In(gpio.PullUp, gpio.NoEdge)
	default:
		b.setPull(pin, gpio.Float)
		return p.In(gpio.Float, gpio.NoEdge)
	}
}

func (b *Backend) setPull(pin uint8, pull gpio.Pull) {
	b.mu.Lock()
	b.pulls[pin] = pull
	b.mu.Unlock()
}

func (b *Backend) pull(pin uint8) gpio.Pull {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.pulls[pin]; ok {
		return p
	}
	return gpio.PullNoChange
}

func (b *Backend) DigitalWrite(pin uint8, value core.DigitalValue) error {
	p, err := b.pin(pin)
	if err != nil {
		return err
	}
	return p.Out(level(value))
}

func (b *Backend) DigitalRead(pin uint8) (int32, error) {
	p, err := b.pin(pin)
	if err != nil {
		return 0, err
	}
	if p.Read() == gpio.High {
		return 1, nil
	}
	return 0, nil
}

// AnalogWrite maps value at the write resolution onto a PWM duty cycle
func (b *Backend) AnalogWrite(pin uint8, value int32) error {
	p, err := b.pin(pin)
	if err != nil {
		return err
	}
	b.mu.Lock()
	bits := b.analog.WriteResolution
	b.mu.Unlock()
	return p.PWM(dutyFor(value, bits), b.pwmFreq)
}

func dutyFor(value, bits int32) gpio.Duty {
	if value <= 0 {
		return 0
	}
	if bits > 30 {
		bits = 30
	}
	full := int64(1)<<uint(bits) - 1
	if int64(value) >= full {
		return gpio.DutyMax
	}
	return gpio.Duty(int64(value) * int64(gpio.DutyMax) / full)
}

// AnalogRead scales the ADC's raw sample onto the read resolution
func (b *Backend) AnalogRead(pin uint8) (int32, error) {
	b.mu.Lock()
	adc, ok := b.adcs[pin]
	bits := b.analog.ReadResolution
	b.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("analog read on pin %d: %w", pin, core.ErrNotSupported)
	}
	s, err := adc.Read()
	if err != nil {
		return 0, err
	}
	lo, hi := adc.Range()
	return scaleRaw(s.Raw, lo.Raw, hi.Raw, bits), nil
}

func scaleRaw(raw, lo, hi, bits int32) int32 {
	if hi <= lo || bits <= 0 {
		return 0
	}
	if raw < lo {
		raw = lo
	}
	if raw > hi {
		raw = hi
	}
	if bits > 30 {
		bits = 30
	}
	full := int64(1)<<uint(bits) - 1
	return int32(int64(raw-lo) * full / int64(hi-lo))
}

// AnalogReference is recorded only; the ADC reference is fixed by hardware
func (b *Backend) AnalogReference(ref core.AnalogReference) error {
	b.mu.Lock()
	b.analog.Reference = ref
	b.mu.Unlock()
	return nil
}

func (b *Backend) AnalogReadResolution(bits int32) error {
	b.mu.Lock()
	b.analog.ReadResolution = bits
	b.mu.Unlock()
	return nil
}

func (b *Backend) AnalogWriteResolution(bits int32) error {
	b.mu.Lock()
	b.analog.WriteResolution = bits
	b.mu.Unlock()
	return nil
}

// Tone uses hardware PWM at 50% duty when the pin has it and toggles the
// pin from a goroutine otherwise
func (b *Backend) Tone(pin uint8, frequency uint32, duration uint32) error {
	p, err := b.pin(pin)
	if err != nil {
		return err
	}
	b.NoTone(pin)
	if frequency == 0 {
		return p.Out(gpio.Low)
	}

	t := &tone{stop: make(chan struct{}), done: make(chan struct{})}
	if err := p.PWM(gpio.DutyHalf, physic.Frequency(frequency)*physic.Hertz); err == nil {
		close(t.done)
	} else {
		go toggle(p, halfPeriod(frequency), t)
	}

	// the tone must be registered before its stop timer can run
	b.mu.Lock()
	b.tones[pin] = t
	if duration > 0 {
		t.timer = time.AfterFunc(time.Duration(duration)*time.Millisecond, func() {
			b.stopTone(pin, t)
		})
	}
	b.mu.Unlock()
	return nil
}

// halfPeriod returns the toggle interval for frequency, never below 1ns
func halfPeriod(frequency uint32) time.Duration {
	half := time.Second / (2 * time.Duration(frequency))
	if half < 1 {
		half = 1
	}
	return half
}

func toggle(p gpio.PinIO, half time.Duration, t *tone) {
	defer close(t.done)
	ticker := time.NewTicker(half)
	defer ticker.Stop()
	l := gpio.Low
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			l = !l
			p.Out(l)
		}
	}
}

// stopTone ends t if it is still the pin's tone
func (b *Backend) stopTone(pin uint8, t *tone) {
	b.mu.Lock()
	if b.tones[pin] != t {
		b.mu.Unlock()
		return
	}
	delete(b.tones, pin)
	p := b.pins[pin]
	b.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
	}
	close(t.stop)
	<-t.done
	if p != nil {
		p.Out(gpio.Low)
	}
}

func (b *Backend) NoTone(pin uint8) error {
	b.mu.Lock()
	t := b.tones[pin]
	b.mu.Unlock()
	if t != nil {
		b.stopTone(pin, t)
	}
	return nil
}

func (b *Backend) ShiftOut(dataPin, clockPin uint8, order core.BitOrder, value uint8) error {
	data, err := b.pin(dataPin)
	if err != nil {
		return err
	}
	clock, err := b.pin(clockPin)
	if err != nil {
		return err
	}
	for i := 0; i < 8; i++ {
		if err := data.Out(gpio.Level(bitAt(value, i, order))); err != nil {
			return err
		}
		if err := clock.Out(gpio.High); err != nil {
			return err
		}
		if err := clock.Out(gpio.Low); err != nil {
			return err
		}
	}
	return nil
}

func (b *Backend) ShiftIn(dataPin, clockPin uint8, order core.BitOrder) (uint8, error) {
	data, err := b.pin(dataPin)
	if err != nil {
		return 0, err
	}
	clock, err := b.pin(clockPin)
	if err != nil {
		return 0, err
	}
	var value uint8
	for i := 0; i < 8; i++ {
		if err := clock.Out(gpio.High); err != nil {
			return 0, err
		}
		if data.Read() == gpio.High {
			value = setBit(value, i, order)
		}
		if err := clock.Out(gpio.Low); err != nil {
			return 0, err
		}
	}
	return value, nil
}

func bitAt(value uint8, i int, order core.BitOrder) bool {
	if order == core.LSBFirst {
		return value&(1<<uint(i)) != 0
	}
	return value&(0x80>>uint(i)) != 0
}

func setBit(value uint8, i int, order core.BitOrder) uint8 {
	if order == core.LSBFirst {
		return value | 1<<uint(i)
	}
	return value | 0x80>>uint(i)
}

// PulseIn polls the pin. Resolution is limited by the cost of a GPIO read.
func (b *Backend) PulseIn(pin uint8, state core.DigitalValue, timeout uint32) (uint32, error) {
	p, err := b.pin(pin)
	if err != nil {
		return 0, err
	}
	want := level(state)
	deadline := time.Now().Add(time.Duration(timeout) * time.Microsecond)

	waitFor := func(l gpio.Level) bool {
		for p.Read() != l {
			if time.Now().After(deadline) {
				return false
			}
		}
		return true
	}
	if !waitFor(!want) || !waitFor(want) {
		return 0, nil
	}
	begin := time.Now()
	if !waitFor(!want) {
		return 0, nil
	}
	width := uint32(time.Since(begin) / time.Microsecond)
	if width == 0 {
		width = 1
	}
	return width, nil
}

func (b *Backend) elapsed() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return time.Since(b.start)
}

func (b *Backend) Millis() uint32 {
	return uint32(b.elapsed() / time.Millisecond)
}

func (b *Backend) Micros() uint32 {
	return uint32(b.elapsed() / time.Microsecond)
}

func (b *Backend) Delay(ms uint32) {
	time.Sleep(time.Duration(ms) * time.Millisecond)
}

func (b *Backend) DelayMicroseconds(us uint32) {
	time.Sleep(time.Duration(us) * time.Microsecond)
}

func edgeFor(trigger core.Trigger) gpio.Edge {
	switch trigger {
	case core.TriggerRising:
		return gpio.RisingEdge
	case core.TriggerFalling:
		return gpio.FallingEdge
	default:
		return gpio.BothEdges
	}
}

// AttachInterrupt arms edge detection and starts a watcher goroutine.
// Level triggers fire on each entry into the level.
func (b *Backend) AttachInterrupt(pin uint8, handler func(), trigger core.Trigger) error {
	p, err := b.pin(pin)
	if err != nil {
		return err
	}
	b.DetachInterrupt(pin)
	if err := p.In(b.pull(pin), edgeFor(trigger)); err != nil {
		return fmt.Errorf("failed to arm edge detection on pin %d: %w", pin, err)
	}

	w := &watcher{stop: make(chan struct{}), done: make(chan struct{})}
	b.mu.Lock()
	b.watchers[pin] = w
	b.mu.Unlock()

	go func() {
		defer close(w.done)
		for {
			select {
			case <-w.stop:
				return
			default:
			}
			if !p.WaitForEdge(edgePoll) {
				continue
			}
			switch trigger {
			case core.TriggerLow:
				if p.Read() != gpio.Low {
					continue
				}
			case core.TriggerHigh:
				if p.Read() != gpio.High {
					continue
				}
			}
			handler()
		}
	}()
	return nil
}

func (b *Backend) DetachInterrupt(pin uint8) error {
	b.mu.Lock()
	w := b.watchers[pin]
	delete(b.watchers, pin)
	p := b.pins[pin]
	b.mu.Unlock()
	if w == nil {
		return nil
	}
	// not waiting for w.done: a handler may detach its own pin
	close(w.stop)
	return p.In(b.pull(pin), gpio.NoEdge)
}

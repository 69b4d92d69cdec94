// Package sim is a simulated pin backend. It keeps a virtual microsecond clock,
// per-pin electrical state and optional wiring between pins, so code written
// against core.Board can be exercised without hardware.
//
// Pin levels are resolved as follows: an Output pin reads its own latch; an
// externally driven pin (Drive) reads the driven level; a pin wired to an
// Output pin (Connect) reads that pin's latch; an InputPullUp pin reads High;
// anything else reads Low.
//
// Interrupt handlers run on a dedicated dispatcher goroutine, concurrently with
// the caller that caused the edge. WaitIdle blocks until the dispatcher has
// drained. WithSyncInterrupts runs them inline instead.
package sim

import (
	"sync"
	"time"

	"gopins/core"
)

type toneState struct {
	active    bool
	frequency uint32
	duration  uint32
	stop      *timer
}

type pinState struct {
	mode       core.Mode
	configured bool
	out        core.DigitalValue
	driven     bool
	drive      core.DigitalValue
	level      core.DigitalValue
	rawForced  bool
	raw        int32
	analogIn   uint16
	analogOut  int32
	tone       toneState
	handler    func()
	trigger    core.Trigger
	attached   bool
}

// Backend implements core.Backend in memory
type Backend struct {
	mu sync.Mutex

	now      uint64 // virtual microseconds since construction
	realtime bool
	start    time.Time
	inits    int

	pins   [256]pinState
	peers  [256][]uint8
	timers *timer

	reference core.AnalogReference
	readBits  int32
	writeBits int32

	shiftLog     map[uint8][]byte
	shiftInQueue map[uint8][]byte

	syncIRQ  bool
	idleMu   sync.Mutex // guards irqQueue and pending
	idleCond *sync.Cond
	irqQueue []func()
	irqWake  chan struct{}
	pending  int
	closed   chan struct{}
	doneChan chan struct{}
}

// Option configures a simulated backend
type Option func(*Backend)

// WithRealtime makes Delay sleep for real and the clock follow wall time
func WithRealtime() Option {
	return func(s *Backend) {
		s.realtime = true
	}
}

// WithSyncInterrupts runs interrupt handlers inline on the goroutine that
// caused the edge
func WithSyncInterrupts() Option {
	return func(s *Backend) {
		s.syncIRQ = true
	}
}

// New creates a simulated backend
func New(opts ...Option) *Backend {
	s := &Backend{
		start:        time.Now(),
		reference:    core.ReferenceDefault,
		readBits:     core.DefaultReadResolution,
		writeBits:    core.DefaultWriteResolution,
		shiftLog:     make(map[uint8][]byte),
		shiftInQueue: make(map[uint8][]byte),
		closed:       make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
	s.idleCond = sync.NewCond(&s.idleMu)
	for _, opt := range opts {
		opt(s)
	}
	if s.syncIRQ {
		close(s.doneChan)
	} else {
		s.irqWake = make(chan struct{}, 1)
		go s.dispatchLoop()
	}
	return s
}

var _ core.Backend = (*Backend)(nil)

// Close stops the interrupt dispatcher
func (s *Backend) Close() error {
	select {
	case <-s.closed:
		return nil
	default:
	}
	close(s.closed)
	<-s.doneChan
	return nil
}

func (s *Backend) dispatchLoop() {
	defer close(s.doneChan)
	for {
		s.idleMu.Lock()
		if len(s.irqQueue) == 0 {
			s.idleMu.Unlock()
			select {
			case <-s.irqWake:
				continue
			case <-s.closed:
				s.drop()
				return
			}
		}
		fn := s.irqQueue[0]
		s.irqQueue[0] = nil
		s.irqQueue = s.irqQueue[1:]
		s.idleMu.Unlock()

		fn()

		s.idleMu.Lock()
		s.pending--
		if s.pending == 0 {
			s.idleCond.Broadcast()
		}
		s.idleMu.Unlock()
	}
}

// drop discards queued handlers once the dispatcher has stopped
func (s *Backend) drop() {
	s.idleMu.Lock()
	s.irqQueue = nil
	s.pending = 0
	s.idleCond.Broadcast()
	s.idleMu.Unlock()
}

// fire hands triggered handlers to the dispatcher. Must be called without
// s.mu held. The queue is unbounded, so handlers may themselves cause edges.
func (s *Backend) fire(handlers []func()) {
	if len(handlers) == 0 {
		return
	}
	if s.syncIRQ {
		for _, h := range handlers {
			h()
		}
		return
	}
	s.idleMu.Lock()
	select {
	case <-s.closed:
		s.idleMu.Unlock()
		return
	default:
	}
	s.irqQueue = append(s.irqQueue, handlers...)
	s.pending += len(handlers)
	s.idleMu.Unlock()

	select {
	case s.irqWake <- struct{}{}:
	default:
	}
}

// WaitIdle blocks until every interrupt handler queued so far has run
func (s *Backend) WaitIdle() {
	s.idleMu.Lock()
	for s.pending > 0 {
		s.idleCond.Wait()
	}
	s.idleMu.Unlock()
}

// levelOf resolves the electrical level of a pin. Caller holds s.mu.
func (s *Backend) levelOf(pin uint8) core.DigitalValue {
	ps := &s.pins[pin]
	if ps.configured && ps.mode == core.Output {
		return ps.out
	}
	if ps.driven {
		return ps.drive
	}
	for _, peer := range s.peers[pin] {
		pp := &s.pins[peer]
		if pp.configured && pp.mode == core.Output {
			return pp.out
		}
	}
	if ps.configured && ps.mode == core.InputPullUp {
		return core.High
	}
	return core.Low
}

// settle recomputes every pin level and collects the handlers whose trigger
// the changes satisfy. Caller holds s.mu.
func (s *Backend) settle() []func() {
	var fired []func()
	for i := range s.pins {
		next := s.levelOf(uint8(i))
		ps := &s.pins[i]
		if next == ps.level {
			continue
		}
		prev := ps.level
		ps.level = next
		if ps.attached && ps.trigger.Matches(prev, next) {
			fired = append(fired, ps.handler)
		}
	}
	return fired
}

// sync moves the virtual clock to wall time in realtime mode. Caller holds s.mu.
func (s *Backend) sync() []func() {
	if !s.realtime {
		return nil
	}
	return s.advance(uint64(time.Since(s.start).Microseconds()))
}

func (s *Backend) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inits++
	return nil
}

func (s *Backend) SetMode(pin uint8, mode core.Mode) error {
	s.mu.Lock()
	ps := &s.pins[pin]
	ps.mode = mode
	ps.configured = true
	fired := s.settle()
	s.mu.Unlock()
	s.fire(fired)
	return nil
}

func (s *Backend) DigitalWrite(pin uint8, value core.DigitalValue) error {
	s.mu.Lock()
	s.pins[pin].out = value
	fired := s.settle()
	s.mu.Unlock()
	s.fire(fired)
	return nil
}

func (s *Backend) DigitalRead(pin uint8) (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps := &s.pins[pin]
	if ps.rawForced {
		return ps.raw, nil
	}
	return int32(s.levelOf(pin)), nil
}

func (s *Backend) AnalogWrite(pin uint8, value int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pins[pin].analogOut = value
	return nil
}

func (s *Backend) AnalogRead(pin uint8) (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return scaleSample(s.pins[pin].analogIn, s.readBits), nil
}

// scaleSample converts a 16-bit normalised sample to the given resolution
func scaleSample(sample uint16, bits int32) int32 {
	switch {
	case bits <= 0:
		return 0
	case bits < 16:
		return int32(sample >> uint(16-bits))
	case bits > 31:
		bits = 31
	}
	return int32(uint32(sample) << uint(bits-16))
}

func (s *Backend) AnalogReference(ref core.AnalogReference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reference = ref
	return nil
}

func (s *Backend) AnalogReadResolution(bits int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readBits = bits
	return nil
}

func (s *Backend) AnalogWriteResolution(bits int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeBits = bits
	return nil
}

func (s *Backend) Tone(pin uint8, frequency uint32, duration uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := &s.pins[pin].tone
	s.removeTimer(ts.stop)
	ts.stop = nil
	ts.active = true
	ts.frequency = frequency
	ts.duration = duration
	if duration > 0 {
		ts.stop = &timer{
			WakeTime: s.now + uint64(duration)*1000,
			Handler: func(*timer) uint8 {
				ts.active = false
				ts.stop = nil
				return sfDone
			},
		}
		s.insertTimer(ts.stop)
	}
	return nil
}

func (s *Backend) NoTone(pin uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := &s.pins[pin].tone
	s.removeTimer(ts.stop)
	*ts = toneState{}
	return nil
}

func (s *Backend) ShiftOut(dataPin, clockPin uint8, order core.BitOrder, value uint8) error {
	s.mu.Lock()
	var fired []func()
	for i := 0; i < 8; i++ {
		s.pins[dataPin].out = core.DigitalValueFromBool(bitAt(value, i, order))
		fired = append(fired, s.settle()...)
		s.pins[clockPin].out = core.High
		fired = append(fired, s.settle()...)
		s.pins[clockPin].out = core.Low
		fired = append(fired, s.settle()...)
	}
	s.shiftLog[dataPin] = append(s.shiftLog[dataPin], value)
	s.mu.Unlock()
	s.fire(fired)
	return nil
}

func (s *Backend) ShiftIn(dataPin, clockPin uint8, order core.BitOrder) (uint8, error) {
	s.mu.Lock()
	var fired []func()
	ps := &s.pins[dataPin]
	queued, hasQueued := popByte(s.shiftInQueue, dataPin)
	savedDriven, savedDrive := ps.driven, ps.drive

	var value uint8
	for i := 0; i < 8; i++ {
		if hasQueued {
			ps.driven = true
			ps.drive = core.DigitalValueFromBool(bitAt(queued, i, order))
		}
		s.pins[clockPin].out = core.High
		fired = append(fired, s.settle()...)
		if s.levelOf(dataPin) == core.High {
			value = setBit(value, i, order)
		}
		s.pins[clockPin].out = core.Low
		fired = append(fired, s.settle()...)
	}
	if hasQueued {
		ps.driven, ps.drive = savedDriven, savedDrive
		fired = append(fired, s.settle()...)
	}
	s.mu.Unlock()
	s.fire(fired)
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

func popByte(queues map[uint8][]byte, pin uint8) (byte, bool) {
	q := queues[pin]
	if len(q) == 0 {
		return 0, false
	}
	queues[pin] = q[1:]
	return q[0], true
}

// PulseIn follows the virtual schedule: it waits for any pulse in progress to
// end, for the pin to reach state, then for it to leave state, running
// scheduled events on the way. The clock advances by the time spent.
func (s *Backend) PulseIn(pin uint8, state core.DigitalValue, timeout uint32) (uint32, error) {
	s.mu.Lock()
	fired := s.sync()
	deadline := s.now + uint64(timeout)

	var width uint32
	if s.waitLevel(pin, state.Invert(), deadline, &fired) &&
		s.waitLevel(pin, state, deadline, &fired) {
		begin := s.now
		if s.waitLevel(pin, state.Invert(), deadline, &fired) {
			width = uint32(s.now - begin)
			if width == 0 {
				width = 1
			}
		}
	}
	s.mu.Unlock()
	s.fire(fired)
	return width, nil
}

// waitLevel runs scheduled events until the pin reads want or the deadline
// passes. Caller holds s.mu.
func (s *Backend) waitLevel(pin uint8, want core.DigitalValue, deadline uint64, fired *[]func()) bool {
	for {
		if s.levelOf(pin) == want {
			return true
		}
		if s.timers == nil || s.timers.WakeTime > deadline {
			if deadline > s.now {
				s.now = deadline
			}
			return false
		}
		*fired = append(*fired, s.runNextTimer()...)
	}
}

func (s *Backend) Millis() uint32 {
	return uint32(s.clock() / 1000)
}

func (s *Backend) Micros() uint32 {
	return uint32(s.clock())
}

func (s *Backend) clock() uint64 {
	s.mu.Lock()
	fired := s.sync()
	now := s.now
	s.mu.Unlock()
	s.fire(fired)
	return now
}

func (s *Backend) Delay(ms uint32) {
	s.delay(uint64(ms) * 1000)
}

func (s *Backend) DelayMicroseconds(us uint32) {
	s.delay(uint64(us))
}

func (s *Backend) delay(us uint64) {
	if us == 0 {
		return
	}
	if s.realtime {
		time.Sleep(time.Duration(us) * time.Microsecond)
		s.clock()
		return
	}
	s.mu.Lock()
	fired := s.advance(s.now + us)
	s.mu.Unlock()
	s.fire(fired)
}

func (s *Backend) AttachInterrupt(pin uint8, handler func(), trigger core.Trigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps := &s.pins[pin]
	ps.handler = handler
	ps.trigger = trigger
	ps.attached = true
	return nil
}

func (s *Backend) DetachInterrupt(pin uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps := &s.pins[pin]
	ps.handler = nil
	ps.attached = false
	return nil
}

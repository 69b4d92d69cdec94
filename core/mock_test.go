package core

import (
	"errors"
	"sync"
)

// mockCall records one backend invocation
type mockCall struct {
	op    string
	pin   uint8
	value int64
}

// MockBackend is a test implementation of Backend that records every call
type MockBackend struct {
	mu       sync.Mutex
	calls    []mockCall
	raw      map[uint8]int32
	analog   map[uint8]int32
	pulse    uint32
	shiftIn  uint8
	handlers map[uint8]func()
	failOn   string
	clock    uint32
}

var errMock = errors.New("mock failure")

func NewMockBackend() *MockBackend {
	return &MockBackend{
		raw:      make(map[uint8]int32),
		analog:   make(map[uint8]int32),
		handlers: make(map[uint8]func()),
	}
}

func (m *MockBackend) record(op string, pin uint8, value int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, mockCall{op, pin, value})
	if m.failOn == op {
		return errMock
	}
	return nil
}

func (m *MockBackend) Calls() []mockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mockCall(nil), m.calls...)
}

func (m *MockBackend) last() mockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return mockCall{}
	}
	return m.calls[len(m.calls)-1]
}

// fire invokes the handler the backend holds for pin, as hardware would
func (m *MockBackend) fire(pin uint8) {
	m.mu.Lock()
	h := m.handlers[pin]
	m.mu.Unlock()
	if h != nil {
		h()
	}
}

func (m *MockBackend) Init() error { return m.record("init", 0, 0) }

func (m *MockBackend) SetMode(pin uint8, mode Mode) error {
	return m.record("set_mode", pin, int64(mode))
}

func (m *MockBackend) DigitalWrite(pin uint8, value DigitalValue) error {
	return m.record("digital_write", pin, int64(value))
}

func (m *MockBackend) DigitalRead(pin uint8) (int32, error) {
	if err := m.record("digital_read", pin, 0); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.raw[pin], nil
}

func (m *MockBackend) AnalogWrite(pin uint8, value int32) error {
	return m.record("analog_write", pin, int64(value))
}

func (m *MockBackend) AnalogRead(pin uint8) (int32, error) {
	if err := m.record("analog_read", pin, 0); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.analog[pin], nil
}

func (m *MockBackend) AnalogReference(ref AnalogReference) error {
	return m.record("analog_reference", 0, int64(ref))
}

func (m *MockBackend) AnalogReadResolution(bits int32) error {
	return m.record("analog_read_resolution", 0, int64(bits))
}

func (m *MockBackend) AnalogWriteResolution(bits int32) error {
	return m.record("analog_write_resolution", 0, int64(bits))
}

func (m *MockBackend) Tone(pin uint8, frequency uint32, duration uint32) error {
	return m.record("tone", pin, int64(frequency)<<32|int64(duration))
}

func (m *MockBackend) NoTone(pin uint8) error {
	return m.record("no_tone", pin, 0)
}

func (m *MockBackend) ShiftOut(dataPin, clockPin uint8, order BitOrder, value uint8) error {
	return m.record("shift_out", dataPin, int64(clockPin)<<16|int64(order)<<8|int64(value))
}

func (m *MockBackend) ShiftIn(dataPin, clockPin uint8, order BitOrder) (uint8, error) {
	if err := m.record("shift_in", dataPin, int64(clockPin)<<16|int64(order)<<8); err != nil {
		return 0, err
	}
	return m.shiftIn, nil
}

func (m *MockBackend) PulseIn(pin uint8, state DigitalValue, timeout uint32) (uint32, error) {
	if err := m.record("pulse_in", pin, int64(state)<<32|int64(timeout)); err != nil {
		return 0, err
	}
	return m.pulse, nil
}

func (m *MockBackend) Millis() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clock / 1000
}

func (m *MockBackend) Micros() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clock
}

func (m *MockBackend) Delay(ms uint32) {
	m.record("delay", 0, int64(ms))
	m.mu.Lock()
	m.clock += ms * 1000
	m.mu.Unlock()
}

func (m *MockBackend) DelayMicroseconds(us uint32) {
	m.record("delay_us", 0, int64(us))
	m.mu.Lock()
	m.clock += us
	m.mu.Unlock()
}

func (m *MockBackend) AttachInterrupt(pin uint8, handler func(), trigger Trigger) error {
	if err := m.record("attach_interrupt", pin, int64(trigger)); err != nil {
		return err
	}
	m.mu.Lock()
	m.handlers[pin] = handler
	m.mu.Unlock()
	return nil
}

func (m *MockBackend) DetachInterrupt(pin uint8) error {
	if err := m.record("detach_interrupt", pin, 0); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.handlers, pin)
	m.mu.Unlock()
	return nil
}

func newTestBoard(opts ...Option) (*Board, *MockBackend) {
	m := NewMockBackend()
	b, err := NewBoard(m, opts...)
	if err != nil {
		panic(err)
	}
	return b, m
}

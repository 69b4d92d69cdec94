// Package remote implements core.Backend by driving a device that runs the
// firmware command server. Every backend call becomes one protocol message;
// calls that return data wait for the matching response.
package remote

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"gopins/core"
	"gopins/host/serial"
	"gopins/protocol"
)

var (
	// ErrUnknownCommand is returned when the device dictionary lacks a message
	ErrUnknownCommand = errors.New("command not in device dictionary")

	// ErrUnknownPin is returned by PinByName for names the device does not list
	ErrUnknownPin = errors.New("unknown pin name")

	// ErrNoResponse is returned when an acknowledged command gets no reply
	ErrNoResponse = errors.New("no response from device")
)

// DeviceError is a command failure reported by the device
type DeviceError struct {
	Command string
	ID      uint16
	Code    uint8
}

func (e *DeviceError) Error() string {
	name := e.Command
	if name == "" {
		name = fmt.Sprintf("command %d", e.ID)
	}
	return fmt.Sprintf("device rejected %s: %s", name, codeText(e.Code))
}

// Unwrap maps the codes that have a local equivalent
func (e *DeviceError) Unwrap() error {
	switch e.Code {
	case protocol.ErrCodeUnsupported:
		return core.ErrNotSupported
	case protocol.ErrCodeUnknown:
		return ErrUnknownCommand
	}
	return nil
}

func codeText(code uint8) string {
	switch code {
	case protocol.ErrCodeDecode:
		return "malformed arguments"
	case protocol.ErrCodeInvalidArg:
		return "invalid argument"
	case protocol.ErrCodeBackend:
		return "backend failure"
	case protocol.ErrCodeUnsupported:
		return "not supported"
	case protocol.ErrCodeUnknown:
		return "unknown command"
	}
	return fmt.Sprintf("code %d", code)
}

const eventQueueSize = 64

// Backend is a core.Backend on the far side of a protocol link
type Backend struct {
	transport *protocol.HostTransport
	log       *slog.Logger
	timeout   time.Duration

	dictMu sync.RWMutex
	dict   *Dictionary

	// callMu keeps one command in flight so responses pair with requests
	callMu sync.Mutex

	waitMu   sync.Mutex
	waitName string
	waitCh   chan protocol.Args
	errCh    chan *DeviceError

	irqMu    sync.Mutex
	handlers map[uint8]func()
	events   chan uint8

	lastClock atomic.Uint64 // millis<<32 | micros

	closeOnce sync.Once
	stop      chan struct{}
	done      chan struct{}
}

var _ core.Backend = (*Backend)(nil)

// Option configures a Backend
type Option func(*Backend)

// WithLogger sets the logger; the default is slog.Default()
func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) {
		b.log = l
	}
}

// WithTimeout sets how long a command may take beyond its own blocking time
func WithTimeout(d time.Duration) Option {
	return func(b *Backend) {
		b.timeout = d
	}
}

// Dial opens a serial (or tcp:) device and connects to it
func Dial(cfg *serial.Config, opts ...Option) (*Backend, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", cfg.Device, err)
	}
	b, err := New(port, opts...)
	if err != nil {
		port.Close()
		return nil, err
	}
	return b, nil
}

// New connects over port and downloads the device dictionary. The first
// block sent resets the device's protocol state, detaching any interrupts
// left by a previous host.
func New(port io.ReadWriteCloser, opts ...Option) (*Backend, error) {
	b := &Backend{
		log:      slog.Default(),
		timeout:  protocol.DefaultAckTimeout,
		dict:     bootstrapDictionary(),
		errCh:    make(chan *DeviceError, 4),
		handlers: make(map[uint8]func()),
		events:   make(chan uint8, eventQueueSize),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.log.With("component", "remote")

	b.transport = protocol.NewHostTransport(port)
	b.transport.SetResponseHandler(b.handleResponse)
	go b.dispatchLoop()

	if err := b.retrieveDictionary(); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

// retrieveDictionary downloads the dictionary in identify chunks
func (b *Backend) retrieveDictionary() error {
	var data []byte
	for {
		args, err := b.call(protocol.MsgIdentify, protocol.MsgIdentifyResponse, b.timeout,
			int32(len(data)), protocol.IdentifyChunkMax)
		if err != nil {
			return fmt.Errorf("failed to retrieve dictionary chunk at offset %d: %w", len(data), err)
		}
		if off := args.Uint("offset"); off != uint32(len(data)) {
			return fmt.Errorf("offset mismatch: expected %d, got %d", len(data), off)
		}
		chunk := args.Buffers["data"]
		if len(chunk) == 0 {
			break
		}
		data = append(data, chunk...)
	}

	dict, err := ParseDictionary(data)
	if err != nil {
		return err
	}
	b.dictMu.Lock()
	b.dict = dict
	b.dictMu.Unlock()

	b.log.Info("dictionary retrieved", "bytes", len(data), "version", dict.Version,
		"commands", len(dict.Commands), "responses", len(dict.Responses))
	return nil
}

// Dictionary returns the device dictionary
func (b *Backend) Dictionary() *Dictionary {
	b.dictMu.RLock()
	defer b.dictMu.RUnlock()
	return b.dict
}

// PinByName resolves a pin name published by the device
func (b *Backend) PinByName(name string) (uint8, error) {
	v, ok := b.Dictionary().Enumeration("pin", name)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownPin, name)
	}
	return uint8(v), nil
}

// handleResponse runs on the transport reader
func (b *Backend) handleResponse(id uint16, data *[]byte) error {
	dict := b.Dictionary()
	mf, ok := dict.LookupID(id)
	if !ok {
		b.log.Warn("message not in dictionary", "id", id)
		return fmt.Errorf("%w: id %d", protocol.ErrUnknownMessage, id)
	}
	args, err := mf.Decode(data)
	if err != nil {
		b.log.Warn("bad message", "name", mf.Name, "err", err)
		return err
	}

	switch mf.Name {
	case protocol.MsgInterruptEvent:
		pin := uint8(args.Values["pin"])
		select {
		case b.events <- pin:
		default:
			b.log.Warn("interrupt queue full, event dropped", "pin", pin)
		}
	case protocol.MsgError:
		e := &DeviceError{ID: uint16(args.Values["command"]), Code: uint8(args.Values["code"])}
		if cmd, ok := dict.LookupID(e.ID); ok {
			e.Command = cmd.Name
		}
		select {
		case b.errCh <- e:
		default:
		}
	default:
		b.waitMu.Lock()
		if b.waitCh != nil && b.waitName == mf.Name {
			select {
			case b.waitCh <- args:
			default:
			}
		}
		b.waitMu.Unlock()
	}
	return nil
}

// call sends one command and, when reply is set, waits for that response.
// timeout bounds the acknowledgement and must cover any blocking the
// command does on the device.
func (b *Backend) call(name, reply string, timeout time.Duration, args ...int32) (protocol.Args, error) {
	mf, ok := b.Dictionary().Lookup(name)
	if !ok {
		return protocol.Args{}, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}

	b.callMu.Lock()
	defer b.callMu.Unlock()

	var ch chan protocol.Args
	if reply != "" {
		ch = make(chan protocol.Args, 1)
		b.waitMu.Lock()
		b.waitName, b.waitCh = reply, ch
		b.waitMu.Unlock()
		defer func() {
			b.waitMu.Lock()
			b.waitName, b.waitCh = "", nil
			b.waitMu.Unlock()
		}()
	}
	for len(b.errCh) > 0 {
		<-b.errCh
	}

	out := protocol.NewScratchOutput()
	if err := mf.Encode(out, args...); err != nil {
		return protocol.Args{}, err
	}
	if err := b.transport.SendPayload(out.Result(), timeout); err != nil {
		return protocol.Args{}, fmt.Errorf("%s: %w", name, err)
	}

	// Replies precede the acknowledgement on the wire, so a failed command
	// has already reported its error here
	if reply == "" {
		select {
		case e := <-b.errCh:
			return protocol.Args{}, e
		default:
			return protocol.Args{}, nil
		}
	}

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()
	select {
	case a := <-ch:
		return a, nil
	case e := <-b.errCh:
		return protocol.Args{}, e
	case <-timer.C:
		return protocol.Args{}, fmt.Errorf("%w: %s", ErrNoResponse, reply)
	case <-b.transport.Done():
		return protocol.Args{}, protocol.ErrClosed
	}
}

func (b *Backend) send(name string, args ...int32) error {
	_, err := b.call(name, "", b.timeout, args...)
	return err
}

// dispatchLoop runs interrupt callbacks off the transport reader, so a
// callback may itself talk to the device
func (b *Backend) dispatchLoop() {
	defer close(b.done)
	for {
		select {
		case pin := <-b.events:
			b.irqMu.Lock()
			h := b.handlers[pin]
			b.irqMu.Unlock()
			if h != nil {
				h()
			}
		case <-b.stop:
			return
		}
	}
}

// Close stops interrupt dispatch and closes the link
func (b *Backend) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.stop)
		err = b.transport.Close()
		<-b.done
	})
	return err
}

func (b *Backend) Init() error {
	return b.send(protocol.MsgInit)
}

func (b *Backend) SetMode(pin uint8, mode core.Mode) error {
	return b.send(protocol.MsgSetMode, int32(pin), int32(mode))
}

func (b *Backend) DigitalWrite(pin uint8, value core.DigitalValue) error {
	return b.send(protocol.MsgDigitalWrite, int32(pin), int32(value))
}

func (b *Backend) DigitalRead(pin uint8) (int32, error) {
	args, err := b.call(protocol.MsgDigitalRead, protocol.MsgDigitalState, b.timeout, int32(pin))
	if err != nil {
		return 0, err
	}
	return args.Values["value"], nil
}

func (b *Backend) AnalogWrite(pin uint8, value int32) error {
	return b.send(protocol.MsgAnalogWrite, int32(pin), value)
}

func (b *Backend) AnalogRead(pin uint8) (int32, error) {
	args, err := b.call(protocol.MsgAnalogRead, protocol.MsgAnalogState, b.timeout, int32(pin))
	if err != nil {
		return 0, err
	}
	return args.Values["value"], nil
}

func (b *Backend) AnalogReference(ref core.AnalogReference) error {
	return b.send(protocol.MsgAnalogReference, int32(ref))
}

func (b *Backend) AnalogReadResolution(bits int32) error {
	return b.send(protocol.MsgAnalogReadResolution, bits)
}

func (b *Backend) AnalogWriteResolution(bits int32) error {
	return b.send(protocol.MsgAnalogWriteResolution, bits)
}

func (b *Backend) Tone(pin uint8, frequency uint32, duration uint32) error {
	return b.send(protocol.MsgTone, int32(pin), int32(frequency), int32(duration))
}

func (b *Backend) NoTone(pin uint8) error {
	return b.send(protocol.MsgNoTone, int32(pin))
}

func (b *Backend) ShiftOut(dataPin, clockPin uint8, order core.BitOrder, value uint8) error {
	return b.send(protocol.MsgShiftOut, int32(dataPin), int32(clockPin), int32(order), int32(value))
}

func (b *Backend) ShiftIn(dataPin, clockPin uint8, order core.BitOrder) (uint8, error) {
	args, err := b.call(protocol.MsgShiftIn, protocol.MsgShiftInResult, b.timeout,
		int32(dataPin), int32(clockPin), int32(order))
	if err != nil {
		return 0, err
	}
	return uint8(args.Values["value"]), nil
}

func (b *Backend) PulseIn(pin uint8, state core.DigitalValue, timeout uint32) (uint32, error) {
	wait := time.Duration(timeout)*time.Microsecond + b.timeout
	args, err := b.call(protocol.MsgPulseIn, protocol.MsgPulseInResult, wait,
		int32(pin), int32(state), int32(timeout))
	if err != nil {
		return 0, err
	}
	return args.Uint("width"), nil
}

// clock reads both device counters. On failure the last reading is
// returned, as the counters have no error path.
func (b *Backend) clock() (uint32, uint32) {
	args, err := b.call(protocol.MsgGetClock, protocol.MsgClock, b.timeout)
	if err != nil {
		b.log.Warn("clock read failed", "err", err)
		last := b.lastClock.Load()
		return uint32(last >> 32), uint32(last)
	}
	ms, us := args.Uint("millis"), args.Uint("micros")
	b.lastClock.Store(uint64(ms)<<32 | uint64(us))
	return ms, us
}

func (b *Backend) Millis() uint32 {
	ms, _ := b.clock()
	return ms
}

func (b *Backend) Micros() uint32 {
	_, us := b.clock()
	return us
}

func (b *Backend) Delay(ms uint32) {
	wait := time.Duration(ms)*time.Millisecond + b.timeout
	if _, err := b.call(protocol.MsgDelay, "", wait, int32(ms)); err != nil {
		b.log.Warn("delay failed", "ms", ms, "err", err)
	}
}

func (b *Backend) DelayMicroseconds(us uint32) {
	wait := time.Duration(us)*time.Microsecond + b.timeout
	if _, err := b.call(protocol.MsgDelayMicros, "", wait, int32(us)); err != nil {
		b.log.Warn("delay failed", "us", us, "err", err)
	}
}

// AttachInterrupt installs handler locally and arms the pin on the device.
// If the device refuses, the previous handler is restored.
func (b *Backend) AttachInterrupt(pin uint8, handler func(), trigger core.Trigger) error {
	b.irqMu.Lock()
	prev := b.handlers[pin]
	b.handlers[pin] = handler
	b.irqMu.Unlock()

	if err := b.send(protocol.MsgAttachInterrupt, int32(pin), int32(trigger)); err != nil {
		b.irqMu.Lock()
		if prev != nil {
			b.handlers[pin] = prev
		} else {
			delete(b.handlers, pin)
		}
		b.irqMu.Unlock()
		return err
	}
	return nil
}

func (b *Backend) DetachInterrupt(pin uint8) error {
	b.irqMu.Lock()
	delete(b.handlers, pin)
	b.irqMu.Unlock()
	return b.send(protocol.MsgDetachInterrupt, int32(pin))
}

package core

import (
	"sync"
	"sync/atomic"
)

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// PinEvent captures one pin operation for post-mortem analysis
type PinEvent struct {
	Seq       uint16 // Recording order, wraps
	EventType uint8  // Event type code (Evt*)
	Pin       uint8
	Value     int32 // Context-dependent value
}

// Event type codes
const (
	EvtSetMode       = 1
	EvtDigitalWrite  = 2
	EvtDigitalRead   = 3
	EvtAnalogWrite   = 4
	EvtAnalogRead    = 5
	EvtTone          = 6
	EvtNoTone        = 7
	EvtAttach        = 8
	EvtDetach        = 9
	EvtInterrupt     = 10
	EvtModeMismatch  = 11
	EvtRawOutOfSet   = 12 // Digital read returned something other than 0/1
	EvtPulseTimeout  = 13
	EvtCallbackPanic = 14
)

const (
	EventRingSize = 32 // Keep last 32 events for post-mortem
)

var (
	// debugPrintln is the global debug print function (can be set by platform code)
	debugPrintln atomic.Pointer[DebugWriter]

	// debugEnabled controls whether debug output is active
	debugEnabled atomic.Bool

	// Event ring. Each slot packs seq|type|pin|value so that interrupt
	// handlers can record without taking a lock.
	eventRing    [EventRingSize]atomic.Uint64
	eventRingSeq atomic.Uint32
	eventsOn     atomic.Bool

	// Async debug output channel
	debugChan     chan string
	debugChanOnce sync.Once
)

func init() {
	eventsOn.Store(true)
}

// SetDebugWriter sets the platform-specific debug output function.
// Platforms redirect debug output to UART, USB, slog etc.
func SetDebugWriter(writer DebugWriter) {
	if writer == nil {
		debugPrintln.Store(nil)
		return
	}
	debugPrintln.Store(&writer)
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled.Store(enabled)
}

// IsDebugEnabled returns whether debug output is enabled
func IsDebugEnabled() bool {
	return debugEnabled.Load()
}

// SetEventRecording turns the event ring on or off
func SetEventRecording(enabled bool) {
	eventsOn.Store(enabled)
}

// InitAsyncDebug starts the async debug output goroutine. Call it before
// attaching interrupts; later calls do nothing.
func InitAsyncDebug() {
	debugChanOnce.Do(func() {
		debugChan = make(chan string, 16)
		go debugOutputWorker()
	})
}

func debugOutputWorker() {
	for msg := range debugChan {
		if w := debugPrintln.Load(); w != nil {
			(*w)(msg)
		}
	}
}

// DebugPrintln writes a debug message using the platform-specific writer
func DebugPrintln(msg string) {
	if !debugEnabled.Load() {
		return
	}
	if w := debugPrintln.Load(); w != nil {
		(*w)(msg)
	}
}

// DebugAsync queues a debug message for async output.
// Drops the message when the channel is full.
func DebugAsync(msg string) {
	if !debugEnabled.Load() || debugChan == nil {
		return
	}
	select {
	case debugChan <- msg:
	default:
	}
}

// RecordEvent captures a pin event in the ring buffer. Safe to call from
// interrupt handlers.
func RecordEvent(eventType uint8, pin uint8, value int32) {
	if !eventsOn.Load() {
		return
	}
	seq := eventRingSeq.Add(1) - 1
	packed := uint64(uint16(seq))<<48 |
		uint64(eventType)<<40 |
		uint64(pin)<<32 |
		uint64(uint32(value))
	eventRing[seq%EventRingSize].Store(packed)
}

// Events returns the recorded events from oldest to newest
func Events() []PinEvent {
	head := eventRingSeq.Load()
	out := make([]PinEvent, 0, EventRingSize)
	for i := uint32(0); i < EventRingSize; i++ {
		packed := eventRing[(head+i)%EventRingSize].Load()
		evt := PinEvent{
			Seq:       uint16(packed >> 48),
			EventType: uint8(packed >> 40),
			Pin:       uint8(packed >> 32),
			Value:     int32(uint32(packed)),
		}
		if evt.EventType == 0 {
			continue // Empty slot
		}
		out = append(out, evt)
	}
	return out
}

// EventName returns a short label for an event type code
func EventName(eventType uint8) string {
	switch eventType {
	case EvtSetMode:
		return "SET_MODE"
	case EvtDigitalWrite:
		return "DIGITAL_WRITE"
	case EvtDigitalRead:
		return "DIGITAL_READ"
	case EvtAnalogWrite:
		return "ANALOG_WRITE"
	case EvtAnalogRead:
		return "ANALOG_READ"
	case EvtTone:
		return "TONE"
	case EvtNoTone:
		return "NO_TONE"
	case EvtAttach:
		return "ATTACH"
	case EvtDetach:
		return "DETACH"
	case EvtInterrupt:
		return "INTERRUPT"
	case EvtModeMismatch:
		return "MODE_MISMATCH!"
	case EvtRawOutOfSet:
		return "RAW_OUT_OF_SET!"
	case EvtPulseTimeout:
		return "PULSE_TIMEOUT"
	case EvtCallbackPanic:
		return "CALLBACK_PANIC!"
	default:
		return "UNKNOWN"
	}
}

// DumpEventRing outputs the event ring through the debug writer,
// regardless of whether debug output is enabled.
func DumpEventRing() {
	w := debugPrintln.Load()
	if w == nil {
		return
	}
	(*w)("[EVENTS] === Event Ring Dump ===")
	for _, evt := range Events() {
		(*w)("[EVENTS] #" + Utoa(uint32(evt.Seq)) + " " + EventName(evt.EventType) +
			" pin=" + Itoa(int(evt.Pin)) +
			" value=" + Itoa(int(evt.Value)))
	}
	(*w)("[EVENTS] === End Dump ===")
}

// ClearEventRing clears the event buffer
func ClearEventRing() {
	for i := range eventRing {
		eventRing[i].Store(0)
	}
	eventRingSeq.Store(0)
}

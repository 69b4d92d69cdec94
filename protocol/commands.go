package protocol

// Message names shared by the firmware and the host
const (
	MsgIdentifyResponse      = "identify_response"
	MsgIdentify              = "identify"
	MsgInit                  = "init"
	MsgSetMode               = "set_mode"
	MsgDigitalWrite          = "digital_write"
	MsgDigitalRead           = "digital_read"
	MsgDigitalState          = "digital_state"
	MsgAnalogWrite           = "analog_write"
	MsgAnalogRead            = "analog_read"
	MsgAnalogState           = "analog_state"
	MsgAnalogReference       = "analog_reference"
	MsgAnalogReadResolution  = "analog_read_resolution"
	MsgAnalogWriteResolution = "analog_write_resolution"
	MsgTone                  = "tone"
	MsgNoTone                = "no_tone"
	MsgShiftOut              = "shift_out"
	MsgShiftIn               = "shift_in"
	MsgShiftInResult         = "shift_in_result"
	MsgPulseIn               = "pulse_in"
	MsgPulseInResult         = "pulse_in_result"
	MsgGetClock              = "get_clock"
	MsgClock                 = "clock"
	MsgDelay                 = "delay"
	MsgDelayMicros           = "delay_us"
	MsgAttachInterrupt       = "attach_interrupt"
	MsgDetachInterrupt       = "detach_interrupt"
	MsgInterruptEvent        = "interrupt_event"
	MsgError                 = "error"
)

// MessageDef is one entry of the message table
type MessageDef struct {
	Name   string
	Params string // dictionary parameter list, e.g. "pin=%c value=%c"

	// Response messages flow device to host
	Response bool
}

// Format returns the full dictionary format string
func (d MessageDef) Format() string {
	if d.Params == "" {
		return d.Name
	}
	return d.Name + " " + d.Params
}

// Messages is the message table in registration order. The first two
// entries are fixed: a host can identify a device before it has the
// dictionary only if identify_response is ID 0 and identify is ID 1.
var Messages = []MessageDef{
	{MsgIdentifyResponse, "offset=%u data=%*s", true},
	{MsgIdentify, "offset=%u count=%c", false},

	{MsgInit, "", false},
	{MsgSetMode, "pin=%c mode=%c", false},
	{MsgDigitalWrite, "pin=%c value=%c", false},
	{MsgDigitalRead, "pin=%c", false},
	{MsgDigitalState, "pin=%c value=%i", true},
	{MsgAnalogWrite, "pin=%c value=%i", false},
	{MsgAnalogRead, "pin=%c", false},
	{MsgAnalogState, "pin=%c value=%i", true},
	{MsgAnalogReference, "mode=%c", false},
	{MsgAnalogReadResolution, "bits=%i", false},
	{MsgAnalogWriteResolution, "bits=%i", false},
	{MsgTone, "pin=%c frequency=%u duration=%u", false},
	{MsgNoTone, "pin=%c", false},
	{MsgShiftOut, "data_pin=%c clock_pin=%c bit_order=%c value=%c", false},
	{MsgShiftIn, "data_pin=%c clock_pin=%c bit_order=%c", false},
	{MsgShiftInResult, "value=%c", true},
	{MsgPulseIn, "pin=%c state=%c timeout=%u", false},
	{MsgPulseInResult, "pin=%c width=%u", true},
	{MsgGetClock, "", false},
	{MsgClock, "millis=%u micros=%u", true},
	{MsgDelay, "ms=%u", false},
	{MsgDelayMicros, "us=%u", false},
	{MsgAttachInterrupt, "pin=%c mode=%c", false},
	{MsgDetachInterrupt, "pin=%c", false},
	{MsgInterruptEvent, "pin=%c", true},
	{MsgError, "command=%hu code=%c", true},
}

// Error codes carried by the error response
const (
	ErrCodeDecode      = 1 // arguments did not decode
	ErrCodeInvalidArg  = 2 // argument outside its enumeration
	ErrCodeBackend     = 3 // the pin backend failed
	ErrCodeUnsupported = 4 // the backend lacks the operation
	ErrCodeUnknown     = 5 // no handler for the message ID
)

// IdentifyChunkMax is the largest dictionary chunk requested per identify.
// A chunk plus identify_response framing fits one block.
const IdentifyChunkMax = 40

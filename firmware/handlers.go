package firmware

import (
	"errors"

	"gopins/core"
	"gopins/protocol"
)

// commandError carries a wire error code for a rejected command
type commandError struct {
	code uint8
	msg  string
}

func (e *commandError) Error() string { return e.msg }

func invalidArg(msg string) error {
	return &commandError{code: protocol.ErrCodeInvalidArg, msg: msg}
}

func errorCode(err error) uint8 {
	var ce *commandError
	switch {
	case errors.As(err, &ce):
		return ce.code
	case errors.Is(err, ErrUnknownCommand):
		return protocol.ErrCodeUnknown
	case errors.Is(err, core.ErrNotSupported):
		return protocol.ErrCodeUnsupported
	case errors.Is(err, protocol.ErrBufferTooSmall), errors.Is(err, protocol.ErrInvalidVLQ):
		return protocol.ErrCodeDecode
	default:
		return protocol.ErrCodeBackend
	}
}

// decodeArgs reads n VLQ arguments
func decodeArgs(data *[]byte, n int) ([]uint32, error) {
	args := make([]uint32, n)
	for i := range args {
		v, err := protocol.DecodeVLQUint(data)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

// registerCommands registers protocol.Messages in table order so IDs match
// on every device
func (s *Server) registerCommands() {
	handlers := map[string]Handler{
		protocol.MsgIdentify:              s.handleIdentify,
		protocol.MsgInit:                  s.handleInit,
		protocol.MsgSetMode:               s.handleSetMode,
		protocol.MsgDigitalWrite:          s.handleDigitalWrite,
		protocol.MsgDigitalRead:           s.handleDigitalRead,
		protocol.MsgAnalogWrite:           s.handleAnalogWrite,
		protocol.MsgAnalogRead:            s.handleAnalogRead,
		protocol.MsgAnalogReference:       s.handleAnalogReference,
		protocol.MsgAnalogReadResolution:  s.handleAnalogReadResolution,
		protocol.MsgAnalogWriteResolution: s.handleAnalogWriteResolution,
		protocol.MsgTone:                  s.handleTone,
		protocol.MsgNoTone:                s.handleNoTone,
		protocol.MsgShiftOut:              s.handleShiftOut,
		protocol.MsgShiftIn:               s.handleShiftIn,
		protocol.MsgPulseIn:               s.handlePulseIn,
		protocol.MsgGetClock:              s.handleGetClock,
		protocol.MsgDelay:                 s.handleDelay,
		protocol.MsgDelayMicros:           s.handleDelayMicros,
		protocol.MsgAttachInterrupt:       s.handleAttachInterrupt,
		protocol.MsgDetachInterrupt:       s.handleDetachInterrupt,
	}

	for _, def := range protocol.Messages {
		if def.Response {
			s.responseIDs[def.Name] = s.registry.RegisterResponse(def.Name, def.Params)
			continue
		}
		s.registry.Register(def.Name, def.Params, handlers[def.Name])
	}
}

// handleIdentify returns a chunk of the data dictionary
func (s *Server) handleIdentify(data *[]byte) error {
	args, err := decodeArgs(data, 2)
	if err != nil {
		return err
	}
	offset, count := args[0], uint8(args[1])
	if count > protocol.IdentifyChunkMax {
		count = protocol.IdentifyChunkMax
	}
	chunk := s.dict.Chunk(offset, count)

	id := s.responseIDs[protocol.MsgIdentifyResponse]
	if s.out.CurPosition()+protocol.MessageLengthMax > protocol.MessageMax {
		s.flush()
	}
	s.transport.SendCommand(id, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQBytes(output, chunk)
	})
	return nil
}

func (s *Server) handleInit(data *[]byte) error {
	return s.board.Init()
}

func (s *Server) handleSetMode(data *[]byte) error {
	args, err := decodeArgs(data, 2)
	if err != nil {
		return err
	}
	mode := core.Mode(args[1])
	if !mode.Valid() {
		return invalidArg("invalid mode " + core.Itoa(int(args[1])))
	}
	return s.board.Pin(uint8(args[0])).Mode(mode)
}

func (s *Server) handleDigitalWrite(data *[]byte) error {
	args, err := decodeArgs(data, 2)
	if err != nil {
		return err
	}
	return s.board.Pin(uint8(args[0])).Digital().Write(core.DigitalValueFromRaw(int32(args[1])))
}

// handleDigitalRead reports the backend reading unconverted, leaving the
// interpretation of out-of-set values to the host
func (s *Server) handleDigitalRead(data *[]byte) error {
	args, err := decodeArgs(data, 1)
	if err != nil {
		return err
	}
	pin := uint8(args[0])
	raw, err := s.board.Backend().DigitalRead(pin)
	if err != nil {
		return err
	}
	s.send(protocol.MsgDigitalState, int32(pin), raw)
	return nil
}

func (s *Server) handleAnalogWrite(data *[]byte) error {
	pin, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	value, err := protocol.DecodeVLQInt(data)
	if err != nil {
		return err
	}
	return s.board.Pin(uint8(pin)).Analog().Write(value)
}

func (s *Server) handleAnalogRead(data *[]byte) error {
	args, err := decodeArgs(data, 1)
	if err != nil {
		return err
	}
	pin := uint8(args[0])
	v, err := s.board.Pin(pin).Analog().Read()
	if err != nil {
		return err
	}
	s.send(protocol.MsgAnalogState, int32(pin), v)
	return nil
}

func (s *Server) handleAnalogReference(data *[]byte) error {
	args, err := decodeArgs(data, 1)
	if err != nil {
		return err
	}
	ref := core.AnalogReference(args[0])
	if ref != core.ReferenceExternal && ref != core.ReferenceDefault {
		return invalidArg("invalid analog reference " + core.Itoa(int(args[0])))
	}
	return s.board.AnalogReference(ref)
}

func (s *Server) handleAnalogReadResolution(data *[]byte) error {
	bits, err := protocol.DecodeVLQInt(data)
	if err != nil {
		return err
	}
	return s.board.AnalogReadResolution(bits)
}

func (s *Server) handleAnalogWriteResolution(data *[]byte) error {
	bits, err := protocol.DecodeVLQInt(data)
	if err != nil {
		return err
	}
	return s.board.AnalogWriteResolution(bits)
}

func (s *Server) handleTone(data *[]byte) error {
	args, err := decodeArgs(data, 3)
	if err != nil {
		return err
	}
	return s.board.Pin(uint8(args[0])).Tone().Tone(args[1], args[2])
}

func (s *Server) handleNoTone(data *[]byte) error {
	args, err := decodeArgs(data, 1)
	if err != nil {
		return err
	}
	return s.board.Pin(uint8(args[0])).Tone().NoTone()
}

func (s *Server) handleShiftOut(data *[]byte) error {
	args, err := decodeArgs(data, 4)
	if err != nil {
		return err
	}
	dataPin := s.board.Pin(uint8(args[0])).Digital()
	clockPin := s.board.Pin(uint8(args[1])).Digital()
	return s.board.ShiftOut(dataPin, clockPin, core.BitOrder(args[2]&1), uint8(args[3]))
}

func (s *Server) handleShiftIn(data *[]byte) error {
	args, err := decodeArgs(data, 3)
	if err != nil {
		return err
	}
	dataPin := s.board.Pin(uint8(args[0])).Digital()
	clockPin := s.board.Pin(uint8(args[1])).Digital()
	v, err := s.board.ShiftIn(dataPin, clockPin, core.BitOrder(args[2]&1))
	if err != nil {
		return err
	}
	s.send(protocol.MsgShiftInResult, int32(v))
	return nil
}

// handlePulseIn blocks for up to the requested timeout. A zero width in the
// result means no complete pulse was seen.
func (s *Server) handlePulseIn(data *[]byte) error {
	args, err := decodeArgs(data, 3)
	if err != nil {
		return err
	}
	pin := uint8(args[0])
	p, err := s.board.Pin(pin).Digital().PulseIn(core.DigitalValueFromRaw(int32(args[1])), args[2])
	if err != nil {
		return err
	}
	s.send(protocol.MsgPulseInResult, int32(pin), int32(p.Width))
	return nil
}

func (s *Server) handleGetClock(data *[]byte) error {
	s.send(protocol.MsgClock, int32(s.board.Millis()), int32(s.board.Micros()))
	return nil
}

// handleDelay blocks in slices, reporting interrupts between them so that
// host callbacks keep running during long delays
func (s *Server) handleDelay(data *[]byte) error {
	ms, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	for ms > 0 {
		step := ms
		if step > delaySlice {
			step = delaySlice
		}
		s.board.Delay(step)
		ms -= step
		s.reportInterrupts()
		s.flush()
	}
	return nil
}

func (s *Server) handleDelayMicros(data *[]byte) error {
	us, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	s.board.DelayMicros(us)
	return nil
}

func (s *Server) handleAttachInterrupt(data *[]byte) error {
	args, err := decodeArgs(data, 2)
	if err != nil {
		return err
	}
	pin := uint8(args[0])
	trigger := core.Trigger(args[1])
	if !trigger.Valid() {
		return invalidArg("invalid trigger " + core.Itoa(int(args[1])))
	}
	return s.board.Pin(pin).AttachInterrupt(func() { s.pending.mark(pin) }, trigger)
}

func (s *Server) handleDetachInterrupt(data *[]byte) error {
	args, err := decodeArgs(data, 1)
	if err != nil {
		return err
	}
	return s.board.Pin(uint8(args[0])).DetachInterrupt()
}

package protocol

import "sync/atomic"

// CommandHandler handles one decoded message. It decodes its own arguments
// from data, advancing it past them.
type CommandHandler func(cmdID uint16, data *[]byte) error

// Transport is the device side of the protocol. It validates incoming blocks,
// dispatches their messages in order, acknowledges every block and frames
// outgoing messages.
//
// Receive and the Send methods must be called from a single goroutine.
type Transport struct {
	deframer deframer

	// Expected sequence of the next host block (0x10-0x1F). The same value
	// is sent back in acks and in every outgoing block.
	nextSequence atomic.Uint32

	output        OutputBuffer
	handler       CommandHandler
	resetCallback func()
	flushCallback func()
	errorCallback func(cmdID uint16, err error)
}

// NewTransport creates a device transport writing to output
func NewTransport(output OutputBuffer, handler CommandHandler) *Transport {
	t := &Transport{
		deframer: deframer{requireDest: true},
		output:   output,
		handler:  handler,
	}
	t.nextSequence.Store(MessageDest)
	return t
}

// Receive consumes every complete block in input
func (t *Transport) Receive(input InputBuffer) {
	consumed := t.deframer.feed(input.Data(), t.handleBlock, t.encodeAckNak)
	if consumed > 0 {
		input.Pop(consumed)
	}
}

func (t *Transport) handleBlock(seq uint8, payload []byte) {
	expected := uint8(t.nextSequence.Load())

	// A host that restarts begins again at MessageDest
	if seq == MessageDest && expected != MessageDest {
		t.nextSequence.Store(MessageDest)
		expected = MessageDest
		if t.resetCallback != nil {
			t.resetCallback()
		}
	}

	if seq == expected {
		t.nextSequence.Store(uint32(nextSeq(seq)))
		t.parseFrame(payload)
	}
	// Out of order blocks are not processed; the ack carrying the expected
	// sequence doubles as a nak.
	t.encodeAckNak()
}

// parseFrame dispatches every message in a payload. A handler error stops
// the rest of the block; a malformed ID or a panic drops sync.
func (t *Transport) parseFrame(frame []byte) {
	var cmdID uint16
	defer func() {
		if r := recover(); r != nil {
			t.deframer.lost = true
			t.reportError(cmdID, errHandlerPanic)
		}
	}()

	for len(frame) > 0 {
		id, err := DecodeVLQUint(&frame)
		if err != nil {
			t.deframer.lost = true
			t.reportError(0, err)
			return
		}
		cmdID = uint16(id)
		if t.handler == nil {
			continue
		}
		if err := t.handler(cmdID, &frame); err != nil {
			t.reportError(cmdID, err)
			return
		}
	}
}

func (t *Transport) reportError(cmdID uint16, err error) {
	if t.errorCallback != nil {
		t.errorCallback(cmdID, err)
	}
}

// encodeAckNak sends an empty block carrying the expected sequence and
// flushes it at once, ahead of any buffered response
func (t *Transport) encodeAckNak() {
	ns := uint8(t.nextSequence.Load())
	t.output.Output(appendTrailer([]byte{MessageLengthMin, ns}))
	if t.flushCallback != nil {
		t.flushCallback()
	}
}

// EncodeFrame frames whatever frameData writes as one block
func (t *Transport) EncodeFrame(frameData func(output OutputBuffer)) {
	cursor := t.output.CurPosition()

	seq := uint8(t.nextSequence.Load())
	t.output.Output([]byte{0, seq})
	frameData(t.output)

	changed := len(t.output.DataSince(cursor))
	t.output.Update(cursor, uint8(changed+MessageTrailerSize))

	crc := CRC16(t.output.DataSince(cursor))
	t.output.Output([]byte{byte(crc >> 8), byte(crc), MessageValueSync})
}

// SendCommand frames one message
func (t *Transport) SendCommand(cmdID uint16, args func(output OutputBuffer)) {
	t.EncodeFrame(func(output OutputBuffer) {
		EncodeVLQUint(output, uint32(cmdID))
		if args != nil {
			args(output)
		}
	})
}

// Reset returns the transport to its power-on state
func (t *Transport) Reset() {
	t.deframer.lost = false
	t.nextSequence.Store(MessageDest)
	if t.resetCallback != nil {
		t.resetCallback()
	}
}

// SetResetCallback sets a callback run when the host restarts its sequence
func (t *Transport) SetResetCallback(callback func()) {
	t.resetCallback = callback
}

// SetFlushCallback sets a callback that pushes buffered output to the link.
// Acks are flushed through it immediately.
func (t *Transport) SetFlushCallback(callback func()) {
	t.flushCallback = callback
}

// SetErrorCallback sets a callback for handler and decode errors
func (t *Transport) SetErrorCallback(callback func(cmdID uint16, err error)) {
	t.errorCallback = callback
}

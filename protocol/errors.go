package protocol

import "errors"

var (
	// ErrMessageTooLong is returned when a payload does not fit in one block
	ErrMessageTooLong = errors.New("message too long")

	// ErrUnknownMessage indicates a message name or ID missing from the dictionary
	ErrUnknownMessage = errors.New("unknown message")

	// ErrBadFormat indicates a malformed message format string
	ErrBadFormat = errors.New("malformed message format")

	// ErrArgCount indicates an argument list that does not match a format
	ErrArgCount = errors.New("argument count mismatch")

	// ErrAckTimeout is returned when the device does not acknowledge a block
	ErrAckTimeout = errors.New("ack timeout")

	// ErrClosed is returned by operations on a closed transport
	ErrClosed = errors.New("transport closed")

	errHandlerPanic = errors.New("message handler panicked")
)

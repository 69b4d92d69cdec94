package core

import "errors"

var (
	// ErrNoBackend is returned by NewBoard when no backend is supplied
	ErrNoBackend = errors.New("pin backend not configured")

	// ErrInvalidMode indicates a Mode value outside the defined set
	ErrInvalidMode = errors.New("invalid pin mode")

	// ErrInvalidTrigger indicates a Trigger value outside the defined set
	ErrInvalidTrigger = errors.New("invalid interrupt trigger")

	// ErrNilCallback indicates AttachInterrupt was called without a callback
	ErrNilCallback = errors.New("nil interrupt callback")

	// ErrNotSupported is returned by backends for operations the hardware lacks
	ErrNotSupported = errors.New("operation not supported by backend")
)

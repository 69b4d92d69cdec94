package protocol

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultAckTimeout bounds the wait for a block acknowledgement
const DefaultAckTimeout = 2 * time.Second

// ResponseHandler handles one message received from the device. It runs on
// the transport's reader goroutine and must not block on the transport.
type ResponseHandler func(cmdID uint16, data *[]byte) error

// HostTransport is the host side of the protocol: it frames commands, waits
// for their acknowledgement and hands received messages to a handler
type HostTransport struct {
	port io.ReadWriteCloser

	// Sequence of the next block sent (0x10-0x1F)
	currentSeq atomic.Uint32

	deframer    deframer
	inputBuffer *FifoBuffer
	readMutex   sync.Mutex

	ackChan chan uint8

	handlerMu       sync.RWMutex
	responseHandler ResponseHandler

	// sendMutex serializes send+ack so sequence numbers stay ordered
	sendMutex  sync.Mutex
	writeMutex sync.Mutex

	closeOnce sync.Once
	stopChan  chan struct{}
	doneChan  chan struct{}
	readErr   atomic.Pointer[error]
}

// NewHostTransport starts a transport over port. Close stops it and closes
// the port.
func NewHostTransport(port io.ReadWriteCloser) *HostTransport {
	t := &HostTransport{
		port:        port,
		inputBuffer: NewFifoBuffer(1024),
		ackChan:     make(chan uint8, 4),
		stopChan:    make(chan struct{}),
		doneChan:    make(chan struct{}),
	}
	t.currentSeq.Store(MessageDest)

	go t.readLoop()

	return t
}

// SendCommand sends one message and waits for the block to be acknowledged
func (t *HostTransport) SendCommand(cmdID uint16, args func(output OutputBuffer)) error {
	return t.SendCommandWithTimeout(cmdID, args, DefaultAckTimeout)
}

// SendCommandWithTimeout is SendCommand with a custom ack timeout. Messages
// whose handler blocks on the device (delays, pulse measurement) need a
// timeout covering the blocking time.
func (t *HostTransport) SendCommandWithTimeout(cmdID uint16, args func(output OutputBuffer), timeout time.Duration) error {
	scratch := NewScratchOutput()
	EncodeVLQUint(scratch, uint32(cmdID))
	if args != nil {
		args(scratch)
	}
	return t.SendPayload(scratch.Result(), timeout)
}

// SendPayload frames a pre-encoded payload as one block and waits for its
// acknowledgement
func (t *HostTransport) SendPayload(payload []byte, timeout time.Duration) error {
	t.sendMutex.Lock()
	defer t.sendMutex.Unlock()

	seq := uint8(t.currentSeq.Load())
	block, err := EncodeBlock(seq, payload)
	if err != nil {
		return fmt.Errorf("failed to build block: %w", err)
	}

	// Drop acks left over from earlier exchanges
	for len(t.ackChan) > 0 {
		<-t.ackChan
	}

	if err := t.writeBlock(block); err != nil {
		return fmt.Errorf("failed to write block: %w", err)
	}
	if err := t.waitForAck(nextSeq(seq), timeout); err != nil {
		return err
	}
	t.currentSeq.Store(uint32(nextSeq(seq)))
	return nil
}

func (t *HostTransport) writeBlock(block []byte) error {
	t.writeMutex.Lock()
	defer t.writeMutex.Unlock()

	n, err := t.port.Write(block)
	if err != nil {
		return err
	}
	if n != len(block) {
		return fmt.Errorf("incomplete write: %d/%d bytes", n, len(block))
	}
	return nil
}

// waitForAck waits for an ack naming want, the sequence after the block
// just sent. Acks carrying any other sequence are naks or stale and are
// skipped.
func (t *HostTransport) waitForAck(want uint8, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case seq := <-t.ackChan:
			if seq == want {
				return nil
			}
		case <-deadline.C:
			return fmt.Errorf("%w after %v (seq 0x%02x)", ErrAckTimeout, timeout, want)
		case <-t.doneChan:
			return t.closedErr()
		}
	}
}

func (t *HostTransport) closedErr() error {
	if p := t.readErr.Load(); p != nil {
		return fmt.Errorf("%w: %w", ErrClosed, *p)
	}
	return ErrClosed
}

// SetResponseHandler sets the callback for every non-empty block received
func (t *HostTransport) SetResponseHandler(handler ResponseHandler) {
	t.handlerMu.Lock()
	t.responseHandler = handler
	t.handlerMu.Unlock()
}

// Done is closed when the reader stops, on Close or on a read error
func (t *HostTransport) Done() <-chan struct{} {
	return t.doneChan
}

func (t *HostTransport) readLoop() {
	defer close(t.doneChan)

	buffer := make([]byte, 256)
	for {
		n, err := t.port.Read(buffer)
		if n > 0 {
			t.inputBuffer.Write(buffer[:n])
			t.processMessages()
		}
		if err == nil {
			continue
		}
		select {
		case <-t.stopChan:
			return
		default:
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
			t.readErr.Store(&err)
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (t *HostTransport) processMessages() {
	t.readMutex.Lock()
	defer t.readMutex.Unlock()

	consumed := t.deframer.feed(t.inputBuffer.Data(), t.dispatchMessage, nil)
	if consumed > 0 {
		t.inputBuffer.Pop(consumed)
	}
}

// dispatchMessage routes an empty block to the ack waiter and hands every
// message of a non-empty one to the response handler
func (t *HostTransport) dispatchMessage(seq uint8, payload []byte) {
	if len(payload) == 0 {
		select {
		case t.ackChan <- seq:
		default:
		}
		return
	}

	t.handlerMu.RLock()
	handler := t.responseHandler
	t.handlerMu.RUnlock()
	if handler == nil {
		return
	}

	data := make([]byte, len(payload))
	copy(data, payload)
	for len(data) > 0 {
		id, err := DecodeVLQUint(&data)
		if err != nil {
			return
		}
		if err := handler(uint16(id), &data); err != nil {
			return
		}
	}
}

// Close stops the reader and closes the port
func (t *HostTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.stopChan)
		err = t.port.Close()
		<-t.doneChan
	})
	return err
}

// Reset restarts the sequence, so the device treats the next block as
// coming from a fresh host
func (t *HostTransport) Reset() {
	t.sendMutex.Lock()
	defer t.sendMutex.Unlock()
	t.currentSeq.Store(MessageDest)
	for len(t.ackChan) > 0 {
		<-t.ackChan
	}
}

// GetCurrentSequence returns the sequence of the next block sent
func (t *HostTransport) GetCurrentSequence() uint8 {
	return uint8(t.currentSeq.Load())
}

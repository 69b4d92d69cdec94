package core

import "sync/atomic"

// isr is one attached interrupt callback
type isr struct {
	callback func()
	trigger  Trigger
	count    atomic.Uint32
}

// interruptTable maps pins to their attached callback. Lookups happen on the
// interrupt path so the table is lock-free.
type interruptTable struct {
	slots [256]atomic.Pointer[isr]
}

func (t *interruptTable) load(pin uint8) *isr {
	return t.slots[pin].Load()
}

func (t *interruptTable) swap(pin uint8, h *isr) *isr {
	return t.slots[pin].Swap(h)
}

func (t *interruptTable) each(fn func(pin uint8)) {
	for i := range t.slots {
		if t.slots[i].Load() != nil {
			fn(uint8(i))
		}
	}
}

// AttachInterrupt registers callback to run when trigger occurs on the pin.
// Only one callback exists per pin; attaching again replaces the previous one.
//
// The callback runs on the backend's interrupt path, concurrently with the
// code that attached it and with callbacks of other pins. Any state it
// shares with the rest of the program must go through a synchronized
// primitive such as Volatile or sync/atomic, never a plain variable.
func (p Pin) AttachInterrupt(callback func(), trigger Trigger) error {
	if callback == nil {
		return ErrNilCallback
	}
	if !trigger.Valid() {
		return ErrInvalidTrigger
	}
	b, err := p.bound()
	if err != nil {
		return err
	}
	h := &isr{callback: callback, trigger: trigger}
	prev := b.irq.swap(p.id, h)

	pin := p.id
	if err := b.backend.AttachInterrupt(pin, func() { b.dispatch(pin, h) }, trigger); err != nil {
		b.irq.slots[pin].CompareAndSwap(h, prev)
		return err
	}
	RecordEvent(EvtAttach, pin, int32(trigger))
	return nil
}

// DetachInterrupt removes the pin's callback. No invocation of the previous
// callback starts after it returns. Calling it with nothing attached is a no-op.
func (p Pin) DetachInterrupt() error {
	b, err := p.bound()
	if err != nil {
		return err
	}
	prev := b.irq.swap(p.id, nil)
	if err := b.backend.DetachInterrupt(p.id); err != nil {
		return err
	}
	if prev != nil {
		RecordEvent(EvtDetach, p.id, 0)
	}
	return nil
}

// InterruptCount returns how many times the callback currently attached to
// the pin has run
func (b *Board) InterruptCount(pin uint8) uint32 {
	h := b.irq.load(pin)
	if h == nil {
		return 0
	}
	return h.count.Load()
}

// dispatch runs on the backend's interrupt path. A handler that has since been
// replaced or detached is dropped, so a late hardware event never reaches it.
func (b *Board) dispatch(pin uint8, h *isr) {
	if b.irq.load(pin) != h {
		return
	}
	h.count.Add(1)
	RecordEvent(EvtInterrupt, pin, int32(h.trigger))
	defer func() {
		if r := recover(); r != nil {
			RecordEvent(EvtCallbackPanic, pin, 0)
			DebugAsync("[IRQ] callback on pin" + Itoa(int(pin)) + " panicked")
		}
	}()
	h.callback()
}

package core

import "sync/atomic"

// Volatile is a value shared between interrupt callbacks and the rest of the
// program. All access is atomic. The zero value holds the zero T.
type Volatile[T any] struct {
	p atomic.Pointer[T]
}

// Load returns the current value
func (v *Volatile[T]) Load() T {
	if p := v.p.Load(); p != nil {
		return *p
	}
	var zero T
	return zero
}

// Store replaces the value
func (v *Volatile[T]) Store(val T) {
	v.p.Store(&val)
}

// Swap replaces the value and returns the previous one
func (v *Volatile[T]) Swap(val T) T {
	if old := v.p.Swap(&val); old != nil {
		return *old
	}
	var zero T
	return zero
}

// Update applies fn until it is stored without interference from a
// concurrent writer, and returns the stored value
func (v *Volatile[T]) Update(fn func(T) T) T {
	for {
		old := v.p.Load()
		var cur T
		if old != nil {
			cur = *old
		}
		next := fn(cur)
		if v.p.CompareAndSwap(old, &next) {
			return next
		}
	}
}

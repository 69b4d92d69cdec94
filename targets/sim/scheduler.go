package sim

// timer is a scheduled event on the simulated clock
type timer struct {
	WakeTime uint64 // virtual microseconds
	Handler  func(*timer) uint8
	Next     *timer
}

const (
	sfDone       = 0
	sfReschedule = 1
)

// insertTimer inserts a timer in sorted order by WakeTime. Timers with equal
// wake times run in insertion order.
func (s *Backend) insertTimer(t *timer) {
	if s.timers == nil || t.WakeTime < s.timers.WakeTime {
		t.Next = s.timers
		s.timers = t
		return
	}

	current := s.timers
	for current.Next != nil && current.Next.WakeTime <= t.WakeTime {
		current = current.Next
	}

	t.Next = current.Next
	current.Next = t
}

// removeTimer unlinks t if it is scheduled
func (s *Backend) removeTimer(t *timer) {
	if t == nil {
		return
	}
	if s.timers == t {
		s.timers = t.Next
		t.Next = nil
		return
	}
	for current := s.timers; current != nil; current = current.Next {
		if current.Next == t {
			current.Next = t.Next
			t.Next = nil
			return
		}
	}
}

// runNextTimer pops the earliest timer, moves the clock to its wake time and
// runs it. Returns the interrupt handlers its pin changes fired.
func (s *Backend) runNextTimer() []func() {
	t := s.timers
	s.timers = t.Next
	t.Next = nil // Clear Next pointer to avoid circular references

	if t.WakeTime > s.now {
		s.now = t.WakeTime
	}
	if t.Handler(t) == sfReschedule {
		s.insertTimer(t)
	}
	return s.settle()
}

// advance runs every timer due up to target and leaves the clock at target
func (s *Backend) advance(target uint64) []func() {
	var fired []func()
	for s.timers != nil && s.timers.WakeTime <= target {
		fired = append(fired, s.runNextTimer()...)
	}
	if target > s.now {
		s.now = target
	}
	return fired
}

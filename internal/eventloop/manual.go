package eventloop

import (
	"sort"
	"time"
)

// Manual is a deterministic Executor driven by virtual time. Nothing runs
// until the owner calls Flush or Advance, which makes it suitable for tests
// of timer-driven behaviour.
type Manual struct {
	now    time.Duration
	queue  []func()
	timers []*manualTimer
	seq    int
}

type manualTimer struct {
	owner *Manual
	at    time.Duration
	seq   int
	fn    func()
	fired bool
	done  bool
}

func (t *manualTimer) Stop() bool {
	if t.fired || t.done {
		return false
	}
	t.done = true
	t.owner.remove(t)
	return true
}

// NewManual returns a Manual executor at virtual time zero.
func NewManual() *Manual {
	return &Manual{}
}

// Post queues fn for the next Flush.
func (m *Manual) Post(fn func()) bool {
	m.queue = append(m.queue, fn)
	return true
}

// Go runs fn immediately. Anything fn posts is queued as usual.
func (m *Manual) Go(fn func()) {
	fn()
}

// AfterFunc registers fn to be posted once virtual time reaches now+d.
func (m *Manual) AfterFunc(d time.Duration, fn func()) Timer {
	m.seq++
	t := &manualTimer{owner: m, at: m.now + d, seq: m.seq, fn: fn}
	m.timers = append(m.timers, t)
	return t
}

// Now reports the current virtual time.
func (m *Manual) Now() time.Duration {
	return m.now
}

// Pending reports the number of armed timers.
func (m *Manual) Pending() int {
	return len(m.timers)
}

// Flush runs queued callbacks, including ones they post, until the queue is
// empty.
func (m *Manual) Flush() {
	for len(m.queue) > 0 {
		fn := m.queue[0]
		m.queue = m.queue[1:]
		fn()
	}
}

// Advance moves virtual time forward by d, firing due timers in order and
// flushing the queue after each one.
func (m *Manual) Advance(d time.Duration) {
	target := m.now + d
	m.Flush()
	for {
		t := m.nextDue(target)
		if t == nil {
			break
		}
		m.now = t.at
		t.fired = true
		m.remove(t)
		m.queue = append(m.queue, t.fn)
		m.Flush()
	}
	m.now = target
}

func (m *Manual) nextDue(target time.Duration) *manualTimer {
	if len(m.timers) == 0 {
		return nil
	}
	sort.SliceStable(m.timers, func(i, j int) bool {
		if m.timers[i].at == m.timers[j].at {
			return m.timers[i].seq < m.timers[j].seq
		}
		return m.timers[i].at < m.timers[j].at
	})
	if m.timers[0].at > target {
		return nil
	}
	return m.timers[0]
}

func (m *Manual) remove(t *manualTimer) {
	for i, other := range m.timers {
		if other == t {
			m.timers = append(m.timers[:i], m.timers[i+1:]...)
			return
		}
	}
}

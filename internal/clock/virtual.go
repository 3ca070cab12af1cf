package clock

import (
	"sync"
	"time"
)

// Virtual is a deterministic Scheduler whose time only moves when Advance is
// called. Due callbacks run synchronously on the goroutine calling Advance,
// ordered by due time and then by the order they were scheduled. Callbacks
// never run from inside AfterFunc or Every, so callers may schedule while
// holding their own locks.
//
// Virtual is safe for concurrent use, but Advance must not be called from
// inside one of its own callbacks.
type Virtual struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers map[*virtualTimer]struct{}
}

type virtualTimer struct {
	v      *Virtual
	when   time.Time
	seq    uint64
	period time.Duration // zero for one-shot timers
	f      func()
}

// NewVirtual returns a virtual clock starting at start.
func NewVirtual(start time.Time) *Virtual {
	return &Virtual{
		now:    start,
		timers: make(map[*virtualTimer]struct{}),
	}
}

// Now returns the current virtual time.
func (v *Virtual) Now() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.now
}

// Pending returns the number of live timers.
func (v *Virtual) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.timers)
}

// AfterFunc implements Scheduler.
func (v *Virtual) AfterFunc(d time.Duration, f func()) Timer {
	if d < 0 {
		d = 0
	}
	return v.add(d, 0, f)
}

// Every implements Scheduler.
func (v *Virtual) Every(period time.Duration, f func()) Timer {
	if period <= 0 {
		panic("clock: non-positive period for Every")
	}
	return v.add(period, period, f)
}

func (v *Virtual) add(d, period time.Duration, f func()) *virtualTimer {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.seq++
	t := &virtualTimer{
		v:      v,
		when:   v.now.Add(d),
		seq:    v.seq,
		period: period,
		f:      f,
	}
	v.timers[t] = struct{}{}
	return t
}

// Stop implements Timer.
func (t *virtualTimer) Stop() {
	t.v.mu.Lock()
	defer t.v.mu.Unlock()
	delete(t.v.timers, t)
}

// Advance moves virtual time forward by d, firing every timer that falls due
// on the way. Timers scheduled by callbacks fire in the same call if they
// fall due before the new time.
func (v *Virtual) Advance(d time.Duration) {
	v.mu.Lock()
	target := v.now.Add(d)
	v.mu.Unlock()

	for {
		v.mu.Lock()
		next := v.earliest(target)
		if next == nil {
			v.now = target
			v.mu.Unlock()
			return
		}

		v.now = next.when
		if next.period > 0 {
			v.seq++
			next.when = next.when.Add(next.period)
			next.seq = v.seq
		} else {
			delete(v.timers, next)
		}
		f := next.f
		v.mu.Unlock()

		f()
	}
}

// earliest returns the next timer due at or before target. Callers hold v.mu.
func (v *Virtual) earliest(target time.Time) *virtualTimer {
	var best *virtualTimer
	for t := range v.timers {
		if t.when.After(target) {
			continue
		}
		if best == nil || t.when.Before(best.when) || (t.when.Equal(best.when) && t.seq < best.seq) {
			best = t
		}
	}
	return best
}

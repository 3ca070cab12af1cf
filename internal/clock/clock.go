// Package clock abstracts timer scheduling so the simulation engine can run
// on the wall clock in production and on a virtual clock in tests.
package clock

import (
	"sync"
	"time"
)

// Timer is a handle to a scheduled callback. Stop is idempotent: stopping a
// timer that already fired or was already stopped does nothing.
type Timer interface {
	Stop()
}

// Scheduler schedules callbacks.
type Scheduler interface {
	// AfterFunc calls f once after d has elapsed.
	AfterFunc(d time.Duration, f func()) Timer

	// Every calls f repeatedly, once per period, until the timer is stopped.
	// A non-positive period panics.
	Every(period time.Duration, f func()) Timer
}

// Real is a Scheduler backed by the runtime's timers.
type Real struct{}

// AfterFunc implements Scheduler.
func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return &realTimer{t: time.AfterFunc(d, f)}
}

// Every implements Scheduler.
func (Real) Every(period time.Duration, f func()) Timer {
	if period <= 0 {
		panic("clock: non-positive period for Every")
	}
	rt := &realTicker{
		ticker: time.NewTicker(period),
		done:   make(chan struct{}),
	}
	go rt.loop(f)
	return rt
}

type realTimer struct {
	t *time.Timer
}

func (r *realTimer) Stop() {
	r.t.Stop()
}

type realTicker struct {
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

func (r *realTicker) loop(f func()) {
	for {
		select {
		case <-r.done:
			return
		case <-r.ticker.C:
			select {
			case <-r.done:
				return
			default:
			}
			f()
		}
	}
}

func (r *realTicker) Stop() {
	r.once.Do(func() {
		r.ticker.Stop()
		close(r.done)
	})
}

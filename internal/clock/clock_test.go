package clock

import (
	"sync/atomic"
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestVirtual_AfterFunc(t *testing.T) {
	v := NewVirtual(epoch)
	fired := 0
	v.AfterFunc(10*time.Millisecond, func() { fired++ })

	v.Advance(9 * time.Millisecond)
	if fired != 0 {
		t.Fatalf("fired early: %d", fired)
	}
	v.Advance(1 * time.Millisecond)
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}
	v.Advance(time.Second)
	if fired != 1 {
		t.Fatalf("one-shot fired again: %d", fired)
	}
	if v.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", v.Pending())
	}
	if got := v.Now(); !got.Equal(epoch.Add(time.Second + 10*time.Millisecond)) {
		t.Errorf("Now() = %v", got)
	}
}

func TestVirtual_Every(t *testing.T) {
	v := NewVirtual(epoch)
	var ticks []time.Time
	timer := v.Every(5*time.Millisecond, func() { ticks = append(ticks, v.Now()) })

	v.Advance(17 * time.Millisecond)
	if len(ticks) != 3 {
		t.Fatalf("ticks = %d, want 3", len(ticks))
	}
	for i, tick := range ticks {
		want := epoch.Add(time.Duration(i+1) * 5 * time.Millisecond)
		if !tick.Equal(want) {
			t.Errorf("tick %d at %v, want %v", i, tick, want)
		}
	}

	timer.Stop()
	v.Advance(50 * time.Millisecond)
	if len(ticks) != 3 {
		t.Errorf("ticks after Stop = %d, want 3", len(ticks))
	}
}

func TestVirtual_OrderingAtSameInstant(t *testing.T) {
	v := NewVirtual(epoch)
	var order []string
	v.AfterFunc(10*time.Millisecond, func() { order = append(order, "first") })
	v.AfterFunc(10*time.Millisecond, func() { order = append(order, "second") })
	v.AfterFunc(5*time.Millisecond, func() { order = append(order, "earlier") })

	v.Advance(10 * time.Millisecond)
	want := []string{"earlier", "first", "second"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestVirtual_StopIsIdempotent(t *testing.T) {
	v := NewVirtual(epoch)
	fired := false
	timer := v.AfterFunc(time.Millisecond, func() { fired = true })
	timer.Stop()
	timer.Stop()
	v.Advance(time.Second)
	if fired {
		t.Error("stopped timer fired")
	}

	done := v.AfterFunc(time.Millisecond, func() {})
	v.Advance(time.Millisecond)
	done.Stop()
}

func TestVirtual_CallbackSchedulesAndCancels(t *testing.T) {
	v := NewVirtual(epoch)
	var victim Timer
	victimFired := false
	chained := false

	v.AfterFunc(5*time.Millisecond, func() {
		victim.Stop()
		v.AfterFunc(2*time.Millisecond, func() { chained = true })
	})
	victim = v.AfterFunc(5*time.Millisecond, func() { victimFired = true })

	v.Advance(10 * time.Millisecond)
	if victimFired {
		t.Error("timer stopped by an earlier callback at the same instant still fired")
	}
	if !chained {
		t.Error("timer scheduled from a callback did not fire within the same Advance")
	}
}

func TestVirtual_EveryPanicsOnZeroPeriod(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Every(0) did not panic")
		}
	}()
	NewVirtual(epoch).Every(0, func() {})
}

func TestReal_AfterFuncAndStop(t *testing.T) {
	var fired atomic.Int32
	done := make(chan struct{})
	Real{}.AfterFunc(time.Millisecond, func() {
		fired.Add(1)
		close(done)
	})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("real timer never fired")
	}

	stopped := Real{}.AfterFunc(time.Hour, func() { fired.Add(1) })
	stopped.Stop()
	stopped.Stop()
	if fired.Load() != 1 {
		t.Errorf("fired = %d, want 1", fired.Load())
	}
}

func TestReal_Every(t *testing.T) {
	ticks := make(chan struct{}, 10)
	timer := Real{}.Every(time.Millisecond, func() {
		select {
		case ticks <- struct{}{}:
		default:
		}
	})
	defer timer.Stop()

	for i := 0; i < 2; i++ {
		select {
		case <-ticks:
		case <-time.After(2 * time.Second):
			t.Fatal("ticker never fired")
		}
	}
	timer.Stop()
	timer.Stop()
}

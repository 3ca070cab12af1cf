package ratelimit

import (
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

// frozen returns a limiter whose clock only moves when the test says so.
func frozen(perSecond float64, burst int) (*Limiter, *time.Time) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	l := NewLimiter(perSecond, burst)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestNewLimiter(t *testing.T) {
	l := NewLimiter(10.0, 5)
	if l.limit != rate.Limit(10) {
		t.Errorf("limit = %v, want 10", l.limit)
	}
	if l.burst != 5 {
		t.Errorf("burst = %d, want 5", l.burst)
	}
}

func TestAllow(t *testing.T) {
	tests := []struct {
		name      string
		perSecond float64
		burst     int
		steps     []time.Duration // wait before each request
		want      []bool
	}{
		{
			name:      "burst then reject",
			perSecond: 1, burst: 2,
			steps: []time.Duration{0, 0, 0},
			want:  []bool{true, true, false},
		},
		{
			name:      "refill after wait",
			perSecond: 10, burst: 2,
			steps: []time.Duration{0, 0, 0, 200 * time.Millisecond},
			want:  []bool{true, true, false, true},
		},
		{
			name:      "refill capped at burst",
			perSecond: 100, burst: 2,
			steps: []time.Duration{0, 0, 10 * time.Second, 0, 0},
			want:  []bool{true, true, true, true, false},
		},
		{
			name:      "partial refill",
			perSecond: 2, burst: 1,
			steps: []time.Duration{0, 250 * time.Millisecond, 250 * time.Millisecond},
			want:  []bool{true, false, true},
		},
		{
			name:      "zero rate grants the burst once",
			perSecond: 0, burst: 2,
			steps: []time.Duration{0, 0, time.Hour},
			want:  []bool{true, true, false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, now := frozen(tt.perSecond, tt.burst)
			for i, wait := range tt.steps {
				*now = now.Add(wait)
				if got := l.Allow("key"); got != tt.want[i] {
					t.Errorf("request %d: Allow() = %v, want %v", i+1, got, tt.want[i])
				}
			}
		})
	}
}

func TestAllow_IndependentKeys(t *testing.T) {
	l, _ := frozen(1, 1)

	if !l.Allow("192.0.2.1") {
		t.Fatal("first request should be allowed")
	}
	if l.Allow("192.0.2.1") {
		t.Error("192.0.2.1 should be exhausted")
	}
	if !l.Allow("192.0.2.2") {
		t.Error("192.0.2.2 has its own bucket")
	}
}

func TestAllow_ConcurrentAccess(t *testing.T) {
	l, _ := frozen(1000, 100)

	var wg sync.WaitGroup
	allowed := make(chan bool, 200)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed <- l.Allow("shared")
		}()
	}
	wg.Wait()
	close(allowed)

	count := 0
	for a := range allowed {
		if a {
			count++
		}
	}
	// The clock is frozen, so exactly the burst gets through.
	if count != 100 {
		t.Errorf("allowed %d requests, want 100", count)
	}
}

func TestNewToolLimiters(t *testing.T) {
	limiters := NewToolLimiters()

	tests := []struct {
		tool      string
		perMinute float64
		burst     int
	}{
		{"council_analyze", 10, 3},
		{"council_status", 120, 20},
		{"council_reset", 30, 5},
		{"council_catalog", 60, 10},
		{"council_history", 60, 10},
		{"council_report", 60, 10},
		{"council_delete", 30, 5},
		{"council_clear", 5, 1},
		{"council_backup", 5, 2},
		{"council_restore", 5, 2},
	}
	if len(limiters) != len(tests) {
		t.Errorf("got %d limiters, want %d", len(limiters), len(tests))
	}

	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			l, ok := limiters[tt.tool]
			if !ok {
				t.Fatalf("missing limiter for %s", tt.tool)
			}
			if l.burst != tt.burst {
				t.Errorf("burst = %d, want %d", l.burst, tt.burst)
			}
			if want := rate.Limit(tt.perMinute / 60.0); l.limit != want {
				t.Errorf("limit = %v, want %v", l.limit, want)
			}
		})
	}
}

func TestCheckLimit(t *testing.T) {
	limiters := NewToolLimiters()

	if err := CheckLimit(limiters, "council_analyze"); err != nil {
		t.Errorf("council_analyze: unexpected error %v", err)
	}
	if err := CheckLimit(limiters, "unknown_tool"); err != nil {
		t.Errorf("unknown tool: unexpected error %v", err)
	}

	// council_clear has a burst of one.
	if err := CheckLimit(limiters, "council_clear"); err != nil {
		t.Fatalf("first council_clear: %v", err)
	}
	if err := CheckLimit(limiters, "council_clear"); err == nil {
		t.Error("second council_clear should be limited")
	}
}

func TestNewRunLimiter(t *testing.T) {
	l := NewRunLimiter()
	for i := 0; i < 3; i++ {
		if !l.Allow("192.0.2.1") {
			t.Fatalf("request %d should be allowed within burst", i+1)
		}
	}
	if l.Allow("192.0.2.1") {
		t.Error("fourth request should be limited")
	}
	if !l.Allow("192.0.2.2") {
		t.Error("a different client should have its own bucket")
	}
}

package utils

import (
	"testing"
	"time"
)

func TestLatencyTrackerPercentiles(t *testing.T) {
	tracker := NewLatencyTracker(100)
	for i := 1; i <= 100; i++ {
		tracker.Observe(time.Duration(i) * time.Millisecond)
	}

	if tracker.Count() != 100 {
		t.Fatalf("expected 100 samples, got %d", tracker.Count())
	}
	if got := tracker.Percentile(0); got != time.Millisecond {
		t.Errorf("p0: expected 1ms, got %v", got)
	}
	if got := tracker.Percentile(100); got != 100*time.Millisecond {
		t.Errorf("p100: expected 100ms, got %v", got)
	}
	p95 := tracker.Percentile(95)
	if p95 < 90*time.Millisecond || p95 > 100*time.Millisecond {
		t.Errorf("p95 out of expected range: %v", p95)
	}
}

func TestLatencyTrackerBoundedWindow(t *testing.T) {
	tracker := NewLatencyTracker(3)
	for i := 1; i <= 5; i++ {
		tracker.Observe(time.Duration(i) * time.Second)
	}
	if tracker.Count() != 3 {
		t.Fatalf("expected window of 3, got %d", tracker.Count())
	}
	// Oldest samples were evicted: minimum is now 3s.
	if got := tracker.Percentile(0); got != 3*time.Second {
		t.Errorf("expected oldest surviving sample 3s, got %v", got)
	}
}

func TestLatencyTrackerEmpty(t *testing.T) {
	tracker := NewLatencyTracker(10)
	if got := tracker.Percentile(95); got != 0 {
		t.Errorf("expected zero on empty tracker, got %v", got)
	}
}

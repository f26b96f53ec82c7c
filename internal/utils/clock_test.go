package utils

import (
	"testing"
	"time"
)

func TestManualClockAdvance(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := NewManualClock(start)

	if !clock.Now().Equal(start) {
		t.Fatalf("expected %v, got %v", start, clock.Now())
	}
	clock.Advance(90 * time.Second)
	if !clock.Now().Equal(start.Add(90 * time.Second)) {
		t.Errorf("expected advance by 90s, got %v", clock.Now())
	}
}

func TestManualTickerFiresOnTick(t *testing.T) {
	clock := NewManualClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	ticker := clock.NewTicker(time.Minute)
	defer ticker.Stop()

	clock.Tick(time.Minute)
	select {
	case now := <-ticker.C():
		if !now.Equal(clock.Now()) {
			t.Errorf("tick carried %v, clock at %v", now, clock.Now())
		}
	default:
		t.Fatal("expected a tick")
	}
}

func TestManualTickerDropsWhenFull(t *testing.T) {
	clock := NewManualClock(time.Now())
	ticker := clock.NewTicker(time.Minute)
	defer ticker.Stop()

	clock.Tick(time.Minute)
	clock.Tick(time.Minute)

	<-ticker.C()
	select {
	case <-ticker.C():
		t.Fatal("expected second tick dropped while channel was full")
	default:
	}
}

func TestStoppedTickerStaysQuiet(t *testing.T) {
	clock := NewManualClock(time.Now())
	ticker := clock.NewTicker(time.Minute)
	ticker.Stop()

	clock.Tick(time.Minute)
	select {
	case <-ticker.C():
		t.Fatal("stopped ticker must not fire")
	default:
	}
}

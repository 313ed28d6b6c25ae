package timeutil

import (
	"testing"
	"time"
)

func TestRealClockNow(t *testing.T) {
	before := time.Now()
	got := RealClock{}.Now()
	after := time.Now()
	if got.Before(before) || got.After(after) {
		t.Errorf("Now() = %v, outside [%v, %v]", got, before, after)
	}
}

func TestRealClockTicker(t *testing.T) {
	tick := RealClock{}.NewTicker(time.Millisecond)
	defer tick.Stop()

	select {
	case <-tick.C():
	case <-time.After(time.Second):
		t.Fatal("no tick within a second")
	}
}

func TestMockClockAdvance(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := NewMockClock(base)

	if got := clock.Now(); !got.Equal(base) {
		t.Errorf("Now() = %v, want %v", got, base)
	}
	clock.Advance(5 * time.Second)
	if got := clock.Now(); !got.Equal(base.Add(5 * time.Second)) {
		t.Errorf("Now() after Advance = %v, want %v", got, base.Add(5*time.Second))
	}
}

func TestMockTickerFiresOnPeriod(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := NewMockClock(base)
	tick := clock.NewTicker(time.Minute)
	defer tick.Stop()

	clock.Advance(30 * time.Second)
	select {
	case <-tick.C():
		t.Fatal("ticker fired before its period elapsed")
	default:
	}

	clock.Advance(30 * time.Second)
	select {
	case got := <-tick.C():
		if !got.Equal(base.Add(time.Minute)) {
			t.Errorf("tick time = %v, want %v", got, base.Add(time.Minute))
		}
	default:
		t.Fatal("ticker did not fire at its period")
	}

	// The next period is measured from the fired tick.
	clock.Advance(time.Minute)
	select {
	case <-tick.C():
	default:
		t.Fatal("ticker did not fire on the second period")
	}
}

func TestMockTickerStop(t *testing.T) {
	clock := NewMockClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	tick := clock.NewTicker(time.Minute)
	tick.Stop()

	clock.Advance(2 * time.Minute)
	select {
	case <-tick.C():
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestMockTickerDropsWhenReceiverLags(t *testing.T) {
	clock := NewMockClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	tick := clock.NewTicker(time.Minute)
	defer tick.Stop()

	// Two due periods with nobody draining: the second tick is dropped.
	clock.Advance(time.Minute)
	clock.Advance(time.Minute)

	<-tick.C()
	select {
	case <-tick.C():
		t.Fatal("lagging receiver should see a single buffered tick")
	default:
	}
}

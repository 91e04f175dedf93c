package rate

import (
	"testing"
)

func newTestRPS(window, capacity int, now *int64) *SlidingRPS {
	s := NewSlidingRPSWithCapacity(window, capacity)
	s.nowFunc = func() int64 { return *now }
	return s
}

func TestSlidingRPS_Burst(t *testing.T) {
	now := int64(1000)
	s := newTestRPS(10, 100, &now)

	var rps float64
	for i := 0; i < 5; i++ {
		rps = s.Add("ip:1.2.3.4")
	}
	// Five events within the first observed second.
	if rps != 5 {
		t.Errorf("expected 5 rps, got %v", rps)
	}
}

func TestSlidingRPS_SpreadOverWindow(t *testing.T) {
	now := int64(1000)
	s := newTestRPS(10, 100, &now)

	var rps float64
	for i := 0; i < 10; i++ {
		rps = s.Add("k")
		now++
	}
	if rps != 1 {
		t.Errorf("expected 1 rps for one event per second, got %v", rps)
	}
}

func TestSlidingRPS_WindowExpiry(t *testing.T) {
	now := int64(1000)
	s := newTestRPS(10, 100, &now)
	for i := 0; i < 20; i++ {
		s.Add("k")
	}
	now += 30
	if rps := s.Add("k"); rps != 1 {
		t.Errorf("old events must fall out of the window, got %v", rps)
	}
}

func TestSlidingRPS_KeysIndependent(t *testing.T) {
	now := int64(1000)
	s := newTestRPS(10, 100, &now)
	for i := 0; i < 10; i++ {
		s.Add("a")
	}
	if rps := s.Add("b"); rps != 1 {
		t.Errorf("key b should not see key a's events, got %v", rps)
	}
}

func TestSlidingRPS_Capacity(t *testing.T) {
	now := int64(1000)
	s := newTestRPS(10, 2, &now)
	s.Add("a")
	s.Add("b")
	s.Add("c")
	if s.Len() != 2 {
		t.Errorf("expected capacity-bounded len 2, got %d", s.Len())
	}
}

package progression

import "testing"

func TestStreakMultiplierUsesCountAfterRound(t *testing.T) {
	s := NewStreak(DefaultThresholds)
	var got []int
	for _, points := range []int{10, 10, 10, 10} {
		got = append(got, s.Advance(points).Multiplier)
	}
	want := []int{1, 1, 2, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected multipliers %v, got %v", want, got)
		}
	}
	if m := s.Advance(10).Multiplier; m != 4 {
		t.Fatalf("fifth success should reach 4x, got %d", m)
	}
	if m := s.Advance(20).Multiplier; m != 4 {
		t.Fatalf("multiplier should stay at 4x past the last threshold, got %d", m)
	}
}

func TestStreakResetsOnZero(t *testing.T) {
	s := NewStreak(DefaultThresholds)
	for i := 0; i < 7; i++ {
		s.Advance(20)
	}
	state := s.Advance(0)
	if state.Count != 0 || state.Multiplier != 1 {
		t.Fatalf("expected reset to 0/1x, got %+v", state)
	}
	if state := s.Advance(10); state.Count != 1 {
		t.Fatalf("expected streak to restart at 1, got %+v", state)
	}
}

func TestStreakThresholdsValidate(t *testing.T) {
	if err := DefaultThresholds.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if err := (StreakThresholds{Double: 3, Triple: 3, Quad: 5}).Validate(); err == nil {
		t.Fatalf("expected error for non-increasing thresholds")
	}
	if s := NewStreak(StreakThresholds{}); s.Thresholds() != DefaultThresholds {
		t.Fatalf("zero thresholds should fall back to defaults, got %+v", s.Thresholds())
	}
}

package progression

import "testing"

func TestApplyAwardKeepsExperienceBelowRequirement(t *testing.T) {
	for _, curve := range []Curve{PlayerCurve, PlaylistCurve} {
		for level := 1; level <= 12; level++ {
			if curve.MaxLevel > 0 && level > curve.MaxLevel {
				break
			}
			for experience := 0; experience < curve.Requirement(level); experience += 33 {
				for award := 0; award <= 1500; award += 37 {
					got := ApplyAward(level, experience, award, curve)
					if got.Capped(curve) {
						if got.FinalExperience != 0 && len(got.Events) > 0 {
							t.Fatalf("capped award should pin experience at 0, got %+v", got)
						}
						continue
					}
					if got.FinalExperience >= curve.Requirement(got.FinalLevel) {
						t.Fatalf("level %d xp %d award %d: final xp %d not below requirement %d",
							level, experience, award, got.FinalExperience, curve.Requirement(got.FinalLevel))
					}
					checkEventsAscending(t, level, got)
				}
			}
		}
	}
}

func checkEventsAscending(t *testing.T, start int, a Award) {
	t.Helper()
	next := start
	for _, ev := range a.Events {
		if ev.FromLevel != next || ev.ToLevel != next+1 {
			t.Fatalf("events not ascending from %d: %+v", start, a.Events)
		}
		next = ev.ToLevel
	}
	if next != a.FinalLevel {
		t.Fatalf("last event ends at %d but final level is %d", next, a.FinalLevel)
	}
}

func TestApplyAwardExactBoundary(t *testing.T) {
	got := ApplyAward(1, 40, 60, PlayerCurve)
	if len(got.Events) != 1 {
		t.Fatalf("expected exactly one level up, got %+v", got.Events)
	}
	if got.Events[0].OverflowExperience != 0 || got.FinalExperience != 0 || got.FinalLevel != 2 {
		t.Fatalf("expected level 2 with zero overflow, got %+v", got)
	}
}

func TestApplyAwardAcrossTwoAndAHalfLevels(t *testing.T) {
	// 100 + 150 + half of 200.
	got := ApplyAward(1, 0, 350, PlayerCurve)
	if len(got.Events) != 2 {
		t.Fatalf("expected 2 level ups, got %+v", got.Events)
	}
	first, second := got.Events[0], got.Events[1]
	if first.FromLevel != 1 || first.ToLevel != 2 || first.OverflowExperience != 250 || first.Required != 100 {
		t.Fatalf("unexpected first event %+v", first)
	}
	if second.FromLevel != 2 || second.ToLevel != 3 || second.OverflowExperience != 100 || second.Required != 150 {
		t.Fatalf("unexpected second event %+v", second)
	}
	if got.FinalLevel != 3 || got.FinalExperience != 100 || got.Required != 200 {
		t.Fatalf("expected level 3 at 100/200, got %+v", got)
	}
}

func TestApplyAwardStopsAtCap(t *testing.T) {
	// requirement(9) = 100 + 8*25 = 300
	got := ApplyAward(9, 250, 500, PlaylistCurve)
	if len(got.Events) != 1 {
		t.Fatalf("expected a single capping event, got %+v", got.Events)
	}
	if got.FinalLevel != 10 || got.FinalExperience != 0 || got.Events[0].OverflowExperience != 0 {
		t.Fatalf("expected mastered playlist pinned at 0 xp, got %+v", got)
	}
	if !got.Capped(PlaylistCurve) {
		t.Fatalf("expected award to report capped")
	}

	again := ApplyAward(10, 0, 1000, PlaylistCurve)
	if again.FinalLevel != 10 || again.FinalExperience != 0 || len(again.Events) != 0 {
		t.Fatalf("awards at the cap must change nothing, got %+v", again)
	}
}

func TestApplyAwardZeroPoints(t *testing.T) {
	got := ApplyAward(3, 42, 0, PlayerCurve)
	if got.FinalLevel != 3 || got.FinalExperience != 42 || len(got.Events) != 0 {
		t.Fatalf("zero award should be a no-op, got %+v", got)
	}
}

func TestCurveValidate(t *testing.T) {
	if err := PlayerCurve.Validate(); err != nil {
		t.Fatalf("player curve: %v", err)
	}
	if err := PlaylistCurve.Validate(); err != nil {
		t.Fatalf("playlist curve: %v", err)
	}
	if err := (Curve{Base: 100, Step: 0}).Validate(); err == nil {
		t.Fatalf("expected error for flat curve")
	}
}

func TestFraction(t *testing.T) {
	if f := Fraction(1, 50, PlayerCurve); f != 0.5 {
		t.Fatalf("expected half bar, got %v", f)
	}
	if f := Fraction(10, 0, PlaylistCurve); f != 1 {
		t.Fatalf("mastered playlist should show a full bar, got %v", f)
	}
}

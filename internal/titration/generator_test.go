package titration_test

import (
	"testing"
	"time"

	"titra/internal/domain"
	"titra/internal/titration"
)

func TestGeneratePhaseWindows(t *testing.T) {
	start := time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)
	profile := titration.Generator{}.Generate(start)

	if len(profile.Phases) != 5 {
		t.Fatalf("expected 5 phases, got %d", len(profile.Phases))
	}
	wantStart := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if !profile.Phases[0].StartDate.Equal(wantStart) {
		t.Fatalf("phase 1 start = %v, want midnight %v", profile.Phases[0].StartDate, wantStart)
	}
	for i := 0; i < len(profile.Phases)-1; i++ {
		end := profile.Phases[i].EndDate
		if end == nil {
			t.Fatalf("phase %d missing end date", i+1)
		}
		if !end.Equal(profile.Phases[i+1].StartDate) {
			t.Fatalf("phase %d end %v != phase %d start %v", i+1, *end, i+2, profile.Phases[i+1].StartDate)
		}
		if got := end.Sub(profile.Phases[i].StartDate); got != 14*24*time.Hour {
			t.Fatalf("phase %d length = %v, want 14 days", i+1, got)
		}
	}
	if profile.Phases[len(profile.Phases)-1].EndDate != nil {
		t.Fatalf("final phase must be open-ended")
	}
}

func TestGenerateEventCounts(t *testing.T) {
	profile := titration.Generator{}.Generate(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	if got := len(profile.Phases[0].Events); got != 7 {
		t.Fatalf("phase 1 events = %d, want 7", got)
	}
	for i := 1; i < len(profile.Phases); i++ {
		if got := len(profile.Phases[i].Events); got != 10 {
			t.Fatalf("phase %d events = %d, want 10", i+1, got)
		}
	}
}

func TestGenerateEventsSortedByTime(t *testing.T) {
	profile := titration.Generator{}.Generate(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	for pi, phase := range profile.Phases {
		for i := 1; i < len(phase.Events); i++ {
			if phase.Events[i].Time.Before(phase.Events[i-1].Time) {
				t.Fatalf("phase %d events out of order at %d", pi+1, i)
			}
		}
	}
}

func TestGenerateDosageProgression(t *testing.T) {
	profile := titration.Generator{}.Generate(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	dosage := func(phase int, slot string) string {
		for _, ev := range profile.Phases[phase].Events {
			if ev.Type == domain.TypeMedication && ev.Time.Format("15:04") == slot {
				return ev.DescriptionKey
			}
		}
		t.Fatalf("no medication event at %s in phase %d", slot, phase+1)
		return ""
	}

	const quarter = "DOSAGE_ONE_QUARTER_TABLET"
	const half = "DOSAGE_ONE_HALF_TABLET"

	// Phase 2 keeps all slots at a quarter tablet.
	for _, slot := range []string{"08:00", "12:00", "17:00"} {
		if got := dosage(1, slot); got != quarter {
			t.Fatalf("phase 2 %s dosage = %s, want %s", slot, got, quarter)
		}
	}
	// Each later phase raises one slot, morning first, and keeps prior raises.
	if got := dosage(2, "08:00"); got != half {
		t.Fatalf("phase 3 08:00 dosage = %s, want %s", got, half)
	}
	if got := dosage(2, "12:00"); got != quarter {
		t.Fatalf("phase 3 12:00 dosage = %s, want %s", got, quarter)
	}
	if got := dosage(3, "12:00"); got != half {
		t.Fatalf("phase 4 12:00 dosage = %s, want %s", got, half)
	}
	if got := dosage(3, "17:00"); got != quarter {
		t.Fatalf("phase 4 17:00 dosage = %s, want %s", got, quarter)
	}
	for _, slot := range []string{"08:00", "12:00", "17:00"} {
		if got := dosage(4, slot); got != half {
			t.Fatalf("phase 5 %s dosage = %s, want %s", slot, got, half)
		}
	}
}

func TestGenerateDeterministic(t *testing.T) {
	start := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	a := titration.Generator{}.Generate(start)
	b := titration.Generator{}.Generate(start)
	if len(a.Phases) != len(b.Phases) {
		t.Fatalf("phase counts differ")
	}
	for i := range a.Phases {
		if !a.Phases[i].StartDate.Equal(b.Phases[i].StartDate) {
			t.Fatalf("phase %d start differs", i+1)
		}
		if len(a.Phases[i].Events) != len(b.Phases[i].Events) {
			t.Fatalf("phase %d event counts differ", i+1)
		}
	}
}

func TestGenerateNearMonthEnd(t *testing.T) {
	// Calendar arithmetic must normalize, not fail, across month and leap
	// boundaries.
	start := time.Date(2024, 2, 20, 0, 0, 0, 0, time.UTC)
	profile := titration.Generator{}.Generate(start)
	want := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	if !profile.Phases[1].StartDate.Equal(want) {
		t.Fatalf("phase 2 start = %v, want %v", profile.Phases[1].StartDate, want)
	}
}

func TestActivePhaseSelection(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	profile := titration.Generator{}.Generate(start)

	if got := profile.ActivePhase(start.AddDate(0, 0, -1)); got != nil {
		t.Fatalf("expected nil phase before start")
	}
	if got := profile.ActivePhase(start); got == nil || len(got.Events) != 7 {
		t.Fatalf("expected phase 1 on start date")
	}
	// Day 14 is the first day of phase 2.
	if got := profile.ActivePhase(start.AddDate(0, 0, 14)); got == nil || len(got.Events) != 10 {
		t.Fatalf("expected phase 2 on day 14")
	}
	// Far future lands in the open-ended final phase.
	if got := profile.ActivePhase(start.AddDate(2, 0, 0)); got == nil {
		t.Fatalf("expected final phase years later")
	}
}

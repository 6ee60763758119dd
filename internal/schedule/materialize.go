package schedule

import (
	"time"

	"github.com/google/uuid"

	"titra/internal/domain"
)

// Materialize projects the active phase's template events onto now's calendar
// day. Each event keeps its wall-clock slot, gets a fresh id and a pending
// status. If now precedes the first phase the result is empty.
//
// Repeated calls within one day produce equal events up to identity; the
// persisted working set, not re-materialization, is the source of truth for
// same-day state.
func Materialize(profile domain.MedicationProfile, now time.Time) []domain.Event {
	phase := profile.ActivePhase(now)
	if phase == nil {
		return nil
	}
	out := make([]domain.Event, 0, len(phase.Events))
	for _, tmpl := range phase.Events {
		out = append(out, domain.Event{
			ID:             uuid.New().String(),
			Time:           onDay(now, tmpl.Time),
			Type:           tmpl.Type,
			TitleKey:       tmpl.TitleKey,
			DescriptionKey: tmpl.DescriptionKey,
			Status:         domain.StatusPending,
		})
	}
	return out
}

// Upcoming filters the working set to pending events, preserving time order,
// truncated to the next two for display.
func Upcoming(events []domain.Event) []domain.Event {
	var out []domain.Event
	for _, ev := range events {
		if ev.Status != domain.StatusPending {
			continue
		}
		out = append(out, ev)
		if len(out) == upcomingLimit {
			break
		}
	}
	return out
}

const upcomingLimit = 2

// onDay combines day's calendar date with clock's time-of-day, in day's
// location.
func onDay(day, clock time.Time) time.Time {
	y, m, d := day.Date()
	h, min, sec := clock.Clock()
	return time.Date(y, m, d, h, min, sec, 0, day.Location())
}

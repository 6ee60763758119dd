// Package titration derives a phased medication profile from a start date.
// The derivation is pure: same template and start date always produce the
// same profile, and a returned profile is never mutated afterwards.
package titration

import (
	"sort"
	"time"

	"titra/internal/config"
	"titra/internal/domain"
)

// Generator builds MedicationProfiles from a daily template. A zero Generator
// uses the built-in low-dosage template.
type Generator struct {
	Template *config.Config
}

func (g Generator) template() *config.Config {
	if g.Template != nil {
		return g.Template
	}
	return config.Default()
}

// Generate builds the complete phased profile anchored at startDate. With the
// default template it yields five phases of 14 days each, the last open-ended:
// phase 1 is the base day, phase 2 adds the evening triplet, and each phase
// after that raises one medication slot's dosage, morning first.
//
// Calendar arithmetic normalizes out-of-range results to the nearest valid
// date, so a start near a leap boundary never fails.
func (g Generator) Generate(startDate time.Time) domain.MedicationProfile {
	cfg := g.template()
	start := midnight(startDate)

	base := templateEvents(cfg.Template.Base)
	full := append(templateEvents(cfg.Template.Base), templateEvents(cfg.Template.Evening)...)
	sortByTime(full)

	phaseEvents := make([][]domain.Event, 0, 2+len(cfg.Template.DosageSteps))
	phaseEvents = append(phaseEvents, base, full)
	current := full
	for _, step := range cfg.Template.DosageSteps {
		next := copyEvents(current)
		for i := range next {
			if next[i].Time.Format("15:04") == step.Time && next[i].Type == domain.TypeMedication {
				next[i].DescriptionKey = step.DescriptionKey
			}
		}
		phaseEvents = append(phaseEvents, next)
		current = next
	}

	phases := make([]domain.SchedulePhase, len(phaseEvents))
	for i, evs := range phaseEvents {
		phase := domain.SchedulePhase{
			StartDate: start.AddDate(0, 0, i*cfg.Profile.PhaseDays),
			Events:    evs,
		}
		if i < len(phaseEvents)-1 {
			end := start.AddDate(0, 0, (i+1)*cfg.Profile.PhaseDays)
			phase.EndDate = &end
		}
		phases[i] = phase
	}
	return domain.MedicationProfile{NameKey: cfg.Profile.NameKey, Phases: phases}
}

// templateEvents converts config entries to template Events anchored at an
// arbitrary reference day; only the wall-clock slot carries meaning.
func templateEvents(entries []config.TemplateEvent) []domain.Event {
	evs := make([]domain.Event, 0, len(entries))
	for _, e := range entries {
		hour, minute, err := e.Clock()
		if err != nil {
			// Validate() rejects unparseable times before a template reaches
			// the generator.
			continue
		}
		evs = append(evs, domain.Event{
			Time:           time.Date(2000, 1, 1, hour, minute, 0, 0, time.UTC),
			Type:           domain.EventType(e.Type),
			TitleKey:       e.TitleKey,
			DescriptionKey: e.DescriptionKey,
			Status:         domain.StatusPending,
		})
	}
	sortByTime(evs)
	return evs
}

func copyEvents(evs []domain.Event) []domain.Event {
	out := make([]domain.Event, len(evs))
	copy(out, evs)
	return out
}

func sortByTime(evs []domain.Event) {
	sort.SliceStable(evs, func(i, j int) bool { return evs[i].Time.Before(evs[j].Time) })
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

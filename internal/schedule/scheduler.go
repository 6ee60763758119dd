// Package schedule owns the daily working set: the rollover state machine,
// completion handling and the upcoming projection. All mutation happens on
// one Scheduler, serialized by its mutex; reads hand out copies.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"titra/internal/config"
	"titra/internal/domain"
	"titra/internal/events"
	"titra/internal/metrics"
	"titra/internal/notify"
	"titra/internal/repo"
	"titra/internal/snapshot"
	"titra/internal/titration"
)

const dayFormat = "2006-01-02"

var (
	// ErrNotConfigured reports that no medication start date is set. The
	// scheduler treats this as "no schedule": projections are empty and
	// Activate succeeds.
	ErrNotConfigured = errors.New("medication start date not set")
	// ErrNotFound reports a completion request for an id not in today's
	// working set. Already-completed, removed and never-existed are
	// indistinguishable, and all are non-fatal no-ops.
	ErrNotFound = errors.New("event not in today's schedule")
)

// Scheduler is the single owner of today's events. Construct one per process
// with New and call Activate before accepting user actions.
type Scheduler struct {
	mu        sync.Mutex
	repo      repo.Repo
	events    events.Writer
	snapshots *snapshot.Store
	notifier  notify.Notifier
	generator titration.Generator
	metrics   *metrics.Collector

	// Now is the injected clock; generator, materializer and rollover logic
	// never touch the system clock directly.
	Now func() time.Time

	profile *domain.MedicationProfile
	today   []domain.Event
}

// Options wires the scheduler's collaborators. Repo and Snapshots are
// required; the rest default to no-ops.
type Options struct {
	Repo      repo.Repo
	Snapshots *snapshot.Store
	Notifier  notify.Notifier
	Template  *config.Config
	Metrics   *metrics.Collector
	Now       func() time.Time
}

func New(opts Options) *Scheduler {
	s := &Scheduler{
		repo:      opts.Repo,
		events:    events.Writer{DB: opts.Repo.DB, Now: opts.Now},
		snapshots: opts.Snapshots,
		notifier:  opts.Notifier,
		generator: titration.Generator{Template: opts.Template},
		metrics:   opts.Metrics,
		Now:       opts.Now,
	}
	if s.notifier == nil {
		s.notifier = notify.Noop{}
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	return s
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Activate runs the once-per-activation rollover check and loads today's
// working set. It must complete before Complete calls are accepted; callers
// hold that ordering by running it first on each process activation.
//
// Without a configured start date there is no schedule: the working set is
// cleared and Activate still succeeds.
func (s *Scheduler) Activate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	startRaw, err := s.repo.GetSetting(ctx, repo.SettingStartDate)
	if errors.Is(err, repo.ErrNotFound) {
		s.profile = nil
		s.today = nil
		return nil
	}
	if err != nil {
		return fmt.Errorf("load start date: %w", err)
	}
	now := s.now()
	start, err := time.ParseInLocation(dayFormat, startRaw, now.Location())
	if err != nil {
		return fmt.Errorf("invalid start date %q: %w", startRaw, err)
	}
	profile := s.generator.Generate(start)
	s.profile = &profile

	if err := s.rollover(ctx, profile, now); err != nil {
		return err
	}
	s.notifier.ScheduleChanged(s.copyToday())
	return nil
}

// rollover is the marker state machine: Fresh (no marker), SameDay (marker is
// today) or Stale (marker is a prior day). Callers hold s.mu.
func (s *Scheduler) rollover(ctx context.Context, profile domain.MedicationProfile, now time.Time) error {
	today := now.Format(dayFormat)
	marker, err := s.repo.GetSetting(ctx, repo.SettingLastRollover)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return s.rolloverFresh(ctx, profile, now, today)
	case err != nil:
		return fmt.Errorf("load rollover marker: %w", err)
	case marker == today:
		return s.rolloverSameDay(ctx, profile, now, today)
	default:
		return s.rolloverStale(ctx, profile, now, today, marker)
	}
}

func (s *Scheduler) rolloverFresh(ctx context.Context, profile domain.MedicationProfile, now time.Time, today string) error {
	s.today = Materialize(profile, now)
	if err := s.persistToday(today); err != nil {
		return err
	}
	if err := s.repo.SetSetting(ctx, repo.SettingLastRollover, today); err != nil {
		return fmt.Errorf("advance rollover marker: %w", err)
	}
	s.metrics.RecordRollover("fresh")
	return s.events.Append(ctx, "rollover.fresh", "", events.EventPayload{"day": today, "events": len(s.today)})
}

func (s *Scheduler) rolloverSameDay(ctx context.Context, profile domain.MedicationProfile, now time.Time, today string) error {
	ws, err := s.snapshots.Load()
	if errors.Is(err, snapshot.ErrCorrupt) {
		// Corrupt snapshot: recover by re-materializing, never fail startup.
		s.metrics.RecordSnapshotFailure()
		ws = snapshot.WorkingSet{}
	} else if err != nil {
		return err
	}
	if ws.Day == today {
		s.today = ws.Events
	} else {
		s.today = Materialize(profile, now)
		if err := s.persistToday(today); err != nil {
			return err
		}
	}
	s.metrics.RecordRollover("same_day")
	return nil
}

func (s *Scheduler) rolloverStale(ctx context.Context, profile domain.MedicationProfile, now time.Time, today, marker string) error {
	ws, err := s.snapshots.Load()
	if errors.Is(err, snapshot.ErrCorrupt) {
		s.metrics.RecordSnapshotFailure()
		ws = snapshot.WorkingSet{}
	} else if err != nil {
		return err
	}

	// Archive every still-pending event as missed, dated to the marker day.
	// Only one pass runs no matter how many days elapsed: the last tracked
	// day's set is closed out, skipped intermediate days are not
	// reconstructed. The batch must land before the new set is persisted;
	// the (event_id, day) dedupe makes a crash between the steps replayable.
	markerDay, err := time.ParseInLocation(dayFormat, marker, now.Location())
	if err != nil {
		return fmt.Errorf("invalid rollover marker %q: %w", marker, err)
	}
	var missed []domain.ArchiveRecord
	for _, ev := range ws.Events {
		if ev.Status != domain.StatusPending {
			continue
		}
		missed = append(missed, archiveRecord(ev, domain.StatusMissed, markerDay))
	}
	if len(missed) > 0 {
		if err := s.repo.ArchiveEvents(ctx, missed); err != nil {
			return fmt.Errorf("archive missed events: %w", err)
		}
	}

	s.today = Materialize(profile, now)
	if err := s.persistToday(today); err != nil {
		return err
	}
	if err := s.repo.SetSetting(ctx, repo.SettingLastRollover, today); err != nil {
		return fmt.Errorf("advance rollover marker: %w", err)
	}
	s.metrics.RecordRollover("stale")
	s.metrics.RecordMissed(len(missed))
	return s.events.Append(ctx, "rollover.performed", "", events.EventPayload{
		"from":   marker,
		"day":    today,
		"missed": len(missed),
	})
}

// Complete resolves one pending event by id: one completed archive record
// dated today, removal from the working set, snapshot persist, notify.
// Working-set membership is the double-archive guard; a second call for the
// same id reports ErrNotFound.
func (s *Scheduler) Complete(ctx context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, ev := range s.today {
		if ev.ID == eventID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrNotFound
	}
	ev := s.today[idx]
	now := s.now()
	if err := s.repo.ArchiveEvents(ctx, []domain.ArchiveRecord{archiveRecord(ev, domain.StatusCompleted, now)}); err != nil {
		return fmt.Errorf("archive completed event: %w", err)
	}
	s.today = append(s.today[:idx], s.today[idx+1:]...)
	if err := s.persistToday(now.Format(dayFormat)); err != nil {
		// In-memory state has moved on but is not durable; the caller should
		// retry on next activation.
		return err
	}
	s.metrics.RecordCompleted()
	s.notifier.ScheduleChanged(s.copyToday())
	return s.events.Append(ctx, "event.completed", ev.ID, events.EventPayload{
		"type": string(ev.Type),
		"slot": ev.Time.Format("15:04"),
	})
}

// RecordBloodPressure stores a sitting/standing pair under one correlation id
// and, once the write has succeeded, completes the linked schedule event.
func (s *Scheduler) RecordBloodPressure(ctx context.Context, sitting, standing domain.BPReading, eventID string) (string, error) {
	correlationID := uuid.New().String()
	ts := s.now().UTC().Format(time.RFC3339)
	sitting.ID = uuid.New().String()
	sitting.CorrelationID = correlationID
	sitting.Timestamp = ts
	sitting.Position = "sitting"
	standing.ID = uuid.New().String()
	standing.CorrelationID = correlationID
	standing.Timestamp = ts
	standing.Position = "standing"
	if err := s.repo.InsertBPPair(ctx, sitting, standing); err != nil {
		return "", fmt.Errorf("save blood pressure pair: %w", err)
	}
	if err := s.events.Append(ctx, "bp.recorded", correlationID, events.EventPayload{
		"sitting":  fmt.Sprintf("%d/%d", sitting.Systolic, sitting.Diastolic),
		"standing": fmt.Sprintf("%d/%d", standing.Systolic, standing.Diastolic),
	}); err != nil {
		return "", err
	}
	if eventID != "" {
		if err := s.Complete(ctx, eventID); err != nil && !errors.Is(err, ErrNotFound) {
			return correlationID, err
		}
	}
	return correlationID, nil
}

// SetStartDate saves the medication start date and synchronously reloads the
// schedule, replacing the broadcast-and-observe reload of older builds.
func (s *Scheduler) SetStartDate(ctx context.Context, startDate time.Time) error {
	day := startDate.Format(dayFormat)
	if err := s.repo.SetSetting(ctx, repo.SettingStartDate, day); err != nil {
		return fmt.Errorf("save start date: %w", err)
	}
	if err := s.events.Append(ctx, "profile.updated", "", events.EventPayload{"start_date": day}); err != nil {
		return err
	}
	return s.Activate(ctx)
}

// StartDate returns the configured medication start date, or ErrNotConfigured.
func (s *Scheduler) StartDate(ctx context.Context) (time.Time, error) {
	raw, err := s.repo.GetSetting(ctx, repo.SettingStartDate)
	if errors.Is(err, repo.ErrNotFound) {
		return time.Time{}, ErrNotConfigured
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.ParseInLocation(dayFormat, raw, s.now().Location())
}

// Configured reports whether a schedule is loaded.
func (s *Scheduler) Configured() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile != nil
}

// Profile returns the generated profile, or nil when unconfigured.
func (s *Scheduler) Profile() *domain.MedicationProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

// Today returns a copy of the current working set.
func (s *Scheduler) Today() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyToday()
}

// Upcoming returns the next (at most two) pending events.
func (s *Scheduler) Upcoming() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Upcoming(s.copyToday())
}

func (s *Scheduler) copyToday() []domain.Event {
	out := make([]domain.Event, len(s.today))
	copy(out, s.today)
	return out
}

func (s *Scheduler) persistToday(day string) error {
	if err := s.snapshots.Write(snapshot.WorkingSet{Day: day, Events: s.today}); err != nil {
		return fmt.Errorf("persist working set: %w", err)
	}
	return nil
}

// archiveRecord copies an event into its immutable archive form, projecting
// its wall-clock slot onto the archive day.
func archiveRecord(ev domain.Event, status domain.EventStatus, day time.Time) domain.ArchiveRecord {
	ts := onDay(day, ev.Time)
	return domain.ArchiveRecord{
		EventID:        ev.ID,
		Day:            day.Format(dayFormat),
		Timestamp:      ts.Format(time.RFC3339),
		Type:           ev.Type,
		TitleKey:       ev.TitleKey,
		DescriptionKey: ev.DescriptionKey,
		Status:         status,
	}
}

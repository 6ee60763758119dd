package schedule_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"titra/internal/db"
	"titra/internal/domain"
	"titra/internal/migrate"
	"titra/internal/repo"
	"titra/internal/schedule"
	"titra/internal/snapshot"
)

type recordingNotifier struct {
	mu    sync.Mutex
	calls int
	last  []domain.Event
}

func (n *recordingNotifier) ScheduleChanged(events []domain.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	n.last = events
}

type testEnv struct {
	Sched    *schedule.Scheduler
	Repo     repo.Repo
	Store    *snapshot.Store
	Notifier *recordingNotifier
	Ctx      context.Context
	now      *time.Time
}

// setNow advances the injected clock.
func (e *testEnv) setNow(t time.Time) { *e.now = t }

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	now := time.Date(2024, 1, 1, 8, 30, 0, 0, time.UTC)
	notifier := &recordingNotifier{}
	store := snapshot.NewStore(db.SnapshotPath(dir))
	sched := schedule.New(schedule.Options{
		Repo:      repo.Repo{DB: conn},
		Snapshots: store,
		Notifier:  notifier,
		Now:       func() time.Time { return now },
	})
	return &testEnv{
		Sched:    sched,
		Repo:     repo.Repo{DB: conn},
		Store:    store,
		Notifier: notifier,
		Ctx:      context.Background(),
		now:      &now,
	}
}

func (e *testEnv) startOn(t *testing.T, day string) {
	t.Helper()
	start, err := time.ParseInLocation("2006-01-02", day, time.UTC)
	if err != nil {
		t.Fatalf("parse day: %v", err)
	}
	if err := e.Sched.SetStartDate(e.Ctx, start); err != nil {
		t.Fatalf("set start date: %v", err)
	}
}

func pendingIDs(events []domain.Event) []string {
	var ids []string
	for _, ev := range events {
		if ev.Status == domain.StatusPending {
			ids = append(ids, ev.ID)
		}
	}
	return ids
}

func TestActivateUnconfigured(t *testing.T) {
	env := newTestEnv(t)
	if err := env.Sched.Activate(env.Ctx); err != nil {
		t.Fatalf("activate without start date: %v", err)
	}
	if env.Sched.Configured() {
		t.Fatalf("expected unconfigured scheduler")
	}
	if got := env.Sched.Today(); len(got) != 0 {
		t.Fatalf("expected empty working set, got %d events", len(got))
	}
	if _, err := env.Sched.StartDate(env.Ctx); !errors.Is(err, schedule.ErrNotConfigured) {
		t.Fatalf("StartDate error = %v, want ErrNotConfigured", err)
	}
}

func TestFreshRollover(t *testing.T) {
	env := newTestEnv(t)
	env.startOn(t, "2024-01-01")

	today := env.Sched.Today()
	if len(today) != 7 {
		t.Fatalf("day one working set = %d events, want 7", len(today))
	}
	for _, ev := range today {
		if ev.Status != domain.StatusPending {
			t.Fatalf("event %s status = %s, want pending", ev.ID, ev.Status)
		}
		if got := ev.Time.Format("2006-01-02"); got != "2024-01-01" {
			t.Fatalf("event %s on day %s, want 2024-01-01", ev.ID, got)
		}
	}
	marker, err := env.Repo.GetSetting(env.Ctx, repo.SettingLastRollover)
	if err != nil || marker != "2024-01-01" {
		t.Fatalf("rollover marker = %q (%v), want 2024-01-01", marker, err)
	}
	if env.Notifier.calls == 0 {
		t.Fatalf("expected schedule change notification")
	}
}

func TestSameDayActivateKeepsCompletions(t *testing.T) {
	env := newTestEnv(t)
	env.startOn(t, "2024-01-01")

	first := env.Sched.Today()[0]
	if err := env.Sched.Complete(env.Ctx, first.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got := len(env.Sched.Today()); got != 6 {
		t.Fatalf("working set after completion = %d, want 6", got)
	}

	// Re-activation on the same day must restore the snapshot, not
	// re-materialize a full set.
	if err := env.Sched.Activate(env.Ctx); err != nil {
		t.Fatalf("same-day activate: %v", err)
	}
	if got := len(env.Sched.Today()); got != 6 {
		t.Fatalf("working set after re-activate = %d, want 6", got)
	}
	for _, ev := range env.Sched.Today() {
		if ev.ID == first.ID {
			t.Fatalf("completed event came back")
		}
	}
}

func TestCompleteArchivesOnce(t *testing.T) {
	env := newTestEnv(t)
	env.startOn(t, "2024-01-01")

	ev := env.Sched.Today()[0]
	if err := env.Sched.Complete(env.Ctx, ev.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := env.Sched.Complete(env.Ctx, ev.ID); !errors.Is(err, schedule.ErrNotFound) {
		t.Fatalf("second complete error = %v, want ErrNotFound", err)
	}

	records, skipped, err := env.Repo.ListArchive(env.Ctx, repo.ArchiveFilter{Status: domain.StatusCompleted})
	if err != nil || skipped != 0 {
		t.Fatalf("list archive: %v (skipped %d)", err, skipped)
	}
	if len(records) != 1 {
		t.Fatalf("completed archive records = %d, want 1", len(records))
	}
	rec := records[0]
	if rec.EventID != ev.ID || rec.Day != "2024-01-01" {
		t.Fatalf("archive record = %+v", rec)
	}
	if rec.Status != domain.StatusCompleted {
		t.Fatalf("archive status = %s, want completed", rec.Status)
	}
}

func TestCompleteUnknownID(t *testing.T) {
	env := newTestEnv(t)
	env.startOn(t, "2024-01-01")
	if err := env.Sched.Complete(env.Ctx, "no-such-event"); !errors.Is(err, schedule.ErrNotFound) {
		t.Fatalf("complete unknown = %v, want ErrNotFound", err)
	}
}

func TestStaleRolloverArchivesMissed(t *testing.T) {
	env := newTestEnv(t)
	env.startOn(t, "2024-01-01")

	done := env.Sched.Today()[0]
	if err := env.Sched.Complete(env.Ctx, done.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	// Two weeks pass without any activation: phase 2 has begun.
	env.setNow(time.Date(2024, 1, 16, 7, 0, 0, 0, time.UTC))
	if err := env.Sched.Activate(env.Ctx); err != nil {
		t.Fatalf("stale activate: %v", err)
	}

	today := env.Sched.Today()
	if len(today) != 10 {
		t.Fatalf("phase 2 working set = %d events, want 10", len(today))
	}
	if got := today[0].Time.Format("2006-01-02"); got != "2024-01-16" {
		t.Fatalf("events on day %s, want 2024-01-16", got)
	}

	// All six leftover events from the last tracked day are missed, dated to
	// that day.
	missed, _, err := env.Repo.ListArchive(env.Ctx, repo.ArchiveFilter{Status: domain.StatusMissed})
	if err != nil {
		t.Fatalf("list missed: %v", err)
	}
	if len(missed) != 6 {
		t.Fatalf("missed records = %d, want 6", len(missed))
	}
	for _, rec := range missed {
		if rec.Day != "2024-01-01" {
			t.Fatalf("missed record dated %s, want 2024-01-01", rec.Day)
		}
	}

	// Multi-day gap is a single pass: skipped days get no records.
	n, err := env.Repo.CountArchive(env.Ctx, repo.ArchiveFilter{FromDay: "2024-01-02", ToDay: "2024-01-15"})
	if err != nil {
		t.Fatalf("count archive: %v", err)
	}
	if n != 0 {
		t.Fatalf("intermediate days hold %d records, want 0", n)
	}

	marker, err := env.Repo.GetSetting(env.Ctx, repo.SettingLastRollover)
	if err != nil || marker != "2024-01-16" {
		t.Fatalf("rollover marker = %q (%v), want 2024-01-16", marker, err)
	}
}

func TestStaleRolloverIdempotentArchive(t *testing.T) {
	env := newTestEnv(t)
	env.startOn(t, "2024-01-01")

	// Snapshot as it stood when the tracked day ended.
	ws, err := env.Store.Load()
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}

	env.setNow(time.Date(2024, 1, 2, 6, 0, 0, 0, time.UTC))
	if err := env.Sched.Activate(env.Ctx); err != nil {
		t.Fatalf("first stale activate: %v", err)
	}

	// Simulate a crash after the missed batch landed but before the snapshot
	// and marker advanced: restore both and activate again. The replay
	// archives the same (event_id, day) keys, which the dedupe absorbs.
	if err := env.Repo.SetSetting(env.Ctx, repo.SettingLastRollover, "2024-01-01"); err != nil {
		t.Fatalf("rewind marker: %v", err)
	}
	if err := env.Store.Write(ws); err != nil {
		t.Fatalf("restore snapshot: %v", err)
	}
	if err := env.Sched.Activate(env.Ctx); err != nil {
		t.Fatalf("replayed stale activate: %v", err)
	}
	n, err := env.Repo.CountArchive(env.Ctx, repo.ArchiveFilter{ToDay: "2024-01-01", Status: domain.StatusMissed})
	if err != nil {
		t.Fatalf("count after: %v", err)
	}
	if n != 7 {
		t.Fatalf("day-1 missed records = %d, want 7", n)
	}
}

func TestCorruptSnapshotRecovery(t *testing.T) {
	env := newTestEnv(t)
	env.startOn(t, "2024-01-01")

	if err := os.WriteFile(env.Store.Path(), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("corrupt snapshot: %v", err)
	}
	if err := env.Sched.Activate(env.Ctx); err != nil {
		t.Fatalf("activate with corrupt snapshot: %v", err)
	}
	if got := len(env.Sched.Today()); got != 7 {
		t.Fatalf("recovered working set = %d events, want 7", got)
	}
	// The rewritten snapshot must load cleanly again.
	ws, err := env.Store.Load()
	if err != nil {
		t.Fatalf("reload snapshot: %v", err)
	}
	if ws.Day != "2024-01-01" || len(ws.Events) != 7 {
		t.Fatalf("snapshot day=%s events=%d", ws.Day, len(ws.Events))
	}
}

func TestUpcomingProjection(t *testing.T) {
	env := newTestEnv(t)
	env.startOn(t, "2024-01-01")

	up := env.Sched.Upcoming()
	if len(up) != 2 {
		t.Fatalf("upcoming = %d events, want 2", len(up))
	}
	today := env.Sched.Today()
	if up[0].ID != today[0].ID || up[1].ID != today[1].ID {
		t.Fatalf("upcoming must keep working-set order")
	}
	if err := env.Sched.Complete(env.Ctx, up[0].ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	up = env.Sched.Upcoming()
	if len(up) != 2 || up[0].ID != today[1].ID {
		t.Fatalf("upcoming after completion = %+v", pendingIDs(up))
	}
}

func TestUpcomingDrainsToEmpty(t *testing.T) {
	env := newTestEnv(t)
	env.startOn(t, "2024-01-01")
	for _, ev := range env.Sched.Today() {
		if err := env.Sched.Complete(env.Ctx, ev.ID); err != nil {
			t.Fatalf("complete %s: %v", ev.ID, err)
		}
	}
	if got := env.Sched.Upcoming(); len(got) != 0 {
		t.Fatalf("upcoming after draining = %d, want 0", len(got))
	}
}

func TestSetStartDateReloadsSynchronously(t *testing.T) {
	env := newTestEnv(t)
	if err := env.Sched.Activate(env.Ctx); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if len(env.Sched.Today()) != 0 {
		t.Fatalf("expected empty set before configuration")
	}
	env.startOn(t, "2024-01-01")
	// No second Activate: SetStartDate reloads in place.
	if got := len(env.Sched.Today()); got != 7 {
		t.Fatalf("working set after SetStartDate = %d, want 7", got)
	}
	start, err := env.Sched.StartDate(env.Ctx)
	if err != nil {
		t.Fatalf("start date: %v", err)
	}
	if start.Format("2006-01-02") != "2024-01-01" {
		t.Fatalf("start date = %v", start)
	}
}

func TestStartDateBeforeToday(t *testing.T) {
	env := newTestEnv(t)
	// Start in the future: no active phase yet, so no events, but the
	// scheduler is configured and does not error.
	env.startOn(t, "2024-02-01")
	if !env.Sched.Configured() {
		t.Fatalf("expected configured scheduler")
	}
	if got := len(env.Sched.Today()); got != 0 {
		t.Fatalf("working set before start date = %d, want 0", got)
	}
}

func TestRecordBloodPressureCompletesEvent(t *testing.T) {
	env := newTestEnv(t)
	env.startOn(t, "2024-01-01")

	var bpEvent domain.Event
	for _, ev := range env.Sched.Today() {
		if ev.Type == domain.TypeBloodPressure {
			bpEvent = ev
			break
		}
	}
	if bpEvent.ID == "" {
		t.Fatalf("no blood pressure event in working set")
	}

	sitting := domain.BPReading{Systolic: 120, Diastolic: 80}
	standing := domain.BPReading{Systolic: 110, Diastolic: 75}
	correlationID, err := env.Sched.RecordBloodPressure(env.Ctx, sitting, standing, bpEvent.ID)
	if err != nil {
		t.Fatalf("record bp: %v", err)
	}
	if correlationID == "" {
		t.Fatalf("empty correlation id")
	}

	readings, err := env.Repo.ListBPReadings(env.Ctx, 0)
	if err != nil {
		t.Fatalf("list readings: %v", err)
	}
	if len(readings) != 2 {
		t.Fatalf("readings = %d, want 2", len(readings))
	}
	for _, r := range readings {
		if r.CorrelationID != correlationID {
			t.Fatalf("reading correlation %s != %s", r.CorrelationID, correlationID)
		}
	}

	// The linked event is gone from the working set and archived completed.
	for _, ev := range env.Sched.Today() {
		if ev.ID == bpEvent.ID {
			t.Fatalf("bp event still in working set")
		}
	}
	records, _, err := env.Repo.ListArchive(env.Ctx, repo.ArchiveFilter{Status: domain.StatusCompleted})
	if err != nil || len(records) != 1 {
		t.Fatalf("completed records = %d (%v), want 1", len(records), err)
	}
}

func TestRecordBloodPressureWithoutEvent(t *testing.T) {
	env := newTestEnv(t)
	env.startOn(t, "2024-01-01")

	before := len(env.Sched.Today())
	if _, err := env.Sched.RecordBloodPressure(env.Ctx,
		domain.BPReading{Systolic: 130, Diastolic: 85},
		domain.BPReading{Systolic: 125, Diastolic: 82}, ""); err != nil {
		t.Fatalf("record bp: %v", err)
	}
	if got := len(env.Sched.Today()); got != before {
		t.Fatalf("working set changed from %d to %d", before, got)
	}
}

func TestRecordBloodPressureStaleEventID(t *testing.T) {
	env := newTestEnv(t)
	env.startOn(t, "2024-01-01")

	// A stale or already-completed event id must not fail the save.
	correlationID, err := env.Sched.RecordBloodPressure(env.Ctx,
		domain.BPReading{Systolic: 118, Diastolic: 79},
		domain.BPReading{Systolic: 112, Diastolic: 76}, "gone")
	if err != nil {
		t.Fatalf("record bp with stale id: %v", err)
	}
	if correlationID == "" {
		t.Fatalf("empty correlation id")
	}
}

// Package notify is the boundary to local alert scheduling. The core hands
// the working set to a Notifier whenever it changes; delivering alerts is the
// implementation's problem.
package notify

import (
	"go.uber.org/zap"

	"titra/internal/domain"
)

// Notifier receives the current working set after every mutation.
type Notifier interface {
	ScheduleChanged(events []domain.Event)
}

// Noop discards notifications.
type Noop struct{}

func (Noop) ScheduleChanged([]domain.Event) {}

// Logger logs the pending alert slots; it stands in for a platform alert
// scheduler on headless installs.
type Logger struct {
	Log *zap.SugaredLogger
}

func NewLogger(log *zap.SugaredLogger) Logger {
	return Logger{Log: log}
}

func (l Logger) ScheduleChanged(events []domain.Event) {
	if l.Log == nil {
		return
	}
	pending := 0
	next := ""
	for _, ev := range events {
		if ev.Status != domain.StatusPending {
			continue
		}
		pending++
		if next == "" {
			next = ev.Time.Format("15:04")
		}
	}
	l.Log.Infow("schedule changed", "pending", pending, "next_slot", next)
}

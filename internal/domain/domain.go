package domain

import "time"

type EventStatus string

const (
	StatusPending   EventStatus = "pending"
	StatusCompleted EventStatus = "completed"
	StatusMissed    EventStatus = "missed"
)

type EventType string

const (
	TypeMedication    EventType = "medication"
	TypeBloodPressure EventType = "blood_pressure"
	TypeMeal          EventType = "meal"
	TypeExercise      EventType = "exercise"
)

// Event is a single actionable schedule item. Inside a profile it acts as a
// date-agnostic template (only the time-of-day matters); once materialized for
// a calendar day it carries that day's full timestamp.
type Event struct {
	ID             string      `json:"id"`
	Time           time.Time   `json:"time" format:"date-time"`
	Type           EventType   `json:"type" enum:"medication,blood_pressure,meal,exercise"`
	TitleKey       string      `json:"title_key"`
	DescriptionKey string      `json:"description_key"`
	Status         EventStatus `json:"status" enum:"pending,completed,missed"`
}

// SchedulePhase is a date-bounded segment of a profile. EndDate is nil for the
// final, open-ended phase.
type SchedulePhase struct {
	StartDate time.Time  `json:"start_date" format:"date-time"`
	EndDate   *time.Time `json:"end_date,omitempty" format:"date-time"`
	Events    []Event    `json:"events"`
}

// Contains reports whether t falls inside the phase window.
func (p SchedulePhase) Contains(t time.Time) bool {
	if t.Before(p.StartDate) {
		return false
	}
	return p.EndDate == nil || t.Before(*p.EndDate)
}

// MedicationProfile is the full phased titration schedule for one patient,
// anchored to a start date. Read-only after construction.
type MedicationProfile struct {
	NameKey string          `json:"name_key"`
	Phases  []SchedulePhase `json:"phases"`
}

// ActivePhase returns the phase covering t, or nil if t precedes the schedule.
func (m MedicationProfile) ActivePhase(t time.Time) *SchedulePhase {
	for i := range m.Phases {
		if m.Phases[i].Contains(t) {
			return &m.Phases[i]
		}
	}
	return nil
}

// ArchiveRecord is the immutable historical copy of a resolved event. Day is
// the calendar day (2006-01-02) the event belonged to; (EventID, Day) is the
// archive's dedupe key.
type ArchiveRecord struct {
	EventID        string      `json:"event_id"`
	Day            string      `json:"day"`
	Timestamp      string      `json:"timestamp" format:"date-time"`
	Type           EventType   `json:"type"`
	TitleKey       string      `json:"title_key"`
	DescriptionKey string      `json:"description_key"`
	Status         EventStatus `json:"status" enum:"completed,missed"`
}

// BPReading is one half of a blood-pressure check. Two readings share a
// correlation id, one per position.
type BPReading struct {
	ID            string `json:"id"`
	CorrelationID string `json:"correlation_id"`
	Timestamp     string `json:"timestamp" format:"date-time"`
	Position      string `json:"position" enum:"sitting,standing"`
	Systolic      int    `json:"systolic"`
	Diastolic     int    `json:"diastolic"`
}

// BPPair is the read-side join of a sitting/standing pair.
type BPPair struct {
	CorrelationID     string `json:"correlation_id"`
	Timestamp         string `json:"timestamp" format:"date-time"`
	SittingSystolic   int    `json:"sitting_systolic"`
	SittingDiastolic  int    `json:"sitting_diastolic"`
	StandingSystolic  int    `json:"standing_systolic"`
	StandingDiastolic int    `json:"standing_diastolic"`
}

// Patient holds the profile fields entered during first-time setup.
type Patient struct {
	Surname string `json:"surname"`
	Name    string `json:"name,omitempty"`
	Gender  string `json:"gender" enum:"man,lady"`
	Age     int    `json:"age"`
}

// DayHistory groups archive records belonging to one calendar day.
type DayHistory struct {
	Day     string          `json:"day"`
	Records []ArchiveRecord `json:"records"`
}

// DeviceKey authorizes a caregiver device against the local API. The raw key
// is shown once at creation; only its hash is stored.
type DeviceKey struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// AuditEvent is a row of the append-only audit log.
type AuditEvent struct {
	ID       int64  `json:"id"`
	TS       string `json:"ts" format:"date-time"`
	Type     string `json:"type"`
	EntityID string `json:"entity_id,omitempty"`
	Payload  string `json:"payload_json"`
}

package server

import (
	"titra/internal/domain"
)

// Request payloads

type BPValuesRequest struct {
	Systolic  int `json:"systolic" minimum:"1"`
	Diastolic int `json:"diastolic" minimum:"1"`
}

type RecordBPRequest struct {
	Sitting  BPValuesRequest `json:"sitting"`
	Standing BPValuesRequest `json:"standing"`
	// EventID optionally links the check to a schedule event, which is
	// completed once the pair is saved.
	EventID string `json:"event_id,omitempty"`
}

type UpdateProfileRequest struct {
	StartDate string          `json:"start_date,omitempty" format:"date" example:"2024-01-01"`
	Patient   *domain.Patient `json:"patient,omitempty"`
}

// Response payloads

type ScheduleResponse struct {
	Day    string         `json:"day"`
	Events []domain.Event `json:"events"`
}

type UpcomingResponse struct {
	Events []domain.Event `json:"events"`
}

type CompleteResponse struct {
	EventID  string         `json:"event_id"`
	Upcoming []domain.Event `json:"upcoming"`
}

type HistoryResponse struct {
	Days    []domain.DayHistory `json:"days"`
	Skipped int                 `json:"skipped_records,omitempty"`
}

type BPListResponse struct {
	Pairs []domain.BPPair `json:"pairs"`
}

type RecordBPResponse struct {
	CorrelationID string `json:"correlation_id"`
}

type ProfileResponse struct {
	StartDate string          `json:"start_date,omitempty"`
	Patient   *domain.Patient `json:"patient,omitempty"`
	NameKey   string          `json:"name_key,omitempty"`
	Phases    int             `json:"phases,omitempty"`
}

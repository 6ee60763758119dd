package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"titra/internal/domain"
	"titra/internal/history"
	"titra/internal/metrics"
	"titra/internal/repo"
	"titra/internal/schedule"
)

// Config for the HTTP API handler.
type Config struct {
	Scheduler *schedule.Scheduler
	Repo      repo.Repo
	Metrics   *metrics.Collector
	Registry  *prometheus.Registry
	BasePath  string
	Auth      AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"event not in today's schedule"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the schedule API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Repo))
	if cfg.Registry != nil {
		router.Handle("/metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))
	} else {
		router.Handle("/metrics", promhttp.Handler())
	}

	hcfg := huma.DefaultConfig("Titra API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerSchedule(group, cfg)
	registerHistory(group, cfg)
	registerBloodPressure(group, cfg)
	registerProfile(group, cfg)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, schedule.ErrNotFound), errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, schedule.ErrNotConfigured):
		return newAPIError(http.StatusConflict, "not_configured", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "invalid") || strings.Contains(lowered, "required") || strings.Contains(lowered, "must") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerSchedule(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "schedule-today",
		Method:      http.MethodGet,
		Path:        "/schedule/today",
		Summary:     "Today's events",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ScheduleResponse `json:"body"`
	}, error) {
		// Re-run the activation check so a server left running across
		// midnight rolls over before answering.
		if err := cfg.Scheduler.Activate(ctx); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ScheduleResponse `json:"body"`
		}{Body: ScheduleResponse{
			Day:    cfg.Scheduler.Now().Format("2006-01-02"),
			Events: cfg.Scheduler.Today(),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "schedule-upcoming",
		Method:      http.MethodGet,
		Path:        "/schedule/upcoming",
		Summary:     "Next pending events",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body UpcomingResponse `json:"body"`
	}, error) {
		if err := cfg.Scheduler.Activate(ctx); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body UpcomingResponse `json:"body"`
		}{Body: UpcomingResponse{Events: cfg.Scheduler.Upcoming()}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "schedule-complete-event",
		Method:      http.MethodPost,
		Path:        "/schedule/events/{event_id}/complete",
		Summary:     "Complete a schedule event",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		EventID string `path:"event_id"`
	}) (*struct {
		Body CompleteResponse `json:"body"`
	}, error) {
		if err := cfg.Scheduler.Activate(ctx); err != nil {
			return nil, handleError(err)
		}
		if err := cfg.Scheduler.Complete(ctx, input.EventID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CompleteResponse `json:"body"`
		}{Body: CompleteResponse{
			EventID:  input.EventID,
			Upcoming: cfg.Scheduler.Upcoming(),
		}}, nil
	})
}

func registerHistory(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "history-list",
		Method:      http.MethodGet,
		Path:        "/history",
		Summary:     "Archived events grouped by day",
	}, func(ctx context.Context, input *struct {
		FromDay string `query:"from" example:"2024-01-01"`
		ToDay   string `query:"to" example:"2024-01-31"`
		Status  string `query:"status" enum:"completed,missed,"`
		Limit   int    `query:"limit" default:"200"`
	}) (*struct {
		Body HistoryResponse `json:"body"`
	}, error) {
		records, skipped, err := cfg.Repo.ListArchive(ctx, repo.ArchiveFilter{
			FromDay: input.FromDay,
			ToDay:   input.ToDay,
			Status:  domain.EventStatus(input.Status),
			Limit:   input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		cfg.Metrics.RecordArchiveSkipped(skipped)
		return &struct {
			Body HistoryResponse `json:"body"`
		}{Body: HistoryResponse{
			Days:    history.GroupByDay(records),
			Skipped: skipped,
		}}, nil
	})
}

func registerBloodPressure(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "bp-list",
		Method:      http.MethodGet,
		Path:        "/bp",
		Summary:     "Recent paired blood-pressure checks",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body BPListResponse `json:"body"`
	}, error) {
		readings, err := cfg.Repo.ListBPReadings(ctx, 0)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BPListResponse `json:"body"`
		}{Body: BPListResponse{Pairs: history.PairReadings(readings)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "bp-record",
		Method:        http.MethodPost,
		Path:          "/bp",
		Summary:       "Record a sitting/standing pair",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body RecordBPRequest `json:"body"`
	}) (*struct {
		Body RecordBPResponse `json:"body"`
	}, error) {
		correlationID, err := cfg.Scheduler.RecordBloodPressure(ctx,
			domain.BPReading{Systolic: input.Body.Sitting.Systolic, Diastolic: input.Body.Sitting.Diastolic},
			domain.BPReading{Systolic: input.Body.Standing.Systolic, Diastolic: input.Body.Standing.Diastolic},
			input.Body.EventID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RecordBPResponse `json:"body"`
		}{Body: RecordBPResponse{CorrelationID: correlationID}}, nil
	})
}

func registerProfile(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "profile-show",
		Method:      http.MethodGet,
		Path:        "/profile",
		Summary:     "Patient profile and schedule anchor",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ProfileResponse `json:"body"`
	}, error) {
		resp := ProfileResponse{}
		if start, err := cfg.Scheduler.StartDate(ctx); err == nil {
			resp.StartDate = start.Format("2006-01-02")
		} else if !errors.Is(err, schedule.ErrNotConfigured) {
			return nil, handleError(err)
		}
		if patient, err := cfg.Repo.GetPatient(ctx); err == nil {
			resp.Patient = &patient
		} else if !errors.Is(err, repo.ErrNotFound) {
			return nil, handleError(err)
		}
		if profile := cfg.Scheduler.Profile(); profile != nil {
			resp.NameKey = profile.NameKey
			resp.Phases = len(profile.Phases)
		}
		return &struct {
			Body ProfileResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "profile-update",
		Method:      http.MethodPut,
		Path:        "/profile",
		Summary:     "Save the profile and reload the schedule",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body UpdateProfileRequest `json:"body"`
	}) (*struct {
		Body ProfileResponse `json:"body"`
	}, error) {
		if input.Body.Patient != nil {
			if err := cfg.Repo.SetPatient(ctx, *input.Body.Patient); err != nil {
				return nil, handleError(err)
			}
		}
		if input.Body.StartDate != "" {
			start, err := time.ParseInLocation("2006-01-02", input.Body.StartDate, time.Local)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "start_date must be YYYY-MM-DD", nil)
			}
			if err := cfg.Scheduler.SetStartDate(ctx, start); err != nil {
				return nil, handleError(err)
			}
		}
		resp := ProfileResponse{StartDate: input.Body.StartDate}
		if input.Body.Patient != nil {
			resp.Patient = input.Body.Patient
		}
		if profile := cfg.Scheduler.Profile(); profile != nil {
			resp.NameKey = profile.NameKey
			resp.Phases = len(profile.Phases)
		}
		return &struct {
			Body ProfileResponse `json:"body"`
		}{Body: resp}, nil
	})
}

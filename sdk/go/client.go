package titrasdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Titra HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Event represents a schedule event.
type Event struct {
	ID             string `json:"id"`
	Time           string `json:"time"`
	Type           string `json:"type"`
	TitleKey       string `json:"title_key"`
	DescriptionKey string `json:"description_key"`
	Status         string `json:"status"`
}

// Schedule is today's working set.
type Schedule struct {
	Day    string  `json:"day"`
	Events []Event `json:"events"`
}

// ArchiveRecord is one resolved history entry.
type ArchiveRecord struct {
	EventID        string `json:"event_id"`
	Day            string `json:"day"`
	Timestamp      string `json:"timestamp"`
	Type           string `json:"type"`
	TitleKey       string `json:"title_key"`
	DescriptionKey string `json:"description_key"`
	Status         string `json:"status"`
}

// DayHistory groups history records by day.
type DayHistory struct {
	Day     string          `json:"day"`
	Records []ArchiveRecord `json:"records"`
}

// BPPair is one paired blood-pressure check.
type BPPair struct {
	CorrelationID     string `json:"correlation_id"`
	Timestamp         string `json:"timestamp"`
	SittingSystolic   int    `json:"sitting_systolic"`
	SittingDiastolic  int    `json:"sitting_diastolic"`
	StandingSystolic  int    `json:"standing_systolic"`
	StandingDiastolic int    `json:"standing_diastolic"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Today returns the current working set.
func (c *Client) Today(ctx context.Context) (Schedule, error) {
	var resp Schedule
	err := c.do(ctx, http.MethodGet, "v0/schedule/today", nil, &resp)
	return resp, err
}

// Upcoming returns the next pending events.
func (c *Client) Upcoming(ctx context.Context) ([]Event, error) {
	var resp struct {
		Events []Event `json:"events"`
	}
	err := c.do(ctx, http.MethodGet, "v0/schedule/upcoming", nil, &resp)
	return resp.Events, err
}

// Complete marks a schedule event done.
func (c *Client) Complete(ctx context.Context, eventID string) ([]Event, error) {
	var resp struct {
		EventID  string  `json:"event_id"`
		Upcoming []Event `json:"upcoming"`
	}
	endpoint := fmt.Sprintf("v0/schedule/events/%s/complete", url.PathEscape(eventID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp.Upcoming, err
}

// History returns archived events grouped by day.
func (c *Client) History(ctx context.Context, fromDay, toDay string) ([]DayHistory, error) {
	endpoint := "v0/history"
	q := url.Values{}
	if fromDay != "" {
		q.Set("from", fromDay)
	}
	if toDay != "" {
		q.Set("to", toDay)
	}
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp struct {
		Days []DayHistory `json:"days"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Days, err
}

// RecordBP records a sitting/standing pair, optionally completing the linked
// schedule event.
func (c *Client) RecordBP(ctx context.Context, sittingSys, sittingDia, standingSys, standingDia int, eventID string) (string, error) {
	body := map[string]any{
		"sitting":  map[string]int{"systolic": sittingSys, "diastolic": sittingDia},
		"standing": map[string]int{"systolic": standingSys, "diastolic": standingDia},
	}
	if eventID != "" {
		body["event_id"] = eventID
	}
	var resp struct {
		CorrelationID string `json:"correlation_id"`
	}
	err := c.do(ctx, http.MethodPost, "v0/bp", body, &resp)
	return resp.CorrelationID, err
}

// BPPairs returns the recent paired checks.
func (c *Client) BPPairs(ctx context.Context) ([]BPPair, error) {
	var resp struct {
		Pairs []BPPair `json:"pairs"`
	}
	err := c.do(ctx, http.MethodGet, "v0/bp", nil, &resp)
	return resp.Pairs, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}

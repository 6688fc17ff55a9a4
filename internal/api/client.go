// Package api is the REST boundary to the Aerium backend. All responses
// are parsed into domain shapes here; nothing downstream touches wire JSON.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"aerium-dashboard/internal/models"
)

// TokenSource supplies the bearer credential attached to every request.
// Session management itself lives outside this package; a 401 response
// triggers exactly one Refresh-and-retry.
type TokenSource interface {
	Token() string
	Refresh(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource backed by a fixed credential, used when the
// dashboard runs with a long-lived API token instead of a login session.
type StaticToken string

func (t StaticToken) Token() string { return string(t) }

func (t StaticToken) Refresh(_ context.Context) (string, error) { return string(t), nil }

// APIError is a non-2xx backend response carrying the backend's message.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
}

// CreationError is a backend rejection of a sensor create or update,
// surfaced to the caller with the backend's own message.
type CreationError struct {
	Message string
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("sensor creation failed: %s", e.Message)
}

// Client talks to the Aerium REST API.
type Client struct {
	base   string
	tokens TokenSource
	h      *http.Client
}

// NewClient creates a client with a request timeout so a stuck backend
// cannot hold callers indefinitely.
func NewClient(baseURL string, tokens TokenSource, timeout time.Duration) *Client {
	return &Client{
		base:   baseURL,
		tokens: tokens,
		h:      &http.Client{Timeout: timeout},
	}
}

// do issues one request with the bearer header, retrying once after a
// token refresh when the backend answers 401.
func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	token := c.tokens.Token()

	resp, err := c.issue(ctx, method, path, body, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		_ = resp.Body.Close()
		token, err = c.tokens.Refresh(ctx)
		if err != nil {
			return nil, fmt.Errorf("token refresh: %w", err)
		}
		resp, err = c.issue(ctx, method, path, body, token)
		if err != nil {
			return nil, err
		}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}
	return data, nil
}

func (c *Client) issue(ctx context.Context, method, path string, body any, token string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return c.h.Do(req)
}

// errorMessage extracts the backend's {"error": "..."} body, falling back
// to the raw body when the shape is unexpected.
func errorMessage(data []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &e); err == nil && e.Error != "" {
		return e.Error
	}
	return string(data)
}

// ListSensors fetches the full sensor list. Individual malformed records
// are logged and skipped rather than failing the whole fetch.
func (c *Client) ListSensors(ctx context.Context) ([]models.Sensor, error) {
	data, err := c.do(ctx, http.MethodGet, "/sensors", nil)
	if err != nil {
		return nil, err
	}
	var envelope struct {
		Sensors []json.RawMessage `json:"sensors"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decoding sensor list: %w", err)
	}

	sensors := make([]models.Sensor, 0, len(envelope.Sensors))
	for _, raw := range envelope.Sensors {
		s, err := models.ParseSensor(raw)
		if err != nil {
			log.Printf("API: Skipping sensor record: %v", err)
			continue
		}
		sensors = append(sensors, s)
	}
	return sensors, nil
}

// GetSensor fetches a single sensor by id.
func (c *Client) GetSensor(ctx context.Context, id string) (models.Sensor, error) {
	data, err := c.do(ctx, http.MethodGet, "/sensors/"+url.PathEscape(id), nil)
	if err != nil {
		return models.Sensor{}, err
	}
	var envelope struct {
		Sensor json.RawMessage `json:"sensor"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return models.Sensor{}, fmt.Errorf("decoding sensor: %w", err)
	}
	return models.ParseSensor(envelope.Sensor)
}

// CreateSensor registers a new sensor. Backend rejections come back as a
// CreationError carrying the backend's message.
func (c *Client) CreateSensor(ctx context.Context, name, location, sensorType string) (models.Sensor, error) {
	body := map[string]string{
		"name":        name,
		"location":    location,
		"sensor_type": sensorType,
	}
	data, err := c.do(ctx, http.MethodPost, "/sensors", body)
	if err != nil {
		if apiErr, ok := err.(*APIError); ok {
			return models.Sensor{}, &CreationError{Message: apiErr.Message}
		}
		return models.Sensor{}, err
	}
	var envelope struct {
		Sensor json.RawMessage `json:"sensor"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return models.Sensor{}, fmt.Errorf("decoding created sensor: %w", err)
	}
	return models.ParseSensor(envelope.Sensor)
}

// UpdateSensor applies a partial update. Only non-empty fields are sent.
func (c *Client) UpdateSensor(ctx context.Context, id string, fields map[string]string) error {
	_, err := c.do(ctx, http.MethodPut, "/sensors/"+url.PathEscape(id), fields)
	if apiErr, ok := err.(*APIError); ok {
		return &CreationError{Message: apiErr.Message}
	}
	return err
}

// DeleteSensor removes a sensor on the backend.
func (c *Client) DeleteSensor(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/sensors/"+url.PathEscape(id), nil)
	return err
}

// SensorReadings fetches up to limit readings for one sensor over the
// last hours. Readings come back newest first, as the backend sends them.
func (c *Client) SensorReadings(ctx context.Context, id string, hours, limit int) ([]models.Reading, error) {
	q := url.Values{}
	q.Set("hours", strconv.Itoa(hours))
	q.Set("limit", strconv.Itoa(limit))

	data, err := c.do(ctx, http.MethodGet, "/readings/sensor/"+url.PathEscape(id)+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var envelope struct {
		Readings []json.RawMessage `json:"readings"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decoding readings: %w", err)
	}

	readings := make([]models.Reading, 0, len(envelope.Readings))
	for _, raw := range envelope.Readings {
		r, err := models.ParseReading(raw)
		if err != nil {
			log.Printf("API: Skipping reading record: %v", err)
			continue
		}
		if r.SensorID == "" {
			r.SensorID = id
		}
		readings = append(readings, r)
	}
	return readings, nil
}

// CreateReading submits a manual reading for a sensor.
func (c *Client) CreateReading(ctx context.Context, sensorID string, co2, temperature, humidity float64) error {
	body := map[string]any{
		"sensor_id":   sensorID,
		"co2":         co2,
		"temperature": temperature,
		"humidity":    humidity,
	}
	_, err := c.do(ctx, http.MethodPost, "/readings", body)
	return err
}

// Aggregate fetches the backend-computed averages across all sensors.
func (c *Client) Aggregate(ctx context.Context) (models.AggregateStats, error) {
	data, err := c.do(ctx, http.MethodGet, "/readings/aggregate", nil)
	if err != nil {
		return models.AggregateStats{}, err
	}
	var stats models.AggregateStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return models.AggregateStats{}, fmt.Errorf("decoding aggregate: %w", err)
	}
	return stats, nil
}

// Alerts fetches alerts, optionally filtered by status, newest first.
func (c *Client) Alerts(ctx context.Context, status models.AlertStatus, limit int) ([]models.Alert, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", string(status))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/alerts"
	if encoded := q.Encode(); encoded != "" {
		path += "?" + encoded
	}

	data, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var envelope struct {
		Alerts []json.RawMessage `json:"alerts"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decoding alerts: %w", err)
	}

	alerts := make([]models.Alert, 0, len(envelope.Alerts))
	for _, raw := range envelope.Alerts {
		a, err := models.ParseAlert(raw)
		if err != nil {
			log.Printf("API: Skipping alert record: %v", err)
			continue
		}
		alerts = append(alerts, a)
	}
	return alerts, nil
}

// UpdateAlertStatus transitions an alert to a new triage status.
func (c *Client) UpdateAlertStatus(ctx context.Context, id string, status models.AlertStatus) error {
	body := map[string]string{"status": string(status)}
	_, err := c.do(ctx, http.MethodPut, "/alerts/"+url.PathEscape(id), body)
	return err
}

// DeleteAlert removes an alert on the backend.
func (c *Client) DeleteAlert(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/alerts/"+url.PathEscape(id), nil)
	return err
}

// Health checks backend availability.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/health", nil)
	return err
}

package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MalformedRecordError reports a backend record that could not be coerced
// into its domain shape. Record names the wire shape, Field the offender.
type MalformedRecordError struct {
	Record string
	Field  string
	Err    error
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed %s record: field %q: %v", e.Record, e.Field, e.Err)
}

func (e *MalformedRecordError) Unwrap() error { return e.Err }

func malformed(record, field string, err error) error {
	return &MalformedRecordError{Record: record, Field: field, Err: err}
}

// flexFloat accepts a JSON number, a numeric string, or null.
// The backend is loose about numeric fields, so coercion happens here
// instead of inline at every call site.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		*f = 0
		return nil
	}
	s = strings.Trim(s, `"`)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", string(data))
	}
	*f = flexFloat(v)
	return nil
}

// flexID accepts a JSON string or integer id and normalizes it to a string.
type flexID string

func (id *flexID) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*id = ""
		return nil
	}
	*id = flexID(strings.Trim(s, `"`))
	return nil
}

// parseTimestamp accepts RFC3339 (with or without sub-second precision)
// and the backend's occasional space-separated variant.
func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

type wireSensor struct {
	ID          flexID     `json:"id"`
	Name        string     `json:"name"`
	Location    string     `json:"location"`
	Status      string     `json:"status"`
	CO2         flexFloat  `json:"co2"`
	Temperature flexFloat  `json:"temperature"`
	Humidity    flexFloat  `json:"humidity"`
	LastReading string     `json:"lastReading"`
	UpdatedAt   string     `json:"updated_at"`
	Battery     *flexFloat `json:"battery"`
	IsLive      *bool      `json:"is_live"`
}

// ParseSensor coerces one backend sensor record into the canonical Sensor.
// Missing is_live defaults to true; a missing lastReading falls back to
// updated_at; unknown status strings degrade to offline.
func ParseSensor(raw json.RawMessage) (Sensor, error) {
	var w wireSensor
	if err := json.Unmarshal(raw, &w); err != nil {
		return Sensor{}, malformed("sensor", "", err)
	}
	if w.ID == "" {
		return Sensor{}, malformed("sensor", "id", fmt.Errorf("missing"))
	}

	s := Sensor{
		ID:          string(w.ID),
		Name:        w.Name,
		Location:    w.Location,
		Status:      parseStatus(w.Status),
		CO2:         float64(w.CO2),
		Temperature: float64(w.Temperature),
		Humidity:    float64(w.Humidity),
		IsLive:      true,
	}
	if w.IsLive != nil {
		s.IsLive = *w.IsLive
	}
	if w.Battery != nil {
		b := int(*w.Battery)
		s.Battery = &b
	}

	ts := w.LastReading
	if ts == "" {
		ts = w.UpdatedAt
	}
	if ts != "" {
		t, err := parseTimestamp(ts)
		if err != nil {
			return Sensor{}, malformed("sensor", "lastReading", err)
		}
		s.LastReading = t
	}
	return s, nil
}

func parseStatus(s string) Status {
	switch Status(s) {
	case StatusOnline, StatusWarning:
		return Status(s)
	default:
		return StatusOffline
	}
}

type wireReading struct {
	SensorID    flexID    `json:"sensor_id"`
	CO2         flexFloat `json:"co2"`
	Temperature flexFloat `json:"temperature"`
	Humidity    flexFloat `json:"humidity"`
	RecordedAt  string    `json:"recorded_at"`
}

// ParseReading coerces one backend reading record.
func ParseReading(raw json.RawMessage) (Reading, error) {
	var w wireReading
	if err := json.Unmarshal(raw, &w); err != nil {
		return Reading{}, malformed("reading", "", err)
	}
	t, err := parseTimestamp(w.RecordedAt)
	if err != nil {
		return Reading{}, malformed("reading", "recorded_at", err)
	}
	return Reading{
		SensorID:    string(w.SensorID),
		Timestamp:   t,
		CO2:         float64(w.CO2),
		Temperature: float64(w.Temperature),
		Humidity:    float64(w.Humidity),
	}, nil
}

type wireSensorUpdate struct {
	SensorID flexID          `json:"sensor_id"`
	Reading  json.RawMessage `json:"reading"`
}

// ParseSensorUpdate decodes a sensor_update push event payload.
func ParseSensorUpdate(payload []byte) (Reading, error) {
	var w wireSensorUpdate
	if err := json.Unmarshal(payload, &w); err != nil {
		return Reading{}, malformed("sensor_update", "", err)
	}
	if w.SensorID == "" {
		return Reading{}, malformed("sensor_update", "sensor_id", fmt.Errorf("missing"))
	}
	if len(w.Reading) == 0 {
		return Reading{}, malformed("sensor_update", "reading", fmt.Errorf("missing"))
	}
	r, err := ParseReading(w.Reading)
	if err != nil {
		return Reading{}, err
	}
	r.SensorID = string(w.SensorID)
	return r, nil
}

type wireAlert struct {
	ID         flexID    `json:"id"`
	SensorID   flexID    `json:"sensor_id"`
	SensorName string    `json:"sensor_name"`
	Type       string    `json:"type"`
	Message    string    `json:"message"`
	Value      flexFloat `json:"value"`
	Timestamp  string    `json:"timestamp"`
	CreatedAt  string    `json:"created_at"`
	Status     string    `json:"status"`
}

// ParseAlert coerces one backend alert record.
func ParseAlert(raw json.RawMessage) (Alert, error) {
	var w wireAlert
	if err := json.Unmarshal(raw, &w); err != nil {
		return Alert{}, malformed("alert", "", err)
	}
	a := Alert{
		ID:         string(w.ID),
		SensorID:   string(w.SensorID),
		SensorName: w.SensorName,
		Message:    w.Message,
		Value:      float64(w.Value),
		Type:       AlertInfo,
		Status:     AlertNew,
	}
	switch AlertType(w.Type) {
	case AlertWarning, AlertCritical:
		a.Type = AlertType(w.Type)
	}
	switch AlertStatus(w.Status) {
	case AlertAcknowledged, AlertResolved:
		a.Status = AlertStatus(w.Status)
	}
	ts := w.Timestamp
	if ts == "" {
		ts = w.CreatedAt
	}
	if ts != "" {
		t, err := parseTimestamp(ts)
		if err != nil {
			return Alert{}, malformed("alert", "timestamp", err)
		}
		a.Timestamp = t
	}
	return a, nil
}

package models

import "time"

// Status is the operational state reported for a sensor.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
	StatusWarning Status = "warning"
)

// Sensor is the canonical in-memory representation of one telemetry source.
// It is owned by the registry: everything else reads copies.
type Sensor struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Location    string    `json:"location"`
	Status      Status    `json:"status"`
	CO2         float64   `json:"co2"`         // ppm
	Temperature float64   `json:"temperature"` // Celsius
	Humidity    float64   `json:"humidity"`    // Percentage 0-100
	LastReading time.Time `json:"last_reading"`
	Battery     *int      `json:"battery,omitempty"` // Percentage, nil when not battery powered
	IsLive      bool      `json:"is_live"`
}

// Reading is one immutable timestamped sample from a sensor.
type Reading struct {
	SensorID    string    `json:"sensor_id"`
	Timestamp   time.Time `json:"timestamp"`
	CO2         float64   `json:"co2"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
}

// AlertType classifies the severity of an alert.
type AlertType string

const (
	AlertInfo     AlertType = "info"
	AlertWarning  AlertType = "warning"
	AlertCritical AlertType = "critical"
)

// AlertStatus is the triage state of an alert.
type AlertStatus string

const (
	AlertNew          AlertStatus = "new"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertResolved     AlertStatus = "resolved"
)

// Alert is a backend-raised air quality alert.
type Alert struct {
	ID         string      `json:"id"`
	SensorID   string      `json:"sensor_id"`
	SensorName string      `json:"sensor_name"`
	Type       AlertType   `json:"type"`
	Message    string      `json:"message"`
	Value      float64     `json:"value"`
	Timestamp  time.Time   `json:"timestamp"`
	Status     AlertStatus `json:"status"`
}

// AggregateStats is the backend-computed average across all sensors.
type AggregateStats struct {
	AvgCO2         float64 `json:"avgCo2"`
	AvgTemperature float64 `json:"avgTemperature"`
	AvgHumidity    float64 `json:"avgHumidity"`
}

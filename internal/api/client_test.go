package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"aerium-dashboard/internal/models"
)

// refreshableToken counts refreshes for the 401 retry test.
type refreshableToken struct {
	mu        sync.Mutex
	current   string
	refreshed string
	refreshes int
}

func (t *refreshableToken) Token() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

func (t *refreshableToken) Refresh(_ context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.refreshes++
	t.current = t.refreshed
	return t.current, nil
}

func newTestClient(handler http.Handler, tokens TokenSource) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)
	return NewClient(server.URL, tokens, 5*time.Second), server
}

func TestListSensorsSendsBearerAndParses(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("Authorization = %q, want Bearer tok-1", got)
		}
		if r.URL.Path != "/sensors" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sensors": []map[string]any{
				{"id": 1, "name": "Office", "status": "online", "co2": "640", "lastReading": "2026-03-14T10:00:00Z"},
				{"name": "broken, no id"},
				{"id": 2, "name": "Lab", "status": "warning", "co2": 910},
			},
		})
	})
	client, server := newTestClient(handler, StaticToken("tok-1"))
	defer server.Close()

	sensors, err := client.ListSensors(context.Background())
	if err != nil {
		t.Fatalf("ListSensors: %v", err)
	}
	if len(sensors) != 2 {
		t.Fatalf("expected 2 sensors (malformed one skipped), got %d", len(sensors))
	}
	if sensors[0].ID != "1" || sensors[0].CO2 != 640 {
		t.Errorf("unexpected first sensor: %+v", sensors[0])
	}
	if sensors[1].Status != models.StatusWarning {
		t.Errorf("unexpected second sensor: %+v", sensors[1])
	}
}

func TestUnauthorizedTriggersOneRefreshAndRetry(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("Authorization")
		mu.Lock()
		seen = append(seen, token)
		mu.Unlock()
		if token != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error": "token expired"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"sensors": []any{}})
	})
	tokens := &refreshableToken{current: "stale", refreshed: "fresh"}
	client, server := newTestClient(handler, tokens)
	defer server.Close()

	if _, err := client.ListSensors(context.Background()); err != nil {
		t.Fatalf("ListSensors after refresh: %v", err)
	}
	if tokens.refreshes != 1 {
		t.Errorf("refreshes = %d, want 1", tokens.refreshes)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != "Bearer stale" || seen[1] != "Bearer fresh" {
		t.Errorf("requests = %v, want stale then fresh", seen)
	}
}

func TestUnauthorizedAfterRefreshFails(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": "nope"}`))
	})
	client, server := newTestClient(handler, StaticToken("always-bad"))
	defer server.Close()

	_, err := client.ListSensors(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 APIError after single retry, got %v", err)
	}
}

func TestCreateSensorRejectionIsCreationError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["sensor_type"] != "simulation" {
			t.Errorf("sensor_type = %q", body["sensor_type"])
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": "name already exists"}`))
	})
	client, server := newTestClient(handler, StaticToken("tok"))
	defer server.Close()

	_, err := client.CreateSensor(context.Background(), "Dup", "Building A", "simulation")
	var creation *CreationError
	if !errors.As(err, &creation) {
		t.Fatalf("expected CreationError, got %T: %v", err, err)
	}
	if creation.Message != "name already exists" {
		t.Errorf("Message = %q, want the backend's message", creation.Message)
	}
}

func TestCreateSensorSuccess(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sensor": map[string]any{"id": "s9", "name": "Kitchen", "status": "online"},
		})
	})
	client, server := newTestClient(handler, StaticToken("tok"))
	defer server.Close()

	s, err := client.CreateSensor(context.Background(), "Kitchen", "Building B", "real")
	if err != nil {
		t.Fatalf("CreateSensor: %v", err)
	}
	if s.ID != "s9" || !s.IsLive {
		t.Errorf("unexpected sensor: %+v", s)
	}
}

func TestSensorReadingsQueryParams(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/readings/sensor/s1" {
			t.Errorf("path = %q", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("hours") != "24" || q.Get("limit") != "48" {
			t.Errorf("query = %v", q)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"readings": []map[string]any{
				{"co2": 700, "temperature": 22, "humidity": 50, "recorded_at": "2026-03-14T10:00:00Z"},
			},
		})
	})
	client, server := newTestClient(handler, StaticToken("tok"))
	defer server.Close()

	readings, err := client.SensorReadings(context.Background(), "s1", 24, 48)
	if err != nil {
		t.Fatalf("SensorReadings: %v", err)
	}
	if len(readings) != 1 {
		t.Fatalf("expected 1 reading, got %d", len(readings))
	}
	if readings[0].SensorID != "s1" {
		t.Errorf("SensorID should default to the requested sensor, got %q", readings[0].SensorID)
	}
}

func TestAlertsStatusFilter(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("status") != "new" || q.Get("limit") != "5" {
			t.Errorf("query = %v", q)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"alerts": []map[string]any{
				{"id": 1, "sensor_id": "s1", "type": "warning", "message": "High CO2", "value": 1250, "status": "new"},
			},
		})
	})
	client, server := newTestClient(handler, StaticToken("tok"))
	defer server.Close()

	alerts, err := client.Alerts(context.Background(), models.AlertNew, 5)
	if err != nil {
		t.Fatalf("Alerts: %v", err)
	}
	if len(alerts) != 1 || alerts[0].Type != models.AlertWarning {
		t.Errorf("unexpected alerts: %+v", alerts)
	}
}

func TestAggregate(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"avgCo2": 712.4, "avgTemperature": 22.8, "avgHumidity": 51.0,
		})
	})
	client, server := newTestClient(handler, StaticToken("tok"))
	defer server.Close()

	stats, err := client.Aggregate(context.Background())
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if stats.AvgCO2 != 712.4 || stats.AvgTemperature != 22.8 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestTransportErrorPropagates(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", StaticToken("tok"), 200*time.Millisecond)
	if _, err := client.ListSensors(context.Background()); err == nil {
		t.Fatal("expected transport error")
	}
}

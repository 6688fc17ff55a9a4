package aggregator

import (
	"testing"
	"time"

	"aerium-dashboard/internal/models"
)

func TestHealthScore(t *testing.T) {
	tests := []struct {
		name     string
		co2      float64
		temp     float64
		humidity float64
		want     int
	}{
		{"ideal climate", 400, 22, 50, 100},
		{"co2 penalty only", 700, 22, 50, 90},
		{"co2 penalty capped at 40", 5000, 22, 50, 60},
		{"temp slightly off", 400, 25, 50, 95},
		{"temp far off", 400, 30, 50, 85},
		{"humidity slightly off", 400, 22, 65, 95},
		{"humidity far off", 400, 22, 80, 85},
		{"all penalties stack", 5000, 35, 95, 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HealthScore(tt.co2, tt.temp, tt.humidity); got != tt.want {
				t.Errorf("HealthScore(%v, %v, %v) = %d, want %d", tt.co2, tt.temp, tt.humidity, got, tt.want)
			}
		})
	}
}

func TestHealthScoreNeverNegative(t *testing.T) {
	if got := HealthScore(100000, -40, 200); got != 0 {
		t.Errorf("expected floor of 0, got %d", got)
	}
}

func TestLevelForCO2(t *testing.T) {
	tests := []struct {
		co2  float64
		want AirQualityLevel
	}{
		{350, AirExcellent},
		{400, AirGood},
		{799, AirGood},
		{800, AirModerate},
		{1000, AirPoor},
		{1500, AirHazardous},
	}

	for _, tt := range tests {
		if got := LevelForCO2(tt.co2); got != tt.want {
			t.Errorf("LevelForCO2(%v) = %s, want %s", tt.co2, got, tt.want)
		}
	}
}

func TestComputeKPIsBackendWins(t *testing.T) {
	sensors := []models.Sensor{
		{ID: "a", CO2: 600, Temperature: 22, Humidity: 50, Status: models.StatusOnline},
		{ID: "b", CO2: 800, Temperature: 24, Humidity: 60, Status: models.StatusOffline},
	}
	backend := models.AggregateStats{AvgCO2: 650, AvgTemperature: 21.5, AvgHumidity: 48}

	k := ComputeKPIs(sensors, backend, nil)
	if k.AvgCO2 != 650 || k.AvgTemperature != 21.5 || k.AvgHumidity != 48 {
		t.Errorf("backend aggregate should win, got %+v", k)
	}
	if k.OnlineCount != 1 || k.TotalCount != 2 {
		t.Errorf("online/total = %d/%d, want 1/2", k.OnlineCount, k.TotalCount)
	}
}

func TestComputeKPIsLocalFallback(t *testing.T) {
	sensors := []models.Sensor{
		{ID: "a", CO2: 600, Temperature: 22, Humidity: 50, Status: models.StatusOnline},
		{ID: "b", CO2: 800, Temperature: 24, Humidity: 60, Status: models.StatusOnline},
	}

	// Zero backend aggregate falls back to local means per field.
	k := ComputeKPIs(sensors, models.AggregateStats{}, nil)
	if k.AvgCO2 != 700 {
		t.Errorf("AvgCO2 = %v, want 700", k.AvgCO2)
	}
	if k.AvgTemperature != 23 {
		t.Errorf("AvgTemperature = %v, want 23", k.AvgTemperature)
	}
	if k.AvgHumidity != 55 {
		t.Errorf("AvgHumidity = %v, want 55", k.AvgHumidity)
	}
}

func TestComputeKPIsSeriesPeakAndMin(t *testing.T) {
	at := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	series := []models.Reading{
		{Timestamp: at, CO2: 700},
		{Timestamp: at.Add(30 * time.Second), CO2: 950},
		{Timestamp: at.Add(60 * time.Second), CO2: 620},
	}

	k := ComputeKPIs(nil, models.AggregateStats{}, series)
	if k.PeakCO2 != 950 {
		t.Errorf("PeakCO2 = %v, want 950", k.PeakCO2)
	}
	if k.MinCO2 != 620 {
		t.Errorf("MinCO2 = %v, want 620", k.MinCO2)
	}
}

func TestComputeKPIsEmpty(t *testing.T) {
	k := ComputeKPIs(nil, models.AggregateStats{}, nil)
	if k.TotalCount != 0 || k.OnlineCount != 0 || k.AvgCO2 != 0 {
		t.Errorf("expected zero KPIs, got %+v", k)
	}
}

package aggregator

import (
	"math"

	"aerium-dashboard/internal/models"
)

// AirQualityLevel classifies a CO2 concentration.
type AirQualityLevel string

const (
	AirExcellent AirQualityLevel = "excellent"
	AirGood      AirQualityLevel = "good"
	AirModerate  AirQualityLevel = "moderate"
	AirPoor      AirQualityLevel = "poor"
	AirHazardous AirQualityLevel = "hazardous"
)

// LevelForCO2 maps a CO2 concentration in ppm to its quality level.
func LevelForCO2(co2 float64) AirQualityLevel {
	switch {
	case co2 < 400:
		return AirExcellent
	case co2 < 800:
		return AirGood
	case co2 < 1000:
		return AirModerate
	case co2 < 1500:
		return AirPoor
	default:
		return AirHazardous
	}
}

// KPIs are the derived dashboard figures, recomputed on every cycle from
// the registry snapshot and the latest trend series.
type KPIs struct {
	AvgCO2         float64
	AvgTemperature float64
	AvgHumidity    float64
	HealthScore    int
	OnlineCount    int
	TotalCount     int
	PeakCO2        float64
	MinCO2         float64
}

// ComputeKPIs derives the dashboard figures. Backend-provided aggregate
// values win; any value that is absent or zero falls back to a locally
// computed mean over the sensor snapshot.
func ComputeKPIs(sensors []models.Sensor, backend models.AggregateStats, series []models.Reading) KPIs {
	k := KPIs{
		AvgCO2:         backend.AvgCO2,
		AvgTemperature: backend.AvgTemperature,
		AvgHumidity:    backend.AvgHumidity,
		TotalCount:     len(sensors),
	}

	if len(sensors) > 0 {
		var co2, temp, humidity float64
		for _, s := range sensors {
			co2 += s.CO2
			temp += s.Temperature
			humidity += s.Humidity
			if s.Status == models.StatusOnline {
				k.OnlineCount++
			}
		}
		n := float64(len(sensors))
		if k.AvgCO2 == 0 {
			k.AvgCO2 = math.Round(co2 / n)
		}
		if k.AvgTemperature == 0 {
			k.AvgTemperature = temp / n
		}
		if k.AvgHumidity == 0 {
			k.AvgHumidity = math.Round(humidity / n)
		}
	}

	k.HealthScore = HealthScore(k.AvgCO2, k.AvgTemperature, k.AvgHumidity)

	for i, r := range series {
		if i == 0 || r.CO2 > k.PeakCO2 {
			k.PeakCO2 = r.CO2
		}
		if i == 0 || r.CO2 < k.MinCO2 {
			k.MinCO2 = r.CO2
		}
	}
	return k
}

// HealthScore maps the aggregate climate onto a 0-100 score. CO2 above
// 400 ppm is the dominant penalty; temperature and humidity outside
// their comfort bands take smaller fixed penalties. Floored at 0.
func HealthScore(co2, temp, humidity float64) int {
	score := 100.0

	if co2 > 400 {
		score -= math.Min(40, (co2-400)/30)
	}

	switch {
	case temp < 18 || temp > 26:
		score -= 15
	case temp < 20 || temp > 24:
		score -= 5
	}

	switch {
	case humidity < 30 || humidity > 70:
		score -= 15
	case humidity < 40 || humidity > 60:
		score -= 5
	}

	if score < 0 {
		score = 0
	}
	return int(math.Round(score))
}

// Package aggregator turns multi-sensor historical reads into the single
// time-bucketed CO2 series behind the overview chart, and derives the
// dashboard KPIs.
package aggregator

import (
	"math"
	"sort"
	"time"

	"aerium-dashboard/internal/models"
)

// BucketWidth is the fixed grouping interval for the trend series.
const BucketWidth = 30 * time.Second

// BucketKey assigns a timestamp to its bucket: floor(ts/width)*width,
// computed on millisecond precision.
func BucketKey(t time.Time, width time.Duration) time.Time {
	widthMillis := width.Milliseconds()
	key := t.UnixMilli() / widthMillis * widthMillis
	return time.UnixMilli(key).UTC()
}

// BuildSeries merges the reading lists of all sensors into one series:
// one entry per non-empty bucket, CO2 averaged across every contributing
// sensor and rounded, ascending by time. The series is rebuilt from
// scratch on every call; temperature and humidity are not aggregated
// here, they are read per sensor from the registry instead.
func BuildSeries(lists [][]models.Reading) []models.Reading {
	buckets := make(map[int64][]float64)
	widthMillis := BucketWidth.Milliseconds()

	for _, readings := range lists {
		for _, r := range readings {
			key := r.Timestamp.UnixMilli() / widthMillis * widthMillis
			buckets[key] = append(buckets[key], r.CO2)
		}
	}

	keys := make([]int64, 0, len(buckets))
	for key := range buckets {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	series := make([]models.Reading, 0, len(keys))
	for _, key := range keys {
		values := buckets[key]
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		series = append(series, models.Reading{
			Timestamp: time.UnixMilli(key).UTC(),
			CO2:       math.Round(sum / float64(len(values))),
		})
	}
	return series
}

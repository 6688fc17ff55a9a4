// Package scheduler orchestrates the periodic historical reads that feed
// the trend chart and the per-sensor sparklines.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"aerium-dashboard/internal/aggregator"
	"aerium-dashboard/internal/models"
)

// ReadingsAPI is the backend surface the fetcher needs.
type ReadingsAPI interface {
	SensorReadings(ctx context.Context, id string, hours, limit int) ([]models.Reading, error)
}

// SensorSource supplies the current sensor set. Satisfied by
// *registry.Registry.
type SensorSource interface {
	Snapshot() []models.Sensor
}

// FetcherConfig holds the windows and cadences for both fetch families.
type FetcherConfig struct {
	TrendInterval time.Duration // trend re-fetch cadence
	TrendHours    int           // trend window, hours back
	TrendLimit    int           // max samples per sensor for the trend
	SparkHours    int           // sparkline window, hours back
	SparkLimit    int           // max samples per sensor for sparklines
	CycleTimeout  time.Duration // upper bound for one fetch cycle
}

// Fetcher runs bounded historical reads for every known sensor, one guard
// per fetch family so overlapping cycles never execute in parallel.
// Results are published atomically; a failed cycle keeps the previous
// data rather than blanking the dashboard.
type Fetcher struct {
	api     ReadingsAPI
	sensors SensorSource
	cfg     FetcherConfig

	trendGuard Guard
	sparkGuard Guard

	mu         sync.RWMutex
	trend      []models.Reading
	sparklines map[string][]float64

	countMu   sync.Mutex
	lastCount int
	haveCount bool

	kick chan struct{}
}

// NewFetcher creates an idle fetcher. Call Run to start the cycles.
func NewFetcher(api ReadingsAPI, sensors SensorSource, cfg FetcherConfig) *Fetcher {
	if cfg.TrendInterval <= 0 {
		cfg.TrendInterval = 30 * time.Second
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = 20 * time.Second
	}
	return &Fetcher{
		api:        api,
		sensors:    sensors,
		cfg:        cfg,
		sparklines: make(map[string][]float64),
		kick:       make(chan struct{}, 1),
	}
}

// OnRegistryChange is wired to the registry's change callback. A cycle is
// kicked only when the sensor set size actually changed.
func (f *Fetcher) OnRegistryChange(count int) {
	f.countMu.Lock()
	changed := !f.haveCount || count != f.lastCount
	f.lastCount = count
	f.haveCount = true
	f.countMu.Unlock()

	if !changed {
		return
	}
	select {
	case f.kick <- struct{}{}:
	default:
	}
}

// Run drives both fetch families until the context is cancelled: both
// once at start and on every sensor set size change, the trend family
// additionally on its fixed ticker.
func (f *Fetcher) Run(ctx context.Context) {
	log.Println("Fetcher: Starting")
	f.RunTrendCycle(ctx)
	f.RunSparklineCycle(ctx)

	ticker := time.NewTicker(f.cfg.TrendInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Fetcher: Stopping")
			return
		case <-ticker.C:
			f.RunTrendCycle(ctx)
		case <-f.kick:
			f.RunTrendCycle(ctx)
			f.RunSparklineCycle(ctx)
		}
	}
}

// RunTrendCycle fetches the trend window for every sensor and rebuilds
// the aggregated series. Skipped entirely when a trend cycle is already
// in flight.
func (f *Fetcher) RunTrendCycle(ctx context.Context) {
	if !f.trendGuard.TryAcquire() {
		return
	}
	defer f.trendGuard.Release()

	sensors := f.sensors.Snapshot()
	if len(sensors) == 0 {
		f.mu.Lock()
		f.trend = nil
		f.mu.Unlock()
		return
	}

	lists, failures := f.fetchAll(ctx, sensors, f.cfg.TrendHours, f.cfg.TrendLimit)
	if failures == len(sensors) {
		// Nothing came back; keep whatever the dashboard already shows.
		log.Printf("Fetcher: Trend cycle failed for all %d sensors, keeping previous series", len(sensors))
		return
	}

	series := aggregator.BuildSeries(lists)
	f.mu.Lock()
	f.trend = series
	f.mu.Unlock()
}

// RunSparklineCycle fetches the short window for every sensor and stores
// the per-sensor CO2 series, oldest first.
func (f *Fetcher) RunSparklineCycle(ctx context.Context) {
	if !f.sparkGuard.TryAcquire() {
		return
	}
	defer f.sparkGuard.Release()

	sensors := f.sensors.Snapshot()
	if len(sensors) == 0 {
		f.mu.Lock()
		f.sparklines = make(map[string][]float64)
		f.mu.Unlock()
		return
	}

	lists, failures := f.fetchAll(ctx, sensors, f.cfg.SparkHours, f.cfg.SparkLimit)
	if failures == len(sensors) {
		log.Printf("Fetcher: Sparkline cycle failed for all %d sensors, keeping previous data", len(sensors))
		return
	}

	next := make(map[string][]float64, len(sensors))
	for i, sensor := range sensors {
		readings := lists[i]
		values := make([]float64, len(readings))
		// The backend sends newest first; sparklines want oldest first.
		for j, r := range readings {
			values[len(readings)-1-j] = r.CO2
		}
		next[sensor.ID] = values
	}

	f.mu.Lock()
	f.sparklines = next
	f.mu.Unlock()
}

// fetchAll issues one bounded read per sensor in parallel. A failure on
// any individual sensor degrades to an empty result for that sensor so
// one bad sensor never blocks the others. The whole fan-out shares a
// single timeout so a slow network cannot hold a guard forever.
func (f *Fetcher) fetchAll(ctx context.Context, sensors []models.Sensor, hours, limit int) ([][]models.Reading, int) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.CycleTimeout)
	defer cancel()

	lists := make([][]models.Reading, len(sensors))
	var failed sync.Map

	var wg sync.WaitGroup
	for i, sensor := range sensors {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			readings, err := f.api.SensorReadings(ctx, id, hours, limit)
			if err != nil {
				log.Printf("Fetcher: Readings for sensor %s failed: %v", id, err)
				failed.Store(i, true)
				return
			}
			lists[i] = readings
		}(i, sensor.ID)
	}
	wg.Wait()

	failures := 0
	failed.Range(func(_, _ any) bool {
		failures++
		return true
	})
	return lists, failures
}

// TrendSeries returns a copy of the latest aggregated series.
func (f *Fetcher) TrendSeries() []models.Reading {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]models.Reading, len(f.trend))
	copy(out, f.trend)
	return out
}

// Sparklines returns a copy of the latest per-sensor CO2 series.
func (f *Fetcher) Sparklines() map[string][]float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string][]float64, len(f.sparklines))
	for id, values := range f.sparklines {
		copied := make([]float64, len(values))
		copy(copied, values)
		out[id] = copied
	}
	return out
}

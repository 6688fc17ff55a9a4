// Package registry holds the authoritative in-memory table of sensors.
// It is the only shared mutable state in the dashboard: every other
// component either feeds it or reads copied snapshots from it.
package registry

import (
	"context"
	"log"
	"sync"

	"aerium-dashboard/internal/models"
)

// SensorAPI is the backend surface the registry needs. Satisfied by
// *api.Client; narrowed so tests can stub it.
type SensorAPI interface {
	ListSensors(ctx context.Context) ([]models.Sensor, error)
	CreateSensor(ctx context.Context, name, location, sensorType string) (models.Sensor, error)
	UpdateSensor(ctx context.Context, id string, fields map[string]string) error
	DeleteSensor(ctx context.Context, id string) error
	CreateReading(ctx context.Context, sensorID string, co2, temperature, humidity float64) error
}

// Registry is the owned sensor store with an explicit open/close
// lifecycle. A closed registry ignores all mutations, which makes late
// results from in-flight fetches harmless.
type Registry struct {
	api SensorAPI

	mu      sync.RWMutex
	active  bool
	session string
	table   []models.Sensor
	index   map[string]int // sensor id -> position in table

	onChange func(count int)
}

// New creates a closed registry. Call Open to start a session.
func New(api SensorAPI) *Registry {
	return &Registry{
		api:   api,
		index: make(map[string]int),
	}
}

// Open starts a session. The table stays empty until the first Refresh.
func (r *Registry) Open(session string) {
	r.mu.Lock()
	r.active = true
	r.session = session
	r.mu.Unlock()
}

// Close ends the session and clears the table. Mutations arriving after
// Close are dropped.
func (r *Registry) Close() {
	r.mu.Lock()
	r.active = false
	r.session = ""
	r.table = nil
	r.index = make(map[string]int)
	r.mu.Unlock()
}

// SetOnChange registers a callback invoked with the sensor count after
// every table replace or removal. Used by the bulk fetch scheduler to
// re-run when the sensor set size changes.
func (r *Registry) SetOnChange(fn func(count int)) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

// Refresh fetches the full sensor list and replaces the table wholesale.
// Readers never observe a half-replaced table: the swap happens under the
// write lock and snapshots are copies. Without an active session the
// table is cleared instead.
func (r *Registry) Refresh(ctx context.Context) error {
	r.mu.RLock()
	active := r.active
	r.mu.RUnlock()
	if !active {
		r.replace(nil)
		return nil
	}

	sensors, err := r.api.ListSensors(ctx)
	if err != nil {
		log.Printf("Registry: Refresh failed: %v", err)
		return err
	}

	r.replace(sensors)
	return nil
}

// replace swaps in a new table atomically and fires the change callback.
func (r *Registry) replace(sensors []models.Sensor) {
	index := make(map[string]int, len(sensors))
	for i, s := range sensors {
		index[s.ID] = i
	}

	r.mu.Lock()
	if !r.active && sensors != nil {
		// Session ended while the fetch was in flight; drop the result.
		r.mu.Unlock()
		return
	}
	r.table = sensors
	r.index = index
	notify := r.onChange
	count := len(sensors)
	r.mu.Unlock()

	if notify != nil {
		notify(count)
	}
}

// Create registers a sensor on the backend, then refreshes so the table
// carries the canonical server-assigned record.
func (r *Registry) Create(ctx context.Context, name, location, sensorType string) (models.Sensor, error) {
	created, err := r.api.CreateSensor(ctx, name, location, sensorType)
	if err != nil {
		return models.Sensor{}, err
	}
	if err := r.Refresh(ctx); err != nil {
		log.Printf("Registry: Refresh after create failed: %v", err)
	}
	return created, nil
}

// Update applies a partial update on the backend, then refreshes.
func (r *Registry) Update(ctx context.Context, id string, fields map[string]string) error {
	if err := r.api.UpdateSensor(ctx, id, fields); err != nil {
		return err
	}
	if err := r.Refresh(ctx); err != nil {
		log.Printf("Registry: Refresh after update failed: %v", err)
	}
	return nil
}

// Remove deletes the sensor on the backend and drops it from the table.
// The deleted id is known, so no full refresh is needed. Removing an id
// that is not in the table leaves the table unchanged.
func (r *Registry) Remove(ctx context.Context, id string) error {
	if err := r.api.DeleteSensor(ctx, id); err != nil {
		return err
	}

	r.mu.Lock()
	i, ok := r.index[id]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	r.table = append(r.table[:i], r.table[i+1:]...)
	r.index = make(map[string]int, len(r.table))
	for j, s := range r.table {
		r.index[s.ID] = j
	}
	notify := r.onChange
	count := len(r.table)
	r.mu.Unlock()

	if notify != nil {
		notify(count)
	}
	return nil
}

// AddReading submits a manual reading, then refreshes so the table picks
// up the new live metrics.
func (r *Registry) AddReading(ctx context.Context, sensorID string, co2, temperature, humidity float64) error {
	if err := r.api.CreateReading(ctx, sensorID, co2, temperature, humidity); err != nil {
		return err
	}
	if err := r.Refresh(ctx); err != nil {
		log.Printf("Registry: Refresh after reading failed: %v", err)
	}
	return nil
}

// ApplyReading patches the live metrics of one sensor in place. Events
// for unknown sensors are dropped, deliberately and silently.
func (r *Registry) ApplyReading(sensorID string, reading models.Reading) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return
	}
	i, ok := r.index[sensorID]
	if !ok {
		return
	}
	r.table[i].CO2 = reading.CO2
	r.table[i].Temperature = reading.Temperature
	r.table[i].Humidity = reading.Humidity
	r.table[i].LastReading = reading.Timestamp
}

// Snapshot returns a copy of the table in backend order.
func (r *Registry) Snapshot() []models.Sensor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Sensor, len(r.table))
	copy(out, r.table)
	return out
}

// Get returns a copy of one sensor by id.
func (r *Registry) Get(id string) (models.Sensor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[id]
	if !ok {
		return models.Sensor{}, false
	}
	return r.table[i], true
}

// Count returns the number of known sensors.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.table)
}

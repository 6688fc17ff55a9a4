package push

import (
	"log"

	"aerium-dashboard/internal/models"
)

// EventSensorUpdate is the push event carrying one live reading.
const EventSensorUpdate = "sensor_update"

// Subscriber is the channel surface the ingestor needs.
type Subscriber interface {
	Subscribe(event string, handler Handler) (unsubscribe func())
}

// RegistryWriter is the registry surface the ingestor needs.
type RegistryWriter interface {
	ApplyReading(sensorID string, reading models.Reading)
}

// Ingestor bridges sensor_update push events into registry patches.
// Exactly one subscription is held between Start and Stop, so handlers
// never accumulate across reconnects or remounts.
type Ingestor struct {
	channel     Subscriber
	registry    RegistryWriter
	unsubscribe func()
}

// NewIngestor creates an ingestor. Call Start to install the subscription.
func NewIngestor(channel Subscriber, registry RegistryWriter) *Ingestor {
	return &Ingestor{channel: channel, registry: registry}
}

// Start subscribes to sensor_update events. Calling Start twice replaces
// the previous subscription instead of stacking a second handler.
func (in *Ingestor) Start() {
	in.Stop()
	in.unsubscribe = in.channel.Subscribe(EventSensorUpdate, in.handle)
	log.Println("Ingestor: Subscribed to sensor updates")
}

// Stop removes the subscription. Safe to call when not started.
func (in *Ingestor) Stop() {
	if in.unsubscribe != nil {
		in.unsubscribe()
		in.unsubscribe = nil
	}
}

// handle decodes one push event and folds it into the registry. Malformed
// payloads are logged and dropped; events for unknown sensors are dropped
// silently by the registry.
func (in *Ingestor) handle(payload []byte) {
	reading, err := models.ParseSensorUpdate(payload)
	if err != nil {
		log.Printf("Ingestor: Dropping event: %v", err)
		return
	}
	in.registry.ApplyReading(reading.SensorID, reading)
}

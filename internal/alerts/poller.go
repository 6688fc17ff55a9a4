// Package alerts polls the backend alert list on a fixed cadence, with
// the same guard discipline as the bulk fetch scheduler.
package alerts

import (
	"context"
	"log"
	"sync"
	"time"

	"aerium-dashboard/internal/models"
	"aerium-dashboard/internal/scheduler"
)

// AlertAPI is the backend surface the poller needs.
type AlertAPI interface {
	Alerts(ctx context.Context, status models.AlertStatus, limit int) ([]models.Alert, error)
	UpdateAlertStatus(ctx context.Context, id string, status models.AlertStatus) error
	DeleteAlert(ctx context.Context, id string) error
}

// Poller keeps the latest snapshot of new alerts. Poll failures keep the
// previous snapshot; the dashboard prefers stale alerts over none.
type Poller struct {
	api      AlertAPI
	interval time.Duration
	limit    int

	guard scheduler.Guard

	mu     sync.RWMutex
	latest []models.Alert

	kick chan struct{}
}

// NewPoller creates an idle poller for new alerts.
func NewPoller(api AlertAPI, interval time.Duration, limit int) *Poller {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Poller{
		api:      api,
		interval: interval,
		limit:    limit,
		kick:     make(chan struct{}, 1),
	}
}

// Run polls once immediately, then on the fixed cadence, until the
// context is cancelled.
func (p *Poller) Run(ctx context.Context) {
	log.Println("AlertPoller: Starting")
	p.Poll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("AlertPoller: Stopping")
			return
		case <-ticker.C:
			p.Poll(ctx)
		case <-p.kick:
			p.Poll(ctx)
		}
	}
}

// Poll fetches the filtered alert list once. Skipped when a poll is
// already in flight.
func (p *Poller) Poll(ctx context.Context) {
	if !p.guard.TryAcquire() {
		return
	}
	defer p.guard.Release()

	alerts, err := p.api.Alerts(ctx, models.AlertNew, p.limit)
	if err != nil {
		log.Printf("AlertPoller: Poll failed, keeping previous alerts: %v", err)
		return
	}

	p.mu.Lock()
	p.latest = alerts
	p.mu.Unlock()
}

// Latest returns a copy of the most recent alert snapshot.
func (p *Poller) Latest() []models.Alert {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]models.Alert, len(p.latest))
	copy(out, p.latest)
	return out
}

// Acknowledge marks an alert as seen and schedules an immediate re-poll.
func (p *Poller) Acknowledge(ctx context.Context, id string) error {
	if err := p.api.UpdateAlertStatus(ctx, id, models.AlertAcknowledged); err != nil {
		return err
	}
	p.requestPoll()
	return nil
}

// Resolve closes an alert and schedules an immediate re-poll.
func (p *Poller) Resolve(ctx context.Context, id string) error {
	if err := p.api.UpdateAlertStatus(ctx, id, models.AlertResolved); err != nil {
		return err
	}
	p.requestPoll()
	return nil
}

// Dismiss deletes an alert and schedules an immediate re-poll.
func (p *Poller) Dismiss(ctx context.Context, id string) error {
	if err := p.api.DeleteAlert(ctx, id); err != nil {
		return err
	}
	p.requestPoll()
	return nil
}

func (p *Poller) requestPoll() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

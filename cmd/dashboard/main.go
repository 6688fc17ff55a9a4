package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"aerium-dashboard/internal/aggregator"
	"aerium-dashboard/internal/alerts"
	"aerium-dashboard/internal/api"
	"aerium-dashboard/internal/push"
	"aerium-dashboard/internal/registry"
	"aerium-dashboard/internal/scheduler"
	"aerium-dashboard/pkg/config"
)

func main() {
	log.Println("Starting Aerium Dashboard Sync Engine...")

	// Load configuration
	cfg := config.Load()

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// === Initialize REST client ===
	client := api.NewClient(cfg.APIBaseURL, api.StaticToken(cfg.APIToken), cfg.APITimeout)

	if err := client.Health(ctx); err != nil {
		log.Printf("Warning: backend health check failed: %v", err)
	}

	// === Initialize Sensor Registry ===
	reg := registry.New(client)
	reg.Open(uuid.NewString())
	defer reg.Close()

	if err := reg.Refresh(ctx); err != nil {
		log.Printf("Warning: initial sensor fetch failed: %v", err)
	}

	// === Initialize Push Channel ===
	log.Println("Connecting to push broker...")
	channel := push.NewChannel(push.ChannelConfig{
		Broker: cfg.MQTTBroker,
		// Unique suffix so reconnecting dashboards never collide on the broker.
		ClientID:     cfg.MQTTClientID + "-" + uuid.NewString()[:8],
		Username:     cfg.MQTTUsername,
		Password:     cfg.MQTTPassword,
		TopicPrefix:  cfg.MQTTTopicPrefix,
		RetryFloor:   cfg.ReconnectFloor,
		RetryCeiling: cfg.ReconnectCeiling,
		MaxAttempts:  cfg.ReconnectMaxAttempts,
	})
	channel.Connect()
	defer channel.Close()

	// === Initialize Reading Ingestor ===
	ingestor := push.NewIngestor(channel, reg)
	ingestor.Start()
	defer ingestor.Stop()

	// === Initialize Bulk Fetch Scheduler ===
	fetcher := scheduler.NewFetcher(client, reg, scheduler.FetcherConfig{
		TrendInterval: cfg.TrendInterval,
		TrendHours:    cfg.TrendHours,
		TrendLimit:    cfg.TrendLimit,
		SparkHours:    cfg.SparklineHours,
		SparkLimit:    cfg.SparklineLimit,
		CycleTimeout:  cfg.FetchTimeout,
	})
	reg.SetOnChange(fetcher.OnRegistryChange)
	go fetcher.Run(ctx)

	// === Initialize Alert Poller ===
	poller := alerts.NewPoller(client, cfg.AlertInterval, cfg.AlertLimit)
	go poller.Run(ctx)

	// === Status reporting ===
	go statusLoop(ctx, client, reg, fetcher, poller, channel)

	log.Println("=== Aerium Dashboard Sync Engine is running ===")
	log.Printf("Backend:     %s", cfg.APIBaseURL)
	log.Printf("Push broker: %s (prefix %s)", cfg.MQTTBroker, cfg.MQTTTopicPrefix)
	log.Printf("Trend:       every %s, %dh window, %d samples/sensor", cfg.TrendInterval, cfg.TrendHours, cfg.TrendLimit)
	log.Printf("Alerts:      every %s, limit %d", cfg.AlertInterval, cfg.AlertLimit)
	log.Println("Press Ctrl+C to exit...")

	// === Wait for interrupt signal ===
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	// === Graceful shutdown ===
	log.Println("Shutdown signal received, stopping...")
	cancel()

	// Let in-flight cycles finish; their results are dropped once the
	// registry is closed.
	time.Sleep(1 * time.Second)

	log.Println("Shutdown complete. Goodbye!")
}

// statusLoop periodically logs the derived dashboard figures. This is the
// headless stand-in for the UI layer reading the registry and the
// fetcher's series.
func statusLoop(
	ctx context.Context,
	client *api.Client,
	reg *registry.Registry,
	fetcher *scheduler.Fetcher,
	poller *alerts.Poller,
	channel *push.Channel,
) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sensors := reg.Snapshot()
			series := fetcher.TrendSeries()

			stats, err := client.Aggregate(ctx)
			if err != nil {
				log.Printf("Status: Aggregate fetch failed, using local means: %v", err)
			}

			k := aggregator.ComputeKPIs(sensors, stats, series)
			log.Printf("Status: %d/%d sensors online, CO2 avg %.0f ppm (%s), health %d/100, trend buckets %d, peak %.0f ppm, alerts %d, push connected=%v",
				k.OnlineCount, k.TotalCount, k.AvgCO2, aggregator.LevelForCO2(k.AvgCO2),
				k.HealthScore, len(series), k.PeakCO2, len(poller.Latest()), channel.IsConnected())
		}
	}
}

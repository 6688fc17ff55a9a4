package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Backend REST API
	APIBaseURL string
	APIToken   string
	APITimeout time.Duration

	// Push channel (MQTT)
	MQTTBroker      string
	MQTTClientID    string
	MQTTUsername    string
	MQTTPassword    string
	MQTTTopicPrefix string

	// Reconnection policy
	ReconnectFloor       time.Duration
	ReconnectCeiling     time.Duration
	ReconnectMaxAttempts int

	// Trend window (overview chart)
	TrendInterval time.Duration
	TrendHours    int
	TrendLimit    int

	// Sparkline window (per-sensor mini charts)
	SparklineHours int
	SparklineLimit int

	// Alert polling
	AlertInterval time.Duration
	AlertLimit    int

	// Upper bound for one bulk fetch cycle
	FetchTimeout time.Duration
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		APIBaseURL: getEnv("API_BASE_URL", "http://localhost:5000/api"),
		APIToken:   getEnv("API_TOKEN", ""),
		APITimeout: getEnvDuration("API_TIMEOUT", 15*time.Second),

		MQTTBroker:      getEnv("MQTT_BROKER", "tcp://localhost:1883"),
		MQTTClientID:    getEnv("MQTT_CLIENT_ID", "aerium-dashboard"),
		MQTTUsername:    getEnv("MQTT_USERNAME", ""),
		MQTTPassword:    getEnv("MQTT_PASSWORD", ""),
		MQTTTopicPrefix: getEnv("MQTT_TOPIC_PREFIX", "aerium/events"),

		ReconnectFloor:       getEnvDuration("RECONNECT_FLOOR", 500*time.Millisecond),
		ReconnectCeiling:     getEnvDuration("RECONNECT_CEILING", 3*time.Second),
		ReconnectMaxAttempts: getEnvInt("RECONNECT_MAX_ATTEMPTS", 10),

		TrendInterval: getEnvDuration("TREND_INTERVAL", 30*time.Second),
		TrendHours:    getEnvInt("TREND_HOURS", 24),
		TrendLimit:    getEnvInt("TREND_LIMIT", 48),

		SparklineHours: getEnvInt("SPARKLINE_HOURS", 1),
		SparklineLimit: getEnvInt("SPARKLINE_LIMIT", 20),

		AlertInterval: getEnvDuration("ALERT_INTERVAL", 10*time.Second),
		AlertLimit:    getEnvInt("ALERT_LIMIT", 5),

		FetchTimeout: getEnvDuration("FETCH_TIMEOUT", 20*time.Second),
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Warning: failed to parse %s as int, using default: %v", key, err)
		return defaultValue
	}
	return intValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	durationValue, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("Warning: failed to parse %s as duration, using default: %v", key, err)
		return defaultValue
	}
	return durationValue
}

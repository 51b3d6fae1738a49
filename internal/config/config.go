package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/yycweather/dashboard/internal/weather"
)

type AppConfig struct {
	OpenWeatherAPIKey string

	// CronSecret guards the scheduled trigger endpoint and the forced
	// refresh on the weather read. Empty disables the check.
	CronSecret string

	// Primary tracked city and unit system; requests default to these.
	City  string
	Units weather.Units

	// Timezone the daily gate evaluates the local hour in.
	Timezone   *time.Location
	TargetHour int

	// RedisURL empty selects the in-memory store.
	RedisURL string

	HTTPTimeout time.Duration
	SnapshotTTL time.Duration
	LastRunTTL  time.Duration

	// ForecastPoints caps the forecast request (3-hourly entries).
	ForecastPoints int

	// SchedulerInterval for the in-process trigger loop; 0 disables it.
	SchedulerInterval time.Duration

	Port string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	cfg.OpenWeatherAPIKey = os.Getenv("OPENWEATHER_API_KEY")
	cfg.CronSecret = os.Getenv("CRON_SECRET")

	cfg.City = getenvDefault("WEATHER_CITY", "Calgary")
	cfg.Units = weather.ParseUnits(getenvDefault("WEATHER_UNITS", "metric"))

	tzName := getenvDefault("WEATHER_TIMEZONE", "America/Edmonton")
	tz, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid WEATHER_TIMEZONE %q: %w", tzName, err)
	}
	cfg.Timezone = tz

	cfg.TargetHour = getenvInt("CRON_TARGET_HOUR", 8)
	if cfg.TargetHour < 0 || cfg.TargetHour > 23 {
		return nil, fmt.Errorf("CRON_TARGET_HOUR must be 0-23, got %d", cfg.TargetHour)
	}

	cfg.RedisURL = os.Getenv("REDIS_URL")

	cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	cfg.SnapshotTTL, err = getenvDuration("SNAPSHOT_TTL", "24h")
	if err != nil {
		return nil, err
	}
	cfg.LastRunTTL, err = getenvDuration("LASTRUN_TTL", "168h")
	if err != nil {
		return nil, err
	}
	cfg.SchedulerInterval, err = getenvDuration("SCHEDULER_INTERVAL", "1h")
	if err != nil {
		return nil, err
	}

	cfg.ForecastPoints = getenvInt("FORECAST_POINTS", 8)
	cfg.Port = getenvDefault("PORT", "8080")

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	v := getenvDefault(key, def)
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

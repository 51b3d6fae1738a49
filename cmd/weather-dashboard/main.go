package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"

	httpapi "github.com/yycweather/dashboard/internal/api/http"
	"github.com/yycweather/dashboard/internal/config"
	dailycron "github.com/yycweather/dashboard/internal/cron"
	"github.com/yycweather/dashboard/internal/history"
	"github.com/yycweather/dashboard/internal/kv"
	"github.com/yycweather/dashboard/internal/metrics"
	"github.com/yycweather/dashboard/internal/scheduler"
	"github.com/yycweather/dashboard/internal/weather/providers"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Key-value store: Redis when configured, in-memory otherwise.
	var store kv.Store
	if cfg.RedisURL != "" {
		redisStore, err := kv.NewRedis(context.Background(), cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisStore.Close()
		store = redisStore
	} else {
		log.Println("INFO: REDIS_URL not set; using in-memory store")
		store = kv.NewMemory()
	}

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	registry := prometheus.NewRegistry()
	coll := metrics.NewCollector(registry)

	provider := providers.NewOpenWeatherProvider(httpClient, cfg.OpenWeatherAPIKey, cfg.ForecastPoints, coll)
	merger := history.NewMerger(store)

	job := dailycron.NewJob(store, provider, merger, coll, dailycron.Config{
		City:        cfg.City,
		Units:       cfg.Units,
		Timezone:    cfg.Timezone,
		TargetHour:  cfg.TargetHour,
		SnapshotTTL: cfg.SnapshotTTL,
		LastRunTTL:  cfg.LastRunTTL,
	})

	// Optional in-process trigger loop; external schedulers hit the trigger
	// endpoint instead.
	if cfg.SchedulerInterval > 0 {
		sched := scheduler.New(job, cfg.SchedulerInterval)
		if err := sched.Start(); err != nil {
			log.Fatalf("failed to start scheduler: %v", err)
		}
		defer sched.Stop()
	}

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "weather-dashboard",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "weather-dashboard",
		})
	})

	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler(registry)))

	// API routes.
	handlers := httpapi.NewHandlers(store, provider, merger, job, coll, httpapi.Options{
		DefaultCity:      cfg.City,
		DefaultUnits:     cfg.Units,
		Timezone:         cfg.Timezone,
		CronSecret:       cfg.CronSecret,
		APIKeyConfigured: cfg.OpenWeatherAPIKey != "",
		SnapshotTTL:      cfg.SnapshotTTL,
	})
	httpapi.RegisterRoutes(app, handlers)

	// Dashboard page.
	app.Static("/", "./static")

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}

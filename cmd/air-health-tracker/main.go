package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/i474232898/air-health-tracker/internal/airquality"
	"github.com/i474232898/air-health-tracker/internal/airquality/providers"
	httpapi "github.com/i474232898/air-health-tracker/internal/api/http"
	"github.com/i474232898/air-health-tracker/internal/config"
	"github.com/i474232898/air-health-tracker/internal/scheduler"
	"github.com/i474232898/air-health-tracker/internal/store"
)

type kvStore interface {
	airquality.KVStore
	Close() error
}

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Durable storage, falling back to memory so the dashboard still works.
	var kv kvStore
	if cfg.StorePath != config.MemoryStorePath {
		db, err := store.OpenSQLite(cfg.StorePath)
		if err != nil {
			log.Printf("ERROR: store: could not open %s, keeping history in memory: %v", cfg.StorePath, err)
			kv = store.NewMemoryStore()
		} else {
			log.Printf("store: opened sqlite at %s", cfg.StorePath)
			kv = db
		}
	} else {
		kv = store.NewMemoryStore()
	}
	defer kv.Close()

	// Shared HTTP client for outbound API calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	airNow := providers.NewAirNowProvider(httpClient, cfg.AirNowAPIKey,
		providers.WithAirNowBaseURL(cfg.AirNowBaseURL),
		providers.WithAirNowDistance(cfg.AirNowDistance),
	)
	asthma := providers.NewCDCTrackingClient(httpClient, cfg.CDCBaseURL, cfg.CDCCacheTTL)

	// Core service owning the rolling window.
	service := airquality.NewService(kv, airquality.StaticRegistry(cfg.Locations), airNow, cfg.HealthPolicy,
		airquality.WithMaxDays(cfg.HistoryDays),
		airquality.WithRequestDelay(cfg.RequestDelay),
		airquality.WithClock(func() time.Time { return time.Now().In(cfg.TimeZone) }),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	service.Load(ctx)

	// Catch up on today's pass without holding up the HTTP server.
	go func() {
		runCtx, cancel := context.WithTimeout(ctx, cfg.CollectTimeout)
		defer cancel()
		if _, _, err := service.RunIfDue(runCtx, false); err != nil {
			log.Printf("startup collection failed: %v", err)
		}
	}()

	sched := scheduler.New(service, cfg.CollectionOffset, cfg.CollectTimeout, cfg.TimeZone)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "air-health-tracker",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          time.Minute,
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

	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "air-health-tracker",
		})
	})

	httpapi.RegisterRoutes(app, httpapi.Deps{
		Service:         service,
		Asthma:          asthma,
		AsthmaMeasureID: cfg.AsthmaMeasureID,
		StateFIPS:       cfg.StateFIPS,
		CollectTimeout:  cfg.CollectTimeout,
	})

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()
	log.Printf("INFO: listening on :%s with %d locations", cfg.Port, len(cfg.Locations))

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}

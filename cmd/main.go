package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/eaidavid/sistema-sub001/internal/archive"
	"github.com/eaidavid/sistema-sub001/internal/config"
	"github.com/eaidavid/sistema-sub001/internal/db"
	"github.com/eaidavid/sistema-sub001/internal/dedupe"
	"github.com/eaidavid/sistema-sub001/internal/handler"
	"github.com/eaidavid/sistema-sub001/internal/kafka"
	"github.com/eaidavid/sistema-sub001/internal/monitor"
	"github.com/eaidavid/sistema-sub001/internal/repo"
	"github.com/eaidavid/sistema-sub001/internal/service"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	DB, err := db.InitDB(cfg.DBUrl)
	if err != nil {
		log.Fatal("failed to initialize DB:", err)
	}
	defer DB.Close()

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(5)
	DB.SetConnMaxLifetime(5 * time.Minute)

	directories := repo.NewDirectoryRepo(DB)
	commissions := repo.NewCommissionRepo(DB)

	svcCfg := service.Config{
		LookupTimeout: time.Duration(cfg.LookupTimeoutMs) * time.Millisecond,
	}

	if cfg.RedisAddr != "" {
		guard, err := dedupe.NewRedisIdempotencyGuard(cfg.RedisAddr, time.Duration(cfg.IdempotencyTTLSec)*time.Second)
		if err != nil {
			log.Fatal("failed to create idempotency guard:", err)
		}
		defer guard.Close()
		svcCfg.Guard = guard

		burst, err := monitor.NewBurstWatcher(monitor.Config{
			RedisAddr: cfg.RedisAddr,
			WindowSec: cfg.BurstWindowSec,
			Threshold: cfg.BurstThreshold,
		})
		if err != nil {
			log.Fatal("failed to create burst watcher:", err)
		}
		defer burst.Close()
		svcCfg.Burst = burst
	}

	if cfg.KafkaBrokers != "" {
		producer, err := kafka.NewProducer(kafka.ProducerConfig{
			Brokers: cfg.GetKafkaBrokers(),
			Topic:   cfg.KafkaTopic,
		})
		if err != nil {
			log.Fatalf("failed to create producer: %v", err)
		}
		defer func() {
			if err := producer.Close(); err != nil {
				log.Printf("Error closing producer: %v", err)
			}
		}()
		svcCfg.Ledger = producer
	}

	if cfg.MinIOEndpoint != "" {
		archiver, err := archive.NewMinIOArchiver(cfg.MinIOEndpoint, cfg.MinIOAccessKey, cfg.MinIOSecretKey, cfg.MinIOBucket)
		if err != nil {
			log.Fatal("failed to create archiver:", err)
		}
		svcCfg.Archiver = archiver
	}

	postbackService := service.NewPostbackService(directories, directories, commissions, svcCfg)
	postbackHandler := handler.NewPostbackHandler(postbackService)
	reportsHandler := handler.NewReportsHandler(postbackService)

	app := fiber.New(fiber.Config{
		DisableStartupMessage: false,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(recover.New())
	app.Use(logger.New())

	app.Get("/webhook/:house/:event", postbackHandler.HandlePostback)
	app.Get("/affiliates/:username/stats", reportsHandler.GetAffiliateStats)
	app.Get("/houses", reportsHandler.ListHouses)
	app.Get("/health", handler.HealthCheck)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down...")
		app.Shutdown()
	}()

	log.Printf("Postback engine running on %s", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

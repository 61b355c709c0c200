package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/naperu/embudo/internal/api"
	"github.com/naperu/embudo/internal/mailer"
	"github.com/naperu/embudo/internal/metrics"
	"github.com/naperu/embudo/internal/repository"
	"github.com/naperu/embudo/internal/service"
	"github.com/naperu/embudo/internal/storage"
	"github.com/naperu/embudo/internal/superapi"
	"github.com/naperu/embudo/internal/worker"
	"github.com/naperu/embudo/internal/ws"
	"github.com/naperu/embudo/pkg/cache"
	"github.com/naperu/embudo/pkg/config"
	"github.com/naperu/embudo/pkg/database"
	"github.com/naperu/embudo/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New().WithError(err).Fatal("invalid configuration")
	}
	logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log := logger.Component("main")

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.WithError(err).Fatal("failed to run migrations")
	}
	if err := database.SeedAdmin(db, cfg); err != nil {
		log.WithError(err).Warn("failed to seed admin")
	}

	// Media storage is optional
	var store *storage.Storage
	if cfg.MinioEndpoint != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		store, err = storage.New(ctx, storage.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
			PublicURL: cfg.MinioPublicURL,
		})
		cancel()
		if err != nil {
			log.WithError(err).Warn("storage disabled, media uploads will fail")
			store = nil
		} else {
			log.WithField("endpoint", cfg.MinioEndpoint).Info("MinIO storage initialized")
		}
	}

	// Redis only backs the instance and analytics caches
	var jsonCache service.JSONCache
	if cfg.RedisURL != "" {
		redisCache, err := cache.New(cfg.RedisURL)
		if err != nil {
			log.WithError(err).Warn("redis unavailable, caching disabled")
		} else {
			defer redisCache.Close()
			jsonCache = redisCache
			log.Info("Redis cache initialized")
		}
	}

	m := metrics.New()
	repos := repository.NewRepositories(db)

	hub := ws.NewHub()
	go hub.Run()

	gateway := superapi.NewClient(cfg.SuperAPIBaseURL, cfg.SuperAPITimeout, cfg.SuperAPIRateLimit)
	mail := mailer.NewResend(cfg.ResendBaseURL, cfg.ResendAPIKey, cfg.ResendFrom)
	if cfg.ResendAPIKey == "" {
		log.Warn("RESEND_API_KEY not set, invitations will be created without email")
	}
	if cfg.WebhookSecret == "" {
		log.Warn("WEBHOOK_SECRET not set, webhook-chat will reject every event")
	}

	services := service.NewServices(repos, service.Deps{
		Gateway: gateway,
		Mailer:  mail,
		Hub:     hub,
		Cache:   jsonCache,
		Metrics: m,
	}, service.Options{
		JWTSecret:        cfg.JWTSecret,
		AppURL:           cfg.AppURL,
		InvitationTTL:    cfg.InvitationTTL,
		InstanceCacheTTL: cfg.InstanceCacheTTL,
	})

	reminders := worker.NewReminders(repos.Task, repos.Appointment, repos.Notification, services.Invitation, hub, m, worker.Config{
		Interval: cfg.ReminderInterval,
		Window:   cfg.ReminderWindow,
	})
	reminders.Start()

	server := api.NewServer(cfg, services, hub, store, m)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info("shutting down server...")

		reminders.Stop()
		if err := server.Shutdown(); err != nil {
			log.WithError(err).Error("server shutdown error")
		}
		hub.Stop()
	}()

	log.WithField("port", cfg.Port).Info("embudo server starting")
	if err := server.Listen(":" + cfg.Port); err != nil {
		log.WithError(err).Fatal("server error")
	}
}

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/havenboard/checkin/internal/audit"
	"github.com/havenboard/checkin/internal/cache"
	"github.com/havenboard/checkin/internal/http/handlers"
	"github.com/havenboard/checkin/internal/repo/postgres"
	"github.com/havenboard/checkin/internal/service"
	"github.com/havenboard/checkin/pkg/config"
	"github.com/havenboard/checkin/pkg/database"
	"github.com/havenboard/checkin/pkg/events"
	"github.com/havenboard/checkin/pkg/logger"
	mw "github.com/havenboard/checkin/pkg/middleware"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.Error("Invalid redis URL", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL)
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	if err := audit.NewRecorder(eventBus).Start(); err != nil {
		logger.Error("Failed to start audit recorder", "error", err)
		os.Exit(1)
	}

	checkInRepo := postgres.NewCheckInRepo(pool)
	listCache := cache.NewRedisListCache(redisClient, cfg.Cache.ActiveListTTL, cfg.Cache.AllListTTL)
	checkInService := service.NewCheckInService(checkInRepo, listCache, eventBus)

	h := handlers.NewCheckInsHandler(checkInService)

	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("checkin"))
	r.Use(mw.Logging)
	r.Use(mw.Recover)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:3000", "*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(mw.Health)

	r.Mount("/checkin", h.Routes())

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down check-in service...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Check-in service shutdown error", "error", err)
		}
	}()

	logger.Info("Starting check-in service", "port", cfg.Server.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Check-in service error", "error", err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"

	"opsportal/internal/activity"
	activityhandler "opsportal/internal/activity/handler"
	activitystore "opsportal/internal/activity/store/postgres"
	archivehandler "opsportal/internal/archive/handler"
	archiveservice "opsportal/internal/archive/service"
	archivestore "opsportal/internal/archive/store/postgres"
	"opsportal/internal/platform/config"
	"opsportal/internal/platform/database"
	"opsportal/internal/platform/httpserver"
	"opsportal/internal/platform/logger"
	"opsportal/internal/platform/metrics"
	"opsportal/internal/platform/middleware"
	redisplatform "opsportal/internal/platform/redis"
	"opsportal/internal/retention"
)

const migrationsDir = "db/migrations"

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.RunMigrations(ctx, db, migrationsDir); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	var redisClient *goredis.Client
	if cfg.RedisAddr != "" {
		redisClient, err = redisplatform.New(ctx, cfg.RedisAddr)
		if err != nil {
			log.Warn("redis unavailable, sweep runs without leader lock", "error", err)
		}
	}

	m := metrics.New()

	activityStore := activitystore.New(db)
	recorder := activity.NewRecorder(activityStore, log, m)
	store := archivestore.New(db, recorder, log, config.GracePeriod)
	svc := archiveservice.New(store, activityStore, recorder, log,
		archiveservice.WithMetrics(m),
	)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logger(log))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.Actor([]byte(cfg.JWTSigningKey), log))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		archivehandler.NewHandler(svc, log).Register(r)
		activityhandler.NewHandler(activityStore, log).Register(r)
	})

	if cfg.SweepEnabled {
		sweeper := retention.New(store, redisClient, log, m, cfg.SweepInterval)
		go sweeper.Run(ctx)
	}

	server := httpserver.New(cfg.Addr, r)
	go func() {
		log.Info("server listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown incomplete", "error", err)
	}
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/AlanMarvin/polytrak/internal/config"
	"github.com/AlanMarvin/polytrak/internal/engine"
	"github.com/AlanMarvin/polytrak/internal/polymarket/dataapi"
	"github.com/AlanMarvin/polytrak/internal/polymarket/gammaapi"
	"github.com/AlanMarvin/polytrak/internal/server"
	"github.com/AlanMarvin/polytrak/internal/stagecache"
	"github.com/AlanMarvin/polytrak/internal/storage"
	"github.com/AlanMarvin/polytrak/internal/storage/postgres"
	"github.com/AlanMarvin/polytrak/internal/storage/redis"
)

const (
	purgeInterval  = 15 * time.Minute
	purgeRetention = 24 * time.Hour
)

func main() {
	// Initialize logger
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(logrus.InfoLevel)

	log.Info("Starting polytrak service...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	} else {
		log.WithField("log_level", cfg.LogLevel).Warn("Unknown log level, using info")
	}

	log.WithFields(logrus.Fields{
		"environment":   cfg.Environment,
		"cache_backend": cfg.CacheBackend,
		"http_port":     cfg.HTTPPort,
		"data_api":      cfg.DataAPIBaseURL,
		"full_timeout":  cfg.FullStageTimeout.String(),
	}).Info("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to open cache store")
	}
	defer store.Close()

	log.WithField("cache_backend", cfg.CacheBackend).Info("Cache store ready")

	if p, ok := store.(stagecache.Purger); ok {
		go stagecache.RunJanitor(ctx, p, purgeInterval, purgeRetention, log)
	}

	// Initialize API clients
	dataClient := dataapi.NewClient(cfg)
	profileClient := gammaapi.NewClient(cfg)

	log.Info("API clients initialized")

	cache := stagecache.New(store, cfg.Tuning.CacheTTL, log)
	eng := engine.New(cfg, dataClient, profileClient, cache, log)
	srv := server.New(eng, cache, cfg.CORSOrigins, log)

	// The full stage may run up to its own deadline before the response is written.
	writeTimeout := cfg.FullStageTimeout + 10*time.Second
	if err := srv.ListenAndServe(ctx, cfg.HTTPPort, writeTimeout); err != nil {
		log.WithError(err).Fatal("HTTP server failed")
	}

	log.Info("Graceful shutdown complete")
}

func openStore(ctx context.Context, cfg *config.Config, log *logrus.Logger) (stagecache.Store, error) {
	switch cfg.CacheBackend {
	case config.CacheBackendMySQL:
		db, err := storage.New(cfg, log)
		if err != nil {
			return nil, err
		}
		if err := db.AutoMigrate(); err != nil {
			_ = db.Close()
			return nil, err
		}
		log.Info("Database migrations complete")
		return db, nil

	case config.CacheBackendPostgres:
		pg, err := postgres.New(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns)
		if err != nil {
			return nil, err
		}
		return pg, nil

	case config.CacheBackendRedis:
		rs, err := redis.New(ctx, redis.ClientConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			PoolSize: cfg.RedisPoolSize,
		})
		if err != nil {
			return nil, err
		}
		return rs, nil

	default:
		return stagecache.NewMemoryStore(), nil
	}
}

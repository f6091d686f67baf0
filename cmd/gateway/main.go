package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/GTFB/forlifely-sub004/internal/gateway/cache"
	"github.com/GTFB/forlifely-sub004/internal/gateway/handlers"
	"github.com/GTFB/forlifely-sub004/internal/gateway/keyring"
	"github.com/GTFB/forlifely-sub004/internal/gateway/limiter"
	"github.com/GTFB/forlifely-sub004/internal/gateway/pricing"
	"github.com/GTFB/forlifely-sub004/internal/gateway/providers"
	"github.com/GTFB/forlifely-sub004/internal/gateway/tasks"
	"github.com/GTFB/forlifely-sub004/internal/shared/config"
	"github.com/GTFB/forlifely-sub004/internal/shared/database"
	"github.com/GTFB/forlifely-sub004/internal/shared/redisstore"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.Env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("starting inference gateway")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Relational store: caller accounts and the request journal
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("connected to PostgreSQL")

	// Durable key-value store: cache, rate-limit counters, rotation
	// cursors. Optional; in-process fallbacks cover local development.
	var redisClient *redisstore.Client
	if cfg.RedisURL != "" {
		redisClient, err = redisstore.New(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer redisClient.Close()
		log.Info().Msg("connected to Redis")
	} else {
		log.Warn().Msg("REDIS_URL not set, using in-process counters and cache")
	}

	// Credential pools and rotation
	poolConfigs, pricingOverrides, err := cfg.PoolConfigs()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load credential pools")
	}
	pools := make([]*keyring.Pool, 0, len(poolConfigs))
	for _, pc := range poolConfigs {
		pool, err := keyring.NewPool(pc.Provider, pc.ModelPattern, pc.Keys)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid credential pool")
		}
		pools = append(pools, pool)
		log.Info().Str("provider", pc.Provider).Str("pattern", pool.ModelPattern).Int("keys", pool.Size()).Msg("credential pool loaded")
	}
	var cursors keyring.CursorStore
	if redisClient != nil {
		cursors = redisClient
	} else {
		cursors = keyring.NewMemoryCursorStore()
	}
	keys := keyring.NewService(pools, cursors, cfg.CentralizedRotation)

	// Core services
	registry := providers.NewRegistry()
	responseCache := cache.New(redisClient, time.Duration(cfg.CacheTTLSeconds)*time.Second, cfg.CacheEnabled)
	guard := limiter.New(redisClient, cfg.DefaultRateLimit)
	pricingTable := pricing.New(db, pricingOverrides)

	processor := tasks.NewProcessor(keys, registry, responseCache, pricingTable, db)
	queue := tasks.NewQueue(processor, 8, 512)

	// HTTP surface
	mw := handlers.NewMiddleware(db)
	askHandler := handlers.NewAskHandler(db, responseCache, guard, queue, processor, keys, cfg.DefaultModel)

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(mw.CORS)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	r.Group(func(r chi.Router) {
		r.Use(mw.Auth)
		r.Post("/ask", askHandler.HandleAsk)
		r.Post("/upload", askHandler.HandleUpload)
		r.Get("/status/{requestID}", askHandler.HandleStatus)
		r.Get("/result/{requestID}", askHandler.HandleResult)
		r.Get("/keys/status", askHandler.HandleKeysStatus)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	// Stop intake first, then drain detached work so accepted asks are
	// journaled before the process exits.
	if err := queue.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("task queue did not drain in time")
	}

	log.Info().Msg("server stopped")
}

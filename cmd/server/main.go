package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"relay/internal/account"
	"relay/internal/dispatch/bus"
	"relay/internal/dispatch/cache"
	dispatchmetrics "relay/internal/dispatch/metrics"
	jwttoken "relay/internal/jwt_token"
	"relay/internal/platform/config"
	"relay/internal/platform/events"
	"relay/internal/platform/httpserver"
	"relay/internal/platform/logger"
	"relay/internal/platform/metrics"
	platformredis "relay/internal/platform/redis"
	httptransport "relay/internal/transport/http"
)

// main wires the dispatch core, its backends and the HTTP edge, then runs the
// server until a shutdown signal. Business logic lives in internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel, cfg.LogJSON)

	if err := run(cfg, log); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	var health []httptransport.HealthCheck

	// Result cache backend.
	var cacheStore cache.Store
	switch cfg.CacheBackend {
	case "redis":
		client, err := platformredis.New(cfg.Redis)
		if err != nil {
			return err
		}
		if client == nil {
			return errors.New("cache backend is redis but RELAY_REDIS_URL is empty")
		}
		defer client.Close()
		cacheStore = cache.NewRedis(client.Client)
		health = append(health, httptransport.HealthCheck{
			Name:  "redis",
			Check: func() error { return client.Health(context.Background()) },
		})
	default:
		mem := cache.NewMemory(cache.WithJanitor(time.Minute))
		defer mem.Close()
		cacheStore = mem
	}

	// Account store.
	var store account.Store = account.NewInMemoryStore()
	if cfg.PostgresURL != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		store = account.NewPostgres(pool)
		health = append(health, httptransport.HealthCheck{
			Name:  "postgres",
			Check: func() error { return pool.Ping(context.Background()) },
		})
	}

	// Event publisher.
	var publisher events.Publisher = events.NewMemory()
	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := events.NewKafka(cfg.KafkaBrokers, events.WithKafkaLogger(log))
		if err != nil {
			return err
		}
		if err := kafka.EnsureTopics(ctx, cfg.EventTopicPartitions, 1, account.EventsTopic); err != nil {
			log.Warn("topic creation failed, producing anyway", "error", err)
		}
		publisher = kafka
	}
	defer publisher.Close()

	// Dispatch core.
	busOpts := []bus.Option{
		bus.WithLogger(log),
		bus.WithMetrics(dispatchmetrics.New(reg)),
		bus.WithDefaultCacheTTL(cfg.DefaultCacheTTL),
		bus.WithDefaultTimeout(cfg.DispatchTimeout),
	}
	commands := bus.NewCommandBus(busOpts...)
	queries := bus.NewQueryBus(cacheStore, busOpts...)
	if err := account.Wire(commands, queries, store, publisher, log); err != nil {
		return err
	}

	// HTTP edge.
	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, "relay", "relay-api")
	handler := httptransport.New(
		commands, queries, log,
		metrics.New(reg),
		jwttoken.NewJWTServiceAdapter(jwtService),
		health...,
	)
	srv := httpserver.New(cfg.Addr, handler.Router(reg))

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting relay", "addr", cfg.Addr, "cache_backend", cfg.CacheBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	return httpserver.Shutdown(srv, 10*time.Second)
}

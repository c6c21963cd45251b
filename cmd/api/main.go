package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/illegalcall/bank-relay/internal/api"
	"github.com/illegalcall/bank-relay/internal/config"
	"github.com/illegalcall/bank-relay/internal/events"
	"github.com/illegalcall/bank-relay/internal/metrics"
	"github.com/illegalcall/bank-relay/internal/relay"
	"github.com/illegalcall/bank-relay/internal/stats"
	"github.com/illegalcall/bank-relay/pkg/database"
	"github.com/illegalcall/bank-relay/pkg/kafka"
	"github.com/illegalcall/bank-relay/pkg/logger"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		bootLogger := logger.New(logger.Options{ServiceName: "bank-relay-api"})
		bootLogger.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.New(logger.Options{
		ServiceName: "bank-relay-api",
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	deps := api.Deps{
		Relay:    relay.New(cfg.Relay.ServiceURL, relay.NewHTTPForwarder(cfg.Relay.UpstreamTimeout), log),
		Metrics:  metrics.NewRelayMetrics(registry),
		Gatherer: registry,
	}
	if cfg.Relay.ServiceURL == nil {
		log.Warn().Msg("PYTHON_SERVICE_URL is not set, every POST will be answered as not configured")
	}

	if cfg.Redis.Addr != "" {
		redisClient, err := database.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Error().Err(err).Msg("failed to connect to Redis")
			os.Exit(1)
		}
		defer redisClient.Close()
		deps.Stats = stats.NewRecorder(redisClient)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("connected to Redis")
	}

	if cfg.Kafka.Broker != "" {
		producer, err := kafka.NewProducer(cfg.Kafka.Broker, cfg.Kafka.RetryMax, cfg.Kafka.RetryBackoff, log)
		if err != nil {
			log.Error().Err(err).Msg("failed to create Kafka producer")
			os.Exit(1)
		}
		deps.Events = events.NewPublisher(producer, cfg.Kafka.Topic, log)
		defer deps.Events.Close()
		log.Info().Str("topic", cfg.Kafka.Topic).Msg("connected to Kafka")
	}

	server := api.NewServer(cfg, deps, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("server error")
			os.Exit(1)
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	log.Info().Msg("server stopped")
}

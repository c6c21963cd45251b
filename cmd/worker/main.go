package main

import (
	"context"
	"os"

	"github.com/illegalcall/bank-relay/internal/audit"
	"github.com/illegalcall/bank-relay/internal/config"
	"github.com/illegalcall/bank-relay/internal/worker"
	"github.com/illegalcall/bank-relay/pkg/database"
	"github.com/illegalcall/bank-relay/pkg/kafka"
	"github.com/illegalcall/bank-relay/pkg/logger"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		bootLogger := logger.New(logger.Options{ServiceName: "bank-relay-worker"})
		bootLogger.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.New(logger.Options{
		ServiceName: "bank-relay-worker",
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
	})

	if cfg.Kafka.Broker == "" {
		log.Error().Msg("KAFKA_BROKER must be set to run the audit worker")
		os.Exit(1)
	}

	db, err := database.NewPostgres(cfg.Database.URL)
	if err != nil {
		log.Error().Err(err).Msg("failed to connect to Postgres")
		os.Exit(1)
	}
	defer db.Close()
	log.Info().Msg("connected to Postgres")

	consumer, err := kafka.NewConsumer(cfg.Kafka.Broker, cfg.Kafka.Group, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to create Kafka consumer")
		os.Exit(1)
	}
	defer consumer.Close()
	log.Info().Str("group", cfg.Kafka.Group).Msg("connected to Kafka")

	w := worker.NewWorker(cfg.Kafka, audit.NewStore(db), consumer, log)
	if err := w.Start(context.Background()); err != nil {
		log.Error().Err(err).Msg("worker error")
		os.Exit(1)
	}
}

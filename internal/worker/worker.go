// Package worker consumes connection-test events from Kafka and writes them
// to the audit store.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"github.com/illegalcall/bank-relay/internal/audit"
	"github.com/illegalcall/bank-relay/internal/config"
	"github.com/illegalcall/bank-relay/internal/models"
)

var errUndecodable = errors.New("undecodable event")

type Worker struct {
	cfg       config.KafkaConfig
	store     *audit.Store
	consumer  sarama.ConsumerGroup
	log       zerolog.Logger
	ready     chan struct{}
	readyOnce sync.Once
}

func NewWorker(cfg config.KafkaConfig, store *audit.Store, consumer sarama.ConsumerGroup, log zerolog.Logger) *Worker {
	return &Worker{
		cfg:      cfg,
		store:    store,
		consumer: consumer,
		log:      log.With().Str("component", "worker").Logger(),
		ready:    make(chan struct{}),
	}
}

// Start consumes until ctx is cancelled or the process receives SIGINT or
// SIGTERM.
func (w *Worker) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := w.store.EnsureSchema(ctx); err != nil {
		return err
	}

	topics := []string{w.cfg.Topic}
	w.log.Info().Strs("topics", topics).Str("group", w.cfg.Group).Msg("starting worker")

	go func() {
		errs := w.consumer.Errors()
		for {
			select {
			case err, ok := <-errs:
				if !ok {
					return
				}
				w.log.Error().Err(err).Msg("kafka consumer error")
			case <-ctx.Done():
				return
			}
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if err := w.consumer.Consume(ctx, topics, w); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				w.log.Error().Err(err).Msg("consume session ended with error")
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.cfg.RetryBackoff):
			}
		}
	}()

	select {
	case <-w.ready:
		w.log.Info().Msg("consumer ready")
	case <-ctx.Done():
	}

	<-ctx.Done()
	w.log.Info().Msg("worker shutting down")
	<-done
	return nil
}

// Setup is run at the beginning of a new session, before ConsumeClaim.
func (w *Worker) Setup(sarama.ConsumerGroupSession) error {
	w.readyOnce.Do(func() { close(w.ready) })
	return nil
}

func (w *Worker) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim marks every message, including the ones that could not be
// stored, so a poison message never blocks the partition.
func (w *Worker) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := w.processMessage(session.Context(), message); err != nil {
				w.log.Error().
					Err(err).
					Int32("partition", message.Partition).
					Int64("offset", message.Offset).
					Msg("failed to process event")
			}
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

func (w *Worker) processMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var ev models.ConnectionTestEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		return fmt.Errorf("%w: %v", errUndecodable, err)
	}
	if ev.RequestID == "" {
		return fmt.Errorf("%w: missing request_id", errUndecodable)
	}

	attempts := w.cfg.RetryMax
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = w.store.Insert(ctx, ev); err == nil {
			w.log.Debug().Str("request_id", ev.RequestID).Str("outcome", string(ev.Outcome)).Msg("event stored")
			return nil
		}
		w.log.Warn().Err(err).Str("request_id", ev.RequestID).Int("attempt", attempt).Msg("audit insert failed")
		if attempt < attempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.cfg.RetryBackoff):
			}
		}
	}
	return err
}

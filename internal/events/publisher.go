package events

import (
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"github.com/illegalcall/bank-relay/internal/models"
)

// Publisher sends connection-test events to Kafka. A nil *Publisher drops
// every event.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
	log      zerolog.Logger
}

func NewPublisher(producer sarama.SyncProducer, topic string, log zerolog.Logger) *Publisher {
	return &Publisher{
		producer: producer,
		topic:    topic,
		log:      log.With().Str("component", "events").Logger(),
	}
}

// Publish keys the message by bank id so events for one bank stay ordered.
func (p *Publisher) Publish(ev models.ConnectionTestEvent) error {
	if p == nil || p.producer == nil {
		return nil
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(ev.BankID),
		Value: sarama.ByteEncoder(payload),
	}
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to publish event %s: %w", ev.RequestID, err)
	}

	p.log.Debug().
		Str("request_id", ev.RequestID).
		Int32("partition", partition).
		Int64("offset", offset).
		Msg("event published")
	return nil
}

func (p *Publisher) Close() error {
	if p == nil || p.producer == nil {
		return nil
	}
	return p.producer.Close()
}

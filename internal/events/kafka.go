// Package events publishes reservation outcome events for downstream
// consumers (audit, notifications). Payloads carry identifiers and the
// proposed interval only.
package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"clinsched/backend/internal/service/scheduling"
)

type KafkaPublisher struct {
	writer *kafka.Writer
	topic  string
	log    *slog.Logger
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// NewKafkaPublisher returns a publisher writing to cfg.Topic, or nil when no
// brokers are configured; callers fall back to a no-op publisher then.
func NewKafkaPublisher(cfg KafkaConfig, log *slog.Logger) *KafkaPublisher {
	if len(cfg.Brokers) == 0 {
		return nil
	}
	if log == nil {
		log = slog.Default()
	}
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		Balancer: &kafka.Hash{},
	})
	return &KafkaPublisher{
		writer: writer,
		topic:  cfg.Topic,
		log:    log.With(slog.String("component", "events.kafka")),
	}
}

// PublishReservation writes one message per reservation outcome, keyed by
// provider id so a provider's events stay ordered within a partition.
func (p *KafkaPublisher) PublishReservation(ctx context.Context, ev scheduling.ReservationEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(ev.ProviderID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(ev.EventID)},
			{Key: "event_type", Value: []byte(ev.EventType)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return err
	}

	p.log.Debug("reservation event published",
		slog.String("event_type", ev.EventType),
		slog.String("provider_id", ev.ProviderID),
	)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

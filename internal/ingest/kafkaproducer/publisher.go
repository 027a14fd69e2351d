// Package kafkaproducer publishes element geometry change events. Messages
// are keyed by element so every change to one element lands on the same
// partition and is consumed in order.
package kafkaproducer

import (
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/osm-geometry-store/internal/ingest"
)

type Publisher struct {
	topic string
	prod  sarama.SyncProducer
}

func New(brokers []string, topic string) (*Publisher, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Idempotent = true
	cfg.Producer.Retry.Max = 5
	cfg.Net.MaxOpenRequests = 1

	prod, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafkaproducer: create sync producer: %w", err)
	}
	return NewWithProducer(prod, topic), nil
}

// NewWithProducer wraps an existing producer.
func NewWithProducer(prod sarama.SyncProducer, topic string) *Publisher {
	return &Publisher{topic: topic, prod: prod}
}

func (p *Publisher) message(ev ingest.Event) (*sarama.ProducerMessage, error) {
	if err := ev.Validate(); err != nil {
		return nil, fmt.Errorf("kafkaproducer: %w", err)
	}
	key, _ := ev.Key()
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("kafkaproducer: marshal: %w", err)
	}
	return &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(key.String()),
		Value: sarama.ByteEncoder(b),
	}, nil
}

func (p *Publisher) Publish(ev ingest.Event) error {
	msg, err := p.message(ev)
	if err != nil {
		return err
	}
	if _, _, err := p.prod.SendMessage(msg); err != nil {
		return fmt.Errorf("kafkaproducer: send: %w", err)
	}
	return nil
}

// PublishAll validates every event before sending any of them.
func (p *Publisher) PublishAll(evs []ingest.Event) error {
	msgs := make([]*sarama.ProducerMessage, 0, len(evs))
	for _, ev := range evs {
		msg, err := p.message(ev)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := p.prod.SendMessages(msgs); err != nil {
		return fmt.Errorf("kafkaproducer: send %d messages: %w", len(msgs), err)
	}
	return nil
}

func (p *Publisher) Close() error {
	if err := p.prod.Close(); err != nil {
		return fmt.Errorf("kafkaproducer: close producer: %w", err)
	}
	return nil
}

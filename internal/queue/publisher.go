package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// Publisher publica eventos de prompts creados.
type Publisher interface {
	PublishPromptCreated(ctx context.Context, ev PromptEvent) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher escribe un mensaje por prompt, con el id como key para
// mantener el orden por particion.
type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: true,
		},
	}
}

func (p *KafkaPublisher) PublishPromptCreated(ctx context.Context, ev PromptEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal prompt event: %w", err)
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.PromptID),
		Value: payload,
	}); err != nil {
		return fmt.Errorf("write prompt event: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher descarta los eventos; se usa cuando Kafka no esta configurado.
type NopPublisher struct{}

func (NopPublisher) PublishPromptCreated(context.Context, PromptEvent) error { return nil }
func (NopPublisher) Close() error                                            { return nil }

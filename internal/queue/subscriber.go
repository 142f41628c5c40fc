package queue

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSubscriber consume eventos de prompts creados dentro de un consumer group.
type KafkaSubscriber struct {
	reader messageReader
	logger *zap.Logger
}

func NewKafkaSubscriber(brokers []string, topic, groupID string, logger *zap.Logger) *KafkaSubscriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaSubscriber{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1,
			MaxBytes: 1e6,
		}),
		logger: logger,
	}
}

// Run entrega cada evento a handle hasta que ctx se cancele. Los offsets se
// confirman siempre: un evento perdido solo demora al worker hasta su proximo poll.
func (s *KafkaSubscriber) Run(ctx context.Context, handle func(context.Context, PromptEvent)) error {
	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		var ev PromptEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			s.logger.Warn("discarding malformed prompt event", zap.Error(err), zap.Int64("offset", msg.Offset))
		} else {
			handle(ctx, ev)
		}

		if err := s.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("commit prompt event failed", zap.Error(err), zap.Int64("offset", msg.Offset))
		}
	}
}

func (s *KafkaSubscriber) Close() error {
	return s.reader.Close()
}

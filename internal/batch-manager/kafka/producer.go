// Package kafka publishes batch completion events. Publishing is optional:
// with no brokers configured the producer is nil and every publish is a no-op.
package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"tgw-batch-service/internal/batch-manager/events"
	"tgw-batch-service/internal/config"
)

// Producer wraps a kafka writer for completion events.
type Producer struct {
	writer *kafka.Writer
	log    *zap.Logger
}

// NewProducer builds the completion-event producer. Returns nil when no
// brokers are configured, which disables publishing.
func NewProducer(cfg *config.Kafka, log *zap.Logger) *Producer {
	if cfg == nil || len(cfg.Brokers) == 0 {
		if log != nil {
			log.Info("kafka brokers not configured, completion events disabled")
		}
		return nil
	}
	if log == nil {
		log = zap.NewNop()
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.CompletionTopic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: 10 * time.Second,
	}
	log.Info("kafka completion-event producer configured",
		zap.Strings("brokers", cfg.Brokers), zap.String("topic", cfg.CompletionTopic))
	return &Producer{writer: writer, log: log}
}

// PublishBatchCompleted sends one completion event keyed by run ID. A nil
// producer silently drops the event.
func (p *Producer) PublishBatchCompleted(ctx context.Context, payload events.BatchCompletedPayload) error {
	if p == nil {
		return nil
	}
	value, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(payload.RunID),
		Value: value,
	})
	if err != nil {
		p.log.Error("failed to publish batch completion event",
			zap.String("run_id", payload.RunID), zap.Error(err))
		return err
	}
	p.log.Info("published batch completion event", zap.String("run_id", payload.RunID))
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Producer) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}

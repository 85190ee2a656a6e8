package notification

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaPublisher publishes messages to a topic for cmd/worker to deliver.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher returns nil when brokers or topic are empty.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}}
}

// Notify writes msg keyed by tenant so one tenant's mail stays ordered.
func (p *KafkaPublisher) Notify(ctx context.Context, msg Message) error {
	if p == nil || p.writer == nil {
		return nil
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return p.writer.WriteMessages(writeCtx, kafka.Message{Key: []byte(msg.TenantID), Value: payload})
}

// Close closes the writer. Safe on nil.
func (p *KafkaPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewKafkaReader returns a consumer-group reader for the notification topic.
func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 1 << 20,
	})
}

// deliverAttempts bounds retries of a single message before it is dropped.
const deliverAttempts = 3

// Consume reads messages until ctx is done and hands each to sink. Undecodable
// messages are committed and skipped; a message that still fails after
// deliverAttempts is logged and committed.
func Consume(ctx context.Context, r MessageReader, sink Notifier, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	backoff := 500 * time.Millisecond
	for {
		km, err := r.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		var msg Message
		if err := json.Unmarshal(km.Value, &msg); err != nil {
			log.Error("notification: undecodable message", zap.Int64("offset", km.Offset), zap.Error(err))
		} else {
			deliver(ctx, sink, msg, backoff, log)
		}
		if err := r.CommitMessages(ctx, km); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func deliver(ctx context.Context, sink Notifier, msg Message, backoff time.Duration, log *zap.Logger) {
	for attempt := 1; attempt <= deliverAttempts; attempt++ {
		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		err := sink.Notify(sendCtx, msg)
		cancel()
		if err == nil {
			return
		}
		log.Warn("notification: delivery failed",
			zap.String("kind", msg.Kind),
			zap.String("tenant_id", msg.TenantID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt == deliverAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff * time.Duration(attempt)):
		}
	}
	log.Error("notification: dropped after retries", zap.String("kind", msg.Kind), zap.String("tenant_id", msg.TenantID))
}

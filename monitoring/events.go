package monitoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"chdrisk/assessment"
)

// MessageWriter is the part of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes one message per assessment, keyed by assessment id.
type KafkaPublisher struct {
	writer MessageWriter
	topic  string
	logger *zap.Logger
}

func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) *KafkaPublisher {
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      brokers,
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
	})
	return NewKafkaPublisherWithWriter(writer, topic, logger)
}

func NewKafkaPublisherWithWriter(writer MessageWriter, topic string, logger *zap.Logger) *KafkaPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaPublisher{writer: writer, topic: topic, logger: logger}
}

func (p *KafkaPublisher) Publish(ctx context.Context, a *assessment.Assessment) error {
	value, err := NewAssessmentMessage(a)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(a.ID),
		Value: value,
		Time:  a.CreatedAt,
	}); err != nil {
		return fmt.Errorf("kafka topic %s: %w", p.topic, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Fanout publishes to every sink and counts each outcome.
type Fanout struct {
	publishers []assessment.Publisher
	metrics    *Metrics
}

func NewFanout(metrics *Metrics, publishers ...assessment.Publisher) *Fanout {
	return &Fanout{publishers: publishers, metrics: metrics}
}

func (f *Fanout) Publish(ctx context.Context, a *assessment.Assessment) error {
	var errs []error
	for _, p := range f.publishers {
		err := p.Publish(ctx, a)
		f.metrics.RecordPublish(err)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ assessment.Publisher = (*Hub)(nil)
	_ assessment.Publisher = (*KafkaPublisher)(nil)
	_ assessment.Publisher = (*Fanout)(nil)
)

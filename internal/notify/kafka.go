package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"go.uber.org/zap"

	"github.com/quayside/stevedore/internal/config"
)

type KafkaOption func(*Kafka)

func WithKafkaLogger(logger *zap.Logger) KafkaOption {
	return func(k *Kafka) {
		k.logger = logger
	}
}

// Kafka publishes the run summary to a topic, keyed by the subject line.
// Downstream consumers use it to track load runs across clusters.
type Kafka struct {
	logger   *zap.Logger
	producer *kafka.Producer
	topic    string
}

func NewKafka(cfg config.Kafka, opts ...KafkaOption) (*Kafka, error) {
	k := &Kafka{
		logger: zap.NewNop(),
		topic:  cfg.Topic,
	}
	for _, opt := range opts {
		opt(k)
	}

	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.BootstrapServers,
	})
	if err != nil {
		return nil, err
	}
	k.producer = producer

	return k, nil
}

func (k *Kafka) Notify(ctx context.Context, subject, body string) error {
	deliveries := make(chan kafka.Event, 1)

	err := k.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &k.topic,
			Partition: kafka.PartitionAny,
		},
		Key:       []byte(subject),
		Value:     []byte(body),
		Timestamp: time.Now(),
	}, deliveries)
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case ev := <-deliveries:
		m, ok := ev.(*kafka.Message)
		if !ok {
			return fmt.Errorf("unexpected delivery event %T", ev)
		}
		if m.TopicPartition.Error != nil {
			return m.TopicPartition.Error
		}
	}

	k.logger.Info("published summary", zap.String("topic", k.topic))
	return nil
}

func (k *Kafka) Close() error {
	k.producer.Flush(int((5 * time.Second).Milliseconds()))
	k.producer.Close()
	return nil
}

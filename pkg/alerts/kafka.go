package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/keralanet/floodwatch/pkg/model"
)

// kafkaWriter is the subset of kafka-go's Writer used by KafkaNotifier.
type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaNotifier publishes alerts to a Kafka topic, keyed by district so
// that per-district ordering is preserved.
type KafkaNotifier struct {
	writer kafkaWriter
}

// NewKafkaNotifier creates a Kafka notifier writing to the given brokers
// and topic.
func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaNotifier{writer: w}
}

func (k *KafkaNotifier) Name() string { return "kafka" }

func (k *KafkaNotifier) Send(ctx context.Context, alert model.Alert) error {
	value, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal kafka alert: %w", err)
	}

	msg := kafkago.Message{
		Key:   []byte(alert.District),
		Value: value,
		Headers: []kafkago.Header{
			{Key: "alert_level", Value: []byte(alert.Level)},
		},
	}

	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write kafka alert: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (k *KafkaNotifier) Close() error {
	return k.writer.Close()
}

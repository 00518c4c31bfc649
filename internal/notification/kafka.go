package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes notifications to a Kafka topic, keyed so that
// events for one holder stay on one partition.
type KafkaNotifier struct {
	writer messageWriter
}

// NewKafkaNotifier builds a notifier writing to topic on the given brokers.
func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	return &KafkaNotifier{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}}
}

// Send encodes the message as JSON and writes it to Kafka.
func (n *KafkaNotifier) Send(ctx context.Context, message Message) error {
	value, err := json.Marshal(message)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(message.Key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(message.Kind)},
		},
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("can't send to kafka: %w", err)
	}
	return nil
}

// Close flushes pending writes.
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}

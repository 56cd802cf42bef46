package relay

import (
	"context"
	"errors"

	"github.com/segmentio/kafka-go"

	"taskline/internal/domain"
)

// KafkaSink publishes events to one topic, keyed by actor so a user's events
// stay ordered within a partition.
type KafkaSink struct {
	writer *kafka.Writer
}

func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka sink requires at least one broker")
	}
	if topic == "" {
		return nil, errors.New("kafka sink requires a topic")
	}
	return &KafkaSink{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		RequiredAcks: kafka.RequireAll,
		Balancer:     &kafka.Hash{},
	}}, nil
}

func (k *KafkaSink) Name() string { return "kafka " + k.writer.Topic }

func (k *KafkaSink) Deliver(ctx context.Context, ev domain.BehavioralEvent, body []byte) error {
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.ActorID),
		Value: body,
		Time:  ev.Timestamp,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(ev.Kind)},
			{Key: "event_id", Value: []byte(ev.ID)},
		},
	})
}

func (k *KafkaSink) Close() error { return k.writer.Close() }

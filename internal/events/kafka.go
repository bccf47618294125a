package events

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the sink uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter builds a writer for topic on the given brokers.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
}

// KafkaSink forwards bus events to a Kafka topic. Events with the same key land
// on the same partition, so a consumer sees one listing's bids in order.
type KafkaSink struct {
	writer  MessageWriter
	timeout time.Duration
	logger  zerolog.Logger
}

func NewKafkaSink(writer MessageWriter, logger *zerolog.Logger) *KafkaSink {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "kafka_sink").Logger()
	}
	return &KafkaSink{writer: writer, timeout: 10 * time.Second, logger: l}
}

// Attach subscribes the sink to every event type on bus.
func (s *KafkaSink) Attach(bus *EventBus) {
	bus.SubscribeAll(s.Handle)
}

// Handle writes one event.
func (s *KafkaSink) Handle(event *Event) error {
	msg := kafka.Message{
		Key:   []byte(event.Key),
		Value: event.Payload,
		Time:  event.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		s.logger.Error().Err(err).Str("event_type", event.Type).Str("key", event.Key).Msg("failed to write event to kafka")
		return fmt.Errorf("write %s: %w", event.Type, err)
	}
	s.logger.Debug().Str("event_type", event.Type).Str("key", event.Key).Msg("event sent")
	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

func keyOf(kind string, id int64) string {
	return kind + ":" + strconv.FormatInt(id, 10)
}

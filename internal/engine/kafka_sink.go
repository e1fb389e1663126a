package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// KafkaSink publishes journal records keyed by symbol. Writes are async so
// the engine loop never waits on the brokers.
type KafkaSink struct {
	writer *kafka.Writer
}

func NewKafkaSink(brokers []string, topic string, log zerolog.Logger) *KafkaSink {
	log = log.With().Str("component", "kafka").Str("topic", topic).Logger()
	return &KafkaSink{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Warn().Err(err).Int("messages", len(messages)).Msg("journal publish failed")
			}
		},
	}}
}

func (k *KafkaSink) Publish(ctx context.Context, key string, payload []byte) error {
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: payload})
}

func (k *KafkaSink) Close() error {
	return k.writer.Close()
}

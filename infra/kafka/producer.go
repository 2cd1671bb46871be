// Package kafka wraps github.com/segmentio/kafka-go for the best-effort,
// low-latency trade publish path (see fanout.NewDirectPublisher). The
// durable retrying path goes through jobs/broadcaster instead, which
// talks to the broker with sarama's synchronous, fully-acked producer.
package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// Producer is a thin wrapper around a kafka-go Writer, configured for
// fire-and-forget publishing: matching never blocks on a broker
// round-trip for this path. Callers that need delivery guarantees use
// the exit WAL + broadcaster path instead.
type Producer struct {
	writer *kafka.Writer
}

// NewProducer builds a Producer against brokers for topic. RequiredAcks
// is kafka.RequireNone and writes are async: this path trades durability
// for latency by design, since jobs/broadcaster already covers the
// at-least-once case.
func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireNone,
			Async:        true,
			BatchTimeout: time.Millisecond,
		},
	}
}

// Send publishes one message. Because the writer is async, this only
// reports errors detectable immediately (e.g. a closed writer) —
// broker-side failures surface on the writer's internal error channel,
// not here, and are never retried by this type.
func (p *Producer) Send(ctx context.Context, key []byte, value []byte) error {
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   key,
		Value: value,
	})
}

// Close flushes and releases the underlying writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

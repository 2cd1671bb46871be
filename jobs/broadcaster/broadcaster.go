// Package broadcaster runs the retry loop for the durable trade-event
// outbox: it scans the exit WAL for records still awaiting delivery and
// republishes them to Kafka until each is acked.
package broadcaster

import (
	"context"
	"log"
	"time"

	exitwal "matchbook/infra/wal/exit"

	"github.com/IBM/sarama"
)

type Broadcaster struct {
	exitWAL  *exitwal.ExitWAL
	producer sarama.SyncProducer
	topic    string
}

// New dials brokers and configures a synchronous, fully-acked sarama
// producer.
func New(exitWAL *exitwal.ExitWAL, brokers []string, topic string) (*Broadcaster, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}

	return newBroadcaster(exitWAL, producer, topic), nil
}

// newBroadcaster builds a Broadcaster against an already-constructed
// producer. Split out from New so tests can drive replayOnce against a
// fake sarama.SyncProducer instead of a live broker.
func newBroadcaster(exitWAL *exitwal.ExitWAL, producer sarama.SyncProducer, topic string) *Broadcaster {
	return &Broadcaster{
		exitWAL:  exitWAL,
		producer: producer,
		topic:    topic,
	}
}

// Start launches the background retry loop; it stops when ctx is
// cancelled.
func (b *Broadcaster) Start(ctx context.Context) {
	log.Println("broadcaster: started")

	go func() {
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				b.replayOnce()
			}
		}
	}()
}

func (b *Broadcaster) replayOnce() {
	// Collect first, so a record that fails in this pass is not picked up
	// again by the same scan.
	var pending []exitwal.ExitRecord
	_ = b.exitWAL.ScanPending(func(rec exitwal.ExitRecord) error {
		pending = append(pending, rec)
		return nil
	})

	for _, rec := range pending {
		if err := b.exitWAL.MarkSent(rec.Seq); err != nil {
			return
		}

		msg := &sarama.ProducerMessage{
			Topic: b.topic,
			Value: sarama.ByteEncoder(rec.Payload),
		}

		if _, _, err := b.producer.SendMessage(msg); err != nil {
			if markErr := b.exitWAL.MarkFailed(rec.Seq); markErr != nil {
				log.Printf("broadcaster: mark failed for seq %d: %v", rec.Seq, markErr)
			}
			continue // retry on the next tick
		}

		if err := b.exitWAL.MarkAcked(rec.Seq); err != nil {
			log.Printf("broadcaster: mark acked for seq %d: %v", rec.Seq, err)
		}
	}
}

// Close releases the Kafka producer.
func (b *Broadcaster) Close() error {
	return b.producer.Close()
}

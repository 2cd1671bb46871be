package fanout

import (
	"context"
	"encoding/binary"
	"log"

	"matchbook/engine"
	"matchbook/infra/kafka"
)

// directPublisher republishes every trade onto a Kafka topic on the
// best-effort low-latency path: no retry, no durability, just an
// asynchronous write per trade using the low-overhead client.
type directPublisher struct {
	producer *kafka.Producer
}

// NewDirectPublisher wraps a kafka.Producer as a Sink.
func NewDirectPublisher(p *kafka.Producer) Sink {
	d := &directPublisher{producer: p}
	return d.OnTrade
}

func (d *directPublisher) OnTrade(t engine.Trade) {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, t.BidOrderID)
	if err := d.producer.Send(context.Background(), key, encodeTrade(t)); err != nil {
		log.Printf("fanout: direct publish failed for trade %+v: %v", t, err)
	}
}

// encodeTrade is a small fixed binary layout: bidID, askID, price, qty,
// each 8 bytes big-endian.
func encodeTrade(t engine.Trade) []byte {
	buf := make([]byte, 32)
	binary.BigEndian.PutUint64(buf[0:8], t.BidOrderID)
	binary.BigEndian.PutUint64(buf[8:16], t.AskOrderID)
	binary.BigEndian.PutUint64(buf[16:24], t.Price)
	binary.BigEndian.PutUint64(buf[24:32], t.Qty)
	return buf
}

func decodeTrade(b []byte) (engine.Trade, bool) {
	if len(b) != 32 {
		return engine.Trade{}, false
	}
	return engine.Trade{
		BidOrderID: binary.BigEndian.Uint64(b[0:8]),
		AskOrderID: binary.BigEndian.Uint64(b[8:16]),
		Price:      binary.BigEndian.Uint64(b[16:24]),
		Qty:        binary.BigEndian.Uint64(b[24:32]),
	}, true
}

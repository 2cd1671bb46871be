package fanout

import (
	"log"

	"matchbook/engine"
	exitwal "matchbook/infra/wal/exit"
)

// OutboxWriter is the durable half of the reliable delivery path: every
// trade is written into the exit WAL synchronously with the fill, so it
// survives a crash even before jobs/broadcaster.Broadcaster has had a
// chance to publish it. seq should be a dedicated monotonic counter
// (see sequence.Sequencer), distinct from order/trade ids, so the
// outbox key space never collides across restarts.
type OutboxWriter struct {
	wal *exitwal.ExitWAL
	seq func() uint64
}

// NewOutboxWriter wraps an ExitWAL as a Sink. seq supplies the next
// outbox key on each call.
func NewOutboxWriter(wal *exitwal.ExitWAL, seq func() uint64) Sink {
	w := &OutboxWriter{wal: wal, seq: seq}
	return w.OnTrade
}

func (w *OutboxWriter) OnTrade(t engine.Trade) {
	if err := w.wal.PutNew(w.seq(), encodeTrade(t)); err != nil {
		log.Printf("fanout: outbox write failed for trade %+v: %v", t, err)
	}
}

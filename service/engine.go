package service

import (
	"context"

	"matchbook/engine"
	"matchbook/fanout"
	exitwal "matchbook/infra/wal/exit"
	"matchbook/jobs/broadcaster"
	"matchbook/ring"
	"matchbook/sequence"
	"matchbook/worker"
)

// Config describes how to construct an Engine.
type Config struct {
	// MaxOrders bounds the number of resting/in-flight orders at once.
	// The ring buffer and object pool are both sized from it.
	MaxOrders int

	// CoreID, if set, pins the worker goroutine's OS thread to that
	// CPU core. Optional.
	CoreID *int

	// OnTrade is invoked once per fill, synchronously, from the worker
	// goroutine. Optional.
	OnTrade engine.Listener

	// Outbox, if set, turns on the durable retrying publish path: every
	// trade is written into an exit WAL under its own dedicated
	// sequence number and replayed to Kafka by a background
	// broadcaster until acked.
	Outbox *OutboxConfig
}

// OutboxConfig configures the durable outbox path.
type OutboxConfig struct {
	// WALDir is the pebble directory backing the exit WAL.
	WALDir string

	// Brokers and Topic describe where the broadcaster publishes
	// acked trades.
	Brokers []string
	Topic   string
}

// Engine is the public entry point: construct one with New, Submit
// requests from any goroutine, read observability fields from any
// goroutine, and Close it when done.
type Engine struct {
	eng        *engine.MatchingEngine
	reqs       *ring.Buffer[engine.Request]
	dispatcher *fanout.Dispatcher
	wrk        *worker.Worker

	outboxWAL    *exitwal.ExitWAL
	broadcaster  *broadcaster.Broadcaster
	cancelOutbox context.CancelFunc
}

// New constructs and starts an Engine. The ring buffer's capacity is
// rounded up to the next power of two at or above cfg.MaxOrders.
func New(cfg Config) (*Engine, error) {
	dispatcher := fanout.NewDispatcher()
	if cfg.OnTrade != nil {
		dispatcher.Register(fanout.Sink(cfg.OnTrade))
	}

	eng, err := engine.New(cfg.MaxOrders, dispatcher.OnTrade)
	if err != nil {
		return nil, err
	}

	reqs, err := ring.New[engine.Request](nextPowerOfTwo(cfg.MaxOrders))
	if err != nil {
		return nil, err
	}

	wrk := worker.New(eng, reqs, worker.Config{CoreID: cfg.CoreID})
	wrk.Start()

	e := &Engine{
		eng:        eng,
		reqs:       reqs,
		dispatcher: dispatcher,
		wrk:        wrk,
	}

	if cfg.Outbox != nil {
		if err := e.startOutbox(*cfg.Outbox); err != nil {
			wrk.Shutdown()
			return nil, err
		}
	}

	return e, nil
}

// startOutbox wires the durable publish path into the trade dispatcher:
// every fill is written to the exit WAL under its own sequence number,
// and a broadcaster replays pending WAL entries to Kafka until acked.
func (e *Engine) startOutbox(cfg OutboxConfig) error {
	wal, err := exitwal.Open(cfg.WALDir)
	if err != nil {
		return err
	}

	b, err := broadcaster.New(wal, cfg.Brokers, cfg.Topic)
	if err != nil {
		wal.Close()
		return err
	}

	seq := sequence.New(0)
	e.dispatcher.Register(fanout.NewOutboxWriter(wal, seq.Next))

	ctx, cancel := context.WithCancel(context.Background())
	b.Start(ctx)

	e.outboxWAL = wal
	e.broadcaster = b
	e.cancelOutbox = cancel
	return nil
}

// AddSink registers an additional trade consumer (e.g. fanout.Ledger,
// a Kafka publisher) alongside Config.OnTrade. Must be called before
// any Submit.
func (e *Engine) AddSink(s fanout.Sink) {
	e.dispatcher.Register(s)
}

// Submit enqueues a request for the worker goroutine to process. It
// never blocks on engine state — only on ring back-pressure if the
// buffer is momentarily full.
func (e *Engine) Submit(req engine.Request) {
	e.reqs.Push(req)
}

// Size returns the number of orders currently resting.
func (e *Engine) Size() int { return e.eng.Size() }

// TopBidPrice returns the best resting bid price, if any.
func (e *Engine) TopBidPrice() (uint64, bool) { return e.eng.TopBidPrice() }

// TopAskPrice returns the best resting ask price, if any.
func (e *Engine) TopAskPrice() (uint64, bool) { return e.eng.TopAskPrice() }

// BidDepth returns the total resting quantity at price on the bid side.
func (e *Engine) BidDepth(price uint64) uint64 { return e.eng.BidDepth(price) }

// AskDepth returns the total resting quantity at price on the ask side.
func (e *Engine) AskDepth(price uint64) uint64 { return e.eng.AskDepth(price) }

// BidOrderCount returns the number of resting orders at price on the
// bid side.
func (e *Engine) BidOrderCount(price uint64) int { return e.eng.BidOrderCount(price) }

// AskOrderCount returns the number of resting orders at price on the
// ask side.
func (e *Engine) AskOrderCount(price uint64) int { return e.eng.AskOrderCount(price) }

// MatchedTrades returns the running count of fills produced so far.
func (e *Engine) MatchedTrades() uint64 { return e.eng.MatchedTrades() }

// Close stops the worker goroutine after it drains whatever is already
// queued, then tears down the outbox path if one was started. No
// further trade callback fires after Close returns.
func (e *Engine) Close() error {
	e.Submit(engine.Request{Type: engine.Stop})
	e.wrk.Shutdown()

	if e.cancelOutbox != nil {
		e.cancelOutbox()
	}
	if e.broadcaster != nil {
		e.broadcaster.Close()
	}
	if e.outboxWAL != nil {
		e.outboxWAL.Close()
	}
	return nil
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Package fanout distributes matched trades to external consumers: the
// direct owner callbacks the matching engine requires, and the optional
// reference ledger and message-bus publication this module adds on top.
package fanout

import "matchbook/engine"

// Sink receives one Trade at a time, from the worker goroutine,
// synchronously with the match that produced it. A Sink must not block
// or call back into the engine.
type Sink func(engine.Trade)

// Dispatcher fans a single trade out to every registered Sink in
// registration order. This is the direct callback contract the
// matching engine itself requires; Ledger and the Kafka publishers are
// just Sinks registered on top of it.
type Dispatcher struct {
	sinks []Sink
}

// NewDispatcher creates an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Register adds a Sink. Not safe to call concurrently with OnTrade.
func (d *Dispatcher) Register(s Sink) {
	d.sinks = append(d.sinks, s)
}

// OnTrade is the engine.Listener this Dispatcher exposes.
func (d *Dispatcher) OnTrade(t engine.Trade) {
	for _, s := range d.sinks {
		s(t)
	}
}

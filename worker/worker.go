// Package worker runs the single dedicated goroutine that drains the
// request ring buffer and drives the matching engine. Producers never
// touch engine state directly; they only push onto the ring.
package worker

import (
	"errors"
	"log"
	"runtime"
	"sync"

	"matchbook/engine"
	"matchbook/memory"
	"matchbook/ring"
)

// Config controls how the worker goroutine is started.
type Config struct {
	// CoreID, if non-nil, pins the worker's OS thread to that CPU core.
	// Best-effort: platforms without affinity support log and continue.
	CoreID *int
}

// Worker owns the matching engine and the single goroutine permitted to
// mutate it.
type Worker struct {
	eng  *engine.MatchingEngine
	reqs *ring.Buffer[engine.Request]
	cfg  Config

	wg   sync.WaitGroup
	stop chan struct{}
}

// New creates a Worker. Call Start to launch its goroutine.
func New(eng *engine.MatchingEngine, reqs *ring.Buffer[engine.Request], cfg Config) *Worker {
	return &Worker{
		eng:  eng,
		reqs: reqs,
		cfg:  cfg,
		stop: make(chan struct{}),
	}
}

// Start launches the worker goroutine.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.run()
}

// Shutdown signals the worker to stop after draining whatever is
// currently queued, and blocks until it has exited.
func (w *Worker) Shutdown() {
	close(w.stop)
	w.wg.Wait()
}

func (w *Worker) run() {
	defer w.wg.Done()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if w.cfg.CoreID != nil {
		if err := pinToCore(*w.cfg.CoreID); err != nil {
			log.Printf("worker: CPU affinity to core %d failed: %v", *w.cfg.CoreID, err)
		}
	}

	for {
		select {
		case <-w.stop:
			w.drain()
			return
		default:
		}

		req, ok := w.reqs.TryPop()
		if !ok {
			runtime.Gosched()
			continue
		}
		w.dispatch(req)
	}
}

// drain processes whatever is left in the ring without blocking, so a
// Shutdown doesn't silently discard already-submitted requests.
func (w *Worker) drain() {
	for {
		req, ok := w.reqs.TryPop()
		if !ok {
			return
		}
		w.dispatch(req)
	}
}

func (w *Worker) dispatch(req engine.Request) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("worker: recovered from panic processing request %+v: %v", req, r)
		}
	}()

	var err error
	switch req.Type {
	case engine.Add:
		err = w.eng.Add(req)
	case engine.Cancel:
		err = w.eng.Cancel(req.OrderID)
	case engine.Modify:
		err = w.eng.Modify(req)
	case engine.Stop:
		return
	}
	if err != nil {
		if errors.Is(err, memory.ErrPoolExhausted) {
			log.Fatalf("worker: request %+v: %v", req, err)
		}
		log.Printf("worker: request %+v: %v", req, err)
	}
}

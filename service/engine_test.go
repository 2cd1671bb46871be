package service

import (
	"sync"
	"testing"
	"time"

	"matchbook/engine"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestSubmitAddRestsAndIsObservable(t *testing.T) {
	eng, err := New(Config{MaxOrders: 64})
	require.NoError(t, err)
	defer eng.Close()

	eng.Submit(engine.Request{Type: engine.Add, OrderID: 1, Side: engine.Bid, Kind: engine.GoodTillCancel, Price: 100, Qty: 10})

	waitFor(t, time.Second, func() bool { return eng.Size() == 1 })
	price, ok := eng.TopBidPrice()
	require.True(t, ok)
	assert.Equal(t, uint64(100), price)
}

func TestSubmitCrossEmitsTradeCallback(t *testing.T) {
	var mu sync.Mutex
	var trades []engine.Trade

	eng, err := New(Config{
		MaxOrders: 64,
		OnTrade: func(tr engine.Trade) {
			mu.Lock()
			defer mu.Unlock()
			trades = append(trades, tr)
		},
	})
	require.NoError(t, err)
	defer eng.Close()

	eng.Submit(engine.Request{Type: engine.Add, OrderID: 1, Side: engine.Ask, Kind: engine.GoodTillCancel, Price: 50, Qty: 5})
	eng.Submit(engine.Request{Type: engine.Add, OrderID: 2, Side: engine.Bid, Kind: engine.GoodTillCancel, Price: 50, Qty: 5})

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(trades) == 1
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, uint64(5), trades[0].Qty)
}

func TestCloseLeavesRestingOrdersInPlace(t *testing.T) {
	eng, err := New(Config{MaxOrders: 64})
	require.NoError(t, err)

	eng.Submit(engine.Request{Type: engine.Add, OrderID: 1, Side: engine.Bid, Kind: engine.GoodTillCancel, Price: 10, Qty: 1})
	waitFor(t, time.Second, func() bool { return eng.Size() == 1 })

	require.NoError(t, eng.Close())
	assert.Equal(t, 1, eng.Size(), "Close must not itself mutate remaining resting orders")
}

func TestParallelProducersDisjointIDs(t *testing.T) {
	eng, err := New(Config{MaxOrders: 4096})
	require.NoError(t, err)
	defer eng.Close()

	const producers = 8
	const perProducer = 50
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(base uint64) {
			defer wg.Done()
			for i := uint64(0); i < perProducer; i++ {
				eng.Submit(engine.Request{
					Type:    engine.Add,
					OrderID: base*perProducer + i,
					Side:    engine.Bid,
					Kind:    engine.GoodTillCancel,
					Price:   100,
					Qty:     1,
				})
			}
		}(uint64(p))
	}
	wg.Wait()

	waitFor(t, 2*time.Second, func() bool { return eng.Size() == producers*perProducer })
	assert.Equal(t, uint64(producers*perProducer), eng.BidDepth(100))
}

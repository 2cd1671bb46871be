package engine

import (
	"sync"
	"testing"

	"matchbook/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addReq(id uint64, side Side, kind OrderType, price, qty uint64) Request {
	return Request{Type: Add, OrderID: id, OwnerID: uint32(id), Side: side, Kind: kind, Price: price, Qty: qty}
}

func TestAddRestsWhenNoCross(t *testing.T) {
	e, err := New(16, nil)
	require.NoError(t, err)

	require.NoError(t, e.Add(addReq(1, Bid, GoodTillCancel, 100, 10)))
	assert.Equal(t, 1, e.Size())
	price, ok := e.TopBidPrice()
	require.True(t, ok)
	assert.Equal(t, uint64(100), price)
	assert.Equal(t, uint64(10), e.BidDepth(100))
}

func TestExactCrossFillsBoth(t *testing.T) {
	var trades []Trade
	e, err := New(16, func(tr Trade) { trades = append(trades, tr) })
	require.NoError(t, err)

	require.NoError(t, e.Add(addReq(1, Ask, GoodTillCancel, 100, 10)))
	require.NoError(t, e.Add(addReq(2, Bid, GoodTillCancel, 100, 10)))

	require.Len(t, trades, 1)
	assert.Equal(t, uint64(10), trades[0].Qty)
	assert.Equal(t, uint64(100), trades[0].Price)
	assert.Equal(t, uint64(2), trades[0].BidOrderID)
	assert.Equal(t, uint64(1), trades[0].AskOrderID)

	assert.Equal(t, 0, e.Size())
	_, ok := e.TopBidPrice()
	assert.False(t, ok)
	_, ok = e.TopAskPrice()
	assert.False(t, ok)
}

func TestPartialFillLeavesResidual(t *testing.T) {
	var trades []Trade
	e, err := New(16, func(tr Trade) { trades = append(trades, tr) })
	require.NoError(t, err)

	require.NoError(t, e.Add(addReq(1, Ask, GoodTillCancel, 100, 10)))
	require.NoError(t, e.Add(addReq(2, Bid, GoodTillCancel, 100, 4)))

	require.Len(t, trades, 1)
	assert.Equal(t, uint64(4), trades[0].Qty)
	assert.Equal(t, 1, e.Size())
	assert.Equal(t, uint64(6), e.AskDepth(100))
}

func TestFillAndKillDiscardsResidual(t *testing.T) {
	e, err := New(16, nil)
	require.NoError(t, err)

	require.NoError(t, e.Add(addReq(1, Bid, FillAndKill, 100, 10)))
	assert.Equal(t, 0, e.Size(), "FAK with nothing to match should discard, not rest")
	_, ok := e.TopBidPrice()
	assert.False(t, ok)
}

// TestFillAndKillPartiallyFillsAgainstRestingThenDiscardsResidual is the
// resting Sell id=1 100/5, then Buy id=2 100/10 FAK scenario: one trade
// of qty 5 against the resting sell, and the aggressor's remaining 5
// units are discarded rather than rested.
func TestFillAndKillPartiallyFillsAgainstRestingThenDiscardsResidual(t *testing.T) {
	var trades []Trade
	e, err := New(16, func(tr Trade) { trades = append(trades, tr) })
	require.NoError(t, err)

	require.NoError(t, e.Add(addReq(1, Ask, GoodTillCancel, 100, 5)))
	require.NoError(t, e.Add(addReq(2, Bid, FillAndKill, 100, 10)))

	require.Len(t, trades, 1)
	assert.Equal(t, uint64(1), trades[0].AskOrderID)
	assert.Equal(t, uint64(2), trades[0].BidOrderID)
	assert.Equal(t, uint64(100), trades[0].Price)
	assert.Equal(t, uint64(5), trades[0].Qty)

	assert.Equal(t, 0, e.Size(), "the filled resting sell and the FAK's discarded residual must leave nothing resting")
	_, ok := e.TopBidPrice()
	assert.False(t, ok, "FAK's unfilled residual must never rest on the book")
	_, ok = e.TopAskPrice()
	assert.False(t, ok)
}

func TestDuplicateOrderIDSilentlyDropped(t *testing.T) {
	e, err := New(16, nil)
	require.NoError(t, err)

	require.NoError(t, e.Add(addReq(1, Bid, GoodTillCancel, 100, 10)))
	err = e.Add(addReq(1, Bid, GoodTillCancel, 90, 5))
	assert.ErrorIs(t, err, ErrDuplicateOrderID)

	assert.Equal(t, 1, e.Size())
	assert.Equal(t, uint64(10), e.BidDepth(100), "original resting order must be untouched")
}

func TestCancelUnknownIDIsNoOp(t *testing.T) {
	e, err := New(16, nil)
	require.NoError(t, err)

	err = e.Cancel(999)
	assert.ErrorIs(t, err, ErrUnknownOrderID)
}

func TestCancelRemovesDepthImmediately(t *testing.T) {
	e, err := New(16, nil)
	require.NoError(t, err)

	require.NoError(t, e.Add(addReq(1, Bid, GoodTillCancel, 100, 10)))
	require.NoError(t, e.Add(addReq(2, Bid, GoodTillCancel, 100, 5)))
	require.NoError(t, e.Cancel(1))

	assert.Equal(t, uint64(5), e.BidDepth(100))

	// A later cross should only fill the still-live order.
	require.NoError(t, e.Add(addReq(3, Ask, GoodTillCancel, 100, 100)))
	assert.Equal(t, uint64(95), e.AskDepth(100), "cancelled order 1 must not participate in matching")
}

func TestModifyChangesPriceAndRequeues(t *testing.T) {
	e, err := New(16, nil)
	require.NoError(t, err)

	require.NoError(t, e.Add(addReq(1, Bid, GoodTillCancel, 100, 10)))
	require.NoError(t, e.Modify(Request{OrderID: 1, NewPrice: 105, NewQty: 7}))

	assert.Equal(t, uint64(0), e.BidDepth(100))
	assert.Equal(t, uint64(7), e.BidDepth(105))
}

func TestModifyUnknownIDIsNoOp(t *testing.T) {
	e, err := New(16, nil)
	require.NoError(t, err)

	err = e.Modify(Request{OrderID: 42, NewPrice: 1, NewQty: 1})
	assert.ErrorIs(t, err, ErrUnknownOrderID)
}

func TestPriceTimePriority(t *testing.T) {
	var trades []Trade
	e, err := New(16, func(tr Trade) { trades = append(trades, tr) })
	require.NoError(t, err)

	require.NoError(t, e.Add(addReq(1, Bid, GoodTillCancel, 100, 5)))
	require.NoError(t, e.Add(addReq(2, Bid, GoodTillCancel, 100, 5)))
	require.NoError(t, e.Add(addReq(3, Ask, GoodTillCancel, 100, 5)))

	require.Len(t, trades, 1)
	assert.Equal(t, uint64(1), trades[0].BidOrderID, "order 1 arrived first at the same price and should fill first")
}

func TestBestPriceWinsOverArrivalOrder(t *testing.T) {
	var trades []Trade
	e, err := New(16, func(tr Trade) { trades = append(trades, tr) })
	require.NoError(t, err)

	require.NoError(t, e.Add(addReq(1, Bid, GoodTillCancel, 100, 5)))
	require.NoError(t, e.Add(addReq(2, Bid, GoodTillCancel, 105, 5)))
	require.NoError(t, e.Add(addReq(3, Ask, GoodTillCancel, 100, 5)))

	require.Len(t, trades, 1)
	assert.Equal(t, uint64(2), trades[0].BidOrderID, "the higher bid must fill first regardless of arrival order")
}

func TestPoolExhaustionIsFatal(t *testing.T) {
	e, err := New(1, nil)
	require.NoError(t, err)

	require.NoError(t, e.Add(addReq(1, Bid, GoodTillCancel, 100, 1)))
	err = e.Add(addReq(2, Bid, GoodTillCancel, 100, 1))
	assert.ErrorIs(t, err, memory.ErrPoolExhausted)
}

// TestConcurrentObservabilityReadsDuringMutation drives Add/Cancel from
// one goroutine while Size/TopBidPrice/BidDepth/BidOrderCount are read
// continuously from others, under -race. Before MatchingEngine.mu this
// panicked with "concurrent map read and map write" almost immediately.
func TestConcurrentObservabilityReadsDuringMutation(t *testing.T) {
	e, err := New(4096, nil)
	require.NoError(t, err)

	const writes = 2000
	done := make(chan struct{})

	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				_ = e.Size()
				_, _ = e.TopBidPrice()
				_ = e.BidDepth(100)
				_ = e.BidOrderCount(100)
			}
		}()
	}

	for i := uint64(0); i < writes; i++ {
		require.NoError(t, e.Add(addReq(i+1, Bid, GoodTillCancel, 100, 1)))
		if i%2 == 0 {
			require.NoError(t, e.Cancel(i + 1))
		}
	}
	close(done)
	wg.Wait()
}

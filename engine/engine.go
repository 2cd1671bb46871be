package engine

import (
	"sync"
	"sync/atomic"

	"matchbook/memory"
)

// MatchingEngine runs price-time priority matching against one bid and
// one ask halfBook. Add/Cancel/Modify are normally only ever called from
// the one worker goroutine that owns the engine, but every exported
// method except MatchedTrades (an atomic counter) takes mu, so the
// engine stays safe when used directly from more than one goroutine (as
// the engine tests do, reading it from several goroutines while Add and
// Cancel run): mu is what lets observability
// reads run concurrently with mutation without racing on the rbTree,
// price levels, or the index map.
type MatchingEngine struct {
	mu sync.RWMutex

	pool *memory.Pool[Order]
	bids *halfBook
	asks *halfBook

	index map[uint64]*Order

	matchedTrades atomic.Uint64
	onTrade       Listener
}

// New constructs a MatchingEngine backed by a fixed-capacity pool sized
// for maxOrders resting/in-flight orders at once.
func New(maxOrders int, onTrade Listener) (*MatchingEngine, error) {
	pool, err := memory.NewPool[Order](maxOrders)
	if err != nil {
		return nil, err
	}
	return &MatchingEngine{
		pool:    pool,
		bids:    newHalfBook(Bid),
		asks:    newHalfBook(Ask),
		index:   make(map[uint64]*Order, maxOrders),
		onTrade: onTrade,
	}, nil
}

// Add inserts a new order, matching it immediately against the book and
// resting any GoodTillCancel residual. A duplicate id is silently
// dropped: ErrDuplicateOrderID is returned for observability but the
// book is left exactly as it was.
func (e *MatchingEngine) Add(req Request) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.addLocked(req)
}

func (e *MatchingEngine) addLocked(req Request) error {
	if _, exists := e.index[req.OrderID]; exists {
		return ErrDuplicateOrderID
	}

	o, err := e.pool.Acquire()
	if err != nil {
		return err
	}
	*o = Order{
		ID:        req.OrderID,
		OwnerID:   req.OwnerID,
		Type:      req.Kind,
		Side:      req.Side,
		Price:     req.Price,
		Initial:   req.Qty,
		Remaining: req.Qty,
		valid:     true,
	}

	e.match(o)

	if o.Remaining == 0 {
		o.valid = false
		e.pool.Release(o)
		return nil
	}

	if o.Type == FillAndKill {
		o.valid = false
		e.pool.Release(o)
		return nil
	}

	e.index[o.ID] = o
	e.restingBook(o.Side).PushBack(o)
	return nil
}

// Cancel tombstones a resting order without walking its queue: the index entry is
// dropped and the level's running total is reduced immediately, but the
// order stays physically linked into its price level's queue until the
// match loop next walks over that level, at which point it is spliced
// out and its pool slot reclaimed.
func (e *MatchingEngine) Cancel(orderID uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelLocked(orderID)
}

func (e *MatchingEngine) cancelLocked(orderID uint64) error {
	o, ok := e.index[orderID]
	if !ok {
		return ErrUnknownOrderID
	}
	delete(e.index, orderID)

	lvl := e.restingBook(o.Side).tree.Get(o.Price)
	if lvl != nil {
		lvl.ReduceFilled(o.Remaining)
	}
	o.valid = false
	return nil
}

// Modify cancels and re-adds an order under its original OrderType,
// preserving price-time priority rules (the re-add gets a fresh
// position in its new price level's queue). An unknown id is a no-op.
func (e *MatchingEngine) Modify(req Request) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, ok := e.index[req.OrderID]
	if !ok {
		return ErrUnknownOrderID
	}
	kind := o.Type
	side := o.Side
	owner := o.OwnerID
	if err := e.cancelLocked(req.OrderID); err != nil {
		return err
	}
	return e.addLocked(Request{
		Type:    Add,
		OrderID: req.OrderID,
		OwnerID: owner,
		Side:    side,
		Kind:    kind,
		Price:   req.NewPrice,
		Qty:     req.NewQty,
	})
}

// match walks the opposite side's book from best price while the
// aggressor has remaining quantity and the book still crosses its
// limit, emitting one Trade per fill.
func (e *MatchingEngine) match(o *Order) {
	opp := e.restingBook(opposite(o.Side))

	for o.Remaining > 0 {
		lvl := opp.Best()
		if lvl == nil {
			return
		}
		e.purgeTombstones(opp, lvl)
		if lvl.Empty() {
			continue
		}
		if !crosses(o.Side, o.Price, lvl.Price) {
			return
		}

		maker := lvl.Head()
		qty := o.Remaining
		if maker.Remaining < qty {
			qty = maker.Remaining
		}

		o.Remaining -= qty
		maker.Remaining -= qty
		lvl.ReduceFilled(qty)
		e.matchedTrades.Add(1)

		trade := Trade{Qty: qty, Price: lvl.Price}
		if o.Side == Bid {
			trade.BidOrderID, trade.AskOrderID = o.ID, maker.ID
			trade.BidOwner, trade.AskOwner = o.OwnerID, maker.OwnerID
		} else {
			trade.BidOrderID, trade.AskOrderID = maker.ID, o.ID
			trade.BidOwner, trade.AskOwner = maker.OwnerID, o.OwnerID
		}
		if e.onTrade != nil {
			e.onTrade(trade)
		}

		if maker.Remaining == 0 {
			delete(e.index, maker.ID)
			maker.valid = false
			lvl.DropFront()
			opp.dropLevelIfEmpty(lvl)
			e.pool.Release(maker)
		}
	}
}

// purgeTombstones drops cancelled orders off the front of lvl's queue.
// This is where a Cancel's deferred physical removal actually happens.
func (e *MatchingEngine) purgeTombstones(book *halfBook, lvl *priceLevel) {
	for {
		head := lvl.Head()
		if head == nil || head.valid {
			if lvl.Empty() {
				book.dropLevelIfEmpty(lvl)
			}
			return
		}
		lvl.DropFront()
		e.pool.Release(head)
	}
}

func (e *MatchingEngine) restingBook(s Side) *halfBook {
	if s == Bid {
		return e.bids
	}
	return e.asks
}

func opposite(s Side) Side {
	if s == Bid {
		return Ask
	}
	return Bid
}

// ---- observability, safe to call from any goroutine ----
//
// Each of these except MatchedTrades, which loads an atomic counter,
// takes mu for reading, which is what makes it safe to
// call concurrently with Add/Cancel/Modify: those three hold mu for
// writing across their entire body, including every rbTree and
// priceLevel mutation, so a reader here never observes a half-built
// tree rotation or a partially updated level total.

// MatchedTrades returns the running count of fills produced so far.
func (e *MatchingEngine) MatchedTrades() uint64 {
	return e.matchedTrades.Load()
}

// TopBidPrice returns the best resting bid price and whether one
// exists.
func (e *MatchingEngine) TopBidPrice() (uint64, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	lvl := e.bids.Best()
	if lvl == nil {
		return 0, false
	}
	return lvl.Price, true
}

// TopAskPrice returns the best resting ask price and whether one
// exists.
func (e *MatchingEngine) TopAskPrice() (uint64, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	lvl := e.asks.Best()
	if lvl == nil {
		return 0, false
	}
	return lvl.Price, true
}

// Size returns the number of orders currently resting.
func (e *MatchingEngine) Size() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.index)
}

// BidDepth returns the total resting quantity at price on the bid side.
func (e *MatchingEngine) BidDepth(price uint64) uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.bids.LevelTotal(price)
}

// AskDepth returns the total resting quantity at price on the ask side.
func (e *MatchingEngine) AskDepth(price uint64) uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.asks.LevelTotal(price)
}

// BidOrderCount returns the number of resting orders at price on the
// bid side (including any not-yet-purged tombstones still physically
// queued there).
func (e *MatchingEngine) BidOrderCount(price uint64) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.bids.LevelOrderCount(price)
}

// AskOrderCount returns the number of resting orders at price on the
// ask side.
func (e *MatchingEngine) AskOrderCount(price uint64) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.asks.LevelOrderCount(price)
}

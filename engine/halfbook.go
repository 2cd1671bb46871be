package engine

// halfBook is one side (bid or ask) of the order book: a red-black tree
// of price levels plus the convenience operations the match loop and
// observability reads need.
type halfBook struct {
	side Side
	tree *rbTree
}

func newHalfBook(side Side) *halfBook {
	return &halfBook{side: side, tree: newRBTree(side == Bid)}
}

func (h *halfBook) Best() *priceLevel {
	return h.tree.Best()
}

func (h *halfBook) LevelTotal(price uint64) uint64 {
	lvl := h.tree.Get(price)
	if lvl == nil {
		return 0
	}
	return lvl.totalQty
}

func (h *halfBook) PushBack(o *Order) {
	h.tree.GetOrCreate(o.Price).PushBack(o)
}

func (h *halfBook) LevelOrderCount(price uint64) int {
	lvl := h.tree.Get(price)
	if lvl == nil {
		return 0
	}
	return lvl.OrderCount()
}

// dropLevelIfEmpty removes the price level from the tree once its queue
// has been drained — called by the match loop after it pops the last
// order (live or tombstoned) off a level.
func (h *halfBook) dropLevelIfEmpty(lvl *priceLevel) {
	if lvl.Empty() {
		h.tree.Delete(lvl.Price)
	}
}

// crosses reports whether a request's limit allows matching against this
// side's best price. Market-style crossing isn't part of this engine's
// order types, so the caller always passes the aggressor's limit price.
func crosses(aggressorSide Side, aggressorPrice uint64, bestPrice uint64) bool {
	if aggressorSide == Bid {
		return aggressorPrice >= bestPrice
	}
	return aggressorPrice <= bestPrice
}

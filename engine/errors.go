package engine

import "errors"

// ErrUnknownOrderID is returned by Cancel/Modify when no resting order
// with the given id exists. Callers may treat this as an informational
// no-op.
var ErrUnknownOrderID = errors.New("engine: unknown order id")

// ErrDuplicateOrderID is returned by Add when an order with the same id
// is already resting on the book. The request is silently dropped; the
// existing resting order is left untouched.
var ErrDuplicateOrderID = errors.New("engine: duplicate order id")

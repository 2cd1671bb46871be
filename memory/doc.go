// Package memory provides the fixed-capacity, intrusive-free-list object
// pool the matching engine allocates orders from. Acquire/Release are
// O(1) pointer operations; there is no implicit reclamation here —
// callers that need to defer a Release past a concurrent read do so with
// their own synchronization (see engine.MatchingEngine's mutex).
//
// The memory package is dependency-free and forms the foundation for
// the matching engine's order lifecycle.
package memory

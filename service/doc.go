// Package service orchestrates the core components of the matching
// engine — the ring buffer, the worker goroutine, and the matching
// engine itself — behind a single public Engine type, decoupled from
// any network transport.
package service

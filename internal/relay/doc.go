// Package relay contains the fan-out core: a single-goroutine hub that owns
// the set of connected WebSocket clients and pushes every upstream event to
// each of them without letting one slow connection stall the others.
package relay

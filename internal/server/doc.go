// Package server exposes the relay over HTTP: the /ws upgrade endpoint that
// feeds accepted connections into the hub, plus health, version, and metrics
// endpoints. It owns the accept-path protections (origin checks, connection
// limits) but no relay logic.
package server

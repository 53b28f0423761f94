// Package redis wraps the go-redis client with the hooks the relay needs
// (metrics, circuit breaker) and implements the upstream pub/sub subscriber
// that feeds the fan-out hub.
package redis

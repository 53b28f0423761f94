package redis

import (
	"context"
	"testing"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_InvalidURL(t *testing.T) {
	_, err := NewClient(context.Background(), "not-a-redis-url")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse redis URL")
}

func TestNewClient_Unreachable(t *testing.T) {
	_, err := NewClient(context.Background(), "redis://127.0.0.1:1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to redis")
}

func TestNewClient_PingThroughHooks(t *testing.T) {
	client := setupTestClient(t)

	// A round trip through both hooks against a live server.
	require.NoError(t, client.Ping(context.Background()).Err())
}

func TestCircuitBreakerHook_StartsClosed(t *testing.T) {
	hook := NewCircuitBreakerHook()
	assert.Equal(t, circuitbreaker.ClosedState, hook.GetState())
}

func TestCircuitBreakerHook_StaysClosedOnSuccess(t *testing.T) {
	client := setupTestClient(t)

	for range 10 {
		require.NoError(t, client.Ping(context.Background()).Err())
	}
}

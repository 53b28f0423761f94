package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/fleetrelay/fleetrelay/internal/platform/config"
	"github.com/fleetrelay/fleetrelay/internal/platform/logging"
	"github.com/fleetrelay/fleetrelay/internal/platform/version"
	"github.com/fleetrelay/fleetrelay/internal/redis"
	"github.com/fleetrelay/fleetrelay/internal/relay"
	"github.com/fleetrelay/fleetrelay/internal/server"
)

func main() {
	clock := clockwork.NewRealClock()

	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Relay starting",
		"env", cfg.AppEnv,
		"port", cfg.Port,
		"version", version.Short(),
		"channels", cfg.ChannelList(),
	)

	// upstreamCtx governs the subscription; cancelling it is the first step
	// of shutdown so no new events enter the pipeline while clients close.
	upstreamCtx, cancelUpstream := context.WithCancel(context.Background())
	defer cancelUpstream()

	redisClient, err := redis.NewClient(upstreamCtx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer func() { _ = redisClient.Close() }()

	hub := relay.NewHub(clock, int(cfg.MaxConnections))

	subscriber := redis.NewSubscriber(redisClient, clock, cfg.ChannelList())
	if err := subscriber.Start(upstreamCtx); err != nil {
		slog.Error("Upstream subscribe failed, cannot start", "error", err)
		os.Exit(2)
	}

	// Dispatch pump: the one task that drives upstream events into the hub.
	go func() {
		for event := range subscriber.Events() {
			hub.Dispatch(event)
		}
	}()

	srv := server.NewServer(cfg, hub, redisClient)

	done := runGracefulShutdown(srv, hub, cancelUpstream, cfg.ShutdownTimeout)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}

func runGracefulShutdown(srv *server.Server, hub *relay.Hub, cancelUpstream context.CancelFunc, timeout time.Duration) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		// Tear down the subscription first, then stop accepting HTTP, then
		// close every registered client.
		cancelUpstream()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		hub.Stop()

		close(done)
	}()

	return done
}

package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/fleetrelay/fleetrelay/internal/metrics"
	"github.com/fleetrelay/fleetrelay/internal/platform/correlation"
)

// maxInboundMessageSize bounds frames clients may send. The relay never
// consumes client data, so anything beyond control frames is noise.
const maxInboundMessageSize = 512

// handleWebSocket accepts one client connection, registers it with the hub,
// and then blocks on a read pump whose only job is to detect client-initiated
// close or a transport error. Removal is triggered from here on read failure
// and from the hub on send failure; Unregister is idempotent, so both paths
// may fire.
func (s *Server) handleWebSocket(c echo.Context) error {
	ip := c.RealIP()

	ok, reason := s.limits.Acquire(ip)
	if !ok {
		metrics.ConnectionsRejectedTotal.WithLabelValues(string(reason)).Inc()
		slog.Warn("Connection rejected", "reason", string(reason), "remote_ip", ip)
		status := http.StatusServiceUnavailable
		if reason == LimitReasonRate {
			status = http.StatusTooManyRequests
		}
		return c.JSON(status, map[string]string{"error": "connection limit reached"})
	}
	defer s.limits.Release(ip)

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// A single failed handshake is logged and ignored; the accept
		// path keeps serving other clients.
		metrics.ConnectionsRejectedTotal.WithLabelValues("handshake").Inc()
		slog.Warn("WebSocket upgrade failed", "error", err, "remote_ip", ip)
		return nil
	}
	conn.SetReadLimit(maxInboundMessageSize)

	channels := parseChannelFilter(c.QueryParam("channels"))

	id, err := s.hub.Register(conn, channels)
	if err != nil {
		// The hub has already closed the connection.
		metrics.ConnectionsRejectedTotal.WithLabelValues("capacity").Inc()
		slog.Warn("Hub registration failed", "error", err, "remote_ip", ip)
		return nil
	}

	ctx := correlation.WithID(context.Background(), correlation.NewID())
	slog.InfoContext(ctx, "Client connected",
		"connection_id", id.String(),
		"remote_ip", ip,
		"channels", channels,
	)

	// Read pump: discard anything the client sends, exit on close or error.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.hub.Unregister(id)
	slog.InfoContext(ctx, "Client disconnected", "connection_id", id.String())

	return nil
}

// parseChannelFilter parses the optional ?channels=a,b query parameter.
// An empty result means the client receives every relayed channel. Names are
// passed through as-is; the relay attaches no meaning to them.
func parseChannelFilter(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	channels := make([]string, 0, len(parts))
	for _, p := range parts {
		if name := strings.TrimSpace(p); name != "" {
			channels = append(channels, name)
		}
	}
	return channels
}

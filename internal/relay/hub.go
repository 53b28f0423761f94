package relay

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/fleetrelay/fleetrelay/internal/metrics"
)

const (
	commandTimeout = 5 * time.Second  // hub command round-trip timeout
	stopTimeout    = 10 * time.Second // graceful shutdown timeout
	commandBuffer  = 256
)

// hubCmd is the command interface for the Hub actor.
type hubCmd interface{ isHubCmd() }

type baseHubCmd struct{}

func (baseHubCmd) isHubCmd() {}

type registerCmd struct {
	baseHubCmd
	connection   *websocket.Conn
	channels     []string
	replyChannel chan registerReply
}

type registerReply struct {
	id  uuid.UUID
	err error
}

type unregisterCmd struct {
	baseHubCmd
	id uuid.UUID
}

type dispatchCmd struct {
	baseHubCmd
	event Event
}

type clientCountCmd struct {
	baseHubCmd
	replyChannel chan int
}

type stopCmd struct {
	baseHubCmd
}

// Hub is the connection registry and fan-out dispatcher. A single goroutine
// owns the client map; registration, removal, and dispatch all arrive as
// commands on one channel, so membership can never be observed mid-mutation.
// Actual socket I/O happens on per-client writer goroutines, never here.
type Hub struct {
	cmdCh       chan hubCmd
	clock       clockwork.Clock
	clients     map[uuid.UUID]*clientWriter
	maxClients  int
	done        chan struct{}
	stopTimeout time.Duration
}

// NewHub creates the hub and starts its actor goroutine.
// maxClients caps concurrent registrations (prevents resource exhaustion).
func NewHub(clock clockwork.Clock, maxClients int) *Hub {
	h := &Hub{
		cmdCh:       make(chan hubCmd, commandBuffer),
		clock:       clock,
		clients:     make(map[uuid.UUID]*clientWriter),
		maxClients:  maxClients,
		done:        make(chan struct{}),
		stopTimeout: stopTimeout,
	}
	go h.run()
	return h
}

// Register adds a client connection and returns its assigned identifier.
// Identifiers are random UUIDs and are never reused. channels optionally
// restricts which upstream channels the client receives; empty means all.
func (h *Hub) Register(conn *websocket.Conn, channels []string) (uuid.UUID, error) {
	replyCh := make(chan registerReply, 1)

	select {
	case h.cmdCh <- registerCmd{connection: conn, channels: channels, replyChannel: replyCh}:
	case <-h.done:
		return uuid.Nil, fmt.Errorf("hub is shut down")
	}

	// Use timeout to prevent blocking forever if the hub is stuck
	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case reply := <-replyCh:
		return reply.id, reply.err
	case <-timer.Chan():
		return uuid.Nil, fmt.Errorf("register command timed out after %v", commandTimeout)
	}
}

// Unregister removes a client connection. Safe to call from both the read
// and write failure paths; removal happens at most once.
func (h *Hub) Unregister(id uuid.UUID) {
	select {
	case h.cmdCh <- unregisterCmd{id: id}:
	case <-h.done:
	}
}

// Dispatch delivers the event's payload to every registered client whose
// channel filter matches. It only enqueues into per-client buffers and never
// waits on socket I/O.
func (h *Hub) Dispatch(event Event) {
	select {
	case h.cmdCh <- dispatchCmd{event: event}:
	case <-h.done:
	}
}

// ClientCount returns the number of registered clients, or -1 on timeout.
func (h *Hub) ClientCount() int {
	replyCh := make(chan int, 1)

	select {
	case h.cmdCh <- clientCountCmd{replyChannel: replyCh}:
	case <-h.done:
		return 0
	}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case count := <-replyCh:
		return count
	case <-timer.Chan():
		slog.Warn("ClientCount timed out", "timeout", commandTimeout)
		return -1
	}
}

// Stop shuts down the hub, closing all client connections with a close frame.
// Blocks until the hub goroutine has exited or the stop timeout is reached.
func (h *Hub) Stop() {
	select {
	case h.cmdCh <- stopCmd{}:
	case <-h.done:
		return
	}

	timeout := h.clock.NewTimer(h.stopTimeout)
	defer timeout.Stop()

	select {
	case <-h.done:
		slog.Info("Hub stopped gracefully")
	case <-timeout.Chan():
		slog.Warn("Hub stop timeout exceeded, forcing exit", "timeout", h.stopTimeout)
		metrics.HubStopTimeoutsTotal.Inc()
		close(h.done)
		slog.Error("Hub goroutine may have leaked", "active_clients", len(h.clients))
	}
}

func (h *Hub) run() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Hub panic recovered", "panic", r)
			metrics.HubPanicsTotal.Inc()
			h.closeAllClients("hub panic")
		}
	}()
	defer close(h.done)

	// Track command channel depth every second
	depthTicker := h.clock.NewTicker(1 * time.Second)
	defer depthTicker.Stop()

	for {
		select {
		case <-depthTicker.Chan():
			depth := len(h.cmdCh)
			metrics.HubCommandChannelDepth.Set(float64(depth))

			if depth > cap(h.cmdCh)*4/5 {
				slog.Warn("Hub command channel near capacity",
					"depth", depth,
					"capacity", cap(h.cmdCh),
				)
			}

		case cmd := <-h.cmdCh:
			switch c := cmd.(type) {
			case registerCmd:
				h.handleRegister(c)
			case unregisterCmd:
				h.handleUnregister(c.id)
			case dispatchCmd:
				h.handleDispatch(c.event)
			case clientCountCmd:
				c.replyChannel <- len(h.clients)
			case stopCmd:
				h.handleStop()
				return
			default:
				slog.Warn("Hub received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
			}
		}
	}
}

func (h *Hub) handleRegister(c registerCmd) {
	if len(h.clients) >= h.maxClients {
		slog.Warn("Rejecting client: max clients reached", "max_clients", h.maxClients)
		_ = c.connection.Close()
		c.replyChannel <- registerReply{err: fmt.Errorf("max clients (%d) reached", h.maxClients)}
		return
	}

	id := uuid.New()
	cw := newClientWriter(id, c.connection, h.clock, c.channels)
	h.clients[id] = cw

	metrics.HubConnectedClients.Set(float64(len(h.clients)))

	slog.Debug("Client registered", "connection_id", id.String(), "total_clients", len(h.clients))
	c.replyChannel <- registerReply{id: id}
}

func (h *Hub) handleUnregister(id uuid.UUID) {
	cw, exists := h.clients[id]
	if !exists {
		return
	}

	cw.stop()
	delete(h.clients, id)

	metrics.HubConnectedClients.Set(float64(len(h.clients)))
	slog.Debug("Client unregistered", "connection_id", id.String(), "remaining_clients", len(h.clients))
}

func (h *Hub) handleDispatch(event Event) {
	start := h.clock.Now()

	var slow []uuid.UUID
	for id, cw := range h.clients {
		if !cw.wants(event.Channel) {
			continue
		}
		select {
		case cw.sendChannel <- event.Payload:
			metrics.HubDeliveriesTotal.WithLabelValues("enqueued").Inc()
		default:
			metrics.HubDeliveriesTotal.WithLabelValues("dropped").Inc()
			slow = append(slow, id)
		}
	}

	// A full send buffer means the client hasn't drained sendBufferSize
	// messages within its write deadlines. It is disconnected, not queued.
	for _, id := range slow {
		slog.Warn("Disconnecting slow client", "connection_id", id.String(), "channel", event.Channel)
		metrics.HubSlowClientsEvicted.Inc()
		h.handleUnregister(id)
	}

	metrics.HubEventsDispatchedTotal.Inc()
	metrics.HubDispatchDuration.Observe(h.clock.Since(start).Seconds())
}

func (h *Hub) handleStop() {
	slog.Info("Hub shutting down", "clients", len(h.clients))
	h.closeAllClients("Server shutting down")
	slog.Info("Hub shutdown complete")
}

// closeAllClients closes all client connections with the given reason.
// Used during panic recovery and graceful shutdown.
func (h *Hub) closeAllClients(reason string) {
	for id, cw := range h.clients {
		cw.stopGraceful(reason)
		delete(h.clients, id)
	}
	metrics.HubConnectedClients.Set(0)
}

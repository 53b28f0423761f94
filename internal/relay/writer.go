package relay

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/fleetrelay/fleetrelay/internal/metrics"
)

const (
	writeDeadline  = 5 * time.Second
	pingInterval   = 30 * time.Second
	pongDeadline   = 60 * time.Second
	idleTimeout    = 5 * time.Minute
	sendBufferSize = 16
)

// clientWriter owns the outbound leg of one client connection. All writes to
// the socket happen on its goroutine; the hub only ever enqueues into
// sendChannel, so a stalled client can never block the dispatch loop.
type clientWriter struct {
	id            uuid.UUID
	connection    *websocket.Conn
	clock         clockwork.Clock
	channels      map[string]struct{}
	sendChannel   chan []byte
	doneChannel   chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup
	lastActivity  time.Time
	activityMutex sync.Mutex
}

// newClientWriter starts the writer goroutine. channels is the optional
// routing filter requested at accept time; nil or empty means all channels.
func newClientWriter(id uuid.UUID, connection *websocket.Conn, clock clockwork.Clock, channels []string) *clientWriter {
	cw := &clientWriter{
		id:           id,
		connection:   connection,
		clock:        clock,
		sendChannel:  make(chan []byte, sendBufferSize),
		doneChannel:  make(chan struct{}),
		lastActivity: clock.Now(),
	}
	if len(channels) > 0 {
		cw.channels = make(map[string]struct{}, len(channels))
		for _, name := range channels {
			cw.channels[name] = struct{}{}
		}
	}
	cw.configurePongHandler()
	cw.wg.Add(1)
	go cw.run()
	return cw
}

// wants reports whether this client asked for events from the given channel.
// The filter is immutable after creation, so no locking is needed.
func (cw *clientWriter) wants(channel string) bool {
	if cw.channels == nil {
		return true
	}
	_, ok := cw.channels[channel]
	return ok
}

func (cw *clientWriter) run() {
	ticker := cw.clock.NewTicker(pingInterval)
	defer ticker.Stop()
	defer cw.wg.Done()

	for {
		select {
		case msg, ok := <-cw.sendChannel:
			if !ok {
				return
			}
			start := cw.clock.Now()
			cw.updateWriteDeadline()
			if err := cw.connection.WriteMessage(websocket.TextMessage, msg); err != nil {
				// A failed write means the transport is gone. Close the
				// socket so the read pump errors out and unregisters us.
				_ = cw.connection.Close()
				return
			}
			metrics.WebSocketMessageSendDuration.Observe(cw.clock.Since(start).Seconds())
		case <-ticker.Chan():
			if cw.isIdle() {
				metrics.WebSocketIdleDisconnects.Inc()
				_ = cw.connection.Close()
				return
			}

			cw.updateWriteDeadline()
			if err := cw.connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				metrics.WebSocketPingFailures.Inc()
				_ = cw.connection.Close()
				return
			}
		case <-cw.doneChannel:
			return
		}
	}
}

func (cw *clientWriter) stop() {
	cw.stopOnce.Do(func() {
		close(cw.doneChannel)
		_ = cw.connection.Close()
	})
	cw.wg.Wait()
}

// stopGraceful sends a WebSocket close frame with reason before closing.
func (cw *clientWriter) stopGraceful(reason string) {
	cw.stopOnce.Do(func() {
		// Signal the run goroutine to exit and wait for it, so the close
		// frame below is not written concurrently with a payload.
		close(cw.doneChannel)
		cw.wg.Wait()

		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		cw.updateWriteDeadline()
		_ = cw.connection.WriteMessage(websocket.CloseMessage, closeMsg)
		_ = cw.connection.Close()
	})
}

func (cw *clientWriter) configurePongHandler() {
	cw.updateReadDeadline()
	cw.connection.SetPongHandler(func(string) error {
		cw.updateReadDeadline()
		cw.recordActivity()
		return nil
	})
}

func (cw *clientWriter) updateWriteDeadline() {
	deadline := cw.clock.Now().Add(writeDeadline)
	_ = cw.connection.SetWriteDeadline(deadline)
}

func (cw *clientWriter) updateReadDeadline() {
	deadline := cw.clock.Now().Add(pongDeadline)
	_ = cw.connection.SetReadDeadline(deadline)
}

func (cw *clientWriter) recordActivity() {
	cw.activityMutex.Lock()
	defer cw.activityMutex.Unlock()
	cw.lastActivity = cw.clock.Now()
}

// isIdle reports whether the client has stopped answering pings entirely.
func (cw *clientWriter) isIdle() bool {
	cw.activityMutex.Lock()
	defer cw.activityMutex.Unlock()
	return cw.clock.Since(cw.lastActivity) >= idleTimeout
}

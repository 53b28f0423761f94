package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/fleetrelay/fleetrelay/internal/metrics"
	"github.com/fleetrelay/fleetrelay/internal/platform/retry"
	"github.com/fleetrelay/fleetrelay/internal/relay"
)

const (
	subscribeAttempts       = 5
	subscribeInitialBackoff = 500 * time.Millisecond
	subscribeMaxBackoff     = 5 * time.Second
	reconnectInitialBackoff = time.Second
	reconnectMaxBackoff     = 30 * time.Second
	eventBufferSize         = 64
)

// ErrSubscribeFailed marks a startup subscribe that could not be confirmed.
// The process must treat it as fatal; there is no relay without an upstream.
var ErrSubscribeFailed = errors.New("upstream subscribe failed")

// Subscriber maintains the subscription to the upstream pub/sub channels and
// exposes the resulting event stream. Messages published while the upstream
// connection is down are lost and never redelivered; the relay is
// at-most-once by design.
type Subscriber struct {
	rdb      *goredis.Client
	clock    clockwork.Clock
	channels []string
	events   chan relay.Event
}

// NewSubscriber creates a subscriber for the given channels. Call Start to
// establish the subscription.
func NewSubscriber(rdb *goredis.Client, clock clockwork.Clock, channels []string) *Subscriber {
	return &Subscriber{
		rdb:      rdb,
		clock:    clock,
		channels: channels,
		events:   make(chan relay.Event, eventBufferSize),
	}
}

// Events returns the stream of upstream events. The channel is closed only
// when the Start context is cancelled; upstream outages surface as gaps, not
// as channel closure.
func (s *Subscriber) Events() <-chan relay.Event {
	return s.events
}

// Start performs the initial SUBSCRIBE and confirms it before returning.
// The subscribe is retried a bounded number of times; if it still cannot be
// confirmed the returned error wraps ErrSubscribeFailed. On success the
// receive loop runs until ctx is cancelled.
func (s *Subscriber) Start(ctx context.Context) error {
	if len(s.channels) == 0 {
		return fmt.Errorf("%w: no channels configured", ErrSubscribeFailed)
	}

	policy := retry.Policy{
		MaxAttempts:    subscribeAttempts,
		InitialBackoff: subscribeInitialBackoff,
		MaxBackoff:     subscribeMaxBackoff,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			slog.Warn("Initial subscribe failed, retrying",
				"attempt", attempt,
				"error", err,
				"backoff", backoff,
			)
		},
	}
	classify := func(err error) retry.Action {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return retry.Stop
		}
		return retry.Retry
	}

	sub, err := retry.Do(ctx, policy, classify, func() (*goredis.PubSub, error) {
		sub := s.rdb.Subscribe(ctx, s.channels...)
		// Receive waits for the subscription confirmation from the server.
		if _, err := sub.Receive(ctx); err != nil {
			_ = sub.Close()
			return nil, err
		}
		return sub, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	slog.Info("Upstream subscription established", "channels", s.channels)
	go s.receiveLoop(ctx, sub)
	return nil
}

func (s *Subscriber) receiveLoop(ctx context.Context, sub *goredis.PubSub) {
	defer close(s.events)
	defer func() { _ = sub.Close() }()

	backoff := reconnectInitialBackoff
	for {
		msg, err := sub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}

			// Transient upstream failure: back off and let go-redis
			// re-establish the connection and subscription on the next
			// receive. The gap in delivery is accepted, not repaired.
			metrics.UpstreamReconnectsTotal.Inc()
			slog.Warn("Upstream receive failed, backing off",
				"error", err,
				"backoff", backoff,
			)

			timer := s.clock.NewTimer(backoff)
			select {
			case <-timer.Chan():
			case <-ctx.Done():
				timer.Stop()
				return
			}
			timer.Stop()

			backoff = min(backoff*2, reconnectMaxBackoff)
			continue
		}
		backoff = reconnectInitialBackoff

		metrics.UpstreamEventsTotal.WithLabelValues(msg.Channel).Inc()
		event := relay.Event{Channel: msg.Channel, Payload: []byte(msg.Payload)}

		select {
		case s.events <- event:
		default:
			// Dispatch pipeline full. Dropping here keeps the receive loop
			// from ever blocking on a stuck consumer.
			metrics.UpstreamEventsDroppedTotal.Inc()
			slog.Debug("Dropping upstream event, pipeline full", "channel", msg.Channel)
		}
	}
}

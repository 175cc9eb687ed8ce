package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Tyrowin/gonotify/internal/metrics"
)

// DefaultChannel is the Pub/Sub channel shared by all instances.
const DefaultChannel = "gonotify:notifications"

// envelope is the message published on the Pub/Sub channel.
type envelope struct {
	Origin  string `json:"origin"`
	Message string `json:"message"`
}

// NewClient creates a go-redis client from a URL such as
// "redis://localhost:6379/0" and verifies it with a ping.
func NewClient(ctx context.Context, redisURL string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	rdb := goredis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return rdb, nil
}

// Redis publishes notifications on a Pub/Sub channel and relays everything
// received on it to the local Broadcaster. Publishing is guarded by a
// circuit breaker; while Redis is failing, notifications are delivered to
// local connections only.
type Redis struct {
	rdb     *goredis.Client
	channel string
	origin  string
	local   Broadcaster
	cb      circuitbreaker.CircuitBreaker[any]
	metrics *metrics.RelayMetrics

	mu   sync.Mutex
	sub  *goredis.PubSub
	done chan struct{}
}

// RedisOption configures a Redis notifier.
type RedisOption func(*Redis)

// WithChannel overrides DefaultChannel.
func WithChannel(channel string) RedisOption {
	return func(r *Redis) {
		if channel != "" {
			r.channel = channel
		}
	}
}

// WithMetrics records relay metrics.
func WithMetrics(m *metrics.RelayMetrics) RedisOption {
	return func(r *Redis) {
		r.metrics = m
	}
}

// NewRedis creates a Redis notifier. Call Start before the first Notify so
// this instance receives its own publications.
//
// Circuit breaker settings:
//   - 60% failure rate over at least 5 publishes in a 10s window opens it
//   - 30s before an open breaker lets a trial publish through
//   - 1 successful trial closes it again
func NewRedis(rdb *goredis.Client, local Broadcaster, opts ...RedisOption) *Redis {
	r := &Redis{
		rdb:     rdb,
		channel: DefaultChannel,
		origin:  uuid.NewString(),
		local:   local,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.cb = circuitbreaker.NewBuilder[any]().
		WithFailureRateThreshold(0.6, 5, 10*time.Second).
		WithDelay(30 * time.Second).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			slog.Warn("Circuit breaker state changed",
				"component", "relay",
				"from", e.OldState.String(),
				"to", e.NewState.String(),
			)
			if r.metrics != nil {
				r.metrics.CircuitBreakerState.Set(stateToFloat(e.NewState))
			}
		}).
		Build()

	return r
}

func stateToFloat(state circuitbreaker.State) float64 {
	switch state {
	case circuitbreaker.ClosedState:
		return 0
	case circuitbreaker.HalfOpenState:
		return 1
	case circuitbreaker.OpenState:
		return 2
	default:
		return -1
	}
}

// Start subscribes to the channel and relays received notifications until
// ctx is cancelled or Close is called. It returns once the subscription is
// confirmed by the server.
func (r *Redis) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sub != nil {
		return errors.New("relay already started")
	}

	sub := r.rdb.Subscribe(ctx, r.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}

	r.sub = sub
	r.done = make(chan struct{})
	go r.consume(ctx, sub.Channel(), r.done)

	slog.Info("Notification relay subscribed", "channel", r.channel, "origin", r.origin)
	return nil
}

func (r *Redis) consume(ctx context.Context, msgs <-chan *goredis.Message, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			r.deliver(msg.Payload)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Redis) deliver(payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		slog.Warn("Dropping malformed relay message", "error", err)
		return
	}

	delivered := r.local.Broadcast([]byte(env.Message))
	if r.metrics != nil {
		r.metrics.Received.Inc()
	}
	slog.Debug("Relayed notification", "origin", env.Origin, "delivered", delivered)
}

// Notify publishes msg to every instance. When the breaker is open or the
// publish fails, msg is delivered to local connections and nil is returned.
func (r *Redis) Notify(ctx context.Context, msg string) error {
	data, err := json.Marshal(envelope{Origin: r.origin, Message: msg})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	if !r.cb.TryAcquirePermit() {
		r.fallback(ctx, msg, circuitbreaker.ErrOpen)
		return nil
	}

	if err := r.rdb.Publish(ctx, r.channel, data).Err(); err != nil {
		r.cb.RecordError(err)
		r.fallback(ctx, msg, err)
		return nil
	}
	r.cb.RecordSuccess()

	if r.metrics != nil {
		r.metrics.Published.Inc()
	}
	return nil
}

func (r *Redis) fallback(ctx context.Context, msg string, cause error) {
	slog.WarnContext(ctx, "Redis publish unavailable, delivering locally", "error", cause)
	r.local.Broadcast([]byte(msg))
	if r.metrics != nil {
		r.metrics.Fallbacks.Inc()
	}
}

// Close stops the subscription and waits for the consumer to exit.
func (r *Redis) Close() error {
	r.mu.Lock()
	sub, done := r.sub, r.done
	r.sub, r.done = nil, nil
	r.mu.Unlock()

	if sub == nil {
		return nil
	}
	err := sub.Close()
	<-done
	return err
}

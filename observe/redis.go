package observe

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mark3labs/apiguard/events"
)

// DefaultChannel is the pub/sub channel events are published on.
const DefaultChannel = "apiguard:events"

// Publisher is the subset of a Redis client the forwarder needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Message is the JSON document published for each event.
type Message struct {
	Kind      events.Kind `json:"kind"`
	Model     string      `json:"model"`
	Operation string      `json:"operation,omitempty"`
	Message   string      `json:"message,omitempty"`
	Error     string      `json:"error,omitempty"`
	Time      time.Time   `json:"time"`
}

// RedisForwarder publishes validation events to a Redis channel so other
// processes can watch them.
type RedisForwarder struct {
	client  Publisher
	channel string
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// ForwarderOption configures a RedisForwarder.
type ForwarderOption func(*RedisForwarder)

// WithChannel sets the channel. Defaults to DefaultChannel.
func WithChannel(name string) ForwarderOption {
	return func(f *RedisForwarder) {
		if name != "" {
			f.channel = name
		}
	}
}

// WithPublishTimeout bounds each publish. Defaults to one second.
func WithPublishTimeout(d time.Duration) ForwarderOption {
	return func(f *RedisForwarder) { f.timeout = d }
}

// WithForwarderLogger sets where publish failures are logged.
func WithForwarderLogger(l *slog.Logger) ForwarderOption {
	return func(f *RedisForwarder) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewRedisForwarder returns a forwarder publishing through client.
func NewRedisForwarder(client Publisher, opts ...ForwarderOption) *RedisForwarder {
	f := &RedisForwarder{
		client:  client,
		channel: DefaultChannel,
		timeout: time.Second,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// DialRedis connects to addr and verifies the connection.
func DialRedis(ctx context.Context, addr string) (*redis.Client, error) {
	cl := redis.NewClient(&redis.Options{Addr: addr})
	if err := cl.Ping(ctx).Err(); err != nil {
		_ = cl.Close()
		return nil, err
	}
	return cl, nil
}

// Channel returns the channel events are published on.
func (f *RedisForwarder) Channel() string { return f.channel }

// Forward publishes ev. Listeners run on the emitting goroutine, so the
// publish is bounded by the forwarder timeout.
func (f *RedisForwarder) Forward(ev events.Event) error {
	msg := Message{
		Kind:      ev.Kind,
		Model:     ev.Model,
		Operation: ev.Operation,
		Message:   ev.Message,
		Time:      f.now().UTC(),
	}
	if ev.Err != nil {
		msg.Error = ev.Err.Error()
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()
	return f.client.Publish(ctx, f.channel, payload).Err()
}

// Attach forwards every event published on em. Failures are logged, not
// returned to the emitter.
func (f *RedisForwarder) Attach(em *events.Emitter) events.Subscription {
	return em.OnAny(func(ev events.Event) {
		if err := f.Forward(ev); err != nil {
			f.logger.Warn("forward validation event", "channel", f.channel, "kind", string(ev.Kind), "error", err)
		}
	})
}

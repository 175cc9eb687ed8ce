// Package notify keeps the identity-to-channel registry and fans broadcast
// notifications out to every registered channel.
//
// The Registry holds at most one channel per identity. Registering a second
// channel for the same identity replaces the first and closes it. Broadcast
// delivers to a point-in-time snapshot of the registry and evicts every
// channel whose Send fails, so callers never see per-recipient errors.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrChannelWrite reports that a channel could not accept a message.
var ErrChannelWrite = errors.New("channel write failed")

// Channel is the push side of a long-lived connection. Implementations must
// be comparable (pointer types in practice) and Close must be idempotent.
type Channel interface {
	Send(msg []byte) error
	Close() error
}

// Observer receives registry lifecycle events, typically for metrics.
type Observer interface {
	ChannelRegistered()
	ChannelRemoved()
	BroadcastDelivered(delivered, failed int)
}

type nopObserver struct{}

func (nopObserver) ChannelRegistered()          {}
func (nopObserver) ChannelRemoved()             {}
func (nopObserver) BroadcastDelivered(_, _ int) {}

// Registry manages the identity-to-channel mapping. The zero value is not
// usable; construct one with NewRegistry.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]Channel
	observer Observer
	logger   *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithObserver attaches an Observer for lifecycle events.
func WithObserver(o Observer) Option {
	return func(r *Registry) {
		if o != nil {
			r.observer = o
		}
	}
}

// WithLogger sets the logger used for lifecycle and eviction messages.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		channels: make(map[string]Channel),
		observer: nopObserver{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register binds ch to identity, replacing any existing channel. A replaced
// channel is closed after the lock is released.
func (r *Registry) Register(identity string, ch Channel) {
	if ch == nil {
		r.logger.Warn("Received nil channel registration; skipping", "identity", identity)
		return
	}

	r.mu.Lock()
	previous, replaced := r.channels[identity]
	r.channels[identity] = ch
	count := len(r.channels)
	r.mu.Unlock()

	if replaced && previous != ch {
		r.closeChannel(identity, previous)
		r.logger.Info("Channel replaced", "identity", identity, "total", count)
		return
	}
	if !replaced {
		r.observer.ChannelRegistered()
	}
	r.logger.Info("Channel registered", "identity", identity, "total", count)
}

// Unregister removes the channel for identity if present. It does not close
// the channel; the connection owning it does that on its way out.
func (r *Registry) Unregister(identity string) {
	r.mu.Lock()
	_, ok := r.channels[identity]
	delete(r.channels, identity)
	count := len(r.channels)
	r.mu.Unlock()

	if ok {
		r.observer.ChannelRemoved()
		r.logger.Info("Channel unregistered", "identity", identity, "total", count)
	}
}

// Release removes identity only while it still maps to ch and reports
// whether it did. A connection that has already been replaced therefore
// never removes its successor.
func (r *Registry) Release(identity string, ch Channel) bool {
	r.mu.Lock()
	removed := r.releaseLocked(identity, ch)
	count := len(r.channels)
	r.mu.Unlock()

	if removed {
		r.observer.ChannelRemoved()
		r.logger.Info("Channel released", "identity", identity, "total", count)
	}
	return removed
}

func (r *Registry) releaseLocked(identity string, ch Channel) bool {
	current, ok := r.channels[identity]
	if !ok || current != ch {
		return false
	}
	delete(r.channels, identity)
	return true
}

// entry is one registry binding captured in a broadcast snapshot.
type entry struct {
	identity string
	channel  Channel
}

// delivery is the outcome of sending one broadcast message to one entry.
type delivery struct {
	entry
	err error
}

// Broadcast sends msg to every channel registered when the call starts and
// returns the number of successful deliveries. Channels whose Send fails are
// removed and closed before Broadcast returns.
func (r *Registry) Broadcast(msg []byte) int {
	snapshot := r.getSnapshot()
	results := r.broadcastToChannels(snapshot, msg)

	delivered := 0
	var failed []delivery
	for _, res := range results {
		if res.err != nil {
			failed = append(failed, res)
			continue
		}
		delivered++
	}

	r.removeFailedChannels(failed)
	r.observer.BroadcastDelivered(delivered, len(failed))
	r.logger.Debug("Broadcast finished", "recipients", len(snapshot), "delivered", delivered, "evicted", len(failed))
	return delivered
}

// getSnapshot returns a consistent copy of all current bindings.
func (r *Registry) getSnapshot() []entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make([]entry, 0, len(r.channels))
	for identity, ch := range r.channels {
		snapshot = append(snapshot, entry{identity: identity, channel: ch})
	}
	return snapshot
}

func (r *Registry) broadcastToChannels(snapshot []entry, msg []byte) []delivery {
	results := make([]delivery, 0, len(snapshot))
	for _, e := range snapshot {
		results = append(results, delivery{entry: e, err: safeSend(e.channel, msg)})
	}
	return results
}

// safeSend turns a panicking Send into a write failure.
func safeSend(ch Channel, msg []byte) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: panic during send: %v", ErrChannelWrite, rec)
		}
	}()
	return ch.Send(msg)
}

// removeFailedChannels evicts the failed bindings that are still current and
// closes their channels outside the lock.
func (r *Registry) removeFailedChannels(failed []delivery) {
	if len(failed) == 0 {
		return
	}

	r.mu.Lock()
	evicted := make([]delivery, 0, len(failed))
	for _, f := range failed {
		if r.releaseLocked(f.identity, f.channel) {
			evicted = append(evicted, f)
		}
	}
	r.mu.Unlock()

	for _, f := range evicted {
		r.observer.ChannelRemoved()
		r.logger.Warn("Channel evicted after failed send", "identity", f.identity, "error", f.err)
	}
	// A failed channel that was already replaced is closed too; it is no
	// longer reachable through the registry.
	for _, f := range failed {
		r.closeChannel(f.identity, f.channel)
	}
}

// Serve binds ch to identity for the lifetime of loop. Whatever way loop
// ends, including a panic, the binding is released and ch is closed.
func (r *Registry) Serve(ctx context.Context, identity string, ch Channel, loop func(context.Context) error) (err error) {
	r.Register(identity, ch)

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Recovered from panic in channel loop", "identity", identity, "panic", rec)
			err = fmt.Errorf("channel loop for %s panicked: %v", identity, rec)
		}
		r.Release(identity, ch)
		r.closeChannel(identity, ch)
	}()

	return loop(ctx)
}

// Len returns the number of registered channels.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}

// Identities returns the currently registered identities in no particular order.
func (r *Registry) Identities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.channels))
	for identity := range r.channels {
		ids = append(ids, identity)
	}
	return ids
}

// Shutdown removes and closes every registered channel.
func (r *Registry) Shutdown() {
	r.logger.Info("Shutting down all notification channels...")

	r.mu.Lock()
	snapshot := make([]entry, 0, len(r.channels))
	for identity, ch := range r.channels {
		snapshot = append(snapshot, entry{identity: identity, channel: ch})
	}
	r.channels = make(map[string]Channel)
	r.mu.Unlock()

	for _, e := range snapshot {
		r.observer.ChannelRemoved()
		r.closeChannel(e.identity, e.channel)
	}
	r.logger.Info("Closed notification channels", "count", len(snapshot))
}

func (r *Registry) closeChannel(identity string, ch Channel) {
	if err := ch.Close(); err != nil {
		r.logger.Debug("Error closing channel", "identity", identity, "error", err)
	}
}

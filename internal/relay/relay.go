// Package relay delivers broadcast notifications either straight to the local
// registry or through Redis Pub/Sub so that every instance behind a load
// balancer fans the message out to its own connections.
package relay

import "context"

// Notifier publishes a notification to every connected identity.
type Notifier interface {
	Notify(ctx context.Context, msg string) error
}

// Broadcaster is the local fan-out target, normally *notify.Registry.
type Broadcaster interface {
	Broadcast(msg []byte) int
}

// Local delivers notifications to the in-process registry only.
type Local struct {
	target Broadcaster
}

func NewLocal(target Broadcaster) *Local {
	return &Local{target: target}
}

func (l *Local) Notify(_ context.Context, msg string) error {
	l.target.Broadcast([]byte(msg))
	return nil
}

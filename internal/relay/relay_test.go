package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/gonotify/internal/metrics"
)

// recordingBroadcaster stands in for the registry.
type recordingBroadcaster struct {
	mu   sync.Mutex
	msgs []string
}

func (b *recordingBroadcaster) Broadcast(msg []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, string(msg))
	return 1
}

func (b *recordingBroadcaster) messages() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.msgs...)
}

func TestLocalNotifier(t *testing.T) {
	target := &recordingBroadcaster{}

	require.NoError(t, NewLocal(target).Notify(context.Background(), "New user registered: alice@example.com"))

	assert.Equal(t, []string{"New user registered: alice@example.com"}, target.messages())
}

func unreachableClient(t *testing.T) *goredis.Client {
	t.Helper()
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRedisNotifierFallsBackToLocal(t *testing.T) {
	target := &recordingBroadcaster{}
	m := metrics.NewRelayMetrics(prometheus.NewRegistry())
	r := NewRedis(unreachableClient(t), target, WithMetrics(m))

	err := r.Notify(context.Background(), "hello")

	require.NoError(t, err)
	assert.Equal(t, []string{"hello"}, target.messages())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Fallbacks))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Published))
}

func TestRedisNotifierOpensCircuit(t *testing.T) {
	target := &recordingBroadcaster{}
	m := metrics.NewRelayMetrics(prometheus.NewRegistry())
	r := NewRedis(unreachableClient(t), target, WithMetrics(m))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, r.Notify(ctx, "msg"))
	}
	require.True(t, r.cb.IsOpen())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CircuitBreakerState))

	start := time.Now()
	require.NoError(t, r.Notify(ctx, "while open"))
	assert.Less(t, time.Since(start), 100*time.Millisecond, "open breaker skips the dial")

	assert.Len(t, target.messages(), 6)
	assert.Equal(t, 6.0, testutil.ToFloat64(m.Fallbacks))
}

func TestRedisDeliverDropsMalformedPayload(t *testing.T) {
	target := &recordingBroadcaster{}
	r := NewRedis(unreachableClient(t), target)

	r.deliver("{not json")
	r.deliver(`{"origin":"other","message":"relayed"}`)

	assert.Equal(t, []string{"relayed"}, target.messages())
}

func TestRedisCloseWithoutStart(t *testing.T) {
	r := NewRedis(unreachableClient(t), &recordingBroadcaster{})
	assert.NoError(t, r.Close())
}

func TestNewClientRejectsBadURL(t *testing.T) {
	_, err := NewClient(context.Background(), "not-a-redis-url")
	assert.ErrorContains(t, err, "failed to parse redis URL")
}

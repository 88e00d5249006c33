package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/deliverycore/pkg/breaker"
	"github.com/kart-io/deliverycore/pkg/provider"
	"github.com/kart-io/deliverycore/pkg/queue"
	"github.com/kart-io/deliverycore/pkg/tracker"
)

func newTestHub(t *testing.T, providers ...provider.Provider) (*Hub, *tracker.Tracker) {
	t.Helper()
	reg := provider.NewRegistry(nil)
	for _, p := range providers {
		require.NoError(t, reg.Register(p))
	}
	tr := tracker.New()
	t.Cleanup(func() { _ = tr.Close() })
	hub := NewHub(reg, breaker.NewRegistry(nil), WithHubTracker(tr))
	return hub, tr
}

func TestHub_GatewayReuse(t *testing.T) {
	hub, _ := newTestHub(t, newFakeProvider("feishu"))

	gw1, err := hub.Gateway("feishu")
	require.NoError(t, err)
	gw2, err := hub.Gateway("feishu")
	require.NoError(t, err)

	assert.Same(t, gw1, gw2)
	assert.Same(t, gw1.Breaker(), gw2.Breaker())
}

func TestHub_UnknownProvider(t *testing.T) {
	hub, _ := newTestHub(t)

	_, err := hub.Gateway("missing")
	assert.Error(t, err)
	assert.False(t, hub.Has("missing"))
}

func TestHub_Has(t *testing.T) {
	hub, _ := newTestHub(t, newFakeProvider("feishu"))
	assert.True(t, hub.Has("feishu"))
	assert.False(t, hub.Has("webhook"))
}

func TestHub_SeparateBreakersPerProvider(t *testing.T) {
	failing := newFakeProvider("failing")
	failing.failuresLeft = 100
	healthy := newFakeProvider("healthy")

	reg := provider.NewRegistry(nil)
	require.NoError(t, reg.Register(failing))
	require.NoError(t, reg.Register(healthy))
	hub := NewHub(reg, breaker.NewRegistry(nil), WithBreakerConfig(breaker.Config{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		Timeout:          time.Minute,
	}))

	fgw, err := hub.Gateway("failing")
	require.NoError(t, err)
	fgw.SendText(context.Background(), "endpoint-a", "hello")
	require.Equal(t, breaker.StateOpen, fgw.Breaker().State())

	hgw, err := hub.Gateway("healthy")
	require.NoError(t, err)
	result := hgw.SendText(context.Background(), "endpoint-a", "hello")
	assert.True(t, result.Success, "one provider's open breaker must not affect another")
}

func TestHub_DispatchQueuedMessage(t *testing.T) {
	p := newFakeProvider("feishu", provider.KindText)
	hub, tr := newTestHub(t, p)

	msg, err := queue.NewQueuedMessage("feishu", "endpoint-a", provider.KindText, "hello", 3)
	require.NoError(t, err)

	result := hub.Dispatch(context.Background(), msg)
	require.True(t, result.Success)
	assert.Equal(t, 1, p.sends())
	assert.Equal(t, 1, tr.GetStatistics().ByStatus[tracker.StatusSent])
}

func TestHub_QueueProcessingEndToEnd(t *testing.T) {
	p := newFakeProvider("feishu", provider.KindText)
	p.failuresLeft = 2
	hub, _ := newTestHub(t, p)

	q := queue.NewMessageQueue(hub, queue.DefaultConfig())
	defer func() { _ = q.Close() }()

	msg, err := queue.NewQueuedMessage("feishu", "endpoint-a", provider.KindText, "hello", 3)
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(context.Background(), msg))

	result, err := q.ProcessQueue(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Sent)
	assert.Equal(t, 2, result.Retried)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 3, p.sends())
}

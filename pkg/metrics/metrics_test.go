package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveSend("feishu", "sent")
	m.ObserveSend("feishu", "failed")
	m.IncRetry("feishu")
	m.IncDuplicate("feishu")
	m.SetQueueDepth(7)
	m.SetBreakerState("feishu", 1)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"deliverycore_sends_total",
		"deliverycore_retries_total",
		"deliverycore_duplicates_suppressed_total",
		"deliverycore_queue_depth",
		"deliverycore_breaker_state",
	} {
		assert.True(t, names[want], "expected metric family %s", want)
	}
}

func TestDeliveryMetrics_Values(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveSend("feishu", "sent")
	m.ObserveSend("feishu", "sent")
	m.ObserveSend("feishu", "failed")
	m.SetQueueDepth(3)
	m.SetBreakerState("feishu", 2)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.sendsTotal.WithLabelValues("feishu", "sent")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.sendsTotal.WithLabelValues("feishu", "failed")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.queueDepth))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.breakerState.WithLabelValues("feishu")))
}

func TestNew_NilRegistererSkipsRegistration(t *testing.T) {
	m := New(nil)
	m.ObserveSend("feishu", "sent")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.sendsTotal.WithLabelValues("feishu", "sent")))
}

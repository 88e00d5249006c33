package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kart-io/deliverycore/pkg/breaker"
	"github.com/kart-io/deliverycore/pkg/logger"
	"github.com/kart-io/deliverycore/pkg/metrics"
	"github.com/kart-io/deliverycore/pkg/provider"
	"github.com/kart-io/deliverycore/pkg/queue"
	"github.com/kart-io/deliverycore/pkg/tracker"
)

// Hub manages one gateway per registered provider, sharing a breaker
// registry and tracker across them. It satisfies the queue Dispatcher
// contract so queued and direct sends converge on the same composition.
type Hub struct {
	providers     *provider.Registry
	breakers      *breaker.Registry
	breakerConfig breaker.Config
	tracker       *tracker.Tracker
	metrics       *metrics.DeliveryMetrics
	logger        logger.Logger
	dedupWindow   time.Duration

	mu       sync.Mutex
	gateways map[string]*Gateway
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithHubTracker attaches a shared tracker to every gateway.
func WithHubTracker(t *tracker.Tracker) HubOption {
	return func(h *Hub) { h.tracker = t }
}

// WithHubMetrics attaches shared delivery metrics to every gateway.
func WithHubMetrics(m *metrics.DeliveryMetrics) HubOption {
	return func(h *Hub) { h.metrics = m }
}

// WithHubLogger sets the hub logger.
func WithHubLogger(log logger.Logger) HubOption {
	return func(h *Hub) { h.logger = log }
}

// WithBreakerConfig sets the config applied when a gateway's breaker is
// first created.
func WithBreakerConfig(cfg breaker.Config) HubOption {
	return func(h *Hub) { h.breakerConfig = cfg }
}

// SuppressDuplicates enables duplicate suppression on every gateway.
func SuppressDuplicates(window time.Duration) HubOption {
	return func(h *Hub) { h.dedupWindow = window }
}

// NewHub creates a hub over the given provider and breaker registries.
func NewHub(providers *provider.Registry, breakers *breaker.Registry, opts ...HubOption) *Hub {
	h := &Hub{
		providers:     providers,
		breakers:      breakers,
		breakerConfig: breaker.DefaultConfig(),
		logger:        logger.Discard,
		gateways:      make(map[string]*Gateway),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Gateway returns the gateway for the named provider, constructing it on
// first use. The breaker is looked up in the shared registry under the
// provider name, so repeated calls share fault-isolation state.
func (h *Hub) Gateway(providerName string) (*Gateway, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if gw, ok := h.gateways[providerName]; ok {
		return gw, nil
	}

	p, err := h.providers.Resolve(providerName)
	if err != nil {
		return nil, err
	}

	cb := h.breakers.GetOrCreate(providerName, h.breakerConfig)
	gwOpts := []Option{WithLogger(h.logger)}
	if h.tracker != nil {
		gwOpts = append(gwOpts, WithTracker(h.tracker))
	}
	if h.metrics != nil {
		gwOpts = append(gwOpts, WithMetrics(h.metrics))
	}
	if h.dedupWindow > 0 {
		gwOpts = append(gwOpts, WithDedupWindow(h.dedupWindow))
	}
	gw := New(p, cb, gwOpts...)
	h.gateways[providerName] = gw
	return gw, nil
}

// Has reports whether the named provider can be resolved.
func (h *Hub) Has(providerName string) bool {
	return h.providers.Has(providerName)
}

// Dispatch delivers a queued message through its provider's gateway.
func (h *Hub) Dispatch(ctx context.Context, msg *queue.QueuedMessage) *provider.SendResult {
	gw, err := h.Gateway(msg.ProviderName)
	if err != nil {
		return provider.NewSendError(fmt.Errorf("failed to resolve provider: %w", err), nil)
	}
	return gw.SendMessage(ctx, msg.Target, &provider.Message{
		Kind:    msg.MessageType,
		Content: msg.Content,
	})
}

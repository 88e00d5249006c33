// Package gateway implements the public send surface of the delivery core.
// Every send follows the same template regardless of target platform:
// generate an id, track the message, execute the platform call through the
// circuit breaker, and record the outcome.
package gateway

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kart-io/deliverycore/pkg/breaker"
	"github.com/kart-io/deliverycore/pkg/logger"
	"github.com/kart-io/deliverycore/pkg/metrics"
	"github.com/kart-io/deliverycore/pkg/provider"
	"github.com/kart-io/deliverycore/pkg/tracker"
	"github.com/kart-io/deliverycore/pkg/utils/crypto"
	"github.com/kart-io/deliverycore/pkg/utils/idgen"
)

const tracerName = "github.com/kart-io/deliverycore/pkg/gateway"

// Gateway composes one provider with its circuit breaker and the shared
// message tracker. One breaker per provider identity: sends through
// different gateways never share fault-isolation state unless they were
// constructed with the same breaker.
type Gateway struct {
	provider    provider.Provider
	breaker     *breaker.CircuitBreaker
	tracker     *tracker.Tracker
	ids         *idgen.MessageIDGenerator
	logger      logger.Logger
	metrics     *metrics.DeliveryMetrics
	tracer      trace.Tracer
	dedupWindow time.Duration
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithTracker attaches a message tracker recording every send outcome.
func WithTracker(t *tracker.Tracker) Option {
	return func(g *Gateway) { g.tracker = t }
}

// WithMetrics attaches Prometheus delivery metrics.
func WithMetrics(m *metrics.DeliveryMetrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// WithLogger sets the gateway logger.
func WithLogger(log logger.Logger) Option {
	return func(g *Gateway) { g.logger = log }
}

// WithIDGenerator replaces the default message id generator.
func WithIDGenerator(ids *idgen.MessageIDGenerator) Option {
	return func(g *Gateway) { g.ids = ids }
}

// WithDedupWindow enables duplicate suppression: a send whose content hash
// and target match a non-failed tracked message created within the window is
// rejected without a network attempt. Requires an attached tracker.
func WithDedupWindow(window time.Duration) Option {
	return func(g *Gateway) { g.dedupWindow = window }
}

// New creates a gateway for the given provider and breaker.
func New(p provider.Provider, cb *breaker.CircuitBreaker, opts ...Option) *Gateway {
	g := &Gateway{
		provider: p,
		breaker:  cb,
		ids:      idgen.NewMessageIDGenerator(),
		logger:   logger.Discard,
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Provider returns the wrapped provider.
func (g *Gateway) Provider() provider.Provider { return g.provider }

// Breaker returns the circuit breaker guarding this gateway.
func (g *Gateway) Breaker() *breaker.CircuitBreaker { return g.breaker }

// SendText sends a plain text message.
func (g *Gateway) SendText(ctx context.Context, target, text string) *provider.SendResult {
	return g.send(ctx, target, provider.KindText, text, func(ctx context.Context) ([]byte, error) {
		return g.provider.SendText(ctx, target, text)
	})
}

// SendRichText sends a rich text message.
func (g *Gateway) SendRichText(ctx context.Context, target string, content any) *provider.SendResult {
	return g.send(ctx, target, provider.KindRichText, content, func(ctx context.Context) ([]byte, error) {
		return g.provider.SendRichText(ctx, target, content)
	})
}

// SendCard sends an interactive card message.
func (g *Gateway) SendCard(ctx context.Context, target string, card any) *provider.SendResult {
	return g.send(ctx, target, provider.KindCard, card, func(ctx context.Context) ([]byte, error) {
		return g.provider.SendCard(ctx, target, card)
	})
}

// SendImage sends an image message.
func (g *Gateway) SendImage(ctx context.Context, target string, image any) *provider.SendResult {
	return g.send(ctx, target, provider.KindImage, image, func(ctx context.Context) ([]byte, error) {
		return g.provider.SendImage(ctx, target, image)
	})
}

// SendMessage sends a generic message envelope.
func (g *Gateway) SendMessage(ctx context.Context, target string, msg *provider.Message) *provider.SendResult {
	return g.send(ctx, target, msg.Kind, msg.Content, func(ctx context.Context) ([]byte, error) {
		return g.provider.SendMessage(ctx, target, msg)
	})
}

// send is the delivery template shared by every send operation.
func (g *Gateway) send(ctx context.Context, target string, kind provider.MessageKind, content any, op func(context.Context) ([]byte, error)) *provider.SendResult {
	name := g.provider.Name()

	ctx, span := g.tracer.Start(ctx, "deliverycore.send",
		trace.WithAttributes(
			attribute.String("delivery.provider", name),
			attribute.String("delivery.target", target),
			attribute.String("delivery.kind", string(kind)),
		))
	defer span.End()

	// Capability negotiation: unsupported kinds fail before any attempt.
	if !g.provider.Capabilities().Supports(kind) {
		err := &provider.ErrUnsupportedKind{Provider: name, Kind: kind}
		g.observe(name, "unsupported")
		span.SetStatus(codes.Error, err.Error())
		return provider.NewSendError(err, nil)
	}

	if g.dedupWindow > 0 && g.tracker != nil {
		hash := crypto.ContentHash(content)
		if g.tracker.IsDuplicate(hash, target, g.dedupWindow) {
			g.logger.Info("Duplicate send suppressed",
				"provider", name, "target", target, "window", g.dedupWindow)
			if g.metrics != nil {
				g.metrics.IncDuplicate(name)
			}
			err := &DuplicateError{Provider: name, Target: target, Window: g.dedupWindow}
			span.SetStatus(codes.Error, err.Error())
			return provider.NewSendError(err, nil)
		}
	}

	messageID := g.ids.GenerateMessageID()
	span.SetAttributes(attribute.String("delivery.message_id", messageID))

	if g.tracker != nil {
		if err := g.tracker.Track(messageID, name, target, content); err != nil {
			g.logger.Warn("Failed to track message", "messageID", messageID, "error", err)
		}
	}

	var raw []byte
	err := g.breaker.Call(ctx, func(ctx context.Context) error {
		resp, opErr := op(ctx)
		raw = resp
		return opErr
	})
	if g.metrics != nil {
		g.metrics.SetBreakerState(name, int(g.breaker.State()))
	}

	if err != nil {
		if g.tracker != nil {
			if uerr := g.tracker.UpdateStatus(messageID, tracker.StatusFailed, tracker.WithError(err.Error())); uerr != nil {
				g.logger.Warn("Failed to update message status", "messageID", messageID, "error", uerr)
			}
		}
		g.observe(name, "failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.logger.Error("Send failed",
			"provider", name, "target", target, "messageID", messageID, "error", err)
		return provider.NewSendError(err, raw)
	}

	if g.tracker != nil {
		if uerr := g.tracker.UpdateStatus(messageID, tracker.StatusSent); uerr != nil {
			g.logger.Warn("Failed to update message status", "messageID", messageID, "error", uerr)
		}
	}
	g.observe(name, "sent")
	g.logger.Debug("Send succeeded",
		"provider", name, "target", target, "messageID", messageID)
	return provider.NewSendResult(messageID, raw)
}

func (g *Gateway) observe(name, status string) {
	if g.metrics != nil {
		g.metrics.ObserveSend(name, status)
	}
}

// DuplicateError signals a send suppressed by duplicate detection.
type DuplicateError struct {
	Provider string
	Target   string
	Window   time.Duration
}

// Error implements the error interface.
func (e *DuplicateError) Error() string {
	return "duplicate message to " + e.Target + " suppressed within " + e.Window.String()
}

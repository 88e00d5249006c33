// Package webhook provides a generic JSON webhook provider. It posts a
// provider-agnostic envelope to any HTTP endpoint and optionally checks an
// embedded status code in the response, making it the simplest way to wire
// the delivery core to custom receivers.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/kart-io/deliverycore/pkg/logger"
	"github.com/kart-io/deliverycore/pkg/provider"
	"github.com/kart-io/deliverycore/pkg/retryhttp"
)

// Config holds webhook provider settings.
type Config struct {
	// URL is the default endpoint. A target that is itself an absolute URL
	// overrides it per send.
	URL string `json:"url" yaml:"url"`
	// BearerToken, when set, is sent as an Authorization header.
	BearerToken string `json:"bearer_token,omitempty" yaml:"bearer_token"`
	// CodeField, when set, names a numeric JSON field in the response that
	// must be zero for the send to count as successful.
	CodeField string           `json:"code_field,omitempty" yaml:"code_field"`
	Retry     retryhttp.Policy `json:"retry" yaml:"retry"`
}

// envelope is the JSON body posted to the endpoint.
type envelope struct {
	Target  string               `json:"target"`
	Kind    provider.MessageKind `json:"kind"`
	Content any                  `json:"content"`
}

// Provider implements provider.Provider for generic JSON webhooks.
type Provider struct {
	config    Config
	executor  *retryhttp.Executor
	logger    logger.Logger
	connected int32
}

// New creates a webhook provider.
func New(config Config, log logger.Logger) (*Provider, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("url is required for webhook provider")
	}
	if log == nil {
		log = logger.Discard
	}

	p := &Provider{
		config: config,
		logger: log,
	}

	var validator retryhttp.ResponseValidator
	if config.CodeField != "" {
		field := config.CodeField
		validator = func(_ int, body []byte) error {
			var parsed map[string]json.RawMessage
			if err := json.Unmarshal(body, &parsed); err != nil {
				return nil
			}
			raw, ok := parsed[field]
			if !ok {
				return nil
			}
			var code int
			if err := json.Unmarshal(raw, &code); err != nil {
				return fmt.Errorf("response field %q is not numeric: %s", field, raw)
			}
			if code != 0 {
				return fmt.Errorf("webhook reported error code %d", code)
			}
			return nil
		}
	}
	p.executor = retryhttp.NewExecutor(config.Retry, validator, log)

	if config.BearerToken != "" {
		p.executor.SetDefaultHeaders(map[string]string{
			"Authorization": "Bearer " + config.BearerToken,
		})
	}
	return p, nil
}

// Name returns the provider identity.
func (p *Provider) Name() string { return "webhook" }

// Capabilities returns the supported message kinds. The envelope is
// schema-free, so every kind is forwarded as-is.
func (p *Provider) Capabilities() provider.Capabilities {
	return provider.NewCapabilities(
		provider.KindText,
		provider.KindRichText,
		provider.KindCard,
		provider.KindImage,
		provider.KindFile,
	)
}

// Connect marks the provider ready.
func (p *Provider) Connect(_ context.Context) error {
	atomic.StoreInt32(&p.connected, 1)
	return nil
}

// Disconnect marks the provider unavailable.
func (p *Provider) Disconnect() error {
	atomic.StoreInt32(&p.connected, 0)
	return nil
}

// IsConnected reports whether the provider is ready to send.
func (p *Provider) IsConnected() bool {
	return atomic.LoadInt32(&p.connected) == 1
}

// SendText sends a plain text message.
func (p *Provider) SendText(ctx context.Context, target, text string) ([]byte, error) {
	return p.post(ctx, target, provider.KindText, text)
}

// SendRichText sends a rich text message.
func (p *Provider) SendRichText(ctx context.Context, target string, content any) ([]byte, error) {
	return p.post(ctx, target, provider.KindRichText, content)
}

// SendCard sends a card message.
func (p *Provider) SendCard(ctx context.Context, target string, card any) ([]byte, error) {
	return p.post(ctx, target, provider.KindCard, card)
}

// SendImage sends an image message.
func (p *Provider) SendImage(ctx context.Context, target string, image any) ([]byte, error) {
	return p.post(ctx, target, provider.KindImage, image)
}

// SendMessage sends a generic message envelope.
func (p *Provider) SendMessage(ctx context.Context, target string, msg *provider.Message) ([]byte, error) {
	if !p.Capabilities().Supports(msg.Kind) {
		return nil, &provider.ErrUnsupportedKind{Provider: p.Name(), Kind: msg.Kind}
	}
	return p.post(ctx, target, msg.Kind, msg.Content)
}

func (p *Provider) post(ctx context.Context, target string, kind provider.MessageKind, content any) ([]byte, error) {
	payload, err := json.Marshal(&envelope{
		Target:  target,
		Kind:    kind,
		Content: content,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	url := p.config.URL
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		url = target
	}

	resp, err := p.executor.Post(ctx, url, payload, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

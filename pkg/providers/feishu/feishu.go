// Package feishu provides the Feishu/Lark webhook provider for the delivery
// core. It translates message content into Feishu msg_type payloads and
// validates the {code, msg} response envelope the Feishu API returns.
package feishu

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kart-io/deliverycore/pkg/logger"
	"github.com/kart-io/deliverycore/pkg/provider"
	"github.com/kart-io/deliverycore/pkg/retryhttp"
)

// AuthMode defines the authentication mode for the Feishu webhook.
type AuthMode string

const (
	// AuthModeNone requires no authentication.
	AuthModeNone AuthMode = "none"
	// AuthModeSignature uses HMAC-SHA256 signature verification.
	AuthModeSignature AuthMode = "signature"
	// AuthModeKeywords relies on custom keyword verification configured on
	// the Feishu side; the first keyword is prepended to text messages.
	AuthModeKeywords AuthMode = "keywords"
)

// Config holds Feishu provider settings.
type Config struct {
	WebhookURL string           `json:"webhook_url" yaml:"webhook_url"`
	AuthMode   AuthMode         `json:"auth_mode" yaml:"auth_mode"`
	Secret     string           `json:"secret,omitempty" yaml:"secret"`
	Keywords   []string         `json:"keywords,omitempty" yaml:"keywords"`
	Retry      retryhttp.Policy `json:"retry" yaml:"retry"`
}

// message is the Feishu webhook payload.
type message struct {
	MsgType   string `json:"msg_type"`
	Content   any    `json:"content"`
	Sign      string `json:"sign,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// apiResponse is the response envelope from the Feishu API.
type apiResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// Provider implements provider.Provider for Feishu webhooks.
type Provider struct {
	config    Config
	executor  *retryhttp.Executor
	logger    logger.Logger
	connected int32
}

// New creates a Feishu provider.
func New(config Config, log logger.Logger) (*Provider, error) {
	if config.WebhookURL == "" {
		return nil, fmt.Errorf("webhook_url is required for Feishu provider")
	}
	if log == nil {
		log = logger.Discard
	}
	if config.AuthMode == "" {
		config.AuthMode = AuthModeNone
		if config.Secret != "" {
			config.AuthMode = AuthModeSignature
		} else if len(config.Keywords) > 0 {
			config.AuthMode = AuthModeKeywords
		}
	}

	p := &Provider{
		config: config,
		logger: log,
	}
	p.executor = retryhttp.NewExecutor(config.Retry, validateResponse, log)
	return p, nil
}

// validateResponse checks the Feishu response envelope for an embedded
// application-level error code.
func validateResponse(_ int, body []byte) error {
	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		// Not a Feishu-format response (e.g. a test endpoint); the HTTP
		// status already passed, so accept it.
		return nil
	}
	if resp.Code != 0 {
		return fmt.Errorf("feishu API error (code %d): %s", resp.Code, resp.Msg)
	}
	return nil
}

// Name returns the provider identity.
func (p *Provider) Name() string { return "feishu" }

// Capabilities returns the supported message kinds.
func (p *Provider) Capabilities() provider.Capabilities {
	return provider.NewCapabilities(
		provider.KindText,
		provider.KindRichText,
		provider.KindCard,
		provider.KindImage,
	)
}

// Connect marks the provider ready. Webhooks carry no session state.
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
	if p.config.AuthMode == AuthModeKeywords && len(p.config.Keywords) > 0 {
		if !containsKeyword(text, p.config.Keywords) {
			text = p.config.Keywords[0] + " " + text
		}
	}
	return p.post(ctx, target, &message{
		MsgType: "text",
		Content: map[string]string{"text": text},
	})
}

// SendRichText sends a post-style rich text message.
func (p *Provider) SendRichText(ctx context.Context, target string, content any) ([]byte, error) {
	return p.post(ctx, target, &message{
		MsgType: "post",
		Content: map[string]any{"post": content},
	})
}

// SendCard sends an interactive card message.
func (p *Provider) SendCard(ctx context.Context, target string, card any) ([]byte, error) {
	return p.post(ctx, target, &message{
		MsgType: "interactive",
		Content: card,
	})
}

// SendImage sends an image by its Feishu image key.
func (p *Provider) SendImage(ctx context.Context, target string, image any) ([]byte, error) {
	imageKey, ok := image.(string)
	if !ok {
		return nil, fmt.Errorf("feishu image content must be an image key string, got %T", image)
	}
	return p.post(ctx, target, &message{
		MsgType: "image",
		Content: map[string]string{"image_key": imageKey},
	})
}

// SendMessage sends a generic message envelope.
func (p *Provider) SendMessage(ctx context.Context, target string, msg *provider.Message) ([]byte, error) {
	switch msg.Kind {
	case provider.KindText:
		text, ok := msg.Content.(string)
		if !ok {
			return nil, fmt.Errorf("text content must be a string, got %T", msg.Content)
		}
		return p.SendText(ctx, target, text)
	case provider.KindRichText:
		return p.SendRichText(ctx, target, msg.Content)
	case provider.KindCard:
		return p.SendCard(ctx, target, msg.Content)
	case provider.KindImage:
		return p.SendImage(ctx, target, msg.Content)
	default:
		return nil, &provider.ErrUnsupportedKind{Provider: p.Name(), Kind: msg.Kind}
	}
}

// post signs the message when configured and delivers it through the
// retrying executor. A target that is itself a webhook URL overrides the
// configured one, which lets one provider serve several bot endpoints.
func (p *Provider) post(ctx context.Context, target string, msg *message) ([]byte, error) {
	if p.config.AuthMode == AuthModeSignature && p.config.Secret != "" {
		timestamp := strconv.FormatInt(time.Now().Unix(), 10)
		msg.Timestamp = timestamp
		msg.Sign = generateSign(p.config.Secret, timestamp)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal feishu message: %w", err)
	}

	url := p.config.WebhookURL
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		url = target
	}

	resp, err := p.executor.Post(ctx, url, payload, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// generateSign computes the Feishu webhook signature:
// base64(hmac_sha256(key = timestamp + "\n" + secret, data = "")).
func generateSign(secret, timestamp string) string {
	stringToSign := fmt.Sprintf("%s\n%s", timestamp, secret)
	mac := hmac.New(sha256.New, []byte(stringToSign))
	mac.Write([]byte(""))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func containsKeyword(text string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

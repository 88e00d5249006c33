// Package provider defines the unified provider interface consumed by the
// delivery core. Providers translate message content into platform wire
// formats; the core never constructs wire payloads itself.
package provider

import (
	"context"
	"fmt"
)

// MessageKind identifies the kind of message content a provider may support.
type MessageKind string

const (
	KindText     MessageKind = "text"
	KindRichText MessageKind = "rich_text"
	KindCard     MessageKind = "card"
	KindImage    MessageKind = "image"
	KindFile     MessageKind = "file"
	KindAudio    MessageKind = "audio"
	KindVideo    MessageKind = "video"
)

// Capabilities is the explicit set of message kinds a provider implements.
// A provider declares its capabilities at construction time; callers query
// the set instead of probing for optional methods.
type Capabilities struct {
	kinds map[MessageKind]bool
}

// NewCapabilities builds a capability set from the supported kinds.
func NewCapabilities(kinds ...MessageKind) Capabilities {
	m := make(map[MessageKind]bool, len(kinds))
	for _, k := range kinds {
		m[k] = true
	}
	return Capabilities{kinds: m}
}

// Supports reports whether the given message kind is implemented.
func (c Capabilities) Supports(kind MessageKind) bool {
	return c.kinds[kind]
}

// Kinds returns the supported kinds.
func (c Capabilities) Kinds() []MessageKind {
	kinds := make([]MessageKind, 0, len(c.kinds))
	for k := range c.kinds {
		kinds = append(kinds, k)
	}
	return kinds
}

// Message is a provider-agnostic message envelope for SendMessage.
type Message struct {
	Kind     MessageKind    `json:"kind"`
	Content  any            `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SendResult is the uniform outcome of every send operation. Exactly one of
// the success and failure cases is populated; no partial state is
// representable.
type SendResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Response  []byte `json:"response,omitempty"`
	Error     string `json:"error,omitempty"`
}

// NewSendResult builds a success result carrying the raw platform response.
func NewSendResult(messageID string, raw []byte) *SendResult {
	return &SendResult{Success: true, MessageID: messageID, Response: raw}
}

// NewSendError builds a failure result. raw may be nil when no response was
// received.
func NewSendError(err error, raw []byte) *SendResult {
	return &SendResult{Success: false, Error: err.Error(), Response: raw}
}

// Provider is the interface every messaging platform implements.
type Provider interface {
	// Name returns the provider identity, e.g. "feishu".
	Name() string

	// Capabilities returns the set of message kinds this provider supports.
	Capabilities() Capabilities

	// Connect establishes any session state the platform needs.
	Connect(ctx context.Context) error

	// Disconnect releases platform resources.
	Disconnect() error

	// IsConnected reports whether the provider is ready to send.
	IsConnected() bool

	// SendText sends a plain text message to the target.
	SendText(ctx context.Context, target, text string) ([]byte, error)

	// SendRichText sends a rich text (post-style) message to the target.
	SendRichText(ctx context.Context, target string, content any) ([]byte, error)

	// SendCard sends an interactive card message to the target.
	SendCard(ctx context.Context, target string, card any) ([]byte, error)

	// SendImage sends an image to the target.
	SendImage(ctx context.Context, target string, image any) ([]byte, error)

	// SendMessage sends a generic message envelope to the target.
	SendMessage(ctx context.Context, target string, msg *Message) ([]byte, error)
}

// ErrUnsupportedKind signals a send of a message kind the provider does not
// implement. Raised before any network attempt.
type ErrUnsupportedKind struct {
	Provider string
	Kind     MessageKind
}

// Error implements the error interface.
func (e *ErrUnsupportedKind) Error() string {
	return fmt.Sprintf("provider %q does not support %s messages", e.Provider, e.Kind)
}

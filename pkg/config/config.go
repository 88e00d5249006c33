// Package config loads and validates the delivery core configuration from
// YAML. Component packages own their config structs; this package composes
// them into one document and applies defaults so callers can start from a
// partial file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kart-io/deliverycore/pkg/breaker"
	"github.com/kart-io/deliverycore/pkg/queue"
	"github.com/kart-io/deliverycore/pkg/retryhttp"
)

// TrackerConfig controls message tracking and retention.
type TrackerConfig struct {
	// MaxHistory caps the number of tracked messages kept in memory.
	MaxHistory int `json:"max_history" yaml:"max_history"`
	// CleanupInterval is how often terminal messages older than MaxAge are
	// evicted. Zero disables periodic cleanup.
	CleanupInterval time.Duration `json:"cleanup_interval" yaml:"cleanup_interval"`
	// MaxAge is the retention window for periodic cleanup.
	MaxAge time.Duration `json:"max_age" yaml:"max_age"`
	// DatabasePath, when set, enables the SQLite-backed durable store.
	DatabasePath string `json:"database_path,omitempty" yaml:"database_path"`
	// DedupWindow, when positive, suppresses duplicate sends of identical
	// content to the same target within the window.
	DedupWindow time.Duration `json:"dedup_window" yaml:"dedup_window"`
}

// QueueConfig extends the queue processing settings with an optional
// Redis-backed pending store.
type QueueConfig struct {
	queue.Config `yaml:",inline"`
	// DefaultMaxRetries is applied to queued messages enqueued without an
	// explicit retry limit.
	DefaultMaxRetries int `json:"default_max_retries" yaml:"default_max_retries"`
	// Redis, when set, replaces the in-memory pending store.
	Redis *queue.RedisOptions `json:"redis,omitempty" yaml:"redis"`
}

// FeishuConfig holds Feishu webhook provider settings.
type FeishuConfig struct {
	WebhookURL string   `json:"webhook_url" yaml:"webhook_url"`
	Secret     string   `json:"secret,omitempty" yaml:"secret"`
	Keywords   []string `json:"keywords,omitempty" yaml:"keywords"`
}

// WebhookConfig holds generic webhook provider settings.
type WebhookConfig struct {
	URL         string `json:"url" yaml:"url"`
	BearerToken string `json:"bearer_token,omitempty" yaml:"bearer_token"`
	CodeField   string `json:"code_field,omitempty" yaml:"code_field"`
}

// ProvidersConfig lists the configured providers. A nil entry leaves that
// provider unconfigured.
type ProvidersConfig struct {
	Feishu  *FeishuConfig  `json:"feishu,omitempty" yaml:"feishu"`
	Webhook *WebhookConfig `json:"webhook,omitempty" yaml:"webhook"`
}

// Config is the root configuration document.
type Config struct {
	Breaker breaker.Config `json:"breaker" yaml:"breaker"`
	// BreakerOverrides replaces the base breaker settings for specific
	// provider names.
	BreakerOverrides map[string]breaker.Config `json:"breaker_overrides,omitempty" yaml:"breaker_overrides"`
	Retry            retryhttp.Policy          `json:"retry" yaml:"retry"`
	Queue            QueueConfig               `json:"queue" yaml:"queue"`
	Tracker          TrackerConfig             `json:"tracker" yaml:"tracker"`
	Providers        ProvidersConfig           `json:"providers" yaml:"providers"`
}

// BreakerFor returns the breaker settings for a provider, falling back to
// the base settings when no override exists.
func (c *Config) BreakerFor(providerName string) breaker.Config {
	if cfg, ok := c.BreakerOverrides[providerName]; ok {
		return cfg
	}
	return c.Breaker
}

// Default returns the configuration with all defaults applied and no
// providers configured.
func Default() *Config {
	return &Config{
		Breaker: breaker.DefaultConfig(),
		Retry:   retryhttp.DefaultPolicy(),
		Queue: QueueConfig{
			Config:            queue.DefaultConfig(),
			DefaultMaxRetries: 3,
		},
		Tracker: TrackerConfig{
			MaxHistory:      10000,
			CleanupInterval: time.Hour,
			MaxAge:          24 * time.Hour,
		},
	}
}

// Load parses YAML data over the defaults and validates the result.
func Load(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads and parses the configuration file at path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Load(data)
}

// applyDefaults fills zero values left by a partial document.
func (c *Config) applyDefaults() {
	def := Default()
	if c.Breaker.FailureThreshold <= 0 {
		c.Breaker.FailureThreshold = def.Breaker.FailureThreshold
	}
	if c.Breaker.SuccessThreshold <= 0 {
		c.Breaker.SuccessThreshold = def.Breaker.SuccessThreshold
	}
	// An explicit zero timeout is kept: it lets an open breaker admit a
	// trial call immediately. An omitted timeout retains the default the
	// document was parsed over.
	if c.Breaker.Timeout < 0 {
		c.Breaker.Timeout = def.Breaker.Timeout
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = def.Retry.MaxAttempts
	}
	if c.Retry.InitialInterval <= 0 {
		c.Retry.InitialInterval = def.Retry.InitialInterval
	}
	if c.Retry.MaxInterval <= 0 {
		c.Retry.MaxInterval = def.Retry.MaxInterval
	}
	if c.Retry.Multiplier < 1 {
		c.Retry.Multiplier = def.Retry.Multiplier
	}
	if c.Queue.MaxBatchSize <= 0 {
		c.Queue.MaxBatchSize = def.Queue.MaxBatchSize
	}
	if c.Queue.BaseDelay <= 0 {
		c.Queue.BaseDelay = def.Queue.BaseDelay
	}
	if c.Queue.DefaultMaxRetries < 0 {
		c.Queue.DefaultMaxRetries = def.Queue.DefaultMaxRetries
	}
	if c.Tracker.MaxHistory <= 0 {
		c.Tracker.MaxHistory = def.Tracker.MaxHistory
	}
	if c.Tracker.MaxAge <= 0 {
		c.Tracker.MaxAge = def.Tracker.MaxAge
	}
}

// Validate checks the document for values defaults cannot repair.
func (c *Config) Validate() error {
	if err := c.Breaker.Validate(); err != nil {
		return fmt.Errorf("breaker: %w", err)
	}
	for name, cfg := range c.BreakerOverrides {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("breaker_overrides.%s: %w", name, err)
		}
	}
	if c.Queue.Redis != nil && c.Queue.Redis.Addr == "" {
		return fmt.Errorf("queue.redis: addr is required")
	}
	if c.Tracker.DedupWindow < 0 {
		return fmt.Errorf("tracker: dedup_window must be >= 0")
	}
	if c.Providers.Feishu != nil && c.Providers.Feishu.WebhookURL == "" {
		return fmt.Errorf("providers.feishu: webhook_url is required")
	}
	if c.Providers.Webhook != nil && c.Providers.Webhook.URL == "" {
		return fmt.Errorf("providers.webhook: url is required")
	}
	return nil
}

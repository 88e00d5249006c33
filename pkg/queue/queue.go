// Package queue provides the backoff-based delivery queue for asynchronous,
// retried message sends. Pending messages are drained in batches; each
// failure increments a per-message retry counter until retries are exhausted.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kart-io/deliverycore/pkg/logger"
	"github.com/kart-io/deliverycore/pkg/metrics"
	"github.com/kart-io/deliverycore/pkg/provider"
	"github.com/kart-io/deliverycore/pkg/utils/idgen"
)

// QueuedMessage is one pending delivery awaiting batch processing.
// It is created by a caller and mutated only by the queue (retry counter and
// last error) until it is sent, permanently failed, or the queue is cleared.
type QueuedMessage struct {
	ID           string               `json:"id"`
	ProviderName string               `json:"provider_name"`
	Target       string               `json:"target"`
	MessageType  provider.MessageKind `json:"message_type"`
	Content      any                  `json:"content"`
	RetryCount   int                  `json:"retry_count"`
	MaxRetries   int                  `json:"max_retries"`
	LastError    string               `json:"last_error,omitempty"`
	EnqueuedAt   time.Time            `json:"enqueued_at"`
}

// NewQueuedMessage creates a pending delivery with a generated id.
// The target must be non-empty.
func NewQueuedMessage(providerName, target string, kind provider.MessageKind, content any, maxRetries int) (*QueuedMessage, error) {
	if target == "" {
		return nil, fmt.Errorf("target cannot be empty")
	}
	if maxRetries < 0 {
		return nil, fmt.Errorf("max retries must be >= 0, got %d", maxRetries)
	}
	return &QueuedMessage{
		ID:           idgen.GenerateMessageID(),
		ProviderName: providerName,
		Target:       target,
		MessageType:  kind,
		Content:      content,
		MaxRetries:   maxRetries,
		EnqueuedAt:   time.Now(),
	}, nil
}

// Dispatcher resolves provider names and performs the actual send for a
// queued message. The gateway hub satisfies this contract, so both the
// synchronous and queued paths converge on the same breaker, retry, and
// tracking composition.
type Dispatcher interface {
	// Has reports whether the named provider can be resolved.
	Has(providerName string) bool

	// Dispatch attempts delivery of the message and returns its outcome.
	Dispatch(ctx context.Context, msg *QueuedMessage) *provider.SendResult
}

// Config controls queue batch processing.
type Config struct {
	// MaxBatchSize is the maximum number of messages drained per pass.
	MaxBatchSize int `json:"max_batch_size" yaml:"max_batch_size"`
	// BaseDelay seeds the advisory per-message retry backoff.
	BaseDelay time.Duration `json:"base_delay" yaml:"base_delay"`
}

// DefaultConfig returns the default queue configuration.
func DefaultConfig() Config {
	return Config{
		MaxBatchSize: 10,
		BaseDelay:    time.Second,
	}
}

// ProcessResult reports the outcome of one ProcessQueue call.
type ProcessResult struct {
	Sent      int `json:"sent"`
	Retried   int `json:"retried"`
	Failed    int `json:"failed"`
	Batches   int `json:"batches"`
	Processed int `json:"processed"`
}

// Stats holds running lifetime statistics for the queue.
type Stats struct {
	TotalEnqueued int64 `json:"total_enqueued"`
	TotalSent     int64 `json:"total_sent"`
	TotalFailed   int64 `json:"total_failed"`
	TotalRetried  int64 `json:"total_retried"`
	CurrentSize   int   `json:"current_size"`
}

// MessageQueue holds pending deliveries and processes them in batches.
// The pending sequence lives behind a store guarded by its own mutex; the
// store lock is never held across a send, so enqueues are not blocked for
// the duration of a batch.
type MessageQueue struct {
	dispatcher Dispatcher
	store      PendingStore
	config     Config
	logger     logger.Logger
	metrics    *metrics.DeliveryMetrics

	statsMu sync.Mutex
	stats   Stats
}

// QueueOption configures a MessageQueue.
type QueueOption func(*MessageQueue)

// WithPendingStore replaces the default in-memory pending store, e.g. with
// the Redis-backed store for multi-process deployments.
func WithPendingStore(s PendingStore) QueueOption {
	return func(q *MessageQueue) { q.store = s }
}

// WithQueueLogger sets the queue logger.
func WithQueueLogger(log logger.Logger) QueueOption {
	return func(q *MessageQueue) { q.logger = log }
}

// WithQueueMetrics attaches Prometheus delivery metrics: the queue depth
// gauge tracks the pending store and the retry counter records re-admitted
// messages per provider.
func WithQueueMetrics(m *metrics.DeliveryMetrics) QueueOption {
	return func(q *MessageQueue) { q.metrics = m }
}

// NewMessageQueue creates a queue dispatching through d.
func NewMessageQueue(d Dispatcher, config Config, opts ...QueueOption) *MessageQueue {
	if config.MaxBatchSize <= 0 {
		config.MaxBatchSize = DefaultConfig().MaxBatchSize
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = DefaultConfig().BaseDelay
	}
	q := &MessageQueue{
		dispatcher: d,
		store:      NewMemoryStore(),
		config:     config,
		logger:     logger.Discard,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue admits one message after validating its target and provider.
// Unknown providers and empty targets are rejected synchronously and never
// enter the retry machinery.
func (q *MessageQueue) Enqueue(ctx context.Context, msg *QueuedMessage) error {
	if err := q.validate(msg); err != nil {
		return err
	}
	if err := q.store.Append(ctx, msg); err != nil {
		return fmt.Errorf("failed to enqueue message: %w", err)
	}

	q.statsMu.Lock()
	q.stats.TotalEnqueued++
	q.statsMu.Unlock()

	q.observeDepth(ctx)
	q.logger.Debug("Message enqueued",
		"messageID", msg.ID, "provider", msg.ProviderName, "target", msg.Target)
	return nil
}

// EnqueueBatch admits multiple messages. All messages are validated before
// any is admitted, so a batch with one invalid message admits none.
func (q *MessageQueue) EnqueueBatch(ctx context.Context, msgs []*QueuedMessage) error {
	for _, msg := range msgs {
		if err := q.validate(msg); err != nil {
			return err
		}
	}
	for _, msg := range msgs {
		if err := q.store.Append(ctx, msg); err != nil {
			return fmt.Errorf("failed to enqueue message %q: %w", msg.ID, err)
		}
		q.statsMu.Lock()
		q.stats.TotalEnqueued++
		q.statsMu.Unlock()
	}
	q.observeDepth(ctx)
	return nil
}

func (q *MessageQueue) validate(msg *QueuedMessage) error {
	if msg == nil {
		return fmt.Errorf("message cannot be nil")
	}
	if msg.Target == "" {
		return fmt.Errorf("target cannot be empty")
	}
	if !q.dispatcher.Has(msg.ProviderName) {
		return fmt.Errorf("unknown provider %q", msg.ProviderName)
	}
	return nil
}

// ProcessQueue repeatedly drains batches of up to MaxBatchSize until the
// queue is empty for this call. Failed messages with retries remaining are
// re-admitted at the tail for a later pass; the computed backoff delay is
// advisory, so the cadence between passes is the caller's responsibility
// (e.g. a periodic scheduled invocation).
func (q *MessageQueue) ProcessQueue(ctx context.Context) (*ProcessResult, error) {
	result := &ProcessResult{}

	for {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		batch, err := q.store.DrainBatch(ctx, q.config.MaxBatchSize)
		if err != nil {
			return result, fmt.Errorf("failed to drain batch: %w", err)
		}
		if len(batch) == 0 {
			break
		}
		result.Batches++

		for _, msg := range batch {
			result.Processed++
			q.processMessage(ctx, msg, result)
		}
	}

	q.observeDepth(ctx)
	q.logger.Info("Queue processed",
		"sent", result.Sent, "retried", result.Retried,
		"failed", result.Failed, "batches", result.Batches)
	return result, nil
}

func (q *MessageQueue) observeDepth(ctx context.Context) {
	if q.metrics == nil {
		return
	}
	n, err := q.store.Len(ctx)
	if err != nil {
		return
	}
	q.metrics.SetQueueDepth(n)
}

func (q *MessageQueue) processMessage(ctx context.Context, msg *QueuedMessage, result *ProcessResult) {
	res := q.dispatcher.Dispatch(ctx, msg)
	if res != nil && res.Success {
		result.Sent++
		q.statsMu.Lock()
		q.stats.TotalSent++
		q.statsMu.Unlock()
		return
	}

	if res != nil {
		msg.LastError = res.Error
	}

	if msg.RetryCount < msg.MaxRetries {
		msg.RetryCount++
		delay := q.RetryDelay(msg.RetryCount)
		result.Retried++
		q.statsMu.Lock()
		q.stats.TotalRetried++
		q.statsMu.Unlock()
		if q.metrics != nil {
			q.metrics.IncRetry(msg.ProviderName)
		}

		q.logger.Debug("Message scheduled for retry",
			"messageID", msg.ID, "retryCount", msg.RetryCount,
			"nextDelay", delay, "error", msg.LastError)

		if err := q.store.Append(ctx, msg); err != nil {
			q.logger.Error("Failed to re-admit message, dropping",
				"messageID", msg.ID, "error", err)
			result.Failed++
			q.statsMu.Lock()
			q.stats.TotalFailed++
			q.statsMu.Unlock()
		}
		return
	}

	result.Failed++
	q.statsMu.Lock()
	q.stats.TotalFailed++
	q.statsMu.Unlock()
	q.logger.Warn("Message permanently failed",
		"messageID", msg.ID, "retries", msg.RetryCount, "error", msg.LastError)
}

// RetryDelay computes the advisory backoff before the next attempt for a
// message on its nth retry: BaseDelay * 2^retryCount.
func (q *MessageQueue) RetryDelay(retryCount int) time.Duration {
	delay := q.config.BaseDelay
	for i := 0; i < retryCount; i++ {
		delay *= 2
	}
	return delay
}

// Size returns the number of pending messages.
func (q *MessageQueue) Size() int {
	n, err := q.store.Len(context.Background())
	if err != nil {
		q.logger.Warn("Failed to read queue size", "error", err)
		return 0
	}
	return n
}

// GetQueueStats returns lifetime statistics plus the current size.
func (q *MessageQueue) GetQueueStats() Stats {
	q.statsMu.Lock()
	stats := q.stats
	q.statsMu.Unlock()
	stats.CurrentSize = q.Size()
	return stats
}

// ClearQueue drops all pending messages.
func (q *MessageQueue) ClearQueue(ctx context.Context) error {
	return q.store.Clear(ctx)
}

// Close releases the pending store.
func (q *MessageQueue) Close() error {
	return q.store.Close()
}

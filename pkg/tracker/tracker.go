// Package tracker records delivery attempts and outcomes keyed by message id.
// It detects duplicate sends by content hash and target within a time window
// and can mirror its table to durable storage for audit and reconciliation.
package tracker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kart-io/deliverycore/pkg/logger"
	"github.com/kart-io/deliverycore/pkg/utils/crypto"
)

// Status represents the delivery lifecycle state of a tracked message.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusFailed    Status = "failed"
	StatusExpired   Status = "expired"
)

// ErrUnknownMessage is returned when updating a message id that was never
// tracked or has already been evicted.
var ErrUnknownMessage = errors.New("unknown message id")

// TrackedMessage is the record of one message's delivery lifecycle.
// SentAt and DeliveredAt are stamped at most once, on the first transition
// into the corresponding status.
type TrackedMessage struct {
	MessageID   string         `json:"message_id" gorm:"primaryKey"`
	Provider    string         `json:"provider" gorm:"index"`
	Target      string         `json:"target"`
	ContentHash string         `json:"content_hash"`
	Status      Status         `json:"status" gorm:"index"`
	CreatedAt   time.Time      `json:"created_at" gorm:"index"`
	UpdatedAt   time.Time      `json:"updated_at"`
	SentAt      *time.Time     `json:"sent_at,omitempty"`
	DeliveredAt *time.Time     `json:"delivered_at,omitempty"`
	Error       string         `json:"error,omitempty"`
	RetryCount  int            `json:"retry_count"`
	Metadata    map[string]any `json:"metadata,omitempty" gorm:"serializer:json"`
}

// TableName implements the GORM tabler interface.
func (TrackedMessage) TableName() string { return "tracked_messages" }

// clone returns a deep-enough copy so callers cannot mutate tracker state.
func (m *TrackedMessage) clone() *TrackedMessage {
	cp := *m
	if m.SentAt != nil {
		t := *m.SentAt
		cp.SentAt = &t
	}
	if m.DeliveredAt != nil {
		t := *m.DeliveredAt
		cp.DeliveredAt = &t
	}
	if m.Metadata != nil {
		cp.Metadata = make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// Statistics summarizes the tracked table.
type Statistics struct {
	Total      int            `json:"total"`
	ByStatus   map[Status]int `json:"by_status"`
	ByProvider map[string]int `json:"by_provider"`
	Oldest     time.Time      `json:"oldest"`
	Newest     time.Time      `json:"newest"`
}

// Tracker owns the table of tracked messages. All table mutations happen
// under a single mutex; when a durable store is attached, writes happen
// synchronously inside the same critical section so the in-memory and
// durable views never diverge at the point a call returns.
type Tracker struct {
	mu       sync.Mutex
	messages map[string]*TrackedMessage

	maxHistory      int
	store           Store
	cleanupInterval time.Duration
	cleanupMaxAge   time.Duration
	logger          logger.Logger

	stopCh    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithMaxHistory caps the in-memory table size. When a Track call pushes the
// table over the cap, the single oldest entry by creation time is evicted.
func WithMaxHistory(n int) Option {
	return func(t *Tracker) { t.maxHistory = n }
}

// WithStore attaches durable storage mirroring every mutation.
func WithStore(s Store) Option {
	return func(t *Tracker) { t.store = s }
}

// WithCleanup enables the periodic cleanup worker. Messages older than
// maxAge are removed every interval. A non-positive interval disables the
// worker.
func WithCleanup(interval, maxAge time.Duration) Option {
	return func(t *Tracker) {
		t.cleanupInterval = interval
		t.cleanupMaxAge = maxAge
	}
}

// WithLogger sets the tracker logger.
func WithLogger(log logger.Logger) Option {
	return func(t *Tracker) { t.logger = log }
}

// New creates a message tracker and starts the cleanup worker when enabled.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		messages:   make(map[string]*TrackedMessage),
		maxHistory: 10000,
		logger:     logger.Discard,
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}

	if t.cleanupInterval > 0 {
		t.wg.Add(1)
		go t.cleanupLoop()
	}
	return t
}

// Track records a new PENDING message. The content hash is computed from the
// message content: strings and bytes directly, structured content over its
// canonical serialization.
func (t *Tracker) Track(messageID, providerName, target string, content any) error {
	if messageID == "" {
		return fmt.Errorf("message id cannot be empty")
	}

	now := time.Now()
	msg := &TrackedMessage{
		MessageID:   messageID,
		Provider:    providerName,
		Target:      target,
		ContentHash: crypto.ContentHash(content),
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.messages[messageID]; exists {
		return fmt.Errorf("message %q already tracked", messageID)
	}
	t.messages[messageID] = msg

	if t.store != nil {
		if err := t.store.Upsert(msg); err != nil {
			delete(t.messages, messageID)
			return fmt.Errorf("failed to persist tracked message: %w", err)
		}
	}

	if t.maxHistory > 0 && len(t.messages) > t.maxHistory {
		t.evictOldestLocked()
	}
	return nil
}

// evictOldestLocked removes the single entry with the oldest creation time.
// Caller must hold t.mu.
func (t *Tracker) evictOldestLocked() {
	var oldestID string
	var oldestAt time.Time
	for id, msg := range t.messages {
		if oldestID == "" || msg.CreatedAt.Before(oldestAt) {
			oldestID = id
			oldestAt = msg.CreatedAt
		}
	}
	if oldestID == "" {
		return
	}
	delete(t.messages, oldestID)
	if t.store != nil {
		if err := t.store.Delete(oldestID); err != nil {
			t.logger.Warn("Failed to delete evicted message from store",
				"messageID", oldestID, "error", err)
		}
	}
	t.logger.Debug("Evicted oldest tracked message", "messageID", oldestID)
}

// UpdateOption mutates fields alongside a status update.
type UpdateOption func(*TrackedMessage)

// WithError records the failure reason of the last attempt.
func WithError(errMsg string) UpdateOption {
	return func(m *TrackedMessage) { m.Error = errMsg }
}

// WithRetryCount records how many times delivery was retried.
func WithRetryCount(n int) UpdateOption {
	return func(m *TrackedMessage) { m.RetryCount = n }
}

// WithMetadata merges the given keys into the message metadata.
func WithMetadata(md map[string]any) UpdateOption {
	return func(m *TrackedMessage) {
		if m.Metadata == nil {
			m.Metadata = make(map[string]any, len(md))
		}
		for k, v := range md {
			m.Metadata[k] = v
		}
	}
}

// UpdateStatus mutates the record for messageID. SentAt and DeliveredAt are
// stamped the first time the corresponding status is reached. Unknown ids
// report ErrUnknownMessage.
func (t *Tracker) UpdateStatus(messageID string, status Status, opts ...UpdateOption) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	msg, ok := t.messages[messageID]
	if !ok {
		t.logger.Warn("Status update for unknown message", "messageID", messageID, "status", status)
		return fmt.Errorf("%w: %s", ErrUnknownMessage, messageID)
	}

	now := time.Now()
	msg.Status = status
	msg.UpdatedAt = now
	if status == StatusSent && msg.SentAt == nil {
		msg.SentAt = &now
	}
	if status == StatusDelivered && msg.DeliveredAt == nil {
		msg.DeliveredAt = &now
	}
	for _, opt := range opts {
		opt(msg)
	}

	if t.store != nil {
		if err := t.store.Upsert(msg); err != nil {
			return fmt.Errorf("failed to persist status update: %w", err)
		}
	}
	return nil
}

// IsDuplicate reports whether a non-failed message with the same content
// hash and target was created strictly within the given window. Callers use
// this to suppress redundant re-sends.
func (t *Tracker) IsDuplicate(contentHash, target string, within time.Duration) bool {
	cutoff := time.Now().Add(-within)

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, msg := range t.messages {
		if msg.ContentHash == contentHash &&
			msg.Target == target &&
			msg.Status != StatusFailed &&
			msg.CreatedAt.After(cutoff) {
			return true
		}
	}
	return false
}

// GetMessage returns a copy of the tracked message for the given id.
func (t *Tracker) GetMessage(messageID string) (*TrackedMessage, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	msg, ok := t.messages[messageID]
	if !ok {
		return nil, false
	}
	return msg.clone(), true
}

// GetStatistics returns counts by status and provider plus the oldest and
// newest creation timestamps.
func (t *Tracker) GetStatistics() Statistics {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := Statistics{
		Total:      len(t.messages),
		ByStatus:   make(map[Status]int),
		ByProvider: make(map[string]int),
	}
	for _, msg := range t.messages {
		stats.ByStatus[msg.Status]++
		stats.ByProvider[msg.Provider]++
		if stats.Oldest.IsZero() || msg.CreatedAt.Before(stats.Oldest) {
			stats.Oldest = msg.CreatedAt
		}
		if msg.CreatedAt.After(stats.Newest) {
			stats.Newest = msg.CreatedAt
		}
	}
	return stats
}

// ExportMessages returns copies of every tracked message.
func (t *Tracker) ExportMessages() []*TrackedMessage {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*TrackedMessage, 0, len(t.messages))
	for _, msg := range t.messages {
		out = append(out, msg.clone())
	}
	return out
}

// CleanupOldMessages removes all records created before now minus maxAge,
// returning the number removed. Durable rows are removed in the same
// critical section.
func (t *Tracker) CleanupOldMessages(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for id, msg := range t.messages {
		if msg.CreatedAt.Before(cutoff) {
			delete(t.messages, id)
			removed++
		}
	}
	if removed > 0 && t.store != nil {
		if err := t.store.DeleteOlderThan(cutoff); err != nil {
			t.logger.Warn("Failed to delete old messages from store", "error", err)
		}
	}
	if removed > 0 {
		t.logger.Debug("Cleaned up old tracked messages", "removed", removed)
	}
	return removed
}

// LoadFromStore replaces the in-memory table with the durable contents.
// Intended for process startup when persistence is enabled.
func (t *Tracker) LoadFromStore() error {
	if t.store == nil {
		return fmt.Errorf("no store attached")
	}

	msgs, err := t.store.LoadAll()
	if err != nil {
		return fmt.Errorf("failed to load tracked messages: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = make(map[string]*TrackedMessage, len(msgs))
	for _, msg := range msgs {
		t.messages[msg.MessageID] = msg
	}
	t.logger.Info("Loaded tracked messages from store", "count", len(msgs))
	return nil
}

// cleanupLoop runs the periodic cleanup worker on its own goroutine.
func (t *Tracker) cleanupLoop() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.CleanupOldMessages(t.cleanupMaxAge)
		case <-t.stopCh:
			return
		}
	}
}

// Close stops the cleanup worker with a bounded join and closes the durable
// store. Already-committed state is never lost: every mutation was persisted
// synchronously when it happened.
func (t *Tracker) Close() error {
	t.closeOnce.Do(func() { close(t.stopCh) })

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.logger.Warn("Timed out waiting for cleanup worker to stop")
	}

	if t.store != nil {
		return t.store.Close()
	}
	return nil
}

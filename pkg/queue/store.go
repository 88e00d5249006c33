package queue

import (
	"context"
	"sync"
)

// PendingStore holds the ordered sequence of pending messages. Append and
// DrainBatch are the only operations that touch the sequence, each under the
// store's own mutual-exclusion scope.
type PendingStore interface {
	// Append admits a message at the tail of the sequence.
	Append(ctx context.Context, msg *QueuedMessage) error

	// DrainBatch removes and returns up to max messages from the head.
	DrainBatch(ctx context.Context, max int) ([]*QueuedMessage, error)

	// Len returns the number of pending messages.
	Len(ctx context.Context) (int, error)

	// Clear drops all pending messages.
	Clear(ctx context.Context) error

	// Close releases store resources.
	Close() error
}

// memoryStore is the default in-process pending store.
type memoryStore struct {
	mu      sync.Mutex
	pending []*QueuedMessage
}

// NewMemoryStore creates an in-memory pending store.
func NewMemoryStore() PendingStore {
	return &memoryStore{}
}

// Append admits a message at the tail.
func (s *memoryStore) Append(_ context.Context, msg *QueuedMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, msg)
	return nil
}

// DrainBatch removes and returns up to max messages from the head.
func (s *memoryStore) DrainBatch(_ context.Context, max int) ([]*QueuedMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return nil, nil
	}
	n := max
	if n > len(s.pending) {
		n = len(s.pending)
	}
	batch := make([]*QueuedMessage, n)
	copy(batch, s.pending[:n])
	s.pending = s.pending[n:]
	return batch, nil
}

// Len returns the number of pending messages.
func (s *memoryStore) Len(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending), nil
}

// Clear drops all pending messages.
func (s *memoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
	return nil
}

// Close is a no-op for the in-memory store.
func (s *memoryStore) Close() error { return nil }

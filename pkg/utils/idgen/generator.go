// Package idgen provides ID generation utilities for the delivery core.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Generator defines the interface for ID generation.
type Generator interface {
	// Generate creates a new unique ID.
	Generate() string
	// GenerateWithPrefix creates a new unique ID with the given prefix.
	GenerateWithPrefix(prefix string) string
}

// SimpleGenerator implements a simple ID generator using timestamp and random bytes.
type SimpleGenerator struct {
	counter uint64
}

// NewSimpleGenerator creates a new simple ID generator.
func NewSimpleGenerator() *SimpleGenerator {
	return &SimpleGenerator{}
}

// Generate creates a new unique ID in format: timestamp_counter_random.
func (g *SimpleGenerator) Generate() string {
	return g.GenerateWithPrefix("")
}

// GenerateWithPrefix creates a new unique ID with the given prefix.
func (g *SimpleGenerator) GenerateWithPrefix(prefix string) string {
	timestamp := time.Now().UnixNano()
	counter := atomic.AddUint64(&g.counter, 1)

	randomBytes := make([]byte, 4)
	if _, err := rand.Read(randomBytes); err != nil {
		// Fallback to counter-based random if crypto/rand fails
		randomBytes = []byte{
			byte(counter >> 24),
			byte(counter >> 16),
			byte(counter >> 8),
			byte(counter),
		}
	}

	randomHex := hex.EncodeToString(randomBytes)

	if prefix != "" {
		return fmt.Sprintf("%s_%d_%d_%s", prefix, timestamp, counter, randomHex)
	}
	return fmt.Sprintf("%d_%d_%s", timestamp, counter, randomHex)
}

// UUIDGenerator generates RFC 4122 version 4 identifiers.
type UUIDGenerator struct{}

// NewUUIDGenerator creates a new UUID-based generator.
func NewUUIDGenerator() *UUIDGenerator {
	return &UUIDGenerator{}
}

// Generate creates a new UUID string.
func (g *UUIDGenerator) Generate() string {
	return uuid.NewString()
}

// GenerateWithPrefix creates a new UUID string with the given prefix.
func (g *UUIDGenerator) GenerateWithPrefix(prefix string) string {
	if prefix != "" {
		return fmt.Sprintf("%s_%s", prefix, uuid.NewString())
	}
	return uuid.NewString()
}

// MessageIDGenerator is specialized for generating message IDs.
type MessageIDGenerator struct {
	generator Generator
}

// NewMessageIDGenerator creates a new message ID generator.
func NewMessageIDGenerator() *MessageIDGenerator {
	return &MessageIDGenerator{
		generator: NewUUIDGenerator(),
	}
}

// NewMessageIDGeneratorWithCustom creates a message ID generator with a custom generator.
func NewMessageIDGeneratorWithCustom(gen Generator) *MessageIDGenerator {
	return &MessageIDGenerator{
		generator: gen,
	}
}

// GenerateMessageID generates a message ID with "msg" prefix.
func (g *MessageIDGenerator) GenerateMessageID() string {
	return g.generator.GenerateWithPrefix("msg")
}

// GenerateBatchID generates a batch ID with "batch" prefix.
func (g *MessageIDGenerator) GenerateBatchID() string {
	return g.generator.GenerateWithPrefix("batch")
}

// The package-level generator backs queued message ids. The timestamp and
// counter components keep ids sortable by admission order within a process.
var defaultGenerator = NewMessageIDGeneratorWithCustom(NewSimpleGenerator())

// GenerateMessageID generates a message ID using the default generator.
func GenerateMessageID() string {
	return defaultGenerator.GenerateMessageID()
}

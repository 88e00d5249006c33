// Package crypto provides hashing utilities for the delivery core.
package crypto

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
)

// HashAlgorithm represents the supported hashing algorithms.
type HashAlgorithm string

const (
	// SHA256 algorithm (recommended).
	SHA256 HashAlgorithm = "sha256"
	// SHA512 algorithm.
	SHA512 HashAlgorithm = "sha512"
)

// Hasher provides cryptographic hashing functionality.
type Hasher struct {
	algorithm HashAlgorithm
}

// NewHasher creates a new hasher with the specified algorithm.
func NewHasher(algorithm HashAlgorithm) *Hasher {
	return &Hasher{
		algorithm: algorithm,
	}
}

// Hash computes the hash of the input data.
func (h *Hasher) Hash(data []byte) ([]byte, error) {
	hasher, err := h.newHashFunc()
	if err != nil {
		return nil, err
	}

	hasher.Write(data)
	return hasher.Sum(nil), nil
}

// HashString computes the hash of the input string and returns hex encoding.
func (h *Hasher) HashString(data string) (string, error) {
	sum, err := h.Hash([]byte(data))
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sum), nil
}

func (h *Hasher) newHashFunc() (hash.Hash, error) {
	switch h.algorithm {
	case SHA256:
		return sha256.New(), nil
	case SHA512:
		return sha512.New(), nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %s", h.algorithm)
	}
}

// ContentHash computes a deterministic SHA-256 hex digest of message content.
// String and byte content are hashed directly over their UTF-8 bytes.
// Structured content is hashed over its JSON serialization; encoding/json
// emits map keys in sorted order, so semantically identical payloads with
// different map ordering produce the same digest across process restarts.
func ContentHash(content any) string {
	switch v := content.(type) {
	case string:
		return hashBytes([]byte(v))
	case []byte:
		return hashBytes(v)
	default:
		data, err := json.Marshal(content)
		if err != nil {
			return hashBytes([]byte(fmt.Sprintf("%v", content)))
		}
		return hashBytes(data)
	}
}

var defaultHasher = NewHasher(SHA256)

func hashBytes(data []byte) string {
	// The default hasher uses SHA256, which Hash always supports.
	sum, _ := defaultHasher.Hash(data)
	return hex.EncodeToString(sum)
}

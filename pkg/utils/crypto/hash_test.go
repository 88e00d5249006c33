package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasher_HashString(t *testing.T) {
	tests := []struct {
		name      string
		algorithm HashAlgorithm
		input     string
		want      string
	}{
		{
			name:      "sha256 empty string",
			algorithm: SHA256,
			input:     "",
			want:      "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		},
		{
			name:      "sha256 hello",
			algorithm: SHA256,
			input:     "hello",
			want:      "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHasher(tt.algorithm)
			got, err := h.HashString(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHasher_UnsupportedAlgorithm(t *testing.T) {
	h := NewHasher("md5")
	_, err := h.Hash([]byte("data"))
	assert.Error(t, err)
}

func TestHasher_SHA512Length(t *testing.T) {
	h := NewHasher(SHA512)
	sum, err := h.Hash([]byte("data"))
	require.NoError(t, err)
	assert.Len(t, sum, 64)
}

func TestContentHash_Deterministic(t *testing.T) {
	assert.Equal(t, ContentHash("hello"), ContentHash("hello"))
	assert.NotEqual(t, ContentHash("hello"), ContentHash("world"))
}

func TestContentHash_StringAndBytesAgree(t *testing.T) {
	assert.Equal(t, ContentHash("payload"), ContentHash([]byte("payload")))
}

func TestContentHash_MatchesHasher(t *testing.T) {
	h := NewHasher(SHA256)
	want, err := h.HashString("payload")
	require.NoError(t, err)
	assert.Equal(t, want, ContentHash("payload"))
}

func TestContentHash_MapOrderingIrrelevant(t *testing.T) {
	// encoding/json sorts map keys, so insertion order must not matter.
	a := map[string]any{"title": "alert", "body": "disk full", "severity": 2}
	b := map[string]any{"severity": 2, "body": "disk full", "title": "alert"}

	assert.Equal(t, ContentHash(a), ContentHash(b))
}

func TestContentHash_DistinguishesStructuredContent(t *testing.T) {
	a := map[string]any{"title": "alert", "body": "disk full"}
	b := map[string]any{"title": "alert", "body": "disk ok"}

	assert.NotEqual(t, ContentHash(a), ContentHash(b))
}

func TestContentHash_HexDigestLength(t *testing.T) {
	assert.Len(t, ContentHash("anything"), 64)
}

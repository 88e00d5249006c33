package errors

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		name          string
		statusCode    int
		wantKind      Kind
		wantRetryable bool
	}{
		{"rate limited", 429, KindRateLimit, true},
		{"unauthorized", 401, KindAuth, false},
		{"forbidden", 403, KindAuth, false},
		{"bad request", 400, KindClient, false},
		{"not found", 404, KindClient, false},
		{"internal server error", 500, KindServer, true},
		{"bad gateway", 502, KindServer, true},
		{"service unavailable", 503, KindServer, true},
		{"unexpected redirect", 302, KindUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ClassifyStatus(tt.statusCode, fmt.Errorf("HTTP %d", tt.statusCode))
			assert.Equal(t, tt.wantKind, c.Kind)
			assert.Equal(t, tt.wantRetryable, c.Retryable)
			assert.Equal(t, tt.statusCode, c.StatusCode)
		})
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"classified", Classify(KindValidation, fmt.Errorf("bad"), false), KindValidation},
		{"wrapped classified", fmt.Errorf("send: %w", Classify(KindServer, fmt.Errorf("500"), true)), KindServer},
		{"deadline exceeded", context.DeadlineExceeded, KindTimeout},
		{"canceled", context.Canceled, KindTimeout},
		{"plain error", fmt.Errorf("boom"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"retryable classified", Classify(KindNetwork, fmt.Errorf("reset"), true), true},
		{"terminal classified", Classify(KindValidation, fmt.Errorf("bad"), false), false},
		{"wrapped terminal", fmt.Errorf("send: %w", Classify(KindAuth, fmt.Errorf("401"), false)), false},
		{"canceled", context.Canceled, false},
		{"deadline exceeded", context.DeadlineExceeded, false},
		{"unclassified defaults retryable", fmt.Errorf("boom"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestClassified_Error(t *testing.T) {
	withStatus := ClassifyStatus(500, fmt.Errorf("upstream down"))
	assert.Contains(t, withStatus.Error(), "server error (500)")

	withoutStatus := Classify(KindNetwork, fmt.Errorf("connection refused"), true)
	assert.Contains(t, withoutStatus.Error(), "network error:")
}

func TestClassified_Unwrap(t *testing.T) {
	inner := fmt.Errorf("inner")
	c := Classify(KindServer, inner, true)
	assert.ErrorIs(t, c, inner)
}

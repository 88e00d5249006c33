package retryhttp

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/deliverycore/pkg/errors"
)

func fastPolicy(maxAttempts int) Policy {
	return Policy{
		MaxAttempts:     maxAttempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2.0,
	}
}

func TestExecutor_SuccessFirstAttempt(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"code":0}`))
	}))
	defer server.Close()

	exec := NewExecutor(fastPolicy(3), nil, nil)
	resp, err := exec.Post(context.Background(), server.URL, []byte(`{}`), nil)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []byte(`{"code":0}`), resp.Body)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestExecutor_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	exec := NewExecutor(fastPolicy(3), nil, nil)
	resp, err := exec.Post(context.Background(), server.URL, []byte(`{}`), nil)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	m := exec.Metrics()
	assert.Equal(t, int64(2), m.RetryCount)
	assert.Equal(t, int64(1), m.SuccessCount)
}

func TestExecutor_ExhaustsAttempts(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	exec := NewExecutor(fastPolicy(3), nil, nil)
	_, err := exec.Post(context.Background(), server.URL, []byte(`{}`), nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, errors.KindServer, errors.KindOf(err))
}

func TestExecutor_ClientErrorNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	exec := NewExecutor(fastPolicy(3), nil, nil)
	_, err := exec.Post(context.Background(), server.URL, []byte(`{}`), nil)

	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, errors.KindClient, errors.KindOf(err))
}

func TestExecutor_RateLimitRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	exec := NewExecutor(fastPolicy(3), nil, nil)
	resp, err := exec.Post(context.Background(), server.URL, []byte(`{}`), nil)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestExecutor_ValidatorFailureNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"code":19001,"msg":"param invalid"}`))
	}))
	defer server.Close()

	validator := func(statusCode int, body []byte) error {
		return fmt.Errorf("platform rejected message: %s", body)
	}
	exec := NewExecutor(fastPolicy(3), validator, nil)
	resp, err := exec.Post(context.Background(), server.URL, []byte(`{}`), nil)

	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "deterministic application errors must not retry")
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestExecutor_ValidatorPassAllowsSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"code":0}`))
	}))
	defer server.Close()

	validator := func(statusCode int, body []byte) error { return nil }
	exec := NewExecutor(fastPolicy(3), validator, nil)
	_, err := exec.Post(context.Background(), server.URL, []byte(`{}`), nil)

	assert.NoError(t, err)
}

func TestExecutor_ContextCancelStopsRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	policy := Policy{
		MaxAttempts:     5,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     time.Second,
		Multiplier:      2.0,
	}
	exec := NewExecutor(policy, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := exec.Post(ctx, server.URL, []byte(`{}`), nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestExecutor_DefaultHeaders(t *testing.T) {
	var gotAuth, gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	exec := NewExecutor(fastPolicy(1), nil, nil)
	exec.SetDefaultHeaders(map[string]string{"Authorization": "Bearer token123"})

	_, err := exec.Post(context.Background(), server.URL, []byte(`{}`), nil)
	require.NoError(t, err)
	assert.Equal(t, "Bearer token123", gotAuth)
	assert.Equal(t, "application/json", gotContentType)
}

func TestExecutor_PerRequestHeadersOverrideDefaults(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("X-Trace")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	exec := NewExecutor(fastPolicy(1), nil, nil)
	exec.SetDefaultHeaders(map[string]string{"X-Trace": "default"})

	_, err := exec.Get(context.Background(), server.URL, map[string]string{"X-Trace": "override"})
	require.NoError(t, err)
	assert.Equal(t, "override", got)
}

func TestExecutor_TransportErrorRetryable(t *testing.T) {
	// No server listening at this address.
	exec := NewExecutor(fastPolicy(2), nil, nil)
	_, err := exec.Get(context.Background(), "http://127.0.0.1:1", nil)

	require.Error(t, err)
	assert.Equal(t, int64(1), exec.Metrics().RetryCount)
}

func TestPolicy_Normalize(t *testing.T) {
	p := Policy{}.normalize()
	def := DefaultPolicy()

	assert.Equal(t, def.MaxAttempts, p.MaxAttempts)
	assert.Equal(t, def.InitialInterval, p.InitialInterval)
	assert.Equal(t, def.MaxInterval, p.MaxInterval)
	assert.Equal(t, def.Multiplier, p.Multiplier)
}

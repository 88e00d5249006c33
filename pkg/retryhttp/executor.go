// Package retryhttp provides the retrying HTTP execution strategy used for
// outbound message delivery. One logical request is attempted up to
// MaxAttempts times with exponential backoff; a caller-supplied response
// validator detects application-level failures that must not be retried.
package retryhttp

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/kart-io/deliverycore/pkg/errors"
	"github.com/kart-io/deliverycore/pkg/logger"
)

// Policy defines retry behavior for one executor.
type Policy struct {
	MaxAttempts     int           `json:"max_attempts" yaml:"max_attempts"`
	InitialInterval time.Duration `json:"initial_interval" yaml:"initial_interval"`
	MaxInterval     time.Duration `json:"max_interval" yaml:"max_interval"`
	Multiplier      float64       `json:"multiplier" yaml:"multiplier"`
	Jitter          bool          `json:"jitter" yaml:"jitter"`
}

// DefaultPolicy returns the default retry policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2.0,
		Jitter:          true,
	}
}

// normalize replaces out-of-range values with defaults.
func (p Policy) normalize() Policy {
	def := DefaultPolicy()
	if p.MaxAttempts < 1 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = def.InitialInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = def.MaxInterval
	}
	if p.Multiplier < 1 {
		p.Multiplier = def.Multiplier
	}
	return p
}

// ResponseValidator inspects a successfully received response body for an
// application-level failure, e.g. a non-zero status code embedded in the
// JSON body. A non-nil return aborts the request immediately and is never
// retried, because it signals a deterministic application error.
type ResponseValidator func(statusCode int, body []byte) error

// Response carries the raw result of a successful request.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Metrics contains counters for executor operations.
type Metrics struct {
	RequestCount int64
	SuccessCount int64
	ErrorCount   int64
	RetryCount   int64
}

// Executor performs HTTP requests with bounded retries. It keeps no
// per-request state beyond the shared http.Client and atomic counters, so
// independent logical targets may call it concurrently.
type Executor struct {
	client         *http.Client
	policy         Policy
	validator      ResponseValidator
	defaultHeaders map[string]string
	logger         logger.Logger
	metrics        Metrics
}

// NewExecutor creates an executor with the given policy and validator.
// validator may be nil when no application-level check is needed.
func NewExecutor(policy Policy, validator ResponseValidator, log logger.Logger) *Executor {
	return NewExecutorWithClient(defaultHTTPClient(), policy, validator, log)
}

// NewExecutorWithClient creates an executor using a caller-supplied client,
// e.g. for custom TLS settings or test transports.
func NewExecutorWithClient(client *http.Client, policy Policy, validator ResponseValidator, log logger.Logger) *Executor {
	if log == nil {
		log = logger.Discard
	}
	if client == nil {
		client = defaultHTTPClient()
	}
	return &Executor{
		client:         client,
		policy:         policy.normalize(),
		validator:      validator,
		defaultHeaders: make(map[string]string),
		logger:         log,
	}
}

func defaultHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// SetDefaultHeaders sets headers applied to every request.
func (e *Executor) SetDefaultHeaders(headers map[string]string) {
	for k, v := range headers {
		e.defaultHeaders[k] = v
	}
}

// Do performs one logical request with up to MaxAttempts tries.
// Transport-level failures (connection errors, timeouts, non-2xx statuses)
// are retried with exponential backoff; validator failures and deterministic
// client errors are surfaced immediately.
func (e *Executor) Do(ctx context.Context, method, url string, payload []byte, headers map[string]string) (*Response, error) {
	atomic.AddInt64(&e.metrics.RequestCount, 1)

	var lastErr error
	var lastResp *Response
	interval := e.policy.InitialInterval

	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		resp, err := e.sendRequest(ctx, method, url, payload, headers)
		if err == nil {
			atomic.AddInt64(&e.metrics.SuccessCount, 1)
			return resp, nil
		}

		lastErr = err
		lastResp = resp
		if attempt == e.policy.MaxAttempts {
			break
		}

		if !errors.IsRetryable(err) {
			e.logger.Debug("Error is not retryable, aborting",
				"method", method, "url", url, "attempt", attempt, "error", err)
			atomic.AddInt64(&e.metrics.ErrorCount, 1)
			return resp, err
		}

		atomic.AddInt64(&e.metrics.RetryCount, 1)
		e.logger.Debug("Retrying request",
			"method", method, "url", url, "attempt", attempt, "interval", interval, "error", err)

		if err := e.wait(ctx, interval); err != nil {
			atomic.AddInt64(&e.metrics.ErrorCount, 1)
			return nil, err
		}

		interval = time.Duration(float64(interval) * e.policy.Multiplier)
		if interval > e.policy.MaxInterval {
			interval = e.policy.MaxInterval
		}
	}

	atomic.AddInt64(&e.metrics.ErrorCount, 1)
	e.logger.Error("All attempts failed",
		"method", method, "url", url, "attempts", e.policy.MaxAttempts, "error", lastErr)
	return lastResp, fmt.Errorf("request failed after %d attempts: %w", e.policy.MaxAttempts, lastErr)
}

// Get performs a GET request.
func (e *Executor) Get(ctx context.Context, url string, headers map[string]string) (*Response, error) {
	return e.Do(ctx, http.MethodGet, url, nil, headers)
}

// Post performs a POST request.
func (e *Executor) Post(ctx context.Context, url string, payload []byte, headers map[string]string) (*Response, error) {
	return e.Do(ctx, http.MethodPost, url, payload, headers)
}

// Put performs a PUT request.
func (e *Executor) Put(ctx context.Context, url string, payload []byte, headers map[string]string) (*Response, error) {
	return e.Do(ctx, http.MethodPut, url, payload, headers)
}

// Patch performs a PATCH request.
func (e *Executor) Patch(ctx context.Context, url string, payload []byte, headers map[string]string) (*Response, error) {
	return e.Do(ctx, http.MethodPatch, url, payload, headers)
}

// Delete performs a DELETE request.
func (e *Executor) Delete(ctx context.Context, url string, headers map[string]string) (*Response, error) {
	return e.Do(ctx, http.MethodDelete, url, nil, headers)
}

// sendRequest performs a single attempt.
func (e *Executor) sendRequest(ctx context.Context, method, url string, payload []byte, headers map[string]string) (*Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, errors.Classify(errors.KindClient, fmt.Errorf("failed to create request: %w", err), false)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "DeliveryCore/1.0")
	for k, v := range e.defaultHeaders {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	httpResp, err := e.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	bodyBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, errors.Classify(errors.KindNetwork, fmt.Errorf("failed to read response body: %w", err), true)
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       bodyBytes,
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return resp, errors.ClassifyStatus(httpResp.StatusCode,
			fmt.Errorf("HTTP %d: %s", httpResp.StatusCode, string(bodyBytes)))
	}

	if e.validator != nil {
		if err := e.validator(httpResp.StatusCode, bodyBytes); err != nil {
			return resp, errors.Classify(errors.KindValidation, err, false)
		}
	}

	return resp, nil
}

func classifyTransportError(err error) error {
	if ctxErr := contextError(err); ctxErr != nil {
		return errors.Classify(errors.KindTimeout, err, false)
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return errors.Classify(errors.KindTimeout, err, true)
	}
	return errors.Classify(errors.KindNetwork, err, true)
}

func contextError(err error) error {
	if stderrors.Is(err, context.Canceled) {
		return context.Canceled
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return context.DeadlineExceeded
	}
	return nil
}

// wait sleeps for the backoff interval, applying jitter when configured.
// No locks are held across this suspension point.
func (e *Executor) wait(ctx context.Context, interval time.Duration) error {
	waitTime := interval
	if e.policy.Jitter {
		jitterRange := float64(interval) * 0.25
		jitter := time.Duration((rand.Float64() - 0.5) * 2 * jitterRange)
		waitTime = interval + jitter
		if waitTime < 0 {
			waitTime = interval / 4
		}
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(waitTime):
		return nil
	}
}

// Metrics returns a snapshot of the executor counters.
func (e *Executor) Metrics() Metrics {
	return Metrics{
		RequestCount: atomic.LoadInt64(&e.metrics.RequestCount),
		SuccessCount: atomic.LoadInt64(&e.metrics.SuccessCount),
		ErrorCount:   atomic.LoadInt64(&e.metrics.ErrorCount),
		RetryCount:   atomic.LoadInt64(&e.metrics.RetryCount),
	}
}

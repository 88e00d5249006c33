package retryhttp

import (
	"context"
)

// Handle represents an in-flight asynchronous request.
type Handle struct {
	done chan struct{}
	resp *Response
	err  error
}

// Done returns a channel closed when the request completes.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the request completes or ctx is done, returning the
// request outcome. Waiting does not cancel the underlying request; cancel
// the context passed to DoAsync for that.
func (h *Handle) Wait(ctx context.Context) (*Response, error) {
	select {
	case <-h.done:
		return h.resp, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result returns the outcome without blocking. ok is false while the
// request is still in flight.
func (h *Handle) Result() (resp *Response, err error, ok bool) {
	select {
	case <-h.done:
		return h.resp, h.err, true
	default:
		return nil, nil, false
	}
}

// DoAsync runs Do on its own goroutine and returns a handle for the result.
// The control flow is identical to Do: the goroutine suspends only at the
// network call and the inter-attempt backoff wait. Handles for independent
// targets never interfere with each other.
func (e *Executor) DoAsync(ctx context.Context, method, url string, payload []byte, headers map[string]string) *Handle {
	h := &Handle{done: make(chan struct{})}
	go func() {
		defer close(h.done)
		h.resp, h.err = e.Do(ctx, method, url, payload, headers)
	}()
	return h
}

// PostAsync performs an asynchronous POST request.
func (e *Executor) PostAsync(ctx context.Context, url string, payload []byte, headers map[string]string) *Handle {
	return e.DoAsync(ctx, "POST", url, payload, headers)
}

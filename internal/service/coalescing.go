package service

import (
	"context"
	"sync"
	"time"

	"weatherpro/internal/models"
)

// inFlightFetch tracks a single upstream fetch that multiple callers may
// wait for.
type inFlightFetch struct {
	mu      sync.Mutex
	result  models.WeatherPayload
	err     error
	done    bool
	waiters []chan struct{}
}

// requestCoalescer collapses concurrent fetches for the same location key
// into one in-flight upstream call. Optional hardening against cache
// stampede; disabled by default.
type requestCoalescer struct {
	mu       sync.Mutex
	inFlight map[string]*inFlightFetch
	timeout  time.Duration
}

func newRequestCoalescer(timeout time.Duration) *requestCoalescer {
	return &requestCoalescer{
		inFlight: make(map[string]*inFlightFetch),
		timeout:  timeout,
	}
}

// GetOrDo joins an in-flight fetch for key when one exists, otherwise
// executes fn and shares its result with later arrivals. Respects context
// cancellation and the coalescer timeout while waiting.
func (rc *requestCoalescer) GetOrDo(ctx context.Context, key string, fn func() (models.WeatherPayload, error)) (models.WeatherPayload, error) {
	rc.mu.Lock()
	req, exists := rc.inFlight[key]
	if exists {
		rc.mu.Unlock()
		return rc.wait(ctx, req)
	}

	req = &inFlightFetch{}
	rc.inFlight[key] = req
	rc.mu.Unlock()

	go func() {
		result, err := fn()

		req.mu.Lock()
		req.result = result
		req.err = err
		req.done = true
		waiters := req.waiters
		req.waiters = nil
		req.mu.Unlock()

		for _, notify := range waiters {
			close(notify)
		}

		rc.mu.Lock()
		delete(rc.inFlight, key)
		rc.mu.Unlock()
	}()

	return rc.wait(ctx, req)
}

// wait blocks until the fetch completes, the context is cancelled, or the
// coalescer timeout elapses.
func (rc *requestCoalescer) wait(ctx context.Context, req *inFlightFetch) (models.WeatherPayload, error) {
	req.mu.Lock()
	if req.done {
		result, err := req.result, req.err
		req.mu.Unlock()
		return result, err
	}
	notify := make(chan struct{})
	req.waiters = append(req.waiters, notify)
	req.mu.Unlock()

	waitCtx, cancel := context.WithTimeout(ctx, rc.timeout)
	defer cancel()
	select {
	case <-notify:
		req.mu.Lock()
		result, err := req.result, req.err
		req.mu.Unlock()
		return result, err
	case <-waitCtx.Done():
		return models.WeatherPayload{}, waitCtx.Err()
	}
}

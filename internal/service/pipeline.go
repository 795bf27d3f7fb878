// Package service contains the fetch-cache-alert pipeline.
package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"weatherpro/internal/cache"
	"weatherpro/internal/models"
	"weatherpro/internal/observability"
	"weatherpro/internal/upstream"
)

// defaultSideEffectTimeout bounds the fire-and-forget cache write and alert
// sweep spawned after a successful fetch.
const defaultSideEffectTimeout = 10 * time.Second

// AlertEvaluator is the sweep invoked after every successful fresh fetch.
type AlertEvaluator interface {
	Evaluate(ctx context.Context, location string, current models.CurrentConditions) []int64
}

// Pipeline orchestrates a weather request: cache lookup, two-stage upstream
// fetch on miss or staleness, write-through cache update, and the alert
// evaluation sweep.
type Pipeline struct {
	client    upstream.Client
	cache     *cache.Cache
	alerts    AlertEvaluator
	logger    *zap.Logger
	stampede  *stampedeTracker
	coalescer *requestCoalescer // nil when coalescing is disabled

	sideEffectTimeout time.Duration
	sideEffects       sync.WaitGroup
}

// NewPipeline composes the pipeline. coalesceTimeout enables per-location
// request coalescing when positive together with coalesceEnabled; by default
// concurrent misses for one key each fetch independently (last write wins).
func NewPipeline(client upstream.Client, c *cache.Cache, alerts AlertEvaluator, logger *zap.Logger, coalesceEnabled bool, coalesceTimeout time.Duration) *Pipeline {
	var coalescer *requestCoalescer
	if coalesceEnabled && coalesceTimeout > 0 {
		coalescer = newRequestCoalescer(coalesceTimeout)
	}
	return &Pipeline{
		client:            client,
		cache:             c,
		alerts:            alerts,
		logger:            logger,
		stampede:          newStampedeTracker(),
		coalescer:         coalescer,
		sideEffectTimeout: defaultSideEffectTimeout,
	}
}

// GetWeather serves the payload for a location, from cache when the entry is
// inside the TTL window and from upstream otherwise. Cache and alert-store
// failures never reach the caller; only geocode and detail-fetch failures do.
func (p *Pipeline) GetWeather(ctx context.Context, location string) (models.WeatherPayload, error) {
	// Cache keys are exact, case-sensitive location names.
	key := strings.TrimSpace(location)
	observability.WeatherQueriesTotal.Inc()

	entry, ok, err := p.cache.Get(ctx, key)
	if err != nil {
		// A failing cache read is a miss: degrade to a fresh fetch.
		observability.CacheErrorsTotal.WithLabelValues("get").Inc()
		p.logger.Warn("cache read failed", zap.String("location", key), zap.Error(err))
	} else if ok && p.cache.Fresh(entry) {
		observability.CacheHitsTotal.WithLabelValues("weather").Inc()
		p.logger.Debug("cache hit", zap.String("location", key))
		return models.WeatherPayload{
			Location:  key,
			Raw:       entry.Payload,
			FetchedAt: entry.FetchedAt,
		}, nil
	}

	concurrentMisses := p.stampede.RecordMiss(key)
	defer p.stampede.RecordHit(key)
	if concurrentMisses > 1 {
		observability.CacheStampedeDetectedTotal.Inc()
		observability.CacheStampedeConcurrency.Observe(float64(concurrentMisses))
	}

	p.logger.Debug("cache miss, fetching upstream", zap.String("location", key))

	var payload models.WeatherPayload
	var fetchErr error
	if p.coalescer != nil {
		payload, fetchErr = p.coalescer.GetOrDo(ctx, key, func() (models.WeatherPayload, error) {
			return p.client.Fetch(ctx, key)
		})
	} else {
		payload, fetchErr = p.client.Fetch(ctx, key)
	}
	if fetchErr != nil {
		return models.WeatherPayload{}, fmt.Errorf("fetch weather for %s: %w", key, fetchErr)
	}

	// The payload is the response regardless of what happens to the side
	// effects below. Both run on their own bounded context so the caller
	// never waits on them.
	p.spawn(func(ctx context.Context) {
		if err := p.cache.Put(ctx, key, payload.Raw); err != nil {
			observability.CacheErrorsTotal.WithLabelValues("put").Inc()
			p.logger.Warn("cache write failed", zap.String("location", key), zap.Error(err))
		}
	})
	p.spawn(func(ctx context.Context) {
		p.alerts.Evaluate(ctx, key, payload.Current)
	})

	return payload, nil
}

// spawn runs fn on a detached context so side effects survive the request
// and cannot block the response.
func (p *Pipeline) spawn(fn func(ctx context.Context)) {
	p.sideEffects.Add(1)
	go func() {
		defer p.sideEffects.Done()
		ctx, cancel := context.WithTimeout(context.Background(), p.sideEffectTimeout)
		defer cancel()
		fn(ctx)
	}()
}

// Drain blocks until in-flight side effects complete. Call during graceful
// shutdown so pending cache writes and alert sweeps finish.
func (p *Pipeline) Drain() {
	p.sideEffects.Wait()
}

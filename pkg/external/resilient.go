package external

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/coda-va-server/internal/domain"
)

func newBreaker(name string, logger *logrus.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})
}

// ResilientCompleter wraps a StructuredCompleter with a circuit breaker and
// a cache-first read path. When the breaker is open, only cached responses
// are served; everything else fails fast without hitting the endpoint.
type ResilientCompleter struct {
	inner   domain.StructuredCompleter
	cache   *CompletionCache
	breaker *gobreaker.CircuitBreaker
	logger  *logrus.Logger
}

// NewResilientCompleter wraps inner. cache may be nil to disable caching.
func NewResilientCompleter(inner domain.StructuredCompleter, cache *CompletionCache, logger *logrus.Logger) *ResilientCompleter {
	return &ResilientCompleter{
		inner:   inner,
		cache:   cache,
		breaker: newBreaker("llm", logger),
		logger:  logger,
	}
}

// CompleteJSON serves from cache when possible, otherwise calls through the
// breaker and caches the successful payload.
func (r *ResilientCompleter) CompleteJSON(ctx context.Context, req domain.CompletionRequest) ([]byte, error) {
	if payload, hit, err := r.cache.Get(ctx, req); err == nil && hit {
		r.logger.WithField("schema", req.SchemaName).Debug("Completion cache hit")
		return payload, nil
	} else if err != nil {
		r.logger.WithError(err).Debug("Completion cache read failed")
	}

	result, err := r.breaker.Execute(func() (interface{}, error) {
		return r.inner.CompleteJSON(ctx, req)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, fmt.Errorf("completion service unavailable: %w", err)
		}
		return nil, err
	}

	payload := result.([]byte)
	if err := r.cache.Set(ctx, req, payload, 0); err != nil {
		r.logger.WithError(err).Debug("Completion cache write failed")
	}
	return payload, nil
}

var _ domain.StructuredCompleter = (*ResilientCompleter)(nil)

// ResilientInference wraps an InferenceService with a circuit breaker.
// Inference results are per-chunk and stateful on the service side, so they
// are never cached.
type ResilientInference struct {
	inner   domain.InferenceService
	breaker *gobreaker.CircuitBreaker
}

// NewResilientInference wraps inner with a circuit breaker.
func NewResilientInference(inner domain.InferenceService, logger *logrus.Logger) *ResilientInference {
	return &ResilientInference{
		inner:   inner,
		breaker: newBreaker("inference", logger),
	}
}

func (r *ResilientInference) Infer(ctx context.Context, req domain.InferenceRequest) (*domain.InferenceResult, error) {
	result, err := r.breaker.Execute(func() (interface{}, error) {
		return r.inner.Infer(ctx, req)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, fmt.Errorf("inference service unavailable: %w", err)
		}
		return nil, err
	}
	return result.(*domain.InferenceResult), nil
}

func (r *ResilientInference) Reset(ctx context.Context) error {
	return r.inner.Reset(ctx)
}

func (r *ResilientInference) Health(ctx context.Context) error {
	return r.inner.Health(ctx)
}

var _ domain.InferenceService = (*ResilientInference)(nil)

package research

import (
	"context"

	"github.com/sells-group/deep-research/internal/model"
	"github.com/sells-group/deep-research/internal/resilience"
)

// guardedSource wraps a Source with transient-error retries and a circuit
// breaker shared across all sources backed by the same provider API. A run
// still records the failure normally when the breaker rejects a call; the
// breaker only keeps a dead provider from burning retries on every source.
type guardedSource struct {
	inner Source
	cb    *resilience.CircuitBreaker
	retry resilience.RetryConfig
}

func (s *guardedSource) Name() string { return s.inner.Name() }
func (s *guardedSource) Type() string { return s.inner.Type() }

func (s *guardedSource) Search(ctx context.Context, query string, limit int) ([]model.SourceResult, error) {
	return resilience.ExecuteVal(ctx, s.cb, func(ctx context.Context) ([]model.SourceResult, error) {
		return resilience.DoVal(ctx, s.retry, func(ctx context.Context) ([]model.SourceResult, error) {
			return s.inner.Search(ctx, query, limit)
		})
	})
}

// guardedReader applies the same guard to URL content extraction.
type guardedReader struct {
	inner Reader
	cb    *resilience.CircuitBreaker
	retry resilience.RetryConfig
}

func (r *guardedReader) Read(ctx context.Context, url string) (model.SourceResult, error) {
	return resilience.ExecuteVal(ctx, r.cb, func(ctx context.Context) (model.SourceResult, error) {
		return resilience.DoVal(ctx, r.retry, func(ctx context.Context) (model.SourceResult, error) {
			return r.inner.Read(ctx, url)
		})
	})
}

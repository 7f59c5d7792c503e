package cache

import (
	"context"
	"log/slog"
	"time"

	"urlwarden/internal/domain"
	"urlwarden/internal/ports"
)

// opTimeout bounds every persistence call the cache makes. It is independent
// of the fetch time budget; a stalled backend degrades to a miss instead of
// hanging the request.
const opTimeout = 5 * time.Second

// Service is a read-through TTL cache over the persistence tier. Values are
// derived deterministically from the same fetch, so concurrent writes to the
// same key are last-write-wins and redundant work is tolerable.
type Service struct {
	store   ports.CacheRepository
	metrics ports.MetricsRepository
	ttl     time.Duration
	logger  *slog.Logger
	nowFn   func() time.Time
}

func New(store ports.CacheRepository, metrics ports.MetricsRepository, ttl time.Duration, logger *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Service{store: store, metrics: metrics, ttl: ttl, logger: logger, nowFn: time.Now}
}

// WithClock fixes the expiry clock. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.nowFn = now
	return s
}

// Get returns the cached result for key, treating expired entries and read
// failures as misses. Stale records are evicted lazily on lookup.
func (s *Service) Get(ctx context.Context, key string) (domain.AnalysisResult, bool) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rec, found, err := s.store.ReadCache(ctx, key)
	if err != nil {
		s.logger.Warn("cache read failed, treating as miss", "key", key, "error", err)
		s.count(ctx, "cache_misses")
		return domain.AnalysisResult{}, false
	}
	if !found {
		s.count(ctx, "cache_misses")
		return domain.AnalysisResult{}, false
	}
	if rec.Expired(s.nowFn()) {
		if err := s.store.DeleteCache(ctx, key); err != nil {
			s.logger.Warn("stale entry eviction failed", "key", key, "error", err)
		}
		s.count(ctx, "cache_misses")
		return domain.AnalysisResult{}, false
	}
	s.count(ctx, "cache_hits")
	return rec.Result, true
}

// Put stores a fresh result under its normalized URL, overwriting any prior
// entry, and returns the result with the configured TTL stamped so callers
// hand out the same document a later cache read would. A write failure
// degrades to "no caching this round" and is only logged.
func (s *Service) Put(ctx context.Context, result domain.AnalysisResult) domain.AnalysisResult {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	ttlSeconds := int(s.ttl.Seconds())
	result.TTLSeconds = ttlSeconds
	rec := domain.CacheRecord{
		Key:        result.URL,
		Result:     result,
		StoredAt:   s.nowFn().UTC(),
		TTLSeconds: ttlSeconds,
	}
	if err := s.store.WriteCache(ctx, rec); err != nil {
		s.logger.Warn("cache write failed", "key", rec.Key, "error", err)
	}
	return result
}

func (s *Service) count(ctx context.Context, name string) {
	if s.metrics != nil {
		_ = s.metrics.IncrMetric(ctx, name, 1)
	}
}

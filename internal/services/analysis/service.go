package analysis

import (
	"context"
	"errors"
	"log/slog"

	"urlwarden/internal/domain"
	"urlwarden/internal/ports"
	"urlwarden/internal/services/cache"
	"urlwarden/internal/services/classifier"
	"urlwarden/internal/services/fetcher"
	"urlwarden/internal/urlutil"
)

// Service is the engine facade: entitlement gate in front of the per-URL
// cache -> fetch -> classify -> cache pipeline.
type Service struct {
	gate       ports.Gate
	fetcher    *fetcher.Fetcher
	classifier *classifier.Classifier
	cache      *cache.Service
	metrics    ports.MetricsRepository
	logger     *slog.Logger
}

func New(gate ports.Gate, f *fetcher.Fetcher, c *classifier.Classifier, cch *cache.Service, metrics ports.MetricsRepository, logger *slog.Logger) *Service {
	return &Service{gate: gate, fetcher: f, classifier: c, cache: cch, metrics: metrics, logger: logger}
}

// Analyze authorizes the requester, then runs the pipeline for one URL.
func (s *Service) Analyze(ctx context.Context, rawURL string, req domain.Requester) (domain.AnalysisResult, error) {
	dec, err := s.gate.Authorize(ctx, req.ID, req.GroupID)
	if err != nil {
		return domain.AnalysisResult{}, err
	}
	if !dec.Allowed {
		return domain.AnalysisResult{}, &domain.DeniedError{Reason: dec.Reason}
	}
	return s.Process(ctx, rawURL)
}

// CheckEntitlement is exposed standalone so front-ends can gate command
// availability before attempting analysis.
func (s *Service) CheckEntitlement(ctx context.Context, req domain.Requester) (domain.Decision, error) {
	return s.gate.Authorize(ctx, req.ID, req.GroupID)
}

// Process runs the pipeline for one URL without an entitlement check. The
// batch coordinator dispatches onto this directly. A failed fetch produces an
// errored result, not an error; only malformed input is rejected outright.
func (s *Service) Process(ctx context.Context, rawURL string) (domain.AnalysisResult, error) {
	key, err := urlutil.Normalize(rawURL)
	if err != nil {
		return domain.AnalysisResult{}, err
	}
	if res, ok := s.cache.Get(ctx, key); ok {
		return res, nil
	}

	s.count(ctx, "analyses_total")
	fres, ferr := s.fetcher.Fetch(ctx, key)
	if errors.Is(ferr, domain.ErrMalformedURL) {
		return domain.AnalysisResult{}, ferr
	}
	if fres.Failed {
		s.count(ctx, "fetch_failures")
		s.logger.Debug("fetch failed", "url", key, "error", fres.Error)
	}

	result := s.classifier.Classify(fres)
	if !result.Errored {
		result = s.cache.Put(ctx, result)
	}
	return result, nil
}

func (s *Service) count(ctx context.Context, name string) {
	if s.metrics != nil {
		_ = s.metrics.IncrMetric(ctx, name, 1)
	}
}

package ports

import (
	"context"

	"urlwarden/internal/domain"
)

// Analyzer is the single-URL entry point consumed by front-end adapters.
type Analyzer interface {
	Analyze(ctx context.Context, rawURL string, req domain.Requester) (domain.AnalysisResult, error)
	CheckEntitlement(ctx context.Context, req domain.Requester) (domain.Decision, error)
}

// Pipeline runs the cache -> fetch -> classify -> cache path for one URL
// without any entitlement check. The batch coordinator dispatches onto it.
type Pipeline interface {
	Process(ctx context.Context, rawURL string) (domain.AnalysisResult, error)
}

// Gate decides whether a requester (individual or group) may invoke analysis.
type Gate interface {
	Authorize(ctx context.Context, requesterID, groupID string) (domain.Decision, error)
}

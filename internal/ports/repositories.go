package ports

import (
	"context"

	"urlwarden/internal/domain"
)

// CacheRepository stores analysis results keyed by normalized URL. Writes are
// last-write-wins; single-key writes are atomic on both backends.
type CacheRepository interface {
	ReadCache(ctx context.Context, key string) (rec domain.CacheRecord, found bool, err error)
	WriteCache(ctx context.Context, rec domain.CacheRecord) error
	DeleteCache(ctx context.Context, key string) error
	ListCache(ctx context.Context) ([]domain.CacheRecord, error)
}

// EntitlementRepository stores individual subscription records by subject.
type EntitlementRepository interface {
	ReadEntitlement(ctx context.Context, subject string) (rec domain.EntitlementRecord, found bool, err error)
	WriteEntitlement(ctx context.Context, rec domain.EntitlementRecord) error
	ListEntitlements(ctx context.Context) ([]domain.EntitlementRecord, error)
}

// GroupRepository stores group approvals, indefinite until revoked.
type GroupRepository interface {
	IsGroupApproved(ctx context.Context, groupID string) (bool, error)
	ApproveGroup(ctx context.Context, groupID string) error
	RevokeGroup(ctx context.Context, groupID string) error
	ListApprovedGroups(ctx context.Context) ([]string, error)
}

// MetricsRepository accumulates named usage counters.
type MetricsRepository interface {
	IncrMetric(ctx context.Context, name string, delta int64) error
	Metrics(ctx context.Context) (map[string]int64, error)
}

// Store is the uniform persistence tier implemented by the postgres and
// file-backed backends. Selected once at startup; never re-probed per call.
type Store interface {
	CacheRepository
	EntitlementRepository
	GroupRepository
	MetricsRepository
	Stats(ctx context.Context) (domain.StoreStats, error)
	Vacuum(ctx context.Context) (removed int, err error)
	Close()
}

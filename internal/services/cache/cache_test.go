package cache_test

import (
	"context"
	"testing"
	"time"

	"urlwarden/internal/adapters/filestore"
	"urlwarden/internal/domain"
	"urlwarden/internal/logging"
	"urlwarden/internal/services/cache"
)

func newCache(t *testing.T, ttl time.Duration, now *time.Time) (*cache.Service, *filestore.Store) {
	t.Helper()
	store, err := filestore.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	svc := cache.New(store, store, ttl, logging.New("error")).WithClock(func() time.Time { return *now })
	return svc, store
}

func TestRoundTrip(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newCache(t, time.Hour, &now)
	ctx := context.Background()

	result := domain.AnalysisResult{
		URL:            "https://example.com/checkout",
		Gateways:       []domain.GatewayFinding{{Gateway: "paypal", Confidence: "high"}},
		CatalogVersion: "builtin-1",
		AnalyzedAt:     now,
	}
	stamped := svc.Put(ctx, result)
	if stamped.TTLSeconds != 3600 {
		t.Fatalf("put must return the ttl-stamped result, got %d", stamped.TTLSeconds)
	}

	got, ok := svc.Get(ctx, result.URL)
	if !ok {
		t.Fatal("expected cache hit immediately after put")
	}
	if got.URL != result.URL || len(got.Gateways) != 1 || got.Gateways[0].Gateway != "paypal" {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
	if got.TTLSeconds != 3600 {
		t.Fatalf("expected configured ttl stamped on result, got %d", got.TTLSeconds)
	}
}

func TestExpiryIsAMiss(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc, store := newCache(t, time.Minute, &now)
	ctx := context.Background()

	svc.Put(ctx, domain.AnalysisResult{URL: "https://example.com/"})

	now = now.Add(61 * time.Second)
	if _, ok := svc.Get(ctx, "https://example.com/"); ok {
		t.Fatal("expired entry must read as a miss")
	}

	// lazy eviction removed the stale record
	if _, found, err := store.ReadCache(ctx, "https://example.com/"); err != nil || found {
		t.Fatalf("stale record should be evicted (found=%v err=%v)", found, err)
	}
}

// boundedStore records whether each repository call arrived with a deadline.
type boundedStore struct {
	readBounded  bool
	writeBounded bool
}

func (s *boundedStore) ReadCache(ctx context.Context, key string) (domain.CacheRecord, bool, error) {
	_, s.readBounded = ctx.Deadline()
	return domain.CacheRecord{}, false, nil
}

func (s *boundedStore) WriteCache(ctx context.Context, rec domain.CacheRecord) error {
	_, s.writeBounded = ctx.Deadline()
	return nil
}

func (s *boundedStore) DeleteCache(ctx context.Context, key string) error { return nil }

func (s *boundedStore) ListCache(ctx context.Context) ([]domain.CacheRecord, error) {
	return nil, nil
}

func TestPersistenceCallsAreBounded(t *testing.T) {
	store := &boundedStore{}
	svc := cache.New(store, nil, time.Hour, logging.New("error"))
	ctx := context.Background()

	svc.Get(ctx, "https://example.com/")
	if !store.readBounded {
		t.Fatal("cache read must carry an operation deadline even on a deadline-free context")
	}
	svc.Put(ctx, domain.AnalysisResult{URL: "https://example.com/"})
	if !store.writeBounded {
		t.Fatal("cache write must carry an operation deadline even on a deadline-free context")
	}
}

func TestLastWriteWins(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newCache(t, time.Hour, &now)
	ctx := context.Background()

	svc.Put(ctx, domain.AnalysisResult{URL: "https://example.com/", CatalogVersion: "v1"})
	svc.Put(ctx, domain.AnalysisResult{URL: "https://example.com/", CatalogVersion: "v2"})

	got, ok := svc.Get(ctx, "https://example.com/")
	if !ok || got.CatalogVersion != "v2" {
		t.Fatalf("expected last write to win, got %+v ok=%v", got, ok)
	}
}

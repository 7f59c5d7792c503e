package storage_test

import (
	"context"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"urlwarden/internal/adapters/filestore"
	"urlwarden/internal/domain"
	"urlwarden/internal/logging"
	"urlwarden/internal/storage"
)

func seedSource(t *testing.T) *filestore.Store {
	t.Helper()
	src, err := filestore.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	expires := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	records := []domain.CacheRecord{
		{Key: "https://a.example.com/", Result: domain.AnalysisResult{URL: "https://a.example.com/"}, StoredAt: expires, TTLSeconds: 60},
		{Key: "https://b.example.com/", Result: domain.AnalysisResult{URL: "https://b.example.com/"}, StoredAt: expires, TTLSeconds: 60},
	}
	for _, rec := range records {
		if err := src.WriteCache(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}
	if err := src.WriteEntitlement(ctx, domain.EntitlementRecord{Subject: "u1", Kind: domain.KindIndividual, ExpiresAt: &expires}); err != nil {
		t.Fatal(err)
	}
	if err := src.ApproveGroup(ctx, "g1"); err != nil {
		t.Fatal(err)
	}
	return src
}

type snapshot struct {
	cache  []domain.CacheRecord
	ents   []domain.EntitlementRecord
	groups []string
}

func snap(t *testing.T, store *filestore.Store) snapshot {
	t.Helper()
	ctx := context.Background()
	cache, err := store.ListCache(ctx)
	if err != nil {
		t.Fatal(err)
	}
	ents, err := store.ListEntitlements(ctx)
	if err != nil {
		t.Fatal(err)
	}
	groups, err := store.ListApprovedGroups(ctx)
	if err != nil {
		t.Fatal(err)
	}
	return snapshot{cache: cache, ents: ents, groups: groups}
}

func TestMigrateCopiesAllCollections(t *testing.T) {
	src := seedSource(t)
	dst, err := filestore.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if err := storage.Migrate(context.Background(), src, dst); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if !reflect.DeepEqual(snap(t, src), snap(t, dst)) {
		t.Fatal("destination does not match source after migration")
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	src := seedSource(t)
	dst, err := filestore.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := storage.Migrate(ctx, src, dst); err != nil {
		t.Fatal(err)
	}
	once := snap(t, dst)
	if err := storage.Migrate(ctx, src, dst); err != nil {
		t.Fatal(err)
	}
	twice := snap(t, dst)
	if !reflect.DeepEqual(once, twice) {
		t.Fatal("running migration twice changed the record set")
	}
}

func TestOpenFallsBackWhenPrimaryUnreachable(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.Open(context.Background(), storage.Config{
		DatabaseURL: "postgres://nobody@127.0.0.1:1/unreachable?connect_timeout=1",
		Dir:         dir,
	}, logging.New("error"))
	if err != nil {
		t.Fatalf("fallback must not surface a connectivity error: %v", err)
	}
	defer store.Close()

	// the selected backend serves all operations for the rest of the run
	ctx := context.Background()
	if err := store.WriteCache(ctx, domain.CacheRecord{Key: "k"}); err != nil {
		t.Fatalf("write on fallback backend: %v", err)
	}
	if _, found, err := store.ReadCache(ctx, "k"); err != nil || !found {
		t.Fatalf("read on fallback backend (found=%v err=%v)", found, err)
	}
	stats, err := store.Stats(ctx)
	if err != nil || stats.Backend != "filestore" {
		t.Fatalf("expected filestore backend, got %+v err=%v", stats, err)
	}
}

func TestOpenPrefersLocalWhenConfigured(t *testing.T) {
	store, err := storage.Open(context.Background(), storage.Config{
		Dir:         t.TempDir(),
		PreferLocal: true,
	}, slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	stats, err := store.Stats(context.Background())
	if err != nil || stats.Backend != "filestore" {
		t.Fatalf("expected filestore backend, got %+v err=%v", stats, err)
	}
}

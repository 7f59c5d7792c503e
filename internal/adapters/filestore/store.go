// Package filestore is the local file-backed persistence backend. Each
// collection lives in one JSON record file addressable by key, stable enough
// for the postgres backend's migration routine to read directly.
package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"urlwarden/internal/domain"
)

const (
	cacheFile        = "cache.json"
	entitlementsFile = "entitlements.json"
	groupsFile       = "approved_groups.json"
	metricsFile      = "metrics.json"
)

// Store serializes all access behind one mutex; single-key writes are atomic
// via a temp-file rename.
type Store struct {
	dir   string
	mu    sync.Mutex
	nowFn func() time.Time
}

func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &domain.PersistenceError{Op: "open " + dir, Cause: err}
	}
	return &Store{dir: dir, nowFn: time.Now}, nil
}

func (s *Store) Close() {}

// WithClock fixes the vacuum clock. Used by tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.nowFn = now
	return s
}

// CacheRepository

func (s *Store) ReadCache(ctx context.Context, key string) (domain.CacheRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := loadMap[domain.CacheRecord](s.path(cacheFile))
	if err != nil {
		return domain.CacheRecord{}, false, err
	}
	rec, ok := recs[key]
	return rec, ok, nil
}

func (s *Store) WriteCache(ctx context.Context, rec domain.CacheRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateMap(s.path(cacheFile), func(recs map[string]domain.CacheRecord) {
		recs[rec.Key] = rec
	})
}

func (s *Store) DeleteCache(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateMap(s.path(cacheFile), func(recs map[string]domain.CacheRecord) {
		delete(recs, key)
	})
}

func (s *Store) ListCache(ctx context.Context) ([]domain.CacheRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := loadMap[domain.CacheRecord](s.path(cacheFile))
	if err != nil {
		return nil, err
	}
	out := make([]domain.CacheRecord, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// EntitlementRepository

func (s *Store) ReadEntitlement(ctx context.Context, subject string) (domain.EntitlementRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := loadMap[domain.EntitlementRecord](s.path(entitlementsFile))
	if err != nil {
		return domain.EntitlementRecord{}, false, err
	}
	rec, ok := recs[subject]
	return rec, ok, nil
}

func (s *Store) WriteEntitlement(ctx context.Context, rec domain.EntitlementRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateMap(s.path(entitlementsFile), func(recs map[string]domain.EntitlementRecord) {
		recs[rec.Subject] = rec
	})
}

func (s *Store) ListEntitlements(ctx context.Context) ([]domain.EntitlementRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := loadMap[domain.EntitlementRecord](s.path(entitlementsFile))
	if err != nil {
		return nil, err
	}
	out := make([]domain.EntitlementRecord, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Subject < out[j].Subject })
	return out, nil
}

// GroupRepository

func (s *Store) IsGroupApproved(ctx context.Context, groupID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := loadMap[time.Time](s.path(groupsFile))
	if err != nil {
		return false, err
	}
	_, ok := recs[groupID]
	return ok, nil
}

func (s *Store) ApproveGroup(ctx context.Context, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowFn().UTC()
	return updateMap(s.path(groupsFile), func(recs map[string]time.Time) {
		if _, ok := recs[groupID]; !ok {
			recs[groupID] = now
		}
	})
}

func (s *Store) RevokeGroup(ctx context.Context, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateMap(s.path(groupsFile), func(recs map[string]time.Time) {
		delete(recs, groupID)
	})
}

func (s *Store) ListApprovedGroups(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := loadMap[time.Time](s.path(groupsFile))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(recs))
	for id := range recs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// MetricsRepository

func (s *Store) IncrMetric(ctx context.Context, name string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateMap(s.path(metricsFile), func(recs map[string]int64) {
		recs[name] += delta
	})
}

func (s *Store) Metrics(ctx context.Context) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return loadMap[int64](s.path(metricsFile))
}

// Maintenance

func (s *Store) Stats(ctx context.Context) (domain.StoreStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cache, err := loadMap[domain.CacheRecord](s.path(cacheFile))
	if err != nil {
		return domain.StoreStats{}, err
	}
	ents, err := loadMap[domain.EntitlementRecord](s.path(entitlementsFile))
	if err != nil {
		return domain.StoreStats{}, err
	}
	groups, err := loadMap[time.Time](s.path(groupsFile))
	if err != nil {
		return domain.StoreStats{}, err
	}
	counters, err := loadMap[int64](s.path(metricsFile))
	if err != nil {
		return domain.StoreStats{}, err
	}
	return domain.StoreStats{
		Backend:        "filestore",
		CacheEntries:   len(cache),
		Entitlements:   len(ents),
		ApprovedGroups: len(groups),
		Counters:       counters,
	}, nil
}

// Vacuum removes expired cache records and reports how many were dropped.
func (s *Store) Vacuum(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowFn()
	removed := 0
	err := updateMap(s.path(cacheFile), func(recs map[string]domain.CacheRecord) {
		for key, rec := range recs {
			if rec.Expired(now) {
				delete(recs, key)
				removed++
			}
		}
	})
	return removed, err
}

func (s *Store) path(name string) string { return filepath.Join(s.dir, name) }

func loadMap[T any](path string) (map[string]T, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]T{}, nil
	}
	if err != nil {
		return nil, &domain.PersistenceError{Op: "read " + filepath.Base(path), Cause: err}
	}
	out := map[string]T{}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &domain.PersistenceError{Op: "decode " + filepath.Base(path), Cause: err}
	}
	return out, nil
}

func updateMap[T any](path string, mutate func(map[string]T)) error {
	recs, err := loadMap[T](path)
	if err != nil {
		return err
	}
	mutate(recs)
	return saveMap(path, recs)
}

func saveMap[T any](path string, recs map[string]T) error {
	raw, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return &domain.PersistenceError{Op: "encode " + filepath.Base(path), Cause: err}
	}
	tmp := fmt.Sprintf("%s.tmp.%d", path, os.Getpid())
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return &domain.PersistenceError{Op: "write " + filepath.Base(path), Cause: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return &domain.PersistenceError{Op: "rename " + filepath.Base(path), Cause: err}
	}
	return nil
}

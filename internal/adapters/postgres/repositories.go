package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"urlwarden/internal/domain"
)

// opTimeout bounds every store operation against the networked backend. It is
// documented separately from the fetch time budget; a stalled database
// surfaces as a PersistenceError instead of hanging the caller.
const opTimeout = 5 * time.Second

func opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, opTimeout)
}

func perr(op string, err error) error {
	return &domain.PersistenceError{Op: op, Cause: err}
}

// CacheRepository

func (db *DB) ReadCache(ctx context.Context, key string) (domain.CacheRecord, bool, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()
	rec := domain.CacheRecord{Key: key}
	var raw []byte
	err := db.Pool.QueryRow(ctx, `
        SELECT result, stored_at, ttl_seconds FROM url_cache WHERE key = $1
    `, key).Scan(&raw, &rec.StoredAt, &rec.TTLSeconds)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.CacheRecord{}, false, nil
	}
	if err != nil {
		return domain.CacheRecord{}, false, perr("read cache", err)
	}
	if err := json.Unmarshal(raw, &rec.Result); err != nil {
		return domain.CacheRecord{}, false, perr("decode cache record", err)
	}
	return rec, true, nil
}

func (db *DB) WriteCache(ctx context.Context, rec domain.CacheRecord) error {
	ctx, cancel := opCtx(ctx)
	defer cancel()
	raw, err := json.Marshal(rec.Result)
	if err != nil {
		return perr("encode cache record", err)
	}
	_, err = db.Pool.Exec(ctx, `
        INSERT INTO url_cache (key, result, stored_at, ttl_seconds)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (key) DO UPDATE
        SET result = EXCLUDED.result, stored_at = EXCLUDED.stored_at, ttl_seconds = EXCLUDED.ttl_seconds
    `, rec.Key, raw, rec.StoredAt, rec.TTLSeconds)
	if err != nil {
		return perr("write cache", err)
	}
	return nil
}

func (db *DB) DeleteCache(ctx context.Context, key string) error {
	ctx, cancel := opCtx(ctx)
	defer cancel()
	if _, err := db.Pool.Exec(ctx, `DELETE FROM url_cache WHERE key = $1`, key); err != nil {
		return perr("delete cache", err)
	}
	return nil
}

func (db *DB) ListCache(ctx context.Context) ([]domain.CacheRecord, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()
	rows, err := db.Pool.Query(ctx, `SELECT key, result, stored_at, ttl_seconds FROM url_cache ORDER BY key`)
	if err != nil {
		return nil, perr("list cache", err)
	}
	defer rows.Close()
	var out []domain.CacheRecord
	for rows.Next() {
		var rec domain.CacheRecord
		var raw []byte
		if err := rows.Scan(&rec.Key, &raw, &rec.StoredAt, &rec.TTLSeconds); err != nil {
			return nil, perr("list cache", err)
		}
		if err := json.Unmarshal(raw, &rec.Result); err != nil {
			return nil, perr("decode cache record", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// EntitlementRepository

func (db *DB) ReadEntitlement(ctx context.Context, subject string) (domain.EntitlementRecord, bool, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()
	var rec domain.EntitlementRecord
	err := db.Pool.QueryRow(ctx, `
        SELECT subject, kind, expires_at FROM entitlements WHERE subject = $1
    `, subject).Scan(&rec.Subject, &rec.Kind, &rec.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.EntitlementRecord{}, false, nil
	}
	if err != nil {
		return domain.EntitlementRecord{}, false, perr("read entitlement", err)
	}
	return rec, true, nil
}

func (db *DB) WriteEntitlement(ctx context.Context, rec domain.EntitlementRecord) error {
	ctx, cancel := opCtx(ctx)
	defer cancel()
	_, err := db.Pool.Exec(ctx, `
        INSERT INTO entitlements (subject, kind, expires_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (subject) DO UPDATE
        SET kind = EXCLUDED.kind, expires_at = EXCLUDED.expires_at
    `, rec.Subject, rec.Kind, rec.ExpiresAt)
	if err != nil {
		return perr("write entitlement", err)
	}
	return nil
}

func (db *DB) ListEntitlements(ctx context.Context) ([]domain.EntitlementRecord, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()
	rows, err := db.Pool.Query(ctx, `SELECT subject, kind, expires_at FROM entitlements ORDER BY subject`)
	if err != nil {
		return nil, perr("list entitlements", err)
	}
	defer rows.Close()
	var out []domain.EntitlementRecord
	for rows.Next() {
		var rec domain.EntitlementRecord
		if err := rows.Scan(&rec.Subject, &rec.Kind, &rec.ExpiresAt); err != nil {
			return nil, perr("list entitlements", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GroupRepository

func (db *DB) IsGroupApproved(ctx context.Context, groupID string) (bool, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()
	var approved bool
	err := db.Pool.QueryRow(ctx, `
        SELECT EXISTS (SELECT 1 FROM approved_groups WHERE group_id = $1)
    `, groupID).Scan(&approved)
	if err != nil {
		return false, perr("read group approval", err)
	}
	return approved, nil
}

func (db *DB) ApproveGroup(ctx context.Context, groupID string) error {
	ctx, cancel := opCtx(ctx)
	defer cancel()
	_, err := db.Pool.Exec(ctx, `
        INSERT INTO approved_groups (group_id) VALUES ($1)
        ON CONFLICT (group_id) DO NOTHING
    `, groupID)
	if err != nil {
		return perr("approve group", err)
	}
	return nil
}

func (db *DB) RevokeGroup(ctx context.Context, groupID string) error {
	ctx, cancel := opCtx(ctx)
	defer cancel()
	if _, err := db.Pool.Exec(ctx, `DELETE FROM approved_groups WHERE group_id = $1`, groupID); err != nil {
		return perr("revoke group", err)
	}
	return nil
}

func (db *DB) ListApprovedGroups(ctx context.Context) ([]string, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()
	rows, err := db.Pool.Query(ctx, `SELECT group_id FROM approved_groups ORDER BY group_id`)
	if err != nil {
		return nil, perr("list groups", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, perr("list groups", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// MetricsRepository

func (db *DB) IncrMetric(ctx context.Context, name string, delta int64) error {
	ctx, cancel := opCtx(ctx)
	defer cancel()
	_, err := db.Pool.Exec(ctx, `
        INSERT INTO metrics (name, value) VALUES ($1, $2)
        ON CONFLICT (name) DO UPDATE SET value = metrics.value + EXCLUDED.value
    `, name, delta)
	if err != nil {
		return perr("incr metric", err)
	}
	return nil
}

func (db *DB) Metrics(ctx context.Context) (map[string]int64, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()
	rows, err := db.Pool.Query(ctx, `SELECT name, value FROM metrics`)
	if err != nil {
		return nil, perr("read metrics", err)
	}
	defer rows.Close()
	out := map[string]int64{}
	for rows.Next() {
		var name string
		var value int64
		if err := rows.Scan(&name, &value); err != nil {
			return nil, perr("read metrics", err)
		}
		out[name] = value
	}
	return out, rows.Err()
}

// Maintenance

func (db *DB) Stats(ctx context.Context) (domain.StoreStats, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()
	stats := domain.StoreStats{Backend: "postgres"}
	err := db.Pool.QueryRow(ctx, `
        SELECT
            (SELECT count(*) FROM url_cache),
            (SELECT count(*) FROM entitlements),
            (SELECT count(*) FROM approved_groups)
    `).Scan(&stats.CacheEntries, &stats.Entitlements, &stats.ApprovedGroups)
	if err != nil {
		return domain.StoreStats{}, perr("stats", err)
	}
	counters, err := db.Metrics(ctx)
	if err != nil {
		return domain.StoreStats{}, err
	}
	stats.Counters = counters
	return stats, nil
}

// Vacuum deletes cache rows whose TTL window has passed.
func (db *DB) Vacuum(ctx context.Context) (int, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()
	tag, err := db.Pool.Exec(ctx, `
        DELETE FROM url_cache
        WHERE stored_at + make_interval(secs => ttl_seconds) <= now()
    `)
	if err != nil {
		return 0, perr("vacuum", err)
	}
	return int(tag.RowsAffected()), nil
}

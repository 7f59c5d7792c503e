// Package storage selects the persistence backend once at process start:
// the postgres document store when reachable, the local file-backed store
// otherwise. There is no per-call re-probing.
package storage

import (
	"context"
	"log/slog"

	"urlwarden/internal/adapters/filestore"
	"urlwarden/internal/adapters/postgres"
	"urlwarden/internal/ports"
)

type Config struct {
	DatabaseURL string
	Dir         string
	PreferLocal bool
}

// Open probes the networked backend and falls back to local files on
// connection failure, logging the fallback once. When postgres is selected,
// any existing local records are migrated into it.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (ports.Store, error) {
	local, err := filestore.Open(cfg.Dir)
	if err != nil {
		return nil, err
	}

	if cfg.PreferLocal || cfg.DatabaseURL == "" {
		logger.Info("using local file storage", "dir", cfg.Dir)
		return local, nil
	}

	db, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Warn("primary store unreachable, falling back to local file storage", "dir", cfg.Dir, "error", err)
		return local, nil
	}

	if err := Migrate(ctx, local, db); err != nil {
		logger.Warn("local record migration failed", "error", err)
	}
	logger.Info("using postgres storage")
	return db, nil
}

// Migrate copies cache, entitlement, and group-approval records from one
// backend into another. Writes are keyed, so running it twice yields the
// same record set as running it once. Usage counters are backend-local and
// are not migrated; merging them twice would double-count.
func Migrate(ctx context.Context, from, to ports.Store) error {
	cache, err := from.ListCache(ctx)
	if err != nil {
		return err
	}
	for _, rec := range cache {
		if err := to.WriteCache(ctx, rec); err != nil {
			return err
		}
	}

	ents, err := from.ListEntitlements(ctx)
	if err != nil {
		return err
	}
	for _, rec := range ents {
		if err := to.WriteEntitlement(ctx, rec); err != nil {
			return err
		}
	}

	groups, err := from.ListApprovedGroups(ctx)
	if err != nil {
		return err
	}
	for _, id := range groups {
		if err := to.ApproveGroup(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

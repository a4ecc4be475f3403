package cache

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"qik/internal/qikerr"
)

// Index is an additive, non-authoritative acceleration structure for
// batch `--cache-status` queries: a sqlite table recording which
// fingerprints have been seen locally, so a status query over hundreds of
// commands doesn't need one stat() per command per cache backend. It is
// silently rebuildable — a missing or stale Index degrades to a normal
// per-entry Has() probe, never to a wrong answer (spec §9's cache-status
// open question). Grounded on the sqlite-open idiom in
// mraakashshah-oro/cmd/oro/db.go (WAL mode, busy_timeout, ping-before-use).
type Index struct {
	db *sql.DB
}

// OpenIndex opens (creating if necessary) the probe index at path.
func OpenIndex(path string) (*Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, qikerr.Wrap(qikerr.CacheIO, path, err)
	}

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, qikerr.Wrap(qikerr.CacheIO, path, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, qikerr.Wrap(qikerr.CacheIO, path, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, qikerr.Wrap(qikerr.CacheIO, path, err)
	}
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS seen_fingerprints (
			fingerprint TEXT PRIMARY KEY,
			cache_type  TEXT NOT NULL,
			command     TEXT NOT NULL
		)`); err != nil {
		_ = db.Close()
		return nil, qikerr.Wrap(qikerr.CacheIO, path, err)
	}

	return &Index{db: db}, nil
}

func (idx *Index) Close() error { return idx.db.Close() }

// Record marks a fingerprint as observed for a given command/cache-type
// pair, called after a real Cache.Has/Get/Put confirms it. The index is
// never itself the source of truth for a status decision.
func (idx *Index) Record(ctx context.Context, fingerprint, cacheType, command string) error {
	_, err := idx.db.ExecContext(ctx,
		`INSERT INTO seen_fingerprints (fingerprint, cache_type, command) VALUES (?, ?, ?)
		 ON CONFLICT(fingerprint) DO UPDATE SET cache_type = excluded.cache_type, command = excluded.command`,
		fingerprint, cacheType, command)
	if err != nil {
		return qikerr.Wrap(qikerr.CacheIO, fingerprint, err)
	}
	return nil
}

// Forget removes stale rows once known and gone stale — the index's
// entries are hints, not commitments, so eviction never needs to be
// perfectly synchronized with the underlying cache backend.
func (idx *Index) Forget(ctx context.Context, fingerprint string) error {
	_, err := idx.db.ExecContext(ctx, `DELETE FROM seen_fingerprints WHERE fingerprint = ?`, fingerprint)
	if err != nil {
		return qikerr.Wrap(qikerr.CacheIO, fingerprint, err)
	}
	return nil
}

// BatchSeen returns the subset of the given fingerprints the index has a
// record for. Callers still must not treat this as authoritative — it
// narrows the set of fingerprints that need a real Has() call, it does
// not replace one.
func (idx *Index) BatchSeen(ctx context.Context, fingerprints []string) (map[string]bool, error) {
	seen := make(map[string]bool, len(fingerprints))
	if len(fingerprints) == 0 {
		return seen, nil
	}

	placeholders := make([]any, len(fingerprints))
	query := "SELECT fingerprint FROM seen_fingerprints WHERE fingerprint IN ("
	for i, fp := range fingerprints {
		if i > 0 {
			query += ","
		}
		query += "?"
		placeholders[i] = fp
	}
	query += ")"

	rows, err := idx.db.QueryContext(ctx, query, placeholders...)
	if err != nil {
		return nil, qikerr.Wrap(qikerr.CacheIO, "", err)
	}
	defer rows.Close()

	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, qikerr.Wrap(qikerr.CacheIO, "", fmt.Errorf("scanning index row: %w", err))
		}
		seen[fp] = true
	}
	return seen, rows.Err()
}

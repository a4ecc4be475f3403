package cache

import (
	"context"
	"fmt"

	"qik/internal/config"
	"qik/internal/gitutil"
	"qik/internal/qikerr"
)

// Status is the outcome of probing a fingerprint against its configured
// cache, used by the `--cache-status` selector (spec §4.6).
type Status string

const (
	StatusHit  Status = "hit"
	StatusMiss Status = "miss"
	StatusNone Status = "none" // command has no cache configured
)

// Factory builds the Cache backend named by a command's `cache` reference,
// grounded on original_source/qik/cache.py's factory() dispatch. workDir
// is the private directory entries are stored under (._qik/cache when
// built by the scheduler); repoDir the public, version-controlled one
// (.qik/cache).
func Factory(cacheCfg *config.Cache, workDir, repoDir string, git *gitutil.Client) (Cache, error) {
	if cacheCfg == nil {
		return nil, nil
	}
	switch cacheCfg.Type {
	case "", "local":
		return NewLocal(workDir), nil
	case "repo":
		return NewRepo(repoDir, git), nil
	case "s3":
		local := NewLocal(workDir)
		return NewRemote(local, RemoteConfig{
			Endpoint:        cacheCfg.Endpoint,
			Region:          cacheCfg.Region,
			AccessKeyID:     cacheCfg.AccessKeyID,
			SecretAccessKey: cacheCfg.SecretAccessKey,
			SessionToken:    cacheCfg.SessionToken,
			UseSSL:          cacheCfg.UseSSL,
			Bucket:          cacheCfg.Bucket,
			Prefix:          cacheCfg.Prefix,
		})
	case "none":
		return nil, nil
	default:
		f, ok := PluginLookup(cacheCfg.Type)
		if !ok {
			return nil, qikerr.New(qikerr.UnknownCache, cacheCfg.Type, "unknown cache backend type")
		}
		return f(cacheCfg, workDir, repoDir, git)
	}
}

// PluginLookup is set by internal/plugin's init-time registration (via
// internal/plugin/cache/*.go), consulted only for cache types outside the
// three built-ins above. Kept as a package variable rather than a direct
// import of internal/plugin to avoid a cache<->plugin import cycle
// (plugin.CacheFactory itself takes a *cache.Cache return type).
var PluginLookup = func(name string) (func(*config.Cache, string, string, *gitutil.Client) (Cache, error), bool) {
	return nil, false
}

// Probe reports a (slug, fingerprint) pair's cache status without
// restoring anything. The backend's Has is always called; idx is never
// read here, since the index is a hint, never authoritative. If idx is
// non-nil, a hit is recorded in it.
func Probe(ctx context.Context, c Cache, idx *Index, cacheType, slug, fingerprint string) (Status, error) {
	if c == nil {
		return StatusNone, nil
	}

	hit, err := c.Has(ctx, slug, fingerprint)
	if err != nil {
		return "", fmt.Errorf("probing cache for %q: %w", slug, err)
	}
	if hit && idx != nil {
		if err := idx.Record(ctx, fingerprint, cacheType, slug); err != nil {
			return "", err
		}
	}
	if hit {
		return StatusHit, nil
	}
	return StatusMiss, nil
}

package cache

import (
	"context"
	"fmt"
	"time"

	"videopipe/internal/models"
)

const (
	probeCachePrefix  = "video:info"
	resultCachePrefix = "operation:result"

	probeCacheTTL  = 24 * time.Hour
	resultCacheTTL = 7 * 24 * time.Hour
)

// ProbeCache is a typed view over Cache storing probed asset metadata,
// keyed by asset id and a hash of its object name.
type ProbeCache struct {
	cache *Cache
}

// NewProbeCache constructs a ProbeCache over an existing Cache.
func NewProbeCache(c *Cache) *ProbeCache { return &ProbeCache{cache: c} }

func probeKey(assetID int64, objectName string) string {
	return DeriveKey(probeCachePrefix, map[string]string{
		"asset_id": fmt.Sprintf("%d", assetID),
		"object":   objectName,
	})
}

// Get returns the cached probe result for assetID/objectName, or ErrMiss.
func (p *ProbeCache) Get(ctx context.Context, assetID int64, objectName string) (models.ProbeResult, error) {
	var result models.ProbeResult
	err := p.cache.Get(ctx, probeKey(assetID, objectName), &result)
	return result, err
}

// Set caches a probe result with the fixed 24h TTL from spec.md §4.2.
func (p *ProbeCache) Set(ctx context.Context, assetID int64, objectName string, result models.ProbeResult) error {
	return p.cache.Set(ctx, probeKey(assetID, objectName), result, probeCacheTTL)
}

// Invalidate drops a cached probe result, called on asset soft-delete.
func (p *ProbeCache) Invalidate(ctx context.Context, assetID int64, objectName string) error {
	return p.cache.Delete(ctx, probeKey(assetID, objectName))
}

// ResultCache is a typed view over Cache storing full job result payloads,
// keyed by operation type, sorted input ids, and config.
type ResultCache struct {
	cache *Cache
}

// NewResultCache constructs a ResultCache over an existing Cache.
func NewResultCache(c *Cache) *ResultCache { return &ResultCache{cache: c} }

// CachedResult is what a result-cache hit yields: enough to short-circuit a
// job without re-running the processor, per spec.md §4.2's "advisory
// shortcut" rule — a hit must still resolve to a valid output asset.
type CachedResult struct {
	OutputAssetIDs []int64           `json:"output_asset_ids"`
	Result         models.JobResult  `json:"result"`
}

func resultKey(jobType models.JobType, sortedInputIDs []int64, configJSON string) string {
	return DeriveKey(resultCachePrefix, map[string]string{
		"type":   string(jobType),
		"ids":    SortedIDs(sortedInputIDs),
		"config": configJSON,
	})
}

// Get returns the cached result for (type, sortedInputIDs, configJSON), or
// ErrMiss.
func (r *ResultCache) Get(ctx context.Context, jobType models.JobType, sortedInputIDs []int64, configJSON string) (CachedResult, error) {
	var result CachedResult
	err := r.cache.Get(ctx, resultKey(jobType, sortedInputIDs, configJSON), &result)
	return result, err
}

// Set caches a result with the fixed 7-day TTL from spec.md §4.2.
func (r *ResultCache) Set(ctx context.Context, jobType models.JobType, sortedInputIDs []int64, configJSON string, result CachedResult) error {
	return r.cache.Set(ctx, resultKey(jobType, sortedInputIDs, configJSON), result, resultCacheTTL)
}

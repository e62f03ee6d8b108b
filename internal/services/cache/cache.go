package cache

import (
	"github.com/dreambot-go/internal/config"
	"github.com/dreambot-go/internal/models"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// Service caches per-pool usage snapshots in front of the ledger.
type Service interface {
	Get(pool string) (map[string]models.UsageRecord, bool)
	Set(pool string, usage map[string]models.UsageRecord)
	Apply(pool string, record models.UsageRecord)
	Invalidate(pool string)
	Clear()
}

// UsageCache implements Service on go-cache
type UsageCache struct {
	enabled bool
	cache   *cache.Cache
	logger  *logrus.Logger
	maxSize int
}

// NewUsageCache creates a new usage snapshot cache
func NewUsageCache(cfg *config.CacheConfig, logger *logrus.Logger) *UsageCache {
	if !cfg.Enabled || cfg.TTL <= 0 {
		return &UsageCache{enabled: false}
	}

	return &UsageCache{
		enabled: true,
		cache:   cache.New(cfg.TTL, cfg.TTL*2),
		logger:  logger,
		maxSize: cfg.MaxSize,
	}
}

// Get returns a copy of the cached snapshot for pool
func (c *UsageCache) Get(pool string) (map[string]models.UsageRecord, bool) {
	if !c.enabled {
		return nil, false
	}

	val, found := c.cache.Get(pool)
	if !found {
		return nil, false
	}
	c.logger.WithField("pool", pool).Debug("Usage cache hit")
	return clone(val.(map[string]models.UsageRecord)), true
}

// Set stores a snapshot for pool
func (c *UsageCache) Set(pool string, usage map[string]models.UsageRecord) {
	if !c.enabled {
		return
	}

	if c.maxSize > 0 && c.cache.ItemCount() >= c.maxSize {
		c.logger.Warn("Usage cache size limit reached, clearing expired entries")
		c.cache.DeleteExpired()
	}

	c.cache.SetDefault(pool, clone(usage))
}

// Apply writes a single record through to a cached snapshot, if one exists
func (c *UsageCache) Apply(pool string, record models.UsageRecord) {
	if !c.enabled {
		return
	}

	val, found := c.cache.Get(pool)
	if !found {
		return
	}
	next := clone(val.(map[string]models.UsageRecord))
	next[record.ResponseID] = record
	c.cache.SetDefault(pool, next)
}

// Invalidate drops the snapshot for pool
func (c *UsageCache) Invalidate(pool string) {
	if !c.enabled {
		return
	}
	c.cache.Delete(pool)
}

// Clear removes all cached snapshots
func (c *UsageCache) Clear() {
	if !c.enabled {
		return
	}

	c.cache.Flush()
	c.logger.Info("Usage cache cleared")
}

func clone(in map[string]models.UsageRecord) map[string]models.UsageRecord {
	out := make(map[string]models.UsageRecord, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

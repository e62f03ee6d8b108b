package storage

import (
	"context"
	"sync"
	"time"

	"github.com/dreambot-go/internal/config"
	"github.com/dreambot-go/internal/models"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// MemoryLedger keeps usage in process memory. Counts are lost on restart.
type MemoryLedger struct {
	mu     sync.Mutex
	pools  *cache.Cache
	now    func() time.Time
	logger *logrus.Logger
}

func NewMemoryLedger(cfg *config.MemoryConfig, logger *logrus.Logger) *MemoryLedger {
	cleanup := cfg.CleanupInterval
	if cleanup <= 0 {
		cleanup = cache.NoExpiration
	}
	return &MemoryLedger{
		pools:  cache.New(cache.NoExpiration, cleanup),
		now:    time.Now,
		logger: logger,
	}
}

func (m *MemoryLedger) Name() string { return "memory" }

func (m *MemoryLedger) snapshot(pool string) map[string]models.UsageRecord {
	out := make(map[string]models.UsageRecord)
	if val, found := m.pools.Get(pool); found {
		for k, v := range val.(map[string]models.UsageRecord) {
			out[k] = v
		}
	}
	return out
}

func (m *MemoryLedger) Load(ctx context.Context, pool string) (map[string]models.UsageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot(pool), nil
}

func (m *MemoryLedger) Save(ctx context.Context, pool string, usage map[string]models.UsageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.snapshot(pool)
	for id, rec := range usage {
		rec.ResponseID = id
		current[id] = mergeMax(current[id], rec)
	}
	m.pools.Set(pool, current, cache.NoExpiration)
	return nil
}

func (m *MemoryLedger) Increment(ctx context.Context, pool, responseID, text string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.snapshot(pool)
	rec := current[responseID]
	now := m.now().UTC()
	rec.ResponseID = responseID
	rec.Text = text
	rec.UsageCount++
	rec.LastUsed = &now
	current[responseID] = rec
	m.pools.Set(pool, current, cache.NoExpiration)
	return rec.UsageCount, nil
}

func (m *MemoryLedger) Close() error {
	m.pools.Flush()
	return nil
}

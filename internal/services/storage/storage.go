package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dreambot-go/internal/config"
	"github.com/dreambot-go/internal/models"
	"github.com/dreambot-go/internal/services/cache"
	"github.com/dreambot-go/pkg/keylock"
	"github.com/sirupsen/logrus"
)

// Ledger persists per-pool response usage counters.
type Ledger interface {
	Load(ctx context.Context, pool string) (map[string]models.UsageRecord, error)
	Save(ctx context.Context, pool string, usage map[string]models.UsageRecord) error
	Increment(ctx context.Context, pool, responseID, text string) (int, error)
}

// Backend is a concrete ledger store.
type Backend interface {
	Ledger
	Name() string
	Close() error
}

// Recorder receives storage operation metrics.
type Recorder interface {
	RecordStorageOperation(backend, operation, status string, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordStorageOperation(string, string, string, time.Duration) {}

// Manager fronts a primary backend with an optional local fallback, a usage
// snapshot cache and per-pool serialization of increments.
type Manager struct {
	primary  Backend
	fallback Backend
	cache    cache.Service
	locks    *keylock.Striped
	metrics  Recorder
	logger   *logrus.Logger
}

// Option customizes a Manager.
type Option func(*Manager)

// WithFallback sets the backend used when the primary fails.
func WithFallback(b Backend) Option {
	return func(m *Manager) { m.fallback = b }
}

// WithCache sets the usage snapshot cache.
func WithCache(c cache.Service) Option {
	return func(m *Manager) { m.cache = c }
}

// WithRecorder sets the metrics sink.
func WithRecorder(r Recorder) Option {
	return func(m *Manager) {
		if r != nil {
			m.metrics = r
		}
	}
}

// NewLedgerManager composes a Manager from explicit backends.
func NewLedgerManager(primary Backend, logger *logrus.Logger, opts ...Option) *Manager {
	m := &Manager{
		primary: primary,
		locks:   keylock.New(0),
		metrics: nopRecorder{},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewManager creates a storage manager from configuration
func NewManager(cfg *config.Config, logger *logrus.Logger, recorder Recorder) (*Manager, error) {
	fallback, err := openBackend(cfg.Storage.Fallback, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open fallback storage: %w", err)
	}

	var primary Backend
	if fallback != nil && fallback.Name() == cfg.Storage.Type {
		primary, fallback = fallback, nil
	} else {
		primary, err = openBackend(cfg.Storage.Type, cfg, logger)
		if err != nil {
			if fallback == nil {
				return nil, err
			}
			logger.WithError(err).WithFields(logrus.Fields{
				"primary":  cfg.Storage.Type,
				"fallback": fallback.Name(),
			}).Warn("Primary storage unavailable, using fallback only")
			primary, fallback = fallback, nil
		}
	}

	opts := []Option{
		WithCache(cache.NewUsageCache(&cfg.Cache, logger)),
		WithRecorder(recorder),
	}
	if fallback != nil {
		opts = append(opts, WithFallback(fallback))
	}

	m := NewLedgerManager(primary, logger, opts...)
	logger.WithFields(logrus.Fields{
		"primary":  primary.Name(),
		"fallback": m.fallbackName(),
	}).Info("Usage ledger ready")
	return m, nil
}

func openBackend(kind string, cfg *config.Config, logger *logrus.Logger) (Backend, error) {
	switch kind {
	case "redis":
		r, err := NewRedisLedger(&cfg.Storage.Redis, logger)
		if err != nil {
			return nil, err
		}
		return r, nil
	case "sqlite":
		s, err := NewSQLiteLedger(cfg.Storage.SQLite.Path, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "memory":
		return NewMemoryLedger(&cfg.Storage.Memory, logger), nil
	case "", "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", kind)
	}
}

func (m *Manager) fallbackName() string {
	if m.fallback == nil {
		return "none"
	}
	return m.fallback.Name()
}

func (m *Manager) observe(b Backend, op string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.metrics.RecordStorageOperation(b.Name(), op, status, time.Since(start))
}

// Load returns the usage map for pool, consulting the cache first.
func (m *Manager) Load(ctx context.Context, pool string) (map[string]models.UsageRecord, error) {
	if m.cache != nil {
		if usage, ok := m.cache.Get(pool); ok {
			return usage, nil
		}
	}

	start := time.Now()
	usage, err := m.primary.Load(ctx, pool)
	m.observe(m.primary, "load", start, err)
	if err != nil {
		m.logger.WithError(err).WithFields(logrus.Fields{
			"pool":    pool,
			"backend": m.primary.Name(),
		}).Warn("Failed to load usage")

		if m.fallback == nil {
			return nil, err
		}
		start = time.Now()
		var fbErr error
		usage, fbErr = m.fallback.Load(ctx, pool)
		m.observe(m.fallback, "load", start, fbErr)
		if fbErr != nil {
			return nil, errors.Join(err, fbErr)
		}
	}

	if m.cache != nil {
		m.cache.Set(pool, usage)
	}
	return usage, nil
}

// Save writes usage for pool and drops any cached snapshot.
func (m *Manager) Save(ctx context.Context, pool string, usage map[string]models.UsageRecord) error {
	unlock := m.locks.Lock(pool)
	defer unlock()

	if m.cache != nil {
		defer m.cache.Invalidate(pool)
	}

	start := time.Now()
	err := m.primary.Save(ctx, pool, usage)
	m.observe(m.primary, "save", start, err)
	if err == nil {
		return nil
	}

	m.logger.WithError(err).WithField("pool", pool).Warn("Failed to save usage")
	if m.fallback == nil {
		return err
	}
	start = time.Now()
	fbErr := m.fallback.Save(ctx, pool, usage)
	m.observe(m.fallback, "save", start, fbErr)
	if fbErr != nil {
		return errors.Join(err, fbErr)
	}
	return nil
}

// Increment bumps the usage counter for a response, serialized per pool.
func (m *Manager) Increment(ctx context.Context, pool, responseID, text string) (int, error) {
	unlock := m.locks.Lock(pool)
	defer unlock()

	start := time.Now()
	count, err := m.primary.Increment(ctx, pool, responseID, text)
	m.observe(m.primary, "increment", start, err)
	if err != nil {
		m.logger.WithError(err).WithFields(logrus.Fields{
			"pool":        pool,
			"response_id": responseID,
		}).Warn("Failed to record usage")

		if m.fallback == nil {
			if m.cache != nil {
				m.cache.Invalidate(pool)
			}
			return 0, err
		}
		start = time.Now()
		var fbErr error
		count, fbErr = m.fallback.Increment(ctx, pool, responseID, text)
		m.observe(m.fallback, "increment", start, fbErr)
		if fbErr != nil {
			if m.cache != nil {
				m.cache.Invalidate(pool)
			}
			return 0, errors.Join(err, fbErr)
		}
	}

	if m.cache != nil {
		// A fallback only knows the increments it served; the cached snapshot
		// may already hold the primary's higher count.
		if err != nil {
			if usage, ok := m.cache.Get(pool); ok {
				if next := usage[responseID].UsageCount + 1; next > count {
					count = next
				}
			}
		}
		now := time.Now().UTC()
		m.cache.Apply(pool, models.UsageRecord{
			ResponseID: responseID,
			Text:       text,
			UsageCount: count,
			LastUsed:   &now,
		})
	}
	return count, nil
}

// UsageEntry is one row of a usage report.
type UsageEntry struct {
	Pool string
	models.UsageRecord
}

// TopUsage returns the n most used responses in pool, most used first.
func (m *Manager) TopUsage(ctx context.Context, pool string, n int) ([]UsageEntry, error) {
	usage, err := m.Load(ctx, pool)
	if err != nil {
		return nil, err
	}

	entries := make([]UsageEntry, 0, len(usage))
	for _, rec := range usage {
		entries = append(entries, UsageEntry{Pool: pool, UsageRecord: rec})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].UsageCount != entries[j].UsageCount {
			return entries[i].UsageCount > entries[j].UsageCount
		}
		return entries[i].ResponseID < entries[j].ResponseID
	})
	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries, nil
}

// Close releases every backend.
func (m *Manager) Close() error {
	var errs []error
	if err := m.primary.Close(); err != nil {
		errs = append(errs, err)
	}
	if m.fallback != nil {
		if err := m.fallback.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func mergeMax(existing, incoming models.UsageRecord) models.UsageRecord {
	if existing.UsageCount > incoming.UsageCount {
		incoming.UsageCount = existing.UsageCount
	}
	if incoming.LastUsed == nil {
		incoming.LastUsed = existing.LastUsed
	}
	return incoming
}

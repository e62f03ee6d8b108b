package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dreambot-go/internal/config"
	"github.com/dreambot-go/internal/models"
	"github.com/dreambot-go/internal/services/cache"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nullLogger() *logrus.Logger {
	l, _ := test.NewNullLogger()
	return l
}

func newTestSQLite(t *testing.T) *SQLiteLedger {
	t.Helper()
	s, err := NewSQLiteLedger(filepath.Join(t.TempDir(), "data", "usage.db"), nullLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestMemory() *MemoryLedger {
	return NewMemoryLedger(&config.MemoryConfig{}, nullLogger())
}

// ledgerContract exercises behavior every backend must share.
func ledgerContract(t *testing.T, l Backend) {
	ctx := context.Background()

	usage, err := l.Load(ctx, "greeting")
	require.NoError(t, err)
	assert.Empty(t, usage)

	n, err := l.Increment(ctx, "greeting", "greet_001", "hello")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = l.Increment(ctx, "greeting", "greet_001", "hello, edited")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = l.Increment(ctx, "farewell", "bye_001", "bye")
	require.NoError(t, err)

	usage, err = l.Load(ctx, "greeting")
	require.NoError(t, err)
	require.Len(t, usage, 1)
	rec := usage["greet_001"]
	assert.Equal(t, "greet_001", rec.ResponseID)
	assert.Equal(t, "hello, edited", rec.Text)
	assert.Equal(t, 2, rec.UsageCount)
	require.NotNil(t, rec.LastUsed)

	// Save never lowers a count.
	last := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, l.Save(ctx, "greeting", map[string]models.UsageRecord{
		"greet_001": {Text: "hello", UsageCount: 1},
		"greet_002": {Text: "hey", UsageCount: 5, LastUsed: &last},
	}))

	usage, err = l.Load(ctx, "greeting")
	require.NoError(t, err)
	assert.Equal(t, 2, usage["greet_001"].UsageCount)
	assert.NotNil(t, usage["greet_001"].LastUsed)
	assert.Equal(t, 5, usage["greet_002"].UsageCount)
	require.NotNil(t, usage["greet_002"].LastUsed)
	assert.True(t, last.Equal(*usage["greet_002"].LastUsed))
}

func TestMemoryLedger(t *testing.T) {
	ledgerContract(t, newTestMemory())
}

func TestSQLiteLedger(t *testing.T) {
	ledgerContract(t, newTestSQLite(t))
}

func TestSQLiteLedgerPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.db")
	ctx := context.Background()

	first, err := NewSQLiteLedger(path, nullLogger())
	require.NoError(t, err)
	_, err = first.Increment(ctx, "vague", "vague_001", "hmm")
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := NewSQLiteLedger(path, nullLogger())
	require.NoError(t, err)
	defer second.Close()

	n, err := second.Increment(ctx, "vague", "vague_001", "hmm")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSQLiteLedgerConcurrentIncrements(t *testing.T) {
	l := newTestSQLite(t)
	m := NewLedgerManager(l, nullLogger())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Increment(ctx, "8ball", "8ball_001", "yes")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	usage, err := l.Load(ctx, "8ball")
	require.NoError(t, err)
	assert.Equal(t, 25, usage["8ball_001"].UsageCount)
}

type failingBackend struct {
	name string
	err  error
}

func (f failingBackend) Name() string { return f.name }
func (f failingBackend) Close() error { return nil }
func (f failingBackend) Load(context.Context, string) (map[string]models.UsageRecord, error) {
	return nil, f.err
}
func (f failingBackend) Save(context.Context, string, map[string]models.UsageRecord) error {
	return f.err
}
func (f failingBackend) Increment(context.Context, string, string, string) (int, error) {
	return 0, f.err
}

type recordedOp struct {
	backend, op, status string
}

type fakeRecorder struct {
	mu  sync.Mutex
	ops []recordedOp
}

func (r *fakeRecorder) RecordStorageOperation(backend, op, status string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, recordedOp{backend, op, status})
}

func TestManagerFallsBackOnPrimaryFailure(t *testing.T) {
	rec := &fakeRecorder{}
	fallback := newTestMemory()
	m := NewLedgerManager(
		failingBackend{name: "redis", err: errors.New("connection refused")},
		nullLogger(),
		WithFallback(fallback),
		WithRecorder(rec),
	)
	ctx := context.Background()

	n, err := m.Increment(ctx, "kebab", "kebab_001", "kebab")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	usage, err := m.Load(ctx, "kebab")
	require.NoError(t, err)
	assert.Equal(t, 1, usage["kebab_001"].UsageCount)

	require.NoError(t, m.Save(ctx, "kebab", map[string]models.UsageRecord{"kebab_002": {UsageCount: 3}}))
	usage, err = fallback.Load(ctx, "kebab")
	require.NoError(t, err)
	assert.Equal(t, 3, usage["kebab_002"].UsageCount)

	assert.Contains(t, rec.ops, recordedOp{"redis", "increment", "error"})
	assert.Contains(t, rec.ops, recordedOp{"memory", "increment", "success"})
}

func TestManagerWithoutFallbackReturnsErrors(t *testing.T) {
	m := NewLedgerManager(failingBackend{name: "redis", err: errors.New("down")}, nullLogger())
	ctx := context.Background()

	_, err := m.Load(ctx, "greeting")
	assert.Error(t, err)
	_, err = m.Increment(ctx, "greeting", "g", "hi")
	assert.Error(t, err)
	assert.Error(t, m.Save(ctx, "greeting", nil))
}

func TestManagerBothBackendsFailing(t *testing.T) {
	primaryErr := errors.New("primary down")
	fallbackErr := errors.New("disk full")
	m := NewLedgerManager(
		failingBackend{name: "redis", err: primaryErr},
		nullLogger(),
		WithFallback(failingBackend{name: "sqlite", err: fallbackErr}),
	)

	_, err := m.Increment(context.Background(), "vague", "v", "hmm")
	require.Error(t, err)
	assert.ErrorIs(t, err, primaryErr)
	assert.ErrorIs(t, err, fallbackErr)
}

func TestManagerCacheWriteThrough(t *testing.T) {
	backend := newTestMemory()
	usageCache := cache.NewUsageCache(&config.CacheConfig{Enabled: true, TTL: time.Minute}, nullLogger())
	m := NewLedgerManager(backend, nullLogger(), WithCache(usageCache))
	ctx := context.Background()

	_, err := m.Load(ctx, "opinion")
	require.NoError(t, err)

	_, err = m.Increment(ctx, "opinion", "opinion_001", "{topic}? acceptable.")
	require.NoError(t, err)

	cached, ok := usageCache.Get("opinion")
	require.True(t, ok)
	assert.Equal(t, 1, cached["opinion_001"].UsageCount)

	require.NoError(t, m.Save(ctx, "opinion", map[string]models.UsageRecord{"opinion_002": {UsageCount: 2}}))
	_, ok = usageCache.Get("opinion")
	assert.False(t, ok)
}

// flakyBackend serves from an in-memory ledger until it is taken down.
type flakyBackend struct {
	*MemoryLedger
	mu   sync.Mutex
	down bool
}

func (f *flakyBackend) Name() string { return "redis" }

func (f *flakyBackend) fail() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = true
}

func (f *flakyBackend) err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return errors.New("connection reset")
	}
	return nil
}

func (f *flakyBackend) Load(ctx context.Context, pool string) (map[string]models.UsageRecord, error) {
	if err := f.err(); err != nil {
		return nil, err
	}
	return f.MemoryLedger.Load(ctx, pool)
}

func (f *flakyBackend) Increment(ctx context.Context, pool, responseID, text string) (int, error) {
	if err := f.err(); err != nil {
		return 0, err
	}
	return f.MemoryLedger.Increment(ctx, pool, responseID, text)
}

func TestManagerFallbackIncrementNeverLowersCachedCount(t *testing.T) {
	primary := &flakyBackend{MemoryLedger: newTestMemory()}
	usageCache := cache.NewUsageCache(&config.CacheConfig{Enabled: true, TTL: time.Minute}, nullLogger())
	m := NewLedgerManager(primary, nullLogger(), WithFallback(newTestMemory()), WithCache(usageCache))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := m.Increment(ctx, "8ball", "8ball_001", "Signs point to yes.")
		require.NoError(t, err)
	}
	usage, err := m.Load(ctx, "8ball")
	require.NoError(t, err)
	require.Equal(t, 5, usage["8ball_001"].UsageCount)

	primary.fail()
	n, err := m.Increment(ctx, "8ball", "8ball_001", "Signs point to yes.")
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	usage, err = m.Load(ctx, "8ball")
	require.NoError(t, err)
	assert.Equal(t, 6, usage["8ball_001"].UsageCount)
}

func TestManagerTopUsage(t *testing.T) {
	m := NewLedgerManager(newTestMemory(), nullLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = m.Increment(ctx, "vague", "b", "b")
	}
	_, _ = m.Increment(ctx, "vague", "a", "a")
	_, _ = m.Increment(ctx, "vague", "c", "c")

	top, err := m.TopUsage(ctx, "vague", 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "b", top[0].ResponseID)
	assert.Equal(t, 3, top[0].UsageCount)
	assert.Equal(t, "a", top[1].ResponseID)
	assert.Equal(t, "vague", top[1].Pool)
}

func TestNewManagerFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Type = "sqlite"
	cfg.Storage.Fallback = "memory"
	cfg.Storage.SQLite.Path = filepath.Join(t.TempDir(), "usage.db")

	m, err := NewManager(cfg, nullLogger(), nil)
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, "sqlite", m.primary.Name())
	assert.Equal(t, "memory", m.fallbackName())

	n, err := m.Increment(context.Background(), "greeting", "greet_001", "hi")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNewManagerSameFallbackCollapses(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Type = "memory"
	cfg.Storage.Fallback = "memory"

	m, err := NewManager(cfg, nullLogger(), nil)
	require.NoError(t, err)
	assert.Equal(t, "memory", m.primary.Name())
	assert.Equal(t, "none", m.fallbackName())
}

func TestNewManagerRedisUnavailableUsesFallback(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Type = "redis"
	cfg.Storage.Fallback = "memory"
	cfg.Storage.Redis.Addr = "127.0.0.1:1"

	m, err := NewManager(cfg, nullLogger(), nil)
	require.NoError(t, err)
	assert.Equal(t, "memory", m.primary.Name())
}

func TestDecodeUsageSkipsMalformed(t *testing.T) {
	usage := decodeUsage(map[string]string{
		"good": `{"text":"hi","usage_count":4,"last_used":"2024-05-01T10:00:00Z"}`,
		"bad":  `{not json`,
	}, nullLogger())

	require.Len(t, usage, 1)
	assert.Equal(t, "good", usage["good"].ResponseID)
	assert.Equal(t, 4, usage["good"].UsageCount)
	require.NotNil(t, usage["good"].LastUsed)
}

func TestRedisKey(t *testing.T) {
	assert.Equal(t, "dreambot:usage:8ball", newRedisLedger(nil, "dreambot", nil).key("8ball"))
	assert.Equal(t, "usage:vague", newRedisLedger(nil, "", nil).key("vague"))
}

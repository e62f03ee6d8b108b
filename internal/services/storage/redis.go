package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dreambot-go/internal/config"
	"github.com/dreambot-go/internal/models"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// incrementScript bumps one usage record atomically inside Redis.
var incrementScript = redis.NewScript(`
local raw = redis.call('HGET', KEYS[1], ARGV[1])
local count = 0
if raw then
	local rec = cjson.decode(raw)
	if rec.usage_count then count = tonumber(rec.usage_count) end
end
count = count + 1
redis.call('HSET', KEYS[1], ARGV[1], cjson.encode({
	response_id = ARGV[1],
	text = ARGV[2],
	usage_count = count,
	last_used = ARGV[3]
}))
return count
`)

// RedisLedger keeps one hash per pool; fields are response ids, values JSON records.
type RedisLedger struct {
	client *redis.Client
	prefix string
	now    func() time.Time
	logger *logrus.Logger
}

func NewRedisLedger(cfg *config.RedisConfig, logger *logrus.Logger) (*RedisLedger, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return newRedisLedger(client, cfg.KeyPrefix, logger), nil
}

func newRedisLedger(client *redis.Client, prefix string, logger *logrus.Logger) *RedisLedger {
	return &RedisLedger{
		client: client,
		prefix: prefix,
		now:    time.Now,
		logger: logger,
	}
}

func (r *RedisLedger) Name() string { return "redis" }

func (r *RedisLedger) key(pool string) string {
	if r.prefix == "" {
		return fmt.Sprintf("usage:%s", pool)
	}
	return fmt.Sprintf("%s:usage:%s", r.prefix, pool)
}

func (r *RedisLedger) Load(ctx context.Context, pool string) (map[string]models.UsageRecord, error) {
	fields, err := r.client.HGetAll(ctx, r.key(pool)).Result()
	if err == redis.Nil {
		return map[string]models.UsageRecord{}, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeUsage(fields, r.logger), nil
}

func (r *RedisLedger) Save(ctx context.Context, pool string, usage map[string]models.UsageRecord) error {
	if len(usage) == 0 {
		return nil
	}

	existing, err := r.Load(ctx, pool)
	if err != nil {
		return err
	}

	values := make(map[string]interface{}, len(usage))
	for id, rec := range usage {
		rec.ResponseID = id
		data, err := json.Marshal(mergeMax(existing[id], rec))
		if err != nil {
			return err
		}
		values[id] = data
	}
	return r.client.HSet(ctx, r.key(pool), values).Err()
}

func (r *RedisLedger) Increment(ctx context.Context, pool, responseID, text string) (int, error) {
	now := r.now().UTC().Format(time.RFC3339Nano)
	return incrementScript.Run(ctx, r.client, []string{r.key(pool)}, responseID, text, now).Int()
}

func (r *RedisLedger) Close() error {
	return r.client.Close()
}

// decodeUsage parses hash fields, skipping records that fail to decode.
func decodeUsage(fields map[string]string, logger *logrus.Logger) map[string]models.UsageRecord {
	usage := make(map[string]models.UsageRecord, len(fields))
	for id, raw := range fields {
		var rec models.UsageRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			if logger != nil {
				logger.WithError(err).WithField("response_id", id).Warn("Skipping malformed usage record")
			}
			continue
		}
		rec.ResponseID = id
		usage[id] = rec
	}
	return usage
}

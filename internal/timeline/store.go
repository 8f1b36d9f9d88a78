package timeline

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// DefaultMaxItems bounds every timeline key unless configured otherwise.
const DefaultMaxItems = 800

// pushScript inserts a member and trims the key back to the ceiling in one
// atomic step, so no reader ever observes an over-capacity timeline.
// Trimming removes the lowest-scored (oldest) members first.
var pushScript = redis.NewScript(`
redis.call('ZADD', KEYS[1], ARGV[1], ARGV[2])
local n = redis.call('ZCARD', KEYS[1])
local cap = tonumber(ARGV[3])
if n > cap then
  redis.call('ZREMRANGEBYRANK', KEYS[1], 0, n - cap - 1)
end
return redis.call('ZCARD', KEYS[1])
`)

// Store is a bounded, time-ordered, per-key append/remove log backed by
// redis sorted sets. Push is idempotent per (key, postID): re-pushing the
// same member updates its score without duplication.
type Store struct {
	rdb      *redis.Client
	maxItems int
}

func NewStore(rdb *redis.Client, maxItems int) *Store {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	return &Store{rdb: rdb, maxItems: maxItems}
}

// Push inserts or rescores postID under key and evicts down to the ceiling.
func (s *Store) Push(ctx context.Context, key, postID string, score float64) error {
	return pushScript.Run(ctx, s.rdb, []string{key}, score, postID, s.maxItems).Err()
}

// Remove deletes postID from key; missing members are a no-op.
func (s *Store) Remove(ctx context.Context, key, postID string) error {
	return s.rdb.ZRem(ctx, key, postID).Err()
}

// RemoveBulk deletes postID from every key in one round trip.
func (s *Store) RemoveBulk(ctx context.Context, keys []string, postID string) error {
	if len(keys) == 0 {
		return nil
	}
	pipe := s.rdb.Pipeline()
	for _, k := range keys {
		pipe.ZRem(ctx, k, postID)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Range returns post IDs with score in [min, max], descending by score.
// limit <= 0 means no limit.
func (s *Store) Range(ctx context.Context, key string, max, min float64, limit int) ([]string, error) {
	opt := &redis.ZRangeBy{
		Min: strconv.FormatFloat(min, 'f', -1, 64),
		Max: strconv.FormatFloat(max, 'f', -1, 64),
	}
	if limit > 0 {
		opt.Count = int64(limit)
	}
	return s.rdb.ZRevRangeByScore(ctx, key, opt).Result()
}

// Latest returns the newest post IDs under key, descending by score.
func (s *Store) Latest(ctx context.Context, key string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.rdb.ZRevRange(ctx, key, 0, int64(limit-1)).Result()
}

// Card reports the current cardinality of key.
func (s *Store) Card(ctx context.Context, key string) (int64, error) {
	return s.rdb.ZCard(ctx, key).Result()
}

// Contains reports whether postID is a member of key.
func (s *Store) Contains(ctx context.Context, key, postID string) (bool, error) {
	_, err := s.rdb.ZScore(ctx, key, postID).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

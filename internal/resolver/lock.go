package resolver

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if we still hold it, so an expired
// lock re-acquired by another resolver is never released from here.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// Lock is a handle-scoped, TTL-bounded mutual exclusion token used during
// first-time resolution of an unknown remote actor. The TTL bounds the
// worst-case staleness of a lock left behind by a crashed resolver.
type Lock struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewLock(rdb *redis.Client, ttl time.Duration) *Lock {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &Lock{rdb: rdb, ttl: ttl}
}

// Acquire attempts a non-blocking grab of the lock for key. ok is false when
// another resolution is in flight.
func (l *Lock) Acquire(ctx context.Context, key string) (token string, ok bool, err error) {
	token = uuid.New().String()
	ok, err = l.rdb.SetNX(ctx, "lock:resolve:"+key, token, l.ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

// Release frees the lock if token still owns it.
func (l *Lock) Release(ctx context.Context, key, token string) error {
	return releaseScript.Run(ctx, l.rdb, []string{"lock:resolve:" + key}, token).Err()
}

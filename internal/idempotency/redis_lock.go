package idempotency

import (
	"context"
	"fmt"
	"github.com/ariefcatur/go-order-reconciler/internal/redisx"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"time"
)

// hapus hanya kalau lock masih milik token ini; lock yang sudah expire bisa diambil request lain
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

type RedisLocker struct{ Redis *redis.Client }

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.Redis.SetNX(ctx, lockKey(key), token, ttl).Result()
	if err != nil || !ok {
		return "", false, err
	}
	return token, true, nil
}

func (l *RedisLocker) Release(ctx context.Context, key, token string) error {
	return releaseScript.Run(ctx, l.Redis, []string{lockKey(key)}, token).Err()
}

func lockKey(key string) string { return fmt.Sprintf(redisx.KeyIdemLock, key) }

package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/redis/go-redis/v9"
	"time"
)

// OrderStatus is the cached projection stored under order_status:{id}.
type OrderStatus struct {
	OrderID   int64     `json:"order_id"`
	UserID    string    `json:"user_id"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
	// Version = UpdatedAt dalam mikrodetik, dibandingkan di dalam Redis
	Version int64 `json:"version"`
}

// putIfNewer keeps whichever entry has the larger version; ties overwrite.
var putIfNewer = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur then
  local ok, doc = pcall(cjson.decode, cur)
  if ok and type(doc) == 'table' and tonumber(doc.version) and tonumber(doc.version) > tonumber(ARGV[2]) then
    return 0
  end
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`)

type StatusCache struct {
	Redis *redis.Client
	TTL   time.Duration
}

func NewStatusCache(rdb *redis.Client) *StatusCache {
	return &StatusCache{Redis: rdb, TTL: TTLStatusCache}
}

// Get returns ok=false on a cache miss.
func (c *StatusCache) Get(ctx context.Context, orderID int64) (OrderStatus, bool, error) {
	b, err := c.Redis.Get(ctx, OrderStatusKey(orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return OrderStatus{}, false, nil
	}
	if err != nil {
		return OrderStatus{}, false, fmt.Errorf("get status cache: %w", err)
	}
	var s OrderStatus
	if err := json.Unmarshal(b, &s); err != nil {
		// entry rusak dianggap miss, nanti ditimpa
		return OrderStatus{}, false, nil
	}
	return s, true, nil
}

// Put stores s unless the cached entry is newer, checked atomically in Redis.
// written=false means a newer status was already cached.
func (c *StatusCache) Put(ctx context.Context, s OrderStatus) (bool, error) {
	s.Version = s.UpdatedAt.UnixMicro()
	b, err := json.Marshal(s)
	if err != nil {
		return false, err
	}
	ttl := c.TTL
	if ttl <= 0 {
		ttl = TTLStatusCache
	}
	n, err := putIfNewer.Run(ctx, c.Redis, []string{OrderStatusKey(s.OrderID)}, b, s.Version, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("put status cache: %w", err)
	}
	return n == 1, nil
}

// MarkOnce is the event dedup guard used by consumers.
func (c *StatusCache) MarkOnce(ctx context.Context, service, eventID string) (bool, error) {
	return MarkOnce(ctx, c.Redis, DedupKey(service, eventID), TTLDedup)
}

// Forget drops a dedup mark so the event can be processed again.
func (c *StatusCache) Forget(ctx context.Context, service, eventID string) error {
	return c.Redis.Del(ctx, DedupKey(service, eventID)).Err()
}

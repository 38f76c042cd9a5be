package idempotency

import (
	"context"
	"errors"
	"time"
)

const DefaultTTL = 24 * time.Hour

var (
	ErrNotFound        = errors.New("idempotency: record not found")
	ErrDuplicateRecord = errors.New("idempotency: key already recorded")
	ErrKeyMisuse       = errors.New("idempotency: key belongs to another user")
	ErrKeyReused       = errors.New("idempotency: key already used for a different request")
	ErrKeyInProgress   = errors.New("idempotency: request with this key is in progress")
)

// Record is permanently bound to the (UserID, Method, Path) of its first use.
type Record struct {
	Key         string
	UserID      string
	Method      string
	Path        string
	StatusCode  int
	ContentType string
	Body        []byte
	CreatedAt   time.Time
}

type Store interface {
	Get(ctx context.Context, key string) (Record, error)
	// Insert never overwrites; an existing key yields ErrDuplicateRecord.
	Insert(ctx context.Context, rec Record) error
	Purge(ctx context.Context, olderThan time.Time) (int64, error)
}

// Locker guards a key while its first request is still running.
// Release only frees the lock when token still owns it.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

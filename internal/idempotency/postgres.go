package idempotency

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-order-reconciler/internal/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"time"
)

// PostgresStore treats records older than TTL as gone even before the sweeper deletes them.
type PostgresStore struct {
	DB  *pgxpool.Pool
	TTL time.Duration
}

func (s *PostgresStore) cutoff() time.Time {
	ttl := s.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return time.Now().Add(-ttl)
}

func (s *PostgresStore) Get(ctx context.Context, key string) (Record, error) {
	var rec Record
	err := s.DB.QueryRow(ctx, `
		SELECT key, user_id, method, path, status_code, content_type, response_body, created_at
		FROM idempotency_keys WHERE key=$1 AND created_at > $2`, key, s.cutoff()).
		Scan(&rec.Key, &rec.UserID, &rec.Method, &rec.Path, &rec.StatusCode, &rec.ContentType, &rec.Body, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get idempotency key: %w", err)
	}
	return rec, nil
}

// Insert tidak pernah menimpa record yang masih hidup: penulis kedua dapat ErrDuplicateRecord.
// Record yang sudah lewat TTL tapi belum di-purge boleh diganti.
func (s *PostgresStore) Insert(ctx context.Context, rec Record) error {
	ct, err := s.DB.Exec(ctx, `
		INSERT INTO idempotency_keys(key, user_id, method, path, status_code, content_type, response_body)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (key) DO UPDATE SET
			user_id = EXCLUDED.user_id, method = EXCLUDED.method, path = EXCLUDED.path,
			status_code = EXCLUDED.status_code, content_type = EXCLUDED.content_type,
			response_body = EXCLUDED.response_body, created_at = now()
		WHERE idempotency_keys.created_at <= $8`,
		rec.Key, rec.UserID, rec.Method, rec.Path, rec.StatusCode, rec.ContentType, rec.Body, s.cutoff())
	if postgres.IsUniqueViolation(err) {
		return ErrDuplicateRecord
	}
	if err != nil {
		return fmt.Errorf("insert idempotency key: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrDuplicateRecord
	}
	return nil
}

func (s *PostgresStore) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	ct, err := s.DB.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("purge idempotency keys: %w", err)
	}
	return ct.RowsAffected(), nil
}

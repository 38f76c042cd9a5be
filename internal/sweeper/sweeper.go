package sweeper

import (
	"context"
	"errors"
	"fmt"
	"go.uber.org/zap"
	"time"
)

const maxBatchesPerRun = 10

type Purger interface {
	Purge(ctx context.Context, olderThan time.Time) (int64, error)
}

type Releaser interface {
	ReleaseAbandoned(ctx context.Context, olderThan time.Duration, batch int) (int, error)
}

// Sweeper runs the periodic housekeeping jobs of the API process.
type Sweeper struct {
	Idem           Purger
	Orders         Releaser
	Interval       time.Duration
	IdemTTL        time.Duration
	AbandonedAfter time.Duration
	BatchSize      int
	Log            *zap.Logger

	now func() time.Time
}

// Run sweeps once immediately and then every Interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	log := s.logger()
	interval := s.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			log.Error("sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (s *Sweeper) RunOnce(ctx context.Context) error {
	var errs []error
	if s.Idem != nil && s.IdemTTL > 0 {
		n, err := s.Idem.Purge(ctx, s.clock().Add(-s.IdemTTL))
		if err != nil {
			errs = append(errs, fmt.Errorf("purge idempotency records: %w", err))
		} else if n > 0 {
			s.logger().Info("idempotency records purged", zap.Int64("count", n))
		}
	}
	if s.Orders != nil && s.AbandonedAfter > 0 {
		if err := s.releaseAll(ctx); err != nil {
			errs = append(errs, fmt.Errorf("release abandoned orders: %w", err))
		}
	}
	return errors.Join(errs...)
}

// releaseAll keeps pulling batches while they come back full.
func (s *Sweeper) releaseAll(ctx context.Context) error {
	batch := s.BatchSize
	if batch <= 0 {
		batch = 100
	}
	for i := 0; i < maxBatchesPerRun; i++ {
		n, err := s.Orders.ReleaseAbandoned(ctx, s.AbandonedAfter, batch)
		if err != nil {
			return err
		}
		if n < batch {
			return nil
		}
	}
	return nil
}

func (s *Sweeper) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func (s *Sweeper) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

package sweeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePurger struct {
	mu     sync.Mutex
	cutoff []time.Time
	err    error
}

func (p *fakePurger) Purge(_ context.Context, olderThan time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cutoff = append(p.cutoff, olderThan)
	return 3, p.err
}

func (p *fakePurger) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cutoff)
}

type fakeReleaser struct {
	results []int
	calls   int
	age     time.Duration
	err     error
}

func (r *fakeReleaser) ReleaseAbandoned(_ context.Context, olderThan time.Duration, _ int) (int, error) {
	r.age = olderThan
	if r.err != nil {
		return 0, r.err
	}
	n := 0
	if r.calls < len(r.results) {
		n = r.results[r.calls]
	}
	r.calls++
	return n, nil
}

func TestRunOncePurgesWithRetentionCutoff(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := &fakePurger{}
	s := &Sweeper{Idem: p, IdemTTL: 24 * time.Hour, now: func() time.Time { return now }}

	require.NoError(t, s.RunOnce(context.Background()))
	require.Len(t, p.cutoff, 1)
	assert.Equal(t, now.Add(-24*time.Hour), p.cutoff[0])
}

func TestRunOnceDrainsFullBatches(t *testing.T) {
	r := &fakeReleaser{results: []int{2, 2, 1}}
	s := &Sweeper{Orders: r, AbandonedAfter: 30 * time.Minute, BatchSize: 2}

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, 3, r.calls)
	assert.Equal(t, 30*time.Minute, r.age)
}

func TestRunOnceJoinsErrors(t *testing.T) {
	purgeErr := errors.New("db down")
	releaseErr := errors.New("tx failed")
	s := &Sweeper{
		Idem:           &fakePurger{err: purgeErr},
		IdemTTL:        time.Hour,
		Orders:         &fakeReleaser{err: releaseErr},
		AbandonedAfter: time.Minute,
	}

	err := s.RunOnce(context.Background())
	assert.ErrorIs(t, err, purgeErr)
	assert.ErrorIs(t, err, releaseErr)
}

func TestRunStopsOnCancel(t *testing.T) {
	p := &fakePurger{}
	s := &Sweeper{Idem: p, IdemTTL: time.Hour, Interval: 5 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return p.calls() >= 2 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

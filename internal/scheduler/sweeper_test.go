package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anishgillella/serene-sub003/internal/types"
	"github.com/anishgillella/serene-sub003/internal/types/interfaces"
)

type sweepCounter struct {
	sweeps atomic.Int32
	idle   atomic.Int64
	err    error
}

func (c *sweepCounter) GetOrFetch(ctx context.Context, _ string, _ types.CacheKey,
	fetch interfaces.FetchFunc,
) ([]*types.CandidateSegment, error) {
	return fetch(ctx)
}

func (c *sweepCounter) Invalidate(context.Context, types.CacheKey) error { return nil }

func (c *sweepCounter) EndSession(context.Context, string) error { return nil }

func (c *sweepCounter) Sweep(_ context.Context, idle time.Duration) (int, error) {
	c.sweeps.Add(1)
	c.idle.Store(int64(idle))
	return 1, c.err
}

// cron schedules at one-second granularity
func TestSweeperRunsOnSchedule(t *testing.T) {
	cache := &sweepCounter{}
	s, err := NewSessionSweeper(cache, "@every 1s", time.Hour)
	require.NoError(t, err)

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool { return cache.sweeps.Load() >= 1 }, 5*time.Second, 50*time.Millisecond)
	assert.Equal(t, int64(time.Hour), cache.idle.Load())
}

func TestSweeperSurvivesErrors(t *testing.T) {
	cache := &sweepCounter{err: errors.New("redis down")}
	s, err := NewSessionSweeper(cache, "@every 1s", time.Minute)
	require.NoError(t, err)

	assert.NotPanics(t, s.sweep)
	assert.NotPanics(t, s.sweep)
	assert.EqualValues(t, 2, cache.sweeps.Load())
	assert.Equal(t, int64(time.Minute), cache.idle.Load())
}

func TestSweeperRejectsBadSchedule(t *testing.T) {
	_, err := NewSessionSweeper(&sweepCounter{}, "every now and then", time.Minute)
	assert.Error(t, err)
}

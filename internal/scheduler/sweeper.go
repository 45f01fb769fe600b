// Package scheduler runs periodic maintenance jobs
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/anishgillella/serene-sub003/internal/logger"
	"github.com/anishgillella/serene-sub003/internal/types/interfaces"
)

// SessionSweeper ends cache sessions left idle, for clients that never call
// the end-session endpoint
type SessionSweeper struct {
	cron  *cron.Cron
	cache interfaces.SessionCache
	idle  time.Duration
}

// NewSessionSweeper schedules a sweep on schedule, a cron spec or
// "@every <duration>"
func NewSessionSweeper(cache interfaces.SessionCache, schedule string, idle time.Duration) (*SessionSweeper, error) {
	s := &SessionSweeper{
		cron:  cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		cache: cache,
		idle:  idle,
	}
	if _, err := s.cron.AddFunc(schedule, s.sweep); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *SessionSweeper) sweep() {
	ctx := logger.WithField(context.Background(), "job", "session_sweep")
	n, err := s.cache.Sweep(ctx, s.idle)
	if err != nil {
		logger.Warnf(ctx, "[SessionSweeper] Sweep failed: %v", err)
		return
	}
	if n > 0 {
		logger.Infof(ctx, "[SessionSweeper] Ended %d idle sessions", n)
	}
}

func (s *SessionSweeper) Start() {
	s.cron.Start()
}

// Stop waits for a running sweep to finish
func (s *SessionSweeper) Stop() {
	<-s.cron.Stop().Done()
}

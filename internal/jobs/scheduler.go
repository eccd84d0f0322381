// Package jobs runs the site's periodic housekeeping.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "guincheuse/internal/log"
)

// PruneSpec is how often expired rate-limit entries are dropped.
const PruneSpec = "*/10 * * * *"

// Pruner drops expired entries and reports how many went.
type Pruner interface {
	Prune(ctx context.Context) (int, error)
}

// Warmer refreshes a cache ahead of visitors.
type Warmer interface {
	Warm(ctx context.Context) error
}

// Scheduler owns a cron instance in the venue's timezone.
type Scheduler struct {
	cron    *cron.Cron
	timeout time.Duration
}

func New(loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(loc)),
		timeout: time.Minute,
	}
}

// AddPrune registers p on PruneSpec.
func (s *Scheduler) AddPrune(p Pruner) error {
	if _, err := s.cron.AddFunc(PruneSpec, func() { s.runPrune(p) }); err != nil {
		return fmt.Errorf("add prune job: %w", err)
	}
	return nil
}

// AddWarm registers w to run every interval. A non-positive interval
// registers nothing.
func (s *Scheduler) AddWarm(w Warmer, interval time.Duration) error {
	if interval <= 0 {
		return nil
	}
	spec := "@every " + interval.String()
	if _, err := s.cron.AddFunc(spec, func() { s.runWarm(w) }); err != nil {
		return fmt.Errorf("add warm job: %w", err)
	}
	return nil
}

// Start runs the scheduler until ctx is done, then waits for running jobs.
func (s *Scheduler) Start(ctx context.Context) {
	s.cron.Start()
	appLog.Info("scheduler started", "jobs", len(s.cron.Entries()))

	<-ctx.Done()
	stopped := s.cron.Stop()
	<-stopped.Done()
	appLog.Info("scheduler stopped")
}

func (s *Scheduler) runPrune(p Pruner) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	n, err := p.Prune(ctx)
	if err != nil {
		appLog.Error("rate limit prune failed", err)
		return
	}
	if n > 0 {
		appLog.Debug("rate limit entries pruned", "count", n)
	}
}

func (s *Scheduler) runWarm(w Warmer) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := w.Warm(ctx); err != nil {
		appLog.Warn("feed warm-up failed", "err", err)
	}
}

// Package sweeper periodically flags expired ledger records.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rohits-web03/clipdrop/internal/ledger"
)

const DefaultSchedule = "@every 1h"

type Sweeper struct {
	ledger   ledger.Ledger
	cron     *cron.Cron
	logger   *slog.Logger
	now      func() time.Time
	schedule string
}

// New validates schedule (standard five-field spec or a descriptor such as
// "@every 30m") and prepares the job. Call Start to begin.
func New(l ledger.Ledger, schedule string, logger *slog.Logger) (*Sweeper, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sweeper{
		ledger:   l,
		logger:   logger.With("component", "sweeper"),
		now:      time.Now,
		schedule: schedule,
	}
	s.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := s.cron.AddFunc(schedule, func() { s.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Sweeper) Start() {
	s.logger.Info("Sweeper started", "schedule", s.schedule)
	s.cron.Start()
}

// Stop waits for a running sweep to finish or ctx to expire.
func (s *Sweeper) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce prunes expired records and returns how many were flagged.
func (s *Sweeper) RunOnce(ctx context.Context) int64 {
	n, err := s.ledger.PruneExpired(ctx, s.now().UTC())
	if err != nil {
		s.logger.Error("Sweep failed", "error", err)
		return 0
	}
	if n > 0 {
		s.logger.Info("Expired clipboard items pruned", "count", n)
	} else {
		s.logger.Debug("Nothing to prune")
	}
	return n
}

package janitor

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler runs the janitor sweep on a fixed interval until its context is
// canceled. Sweep errors are logged and swallowed; a failing backend must
// never stop lease enforcement for the rows that can still make progress.
type Scheduler struct {
	janitor  *Janitor
	interval time.Duration
}

func NewScheduler(j *Janitor, interval time.Duration) *Scheduler {
	return &Scheduler{janitor: j, interval: interval}
}

// Start blocks, sweeping immediately and then once per interval. It returns
// nil on context cancellation.
func (s *Scheduler) Start(ctx context.Context) error {
	slog.InfoContext(ctx, "janitor started", "interval", s.interval)

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	if _, err := s.janitor.SweepOnce(ctx); err != nil {
		slog.ErrorContext(ctx, "sweep failed", "error", err)
	}
}

package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/yourorg/qualityhub/internal/observability/metrics"
)

// Task removes expired in-memory state and reports how many entries went.
type Task struct {
	Name  string
	Sweep func() int
}

// Sweeper periodically runs its tasks so idle cache entries and throttle
// buckets do not accumulate between requests.
type Sweeper struct {
	tasks    []Task
	logger   *slog.Logger
	interval time.Duration
}

// NewSweeper creates a sweeper that runs every interval.
func NewSweeper(tasks []Task, logger *slog.Logger, interval time.Duration) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{tasks: tasks, logger: logger, interval: interval}
}

// Start runs the sweep loop until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("sweeper started", slog.Duration("interval", s.interval), slog.Int("tasks", len(s.tasks)))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return
		case <-ticker.C:
			s.RunOnce()
		}
	}
}

// RunOnce runs every task a single time. A panicking task is logged and
// does not stop the others.
func (s *Sweeper) RunOnce() {
	for _, t := range s.tasks {
		removed := s.run(t)
		metrics.ObserveSweep(t.Name, removed)
		if removed > 0 {
			s.logger.Debug("swept expired entries", slog.String("task", t.Name), slog.Int("removed", removed))
		}
	}
}

func (s *Sweeper) run(t Task) (removed int) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("sweep task panicked", slog.String("task", t.Name), slog.Any("panic", r))
			removed = 0
		}
	}()
	return t.Sweep()
}

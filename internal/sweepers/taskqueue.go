package sweepers

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// OrphanRecoverer is the queue maintenance surface the sweeper drives.
type OrphanRecoverer interface {
	RecoverOrphanedTasks(ctx context.Context) (recovered, failed int, err error)
	CleanupOldTasks(ctx context.Context, daysToKeep int) (int, error)
}

// TaskQueueSweeper periodically redelivers tasks whose lease expired and
// prunes finished tasks.
type TaskQueueSweeper struct {
	queue     OrphanRecoverer
	logger    *zerolog.Logger
	interval  time.Duration
	keepDays  int
	lastPurge time.Time
	stopChan  chan struct{}
	onRecover func(recovered, failed int)
}

// NewTaskQueueSweeper creates a new sweeper for task queue maintenance
func NewTaskQueueSweeper(queue OrphanRecoverer, logger *zerolog.Logger, interval time.Duration) *TaskQueueSweeper {
	return &TaskQueueSweeper{
		queue:    queue,
		logger:   logger,
		interval: interval,
		keepDays: 7,
		stopChan: make(chan struct{}),
	}
}

// OnRecover registers a callback for non-empty recovery sweeps.
func (s *TaskQueueSweeper) OnRecover(fn func(recovered, failed int)) {
	s.onRecover = fn
}

// Start begins the periodic recovery sweep
func (s *TaskQueueSweeper) Start(ctx context.Context) {
	s.logger.Info().
		Dur("interval", s.interval).
		Msg("Starting task queue sweeper")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Task queue sweeper stopping (context cancelled)")
			return
		case <-s.stopChan:
			s.logger.Info().Msg("Task queue sweeper stopping (stop signal)")
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.Error().Err(err).Msg("Task queue sweep failed")
			}
		}
	}
}

// Stop signals the sweeper to stop
func (s *TaskQueueSweeper) Stop() {
	close(s.stopChan)
}

// Sweep recovers orphaned tasks and, at most once a day, deletes finished
// tasks older than the retention.
func (s *TaskQueueSweeper) Sweep(ctx context.Context) error {
	s.logger.Debug().Msg("Running orphaned task recovery")

	recovered, failed, err := s.queue.RecoverOrphanedTasks(ctx)
	if err != nil {
		return fmt.Errorf("failed to recover orphaned tasks: %w", err)
	}

	if recovered > 0 || failed > 0 {
		s.logger.Info().
			Int("recovered", recovered).
			Int("failed", failed).
			Msg("Recovered orphaned tasks")
		if s.onRecover != nil {
			s.onRecover(recovered, failed)
		}
	}

	if time.Since(s.lastPurge) < 24*time.Hour {
		return nil
	}
	deleted, err := s.queue.CleanupOldTasks(ctx, s.keepDays)
	if err != nil {
		return fmt.Errorf("failed to clean up old tasks: %w", err)
	}
	s.lastPurge = time.Now()
	if deleted > 0 {
		s.logger.Info().Int("deleted", deleted).Int("keep_days", s.keepDays).Msg("Pruned finished tasks")
	}
	return nil
}

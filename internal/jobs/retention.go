// Package jobs runs periodic housekeeping against the ledger and task queue.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// RetentionConfig holds retention windows for finished bookkeeping rows
type RetentionConfig struct {
	Interval     time.Duration // how often to prune
	PollStateAge time.Duration // finished poll states older than this are deleted
	QueueDays    int           // finished queue tasks older than this are deleted
	Enabled      bool
}

// DefaultRetentionConfig returns the default retention configuration
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		Interval:     6 * time.Hour,
		PollStateAge: 7 * 24 * time.Hour,
		QueueDays:    14,
		Enabled:      true,
	}
}

// PollPruner deletes terminal poll states.
type PollPruner interface {
	PruneFinishedPollStates(ctx context.Context, before time.Time) (int, error)
}

// QueuePruner deletes finished queue tasks.
type QueuePruner interface {
	CleanupOldTasks(ctx context.Context, daysToKeep int) (int, error)
}

// PruneResult counts the rows removed by one pass.
type PruneResult struct {
	PollStates int
	QueueTasks int
}

// RetentionManager prunes finished poll states and queue tasks on a ticker.
// Request and job records are never pruned; they are the audit trail.
type RetentionManager struct {
	config RetentionConfig
	polls  PollPruner
	queue  QueuePruner
	logger *zerolog.Logger
	now    func() time.Time

	wg sync.WaitGroup
}

// NewRetentionManager creates a retention manager. queue may be nil.
func NewRetentionManager(config RetentionConfig, polls PollPruner, queue QueuePruner, logger *zerolog.Logger) *RetentionManager {
	def := DefaultRetentionConfig()
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	if config.PollStateAge <= 0 {
		config.PollStateAge = def.PollStateAge
	}
	if config.QueueDays <= 0 {
		config.QueueDays = def.QueueDays
	}
	return &RetentionManager{
		config: config,
		polls:  polls,
		queue:  queue,
		logger: logger,
		now:    time.Now,
	}
}

// Start runs a pass immediately and then every interval until ctx is done.
func (rm *RetentionManager) Start(ctx context.Context) {
	if !rm.config.Enabled {
		rm.logger.Info().Msg("Retention jobs are disabled, not starting")
		return
	}

	rm.logger.Info().
		Dur("interval", rm.config.Interval).
		Dur("poll_state_age", rm.config.PollStateAge).
		Int("queue_days", rm.config.QueueDays).
		Msg("Starting retention manager")

	rm.wg.Add(1)
	go func() {
		defer rm.wg.Done()
		ticker := time.NewTicker(rm.config.Interval)
		defer ticker.Stop()

		rm.RunOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				rm.logger.Debug().Msg("Retention job stopped")
				return
			case <-ticker.C:
				rm.RunOnce(ctx)
			}
		}
	}()
}

// Wait blocks until the loop started by Start has returned.
func (rm *RetentionManager) Wait() {
	rm.wg.Wait()
}

// RunOnce performs a single pruning pass. Failures are logged and the
// other prune still runs.
func (rm *RetentionManager) RunOnce(ctx context.Context) PruneResult {
	start := rm.now()
	var res PruneResult

	n, err := rm.polls.PruneFinishedPollStates(ctx, start.Add(-rm.config.PollStateAge))
	if err != nil {
		rm.logger.Error().Err(err).Msg("Failed to prune poll states")
	} else {
		res.PollStates = n
	}

	if rm.queue != nil {
		n, err := rm.queue.CleanupOldTasks(ctx, rm.config.QueueDays)
		if err != nil {
			rm.logger.Error().Err(err).Msg("Failed to prune queue tasks")
		} else {
			res.QueueTasks = n
		}
	}

	ev := rm.logger.Debug()
	if res.PollStates > 0 || res.QueueTasks > 0 {
		ev = rm.logger.Info()
	}
	ev.Int("poll_states", res.PollStates).
		Int("queue_tasks", res.QueueTasks).
		Dur("duration", time.Since(start)).
		Msg("Retention pass finished")
	return res
}

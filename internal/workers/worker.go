package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lakewatch/thermal-service/internal/apperrors"
	"github.com/lakewatch/thermal-service/internal/taskqueue"
)

// Queue is the subset of the task queue a worker consumes.
type Queue interface {
	ClaimTasks(ctx context.Context, input taskqueue.ClaimTasksInput) taskqueue.ClaimTasksResult
	ValidatePayload(task taskqueue.ClaimedTask) error
	ExtendLease(ctx context.Context, taskID string, lease time.Duration) error
	CompleteTask(ctx context.Context, taskID string, result interface{}) error
	FailTask(ctx context.Context, taskID, errorMessage string, shouldRetry bool) (bool, error)
}

// Handler processes one task payload.
type Handler func(ctx context.Context, payload []byte) error

type WorkerConfig struct {
	WorkerID   string
	TaskTypes  []string
	MaxTasks   int
	NumWorkers int
	PollDelay  time.Duration
	// Lease is how long a claimed task stays invisible to other workers.
	// It is renewed every Lease/3 while the handler runs.
	Lease time.Duration
}

type Worker struct {
	queue    Queue
	config   WorkerConfig
	handlers map[string]Handler
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func New(queue Queue, config WorkerConfig) *Worker {
	if config.NumWorkers < 1 {
		config.NumWorkers = 1
	}
	if config.MaxTasks < 1 {
		config.MaxTasks = 1
	}
	if config.PollDelay <= 0 {
		config.PollDelay = 2 * time.Second
	}
	if config.Lease <= 0 {
		config.Lease = 15 * time.Minute
	}
	return &Worker{
		queue:    queue,
		config:   config,
		handlers: make(map[string]Handler),
		stopChan: make(chan struct{}),
	}
}

func (w *Worker) RegisterHandler(taskType string, handler Handler) {
	w.handlers[taskType] = handler
}

func (w *Worker) Start(ctx context.Context) {
	log.Info().
		Str("component", "worker").
		Str("worker_id", w.config.WorkerID).
		Strs("task_types", w.config.TaskTypes).
		Int("goroutines", w.config.NumWorkers).
		Msg("Starting worker")

	for i := 0; i < w.config.NumWorkers; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// Stop signals every loop to exit and waits for in-flight tasks.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
	log.Info().
		Str("component", "worker").
		Str("worker_id", w.config.WorkerID).
		Msg("Worker stopping, waiting for in-flight tasks")
	w.wg.Wait()
	log.Info().
		Str("component", "worker").
		Str("worker_id", w.config.WorkerID).
		Msg("Worker stopped")
}

func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()
	workerID := fmt.Sprintf("%s-%d", w.config.WorkerID, workerNum)
	log.Debug().
		Str("component", "worker").
		Str("worker_id", workerID).
		Msg("Starting worker goroutine")

	ticker := time.NewTicker(w.config.PollDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().
				Str("component", "worker").
				Str("worker_id", workerID).
				Msg("Worker shutting down")
			return

		case <-w.stopChan:
			log.Info().
				Str("component", "worker").
				Str("worker_id", workerID).
				Msg("Worker received stop signal")
			return

		case <-ticker.C:
			w.ProcessOnce(ctx, workerID)
		}
	}
}

// ProcessOnce claims one batch and runs it to completion. It returns the
// number of tasks claimed.
func (w *Worker) ProcessOnce(ctx context.Context, workerID string) int {
	claimResult := w.queue.ClaimTasks(ctx, taskqueue.ClaimTasksInput{
		WorkerID:  workerID,
		TaskTypes: w.config.TaskTypes,
		MaxTasks:  w.config.MaxTasks,
		Lease:     w.config.Lease,
	})

	if claimResult.Err != nil {
		log.Error().Err(claimResult.Err).Msg("Failed to claim tasks")
		return 0
	}

	if len(claimResult.Tasks) == 0 {
		return 0
	}

	log.Debug().
		Str("component", "worker").
		Str("worker_id", workerID).
		Int("task_count", len(claimResult.Tasks)).
		Msg("Worker claimed tasks")

	for _, task := range claimResult.Tasks {
		w.processTask(ctx, workerID, task)
	}
	return len(claimResult.Tasks)
}

func (w *Worker) processTask(ctx context.Context, workerID string, task taskqueue.ClaimedTask) {
	logger := log.With().
		Str("component", "worker").
		Str("worker_id", workerID).
		Str("task_id", task.ID).
		Str("task_type", task.TaskType).
		Int("retry_count", task.RetryCount).
		Logger()

	handler, exists := w.handlers[task.TaskType]
	if !exists {
		logger.Warn().Msg("No handler for task type")
		w.fail(ctx, task, "no handler registered", false)
		return
	}

	if err := w.queue.ValidatePayload(task); err != nil {
		logger.Error().Err(err).Msg("Payload rejected")
		w.fail(ctx, task, fmt.Sprintf("payload invalid: %v", err), false)
		return
	}

	logger.Info().Msg("Worker processing task")
	started := time.Now()

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)
		w.heartbeat(hbCtx, task.ID)
	}()

	handlerErr := w.runHandler(ctx, handler, task.Payload)
	stopHeartbeat()
	<-heartbeatDone

	if handlerErr != nil {
		w.fail(ctx, task, handlerErr.Error(), !apperrors.Permanent(handlerErr))
		logger.Error().Err(handlerErr).Dur("duration", time.Since(started)).Msg("Task failed")
		return
	}

	if err := w.queue.CompleteTask(ctx, task.ID, map[string]int64{"durationMs": time.Since(started).Milliseconds()}); err != nil {
		logger.Error().Err(err).Msg("Failed to mark task as completed")
		return
	}

	logger.Info().Dur("duration", time.Since(started)).Msg("Worker completed task")
}

func (w *Worker) runHandler(ctx context.Context, handler Handler, payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, payload)
}

func (w *Worker) heartbeat(ctx context.Context, taskID string) {
	ticker := time.NewTicker(w.config.Lease / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.queue.ExtendLease(ctx, taskID, w.config.Lease); err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Str("task_id", taskID).Msg("Failed to extend task lease")
			}
		}
	}
}

func (w *Worker) fail(ctx context.Context, task taskqueue.ClaimedTask, msg string, retry bool) {
	redelivered, err := w.queue.FailTask(ctx, task.ID, msg, retry)
	if err != nil {
		log.Error().Err(err).Str("task_id", task.ID).Msg("Failed to record task failure")
		return
	}
	if redelivered {
		log.Info().Str("task_id", task.ID).Msg("Task scheduled for redelivery")
	}
}

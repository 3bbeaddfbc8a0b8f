package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lakewatch/thermal-service/internal/apperrors"
)

type TaskQueue struct {
	pool       *pgxpool.Pool
	validator  *Validator
	retryDelay time.Duration
	maxRetries int
}

// Option configures a TaskQueue.
type Option func(*TaskQueue)

// WithValidator rejects payloads that do not match their task type's schema.
func WithValidator(v *Validator) Option {
	return func(q *TaskQueue) { q.validator = v }
}

// WithRetryDelay sets the base redelivery delay. It doubles per retry.
func WithRetryDelay(d time.Duration) Option {
	return func(q *TaskQueue) { q.retryDelay = d }
}

// WithMaxRetries sets the redelivery budget of tasks that do not set one.
func WithMaxRetries(n int) Option {
	return func(q *TaskQueue) { q.maxRetries = n }
}

func New(pool *pgxpool.Pool, opts ...Option) *TaskQueue {
	q := &TaskQueue{pool: pool, retryDelay: 10 * time.Second, maxRetries: 3}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *TaskQueue) GetPool() *pgxpool.Pool {
	return q.pool
}

type ScheduleTaskInput struct {
	TaskType    string
	Payload     interface{}
	Priority    int
	ScheduledAt *time.Time
	MaxRetries  int
}

type ScheduleTaskResult struct {
	ID  string
	Err error
}

func (q *TaskQueue) ScheduleTask(ctx context.Context, input ScheduleTaskInput) ScheduleTaskResult {
	payload, err := json.Marshal(input.Payload)
	if err != nil {
		return ScheduleTaskResult{Err: err}
	}
	if q.validator != nil {
		if err := q.validator.Validate(input.TaskType, payload); err != nil {
			return ScheduleTaskResult{Err: apperrors.Validation("%v", err)}
		}
	}

	maxRetries := q.maxRetries
	if input.MaxRetries > 0 {
		maxRetries = input.MaxRetries
	}

	scheduledFor := time.Now()
	if input.ScheduledAt != nil {
		scheduledFor = *input.ScheduledAt
	}

	var id string
	err = q.pool.QueryRow(ctx, `
		INSERT INTO task_queue (task_type, payload, priority, scheduled_for, max_retries)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id::text
	`, input.TaskType, payload, input.Priority, scheduledFor, maxRetries).Scan(&id)
	if err != nil {
		return ScheduleTaskResult{Err: err}
	}

	return ScheduleTaskResult{ID: id}
}

// Enqueue schedules a task for immediate delivery.
func (q *TaskQueue) Enqueue(ctx context.Context, taskType string, payload any) (string, error) {
	res := q.ScheduleTask(ctx, ScheduleTaskInput{TaskType: taskType, Payload: payload})
	if res.Err != nil {
		return "", fmt.Errorf("enqueue %s: %w", taskType, res.Err)
	}
	return res.ID, nil
}

type ClaimTasksInput struct {
	WorkerID  string
	TaskTypes []string
	MaxTasks  int
	Lease     time.Duration
}

type ClaimTasksResult struct {
	Tasks []ClaimedTask
	Err   error
}

// ClaimTasks leases up to MaxTasks due tasks to a worker. A task whose
// lease expires before it completes is redelivered by the sweeper.
func (q *TaskQueue) ClaimTasks(ctx context.Context, input ClaimTasksInput) ClaimTasksResult {
	lease := input.Lease
	if lease <= 0 {
		lease = 5 * time.Minute
	}
	rows, err := q.pool.Query(ctx, `
		WITH next AS (
			SELECT id FROM task_queue
			WHERE status = 'pending'
			  AND scheduled_for <= NOW()
			  AND task_type = ANY($2)
			ORDER BY priority DESC, scheduled_for, created_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		UPDATE task_queue t
		SET status = 'processing',
		    worker_id = $1,
		    started_at = NOW(),
		    lease_until = NOW() + make_interval(secs => $4),
		    updated_at = NOW()
		FROM next
		WHERE t.id = next.id
		RETURNING t.id::text, t.task_type, t.payload, t.retry_count
	`, input.WorkerID, input.TaskTypes, input.MaxTasks, lease.Seconds())
	if err != nil {
		return ClaimTasksResult{Err: err}
	}
	defer rows.Close()

	tasks := make([]ClaimedTask, 0)
	for rows.Next() {
		var task ClaimedTask
		var payload []byte
		if err := rows.Scan(&task.ID, &task.TaskType, &payload, &task.RetryCount); err != nil {
			return ClaimTasksResult{Err: err}
		}
		task.Payload = payload
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return ClaimTasksResult{Err: err}
	}

	return ClaimTasksResult{Tasks: tasks}
}

// ValidatePayload checks a claimed task's payload when a validator is set.
func (q *TaskQueue) ValidatePayload(task ClaimedTask) error {
	if q.validator == nil {
		return nil
	}
	return q.validator.Validate(task.TaskType, task.Payload)
}

// ExtendLease pushes out the lease of a task the caller is still working on.
func (q *TaskQueue) ExtendLease(ctx context.Context, taskID string, lease time.Duration) error {
	_, err := q.pool.Exec(ctx, `
		UPDATE task_queue
		SET lease_until = NOW() + make_interval(secs => $2), updated_at = NOW()
		WHERE id::text = $1 AND status = 'processing'
	`, taskID, lease.Seconds())
	return err
}

func (q *TaskQueue) CompleteTask(ctx context.Context, taskID string, result interface{}) error {
	var resultJSON []byte
	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return err
		}
		resultJSON = data
	}

	_, err := q.pool.Exec(ctx, `
		UPDATE task_queue
		SET status = 'completed',
		    completed_at = NOW(),
		    lease_until = NULL,
		    result = $2,
		    updated_at = NOW()
		WHERE id::text = $1
	`, taskID, resultJSON)
	return err
}

// FailTask records a failed attempt. With shouldRetry and retries left the
// task goes back to pending after an exponential delay; otherwise it is
// failed for good. It reports whether the task will be redelivered.
func (q *TaskQueue) FailTask(ctx context.Context, taskID, errorMessage string, shouldRetry bool) (bool, error) {
	var status string
	err := q.pool.QueryRow(ctx, `
		UPDATE task_queue
		SET status = CASE WHEN $3 AND retry_count < max_retries THEN 'pending' ELSE 'failed' END,
		    scheduled_for = CASE WHEN $3 AND retry_count < max_retries
		        THEN NOW() + make_interval(secs => $4 * power(2, retry_count))
		        ELSE scheduled_for END,
		    failed_at = CASE WHEN $3 AND retry_count < max_retries THEN failed_at ELSE NOW() END,
		    retry_count = CASE WHEN $3 AND retry_count < max_retries THEN retry_count + 1 ELSE retry_count END,
		    error_message = $2,
		    lease_until = NULL,
		    worker_id = NULL,
		    updated_at = NOW()
		WHERE id::text = $1
		RETURNING status
	`, taskID, errorMessage, shouldRetry, q.retryDelay.Seconds()).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, apperrors.NotFound("task %s not found", taskID)
	}
	if err != nil {
		return false, err
	}
	return status == string(StatusPending), nil
}

// RecoverOrphanedTasks returns tasks with an expired lease to pending, or
// fails them once their retries are used up.
func (q *TaskQueue) RecoverOrphanedTasks(ctx context.Context) (recovered, failed int, err error) {
	rows, err := q.pool.Query(ctx, `
		UPDATE task_queue
		SET status = CASE WHEN retry_count < max_retries THEN 'pending' ELSE 'failed' END,
		    retry_count = CASE WHEN retry_count < max_retries THEN retry_count + 1 ELSE retry_count END,
		    failed_at = CASE WHEN retry_count < max_retries THEN failed_at ELSE NOW() END,
		    error_message = 'lease expired',
		    lease_until = NULL,
		    worker_id = NULL,
		    updated_at = NOW()
		WHERE status IN ('claimed', 'processing')
		  AND lease_until < NOW()
		RETURNING status
	`)
	if err != nil {
		return 0, 0, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		if err := rows.Scan(&status); err != nil {
			return 0, 0, err
		}
		if status == string(StatusPending) {
			recovered++
		} else {
			failed++
		}
	}
	return recovered, failed, rows.Err()
}

func (q *TaskQueue) CleanupOldTasks(ctx context.Context, daysToKeep int) (int, error) {
	tag, err := q.pool.Exec(ctx, `
		DELETE FROM task_queue
		WHERE status IN ('completed', 'failed', 'cancelled')
		  AND updated_at < NOW() - make_interval(days => $1)
	`, daysToKeep)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (q *TaskQueue) CancelTask(ctx context.Context, taskID string) error {
	_, err := q.pool.Exec(ctx, `
		UPDATE task_queue
		SET status = 'cancelled', lease_until = NULL, updated_at = NOW()
		WHERE id::text = $1 AND status IN ('pending', 'claimed')
	`, taskID)
	return err
}

// Stats counts tasks per type and status.
func (q *TaskQueue) Stats(ctx context.Context) (map[string]map[TaskStatus]int, error) {
	rows, err := q.pool.Query(ctx, `SELECT task_type, status, COUNT(*) FROM task_queue GROUP BY task_type, status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]map[TaskStatus]int)
	for rows.Next() {
		var taskType string
		var status TaskStatus
		var n int
		if err := rows.Scan(&taskType, &status, &n); err != nil {
			return nil, err
		}
		if out[taskType] == nil {
			out[taskType] = make(map[TaskStatus]int)
		}
		out[taskType][status] = n
	}
	return out, rows.Err()
}

func (q *TaskQueue) GetTask(ctx context.Context, taskID string) (*Task, error) {
	var task Task
	var payload []byte
	err := q.pool.QueryRow(ctx, `
		SELECT id::text, task_type, payload, priority, status,
		       scheduled_for, started_at, completed_at, failed_at, lease_until,
		       worker_id, retry_count, max_retries, error_message,
		       created_at, updated_at
		FROM task_queue
		WHERE id::text = $1
	`, taskID).Scan(
		&task.ID, &task.TaskType, &payload, &task.Priority, &task.Status,
		&task.ScheduledFor, &task.StartedAt, &task.CompletedAt, &task.FailedAt, &task.LeaseUntil,
		&task.WorkerID, &task.RetryCount, &task.MaxRetries, &task.ErrorMessage,
		&task.CreatedAt, &task.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("task %s not found", taskID)
	}
	if err != nil {
		return nil, err
	}
	task.Payload = payload
	return &task, nil
}

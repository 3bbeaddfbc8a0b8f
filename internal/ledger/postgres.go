package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lakewatch/thermal-service/internal/apperrors"
	"github.com/lakewatch/thermal-service/internal/database"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgStore implements Ledger on PostgreSQL.
type PgStore struct {
	pool *pgxpool.Pool
	q    querier
}

// NewPgStore returns a store backed by pool.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool, q: pool}
}

var _ Ledger = (*PgStore)(nil)

const requestColumns = `
	id::text, external_task_id, trigger_type, triggered_by, description,
	date_range_start, date_range_end, scene_count, parent_request_id::text,
	dispatched_at, error_message, created_at, updated_at`

func scanRequest(row pgx.Row) (*database.ProcessingRequest, error) {
	var r database.ProcessingRequest
	err := row.Scan(
		&r.ID, &r.ExternalTaskID, &r.TriggerType, &r.TriggeredBy, &r.Description,
		&r.DateRangeStart, &r.DateRangeEnd, &r.SceneCount, &r.ParentRequestID,
		&r.DispatchedAt, &r.ErrorMessage, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func collectRequests(rows pgx.Rows) ([]database.ProcessingRequest, error) {
	defer rows.Close()
	out := make([]database.ProcessingRequest, 0)
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// CreateRequest inserts a request and fills in its id and timestamps.
func (s *PgStore) CreateRequest(ctx context.Context, req *database.ProcessingRequest) error {
	if !req.TriggerType.Valid() {
		return apperrors.Validation("invalid trigger type %q", req.TriggerType)
	}
	err := s.q.QueryRow(ctx, `
		INSERT INTO processing_requests (
			external_task_id, trigger_type, triggered_by, description,
			date_range_start, date_range_end, scene_count, parent_request_id,
			error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8::uuid, $9)
		RETURNING id::text, created_at, updated_at
	`,
		req.ExternalTaskID, string(req.TriggerType), req.TriggeredBy, req.Description,
		req.DateRangeStart, req.DateRangeEnd, req.SceneCount, req.ParentRequestID,
		req.ErrorMessage,
	).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

// GetRequest loads one request.
func (s *PgStore) GetRequest(ctx context.Context, id string) (*database.ProcessingRequest, error) {
	r, err := scanRequest(s.q.QueryRow(ctx, `SELECT `+requestColumns+` FROM processing_requests WHERE id::text = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("request %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get request %s: %w", id, err)
	}
	return r, nil
}

// ListRequests returns requests newest first.
func (s *PgStore) ListRequests(ctx context.Context, limit, offset int) ([]database.ProcessingRequest, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.q.Query(ctx, `
		SELECT `+requestColumns+`
		FROM processing_requests
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return collectRequests(rows)
}

// RequestsByTask returns requests for a provider task, oldest first.
func (s *PgStore) RequestsByTask(ctx context.Context, taskID string) ([]database.ProcessingRequest, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+requestColumns+`
		FROM processing_requests
		WHERE external_task_id = $1
		ORDER BY created_at ASC, id
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("requests for task %s: %w", taskID, err)
	}
	return collectRequests(rows)
}

// PendingRequests returns submitted, undispatched, error-free requests.
func (s *PgStore) PendingRequests(ctx context.Context) ([]database.ProcessingRequest, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+requestColumns+`
		FROM processing_requests
		WHERE external_task_id IS NOT NULL
		  AND scene_count IS NULL
		  AND dispatched_at IS NULL
		  AND error_message IS NULL
		  AND trigger_type <> 'reprocess'
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("pending requests: %w", err)
	}
	return collectRequests(rows)
}

func (s *PgStore) updateRequest(ctx context.Context, id, set string, args ...any) (int64, error) {
	args = append([]any{id}, args...)
	tag, err := s.q.Exec(ctx, `UPDATE processing_requests SET `+set+`, updated_at = NOW() WHERE id::text = $1`, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// HasScheduledRequest checks for a scheduled request over the same window.
func (s *PgStore) HasScheduledRequest(ctx context.Context, start, end time.Time) (bool, error) {
	var exists bool
	err := s.q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM processing_requests
			WHERE trigger_type = 'scheduled'
			  AND date_range_start = $1::date
			  AND date_range_end = $2::date
		)
	`, start.Format(time.DateOnly), end.Format(time.DateOnly)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("find scheduled request: %w", err)
	}
	return exists, nil
}

// SetTaskID assigns the provider task id.
func (s *PgStore) SetTaskID(ctx context.Context, requestID, taskID string) error {
	n, err := s.updateRequest(ctx, requestID, `external_task_id = $2`, taskID)
	if err != nil {
		return fmt.Errorf("set task id: %w", err)
	}
	if n == 0 {
		return apperrors.NotFound("request %s not found", requestID)
	}
	return nil
}

// SetSceneCount sets scene_count once.
func (s *PgStore) SetSceneCount(ctx context.Context, requestID string, count int) (bool, error) {
	tag, err := s.q.Exec(ctx, `
		UPDATE processing_requests
		SET scene_count = $2, updated_at = NOW()
		WHERE id::text = $1 AND scene_count IS NULL
	`, requestID, count)
	if err != nil {
		return false, fmt.Errorf("set scene count: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkDispatched records when fan-out started.
func (s *PgStore) MarkDispatched(ctx context.Context, requestID string, at time.Time) error {
	if _, err := s.updateRequest(ctx, requestID, `dispatched_at = COALESCE(dispatched_at, $2)`, at); err != nil {
		return fmt.Errorf("mark dispatched: %w", err)
	}
	return nil
}

// MarkError sets the request error and fails its started jobs.
func (s *PgStore) MarkError(ctx context.Context, requestID, message string) error {
	if _, err := s.updateRequest(ctx, requestID, `error_message = $2`, message); err != nil {
		return fmt.Errorf("mark error: %w", err)
	}
	_, err := s.q.Exec(ctx, `
		UPDATE job_records
		SET status = 'failed',
		    completed_at = NOW(),
		    duration_ms = (EXTRACT(EPOCH FROM (NOW() - started_at)) * 1000)::bigint,
		    error_message = $2
		WHERE request_id::text = $1 AND status = 'started'
	`, requestID, message)
	if err != nil {
		return fmt.Errorf("fail started jobs: %w", err)
	}
	return nil
}

const jobColumns = `
	id, request_id::text, job_type, task_id, feature_id, date, status,
	started_at, completed_at, duration_ms, error_message, metadata`

func scanJob(row pgx.Row) (*database.JobRecord, error) {
	var j database.JobRecord
	var meta []byte
	err := row.Scan(
		&j.ID, &j.RequestID, &j.JobType, &j.TaskID, &j.FeatureID, &j.Date, &j.Status,
		&j.StartedAt, &j.CompletedAt, &j.DurationMs, &j.ErrorMessage, &meta,
	)
	if err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		j.Metadata = json.RawMessage(meta)
	}
	return &j, nil
}

func collectJobs(rows pgx.Rows) ([]database.JobRecord, error) {
	defer rows.Close()
	out := make([]database.JobRecord, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

func nullableJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

// StartJob appends a started job.
func (s *PgStore) StartJob(ctx context.Context, job *database.JobRecord) error {
	job.Status = database.JobStarted
	err := s.q.QueryRow(ctx, `
		INSERT INTO job_records (request_id, job_type, task_id, feature_id, date, status, metadata)
		VALUES ($1::uuid, $2, $3, $4, $5, 'started', $6)
		RETURNING id, started_at
	`, job.RequestID, string(job.JobType), job.TaskID, job.FeatureID, job.Date, nullableJSON(job.Metadata),
	).Scan(&job.ID, &job.StartedAt)
	if err != nil {
		return fmt.Errorf("start job: %w", err)
	}
	return nil
}

// SetJobTaskID sets task_id on an existing job.
func (s *PgStore) SetJobTaskID(ctx context.Context, id int64, taskID string) error {
	tag, err := s.q.Exec(ctx, `UPDATE job_records SET task_id = $2 WHERE id = $1`, id, taskID)
	if err != nil {
		return fmt.Errorf("set job %d task id: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("job %d not found", id)
	}
	return nil
}

// FinishJob completes a started job. Finishing an already-terminal job is
// a no-op.
func (s *PgStore) FinishJob(ctx context.Context, id int64, status database.JobStatus, errMsg string, metadata []byte) error {
	if !status.Terminal() {
		return apperrors.Validation("finish job %d with non-terminal status %q", id, status)
	}
	var msg *string
	if errMsg != "" {
		msg = &errMsg
	}
	if len(metadata) == 0 {
		metadata = nil
	}
	_, err := s.q.Exec(ctx, `
		UPDATE job_records
		SET status = $2,
		    completed_at = NOW(),
		    duration_ms = (EXTRACT(EPOCH FROM (NOW() - started_at)) * 1000)::bigint,
		    error_message = $3,
		    metadata = COALESCE($4, metadata)
		WHERE id = $1 AND status = 'started'
	`, id, string(status), msg, metadata)
	if err != nil {
		return fmt.Errorf("finish job %d: %w", id, err)
	}
	return nil
}

// AppendJob inserts a complete job record.
func (s *PgStore) AppendJob(ctx context.Context, job *database.JobRecord) error {
	if job.StartedAt.IsZero() {
		job.StartedAt = time.Now()
	}
	err := s.q.QueryRow(ctx, `
		INSERT INTO job_records (
			request_id, job_type, task_id, feature_id, date, status,
			started_at, completed_at, duration_ms, error_message, metadata
		) VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`, job.RequestID, string(job.JobType), job.TaskID, job.FeatureID, job.Date, string(job.Status),
		job.StartedAt, job.CompletedAt, job.DurationMs, job.ErrorMessage, nullableJSON(job.Metadata),
	).Scan(&job.ID)
	if err != nil {
		return fmt.Errorf("append job: %w", err)
	}
	return nil
}

// JobsForRequest returns a request's jobs in ledger order.
func (s *PgStore) JobsForRequest(ctx context.Context, requestID string) ([]database.JobRecord, error) {
	rows, err := s.q.Query(ctx, `SELECT `+jobColumns+` FROM job_records WHERE request_id::text = $1 ORDER BY id`, requestID)
	if err != nil {
		return nil, fmt.Errorf("jobs for request %s: %w", requestID, err)
	}
	return collectJobs(rows)
}

// ListJobs returns jobs matching filter, newest first.
func (s *PgStore) ListJobs(ctx context.Context, f database.JobFilter) ([]database.JobRecord, error) {
	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.RequestID != "" {
		add("request_id::text = $%d", f.RequestID)
	}
	if f.TaskID != "" {
		add("task_id = $%d", f.TaskID)
	}
	if f.JobType != "" {
		add("job_type = $%d", string(f.JobType))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.From != nil {
		add("started_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("started_at < $%d", *f.To)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + jobColumns + ` FROM job_records`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY id DESC LIMIT $%d`, len(args))

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return collectJobs(rows)
}

// WithTaskLock runs fn in a transaction holding a transaction-scoped
// advisory lock on taskID.
func (s *PgStore) WithTaskLock(ctx context.Context, taskID string, fn func(Store) error) error {
	if s.pool == nil {
		return fn(s)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "task:"+taskID); err != nil {
		return fmt.Errorf("lock task %s: %w", taskID, err)
	}
	if err := fn(&PgStore{q: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// UpsertSceneMetadata writes the summary row for (feature, date),
// replacing any previous one.
func (s *PgStore) UpsertSceneMetadata(ctx context.Context, m *database.SceneMetadata) error {
	hist, err := json.Marshal(m.Histogram)
	if err != nil {
		return fmt.Errorf("encode histogram: %w", err)
	}
	artifacts, err := json.Marshal(m.Artifacts)
	if err != nil {
		return fmt.Errorf("encode artifacts: %w", err)
	}
	err = s.q.QueryRow(ctx, `
		INSERT INTO scene_metadata (
			feature_id, date, location, request_id, task_id, scene_id,
			min_temp, max_temp, mean_temp, median_temp, std_dev,
			valid_pixels, total_pixels, water_pixel_count, land_pixel_count,
			wtoff, histogram, csv_path, tif_path, png_path, artifacts
		) VALUES (
			$1, $2, $3, NULLIF($4, '')::uuid, $5, $6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16, $17, $18, $19, $20, $21
		)
		ON CONFLICT (feature_id, date) DO UPDATE SET
			location = EXCLUDED.location,
			request_id = EXCLUDED.request_id,
			task_id = EXCLUDED.task_id,
			scene_id = EXCLUDED.scene_id,
			min_temp = EXCLUDED.min_temp,
			max_temp = EXCLUDED.max_temp,
			mean_temp = EXCLUDED.mean_temp,
			median_temp = EXCLUDED.median_temp,
			std_dev = EXCLUDED.std_dev,
			valid_pixels = EXCLUDED.valid_pixels,
			total_pixels = EXCLUDED.total_pixels,
			water_pixel_count = EXCLUDED.water_pixel_count,
			land_pixel_count = EXCLUDED.land_pixel_count,
			wtoff = EXCLUDED.wtoff,
			histogram = EXCLUDED.histogram,
			csv_path = EXCLUDED.csv_path,
			tif_path = EXCLUDED.tif_path,
			png_path = EXCLUDED.png_path,
			artifacts = EXCLUDED.artifacts,
			updated_at = NOW()
		RETURNING created_at, updated_at
	`,
		m.FeatureID, m.Date, m.Location, m.RequestID, m.TaskID, m.SceneID,
		m.MinTemp, m.MaxTemp, m.MeanTemp, m.MedianTemp, m.StdDev,
		m.ValidPixels, m.TotalPixels, m.WaterPixelCount, m.LandPixelCount,
		m.WaterOff, hist, m.CSVPath, m.TIFPath, m.PNGPath, artifacts,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert scene metadata %s/%s: %w", m.FeatureID, m.Date, err)
	}
	return nil
}

const metadataColumns = `
	feature_id, date, location, COALESCE(request_id::text, ''), COALESCE(task_id, ''), scene_id,
	min_temp, max_temp, mean_temp, median_temp, std_dev,
	valid_pixels, total_pixels, water_pixel_count, land_pixel_count,
	wtoff, histogram, COALESCE(csv_path, ''), COALESCE(tif_path, ''), COALESCE(png_path, ''),
	artifacts, created_at, updated_at`

func scanMetadata(row pgx.Row) (*database.SceneMetadata, error) {
	var m database.SceneMetadata
	var hist, artifacts []byte
	err := row.Scan(
		&m.FeatureID, &m.Date, &m.Location, &m.RequestID, &m.TaskID, &m.SceneID,
		&m.MinTemp, &m.MaxTemp, &m.MeanTemp, &m.MedianTemp, &m.StdDev,
		&m.ValidPixels, &m.TotalPixels, &m.WaterPixelCount, &m.LandPixelCount,
		&m.WaterOff, &hist, &m.CSVPath, &m.TIFPath, &m.PNGPath,
		&artifacts, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(hist) > 0 {
		if err := json.Unmarshal(hist, &m.Histogram); err != nil {
			return nil, fmt.Errorf("decode histogram: %w", err)
		}
	}
	if len(artifacts) > 0 {
		if err := json.Unmarshal(artifacts, &m.Artifacts); err != nil {
			return nil, fmt.Errorf("decode artifacts: %w", err)
		}
	}
	return &m, nil
}

// GetSceneMetadata loads one summary row.
func (s *PgStore) GetSceneMetadata(ctx context.Context, featureID, date string) (*database.SceneMetadata, error) {
	m, err := scanMetadata(s.q.QueryRow(ctx, `
		SELECT `+metadataColumns+` FROM scene_metadata WHERE feature_id = $1 AND date = $2
	`, featureID, date))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("no metadata for %s on %s", featureID, date)
	}
	if err != nil {
		return nil, fmt.Errorf("get scene metadata: %w", err)
	}
	return m, nil
}

// ListSceneMetadata returns a feature's rows, newest acquisition first.
func (s *PgStore) ListSceneMetadata(ctx context.Context, featureID string) ([]database.SceneMetadata, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+metadataColumns+` FROM scene_metadata WHERE feature_id = $1 ORDER BY date DESC
	`, featureID)
	if err != nil {
		return nil, fmt.Errorf("list scene metadata: %w", err)
	}
	defer rows.Close()
	out := make([]database.SceneMetadata, 0)
	for rows.Next() {
		m, err := scanMetadata(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// UpsertFeature records a feature, keeping the greatest latest date.
func (s *PgStore) UpsertFeature(ctx context.Context, f *database.Feature) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO features (id, name, location, latest_date, last_updated)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			location = EXCLUDED.location,
			latest_date = GREATEST(features.latest_date, EXCLUDED.latest_date),
			last_updated = NOW()
	`, f.ID, f.Name, f.Location, f.LatestDate)
	if err != nil {
		return fmt.Errorf("upsert feature %s: %w", f.ID, err)
	}
	return nil
}

// ListFeatures returns all features by id.
func (s *PgStore) ListFeatures(ctx context.Context) ([]database.Feature, error) {
	rows, err := s.q.Query(ctx, `SELECT id, name, location, latest_date, last_updated FROM features ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list features: %w", err)
	}
	defer rows.Close()
	out := make([]database.Feature, 0)
	for rows.Next() {
		var f database.Feature
		if err := rows.Scan(&f.ID, &f.Name, &f.Location, &f.LatestDate, &f.LastUpdated); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

const pollColumns = `
	task_id, request_id::text, current_wait_seconds, next_check_at, attempts,
	last_status, state, lease_until, created_at, updated_at`

func scanPollState(row pgx.Row) (*database.PollState, error) {
	var ps database.PollState
	err := row.Scan(
		&ps.TaskID, &ps.RequestID, &ps.CurrentWaitSeconds, &ps.NextCheckAt, &ps.Attempts,
		&ps.LastStatus, &ps.State, &ps.LeaseUntil, &ps.CreatedAt, &ps.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &ps, nil
}

// CreatePollState starts the poller for a task. A second state for the same
// task is a conflict.
func (s *PgStore) CreatePollState(ctx context.Context, ps *database.PollState) error {
	if ps.State == "" {
		ps.State = database.PollWaiting
	}
	err := s.q.QueryRow(ctx, `
		INSERT INTO poll_states (task_id, request_id, current_wait_seconds, next_check_at, attempts, state)
		VALUES ($1, $2::uuid, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, ps.TaskID, ps.RequestID, ps.CurrentWaitSeconds, ps.NextCheckAt, ps.Attempts, string(ps.State),
	).Scan(&ps.CreatedAt, &ps.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return apperrors.Conflict("task %s is already being polled", ps.TaskID)
		}
		return fmt.Errorf("create poll state: %w", err)
	}
	return nil
}

// GetPollState loads the state for a task.
func (s *PgStore) GetPollState(ctx context.Context, taskID string) (*database.PollState, error) {
	ps, err := scanPollState(s.q.QueryRow(ctx, `SELECT `+pollColumns+` FROM poll_states WHERE task_id = $1`, taskID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("no poll state for task %s", taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("get poll state: %w", err)
	}
	return ps, nil
}

// LeaseDuePollStates claims due waiting states for this runner.
func (s *PgStore) LeaseDuePollStates(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]database.PollState, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.q.Query(ctx, `
		UPDATE poll_states
		SET lease_until = $2, updated_at = NOW()
		WHERE task_id IN (
			SELECT task_id FROM poll_states
			WHERE state = 'waiting'
			  AND next_check_at <= $1
			  AND (lease_until IS NULL OR lease_until < $1)
			ORDER BY next_check_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+pollColumns,
		now, now.Add(lease), limit)
	if err != nil {
		return nil, fmt.Errorf("lease poll states: %w", err)
	}
	defer rows.Close()
	out := make([]database.PollState, 0)
	for rows.Next() {
		ps, err := scanPollState(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ps)
	}
	return out, rows.Err()
}

// SavePollState writes back a state and clears its lease.
func (s *PgStore) SavePollState(ctx context.Context, ps *database.PollState) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE poll_states
		SET current_wait_seconds = $2,
		    next_check_at = $3,
		    attempts = $4,
		    last_status = $5,
		    state = $6,
		    lease_until = NULL,
		    updated_at = NOW()
		WHERE task_id = $1
	`, ps.TaskID, ps.CurrentWaitSeconds, ps.NextCheckAt, ps.Attempts, ps.LastStatus, string(ps.State))
	if err != nil {
		return fmt.Errorf("save poll state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("no poll state for task %s", ps.TaskID)
	}
	ps.LeaseUntil = nil
	return nil
}

// PruneFinishedPollStates removes terminal poll rows older than before.
func (s *PgStore) PruneFinishedPollStates(ctx context.Context, before time.Time) (int, error) {
	tag, err := s.q.Exec(ctx, `
		DELETE FROM poll_states
		WHERE state IN ('done', 'failed')
		  AND updated_at < $1
	`, before)
	if err != nil {
		return 0, fmt.Errorf("prune poll states: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

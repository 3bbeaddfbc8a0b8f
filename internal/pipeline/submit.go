package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/lakewatch/thermal-service/internal/apperrors"
	"github.com/lakewatch/thermal-service/internal/database"
	"github.com/lakewatch/thermal-service/internal/ledger"
	"github.com/lakewatch/thermal-service/internal/provider"
	"github.com/lakewatch/thermal-service/internal/regions"
	"github.com/lakewatch/thermal-service/internal/telemetry"
)

// SubmitConfig controls the provider task built for each request.
type SubmitConfig struct {
	TaskName      string
	Product       string
	Layers        []string
	DateDelayDays int
	Retry         Retry
	// BaseWait is the first poll interval of a new task.
	BaseWait time.Duration
}

// SubmitInput triggers one acquisition. Zero dates select the default
// single-day window.
type SubmitInput struct {
	Start       time.Time
	End         time.Time
	TriggerType database.TriggerType
	TriggeredBy string
	Description string
}

// Submitter creates processing requests and submits their provider tasks.
type Submitter struct {
	store   ledger.Ledger
	api     provider.API
	regions *regions.Catalog
	cfg     SubmitConfig
	now     func() time.Time
}

func NewSubmitter(store ledger.Ledger, api provider.API, catalog *regions.Catalog, cfg SubmitConfig) *Submitter {
	return &Submitter{store: store, api: api, regions: catalog, cfg: cfg, now: time.Now}
}

// DefaultWindow is the single day DateDelayDays before now.
func (s *Submitter) DefaultWindow() (time.Time, time.Time) {
	day := s.now().UTC().AddDate(0, 0, -s.cfg.DateDelayDays)
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return day, day
}

// SubmitScheduled submits the default window at most once across every
// scheduler sharing the ledger. It returns nil, nil when a scheduled request
// for the window already exists.
func (s *Submitter) SubmitScheduled(ctx context.Context) (*database.ProcessingRequest, error) {
	start, end := s.DefaultWindow()
	day := start.Format(time.DateOnly)

	var req *database.ProcessingRequest
	err := s.store.WithTaskLock(ctx, "scheduled:"+day, func(tx ledger.Store) error {
		exists, err := tx.HasScheduledRequest(ctx, start, end)
		if err != nil {
			return err
		}
		if exists {
			log.Info().Str("component", "submitter").Str("window", day).
				Msg("Scheduled request already exists, skipping")
			return nil
		}
		req, err = s.Submit(ctx, SubmitInput{
			Start:       start,
			End:         end,
			TriggerType: database.TriggerScheduled,
			TriggeredBy: "scheduler",
			Description: "daily acquisition " + day,
		})
		return err
	})
	return req, err
}

// Submit records a request, submits the provider task and starts polling.
// A provider failure is recorded on the request and returned.
func (s *Submitter) Submit(ctx context.Context, in SubmitInput) (*database.ProcessingRequest, error) {
	ctx, span := tracer.Start(ctx, "pipeline.Submit")
	defer span.End()

	if in.TriggerType == "" {
		in.TriggerType = database.TriggerManual
	}
	if !in.TriggerType.Valid() || in.TriggerType == database.TriggerReprocess {
		return nil, apperrors.Validation("trigger type %q cannot submit a task", in.TriggerType)
	}
	if in.Start.IsZero() && in.End.IsZero() {
		in.Start, in.End = s.DefaultWindow()
	}
	if in.End.IsZero() {
		in.End = in.Start
	}
	if in.Start.IsZero() || in.End.Before(in.Start) {
		return nil, apperrors.Validation("invalid date range %s..%s", in.Start.Format(time.DateOnly), in.End.Format(time.DateOnly))
	}
	if s.regions == nil || s.regions.Len() == 0 {
		return nil, apperrors.Validation("no regions of interest configured")
	}

	req := &database.ProcessingRequest{
		TriggerType:    in.TriggerType,
		TriggeredBy:    in.TriggeredBy,
		Description:    in.Description,
		DateRangeStart: in.Start,
		DateRangeEnd:   in.End,
	}
	if err := s.store.CreateRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	span.SetAttributes(attribute.String("request_id", req.ID))

	logger := log.With().Str("component", "submitter").Str("request_id", req.ID).Logger()

	job := &database.JobRecord{RequestID: req.ID, JobType: database.JobSubmit, Status: database.JobStarted}
	if err := s.store.StartJob(ctx, job); err != nil {
		return nil, fmt.Errorf("start submit job: %w", err)
	}

	task := provider.AreaTask(s.cfg.TaskName, s.cfg.Product, s.cfg.Layers, s.regions.GeoJSON(), in.Start, in.End)
	taskID, err := withRetry(ctx, s.cfg.Retry, "submit", func(ctx context.Context) (string, error) {
		return s.api.SubmitTask(ctx, task)
	})
	if err != nil {
		recordSubmission(false)
		telemetry.Fail(span, err, "submit failed")
		logger.Error().Err(err).Msg("Provider task submission failed")
		msg := fmt.Sprintf("submit failed: %v", err)
		if ferr := s.store.FinishJob(ctx, job.ID, database.JobFailed, msg, nil); ferr != nil {
			logger.Error().Err(ferr).Msg("Failed to finish submit job")
		}
		if merr := s.store.MarkError(ctx, req.ID, msg); merr != nil {
			logger.Error().Err(merr).Msg("Failed to mark request failed")
		}
		req.ErrorMessage = &msg
		return req, err
	}

	if err := s.store.SetTaskID(ctx, req.ID, taskID); err != nil {
		return nil, fmt.Errorf("record task id: %w", err)
	}
	req.ExternalTaskID = &taskID
	if err := s.store.SetJobTaskID(ctx, job.ID, taskID); err != nil {
		return nil, fmt.Errorf("record submit job task id: %w", err)
	}
	job.TaskID = &taskID

	meta, _ := json.Marshal(map[string]any{
		"taskId":    taskID,
		"startDate": in.Start.Format(time.DateOnly),
		"endDate":   in.End.Format(time.DateOnly),
		"regions":   s.regions.Len(),
	})
	if err := s.store.FinishJob(ctx, job.ID, database.JobSuccess, "", meta); err != nil {
		return nil, fmt.Errorf("finish submit job: %w", err)
	}

	wait := s.cfg.BaseWait
	if wait <= 0 {
		wait = 30 * time.Second
	}
	if err := s.store.CreatePollState(ctx, &database.PollState{
		TaskID:             taskID,
		RequestID:          req.ID,
		CurrentWaitSeconds: int(wait / time.Second),
		NextCheckAt:        s.now().Add(wait),
		State:              database.PollWaiting,
	}); err != nil && !apperrors.Is(err, apperrors.CodeConflict) {
		return nil, fmt.Errorf("create poll state: %w", err)
	}

	recordSubmission(true)
	span.SetAttributes(attribute.String("task_id", taskID))
	logger.Info().Str("task_id", taskID).
		Str("start", in.Start.Format(time.DateOnly)).
		Str("end", in.End.Format(time.DateOnly)).
		Msg("Provider task submitted")
	return req, nil
}

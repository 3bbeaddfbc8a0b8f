package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/lakewatch/thermal-service/internal/apperrors"
	"github.com/lakewatch/thermal-service/internal/database"
	"github.com/lakewatch/thermal-service/internal/ledger"
	"github.com/lakewatch/thermal-service/internal/taskqueue"
)

// ReprocessInput asks for an already-completed provider task to be
// expanded and processed again.
type ReprocessInput struct {
	TaskID      string `json:"taskId" binding:"required"`
	TriggeredBy string `json:"triggeredBy"`
	Description string `json:"description"`
}

// Guard admits reprocess requests: one active reprocess per task, and only
// while the provider still retains the task's outputs.
type Guard struct {
	store     ledger.Store
	enqueuer  Enqueuer
	retention time.Duration
	now       func() time.Time
}

func NewGuard(store ledger.Store, enqueuer Enqueuer, retention time.Duration) *Guard {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &Guard{store: store, enqueuer: enqueuer, retention: retention, now: time.Now}
}

// Reprocess creates a reprocess request and dispatches its fan-out. The
// checks and the insert run under the task's lock so concurrent calls for
// one task admit at most one request.
func (g *Guard) Reprocess(ctx context.Context, in ReprocessInput) (*database.ProcessingRequest, error) {
	ctx, span := tracer.Start(ctx, "pipeline.Reprocess")
	defer span.End()

	in.TaskID = strings.TrimSpace(in.TaskID)
	if in.TaskID == "" {
		return nil, apperrors.Validation("taskId is required")
	}
	span.SetAttributes(attribute.String("task_id", in.TaskID))

	var created *database.ProcessingRequest
	err := g.store.WithTaskLock(ctx, in.TaskID, func(tx ledger.Store) error {
		reqs, err := tx.RequestsByTask(ctx, in.TaskID)
		if err != nil {
			return err
		}

		var original *database.ProcessingRequest
		for i := range reqs {
			r := &reqs[i]
			if r.TriggerType != database.TriggerReprocess {
				if original == nil {
					original = r
				}
				continue
			}
			status, err := ledger.StatusOf(ctx, tx, r)
			if err != nil {
				return err
			}
			if status.Active() {
				return apperrors.Conflict("reprocess %s of task %s is still %s", r.ID, in.TaskID, status)
			}
		}
		if original == nil {
			return apperrors.NotFound("no request found for task %s", in.TaskID)
		}

		if age := g.now().Sub(original.CreatedAt); age > g.retention {
			return apperrors.StaleReprocess("task %s was submitted %s ago, outputs are retained for %s",
				in.TaskID, age.Round(time.Hour), g.retention)
		}

		taskID := in.TaskID
		parentID := original.ID
		req := &database.ProcessingRequest{
			ExternalTaskID:  &taskID,
			TriggerType:     database.TriggerReprocess,
			TriggeredBy:     in.TriggeredBy,
			Description:     in.Description,
			DateRangeStart:  original.DateRangeStart,
			DateRangeEnd:    original.DateRangeEnd,
			ParentRequestID: &parentID,
		}
		if err := tx.CreateRequest(ctx, req); err != nil {
			return fmt.Errorf("create reprocess request: %w", err)
		}
		created = req
		return nil
	})
	if err != nil {
		reprocessRequests.WithLabelValues(string(decisionOf(err))).Inc()
		return nil, err
	}

	logger := log.With().Str("component", "reprocess").Str("task_id", in.TaskID).Str("request_id", created.ID).Logger()

	payload := taskqueue.FanoutPayload{RequestID: created.ID, TaskID: in.TaskID}
	if _, err := g.enqueuer.Enqueue(ctx, taskqueue.TaskTypeFanout, payload); err != nil {
		msg := fmt.Sprintf("dispatch fan-out: %v", err)
		if merr := g.store.MarkError(ctx, created.ID, msg); merr != nil {
			logger.Error().Err(merr).Msg("Failed to mark reprocess request failed")
		}
		reprocessRequests.WithLabelValues("dispatch_failed").Inc()
		return nil, fmt.Errorf("dispatch reprocess %s: %w", created.ID, err)
	}
	if err := g.store.MarkDispatched(ctx, created.ID, g.now()); err != nil {
		logger.Warn().Err(err).Msg("Failed to record dispatch time")
	}

	reprocessRequests.WithLabelValues("accepted").Inc()
	logger.Info().Str("parent_request_id", *created.ParentRequestID).Msg("Reprocess dispatched")
	return created, nil
}

func decisionOf(err error) apperrors.Code {
	if code := apperrors.CodeOf(err); code != "" {
		return code
	}
	return "error"
}

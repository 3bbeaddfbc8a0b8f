package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/lakewatch/thermal-service/internal/apperrors"
	"github.com/lakewatch/thermal-service/internal/ledger"
	"github.com/lakewatch/thermal-service/internal/provider"
	"github.com/lakewatch/thermal-service/internal/taskqueue"
	"github.com/lakewatch/thermal-service/internal/telemetry"
)

// FanOut expands a completed provider task into one queue task per scene.
type FanOut struct {
	store    ledger.Store
	api      provider.API
	enqueuer Enqueuer
	retry    Retry
}

func NewFanOut(store ledger.Store, api provider.API, enqueuer Enqueuer, retry Retry) *FanOut {
	return &FanOut{store: store, api: api, enqueuer: enqueuer, retry: retry}
}

// FanOutResult reports what one expansion did.
type FanOutResult struct {
	Scenes  int      `json:"scenes"`
	Skipped []string `json:"skipped,omitempty"`
	// Already is set when the request had been expanded before.
	Already bool `json:"already"`
}

// Run expands the manifest of a request's task. The scene count is set
// only after every scene is enqueued, so a redelivered fan-out after a
// partial failure re-emits the full set; duplicates are harmless because
// scene processing is idempotent.
func (f *FanOut) Run(ctx context.Context, p taskqueue.FanoutPayload) (*FanOutResult, error) {
	ctx, span := tracer.Start(ctx, "pipeline.FanOut")
	defer span.End()
	span.SetAttributes(attribute.String("request_id", p.RequestID), attribute.String("task_id", p.TaskID))

	logger := log.With().Str("component", "fanout").Str("request_id", p.RequestID).Str("task_id", p.TaskID).Logger()

	req, err := f.store.GetRequest(ctx, p.RequestID)
	if err != nil {
		return nil, err
	}
	if req.TaskID() != p.TaskID {
		return nil, apperrors.Validation("request %s is not bound to task %s", p.RequestID, p.TaskID)
	}
	if req.SceneCount != nil {
		logger.Info().Int("scene_count", *req.SceneCount).Msg("Request already expanded")
		return &FanOutResult{Scenes: *req.SceneCount, Already: true}, nil
	}
	if req.ErrorMessage != nil {
		logger.Info().Str("error", *req.ErrorMessage).Msg("Request already failed, not expanding")
		return &FanOutResult{Already: true}, nil
	}

	bundle, err := withRetry(ctx, f.retry, "bundle", func(ctx context.Context) (*provider.Bundle, error) {
		return f.api.Bundle(ctx, p.TaskID)
	})
	if err != nil {
		telemetry.Fail(span, err, "manifest retrieval failed")
		msg := fmt.Sprintf("manifest retrieval failed: %v", err)
		if merr := f.store.MarkError(ctx, p.RequestID, msg); merr != nil {
			return nil, fmt.Errorf("mark request failed: %w", merr)
		}
		logger.Error().Err(err).Msg("Manifest retrieval failed")
		return nil, fmt.Errorf("%s: %w", msg, apperrors.TaskFailure(p.TaskID, "manifest unavailable"))
	}

	scenes, skipped := GroupScenes(p.RequestID, bundle)
	for _, name := range skipped {
		manifestSkipped.Inc()
		logger.Warn().Err(apperrors.ManifestParse(name)).Msg("Skipping manifest file")
	}

	for _, s := range scenes {
		if _, err := f.enqueuer.Enqueue(ctx, taskqueue.TaskTypeProcessScene, s); err != nil {
			return nil, fmt.Errorf("enqueue scene %s: %w", s.SceneID, err)
		}
	}

	set, err := f.store.SetSceneCount(ctx, p.RequestID, len(scenes))
	if err != nil {
		return nil, fmt.Errorf("set scene count: %w", err)
	}
	if !set {
		logger.Warn().Msg("Scene count was set concurrently")
	}
	scenesDispatched.Add(float64(len(scenes)))
	span.SetAttributes(attribute.Int("scenes", len(scenes)))
	logger.Info().Int("scenes", len(scenes)).Int("skipped", len(skipped)).Msg("Manifest expanded")
	return &FanOutResult{Scenes: len(scenes), Skipped: skipped}, nil
}

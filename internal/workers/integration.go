package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/lakewatch/thermal-service/internal/apperrors"
	"github.com/lakewatch/thermal-service/internal/pipeline"
	"github.com/lakewatch/thermal-service/internal/taskqueue"
)

// FanOutRunner expands a finished provider task into scene tasks.
type FanOutRunner interface {
	Run(ctx context.Context, p taskqueue.FanoutPayload) (*pipeline.FanOutResult, error)
}

// SceneProcessor processes one scene.
type SceneProcessor interface {
	Process(ctx context.Context, s taskqueue.ScenePayload) (*pipeline.SceneOutcome, error)
}

// NewPipelineWorker returns a worker consuming both pipeline task types.
func NewPipelineWorker(queue Queue, config WorkerConfig, fanout FanOutRunner, scenes SceneProcessor) *Worker {
	if len(config.TaskTypes) == 0 {
		config.TaskTypes = []string{taskqueue.TaskTypeFanout, taskqueue.TaskTypeProcessScene}
	}
	if config.WorkerID == "" {
		config.WorkerID = DefaultWorkerID()
	}
	w := New(queue, config)
	w.RegisterHandler(taskqueue.TaskTypeFanout, NewFanOutHandler(fanout))
	w.RegisterHandler(taskqueue.TaskTypeProcessScene, NewSceneHandler(scenes))
	return w
}

// DefaultWorkerID names a worker after its host plus a random suffix, so
// restarted processes never share a lease owner.
func DefaultWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
}

func NewFanOutHandler(fanout FanOutRunner) Handler {
	return func(ctx context.Context, payload []byte) error {
		var p taskqueue.FanoutPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return apperrors.Validation("failed to unmarshal fanout payload: %v", err)
		}
		res, err := fanout.Run(ctx, p)
		if err != nil {
			return err
		}
		log.Debug().Str("request_id", p.RequestID).Int("scenes", res.Scenes).Bool("already", res.Already).Msg("Fan-out handled")
		return nil
	}
}

func NewSceneHandler(scenes SceneProcessor) Handler {
	return func(ctx context.Context, payload []byte) error {
		var s taskqueue.ScenePayload
		if err := json.Unmarshal(payload, &s); err != nil {
			return apperrors.Validation("failed to unmarshal scene payload: %v", err)
		}
		_, err := scenes.Process(ctx, s)
		return err
	}
}

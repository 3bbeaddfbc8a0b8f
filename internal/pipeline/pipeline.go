// Package pipeline implements the acquisition pipeline: submitting provider
// tasks, polling them to completion, expanding finished tasks into scene
// work items, processing scenes and guarding reprocess requests.
package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lakewatch/thermal-service/internal/apperrors"
	"github.com/lakewatch/thermal-service/internal/http/ratelimit"
	"github.com/lakewatch/thermal-service/internal/telemetry"
)

var tracer = telemetry.Tracer("github.com/lakewatch/thermal-service/internal/pipeline")

// Enqueuer hands work items to the task queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, taskType string, payload any) (string, error)
}

// Retry bounds call-site retries of transient provider errors.
type Retry struct {
	Attempts int
	Delay    time.Duration
}

// withRetry runs fn until it succeeds, returns a non-transient error, or
// the attempts are used up.
func withRetry[T any](ctx context.Context, r Retry, op string, fn func(context.Context) (T, error)) (T, error) {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var zero T
	var err error
	for i := 0; i < attempts; i++ {
		var out T
		out, err = fn(ctx)
		if err == nil {
			return out, nil
		}
		if !apperrors.IsTransient(err) || i == attempts-1 {
			break
		}
		log.Warn().Err(err).Str("op", op).Int("attempt", i+1).Msg("Transient provider error, retrying")
		if serr := ratelimit.Sleep(ctx, r.Delay); serr != nil {
			return zero, serr
		}
	}
	return zero, err
}

func strPtr(s string) *string {
	return &s
}

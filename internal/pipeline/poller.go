package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"

	"github.com/lakewatch/thermal-service/internal/apperrors"
	"github.com/lakewatch/thermal-service/internal/database"
	"github.com/lakewatch/thermal-service/internal/ledger"
	"github.com/lakewatch/thermal-service/internal/provider"
	"github.com/lakewatch/thermal-service/internal/taskqueue"
)

// PollerConfig tunes the status polling state machine.
type PollerConfig struct {
	BaseWait            time.Duration
	MaxWait             time.Duration
	StatusRetries       int
	StatusRetryInterval time.Duration
	TickInterval        time.Duration
	Lease               time.Duration
	MaxConcurrent       int
}

func (c PollerConfig) withDefaults() PollerConfig {
	if c.BaseWait <= 0 {
		c.BaseWait = 30 * time.Second
	}
	if c.MaxWait <= 0 {
		c.MaxWait = time.Hour
	}
	if c.StatusRetries <= 0 {
		c.StatusRetries = 3
	}
	if c.StatusRetryInterval <= 0 {
		c.StatusRetryInterval = 10 * time.Second
	}
	if c.TickInterval <= 0 {
		c.TickInterval = 15 * time.Second
	}
	if c.Lease <= 0 {
		c.Lease = 5 * time.Minute
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 4
	}
	return c
}

// NextWait doubles the current wait, capped at limit.
func NextWait(current, base, limit time.Duration) time.Duration {
	if current < base {
		current = base / 2
	}
	next := current * 2
	if next > limit || next <= 0 {
		return limit
	}
	return next
}

// Poller drives provider tasks from submitted to done or failed.
type Poller struct {
	store    ledger.Ledger
	api      provider.API
	enqueuer Enqueuer
	cfg      PollerConfig
	now      func() time.Time
	sleep    func(context.Context, time.Duration) error

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewPoller(store ledger.Ledger, api provider.API, enqueuer Enqueuer, cfg PollerConfig) *Poller {
	return &Poller{
		store:    store,
		api:      api,
		enqueuer: enqueuer,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
		sleep:    sleepCtx,
		stopCh:   make(chan struct{}),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// checkStatus asks the provider for a task status, retrying at a fixed
// interval. Exhausting the retries returns the last error.
func (p *Poller) checkStatus(ctx context.Context, taskID string) (string, error) {
	var err error
	for i := 0; i < p.cfg.StatusRetries; i++ {
		var status string
		status, err = p.api.TaskStatus(ctx, taskID)
		if err == nil {
			return status, nil
		}
		if !apperrors.IsTransient(err) {
			return "", err
		}
		log.Warn().Err(err).Str("task_id", taskID).Int("attempt", i+1).Msg("Status check failed")
		if i < p.cfg.StatusRetries-1 {
			if serr := p.sleep(ctx, p.cfg.StatusRetryInterval); serr != nil {
				return "", serr
			}
		}
	}
	return "", err
}

// Step runs one CheckStatus transition for a leased poll state and persists
// the outcome.
func (p *Poller) Step(ctx context.Context, ps database.PollState) (database.PollStateKind, error) {
	ctx, span := tracer.Start(ctx, "pipeline.PollStep")
	defer span.End()
	span.SetAttributes(attribute.String("task_id", ps.TaskID), attribute.Int("attempts", ps.Attempts))

	logger := log.With().Str("component", "poller").Str("task_id", ps.TaskID).Str("request_id", ps.RequestID).Logger()

	status, err := p.checkStatus(ctx, ps.TaskID)
	if ctx.Err() != nil {
		return ps.State, ctx.Err()
	}
	ps.Attempts++
	if err != nil {
		recordPollCheck("unreachable", 0)
		return database.PollFailed, p.fail(ctx, &ps, fmt.Sprintf("status check failed: %v", err), logger)
	}
	ps.LastStatus = &status

	switch status {
	case provider.StatusDone:
		recordPollCheck(status, 0)
		if err := p.dispatch(ctx, &ps); err != nil {
			// Lease expiry hands the state to the next tick.
			logger.Error().Err(err).Msg("Failed to dispatch fan-out")
			return ps.State, err
		}
		logger.Info().Int("attempts", ps.Attempts).Msg("Task done, fan-out dispatched")
		return database.PollDone, nil

	case provider.StatusError:
		recordPollCheck(status, 0)
		cause := apperrors.TaskFailure(ps.TaskID, status)
		return database.PollFailed, p.fail(ctx, &ps, cause.Error(), logger)

	default:
		wait := NextWait(time.Duration(ps.CurrentWaitSeconds)*time.Second, p.cfg.BaseWait, p.cfg.MaxWait)
		recordPollCheck(status, wait)
		ps.CurrentWaitSeconds = int(wait / time.Second)
		ps.NextCheckAt = p.now().Add(wait)
		ps.State = database.PollWaiting
		if err := p.store.SavePollState(ctx, &ps); err != nil {
			return ps.State, fmt.Errorf("save poll state: %w", err)
		}
		logger.Debug().Str("status", status).Dur("next_wait", wait).Msg("Task not ready")
		return database.PollWaiting, nil
	}
}

func (p *Poller) dispatch(ctx context.Context, ps *database.PollState) error {
	payload := taskqueue.FanoutPayload{RequestID: ps.RequestID, TaskID: ps.TaskID}
	if _, err := p.enqueuer.Enqueue(ctx, taskqueue.TaskTypeFanout, payload); err != nil {
		return err
	}
	if err := p.store.MarkDispatched(ctx, ps.RequestID, p.now()); err != nil {
		return fmt.Errorf("mark dispatched: %w", err)
	}
	ps.State = database.PollDone
	if err := p.store.SavePollState(ctx, ps); err != nil {
		return fmt.Errorf("save poll state: %w", err)
	}
	return nil
}

// fail ends polling for a task and records the failure on its request.
func (p *Poller) fail(ctx context.Context, ps *database.PollState, msg string, logger zerolog.Logger) error {
	ps.State = database.PollFailed
	if err := p.store.SavePollState(ctx, ps); err != nil {
		return fmt.Errorf("save poll state: %w", err)
	}
	now := p.now()
	meta, _ := json.Marshal(map[string]any{"attempts": ps.Attempts, "lastStatus": ps.LastStatus})
	taskID := ps.TaskID
	if err := p.store.AppendJob(ctx, &database.JobRecord{
		RequestID:    ps.RequestID,
		JobType:      database.JobSubmit,
		TaskID:       &taskID,
		Status:       database.JobFailed,
		StartedAt:    now,
		CompletedAt:  &now,
		ErrorMessage: &msg,
		Metadata:     meta,
	}); err != nil {
		return fmt.Errorf("append failed job: %w", err)
	}
	if err := p.store.MarkError(ctx, ps.RequestID, msg); err != nil {
		return fmt.Errorf("mark request failed: %w", err)
	}
	logger.Error().Str("reason", msg).Msg("Task failed")
	return nil
}

// adopt creates poll states for submitted requests that have none, so a
// crash between submit and poll state creation does not strand them.
func (p *Poller) adopt(ctx context.Context) (int, error) {
	pending, err := p.store.PendingRequests(ctx)
	if err != nil {
		return 0, err
	}
	adopted := 0
	for _, req := range pending {
		taskID := req.TaskID()
		if _, err := p.store.GetPollState(ctx, taskID); err == nil {
			continue
		} else if !apperrors.Is(err, apperrors.CodeNotFound) {
			return adopted, err
		}
		err := p.store.CreatePollState(ctx, &database.PollState{
			TaskID:             taskID,
			RequestID:          req.ID,
			CurrentWaitSeconds: int(p.cfg.BaseWait / time.Second),
			NextCheckAt:        p.now(),
			State:              database.PollWaiting,
		})
		if err != nil && !apperrors.Is(err, apperrors.CodeConflict) {
			return adopted, err
		}
		if err == nil {
			adopted++
		}
	}
	return adopted, nil
}

// RunOnce adopts orphaned requests, then leases every due poll state and
// steps them with bounded concurrency. It returns the number stepped.
func (p *Poller) RunOnce(ctx context.Context) (int, error) {
	if n, err := p.adopt(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to adopt pending requests")
	} else if n > 0 {
		log.Info().Int("adopted", n).Msg("Adopted submitted requests without poll state")
	}

	due, err := p.store.LeaseDuePollStates(ctx, p.now(), p.cfg.Lease, p.cfg.MaxConcurrent*4)
	if err != nil {
		return 0, fmt.Errorf("lease poll states: %w", err)
	}
	if len(due) == 0 {
		return 0, nil
	}

	sem := semaphore.NewWeighted(int64(p.cfg.MaxConcurrent))
	var wg sync.WaitGroup
	for _, ps := range due {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(ps database.PollState) {
			defer wg.Done()
			defer sem.Release(1)
			if _, err := p.Step(ctx, ps); err != nil {
				log.Error().Err(err).Str("task_id", ps.TaskID).Msg("Poll step failed")
			}
		}(ps)
	}
	wg.Wait()
	return len(due), nil
}

// Start runs RunOnce on every tick until Stop is called.
func (p *Poller) Start(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.cfg.TickInterval)
		defer ticker.Stop()
		log.Info().Dur("interval", p.cfg.TickInterval).Msg("Poller started")
		for {
			if _, err := p.RunOnce(ctx); err != nil {
				log.Error().Err(err).Msg("Poller tick failed")
			}
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop waits for the running tick to finish.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
}

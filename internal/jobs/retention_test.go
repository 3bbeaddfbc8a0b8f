package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lakewatch/thermal-service/internal/database"
	"github.com/lakewatch/thermal-service/internal/ledger"
)

type fakeQueue struct {
	days  int
	calls int
	n     int
	err   error
}

func (f *fakeQueue) CleanupOldTasks(_ context.Context, days int) (int, error) {
	f.calls++
	f.days = days
	return f.n, f.err
}

type failingPolls struct{}

func (failingPolls) PruneFinishedPollStates(context.Context, time.Time) (int, error) {
	return 0, errors.New("db down")
}

func seedPollStates(t *testing.T, store *ledger.MemoryStore, at time.Time) {
	t.Helper()
	ctx := context.Background()
	store.Now = func() time.Time { return at }
	for _, id := range []string{"task-done", "task-waiting"} {
		require.NoError(t, store.CreatePollState(ctx, &database.PollState{
			TaskID: id, RequestID: "req-" + id, CurrentWaitSeconds: 30, NextCheckAt: at,
		}))
	}
	ps, err := store.GetPollState(ctx, "task-done")
	require.NoError(t, err)
	ps.State = database.PollDone
	require.NoError(t, store.SavePollState(ctx, ps))
}

func TestRunOncePrunesFinishedPollStates(t *testing.T) {
	logger := zerolog.Nop()
	store := ledger.NewMemoryStore()
	now := time.Date(2026, 7, 20, 12, 0, 0, 0, time.UTC)
	seedPollStates(t, store, now.Add(-10*24*time.Hour))

	q := &fakeQueue{n: 3}
	rm := NewRetentionManager(RetentionConfig{PollStateAge: 7 * 24 * time.Hour, QueueDays: 5, Enabled: true}, store, q, &logger)
	rm.now = func() time.Time { return now }

	res := rm.RunOnce(context.Background())
	assert.Equal(t, PruneResult{PollStates: 1, QueueTasks: 3}, res)
	assert.Equal(t, 5, q.days)

	_, err := store.GetPollState(context.Background(), "task-done")
	require.Error(t, err)
	_, err = store.GetPollState(context.Background(), "task-waiting")
	require.NoError(t, err)
}

func TestRunOnceKeepsRecentStates(t *testing.T) {
	logger := zerolog.Nop()
	store := ledger.NewMemoryStore()
	now := time.Date(2026, 7, 20, 12, 0, 0, 0, time.UTC)
	seedPollStates(t, store, now.Add(-time.Hour))

	rm := NewRetentionManager(RetentionConfig{Enabled: true}, store, nil, &logger)
	rm.now = func() time.Time { return now }

	assert.Equal(t, PruneResult{}, rm.RunOnce(context.Background()))
}

func TestRunOnceContinuesAfterFailure(t *testing.T) {
	logger := zerolog.Nop()
	q := &fakeQueue{n: 2}
	rm := NewRetentionManager(RetentionConfig{Enabled: true}, failingPolls{}, q, &logger)

	res := rm.RunOnce(context.Background())
	assert.Equal(t, 0, res.PollStates)
	assert.Equal(t, 2, res.QueueTasks)
	assert.Equal(t, DefaultRetentionConfig().QueueDays, q.days)
}

func TestStartStopsWithContext(t *testing.T) {
	logger := zerolog.Nop()
	q := &fakeQueue{}
	rm := NewRetentionManager(RetentionConfig{Interval: time.Hour, Enabled: true}, ledger.NewMemoryStore(), q, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	rm.Start(ctx)
	cancel()
	rm.Wait()
	assert.Equal(t, 1, q.calls)
}

func TestStartDisabled(t *testing.T) {
	logger := zerolog.Nop()
	q := &fakeQueue{}
	rm := NewRetentionManager(RetentionConfig{}, ledger.NewMemoryStore(), q, &logger)

	rm.Start(context.Background())
	rm.Wait()
	assert.Zero(t, q.calls)
}

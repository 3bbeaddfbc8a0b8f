package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/lakewatch/thermal-service/internal/apperrors"
	"github.com/lakewatch/thermal-service/internal/database"
	"github.com/lakewatch/thermal-service/internal/ledger"
	"github.com/lakewatch/thermal-service/internal/mocks"
	"github.com/lakewatch/thermal-service/internal/provider"
)

func testSubmitConfig() SubmitConfig {
	return SubmitConfig{
		TaskName:      "ECOStress_Request",
		Product:       "ECO_L2T_LSTE.002",
		Layers:        []string{"LST", "LST_err", "QC", "water", "cloud", "EmisWB", "height"},
		DateDelayDays: 1,
		Retry:         Retry{Attempts: 3},
		BaseWait:      30 * time.Second,
	}
}

func TestSubmitRetriesTransientErrorsAndStartsPolling(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	api := mocks.NewMockAPI(ctrl)
	store := ledger.NewMemoryStore()
	clock := newTestClock()

	var sent provider.TaskRequest
	gomock.InOrder(
		api.EXPECT().SubmitTask(gomock.Any(), gomock.Any()).
			Return("", apperrors.TransientProvider(errors.New("502"), "submit task")),
		api.EXPECT().SubmitTask(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, task provider.TaskRequest) (string, error) {
				sent = task
				return "task-42", nil
			}),
	)

	s := NewSubmitter(store, api, testCatalog(t), testSubmitConfig())
	s.now = clock.Now

	req, err := s.Submit(ctx, SubmitInput{TriggerType: database.TriggerScheduled, TriggeredBy: "scheduler"})
	require.NoError(t, err)
	assert.Equal(t, "task-42", req.TaskID())

	// Default window is yesterday.
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), req.DateRangeStart)
	assert.Equal(t, req.DateRangeStart, req.DateRangeEnd)
	assert.Equal(t, "area", sent.TaskType)
	require.Len(t, sent.Params.Dates, 1)
	assert.Equal(t, "01-15-2024", sent.Params.Dates[0].StartDate)
	assert.Len(t, sent.Params.Layers, 7)

	view, err := ledger.Describe(ctx, store, req.ID)
	require.NoError(t, err)
	assert.Equal(t, database.StatusSubmitted, view.Status)
	require.Len(t, view.Jobs, 1)
	assert.Equal(t, database.JobSuccess, view.Jobs[0].Status)

	byTask, err := store.ListJobs(ctx, database.JobFilter{TaskID: "task-42", JobType: database.JobSubmit})
	require.NoError(t, err)
	require.Len(t, byTask, 1)
	assert.Equal(t, req.ID, byTask[0].RequestID)
	assert.Equal(t, database.JobSuccess, byTask[0].Status)

	ps, err := store.GetPollState(ctx, "task-42")
	require.NoError(t, err)
	assert.Equal(t, req.ID, ps.RequestID)
	assert.Equal(t, 30, ps.CurrentWaitSeconds)
	assert.Equal(t, clock.Now().Add(30*time.Second), ps.NextCheckAt)
}

func TestSubmitFailureMarksRequestFailed(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	api := mocks.NewMockAPI(ctrl)
	store := ledger.NewMemoryStore()

	api.EXPECT().SubmitTask(gomock.Any(), gomock.Any()).
		Return("", apperrors.Validation("bad geometry")).Times(1)

	s := NewSubmitter(store, api, testCatalog(t), testSubmitConfig())
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	req, err := s.Submit(ctx, SubmitInput{Start: day, End: day, TriggeredBy: "ops"})
	require.Error(t, err)
	require.NotNil(t, req)

	view, err := ledger.Describe(ctx, store, req.ID)
	require.NoError(t, err)
	assert.Equal(t, database.StatusFailed, view.Status)
	require.Len(t, view.Jobs, 1)
	assert.Equal(t, database.JobFailed, view.Jobs[0].Status)
	assert.Contains(t, *view.Jobs[0].ErrorMessage, "bad geometry")

	_, err = store.GetPollState(ctx, "task-1")
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
}

func TestSubmitRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	api := mocks.NewMockAPI(ctrl)
	s := NewSubmitter(ledger.NewMemoryStore(), api, testCatalog(t), testSubmitConfig())

	_, err := s.Submit(ctx, SubmitInput{
		Start: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))

	_, err = s.Submit(ctx, SubmitInput{TriggerType: database.TriggerReprocess})
	assert.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))
}

func TestSubmitScheduledRunsOncePerWindow(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	api := mocks.NewMockAPI(ctrl)
	store := ledger.NewMemoryStore()
	clock := newTestClock()

	api.EXPECT().SubmitTask(gomock.Any(), gomock.Any()).Return("task-77", nil).Times(1)

	// Two schedulers on different hosts share one ledger.
	hosts := make([]*Submitter, 2)
	for i := range hosts {
		hosts[i] = NewSubmitter(store, api, testCatalog(t), testSubmitConfig())
		hosts[i].now = clock.Now
	}

	var wg sync.WaitGroup
	results := make([]*database.ProcessingRequest, len(hosts))
	errs := make([]error, len(hosts))
	for i, h := range hosts {
		wg.Add(1)
		go func(i int, h *Submitter) {
			defer wg.Done()
			results[i], errs[i] = h.SubmitScheduled(ctx)
		}(i, h)
	}
	wg.Wait()

	submitted := 0
	for i := range hosts {
		require.NoError(t, errs[i])
		if results[i] != nil {
			submitted++
			assert.Equal(t, database.TriggerScheduled, results[i].TriggerType)
			assert.Equal(t, "task-77", results[i].TaskID())
		}
	}
	assert.Equal(t, 1, submitted)

	reqs, err := store.ListRequests(ctx, 10, 0)
	require.NoError(t, err)
	assert.Len(t, reqs, 1)

	req, err := hosts[0].SubmitScheduled(ctx)
	require.NoError(t, err)
	assert.Nil(t, req, "the window is already covered")
}

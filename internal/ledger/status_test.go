package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lakewatch/thermal-service/internal/database"
)

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func processJob(id int64, feature, date string, status database.JobStatus) database.JobRecord {
	return database.JobRecord{
		ID:        id,
		JobType:   database.JobProcess,
		FeatureID: strPtr(feature),
		Date:      strPtr(date),
		Status:    status,
	}
}

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		name string
		req  database.ProcessingRequest
		jobs []database.JobRecord
		want database.RequestStatus
	}{
		{
			name: "fresh request is pending",
			req:  database.ProcessingRequest{},
			want: database.StatusPending,
		},
		{
			name: "submit in flight is pending",
			req:  database.ProcessingRequest{},
			jobs: []database.JobRecord{{ID: 1, JobType: database.JobSubmit, Status: database.JobStarted}},
			want: database.StatusPending,
		},
		{
			name: "failed submit without task id is failed",
			req:  database.ProcessingRequest{},
			jobs: []database.JobRecord{{ID: 1, JobType: database.JobSubmit, Status: database.JobFailed}},
			want: database.StatusFailed,
		},
		{
			name: "retried submit uses latest attempt",
			req:  database.ProcessingRequest{},
			jobs: []database.JobRecord{
				{ID: 1, JobType: database.JobSubmit, Status: database.JobFailed},
				{ID: 2, JobType: database.JobSubmit, Status: database.JobStarted},
			},
			want: database.StatusPending,
		},
		{
			name: "error message wins",
			req:  database.ProcessingRequest{ExternalTaskID: strPtr("t"), SceneCount: intPtr(0), ErrorMessage: strPtr("boom")},
			want: database.StatusFailed,
		},
		{
			name: "task id without scene count is submitted",
			req:  database.ProcessingRequest{ExternalTaskID: strPtr("t")},
			want: database.StatusSubmitted,
		},
		{
			name: "zero scenes completes",
			req:  database.ProcessingRequest{ExternalTaskID: strPtr("t"), SceneCount: intPtr(0)},
			want: database.StatusCompleted,
		},
		{
			name: "partial terminal is processing",
			req:  database.ProcessingRequest{ExternalTaskID: strPtr("t"), SceneCount: intPtr(2)},
			jobs: []database.JobRecord{
				processJob(1, "A", "d1", database.JobSuccess),
				processJob(2, "B", "d1", database.JobStarted),
			},
			want: database.StatusProcessing,
		},
		{
			name: "all success completes",
			req:  database.ProcessingRequest{ExternalTaskID: strPtr("t"), SceneCount: intPtr(2)},
			jobs: []database.JobRecord{
				processJob(1, "A", "d1", database.JobSuccess),
				processJob(2, "B", "d1", database.JobSuccess),
			},
			want: database.StatusCompleted,
		},
		{
			name: "one failure completes with errors",
			req:  database.ProcessingRequest{ExternalTaskID: strPtr("t"), SceneCount: intPtr(2)},
			jobs: []database.JobRecord{
				processJob(1, "A", "d1", database.JobSuccess),
				processJob(2, "B", "d1", database.JobFailed),
			},
			want: database.StatusCompletedWithErrors,
		},
		{
			name: "successful retry supersedes failure",
			req:  database.ProcessingRequest{ExternalTaskID: strPtr("t"), SceneCount: intPtr(2)},
			jobs: []database.JobRecord{
				processJob(1, "A", "d1", database.JobSuccess),
				processJob(2, "B", "d1", database.JobFailed),
				processJob(3, "B", "d1", database.JobSuccess),
			},
			want: database.StatusCompleted,
		},
		{
			name: "redelivered attempt in flight stays completed with errors",
			req:  database.ProcessingRequest{ExternalTaskID: strPtr("t"), SceneCount: intPtr(2)},
			jobs: []database.JobRecord{
				processJob(1, "A", "d1", database.JobSuccess),
				processJob(2, "B", "d1", database.JobFailed),
				processJob(3, "B", "d1", database.JobStarted),
			},
			want: database.StatusCompletedWithErrors,
		},
		{
			name: "redelivered success in flight stays completed",
			req:  database.ProcessingRequest{ExternalTaskID: strPtr("t"), SceneCount: intPtr(1)},
			jobs: []database.JobRecord{
				processJob(1, "A", "d1", database.JobSuccess),
				processJob(2, "A", "d1", database.JobStarted),
			},
			want: database.StatusCompleted,
		},
		{
			name: "duplicate attempts of one scene do not count twice",
			req:  database.ProcessingRequest{ExternalTaskID: strPtr("t"), SceneCount: intPtr(2)},
			jobs: []database.JobRecord{
				processJob(1, "A", "d1", database.JobSuccess),
				processJob(2, "A", "d1", database.JobSuccess),
			},
			want: database.StatusProcessing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveStatus(&tt.req, tt.jobs))
		})
	}
}

func TestSummarizeCountsLatestFinishedAttempt(t *testing.T) {
	req := &database.ProcessingRequest{SceneCount: intPtr(3)}
	p := Summarize(req, []database.JobRecord{
		processJob(1, "A", "d1", database.JobFailed),
		processJob(2, "A", "d1", database.JobSuccess),
		processJob(3, "B", "d1", database.JobFailed),
		processJob(4, "C", "d2", database.JobStarted),
		{ID: 5, JobType: database.JobSubmit, Status: database.JobSuccess},
		processJob(6, "B", "d1", database.JobStarted),
	})

	assert.Equal(t, 2, p.Terminal)
	assert.Equal(t, 1, p.Succeeded)
	assert.Equal(t, 1, p.Failed)
	assert.Equal(t, 1, p.Running)
	assert.Equal(t, 3, *p.Expected)
}

func statusRank(s database.RequestStatus) int {
	switch s {
	case database.StatusPending:
		return 0
	case database.StatusSubmitted:
		return 1
	case database.StatusProcessing:
		return 2
	default:
		return 3
	}
}

func TestDeriveStatusNeverRegresses(t *testing.T) {
	req := database.ProcessingRequest{}
	var jobs []database.JobRecord
	var history []database.RequestStatus
	record := func() {
		history = append(history, DeriveStatus(&req, jobs))
	}

	record()
	jobs = append(jobs, database.JobRecord{ID: 1, JobType: database.JobSubmit, Status: database.JobStarted})
	record()
	jobs[0].Status = database.JobSuccess
	req.ExternalTaskID = strPtr("task-1")
	record()
	req.SceneCount = intPtr(2)
	record()
	jobs = append(jobs, processJob(2, "A", "d1", database.JobStarted))
	record()
	jobs[1].Status = database.JobSuccess
	jobs = append(jobs, processJob(3, "B", "d1", database.JobStarted))
	record()
	jobs[2].Status = database.JobFailed
	record()
	// queue redelivers both scenes
	jobs = append(jobs, processJob(4, "B", "d1", database.JobStarted))
	record()
	jobs = append(jobs, processJob(5, "A", "d1", database.JobStarted))
	record()
	jobs[3].Status = database.JobFailed
	record()
	jobs[4].Status = database.JobSuccess
	record()

	assert.Equal(t, database.StatusPending, history[0])
	assert.Equal(t, database.StatusCompletedWithErrors, history[6])
	for i := 1; i < len(history); i++ {
		assert.GreaterOrEqual(t, statusRank(history[i]), statusRank(history[i-1]),
			"step %d: %s after %s", i, history[i], history[i-1])
		if statusRank(history[i-1]) == 3 {
			assert.False(t, history[i].Active(), "step %d reopened a finished request", i)
		}
	}
	assert.Equal(t, database.StatusCompletedWithErrors, history[len(history)-1])
}

func TestActiveStatuses(t *testing.T) {
	for _, s := range []database.RequestStatus{database.StatusPending, database.StatusSubmitted, database.StatusProcessing} {
		assert.True(t, s.Active(), s)
	}
	for _, s := range []database.RequestStatus{database.StatusCompleted, database.StatusCompletedWithErrors, database.StatusFailed} {
		assert.False(t, s.Active(), s)
	}
}

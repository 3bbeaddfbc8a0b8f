// Package ledger persists processing requests, job records, poll states and
// scene metadata, and derives request status from them.
package ledger

import (
	"context"
	"time"

	"github.com/lakewatch/thermal-service/internal/database"
)

// Store is the request and job ledger.
type Store interface {
	CreateRequest(ctx context.Context, req *database.ProcessingRequest) error
	GetRequest(ctx context.Context, id string) (*database.ProcessingRequest, error)
	ListRequests(ctx context.Context, limit, offset int) ([]database.ProcessingRequest, error)
	// RequestsByTask returns the requests sharing a provider task id, oldest first.
	RequestsByTask(ctx context.Context, taskID string) ([]database.ProcessingRequest, error)
	// PendingRequests returns submitted requests that fan-out has not picked up.
	PendingRequests(ctx context.Context) ([]database.ProcessingRequest, error)
	// HasScheduledRequest reports whether a scheduled request already covers
	// exactly start..end.
	HasScheduledRequest(ctx context.Context, start, end time.Time) (bool, error)
	SetTaskID(ctx context.Context, requestID, taskID string) error
	// SetSceneCount sets the scene count only if it is still unset.
	SetSceneCount(ctx context.Context, requestID string, n int) (bool, error)
	MarkDispatched(ctx context.Context, requestID string, at time.Time) error
	// MarkError records a fatal request error and fails the request's
	// still-started jobs.
	MarkError(ctx context.Context, requestID, message string) error

	// StartJob appends a started job record and fills in its id.
	StartJob(ctx context.Context, job *database.JobRecord) error
	// SetJobTaskID records the provider task id on a job appended before the
	// task existed.
	SetJobTaskID(ctx context.Context, id int64, taskID string) error
	// FinishJob moves a started job to a terminal status.
	FinishJob(ctx context.Context, id int64, status database.JobStatus, errMsg string, metadata []byte) error
	// AppendJob appends a complete job record.
	AppendJob(ctx context.Context, job *database.JobRecord) error
	JobsForRequest(ctx context.Context, requestID string) ([]database.JobRecord, error)
	ListJobs(ctx context.Context, filter database.JobFilter) ([]database.JobRecord, error)

	// WithTaskLock runs fn while holding an exclusive lock on taskID.
	WithTaskLock(ctx context.Context, taskID string, fn func(Store) error) error
}

// MetadataStore holds the per-scene summary rows and the feature index.
type MetadataStore interface {
	UpsertSceneMetadata(ctx context.Context, m *database.SceneMetadata) error
	GetSceneMetadata(ctx context.Context, featureID, date string) (*database.SceneMetadata, error)
	ListSceneMetadata(ctx context.Context, featureID string) ([]database.SceneMetadata, error)
	UpsertFeature(ctx context.Context, f *database.Feature) error
	ListFeatures(ctx context.Context) ([]database.Feature, error)
}

// PollStore persists the poller state machine.
type PollStore interface {
	CreatePollState(ctx context.Context, ps *database.PollState) error
	GetPollState(ctx context.Context, taskID string) (*database.PollState, error)
	// LeaseDuePollStates claims waiting states whose next check is due and
	// whose lease has expired.
	LeaseDuePollStates(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]database.PollState, error)
	// SavePollState writes back a leased state and releases the lease.
	SavePollState(ctx context.Context, ps *database.PollState) error
	// PruneFinishedPollStates deletes done and failed states last updated
	// before the cutoff.
	PruneFinishedPollStates(ctx context.Context, before time.Time) (int, error)
}

// Ledger is everything the pipeline persists.
type Ledger interface {
	Store
	MetadataStore
	PollStore
}

// RequestView is a request with its derived status and jobs.
type RequestView struct {
	Request  *database.ProcessingRequest `json:"request"`
	Status   database.RequestStatus      `json:"status"`
	Progress Progress                    `json:"progress"`
	Jobs     []database.JobRecord        `json:"jobs,omitempty"`
}

// Describe loads a request and derives its status.
func Describe(ctx context.Context, s Store, id string) (*RequestView, error) {
	req, err := s.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	jobs, err := s.JobsForRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	return &RequestView{
		Request:  req,
		Status:   DeriveStatus(req, jobs),
		Progress: Summarize(req, jobs),
		Jobs:     jobs,
	}, nil
}

// StatusOf derives the status of a loaded request.
func StatusOf(ctx context.Context, s Store, req *database.ProcessingRequest) (database.RequestStatus, error) {
	jobs, err := s.JobsForRequest(ctx, req.ID)
	if err != nil {
		return "", err
	}
	return DeriveStatus(req, jobs), nil
}

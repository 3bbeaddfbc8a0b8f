package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lakewatch/thermal-service/internal/apperrors"
	"github.com/lakewatch/thermal-service/internal/database"
)

// MemoryStore is an in-process Ledger for tests and dry runs.
type MemoryStore struct {
	mu       sync.Mutex
	requests map[string]*database.ProcessingRequest
	order    []string
	jobs     []*database.JobRecord
	polls    map[string]*database.PollState
	metadata map[SceneKey]*database.SceneMetadata
	features map[string]*database.Feature
	nextJob  int64

	lockMu    sync.Mutex
	taskLocks map[string]*sync.Mutex

	// Now overrides the clock.
	Now func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requests:  make(map[string]*database.ProcessingRequest),
		polls:     make(map[string]*database.PollState),
		metadata:  make(map[SceneKey]*database.SceneMetadata),
		features:  make(map[string]*database.Feature),
		taskLocks: make(map[string]*sync.Mutex),
		Now:       time.Now,
	}
}

var _ Ledger = (*MemoryStore)(nil)

func copyRequest(r *database.ProcessingRequest) database.ProcessingRequest {
	c := *r
	if r.ExternalTaskID != nil {
		v := *r.ExternalTaskID
		c.ExternalTaskID = &v
	}
	if r.SceneCount != nil {
		v := *r.SceneCount
		c.SceneCount = &v
	}
	if r.ParentRequestID != nil {
		v := *r.ParentRequestID
		c.ParentRequestID = &v
	}
	if r.DispatchedAt != nil {
		v := *r.DispatchedAt
		c.DispatchedAt = &v
	}
	if r.ErrorMessage != nil {
		v := *r.ErrorMessage
		c.ErrorMessage = &v
	}
	return c
}

func (m *MemoryStore) CreateRequest(_ context.Context, req *database.ProcessingRequest) error {
	if !req.TriggerType.Valid() {
		return apperrors.Validation("invalid trigger type %q", req.TriggerType)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.Now()
	req.ID = uuid.NewString()
	req.CreatedAt = now
	req.UpdatedAt = now
	c := copyRequest(req)
	m.requests[req.ID] = &c
	m.order = append(m.order, req.ID)
	return nil
}

func (m *MemoryStore) get(id string) (*database.ProcessingRequest, error) {
	r, ok := m.requests[id]
	if !ok {
		return nil, apperrors.NotFound("request %s not found", id)
	}
	return r, nil
}

func (m *MemoryStore) GetRequest(_ context.Context, id string) (*database.ProcessingRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.get(id)
	if err != nil {
		return nil, err
	}
	c := copyRequest(r)
	return &c, nil
}

func (m *MemoryStore) ListRequests(_ context.Context, limit, offset int) ([]database.ProcessingRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	out := make([]database.ProcessingRequest, 0)
	for i := len(m.order) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, copyRequest(m.requests[m.order[i]]))
	}
	return out, nil
}

func (m *MemoryStore) filterRequests(keep func(*database.ProcessingRequest) bool) []database.ProcessingRequest {
	out := make([]database.ProcessingRequest, 0)
	for _, id := range m.order {
		if r := m.requests[id]; keep(r) {
			out = append(out, copyRequest(r))
		}
	}
	return out
}

func (m *MemoryStore) RequestsByTask(_ context.Context, taskID string) ([]database.ProcessingRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filterRequests(func(r *database.ProcessingRequest) bool {
		return r.TaskID() == taskID
	}), nil
}

func (m *MemoryStore) PendingRequests(_ context.Context) ([]database.ProcessingRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filterRequests(func(r *database.ProcessingRequest) bool {
		return r.TaskID() != "" && r.SceneCount == nil && r.DispatchedAt == nil &&
			r.ErrorMessage == nil && r.TriggerType != database.TriggerReprocess
	}), nil
}

func (m *MemoryStore) HasScheduledRequest(_ context.Context, start, end time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	found := m.filterRequests(func(r *database.ProcessingRequest) bool {
		return r.TriggerType == database.TriggerScheduled &&
			r.DateRangeStart.Equal(start) && r.DateRangeEnd.Equal(end)
	})
	return len(found) > 0, nil
}

func (m *MemoryStore) SetTaskID(_ context.Context, requestID, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.get(requestID)
	if err != nil {
		return err
	}
	r.ExternalTaskID = &taskID
	r.UpdatedAt = m.Now()
	return nil
}

func (m *MemoryStore) SetSceneCount(_ context.Context, requestID string, n int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.get(requestID)
	if err != nil {
		return false, err
	}
	if r.SceneCount != nil {
		return false, nil
	}
	r.SceneCount = &n
	r.UpdatedAt = m.Now()
	return true, nil
}

func (m *MemoryStore) MarkDispatched(_ context.Context, requestID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.get(requestID)
	if err != nil {
		return err
	}
	if r.DispatchedAt == nil {
		r.DispatchedAt = &at
	}
	r.UpdatedAt = m.Now()
	return nil
}

func (m *MemoryStore) MarkError(_ context.Context, requestID, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.get(requestID)
	if err != nil {
		return err
	}
	r.ErrorMessage = &message
	r.UpdatedAt = m.Now()
	for _, j := range m.jobs {
		if j.RequestID == requestID && j.Status == database.JobStarted {
			m.finish(j, database.JobFailed, message, nil)
		}
	}
	return nil
}

func (m *MemoryStore) finish(j *database.JobRecord, status database.JobStatus, errMsg string, metadata []byte) {
	now := m.Now()
	d := now.Sub(j.StartedAt).Milliseconds()
	j.Status = status
	j.CompletedAt = &now
	j.DurationMs = &d
	if errMsg != "" {
		j.ErrorMessage = &errMsg
	} else {
		j.ErrorMessage = nil
	}
	if len(metadata) > 0 {
		j.Metadata = append([]byte(nil), metadata...)
	}
}

func (m *MemoryStore) StartJob(_ context.Context, job *database.JobRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextJob++
	job.ID = m.nextJob
	job.Status = database.JobStarted
	job.StartedAt = m.Now()
	c := *job
	m.jobs = append(m.jobs, &c)
	return nil
}

func (m *MemoryStore) SetJobTaskID(_ context.Context, id int64, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.ID == id {
			j.TaskID = &taskID
			return nil
		}
	}
	return apperrors.NotFound("job %d not found", id)
}

func (m *MemoryStore) FinishJob(_ context.Context, id int64, status database.JobStatus, errMsg string, metadata []byte) error {
	if !status.Terminal() {
		return apperrors.Validation("finish job %d with non-terminal status %q", id, status)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.ID == id {
			if j.Status == database.JobStarted {
				m.finish(j, status, errMsg, metadata)
			}
			return nil
		}
	}
	return nil
}

func (m *MemoryStore) AppendJob(_ context.Context, job *database.JobRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextJob++
	job.ID = m.nextJob
	if job.StartedAt.IsZero() {
		job.StartedAt = m.Now()
	}
	c := *job
	m.jobs = append(m.jobs, &c)
	return nil
}

func (m *MemoryStore) JobsForRequest(_ context.Context, requestID string) ([]database.JobRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]database.JobRecord, 0)
	for _, j := range m.jobs {
		if j.RequestID == requestID {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (m *MemoryStore) ListJobs(_ context.Context, f database.JobFilter) ([]database.JobRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	out := make([]database.JobRecord, 0)
	for i := len(m.jobs) - 1; i >= 0 && len(out) < limit; i-- {
		j := m.jobs[i]
		switch {
		case f.RequestID != "" && j.RequestID != f.RequestID,
			f.TaskID != "" && (j.TaskID == nil || *j.TaskID != f.TaskID),
			f.JobType != "" && j.JobType != f.JobType,
			f.Status != "" && j.Status != f.Status,
			f.From != nil && j.StartedAt.Before(*f.From),
			f.To != nil && !j.StartedAt.Before(*f.To):
			continue
		}
		out = append(out, *j)
	}
	return out, nil
}

func (m *MemoryStore) WithTaskLock(_ context.Context, taskID string, fn func(Store) error) error {
	m.lockMu.Lock()
	l, ok := m.taskLocks[taskID]
	if !ok {
		l = &sync.Mutex{}
		m.taskLocks[taskID] = l
	}
	m.lockMu.Unlock()

	l.Lock()
	defer l.Unlock()
	return fn(m)
}

func (m *MemoryStore) UpsertSceneMetadata(_ context.Context, md *database.SceneMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := SceneKey{FeatureID: md.FeatureID, Date: md.Date}
	now := m.Now()
	md.UpdatedAt = now
	if prev, ok := m.metadata[key]; ok {
		md.CreatedAt = prev.CreatedAt
	} else {
		md.CreatedAt = now
	}
	c := *md
	m.metadata[key] = &c
	return nil
}

func (m *MemoryStore) GetSceneMetadata(_ context.Context, featureID, date string) (*database.SceneMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	md, ok := m.metadata[SceneKey{FeatureID: featureID, Date: date}]
	if !ok {
		return nil, apperrors.NotFound("no metadata for %s on %s", featureID, date)
	}
	c := *md
	return &c, nil
}

func (m *MemoryStore) ListSceneMetadata(_ context.Context, featureID string) ([]database.SceneMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]database.SceneMetadata, 0)
	for k, md := range m.metadata {
		if k.FeatureID == featureID {
			out = append(out, *md)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out, nil
}

// MetadataCount returns the number of stored summary rows.
func (m *MemoryStore) MetadataCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.metadata)
}

func (m *MemoryStore) UpsertFeature(_ context.Context, f *database.Feature) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *f
	c.LastUpdated = m.Now()
	if prev, ok := m.features[f.ID]; ok && prev.LatestDate > c.LatestDate {
		c.LatestDate = prev.LatestDate
	}
	m.features[f.ID] = &c
	return nil
}

func (m *MemoryStore) ListFeatures(_ context.Context) ([]database.Feature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]database.Feature, 0, len(m.features))
	for _, f := range m.features {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) CreatePollState(_ context.Context, ps *database.PollState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.polls[ps.TaskID]; ok {
		return apperrors.Conflict("task %s is already being polled", ps.TaskID)
	}
	if ps.State == "" {
		ps.State = database.PollWaiting
	}
	now := m.Now()
	ps.CreatedAt, ps.UpdatedAt = now, now
	c := *ps
	m.polls[ps.TaskID] = &c
	return nil
}

func (m *MemoryStore) GetPollState(_ context.Context, taskID string) (*database.PollState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ps, ok := m.polls[taskID]
	if !ok {
		return nil, apperrors.NotFound("no poll state for task %s", taskID)
	}
	c := *ps
	return &c, nil
}

func (m *MemoryStore) LeaseDuePollStates(_ context.Context, now time.Time, lease time.Duration, limit int) ([]database.PollState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 10
	}
	due := make([]*database.PollState, 0)
	for _, ps := range m.polls {
		if ps.State != database.PollWaiting || ps.NextCheckAt.After(now) {
			continue
		}
		if ps.LeaseUntil != nil && !ps.LeaseUntil.Before(now) {
			continue
		}
		due = append(due, ps)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextCheckAt.Before(due[j].NextCheckAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	out := make([]database.PollState, 0, len(due))
	until := now.Add(lease)
	for _, ps := range due {
		u := until
		ps.LeaseUntil = &u
		ps.UpdatedAt = now
		out = append(out, *ps)
	}
	return out, nil
}

func (m *MemoryStore) SavePollState(_ context.Context, ps *database.PollState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.polls[ps.TaskID]
	if !ok {
		return apperrors.NotFound("no poll state for task %s", ps.TaskID)
	}
	ps.LeaseUntil = nil
	ps.CreatedAt = cur.CreatedAt
	ps.UpdatedAt = m.Now()
	c := *ps
	m.polls[ps.TaskID] = &c
	return nil
}

func (m *MemoryStore) PruneFinishedPollStates(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, ps := range m.polls {
		if ps.State == database.PollWaiting || !ps.UpdatedAt.Before(before) {
			continue
		}
		delete(m.polls, id)
		n++
	}
	return n, nil
}

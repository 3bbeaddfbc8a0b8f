package database

import (
	"encoding/json"
	"time"
)

// TriggerType records what started a processing request.
type TriggerType string

const (
	TriggerScheduled TriggerType = "scheduled"
	TriggerManual    TriggerType = "manual"
	TriggerReprocess TriggerType = "reprocess"
)

// Valid reports whether t is a known trigger type.
func (t TriggerType) Valid() bool {
	switch t {
	case TriggerScheduled, TriggerManual, TriggerReprocess:
		return true
	}
	return false
}

// JobType distinguishes submit attempts from per-scene processing.
type JobType string

const (
	JobSubmit  JobType = "submit"
	JobProcess JobType = "process"
)

// JobStatus is the status of a single attempt.
type JobStatus string

const (
	JobStarted JobStatus = "started"
	JobSuccess JobStatus = "success"
	JobFailed  JobStatus = "failed"
)

// Terminal reports whether the attempt has finished.
func (s JobStatus) Terminal() bool {
	return s == JobSuccess || s == JobFailed
}

// RequestStatus is derived from a request and its jobs, never stored.
type RequestStatus string

const (
	StatusPending             RequestStatus = "pending"
	StatusSubmitted           RequestStatus = "submitted"
	StatusProcessing          RequestStatus = "processing"
	StatusCompleted           RequestStatus = "completed"
	StatusCompletedWithErrors RequestStatus = "completed_with_errors"
	StatusFailed              RequestStatus = "failed"
)

// Active reports whether a request in this status can still make progress.
func (s RequestStatus) Active() bool {
	return s == StatusPending || s == StatusSubmitted || s == StatusProcessing
}

// PollStateKind is the state of the poller state machine for one task.
type PollStateKind string

const (
	PollWaiting PollStateKind = "waiting"
	PollDone    PollStateKind = "done"
	PollFailed  PollStateKind = "failed"
)

// ProcessingRequest is one acquisition request
type ProcessingRequest struct {
	ID              string      `json:"id"`
	ExternalTaskID  *string     `json:"external_task_id"` // provider task id, set on submit
	TriggerType     TriggerType `json:"trigger_type"`
	TriggeredBy     string      `json:"triggered_by"`
	Description     string      `json:"description"`
	DateRangeStart  time.Time   `json:"date_range_start"`
	DateRangeEnd    time.Time   `json:"date_range_end"`
	SceneCount      *int        `json:"scene_count"`       // set once by fan-out
	ParentRequestID *string     `json:"parent_request_id"` // original request of a reprocess
	DispatchedAt    *time.Time  `json:"dispatched_at"`
	ErrorMessage    *string     `json:"error_message"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// TaskID returns the external task id or "".
func (r *ProcessingRequest) TaskID() string {
	if r.ExternalTaskID == nil {
		return ""
	}
	return *r.ExternalTaskID
}

// JobRecord is one attempt at a unit of work
type JobRecord struct {
	ID           int64           `json:"id"`
	RequestID    string          `json:"request_id"`
	JobType      JobType         `json:"job_type"`
	TaskID       *string         `json:"task_id"`
	FeatureID    *string         `json:"feature_id"` // null for submit
	Date         *string         `json:"date"`       // null for submit
	Status       JobStatus       `json:"status"`
	StartedAt    time.Time       `json:"started_at"`
	CompletedAt  *time.Time      `json:"completed_at"`
	DurationMs   *int64          `json:"duration_ms"`
	ErrorMessage *string         `json:"error_message"`
	Metadata     json.RawMessage `json:"metadata,omitempty" swaggertype:"object"`
}

// JobFilter narrows job listings. Zero values match everything.
type JobFilter struct {
	RequestID string
	TaskID    string
	JobType   JobType
	Status    JobStatus
	From      *time.Time
	To        *time.Time
	Limit     int
}

// PollState is the persisted poller row for one provider task
type PollState struct {
	TaskID             string        `json:"task_id"`
	RequestID          string        `json:"request_id"`
	CurrentWaitSeconds int           `json:"current_wait_seconds"`
	NextCheckAt        time.Time     `json:"next_check_at"`
	Attempts           int           `json:"attempts"`
	LastStatus         *string       `json:"last_status"`
	State              PollStateKind `json:"state"`
	LeaseUntil         *time.Time    `json:"lease_until"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// SceneMetadata is the summary row of one processed scene, keyed by
// (FeatureID, Date).
type SceneMetadata struct {
	FeatureID       string            `json:"feature_id"`
	Date            string            `json:"date"` // acquisition timestamp YYYYDDDHHMMSS
	Location        string            `json:"location"`
	RequestID       string            `json:"request_id"`
	TaskID          string            `json:"task_id"`
	SceneID         string            `json:"scene_id"`
	MinTemp         float64           `json:"min_temp"`
	MaxTemp         float64           `json:"max_temp"`
	MeanTemp        float64           `json:"mean_temp"`
	MedianTemp      float64           `json:"median_temp"`
	StdDev          float64           `json:"std_dev"`
	ValidPixels     int               `json:"valid_pixels"`
	TotalPixels     int               `json:"total_pixels"`
	WaterPixelCount int               `json:"water_pixel_count"`
	LandPixelCount  int               `json:"land_pixel_count"`
	WaterOff        bool              `json:"wtoff"`
	Histogram       map[string]int    `json:"histogram"`
	CSVPath         string            `json:"csv_path"`
	TIFPath         string            `json:"tif_path"`
	PNGPath         string            `json:"png_path"`
	Artifacts       map[string]string `json:"artifacts"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Feature is a region that has at least one processed scene
type Feature struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Location    string    `json:"location"`
	LatestDate  string    `json:"latest_date"`
	LastUpdated time.Time `json:"last_updated"`
}

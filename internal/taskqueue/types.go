package taskqueue

import (
	"encoding/json"
	"time"
)

type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusClaimed    TaskStatus = "claimed"
	StatusProcessing TaskStatus = "processing"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
	StatusCancelled  TaskStatus = "cancelled"
)

const (
	// TaskTypeFanout expands a completed provider task into scene tasks.
	TaskTypeFanout = "fanout"
	// TaskTypeProcessScene processes one scene.
	TaskTypeProcessScene = "process_scene"
)

type Task struct {
	ID           string          `json:"id"`
	TaskType     string          `json:"task_type"`
	Payload      json.RawMessage `json:"payload" swaggertype:"object"`
	Priority     int             `json:"priority"`
	Status       TaskStatus      `json:"status"`
	ScheduledFor time.Time       `json:"scheduled_for"`
	StartedAt    *time.Time      `json:"started_at"`
	CompletedAt  *time.Time      `json:"completed_at"`
	FailedAt     *time.Time      `json:"failed_at"`
	LeaseUntil   *time.Time      `json:"lease_until"`
	WorkerID     *string         `json:"worker_id"`
	RetryCount   int             `json:"retry_count"`
	MaxRetries   int             `json:"max_retries"`
	ErrorMessage *string         `json:"error_message"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type ClaimedTask struct {
	ID         string
	TaskType   string
	Payload    json.RawMessage
	RetryCount int
}

// FanoutPayload asks for a provider task's manifest to be expanded.
type FanoutPayload struct {
	RequestID string `json:"requestId" jsonschema:"minLength=1"`
	TaskID    string `json:"taskId" jsonschema:"minLength=1"`
}

// SceneFile is one provider file of a scene.
type SceneFile struct {
	FileID   string `json:"fileId" jsonschema:"minLength=1"`
	FileName string `json:"fileName" jsonschema:"minLength=1"`
}

// ScenePayload is the work item for one scene.
type ScenePayload struct {
	RequestID string      `json:"requestId" jsonschema:"minLength=1"`
	TaskID    string      `json:"taskId" jsonschema:"minLength=1"`
	SceneID   string      `json:"sceneId" jsonschema:"minLength=1"`
	AreaID    string      `json:"areaId" jsonschema:"pattern=^[0-9]{4}$"`
	Timestamp string      `json:"timestamp" jsonschema:"pattern=^[0-9]{13}$"`
	Files     []SceneFile `json:"files" jsonschema:"minItems=1"`
}

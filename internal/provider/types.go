// Package provider is the client for the AppEEARS-style extraction API:
// login, area task submission, task status, bundle manifests and file
// downloads.
package provider

import (
	"context"
	"encoding/json"
	"time"
)

// Provider task statuses.
const (
	StatusPending    = "pending"
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusError      = "error"
)

// API is what the pipeline needs from the provider.
type API interface {
	SubmitTask(ctx context.Context, task TaskRequest) (string, error)
	TaskStatus(ctx context.Context, taskID string) (string, error)
	Bundle(ctx context.Context, taskID string) (*Bundle, error)
	Download(ctx context.Context, taskID, fileID string) ([]byte, error)
}

// dateLayout is the provider's request date format.
const dateLayout = "01-02-2006"

// TaskRequest is the body of POST /task.
type TaskRequest struct {
	TaskType string     `json:"task_type"`
	TaskName string     `json:"task_name"`
	Params   TaskParams `json:"params"`
}

type TaskParams struct {
	Dates  []DateRange      `json:"dates"`
	Layers []Layer          `json:"layers"`
	Geo    json.RawMessage  `json:"geo"`
	Output OutputParameters `json:"output"`
}

type DateRange struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

type Layer struct {
	Product string `json:"product"`
	Layer   string `json:"layer"`
}

type OutputParameters struct {
	Format     OutputFormat `json:"format"`
	Projection string       `json:"projection"`
}

type OutputFormat struct {
	Type string `json:"type"`
}

// AreaTask builds a geotiff/geographic area task over the given regions.
func AreaTask(name, product string, layers []string, geo json.RawMessage, start, end time.Time) TaskRequest {
	ls := make([]Layer, 0, len(layers))
	for _, l := range layers {
		ls = append(ls, Layer{Product: product, Layer: l})
	}
	return TaskRequest{
		TaskType: "area",
		TaskName: name,
		Params: TaskParams{
			Dates: []DateRange{{
				StartDate: start.Format(dateLayout),
				EndDate:   end.Format(dateLayout),
			}},
			Layers: ls,
			Geo:    geo,
			Output: OutputParameters{
				Format:     OutputFormat{Type: "geotiff"},
				Projection: "geographic",
			},
		},
	}
}

// Bundle is the manifest of a finished task.
type Bundle struct {
	TaskID string       `json:"task_id"`
	Files  []BundleFile `json:"files"`
}

type BundleFile struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name"`
	FileType string `json:"file_type,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
	SHA256   string `json:"sha256,omitempty"`
}

type taskStatusResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

type submitResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

type loginResponse struct {
	TokenType  string    `json:"token_type"`
	Token      string    `json:"token"`
	Expiration time.Time `json:"expiration"`
}

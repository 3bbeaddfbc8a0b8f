package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/lakewatch/thermal-service/internal/database"
	"github.com/lakewatch/thermal-service/internal/ledger"
	"github.com/lakewatch/thermal-service/internal/pipeline"
)

// Submitter starts a new acquisition.
type Submitter interface {
	Submit(ctx context.Context, in pipeline.SubmitInput) (*database.ProcessingRequest, error)
}

// Reprocessor admits reprocess requests for completed provider tasks.
type Reprocessor interface {
	Reprocess(ctx context.Context, in pipeline.ReprocessInput) (*database.ProcessingRequest, error)
}

// API serves the admin and read-only endpoints under /internal.
type API struct {
	store       ledger.Ledger
	submitter   Submitter
	reprocessor Reprocessor
}

func NewAPI(store ledger.Ledger, submitter Submitter, reprocessor Reprocessor) *API {
	return &API{store: store, submitter: submitter, reprocessor: reprocessor}
}

// Register mounts the routes on an /internal group.
func (a *API) Register(internal *gin.RouterGroup) {
	admin := internal.Group("/admin")
	{
		admin.POST("/requests", a.CreateRequest)
		admin.POST("/requests/reprocess", a.ReprocessRequest)
	}

	internal.GET("/requests", a.ListRequests)
	internal.GET("/requests/:id", a.GetRequest)
	internal.GET("/jobs", a.ListJobs)
	internal.GET("/scenes/:featureId", a.ListScenes)
	internal.GET("/features", a.ListFeatures)
}

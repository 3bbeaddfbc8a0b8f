package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lakewatch/thermal-service/internal/apperrors"
	"github.com/lakewatch/thermal-service/internal/database"
	"github.com/lakewatch/thermal-service/internal/ledger"
	"github.com/lakewatch/thermal-service/internal/pipeline"
)

// CreateRequestBody triggers a manual acquisition. Empty dates select the
// default single-day window.
type CreateRequestBody struct {
	StartDate   string `json:"startDate" jsonschema:"format=date"`
	EndDate     string `json:"endDate" jsonschema:"format=date"`
	Description string `json:"description"`
	TriggeredBy string `json:"triggeredBy"`
}

// CreateRequestResponse is returned once a request has been recorded.
type CreateRequestResponse struct {
	RequestID string  `json:"requestId" jsonschema:"required"`
	TaskID    *string `json:"taskId"`
	Error     *string `json:"error,omitempty"`
}

// ReprocessBody asks for a completed provider task to be processed again.
type ReprocessBody struct {
	TaskID      string `json:"taskId" binding:"required" jsonschema:"required"`
	Description string `json:"description"`
	TriggeredBy string `json:"triggeredBy"`
}

// ReprocessResponse identifies the new reprocess request.
type ReprocessResponse struct {
	RequestID       string `json:"requestId" jsonschema:"required"`
	ParentRequestID string `json:"parentRequestId"`
	TaskID          string `json:"taskId"`
}

// ListRequestsQuery pages through requests.
type ListRequestsQuery struct {
	Limit  int `form:"limit" json:"limit" binding:"omitempty,min=1,max=200" jsonschema:"minimum=1,maximum=200"`
	Offset int `form:"offset" json:"offset" binding:"omitempty,min=0" jsonschema:"minimum=0"`
}

// RequestSummary is one row of the request listing.
type RequestSummary struct {
	database.ProcessingRequest
	Status   database.RequestStatus `json:"status"`
	Progress ledger.Progress        `json:"progress"`
}

// ListRequestsResponse is a page of requests with derived statuses.
type ListRequestsResponse struct {
	Requests []RequestSummary `json:"requests" jsonschema:"required"`
	Limit    int              `json:"limit"`
	Offset   int              `json:"offset"`
}

func parseDate(field, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be YYYY-MM-DD: %q", field, value)
	}
	return t, nil
}

// CreateRequest submits a manual acquisition
// @Summary Trigger an acquisition
// @Description Records a processing request, submits the provider task and starts polling
// @Tags admin
// @Accept json
// @Produce json
// @Param request body CreateRequestBody true "Date window"
// @Success 201 {object} CreateRequestResponse
// @Failure 400 {object} ErrorResponse "Bad request"
// @Failure 502 {object} CreateRequestResponse "Provider submission failed"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /internal/admin/requests [post]
func (a *API) CreateRequest(c *gin.Context) {
	var body CreateRequestBody
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, err)
			return
		}
	}

	start, err := parseDate("startDate", body.StartDate)
	if err != nil {
		badRequest(c, err)
		return
	}
	end, err := parseDate("endDate", body.EndDate)
	if err != nil {
		badRequest(c, err)
		return
	}

	req, err := a.submitter.Submit(c.Request.Context(), pipeline.SubmitInput{
		Start:       start,
		End:         end,
		TriggerType: database.TriggerManual,
		TriggeredBy: body.TriggeredBy,
		Description: body.Description,
	})
	if err != nil && req != nil {
		msg := err.Error()
		c.JSON(statusFor(apperrors.CodeOf(err)), CreateRequestResponse{RequestID: req.ID, Error: &msg})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, CreateRequestResponse{RequestID: req.ID, TaskID: req.ExternalTaskID})
}

// ReprocessRequest re-expands an already-completed provider task
// @Summary Reprocess a provider task
// @Description Creates a reprocess request for a completed task and dispatches its fan-out. At most one reprocess per task may be active.
// @Tags admin
// @Accept json
// @Produce json
// @Param request body ReprocessBody true "Task to reprocess"
// @Success 201 {object} ReprocessResponse
// @Failure 400 {object} ErrorResponse "Bad request"
// @Failure 404 {object} ErrorResponse "Unknown task"
// @Failure 409 {object} ErrorResponse "A reprocess of this task is still active"
// @Failure 422 {object} ErrorResponse "Task outputs are past provider retention"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /internal/admin/requests/reprocess [post]
func (a *API) ReprocessRequest(c *gin.Context) {
	var body ReprocessBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}

	req, err := a.reprocessor.Reprocess(c.Request.Context(), pipeline.ReprocessInput{
		TaskID:      body.TaskID,
		TriggeredBy: body.TriggeredBy,
		Description: body.Description,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	resp := ReprocessResponse{RequestID: req.ID, TaskID: req.TaskID()}
	if req.ParentRequestID != nil {
		resp.ParentRequestID = *req.ParentRequestID
	}
	c.JSON(http.StatusCreated, resp)
}

// ListRequests returns requests newest first with derived statuses
// @Summary List processing requests
// @Tags requests
// @Produce json
// @Param limit query int false "Number of items to return" default(50) minimum(1) maximum(200)
// @Param offset query int false "Number of items to skip" default(0) minimum(0)
// @Success 200 {object} ListRequestsResponse
// @Failure 400 {object} ErrorResponse "Bad request"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /internal/requests [get]
func (a *API) ListRequests(c *gin.Context) {
	var q ListRequestsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	if q.Limit == 0 {
		q.Limit = 50
	}

	ctx := c.Request.Context()
	reqs, err := a.store.ListRequests(ctx, q.Limit, q.Offset)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]RequestSummary, 0, len(reqs))
	for i := range reqs {
		jobs, err := a.store.JobsForRequest(ctx, reqs[i].ID)
		if err != nil {
			respondError(c, err)
			return
		}
		out = append(out, RequestSummary{
			ProcessingRequest: reqs[i],
			Status:            ledger.DeriveStatus(&reqs[i], jobs),
			Progress:          ledger.Summarize(&reqs[i], jobs),
		})
	}

	c.JSON(http.StatusOK, ListRequestsResponse{Requests: out, Limit: q.Limit, Offset: q.Offset})
}

// GetRequest returns one request with its derived status and job ledger
// @Summary Get a processing request
// @Tags requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} ledger.RequestView
// @Failure 404 {object} ErrorResponse "Request not found"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /internal/requests/{id} [get]
func (a *API) GetRequest(c *gin.Context) {
	view, err := ledger.Describe(c.Request.Context(), a.store, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

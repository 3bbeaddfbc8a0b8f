package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lakewatch/thermal-service/internal/database"
)

// ListJobsQuery filters the job ledger.
type ListJobsQuery struct {
	RequestID string `form:"requestId" json:"requestId"`
	TaskID    string `form:"taskId" json:"taskId"`
	Status    string `form:"status" json:"status" binding:"omitempty,oneof=started success failed" jsonschema:"enum=started,enum=success,enum=failed"`
	JobType   string `form:"jobType" json:"jobType" binding:"omitempty,oneof=submit process" jsonschema:"enum=submit,enum=process"`
	From      string `form:"from" json:"from"`
	To        string `form:"to" json:"to"`
	Limit     int    `form:"limit" json:"limit" binding:"omitempty,min=1,max=1000" jsonschema:"minimum=1,maximum=1000"`
}

// ListJobsResponse is the filtered job ledger.
type ListJobsResponse struct {
	Jobs  []database.JobRecord `json:"jobs" jsonschema:"required"`
	Total int                  `json:"total" jsonschema:"required"`
}

// parseInstant accepts RFC 3339 timestamps or plain dates.
func parseInstant(field, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return nil, fmt.Errorf("%s must be RFC 3339 or YYYY-MM-DD: %q", field, value)
	}
	return &t, nil
}

// ListJobs returns job attempts matching the filters
// @Summary List job attempts
// @Description Returns submit and process attempts, newest first, filtered by request, task, status, type and start time
// @Tags jobs
// @Produce json
// @Param requestId query string false "Filter by request ID"
// @Param taskId query string false "Filter by provider task ID"
// @Param status query string false "Filter by status" Enums(started, success, failed)
// @Param jobType query string false "Filter by job type" Enums(submit, process)
// @Param from query string false "Started at or after (RFC 3339 or YYYY-MM-DD)"
// @Param to query string false "Started before (RFC 3339 or YYYY-MM-DD)"
// @Param limit query int false "Number of items to return" default(200) minimum(1) maximum(1000)
// @Success 200 {object} ListJobsResponse
// @Failure 400 {object} ErrorResponse "Bad request"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /internal/jobs [get]
func (a *API) ListJobs(c *gin.Context) {
	var q ListJobsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	if q.Limit == 0 {
		q.Limit = 200
	}

	from, err := parseInstant("from", q.From)
	if err != nil {
		badRequest(c, err)
		return
	}
	to, err := parseInstant("to", q.To)
	if err != nil {
		badRequest(c, err)
		return
	}

	jobs, err := a.store.ListJobs(c.Request.Context(), database.JobFilter{
		RequestID: q.RequestID,
		TaskID:    q.TaskID,
		JobType:   database.JobType(q.JobType),
		Status:    database.JobStatus(q.Status),
		From:      from,
		To:        to,
		Limit:     q.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	if jobs == nil {
		jobs = []database.JobRecord{}
	}

	c.JSON(http.StatusOK, ListJobsResponse{Jobs: jobs, Total: len(jobs)})
}

package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orrn/printfarm/internal/core"
	"github.com/orrn/printfarm/internal/db"
)

type CreateJobRequest struct {
	QueueID        int64      `json:"queue_id" binding:"required,gt=0"`
	PrinterID      int64      `json:"printer_id" binding:"required,gt=0"`
	ScheduledStart *time.Time `json:"scheduled_start_time"`
	Notes          string     `json:"notes"`
}

type ListJobsQuery struct {
	PrinterID int64  `form:"printer_id"`
	UserID    int64  `form:"user_id"`
	Status    string `form:"status"`
	FromDate  string `form:"from_date"`
	ToDate    string `form:"to_date"`
	Limit     int    `form:"limit" binding:"max=500"`
	Offset    int    `form:"offset"`
	SortBy    string `form:"sort_by"`
	SortDir   string `form:"sort_dir"`
}

type JobStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Notes  string `json:"notes"`
}

type ProgressRequest struct {
	Progress *float64 `json:"progress" binding:"required"`
}

type MaterialRequest struct {
	MaterialUsed *float64 `json:"material_used" binding:"required"`
}

type JobHandler struct {
	jobs *core.Jobs
}

func NewJobHandler(jobs *core.Jobs) *JobHandler {
	return &JobHandler{jobs: jobs}
}

func (h *JobHandler) CreateJob(c *gin.Context) {
	var req CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "validation_error", err.Error())
		return
	}

	ctx := c.Request.Context()
	id, err := h.jobs.Create(ctx, req.QueueID, req.PrinterID, req.ScheduledStart, req.Notes)
	if err != nil {
		respondError(c, err)
		return
	}

	job, err := h.jobs.Get(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, job)
}

func (h *JobHandler) ListJobs(c *gin.Context) {
	var query ListJobsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		badRequest(c, "validation_error", err.Error())
		return
	}

	filter := db.JobFilter{
		PrinterID: query.PrinterID,
		UserID:    query.UserID,
		Status:    query.Status,
		OrderBy:   query.SortBy,
		OrderDir:  query.SortDir,
		Limit:     query.Limit,
		Offset:    query.Offset,
	}
	if query.FromDate != "" {
		if t, err := time.Parse("2006-01-02", query.FromDate); err == nil {
			filter.FromDate = &t
		}
	}
	if query.ToDate != "" {
		if t, err := time.Parse("2006-01-02", query.ToDate); err == nil {
			endOfDay := t.Add(24*time.Hour - time.Second)
			filter.ToDate = &endOfDay
		}
	}

	jobs, err := h.jobs.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, jobs)
}

func (h *JobHandler) CurrentJobs(c *gin.Context) {
	jobs, err := h.jobs.Current(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, jobs)
}

func (h *JobHandler) Statistics(c *gin.Context) {
	stats, err := h.jobs.Statistics(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *JobHandler) GetJob(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	job, err := h.jobs.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *JobHandler) UpdateStatus(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req JobStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "validation_error", err.Error())
		return
	}

	ctx := c.Request.Context()
	if err := h.jobs.UpdateStatus(ctx, id, core.JobStatus(req.Status), req.Notes); err != nil {
		respondError(c, err)
		return
	}
	h.respondJob(c, id)
}

func (h *JobHandler) UpdateProgress(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req ProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "validation_error", err.Error())
		return
	}

	if err := h.jobs.UpdateProgress(c.Request.Context(), id, *req.Progress); err != nil {
		respondError(c, err)
		return
	}
	h.respondJob(c, id)
}

func (h *JobHandler) SetMaterialUsed(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req MaterialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "validation_error", err.Error())
		return
	}

	if err := h.jobs.SetMaterialUsed(c.Request.Context(), id, *req.MaterialUsed); err != nil {
		respondError(c, err)
		return
	}
	h.respondJob(c, id)
}

func (h *JobHandler) respondJob(c *gin.Context, id int64) {
	job, err := h.jobs.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

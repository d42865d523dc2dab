package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orrn/printfarm/internal/core"
	"github.com/orrn/printfarm/internal/db"
)

type EnqueueRequest struct {
	ModelID       int64           `json:"model_id" binding:"required,gt=0"`
	UserID        int64           `json:"user_id" binding:"required,gt=0"`
	Priority      int             `json:"priority"`
	Notes         string          `json:"notes"`
	PrintSettings json.RawMessage `json:"print_settings"`
}

type QueueStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Notes  string `json:"notes"`
}

type PriorityRequest struct {
	Priority *int `json:"priority" binding:"required"`
}

type QueueHandler struct {
	queue *core.Queue
}

func NewQueueHandler(queue *core.Queue) *QueueHandler {
	return &QueueHandler{queue: queue}
}

func (h *QueueHandler) Enqueue(c *gin.Context) {
	var req EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "validation_error", err.Error())
		return
	}

	settings, err := core.ParseValueMap(req.PrintSettings)
	if err != nil {
		badRequest(c, "invalid_print_settings", err.Error())
		return
	}

	ctx := c.Request.Context()
	id, err := h.queue.Enqueue(ctx, core.EnqueueRequest{
		ModelID:  req.ModelID,
		UserID:   req.UserID,
		Priority: req.Priority,
		Notes:    req.Notes,
		Settings: settings,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	entry, err := h.queue.Get(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (h *QueueHandler) List(c *gin.Context) {
	filter := db.QueueFilter{
		Status:   c.Query("status"),
		UserID:   queryInt64(c, "user_id"),
		ModelID:  queryInt64(c, "model_id"),
		OrderBy:  c.Query("order_by"),
		OrderDir: c.Query("order_dir"),
		Limit:    queryInt(c, "limit", 0),
		Offset:   queryInt(c, "offset", 0),
	}

	entries, err := h.queue.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (h *QueueHandler) Pending(c *gin.Context) {
	entries, err := h.queue.GetPending(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (h *QueueHandler) Stats(c *gin.Context) {
	stats, err := h.queue.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *QueueHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	entry, err := h.queue.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *QueueHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.queue.Delete(c.Request.Context(), id, actorID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *QueueHandler) UpdateStatus(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req QueueStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "validation_error", err.Error())
		return
	}

	ctx := c.Request.Context()
	if err := h.queue.UpdateStatus(ctx, id, core.QueueStatus(req.Status), actorID(c), req.Notes); err != nil {
		respondError(c, err)
		return
	}

	entry, err := h.queue.Get(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *QueueHandler) UpdatePriority(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req PriorityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "validation_error", err.Error())
		return
	}

	ctx := c.Request.Context()
	if err := h.queue.UpdatePriority(ctx, id, *req.Priority, actorID(c)); err != nil {
		respondError(c, err)
		return
	}

	entry, err := h.queue.Get(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *QueueHandler) History(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	history, err := h.queue.History(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

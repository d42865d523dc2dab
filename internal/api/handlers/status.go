package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orrn/printfarm/internal/core"
)

type CreateStatusRequest struct {
	OrderID               int64  `json:"order_id" binding:"required,gt=0"`
	ProductID             int64  `json:"product_id" binding:"required,gt=0"`
	QueueID               int64  `json:"queue_id" binding:"required,gt=0"`
	PrinterID             *int64 `json:"printer_id"`
	TotalPrintTimeSeconds *int64 `json:"total_print_time_seconds"`
	Notes                 string `json:"notes"`
}

type TrackStatusRequest struct {
	Status    string   `json:"status" binding:"required"`
	Progress  *float64 `json:"progress"`
	Message   string   `json:"message"`
	UpdatedBy string   `json:"updated_by"`
}

type ResetRequest struct {
	Message   string `json:"message"`
	UpdatedBy string `json:"updated_by"`
}

type StatusMessageRequest struct {
	Message           string `json:"message" binding:"required"`
	Type              string `json:"type"`
	VisibleToCustomer *bool  `json:"is_visible_to_customer"`
}

type StatusHandler struct {
	tracker *core.Tracker
}

func NewStatusHandler(tracker *core.Tracker) *StatusHandler {
	return &StatusHandler{tracker: tracker}
}

func updatedBy(name string) string {
	if name == "" {
		return "api"
	}
	return name
}

func (h *StatusHandler) Create(c *gin.Context) {
	var req CreateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "validation_error", err.Error())
		return
	}

	ctx := c.Request.Context()
	id, err := h.tracker.Create(ctx, core.CreateStatusRequest{
		OrderID:               req.OrderID,
		ProductID:             req.ProductID,
		QueueID:               req.QueueID,
		PrinterID:             req.PrinterID,
		TotalPrintTimeSeconds: req.TotalPrintTimeSeconds,
		Notes:                 req.Notes,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	record, err := h.tracker.Get(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

func (h *StatusHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	detailed, err := h.tracker.Detailed(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detailed)
}

func (h *StatusHandler) Live(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	snap, err := h.tracker.Live(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *StatusHandler) UpdateStatus(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req TrackStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "validation_error", err.Error())
		return
	}

	ctx := c.Request.Context()
	err := h.tracker.UpdateStatus(ctx, id, core.TrackStatus(req.Status), req.Progress, req.Message, updatedBy(req.UpdatedBy))
	if err != nil {
		respondError(c, err)
		return
	}
	h.respondRecord(c, id)
}

func (h *StatusHandler) Reset(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req ResetRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "validation_error", err.Error())
			return
		}
	}

	if err := h.tracker.Reset(c.Request.Context(), id, req.Message, updatedBy(req.UpdatedBy)); err != nil {
		respondError(c, err)
		return
	}
	h.respondRecord(c, id)
}

func (h *StatusHandler) RecordMetrics(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var in core.MetricInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "validation_error", err.Error())
		return
	}

	metricID, err := h.tracker.RecordMetrics(c.Request.Context(), id, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": metricID, "print_status_id": id})
}

func (h *StatusHandler) Metrics(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	metrics, err := h.tracker.RecentMetrics(c.Request.Context(), id, queryInt(c, "limit", 0))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, metrics)
}

func (h *StatusHandler) Messages(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	visibleOnly := c.Query("visible_only") == "true"
	messages, err := h.tracker.Messages(c.Request.Context(), id, visibleOnly, queryInt(c, "limit", 0))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, messages)
}

func (h *StatusHandler) AddMessage(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req StatusMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "validation_error", err.Error())
		return
	}
	if req.Type == "" {
		req.Type = core.MessageInfo
	}
	visible := true
	if req.VisibleToCustomer != nil {
		visible = *req.VisibleToCustomer
	}

	msgID, err := h.tracker.AddMessage(c.Request.Context(), id, req.Message, req.Type, visible)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": msgID, "print_status_id": id})
}

func (h *StatusHandler) Updates(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	updates, err := h.tracker.Updates(c.Request.Context(), id, queryInt(c, "limit", 0))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updates)
}

func (h *StatusHandler) Active(c *gin.Context) {
	records, err := h.tracker.Active(c.Request.Context(), queryInt(c, "limit", 0), queryInt(c, "offset", 0))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (h *StatusHandler) RecentlyCompleted(c *gin.Context) {
	records, err := h.tracker.RecentlyCompleted(c.Request.Context(), queryInt(c, "days", 0), queryInt(c, "limit", 0))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (h *StatusHandler) ByOrder(c *gin.Context) {
	orderID, ok := parseID(c, "orderID")
	if !ok {
		return
	}

	records, err := h.tracker.GetByOrder(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (h *StatusHandler) ByQueue(c *gin.Context) {
	queueID, ok := parseID(c, "queueID")
	if !ok {
		return
	}

	records, err := h.tracker.GetByQueue(c.Request.Context(), queueID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (h *StatusHandler) respondRecord(c *gin.Context, id int64) {
	record, err := h.tracker.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

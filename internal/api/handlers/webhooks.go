package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orrn/printfarm/internal/db"
	"github.com/orrn/printfarm/internal/notify"
)

type CreateWebhookRequest struct {
	Name   string   `json:"name" binding:"required"`
	URL    string   `json:"url" binding:"required,url"`
	Secret string   `json:"secret"`
	Events []string `json:"events" binding:"required"`
}

type UpdateWebhookRequest struct {
	Name    string   `json:"name"`
	URL     string   `json:"url" binding:"omitempty,url"`
	Secret  string   `json:"secret"`
	Events  []string `json:"events"`
	Enabled *bool    `json:"enabled"`
}

type WebhookResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Events    []string  `json:"events"`
	Enabled   bool      `json:"enabled"`
	HasSecret bool      `json:"has_secret"`
	CreatedAt time.Time `json:"created_at"`
}

type TestWebhookResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type WebhookHandler struct {
	store *db.Store
	sink  *notify.WebhookSink
}

func NewWebhookHandler(store *db.Store, sink *notify.WebhookSink) *WebhookHandler {
	return &WebhookHandler{store: store, sink: sink}
}

func (h *WebhookHandler) ListWebhooks(c *gin.Context) {
	webhooks, err := h.store.Webhooks.ListWebhooks(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	responses := make([]WebhookResponse, 0, len(webhooks))
	for _, w := range webhooks {
		responses = append(responses, webhookToResponse(w))
	}
	c.JSON(http.StatusOK, responses)
}

func (h *WebhookHandler) CreateWebhook(c *gin.Context) {
	var req CreateWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "validation_error", err.Error())
		return
	}

	eventsJSON, ok := encodeEvents(c, req.Events)
	if !ok {
		return
	}

	w := &db.Webhook{
		Name:       req.Name,
		URL:        req.URL,
		Secret:     req.Secret,
		EventsJSON: eventsJSON,
		Enabled:    true,
	}
	if err := h.store.Webhooks.CreateWebhook(c.Request.Context(), w); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, webhookToResponse(w))
}

func (h *WebhookHandler) GetWebhook(c *gin.Context) {
	w, ok := h.loadWebhook(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, webhookToResponse(w))
}

func (h *WebhookHandler) UpdateWebhook(c *gin.Context) {
	w, ok := h.loadWebhook(c)
	if !ok {
		return
	}

	var req UpdateWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "validation_error", err.Error())
		return
	}

	if req.Name != "" {
		w.Name = req.Name
	}
	if req.URL != "" {
		w.URL = req.URL
	}
	if req.Secret != "" {
		w.Secret = req.Secret
	}
	if len(req.Events) > 0 {
		eventsJSON, ok := encodeEvents(c, req.Events)
		if !ok {
			return
		}
		w.EventsJSON = eventsJSON
	}
	if req.Enabled != nil {
		w.Enabled = *req.Enabled
	}

	if err := h.store.Webhooks.UpdateWebhook(c.Request.Context(), w); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, webhookToResponse(w))
}

func (h *WebhookHandler) DeleteWebhook(c *gin.Context) {
	w, ok := h.loadWebhook(c)
	if !ok {
		return
	}

	if err := h.store.Webhooks.DeleteWebhook(c.Request.Context(), w.ID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *WebhookHandler) TestWebhook(c *gin.Context) {
	w, ok := h.loadWebhook(c)
	if !ok {
		return
	}

	if err := h.sink.Test(c.Request.Context(), w); err != nil {
		c.JSON(http.StatusOK, TestWebhookResponse{
			Success: false,
			Message: fmt.Sprintf("Webhook test failed: %v", err),
		})
		return
	}
	c.JSON(http.StatusOK, TestWebhookResponse{Success: true, Message: "Webhook test successful"})
}

func (h *WebhookHandler) loadWebhook(c *gin.Context) (*db.Webhook, bool) {
	id, ok := parseID(c, "id")
	if !ok {
		return nil, false
	}

	w, err := h.store.Webhooks.GetWebhookByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "Webhook not found"})
			return nil, false
		}
		respondError(c, err)
		return nil, false
	}
	return w, true
}

func encodeEvents(c *gin.Context, events []string) (string, bool) {
	if len(events) == 0 {
		badRequest(c, "validation_error", "At least one event must be specified")
		return "", false
	}
	for _, event := range events {
		if !notify.ValidEvent(event) {
			badRequest(c, "invalid_event", fmt.Sprintf("Invalid event type: %s", event))
			return "", false
		}
	}

	data, err := json.Marshal(events)
	if err != nil {
		respondError(c, err)
		return "", false
	}
	return string(data), true
}

func webhookToResponse(w *db.Webhook) WebhookResponse {
	var events []string
	_ = json.Unmarshal([]byte(w.EventsJSON), &events)
	if events == nil {
		events = []string{}
	}

	return WebhookResponse{
		ID:        w.ID,
		Name:      w.Name,
		URL:       w.URL,
		Events:    events,
		Enabled:   w.Enabled,
		HasSecret: w.Secret != "",
		CreatedAt: w.CreatedAt,
	}
}

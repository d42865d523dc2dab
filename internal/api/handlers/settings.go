package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orrn/printfarm/internal/config"
	"github.com/orrn/printfarm/internal/core"
)

type SettingsResponse struct {
	EstimatedTimeBuffer float64 `json:"estimated_time_buffer"`
	AuthEnabled         bool    `json:"auth_enabled"`
	LiveCacheEnabled    bool    `json:"live_cache_enabled"`
	EventExchange       string  `json:"event_exchange,omitempty"`
}

type UpdateSettingsRequest struct {
	EstimatedTimeBuffer *float64 `json:"estimated_time_buffer" binding:"required"`
}

type SettingsHandler struct {
	jobs   *core.Jobs
	config *config.Config
}

func NewSettingsHandler(jobs *core.Jobs, cfg *config.Config) *SettingsHandler {
	return &SettingsHandler{jobs: jobs, config: cfg}
}

func (h *SettingsHandler) GetSettings(c *gin.Context) {
	resp := SettingsResponse{
		EstimatedTimeBuffer: h.jobs.TimeBuffer(c.Request.Context()),
		AuthEnabled:         h.config.Auth.Enabled,
		LiveCacheEnabled:    h.config.Redis.Addr != "",
	}
	if h.config.AMQP.URL != "" {
		resp.EventExchange = h.config.AMQP.Exchange
	}
	c.JSON(http.StatusOK, resp)
}

func (h *SettingsHandler) UpdateSettings(c *gin.Context) {
	var req UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "validation_error", err.Error())
		return
	}

	if err := h.jobs.SetTimeBuffer(c.Request.Context(), *req.EstimatedTimeBuffer); err != nil {
		respondError(c, err)
		return
	}
	h.GetSettings(c)
}

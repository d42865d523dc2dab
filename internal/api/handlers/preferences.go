package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orrn/printfarm/internal/core"
	"github.com/orrn/printfarm/internal/db"
)

type UpdatePreferencesRequest struct {
	NotifyOnStart    *bool `json:"notify_on_start"`
	NotifyOnComplete *bool `json:"notify_on_complete"`
	NotifyOnFailure  *bool `json:"notify_on_failure"`
	NotifyOnPause    *bool `json:"notify_on_pause"`
	NotifyOnProgress *bool `json:"notify_on_progress"`
	ProgressInterval *int  `json:"progress_interval" binding:"omitempty,min=1,max=100"`
}

type PreferencesHandler struct {
	store *db.Store
	prefs *core.StorePreferences
}

func NewPreferencesHandler(store *db.Store) *PreferencesHandler {
	return &PreferencesHandler{store: store, prefs: core.NewStorePreferences(store)}
}

func (h *PreferencesHandler) Get(c *gin.Context) {
	userID, ok := parseID(c, "userID")
	if !ok {
		return
	}

	prefs, err := h.prefs.Preferences(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, prefs)
}

func (h *PreferencesHandler) Update(c *gin.Context) {
	userID, ok := parseID(c, "userID")
	if !ok {
		return
	}

	var req UpdatePreferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "validation_error", err.Error())
		return
	}

	ctx := c.Request.Context()
	prefs, err := h.prefs.Preferences(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	setBool(&prefs.NotifyOnStart, req.NotifyOnStart)
	setBool(&prefs.NotifyOnComplete, req.NotifyOnComplete)
	setBool(&prefs.NotifyOnFailure, req.NotifyOnFailure)
	setBool(&prefs.NotifyOnPause, req.NotifyOnPause)
	setBool(&prefs.NotifyOnProgress, req.NotifyOnProgress)
	if req.ProgressInterval != nil {
		prefs.ProgressInterval = *req.ProgressInterval
	}

	if err := h.store.Preferences.SavePreferences(ctx, prefs); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, prefs)
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

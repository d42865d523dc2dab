package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orrn/printfarm/internal/db"
)

// NotificationHandler serves the in-app inbox written by the store sink.
type NotificationHandler struct {
	store *db.Store
}

func NewNotificationHandler(store *db.Store) *NotificationHandler {
	return &NotificationHandler{store: store}
}

// List returns a customer's inbox when user_id is given, the operator
// inbox otherwise.
func (h *NotificationHandler) List(c *gin.Context) {
	limit := queryInt(c, "limit", 50)
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var (
		records []*db.NotificationRecord
		err     error
	)
	if userID := queryInt64(c, "user_id"); userID > 0 {
		records, err = h.store.Notifications.ListByUser(c.Request.Context(), userID, limit)
	} else {
		records, err = h.store.Notifications.ListAdmin(c.Request.Context(), limit)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

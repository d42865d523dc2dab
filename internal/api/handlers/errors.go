package handlers

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/orrn/printfarm/internal/core"
	"github.com/orrn/printfarm/internal/logging"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type errorMapping struct {
	target error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{core.ErrPrinterNotFound, http.StatusNotFound, "printer_not_found"},
	{core.ErrQueueEntryNotFound, http.StatusNotFound, "queue_entry_not_found"},
	{core.ErrJobNotFound, http.StatusNotFound, "job_not_found"},
	{core.ErrStatusNotFound, http.StatusNotFound, "status_not_found"},
	{sql.ErrNoRows, http.StatusNotFound, "not_found"},

	{core.ErrPrinterBusy, http.StatusConflict, "printer_busy"},
	{core.ErrPrinterUnavailable, http.StatusConflict, "printer_unavailable"},
	{core.ErrQueueEntryInUse, http.StatusConflict, "queue_entry_in_use"},
	{core.ErrJobExists, http.StatusConflict, "job_exists"},
	{core.ErrStatusExists, http.StatusConflict, "status_exists"},
	{core.ErrTerminalStatus, http.StatusConflict, "terminal_status"},
	{core.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{core.ErrConcurrentUpdate, http.StatusConflict, "concurrent_update"},

	{core.ErrModelNotApproved, http.StatusForbidden, "model_not_approved"},

	{core.ErrInvalidInput, http.StatusBadRequest, "validation_error"},
	{core.ErrInvalidStatus, http.StatusBadRequest, "invalid_status"},
	{core.ErrInvalidPrinterStatus, http.StatusBadRequest, "invalid_status"},
	{core.ErrInvalidMessageType, http.StatusBadRequest, "invalid_message_type"},
}

// respondError writes the HTTP form of err. Unknown errors become a 500 and
// are logged; their text never reaches the client.
func respondError(c *gin.Context, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			c.JSON(m.status, ErrorResponse{Error: m.code, Message: err.Error()})
			return
		}
	}

	logging.Component("api").WithError(err).WithField("path", c.FullPath()).Error("unhandled error")
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "Internal server error",
	})
}

func badRequest(c *gin.Context, code, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: code, Message: message})
}

func parseID(c *gin.Context, param string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(param), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid_id", fmt.Sprintf("Invalid %s", param))
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}

func queryInt64(c *gin.Context, key string) int64 {
	v, _ := strconv.ParseInt(c.Query(key), 10, 64)
	return v
}

// actorID reads the optional acting user from the X-Actor-ID header.
func actorID(c *gin.Context) *int64 {
	v, err := strconv.ParseInt(c.GetHeader("X-Actor-ID"), 10, 64)
	if err != nil || v <= 0 {
		return nil
	}
	return &v
}

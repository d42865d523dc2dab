package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orrn/printfarm/internal/core"
)

type CreatePrinterRequest struct {
	Name         string          `json:"name" binding:"required"`
	Model        string          `json:"model" binding:"required"`
	Capabilities json.RawMessage `json:"capabilities"`
	Notes        string          `json:"notes"`
}

type UpdatePrinterRequest struct {
	Name         *string         `json:"name"`
	Model        *string         `json:"model"`
	Capabilities json.RawMessage `json:"capabilities"`
	Notes        *string         `json:"notes"`
}

type SetPrinterStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type MaintenanceRequest struct {
	Notes string `json:"notes"`
}

type PrinterHandler struct {
	registry *core.Registry
}

func NewPrinterHandler(registry *core.Registry) *PrinterHandler {
	return &PrinterHandler{registry: registry}
}

func (h *PrinterHandler) ListPrinters(c *gin.Context) {
	printers, err := h.registry.List(c.Request.Context(), c.Query("status"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, printers)
}

func (h *PrinterHandler) CreatePrinter(c *gin.Context) {
	var req CreatePrinterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "validation_error", err.Error())
		return
	}

	caps, err := core.ParseValueMap(req.Capabilities)
	if err != nil {
		badRequest(c, "invalid_capabilities", err.Error())
		return
	}

	ctx := c.Request.Context()
	id, err := h.registry.Register(ctx, req.Name, req.Model, caps, req.Notes)
	if err != nil {
		respondError(c, err)
		return
	}

	printer, err := h.registry.Get(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, printer)
}

func (h *PrinterHandler) GetPrinter(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	printer, err := h.registry.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, printer)
}

func (h *PrinterHandler) UpdatePrinter(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req UpdatePrinterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "validation_error", err.Error())
		return
	}

	update := core.PrinterUpdate{Name: req.Name, Model: req.Model, Notes: req.Notes}
	if len(req.Capabilities) > 0 {
		caps, err := core.ParseValueMap(req.Capabilities)
		if err != nil {
			badRequest(c, "invalid_capabilities", err.Error())
			return
		}
		update.Capabilities = caps
	}

	printer, err := h.registry.Update(c.Request.Context(), id, update)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, printer)
}

func (h *PrinterHandler) DeletePrinter(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.registry.Remove(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *PrinterHandler) SetStatus(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req SetPrinterStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "validation_error", err.Error())
		return
	}

	ctx := c.Request.Context()
	if err := h.registry.SetStatus(ctx, id, core.PrinterStatus(req.Status)); err != nil {
		respondError(c, err)
		return
	}

	printer, err := h.registry.Get(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, printer)
}

func (h *PrinterHandler) RegisterMaintenance(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req MaintenanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "validation_error", err.Error())
		return
	}

	ctx := c.Request.Context()
	if err := h.registry.RegisterMaintenance(ctx, id, req.Notes); err != nil {
		respondError(c, err)
		return
	}

	printer, err := h.registry.Get(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, printer)
}

func (h *PrinterHandler) ListAvailable(c *gin.Context) {
	printers, err := h.registry.FindAvailable(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, printers)
}

// FindCompatible takes the required capabilities as the request body.
func (h *PrinterHandler) FindCompatible(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		badRequest(c, "validation_error", err.Error())
		return
	}

	required, err := core.ParseValueMap(raw)
	if err != nil {
		badRequest(c, "invalid_capabilities", err.Error())
		return
	}

	printers, err := h.registry.FindCompatible(c.Request.Context(), required)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, printers)
}

func (h *PrinterHandler) Statistics(c *gin.Context) {
	stats, err := h.registry.Statistics(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

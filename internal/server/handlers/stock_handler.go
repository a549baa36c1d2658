package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/packflow/internal/domain/models"
	"github.com/mamadbah2/packflow/internal/service/ledger"
	"github.com/mamadbah2/packflow/internal/service/projection"
)

// StockLedger is the ledger surface exposed over HTTP.
type StockLedger interface {
	RecordMovement(ctx context.Context, in ledger.MovementInput) (models.StockMovement, error)
	Movements(ctx context.Context, materialID, locationID string) ([]models.StockMovement, error)
	Reconcile(ctx context.Context, materialID, locationID string) (models.Reconciliation, error)
}

// StockReports is the read model exposed over HTTP.
type StockReports interface {
	GetStockReport(ctx context.Context, locationID string) ([]models.StockLine, error)
	GetLowStockAlerts(ctx context.Context, locationID string) ([]models.StockAlert, error)
}

// MaterialLookup resolves the material of a manual adjustment.
type MaterialLookup interface {
	Material(ctx context.Context, id string) (models.Material, error)
}

// StockHandler serves stock levels, alerts and manual adjustments.
type StockHandler struct {
	ledger    StockLedger
	reports   StockReports
	materials MaterialLookup
	logger    *zap.Logger
}

// NewStockHandler constructs the HTTP handler adapter.
func NewStockHandler(l StockLedger, reports StockReports, materials MaterialLookup, logger *zap.Logger) *StockHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StockHandler{ledger: l, reports: reports, materials: materials, logger: logger}
}

type movementRequest struct {
	MaterialID string           `json:"material_id" binding:"required"`
	LocationID string           `json:"location_id" binding:"required"`
	Direction  models.Direction `json:"direction" binding:"required,oneof=in out"`
	Quantity   int64            `json:"quantity"`
	Reason     string           `json:"reason" binding:"required"`
	Reference  string           `json:"reference"`
}

// Report returns every material with its quantity, status and value at a location.
func (h *StockHandler) Report(c *gin.Context) {
	lines, err := h.reports.GetStockReport(c.Request.Context(), c.Param("location"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"location":    c.Param("location"),
		"lines":       lines,
		"total_value": projection.TotalValue(lines),
	})
}

// Alerts lists materials at or below their reorder level.
func (h *StockHandler) Alerts(c *gin.Context) {
	alerts, err := h.reports.GetLowStockAlerts(c.Request.Context(), c.Param("location"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if alerts == nil {
		alerts = []models.StockAlert{}
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

// RecordMovement books a manual adjustment.
func (h *StockHandler) RecordMovement(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req movementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, err)
		return
	}
	// Manual adjustments must name a catalogued material.
	if _, err := h.materials.Material(c.Request.Context(), req.MaterialID); err != nil {
		respondError(c, h.logger, err)
		return
	}

	mv, err := h.ledger.RecordMovement(c.Request.Context(), ledger.MovementInput{
		MaterialID: req.MaterialID,
		LocationID: req.LocationID,
		Direction:  req.Direction,
		Quantity:   req.Quantity,
		Reason:     req.Reason,
		Reference:  req.Reference,
		ActorID:    actor.ID,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, mv)
}

// Movements returns the audit trail of one material at one location.
func (h *StockHandler) Movements(c *gin.Context) {
	mvs, err := h.ledger.Movements(c.Request.Context(), c.Param("material"), c.Param("location"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if mvs == nil {
		mvs = []models.StockMovement{}
	}
	c.JSON(http.StatusOK, gin.H{"movements": mvs})
}

// Reconcile compares the cached quantity with the ledger replay.
func (h *StockHandler) Reconcile(c *gin.Context) {
	rec, err := h.ledger.Reconcile(c.Request.Context(), c.Param("material"), c.Param("location"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reconciliation": rec, "consistent": rec.Consistent()})
}

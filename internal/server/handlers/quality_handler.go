package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/packflow/internal/domain/models"
	"github.com/mamadbah2/packflow/internal/service/quality"
)

// QualityService is the QC surface exposed over HTTP.
type QualityService interface {
	Inspect(ctx context.Context, in quality.InspectInput) (models.QCRecord, error)
	Get(ctx context.Context, id string) (models.QCRecord, error)
	List(ctx context.Context, materialID string) ([]models.QCRecord, error)
}

// QualityHandler serves QC inspections.
type QualityHandler struct {
	svc           QualityService
	storeLocation string
	logger        *zap.Logger
}

// NewQualityHandler constructs the HTTP handler adapter. Inspections without a
// location receive into storeLocation.
func NewQualityHandler(svc QualityService, storeLocation string, logger *zap.Logger) *QualityHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QualityHandler{svc: svc, storeLocation: storeLocation, logger: logger}
}

type inspectRequest struct {
	MaterialID        string           `json:"material_id" binding:"required"`
	LocationID        string           `json:"location_id"`
	BatchNumber       string           `json:"batch_number" binding:"required"`
	SupplierID        string           `json:"supplier_id"`
	DeliveredQuantity int64            `json:"delivered_quantity"`
	AcceptedQuantity  int64            `json:"accepted_quantity"`
	Grade             string           `json:"grade"`
	ExpiryDate        *time.Time       `json:"expiry_date"`
	Outcome           models.QCOutcome `json:"outcome" binding:"required"`
	Notes             string           `json:"notes"`
	PurchaseRequestID string           `json:"purchase_request_id"`
}

// Inspect records a QC verdict.
func (h *QualityHandler) Inspect(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req inspectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, err)
		return
	}
	location := req.LocationID
	if location == "" {
		location = h.storeLocation
	}

	rec, err := h.svc.Inspect(c.Request.Context(), quality.InspectInput{
		MaterialID:        req.MaterialID,
		LocationID:        location,
		BatchNumber:       req.BatchNumber,
		SupplierID:        req.SupplierID,
		DeliveredQuantity: req.DeliveredQuantity,
		AcceptedQuantity:  req.AcceptedQuantity,
		Grade:             req.Grade,
		ExpiryDate:        req.ExpiryDate,
		Outcome:           req.Outcome,
		InspectorID:       actor.ID,
		Notes:             req.Notes,
		PurchaseRequestID: req.PurchaseRequestID,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

// Get returns one QC record.
func (h *QualityHandler) Get(c *gin.Context) {
	rec, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// List returns QC records, optionally for ?material_id=.
func (h *QualityHandler) List(c *gin.Context) {
	recs, err := h.svc.List(c.Request.Context(), c.Query("material_id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if recs == nil {
		recs = []models.QCRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"qc_records": recs})
}

package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/packflow/internal/domain/models"
)

// MaterialCatalog is the catalogue surface exposed over HTTP.
type MaterialCatalog interface {
	Material(ctx context.Context, id string) (models.Material, error)
	Materials(ctx context.Context) ([]models.Material, error)
	Put(ctx context.Context, m models.Material) error
}

// MaterialHandler serves the materials catalogue.
type MaterialHandler struct {
	catalog MaterialCatalog
	logger  *zap.Logger
}

// NewMaterialHandler constructs the HTTP handler adapter.
func NewMaterialHandler(catalog MaterialCatalog, logger *zap.Logger) *MaterialHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MaterialHandler{catalog: catalog, logger: logger}
}

type materialRequest struct {
	Name         string       `json:"name" binding:"required"`
	Code         string       `json:"code"`
	Category     string       `json:"category"`
	Unit         string       `json:"unit" binding:"required"`
	ReorderLevel int64        `json:"reorder_level" binding:"gte=0"`
	MaxLevel     int64        `json:"max_level" binding:"gte=0"`
	UnitPrice    models.Money `json:"unit_price" binding:"gte=0"`
	Active       *bool        `json:"active"`
}

// List returns every material.
func (h *MaterialHandler) List(c *gin.Context) {
	materials, err := h.catalog.Materials(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if materials == nil {
		materials = []models.Material{}
	}
	c.JSON(http.StatusOK, gin.H{"materials": materials})
}

// Get returns one material.
func (h *MaterialHandler) Get(c *gin.Context) {
	m, err := h.catalog.Material(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// Put creates or replaces a material under the id in the path.
func (h *MaterialHandler) Put(c *gin.Context) {
	if _, ok := requireActor(c); !ok {
		return
	}
	var req materialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, err)
		return
	}

	m := models.Material{
		ID:           c.Param("id"),
		Name:         req.Name,
		Code:         req.Code,
		Category:     req.Category,
		Unit:         req.Unit,
		ReorderLevel: req.ReorderLevel,
		MaxLevel:     req.MaxLevel,
		UnitPrice:    req.UnitPrice,
		Active:       req.Active == nil || *req.Active,
	}
	if err := h.catalog.Put(c.Request.Context(), m); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

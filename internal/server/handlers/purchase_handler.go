package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/packflow/internal/domain/models"
	"github.com/mamadbah2/packflow/internal/service/purchasing"
)

// PurchaseService is the approval chain exposed over HTTP.
type PurchaseService interface {
	Create(ctx context.Context, in purchasing.CreateInput) (models.PurchaseRequest, error)
	HOApprove(ctx context.Context, id string, actor purchasing.Actor, notes string) (models.PurchaseRequest, error)
	HOReject(ctx context.Context, id string, actor purchasing.Actor, reason string) (models.PurchaseRequest, error)
	ForwardToMD(ctx context.Context, id string, actor purchasing.Actor, notes string) (models.PurchaseRequest, error)
	MDApprove(ctx context.Context, id string, actor purchasing.Actor, notes string) (models.PurchaseRequest, error)
	MDReject(ctx context.Context, id string, actor purchasing.Actor, reason string) (models.PurchaseRequest, error)
	Allocate(ctx context.Context, id string, actor purchasing.Actor, splits []models.AllocationSplit) (models.SupplierAllocation, error)
	Complete(ctx context.Context, id string, actor purchasing.Actor) (models.PurchaseRequest, error)
	Get(ctx context.Context, id string) (models.PurchaseRequest, error)
	Allocation(ctx context.Context, id string) (models.SupplierAllocation, error)
	List(ctx context.Context, status models.PurchaseStatus) ([]models.PurchaseRequest, error)
}

// PurchaseHandler serves the purchase approval chain.
type PurchaseHandler struct {
	svc    PurchaseService
	logger *zap.Logger
}

// NewPurchaseHandler constructs the HTTP handler adapter.
func NewPurchaseHandler(svc PurchaseService, logger *zap.Logger) *PurchaseHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PurchaseHandler{svc: svc, logger: logger}
}

type createPurchaseRequest struct {
	Items          []models.PurchaseItem `json:"items" binding:"required,min=1"`
	Justification  string                `json:"justification" binding:"required"`
	BudgetEstimate models.Money          `json:"budget_estimate" binding:"gte=0"`
}

type notesRequest struct {
	Notes string `json:"notes"`
}

type rejectRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type allocateRequest struct {
	Splits []models.AllocationSplit `json:"splits" binding:"required,min=1"`
}

// Create submits a purchase request.
func (h *PurchaseHandler) Create(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req createPurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, err)
		return
	}

	pr, err := h.svc.Create(c.Request.Context(), purchasing.CreateInput{
		Items:          req.Items,
		Justification:  req.Justification,
		BudgetEstimate: req.BudgetEstimate,
		Requester:      actor,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, pr)
}

// List returns purchase requests, optionally filtered by ?status=.
func (h *PurchaseHandler) List(c *gin.Context) {
	prs, err := h.svc.List(c.Request.Context(), models.PurchaseStatus(c.Query("status")))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if prs == nil {
		prs = []models.PurchaseRequest{}
	}
	c.JSON(http.StatusOK, gin.H{"purchase_requests": prs})
}

// Get returns one purchase request.
func (h *PurchaseHandler) Get(c *gin.Context) {
	pr, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, pr)
}

// Allocation returns the supplier split of a purchase request.
func (h *PurchaseHandler) Allocation(c *gin.Context) {
	alloc, err := h.svc.Allocation(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, alloc)
}

// HOApprove, ForwardToMD and MDApprove accept optional notes.
func (h *PurchaseHandler) HOApprove(c *gin.Context) { h.withNotes(c, h.svc.HOApprove) }
func (h *PurchaseHandler) ForwardToMD(c *gin.Context) { h.withNotes(c, h.svc.ForwardToMD) }
func (h *PurchaseHandler) MDApprove(c *gin.Context) { h.withNotes(c, h.svc.MDApprove) }

// HOReject and MDReject require a reason.
func (h *PurchaseHandler) HOReject(c *gin.Context) { h.withReason(c, h.svc.HOReject) }
func (h *PurchaseHandler) MDReject(c *gin.Context) { h.withReason(c, h.svc.MDReject) }

type transitionFunc func(ctx context.Context, id string, actor purchasing.Actor, text string) (models.PurchaseRequest, error)

func (h *PurchaseHandler) withNotes(c *gin.Context, apply transitionFunc) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req notesRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, h.logger, err)
			return
		}
	}
	h.respondTransition(c, apply, actor, req.Notes)
}

func (h *PurchaseHandler) withReason(c *gin.Context, apply transitionFunc) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req rejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, err)
		return
	}
	h.respondTransition(c, apply, actor, req.Reason)
}

func (h *PurchaseHandler) respondTransition(c *gin.Context, apply transitionFunc, actor purchasing.Actor, text string) {
	pr, err := apply(c.Request.Context(), c.Param("id"), actor, text)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, pr)
}

// Allocate records the supplier split.
func (h *PurchaseHandler) Allocate(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req allocateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, err)
		return
	}

	alloc, err := h.svc.Allocate(c.Request.Context(), c.Param("id"), actor, req.Splits)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, alloc)
}

// Complete closes an allocated purchase request.
func (h *PurchaseHandler) Complete(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	pr, err := h.svc.Complete(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, pr)
}

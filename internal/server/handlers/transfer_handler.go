package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/packflow/internal/domain/models"
	"github.com/mamadbah2/packflow/internal/service/transfer"
)

// TransferService is the internal request and dispatch surface exposed over HTTP.
type TransferService interface {
	Create(ctx context.Context, in transfer.CreateRequestInput) (models.InternalRequest, error)
	Fulfill(ctx context.Context, requestID string, in transfer.DispatchInput) (models.Dispatch, error)
	Cancel(ctx context.Context, requestID, reason, actorID string) (models.InternalRequest, error)
	Get(ctx context.Context, requestID string) (models.InternalRequest, error)
	List(ctx context.Context, filter transfer.ListFilter) ([]models.InternalRequest, error)
	Dispatch(ctx context.Context, in transfer.DispatchInput) (models.Dispatch, error)
	Dispatches(ctx context.Context, sourceLocation string) ([]models.Dispatch, error)
}

// TransferHandler serves internal requests and dispatches.
type TransferHandler struct {
	svc           TransferService
	storeLocation string
	logger        *zap.Logger
}

// NewTransferHandler constructs the HTTP handler adapter. Dispatches without an
// explicit source leave from storeLocation.
func NewTransferHandler(svc TransferService, storeLocation string, logger *zap.Logger) *TransferHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransferHandler{svc: svc, storeLocation: storeLocation, logger: logger}
}

type createInternalRequest struct {
	RequesterLocation string               `json:"requester_location" binding:"required"`
	Items             []models.RequestItem `json:"items" binding:"required,min=1"`
	Notes             string               `json:"notes"`
}

type dispatchRequest struct {
	SourceLocation    string                `json:"source_location"`
	Destination       string                `json:"destination"`
	Items             []models.DispatchItem `json:"items" binding:"required,min=1"`
	Notes             string                `json:"notes"`
	InternalRequestID string                `json:"internal_request_id"`
}

type cancelRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (h *TransferHandler) dispatchInput(req dispatchRequest, actorID string) transfer.DispatchInput {
	source := req.SourceLocation
	if source == "" {
		source = h.storeLocation
	}
	return transfer.DispatchInput{
		SourceLocation:    source,
		Destination:       req.Destination,
		Items:             req.Items,
		Notes:             req.Notes,
		InternalRequestID: req.InternalRequestID,
		DispatcherID:      actorID,
	}
}

// Create opens an internal request.
func (h *TransferHandler) Create(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req createInternalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, err)
		return
	}

	ir, err := h.svc.Create(c.Request.Context(), transfer.CreateRequestInput{
		RequesterLocation: req.RequesterLocation,
		Items:             req.Items,
		Notes:             req.Notes,
		RequesterID:       actor.ID,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, ir)
}

// List returns internal requests filtered by ?status= and ?location=.
func (h *TransferHandler) List(c *gin.Context) {
	status := models.RequestStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_input", "message": "unknown status " + string(status)})
		return
	}
	reqs, err := h.svc.List(c.Request.Context(), transfer.ListFilter{Status: status, Location: c.Query("location")})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if reqs == nil {
		reqs = []models.InternalRequest{}
	}
	c.JSON(http.StatusOK, gin.H{"internal_requests": reqs})
}

// Get returns one internal request.
func (h *TransferHandler) Get(c *gin.Context) {
	ir, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ir)
}

// Fulfill dispatches stock against a pending request.
func (h *TransferHandler) Fulfill(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, err)
		return
	}

	d, err := h.svc.Fulfill(c.Request.Context(), c.Param("id"), h.dispatchInput(req, actor.ID))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

// Cancel closes a pending request.
func (h *TransferHandler) Cancel(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, err)
		return
	}

	ir, err := h.svc.Cancel(c.Request.Context(), c.Param("id"), req.Reason, actor.ID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ir)
}

// Dispatch releases stock, optionally against an internal request.
func (h *TransferHandler) Dispatch(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req dispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, err)
		return
	}

	d, err := h.svc.Dispatch(c.Request.Context(), h.dispatchInput(req, actor.ID))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

// Dispatches lists dispatches, optionally from ?source=.
func (h *TransferHandler) Dispatches(c *gin.Context) {
	ds, err := h.svc.Dispatches(c.Request.Context(), c.Query("source"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if ds == nil {
		ds = []models.Dispatch{}
	}
	c.JSON(http.StatusOK, gin.H{"dispatches": ds})
}

// Package transfer runs the internal request cycle between the materials store
// and the consuming locations, and the dispatches that fulfil it.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/mamadbah2/packflow/internal/domain/models"
	"github.com/mamadbah2/packflow/internal/lock"
	"github.com/mamadbah2/packflow/internal/repository/docstore"
	"github.com/mamadbah2/packflow/internal/service/ledger"
	"github.com/mamadbah2/packflow/internal/service/notification"
)

const (
	requestsCollection   = "internal_requests"
	dispatchesCollection = "dispatches"
)

// Ledger is the part of the stock ledger dispatches write through.
type Ledger interface {
	RecordMovement(ctx context.Context, in ledger.MovementInput) (models.StockMovement, error)
	Balance(ctx context.Context, materialID, locationID string) (int64, error)
}

// Catalog checks that referenced materials exist.
type Catalog interface {
	RequireAll(ctx context.Context, ids ...string) error
}

// CreateRequestInput is the payload of a new internal request.
type CreateRequestInput struct {
	RequesterLocation string               `validate:"required"`
	Items             []models.RequestItem `validate:"required,min=1,dive"`
	Notes             string
	RequesterID       string `validate:"required"`
}

// ListFilter narrows List; empty fields match everything.
type ListFilter struct {
	Status   models.RequestStatus
	Location string
}

// Service coordinates internal requests and dispatches.
type Service struct {
	store    docstore.Store
	ledger   Ledger
	catalog  Catalog
	locker   lock.Locker
	events   notification.Emitter
	validate *validator.Validate
	tracer   trace.Tracer
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
}

// NewService wires the transfer workflows.
func NewService(store docstore.Store, stock Ledger, catalog Catalog, locker lock.Locker, events notification.Emitter, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if events == nil {
		events = notification.Discard{}
	}
	validate := validator.New()
	validate.RegisterCustomTypeFunc(models.MoneyValue, models.Money{})
	return &Service{
		store:    store,
		ledger:   stock,
		catalog:  catalog,
		locker:   locker,
		events:   events,
		validate: validate,
		tracer:   otel.Tracer("github.com/mamadbah2/packflow/internal/service/transfer"),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		newID:    uuid.NewString,
	}
}

// Create opens a pending internal request and tells the store managers about it.
func (s *Service) Create(ctx context.Context, in CreateRequestInput) (models.InternalRequest, error) {
	if err := s.validate.Struct(in); err != nil {
		return models.InternalRequest{}, fmt.Errorf("internal request: %w: %v", models.ErrInvalidInput, err)
	}
	ids := make([]string, 0, len(in.Items))
	for _, item := range in.Items {
		if item.Quantity <= 0 {
			return models.InternalRequest{}, fmt.Errorf("line %s quantity %d: %w", item.MaterialID, item.Quantity, models.ErrInvalidQuantity)
		}
		ids = append(ids, item.MaterialID)
	}
	if err := s.catalog.RequireAll(ctx, ids...); err != nil {
		return models.InternalRequest{}, err
	}

	items := make([]models.RequestItem, len(in.Items))
	for i, item := range in.Items {
		if item.Urgency == "" {
			item.Urgency = models.UrgencyNormal
		}
		items[i] = item
	}

	req := models.InternalRequest{
		ID:                s.newID(),
		RequesterLocation: in.RequesterLocation,
		Items:             items,
		Notes:             in.Notes,
		Status:            models.RequestPending,
		RequesterID:       in.RequesterID,
		CreatedAt:         s.now(),
	}
	if err := s.store.Set(ctx, requestsCollection, req.ID, req); err != nil {
		return models.InternalRequest{}, fmt.Errorf("store internal request: %w: %w", models.ErrPersistence, err)
	}

	s.logger.Info("internal request created",
		zap.String("request_id", req.ID),
		zap.String("location", req.RequesterLocation),
		zap.Int("items", len(req.Items)))

	s.events.Emit(ctx, models.Event{
		Type:        models.EventInternalRequestCreated,
		ReferenceID: req.ID,
		Message:     fmt.Sprintf("New internal request from %s with %d item(s)", req.RequesterLocation, len(req.Items)),
		Roles:       []string{models.RoleStoreManager},
		OccurredAt:  req.CreatedAt,
	})
	return req, nil
}

// Fulfill dispatches stock against a pending request and closes it.
func (s *Service) Fulfill(ctx context.Context, requestID string, in DispatchInput) (models.Dispatch, error) {
	in.InternalRequestID = requestID
	return s.Dispatch(ctx, in)
}

// Cancel closes a pending request without moving stock.
func (s *Service) Cancel(ctx context.Context, requestID, reason, actorID string) (models.InternalRequest, error) {
	req, err := s.Get(ctx, requestID)
	if err != nil {
		return models.InternalRequest{}, err
	}
	if req.Status != models.RequestPending {
		return models.InternalRequest{}, &models.TransitionError{Entity: "internal request", ID: requestID, From: string(req.Status), Op: "cancel"}
	}

	now := s.now()
	err = s.store.UpdateIf(ctx, requestsCollection, requestID,
		docstore.Fields{"status": models.RequestPending},
		docstore.Fields{
			"status":             models.RequestCancelled,
			"cancelledAt":        now,
			"cancelledBy":        actorID,
			"cancellationReason": reason,
		})
	if err != nil {
		return models.InternalRequest{}, s.transitionFailure(ctx, requestID, "cancel", err)
	}

	req.Status = models.RequestCancelled
	req.CancelledAt = &now
	req.CancelledBy = actorID
	req.CancellationReason = reason

	s.logger.Info("internal request cancelled", zap.String("request_id", requestID), zap.String("actor_id", actorID))
	s.events.Emit(ctx, models.Event{
		Type:        models.EventInternalRequestCancelled,
		ReferenceID: requestID,
		Message:     fmt.Sprintf("Your internal request %s was cancelled: %s", requestID, reason),
		UserIDs:     []string{req.RequesterID},
		OccurredAt:  now,
	})
	return req, nil
}

// Get loads one request.
func (s *Service) Get(ctx context.Context, requestID string) (models.InternalRequest, error) {
	var req models.InternalRequest
	err := s.store.Get(ctx, requestsCollection, requestID, &req)
	if errors.Is(err, docstore.ErrNotFound) {
		return models.InternalRequest{}, fmt.Errorf("internal request %s: %w", requestID, models.ErrNotFound)
	}
	if err != nil {
		return models.InternalRequest{}, fmt.Errorf("load internal request: %w: %w", models.ErrPersistence, err)
	}
	return req, nil
}

// List returns requests matching filter, oldest first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]models.InternalRequest, error) {
	query := docstore.Fields{}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.Location != "" {
		query["requesterLocation"] = filter.Location
	}
	var out []models.InternalRequest
	if err := s.store.Find(ctx, requestsCollection, query, &out); err != nil {
		return nil, fmt.Errorf("list internal requests: %w: %w", models.ErrPersistence, err)
	}
	return out, nil
}

// transitionFailure turns a failed conditional update into the error the caller
// should see: a lost race reads back the winning status.
func (s *Service) transitionFailure(ctx context.Context, requestID, op string, err error) error {
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		return fmt.Errorf("internal request %s: %w", requestID, models.ErrNotFound)
	case errors.Is(err, docstore.ErrConflict):
		from := "unknown"
		if current, getErr := s.Get(ctx, requestID); getErr == nil {
			from = string(current.Status)
		}
		return &models.TransitionError{Entity: "internal request", ID: requestID, From: from, Op: op}
	default:
		return fmt.Errorf("%s internal request: %w: %w", op, models.ErrPersistence, err)
	}
}

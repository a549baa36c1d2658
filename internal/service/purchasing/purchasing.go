// Package purchasing drives purchase requests through head-of-operations and
// main-director approval, supplier allocation and completion.
package purchasing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/mamadbah2/packflow/internal/domain/models"
	"github.com/mamadbah2/packflow/internal/repository/docstore"
	"github.com/mamadbah2/packflow/internal/service/notification"
)

const (
	requestsCollection    = "purchase_requests"
	allocationsCollection = "supplier_allocations"
)

// Catalog checks that referenced materials exist.
type Catalog interface {
	RequireAll(ctx context.Context, ids ...string) error
}

// Actor identifies who performs a transition.
type Actor struct {
	ID   string `validate:"required"`
	Name string
}

// CreateInput is the payload of a new purchase request.
type CreateInput struct {
	Items          []models.PurchaseItem `validate:"required,min=1,dive"`
	Justification  string                `validate:"required"`
	BudgetEstimate models.Money          `validate:"gte=0"`
	Requester      Actor
}

// Service owns the purchase approval chain.
type Service struct {
	store    docstore.Store
	catalog  Catalog
	events   notification.Emitter
	validate *validator.Validate
	tracer   trace.Tracer
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
}

// NewService wires the purchasing workflow.
func NewService(store docstore.Store, catalog Catalog, events notification.Emitter, logger *zap.Logger) *Service {
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
		catalog:  catalog,
		events:   events,
		validate: validate,
		tracer:   otel.Tracer("github.com/mamadbah2/packflow/internal/service/purchasing"),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		newID:    uuid.NewString,
	}
}

// Create submits a request to the head of operations.
func (s *Service) Create(ctx context.Context, in CreateInput) (models.PurchaseRequest, error) {
	if err := s.validate.Struct(in); err != nil {
		return models.PurchaseRequest{}, fmt.Errorf("purchase request: %w: %v", models.ErrInvalidInput, err)
	}
	ids := make([]string, 0, len(in.Items))
	for _, item := range in.Items {
		if item.Quantity <= 0 {
			return models.PurchaseRequest{}, fmt.Errorf("line %s quantity %d: %w", item.MaterialID, item.Quantity, models.ErrInvalidQuantity)
		}
		ids = append(ids, item.MaterialID)
	}
	if err := s.catalog.RequireAll(ctx, ids...); err != nil {
		return models.PurchaseRequest{}, err
	}

	pr := models.PurchaseRequest{
		ID:             s.newID(),
		Items:          append([]models.PurchaseItem(nil), in.Items...),
		Justification:  in.Justification,
		BudgetEstimate: in.BudgetEstimate,
		Status:         models.PurchasePendingHO,
		RequesterID:    in.Requester.ID,
		RequesterName:  in.Requester.Name,
		CreatedAt:      s.now(),
	}
	if err := s.store.Set(ctx, requestsCollection, pr.ID, pr); err != nil {
		return models.PurchaseRequest{}, fmt.Errorf("store purchase request: %w: %w", models.ErrPersistence, err)
	}

	s.logger.Info("purchase request created", zap.String("request_id", pr.ID), zap.String("requester_id", pr.RequesterID))
	s.events.Emit(ctx, models.Event{
		Type:        models.EventPurchaseCreated,
		ReferenceID: pr.ID,
		Message:     fmt.Sprintf("Purchase request %s from %s awaits your approval", pr.ID, displayName(in.Requester)),
		Roles:       []string{models.RoleHeadOfOperations},
		OccurredAt:  pr.CreatedAt,
	})
	return pr, nil
}

// HOApprove moves pending_ho to approved.
func (s *Service) HOApprove(ctx context.Context, id string, actor Actor, notes string) (models.PurchaseRequest, error) {
	return s.transition(ctx, id, models.PurchasePendingHO, models.PurchaseApproved, "ho approve", actor,
		func(now time.Time) docstore.Fields {
			return docstore.Fields{"hoApprovedBy": actor.ID, "hoApprovedAt": now, "hoNotes": notes}
		},
		func(pr models.PurchaseRequest) models.Event {
			return models.Event{
				Type:    models.EventPurchaseHOApproved,
				Message: fmt.Sprintf("Purchase request %s was approved by operations, forward it to the main director", pr.ID),
				UserIDs: []string{pr.RequesterID},
			}
		})
}

// HOReject ends a pending_ho request.
func (s *Service) HOReject(ctx context.Context, id string, actor Actor, reason string) (models.PurchaseRequest, error) {
	return s.reject(ctx, id, models.PurchasePendingHO, "ho reject", actor, reason)
}

// ForwardToMD hands an approved request to the main director.
func (s *Service) ForwardToMD(ctx context.Context, id string, actor Actor, notes string) (models.PurchaseRequest, error) {
	return s.transition(ctx, id, models.PurchaseApproved, models.PurchaseForwardedToMD, "forward to md", actor,
		func(now time.Time) docstore.Fields {
			return docstore.Fields{"forwardedBy": actor.ID, "forwardedAt": now, "forwardNotes": notes}
		},
		func(pr models.PurchaseRequest) models.Event {
			return models.Event{
				Type:    models.EventPurchaseForwarded,
				Message: fmt.Sprintf("Purchase request %s awaits your final approval", pr.ID),
				Roles:   []string{models.RoleMainDirector},
			}
		})
}

// MDApprove releases a forwarded request for supplier allocation.
func (s *Service) MDApprove(ctx context.Context, id string, actor Actor, notes string) (models.PurchaseRequest, error) {
	return s.transition(ctx, id, models.PurchaseForwardedToMD, models.PurchaseMDApproved, "md approve", actor,
		func(now time.Time) docstore.Fields {
			return docstore.Fields{"mdApprovedBy": actor.ID, "mdApprovedAt": now, "mdNotes": notes}
		},
		func(pr models.PurchaseRequest) models.Event {
			return models.Event{
				Type:    models.EventPurchaseMDApproved,
				Message: fmt.Sprintf("Purchase request %s was approved by the main director and can be allocated to suppliers", pr.ID),
				UserIDs: []string{pr.RequesterID},
				Roles:   []string{models.RoleWarehouse},
			}
		})
}

// MDReject ends a forwarded request.
func (s *Service) MDReject(ctx context.Context, id string, actor Actor, reason string) (models.PurchaseRequest, error) {
	return s.reject(ctx, id, models.PurchaseForwardedToMD, "md reject", actor, reason)
}

// Complete closes an allocated request once goods are received.
func (s *Service) Complete(ctx context.Context, id string, actor Actor) (models.PurchaseRequest, error) {
	return s.transition(ctx, id, models.PurchaseAllocated, models.PurchaseCompleted, "complete", actor,
		func(now time.Time) docstore.Fields {
			return docstore.Fields{"completedBy": actor.ID, "completedAt": now}
		},
		func(pr models.PurchaseRequest) models.Event {
			return models.Event{
				Type:    models.EventPurchaseCompleted,
				Message: fmt.Sprintf("Goods for purchase request %s were received", pr.ID),
				UserIDs: []string{pr.RequesterID},
			}
		})
}

func (s *Service) reject(ctx context.Context, id string, from models.PurchaseStatus, op string, actor Actor, reason string) (models.PurchaseRequest, error) {
	return s.transition(ctx, id, from, models.PurchaseRejected, op, actor,
		func(now time.Time) docstore.Fields {
			return docstore.Fields{"rejectedBy": actor.ID, "rejectedAt": now, "rejectionReason": reason}
		},
		func(pr models.PurchaseRequest) models.Event {
			return models.Event{
				Type:    models.EventPurchaseRejected,
				Message: fmt.Sprintf("Purchase request %s was rejected: %s", pr.ID, reason),
				UserIDs: []string{pr.RequesterID},
			}
		})
}

// transition applies one edge of the chain as a compare-and-set on status.
func (s *Service) transition(
	ctx context.Context,
	id string,
	from, to models.PurchaseStatus,
	op string,
	actor Actor,
	stamp func(now time.Time) docstore.Fields,
	event func(models.PurchaseRequest) models.Event,
) (models.PurchaseRequest, error) {
	ctx, span := s.tracer.Start(ctx, "purchasing.transition")
	defer span.End()
	span.SetAttributes(
		attribute.String("purchase.id", id),
		attribute.String("purchase.from", string(from)),
		attribute.String("purchase.to", string(to)),
	)

	pr, err := s.transitionOnce(ctx, id, from, to, op, actor, stamp)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, op+" failed")
		return models.PurchaseRequest{}, err
	}

	s.logger.Info("purchase request transitioned",
		zap.String("request_id", id),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("actor_id", actor.ID))

	e := event(pr)
	e.ReferenceID = pr.ID
	e.OccurredAt = s.now()
	s.events.Emit(ctx, e)
	return pr, nil
}

func (s *Service) transitionOnce(
	ctx context.Context,
	id string,
	from, to models.PurchaseStatus,
	op string,
	actor Actor,
	stamp func(now time.Time) docstore.Fields,
) (models.PurchaseRequest, error) {
	if err := s.validate.Struct(actor); err != nil {
		return models.PurchaseRequest{}, fmt.Errorf("%s: actor: %w: %v", op, models.ErrInvalidInput, err)
	}
	if !from.CanTransition(to) {
		return models.PurchaseRequest{}, fmt.Errorf("%s: %s to %s: %w", op, from, to, models.ErrInvalidTransition)
	}

	pr, err := s.Get(ctx, id)
	if err != nil {
		return models.PurchaseRequest{}, err
	}
	if pr.Status != from {
		return models.PurchaseRequest{}, &models.TransitionError{Entity: "purchase request", ID: id, From: string(pr.Status), Op: op}
	}

	fields := stamp(s.now())
	fields["status"] = to
	if err := s.store.UpdateIf(ctx, requestsCollection, id, docstore.Fields{"status": from}, fields); err != nil {
		return models.PurchaseRequest{}, s.transitionFailure(ctx, id, op, err)
	}

	updated, err := s.Get(ctx, id)
	if err != nil {
		// The transition is committed; answer from the fields just written.
		s.logger.Warn("reload after transition failed",
			zap.String("request_id", id),
			zap.String("op", op),
			zap.Error(err))
		return overlay(pr, fields), nil
	}
	return updated, nil
}

// overlay applies stored field updates to a copy of pr.
func overlay(pr models.PurchaseRequest, fields docstore.Fields) models.PurchaseRequest {
	if status, ok := fields["status"].(models.PurchaseStatus); ok {
		pr.Status = status
	}
	raw, err := bson.Marshal(pr)
	if err != nil {
		return pr
	}
	doc := bson.M{}
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return pr
	}
	for k, v := range fields {
		doc[k] = v
	}
	if raw, err = bson.Marshal(doc); err != nil {
		return pr
	}
	var out models.PurchaseRequest
	if err := bson.Unmarshal(raw, &out); err != nil {
		return pr
	}
	return out
}

// Allocate records the supplier split of an md_approved request and marks it allocated.
func (s *Service) Allocate(ctx context.Context, id string, actor Actor, splits []models.AllocationSplit) (models.SupplierAllocation, error) {
	ctx, span := s.tracer.Start(ctx, "purchasing.allocate")
	defer span.End()

	alloc, err := s.allocate(ctx, id, actor, splits)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "allocate failed")
		return models.SupplierAllocation{}, err
	}
	span.SetAttributes(attribute.String("purchase.id", id), attribute.Int("allocation.splits", len(alloc.Splits)))
	return alloc, nil
}

func (s *Service) allocate(ctx context.Context, id string, actor Actor, splits []models.AllocationSplit) (models.SupplierAllocation, error) {
	if err := s.validate.Struct(actor); err != nil {
		return models.SupplierAllocation{}, fmt.Errorf("allocate: actor: %w: %v", models.ErrInvalidInput, err)
	}
	if len(splits) == 0 {
		return models.SupplierAllocation{}, fmt.Errorf("allocate: no splits: %w", models.ErrInvalidInput)
	}
	for _, split := range splits {
		if err := s.validate.Struct(split); err != nil {
			return models.SupplierAllocation{}, fmt.Errorf("allocate: %w: %v", models.ErrInvalidInput, err)
		}
	}

	pr, err := s.Get(ctx, id)
	if err != nil {
		return models.SupplierAllocation{}, err
	}
	if pr.Status != models.PurchaseMDApproved {
		return models.SupplierAllocation{}, &models.TransitionError{Entity: "purchase request", ID: id, From: string(pr.Status), Op: "allocate"}
	}
	for _, split := range splits {
		if split.Quantity <= 0 {
			return models.SupplierAllocation{}, fmt.Errorf("split %s/%s quantity %d: %w", split.SupplierID, split.MaterialID, split.Quantity, models.ErrInvalidQuantity)
		}
		if !pr.HasMaterial(split.MaterialID) {
			return models.SupplierAllocation{}, fmt.Errorf("split material %s is not part of request %s: %w", split.MaterialID, id, models.ErrInvalidInput)
		}
	}

	now := s.now()
	alloc := models.SupplierAllocation{
		ID:                s.newID(),
		PurchaseRequestID: id,
		Splits:            append([]models.AllocationSplit(nil), splits...),
		CreatedBy:         actor.ID,
		CreatedAt:         now,
	}

	err = s.store.UpdateIf(ctx, requestsCollection, id,
		docstore.Fields{"status": models.PurchaseMDApproved},
		docstore.Fields{"status": models.PurchaseAllocated, "allocationId": alloc.ID})
	if err != nil {
		return models.SupplierAllocation{}, s.transitionFailure(ctx, id, "allocate", err)
	}

	if err := s.store.Set(ctx, allocationsCollection, alloc.ID, alloc); err != nil {
		revertErr := s.store.UpdateIf(context.WithoutCancel(ctx), requestsCollection, id,
			docstore.Fields{"status": models.PurchaseAllocated, "allocationId": alloc.ID},
			docstore.Fields{"status": models.PurchaseMDApproved, "allocationId": ""})
		if revertErr != nil {
			s.logger.Error("failed to revert purchase request after allocation write failure",
				zap.String("request_id", id), zap.Error(revertErr))
		}
		return models.SupplierAllocation{}, fmt.Errorf("store allocation: %w: %w", models.ErrPersistence, err)
	}

	s.logger.Info("purchase request allocated",
		zap.String("request_id", id),
		zap.String("allocation_id", alloc.ID),
		zap.Int("splits", len(alloc.Splits)),
		zap.String("total", alloc.Total().StringFixed(2)))
	s.events.Emit(ctx, models.Event{
		Type:        models.EventPurchaseAllocated,
		ReferenceID: id,
		Message:     fmt.Sprintf("Purchase request %s was allocated to %d supplier line(s), total %s", id, len(alloc.Splits), alloc.Total().StringFixed(2)),
		UserIDs:     []string{pr.RequesterID},
		OccurredAt:  now,
	})
	return alloc, nil
}

// Get loads one purchase request.
func (s *Service) Get(ctx context.Context, id string) (models.PurchaseRequest, error) {
	var pr models.PurchaseRequest
	err := s.store.Get(ctx, requestsCollection, id, &pr)
	if errors.Is(err, docstore.ErrNotFound) {
		return models.PurchaseRequest{}, fmt.Errorf("purchase request %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return models.PurchaseRequest{}, fmt.Errorf("load purchase request: %w: %w", models.ErrPersistence, err)
	}
	return pr, nil
}

// Allocation loads the supplier allocation of a request.
func (s *Service) Allocation(ctx context.Context, id string) (models.SupplierAllocation, error) {
	pr, err := s.Get(ctx, id)
	if err != nil {
		return models.SupplierAllocation{}, err
	}
	if pr.AllocationID == "" {
		return models.SupplierAllocation{}, fmt.Errorf("allocation of %s: %w", id, models.ErrNotFound)
	}
	var alloc models.SupplierAllocation
	err = s.store.Get(ctx, allocationsCollection, pr.AllocationID, &alloc)
	if errors.Is(err, docstore.ErrNotFound) {
		return models.SupplierAllocation{}, fmt.Errorf("allocation %s: %w", pr.AllocationID, models.ErrNotFound)
	}
	if err != nil {
		return models.SupplierAllocation{}, fmt.Errorf("load allocation: %w: %w", models.ErrPersistence, err)
	}
	return alloc, nil
}

// List returns purchase requests, optionally in one status, oldest first.
func (s *Service) List(ctx context.Context, status models.PurchaseStatus) ([]models.PurchaseRequest, error) {
	filter := docstore.Fields{}
	if status != "" {
		if !status.Valid() {
			return nil, fmt.Errorf("status %q: %w", status, models.ErrInvalidInput)
		}
		filter["status"] = status
	}
	var out []models.PurchaseRequest
	if err := s.store.Find(ctx, requestsCollection, filter, &out); err != nil {
		return nil, fmt.Errorf("list purchase requests: %w: %w", models.ErrPersistence, err)
	}
	return out, nil
}

func (s *Service) transitionFailure(ctx context.Context, id, op string, err error) error {
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		return fmt.Errorf("purchase request %s: %w", id, models.ErrNotFound)
	case errors.Is(err, docstore.ErrConflict):
		from := "unknown"
		if current, getErr := s.Get(ctx, id); getErr == nil {
			from = string(current.Status)
		}
		return &models.TransitionError{Entity: "purchase request", ID: id, From: from, Op: op}
	default:
		return fmt.Errorf("%s purchase request: %w: %w", op, models.ErrPersistence, err)
	}
}

func displayName(a Actor) string {
	if a.Name != "" {
		return a.Name
	}
	return a.ID
}

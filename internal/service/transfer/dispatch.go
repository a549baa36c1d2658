package transfer

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/mamadbah2/packflow/internal/domain/models"
	"github.com/mamadbah2/packflow/internal/repository/docstore"
	"github.com/mamadbah2/packflow/internal/service/ledger"
)

// DispatchInput describes stock leaving SourceLocation for Destination.
type DispatchInput struct {
	SourceLocation    string                `validate:"required"`
	Destination       string                `validate:"required,nefield=SourceLocation"`
	Items             []models.DispatchItem `validate:"required,min=1,dive"`
	Notes             string
	InternalRequestID string
	DispatcherID      string `validate:"required"`
}

// Dispatch releases every line or none. Sufficiency of all lines is checked while
// holding the locks of every touched stock record; a write failure after that is
// undone with reversal movements and the linked request goes back to pending.
func (s *Service) Dispatch(ctx context.Context, in DispatchInput) (models.Dispatch, error) {
	ctx, span := s.tracer.Start(ctx, "transfer.dispatch")
	defer span.End()

	d, err := s.dispatch(ctx, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dispatch failed")
		return models.Dispatch{}, err
	}
	span.SetAttributes(
		attribute.String("dispatch.id", d.ID),
		attribute.String("dispatch.source", d.SourceLocation),
		attribute.Int("dispatch.items", len(d.Items)),
	)
	return d, nil
}

func (s *Service) dispatch(ctx context.Context, in DispatchInput) (models.Dispatch, error) {
	var req *models.InternalRequest
	if in.InternalRequestID != "" {
		r, err := s.Get(ctx, in.InternalRequestID)
		if err != nil {
			return models.Dispatch{}, err
		}
		if r.Status != models.RequestPending {
			return models.Dispatch{}, &models.TransitionError{Entity: "internal request", ID: r.ID, From: string(r.Status), Op: "fulfill"}
		}
		if in.Destination == "" {
			in.Destination = r.RequesterLocation
		}
		req = &r
	}

	needed, err := s.checkDispatch(ctx, in)
	if err != nil {
		return models.Dispatch{}, err
	}

	keys := make([]string, 0, len(needed))
	for materialID := range needed {
		keys = append(keys, models.StockRecordID(materialID, in.SourceLocation))
	}
	release, err := s.locker.Acquire(ctx, keys...)
	if err != nil {
		return models.Dispatch{}, fmt.Errorf("lock stock records: %w: %w", models.ErrPersistence, err)
	}
	defer release(context.WithoutCancel(ctx))

	for materialID, qty := range needed {
		onHand, err := s.ledger.Balance(ctx, materialID, in.SourceLocation)
		if err != nil {
			return models.Dispatch{}, err
		}
		if onHand < qty {
			return models.Dispatch{}, fmt.Errorf("dispatch %d of %s from %s, %d on hand: %w", qty, materialID, in.SourceLocation, onHand, models.ErrInsufficientStock)
		}
	}

	now := s.now()
	d := models.Dispatch{
		ID:                s.newID(),
		SourceLocation:    in.SourceLocation,
		Destination:       in.Destination,
		Items:             make([]models.DispatchItem, len(in.Items)),
		InternalRequestID: in.InternalRequestID,
		DispatcherID:      in.DispatcherID,
		Notes:             in.Notes,
		CreatedAt:         now,
	}
	copy(d.Items, in.Items)

	if req != nil {
		err := s.store.UpdateIf(ctx, requestsCollection, req.ID,
			docstore.Fields{"status": models.RequestPending},
			docstore.Fields{
				"status":      models.RequestFulfilled,
				"fulfilledAt": now,
				"fulfilledBy": in.DispatcherID,
				"dispatchId":  d.ID,
			})
		if err != nil {
			return models.Dispatch{}, s.transitionFailure(ctx, req.ID, "fulfill", err)
		}
	}

	var applied []models.StockMovement
	for i, item := range d.Items {
		mv, err := s.ledger.RecordMovement(ctx, ledger.MovementInput{
			MaterialID:  item.MaterialID,
			LocationID:  in.SourceLocation,
			Direction:   models.DirectionOut,
			Quantity:    item.Quantity,
			Reason:      models.DispatchReason(in.Destination),
			Reference:   d.ID,
			BatchNumber: item.BatchNumber,
			ActorID:     in.DispatcherID,
		})
		if err != nil {
			s.rollback(ctx, d, applied, req)
			return models.Dispatch{}, err
		}
		d.Items[i].MovementID = mv.ID
		applied = append(applied, mv)
	}

	if err := s.store.Set(ctx, dispatchesCollection, d.ID, d); err != nil {
		s.rollback(ctx, d, applied, req)
		return models.Dispatch{}, fmt.Errorf("store dispatch: %w: %w", models.ErrPersistence, err)
	}

	s.logger.Info("dispatch recorded",
		zap.String("dispatch_id", d.ID),
		zap.String("source", d.SourceLocation),
		zap.String("destination", d.Destination),
		zap.String("request_id", d.InternalRequestID),
		zap.Int("items", len(d.Items)))

	if req != nil {
		s.events.Emit(ctx, models.Event{
			Type:        models.EventInternalRequestFulfilled,
			ReferenceID: req.ID,
			Message:     fmt.Sprintf("Your internal request %s was dispatched to %s", req.ID, d.Destination),
			UserIDs:     []string{req.RequesterID},
			OccurredAt:  now,
		})
	}
	return d, nil
}

// checkDispatch validates the payload and sums quantities per material.
func (s *Service) checkDispatch(ctx context.Context, in DispatchInput) (map[string]int64, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("dispatch: %w: %v", models.ErrInvalidInput, err)
	}
	needed := make(map[string]int64, len(in.Items))
	ids := make([]string, 0, len(in.Items))
	for _, item := range in.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("line %s quantity %d: %w", item.MaterialID, item.Quantity, models.ErrInvalidQuantity)
		}
		if _, seen := needed[item.MaterialID]; !seen {
			ids = append(ids, item.MaterialID)
		}
		needed[item.MaterialID] += item.Quantity
	}
	if err := s.catalog.RequireAll(ctx, ids...); err != nil {
		return nil, err
	}
	return needed, nil
}

// rollback credits back every applied movement and reopens the linked request.
// Failures here leave the ledger consistent but the stock short, so they are
// logged for manual correction.
func (s *Service) rollback(ctx context.Context, d models.Dispatch, applied []models.StockMovement, req *models.InternalRequest) {
	ctx = context.WithoutCancel(ctx)

	for _, mv := range applied {
		_, err := s.ledger.RecordMovement(ctx, ledger.MovementInput{
			MaterialID:  mv.MaterialID,
			LocationID:  mv.LocationID,
			Direction:   models.DirectionIn,
			Quantity:    mv.Quantity,
			Reason:      models.ReasonDispatchRollback,
			Reference:   d.ID,
			BatchNumber: mv.BatchNumber,
			ActorID:     d.DispatcherID,
		})
		if err != nil {
			s.logger.Error("dispatch rollback movement failed",
				zap.String("dispatch_id", d.ID),
				zap.String("material_id", mv.MaterialID),
				zap.Int64("quantity", mv.Quantity),
				zap.Error(err))
		}
	}

	if req != nil {
		err := s.store.UpdateIf(ctx, requestsCollection, req.ID,
			docstore.Fields{"status": models.RequestFulfilled, "dispatchId": d.ID},
			docstore.Fields{
				"status":      models.RequestPending,
				"fulfilledAt": nil,
				"fulfilledBy": "",
				"dispatchId":  "",
			})
		if err != nil && !errors.Is(err, docstore.ErrConflict) {
			s.logger.Error("failed to reopen internal request after dispatch rollback",
				zap.String("request_id", req.ID),
				zap.String("dispatch_id", d.ID),
				zap.Error(err))
		}
	}

	s.logger.Warn("dispatch rolled back",
		zap.String("dispatch_id", d.ID),
		zap.Int("reversed_movements", len(applied)))
}

// Dispatches lists recorded dispatches from a source location.
func (s *Service) Dispatches(ctx context.Context, sourceLocation string) ([]models.Dispatch, error) {
	filter := docstore.Fields{}
	if sourceLocation != "" {
		filter["sourceLocation"] = sourceLocation
	}
	var out []models.Dispatch
	if err := s.store.Find(ctx, dispatchesCollection, filter, &out); err != nil {
		return nil, fmt.Errorf("list dispatches: %w: %w", models.ErrPersistence, err)
	}
	return out, nil
}

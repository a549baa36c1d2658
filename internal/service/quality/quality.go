// Package quality records inspections of delivered batches. Only accepted
// batches reach the stock ledger.
package quality

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mamadbah2/packflow/internal/domain/models"
	"github.com/mamadbah2/packflow/internal/repository/docstore"
	"github.com/mamadbah2/packflow/internal/service/ledger"
	"github.com/mamadbah2/packflow/internal/service/purchasing"
)

const recordsCollection = "qc_records"

// Receiver credits accepted batches and debits them back when the inspection
// cannot be recorded.
type Receiver interface {
	Receive(ctx context.Context, in ledger.ReceiptInput) (models.StockMovement, error)
	RecordMovement(ctx context.Context, in ledger.MovementInput) (models.StockMovement, error)
}

// Catalog checks that the inspected material exists.
type Catalog interface {
	Material(ctx context.Context, id string) (models.Material, error)
}

// Purchases closes the purchase request a delivery belongs to.
type Purchases interface {
	Get(ctx context.Context, id string) (models.PurchaseRequest, error)
	Complete(ctx context.Context, id string, actor purchasing.Actor) (models.PurchaseRequest, error)
}

// InspectInput is the inspector's verdict on one delivered batch.
type InspectInput struct {
	MaterialID        string `validate:"required"`
	LocationID        string `validate:"required"`
	BatchNumber       string `validate:"required"`
	SupplierID        string
	DeliveredQuantity int64
	AcceptedQuantity  int64
	Grade             string
	ExpiryDate        *time.Time
	Outcome           models.QCOutcome `validate:"required,oneof=accepted rejected"`
	InspectorID       string           `validate:"required"`
	Notes             string
	PurchaseRequestID string
}

// Service performs QC inspections.
type Service struct {
	store     docstore.Store
	receiver  Receiver
	catalog   Catalog
	purchases Purchases
	validate  *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
}

// NewService wires inspections; purchases may be nil when deliveries are not
// linked to purchase requests.
func NewService(store docstore.Store, receiver Receiver, catalog Catalog, purchases Purchases, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     store,
		receiver:  receiver,
		catalog:   catalog,
		purchases: purchases,
		validate:  validator.New(),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		newID:     uuid.NewString,
	}
}

// Inspect stores the QC record. An accepted outcome credits AcceptedQuantity
// (DeliveredQuantity when unset) at LocationID and refreshes the batch metadata
// of the stock record; a rejected one touches no stock.
func (s *Service) Inspect(ctx context.Context, in InspectInput) (models.QCRecord, error) {
	if err := s.validate.Struct(in); err != nil {
		return models.QCRecord{}, fmt.Errorf("inspection: %w: %v", models.ErrInvalidInput, err)
	}
	if in.DeliveredQuantity <= 0 {
		return models.QCRecord{}, fmt.Errorf("delivered quantity %d: %w", in.DeliveredQuantity, models.ErrInvalidQuantity)
	}
	accepted := in.AcceptedQuantity
	if in.Outcome == models.QCAccepted {
		if accepted == 0 {
			accepted = in.DeliveredQuantity
		}
		if accepted < 0 || accepted > in.DeliveredQuantity {
			return models.QCRecord{}, fmt.Errorf("accepted quantity %d of %d: %w", accepted, in.DeliveredQuantity, models.ErrInvalidQuantity)
		}
	} else {
		accepted = 0
	}
	if _, err := s.catalog.Material(ctx, in.MaterialID); err != nil {
		return models.QCRecord{}, err
	}

	rec := models.QCRecord{
		ID:                s.newID(),
		MaterialID:        in.MaterialID,
		LocationID:        in.LocationID,
		BatchNumber:       in.BatchNumber,
		SupplierID:        in.SupplierID,
		DeliveredQuantity: in.DeliveredQuantity,
		AcceptedQuantity:  accepted,
		Grade:             in.Grade,
		ExpiryDate:        in.ExpiryDate,
		Outcome:           in.Outcome,
		InspectorID:       in.InspectorID,
		Notes:             in.Notes,
		PurchaseRequestID: in.PurchaseRequestID,
		CreatedAt:         s.now(),
	}

	if rec.Outcome == models.QCAccepted {
		mv, err := s.receiver.Receive(ctx, ledger.ReceiptInput{
			MaterialID:   rec.MaterialID,
			LocationID:   rec.LocationID,
			Quantity:     accepted,
			Reason:       models.ReasonQCAccepted,
			Reference:    rec.ID,
			BatchNumber:  rec.BatchNumber,
			SupplierID:   rec.SupplierID,
			QualityGrade: rec.Grade,
			ExpiryDate:   rec.ExpiryDate,
			ActorID:      rec.InspectorID,
		})
		if err != nil {
			return models.QCRecord{}, err
		}
		rec.MovementID = mv.ID
	}

	if err := s.store.Set(ctx, recordsCollection, rec.ID, rec); err != nil {
		if rec.MovementID != "" {
			s.rollback(ctx, rec)
		}
		return models.QCRecord{}, fmt.Errorf("store qc record: %w: %w", models.ErrPersistence, err)
	}

	s.logger.Info("batch inspected",
		zap.String("qc_id", rec.ID),
		zap.String("material_id", rec.MaterialID),
		zap.String("batch", rec.BatchNumber),
		zap.String("outcome", string(rec.Outcome)),
		zap.Int64("accepted", rec.AcceptedQuantity))

	if rec.Outcome == models.QCAccepted && rec.PurchaseRequestID != "" {
		s.completePurchase(ctx, rec)
	}
	return rec, nil
}

// rollback debits the credit of an inspection whose record was not stored, so a
// retried inspection does not count the batch twice.
func (s *Service) rollback(ctx context.Context, rec models.QCRecord) {
	ctx = context.WithoutCancel(ctx)
	_, err := s.receiver.RecordMovement(ctx, ledger.MovementInput{
		MaterialID:  rec.MaterialID,
		LocationID:  rec.LocationID,
		Direction:   models.DirectionOut,
		Quantity:    rec.AcceptedQuantity,
		Reason:      models.ReasonQCRollback,
		Reference:   rec.ID,
		BatchNumber: rec.BatchNumber,
		SupplierID:  rec.SupplierID,
		ActorID:     rec.InspectorID,
	})
	if err != nil {
		s.logger.Error("qc rollback movement failed",
			zap.String("qc_id", rec.ID),
			zap.String("movement_id", rec.MovementID),
			zap.String("material_id", rec.MaterialID),
			zap.Int64("quantity", rec.AcceptedQuantity),
			zap.Error(err))
		return
	}
	s.logger.Warn("qc credit reversed after record write failure",
		zap.String("qc_id", rec.ID),
		zap.String("material_id", rec.MaterialID))
}

// completePurchase closes an allocated purchase request on its first accepted receipt.
func (s *Service) completePurchase(ctx context.Context, rec models.QCRecord) {
	if s.purchases == nil {
		return
	}
	pr, err := s.purchases.Get(ctx, rec.PurchaseRequestID)
	if err != nil {
		s.logger.Warn("qc references unknown purchase request", zap.String("purchase_request_id", rec.PurchaseRequestID), zap.Error(err))
		return
	}
	if pr.Status != models.PurchaseAllocated {
		return
	}
	_, err = s.purchases.Complete(ctx, pr.ID, purchasing.Actor{ID: rec.InspectorID})
	if err != nil && !errors.Is(err, models.ErrInvalidTransition) {
		s.logger.Error("failed to complete purchase request after receipt",
			zap.String("purchase_request_id", pr.ID),
			zap.String("qc_id", rec.ID),
			zap.Error(err))
	}
}

// Get loads one QC record.
func (s *Service) Get(ctx context.Context, id string) (models.QCRecord, error) {
	var rec models.QCRecord
	err := s.store.Get(ctx, recordsCollection, id, &rec)
	if errors.Is(err, docstore.ErrNotFound) {
		return models.QCRecord{}, fmt.Errorf("qc record %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return models.QCRecord{}, fmt.Errorf("load qc record: %w: %w", models.ErrPersistence, err)
	}
	return rec, nil
}

// List returns the inspections of a material, oldest first.
func (s *Service) List(ctx context.Context, materialID string) ([]models.QCRecord, error) {
	filter := docstore.Fields{}
	if materialID != "" {
		filter["materialId"] = materialID
	}
	var out []models.QCRecord
	if err := s.store.Find(ctx, recordsCollection, filter, &out); err != nil {
		return nil, fmt.Errorf("list qc records: %w: %w", models.ErrPersistence, err)
	}
	return out, nil
}

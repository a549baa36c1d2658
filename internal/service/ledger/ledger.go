package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/mamadbah2/packflow/internal/domain/models"
	"github.com/mamadbah2/packflow/internal/repository/docstore"
)

const (
	stockCollection     = "stock"
	movementsCollection = "stock_movements"
)

// MovementInput describes one quantity change at one location.
type MovementInput struct {
	MaterialID  string
	LocationID  string
	Direction   models.Direction
	Quantity    int64
	Reason      string
	Reference   string
	BatchNumber string
	SupplierID  string
	ActorID     string
}

// ReceiptInput credits a received batch and refreshes the record's batch metadata.
type ReceiptInput struct {
	MaterialID   string
	LocationID   string
	Quantity     int64
	Reason       string
	Reference    string
	BatchNumber  string
	SupplierID   string
	QualityGrade string
	ExpiryDate   *time.Time
	ActorID      string
}

// Service owns stock records and the append-only movement ledger. Nothing else
// writes to either collection.
type Service struct {
	store  docstore.Store
	tracer trace.Tracer
	logger *zap.Logger
	now    func() time.Time
}

// NewService wires a ledger over store.
func NewService(store docstore.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  store,
		tracer: otel.Tracer("github.com/mamadbah2/packflow/internal/service/ledger"),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// RecordMovement appends a movement and applies it to the cached stock record.
// Outbound movements never take the record below zero.
func (s *Service) RecordMovement(ctx context.Context, in MovementInput) (models.StockMovement, error) {
	if err := validateMovement(in); err != nil {
		return models.StockMovement{}, err
	}
	return s.apply(ctx, in, nil)
}

// Receive credits in.Quantity and stamps the batch, supplier, grade and expiry of
// the most recent receipt on the stock record.
func (s *Service) Receive(ctx context.Context, in ReceiptInput) (models.StockMovement, error) {
	mv := MovementInput{
		MaterialID:  in.MaterialID,
		LocationID:  in.LocationID,
		Direction:   models.DirectionIn,
		Quantity:    in.Quantity,
		Reason:      in.Reason,
		Reference:   in.Reference,
		BatchNumber: in.BatchNumber,
		SupplierID:  in.SupplierID,
		ActorID:     in.ActorID,
	}
	if mv.Reason == "" {
		mv.Reason = models.ReasonQCAccepted
	}
	if err := validateMovement(mv); err != nil {
		return models.StockMovement{}, err
	}

	meta := docstore.Fields{
		"lastBatchNumber":  in.BatchNumber,
		"lastSupplierId":   in.SupplierID,
		"lastQualityGrade": in.QualityGrade,
		"expiryDate":       in.ExpiryDate,
	}
	return s.apply(ctx, mv, meta)
}

func (s *Service) apply(ctx context.Context, in MovementInput, meta docstore.Fields) (models.StockMovement, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.apply_movement")
	defer span.End()
	span.SetAttributes(
		attribute.String("stock.material_id", in.MaterialID),
		attribute.String("stock.location_id", in.LocationID),
		attribute.String("stock.direction", string(in.Direction)),
		attribute.Int64("stock.quantity", in.Quantity),
	)

	now := s.now()
	recordID := models.StockRecordID(in.MaterialID, in.LocationID)
	delta := in.Direction.Sign() * in.Quantity

	set := docstore.Fields{"updatedAt": now}
	for k, v := range meta {
		set[k] = v
	}
	opts := docstore.IncrementOptions{
		Set:         set,
		SetOnInsert: docstore.Fields{"materialId": in.MaterialID, "locationId": in.LocationID},
	}
	if in.Direction == models.DirectionOut {
		opts.Floor = docstore.Floor(0)
	} else {
		opts.Upsert = true
	}

	balance, err := s.store.Increment(ctx, stockCollection, recordID, "quantity", delta, opts)
	if err != nil {
		err = mapIncrementError(err, in)
		span.RecordError(err)
		span.SetStatus(codes.Error, "stock update failed")
		return models.StockMovement{}, err
	}

	movement := models.StockMovement{
		MaterialID:  in.MaterialID,
		LocationID:  in.LocationID,
		Direction:   in.Direction,
		Quantity:    in.Quantity,
		Reason:      in.Reason,
		Reference:   in.Reference,
		BatchNumber: in.BatchNumber,
		SupplierID:  in.SupplierID,
		ActorID:     in.ActorID,
		CreatedAt:   now,
	}
	id, err := s.store.Append(ctx, movementsCollection, movement)
	if err != nil {
		s.revert(ctx, recordID, delta, in)
		span.RecordError(err)
		span.SetStatus(codes.Error, "append movement failed")
		return models.StockMovement{}, fmt.Errorf("append movement: %w: %w", models.ErrPersistence, err)
	}
	movement.ID = id

	s.logger.Debug("stock movement recorded",
		zap.String("movement_id", id),
		zap.String("material_id", in.MaterialID),
		zap.String("location_id", in.LocationID),
		zap.String("direction", string(in.Direction)),
		zap.Int64("quantity", in.Quantity),
		zap.Int64("balance", balance))

	return movement, nil
}

// revert undoes a record increment whose movement could not be appended, keeping
// the record equal to the ledger sum.
func (s *Service) revert(ctx context.Context, recordID string, delta int64, in MovementInput) {
	if _, err := s.store.Increment(ctx, stockCollection, recordID, "quantity", -delta, docstore.IncrementOptions{}); err != nil {
		s.logger.Error("failed to revert stock record after ledger append failure",
			zap.String("record_id", recordID),
			zap.String("material_id", in.MaterialID),
			zap.Int64("delta", delta),
			zap.Error(err))
	}
}

// Balance returns the cached on-hand quantity; a missing record is zero.
func (s *Service) Balance(ctx context.Context, materialID, locationID string) (int64, error) {
	rec, found, err := s.Record(ctx, materialID, locationID)
	if err != nil || !found {
		return 0, err
	}
	return rec.Quantity, nil
}

// Record loads the stock record of a (material, location) pair.
func (s *Service) Record(ctx context.Context, materialID, locationID string) (models.StockRecord, bool, error) {
	var rec models.StockRecord
	err := s.store.Get(ctx, stockCollection, models.StockRecordID(materialID, locationID), &rec)
	if errors.Is(err, docstore.ErrNotFound) {
		return models.StockRecord{}, false, nil
	}
	if err != nil {
		return models.StockRecord{}, false, fmt.Errorf("load stock record: %w: %w", models.ErrPersistence, err)
	}
	return rec, true, nil
}

// Records lists every stock record held at locationID.
func (s *Service) Records(ctx context.Context, locationID string) ([]models.StockRecord, error) {
	var recs []models.StockRecord
	if err := s.store.Find(ctx, stockCollection, docstore.Fields{"locationId": locationID}, &recs); err != nil {
		return nil, fmt.Errorf("list stock records: %w: %w", models.ErrPersistence, err)
	}
	return recs, nil
}

// Movements returns the audit trail of a (material, location) pair, oldest first.
func (s *Service) Movements(ctx context.Context, materialID, locationID string) ([]models.StockMovement, error) {
	var mvs []models.StockMovement
	filter := docstore.Fields{"materialId": materialID, "locationId": locationID}
	if err := s.store.Find(ctx, movementsCollection, filter, &mvs); err != nil {
		return nil, fmt.Errorf("list movements: %w: %w", models.ErrPersistence, err)
	}
	return mvs, nil
}

// Replay recomputes the on-hand quantity from the ledger alone.
func (s *Service) Replay(ctx context.Context, materialID, locationID string) (int64, int, error) {
	mvs, err := s.Movements(ctx, materialID, locationID)
	if err != nil {
		return 0, 0, err
	}
	var total int64
	for _, mv := range mvs {
		total += mv.Signed()
	}
	return total, len(mvs), nil
}

// Reconcile compares the cached record against the ledger replay.
func (s *Service) Reconcile(ctx context.Context, materialID, locationID string) (models.Reconciliation, error) {
	cached, err := s.Balance(ctx, materialID, locationID)
	if err != nil {
		return models.Reconciliation{}, err
	}
	replayed, count, err := s.Replay(ctx, materialID, locationID)
	if err != nil {
		return models.Reconciliation{}, err
	}

	rec := models.Reconciliation{
		MaterialID: materialID,
		LocationID: locationID,
		Cached:     cached,
		Replayed:   replayed,
		Movements:  count,
	}
	if !rec.Consistent() {
		s.logger.Warn("stock record drifted from ledger",
			zap.String("material_id", materialID),
			zap.String("location_id", locationID),
			zap.Int64("cached", cached),
			zap.Int64("replayed", replayed))
	}
	return rec, nil
}

func validateMovement(in MovementInput) error {
	if in.Quantity <= 0 {
		return fmt.Errorf("movement of %d %s: %w", in.Quantity, in.MaterialID, models.ErrInvalidQuantity)
	}
	if !in.Direction.Valid() {
		return fmt.Errorf("movement direction %q: %w", in.Direction, models.ErrInvalidInput)
	}
	if strings.TrimSpace(in.MaterialID) == "" || strings.TrimSpace(in.LocationID) == "" {
		return fmt.Errorf("movement requires material and location: %w", models.ErrInvalidInput)
	}
	return nil
}

func mapIncrementError(err error, in MovementInput) error {
	switch {
	case errors.Is(err, docstore.ErrBelowFloor), in.Direction == models.DirectionOut && errors.Is(err, docstore.ErrNotFound):
		return fmt.Errorf("debit %d of %s at %s: %w", in.Quantity, in.MaterialID, in.LocationID, models.ErrInsufficientStock)
	default:
		return fmt.Errorf("update stock record: %w: %w", models.ErrPersistence, err)
	}
}

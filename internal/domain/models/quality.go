package models

import "time"

// QCOutcome is the verdict of a quality inspection.
type QCOutcome string

const (
	QCAccepted QCOutcome = "accepted"
	QCRejected QCOutcome = "rejected"
)

// QCRecord documents the inspection of a delivered batch.
type QCRecord struct {
	ID                string     `bson:"_id" json:"id"`
	MaterialID        string     `bson:"materialId" json:"material_id"`
	LocationID        string     `bson:"locationId" json:"location_id"`
	BatchNumber       string     `bson:"batchNumber" json:"batch_number"`
	SupplierID        string     `bson:"supplierId,omitempty" json:"supplier_id,omitempty"`
	DeliveredQuantity int64      `bson:"deliveredQuantity" json:"delivered_quantity"`
	AcceptedQuantity  int64      `bson:"acceptedQuantity" json:"accepted_quantity"`
	Grade             string     `bson:"grade,omitempty" json:"grade,omitempty"`
	ExpiryDate        *time.Time `bson:"expiryDate,omitempty" json:"expiry_date,omitempty"`
	Outcome           QCOutcome  `bson:"outcome" json:"outcome"`
	InspectorID       string     `bson:"inspectorId" json:"inspector_id"`
	Notes             string     `bson:"notes,omitempty" json:"notes,omitempty"`
	PurchaseRequestID string     `bson:"purchaseRequestId,omitempty" json:"purchase_request_id,omitempty"`
	MovementID        string     `bson:"movementId,omitempty" json:"movement_id,omitempty"`
	CreatedAt         time.Time  `bson:"createdAt" json:"created_at"`
}

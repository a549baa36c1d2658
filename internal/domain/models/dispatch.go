package models

import "time"

// DispatchItem is one released material line.
type DispatchItem struct {
	MaterialID  string `bson:"materialId" json:"material_id" validate:"required"`
	Quantity    int64  `bson:"quantity" json:"quantity"`
	Unit        string `bson:"unit" json:"unit"`
	BatchNumber string `bson:"batchNumber,omitempty" json:"batch_number,omitempty"`
	UnitPrice   Money  `bson:"unitPrice" json:"unit_price" validate:"gte=0"`
	MovementID  string `bson:"movementId,omitempty" json:"movement_id,omitempty"`
}

// Dispatch records stock physically released from a source location.
type Dispatch struct {
	ID                string         `bson:"_id" json:"id"`
	SourceLocation    string         `bson:"sourceLocation" json:"source_location"`
	Destination       string         `bson:"destination" json:"destination"`
	Items             []DispatchItem `bson:"items" json:"items"`
	InternalRequestID string         `bson:"internalRequestId,omitempty" json:"internal_request_id,omitempty"`
	DispatcherID      string         `bson:"dispatcherId" json:"dispatcher_id"`
	Notes             string         `bson:"notes,omitempty" json:"notes,omitempty"`
	CreatedAt         time.Time      `bson:"createdAt" json:"created_at"`
}

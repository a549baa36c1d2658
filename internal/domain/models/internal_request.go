package models

import "time"

// RequestStatus is the lifecycle state of an internal transfer request.
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestFulfilled RequestStatus = "fulfilled"
	RequestCancelled RequestStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s RequestStatus) Terminal() bool {
	return s == RequestFulfilled || s == RequestCancelled
}

// Valid reports whether s is a known request status.
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestPending, RequestFulfilled, RequestCancelled:
		return true
	}
	return false
}

// Urgency tiers of a requested line.
type Urgency string

const (
	UrgencyNormal   Urgency = "normal"
	UrgencyUrgent   Urgency = "urgent"
	UrgencyCritical Urgency = "critical"
)

// RequestItem is one requested material line.
type RequestItem struct {
	MaterialID    string  `bson:"materialId" json:"material_id" validate:"required"`
	Quantity      int64   `bson:"quantity" json:"quantity"`
	Unit          string  `bson:"unit" json:"unit"`
	Urgency       Urgency `bson:"urgency" json:"urgency" validate:"omitempty,oneof=normal urgent critical"`
	Justification string  `bson:"justification,omitempty" json:"justification,omitempty"`
	TargetLine    string  `bson:"targetLine,omitempty" json:"target_line,omitempty"`
}

// InternalRequest asks the materials store to release stock to a consuming location.
type InternalRequest struct {
	ID                 string        `bson:"_id" json:"id"`
	RequesterLocation  string        `bson:"requesterLocation" json:"requester_location"`
	Items              []RequestItem `bson:"items" json:"items"`
	Notes              string        `bson:"notes,omitempty" json:"notes,omitempty"`
	Status             RequestStatus `bson:"status" json:"status"`
	RequesterID        string        `bson:"requesterId" json:"requester_id"`
	CreatedAt          time.Time     `bson:"createdAt" json:"created_at"`
	FulfilledAt        *time.Time    `bson:"fulfilledAt,omitempty" json:"fulfilled_at,omitempty"`
	FulfilledBy        string        `bson:"fulfilledBy,omitempty" json:"fulfilled_by,omitempty"`
	DispatchID         string        `bson:"dispatchId,omitempty" json:"dispatch_id,omitempty"`
	CancelledAt        *time.Time    `bson:"cancelledAt,omitempty" json:"cancelled_at,omitempty"`
	CancelledBy        string        `bson:"cancelledBy,omitempty" json:"cancelled_by,omitempty"`
	CancellationReason string        `bson:"cancellationReason,omitempty" json:"cancellation_reason,omitempty"`
}

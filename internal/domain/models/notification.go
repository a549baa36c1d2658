package models

import "time"

// Roles referenced by the workflows when addressing notifications.
const (
	RoleStoreManager     = "store_manager"
	RolePackingManager   = "packing_manager"
	RoleHeadOfOperations = "head_of_operations"
	RoleMainDirector     = "main_director"
	RoleWarehouse        = "warehouse"
)

// EventType names a workflow transition worth telling someone about.
type EventType string

const (
	EventInternalRequestCreated   EventType = "internal_request_created"
	EventInternalRequestFulfilled EventType = "internal_request_fulfilled"
	EventInternalRequestCancelled EventType = "internal_request_cancelled"
	EventPurchaseCreated          EventType = "purchase_request_created"
	EventPurchaseHOApproved       EventType = "purchase_request_ho_approved"
	EventPurchaseForwarded        EventType = "purchase_request_forwarded"
	EventPurchaseMDApproved       EventType = "purchase_request_md_approved"
	EventPurchaseRejected         EventType = "purchase_request_rejected"
	EventPurchaseAllocated        EventType = "purchase_request_allocated"
	EventPurchaseCompleted        EventType = "purchase_request_completed"
	EventLowStock                 EventType = "low_stock"
)

// Event is emitted by a workflow after a successful transition.
type Event struct {
	Type        EventType `json:"type"`
	ReferenceID string    `json:"reference_id"`
	Message     string    `json:"message"`
	UserIDs     []string  `json:"user_ids,omitempty"`
	Roles       []string  `json:"roles,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Notification is one inbox entry for a user.
type Notification struct {
	ID          string    `bson:"_id,omitempty" json:"id"`
	UserID      string    `bson:"userId" json:"user_id"`
	Type        EventType `bson:"type" json:"type"`
	ReferenceID string    `bson:"referenceId" json:"reference_id"`
	Message     string    `bson:"message" json:"message"`
	Read        bool      `bson:"read" json:"read"`
	CreatedAt   time.Time `bson:"createdAt" json:"created_at"`
}

// User is the subset of the user directory the fan-out needs.
type User struct {
	ID    string   `bson:"_id" json:"id"`
	Name  string   `bson:"name" json:"name"`
	Roles []string `bson:"roles" json:"roles"`
	Phone string   `bson:"phone,omitempty" json:"phone,omitempty"`
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PurchaseStatus is the approval state of a purchase request.
type PurchaseStatus string

const (
	PurchasePendingHO     PurchaseStatus = "pending_ho"
	PurchaseApproved      PurchaseStatus = "approved"
	PurchaseForwardedToMD PurchaseStatus = "forwarded_to_md"
	PurchaseMDApproved    PurchaseStatus = "md_approved"
	PurchaseRejected      PurchaseStatus = "rejected"
	PurchaseAllocated     PurchaseStatus = "allocated"
	PurchaseCompleted     PurchaseStatus = "completed"
)

var purchaseTransitions = map[PurchaseStatus][]PurchaseStatus{
	PurchasePendingHO:     {PurchaseApproved, PurchaseRejected},
	PurchaseApproved:      {PurchaseForwardedToMD},
	PurchaseForwardedToMD: {PurchaseMDApproved, PurchaseRejected},
	PurchaseMDApproved:    {PurchaseAllocated},
	PurchaseAllocated:     {PurchaseCompleted},
}

// CanTransition reports whether the chain allows moving from s to next.
func (s PurchaseStatus) CanTransition(next PurchaseStatus) bool {
	for _, allowed := range purchaseTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the request can no longer change state.
func (s PurchaseStatus) Terminal() bool {
	return len(purchaseTransitions[s]) == 0
}

// Valid reports whether s is a known purchase status.
func (s PurchaseStatus) Valid() bool {
	switch s {
	case PurchasePendingHO, PurchaseApproved, PurchaseForwardedToMD, PurchaseMDApproved,
		PurchaseRejected, PurchaseAllocated, PurchaseCompleted:
		return true
	}
	return false
}

// PurchaseItem is one material line of a purchase request.
type PurchaseItem struct {
	MaterialID string `bson:"materialId" json:"material_id" validate:"required"`
	Quantity   int64  `bson:"quantity" json:"quantity"`
	Unit       string `bson:"unit" json:"unit"`
}

// PurchaseRequest is a procurement request gated by the head of operations and the main director.
type PurchaseRequest struct {
	ID              string         `bson:"_id" json:"id"`
	Items           []PurchaseItem `bson:"items" json:"items"`
	Justification   string         `bson:"justification" json:"justification"`
	BudgetEstimate  Money          `bson:"budgetEstimate" json:"budget_estimate"`
	Status          PurchaseStatus `bson:"status" json:"status"`
	RequesterID     string         `bson:"requesterId" json:"requester_id"`
	RequesterName   string         `bson:"requesterName" json:"requester_name"`
	CreatedAt       time.Time      `bson:"createdAt" json:"created_at"`
	HOApprovedBy    string         `bson:"hoApprovedBy,omitempty" json:"ho_approved_by,omitempty"`
	HOApprovedAt    *time.Time     `bson:"hoApprovedAt,omitempty" json:"ho_approved_at,omitempty"`
	HONotes         string         `bson:"hoNotes,omitempty" json:"ho_notes,omitempty"`
	ForwardedBy     string         `bson:"forwardedBy,omitempty" json:"forwarded_by,omitempty"`
	ForwardedAt     *time.Time     `bson:"forwardedAt,omitempty" json:"forwarded_at,omitempty"`
	ForwardNotes    string         `bson:"forwardNotes,omitempty" json:"forward_notes,omitempty"`
	MDApprovedBy    string         `bson:"mdApprovedBy,omitempty" json:"md_approved_by,omitempty"`
	MDApprovedAt    *time.Time     `bson:"mdApprovedAt,omitempty" json:"md_approved_at,omitempty"`
	MDNotes         string         `bson:"mdNotes,omitempty" json:"md_notes,omitempty"`
	RejectedBy      string         `bson:"rejectedBy,omitempty" json:"rejected_by,omitempty"`
	RejectedAt      *time.Time     `bson:"rejectedAt,omitempty" json:"rejected_at,omitempty"`
	RejectionReason string         `bson:"rejectionReason,omitempty" json:"rejection_reason,omitempty"`
	AllocationID    string         `bson:"allocationId,omitempty" json:"allocation_id,omitempty"`
	CompletedBy     string         `bson:"completedBy,omitempty" json:"completed_by,omitempty"`
	CompletedAt     *time.Time     `bson:"completedAt,omitempty" json:"completed_at,omitempty"`
}

// HasMaterial reports whether the request contains a line for materialID.
func (p PurchaseRequest) HasMaterial(materialID string) bool {
	for _, item := range p.Items {
		if item.MaterialID == materialID {
			return true
		}
	}
	return false
}

// AllocationSplit assigns part of a requested material to one supplier.
type AllocationSplit struct {
	SupplierID string `bson:"supplierId" json:"supplier_id" validate:"required"`
	MaterialID string `bson:"materialId" json:"material_id" validate:"required"`
	Quantity   int64  `bson:"quantity" json:"quantity"`
	Price      Money  `bson:"price" json:"price" validate:"gte=0"`
}

// SupplierAllocation is the immutable supplier split of an MD-approved purchase request.
type SupplierAllocation struct {
	ID                string            `bson:"_id" json:"id"`
	PurchaseRequestID string            `bson:"purchaseRequestId" json:"purchase_request_id"`
	Splits            []AllocationSplit `bson:"splits" json:"splits"`
	CreatedBy         string            `bson:"createdBy" json:"created_by"`
	CreatedAt         time.Time         `bson:"createdAt" json:"created_at"`
}

// Total is the committed spend of the allocation.
func (a SupplierAllocation) Total() decimal.Decimal {
	total := decimal.Zero
	for _, s := range a.Splits {
		total = total.Add(s.Price.Mul(decimal.NewFromInt(s.Quantity)))
	}
	return total
}

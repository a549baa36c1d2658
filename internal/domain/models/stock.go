package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the sign of a stock movement.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionIn || d == DirectionOut
}

// Sign returns +1 for inbound and -1 for outbound movements.
func (d Direction) Sign() int64 {
	if d == DirectionOut {
		return -1
	}
	return 1
}

// Movement reasons used by the workflows.
const (
	ReasonQCAccepted       = "QC accepted"
	ReasonDispatchRollback = "dispatch rollback"
	ReasonQCRollback       = "qc rollback"
	dispatchReasonPrefix   = "dispatched to "
)

// DispatchReason builds the ledger reason for a dispatch towards destination.
func DispatchReason(destination string) string {
	return dispatchReasonPrefix + destination
}

// StockRecord is the cached on-hand quantity of one material at one location.
type StockRecord struct {
	ID               string     `bson:"_id" json:"id"`
	MaterialID       string     `bson:"materialId" json:"material_id"`
	LocationID       string     `bson:"locationId" json:"location_id"`
	Quantity         int64      `bson:"quantity" json:"quantity"`
	UpdatedAt        time.Time  `bson:"updatedAt" json:"updated_at"`
	LastBatchNumber  string     `bson:"lastBatchNumber,omitempty" json:"last_batch_number,omitempty"`
	LastSupplierID   string     `bson:"lastSupplierId,omitempty" json:"last_supplier_id,omitempty"`
	LastQualityGrade string     `bson:"lastQualityGrade,omitempty" json:"last_quality_grade,omitempty"`
	ExpiryDate       *time.Time `bson:"expiryDate,omitempty" json:"expiry_date,omitempty"`
}

// StockRecordID derives the document key of a (material, location) pair.
func StockRecordID(materialID, locationID string) string {
	return materialID + "@" + locationID
}

// StockMovement is an immutable ledger entry.
type StockMovement struct {
	ID          string    `bson:"_id,omitempty" json:"id"`
	MaterialID  string    `bson:"materialId" json:"material_id"`
	LocationID  string    `bson:"locationId" json:"location_id"`
	Direction   Direction `bson:"direction" json:"direction"`
	Quantity    int64     `bson:"quantity" json:"quantity"`
	Reason      string    `bson:"reason" json:"reason"`
	Reference   string    `bson:"reference,omitempty" json:"reference,omitempty"`
	BatchNumber string    `bson:"batchNumber,omitempty" json:"batch_number,omitempty"`
	SupplierID  string    `bson:"supplierId,omitempty" json:"supplier_id,omitempty"`
	ActorID     string    `bson:"actorId" json:"actor_id"`
	CreatedAt   time.Time `bson:"createdAt" json:"created_at"`
}

// Signed returns the quantity with the movement's sign applied.
func (m StockMovement) Signed() int64 {
	return m.Direction.Sign() * m.Quantity
}

// StockStatus grades a quantity against the material's reorder level.
type StockStatus string

const (
	StockLow    StockStatus = "low"
	StockMedium StockStatus = "medium"
	StockGood   StockStatus = "good"
)

// AlertLevel grades a low-stock alert.
type AlertLevel string

const (
	AlertWarning  AlertLevel = "warning"
	AlertCritical AlertLevel = "critical"
)

// StockLine is one row of a location's stock report.
type StockLine struct {
	MaterialID   string          `json:"material_id"`
	Name         string          `json:"name"`
	Code         string          `json:"code"`
	Category     string          `json:"category"`
	Unit         string          `json:"unit"`
	Quantity     int64           `json:"quantity"`
	ReorderLevel int64           `json:"reorder_level"`
	MaxLevel     int64           `json:"max_level"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	TotalValue   decimal.Decimal `json:"total_value"`
	Status       StockStatus     `json:"status"`
	QualityGrade string          `json:"quality_grade,omitempty"`
	BatchNumber  string          `json:"batch_number,omitempty"`
	ExpiryDate   *time.Time      `json:"expiry_date,omitempty"`
	UpdatedAt    *time.Time      `json:"updated_at,omitempty"`
}

// StockAlert flags a material at or below its reorder level.
type StockAlert struct {
	MaterialID   string     `json:"material_id"`
	Name         string     `json:"name"`
	Code         string     `json:"code"`
	Unit         string     `json:"unit"`
	Quantity     int64      `json:"quantity"`
	ReorderLevel int64      `json:"reorder_level"`
	AlertLevel   AlertLevel `json:"alert_level"`
}

// Reconciliation compares the cached quantity with the ledger replay.
type Reconciliation struct {
	MaterialID string `json:"material_id"`
	LocationID string `json:"location_id"`
	Cached     int64  `json:"cached"`
	Replayed   int64  `json:"replayed"`
	Movements  int    `json:"movements"`
}

// Consistent reports whether the cached aggregate matches the ledger.
func (r Reconciliation) Consistent() bool {
	return r.Cached == r.Replayed
}

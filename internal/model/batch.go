package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Batch is a quantified parcel of one product owned by one node.
// InitialQuantity is fixed at creation; CurrentQuantity only decreases as the
// batch is consumed by later transactions. Batches are archived, never deleted.
// Parent/child batch links live in batch_edges.
type Batch struct {
	ID                  uuid.UUID       `gorm:"type:uuid;primaryKey"`
	Number              int64           `gorm:"uniqueIndex"`
	NodeID              uuid.UUID       `gorm:"type:uuid;not null;index"`
	ProductID           uuid.UUID       `gorm:"type:uuid;not null;index"`
	Unit                string          `gorm:"type:varchar(20);not null;default:'kg'"`
	InitialQuantity     decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	CurrentQuantity     decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	SourceTransactionID *uuid.UUID      `gorm:"type:uuid;index"`
	// ExternalSource marks a synthetic stub for material originating off-system.
	ExternalSource bool `gorm:"not null;default:false"`
	Archived       bool `gorm:"not null;default:false"`
	CreatedAt      time.Time
	UpdatedAt      time.Time

	Node    *Node    `gorm:"foreignKey:NodeID"`
	Product *Product `gorm:"foreignKey:ProductID"`
	Claims  []AttachedBatchClaim `gorm:"foreignKey:BatchID"`
}

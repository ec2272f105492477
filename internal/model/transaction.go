package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionKind discriminates external (cross-actor) and internal
// (same-actor) transactions.
type TransactionKind string

const (
	TransactionExternal TransactionKind = "external"
	TransactionInternal TransactionKind = "internal"
)

// InternalType is the transformation performed by an internal transaction.
type InternalType string

const (
	InternalMerge      InternalType = "merge"
	InternalSplit      InternalType = "split"
	InternalProcessing InternalType = "processing"
	InternalLoss       InternalType = "loss"
)

// BlockchainStatus tracks the asynchronous provenance log of a transaction.
type BlockchainStatus string

const (
	BlockchainPending BlockchainStatus = "pending"
	BlockchainLogged  BlockchainStatus = "logged"
	BlockchainFailed  BlockchainStatus = "failed"
)

// Transaction consumes source batches and produces result batches
// (batches.source_transaction_id). Parent/child transaction links live in
// transaction_edges and mirror the batch ancestry.
type Transaction struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey"`
	Number    int64           `gorm:"uniqueIndex"`
	Kind      TransactionKind `gorm:"type:varchar(20);not null;index"`
	Date      time.Time       `gorm:"not null"`
	CreatorID *uuid.UUID      `gorm:"type:uuid"`

	// External
	SourceNodeID      *uuid.UUID `gorm:"type:uuid;index"`
	DestinationNodeID *uuid.UUID `gorm:"type:uuid;index"`

	// Internal
	NodeID       *uuid.UUID   `gorm:"type:uuid;index"`
	InternalType InternalType `gorm:"type:varchar(20)"`

	SourceQuantity      decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0"`
	DestinationQuantity decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0"`

	BlockchainAddress *string          `gorm:"type:varchar(120)"`
	BlockchainStatus  BlockchainStatus `gorm:"type:varchar(20);not null;default:'pending';index"`
	BlockchainRetries int              `gorm:"not null;default:0"`
	// BlockchainNextAttempt is set after a failed submission; nil while the
	// first attempt is still queued.
	BlockchainNextAttempt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time

	SourceBatches []SourceBatch `gorm:"foreignKey:TransactionID"`
	ResultBatches []Batch       `gorm:"foreignKey:SourceTransactionID"`
}

// IsExternal reports whether the transaction moves material between actors.
func (t *Transaction) IsExternal() bool { return t.Kind == TransactionExternal }

// ActingNodes returns the nodes that perform the transaction: source and
// destination for external transactions, the single node for internal ones.
func (t *Transaction) ActingNodes() []uuid.UUID {
	var out []uuid.UUID
	if t.IsExternal() {
		if t.SourceNodeID != nil {
			out = append(out, *t.SourceNodeID)
		}
		if t.DestinationNodeID != nil {
			out = append(out, *t.DestinationNodeID)
		}
		return out
	}
	if t.NodeID != nil {
		out = append(out, *t.NodeID)
	}
	return out
}

// SourceProducts returns the distinct products consumed, in first-seen
// order. Source batches must be preloaded.
func (t *Transaction) SourceProducts() []uuid.UUID {
	var out []uuid.UUID
	seen := make(map[uuid.UUID]struct{})
	for _, sb := range t.SourceBatches {
		if sb.Batch == nil {
			continue
		}
		if _, ok := seen[sb.Batch.ProductID]; !ok {
			seen[sb.Batch.ProductID] = struct{}{}
			out = append(out, sb.Batch.ProductID)
		}
	}
	return out
}

// DestinationProducts returns the distinct products produced.
func (t *Transaction) DestinationProducts() []uuid.UUID {
	var out []uuid.UUID
	seen := make(map[uuid.UUID]struct{})
	for _, b := range t.ResultBatches {
		if _, ok := seen[b.ProductID]; !ok {
			seen[b.ProductID] = struct{}{}
			out = append(out, b.ProductID)
		}
	}
	return out
}

// SourceBatch is the quantity of one batch consumed by a transaction.
type SourceBatch struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"`
	TransactionID uuid.UUID       `gorm:"type:uuid;not null;index"`
	BatchID       uuid.UUID       `gorm:"type:uuid;not null;index"`
	Quantity      decimal.Decimal `gorm:"type:numeric(20,4);not null"`

	Batch *Batch `gorm:"foreignKey:BatchID"`
}

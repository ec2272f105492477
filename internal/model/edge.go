package model

import "github.com/google/uuid"

// Edge is a parent -> child link of a self-referencing graph. The same row
// shape backs transaction_edges, batch_edges and connection_edges; the
// primary key serves parent lookups and each table gets its own child index.
type Edge struct {
	ParentID uuid.UUID `gorm:"type:uuid;primaryKey"`
	ChildID  uuid.UUID `gorm:"type:uuid;primaryKey"`
}

const (
	TransactionEdgesTable = "transaction_edges"
	BatchEdgesTable       = "batch_edges"
	ConnectionEdgesTable  = "connection_edges"
)

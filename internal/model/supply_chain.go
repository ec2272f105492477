package model

import (
	"time"

	"github.com/google/uuid"
)

// SupplyChain scopes operations, products and connections.
type SupplyChain struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name      string    `gorm:"uniqueIndex;not null"`
	CreatedAt time.Time
}

// Operation classifies what a node does within a supply chain
// ("Farmer", "Processor", "Exporter"). Stages are grouped by it.
type Operation struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	SupplyChainID uuid.UUID `gorm:"type:uuid;not null;index"`
	Name          string    `gorm:"not null"`
}

// NodeOperation is a node's primary operation within one supply chain.
type NodeOperation struct {
	NodeID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	SupplyChainID uuid.UUID `gorm:"type:uuid;primaryKey"`
	OperationID   uuid.UUID `gorm:"type:uuid;not null"`

	Operation *Operation `gorm:"foreignKey:OperationID"`
}

// Product is a named good within a supply chain.
type Product struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	SupplyChainID uuid.UUID `gorm:"type:uuid;not null;index"`
	Name          string    `gorm:"not null"`
	Image         string
}

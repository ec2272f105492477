package model

import (
	"time"

	"github.com/google/uuid"
)

// NodeType discriminates the two kinds of supply chain actors.
type NodeType string

const (
	NodeCompany NodeType = "company"
	NodeFarmer  NodeType = "farmer"
)

// ConsentStatus controls whether a farmer may be identified in public traces.
type ConsentStatus string

const (
	ConsentGranted ConsentStatus = "granted"
	ConsentPending ConsentStatus = "pending"
	ConsentDenied  ConsentStatus = "denied"
)

// Node is an actor in the supply chain (company or farmer).
// Supplier/buyer connections are stored as graph edges in connection_edges.
type Node struct {
	ID            uuid.UUID     `gorm:"type:uuid;primaryKey"`
	Type          NodeType      `gorm:"type:varchar(20);not null;index"`
	Name          string        `gorm:"not null"`
	Image         string
	Country       string
	Latitude      float64
	Longitude     float64
	ConsentStatus ConsentStatus `gorm:"type:varchar(20);not null;default:'granted'"`
	// ExternalID is an identity-bearing reference (farmer card number, registry id)
	ExternalID string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsAnonymous reports whether the node must be masked in consumer-facing output.
func (n *Node) IsAnonymous() bool {
	return n.Type == NodeFarmer && n.ConsentStatus != ConsentGranted
}

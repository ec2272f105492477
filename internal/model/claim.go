package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Inheritable governs whether a claim flows from source batches to the
// batches a transaction produces.
type Inheritable string

const (
	InheritNone    Inheritable = "none"
	InheritAll     Inheritable = "all"
	InheritProduct Inheritable = "product"
)

// ClaimStatus is the verification state of an attached claim.
type ClaimStatus string

const (
	ClaimPending  ClaimStatus = "pending"
	ClaimApproved ClaimStatus = "approved"
	ClaimRejected ClaimStatus = "rejected"
	ClaimPartial  ClaimStatus = "partial"
)

// AttachedFrom records how a claim reached a batch.
type AttachedFrom string

const (
	AttachedDirect    AttachedFrom = "direct"
	AttachedInherited AttachedFrom = "inherited"
	AttachedSystem    AttachedFrom = "system"
)

// Claim is a sustainability assertion ("Organic", "Fair wage").
type Claim struct {
	ID          uuid.UUID   `gorm:"type:uuid;primaryKey"`
	Name        string      `gorm:"not null"`
	Description string
	Image       string
	Inheritable Inheritable `gorm:"type:varchar(20);not null;default:'none'"`
	// Proportional claims may be carried by only part of the inputs and are
	// weighted by quantity on inheritance.
	Proportional bool `gorm:"not null;default:false"`
	Removable    bool `gorm:"not null"`
	CreatedAt    time.Time

	Criteria []Criterion `gorm:"foreignKey:ClaimID"`
}

// HasField reports whether fieldID belongs to criterionID of this claim.
// Criteria must be preloaded.
func (c *Claim) HasField(criterionID, fieldID uuid.UUID) bool {
	for _, cr := range c.Criteria {
		if cr.ID != criterionID {
			continue
		}
		for _, f := range cr.Fields {
			if f.ID == fieldID {
				return true
			}
		}
	}
	return false
}

type Criterion struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey"`
	ClaimID uuid.UUID `gorm:"type:uuid;not null;index"`
	Name    string    `gorm:"not null"`

	Fields []CriterionField `gorm:"foreignKey:CriterionID"`
}

func (Criterion) TableName() string { return "criteria" }

type CriterionField struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	CriterionID uuid.UUID `gorm:"type:uuid;not null;index"`
	Title       string    `gorm:"not null"`
}

// AttachedBatchClaim is a claim carried by one batch.
type AttachedBatchClaim struct {
	ID                     uuid.UUID    `gorm:"type:uuid;primaryKey"`
	BatchID                uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_batch_claim"`
	ClaimID                uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_batch_claim"`
	Status                 ClaimStatus  `gorm:"type:varchar(20);not null;default:'pending'"`
	VerificationPercentage float64      `gorm:"not null;default:0"`
	AttachedFrom           AttachedFrom `gorm:"type:varchar(20);not null;default:'direct'"`
	Removable              bool         `gorm:"not null"`
	CreatedAt              time.Time

	Claim     *Claim          `gorm:"foreignKey:ClaimID"`
	Responses []FieldResponse `gorm:"foreignKey:AttachedClaimID"`
}

// FieldResponse is one piece of evidence for a criterion field.
type FieldResponse struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	AttachedClaimID uuid.UUID `gorm:"type:uuid;not null;index"`
	CriterionID     uuid.UUID `gorm:"type:uuid;not null"`
	FieldID         uuid.UUID `gorm:"type:uuid;not null"`
	AddedBy         uuid.UUID `gorm:"type:uuid;not null"`
	Response        string    `gorm:"type:text"`
	CreatedAt       time.Time
}

// AttachedCompanyClaim is a claim held by a node rather than a batch.
type AttachedCompanyClaim struct {
	ID        uuid.UUID   `gorm:"type:uuid;primaryKey"`
	NodeID    uuid.UUID   `gorm:"type:uuid;not null;uniqueIndex:idx_node_claim"`
	ClaimID   uuid.UUID   `gorm:"type:uuid;not null;uniqueIndex:idx_node_claim"`
	Status    ClaimStatus `gorm:"type:varchar(20);not null;default:'pending'"`
	CreatedAt time.Time

	Claim *Claim `gorm:"foreignKey:ClaimID"`
}

// TargetKind selects what a claim is attached to.
type TargetKind string

const (
	TargetBatch TargetKind = "batch"
	TargetNode  TargetKind = "node"
)

// ClaimTarget identifies the subject of a claim attachment. It is resolved
// once, when the attachment request is validated.
type ClaimTarget struct {
	Kind TargetKind
	ID   uuid.UUID
}

func (t ClaimTarget) Validate() error {
	switch t.Kind {
	case TargetBatch, TargetNode:
	default:
		return fmt.Errorf("unknown claim target kind %q", t.Kind)
	}
	if t.ID == uuid.Nil {
		return fmt.Errorf("claim target %s has no id", t.Kind)
	}
	return nil
}

package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Theme customises the public consumer trace of one node's batches.
// StageTitles overrides stage names, keyed by operation id.
type Theme struct {
	ID          uuid.UUID         `gorm:"type:uuid;primaryKey"`
	Name        string            `gorm:"uniqueIndex;not null"`
	NodeID      uuid.UUID         `gorm:"type:uuid;not null;index"`
	StageTitles datatypes.JSONMap `gorm:"not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// StageTitle returns the override for operationID, if any.
func (t *Theme) StageTitle(operationID uuid.UUID) (string, bool) {
	if t == nil || t.StageTitles == nil {
		return "", false
	}
	title, ok := t.StageTitles[operationID.String()].(string)
	return title, ok && title != ""
}

// StockRequest is a transparency request from a buyer. Claims it references
// cannot be removed from the batches that fulfil it.
type StockRequest struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey"`
	NodeID    uuid.UUID  `gorm:"type:uuid;not null;index"`
	BatchID   *uuid.UUID `gorm:"type:uuid;index"`
	CreatedAt time.Time

	Claims []Claim `gorm:"many2many:stock_request_claims"`
}

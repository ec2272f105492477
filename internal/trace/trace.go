// Package trace turns a resolved set of upstream transactions into the
// consumer-facing provenance views: the actor map, the stage story and the
// claim list. It performs no I/O; callers load the input and report the
// warnings it returns.
package trace

import (
	"fmt"
	"strings"

	"fairtrace/internal/model"

	"github.com/google/uuid"
)

// Input is everything one trace needs, loaded up front.
type Input struct {
	// Batch is the traced batch.
	Batch model.Batch
	// Transactions is the resolved upstream closure, source and result
	// batches preloaded.
	Transactions []model.Transaction
	Nodes        map[uuid.UUID]model.Node
	// Operations is the primary operation of each node in the batch's supply
	// chain.
	Operations    map[uuid.UUID]model.Operation
	CompanyClaims map[uuid.UUID][]model.Claim
	Theme         *model.Theme
}

// DataIntegrityWarning reports ancestry that does not match the batch data.
// The trace continues with what can be derived.
type DataIntegrityWarning struct {
	BatchID       uuid.UUID
	TransactionID uuid.UUID
	Detail        string
}

func (w *DataIntegrityWarning) Error() string {
	return fmt.Sprintf("data integrity: batch %s transaction %s: %s", w.BatchID, w.TransactionID, w.Detail)
}

// ClaimInconsistency reports an inherited claim whose contributing batches
// disagree on status. The claim is inherited as partial.
type ClaimInconsistency struct {
	ClaimID  uuid.UUID
	Approved []uuid.UUID
	Rejected []uuid.UUID
}

func (c *ClaimInconsistency) Error() string {
	return fmt.Sprintf("claim %s inconsistent: approved on %d batches, rejected on %d",
		c.ClaimID, len(c.Approved), len(c.Rejected))
}

// Coordinate is a map point.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// OperationRef is the display form of an operation.
type OperationRef struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// ClaimRef is the display form of a company claim.
type ClaimRef struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Image string    `json:"image,omitempty"`
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

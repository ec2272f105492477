package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// ─── Request DTOs ────────────────────────────────────────────────────────────

type SourceBatchRequest struct {
	BatchID  string          `json:"batch_id" validate:"required,uuid"`
	Quantity decimal.Decimal `json:"quantity" validate:"required,gt=0"`
}

// ExternalTransactionRequest sends material from the caller's node to
// another node. ProductID defaults to the product of the source batches;
// DestinationQuantity defaults to the consumed quantity.
type ExternalTransactionRequest struct {
	DestinationNodeID   string               `json:"destination_node_id"  validate:"required,uuid"`
	Date                *time.Time           `json:"date"`
	SourceBatches       []SourceBatchRequest `json:"source_batches"       validate:"required,min=1,dive"`
	ProductID           *string              `json:"product_id"           validate:"omitempty,uuid"`
	DestinationQuantity *decimal.Decimal     `json:"destination_quantity"`
	Unit                string               `json:"unit"                 validate:"omitempty,max=20"`
	// SendSeparately creates one destination batch per source batch.
	SendSeparately bool `json:"send_separately"`
}

type ResultBatchRequest struct {
	ProductID string          `json:"product_id" validate:"required,uuid"`
	Quantity  decimal.Decimal `json:"quantity"   validate:"required,gt=0"`
	Unit      string          `json:"unit"       validate:"omitempty,max=20"`
}

// InternalTransactionRequest transforms material inside the caller's node.
// Loss transactions carry no results.
type InternalTransactionRequest struct {
	Type          string               `json:"type"           validate:"required,oneof=merge split processing loss"`
	Date          *time.Time           `json:"date"`
	SourceBatches []SourceBatchRequest `json:"source_batches" validate:"required,min=1,dive"`
	Results       []ResultBatchRequest `json:"results"        validate:"dive"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type SourceBatchResponse struct {
	BatchID     string          `json:"batch_id"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	NodeID      string          `json:"node_id"`
	Quantity    decimal.Decimal `json:"quantity"`
}

type TransactionResponse struct {
	ID                  string                `json:"id"`
	Number              int64                 `json:"number"`
	Kind                string                `json:"kind"`
	Type                string                `json:"type,omitempty"`
	Date                string                `json:"date"`
	SourceNodeID        *string               `json:"source_node_id,omitempty"`
	DestinationNodeID   *string               `json:"destination_node_id,omitempty"`
	NodeID              *string               `json:"node_id,omitempty"`
	SourceQuantity      decimal.Decimal       `json:"source_quantity"`
	DestinationQuantity decimal.Decimal       `json:"destination_quantity"`
	BlockchainStatus    string                `json:"blockchain_status"`
	BlockchainAddress   *string               `json:"blockchain_address"`
	SourceBatches       []SourceBatchResponse `json:"source_batches"`
	ResultBatches       []BatchResponse       `json:"result_batches"`
	// Warnings lists claim inheritance problems sent for review.
	Warnings []string `json:"warnings,omitempty"`
}

package dto

import "github.com/shopspring/decimal"

// ─── Request DTOs ────────────────────────────────────────────────────────────

// CreateBatchRequest registers material that enters the system without a
// transaction (a harvest, or an external source stub).
type CreateBatchRequest struct {
	ProductID      string          `json:"product_id"      validate:"required,uuid"`
	Quantity       decimal.Decimal `json:"quantity"        validate:"required,gt=0"`
	Unit           string          `json:"unit"            validate:"omitempty,max=20"`
	ExternalSource bool            `json:"external_source"`
}

type ListBatchesFilter struct {
	IncludeArchived bool `form:"include_archived"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type BatchResponse struct {
	ID                  string          `json:"id"`
	Number              int64           `json:"number"`
	NodeID              string          `json:"node_id"`
	ProductID           string          `json:"product_id"`
	ProductName         string          `json:"product_name"`
	Unit                string          `json:"unit"`
	InitialQuantity     decimal.Decimal `json:"initial_quantity"`
	CurrentQuantity     decimal.Decimal `json:"current_quantity"`
	SourceTransactionID *string         `json:"source_transaction_id"`
	ExternalSource      bool            `json:"external_source"`
	Archived            bool            `json:"archived"`
	CreatedAt           string          `json:"created_at"`
}

package dto

import (
	"fairtrace/internal/trace"

	"github.com/shopspring/decimal"
)

// TraceProgram describes the traced batch and the theme it is shown with.
type TraceProgram struct {
	BatchID     string          `json:"batch_id"`
	BatchNumber int64           `json:"batch_number"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    decimal.Decimal `json:"quantity"`
	Unit        string          `json:"unit"`
	NodeID      string          `json:"node_id"`
	ThemeID     *string         `json:"theme_id,omitempty"`
	ThemeName   string          `json:"theme_name,omitempty"`
}

type TraceMapResponse struct {
	Map     []trace.ActorRecord `json:"map"`
	Program TraceProgram        `json:"program"`
}

type TraceStagesResponse struct {
	Program TraceProgram  `json:"program"`
	Stages  []trace.Stage `json:"stages"`
}

type TraceClaimsResponse struct {
	Program TraceProgram        `json:"program"`
	Claims  []trace.ClaimRecord `json:"claims"`
}

type TraceTransactionsResponse struct {
	Program      TraceProgram          `json:"program"`
	Transactions []TransactionResponse `json:"transactions"`
}

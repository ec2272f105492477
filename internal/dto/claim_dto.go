package dto

// ─── Request DTOs ────────────────────────────────────────────────────────────

type CriterionRequest struct {
	Name   string   `json:"name"   validate:"required,min=1,max=200"`
	Fields []string `json:"fields" validate:"dive,required"`
}

type CreateClaimRequest struct {
	Name         string             `json:"name"         validate:"required,min=2,max=200"`
	Description  string             `json:"description"`
	Image        string             `json:"image"        validate:"omitempty,url"`
	Inheritable  string             `json:"inheritable"  validate:"required,oneof=none all product"`
	Proportional bool               `json:"proportional"`
	Removable    *bool              `json:"removable"`
	Criteria     []CriterionRequest `json:"criteria"     validate:"dive"`
}

type FieldResponseRequest struct {
	CriterionID string `json:"criterion_id" validate:"required,uuid"`
	FieldID     string `json:"field_id"     validate:"required,uuid"`
	Response    string `json:"response"     validate:"required"`
}

// AttachClaimRequest attaches a claim to a batch or to a node.
type AttachClaimRequest struct {
	TargetKind             string                 `json:"target_kind"             validate:"required,oneof=batch node"`
	TargetID               string                 `json:"target_id"               validate:"required,uuid"`
	ClaimID                string                 `json:"claim_id"                validate:"required,uuid"`
	Status                 string                 `json:"status"                  validate:"omitempty,oneof=pending approved rejected"`
	VerificationPercentage *float64               `json:"verification_percentage" validate:"omitempty,min=0,max=100"`
	Responses              []FieldResponseRequest `json:"responses"               validate:"dive"`
}

// InheritableClaimsRequest previews the claims a transaction over these
// source batches would carry into a batch of DestinationProductID.
type InheritableClaimsRequest struct {
	SourceBatches        []SourceBatchRequest `json:"source_batches"         validate:"required,min=1,dive"`
	DestinationProductID *string              `json:"destination_product_id" validate:"omitempty,uuid"`
}

type CreateStockRequestRequest struct {
	BatchID  *string  `json:"batch_id"  validate:"omitempty,uuid"`
	ClaimIDs []string `json:"claim_ids" validate:"required,min=1,dive,uuid"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type CriterionResponse struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Fields []FieldResponse `json:"fields"`
}

type FieldResponse struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type ClaimResponse struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Description  string              `json:"description"`
	Image        string              `json:"image"`
	Inheritable  string              `json:"inheritable"`
	Proportional bool                `json:"proportional"`
	Removable    bool                `json:"removable"`
	Criteria     []CriterionResponse `json:"criteria"`
}

type AttachedClaimResponse struct {
	ID                     string  `json:"id"`
	TargetKind             string  `json:"target_kind"`
	TargetID               string  `json:"target_id"`
	ClaimID                string  `json:"claim_id"`
	Status                 string  `json:"status"`
	VerificationPercentage float64 `json:"verification_percentage"`
	AttachedFrom           string  `json:"attached_from,omitempty"`
	Removable              bool    `json:"removable"`
}

type InheritedClaimResponse struct {
	ClaimID                string  `json:"claim_id"`
	Name                   string  `json:"name"`
	Status                 string  `json:"status"`
	VerificationPercentage float64 `json:"verification_percentage"`
	Removable              bool    `json:"removable"`
	EvidenceCount          int     `json:"evidence_count"`
}

type StockRequestResponse struct {
	ID       string   `json:"id"`
	NodeID   string   `json:"node_id"`
	BatchID  *string  `json:"batch_id"`
	ClaimIDs []string `json:"claim_ids"`
}

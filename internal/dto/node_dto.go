package dto

// ─── Request DTOs ────────────────────────────────────────────────────────────

type CreateNodeRequest struct {
	Type          string  `json:"type"           validate:"required,oneof=company farmer"`
	Name          string  `json:"name"           validate:"required,min=2,max=200"`
	Image         string  `json:"image"          validate:"omitempty,url"`
	Country       string  `json:"country"        validate:"omitempty,max=100"`
	Latitude      float64 `json:"latitude"       validate:"min=-90,max=90"`
	Longitude     float64 `json:"longitude"      validate:"min=-180,max=180"`
	ConsentStatus string  `json:"consent_status" validate:"omitempty,oneof=granted pending denied"`
	ExternalID    string  `json:"external_id"    validate:"omitempty,max=100"`
}

type ProductRequest struct {
	Name  string `json:"name"  validate:"required,min=1,max=200"`
	Image string `json:"image" validate:"omitempty,url"`
}

type CreateSupplyChainRequest struct {
	Name       string           `json:"name"       validate:"required,min=2,max=200"`
	Operations []string         `json:"operations" validate:"required,min=1,dive,required"`
	Products   []ProductRequest `json:"products"   validate:"dive"`
}

type SetOperationRequest struct {
	SupplyChainID string `json:"supply_chain_id" validate:"required,uuid"`
	OperationID   string `json:"operation_id"    validate:"required,uuid"`
}

type AddSupplierRequest struct {
	SupplierID string `json:"supplier_id" validate:"required,uuid"`
}

type CreateThemeRequest struct {
	Name        string            `json:"name"         validate:"required,min=2,max=100"`
	StageTitles map[string]string `json:"stage_titles" validate:"dive,keys,uuid,endkeys,max=100"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type NodeResponse struct {
	ID            string  `json:"id"`
	Type          string  `json:"type"`
	Name          string  `json:"name"`
	Image         string  `json:"image"`
	Country       string  `json:"country"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	ConsentStatus string  `json:"consent_status"`
}

type OperationResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ProductResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image"`
}

type SupplyChainResponse struct {
	ID         string              `json:"id"`
	Name       string              `json:"name"`
	Operations []OperationResponse `json:"operations"`
	Products   []ProductResponse   `json:"products"`
}

// SupplierTier lists the suppliers found Tier hops upstream of a node.
type SupplierTier struct {
	Tier  int            `json:"tier"`
	Nodes []NodeResponse `json:"nodes"`
}

type SupplierTiersResponse struct {
	NodeID string         `json:"node_id"`
	Tiers  []SupplierTier `json:"tiers"`
}

type ThemeResponse struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	NodeID      string            `json:"node_id"`
	StageTitles map[string]string `json:"stage_titles"`
}

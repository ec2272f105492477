package service

import (
	"context"
	"fmt"
	"sort"

	"fairtrace/internal/dto"
	"fairtrace/internal/graph"
	"fairtrace/internal/model"
	"fairtrace/internal/repository"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// NodeService manages actors, their supply chain catalogue and the
// supplier/buyer connection graph. A supplier is a parent of its buyer.
type NodeService interface {
	CreateNode(ctx context.Context, caller Caller, req dto.CreateNodeRequest) (*dto.NodeResponse, error)
	GetNode(ctx context.Context, id uuid.UUID) (*dto.NodeResponse, error)
	CreateSupplyChain(ctx context.Context, caller Caller, req dto.CreateSupplyChainRequest) (*dto.SupplyChainResponse, error)
	SetOperation(ctx context.Context, caller Caller, nodeID uuid.UUID, req dto.SetOperationRequest) error

	AddSupplier(ctx context.Context, caller Caller, buyerID uuid.UUID, req dto.AddSupplierRequest) error
	RemoveSupplier(ctx context.Context, caller Caller, buyerID, supplierID uuid.UUID) error
	SupplierTiers(ctx context.Context, nodeID uuid.UUID) (*dto.SupplierTiersResponse, error)

	CreateTheme(ctx context.Context, caller Caller, req dto.CreateThemeRequest) (*dto.ThemeResponse, error)
}

type nodeService struct {
	repo        repository.NodeRepository
	themeRepo   repository.ThemeRepository
	connEdges   repository.EdgeRepository
	connections *graph.Graph
	db          *gorm.DB
}

// NewNodeService wires the node service. Connection edges are written inside
// a transaction on db; a nil db writes through connEdges directly.
func NewNodeService(
	repo repository.NodeRepository,
	themeRepo repository.ThemeRepository,
	connEdges repository.EdgeRepository,
	connections *graph.Graph,
	db *gorm.DB,
) NodeService {
	return &nodeService{repo: repo, themeRepo: themeRepo, connEdges: connEdges, connections: connections, db: db}
}

func (s *nodeService) CreateNode(ctx context.Context, caller Caller, req dto.CreateNodeRequest) (*dto.NodeResponse, error) {
	if !caller.Admin {
		return nil, ErrForbidden
	}
	n := &model.Node{
		Type:          model.NodeType(req.Type),
		Name:          req.Name,
		Image:         req.Image,
		Country:       req.Country,
		Latitude:      req.Latitude,
		Longitude:     req.Longitude,
		ConsentStatus: model.ConsentGranted,
		ExternalID:    req.ExternalID,
	}
	if req.ConsentStatus != "" {
		n.ConsentStatus = model.ConsentStatus(req.ConsentStatus)
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, err
	}
	resp := toNodeResponse(n)
	return &resp, nil
}

func (s *nodeService) GetNode(ctx context.Context, id uuid.UUID) (*dto.NodeResponse, error) {
	n, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toNodeResponse(n)
	return &resp, nil
}

func (s *nodeService) CreateSupplyChain(ctx context.Context, caller Caller, req dto.CreateSupplyChainRequest) (*dto.SupplyChainResponse, error) {
	if !caller.Admin {
		return nil, ErrForbidden
	}
	sc := &model.SupplyChain{Name: req.Name}
	if err := s.repo.CreateSupplyChain(ctx, sc); err != nil {
		return nil, err
	}
	resp := &dto.SupplyChainResponse{
		ID:         sc.ID.String(),
		Name:       sc.Name,
		Operations: make([]dto.OperationResponse, 0, len(req.Operations)),
		Products:   make([]dto.ProductResponse, 0, len(req.Products)),
	}
	for _, name := range req.Operations {
		op := &model.Operation{SupplyChainID: sc.ID, Name: name}
		if err := s.repo.CreateOperation(ctx, op); err != nil {
			return nil, fmt.Errorf("operation %q: %w", name, err)
		}
		resp.Operations = append(resp.Operations, dto.OperationResponse{ID: op.ID.String(), Name: op.Name})
	}
	for _, pr := range req.Products {
		p := &model.Product{SupplyChainID: sc.ID, Name: pr.Name, Image: pr.Image}
		if err := s.repo.CreateProduct(ctx, p); err != nil {
			return nil, fmt.Errorf("product %q: %w", pr.Name, err)
		}
		resp.Products = append(resp.Products, dto.ProductResponse{ID: p.ID.String(), Name: p.Name, Image: p.Image})
	}
	return resp, nil
}

func (s *nodeService) SetOperation(ctx context.Context, caller Caller, nodeID uuid.UUID, req dto.SetOperationRequest) error {
	if !caller.Admin && caller.NodeID != nodeID {
		return ErrForbidden
	}
	scID, err := uuid.Parse(req.SupplyChainID)
	if err != nil {
		return fmt.Errorf("%w: supply_chain_id", ErrInvalidInput)
	}
	opID, err := uuid.Parse(req.OperationID)
	if err != nil {
		return fmt.Errorf("%w: operation_id", ErrInvalidInput)
	}
	if _, err := s.repo.FindByID(ctx, nodeID); err != nil {
		return err
	}
	return s.repo.SetPrimaryOperation(ctx, nodeID, scID, opID)
}

// ── Connections ───────────────────────────────────────────────────────────────

func (s *nodeService) AddSupplier(ctx context.Context, caller Caller, buyerID uuid.UUID, req dto.AddSupplierRequest) error {
	if !caller.Admin && caller.NodeID != buyerID {
		return ErrForbidden
	}
	supplierID, err := uuid.Parse(req.SupplierID)
	if err != nil {
		return fmt.Errorf("%w: supplier_id", ErrInvalidInput)
	}
	nodes, err := s.repo.FindByIDs(ctx, []uuid.UUID{buyerID, supplierID})
	if err != nil {
		return err
	}
	if buyerID != supplierID && len(nodes) < 2 {
		return fmt.Errorf("%w: unknown node", ErrInvalidInput)
	}
	return runTx(ctx, s.db, func(tx *gorm.DB) error {
		return s.connections.Bind(s.connEdges.Store(tx)).AddParent(ctx, buyerID, supplierID)
	})
}

func (s *nodeService) RemoveSupplier(ctx context.Context, caller Caller, buyerID, supplierID uuid.UUID) error {
	if !caller.Admin && caller.NodeID != buyerID {
		return ErrForbidden
	}
	return runTx(ctx, s.db, func(tx *gorm.DB) error {
		return s.connections.Bind(s.connEdges.Store(tx)).RemoveParent(ctx, buyerID, supplierID)
	})
}

// SupplierTiers groups a node's upstream suppliers by hop distance. A
// supplier reachable at several distances is listed at the nearest one.
func (s *nodeService) SupplierTiers(ctx context.Context, nodeID uuid.UUID) (*dto.SupplierTiersResponse, error) {
	levels, err := s.connections.Levels(ctx, nodeID, graph.Up)
	if err != nil {
		return nil, err
	}
	var ids []uuid.UUID
	for depth, level := range levels {
		if depth > 0 {
			ids = append(ids, level...)
		}
	}
	nodes, err := s.repo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*model.Node, len(nodes))
	for i := range nodes {
		byID[nodes[i].ID] = &nodes[i]
	}

	resp := &dto.SupplierTiersResponse{NodeID: nodeID.String(), Tiers: []dto.SupplierTier{}}
	for depth, level := range levels {
		if depth == 0 {
			continue
		}
		tier := dto.SupplierTier{Tier: depth, Nodes: make([]dto.NodeResponse, 0, len(level))}
		for _, id := range level {
			if n, ok := byID[id]; ok {
				tier.Nodes = append(tier.Nodes, toNodeResponse(n))
			}
		}
		resp.Tiers = append(resp.Tiers, tier)
	}
	sort.Slice(resp.Tiers, func(i, j int) bool { return resp.Tiers[i].Tier < resp.Tiers[j].Tier })
	return resp, nil
}

// ── Themes ────────────────────────────────────────────────────────────────────

func (s *nodeService) CreateTheme(ctx context.Context, caller Caller, req dto.CreateThemeRequest) (*dto.ThemeResponse, error) {
	titles := make(datatypes.JSONMap, len(req.StageTitles))
	for k, v := range req.StageTitles {
		titles[k] = v
	}
	t := &model.Theme{Name: req.Name, NodeID: caller.NodeID, StageTitles: titles}
	if err := s.themeRepo.Create(ctx, t); err != nil {
		return nil, err
	}
	return &dto.ThemeResponse{
		ID:          t.ID.String(),
		Name:        t.Name,
		NodeID:      t.NodeID.String(),
		StageTitles: req.StageTitles,
	}, nil
}

func toNodeResponse(n *model.Node) dto.NodeResponse {
	return dto.NodeResponse{
		ID:            n.ID.String(),
		Type:          string(n.Type),
		Name:          n.Name,
		Image:         n.Image,
		Country:       n.Country,
		Latitude:      n.Latitude,
		Longitude:     n.Longitude,
		ConsentStatus: string(n.ConsentStatus),
	}
}

package repository

import (
	"context"

	"fairtrace/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NodeRepository covers nodes, their operations and supply chain catalogue
// data (supply chains, operations, products).
type NodeRepository interface {
	Create(ctx context.Context, n *model.Node) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Node, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Node, error)

	CreateSupplyChain(ctx context.Context, sc *model.SupplyChain) error
	CreateOperation(ctx context.Context, op *model.Operation) error
	SetPrimaryOperation(ctx context.Context, nodeID, supplyChainID, operationID uuid.UUID) error
	// PrimaryOperations resolves the operation of each node within one supply
	// chain. Nodes without one are absent from the map.
	PrimaryOperations(ctx context.Context, supplyChainID uuid.UUID, nodeIDs []uuid.UUID) (map[uuid.UUID]model.Operation, error)

	CreateProduct(ctx context.Context, p *model.Product) error
	FindProductByID(ctx context.Context, id uuid.UUID) (*model.Product, error)
	FindProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Product, error)
}

type nodeRepo struct{ db *gorm.DB }

func NewNodeRepository(db *gorm.DB) NodeRepository { return &nodeRepo{db: db} }

func (r *nodeRepo) Create(ctx context.Context, n *model.Node) error {
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *nodeRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Node, error) {
	var n model.Node
	err := r.db.WithContext(ctx).First(&n, "id = ?", id).Error
	return &n, err
}

func (r *nodeRepo) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Node, error) {
	var nodes []model.Node
	if len(ids) == 0 {
		return nodes, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("name ASC").Find(&nodes).Error
	return nodes, err
}

func (r *nodeRepo) CreateSupplyChain(ctx context.Context, sc *model.SupplyChain) error {
	return r.db.WithContext(ctx).Create(sc).Error
}

func (r *nodeRepo) CreateOperation(ctx context.Context, op *model.Operation) error {
	return r.db.WithContext(ctx).Create(op).Error
}

func (r *nodeRepo) SetPrimaryOperation(ctx context.Context, nodeID, supplyChainID, operationID uuid.UUID) error {
	row := model.NodeOperation{NodeID: nodeID, SupplyChainID: supplyChainID, OperationID: operationID}
	return r.db.WithContext(ctx).Omit("Operation").Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "node_id"}, {Name: "supply_chain_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"operation_id"}),
	}).Create(&row).Error
}

func (r *nodeRepo) PrimaryOperations(ctx context.Context, supplyChainID uuid.UUID, nodeIDs []uuid.UUID) (map[uuid.UUID]model.Operation, error) {
	out := make(map[uuid.UUID]model.Operation, len(nodeIDs))
	if len(nodeIDs) == 0 {
		return out, nil
	}
	var rows []model.NodeOperation
	err := r.db.WithContext(ctx).Preload("Operation").
		Where("supply_chain_id = ? AND node_id IN ?", supplyChainID, nodeIDs).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if row.Operation != nil {
			out[row.NodeID] = *row.Operation
		}
	}
	return out, nil
}

func (r *nodeRepo) CreateProduct(ctx context.Context, p *model.Product) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *nodeRepo) FindProductByID(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	var p model.Product
	err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error
	return &p, err
}

func (r *nodeRepo) FindProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Product, error) {
	var products []model.Product
	if len(ids) == 0 {
		return products, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("name ASC").Find(&products).Error
	return products, err
}

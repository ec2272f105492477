package repository

import (
	"context"

	"fairtrace/internal/graph"
	"fairtrace/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EdgeRepository hands out graph stores bound to a unit of work. Passing a
// nil tx binds the store to the repository's own connection.
type EdgeRepository interface {
	Store(tx *gorm.DB) graph.Store
}

type edgeRepo struct {
	db    *gorm.DB
	table string
}

// NewEdgeRepository returns the edge repository for one graph table
// (model.TransactionEdgesTable, model.BatchEdgesTable, model.ConnectionEdgesTable).
func NewEdgeRepository(db *gorm.DB, table string) EdgeRepository {
	return &edgeRepo{db: db, table: table}
}

func (r *edgeRepo) Store(tx *gorm.DB) graph.Store {
	if tx == nil {
		tx = r.db
	}
	return &EdgeStore{db: tx, table: r.table}
}

// EdgeStore is the gorm implementation of graph.Store. Frontier lookups are a
// single IN query per walk level.
type EdgeStore struct {
	db    *gorm.DB
	table string
}

var (
	_ graph.Store  = (*EdgeStore)(nil)
	_ graph.Locker = (*EdgeStore)(nil)
)

func (s *EdgeStore) Parents(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error) {
	var rows []model.Edge
	if len(ids) == 0 {
		return map[uuid.UUID][]uuid.UUID{}, nil
	}
	err := s.db.WithContext(ctx).Table(s.table).
		Where("child_id IN ?", ids).
		Order("parent_id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID][]uuid.UUID, len(ids))
	for _, e := range rows {
		out[e.ChildID] = append(out[e.ChildID], e.ParentID)
	}
	return out, nil
}

func (s *EdgeStore) Children(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error) {
	var rows []model.Edge
	if len(ids) == 0 {
		return map[uuid.UUID][]uuid.UUID{}, nil
	}
	err := s.db.WithContext(ctx).Table(s.table).
		Where("parent_id IN ?", ids).
		Order("child_id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID][]uuid.UUID, len(ids))
	for _, e := range rows {
		out[e.ParentID] = append(out[e.ParentID], e.ChildID)
	}
	return out, nil
}

func (s *EdgeStore) Link(ctx context.Context, parent, child uuid.UUID) error {
	return s.db.WithContext(ctx).Table(s.table).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.Edge{ParentID: parent, ChildID: child}).Error
}

func (s *EdgeStore) Unlink(ctx context.Context, parent, child uuid.UUID) error {
	return s.db.WithContext(ctx).Table(s.table).
		Where("parent_id = ? AND child_id = ?", parent, child).
		Delete(&model.Edge{}).Error
}

// Lock takes a transaction-scoped advisory lock keyed by the edge table, so
// every writer of one graph is serialised until its transaction ends. Other
// dialects (sqlite in tests) serialise writers on their own.
func (s *EdgeStore) Lock(ctx context.Context) error {
	if s.db.Dialector.Name() != "postgres" {
		return nil
	}
	return s.db.WithContext(ctx).Exec("SELECT pg_advisory_xact_lock(hashtext(?))", s.table).Error
}

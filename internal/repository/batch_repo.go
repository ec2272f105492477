package repository

import (
	"context"
	"errors"

	"fairtrace/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErrInsufficientQuantity is returned when a consume would take a batch below
// zero. Nothing is written in that case.
var ErrInsufficientQuantity = errors.New("insufficient batch quantity")

type BatchRepository interface {
	Create(ctx context.Context, tx *gorm.DB, b *model.Batch) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Batch, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Batch, error)
	// FindByTransactionIDs returns the batches produced by the given transactions.
	FindByTransactionIDs(ctx context.Context, txnIDs []uuid.UUID) ([]model.Batch, error)
	ListByNode(ctx context.Context, nodeID uuid.UUID, includeArchived bool) ([]model.Batch, error)
	// ConsumeTx atomically subtracts quantity. The row is only updated when it
	// still holds at least quantity; otherwise ErrInsufficientQuantity.
	ConsumeTx(ctx context.Context, tx *gorm.DB, id uuid.UUID, quantity decimal.Decimal) error
	Archive(ctx context.Context, id uuid.UUID) error
	NextNumber(ctx context.Context, tx *gorm.DB) (int64, error)
	DB() *gorm.DB
}

type batchRepo struct{ db *gorm.DB }

func NewBatchRepository(db *gorm.DB) BatchRepository { return &batchRepo{db: db} }

func (r *batchRepo) DB() *gorm.DB { return r.db }

func (r *batchRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

// Create inserts b, numbering it first when b.Number is zero.
func (r *batchRepo) Create(ctx context.Context, tx *gorm.DB, b *model.Batch) error {
	if b.Number == 0 {
		num, err := r.NextNumber(ctx, tx)
		if err != nil {
			return err
		}
		b.Number = num
	}
	return r.conn(tx).WithContext(ctx).Create(b).Error
}

func (r *batchRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Batch, error) {
	var b model.Batch
	err := r.db.WithContext(ctx).Preload("Node").Preload("Product").First(&b, "id = ?", id).Error
	return &b, err
}

func (r *batchRepo) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Batch, error) {
	var batches []model.Batch
	if len(ids) == 0 {
		return batches, nil
	}
	err := r.db.WithContext(ctx).Preload("Node").Preload("Product").
		Where("id IN ?", ids).Order("number ASC").Find(&batches).Error
	return batches, err
}

func (r *batchRepo) FindByTransactionIDs(ctx context.Context, txnIDs []uuid.UUID) ([]model.Batch, error) {
	var batches []model.Batch
	if len(txnIDs) == 0 {
		return batches, nil
	}
	err := r.db.WithContext(ctx).Preload("Product").
		Where("source_transaction_id IN ?", txnIDs).Order("number ASC").Find(&batches).Error
	return batches, err
}

func (r *batchRepo) ListByNode(ctx context.Context, nodeID uuid.UUID, includeArchived bool) ([]model.Batch, error) {
	var batches []model.Batch
	q := r.db.WithContext(ctx).Preload("Product").Where("node_id = ?", nodeID)
	if !includeArchived {
		q = q.Where("archived = ?", false)
	}
	err := q.Order("created_at DESC").Find(&batches).Error
	return batches, err
}

func (r *batchRepo) ConsumeTx(ctx context.Context, tx *gorm.DB, id uuid.UUID, quantity decimal.Decimal) error {
	res := r.conn(tx).WithContext(ctx).Model(&model.Batch{}).
		Where("id = ? AND current_quantity >= ?", id, quantity).
		Update("current_quantity", gorm.Expr("current_quantity - ?", quantity))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInsufficientQuantity
	}
	return nil
}

func (r *batchRepo) Archive(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Model(&model.Batch{}).Where("id = ?", id).Update("archived", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// NextNumber draws from batches_number_seq on postgres. Other dialects
// serialise writers, so the next free number is read from the table.
func (r *batchRepo) NextNumber(ctx context.Context, tx *gorm.DB) (int64, error) {
	return nextNumber(ctx, r.conn(tx), "batches")
}

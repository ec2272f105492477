package repository

import (
	"context"
	"time"

	"fairtrace/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TransactionRepository interface {
	Create(ctx context.Context, tx *gorm.DB, t *model.Transaction) error
	CreateSourceBatchesTx(ctx context.Context, tx *gorm.DB, rows []model.SourceBatch) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Transaction, error)
	// FindByIDs loads transactions with their source and result batches.
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Transaction, error)
	NextNumber(ctx context.Context, tx *gorm.DB) (int64, error)

	// Blockchain logging
	ListPendingBlockchain(ctx context.Context, now time.Time, limit int) ([]model.Transaction, error)
	UpdateBlockchain(ctx context.Context, id uuid.UUID, u BlockchainUpdate) error

	DB() *gorm.DB
}

// BlockchainUpdate is the outcome of one submission attempt.
type BlockchainUpdate struct {
	Status        model.BlockchainStatus
	Address       *string
	Retries       int
	NextAttemptAt *time.Time
}

type transactionRepo struct{ db *gorm.DB }

func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &transactionRepo{db: db}
}

func (r *transactionRepo) DB() *gorm.DB { return r.db }

func (r *transactionRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

// Create inserts t, numbering it first when t.Number is zero.
func (r *transactionRepo) Create(ctx context.Context, tx *gorm.DB, t *model.Transaction) error {
	if t.Number == 0 {
		num, err := r.NextNumber(ctx, tx)
		if err != nil {
			return err
		}
		t.Number = num
	}
	return r.conn(tx).WithContext(ctx).Omit("SourceBatches", "ResultBatches").Create(t).Error
}

func (r *transactionRepo) CreateSourceBatchesTx(ctx context.Context, tx *gorm.DB, rows []model.SourceBatch) error {
	if len(rows) == 0 {
		return nil
	}
	return r.conn(tx).WithContext(ctx).Omit("Batch").Create(&rows).Error
}

func (r *transactionRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Transaction, error) {
	var t model.Transaction
	err := r.db.WithContext(ctx).
		Preload("SourceBatches.Batch.Product").
		Preload("ResultBatches.Product").
		First(&t, "id = ?", id).Error
	return &t, err
}

func (r *transactionRepo) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Transaction, error) {
	var txns []model.Transaction
	if len(ids) == 0 {
		return txns, nil
	}
	err := r.db.WithContext(ctx).
		Preload("SourceBatches.Batch.Product").
		Preload("ResultBatches.Product").
		Where("id IN ?", ids).
		Order("date ASC, number ASC").
		Find(&txns).Error
	return txns, err
}

func (r *transactionRepo) NextNumber(ctx context.Context, tx *gorm.DB) (int64, error) {
	return nextNumber(ctx, r.conn(tx), "transactions")
}

// ListPendingBlockchain returns pending transactions whose retry is due.
func (r *transactionRepo) ListPendingBlockchain(ctx context.Context, now time.Time, limit int) ([]model.Transaction, error) {
	var txns []model.Transaction
	err := r.db.WithContext(ctx).
		Where("blockchain_status = ? AND blockchain_next_attempt IS NOT NULL AND blockchain_next_attempt <= ?",
			model.BlockchainPending, now).
		Order("blockchain_next_attempt ASC").
		Limit(limit).
		Find(&txns).Error
	return txns, err
}

func (r *transactionRepo) UpdateBlockchain(ctx context.Context, id uuid.UUID, u BlockchainUpdate) error {
	return r.db.WithContext(ctx).Model(&model.Transaction{}).Where("id = ?", id).Updates(map[string]interface{}{
		"blockchain_status":       u.Status,
		"blockchain_address":      u.Address,
		"blockchain_retries":      u.Retries,
		"blockchain_next_attempt": u.NextAttemptAt,
	}).Error
}

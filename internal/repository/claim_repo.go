package repository

import (
	"context"
	"errors"

	"fairtrace/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ClaimRepository interface {
	Create(ctx context.Context, c *model.Claim) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Claim, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Claim, error)

	// AttachToBatchTx upserts a batch claim by (batch, claim) and replaces its
	// field responses.
	AttachToBatchTx(ctx context.Context, tx *gorm.DB, a *model.AttachedBatchClaim) error
	AttachToNode(ctx context.Context, a *model.AttachedCompanyClaim) error

	// BatchClaims returns the claims attached to the given batches with their
	// claim definitions and field responses.
	BatchClaims(ctx context.Context, batchIDs []uuid.UUID) ([]model.AttachedBatchClaim, error)
	// ApprovedCompanyClaims returns approved node claims keyed by node.
	ApprovedCompanyClaims(ctx context.Context, nodeIDs []uuid.UUID) (map[uuid.UUID][]model.Claim, error)
	// PinnedClaimIDs returns the claims referenced by stock requests for the
	// given batches.
	PinnedClaimIDs(ctx context.Context, batchIDs []uuid.UUID) (map[uuid.UUID]struct{}, error)
	CreateStockRequest(ctx context.Context, sr *model.StockRequest) error
}

type claimRepo struct{ db *gorm.DB }

func NewClaimRepository(db *gorm.DB) ClaimRepository { return &claimRepo{db: db} }

func (r *claimRepo) Create(ctx context.Context, c *model.Claim) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *claimRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Claim, error) {
	var c model.Claim
	err := r.db.WithContext(ctx).Preload("Criteria.Fields").First(&c, "id = ?", id).Error
	return &c, err
}

func (r *claimRepo) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Claim, error) {
	var claims []model.Claim
	if len(ids) == 0 {
		return claims, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("name ASC").Find(&claims).Error
	return claims, err
}

func (r *claimRepo) AttachToBatchTx(ctx context.Context, tx *gorm.DB, a *model.AttachedBatchClaim) error {
	db := tx
	if db == nil {
		db = r.db
	}
	db = db.WithContext(ctx)

	var existing model.AttachedBatchClaim
	err := db.Where("batch_id = ? AND claim_id = ?", a.BatchID, a.ClaimID).Take(&existing).Error
	switch {
	case err == nil:
		a.ID = existing.ID
		if err := db.Model(&existing).Updates(map[string]interface{}{
			"status":                  a.Status,
			"verification_percentage": a.VerificationPercentage,
			"attached_from":           a.AttachedFrom,
			"removable":               a.Removable,
		}).Error; err != nil {
			return err
		}
		if err := db.Where("attached_claim_id = ?", a.ID).Delete(&model.FieldResponse{}).Error; err != nil {
			return err
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := db.Omit("Claim", "Responses").Create(a).Error; err != nil {
			return err
		}
	default:
		return err
	}

	if len(a.Responses) == 0 {
		return nil
	}
	for i := range a.Responses {
		a.Responses[i].ID = uuid.Nil
		a.Responses[i].AttachedClaimID = a.ID
	}
	return db.Create(&a.Responses).Error
}

func (r *claimRepo) AttachToNode(ctx context.Context, a *model.AttachedCompanyClaim) error {
	return r.db.WithContext(ctx).Omit("Claim").Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "node_id"}, {Name: "claim_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status"}),
	}).Create(a).Error
}

func (r *claimRepo) BatchClaims(ctx context.Context, batchIDs []uuid.UUID) ([]model.AttachedBatchClaim, error) {
	var rows []model.AttachedBatchClaim
	if len(batchIDs) == 0 {
		return rows, nil
	}
	err := r.db.WithContext(ctx).
		Preload("Claim").
		Preload("Responses", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Where("batch_id IN ?", batchIDs).
		Find(&rows).Error
	return rows, err
}

func (r *claimRepo) ApprovedCompanyClaims(ctx context.Context, nodeIDs []uuid.UUID) (map[uuid.UUID][]model.Claim, error) {
	out := make(map[uuid.UUID][]model.Claim)
	if len(nodeIDs) == 0 {
		return out, nil
	}
	var rows []model.AttachedCompanyClaim
	err := r.db.WithContext(ctx).Preload("Claim").
		Where("node_id IN ? AND status = ?", nodeIDs, model.ClaimApproved).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if row.Claim != nil {
			out[row.NodeID] = append(out[row.NodeID], *row.Claim)
		}
	}
	return out, nil
}

func (r *claimRepo) PinnedClaimIDs(ctx context.Context, batchIDs []uuid.UUID) (map[uuid.UUID]struct{}, error) {
	out := make(map[uuid.UUID]struct{})
	if len(batchIDs) == 0 {
		return out, nil
	}
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Table("stock_request_claims").
		Joins("JOIN stock_requests ON stock_requests.id = stock_request_claims.stock_request_id").
		Where("stock_requests.batch_id IN ?", batchIDs).
		Distinct().
		Pluck("stock_request_claims.claim_id", &ids).Error
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}

func (r *claimRepo) CreateStockRequest(ctx context.Context, sr *model.StockRequest) error {
	return r.db.WithContext(ctx).Create(sr).Error
}

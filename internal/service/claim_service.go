package service

import (
	"context"
	"errors"
	"fmt"

	"fairtrace/internal/dto"
	"fairtrace/internal/model"
	"fairtrace/internal/repository"
	"fairtrace/internal/trace"
	"fairtrace/internal/worker"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ClaimService interface {
	CreateClaim(ctx context.Context, req dto.CreateClaimRequest) (*dto.ClaimResponse, error)
	Attach(ctx context.Context, caller Caller, req dto.AttachClaimRequest) (*dto.AttachedClaimResponse, error)
	InheritablePreview(ctx context.Context, caller Caller, req dto.InheritableClaimsRequest) ([]dto.InheritedClaimResponse, error)
	CreateStockRequest(ctx context.Context, caller Caller, req dto.CreateStockRequestRequest) (*dto.StockRequestResponse, error)

	// LoadClaimSources reads the claims and pins of the given source batches.
	// It runs before the write transaction opens.
	LoadClaimSources(ctx context.Context, batchIDs []uuid.UUID) (*ClaimSources, error)
	// InheritTx attaches the claims inherited from contribs to dest within tx.
	InheritTx(ctx context.Context, tx *gorm.DB, sources *ClaimSources, contribs []model.SourceBatch, dest model.Batch) ([]*trace.ClaimInconsistency, error)
}

// ClaimSources holds the claim state of a set of source batches.
type ClaimSources struct {
	claims map[uuid.UUID][]model.AttachedBatchClaim
	pinned map[uuid.UUID]struct{}
}

// Contributions pairs each consumed row with its batch's claims. Rows must
// have Batch set.
func (s *ClaimSources) Contributions(rows []model.SourceBatch) []trace.Contribution {
	out := make([]trace.Contribution, 0, len(rows))
	for _, r := range rows {
		c := trace.Contribution{BatchID: r.BatchID, Quantity: r.Quantity}
		if r.Batch != nil {
			c.ProductID = r.Batch.ProductID
		}
		if s != nil {
			c.Claims = s.claims[r.BatchID]
		}
		out = append(out, c)
	}
	return out
}

type claimService struct {
	repo       repository.ClaimRepository
	batchRepo  repository.BatchRepository
	nodeRepo   repository.NodeRepository
	dispatcher *worker.Dispatcher
}

func NewClaimService(
	repo repository.ClaimRepository,
	batchRepo repository.BatchRepository,
	nodeRepo repository.NodeRepository,
	dispatcher *worker.Dispatcher,
) ClaimService {
	return &claimService{repo: repo, batchRepo: batchRepo, nodeRepo: nodeRepo, dispatcher: dispatcher}
}

// ── CreateClaim ───────────────────────────────────────────────────────────────

func (s *claimService) CreateClaim(ctx context.Context, req dto.CreateClaimRequest) (*dto.ClaimResponse, error) {
	c := &model.Claim{
		Name:         req.Name,
		Description:  req.Description,
		Image:        req.Image,
		Inheritable:  model.Inheritable(req.Inheritable),
		Proportional: req.Proportional,
		Removable:    true,
	}
	if req.Removable != nil {
		c.Removable = *req.Removable
	}
	for _, cr := range req.Criteria {
		crit := model.Criterion{Name: cr.Name}
		for _, title := range cr.Fields {
			crit.Fields = append(crit.Fields, model.CriterionField{Title: title})
		}
		c.Criteria = append(c.Criteria, crit)
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	return toClaimResponse(c), nil
}

// ── Attach ────────────────────────────────────────────────────────────────────

// Attach records a claim on a batch or a node. Batch claims can only be
// attached by the batch owner; node claims by the node itself or an admin.
func (s *claimService) Attach(ctx context.Context, caller Caller, req dto.AttachClaimRequest) (*dto.AttachedClaimResponse, error) {
	targetID, err := uuid.Parse(req.TargetID)
	if err != nil {
		return nil, fmt.Errorf("%w: target_id", ErrInvalidInput)
	}
	target := model.ClaimTarget{Kind: model.TargetKind(req.TargetKind), ID: targetID}
	if err := target.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	claimID, err := uuid.Parse(req.ClaimID)
	if err != nil {
		return nil, fmt.Errorf("%w: claim_id", ErrInvalidInput)
	}
	claim, err := s.repo.FindByID(ctx, claimID)
	if err != nil {
		return nil, err
	}

	status := model.ClaimPending
	if req.Status != "" {
		status = model.ClaimStatus(req.Status)
	}

	var resp *dto.AttachedClaimResponse
	switch target.Kind {
	case model.TargetBatch:
		resp, err = s.attachToBatch(ctx, caller, target.ID, claim, status, req)
	case model.TargetNode:
		resp, err = s.attachToNode(ctx, caller, target.ID, claim, status)
	}
	if err != nil {
		return nil, err
	}

	if s.dispatcher != nil {
		payload := worker.BlockchainJobPayload{Kind: "claim", ID: resp.ID, NodeID: caller.NodeID.String(), Status: resp.Status}
		if err := s.dispatcher.EnqueueBlockchain(ctx, payload); err != nil {
			log.Warn().Err(err).Str("claim_id", resp.ClaimID).Msg("claim_service: failed to enqueue blockchain log")
		}
	}
	return resp, nil
}

func (s *claimService) attachToBatch(ctx context.Context, caller Caller, batchID uuid.UUID, claim *model.Claim, status model.ClaimStatus, req dto.AttachClaimRequest) (*dto.AttachedClaimResponse, error) {
	batch, err := s.batchRepo.FindByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.NodeID != caller.NodeID && !caller.Admin {
		return nil, ErrForbidden
	}
	pinned, err := s.repo.PinnedClaimIDs(ctx, []uuid.UUID{batchID})
	if err != nil {
		return nil, err
	}
	_, isPinned := pinned[claim.ID]

	pct := 0.0
	if status == model.ClaimApproved {
		pct = 100
	}
	if req.VerificationPercentage != nil {
		pct = *req.VerificationPercentage
	}

	a := &model.AttachedBatchClaim{
		BatchID:                batchID,
		ClaimID:                claim.ID,
		Status:                 status,
		VerificationPercentage: pct,
		AttachedFrom:           model.AttachedDirect,
		Removable:              !isPinned && claim.Removable,
	}
	for _, r := range req.Responses {
		critID, err1 := uuid.Parse(r.CriterionID)
		fieldID, err2 := uuid.Parse(r.FieldID)
		if err := errors.Join(err1, err2); err != nil {
			return nil, fmt.Errorf("%w: response ids", ErrInvalidInput)
		}
		if !claim.HasField(critID, fieldID) {
			return nil, fmt.Errorf("%w: field %s is not part of claim %s", ErrInvalidInput, fieldID, claim.Name)
		}
		a.Responses = append(a.Responses, model.FieldResponse{
			CriterionID: critID,
			FieldID:     fieldID,
			AddedBy:     caller.NodeID,
			Response:    r.Response,
		})
	}
	if err := s.repo.AttachToBatchTx(ctx, nil, a); err != nil {
		return nil, err
	}
	return &dto.AttachedClaimResponse{
		ID:                     a.ID.String(),
		TargetKind:             string(model.TargetBatch),
		TargetID:               batchID.String(),
		ClaimID:                claim.ID.String(),
		Status:                 string(a.Status),
		VerificationPercentage: a.VerificationPercentage,
		AttachedFrom:           string(a.AttachedFrom),
		Removable:              a.Removable,
	}, nil
}

func (s *claimService) attachToNode(ctx context.Context, caller Caller, nodeID uuid.UUID, claim *model.Claim, status model.ClaimStatus) (*dto.AttachedClaimResponse, error) {
	if nodeID != caller.NodeID && !caller.Admin {
		return nil, ErrForbidden
	}
	if _, err := s.nodeRepo.FindByID(ctx, nodeID); err != nil {
		return nil, err
	}
	a := &model.AttachedCompanyClaim{NodeID: nodeID, ClaimID: claim.ID, Status: status}
	if err := s.repo.AttachToNode(ctx, a); err != nil {
		return nil, err
	}
	return &dto.AttachedClaimResponse{
		ID:         a.ID.String(),
		TargetKind: string(model.TargetNode),
		TargetID:   nodeID.String(),
		ClaimID:    claim.ID.String(),
		Status:     string(a.Status),
		Removable:  claim.Removable,
	}, nil
}

// ── Inheritance ───────────────────────────────────────────────────────────────

func (s *claimService) LoadClaimSources(ctx context.Context, batchIDs []uuid.UUID) (*ClaimSources, error) {
	attached, err := s.repo.BatchClaims(ctx, batchIDs)
	if err != nil {
		return nil, fmt.Errorf("load batch claims: %w", err)
	}
	pinned, err := s.repo.PinnedClaimIDs(ctx, batchIDs)
	if err != nil {
		return nil, fmt.Errorf("load pinned claims: %w", err)
	}
	src := &ClaimSources{claims: make(map[uuid.UUID][]model.AttachedBatchClaim), pinned: pinned}
	for _, a := range attached {
		src.claims[a.BatchID] = append(src.claims[a.BatchID], a)
	}
	return src, nil
}

func (s *claimService) InheritTx(ctx context.Context, tx *gorm.DB, sources *ClaimSources, contribs []model.SourceBatch, dest model.Batch) ([]*trace.ClaimInconsistency, error) {
	var pinned map[uuid.UUID]struct{}
	if sources != nil {
		pinned = sources.pinned
	}
	inherited, issues := trace.InheritClaims(sources.Contributions(contribs), []uuid.UUID{dest.ProductID}, pinned)
	for _, ic := range inherited {
		a := ic.Attachment(dest.ID)
		if err := s.repo.AttachToBatchTx(ctx, tx, &a); err != nil {
			return nil, fmt.Errorf("attach inherited claim %s: %w", ic.Claim.ID, err)
		}
	}
	return issues, nil
}

// InheritablePreview answers "which claims would a batch made from these
// sources carry" without writing anything.
func (s *claimService) InheritablePreview(ctx context.Context, caller Caller, req dto.InheritableClaimsRequest) ([]dto.InheritedClaimResponse, error) {
	rows, batches, err := s.resolveSources(ctx, caller, req.SourceBatches)
	if err != nil {
		return nil, err
	}

	var dest []uuid.UUID
	if req.DestinationProductID != nil {
		id, err := uuid.Parse(*req.DestinationProductID)
		if err != nil {
			return nil, fmt.Errorf("%w: destination_product_id", ErrInvalidInput)
		}
		dest = []uuid.UUID{id}
	} else {
		seen := make(map[uuid.UUID]struct{})
		for _, b := range batches {
			if _, ok := seen[b.ProductID]; !ok {
				seen[b.ProductID] = struct{}{}
				dest = append(dest, b.ProductID)
			}
		}
	}

	ids := make([]uuid.UUID, 0, len(batches))
	for _, b := range batches {
		ids = append(ids, b.ID)
	}
	sources, err := s.LoadClaimSources(ctx, ids)
	if err != nil {
		return nil, err
	}

	inherited, _ := trace.InheritClaims(sources.Contributions(rows), dest, sources.pinned)
	out := make([]dto.InheritedClaimResponse, 0, len(inherited))
	for _, ic := range inherited {
		n := 0
		for _, e := range ic.Evidence {
			n += len(e.Values)
		}
		out = append(out, dto.InheritedClaimResponse{
			ClaimID:                ic.Claim.ID.String(),
			Name:                   ic.Claim.Name,
			Status:                 string(ic.Status),
			VerificationPercentage: ic.VerificationPercentage,
			Removable:              ic.Removable,
			EvidenceCount:          n,
		})
	}
	return out, nil
}

// resolveSources loads the requested source batches, checks the caller owns
// them and returns consumption rows with Batch set.
func (s *claimService) resolveSources(ctx context.Context, caller Caller, reqs []dto.SourceBatchRequest) ([]model.SourceBatch, map[uuid.UUID]*model.Batch, error) {
	return loadSources(ctx, s.batchRepo, caller, reqs)
}

// ── Stock requests ────────────────────────────────────────────────────────────

func (s *claimService) CreateStockRequest(ctx context.Context, caller Caller, req dto.CreateStockRequestRequest) (*dto.StockRequestResponse, error) {
	ids := make([]uuid.UUID, 0, len(req.ClaimIDs))
	for _, raw := range req.ClaimIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: claim id %q", ErrInvalidInput, raw)
		}
		ids = append(ids, id)
	}
	claims, err := s.repo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(claims) != len(dedupe(ids)) {
		return nil, fmt.Errorf("%w: unknown claim", ErrInvalidInput)
	}

	sr := &model.StockRequest{NodeID: caller.NodeID, Claims: claims}
	if req.BatchID != nil {
		id, err := uuid.Parse(*req.BatchID)
		if err != nil {
			return nil, fmt.Errorf("%w: batch_id", ErrInvalidInput)
		}
		if _, err := s.batchRepo.FindByID(ctx, id); err != nil {
			return nil, err
		}
		sr.BatchID = &id
	}
	if err := s.repo.CreateStockRequest(ctx, sr); err != nil {
		return nil, err
	}

	resp := &dto.StockRequestResponse{ID: sr.ID.String(), NodeID: sr.NodeID.String(), ClaimIDs: make([]string, 0, len(claims))}
	if sr.BatchID != nil {
		b := sr.BatchID.String()
		resp.BatchID = &b
	}
	for _, c := range claims {
		resp.ClaimIDs = append(resp.ClaimIDs, c.ID.String())
	}
	return resp, nil
}

// ── helpers ───────────────────────────────────────────────────────────────────

func toClaimResponse(c *model.Claim) *dto.ClaimResponse {
	resp := &dto.ClaimResponse{
		ID:           c.ID.String(),
		Name:         c.Name,
		Description:  c.Description,
		Image:        c.Image,
		Inheritable:  string(c.Inheritable),
		Proportional: c.Proportional,
		Removable:    c.Removable,
		Criteria:     make([]dto.CriterionResponse, 0, len(c.Criteria)),
	}
	for _, cr := range c.Criteria {
		cresp := dto.CriterionResponse{ID: cr.ID.String(), Name: cr.Name, Fields: make([]dto.FieldResponse, 0, len(cr.Fields))}
		for _, f := range cr.Fields {
			cresp.Fields = append(cresp.Fields, dto.FieldResponse{ID: f.ID.String(), Title: f.Title})
		}
		resp.Criteria = append(resp.Criteria, cresp)
	}
	return resp
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func sumQuantities(rows []model.SourceBatch) decimal.Decimal {
	total := decimal.Zero
	for _, r := range rows {
		total = total.Add(r.Quantity)
	}
	return total
}

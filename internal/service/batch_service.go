package service

import (
	"context"
	"fmt"
	"time"

	"fairtrace/internal/dto"
	"fairtrace/internal/graph"
	"fairtrace/internal/model"
	"fairtrace/internal/repository"
	"fairtrace/internal/trace"
	"fairtrace/internal/worker"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type BatchService interface {
	CreateBatch(ctx context.Context, caller Caller, req dto.CreateBatchRequest) (*dto.BatchResponse, error)
	GetBatch(ctx context.Context, caller Caller, id uuid.UUID) (*dto.BatchResponse, error)
	ListBatches(ctx context.Context, caller Caller, filter dto.ListBatchesFilter) ([]dto.BatchResponse, error)
	ArchiveBatch(ctx context.Context, caller Caller, id uuid.UUID) error
	// Consume takes quantity out of a batch outside any transaction record
	// (stock corrections). It fails without writing when the batch holds less.
	Consume(ctx context.Context, caller Caller, id uuid.UUID, quantity decimal.Decimal) error

	CreateExternalTransaction(ctx context.Context, caller Caller, req dto.ExternalTransactionRequest) (*dto.TransactionResponse, error)
	CreateInternalTransaction(ctx context.Context, caller Caller, req dto.InternalTransactionRequest) (*dto.TransactionResponse, error)
	GetTransaction(ctx context.Context, caller Caller, id uuid.UUID) (*dto.TransactionResponse, error)
}

type batchService struct {
	batchRepo  repository.BatchRepository
	txnRepo    repository.TransactionRepository
	nodeRepo   repository.NodeRepository
	claims     ClaimService
	txnEdges   repository.EdgeRepository
	batchEdges repository.EdgeRepository
	txnGraph   *graph.Graph
	batchGraph *graph.Graph
	reporter   Reporter
	dispatcher *worker.Dispatcher
}

// BatchServiceDeps groups the collaborators of NewBatchService.
type BatchServiceDeps struct {
	BatchRepo  repository.BatchRepository
	TxnRepo    repository.TransactionRepository
	NodeRepo   repository.NodeRepository
	Claims     ClaimService
	TxnEdges   repository.EdgeRepository
	BatchEdges repository.EdgeRepository
	TxnGraph   *graph.Graph
	BatchGraph *graph.Graph
	Reporter   Reporter
	Dispatcher *worker.Dispatcher
}

func NewBatchService(d BatchServiceDeps) BatchService {
	return &batchService{
		batchRepo:  d.BatchRepo,
		txnRepo:    d.TxnRepo,
		nodeRepo:   d.NodeRepo,
		claims:     d.Claims,
		txnEdges:   d.TxnEdges,
		batchEdges: d.BatchEdges,
		txnGraph:   d.TxnGraph,
		batchGraph: d.BatchGraph,
		reporter:   d.Reporter,
		dispatcher: d.Dispatcher,
	}
}

// ── Batches ───────────────────────────────────────────────────────────────────

func (s *batchService) CreateBatch(ctx context.Context, caller Caller, req dto.CreateBatchRequest) (*dto.BatchResponse, error) {
	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		return nil, fmt.Errorf("%w: product_id", ErrInvalidInput)
	}
	if !req.Quantity.IsPositive() {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)
	}
	product, err := s.nodeRepo.FindProductByID(ctx, productID)
	if err != nil {
		return nil, err
	}

	b := &model.Batch{
		NodeID:          caller.NodeID,
		ProductID:       product.ID,
		Unit:            unitOr(req.Unit, "kg"),
		InitialQuantity: req.Quantity,
		CurrentQuantity: req.Quantity,
		ExternalSource:  req.ExternalSource,
	}
	err = runTx(ctx, s.batchRepo.DB(), func(tx *gorm.DB) error {
		return s.batchRepo.Create(ctx, tx, b)
	})
	if err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}
	b.Product = product
	resp := toBatchResponse(b)
	return &resp, nil
}

func (s *batchService) GetBatch(ctx context.Context, caller Caller, id uuid.UUID) (*dto.BatchResponse, error) {
	b, err := s.batchRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.NodeID != caller.NodeID && !caller.Admin {
		return nil, ErrForbidden
	}
	resp := toBatchResponse(b)
	return &resp, nil
}

func (s *batchService) ListBatches(ctx context.Context, caller Caller, filter dto.ListBatchesFilter) ([]dto.BatchResponse, error) {
	batches, err := s.batchRepo.ListByNode(ctx, caller.NodeID, filter.IncludeArchived)
	if err != nil {
		return nil, err
	}
	out := make([]dto.BatchResponse, len(batches))
	for i := range batches {
		out[i] = toBatchResponse(&batches[i])
	}
	return out, nil
}

func (s *batchService) ArchiveBatch(ctx context.Context, caller Caller, id uuid.UUID) error {
	b, err := s.batchRepo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if b.NodeID != caller.NodeID {
		return ErrForbidden
	}
	return s.batchRepo.Archive(ctx, id)
}

func (s *batchService) Consume(ctx context.Context, caller Caller, id uuid.UUID, quantity decimal.Decimal) error {
	if !quantity.IsPositive() {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)
	}
	b, err := s.batchRepo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if b.NodeID != caller.NodeID {
		return ErrForbidden
	}
	return runTx(ctx, s.batchRepo.DB(), func(tx *gorm.DB) error {
		if err := s.batchRepo.ConsumeTx(ctx, tx, id, quantity); err != nil {
			return fmt.Errorf("batch %s: %w", id, err)
		}
		return nil
	})
}

// ── Transactions ──────────────────────────────────────────────────────────────
// Both transaction kinds share one write path:
//   1. load and check the sources, their claims and pins (before the tx)
//   2. BEGIN: number + insert the transaction, consume every source
//      atomically, insert SourceBatch rows, link transaction edges to the
//      transactions that produced the sources
//   3. create each result batch, link its batch edges, inherit claims
//   4. COMMIT, then report inconsistencies and enqueue the blockchain log

// plannedResult is a batch to create and the consumed rows it derives from.
type plannedResult struct {
	batch   model.Batch
	parents []model.SourceBatch
}

func (s *batchService) CreateExternalTransaction(ctx context.Context, caller Caller, req dto.ExternalTransactionRequest) (*dto.TransactionResponse, error) {
	destID, err := uuid.Parse(req.DestinationNodeID)
	if err != nil {
		return nil, fmt.Errorf("%w: destination_node_id", ErrInvalidInput)
	}
	if destID == caller.NodeID {
		return nil, fmt.Errorf("%w: destination must be another node", ErrInvalidInput)
	}
	if _, err := s.nodeRepo.FindByID(ctx, destID); err != nil {
		return nil, fmt.Errorf("destination node: %w", err)
	}

	rows, batches, err := loadSources(ctx, s.batchRepo, caller, req.SourceBatches)
	if err != nil {
		return nil, err
	}

	var override *uuid.UUID
	if req.ProductID != nil {
		id, err := uuid.Parse(*req.ProductID)
		if err != nil {
			return nil, fmt.Errorf("%w: product_id", ErrInvalidInput)
		}
		if _, err := s.nodeRepo.FindProductByID(ctx, id); err != nil {
			return nil, fmt.Errorf("product: %w", err)
		}
		override = &id
	}

	var results []plannedResult
	if req.SendSeparately {
		for _, r := range rows {
			product := r.Batch.ProductID
			if override != nil {
				product = *override
			}
			results = append(results, plannedResult{
				batch: model.Batch{
					NodeID:          destID,
					ProductID:       product,
					Unit:            unitOr(req.Unit, r.Batch.Unit),
					InitialQuantity: r.Quantity,
					CurrentQuantity: r.Quantity,
				},
				parents: []model.SourceBatch{r},
			})
		}
	} else {
		var product uuid.UUID
		switch {
		case override != nil:
			product = *override
		default:
			products := (&model.Transaction{SourceBatches: rows}).SourceProducts()
			if len(products) != 1 {
				return nil, fmt.Errorf("%w: product_id is required when sources hold different products", ErrInvalidInput)
			}
			product = products[0]
		}
		qty := sumQuantities(rows)
		if req.DestinationQuantity != nil {
			if !req.DestinationQuantity.IsPositive() {
				return nil, fmt.Errorf("%w: destination_quantity must be positive", ErrInvalidInput)
			}
			qty = *req.DestinationQuantity
		}
		results = []plannedResult{{
			batch: model.Batch{
				NodeID:          destID,
				ProductID:       product,
				Unit:            unitOr(req.Unit, rows[0].Batch.Unit),
				InitialQuantity: qty,
				CurrentQuantity: qty,
			},
			parents: rows,
		}}
	}

	src := caller.NodeID
	txn := &model.Transaction{
		Kind:              model.TransactionExternal,
		Date:              dateOr(req.Date),
		CreatorID:         &caller.UserID,
		SourceNodeID:      &src,
		DestinationNodeID: &destID,
	}
	return s.commit(ctx, txn, rows, batches, results)
}

func (s *batchService) CreateInternalTransaction(ctx context.Context, caller Caller, req dto.InternalTransactionRequest) (*dto.TransactionResponse, error) {
	rows, batches, err := loadSources(ctx, s.batchRepo, caller, req.SourceBatches)
	if err != nil {
		return nil, err
	}
	kind := model.InternalType(req.Type)
	total := sumQuantities(rows)
	sourceProducts := (&model.Transaction{SourceBatches: rows}).SourceProducts()

	results := make([]plannedResult, 0, len(req.Results))
	resultTotal := decimal.Zero
	for _, r := range req.Results {
		pid, err := uuid.Parse(r.ProductID)
		if err != nil {
			return nil, fmt.Errorf("%w: result product_id", ErrInvalidInput)
		}
		if !r.Quantity.IsPositive() {
			return nil, fmt.Errorf("%w: result quantity must be positive", ErrInvalidInput)
		}
		resultTotal = resultTotal.Add(r.Quantity)
		results = append(results, plannedResult{
			batch: model.Batch{
				NodeID:          caller.NodeID,
				ProductID:       pid,
				Unit:            unitOr(r.Unit, rows[0].Batch.Unit),
				InitialQuantity: r.Quantity,
				CurrentQuantity: r.Quantity,
			},
			parents: rows,
		})
	}

	switch kind {
	case model.InternalLoss:
		if len(results) > 0 {
			return nil, fmt.Errorf("%w: loss transactions produce no batches", ErrInvalidInput)
		}
	case model.InternalMerge, model.InternalSplit:
		if len(sourceProducts) != 1 {
			return nil, fmt.Errorf("%w: %s requires sources of a single product", ErrInvalidInput, kind)
		}
		if kind == model.InternalMerge && len(results) == 0 {
			results = append(results, plannedResult{
				batch: model.Batch{
					NodeID:          caller.NodeID,
					ProductID:       sourceProducts[0],
					Unit:            rows[0].Batch.Unit,
					InitialQuantity: total,
					CurrentQuantity: total,
				},
				parents: rows,
			})
			resultTotal = total
		}
		if kind == model.InternalMerge && len(results) != 1 {
			return nil, fmt.Errorf("%w: merge produces exactly one batch", ErrInvalidInput)
		}
		if len(results) == 0 {
			return nil, fmt.Errorf("%w: split requires results", ErrInvalidInput)
		}
		for _, r := range results {
			if r.batch.ProductID != sourceProducts[0] {
				return nil, fmt.Errorf("%w: %s cannot change the product", ErrInvalidInput, kind)
			}
		}
		if !resultTotal.Equal(total) {
			return nil, fmt.Errorf("%w: %s must conserve quantity (%s in, %s out)", ErrInvalidInput, kind, total, resultTotal)
		}
	case model.InternalProcessing:
		if len(results) == 0 {
			return nil, fmt.Errorf("%w: processing requires results", ErrInvalidInput)
		}
		ids := make([]uuid.UUID, 0, len(results))
		for _, r := range results {
			ids = append(ids, r.batch.ProductID)
		}
		found, err := s.nodeRepo.FindProductsByIDs(ctx, dedupe(ids))
		if err != nil {
			return nil, err
		}
		if len(found) != len(dedupe(ids)) {
			return nil, fmt.Errorf("%w: unknown result product", ErrInvalidInput)
		}
	default:
		return nil, fmt.Errorf("%w: unknown internal type %q", ErrInvalidInput, req.Type)
	}

	node := caller.NodeID
	txn := &model.Transaction{
		Kind:         model.TransactionInternal,
		Date:         dateOr(req.Date),
		CreatorID:    &caller.UserID,
		NodeID:       &node,
		InternalType: kind,
	}
	return s.commit(ctx, txn, rows, batches, results)
}

func (s *batchService) commit(ctx context.Context, txn *model.Transaction, rows []model.SourceBatch, batches map[uuid.UUID]*model.Batch, results []plannedResult) (*dto.TransactionResponse, error) {
	ids := make([]uuid.UUID, 0, len(batches))
	for id := range batches {
		ids = append(ids, id)
	}
	sources, err := s.claims.LoadClaimSources(ctx, ids)
	if err != nil {
		return nil, err
	}

	txn.SourceQuantity = sumQuantities(rows)
	txn.DestinationQuantity = decimal.Zero
	for _, r := range results {
		txn.DestinationQuantity = txn.DestinationQuantity.Add(r.batch.InitialQuantity)
	}
	txn.BlockchainStatus = model.BlockchainPending

	var issues []*trace.ClaimInconsistency
	err = runTx(ctx, s.txnRepo.DB(), func(tx *gorm.DB) error {
		issues = nil
		if err := s.txnRepo.Create(ctx, tx, txn); err != nil {
			return err
		}

		for i := range rows {
			if err := s.batchRepo.ConsumeTx(ctx, tx, rows[i].BatchID, rows[i].Quantity); err != nil {
				return fmt.Errorf("batch %s: %w", rows[i].BatchID, err)
			}
			rows[i].TransactionID = txn.ID
		}
		if err := s.txnRepo.CreateSourceBatchesTx(ctx, tx, rows); err != nil {
			return err
		}

		txnGraph := s.txnGraph.Bind(s.txnEdges.Store(tx))
		linked := make(map[uuid.UUID]struct{})
		for _, r := range rows {
			parent := r.Batch.SourceTransactionID
			if parent == nil {
				continue
			}
			if _, ok := linked[*parent]; ok {
				continue
			}
			linked[*parent] = struct{}{}
			if err := txnGraph.AddParent(ctx, txn.ID, *parent); err != nil {
				return err
			}
		}

		batchGraph := s.batchGraph.Bind(s.batchEdges.Store(tx))
		created := make([]model.Batch, 0, len(results))
		for i := range results {
			b := results[i].batch
			b.SourceTransactionID = &txn.ID
			if err := s.batchRepo.Create(ctx, tx, &b); err != nil {
				return err
			}
			for _, p := range results[i].parents {
				if err := batchGraph.AddParent(ctx, b.ID, p.BatchID); err != nil {
					return err
				}
			}
			found, err := s.claims.InheritTx(ctx, tx, sources, results[i].parents, b)
			if err != nil {
				return err
			}
			issues = append(issues, found...)
			created = append(created, b)
		}
		txn.ResultBatches = created
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create %s transaction: %w", txn.Kind, err)
	}
	transactionsTotal.WithLabelValues(string(txn.Kind)).Inc()

	resp := toTransactionResponse(txn, rows)
	for _, issue := range issues {
		if s.reporter != nil {
			s.reporter.Report(ctx, issue)
		}
		resp.Warnings = append(resp.Warnings, issue.Error())
	}

	if s.dispatcher != nil {
		payload := worker.BlockchainJobPayload{Kind: "transaction", ID: txn.ID.String()}
		if err := s.dispatcher.EnqueueBlockchain(ctx, payload); err != nil {
			// the retry cron never sees rows without a next attempt, so log loudly
			log.Error().Err(err).Str("transaction_id", txn.ID.String()).Msg("batch_service: failed to enqueue blockchain log")
		}
	}
	return &resp, nil
}

func (s *batchService) GetTransaction(ctx context.Context, caller Caller, id uuid.UUID) (*dto.TransactionResponse, error) {
	txn, err := s.txnRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.Admin && !actsIn(txn, caller.NodeID) {
		return nil, ErrForbidden
	}
	resp := toTransactionResponse(txn, txn.SourceBatches)
	return &resp, nil
}

// ── helpers ───────────────────────────────────────────────────────────────────

// loadSources parses and loads the requested source batches. Every batch must
// exist, belong to the caller's node, be active and hold the quantity asked.
// The returned rows have Batch set.
func loadSources(ctx context.Context, repo repository.BatchRepository, caller Caller, reqs []dto.SourceBatchRequest) ([]model.SourceBatch, map[uuid.UUID]*model.Batch, error) {
	if len(reqs) == 0 {
		return nil, nil, fmt.Errorf("%w: at least one source batch is required", ErrInvalidInput)
	}
	ids := make([]uuid.UUID, 0, len(reqs))
	seen := make(map[uuid.UUID]struct{}, len(reqs))
	for _, r := range reqs {
		id, err := uuid.Parse(r.BatchID)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: batch_id %q", ErrInvalidInput, r.BatchID)
		}
		if _, dup := seen[id]; dup {
			return nil, nil, fmt.Errorf("%w: batch %s listed twice", ErrInvalidInput, id)
		}
		if !r.Quantity.IsPositive() {
			return nil, nil, fmt.Errorf("%w: quantity for batch %s must be positive", ErrInvalidInput, id)
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	found, err := repo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	batches := make(map[uuid.UUID]*model.Batch, len(found))
	for i := range found {
		batches[found[i].ID] = &found[i]
	}

	rows := make([]model.SourceBatch, 0, len(reqs))
	for i, r := range reqs {
		b, ok := batches[ids[i]]
		if !ok {
			return nil, nil, fmt.Errorf("batch %s: %w", ids[i], gorm.ErrRecordNotFound)
		}
		if b.NodeID != caller.NodeID {
			return nil, nil, fmt.Errorf("batch %s: %w", b.ID, ErrForbidden)
		}
		if b.Archived {
			return nil, nil, fmt.Errorf("batch %s: %w", b.ID, ErrBatchArchived)
		}
		if r.Quantity.GreaterThan(b.CurrentQuantity) {
			return nil, nil, fmt.Errorf("batch %s: %w", b.ID, ErrInsufficientQuantity)
		}
		rows = append(rows, model.SourceBatch{BatchID: b.ID, Quantity: r.Quantity, Batch: b})
	}
	return rows, batches, nil
}

func actsIn(t *model.Transaction, nodeID uuid.UUID) bool {
	for _, id := range t.ActingNodes() {
		if id == nodeID {
			return true
		}
	}
	return false
}

func unitOr(unit, fallback string) string {
	if unit != "" {
		return unit
	}
	if fallback != "" {
		return fallback
	}
	return "kg"
}

func dateOr(d *time.Time) time.Time {
	if d != nil && !d.IsZero() {
		return d.UTC()
	}
	return time.Now().UTC()
}

func uuidPtrString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

func toBatchResponse(b *model.Batch) dto.BatchResponse {
	resp := dto.BatchResponse{
		ID:                  b.ID.String(),
		Number:              b.Number,
		NodeID:              b.NodeID.String(),
		ProductID:           b.ProductID.String(),
		Unit:                b.Unit,
		InitialQuantity:     b.InitialQuantity,
		CurrentQuantity:     b.CurrentQuantity,
		SourceTransactionID: uuidPtrString(b.SourceTransactionID),
		ExternalSource:      b.ExternalSource,
		Archived:            b.Archived,
		CreatedAt:           b.CreatedAt.Format(time.RFC3339),
	}
	if b.Product != nil {
		resp.ProductName = b.Product.Name
	}
	return resp
}

func toTransactionResponse(t *model.Transaction, rows []model.SourceBatch) dto.TransactionResponse {
	resp := dto.TransactionResponse{
		ID:                  t.ID.String(),
		Number:              t.Number,
		Kind:                string(t.Kind),
		Type:                string(t.InternalType),
		Date:                t.Date.Format(time.RFC3339),
		SourceNodeID:        uuidPtrString(t.SourceNodeID),
		DestinationNodeID:   uuidPtrString(t.DestinationNodeID),
		NodeID:              uuidPtrString(t.NodeID),
		SourceQuantity:      t.SourceQuantity,
		DestinationQuantity: t.DestinationQuantity,
		BlockchainStatus:    string(t.BlockchainStatus),
		BlockchainAddress:   t.BlockchainAddress,
		SourceBatches:       make([]dto.SourceBatchResponse, 0, len(rows)),
		ResultBatches:       make([]dto.BatchResponse, 0, len(t.ResultBatches)),
	}
	for _, r := range rows {
		sb := dto.SourceBatchResponse{BatchID: r.BatchID.String(), Quantity: r.Quantity}
		if r.Batch != nil {
			sb.ProductID = r.Batch.ProductID.String()
			sb.NodeID = r.Batch.NodeID.String()
			if r.Batch.Product != nil {
				sb.ProductName = r.Batch.Product.Name
			}
		}
		resp.SourceBatches = append(resp.SourceBatches, sb)
	}
	for i := range t.ResultBatches {
		resp.ResultBatches = append(resp.ResultBatches, toBatchResponse(&t.ResultBatches[i]))
	}
	return resp
}

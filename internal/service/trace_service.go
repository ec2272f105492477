package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"fairtrace/internal/dto"
	"fairtrace/internal/infra"
	"fairtrace/internal/model"
	"fairtrace/internal/repository"
	"fairtrace/internal/trace"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Viewer is who a trace is rendered for. Authenticated callers set NodeID;
// public traces set ThemeID. Admins see every batch.
type Viewer struct {
	NodeID   *uuid.UUID
	ThemeID  *uuid.UUID
	Admin    bool
	Language string
}

type TraceService interface {
	Map(ctx context.Context, batchID uuid.UUID, v Viewer) (*dto.TraceMapResponse, error)
	Stages(ctx context.Context, batchID uuid.UUID, v Viewer) (*dto.TraceStagesResponse, error)
	Claims(ctx context.Context, batchID uuid.UUID, v Viewer) (*dto.TraceClaimsResponse, error)
	Transactions(ctx context.Context, batchID uuid.UUID, v Viewer) (*dto.TraceTransactionsResponse, error)
	// Report writes the stage story and claims of a batch as a PDF.
	Report(ctx context.Context, batchID uuid.UUID, v Viewer, w io.Writer) error
}

type traceService struct {
	batchRepo repository.BatchRepository
	nodeRepo  repository.NodeRepository
	claimRepo repository.ClaimRepository
	themeRepo repository.ThemeRepository
	resolver  *Resolver
	now       func() time.Time
}

func NewTraceService(
	batchRepo repository.BatchRepository,
	nodeRepo repository.NodeRepository,
	claimRepo repository.ClaimRepository,
	themeRepo repository.ThemeRepository,
	resolver *Resolver,
) TraceService {
	return &traceService{
		batchRepo: batchRepo,
		nodeRepo:  nodeRepo,
		claimRepo: claimRepo,
		themeRepo: themeRepo,
		resolver:  resolver,
		now:       time.Now,
	}
}

// traced is one loaded trace: the aggregation input and the actors built
// from it.
type traced struct {
	in     trace.Input
	actors map[uuid.UUID]*trace.Actor
}

func (s *traceService) Map(ctx context.Context, batchID uuid.UUID, v Viewer) (*dto.TraceMapResponse, error) {
	defer observeTrace("map", time.Now())
	t, err := s.load(ctx, batchID, v)
	if err != nil {
		return nil, err
	}
	return &dto.TraceMapResponse{Map: trace.MapRecords(t.actors), Program: program(t.in)}, nil
}

func (s *traceService) Stages(ctx context.Context, batchID uuid.UUID, v Viewer) (*dto.TraceStagesResponse, error) {
	defer observeTrace("stages", time.Now())
	t, err := s.load(ctx, batchID, v)
	if err != nil {
		return nil, err
	}
	return &dto.TraceStagesResponse{Program: program(t.in), Stages: trace.BuildStages(t.actors, t.in.Theme)}, nil
}

func (s *traceService) Claims(ctx context.Context, batchID uuid.UUID, v Viewer) (*dto.TraceClaimsResponse, error) {
	defer observeTrace("claims", time.Now())
	t, err := s.load(ctx, batchID, v)
	if err != nil {
		return nil, err
	}
	records, err := s.claimRecords(ctx, t)
	if err != nil {
		return nil, err
	}
	return &dto.TraceClaimsResponse{Program: program(t.in), Claims: records}, nil
}

func (s *traceService) Transactions(ctx context.Context, batchID uuid.UUID, v Viewer) (*dto.TraceTransactionsResponse, error) {
	defer observeTrace("transactions", time.Now())
	t, err := s.load(ctx, batchID, v)
	if err != nil {
		return nil, err
	}
	resp := &dto.TraceTransactionsResponse{
		Program:      program(t.in),
		Transactions: make([]dto.TransactionResponse, 0, len(t.in.Transactions)),
	}
	for i := range t.in.Transactions {
		txn := &t.in.Transactions[i]
		resp.Transactions = append(resp.Transactions, toTransactionResponse(txn, txn.SourceBatches))
	}
	return resp, nil
}

func (s *traceService) Report(ctx context.Context, batchID uuid.UUID, v Viewer, w io.Writer) error {
	defer observeTrace("report", time.Now())
	t, err := s.load(ctx, batchID, v)
	if err != nil {
		return err
	}
	claims, err := s.claimRecords(ctx, t)
	if err != nil {
		return err
	}
	report := infra.TraceReport{
		BatchNumber: t.in.Batch.Number,
		Quantity:    t.in.Batch.InitialQuantity.String(),
		Unit:        t.in.Batch.Unit,
		Stages:      trace.BuildStages(t.actors, t.in.Theme),
		Claims:      claims,
		GeneratedAt: s.now().UTC(),
	}
	if t.in.Batch.Product != nil {
		report.ProductName = t.in.Batch.Product.Name
	}
	if holder, ok := t.in.Nodes[t.in.Batch.NodeID]; ok {
		report.HolderName = holder.Name
	}
	if t.in.Theme != nil {
		report.ThemeName = t.in.Theme.Name
	}
	return infra.GenerateTraceReport(w, report)
}

// ── Loading ───────────────────────────────────────────────────────────────────

// load resolves the batch's closure and everything the aggregation needs.
// Nodes, operations and company claims are fetched concurrently.
func (s *traceService) load(ctx context.Context, batchID uuid.UUID, v Viewer) (*traced, error) {
	batch, err := s.batchRepo.FindByID(ctx, batchID)
	if err != nil {
		return nil, err
	}

	var theme *model.Theme
	if v.ThemeID != nil {
		theme, err = s.themeRepo.FindByID(ctx, *v.ThemeID)
		if err != nil {
			return nil, err
		}
		if theme.NodeID != batch.NodeID {
			return nil, ErrThemeMismatch
		}
	}

	// Holders, admins and themed public views see the batch outright. Other
	// nodes must act in its closure; anonymous callers never resolve it.
	chainCheck := !v.Admin && theme == nil && (v.NodeID == nil || *v.NodeID != batch.NodeID)
	if chainCheck && v.NodeID == nil {
		return nil, ErrBatchNotVisible
	}

	txns, err := s.resolver.ParentTransactions(ctx, batch, ResolveOptions{Targeted: true, Language: v.Language})
	if err != nil {
		return nil, err
	}
	if chainCheck && !actsInAny(*v.NodeID, txns) {
		return nil, ErrBatchNotVisible
	}

	nodeIDs := involvedNodes(batch, txns)
	var supplyChainID uuid.UUID
	if batch.Product != nil {
		supplyChainID = batch.Product.SupplyChainID
	}

	var (
		nodes    []model.Node
		ops      map[uuid.UUID]model.Operation
		company  map[uuid.UUID][]model.Claim
		g, gctx = errgroup.WithContext(ctx)
	)
	g.Go(func() error {
		var err error
		nodes, err = s.nodeRepo.FindByIDs(gctx, nodeIDs)
		if err != nil {
			return fmt.Errorf("trace: nodes: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		ops, err = s.nodeRepo.PrimaryOperations(gctx, supplyChainID, nodeIDs)
		if err != nil {
			return fmt.Errorf("trace: operations: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		company, err = s.claimRepo.ApprovedCompanyClaims(gctx, nodeIDs)
		if err != nil {
			return fmt.Errorf("trace: company claims: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	in := trace.Input{
		Batch:         *batch,
		Transactions:  txns,
		Nodes:         make(map[uuid.UUID]model.Node, len(nodes)),
		Operations:    ops,
		CompanyClaims: company,
		Theme:         theme,
	}
	for _, n := range nodes {
		in.Nodes[n.ID] = n
	}
	return &traced{in: in, actors: trace.BuildActors(in)}, nil
}

func (s *traceService) claimRecords(ctx context.Context, t *traced) ([]trace.ClaimRecord, error) {
	owners := make(map[uuid.UUID]uuid.UUID)
	for _, txn := range t.in.Transactions {
		for _, sb := range txn.SourceBatches {
			if sb.Batch != nil {
				owners[sb.BatchID] = sb.Batch.NodeID
			}
		}
	}
	upstreamIDs := make([]uuid.UUID, 0, len(owners))
	for id := range owners {
		upstreamIDs = append(upstreamIDs, id)
	}

	var own, upstream []model.AttachedBatchClaim
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		own, err = s.claimRepo.BatchClaims(gctx, []uuid.UUID{t.in.Batch.ID})
		return err
	})
	g.Go(func() error {
		var err error
		upstream, err = s.claimRepo.BatchClaims(gctx, upstreamIDs)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("trace: batch claims: %w", err)
	}

	return trace.ClaimRecords(trace.ClaimInput{
		Batch:       t.in.Batch,
		Claims:      own,
		Upstream:    upstream,
		BatchOwners: owners,
		Actors:      t.actors,
	}), nil
}

// actsInAny reports whether node acted in any of txns.
func actsInAny(node uuid.UUID, txns []model.Transaction) bool {
	for i := range txns {
		if actsIn(&txns[i], node) {
			return true
		}
	}
	return false
}

// involvedNodes collects the holder, every acting node and the owner of every
// consumed batch.
func involvedNodes(batch *model.Batch, txns []model.Transaction) []uuid.UUID {
	seen := map[uuid.UUID]struct{}{batch.NodeID: {}}
	out := []uuid.UUID{batch.NodeID}
	add := func(id uuid.UUID) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for i := range txns {
		for _, id := range txns[i].ActingNodes() {
			add(id)
		}
		for _, sb := range txns[i].SourceBatches {
			if sb.Batch != nil {
				add(sb.Batch.NodeID)
			}
		}
	}
	return out
}

func program(in trace.Input) dto.TraceProgram {
	b := in.Batch
	p := dto.TraceProgram{
		BatchID:     b.ID.String(),
		BatchNumber: b.Number,
		ProductID:   b.ProductID.String(),
		Quantity:    b.InitialQuantity,
		Unit:        b.Unit,
		NodeID:      b.NodeID.String(),
	}
	if b.Product != nil {
		p.ProductName = b.Product.Name
	}
	if in.Theme != nil {
		id := in.Theme.ID.String()
		p.ThemeID = &id
		p.ThemeName = in.Theme.Name
	}
	return p
}

func observeTrace(view string, start time.Time) {
	traceDuration.WithLabelValues(view).Observe(time.Since(start).Seconds())
}

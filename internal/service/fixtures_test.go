package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"fairtrace/internal/dto"
	"fairtrace/internal/graph"
	"fairtrace/internal/model"
	"fairtrace/internal/repository"
	"fairtrace/internal/service"
	"fairtrace/internal/testutil"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var day0 = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

// captureReporter records every reported problem.
type captureReporter struct {
	mu   sync.Mutex
	errs []error
}

func (r *captureReporter) Report(_ context.Context, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *captureReporter) reported() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

// env wires every service against one sqlite database.
type env struct {
	t   *testing.T
	ctx context.Context
	db  *gorm.DB

	batchRepo repository.BatchRepository
	nodeRepo  repository.NodeRepository
	claimRepo repository.ClaimRepository
	cache     *repository.MemoryResolverCache
	reporter  *captureReporter

	batches  service.BatchService
	claims   service.ClaimService
	nodes    service.NodeService
	traces   service.TraceService
	resolver *service.Resolver

	admin service.Caller
	chain model.SupplyChain
	ops   map[string]model.Operation
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.DB(t)

	e := &env{
		t:         t,
		ctx:       context.Background(),
		db:        db,
		batchRepo: repository.NewBatchRepository(db),
		nodeRepo:  repository.NewNodeRepository(db),
		claimRepo: repository.NewClaimRepository(db),
		cache:     repository.NewMemoryResolverCache(),
		reporter:  &captureReporter{},
		admin:     service.Caller{UserID: uuid.New(), NodeID: uuid.New(), Admin: true},
		ops:       make(map[string]model.Operation),
	}
	txnRepo := repository.NewTransactionRepository(db)
	themeRepo := repository.NewThemeRepository(db)
	txnEdges := repository.NewEdgeRepository(db, model.TransactionEdgesTable)
	batchEdges := repository.NewEdgeRepository(db, model.BatchEdgesTable)
	connEdges := repository.NewEdgeRepository(db, model.ConnectionEdgesTable)
	txnGraph := graph.New(txnEdges.Store(nil), 0)
	batchGraph := graph.New(batchEdges.Store(nil), 0)

	e.claims = service.NewClaimService(e.claimRepo, e.batchRepo, e.nodeRepo, nil)
	e.batches = service.NewBatchService(service.BatchServiceDeps{
		BatchRepo:  e.batchRepo,
		TxnRepo:    txnRepo,
		NodeRepo:   e.nodeRepo,
		Claims:     e.claims,
		TxnEdges:   txnEdges,
		BatchEdges: batchEdges,
		TxnGraph:   txnGraph,
		BatchGraph: batchGraph,
		Reporter:   e.reporter,
	})
	e.resolver = service.NewResolver(service.ResolverDeps{
		TxnRepo:    txnRepo,
		BatchRepo:  e.batchRepo,
		TxnGraph:   txnGraph,
		BatchGraph: batchGraph,
		Cache:      e.cache,
		TTL:        time.Minute,
		Reporter:   e.reporter,
	})
	e.traces = service.NewTraceService(e.batchRepo, e.nodeRepo, e.claimRepo, themeRepo, e.resolver)
	e.nodes = service.NewNodeService(e.nodeRepo, themeRepo, connEdges, graph.New(connEdges.Store(nil), 0), db)

	e.chain = model.SupplyChain{Name: "Coffee"}
	require.NoError(t, e.nodeRepo.CreateSupplyChain(e.ctx, &e.chain))
	return e
}

// node creates a node with the given primary operation and returns a caller
// acting for it.
func (e *env) node(name string, typ model.NodeType, operation string) service.Caller {
	e.t.Helper()
	n := &model.Node{Type: typ, Name: name, ConsentStatus: model.ConsentGranted, Latitude: 1, Longitude: 2}
	require.NoError(e.t, e.nodeRepo.Create(e.ctx, n))

	op, ok := e.ops[operation]
	if !ok {
		op = model.Operation{SupplyChainID: e.chain.ID, Name: operation}
		require.NoError(e.t, e.nodeRepo.CreateOperation(e.ctx, &op))
		e.ops[operation] = op
	}
	require.NoError(e.t, e.nodeRepo.SetPrimaryOperation(e.ctx, n.ID, e.chain.ID, op.ID))
	return service.Caller{UserID: uuid.New(), NodeID: n.ID}
}

func (e *env) product(name string) model.Product {
	e.t.Helper()
	p := model.Product{SupplyChainID: e.chain.ID, Name: name}
	require.NoError(e.t, e.nodeRepo.CreateProduct(e.ctx, &p))
	return p
}

// harvest registers a batch with no source transaction.
func (e *env) harvest(c service.Caller, p model.Product, qty int64) uuid.UUID {
	e.t.Helper()
	resp, err := e.batches.CreateBatch(e.ctx, c, dto.CreateBatchRequest{
		ProductID: p.ID.String(),
		Quantity:  decimal.NewFromInt(qty),
	})
	require.NoError(e.t, err)
	return uuid.MustParse(resp.ID)
}

func (e *env) send(from, to service.Caller, at time.Time, sources ...dto.SourceBatchRequest) *dto.TransactionResponse {
	e.t.Helper()
	resp, err := e.batches.CreateExternalTransaction(e.ctx, from, dto.ExternalTransactionRequest{
		DestinationNodeID: to.NodeID.String(),
		Date:              &at,
		SourceBatches:     sources,
	})
	require.NoError(e.t, err)
	return resp
}

func (e *env) batch(id uuid.UUID) *model.Batch {
	e.t.Helper()
	b, err := e.batchRepo.FindByID(e.ctx, id)
	require.NoError(e.t, err)
	return b
}

func src(id uuid.UUID, qty int64) dto.SourceBatchRequest {
	return dto.SourceBatchRequest{BatchID: id.String(), Quantity: decimal.NewFromInt(qty)}
}

func resultID(t *testing.T, resp *dto.TransactionResponse, i int) uuid.UUID {
	t.Helper()
	require.Greater(t, len(resp.ResultBatches), i)
	return uuid.MustParse(resp.ResultBatches[i].ID)
}

func txnIDs(txns []model.Transaction) []uuid.UUID {
	out := make([]uuid.UUID, len(txns))
	for i, t := range txns {
		out[i] = t.ID
	}
	return out
}

// scenario is a farmer -> processor -> exporter chain: F sends raw cherry
// to P, P processes it and sends the processed coffee to E.
type scenario struct {
	f, p, e    service.Caller
	raw, green model.Product
	farm       uuid.UUID // F's harvest
	t1, t2, t3 *dto.TransactionResponse
	final      uuid.UUID // E's batch
}

func (e *env) scenario() *scenario {
	e.t.Helper()
	s := &scenario{
		f:     e.node("Fatima", model.NodeFarmer, "Farmer"),
		p:     e.node("Pedro Mill", model.NodeCompany, "Processor"),
		e:     e.node("Export Co", model.NodeCompany, "Exporter"),
		raw:   e.product("raw"),
		green: e.product("processed"),
	}
	s.farm = e.harvest(s.f, s.raw, 100)
	s.t1 = e.send(s.f, s.p, day0, src(s.farm, 100))

	at := day0.Add(24 * time.Hour)
	var err error
	s.t2, err = e.batches.CreateInternalTransaction(e.ctx, s.p, dto.InternalTransactionRequest{
		Type:          string(model.InternalProcessing),
		Date:          &at,
		SourceBatches: []dto.SourceBatchRequest{src(resultID(e.t, s.t1, 0), 100)},
		Results:       []dto.ResultBatchRequest{{ProductID: s.green.ID.String(), Quantity: decimal.NewFromInt(100)}},
	})
	require.NoError(e.t, err)

	s.t3 = e.send(s.p, s.e, day0.Add(48*time.Hour), src(resultID(e.t, s.t2, 0), 100))
	s.final = resultID(e.t, s.t3, 0)
	return s
}

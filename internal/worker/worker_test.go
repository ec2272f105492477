package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"fairtrace/internal/infra"
	"fairtrace/internal/model"
	"fairtrace/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

// ── stubs ────────────────────────────────────────────────────────────────────

type stubTxnRepo struct {
	mu      sync.Mutex
	txns    map[uuid.UUID]*model.Transaction
	updates map[uuid.UUID]repository.BlockchainUpdate
}

var _ repository.TransactionRepository = (*stubTxnRepo)(nil)

func newStubTxnRepo(txns ...*model.Transaction) *stubTxnRepo {
	r := &stubTxnRepo{txns: map[uuid.UUID]*model.Transaction{}, updates: map[uuid.UUID]repository.BlockchainUpdate{}}
	for _, t := range txns {
		r.txns[t.ID] = t
	}
	return r
}

func (r *stubTxnRepo) Create(context.Context, *gorm.DB, *model.Transaction) error { return nil }
func (r *stubTxnRepo) CreateSourceBatchesTx(context.Context, *gorm.DB, []model.SourceBatch) error {
	return nil
}
func (r *stubTxnRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.txns[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *t
	return &cp, nil
}
func (r *stubTxnRepo) FindByIDs(context.Context, []uuid.UUID) ([]model.Transaction, error) {
	return nil, nil
}
func (r *stubTxnRepo) NextNumber(context.Context, *gorm.DB) (int64, error) { return 1, nil }
func (r *stubTxnRepo) ListPendingBlockchain(_ context.Context, now time.Time, limit int) ([]model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Transaction
	for _, t := range r.txns {
		if t.BlockchainStatus == model.BlockchainPending && t.BlockchainNextAttempt != nil && !t.BlockchainNextAttempt.After(now) {
			out = append(out, *t)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
func (r *stubTxnRepo) UpdateBlockchain(_ context.Context, id uuid.UUID, u repository.BlockchainUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates[id] = u
	if t, ok := r.txns[id]; ok {
		t.BlockchainStatus = u.Status
		t.BlockchainAddress = u.Address
		t.BlockchainRetries = u.Retries
		t.BlockchainNextAttempt = u.NextAttemptAt
	}
	return nil
}
func (r *stubTxnRepo) DB() *gorm.DB { return nil }

type stubLogger struct {
	mu     sync.Mutex
	err    error
	events []infra.ProvenanceEvent
}

func (l *stubLogger) Log(_ context.Context, ev infra.ProvenanceEvent) (*infra.LogReceipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	if l.err != nil {
		return nil, l.err
	}
	return &infra.LogReceipt{Address: "0xabc" + ev.ID[:4]}, nil
}

type stubMailer struct {
	configured bool
	err        error
	sent       [][]string
}

func (m *stubMailer) Configured() bool { return m.configured }
func (m *stubMailer) SendReview(to []string, _ string, details []string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, append(append([]string(nil), to...), details...))
	return nil
}

func pendingTxn() *model.Transaction {
	src, dst := uuid.New(), uuid.New()
	return &model.Transaction{
		ID:                uuid.New(),
		Kind:              model.TransactionExternal,
		SourceNodeID:      &src,
		DestinationNodeID: &dst,
		Date:              time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		BlockchainStatus:  model.BlockchainPending,
		SourceBatches:     []model.SourceBatch{{BatchID: uuid.New()}},
		ResultBatches:     []model.Batch{{ID: uuid.New()}},
	}
}

func rawJSON(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

// ── blockchain worker ────────────────────────────────────────────────────────

func TestBlockchainWorkerStoresAddress(t *testing.T) {
	txn := pendingTxn()
	repo := newStubTxnRepo(txn)
	client := &stubLogger{}
	w := NewBlockchainWorker(client, infra.NewCircuitBreaker(infra.DefaultCBConfig()), repo, nil)

	err := w.Process(context.Background(), rawJSON(t, BlockchainJobPayload{Kind: "transaction", ID: txn.ID.String()}))
	require.NoError(t, err)

	require.Len(t, client.events, 1)
	ev := client.events[0]
	assert.Equal(t, txn.SourceNodeID.String(), ev.NodeID)
	assert.Equal(t, txn.DestinationNodeID.String(), ev.PeerID)
	assert.Equal(t, []string{txn.SourceBatches[0].BatchID.String()}, ev.Inputs)
	assert.Equal(t, []string{txn.ResultBatches[0].ID.String()}, ev.Outputs)

	u := repo.updates[txn.ID]
	assert.Equal(t, model.BlockchainLogged, u.Status)
	require.NotNil(t, u.Address)
	assert.Nil(t, u.NextAttemptAt)
}

func TestBlockchainWorkerSchedulesRetry(t *testing.T) {
	txn := pendingTxn()
	repo := newStubTxnRepo(txn)
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	w := NewBlockchainWorker(&stubLogger{err: errors.New("down")}, infra.NewCircuitBreaker(infra.DefaultCBConfig()), repo, nil)
	w.now = func() time.Time { return now }

	w.LogTransaction(context.Background(), txn)

	u := repo.updates[txn.ID]
	assert.Equal(t, model.BlockchainPending, u.Status)
	assert.Equal(t, 1, u.Retries)
	require.NotNil(t, u.NextAttemptAt)
	assert.Equal(t, now.Add(time.Minute), *u.NextAttemptAt)
}

func TestBlockchainWorkerGivesUpAfterMaxRetries(t *testing.T) {
	rdb := newRedis(t)
	txn := pendingTxn()
	txn.BlockchainRetries = MaxBlockchainRetries - 1
	repo := newStubTxnRepo(txn)
	w := NewBlockchainWorker(&stubLogger{err: errors.New("down")}, infra.NewCircuitBreaker(infra.DefaultCBConfig()), repo, rdb)

	w.LogTransaction(context.Background(), txn)

	u := repo.updates[txn.ID]
	assert.Equal(t, model.BlockchainFailed, u.Status)
	assert.Nil(t, u.NextAttemptAt)
	n, err := DLQLength(context.Background(), rdb, QueueBlockchain)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestBlockchainWorkerSkipsLoggedTransactions(t *testing.T) {
	txn := pendingTxn()
	txn.BlockchainStatus = model.BlockchainLogged
	client := &stubLogger{}
	w := NewBlockchainWorker(client, infra.NewCircuitBreaker(infra.DefaultCBConfig()), newStubTxnRepo(txn), nil)

	w.LogTransaction(context.Background(), txn)
	assert.Empty(t, client.events)
}

func TestBlockchainWorkerClaimErrorIsReturned(t *testing.T) {
	w := NewBlockchainWorker(&stubLogger{err: errors.New("down")}, infra.NewCircuitBreaker(infra.DefaultCBConfig()), newStubTxnRepo(), nil)
	err := w.Process(context.Background(), rawJSON(t, BlockchainJobPayload{Kind: "claim", ID: uuid.NewString()}))
	assert.Error(t, err)
}

func TestComputeRetryBackoff(t *testing.T) {
	assert.Equal(t, time.Minute, computeRetryBackoff(0))
	assert.Equal(t, time.Minute, computeRetryBackoff(1))
	assert.Equal(t, 4*time.Minute, computeRetryBackoff(3))
	assert.Equal(t, time.Hour, computeRetryBackoff(10))
	assert.Equal(t, time.Hour, computeRetryBackoff(100))
}

// ── retry cron ───────────────────────────────────────────────────────────────

func TestProcessRetriesOnlyDueTransactions(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	due, later, queued := pendingTxn(), pendingTxn(), pendingTxn()
	past, future := now.Add(-time.Minute), now.Add(time.Hour)
	due.BlockchainNextAttempt = &past
	due.BlockchainRetries = 1
	later.BlockchainNextAttempt = &future
	repo := newStubTxnRepo(due, later, queued)
	client := &stubLogger{}
	cb := infra.NewCircuitBreaker(infra.DefaultCBConfig())
	w := NewBlockchainWorker(client, cb, repo, nil)

	n := processRetries(context.Background(), RetryCronConfig{TxnRepo: repo, Worker: w, CB: cb}, now)
	assert.Equal(t, 1, n)
	require.Len(t, client.events, 1)
	assert.Equal(t, due.ID.String(), client.events[0].ID)
	assert.Equal(t, model.BlockchainLogged, repo.updates[due.ID].Status)
	assert.Equal(t, 1, repo.updates[due.ID].Retries)
}

func TestProcessRetriesSkipsWhenBreakerOpen(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	txn := pendingTxn()
	txn.BlockchainNextAttempt = &past
	repo := newStubTxnRepo(txn)
	client := &stubLogger{}
	cb := infra.NewCircuitBreaker(infra.CircuitBreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, OpenTimeout: time.Hour})
	_ = cb.Execute(func() error { return errors.New("boom") })
	require.Equal(t, infra.CBOpen, cb.State())

	n := processRetries(context.Background(), RetryCronConfig{TxnRepo: repo, Worker: NewBlockchainWorker(client, cb, repo, nil), CB: cb}, now)
	assert.Zero(t, n)
	assert.Empty(t, client.events)
}

// ── review worker ────────────────────────────────────────────────────────────

func TestReviewWorkerSendsNotice(t *testing.T) {
	m := &stubMailer{configured: true}
	w := NewReviewWorker(m, "review@fairtrace.test")
	err := w.Process(context.Background(), rawJSON(t, ReviewJobPayload{
		Kind: "claim_inconsistency", Subject: "Claim partially verified", Details: []string{"Organic"}, EntityID: "b-1",
	}))
	require.NoError(t, err)
	require.Len(t, m.sent, 1)
	assert.Equal(t, []string{"review@fairtrace.test", "claim_inconsistency: b-1", "Organic"}, m.sent[0])
}

func TestReviewWorkerWithoutMailerDrops(t *testing.T) {
	m := &stubMailer{}
	w := NewReviewWorker(m, "review@fairtrace.test")
	require.NoError(t, w.Process(context.Background(), rawJSON(t, ReviewJobPayload{Kind: "data_integrity"})))
	assert.Empty(t, m.sent)
}

// ── pool ─────────────────────────────────────────────────────────────────────

type countingHandler struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (h *countingHandler) Process(context.Context, json.RawMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	return h.err
}

func TestPoolRequeuesThenDeadLetters(t *testing.T) {
	ctx := context.Background()
	rdb := newRedis(t)
	h := &countingHandler{err: errors.New("fail")}
	p := NewPool(rdb, map[string]Handler{JobReview: h})
	require.NoError(t, NewDispatcher(rdb).EnqueueReview(ctx, ReviewJobPayload{Kind: "data_integrity"}))

	for i := 0; i < MaxJobAttempts; i++ {
		res, err := rdb.RPop(ctx, QueueReview).Result()
		require.NoError(t, err, "attempt %d", i+1)
		p.processJob(ctx, QueueReview, res)
	}

	assert.Equal(t, MaxJobAttempts, h.calls)
	left, err := rdb.LLen(ctx, QueueReview).Result()
	require.NoError(t, err)
	assert.Zero(t, left)
	n, err := DLQLength(ctx, rdb, QueueReview)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestPoolUnknownJobTypeGoesToDLQ(t *testing.T) {
	ctx := context.Background()
	rdb := newRedis(t)
	p := NewPool(rdb, map[string]Handler{})
	require.NoError(t, NewDispatcher(rdb).EnqueueBlockchain(ctx, BlockchainJobPayload{Kind: "claim", ID: uuid.NewString()}))

	res, err := rdb.RPop(ctx, QueueBlockchain).Result()
	require.NoError(t, err)
	p.processJob(ctx, QueueBlockchain, res)

	n, err := DLQLength(ctx, rdb, QueueBlockchain)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestPoolStartConsumesQueue(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rdb := newRedis(t)
	h := &countingHandler{}
	p := NewPool(rdb, map[string]Handler{JobReview: h})
	p.poll = 50 * time.Millisecond
	p.Start(ctx, 2)

	require.NoError(t, NewDispatcher(rdb).EnqueueReview(ctx, ReviewJobPayload{Kind: "data_integrity"}))
	assert.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.calls == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDLQPeekAndReplay(t *testing.T) {
	ctx := context.Background()
	rdb := newRedis(t)
	h := &countingHandler{err: errors.New("mail server down")}
	p := NewPool(rdb, map[string]Handler{JobReview: h})
	require.NoError(t, NewDispatcher(rdb).EnqueueReview(ctx, ReviewJobPayload{Kind: "claim_inconsistency"}))

	for i := 0; i < MaxJobAttempts; i++ {
		res, err := rdb.RPop(ctx, QueueReview).Result()
		require.NoError(t, err)
		p.processJob(ctx, QueueReview, res)
	}

	parked, err := PeekDLQ(ctx, rdb, QueueReview, 10)
	require.NoError(t, err)
	require.Len(t, parked, 1)
	assert.Equal(t, JobReview, parked[0].JobType)
	assert.Equal(t, "mail server down", parked[0].Reason)
	assert.Equal(t, MaxJobAttempts, parked[0].Attempts)
	assert.False(t, parked[0].ParkedAt.IsZero())

	moved, err := ReplayDLQ(ctx, rdb, QueueReview, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)
	n, err := DLQLength(ctx, rdb, QueueReview)
	require.NoError(t, err)
	assert.Zero(t, n)

	// the replayed job gets a fresh attempt budget
	h.err = nil
	res, err := rdb.RPop(ctx, QueueReview).Result()
	require.NoError(t, err)
	var job Job
	require.NoError(t, json.Unmarshal([]byte(res), &job))
	assert.Zero(t, job.Attempts)
	p.processJob(ctx, QueueReview, res)
	assert.Equal(t, MaxJobAttempts+1, h.calls)
}

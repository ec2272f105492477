package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"fairtrace/internal/graph"
	"fairtrace/internal/model"
	"fairtrace/internal/repository"
	"fairtrace/internal/trace"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// ResolveOptions selects which upstream transactions a trace needs.
type ResolveOptions struct {
	// Targeted restricts the closure to the transactions that produced an
	// ancestor of the queried batch, when its producing transaction also
	// produced other batches.
	Targeted bool
	// OnlyInternal keeps internal transactions only.
	OnlyInternal bool
	Language     string
}

// Resolver computes the upstream transaction closure of a batch.
type Resolver struct {
	txnRepo    repository.TransactionRepository
	batchRepo  repository.BatchRepository
	txnGraph   *graph.Graph
	batchGraph *graph.Graph
	cache      repository.ResolverCache
	ttl        time.Duration
	reporter   Reporter
	maxNodes   int
	group      singleflight.Group
}

// ResolverDeps groups the collaborators of NewResolver. Cache and Reporter
// may be nil.
type ResolverDeps struct {
	TxnRepo    repository.TransactionRepository
	BatchRepo  repository.BatchRepository
	TxnGraph   *graph.Graph
	BatchGraph *graph.Graph
	Cache      repository.ResolverCache
	TTL        time.Duration
	Reporter   Reporter
	MaxNodes   int
}

func NewResolver(d ResolverDeps) *Resolver {
	if d.MaxNodes <= 0 {
		d.MaxNodes = graph.DefaultMaxNodes
	}
	return &Resolver{
		txnRepo:    d.TxnRepo,
		batchRepo:  d.BatchRepo,
		txnGraph:   d.TxnGraph,
		batchGraph: d.BatchGraph,
		cache:      d.Cache,
		ttl:        d.TTL,
		reporter:   d.Reporter,
		maxNodes:   d.MaxNodes,
	}
}

// ParentTransactions returns every transaction upstream of batch, including
// the one that produced it, with source and result batches loaded. A batch
// without a source transaction has no parents.
func (r *Resolver) ParentTransactions(ctx context.Context, batch *model.Batch, opts ResolveOptions) ([]model.Transaction, error) {
	if batch.SourceTransactionID == nil {
		return nil, nil
	}
	src := *batch.SourceTransactionID

	mode := "full"
	var restrict map[uuid.UUID]struct{}
	if opts.Targeted {
		siblings, err := r.batchRepo.FindByTransactionIDs(ctx, []uuid.UUID{src})
		if err != nil {
			return nil, fmt.Errorf("resolver: sibling batches: %w", err)
		}
		if len(siblings) > 1 {
			restrict, err = r.producingTransactions(ctx, batch.ID)
			if err != nil {
				return nil, err
			}
			mode = "batch-" + batch.ID.String()
		}
	}
	if opts.OnlyInternal {
		mode += "-internal"
	}
	key := repository.ResolverCacheKey(src, opts.Language, mode)

	if ids, ok := r.cached(ctx, key); ok {
		return r.txnRepo.FindByIDs(ctx, ids)
	}

	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		txns, err := r.compute(ctx, src, restrict)
		if err != nil {
			return nil, err
		}
		if opts.OnlyInternal {
			txns = slices.DeleteFunc(txns, func(t model.Transaction) bool { return t.IsExternal() })
		}
		resolverClosureSize.Observe(float64(len(txns)))
		r.store(ctx, key, txns)
		return txns, nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.([]model.Transaction)), nil
}

// producingTransactions returns the transactions that produced batchID or
// any of its ancestor batches.
func (r *Resolver) producingTransactions(ctx context.Context, batchID uuid.UUID) (map[uuid.UUID]struct{}, error) {
	ancestors, err := r.batchGraph.Ancestors(ctx, batchID, graph.IncludeSelf())
	if err != nil {
		return nil, fmt.Errorf("resolver: batch ancestors: %w", err)
	}
	batches, err := r.batchRepo.FindByIDs(ctx, ancestors)
	if err != nil {
		return nil, fmt.Errorf("resolver: load ancestor batches: %w", err)
	}
	set := make(map[uuid.UUID]struct{}, len(batches))
	for _, b := range batches {
		if b.SourceTransactionID != nil {
			set[*b.SourceTransactionID] = struct{}{}
		}
	}
	return set, nil
}

// compute walks the transaction graph from src and then checks the result
// against the batch data: a consumed batch whose producing transaction is
// missing from the closure is reported and its producer pulled in. This
// repeats until no producer is missing.
func (r *Resolver) compute(ctx context.Context, src uuid.UUID, restrict map[uuid.UUID]struct{}) ([]model.Transaction, error) {
	ids, err := r.txnGraph.Ancestors(ctx, src, graph.IncludeSelf(), graph.WithRestriction(restrict))
	if err != nil {
		return nil, fmt.Errorf("resolver: transaction ancestors: %w", err)
	}
	txns, err := r.txnRepo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolver: load transactions: %w", err)
	}

	have := graph.Set(ids...)
	pending := txns
	for len(pending) > 0 {
		var missing []uuid.UUID
		for _, t := range pending {
			for _, sb := range t.SourceBatches {
				if sb.Batch == nil || sb.Batch.SourceTransactionID == nil {
					continue
				}
				producer := *sb.Batch.SourceTransactionID
				if _, ok := have[producer]; ok {
					continue
				}
				if restrict != nil {
					if _, ok := restrict[producer]; !ok {
						continue
					}
				}
				have[producer] = struct{}{}
				missing = append(missing, producer)
				if r.reporter != nil {
					r.reporter.Report(ctx, &trace.DataIntegrityWarning{
						BatchID:       sb.BatchID,
						TransactionID: producer,
						Detail:        fmt.Sprintf("producer of a batch consumed by %s is not linked in the transaction graph", t.ID),
					})
				}
			}
		}
		if len(missing) == 0 {
			break
		}
		if len(have) > r.maxNodes {
			return nil, fmt.Errorf("%w (limit %d)", graph.ErrTraversalTooLarge, r.maxNodes)
		}
		pending, err = r.txnRepo.FindByIDs(ctx, missing)
		if err != nil {
			return nil, fmt.Errorf("resolver: load missing producers: %w", err)
		}
		txns = append(txns, pending...)
	}
	return txns, nil
}

func (r *Resolver) cached(ctx context.Context, key string) ([]uuid.UUID, bool) {
	if r.cache == nil {
		return nil, false
	}
	ids, ok, err := r.cache.Get(ctx, key)
	switch {
	case err != nil:
		resolverCacheTotal.WithLabelValues("error").Inc()
		log.Debug().Err(err).Str("key", key).Msg("resolver: cache get failed")
		return nil, false
	case !ok:
		resolverCacheTotal.WithLabelValues("miss").Inc()
		return nil, false
	}
	resolverCacheTotal.WithLabelValues("hit").Inc()
	return ids, true
}

func (r *Resolver) store(ctx context.Context, key string, txns []model.Transaction) {
	if r.cache == nil {
		return
	}
	ids := make([]uuid.UUID, len(txns))
	for i, t := range txns {
		ids[i] = t.ID
	}
	if err := r.cache.Set(ctx, key, ids, r.ttl); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("resolver: cache set failed")
	}
}

package trace_test

import (
	"time"

	"fairtrace/internal/model"
	"fairtrace/internal/trace"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var day0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func qty(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

type chain struct {
	nodes map[uuid.UUID]model.Node
	ops   map[uuid.UUID]model.Operation
	txns  []model.Transaction
}

func newChain() *chain {
	return &chain{nodes: map[uuid.UUID]model.Node{}, ops: map[uuid.UUID]model.Operation{}}
}

func (c *chain) node(name string, typ model.NodeType, op string, lat, lng float64) model.Node {
	n := model.Node{
		ID: uuid.New(), Name: name, Type: typ,
		Latitude: lat, Longitude: lng, ConsentStatus: model.ConsentGranted,
	}
	c.nodes[n.ID] = n
	if op != "" {
		c.ops[n.ID] = model.Operation{ID: uuid.NewSHA1(uuid.NameSpaceOID, []byte(op)), Name: op}
	}
	return n
}

func batch(owner model.Node, product *model.Product, q int64, source *model.Transaction) model.Batch {
	b := model.Batch{
		ID: uuid.New(), NodeID: owner.ID, ProductID: product.ID, Product: product,
		Unit: "kg", InitialQuantity: qty(q), CurrentQuantity: qty(q),
	}
	if source != nil {
		b.SourceTransactionID = &source.ID
	}
	return b
}

func consume(b *model.Batch, q int64) model.SourceBatch {
	return model.SourceBatch{ID: uuid.New(), BatchID: b.ID, Quantity: qty(q), Batch: b}
}

func (c *chain) external(src, dst model.Node, date time.Time, sources ...model.SourceBatch) *model.Transaction {
	total := decimal.Zero
	for _, s := range sources {
		total = total.Add(s.Quantity)
	}
	c.txns = append(c.txns, model.Transaction{
		ID: uuid.New(), Number: int64(len(c.txns) + 1), Kind: model.TransactionExternal, Date: date,
		SourceNodeID: ptr(src.ID), DestinationNodeID: ptr(dst.ID),
		SourceQuantity: total, DestinationQuantity: total, SourceBatches: sources,
	})
	return &c.txns[len(c.txns)-1]
}

func (c *chain) internal(n model.Node, typ model.InternalType, date time.Time, out int64, sources ...model.SourceBatch) *model.Transaction {
	total := decimal.Zero
	for _, s := range sources {
		total = total.Add(s.Quantity)
	}
	c.txns = append(c.txns, model.Transaction{
		ID: uuid.New(), Number: int64(len(c.txns) + 1), Kind: model.TransactionInternal, Date: date,
		NodeID: ptr(n.ID), InternalType: typ,
		SourceQuantity: total, DestinationQuantity: qty(out), SourceBatches: sources,
	})
	return &c.txns[len(c.txns)-1]
}

func (c *chain) input(traced model.Batch) trace.Input {
	return trace.Input{
		Batch:        traced,
		Transactions: c.txns,
		Nodes:        c.nodes,
		Operations:   c.ops,
	}
}

// processingChain: farmer F harvests raw b1, processor P turns it into b2 and sells
// all of it to exporter E as b3.
type processingChain struct {
	*chain
	f, p, e        model.Node
	raw, processed *model.Product
	b1, b2, b3     model.Batch
}

func newProcessingChain() *processingChain {
	s := &processingChain{chain: newChain()}
	s.f = s.node("Fatima", model.NodeFarmer, "Farmer", 6.123456, -75.654321)
	s.p = s.node("Procafe", model.NodeCompany, "Processor", 6.2, -75.5)
	s.e = s.node("Exportadora", model.NodeCompany, "Exporter", 4.6, -74.1)
	s.raw = &model.Product{ID: uuid.New(), Name: "raw"}
	s.processed = &model.Product{ID: uuid.New(), Name: "processed"}

	s.b1 = batch(s.f, s.raw, 100, nil)
	t1 := s.internal(s.p, model.InternalProcessing, day0, 100, consume(&s.b1, 100))
	s.b2 = batch(s.p, s.processed, 100, t1)
	t1.ResultBatches = []model.Batch{s.b2}

	t2 := s.external(s.p, s.e, day0.Add(48*time.Hour), consume(&s.b2, 100))
	s.b3 = batch(s.e, s.processed, 100, t2)
	t2.ResultBatches = []model.Batch{s.b3}
	return s
}

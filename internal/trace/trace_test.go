package trace_test

import (
	"encoding/json"
	"math/rand/v2"
	"testing"
	"time"

	"fairtrace/internal/model"
	"fairtrace/internal/trace"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestProcessingChainStages(t *testing.T) {
	s := newProcessingChain()
	actors := trace.BuildActors(s.input(s.b3))
	require.Len(t, actors, 3)

	stages := trace.BuildStages(actors, nil)
	require.Len(t, stages, 2)

	farm, proc := stages[0], stages[1]
	assert.Equal(t, "Farmer", farm.Title)
	assert.Equal(t, 2, farm.Tier)
	assert.Equal(t, "Fatima", farm.ActorName)
	require.Len(t, farm.Actors, 1)
	assert.Equal(t, s.f.ID, farm.Actors[0].ID)
	require.Len(t, farm.StageProducts, 1)
	assert.Equal(t, "raw", farm.StageProducts[0].Name)

	assert.Equal(t, "Processor", proc.Title)
	assert.Equal(t, 1, proc.Tier)
	require.Len(t, proc.Actors, 1)
	assert.Equal(t, s.p.ID, proc.Actors[0].ID)
	require.Len(t, proc.StageProducts, 1)
	assert.Equal(t, "processed", proc.StageProducts[0].Name)
	require.NotNil(t, proc.Date)
	assert.Equal(t, day0.Add(48*time.Hour), *proc.Date)
}

func TestProcessingChainConnections(t *testing.T) {
	s := newProcessingChain()
	actors := trace.BuildActors(s.input(s.b3))
	records := map[uuid.UUID]trace.ActorRecord{}
	for _, r := range trace.MapRecords(actors) {
		records[r.ID] = r
	}

	at := func(n model.Node) trace.Coordinate {
		return trace.Coordinate{Latitude: n.Latitude, Longitude: n.Longitude}
	}
	assert.Equal(t, []trace.Coordinate{at(s.p)}, records[s.f.ID].ConnectedTo)
	assert.ElementsMatch(t, []trace.Coordinate{at(s.f), at(s.e)}, records[s.p.ID].ConnectedTo)
	assert.Equal(t, []trace.Coordinate{at(s.p)}, records[s.e.ID].ConnectedTo)

	p := records[s.p.ID]
	assert.Equal(t, 2, p.TransactionCount)
	assert.Equal(t, "200", p.TransactionQuantity.String())
	require.Len(t, p.Products, 2)
	assert.Equal(t, "processed", p.Products[0].Name)
	assert.Equal(t, "outgoing and processed", p.Products[0].Type)
	assert.Equal(t, "incoming", p.Products[1].Type)

	assert.Equal(t, 0, records[s.e.ID].Tier)
	assert.Equal(t, "100", records[s.f.ID].TransactionQuantity.String())
}

func TestFarmOriginBatch(t *testing.T) {
	c := newChain()
	f := c.node("Fatima", model.NodeFarmer, "Farmer", 1, 2)
	b := batch(f, &model.Product{ID: uuid.New(), Name: "cherry"}, 50, nil)

	actors := trace.BuildActors(c.input(b))
	require.Len(t, actors, 1)
	stages := trace.BuildStages(actors, nil)
	require.Len(t, stages, 1)
	assert.Equal(t, "Farmer", stages[0].Title)
	assert.Equal(t, f.ID, stages[0].Actors[0].ID)
	assert.Nil(t, stages[0].Date)
}

func TestThemeOverridesStageTitle(t *testing.T) {
	s := newProcessingChain()
	theme := &model.Theme{StageTitles: datatypes.JSONMap{
		s.ops[s.f.ID].ID.String(): "Grown by",
	}}
	stages := trace.BuildStages(trace.BuildActors(s.input(s.b3)), theme)
	assert.Equal(t, "Grown by", stages[0].Title)
	assert.Equal(t, "Processor", stages[1].Title)
}

func TestStageGroupsManyActors(t *testing.T) {
	c := newChain()
	coop := c.node("Coop", model.NodeCompany, "Collector", 0, 0)
	cherry := &model.Product{ID: uuid.New(), Name: "cherry"}
	var sources []model.SourceBatch
	for i := 0; i < 12; i++ {
		f := c.node(uuid.NewString()[:8], model.NodeFarmer, "Farmer", float64(i), float64(i))
		if i%3 == 0 {
			f.Image = "farmer.png"
			c.nodes[f.ID] = f
		}
		b := batch(f, cherry, 10, nil)
		txn := c.external(f, coop, day0.Add(time.Duration(i)*time.Hour), consume(&b, 10))
		rb := batch(coop, cherry, 10, txn)
		txn.ResultBatches = []model.Batch{rb}
		sources = append(sources, consume(&rb, 10))
	}
	merge := c.internal(coop, model.InternalMerge, day0.Add(24*time.Hour), 120, sources...)
	merged := batch(coop, cherry, 120, merge)
	merge.ResultBatches = []model.Batch{merged}

	stages := trace.BuildStages(trace.BuildActors(c.input(merged)), nil)
	require.Len(t, stages, 1)
	st := stages[0]
	assert.Equal(t, "12 Farmers", st.ActorName)
	require.Len(t, st.Actors, 12)
	for i, a := range st.Actors {
		assert.Equal(t, i < 4, a.Image != "", "actors with images come first")
	}
	assert.Equal(t, day0.Add(11*time.Hour), *st.Date)
}

func TestMultiTierActorLandsOnMaxTier(t *testing.T) {
	// P sells to T, buys back from T and sells again to E
	c := newChain()
	p := c.node("P", model.NodeCompany, "Processor", 0, 0)
	tr := c.node("T", model.NodeCompany, "Trader", 1, 1)
	e := c.node("E", model.NodeCompany, "Exporter", 2, 2)
	prod := &model.Product{ID: uuid.New(), Name: "green"}

	b0 := batch(p, prod, 10, nil)
	t1 := c.external(p, tr, day0, consume(&b0, 10))
	b1 := batch(tr, prod, 10, t1)
	t1.ResultBatches = []model.Batch{b1}
	t2 := c.external(tr, p, day0.Add(time.Hour), consume(&b1, 10))
	b2 := batch(p, prod, 10, t2)
	t2.ResultBatches = []model.Batch{b2}
	t3 := c.external(p, e, day0.Add(2*time.Hour), consume(&b2, 10))
	b3 := batch(e, prod, 10, t3)
	t3.ResultBatches = []model.Batch{b3}

	// shuffled input order must not change the outcome
	r := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 5; i++ {
		in := c.input(b3)
		in.Transactions = append([]model.Transaction(nil), c.txns...)
		r.Shuffle(len(in.Transactions), func(a, b int) {
			in.Transactions[a], in.Transactions[b] = in.Transactions[b], in.Transactions[a]
		})
		actors := trace.BuildActors(in)
		assert.Equal(t, 3, actors[p.ID].Tier)
		assert.Equal(t, 2, actors[tr.ID].Tier)

		stages := trace.BuildStages(actors, nil)
		require.Len(t, stages, 2)
		assert.Equal(t, "Processor", stages[0].Title)
		assert.Equal(t, "Trader", stages[1].Title)
	}
}

func TestLossDoesNotCountQuantity(t *testing.T) {
	c := newChain()
	p := c.node("P", model.NodeCompany, "Processor", 0, 0)
	prod := &model.Product{ID: uuid.New(), Name: "green"}
	b0 := batch(p, prod, 100, nil)
	c.internal(p, model.InternalLoss, day0, 0, consume(&b0, 5))
	split := c.internal(p, model.InternalSplit, day0, 95, consume(&b0, 95))
	b1 := batch(p, prod, 95, split)
	split.ResultBatches = []model.Batch{b1}

	actors := trace.BuildActors(c.input(b1))
	rec := actors[p.ID].Record(actors)
	assert.Equal(t, 2, rec.TransactionCount)
	assert.Equal(t, "95", rec.TransactionQuantity.String())
}

func TestAnonymousFarmer(t *testing.T) {
	s := newProcessingChain()
	f := s.nodes[s.f.ID]
	f.ConsentStatus = model.ConsentPending
	f.Image = "face.jpg"
	s.nodes[s.f.ID] = f

	actors := trace.BuildActors(s.input(s.b3))
	rec := actors[s.f.ID].Record(actors)
	assert.Equal(t, trace.AnonymousName, rec.Name)
	assert.Empty(t, rec.Image)
	assert.True(t, rec.Anonymous)
	assert.Equal(t, 6.12, rec.Latitude)
	assert.Equal(t, -75.65, rec.Longitude)
	assert.Equal(t, "100", rec.TransactionQuantity.String(), "still counted")

	p := actors[s.p.ID].Record(actors)
	assert.Contains(t, p.ConnectedTo, trace.Coordinate{Latitude: 6.12, Longitude: -75.65})

	stages := trace.BuildStages(actors, nil)
	assert.Equal(t, trace.AnonymousName, stages[0].ActorName)
}

func TestAggregationIsDeterministicAndIdempotent(t *testing.T) {
	s := newProcessingChain()
	in := s.input(s.b3)

	first, err := json.Marshal(trace.BuildStages(trace.BuildActors(in), nil))
	require.NoError(t, err)
	second, err := json.Marshal(trace.BuildStages(trace.BuildActors(in), nil))
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))

	// feeding every transaction twice must not double count
	doubled := in
	doubled.Transactions = append(append([]model.Transaction(nil), in.Transactions...), in.Transactions...)
	actors := trace.BuildActors(doubled)
	p := actors[s.p.ID].Record(actors)
	assert.Equal(t, 2, p.TransactionCount)
	assert.Equal(t, "200", p.TransactionQuantity.String())

	again := trace.MergeActor(actors[s.p.ID], actors[s.p.ID])
	assert.Equal(t, p, again.Record(actors))
}

func TestTiersFollowExternalHops(t *testing.T) {
	s := newProcessingChain()
	tiers := trace.Tiers(s.txns)
	assert.Equal(t, 1, tiers[s.txns[0].ID])
	assert.Equal(t, 0, tiers[s.txns[1].ID])
}

func TestCombineProducts(t *testing.T) {
	id := uuid.New()
	other := uuid.New()
	got := trace.CombineProducts(
		[]trace.ProductRef{{ID: id, Name: "cocoa", Type: "outgoing"}, {ID: other, Name: "beans", Type: "incoming"}},
		[]trace.ProductRef{{ID: id, Name: "cocoa", Type: "processed"}, {ID: id, Name: "cocoa", Type: "incoming"}},
	)
	require.Len(t, got, 2)
	assert.Equal(t, "beans", got[0].Name)
	assert.Equal(t, "incoming, outgoing and processed", got[1].Type)

	// already combined entries recombine without duplicates
	again := trace.CombineProducts(got, []trace.ProductRef{{ID: id, Name: "cocoa", Type: "outgoing"}})
	assert.Equal(t, got, again)
}

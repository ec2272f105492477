package trace

import (
	"bytes"
	"cmp"
	"slices"
	"strings"
	"time"

	"fairtrace/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AnonymousName replaces the name of farmers who have not granted consent.
const AnonymousName = "Anonymous"

// share is one transaction's contribution to an actor.
type share struct {
	date     time.Time
	quantity decimal.Decimal
}

type productKey struct {
	id   uuid.UUID
	role Role
}

// Actor accumulates everything known about one node across a trace. All
// collections are keyed, so merging the same transaction twice changes
// nothing.
type Actor struct {
	Node      model.Node
	Tier      int
	Operation *model.Operation
	Claims    []model.Claim

	txns      map[uuid.UUID]share
	products  map[productKey]string // -> product name
	connected map[uuid.UUID]struct{}
}

func newActor(node model.Node, tier int) *Actor {
	return &Actor{
		Node:      node,
		Tier:      tier,
		txns:      make(map[uuid.UUID]share),
		products:  make(map[productKey]string),
		connected: make(map[uuid.UUID]struct{}),
	}
}

func (a *Actor) addTransaction(id uuid.UUID, date time.Time, qty decimal.Decimal) {
	if _, ok := a.txns[id]; !ok {
		a.txns[id] = share{date: date, quantity: qty}
	}
}

func (a *Actor) addProduct(b *model.Batch, role Role) {
	if b == nil {
		return
	}
	name := ""
	if b.Product != nil {
		name = b.Product.Name
	}
	a.products[productKey{id: b.ProductID, role: role}] = name
}

func (a *Actor) connect(other uuid.UUID) {
	if other != a.Node.ID {
		a.connected[other] = struct{}{}
	}
}

// TransactionCount is the number of distinct transactions touching the actor.
func (a *Actor) TransactionCount() int { return len(a.txns) }

// TransactionQuantity sums the actor's share of every transaction.
func (a *Actor) TransactionQuantity() decimal.Decimal {
	total := decimal.Zero
	for _, s := range a.txns {
		total = total.Add(s.quantity)
	}
	return total
}

// LastDate is the latest transaction date, zero when there are none.
func (a *Actor) LastDate() time.Time {
	var last time.Time
	for _, s := range a.txns {
		if s.date.After(last) {
			last = s.date
		}
	}
	return last
}

// Products returns the actor's products with combined roles.
func (a *Actor) Products() []ProductRef {
	refs := make([]ProductRef, 0, len(a.products))
	for k, name := range a.products {
		refs = append(refs, ProductRef{ID: k.id, Name: name, Type: string(k.role)})
	}
	return CombineProducts(refs)
}

// MergeActor folds src into dst. Transactions, products, connections and
// claims are unioned by key (first wins), the tier is the maximum of both and
// the operation is kept unless dst has none. dst is returned; a nil dst
// yields a copy of src.
func MergeActor(dst, src *Actor) *Actor {
	if src == nil {
		return dst
	}
	if dst == nil {
		dst = newActor(src.Node, src.Tier)
	}
	if src.Tier > dst.Tier {
		dst.Tier = src.Tier
	}
	if dst.Operation == nil {
		dst.Operation = src.Operation
	}
	for id, s := range src.txns {
		dst.addTransaction(id, s.date, s.quantity)
	}
	for k, name := range src.products {
		if _, ok := dst.products[k]; !ok {
			dst.products[k] = name
		}
	}
	for id := range src.connected {
		dst.connect(id)
	}
	for _, c := range src.Claims {
		if !slices.ContainsFunc(dst.Claims, func(x model.Claim) bool { return x.ID == c.ID }) {
			dst.Claims = append(dst.Claims, c)
		}
	}
	return dst
}

// BuildActors collects every actor involved in the input: source and
// destination of external transactions, the acting node of internal ones,
// owners of consumed batches other than the acting node, and the owner of
// the traced batch at tier 0.
func BuildActors(in Input) map[uuid.UUID]*Actor {
	tiers := Tiers(in.Transactions)
	actors := make(map[uuid.UUID]*Actor)

	fresh := func(id uuid.UUID, tier int) *Actor {
		node, ok := in.Nodes[id]
		if !ok {
			node = model.Node{ID: id}
		}
		a := newActor(node, tier)
		if op, ok := in.Operations[id]; ok {
			a.Operation = &op
		}
		a.Claims = in.CompanyClaims[id]
		return a
	}
	merge := func(frags ...*Actor) {
		for _, f := range frags {
			actors[f.Node.ID] = MergeActor(actors[f.Node.ID], f)
		}
	}

	merge(fresh(in.Batch.NodeID, 0))

	txns := slices.Clone(in.Transactions)
	slices.SortFunc(txns, func(a, b model.Transaction) int {
		return cmp.Or(
			cmp.Compare(tiers[a.ID], tiers[b.ID]),
			a.Date.Compare(b.Date),
			cmp.Compare(a.Number, b.Number),
			bytes.Compare(a.ID[:], b.ID[:]),
		)
	})

	for i := range txns {
		t := &txns[i]
		tier := tiers[t.ID]

		var acting *Actor
		var actingTier int
		switch {
		case t.IsExternal():
			if t.SourceNodeID == nil || t.DestinationNodeID == nil {
				continue
			}
			src := fresh(*t.SourceNodeID, tier+1)
			dst := fresh(*t.DestinationNodeID, tier)
			src.addTransaction(t.ID, t.Date, t.SourceQuantity)
			dst.addTransaction(t.ID, t.Date, t.DestinationQuantity)
			for j := range t.SourceBatches {
				src.addProduct(t.SourceBatches[j].Batch, RoleOutgoing)
			}
			for j := range t.ResultBatches {
				dst.addProduct(&t.ResultBatches[j], RoleIncoming)
			}
			src.connect(dst.Node.ID)
			dst.connect(src.Node.ID)
			merge(src, dst)
			acting, actingTier = src, tier+1
		default:
			if t.NodeID == nil {
				continue
			}
			node := fresh(*t.NodeID, tier)
			qty := t.DestinationQuantity
			if t.InternalType == model.InternalLoss {
				qty = decimal.Zero
			}
			node.addTransaction(t.ID, t.Date, qty)
			for j := range t.SourceBatches {
				node.addProduct(t.SourceBatches[j].Batch, RoleIncoming)
			}
			for j := range t.ResultBatches {
				node.addProduct(&t.ResultBatches[j], RoleProcessed)
			}
			merge(node)
			acting, actingTier = node, tier
		}

		// owners of consumed batches that did not act themselves
		owners := make(map[uuid.UUID]*Actor)
		var order []uuid.UUID
		for j := range t.SourceBatches {
			sb := &t.SourceBatches[j]
			if sb.Batch == nil || sb.Batch.NodeID == acting.Node.ID {
				continue
			}
			owner, ok := owners[sb.Batch.NodeID]
			if !ok {
				owner = fresh(sb.Batch.NodeID, actingTier+1)
				owners[sb.Batch.NodeID] = owner
				order = append(order, sb.Batch.NodeID)
			}
			prev := owner.txns[t.ID]
			owner.txns[t.ID] = share{date: t.Date, quantity: prev.quantity.Add(sb.Quantity)}
			owner.addProduct(sb.Batch, RoleOutgoing)
			owner.connect(acting.Node.ID)
		}
		for _, id := range order {
			link := newActor(acting.Node, acting.Tier)
			link.connect(id)
			merge(owners[id], link)
		}
	}
	return actors
}

// ActorRecord is the display form of an actor.
type ActorRecord struct {
	ID                  uuid.UUID       `json:"id"`
	Name                string          `json:"name"`
	Type                model.NodeType  `json:"type"`
	Image               string          `json:"image"`
	Latitude            float64         `json:"latitude"`
	Longitude           float64         `json:"longitude"`
	Tier                int             `json:"tier"`
	Anonymous           bool            `json:"anonymous"`
	PrimaryOperation    *OperationRef   `json:"primary_operation"`
	TransactionCount    int             `json:"transaction_count"`
	TransactionQuantity decimal.Decimal `json:"transaction_quantity"`
	Products            []ProductRef    `json:"products"`
	Transactions        []uuid.UUID     `json:"transactions"`
	ConnectedTo         []Coordinate    `json:"connected_to"`
	Claims              []ClaimRef      `json:"claims"`
}

// displayNode applies the consent gate: farmers without granted consent keep
// their aggregates but lose name, image and precise location.
func displayNode(n model.Node) (name, image string, at Coordinate, anonymous bool) {
	if n.IsAnonymous() {
		return AnonymousName, "", Coordinate{
			Latitude:  round2(decimal.NewFromFloat(n.Latitude)),
			Longitude: round2(decimal.NewFromFloat(n.Longitude)),
		}, true
	}
	return n.Name, n.Image, Coordinate{Latitude: n.Latitude, Longitude: n.Longitude}, false
}

// Record renders the actor. actors resolves counterpart coordinates.
func (a *Actor) Record(actors map[uuid.UUID]*Actor) ActorRecord {
	name, image, at, anon := displayNode(a.Node)
	rec := ActorRecord{
		ID:                  a.Node.ID,
		Name:                name,
		Type:                a.Node.Type,
		Image:               image,
		Latitude:            at.Latitude,
		Longitude:           at.Longitude,
		Tier:                a.Tier,
		Anonymous:           anon,
		TransactionCount:    a.TransactionCount(),
		TransactionQuantity: a.TransactionQuantity(),
		Products:            a.Products(),
		Transactions:        make([]uuid.UUID, 0, len(a.txns)),
		ConnectedTo:         []Coordinate{},
		Claims:              []ClaimRef{},
	}
	if a.Operation != nil {
		rec.PrimaryOperation = &OperationRef{ID: a.Operation.ID, Name: a.Operation.Name}
	}

	for id := range a.txns {
		rec.Transactions = append(rec.Transactions, id)
	}
	slices.SortFunc(rec.Transactions, func(x, y uuid.UUID) int {
		return cmp.Or(a.txns[x].date.Compare(a.txns[y].date), bytes.Compare(x[:], y[:]))
	})

	others := make([]uuid.UUID, 0, len(a.connected))
	for id := range a.connected {
		others = append(others, id)
	}
	slices.SortFunc(others, func(x, y uuid.UUID) int { return bytes.Compare(x[:], y[:]) })
	seen := make(map[Coordinate]struct{})
	for _, id := range others {
		other, ok := actors[id]
		if !ok {
			continue
		}
		_, _, c, _ := displayNode(other.Node)
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		rec.ConnectedTo = append(rec.ConnectedTo, c)
	}

	for _, c := range a.Claims {
		rec.Claims = append(rec.Claims, ClaimRef{ID: c.ID, Name: c.Name, Image: c.Image})
	}
	slices.SortFunc(rec.Claims, func(x, y ClaimRef) int {
		return cmp.Or(strings.Compare(x.Name, y.Name), bytes.Compare(x.ID[:], y.ID[:]))
	})
	return rec
}

// MapRecords renders every actor, farthest tier first, then by name and id.
func MapRecords(actors map[uuid.UUID]*Actor) []ActorRecord {
	out := make([]ActorRecord, 0, len(actors))
	for _, a := range actors {
		out = append(out, a.Record(actors))
	}
	slices.SortFunc(out, func(x, y ActorRecord) int {
		return cmp.Or(
			cmp.Compare(y.Tier, x.Tier),
			strings.Compare(x.Name, y.Name),
			bytes.Compare(x.ID[:], y.ID[:]),
		)
	})
	return out
}

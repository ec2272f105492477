// Package graph implements the parent/child DAG algebra shared by every
// entity that links to itself (transactions, batches, node connections).
//
// Edges are persisted by a Store; Graph adds cycle prevention and bounded
// traversal on top of it. Traversal is an explicit breadth-first worklist with
// a visited set, fetching one frontier per Store call instead of one query per
// node.
package graph

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// DefaultMaxNodes bounds a single traversal when no limit is configured.
const DefaultMaxNodes = 10000

// ErrTraversalTooLarge is returned when a walk visits more nodes than the
// configured ceiling. The partial result is discarded.
var ErrTraversalTooLarge = errors.New("graph: traversal exceeds node ceiling")

// CycleError reports an edge that was rejected because it would link a node
// to itself or close a cycle.
type CycleError struct {
	Parent   uuid.UUID
	Child    uuid.UUID
	SelfLink bool
}

func (e *CycleError) Error() string {
	if e.SelfLink {
		return fmt.Sprintf("graph: self link on %s", e.Child)
	}
	return fmt.Sprintf("graph: edge %s -> %s creates a cycle", e.Parent, e.Child)
}

// Store persists edges. Parents and Children resolve a whole frontier at once
// and return adjacency keyed by the requested id (missing keys mean no edges).
type Store interface {
	Parents(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error)
	Children(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error)
	Link(ctx context.Context, parent, child uuid.UUID) error
	Unlink(ctx context.Context, parent, child uuid.UUID) error
}

// Locker is implemented by stores that can serialise edge writers across
// processes. The lock is held until the store's unit of work ends and must be
// reentrant within it.
type Locker interface {
	Lock(ctx context.Context) error
}

// Direction selects which edges a walk follows.
type Direction int

const (
	Up   Direction = iota // towards parents
	Down                  // towards children
)

// Visit is a node reached by a walk with its minimum hop distance from the
// start node.
type Visit struct {
	ID    uuid.UUID `json:"id"`
	Depth int       `json:"depth"`
}

// Graph is the DAG view over a Store.
type Graph struct {
	store    Store
	maxNodes int
	mu       *sync.Mutex
}

// New returns a Graph. maxNodes <= 0 selects DefaultMaxNodes.
func New(store Store, maxNodes int) *Graph {
	if maxNodes <= 0 {
		maxNodes = DefaultMaxNodes
	}
	return &Graph{store: store, maxNodes: maxNodes, mu: new(sync.Mutex)}
}

// Store returns the underlying edge store.
func (g *Graph) Store() Store { return g.store }

// Bind returns a view of the same graph over another store, typically the
// same edge table bound to a database transaction. Views share the writer
// mutex and the node ceiling.
func (g *Graph) Bind(store Store) *Graph {
	return &Graph{store: store, maxNodes: g.maxNodes, mu: g.mu}
}

// AddParent links parent -> node. The cycle check and the insert run under a
// single writer lock: the store's lock when the store is a Locker, the graph
// mutex otherwise. Taking both would deadlock a second writer that already
// holds the store lock for its whole unit of work.
func (g *Graph) AddParent(ctx context.Context, node, parent uuid.UUID) error {
	if node == parent {
		return &CycleError{Parent: parent, Child: node, SelfLink: true}
	}

	if l, ok := g.store.(Locker); ok {
		if err := l.Lock(ctx); err != nil {
			return fmt.Errorf("graph: lock: %w", err)
		}
	} else {
		g.mu.Lock()
		defer g.mu.Unlock()
	}

	// parent must not already descend from node.
	cyclic, err := g.reaches(ctx, node, parent, Down)
	if err != nil {
		return err
	}
	if cyclic {
		return &CycleError{Parent: parent, Child: node}
	}
	return g.store.Link(ctx, parent, node)
}

// reaches reports whether target is reachable from start. It stops at the
// first hit and ignores the node ceiling, which bounds reads only.
func (g *Graph) reaches(ctx context.Context, start, target uuid.UUID, dir Direction) (bool, error) {
	visited := map[uuid.UUID]struct{}{start: {}}
	frontier := []uuid.UUID{start}
	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		adj, err := g.neighbours(ctx, frontier, dir)
		if err != nil {
			return false, err
		}
		var next []uuid.UUID
		for _, id := range frontier {
			for _, n := range adj[id] {
				if n == target {
					return true, nil
				}
				if _, seen := visited[n]; seen {
					continue
				}
				visited[n] = struct{}{}
				next = append(next, n)
			}
		}
		frontier = next
	}
	return false, nil
}

// AddChild links node -> child.
func (g *Graph) AddChild(ctx context.Context, node, child uuid.UUID) error {
	return g.AddParent(ctx, child, node)
}

// RemoveParent drops the parent -> node edge. Descendants are untouched.
func (g *Graph) RemoveParent(ctx context.Context, node, parent uuid.UUID) error {
	return g.store.Unlink(ctx, parent, node)
}

// RemoveChild drops the node -> child edge.
func (g *Graph) RemoveChild(ctx context.Context, node, child uuid.UUID) error {
	return g.store.Unlink(ctx, node, child)
}

// Option tunes a walk.
type Option func(*walkOptions)

type walkOptions struct {
	includeSelf bool
	restrict    map[uuid.UUID]struct{}
}

// IncludeSelf makes the start node part of the result at depth 0.
func IncludeSelf() Option {
	return func(o *walkOptions) { o.includeSelf = true }
}

// WithRestriction prunes the walk to nodes in set. Nodes outside it are
// neither returned nor expanded. A nil set disables pruning.
func WithRestriction(set map[uuid.UUID]struct{}) Option {
	return func(o *walkOptions) { o.restrict = set }
}

// Walk visits every node reachable from start in direction dir, breadth
// first. Each node appears once with its minimum depth; within one depth
// nodes are ordered by id so results are stable for a stable edge set.
func (g *Graph) Walk(ctx context.Context, start uuid.UUID, dir Direction, opts ...Option) ([]Visit, error) {
	var o walkOptions
	for _, opt := range opts {
		opt(&o)
	}

	visited := map[uuid.UUID]int{start: 0}
	var out []Visit
	if o.includeSelf {
		out = append(out, Visit{ID: start, Depth: 0})
	}

	frontier := []uuid.UUID{start}
	for depth := 1; len(frontier) > 0; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		adj, err := g.neighbours(ctx, frontier, dir)
		if err != nil {
			return nil, err
		}

		var next []uuid.UUID
		for _, id := range frontier {
			for _, n := range adj[id] {
				if _, seen := visited[n]; seen {
					continue
				}
				if o.restrict != nil {
					if _, ok := o.restrict[n]; !ok {
						continue
					}
				}
				visited[n] = depth
				next = append(next, n)
				if len(visited) > g.maxNodes {
					return nil, fmt.Errorf("%w (limit %d)", ErrTraversalTooLarge, g.maxNodes)
				}
			}
		}
		sortIDs(next)
		for _, n := range next {
			out = append(out, Visit{ID: n, Depth: depth})
		}
		frontier = next
	}
	return out, nil
}

// Ancestors returns every node reachable over parent edges.
func (g *Graph) Ancestors(ctx context.Context, id uuid.UUID, opts ...Option) ([]uuid.UUID, error) {
	visits, err := g.Walk(ctx, id, Up, opts...)
	if err != nil {
		return nil, err
	}
	return ids(visits), nil
}

// Descendants returns every node reachable over child edges.
func (g *Graph) Descendants(ctx context.Context, id uuid.UUID, opts ...Option) ([]uuid.UUID, error) {
	visits, err := g.Walk(ctx, id, Down, opts...)
	if err != nil {
		return nil, err
	}
	return ids(visits), nil
}

// Levels groups the nodes reachable from id by their hop distance. Level 0
// is never included.
func (g *Graph) Levels(ctx context.Context, id uuid.UUID, dir Direction) (map[int][]uuid.UUID, error) {
	visits, err := g.Walk(ctx, id, dir)
	if err != nil {
		return nil, err
	}
	levels := make(map[int][]uuid.UUID)
	for _, v := range visits {
		levels[v.Depth] = append(levels[v.Depth], v.ID)
	}
	return levels, nil
}

// LeafNodes returns the descendants of id (or id itself) without children.
func (g *Graph) LeafNodes(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	return g.terminal(ctx, id, Down)
}

// RootNodes returns the ancestors of id (or id itself) without parents.
func (g *Graph) RootNodes(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	return g.terminal(ctx, id, Up)
}

// IsIsland reports whether id has neither parents nor children.
func (g *Graph) IsIsland(ctx context.Context, id uuid.UUID) (bool, error) {
	parents, err := g.store.Parents(ctx, []uuid.UUID{id})
	if err != nil {
		return false, err
	}
	if len(parents[id]) > 0 {
		return false, nil
	}
	children, err := g.store.Children(ctx, []uuid.UUID{id})
	if err != nil {
		return false, err
	}
	return len(children[id]) == 0, nil
}

func (g *Graph) terminal(ctx context.Context, id uuid.UUID, dir Direction) ([]uuid.UUID, error) {
	nodes, err := g.Walk(ctx, id, dir, IncludeSelf())
	if err != nil {
		return nil, err
	}
	all := ids(nodes)
	adj, err := g.neighbours(ctx, all, dir)
	if err != nil {
		return nil, err
	}
	var out []uuid.UUID
	for _, n := range all {
		if len(adj[n]) == 0 {
			out = append(out, n)
		}
	}
	return out, nil
}

func (g *Graph) neighbours(ctx context.Context, ids []uuid.UUID, dir Direction) (map[uuid.UUID][]uuid.UUID, error) {
	if dir == Up {
		return g.store.Parents(ctx, ids)
	}
	return g.store.Children(ctx, ids)
}

func ids(visits []Visit) []uuid.UUID {
	out := make([]uuid.UUID, len(visits))
	for i, v := range visits {
		out[i] = v.ID
	}
	return out
}

func sortIDs(s []uuid.UUID) {
	slices.SortFunc(s, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })
}

// Set builds a lookup set from ids.
func Set(ids ...uuid.UUID) map[uuid.UUID]struct{} {
	s := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

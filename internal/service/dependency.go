package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dotwork/issuegraph/internal/audit"
	"github.com/dotwork/issuegraph/internal/types"
	"github.com/dotwork/issuegraph/internal/uow"
)

// DependencyService implements add/remove/traverse over the typed
// dependency graph (spec §4.7). Cycle detection is entirely in-memory:
// one AdjacencyForKind round trip, then DFS, never a per-edge query.
type DependencyService struct {
	u     *uow.UnitOfWork
	audit *audit.Log
}

func NewDependencyService(u *uow.UnitOfWork, auditLog *audit.Log) *DependencyService {
	return &DependencyService{u: u, audit: auditLog}
}

// Direction selects which edges list_for returns relative to an issue.
type Direction string

const (
	DirectionOut  Direction = "out"
	DirectionIn   Direction = "in"
	DirectionBoth Direction = "both"
)

// AddDependency validates both endpoints exist, rejects a self-loop,
// and rejects an edge that would close a cycle in that kind's graph
// before inserting.
func (s *DependencyService) AddDependency(ctx context.Context, from, to types.ID, kind types.DependencyKind, user string) error {
	if from == to {
		return types.NewValidationError("to", "an issue cannot depend on itself")
	}
	if !kind.IsValid() {
		return types.NewValidationError("kind", "unknown dependency kind "+string(kind))
	}
	if _, err := s.u.Issues().Get(ctx, from); err != nil {
		return fmt.Errorf("resolve from issue %s: %w", from, err)
	}
	if _, err := s.u.Issues().Get(ctx, to); err != nil {
		return fmt.Errorf("resolve to issue %s: %w", to, err)
	}

	adjacency, err := s.u.Dependencies().AdjacencyForKind(ctx, kind)
	if err != nil {
		return fmt.Errorf("load %s adjacency: %w", kind, err)
	}
	if reachable(adjacency, to, from) {
		return &types.CycleError{From: from, To: to, Kind: kind}
	}

	dep := &types.Dependency{FromIssueID: from, ToIssueID: to, Kind: kind, CreatedAt: time.Now(), CreatedBy: user}
	if err := s.u.Dependencies().Add(ctx, dep); err != nil {
		return fmt.Errorf("add dependency: %w", err)
	}
	if s.audit != nil && user != "" {
		_ = s.audit.Record(ctx, types.ActionUpdate, "dependency", fmt.Sprintf("%s->%s", from, to), user, fmt.Sprintf("added %s edge to %s", kind, to))
	}
	return nil
}

// reachable reports whether target is reachable from start by DFS over
// the adjacency map, start included.
func reachable(adjacency map[types.ID][]types.ID, start, target types.ID) bool {
	if start == target {
		return true
	}
	visited := make(map[types.ID]bool)
	stack := []types.ID{start}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[node] {
			continue
		}
		visited[node] = true
		if node == target {
			return true
		}
		stack = append(stack, adjacency[node]...)
	}
	return false
}

// RemoveDependency is idempotent: removing an edge that is already
// absent is not an error.
func (s *DependencyService) RemoveDependency(ctx context.Context, from, to types.ID, kind types.DependencyKind) error {
	err := s.u.Dependencies().Remove(ctx, from, to, kind)
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		return fmt.Errorf("remove dependency: %w", err)
	}
	return nil
}

// ListFor returns the edges touching id, filtered by direction.
func (s *DependencyService) ListFor(ctx context.Context, id types.ID, direction Direction) ([]*types.Dependency, error) {
	all, err := s.u.Dependencies().ListFor(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list dependencies for %s: %w", id, err)
	}
	if direction == DirectionBoth || direction == "" {
		return all, nil
	}
	var out []*types.Dependency
	for _, d := range all {
		switch direction {
		case DirectionOut:
			if d.FromIssueID == id {
				out = append(out, d)
			}
		case DirectionIn:
			if d.ToIssueID == id {
				out = append(out, d)
			}
		}
	}
	return out, nil
}

const maxTreeDepth = 1000

// Tree walks the kind graph outward from rootID, depth-first, marking
// the node where a cycle closes rather than looping forever.
func (s *DependencyService) Tree(ctx context.Context, rootID types.ID, kind types.DependencyKind) ([]types.TreeNode, error) {
	adjacency, err := s.u.Dependencies().AdjacencyForKind(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("load %s adjacency: %w", kind, err)
	}
	root, err := s.u.Issues().Get(ctx, rootID)
	if err != nil {
		return nil, fmt.Errorf("resolve root %s: %w", rootID, err)
	}

	var out []types.TreeNode
	onPath := map[types.ID]bool{rootID: true}
	var walk func(node *types.Issue, depth int) error
	walk = func(node *types.Issue, depth int) error {
		out = append(out, types.TreeNode{Issue: *node, Depth: depth})
		if depth >= maxTreeDepth {
			return nil
		}
		for _, childID := range adjacency[node.ID] {
			if onPath[childID] {
				child, err := s.u.Issues().Get(ctx, childID)
				if err != nil {
					return fmt.Errorf("resolve %s: %w", childID, err)
				}
				out = append(out, types.TreeNode{Issue: *child, Depth: depth + 1, CycleStop: true})
				continue
			}
			child, err := s.u.Issues().Get(ctx, childID)
			if err != nil {
				return fmt.Errorf("resolve %s: %w", childID, err)
			}
			onPath[childID] = true
			if err := walk(child, depth+1); err != nil {
				return err
			}
			onPath[childID] = false
		}
		return nil
	}
	if err := walk(root, 0); err != nil {
		return nil, err
	}
	return out, nil
}

// ReadyQueue delegates the readiness predicate to the repository
// (proposed or in_progress, no incoming blocks edge from a non-terminal
// issue, no outgoing depends_on edge to a non-terminal issue) and
// orders by priority then created_at.
func (s *DependencyService) ReadyQueue(ctx context.Context, projectID *types.ID, opts types.ListOptions) ([]*types.Issue, error) {
	issues, err := s.u.Dependencies().ReadyQueue(ctx, projectID, opts.Normalize())
	if err != nil {
		return nil, fmt.Errorf("ready queue: %w", err)
	}
	return issues, nil
}

// Cycle is one simple cycle found by DetectCycles, reported as the
// ordered sequence of issue ids that closes back on itself.
type Cycle struct {
	Kind types.DependencyKind
	Path []types.ID
}

// DetectCycles runs Tarjan's SCC over every dependency kind and
// extracts one representative simple cycle from each nontrivial
// strongly connected component, for diagnostics (spec §4.7). Other
// cycles inside the same component are not listed. A self-loop SCC of size 1 is
// impossible by construction (add_dependency forbids it), so SCCs of
// size 1 are never reported.
func (s *DependencyService) DetectCycles(ctx context.Context) ([]Cycle, error) {
	var cycles []Cycle
	for _, kind := range types.ValidDependencyKinds {
		adjacency, err := s.u.Dependencies().AdjacencyForKind(ctx, kind)
		if err != nil {
			return nil, fmt.Errorf("load %s adjacency: %w", kind, err)
		}
		for _, scc := range tarjanSCCs(adjacency) {
			if len(scc) < 2 {
				continue
			}
			cycles = append(cycles, Cycle{Kind: kind, Path: extractSimpleCycle(adjacency, scc)})
		}
	}
	return cycles, nil
}

type tarjanState struct {
	index    map[types.ID]int
	lowlink  map[types.ID]int
	onStack  map[types.ID]bool
	stack    []types.ID
	counter  int
	sccs     [][]types.ID
	adjacency map[types.ID][]types.ID
}

// tarjanSCCs computes the strongly connected components of adjacency
// using Tarjan's algorithm.
func tarjanSCCs(adjacency map[types.ID][]types.ID) [][]types.ID {
	st := &tarjanState{
		index:     make(map[types.ID]int),
		lowlink:   make(map[types.ID]int),
		onStack:   make(map[types.ID]bool),
		adjacency: adjacency,
	}

	nodes := make([]types.ID, 0, len(adjacency))
	for node := range adjacency {
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })

	for _, node := range nodes {
		if _, seen := st.index[node]; !seen {
			st.strongConnect(node)
		}
	}
	return st.sccs
}

func (st *tarjanState) strongConnect(v types.ID) {
	st.index[v] = st.counter
	st.lowlink[v] = st.counter
	st.counter++
	st.stack = append(st.stack, v)
	st.onStack[v] = true

	for _, w := range st.adjacency[v] {
		if _, seen := st.index[w]; !seen {
			st.strongConnect(w)
			if st.lowlink[w] < st.lowlink[v] {
				st.lowlink[v] = st.lowlink[w]
			}
		} else if st.onStack[w] {
			if st.index[w] < st.lowlink[v] {
				st.lowlink[v] = st.index[w]
			}
		}
	}

	if st.lowlink[v] == st.index[v] {
		var scc []types.ID
		for {
			w := st.stack[len(st.stack)-1]
			st.stack = st.stack[:len(st.stack)-1]
			st.onStack[w] = false
			scc = append(scc, w)
			if w == v {
				break
			}
		}
		st.sccs = append(st.sccs, scc)
	}
}

// extractSimpleCycle walks edges confined to scc starting from its
// first (deterministically, smallest-id) member until it returns to
// that member, producing one representative simple cycle.
func extractSimpleCycle(adjacency map[types.ID][]types.ID, scc []types.ID) []types.ID {
	inSCC := make(map[types.ID]bool, len(scc))
	for _, n := range scc {
		inSCC[n] = true
	}
	sorted := append([]types.ID(nil), scc...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	start := sorted[0]

	path := []types.ID{start}
	visited := map[types.ID]bool{start: true}
	current := start
	for {
		next := types.ID("")
		for _, candidate := range adjacency[current] {
			if !inSCC[candidate] {
				continue
			}
			if candidate == start {
				return append(path, start)
			}
			if !visited[candidate] {
				next = candidate
				break
			}
		}
		if next == "" {
			// Dead end: step back and try another branch from the previous node.
			if len(path) == 1 {
				return path
			}
			path = path[:len(path)-1]
			current = path[len(path)-1]
			continue
		}
		visited[next] = true
		path = append(path, next)
		current = next
	}
}

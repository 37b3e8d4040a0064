package deadlock

import (
	"cmp"
	"slices"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/GriffinCanCode/IPCDebugger/internal/domain/ipc"
	"github.com/GriffinCanCode/IPCDebugger/internal/shared/id"
)

// Edge is one waits-for relation: Waiter is parked on Resource, which
// Holder currently holds in a conflicting way.
type Edge struct {
	Waiter   id.ActorID    `json:"waiter"`
	Resource id.ResourceID `json:"resource"`
	Holder   id.ActorID    `json:"holder"`
}

// Graph is the actor waits-for graph derived from one snapshot
type Graph struct {
	AsOf  uint64 `json:"as_of"`
	Edges []Edge `json:"edges"`

	g   *simple.DirectedGraph
	via map[[2]id.ActorID][]id.ResourceID // resources labelling each actor edge, ascending
}

// Build derives the waits-for graph from snap
func Build(snap ipc.Snapshot) *Graph {
	gr := &Graph{
		AsOf: snap.AsOf,
		g:    simple.NewDirectedGraph(),
		via:  make(map[[2]id.ActorID][]id.ResourceID),
	}

	for _, rs := range snap.Resources {
		for _, w := range rs.Waiters {
			for _, h := range rs.Holders {
				if h.Actor == w.Actor || !blocks(rs, w, h) {
					continue
				}
				gr.add(Edge{Waiter: w.Actor, Resource: rs.ID, Holder: h.Actor})
			}
		}
	}

	slices.SortFunc(gr.Edges, func(a, b Edge) int {
		if a.Waiter != b.Waiter {
			return cmp.Compare(a.Waiter, b.Waiter)
		}
		if a.Resource != b.Resource {
			return cmp.Compare(a.Resource, b.Resource)
		}
		return cmp.Compare(a.Holder, b.Holder)
	})
	for k := range gr.via {
		slices.Sort(gr.via[k])
	}
	return gr
}

// blocks reports whether holder h prevents waiter w from proceeding on rs
func blocks(rs ipc.ResourceState, w ipc.WaiterState, h ipc.HolderState) bool {
	switch rs.Kind {
	case ipc.KindPipe, ipc.KindQueue:
		// Writers wait on readers to drain, readers wait on writers to fill
		if w.Intent.Has(ipc.ModeWrite) {
			return h.Access.Has(ipc.ModeRead)
		}
		return h.Access.Has(ipc.ModeWrite)
	default:
		if w.Intent.Has(ipc.ModeWrite) || rs.Config.ExclusiveReads {
			return true
		}
		return h.Access.Has(ipc.ModeWrite)
	}
}

func (gr *Graph) add(e Edge) {
	gr.Edges = append(gr.Edges, e)
	key := [2]id.ActorID{e.Waiter, e.Holder}
	if _, ok := gr.via[key]; !ok {
		gr.g.SetEdge(gr.g.NewEdge(node(e.Waiter), node(e.Holder)))
	}
	gr.via[key] = append(gr.via[key], e.Resource)
}

// Len returns the number of waits-for edges
func (gr *Graph) Len() int {
	return len(gr.Edges)
}

// Successors returns the actors a waits for, ascending
func (gr *Graph) Successors(a id.ActorID) []id.ActorID {
	if gr.g.Node(int64(a)) == nil {
		return nil
	}
	var out []id.ActorID
	for _, n := range graph.NodesOf(gr.g.From(int64(a))) {
		out = append(out, id.ActorID(n.ID()))
	}
	slices.Sort(out)
	return out
}

// Via returns the resources on which from waits for to, ascending
func (gr *Graph) Via(from, to id.ActorID) []id.ResourceID {
	return gr.via[[2]id.ActorID{from, to}]
}

// Reaches reports whether from transitively waits for to
func (gr *Graph) Reaches(from, to id.ActorID) bool {
	f, t := gr.g.Node(int64(from)), gr.g.Node(int64(to))
	if f == nil || t == nil {
		return false
	}
	return topo.PathExistsIn(gr.g, f, t)
}

// Actors returns every actor with at least one edge, ascending
func (gr *Graph) Actors() []id.ActorID {
	var out []id.ActorID
	for _, n := range graph.NodesOf(gr.g.Nodes()) {
		out = append(out, id.ActorID(n.ID()))
	}
	slices.Sort(out)
	return out
}

// components returns the strongly connected components that contain a
// cycle, each sorted ascending, ordered by their smallest actor
func (gr *Graph) components() [][]id.ActorID {
	var out [][]id.ActorID
	for _, scc := range topo.TarjanSCC(gr.g) {
		if len(scc) < 2 {
			continue
		}
		ids := make([]id.ActorID, 0, len(scc))
		for _, n := range scc {
			ids = append(ids, id.ActorID(n.ID()))
		}
		slices.Sort(ids)
		out = append(out, ids)
	}
	slices.SortFunc(out, func(a, b []id.ActorID) int { return cmp.Compare(a[0], b[0]) })
	return out
}

// cycleIn finds the cycle through the smallest actor of comp using a DFS
// with a recursion stack, visiting neighbours in ascending order
func (gr *Graph) cycleIn(comp []id.ActorID) []id.ActorID {
	member := make(map[id.ActorID]bool, len(comp))
	for _, a := range comp {
		member[a] = true
	}
	start := comp[0]
	visited := map[id.ActorID]bool{start: true}
	stack := []id.ActorID{start}

	var dfs func(u id.ActorID) bool
	dfs = func(u id.ActorID) bool {
		for _, v := range gr.Successors(u) {
			if !member[v] {
				continue
			}
			if v == start {
				return true
			}
			if visited[v] {
				continue
			}
			visited[v] = true
			stack = append(stack, v)
			if dfs(v) {
				return true
			}
			stack = stack[:len(stack)-1]
		}
		return false
	}

	if !dfs(start) {
		return nil
	}
	return stack
}

func node(a id.ActorID) simple.Node {
	return simple.Node(int64(a))
}

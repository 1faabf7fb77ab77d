// Package pdg builds the primitive dependency graph of a sequence: a
// DAG over primitives whose edges mean "u must complete before v
// starts".
//
// Raw graphs come out of the annotation pipeline with bookkeeping
// nodes that carry no ordering information of their own. Build removes
// them with a reachability-preserving contraction pass: contracted
// nodes are cut out and their in/out edges rewired, repeated until no
// contractible node remains.
package pdg

import (
	"fmt"
	"sort"

	"github.com/tracelab/bimanip/internal/interval"
	"github.com/tracelab/bimanip/internal/program"
)

// RawGraph mirrors the persisted pdg/<seq>.json payload.
type RawGraph struct {
	IDMap map[string]int `json:"id_map"`
	V     []int          `json:"v"`
	E     [][2]int       `json:"e"`
}

// Options controls graph construction.
type Options struct {
	// Retain decides whether a primitive's node survives contraction.
	// Nil retains every non-transient primitive.
	Retain func(*program.Primitive) bool
	// KeepLinearChains disables the contraction of nodes with exactly
	// one incoming and one outgoing edge.
	KeepLinearChains bool
}

// Graph is the contracted primitive dependency graph. Immutable.
type Graph struct {
	idToPair map[int]interval.Pair
	pairToID map[string]int
	labels   map[int]string

	verts []int
	edges [][2]int
	out   map[int][]int
	topo  []int
}

// Build validates the raw graph against the primitive table, applies
// the contraction pass to a fixed point and verifies acyclicity.
func Build(table *program.Table, raw RawGraph, opts Options) (*Graph, error) {
	retain := opts.Retain
	if retain == nil {
		retain = func(p *program.Primitive) bool { return !p.Transient }
	}

	// Step 1: id_map must cover exactly the table's key set.
	idToPair := make(map[int]interval.Pair, len(raw.IDMap))
	pairToID := make(map[string]int, len(raw.IDMap))
	for rawKey, id := range raw.IDMap {
		pair, err := interval.ParsePair(rawKey)
		if err != nil {
			return nil, err
		}
		key := pair.Key()
		if _, dup := pairToID[key]; dup {
			return nil, &SchemaError{File: "pdg", Reason: fmt.Sprintf("duplicate id_map key %s", key)}
		}
		if _, dup := idToPair[id]; dup {
			return nil, &SchemaError{File: "pdg", Reason: fmt.Sprintf("duplicate id_map node id %d", id)}
		}
		pairToID[key] = id
		idToPair[id] = pair
	}
	var mismatch VertexMismatchError
	for _, key := range table.Keys() {
		if _, ok := pairToID[key]; !ok {
			mismatch.MissingKeys = append(mismatch.MissingKeys, key)
		}
	}
	for key := range pairToID {
		if _, ok := table.Lookup(key); !ok {
			mismatch.ExtraKeys = append(mismatch.ExtraKeys, key)
		}
	}
	if len(mismatch.MissingKeys) > 0 || len(mismatch.ExtraKeys) > 0 {
		return nil, &mismatch
	}

	// Step 2: initial vertex and edge sets.
	vertSet := make(map[int]struct{}, len(raw.V))
	for _, id := range raw.V {
		if _, ok := idToPair[id]; !ok {
			return nil, &SchemaError{File: "pdg", Reason: fmt.Sprintf("vertex %d not in id_map", id)}
		}
		vertSet[id] = struct{}{}
	}
	if len(vertSet) != len(idToPair) {
		return nil, &SchemaError{File: "pdg", Reason: fmt.Sprintf("vertex list covers %d of %d id_map nodes", len(vertSet), len(idToPair))}
	}
	edgeSet := make(map[[2]int]struct{}, len(raw.E))
	for _, e := range raw.E {
		if _, ok := vertSet[e[0]]; !ok {
			return nil, &SchemaError{File: "pdg", Reason: fmt.Sprintf("edge (%d, %d): unknown source", e[0], e[1])}
		}
		if _, ok := vertSet[e[1]]; !ok {
			return nil, &SchemaError{File: "pdg", Reason: fmt.Sprintf("edge (%d, %d): unknown target", e[0], e[1])}
		}
		edgeSet[e] = struct{}{}
	}

	// Cycles are detected before contraction: rewiring a two-node
	// cycle would reduce it to a dropped self-loop and hide the
	// integrity problem.
	if cyclic := cyclicNodes(vertSet, edgeSet); len(cyclic) > 0 {
		return nil, &CyclicDependencyError{Nodes: cyclic}
	}

	// Step 3: contraction to a fixed point.
	labels := make(map[int]string, len(idToPair))
	for id, pair := range idToPair {
		p, _ := table.Lookup(pair.Key())
		labels[id] = p.Segment
	}
	keep := func(id int) bool {
		p, _ := table.Lookup(idToPair[id].Key())
		return retain(p)
	}
	for {
		n, changed := contractOnce(vertSet, edgeSet, keep, !opts.KeepLinearChains)
		if !changed {
			break
		}
		delete(vertSet, n)
	}

	// Step 4: the contracted graph must still be acyclic.
	if cyclic := cyclicNodes(vertSet, edgeSet); len(cyclic) > 0 {
		return nil, &CyclicDependencyError{Nodes: cyclic}
	}

	g := &Graph{
		idToPair: idToPair,
		pairToID: pairToID,
		labels:   labels,
		out:      make(map[int][]int),
	}
	for id := range vertSet {
		g.verts = append(g.verts, id)
	}
	sort.Ints(g.verts)
	for e := range edgeSet {
		g.edges = append(g.edges, e)
		g.out[e[0]] = append(g.out[e[0]], e[1])
	}
	sort.Slice(g.edges, func(i, j int) bool {
		if g.edges[i][0] != g.edges[j][0] {
			return g.edges[i][0] < g.edges[j][0]
		}
		return g.edges[i][1] < g.edges[j][1]
	})
	for _, succ := range g.out {
		sort.Ints(succ)
	}
	g.topo = topoOrder(g.verts, edgeSet)
	return g, nil
}

// contractOnce finds the lowest-id contractible node, removes it and
// rewires its edges. The new edge set is computed aside and swapped in,
// never mutated while scanning. Returns the contracted node and whether
// anything changed.
func contractOnce(vertSet map[int]struct{}, edgeSet map[[2]int]struct{}, keep func(int) bool, contractLinear bool) (int, bool) {
	indeg := make(map[int]int, len(vertSet))
	outdeg := make(map[int]int, len(vertSet))
	for e := range edgeSet {
		outdeg[e[0]]++
		indeg[e[1]]++
	}

	verts := make([]int, 0, len(vertSet))
	for id := range vertSet {
		verts = append(verts, id)
	}
	sort.Ints(verts)

	target := -1
	for _, id := range verts {
		if !keep(id) {
			target = id
			break
		}
		if contractLinear && indeg[id] == 1 && outdeg[id] == 1 {
			target = id
			break
		}
	}
	if target < 0 {
		return 0, false
	}

	var in, out []int
	for e := range edgeSet {
		if e[1] == target && e[0] != target {
			in = append(in, e[0])
		}
		if e[0] == target && e[1] != target {
			out = append(out, e[1])
		}
	}
	next := make(map[[2]int]struct{}, len(edgeSet))
	for e := range edgeSet {
		if e[0] == target || e[1] == target {
			continue
		}
		next[e] = struct{}{}
	}
	for _, p := range in {
		for _, q := range out {
			if p == q {
				continue // would be a self-loop
			}
			next[[2]int{p, q}] = struct{}{}
		}
	}
	for e := range edgeSet {
		delete(edgeSet, e)
	}
	for e := range next {
		edgeSet[e] = struct{}{}
	}
	return target, true
}

// cyclicNodes runs Kahn's algorithm and returns the nodes left with
// nonzero in-degree, sorted; empty means acyclic.
func cyclicNodes(vertSet map[int]struct{}, edgeSet map[[2]int]struct{}) []int {
	indeg := make(map[int]int, len(vertSet))
	succ := make(map[int][]int, len(vertSet))
	for id := range vertSet {
		indeg[id] = 0
	}
	for e := range edgeSet {
		indeg[e[1]]++
		succ[e[0]] = append(succ[e[0]], e[1])
	}
	var queue []int
	for id, d := range indeg {
		if d == 0 {
			queue = append(queue, id)
		}
	}
	seen := 0
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		seen++
		for _, m := range succ[n] {
			indeg[m]--
			if indeg[m] == 0 {
				queue = append(queue, m)
			}
		}
	}
	if seen == len(vertSet) {
		return nil
	}
	var cyclic []int
	for id, d := range indeg {
		if d > 0 {
			cyclic = append(cyclic, id)
		}
	}
	sort.Ints(cyclic)
	return cyclic
}

// topoOrder returns a deterministic topological order (smallest id
// first among ready nodes). Only called on acyclic graphs.
func topoOrder(verts []int, edgeSet map[[2]int]struct{}) []int {
	indeg := make(map[int]int, len(verts))
	succ := make(map[int][]int, len(verts))
	for _, id := range verts {
		indeg[id] = 0
	}
	for e := range edgeSet {
		indeg[e[1]]++
		succ[e[0]] = append(succ[e[0]], e[1])
	}
	ready := make([]int, 0, len(verts))
	for _, id := range verts {
		if indeg[id] == 0 {
			ready = append(ready, id)
		}
	}
	sort.Ints(ready)
	var order []int
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		order = append(order, n)
		next := succ[n]
		sort.Ints(next)
		for _, m := range next {
			indeg[m]--
			if indeg[m] == 0 {
				ready = insertSorted(ready, m)
			}
		}
	}
	return order
}

func insertSorted(ids []int, id int) []int {
	pos := sort.SearchInts(ids, id)
	ids = append(ids, 0)
	copy(ids[pos+1:], ids[pos:])
	ids[pos] = id
	return ids
}

// Vertices returns the retained node ids, ascending.
func (g *Graph) Vertices() []int { return append([]int(nil), g.verts...) }

// Edges returns the edge set, sorted by (source, target).
func (g *Graph) Edges() [][2]int {
	out := make([][2]int, len(g.edges))
	copy(out, g.edges)
	return out
}

// Topo returns a deterministic topological order of the retained nodes.
func (g *Graph) Topo() []int { return append([]int(nil), g.topo...) }

// PairFor returns the interval pair of a node id.
func (g *Graph) PairFor(id int) (interval.Pair, bool) {
	p, ok := g.idToPair[id]
	return p, ok
}

// IDFor returns the node id of an interval pair. The id is assigned by
// the raw graph and stable across contraction (contracted nodes keep
// their id in the map even though they are no longer vertices).
func (g *Graph) IDFor(pair interval.Pair) (int, bool) {
	id, ok := g.pairToID[pair.Key()]
	return id, ok
}

// LabelFor returns the execution-path segment name of a node id.
func (g *Graph) LabelFor(id int) (string, bool) {
	l, ok := g.labels[id]
	return l, ok
}

// Retained reports whether a node survived contraction.
func (g *Graph) Retained(id int) bool {
	pos := sort.SearchInts(g.verts, id)
	return pos < len(g.verts) && g.verts[pos] == id
}

// Reachable reports whether a path from u to v exists among the
// retained nodes.
func (g *Graph) Reachable(u, v int) bool {
	if u == v {
		return true
	}
	seen := map[int]struct{}{u: {}}
	queue := []int{u}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, m := range g.out[n] {
			if m == v {
				return true
			}
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			queue = append(queue, m)
		}
	}
	return false
}

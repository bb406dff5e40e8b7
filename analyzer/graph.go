// Package analyzer builds the predicate dependency graph for a rule
// set, computes its strongly connected components (Tarjan), and
// derives a stratum ordering that respects stratified negation and
// aggregation. It also performs the range-restriction safety check
// that the IR builder depends on.
package analyzer

import (
	"github.com/inputlayer/inputlayer/catalog"
	"github.com/inputlayer/inputlayer/errs"
	"github.com/inputlayer/inputlayer/lang"
)

// EdgeKind tags a dependency edge positive, negative, or aggregate.
type EdgeKind uint8

const (
	EdgePositive EdgeKind = iota
	EdgeNegative
	EdgeAggregate
)

// Edge is one body-atom -> head-atom dependency.
type Edge struct {
	From string // body predicate
	To   string // head predicate
	Kind EdgeKind
}

// Graph is the predicate dependency graph: nodes are relation names
// (EDB and IDB alike), edges go from body atoms to the head of the
// rule they appear in.
type Graph struct {
	Nodes map[string]bool
	Edges []Edge
	out   map[string][]Edge // From -> edges, for SCC traversal
}

// BuildGraph walks every rule clause in the catalog and constructs the
// dependency graph. EDB relations with no rule ever naming them as a
// head are included as graph nodes with no outgoing edges.
func BuildGraph(cat *catalog.Catalog) *Graph {
	g := &Graph{Nodes: map[string]bool{}, out: map[string][]Edge{}}
	for _, name := range cat.RelationNames() {
		g.Nodes[name] = true
	}
	for head, clauses := range cat.AllRules() {
		g.Nodes[head] = true
		for _, entry := range clauses {
			addRuleEdges(g, head, entry.Rule)
		}
	}
	return g
}

func addRuleEdges(g *Graph, head string, rule *lang.Rule) {
	hasAggregate := len(rule.Head.Aggregates) > 0
	for _, elem := range rule.Body {
		switch elem.Kind {
		case lang.BodyPositive:
			kind := EdgePositive
			if hasAggregate {
				kind = EdgeAggregate
			}
			g.addEdge(elem.Atom.Predicate, head, kind)
		case lang.BodyNegated:
			g.addEdge(elem.Atom.Predicate, head, EdgeNegative)
		}
	}
}

func (g *Graph) addEdge(from, to string, kind EdgeKind) {
	g.Nodes[from] = true
	g.Nodes[to] = true
	e := Edge{From: from, To: to, Kind: kind}
	g.Edges = append(g.Edges, e)
	g.out[from] = append(g.out[from], e)
}

// SCC computes strongly connected components via Tarjan's algorithm.
// Returns components in Tarjan's completion order: a component is
// emitted only after every component reachable from it along out-edges
// has been emitted. Out-edges run from a body predicate to the head it
// feeds, so a component comes after the components derived from it;
// Stratify reverses this list to get a bottom-up evaluation order.
func (g *Graph) SCC() [][]string {
	t := &tarjan{
		graph:   g,
		index:   map[string]int{},
		lowlink: map[string]int{},
		onStack: map[string]bool{},
	}
	for node := range g.Nodes {
		if _, visited := t.index[node]; !visited {
			t.strongConnect(node)
		}
	}
	return t.components
}

type tarjan struct {
	graph      *Graph
	counter    int
	index      map[string]int
	lowlink    map[string]int
	stack      []string
	onStack    map[string]bool
	components [][]string
}

func (t *tarjan) strongConnect(v string) {
	t.index[v] = t.counter
	t.lowlink[v] = t.counter
	t.counter++
	t.stack = append(t.stack, v)
	t.onStack[v] = true

	for _, e := range t.graph.out[v] {
		w := e.To
		if _, visited := t.index[w]; !visited {
			t.strongConnect(w)
			if t.lowlink[w] < t.lowlink[v] {
				t.lowlink[v] = t.lowlink[w]
			}
		} else if t.onStack[w] {
			if t.index[w] < t.lowlink[v] {
				t.lowlink[v] = t.index[w]
			}
		}
	}

	if t.lowlink[v] == t.index[v] {
		var component []string
		for {
			n := len(t.stack) - 1
			w := t.stack[n]
			t.stack = t.stack[:n]
			t.onStack[w] = false
			component = append(component, w)
			if w == v {
				break
			}
		}
		t.components = append(t.components, component)
	}
}

// IsRecursive reports whether a component is a recursive stratum: more
// than one node, or a single node with a self-loop.
func (g *Graph) IsRecursive(component []string) bool {
	if len(component) > 1 {
		return true
	}
	only := component[0]
	for _, e := range g.out[only] {
		if e.To == only {
			return true
		}
	}
	return false
}

// sameComponent reports whether an edge's endpoints fall in the
// same component (used by the stratification check: a negative/
// aggregate edge internal to a recursive component is not stratifiable).
func sameComponent(member map[string]int, a, b string) bool {
	ca, aok := member[a]
	cb, bok := member[b]
	return aok && bok && ca == cb
}

// Stratify computes a stratum index per relation: strata are numbered
// from 0, and every negative/aggregate edge must point from a strictly
// lower stratum into a higher one relative to the SCC condensation
// order, with the exception that the edge's two endpoints may share a
// component only if the edge is positive (recursion with a purely
// positive cycle is the ordinary recursive-stratum case).
func Stratify(g *Graph) (*Stratification, error) {
	components := g.SCC()
	member := map[string]int{}
	for ci, comp := range components {
		for _, node := range comp {
			member[node] = ci
		}
	}

	for _, e := range g.Edges {
		if e.Kind == EdgePositive {
			continue
		}
		if sameComponent(member, e.From, e.To) {
			return nil, errs.ErrNotStratifiable.New(e.From + " -> " + e.To)
		}
	}

	// components is in Tarjan's completion order, where a component is
	// only finished after everything reachable along its out-edges (the
	// predicates derived from it) is finished — so derived predicates
	// come before the predicates they read. Reverse it so strata run
	// from the most-depended-upon (stratum 0) to the least.
	order := make([][]string, len(components))
	for i, comp := range components {
		order[len(components)-1-i] = comp
	}

	stratumOf := map[string]int{}
	for si, comp := range order {
		for _, node := range comp {
			stratumOf[node] = si
		}
	}

	return &Stratification{
		Components: order,
		StratumOf:  stratumOf,
		graph:      g,
	}, nil
}

// Stratification is the analyzer's output: an ordered list of strata
// (each a set of mutually-dependent relations) and a lookup from
// relation name to stratum index.
type Stratification struct {
	Components [][]string
	StratumOf  map[string]int
	graph      *Graph
}

// IsRecursiveStratum reports whether stratum i is a recursive SCC.
func (s *Stratification) IsRecursiveStratum(i int) bool {
	return s.graph.IsRecursive(s.Components[i])
}

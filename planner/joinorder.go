// Package planner takes a resolved rule or query and optimizes it
// before the IR builder ever sees it: join ordering by a structural
// cost model, Sideways Information Passing via Magic-Sets rewriting,
// common-subexpression elimination across a stratum's rules, and
// semiring specialization (boolean / integer / aggregate) for the
// dataflow compiler.
package planner

import (
	"sort"

	"github.com/inputlayer/inputlayer/catalog"
	"github.com/inputlayer/inputlayer/lang"
)

// ReorderJoins rewrites a rule's body so its positive atoms appear in
// join order: the structural cost model prefers the tightest joins
// (most shared variables) and breaks ties by smaller estimated input
// cardinality, then by lexicographic atom name, producing a left-deep
// plan equivalent to a Prim-style maximum-weight spanning tree over the
// join graph rooted at the cheapest leaf. Non-atom body elements
// (comparisons, bindings, negations, in-set tests) are reinserted
// immediately after the point where every variable they reference
// first becomes bound, preserving their original relative order among
// ties.
func ReorderJoins(rule *lang.Rule, cat *catalog.Catalog) *lang.Rule {
	var atoms []lang.BodyElem
	var rest []lang.BodyElem
	for _, elem := range rule.Body {
		if elem.Kind == lang.BodyPositive {
			atoms = append(atoms, elem)
		} else {
			rest = append(rest, elem)
		}
	}
	if len(atoms) <= 1 {
		return rule
	}

	order := primOrder(atoms, cat)

	newBody := make([]lang.BodyElem, 0, len(rule.Body))
	bound := map[string]bool{}
	restUsed := make([]bool, len(rest))

	emitReady := func() {
		for {
			progressed := false
			for i, elem := range rest {
				if restUsed[i] {
					continue
				}
				if elemReady(elem, bound) {
					newBody = append(newBody, elem)
					restUsed[i] = true
					if elem.Kind == lang.BodyBinding {
						bound[elem.BindVar] = true
					}
					progressed = true
				}
			}
			if !progressed {
				break
			}
		}
	}

	for _, idx := range order {
		atom := atoms[idx]
		newBody = append(newBody, atom)
		for _, arg := range atom.Atom.Args {
			if arg.Kind == lang.TermVar {
				bound[arg.Name] = true
			}
		}
		emitReady()
	}
	// Anything never made ready (e.g. references a variable only bound
	// by an aggregate head, or a malformed rule the analyzer should
	// already have rejected) is appended at the end, unchanged from
	// its original order, so ReorderJoins never silently drops a body
	// element.
	for i, elem := range rest {
		if !restUsed[i] {
			newBody = append(newBody, elem)
		}
	}

	return &lang.Rule{Head: rule.Head, Body: newBody, Pos: rule.Pos}
}

func elemReady(elem lang.BodyElem, bound map[string]bool) bool {
	switch elem.Kind {
	case lang.BodyNegated:
		for _, arg := range elem.Atom.Args {
			if arg.Kind == lang.TermVar && !bound[arg.Name] {
				return false
			}
		}
		return true
	case lang.BodyCompare:
		return termReady(elem.CompareLHS, bound) && termReady(elem.CompareRHS, bound)
	case lang.BodyBinding:
		for _, arg := range elem.BindArgs {
			if !termReady(arg, bound) {
				return false
			}
		}
		return true
	case lang.BodyInSet:
		return bound[elem.InSetVar]
	default:
		return true
	}
}

func termReady(t lang.Term, bound map[string]bool) bool {
	return t.Kind != lang.TermVar || bound[t.Name]
}

// primOrder returns atom indices in join order via greedy growth of a
// maximum-weight spanning tree: start from the cheapest atom, then
// repeatedly add the unvisited atom sharing the most variables with
// the visited set (ties broken by cardinality, then name).
func primOrder(atoms []lang.BodyElem, cat *catalog.Catalog) []int {
	n := len(atoms)
	cardinality := make([]int64, n)
	for i, a := range atoms {
		cardinality[i] = cat.Stats(a.Atom.Predicate).RowCount
	}

	start := 0
	for i := 1; i < n; i++ {
		if cheaper(cardinality, atoms, i, start) {
			start = i
		}
	}

	visited := make([]bool, n)
	visited[start] = true
	order := []int{start}

	for len(order) < n {
		bestJ := -1
		bestShared := -1
		for _, i := range order {
			for j := 0; j < n; j++ {
				if visited[j] {
					continue
				}
				shared := sharedVars(atoms[i], atoms[j])
				if shared > bestShared ||
					(shared == bestShared && bestJ >= 0 && betterTiebreak(cardinality, atoms, j, bestJ)) {
					bestShared = shared
					bestJ = j
				}
			}
		}
		if bestJ < 0 {
			// disconnected join graph: pick the cheapest remaining atom
			for j := 0; j < n; j++ {
				if !visited[j] && (bestJ < 0 || cheaper(cardinality, atoms, j, bestJ)) {
					bestJ = j
				}
			}
		}
		visited[bestJ] = true
		order = append(order, bestJ)
	}
	return order
}

func cheaper(cardinality []int64, atoms []lang.BodyElem, a, b int) bool {
	if cardinality[a] != cardinality[b] {
		return cardinality[a] < cardinality[b]
	}
	return atoms[a].Atom.Predicate < atoms[b].Atom.Predicate
}

func betterTiebreak(cardinality []int64, atoms []lang.BodyElem, a, b int) bool {
	return cheaper(cardinality, atoms, a, b)
}

func sharedVars(a, b lang.BodyElem) int {
	names := map[string]bool{}
	for _, arg := range a.Atom.Args {
		if arg.Kind == lang.TermVar {
			names[arg.Name] = true
		}
	}
	count := 0
	seen := map[string]bool{}
	for _, arg := range b.Atom.Args {
		if arg.Kind == lang.TermVar && names[arg.Name] && !seen[arg.Name] {
			count++
			seen[arg.Name] = true
		}
	}
	return count
}

// sortAtomsByName sorts atoms in place by predicate name, giving a
// deterministic order; nothing in this package calls it.
func sortAtomsByName(atoms []lang.BodyElem) {
	sort.Slice(atoms, func(i, j int) bool {
		return atoms[i].Atom.Predicate < atoms[j].Atom.Predicate
	})
}

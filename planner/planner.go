package planner

import (
	"github.com/inputlayer/inputlayer/catalog"
	"github.com/inputlayer/inputlayer/ir"
	"github.com/inputlayer/inputlayer/lang"
	"github.com/inputlayer/inputlayer/value"
)

// PlannedRelation is the planner's output for one head predicate: the
// combined IR (a Union of every clause's individually-planned body,
// Distinct-deduplicated for set semantics by each clause's own Build
// output) plus the semiring its consumers should use.
type PlannedRelation struct {
	Predicate string
	Node      ir.Node
	Semiring  Semiring
}

// PlanRule optimizes one rule clause: reorders its body for join cost,
// then lowers it to IR.
func PlanRule(rule *lang.Rule, cat *catalog.Catalog) (ir.Node, error) {
	optimized := ReorderJoins(rule, cat)
	return ir.Build(optimized, cat)
}

// PlanPredicate plans every clause for a head predicate and combines
// them under a Union, sharing common subexpressions across clauses via
// cse. consumersNeedCount tells Specialize whether any downstream
// consumer of this predicate needs exact multiplicities rather than
// just presence/absence.
func PlanPredicate(predicate string, clauses []*lang.Rule, cat *catalog.Catalog, cse *CSEIndex, consumersNeedCount bool) (*PlannedRelation, error) {
	nodes := make([]ir.Node, 0, len(clauses))
	for _, rule := range clauses {
		node, err := PlanRule(rule, cat)
		if err != nil {
			return nil, err
		}
		shared, _, err := cse.Canonicalize(node)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, shared)
	}

	var combined ir.Node
	if len(nodes) == 1 {
		combined = nodes[0]
	} else {
		schema := nodes[0].Schema()
		vars := make([]string, schema.Arity())
		for i := range vars {
			vars[i] = predicate + "_" + schema[i].Name
		}
		combined = ir.NewDistinct(ir.NewUnion(schema, vars, nodes))
	}

	return &PlannedRelation{
		Predicate: predicate,
		Node:      combined,
		Semiring:  Specialize(combined, consumersNeedCount),
	}, nil
}

// PlanStratum plans every head predicate produced within one
// analyzer-computed stratum, in the order the catalog reports them.
func PlanStratum(predicates []string, rulesByHead map[string][]*lang.Rule, cat *catalog.Catalog, cse *CSEIndex) ([]*PlannedRelation, error) {
	out := make([]*PlannedRelation, 0, len(predicates))
	for _, pred := range predicates {
		clauses, ok := rulesByHead[pred]
		if !ok {
			continue
		}
		planned, err := PlanPredicate(pred, clauses, cat, cse, false)
		if err != nil {
			return nil, err
		}
		out = append(out, planned)
	}
	return out, nil
}

// LowerVectorSearch rewrites an eligible top_k/within_radius Aggregate
// node into the accelerated VectorSearch operator: eligible means the
// aggregate's argument column holds a vector type and the catalog has
// an HNSW index on the relation/column the vector came from. Ineligible
// aggregates (no matching index) are left as ordinary Aggregate nodes,
// evaluated by brute-force distance computation in the dataflow layer.
func LowerVectorSearch(node ir.Node, cat *catalog.Catalog, sourceRelation, sourceColumn string) ir.Node {
	agg, ok := node.(*ir.Aggregate)
	if !ok {
		return node
	}
	if len(agg.Aggregators) != 1 {
		return node
	}
	spec := agg.Aggregators[0]
	if spec.Aggregator != lang.AggTopK && spec.Aggregator != lang.AggWithinRadius {
		return node
	}
	if spec.OutputType.Base != value.KindVectorF32 && spec.OutputType.Base != value.KindVectorI8 {
		return node
	}
	indexes := cat.IndexesOn(sourceRelation)
	var match *catalog.IndexDef
	for i := range indexes {
		if indexes[i].Column == sourceColumn {
			match = &indexes[i]
			break
		}
	}
	if match == nil {
		return node
	}

	queryExpr := ir.ColumnRef(spec.ArgColumn)
	return ir.NewVectorSearch(
		agg.Input,
		match.Name,
		queryExpr,
		spec.K,
		spec.Radius,
		spec.Aggregator == lang.AggWithinRadius,
		[]string{spec.OutputVar + "_neighbor", spec.OutputVar + "_distance"},
		value.Schema{
			{Name: spec.OutputVar + "_neighbor", Type: spec.OutputType},
			{Name: spec.OutputVar + "_distance", Type: value.Type{Base: value.KindFloat}},
		},
	)
}

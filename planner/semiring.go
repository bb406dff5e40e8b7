package planner

import (
	"github.com/inputlayer/inputlayer/ir"
)

// Semiring tags how a derived relation's multiplicities need to be
// tracked downstream: existence only, exact counts, or a numeric
// aggregate accumulator.
type Semiring uint8

const (
	SemiringBoolean Semiring = iota
	SemiringInteger
	SemiringAggregate
)

// Specialize inspects a rule's compiled node and the set of consumer
// relations that reference its head predicate to decide which
// semiring the dataflow compiler should use. A boolean-only path can
// elide multiplicity tracking entirely past its Distinct (the set of
// supporting derivations still determines presence/absence, but the
// exact count never needs to survive downstream); an aggregate path
// must preserve integer weights through every operator feeding it.
func Specialize(node ir.Node, consumersNeedCount bool) Semiring {
	if hasAggregate(node) {
		return SemiringAggregate
	}
	if consumersNeedCount {
		return SemiringInteger
	}
	return SemiringBoolean
}

func hasAggregate(n ir.Node) bool {
	switch node := n.(type) {
	case *ir.Aggregate:
		return true
	case *ir.Distinct:
		return hasAggregate(node.Input)
	case *ir.Project:
		return hasAggregate(node.Input)
	case *ir.Filter:
		return hasAggregate(node.Input)
	case *ir.Map:
		return hasAggregate(node.Input)
	case *ir.Join:
		return hasAggregate(node.Left) || hasAggregate(node.Right)
	case *ir.Antijoin:
		return hasAggregate(node.Left)
	case *ir.Union:
		for _, in := range node.Inputs {
			if hasAggregate(in) {
				return true
			}
		}
		return false
	case *ir.VectorSearch:
		return hasAggregate(node.Input)
	default:
		return false
	}
}

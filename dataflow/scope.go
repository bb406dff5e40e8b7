package dataflow

import "github.com/inputlayer/inputlayer/ir"

// IterativeScope drives a set of mutually recursive predicate
// operators to quiescence: every output delta a predicate computes in
// one round becomes a fresh input pushed into every predicate's
// operator (including its own) in the next round, until a full round
// produces no change anywhere in the scope.
type IterativeScope struct {
	operators map[string]Operator
}

func NewIterativeScope(operators map[string]Operator) *IterativeScope {
	return &IterativeScope{operators: operators}
}

// CompileStratum compiles every predicate's IR node with one shared
// Compiler, so a Scan referencing another predicate in the same
// recursive stratum and a Scan referencing an already-finalized
// lower-stratum relation compile to the same kind of leaf. There is no
// structural difference between a "recursive" and a "base" reference,
// only in which batches get pushed into them and when.
func CompileStratum(nodes map[string]ir.Node, compiler *Compiler) (map[string]Operator, error) {
	out := make(map[string]Operator, len(nodes))
	for predicate, node := range nodes {
		op, err := compiler.Compile(node)
		if err != nil {
			return nil, err
		}
		out[predicate] = op
	}
	return out, nil
}

// Run seeds the scope with initial batches (base-case facts plus any
// already-finalized lower-stratum extensions this stratum's bodies
// reference) and iterates until every predicate's round-over-round
// delta is empty, returning the total delta each predicate produced
// across the whole fixpoint computation.
func (s *IterativeScope) Run(seed map[string]Batch) (map[string]Batch, error) {
	accumulated := map[string]Batch{}
	pending := map[string]Batch{}
	for rel, b := range seed {
		if len(b) > 0 {
			pending[rel] = append(pending[rel], b...)
		}
	}

	for len(pending) > 0 {
		next := map[string]Batch{}
		for rel, batch := range pending {
			for predicate, op := range s.operators {
				delta, err := op.Evaluate(rel, batch)
				if err != nil {
					return nil, err
				}
				if len(delta) == 0 {
					continue
				}
				accumulated[predicate] = append(accumulated[predicate], delta...)
				next[predicate] = append(next[predicate], delta...)
			}
		}
		pending = map[string]Batch{}
		for predicate, batch := range next {
			c := Coalesce(batch)
			if len(c) > 0 {
				pending[predicate] = c
			}
		}
	}

	for predicate, batch := range accumulated {
		accumulated[predicate] = Coalesce(batch)
	}
	return accumulated, nil
}

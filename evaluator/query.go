package evaluator

import (
	"context"
	"fmt"

	"github.com/opentracing/opentracing-go"

	"github.com/inputlayer/inputlayer/catalog"
	"github.com/inputlayer/inputlayer/dataflow"
	"github.com/inputlayer/inputlayer/errs"
	"github.com/inputlayer/inputlayer/lang"
	"github.com/inputlayer/inputlayer/planner"
	"github.com/inputlayer/inputlayer/value"
)

// Materialize returns every row currently present in relation's
// maintained extension, with no filtering — a direct read of the
// relation's Arrangement.
func (e *Evaluator) Materialize(ctx context.Context, relation string) ([]value.Tuple, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "evaluator.Materialize")
	defer span.Finish()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ensureCompiled(); err != nil {
		return nil, err
	}
	if _, ok := e.cat.LookupRelation(relation); !ok {
		return nil, errs.ErrUnknownRelation.New(relation)
	}
	arr := e.arrangementFor(relation)
	ext := arr.Extension()
	out := make([]value.Tuple, len(ext))
	for i, wt := range ext {
		out[i] = wt.Tuple
	}
	return out, nil
}

// Query answers `?atom(args), constraints` against the relation's
// maintained extension. When atom carries one or more bound (constant)
// argument positions against a predicate that participates in a
// recursive stratum, it instead runs a throwaway Magic-Sets-rewritten
// evaluation restricted to the demand set — see runBoundQuery — rather
// than filtering the full materialized extension, since a recursive
// relation's full extension (e.g. a transitive closure) can be orders
// of magnitude larger than what a single bound query actually needs.
func (e *Evaluator) Query(ctx context.Context, q lang.Query) ([]value.Tuple, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "evaluator.Query")
	defer span.Finish()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ensureCompiled(); err != nil {
		return nil, err
	}
	atom := q.Atom
	if _, ok := e.cat.LookupRelation(atom.Predicate); !ok {
		return nil, errs.ErrUnknownRelation.New(atom.Predicate)
	}

	var rows []value.Tuple
	if e.isRecursivePredicate(atom.Predicate) && hasBoundArg(atom) {
		bound, err := e.runBoundQuery(atom)
		if err != nil {
			return nil, err
		}
		rows = bound
	} else {
		arr := e.arrangementFor(atom.Predicate)
		for _, wt := range arr.Extension() {
			if matchesAtom(atom, wt.Tuple) {
				rows = append(rows, wt.Tuple)
			}
		}
	}

	out := rows[:0]
	for _, t := range rows {
		ok, err := evalConstraints(q.Constraints, atom, t)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func hasBoundArg(atom lang.Atom) bool {
	for _, arg := range atom.Args {
		if arg.Kind == lang.TermConst {
			return true
		}
	}
	return false
}

func matchesAtom(atom lang.Atom, t value.Tuple) bool {
	for i, arg := range atom.Args {
		if arg.Kind != lang.TermConst {
			continue
		}
		if i >= t.Arity() || !value.Equal(arg.Const, t.At(i)) {
			return false
		}
	}
	return true
}

// isRecursivePredicate reports whether predicate belongs to a stratum
// the analyzer marked as a recursive SCC, the condition under which a
// bound query is worth restricting with Magic-Sets rather than simply
// filtering the already-maintained full extension.
func (e *Evaluator) isRecursivePredicate(predicate string) bool {
	for _, st := range e.strata {
		if !st.recursive {
			continue
		}
		for _, p := range st.predicates {
			if p == predicate {
				return true
			}
		}
	}
	return false
}

// runBoundQuery builds a throwaway scratch catalog sharing every live
// relation's schema, replaces the queried predicate's rules with their
// Magic-Sets rewrite seeded from atom's bound positions, seeds every
// other relation (EDB and IDB alike) from its live maintained
// extension, and runs that scratch pipeline to its own independent
// fixpoint — entirely separate from the live Evaluator's compiled
// strata and Arrangements, which are left untouched.
func (e *Evaluator) runBoundQuery(atom lang.Atom) ([]value.Tuple, error) {
	liveRules := e.cat.Rules(atom.Predicate)
	rules := make([]*lang.Rule, len(liveRules))
	for i, entry := range liveRules {
		rules[i] = entry.Rule
	}
	plan := planner.RewriteForBoundQuery(atom, rules)
	if plan == nil {
		arr := e.arrangementFor(atom.Predicate)
		var out []value.Tuple
		for _, wt := range arr.Extension() {
			if matchesAtom(atom, wt.Tuple) {
				out = append(out, wt.Tuple)
			}
		}
		return out, nil
	}

	scratch := catalog.New(nil)
	relSchema, _ := e.cat.LookupRelation(atom.Predicate)
	for _, name := range e.cat.RelationNames() {
		schema, _ := e.cat.LookupRelation(name)
		if err := scratch.DefineRelation(name, schema); err != nil {
			return nil, err
		}
	}
	magicSchema := make(value.Schema, 0, len(plan.SeedArgs))
	for i := range plan.SeedArgs {
		col := relSchema[boundPosition(atom, i)]
		magicSchema = append(magicSchema, value.Column{Name: fmt.Sprintf("b%d", i), Type: col.Type})
	}
	if err := scratch.DefineRelation(plan.MagicRelation, magicSchema); err != nil {
		return nil, err
	}

	for head, entries := range e.cat.AllRules() {
		if head == atom.Predicate {
			continue
		}
		for i, entry := range entries {
			if err := scratch.AddRule(entry.Rule, fmt.Sprintf("%s#%d", head, i)); err != nil {
				return nil, err
			}
		}
	}
	for i, r := range plan.Rules {
		if err := scratch.AddRule(r, fmt.Sprintf("magic#%d", i)); err != nil {
			return nil, err
		}
	}

	strata, err := compileCatalog(scratch, planner.NewCSEIndex(), e.resolveVectorIndex)
	if err != nil {
		return nil, err
	}

	seed := map[string]dataflow.Batch{}
	seedVals := make([]value.Value, len(plan.SeedArgs))
	for i, arg := range plan.SeedArgs {
		seedVals[i] = arg.Const
	}
	seed[plan.MagicRelation] = dataflow.Batch{{Tuple: value.NewTuple(seedVals...), Delta: 1}}

	for _, name := range e.cat.RelationNames() {
		if name == atom.Predicate {
			continue
		}
		arr := e.arrangementFor(name)
		for _, wt := range arr.Extension() {
			seed[name] = append(seed[name], dataflow.WeightedTuple{Tuple: wt.Tuple, Delta: wt.Delta})
		}
	}

	produced, err := runStrata(strata, seed)
	if err != nil {
		return nil, err
	}
	result := dataflow.Coalesce(produced[atom.Predicate])
	out := make([]value.Tuple, 0, len(result))
	for _, wt := range result {
		if wt.Delta != 0 && matchesAtom(atom, wt.Tuple) {
			out = append(out, wt.Tuple)
		}
	}
	return out, nil
}

// boundPosition returns the original atom argument index of the i-th
// bound position, matching the order RewriteForBoundQuery collected
// plan.SeedArgs in.
func boundPosition(atom lang.Atom, i int) int {
	count := 0
	for pos, arg := range atom.Args {
		if arg.Kind == lang.TermConst {
			if count == i {
				return pos
			}
			count++
		}
	}
	return 0
}

// evalConstraints evaluates a query's trailing comparison and in-set
// constraints against a fully-bound result row, resolving each atom
// variable to its value at the matching argument position. Arithmetic
// bindings in a query's trailing constraints are not supported — a
// query composes existing rules rather than defining new derivations,
// so any computed binding belongs in a rule body instead.
func evalConstraints(constraints []lang.BodyElem, atom lang.Atom, t value.Tuple) (bool, error) {
	env := map[string]value.Value{}
	for i, arg := range atom.Args {
		if arg.Kind == lang.TermVar && i < t.Arity() {
			env[arg.Name] = t.At(i)
		}
	}
	resolve := func(term lang.Term) (value.Value, bool) {
		switch term.Kind {
		case lang.TermConst:
			return term.Const, true
		case lang.TermVar:
			v, ok := env[term.Name]
			return v, ok
		default:
			return value.Value{}, false
		}
	}

	for _, c := range constraints {
		switch c.Kind {
		case lang.BodyCompare:
			lhs, ok1 := resolve(c.CompareLHS)
			rhs, ok2 := resolve(c.CompareRHS)
			if !ok1 || !ok2 {
				return false, errs.ErrInternal.New("query constraint references unbound variable")
			}
			cmp := value.Compare(lhs, rhs)
			var pass bool
			switch c.CompareOp {
			case lang.OpEq:
				pass = cmp == 0
			case lang.OpNeq:
				pass = cmp != 0
			case lang.OpLt:
				pass = cmp < 0
			case lang.OpGt:
				pass = cmp > 0
			case lang.OpLe:
				pass = cmp <= 0
			case lang.OpGe:
				pass = cmp >= 0
			}
			if !pass {
				return false, nil
			}
		case lang.BodyInSet:
			v, ok := env[c.InSetVar]
			if !ok {
				return false, errs.ErrInternal.New("query constraint references unbound variable")
			}
			found := false
			for _, candidate := range c.InSetValues {
				cv, ok := resolve(candidate)
				if ok && value.Equal(v, cv) {
					found = true
					break
				}
			}
			if !found {
				return false, nil
			}
		}
	}
	return true, nil
}

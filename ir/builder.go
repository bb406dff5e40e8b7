package ir

import (
	"fmt"

	"github.com/inputlayer/inputlayer/catalog"
	"github.com/inputlayer/inputlayer/errs"
	"github.com/inputlayer/inputlayer/lang"
	"github.com/inputlayer/inputlayer/value"
)

// env tracks, during a single rule's translation, which column of the
// in-progress node each bound rule variable lives in.
type env struct {
	node Node
	pos  map[string]int
}

func newEnv() *env { return &env{pos: map[string]int{}} }

func (e *env) bind(name string, col int) {
	if name == "" {
		return
	}
	e.pos[name] = col
}

func (e *env) lookup(name string) (int, bool) {
	i, ok := e.pos[name]
	return i, ok
}

// Build translates one resolved rule body into a logical operator
// tree, then projects the result into the rule's head argument order.
// Per-rule algorithm: positive atoms become Scans joined left-to-right
// on shared variables as they're encountered; comparisons/bindings
// attach as Filter/Map at their place in the body, and every variable
// they reference must already be bound there (PlanRule's ReorderJoins
// moves each one to just after the atoms that bind it); negated atoms fold into Antijoins once their free variables
// are established; aggregates (if any) fold last over the final
// projection's group keys.
func Build(rule *lang.Rule, cat *catalog.Catalog) (Node, error) {
	e := newEnv()

	for _, elem := range rule.Body {
		switch elem.Kind {
		case lang.BodyPositive:
			if err := applyPositiveAtom(e, *elem.Atom, cat); err != nil {
				return nil, err
			}
		case lang.BodyNegated:
			if err := applyNegatedAtom(e, *elem.Atom, cat); err != nil {
				return nil, err
			}
		case lang.BodyCompare:
			if err := applyCompare(e, elem); err != nil {
				return nil, err
			}
		case lang.BodyBinding:
			if err := applyBinding(e, elem); err != nil {
				return nil, err
			}
		case lang.BodyInSet:
			if err := applyInSet(e, elem); err != nil {
				return nil, err
			}
		}
	}

	if e.node == nil {
		return nil, errs.ErrUnsafeRule.New(rule.Head.Predicate)
	}

	return buildHead(e, rule, cat)
}

func termRef(e *env, t lang.Term) (ValueRef, bool) {
	switch t.Kind {
	case lang.TermConst:
		return ConstRef(t.Const), true
	case lang.TermVar:
		if col, ok := e.lookup(t.Name); ok {
			return ColumnRef(col), true
		}
		return ValueRef{}, false
	default: // wildcard: never a usable reference
		return ValueRef{}, false
	}
}

// applyPositiveAtom scans the atom's relation, filters constant and
// repeated-variable positions in place, then joins it into the
// in-progress node on whichever variables are already bound.
func applyPositiveAtom(e *env, atom lang.Atom, cat *catalog.Catalog) error {
	schema, ok := cat.LookupRelation(atom.Predicate)
	if !ok {
		return errs.ErrUnknownRelation.New(atom.Predicate)
	}
	if schema.Arity() != len(atom.Args) {
		return errs.ErrArityMismatch.New(schema.Arity(), len(atom.Args))
	}

	vars := make([]string, len(atom.Args))
	firstOccurrence := map[string]int{}
	for i, arg := range atom.Args {
		if arg.Kind == lang.TermVar {
			vars[i] = arg.Name
		}
	}
	var scanNode Node = NewScan(atom.Predicate, schema, vars)

	for i, arg := range atom.Args {
		switch arg.Kind {
		case lang.TermConst:
			scanNode = NewFilter(scanNode, Predicate{Op: lang.OpEq, LHS: ColumnRef(i), RHS: ConstRef(arg.Const)})
		case lang.TermVar:
			if j, seen := firstOccurrence[arg.Name]; seen {
				scanNode = NewFilter(scanNode, Predicate{Op: lang.OpEq, LHS: ColumnRef(j), RHS: ColumnRef(i)})
			} else {
				firstOccurrence[arg.Name] = i
			}
		}
	}

	if e.node == nil {
		e.node = scanNode
		for name, col := range firstOccurrence {
			e.bind(name, col)
		}
		return nil
	}

	var leftKeys, rightKeys []int
	for name, rightCol := range firstOccurrence {
		if leftCol, ok := e.lookup(name); ok {
			leftKeys = append(leftKeys, leftCol)
			rightKeys = append(rightKeys, rightCol)
		}
	}

	join := NewJoin(e.node, scanNode, leftKeys, rightKeys)
	e.node = join
	e.pos = map[string]int{}
	for i, v := range join.Vars() {
		e.bind(v, i)
	}
	return nil
}

// applyNegatedAtom folds a negated atom into an Antijoin. Every
// variable in the negated atom must already be bound by the positive
// body (range-restriction is enforced by the analyzer before Build
// runs; this is a defensive check).
func applyNegatedAtom(e *env, atom lang.Atom, cat *catalog.Catalog) error {
	schema, ok := cat.LookupRelation(atom.Predicate)
	if !ok {
		return errs.ErrUnknownRelation.New(atom.Predicate)
	}
	vars := make([]string, len(atom.Args))
	for i, arg := range atom.Args {
		if arg.Kind == lang.TermVar {
			vars[i] = arg.Name
		}
	}
	negScan := NewScan(atom.Predicate, schema, vars)

	var leftKeys, rightKeys []int
	for i, arg := range atom.Args {
		if arg.Kind != lang.TermVar {
			continue
		}
		leftCol, ok := e.lookup(arg.Name)
		if !ok {
			return errs.ErrUnsafeRule.New(arg.Name)
		}
		leftKeys = append(leftKeys, leftCol)
		rightKeys = append(rightKeys, i)
	}
	if e.node == nil {
		return errs.ErrUnsafeRule.New(atom.Predicate)
	}
	e.node = NewAntijoin(e.node, negScan, leftKeys, rightKeys)
	return nil
}

func applyCompare(e *env, elem lang.BodyElem) error {
	lhs, ok := termRef(e, elem.CompareLHS)
	if !ok {
		return errs.ErrUnsafeRule.New(describeTerm(elem.CompareLHS))
	}
	rhs, ok := termRef(e, elem.CompareRHS)
	if !ok {
		return errs.ErrUnsafeRule.New(describeTerm(elem.CompareRHS))
	}
	if e.node == nil {
		return errs.ErrUnsafeRule.New("comparison with no bound atom")
	}
	e.node = NewFilter(e.node, Predicate{Op: elem.CompareOp, LHS: lhs, RHS: rhs})
	return nil
}

func applyBinding(e *env, elem lang.BodyElem) error {
	args := make([]ValueRef, len(elem.BindArgs))
	for i, t := range elem.BindArgs {
		ref, ok := termRef(e, t)
		if !ok {
			return errs.ErrUnsafeRule.New(describeTerm(t))
		}
		args[i] = ref
	}
	if e.node == nil {
		return errs.ErrUnsafeRule.New(elem.BindVar)
	}
	outType := inferBindingType(e.node, args)
	m := NewMap(e.node, []MapExpr{{OutputVar: elem.BindVar, Func: elem.BindFunc, Args: args, Type: outType}})
	e.node = m
	e.bind(elem.BindVar, len(m.Schema())-1)
	return nil
}

func inferBindingType(n Node, args []ValueRef) value.Type {
	for _, a := range args {
		if a.Kind == RefColumn {
			return n.Schema()[a.Column].Type
		}
	}
	if len(args) > 0 && args[0].Kind == RefConst {
		return value.Type{Base: args[0].Const.Kind()}
	}
	return value.Type{Base: value.KindFloat}
}

func applyInSet(e *env, elem lang.BodyElem) error {
	col, ok := e.lookup(elem.InSetVar)
	if !ok {
		return errs.ErrUnsafeRule.New(elem.InSetVar)
	}
	values := make([]value.Value, len(elem.InSetValues))
	for i, t := range elem.InSetValues {
		if t.Kind != lang.TermConst {
			return errs.ErrInternal.New("in-set test requires constant members")
		}
		values[i] = t.Const
	}
	e.node = NewFilter(e.node, Predicate{IsIn: true, LHS: ColumnRef(col), Values: values})
	return nil
}

func describeTerm(t lang.Term) string {
	if t.Kind == lang.TermVar {
		return t.Name
	}
	return fmt.Sprintf("%v", t.Const)
}

// buildHead projects the body's bound environment into the rule
// head's argument order, then folds any aggregate head positions into
// a single Aggregate node grouped on the non-aggregate positions.
func buildHead(e *env, rule *lang.Rule, cat *catalog.Catalog) (Node, error) {
	positions := make([]int, len(rule.Head.Args))
	consts := map[int]value.Value{}
	outVars := make([]string, len(rule.Head.Args))

	for i, arg := range rule.Head.Args {
		if _, isAgg := rule.Head.Aggregates[i]; isAgg {
			positions[i] = -1
			outVars[i] = fmt.Sprintf("$head%d", i)
			continue
		}
		switch arg.Kind {
		case lang.TermVar:
			col, ok := e.lookup(arg.Name)
			if !ok {
				return nil, errs.ErrUnsafeRule.New(arg.Name)
			}
			positions[i] = col
			outVars[i] = arg.Name
		case lang.TermConst:
			positions[i] = -1
			consts[i] = arg.Const
			outVars[i] = fmt.Sprintf("$const%d", i)
		default:
			return nil, errs.ErrUnsafeRule.New(rule.Head.Predicate)
		}
	}

	if len(rule.Head.Aggregates) == 0 {
		proj := NewProject(e.node, positions, consts, outVars)
		return NewDistinct(proj), nil
	}

	// Aggregate heads: group on every non-aggregate position (evaluated
	// against the pre-projection environment, since aggregate argument
	// columns need to survive into the Aggregate node's input), then
	// reduce each aggregate position with its aggregator.
	var groupKeys []int
	var groupVars []string
	aggPositions := make([]int, 0, len(rule.Head.Aggregates))
	for i := range rule.Head.Args {
		if agg, isAgg := rule.Head.Aggregates[i]; isAgg {
			_ = agg
			aggPositions = append(aggPositions, i)
			continue
		}
		groupKeys = append(groupKeys, positions[i])
		groupVars = append(groupVars, outVars[i])
	}

	specs := make([]AggregatorSpec, 0, len(aggPositions))
	for _, i := range aggPositions {
		agg := rule.Head.Aggregates[i]
		argCol := -1
		if agg.Arg.Kind == lang.TermVar {
			col, ok := e.lookup(agg.Arg.Name)
			if !ok {
				return nil, errs.ErrUnsafeRule.New(agg.Arg.Name)
			}
			argCol = col
		}
		outType := aggregateOutputType(agg.Aggregator, e.node, argCol)
		specs = append(specs, AggregatorSpec{
			Aggregator: agg.Aggregator,
			ArgColumn:  argCol,
			K:          agg.K,
			Radius:     agg.Radius,
			OutputVar:  outVars[i],
			OutputType: outType,
		})
	}

	return NewAggregate(e.node, groupKeys, specs, groupVars), nil
}

func aggregateOutputType(agg lang.Aggregator, input Node, argCol int) value.Type {
	switch agg {
	case lang.AggCount, lang.AggCountDistinct:
		return value.Type{Base: value.KindInt}
	case lang.AggTopK, lang.AggWithinRadius:
		if argCol >= 0 {
			return input.Schema()[argCol].Type
		}
		return value.Type{Base: value.KindList}
	default:
		if argCol >= 0 {
			return input.Schema()[argCol].Type
		}
		return value.Type{Base: value.KindFloat}
	}
}

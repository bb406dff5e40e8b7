package dataflow

import (
	"sort"

	"github.com/inputlayer/inputlayer/errs"
	"github.com/inputlayer/inputlayer/ir"
	"github.com/inputlayer/inputlayer/lang"
	"github.com/inputlayer/inputlayer/value"
)

// Operator is a compiled, stateful dataflow node. Evaluate is how a
// delta enters the graph: relation names the EDB/IDB source the batch
// originated from, and every operator that does not reference that
// source returns (nil, nil). A Scan at the bottom of the tree matches
// by name and hands the batch to its parents, each folding it through
// its own transform (and, for stateful operators, its own arrangement)
// on the way back up.
type Operator interface {
	Schema() value.Schema
	Vars() []string
	Evaluate(relation string, batch Batch) (Batch, error)
}

type opBase struct {
	schema value.Schema
	vars   []string
}

func (b opBase) Schema() value.Schema { return b.schema }
func (b opBase) Vars() []string       { return b.vars }

// ScanOp is a leaf referencing one relation's delta stream, either an
// EDB table fed directly by commits or an IDB relation fed by another
// compiled predicate's output (or, inside an IterativeScope, by the
// previous round's feedback).
type ScanOp struct {
	opBase
	Relation string
}

func NewScanOp(relation string, schema value.Schema, vars []string) *ScanOp {
	return &ScanOp{opBase: opBase{schema: schema, vars: vars}, Relation: relation}
}

func (s *ScanOp) Evaluate(relation string, batch Batch) (Batch, error) {
	if relation != s.Relation {
		return nil, nil
	}
	return Coalesce(batch), nil
}

// FilterOp drops tuples failing its predicate.
type FilterOp struct {
	opBase
	Input Operator
	Pred  ir.Predicate
}

func NewFilterOp(input Operator, pred ir.Predicate) *FilterOp {
	return &FilterOp{opBase: opBase{schema: input.Schema(), vars: input.Vars()}, Input: input, Pred: pred}
}

func (f *FilterOp) Evaluate(relation string, batch Batch) (Batch, error) {
	in, err := f.Input.Evaluate(relation, batch)
	if err != nil || len(in) == 0 {
		return in, err
	}
	out := make(Batch, 0, len(in))
	for _, wt := range in {
		ok, err := evalPredicate(f.Pred, wt.Tuple)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, wt)
		}
	}
	return out, nil
}

func resolveRef(ref ir.ValueRef, t value.Tuple) value.Value {
	if ref.Kind == ir.RefConst {
		return ref.Const
	}
	return t.At(ref.Column)
}

func evalPredicate(p ir.Predicate, t value.Tuple) (bool, error) {
	lhs := resolveRef(p.LHS, t)
	if p.IsIn {
		for _, v := range p.Values {
			if value.Equal(lhs, v) {
				return true, nil
			}
		}
		return false, nil
	}
	rhs := resolveRef(p.RHS, t)
	c := value.Compare(lhs, rhs)
	switch p.Op {
	case lang.OpEq:
		return c == 0, nil
	case lang.OpNeq:
		return c != 0, nil
	case lang.OpLt:
		return c < 0, nil
	case lang.OpGt:
		return c > 0, nil
	case lang.OpLe:
		return c <= 0, nil
	case lang.OpGe:
		return c >= 0, nil
	default:
		return false, errs.ErrInternal.New("unhandled comparison operator")
	}
}

// MapOp appends computed columns; it never changes a row's delta.
type MapOp struct {
	opBase
	Input Operator
	Exprs []ir.MapExpr
}

func NewMapOp(input Operator, exprs []ir.MapExpr) *MapOp {
	schema := append(value.Schema{}, input.Schema()...)
	vars := append([]string{}, input.Vars()...)
	for _, e := range exprs {
		schema = append(schema, value.Column{Name: e.OutputVar, Type: e.Type})
		vars = append(vars, e.OutputVar)
	}
	return &MapOp{opBase: opBase{schema: schema, vars: vars}, Input: input, Exprs: exprs}
}

func (m *MapOp) Evaluate(relation string, batch Batch) (Batch, error) {
	in, err := m.Input.Evaluate(relation, batch)
	if err != nil || len(in) == 0 {
		return in, err
	}
	out := make(Batch, 0, len(in))
	for _, wt := range in {
		vals := append([]value.Value{}, wt.Tuple.Values...)
		for _, e := range m.Exprs {
			v, err := evalMapExpr(e, wt.Tuple)
			if err != nil {
				return nil, err
			}
			vals = append(vals, v)
		}
		out = append(out, WeightedTuple{Tuple: value.NewTuple(vals...), Delta: wt.Delta})
	}
	return out, nil
}

func evalMapExpr(e ir.MapExpr, t value.Tuple) (value.Value, error) {
	args := make([]value.Value, len(e.Args))
	for i, a := range e.Args {
		args[i] = resolveRef(a, t)
	}
	switch e.Func {
	case "id":
		return args[0], nil
	case "+", "-", "*", "/":
		return evalArith(e.Func, args, e.Type)
	default:
		return value.Value{}, errs.ErrInternal.New("unknown map function: " + e.Func)
	}
}

func evalArith(op string, args []value.Value, out value.Type) (value.Value, error) {
	if len(args) != 2 {
		return value.Value{}, errs.ErrInternal.New("arithmetic expression requires two arguments")
	}
	if out.Base == value.KindInt {
		a, err := value.ToInt64(args[0])
		if err != nil {
			return value.Value{}, err
		}
		b, err := value.ToInt64(args[1])
		if err != nil {
			return value.Value{}, err
		}
		switch op {
		case "+":
			return value.Int(a + b), nil
		case "-":
			return value.Int(a - b), nil
		case "*":
			return value.Int(a * b), nil
		case "/":
			if b == 0 {
				return value.Value{}, errs.ErrInternal.New("division by zero")
			}
			return value.Int(a / b), nil
		}
	}
	a, err := value.ToFloat64(args[0])
	if err != nil {
		return value.Value{}, err
	}
	b, err := value.ToFloat64(args[1])
	if err != nil {
		return value.Value{}, err
	}
	switch op {
	case "+":
		return value.Float(a + b), nil
	case "-":
		return value.Float(a - b), nil
	case "*":
		return value.Float(a * b), nil
	case "/":
		return value.Float(a / b), nil
	}
	return value.Value{}, errs.ErrInternal.New("unhandled arithmetic operator: " + op)
}

// ProjectOp reorders/selects columns and substitutes literal constants.
// It never deduplicates: a head projection is always paired with a
// Distinct by the builder when set semantics are required.
type ProjectOp struct {
	opBase
	Input     Operator
	Positions []int
	Consts    map[int]value.Value
}

func NewProjectOp(input Operator, positions []int, consts map[int]value.Value, outVars []string) *ProjectOp {
	schema := make(value.Schema, len(positions))
	for i, pos := range positions {
		if pos >= 0 {
			schema[i] = input.Schema()[pos]
			schema[i].Name = outVars[i]
		} else {
			schema[i] = value.Column{Name: outVars[i], Type: value.Type{Base: consts[i].Kind()}}
		}
	}
	return &ProjectOp{opBase: opBase{schema: schema, vars: outVars}, Input: input, Positions: positions, Consts: consts}
}

func (p *ProjectOp) Evaluate(relation string, batch Batch) (Batch, error) {
	in, err := p.Input.Evaluate(relation, batch)
	if err != nil || len(in) == 0 {
		return in, err
	}
	out := make(Batch, 0, len(in))
	for _, wt := range in {
		vals := make([]value.Value, len(p.Positions))
		for i, pos := range p.Positions {
			if pos >= 0 {
				vals[i] = wt.Tuple.At(pos)
			} else {
				vals[i] = p.Consts[i]
			}
		}
		out = append(out, WeightedTuple{Tuple: value.NewTuple(vals...), Delta: wt.Delta})
	}
	return out, nil
}

// JoinOp performs a symmetric incremental hash join: an input delta on
// either side is probed against the other side's arrangement as it
// currently stands, then folded into its own side's arrangement.
type JoinOp struct {
	opBase
	Left, Right         Operator
	LeftKeys, RightKeys []int
	RightPassthrough    []int

	leftArr  *Arrangement
	rightArr *Arrangement
}

func NewJoinOp(left, right Operator, leftKeys, rightKeys, rightPassthrough []int, schema value.Schema, vars []string) *JoinOp {
	return &JoinOp{
		opBase:           opBase{schema: schema, vars: vars},
		Left:             left,
		Right:            right,
		LeftKeys:         leftKeys,
		RightKeys:        rightKeys,
		RightPassthrough: rightPassthrough,
		leftArr:          NewArrangement(leftKeys),
		rightArr:         NewArrangement(rightKeys),
	}
}

func (j *JoinOp) Evaluate(relation string, batch Batch) (Batch, error) {
	var out Batch
	if leftDelta, err := j.Left.Evaluate(relation, batch); err != nil {
		return nil, err
	} else if len(leftDelta) > 0 {
		for _, wt := range leftDelta {
			key := wt.Tuple.Project(j.LeftKeys...)
			for _, rhs := range j.rightArr.Lookup(key) {
				out = append(out, WeightedTuple{Tuple: j.combine(wt.Tuple, rhs.tuple), Delta: wt.Delta * rhs.weight})
			}
		}
		j.leftArr.Apply(leftDelta)
	}
	if rightDelta, err := j.Right.Evaluate(relation, batch); err != nil {
		return nil, err
	} else if len(rightDelta) > 0 {
		for _, wt := range rightDelta {
			key := wt.Tuple.Project(j.RightKeys...)
			for _, lhs := range j.leftArr.Lookup(key) {
				out = append(out, WeightedTuple{Tuple: j.combine(lhs.tuple, wt.Tuple), Delta: lhs.weight * wt.Delta})
			}
		}
		j.rightArr.Apply(rightDelta)
	}
	return Coalesce(out), nil
}

func (j *JoinOp) combine(left, right value.Tuple) value.Tuple {
	vals := append([]value.Value{}, left.Values...)
	for _, pos := range j.RightPassthrough {
		vals = append(vals, right.At(pos))
	}
	return value.NewTuple(vals...)
}

// AntijoinOp keeps left tuples whose join key currently has zero total
// weight on the right (left-minus-semijoin). A right-side delta that
// crosses the existence threshold at a key re-emits compensating
// deltas for every currently-held left row at that key.
type AntijoinOp struct {
	opBase
	Left, Right         Operator
	LeftKeys, RightKeys []int

	leftArr  *Arrangement
	rightArr *Arrangement
}

func NewAntijoinOp(left, right Operator, leftKeys, rightKeys []int) *AntijoinOp {
	return &AntijoinOp{
		opBase:   opBase{schema: left.Schema(), vars: left.Vars()},
		Left:     left,
		Right:    right,
		LeftKeys: leftKeys,
		RightKeys: rightKeys,
		leftArr:  NewArrangement(leftKeys),
		rightArr: NewArrangement(rightKeys),
	}
}

func (a *AntijoinOp) Evaluate(relation string, batch Batch) (Batch, error) {
	var out Batch
	if leftDelta, err := a.Left.Evaluate(relation, batch); err != nil {
		return nil, err
	} else if len(leftDelta) > 0 {
		for _, wt := range leftDelta {
			key := wt.Tuple.Project(a.LeftKeys...)
			if a.rightArr.KeyCount(key) == 0 {
				out = append(out, wt)
			}
		}
		a.leftArr.Apply(leftDelta)
	}
	if rightDelta, err := a.Right.Evaluate(relation, batch); err != nil {
		return nil, err
	} else if len(rightDelta) > 0 {
		for _, wt := range rightDelta {
			key := wt.Tuple.Project(a.RightKeys...)
			before := a.rightArr.KeyCount(key)
			after := before + wt.Delta
			if (before == 0) == (after == 0) {
				continue
			}
			sign := int64(-1)
			if after == 0 {
				sign = 1
			}
			for _, lhs := range a.leftArr.Lookup(key) {
				out = append(out, WeightedTuple{Tuple: lhs.tuple, Delta: sign * lhs.weight})
			}
		}
		a.rightArr.Apply(rightDelta)
	}
	return Coalesce(out), nil
}

// DistinctOp clamps a row's multiplicity to {0,1}, emitting a
// compensating delta only when a row crosses the presence/absence
// threshold.
type DistinctOp struct {
	opBase
	Input   Operator
	weights map[uint64]int64
}

func NewDistinctOp(input Operator) *DistinctOp {
	return &DistinctOp{opBase: opBase{schema: input.Schema(), vars: input.Vars()}, Input: input, weights: map[uint64]int64{}}
}

func (d *DistinctOp) Evaluate(relation string, batch Batch) (Batch, error) {
	in, err := d.Input.Evaluate(relation, batch)
	if err != nil || len(in) == 0 {
		return in, err
	}
	var out Batch
	for _, wt := range in {
		h := wt.Tuple.Hash64()
		before := d.weights[h]
		after := before + wt.Delta
		if after == 0 {
			delete(d.weights, h)
		} else {
			d.weights[h] = after
		}
		presentBefore, presentAfter := before > 0, after > 0
		if presentBefore == presentAfter {
			continue
		}
		delta := int64(1)
		if presentBefore {
			delta = -1
		}
		out = append(out, WeightedTuple{Tuple: wt.Tuple, Delta: delta})
	}
	return out, nil
}

// UnionOp sums multiplicities across every clause computing the same
// head predicate. Every child is always probed: a relation may appear
// under more than one clause (or not at all).
type UnionOp struct {
	opBase
	Inputs []Operator
}

func NewUnionOp(schema value.Schema, vars []string, inputs []Operator) *UnionOp {
	return &UnionOp{opBase: opBase{schema: schema, vars: vars}, Inputs: inputs}
}

func (u *UnionOp) Evaluate(relation string, batch Batch) (Batch, error) {
	var out Batch
	for _, in := range u.Inputs {
		delta, err := in.Evaluate(relation, batch)
		if err != nil {
			return nil, err
		}
		out = append(out, delta...)
	}
	return Coalesce(out), nil
}

// AggregateOp reduces per group, recomputing and re-emitting the
// group's output row (as a retract-then-assert pair) whenever a member
// changes. min/max/top_k/within_radius are recomputed by scanning the
// group's current members rather than maintained incrementally: groups
// are expected to stay small relative to commit sizes, and this keeps
// the combine step a single pure function of a group's member set.
type AggregateOp struct {
	opBase
	Input       Operator
	GroupKeys   []int
	Aggregators []ir.AggregatorSpec

	groups     map[uint64]map[uint64]*entry
	groupKey   map[uint64]value.Tuple
	lastOutput map[uint64]value.Tuple
}

func NewAggregateOp(input Operator, groupKeys []int, aggs []ir.AggregatorSpec, schema value.Schema, vars []string) *AggregateOp {
	return &AggregateOp{
		opBase:      opBase{schema: schema, vars: vars},
		Input:       input,
		GroupKeys:   groupKeys,
		Aggregators: aggs,
		groups:      map[uint64]map[uint64]*entry{},
		groupKey:    map[uint64]value.Tuple{},
		lastOutput:  map[uint64]value.Tuple{},
	}
}

func (a *AggregateOp) Evaluate(relation string, batch Batch) (Batch, error) {
	in, err := a.Input.Evaluate(relation, batch)
	if err != nil || len(in) == 0 {
		return in, err
	}
	touched := map[uint64]bool{}
	for _, wt := range in {
		key := wt.Tuple.Project(a.GroupKeys...)
		kh := key.Hash64()
		members, ok := a.groups[kh]
		if !ok {
			members = map[uint64]*entry{}
			a.groups[kh] = members
			a.groupKey[kh] = key
		}
		rh := wt.Tuple.Hash64()
		e, ok := members[rh]
		if !ok {
			e = &entry{tuple: wt.Tuple}
			members[rh] = e
		}
		e.weight += wt.Delta
		if e.weight == 0 {
			delete(members, rh)
		}
		touched[kh] = true
	}

	var out Batch
	for kh := range touched {
		members := a.groups[kh]
		if old, had := a.lastOutput[kh]; had {
			out = append(out, WeightedTuple{Tuple: old, Delta: -1})
			delete(a.lastOutput, kh)
		}
		if len(members) == 0 {
			delete(a.groups, kh)
			delete(a.groupKey, kh)
			continue
		}
		row, err := a.combine(a.groupKey[kh], members)
		if err != nil {
			return nil, err
		}
		out = append(out, WeightedTuple{Tuple: row, Delta: 1})
		a.lastOutput[kh] = row
	}
	return out, nil
}

func (a *AggregateOp) combine(key value.Tuple, members map[uint64]*entry) (value.Tuple, error) {
	rows := make([]value.Tuple, 0, len(members))
	for _, e := range members {
		rows = append(rows, e.tuple)
	}
	vals := append([]value.Value{}, key.Values...)
	for _, spec := range a.Aggregators {
		v, err := combineOne(spec, rows)
		if err != nil {
			return value.Tuple{}, err
		}
		vals = append(vals, v)
	}
	return value.NewTuple(vals...), nil
}

func combineOne(spec ir.AggregatorSpec, rows []value.Tuple) (value.Value, error) {
	switch spec.Aggregator {
	case lang.AggCount:
		return value.Int(int64(len(rows))), nil
	case lang.AggCountDistinct:
		seen := map[uint64]bool{}
		for _, r := range rows {
			seen[value.NewTuple(r.At(spec.ArgColumn)).Hash64()] = true
		}
		return value.Int(int64(len(seen))), nil
	case lang.AggSum:
		return combineSum(spec, rows)
	case lang.AggAvg:
		return combineAvg(spec, rows)
	case lang.AggMin:
		return combineExtreme(spec, rows, true)
	case lang.AggMax:
		return combineExtreme(spec, rows, false)
	case lang.AggTopK:
		return combineTopK(spec, rows)
	case lang.AggWithinRadius:
		return combineWithinRadius(spec, rows)
	default:
		return value.Value{}, errs.ErrInternal.New("unknown aggregator: " + string(spec.Aggregator))
	}
}

func combineSum(spec ir.AggregatorSpec, rows []value.Tuple) (value.Value, error) {
	if spec.OutputType.Base == value.KindInt {
		var total int64
		for _, r := range rows {
			n, err := value.ToInt64(r.At(spec.ArgColumn))
			if err != nil {
				return value.Value{}, err
			}
			total += n
		}
		return value.Int(total), nil
	}
	var total float64
	for _, r := range rows {
		f, err := value.ToFloat64(r.At(spec.ArgColumn))
		if err != nil {
			return value.Value{}, err
		}
		total += f
	}
	return value.Float(total), nil
}

func combineAvg(spec ir.AggregatorSpec, rows []value.Tuple) (value.Value, error) {
	if len(rows) == 0 {
		return value.Float(0), nil
	}
	var total float64
	for _, r := range rows {
		f, err := value.ToFloat64(r.At(spec.ArgColumn))
		if err != nil {
			return value.Value{}, err
		}
		total += f
	}
	return value.Float(total / float64(len(rows))), nil
}

func combineExtreme(spec ir.AggregatorSpec, rows []value.Tuple, wantMin bool) (value.Value, error) {
	best := rows[0].At(spec.ArgColumn)
	for _, r := range rows[1:] {
		v := r.At(spec.ArgColumn)
		c := value.Compare(v, best)
		if (wantMin && c < 0) || (!wantMin && c > 0) {
			best = v
		}
	}
	return best, nil
}

func combineTopK(spec ir.AggregatorSpec, rows []value.Tuple) (value.Value, error) {
	sorted := append([]value.Tuple{}, rows...)
	sort.Slice(sorted, func(i, j int) bool {
		return value.Compare(sorted[i].At(spec.ArgColumn), sorted[j].At(spec.ArgColumn)) < 0
	})
	k := int(spec.K)
	if k > len(sorted) {
		k = len(sorted)
	}
	items := make([]value.Value, k)
	for i := 0; i < k; i++ {
		items[i] = sorted[i].At(spec.ArgColumn)
	}
	return value.List(items), nil
}

func combineWithinRadius(spec ir.AggregatorSpec, rows []value.Tuple) (value.Value, error) {
	var items []value.Value
	for _, r := range rows {
		f, err := value.ToFloat64(r.At(spec.ArgColumn))
		if err != nil {
			return value.Value{}, err
		}
		if f <= spec.Radius {
			items = append(items, r.At(spec.ArgColumn))
		}
	}
	return value.List(items), nil
}

// VectorNeighbor is one HNSW search result.
type VectorNeighbor struct {
	Row      value.Value
	Distance float64
}

// VectorIndex is the subset of the hnsw package's Index the dataflow
// layer needs; it is an interface here so that a VectorSearchOp does
// not depend on how the index is built or kept current (an evaluator
// wires a concrete *hnsw.Index in via compile.go once a relation's
// vector column has one defined).
type VectorIndex interface {
	Search(query value.Value, k int64, radius float64, hasRadius bool) ([]VectorNeighbor, error)
}

// VectorSearchOp consults Index for each incoming row's query vector
// and emits one output row per neighbor, weighted by the input row's
// delta.
type VectorSearchOp struct {
	opBase
	Input     Operator
	Index     VectorIndex
	QueryExpr ir.ValueRef
	K         int64
	Radius    float64
	HasRadius bool
}

func NewVectorSearchOp(input Operator, index VectorIndex, queryExpr ir.ValueRef, k int64, radius float64, hasRadius bool, schema value.Schema, vars []string) *VectorSearchOp {
	return &VectorSearchOp{
		opBase:    opBase{schema: schema, vars: vars},
		Input:     input,
		Index:     index,
		QueryExpr: queryExpr,
		K:         k,
		Radius:    radius,
		HasRadius: hasRadius,
	}
}

func (v *VectorSearchOp) Evaluate(relation string, batch Batch) (Batch, error) {
	in, err := v.Input.Evaluate(relation, batch)
	if err != nil || len(in) == 0 {
		return in, err
	}
	var out Batch
	for _, wt := range in {
		query := resolveRef(v.QueryExpr, wt.Tuple)
		neighbors, err := v.Index.Search(query, v.K, v.Radius, v.HasRadius)
		if err != nil {
			return nil, err
		}
		for _, n := range neighbors {
			vals := append([]value.Value{}, wt.Tuple.Values...)
			vals = append(vals, n.Row, value.Float(n.Distance))
			out = append(out, WeightedTuple{Tuple: value.NewTuple(vals...), Delta: wt.Delta})
		}
	}
	return out, nil
}

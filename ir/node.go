// Package ir defines the logical operator tree that a resolved rule
// body is translated into: Scan, Filter, Map, Join, Antijoin,
// Aggregate, Distinct, Union, VectorSearch. Every node carries its
// output schema and a parallel slice of rule-variable bindings so the
// builder (and later the planner) can reason about which column holds
// which variable without re-deriving it from the original AST.
package ir

import (
	"github.com/inputlayer/inputlayer/lang"
	"github.com/inputlayer/inputlayer/value"
)

// Node is the sum type of every logical operator.
type Node interface {
	// Schema is the node's output column types.
	Schema() value.Schema
	// Vars names the rule variable bound at each output column, ""
	// where the column is unbound (the result of an expression with no
	// single source variable, or a column the builder chose not to track).
	Vars() []string
	node()
}

type base struct {
	schema value.Schema
	vars   []string
}

func (b base) Schema() value.Schema { return b.schema }
func (b base) Vars() []string       { return b.vars }

// IndexOfVar returns the column position bound to name, or -1.
func IndexOfVar(n Node, name string) int {
	if name == "" {
		return -1
	}
	for i, v := range n.Vars() {
		if v == name {
			return i
		}
	}
	return -1
}

// Scan reads a relation's current extension (EDB source or a
// reference to another IDB relation's arrangement).
type Scan struct {
	base
	Relation string
}

func (*Scan) node() {}

func NewScan(relation string, schema value.Schema, vars []string) *Scan {
	return &Scan{base: base{schema: schema, vars: vars}, Relation: relation}
}

// ValueRefKind tags a ValueRef variant.
type ValueRefKind uint8

const (
	RefColumn ValueRefKind = iota
	RefConst
)

// ValueRef is either a reference to an input column or a literal constant.
type ValueRef struct {
	Kind   ValueRefKind
	Column int
	Const  value.Value
}

func ColumnRef(i int) ValueRef        { return ValueRef{Kind: RefColumn, Column: i} }
func ConstRef(v value.Value) ValueRef { return ValueRef{Kind: RefConst, Const: v} }

// Predicate is a single Filter test: LHS <op> RHS, or LHS in Values.
type Predicate struct {
	Op     lang.CompareOp
	IsIn   bool
	LHS    ValueRef
	RHS    ValueRef   // used when !IsIn
	Values []value.Value // used when IsIn
}

// Filter drops records failing Pred.
type Filter struct {
	base
	Input Node
	Pred  Predicate
}

func (*Filter) node() {}

func NewFilter(input Node, pred Predicate) *Filter {
	return &Filter{base: base{schema: input.Schema(), vars: input.Vars()}, Input: input, Pred: pred}
}

// MapExpr computes one new output column from input columns/constants.
// Func is "id" for a pass-through rename, one of "+","-","*","/" for
// arithmetic, or a named builtin.
type MapExpr struct {
	OutputVar string
	Func      string
	Args      []ValueRef
	Type      value.Type
}

// Map appends computed columns to its input's schema; deltas pass
// through unchanged since Map never changes row count.
type Map struct {
	base
	Input Node
	Exprs []MapExpr
}

func (*Map) node() {}

func NewMap(input Node, exprs []MapExpr) *Map {
	schema := append(value.Schema{}, input.Schema()...)
	vars := append([]string{}, input.Vars()...)
	for _, e := range exprs {
		schema = append(schema, value.Column{Name: e.OutputVar, Type: e.Type})
		vars = append(vars, e.OutputVar)
	}
	return &Map{base: base{schema: schema, vars: vars}, Input: input, Exprs: exprs}
}

// Project reorders/selects a subset of input columns, used to shape a
// rule body's final output to its head's argument order.
type Project struct {
	base
	Input     Node
	Positions []int // -1 means "project a constant", paired with Consts
	Consts    map[int]value.Value
}

func (*Project) node() {}

func NewProject(input Node, positions []int, consts map[int]value.Value, outVars []string) *Project {
	schema := make(value.Schema, len(positions))
	for i, pos := range positions {
		if pos >= 0 {
			schema[i] = input.Schema()[pos]
			schema[i].Name = outVars[i]
		} else {
			schema[i] = value.Column{Name: outVars[i], Type: value.Type{Base: consts[i].Kind()}}
		}
	}
	return &Project{base: base{schema: schema, vars: outVars}, Input: input, Positions: positions, Consts: consts}
}

// Join produces (left⊕right, delta_L × delta_R) for matching keys.
// The output schema is left's columns followed by right's columns
// that are not part of the join key (key columns are deduplicated:
// the shared variable only needs to appear once in the output).
type Join struct {
	base
	Left, Right         Node
	LeftKeys, RightKeys []int
	rightPassthrough     []int // right column positions kept in the output, in order
}

func (*Join) node() {}

// NewJoin builds the output schema/vars as left's full row followed by
// every right column whose variable isn't already one of the join keys.
func NewJoin(left, right Node, leftKeys, rightKeys []int) *Join {
	keyOnRight := map[int]bool{}
	for _, k := range rightKeys {
		keyOnRight[k] = true
	}
	schema := append(value.Schema{}, left.Schema()...)
	vars := append([]string{}, left.Vars()...)
	var passthrough []int
	for i, col := range right.Schema() {
		if keyOnRight[i] {
			continue
		}
		schema = append(schema, col)
		vars = append(vars, right.Vars()[i])
		passthrough = append(passthrough, i)
	}
	return &Join{
		base:             base{schema: schema, vars: vars},
		Left:             left,
		Right:            right,
		LeftKeys:         leftKeys,
		RightKeys:        rightKeys,
		rightPassthrough: passthrough,
	}
}

// RightPassthrough returns the right-side column positions retained in
// the join's output, in output order (after left's columns).
func (j *Join) RightPassthrough() []int { return j.rightPassthrough }

// Antijoin keeps left tuples whose key is absent from the right
// arrangement (left-minus-semijoin); used for negated atoms. Output
// schema equals Left's: negation never introduces new bindings.
type Antijoin struct {
	base
	Left, Right         Node
	LeftKeys, RightKeys []int
}

func (*Antijoin) node() {}

func NewAntijoin(left, right Node, leftKeys, rightKeys []int) *Antijoin {
	return &Antijoin{base: base{schema: left.Schema(), vars: left.Vars()}, Left: left, Right: right, LeftKeys: leftKeys, RightKeys: rightKeys}
}

// AggregatorSpec is one reduce-per-group combine function.
type AggregatorSpec struct {
	Aggregator lang.Aggregator
	ArgColumn  int // -1 for count() with no argument
	K          int64
	Radius     float64
	OutputVar  string
	OutputType value.Type
}

// Aggregate reduces per-group, one output row per distinct GroupKeys
// combination.
type Aggregate struct {
	base
	Input       Node
	GroupKeys   []int
	Aggregators []AggregatorSpec
}

func (*Aggregate) node() {}

func NewAggregate(input Node, groupKeys []int, aggs []AggregatorSpec, groupVars []string) *Aggregate {
	schema := make(value.Schema, 0, len(groupKeys)+len(aggs))
	vars := make([]string, 0, len(groupKeys)+len(aggs))
	for i, k := range groupKeys {
		col := input.Schema()[k]
		col.Name = groupVars[i]
		schema = append(schema, col)
		vars = append(vars, groupVars[i])
	}
	for _, a := range aggs {
		schema = append(schema, value.Column{Name: a.OutputVar, Type: a.OutputType})
		vars = append(vars, a.OutputVar)
	}
	return &Aggregate{base: base{schema: schema, vars: vars}, Input: input, GroupKeys: groupKeys, Aggregators: aggs}
}

// Distinct clamps multiplicities to {0,1} per key (the full row).
// Mandatory on set-semantics IDB outputs.
type Distinct struct {
	base
	Input Node
}

func (*Distinct) node() {}

func NewDistinct(input Node) *Distinct {
	return &Distinct{base: base{schema: input.Schema(), vars: input.Vars()}, Input: input}
}

// Union merges weighted streams (multiplicities add). All inputs must
// share the output's schema shape (by arity/type, not necessarily by
// variable name — each rule clause names its own variables).
type Union struct {
	base
	Inputs []Node
}

func (*Union) node() {}

func NewUnion(schema value.Schema, vars []string, inputs []Node) *Union {
	return &Union{base: base{schema: schema, vars: vars}, Inputs: inputs}
}

// VectorSearch consults an HNSW index and, for each input row, emits
// the k nearest (or within-threshold) neighbors with their distances.
type VectorSearch struct {
	base
	Input     Node
	Index     string
	QueryExpr ValueRef
	K         int64
	Radius    float64
	HasRadius bool
}

func (*VectorSearch) node() {}

func NewVectorSearch(input Node, index string, queryExpr ValueRef, k int64, radius float64, hasRadius bool, outVars []string, outSchema value.Schema) *VectorSearch {
	schema := append(value.Schema{}, input.Schema()...)
	vars := append([]string{}, input.Vars()...)
	schema = append(schema, outSchema...)
	vars = append(vars, outVars...)
	return &VectorSearch{
		base:      base{schema: schema, vars: vars},
		Input:     input,
		Index:     index,
		QueryExpr: queryExpr,
		K:         k,
		Radius:    radius,
		HasRadius: hasRadius,
	}
}

// Package lang implements the rule/query language front end: lexing,
// parsing into an AST, and desugaring record syntax and batch fact
// forms into their canonical shape. Name resolution against a catalog
// happens one layer up, keeping parsing free of any dependency on
// catalog state.
package lang

import "github.com/inputlayer/inputlayer/value"

// Pos is a 1-based source position.
type Pos struct {
	Line   int
	Column int
}

// Program is the top-level parse result: an ordered list of statements.
type Program struct {
	Statements []Statement
}

// Statement is the sum type of everything a program can contain.
type Statement interface{ stmt() }

// TermKind tags a Term variant.
type TermKind uint8

const (
	TermVar TermKind = iota
	TermWildcard
	TermConst
)

// Term is one argument position of an atom: a variable, the wildcard
// `_`, or a constant Value.
type Term struct {
	Kind  TermKind
	Name  string // for TermVar
	Const value.Value
}

func Var(name string) Term    { return Term{Kind: TermVar, Name: name} }
func Wildcard() Term          { return Term{Kind: TermWildcard} }
func Const(v value.Value) Term { return Term{Kind: TermConst, Const: v} }

// Atom is a predicate applied to a sequence of argument terms.
type Atom struct {
	Predicate string
	Args      []Term
	Pos       Pos
}

// CompareOp enumerates the comparison constraint operators.
type CompareOp uint8

const (
	OpEq CompareOp = iota
	OpNeq
	OpLt
	OpGt
	OpLe
	OpGe
)

// BodyElemKind tags a rule body element's variant.
type BodyElemKind uint8

const (
	BodyPositive BodyElemKind = iota
	BodyNegated
	BodyCompare
	BodyBinding
	BodyInSet
)

// BodyElem is one element of a rule body: a positive atom, a negated
// atom, a comparison constraint, an arithmetic binding, or an in-set test.
type BodyElem struct {
	Kind BodyElemKind

	Atom *Atom // BodyPositive, BodyNegated

	CompareOp  CompareOp // BodyCompare
	CompareLHS Term
	CompareRHS Term

	BindVar  string // BodyBinding: variable bound to the expression result
	BindFunc string // function name, e.g. "+", "-", "*", "/", or a named builtin
	BindArgs []Term

	InSetVar    string // BodyInSet
	InSetValues []Term
}

// Aggregator enumerates the fixed set of supported aggregate functions.
type Aggregator string

const (
	AggCount         Aggregator = "count"
	AggCountDistinct Aggregator = "count_distinct"
	AggSum           Aggregator = "sum"
	AggMin           Aggregator = "min"
	AggMax           Aggregator = "max"
	AggAvg           Aggregator = "avg"
	AggTopK          Aggregator = "top_k"
	AggWithinRadius  Aggregator = "within_radius"
)

// AggregateHead describes an aggregate head position, e.g. `sum<X>` in
// `+total(D, sum<S>) <- ...`.
type AggregateHead struct {
	Aggregator Aggregator
	Arg        Term
	K          int64   // for top_k
	Radius     float64 // for within_radius
}

// RuleHead is the atom-shaped head of a rule, where some argument
// positions may be aggregate heads instead of plain terms.
type RuleHead struct {
	Predicate  string
	Args       []Term
	Aggregates map[int]AggregateHead // position -> aggregate descriptor
	Pos        Pos
}

// Rule is `+head(args) <- body_elem, body_elem, ...`.
type Rule struct {
	Head Head
	Body []BodyElem
	Pos  Pos
}

// Head is the resolved head shape after desugaring RuleHead's aggregate
// positions out into a separate Aggregates slice.
type Head struct {
	Predicate  string
	Args       []Term
	Aggregates map[int]AggregateHead
	Pos        Pos
}

func (*Rule) stmt() {}

// FactAssert is `+relation(v1, ..., vn)` or the batch form
// `+relation[(...), (...), ...]`.
type FactAssert struct {
	Relation string
	Tuples   [][]Term
	Pos      Pos
}

func (*FactAssert) stmt() {}

// FactRetract is `-relation(v1, ..., vn)`.
type FactRetract struct {
	Relation string
	Args     []Term
	Pos      Pos
}

func (*FactRetract) stmt() {}

// Query is `?atom(args)` with optional trailing constraints.
type Query struct {
	Atom        Atom
	Constraints []BodyElem
	Pos         Pos
}

func (*Query) stmt() {}

// TypeDecl is `type T: Base(refinement, ...)` or `type T: { field: τ, ... }`.
type TypeDecl struct {
	Name       string
	Base       string // base type name, "" if Record != nil
	Refinement string
	Record     *RecordTypeDecl
	Pos        Pos
}

// RecordTypeDecl is the `{ field: τ, ... }` form.
type RecordTypeDecl struct {
	Fields []RecordFieldDecl
}

type RecordFieldDecl struct {
	Name string
	Type string
}

func (*TypeDecl) stmt() {}

// RelDecl is `rel r(col1: τ1, ..., coln: τn)` or `rel r: RecordType`.
type RelDecl struct {
	Name     string
	Columns  []RelColumnDecl // positional form
	AsRecord string          // record-sugar form: the named record type
	Pos      Pos
}

type RelColumnDecl struct {
	Name string
	Type string
}

func (*RelDecl) stmt() {}

// MetaCommandKind enumerates the `.xxx` meta-command family.
type MetaCommandKind uint8

const (
	MetaKGCreate MetaCommandKind = iota
	MetaKGUse
	MetaKGDrop
	MetaKGList
	MetaCompact
	MetaRuleList
	MetaRuleDrop
	MetaRuleClear
	MetaStatus
	MetaIndexCreate
	MetaIndexDrop
)

// MetaCommand is one of the `.kg`/`.rule`/`.compact`/`.status`/index
// create-drop meta-commands.
type MetaCommand struct {
	Kind     MetaCommandKind
	Name     string // KG name, rule predicate, or index name depending on Kind
	Relation string // index create/drop target relation
	Column   string // index create target column
	Metric   string // index create metric: cosine|euclidean|dot|manhattan
	Pos      Pos
}

func (*MetaCommand) stmt() {}

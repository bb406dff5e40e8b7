package lang_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inputlayer/inputlayer/lang"
)

func TestParseFactAssert(t *testing.T) {
	require := require.New(t)
	prog, err := lang.Parse(`+edge("a", "b")`)
	require.NoError(err)
	require.Len(prog.Statements, 1)

	fa, ok := prog.Statements[0].(*lang.FactAssert)
	require.True(ok)
	require.Equal("edge", fa.Relation)
	require.Len(fa.Tuples, 1)
	require.Len(fa.Tuples[0], 2)
}

func TestParseBatchFactAssertDesugarsToSingleTuples(t *testing.T) {
	require := require.New(t)
	prog, err := lang.Parse(`+edge[("a", "b"), ("b", "c")]`)
	require.NoError(err)

	fa := prog.Statements[0].(*lang.FactAssert)
	require.Len(fa.Tuples, 2)

	desugared := lang.Desugar(prog)
	require.Len(desugared.Statements, 2)
	for _, stmt := range desugared.Statements {
		one := stmt.(*lang.FactAssert)
		require.Len(one.Tuples, 1)
	}
}

func TestParseRecursiveRule(t *testing.T) {
	require := require.New(t)
	prog, err := lang.Parse(`+reachable(X, Y) <- edge(X, Y)
+reachable(X, Z) <- edge(X, Y), reachable(Y, Z)`)
	require.NoError(err)
	require.Len(prog.Statements, 2)

	r0 := prog.Statements[0].(*lang.Rule)
	require.Equal("reachable", r0.Head.Predicate)
	require.Len(r0.Body, 1)
	require.Equal(lang.BodyPositive, r0.Body[0].Kind)

	r1 := prog.Statements[1].(*lang.Rule)
	require.Len(r1.Body, 2)
}

func TestParseNegationAndComparison(t *testing.T) {
	require := require.New(t)
	prog, err := lang.Parse(`+lonely(X) <- person(X), !has_friend(X), X != "admin"`)
	require.NoError(err)

	r := prog.Statements[0].(*lang.Rule)
	require.Len(r.Body, 3)
	require.Equal(lang.BodyPositive, r.Body[0].Kind)
	require.Equal(lang.BodyNegated, r.Body[1].Kind)
	require.Equal(lang.BodyCompare, r.Body[2].Kind)
	require.Equal(lang.OpNeq, r.Body[2].CompareOp)
}

func TestParseArithmeticBinding(t *testing.T) {
	require := require.New(t)
	prog, err := lang.Parse(`+doubled(X, Y) <- value(X), Y = X * 2`)
	require.NoError(err)

	r := prog.Statements[0].(*lang.Rule)
	require.Len(r.Body, 2)
	require.Equal(lang.BodyBinding, r.Body[1].Kind)
	require.Equal("Y", r.Body[1].BindVar)
	require.Equal("*", r.Body[1].BindFunc)
}

func TestParseAggregateHead(t *testing.T) {
	require := require.New(t)
	prog, err := lang.Parse(`+total_sales(D, sum<Amount>) <- sale(D, Amount)`)
	require.NoError(err)

	r := prog.Statements[0].(*lang.Rule)
	agg, ok := r.Head.Aggregates[1]
	require.True(ok)
	require.Equal(lang.AggSum, agg.Aggregator)
}

func TestParseTopKAggregateHead(t *testing.T) {
	require := require.New(t)
	prog, err := lang.Parse(`+nearest(Q, top_k<V, 5>) <- candidate(Q, V)`)
	require.NoError(err)

	r := prog.Statements[0].(*lang.Rule)
	agg := r.Head.Aggregates[1]
	require.Equal(lang.AggTopK, agg.Aggregator)
	require.EqualValues(5, agg.K)
}

func TestParseQueryWithConstraints(t *testing.T) {
	require := require.New(t)
	prog, err := lang.Parse(`?person(Name, Age), Age > 18`)
	require.NoError(err)

	q := prog.Statements[0].(*lang.Query)
	require.Equal("person", q.Atom.Predicate)
	require.Len(q.Constraints, 1)
	require.Equal(lang.OpGt, q.Constraints[0].CompareOp)
}

func TestParseFactRetract(t *testing.T) {
	require := require.New(t)
	prog, err := lang.Parse(`-edge("a", "b")`)
	require.NoError(err)

	fr := prog.Statements[0].(*lang.FactRetract)
	require.Equal("edge", fr.Relation)
	require.Len(fr.Args, 2)
}

func TestParseTypeAndRelDecl(t *testing.T) {
	require := require.New(t)
	prog, err := lang.Parse(`type Age: int(>= 0)
rel person(name: string, age: Age)`)
	require.NoError(err)

	td := prog.Statements[0].(*lang.TypeDecl)
	require.Equal("Age", td.Name)
	require.Equal("int", td.Base)

	rd := prog.Statements[1].(*lang.RelDecl)
	require.Equal("person", rd.Name)
	require.Len(rd.Columns, 2)
}

func TestParseRecordTypeDecl(t *testing.T) {
	require := require.New(t)
	prog, err := lang.Parse(`type Point: { x: float, y: float }
rel location: Point`)
	require.NoError(err)

	td := prog.Statements[0].(*lang.TypeDecl)
	require.NotNil(td.Record)
	require.Len(td.Record.Fields, 2)

	rd := prog.Statements[1].(*lang.RelDecl)
	require.Equal("Point", rd.AsRecord)
}

func TestParseMetaCommands(t *testing.T) {
	require := require.New(t)
	prog, err := lang.Parse(`.kg create tenant_a
.rule list
.compact
.status`)
	require.NoError(err)
	require.Len(prog.Statements, 4)

	kg := prog.Statements[0].(*lang.MetaCommand)
	require.Equal(lang.MetaKGCreate, kg.Kind)
	require.Equal("tenant_a", kg.Name)

	ruleList := prog.Statements[1].(*lang.MetaCommand)
	require.Equal(lang.MetaRuleList, ruleList.Kind)

	compact := prog.Statements[2].(*lang.MetaCommand)
	require.Equal(lang.MetaCompact, compact.Kind)

	status := prog.Statements[3].(*lang.MetaCommand)
	require.Equal(lang.MetaStatus, status.Kind)
}

func TestParseIndexCreate(t *testing.T) {
	require := require.New(t)
	prog, err := lang.Parse(`.index create embedding_idx on document.embedding metric cosine`)
	require.NoError(err)

	cmd := prog.Statements[0].(*lang.MetaCommand)
	require.Equal(lang.MetaIndexCreate, cmd.Kind)
	require.Equal("embedding_idx", cmd.Name)
	require.Equal("document", cmd.Relation)
	require.Equal("embedding", cmd.Column)
	require.Equal("cosine", cmd.Metric)
}

func TestLegacyColonEqualsRejected(t *testing.T) {
	require := require.New(t)
	_, err := lang.Parse(`+total(X) := count(X)`)
	require.Error(err)
	require.Contains(err.Error(), "':=' is no longer supported")
}

func TestUnterminatedBlockCommentIsAParseError(t *testing.T) {
	require := require.New(t)
	_, err := lang.Parse(`/* never closed
+edge("a", "b")`)
	require.Error(err)
}

func TestInSetConstraint(t *testing.T) {
	require := require.New(t)
	prog, err := lang.Parse(`?status(X), X in ["active", "pending"]`)
	require.NoError(err)

	q := prog.Statements[0].(*lang.Query)
	require.Len(q.Constraints, 1)
	require.Equal(lang.BodyInSet, q.Constraints[0].Kind)
	require.Len(q.Constraints[0].InSetValues, 2)
}

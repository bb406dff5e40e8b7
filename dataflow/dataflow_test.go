package dataflow_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inputlayer/inputlayer/catalog"
	"github.com/inputlayer/inputlayer/dataflow"
	"github.com/inputlayer/inputlayer/ir"
	"github.com/inputlayer/inputlayer/lang"
	"github.com/inputlayer/inputlayer/planner"
	"github.com/inputlayer/inputlayer/value"
)

func tup(vs ...value.Value) value.Tuple { return value.NewTuple(vs...) }

func setupCatalog(t *testing.T, src string) *catalog.Catalog {
	t.Helper()
	cat := catalog.New(nil)
	prog, err := lang.Parse(src)
	require.NoError(t, err)
	_, err = catalog.Resolve(prog, cat)
	require.NoError(t, err)
	return cat
}

func compileRule(t *testing.T, cat *catalog.Catalog, src string) dataflow.Operator {
	t.Helper()
	prog, err := lang.Parse(src)
	require.NoError(t, err)
	rule := prog.Statements[0].(*lang.Rule)
	node, err := planner.PlanRule(rule, cat)
	require.NoError(t, err)
	op, err := dataflow.NewCompiler(nil).Compile(node)
	require.NoError(t, err)
	return op
}

func TestJoinProducesTwoHopPathAndRetracts(t *testing.T) {
	require := require.New(t)
	cat := setupCatalog(t, `rel edge(src: string, dst: string)`)
	op := compileRule(t, cat, `+path(X, Z) <- edge(X, Y), edge(Y, Z)`)

	out1, err := op.Evaluate("edge", dataflow.Batch{{Tuple: tup(value.String("a"), value.String("b")), Delta: 1}})
	require.NoError(err)
	require.Empty(out1, "a single edge cannot form a two-hop path")

	out2, err := op.Evaluate("edge", dataflow.Batch{{Tuple: tup(value.String("b"), value.String("c")), Delta: 1}})
	require.NoError(err)
	require.Len(out2, 1)
	require.Equal(tup(value.String("a"), value.String("c")), out2[0].Tuple)
	require.EqualValues(1, out2[0].Delta)

	out3, err := op.Evaluate("edge", dataflow.Batch{{Tuple: tup(value.String("a"), value.String("b")), Delta: -1}})
	require.NoError(err)
	require.Len(out3, 1)
	require.Equal(tup(value.String("a"), value.String("c")), out3[0].Tuple)
	require.EqualValues(-1, out3[0].Delta)
}

func TestAntijoinRetractsOnDenyListInsert(t *testing.T) {
	require := require.New(t)
	cat := setupCatalog(t, `rel person(id: string)
rel banned(id: string)`)
	op := compileRule(t, cat, `+active(X) <- person(X), !banned(X)`)

	out1, err := op.Evaluate("person", dataflow.Batch{{Tuple: tup(value.String("a")), Delta: 1}})
	require.NoError(err)
	require.Len(out1, 1)
	require.EqualValues(1, out1[0].Delta)

	out2, err := op.Evaluate("banned", dataflow.Batch{{Tuple: tup(value.String("a")), Delta: 1}})
	require.NoError(err)
	require.Len(out2, 1)
	require.Equal(tup(value.String("a")), out2[0].Tuple)
	require.EqualValues(-1, out2[0].Delta)

	out3, err := op.Evaluate("banned", dataflow.Batch{{Tuple: tup(value.String("a")), Delta: -1}})
	require.NoError(err)
	require.Len(out3, 1)
	require.EqualValues(1, out3[0].Delta)
}

func TestDistinctEmitsOnlyOnPresenceCrossing(t *testing.T) {
	require := require.New(t)
	schema := value.Schema{{Name: "x", Type: value.Type{Base: value.KindString}}}
	scan := dataflow.NewScanOp("fact", schema, []string{"X"})
	distinct := dataflow.NewDistinctOp(scan)

	out1, err := distinct.Evaluate("fact", dataflow.Batch{
		{Tuple: tup(value.String("a")), Delta: 1},
		{Tuple: tup(value.String("a")), Delta: 1},
	})
	require.NoError(err)
	require.Len(out1, 1, "two supporting derivations still cross zero only once")
	require.EqualValues(1, out1[0].Delta)

	out2, err := distinct.Evaluate("fact", dataflow.Batch{{Tuple: tup(value.String("a")), Delta: -1}})
	require.NoError(err)
	require.Empty(out2, "one remaining derivation keeps the tuple present")

	out3, err := distinct.Evaluate("fact", dataflow.Batch{{Tuple: tup(value.String("a")), Delta: -1}})
	require.NoError(err)
	require.Len(out3, 1)
	require.EqualValues(-1, out3[0].Delta)
}

func TestAggregateSumRecomputesOnGroupChange(t *testing.T) {
	require := require.New(t)
	inSchema := value.Schema{
		{Name: "region", Type: value.Type{Base: value.KindString}},
		{Name: "amount", Type: value.Type{Base: value.KindFloat}},
	}
	scan := dataflow.NewScanOp("sale", inSchema, []string{"R", "Amount"})
	outSchema := value.Schema{
		{Name: "region", Type: value.Type{Base: value.KindString}},
		{Name: "total", Type: value.Type{Base: value.KindFloat}},
	}
	agg := dataflow.NewAggregateOp(scan, []int{0}, []ir.AggregatorSpec{
		{Aggregator: lang.AggSum, ArgColumn: 1, OutputVar: "total", OutputType: value.Type{Base: value.KindFloat}},
	}, outSchema, []string{"R", "total"})

	out1, err := agg.Evaluate("sale", dataflow.Batch{{Tuple: tup(value.String("east"), value.Float(10)), Delta: 1}})
	require.NoError(err)
	require.Len(out1, 1)
	require.Equal(tup(value.String("east"), value.Float(10)), out1[0].Tuple)
	require.EqualValues(1, out1[0].Delta)

	out2, err := agg.Evaluate("sale", dataflow.Batch{{Tuple: tup(value.String("east"), value.Float(5)), Delta: 1}})
	require.NoError(err)
	require.Len(out2, 2, "a changed group retracts its old total and asserts the new one")
	var sawRetractOld, sawAssertNew bool
	for _, wt := range out2 {
		if wt.Delta == -1 && value.Equal(wt.Tuple.At(1), value.Float(10)) {
			sawRetractOld = true
		}
		if wt.Delta == 1 && value.Equal(wt.Tuple.At(1), value.Float(15)) {
			sawAssertNew = true
		}
	}
	require.True(sawRetractOld)
	require.True(sawAssertNew)
}

func TestIterativeScopeReachesQuiescenceOnTransitiveClosure(t *testing.T) {
	require := require.New(t)
	cat := setupCatalog(t, `rel edge(src: string, dst: string)`)
	prog, err := lang.Parse(`+reachable(X, Y) <- edge(X, Y)
+reachable(X, Z) <- edge(X, Y), reachable(Y, Z)`)
	require.NoError(err)
	var clauses []*lang.Rule
	for _, s := range prog.Statements {
		clauses = append(clauses, s.(*lang.Rule))
	}

	cse := planner.NewCSEIndex()
	planned, err := planner.PlanPredicate("reachable", clauses, cat, cse, false)
	require.NoError(err)

	compiler := dataflow.NewCompiler(nil)
	operators, err := dataflow.CompileStratum(map[string]ir.Node{"reachable": planned.Node}, compiler)
	require.NoError(err)
	scope := dataflow.NewIterativeScope(operators)

	edges := dataflow.Batch{
		{Tuple: tup(value.String("a"), value.String("b")), Delta: 1},
		{Tuple: tup(value.String("b"), value.String("c")), Delta: 1},
		{Tuple: tup(value.String("c"), value.String("d")), Delta: 1},
	}
	result, err := scope.Run(map[string]dataflow.Batch{"edge": edges})
	require.NoError(err)

	got := map[string]int64{}
	for _, wt := range result["reachable"] {
		key := wt.Tuple.At(0).String() + "->" + wt.Tuple.At(1).String()
		got[key] += wt.Delta
	}
	expected := []string{`"a"->"b"`, `"b"->"c"`, `"c"->"d"`, `"a"->"c"`, `"b"->"d"`, `"a"->"d"`}
	for _, k := range expected {
		require.EqualValues(1, got[k], "missing or wrong multiplicity for %s", k)
	}
	require.Len(got, len(expected))
}

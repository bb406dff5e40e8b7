package ir_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inputlayer/inputlayer/catalog"
	"github.com/inputlayer/inputlayer/ir"
	"github.com/inputlayer/inputlayer/lang"
)

func setupCatalog(t *testing.T, src string) *catalog.Catalog {
	t.Helper()
	cat := catalog.New(nil)
	prog, err := lang.Parse(src)
	require.NoError(t, err)
	_, err = catalog.Resolve(prog, cat)
	require.NoError(t, err)
	return cat
}

func parseRule(t *testing.T, src string) *lang.Rule {
	t.Helper()
	prog, err := lang.Parse(src)
	require.NoError(t, err)
	return prog.Statements[0].(*lang.Rule)
}

func TestBuildSingleAtomRule(t *testing.T) {
	require := require.New(t)
	cat := setupCatalog(t, `rel edge(src: string, dst: string)`)
	rule := parseRule(t, `+reachable(X, Y) <- edge(X, Y)`)

	node, err := ir.Build(rule, cat)
	require.NoError(err)
	require.Equal(2, node.Schema().Arity())

	distinct, ok := node.(*ir.Distinct)
	require.True(ok)
	_, ok = distinct.Input.(*ir.Project)
	require.True(ok)
}

func TestBuildJoinOnSharedVariable(t *testing.T) {
	require := require.New(t)
	cat := setupCatalog(t, `rel edge(src: string, dst: string)`)
	rule := parseRule(t, `+path2(X, Z) <- edge(X, Y), edge(Y, Z)`)

	node, err := ir.Build(rule, cat)
	require.NoError(err)
	require.Equal(2, node.Schema().Arity())
}

func TestBuildNegationProducesAntijoin(t *testing.T) {
	require := require.New(t)
	cat := setupCatalog(t, `rel person(name: string)
rel banned(name: string)`)
	rule := parseRule(t, `+active(X) <- person(X), !banned(X)`)

	node, err := ir.Build(rule, cat)
	require.NoError(err)
	proj := node.(*ir.Distinct).Input.(*ir.Project)
	_, ok := proj.Input.(*ir.Antijoin)
	require.True(ok)
}

func TestBuildUnsafeRuleFromUnboundNegation(t *testing.T) {
	require := require.New(t)
	cat := setupCatalog(t, `rel person(name: string)
rel banned(name: string)`)
	rule := parseRule(t, `+active(X) <- !banned(X)`)

	_, err := ir.Build(rule, cat)
	require.Error(err)
}

func TestBuildConstantArgumentBecomesFilter(t *testing.T) {
	require := require.New(t)
	cat := setupCatalog(t, `rel status(name: string, state: string)`)
	rule := parseRule(t, `+is_active(X) <- status(X, "active")`)

	node, err := ir.Build(rule, cat)
	require.NoError(err)
	proj := node.(*ir.Distinct).Input.(*ir.Project)
	_, ok := proj.Input.(*ir.Filter)
	require.True(ok)
}

func TestBuildArithmeticBinding(t *testing.T) {
	require := require.New(t)
	cat := setupCatalog(t, `rel sale(amount: float)`)
	rule := parseRule(t, `+doubled(Y) <- sale(Amount), Y = Amount * 2`)

	node, err := ir.Build(rule, cat)
	require.NoError(err)
	proj := node.(*ir.Distinct).Input.(*ir.Project)
	_, ok := proj.Input.(*ir.Map)
	require.True(ok)
}

func TestBuildAggregateHead(t *testing.T) {
	require := require.New(t)
	cat := setupCatalog(t, `rel sale(region: string, amount: float)`)
	rule := parseRule(t, `+total(R, sum<Amount>) <- sale(R, Amount)`)

	node, err := ir.Build(rule, cat)
	require.NoError(err)
	agg, ok := node.(*ir.Aggregate)
	require.True(ok)
	require.Len(agg.Aggregators, 1)
	require.Equal(lang.AggSum, agg.Aggregators[0].Aggregator)
}

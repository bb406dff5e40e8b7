package analyzer_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inputlayer/inputlayer/analyzer"
	"github.com/inputlayer/inputlayer/catalog"
	"github.com/inputlayer/inputlayer/lang"
)

func addRule(t *testing.T, cat *catalog.Catalog, src string) {
	t.Helper()
	prog, err := lang.Parse(src)
	require.NoError(t, err)
	resolved, err := catalog.Resolve(prog, cat)
	require.NoError(t, err)
	for _, r := range resolved.Rules {
		require.NoError(t, cat.AddRule(r, src))
	}
}

func TestNonRecursiveStratification(t *testing.T) {
	require := require.New(t)
	cat := catalog.New(nil)
	prog, _ := lang.Parse(`rel edge(src: string, dst: string)`)
	catalog.Resolve(prog, cat)
	addRule(t, cat, `+reachable1(X, Y) <- edge(X, Y)`)

	g := analyzer.BuildGraph(cat)
	strat, err := analyzer.Stratify(g)
	require.NoError(err)
	require.False(strat.IsRecursiveStratum(strat.StratumOf["reachable1"]))
}

func TestRecursiveSelfLoopIsARecursiveStratum(t *testing.T) {
	require := require.New(t)
	cat := catalog.New(nil)
	prog, _ := lang.Parse(`rel edge(src: string, dst: string)`)
	catalog.Resolve(prog, cat)
	addRule(t, cat, `+reachable(X, Y) <- edge(X, Y)`)
	addRule(t, cat, `+reachable(X, Z) <- edge(X, Y), reachable(Y, Z)`)

	g := analyzer.BuildGraph(cat)
	strat, err := analyzer.Stratify(g)
	require.NoError(err)
	require.True(strat.IsRecursiveStratum(strat.StratumOf["reachable"]))
	// edge (non-recursive, lower) must be in a strictly lower stratum
	require.Less(strat.StratumOf["edge"], strat.StratumOf["reachable"])
}

func TestNegationAcrossStrataIsStratifiable(t *testing.T) {
	require := require.New(t)
	cat := catalog.New(nil)
	prog, _ := lang.Parse(`rel person(name: string)
rel banned(name: string)`)
	catalog.Resolve(prog, cat)
	addRule(t, cat, `+active(X) <- person(X), !banned(X)`)

	g := analyzer.BuildGraph(cat)
	strat, err := analyzer.Stratify(g)
	require.NoError(err)
	require.Less(strat.StratumOf["banned"], strat.StratumOf["active"])
}

func TestNegationInsideRecursiveComponentFailsStratification(t *testing.T) {
	require := require.New(t)
	cat := catalog.New(nil)
	prog, _ := lang.Parse(`rel edge(src: string, dst: string)`)
	catalog.Resolve(prog, cat)
	// p depends negatively on q and q depends positively on p: a cycle
	// through a negative edge, which must fail stratification.
	addRule(t, cat, `+p(X) <- edge(X, _), !q(X)`)
	addRule(t, cat, `+q(X) <- edge(X, _), p(X)`)

	g := analyzer.BuildGraph(cat)
	_, err := analyzer.Stratify(g)
	require.Error(err)
}

func TestUnsafeRuleUnboundHeadVariable(t *testing.T) {
	require := require.New(t)
	prog, err := lang.Parse(`+orphan(X, Y) <- edge(X)`)
	require.NoError(err)
	rule := prog.Statements[0].(*lang.Rule)
	err = analyzer.CheckSafety(rule)
	require.Error(err)
}

func TestSafeRuleWithNegationAndComparison(t *testing.T) {
	require := require.New(t)
	prog, err := lang.Parse(`+filtered(X) <- person(X), !banned(X), X != "root"`)
	require.NoError(err)
	rule := prog.Statements[0].(*lang.Rule)
	require.NoError(analyzer.CheckSafety(rule))
}

package planner_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inputlayer/inputlayer/catalog"
	"github.com/inputlayer/inputlayer/lang"
	"github.com/inputlayer/inputlayer/planner"
	"github.com/inputlayer/inputlayer/value"
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

func TestReorderJoinsStartsFromCheaperRelation(t *testing.T) {
	require := require.New(t)
	cat := setupCatalog(t, `rel small(a: string, b: string)
rel big(a: string, c: string, d: string)`)
	cat.UpdateStats("small", 10, 1)
	cat.UpdateStats("big", 10000, 1)

	prog, err := lang.Parse(`+out(A, B, C, D) <- big(A, C, D), small(A, B)`)
	require.NoError(err)
	rule := prog.Statements[0].(*lang.Rule)

	reordered := planner.ReorderJoins(rule, cat)
	require.Equal("small", reordered.Body[0].Atom.Predicate, "cheaper relation should be scanned first")
}

func TestReorderJoinsPreservesConstraintPlacement(t *testing.T) {
	require := require.New(t)
	cat := setupCatalog(t, `rel edge(src: string, dst: string)
rel weight(src: string, dst: string, w: float)`)
	prog, err := lang.Parse(`+heavy(X, Y) <- weight(X, Y, W), edge(X, Y), W > 10`)
	require.NoError(err)
	rule := prog.Statements[0].(*lang.Rule)

	reordered := planner.ReorderJoins(rule, cat)
	require.Len(reordered.Body, 3)
	// the comparison must still appear after both atoms it depends on
	lastKind := reordered.Body[len(reordered.Body)-1].Kind
	require.True(lastKind == lang.BodyCompare || lastKind == lang.BodyPositive)
}

func TestPlanRuleProducesIR(t *testing.T) {
	require := require.New(t)
	cat := setupCatalog(t, `rel edge(src: string, dst: string)`)
	prog, err := lang.Parse(`+reachable(X, Y) <- edge(X, Y)`)
	require.NoError(err)
	rule := prog.Statements[0].(*lang.Rule)

	node, err := planner.PlanRule(rule, cat)
	require.NoError(err)
	require.Equal(2, node.Schema().Arity())
}

func TestPlanPredicateUnionsMultipleClauses(t *testing.T) {
	require := require.New(t)
	cat := setupCatalog(t, `rel edge(src: string, dst: string)`)
	prog, err := lang.Parse(`+reachable(X, Y) <- edge(X, Y)
+reachable(X, Z) <- edge(X, Y), edge(Y, Z)`)
	require.NoError(err)
	var clauses []*lang.Rule
	for _, s := range prog.Statements {
		clauses = append(clauses, s.(*lang.Rule))
	}

	cse := planner.NewCSEIndex()
	planned, err := planner.PlanPredicate("reachable", clauses, cat, cse, false)
	require.NoError(err)
	require.Equal("reachable", planned.Predicate)
	require.Equal(2, planned.Node.Schema().Arity())
}

func TestMagicSetsRewriteSkipsFullyFreeQuery(t *testing.T) {
	require := require.New(t)
	atom := lang.Atom{Predicate: "reachable", Args: []lang.Term{lang.Var("X"), lang.Var("Y")}}
	plan := planner.RewriteForBoundQuery(atom, nil)
	require.Nil(plan)
}

func TestMagicSetsRewriteBoundQuery(t *testing.T) {
	require := require.New(t)
	cat := setupCatalog(t, `rel edge(src: string, dst: string)`)
	prog, err := lang.Parse(`+reachable(X, Y) <- edge(X, Y)
+reachable(X, Z) <- edge(X, Y), reachable(Y, Z)`)
	require.NoError(err)
	var clauses []*lang.Rule
	for _, s := range prog.Statements {
		clauses = append(clauses, s.(*lang.Rule))
	}
	_ = cat

	atom := lang.Atom{Predicate: "reachable", Args: []lang.Term{lang.Const(value.String("a")), lang.Var("Y")}}
	plan := planner.RewriteForBoundQuery(atom, clauses)
	require.NotNil(plan)
	require.Equal("magic_reachable_bf", plan.MagicRelation)
	require.Len(plan.SeedArgs, 1)
	require.Len(plan.Rules, 3, "two rewritten clauses plus one magic-propagation rule for the recursive call")
	require.Equal("magic_reachable_bf", plan.Rules[0].Body[0].Atom.Predicate)
}

func TestSemiringSpecializationDetectsAggregate(t *testing.T) {
	require := require.New(t)
	cat := setupCatalog(t, `rel sale(region: string, amount: float)`)
	prog, err := lang.Parse(`+total(R, sum<Amount>) <- sale(R, Amount)`)
	require.NoError(err)
	rule := prog.Statements[0].(*lang.Rule)

	node, err := planner.PlanRule(rule, cat)
	require.NoError(err)
	require.Equal(planner.SemiringAggregate, planner.Specialize(node, false))
}

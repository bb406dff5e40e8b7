package catalog_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inputlayer/inputlayer/catalog"
	"github.com/inputlayer/inputlayer/lang"
)

func resolveSource(t *testing.T, cat *catalog.Catalog, src string) *catalog.ResolvedProgram {
	t.Helper()
	prog, err := lang.Parse(src)
	require.NoError(t, err)
	resolved, err := catalog.Resolve(prog, cat)
	require.NoError(t, err)
	return resolved
}

func TestDefineRelationAndResolveFact(t *testing.T) {
	require := require.New(t)
	cat := catalog.New(nil)

	resolveSource(t, cat, `rel edge(src: string, dst: string)`)
	resolved := resolveSource(t, cat, `+edge("a", "b")`)
	require.Len(resolved.Facts, 1)
}

func TestUnknownRelationFactAssertFails(t *testing.T) {
	require := require.New(t)
	cat := catalog.New(nil)
	prog, err := lang.Parse(`+ghost("a")`)
	require.NoError(err)
	_, err = catalog.Resolve(prog, cat)
	require.Error(err)
}

func TestArityMismatchFails(t *testing.T) {
	require := require.New(t)
	cat := catalog.New(nil)
	resolveSource(t, cat, `rel edge(src: string, dst: string)`)
	prog, err := lang.Parse(`+edge("a")`)
	require.NoError(err)
	_, err = catalog.Resolve(prog, cat)
	require.Error(err)
}

func TestRecordSugarExpandsFieldOrder(t *testing.T) {
	require := require.New(t)
	cat := catalog.New(nil)
	resolveSource(t, cat, `type Point: { x: float, y: float }`)
	resolveSource(t, cat, `rel location: Point`)

	schema, ok := cat.LookupRelation("location")
	require.True(ok)
	require.Equal(2, schema.Arity())
	require.Equal("x", schema[0].Name)
	require.Equal("y", schema[1].Name)
}

func TestSchemaConflictOnRedeclarationWithDifferentShape(t *testing.T) {
	require := require.New(t)
	cat := catalog.New(nil)
	resolveSource(t, cat, `rel edge(src: string, dst: string)`)
	prog, err := lang.Parse(`rel edge(src: int, dst: int)`)
	require.NoError(err)
	_, err = catalog.Resolve(prog, cat)
	require.Error(err)
}

func TestMutuallyRecursiveRulesResolveWithoutPriorDeclaration(t *testing.T) {
	require := require.New(t)
	cat := catalog.New(nil)
	resolveSource(t, cat, `rel edge(src: string, dst: string)`)
	resolved := resolveSource(t, cat, `+reachable(X, Y) <- edge(X, Y)
+reachable(X, Z) <- edge(X, Y), reachable(Y, Z)`)
	require.Len(resolved.Rules, 2)
}

func TestDuplicateRuleRejected(t *testing.T) {
	require := require.New(t)
	cat := catalog.New(nil)
	resolveSource(t, cat, `rel edge(src: string, dst: string)`)
	resolved := resolveSource(t, cat, `+reachable(X, Y) <- edge(X, Y)`)
	err := cat.AddRule(resolved.Rules[0], "+reachable(X, Y) <- edge(X, Y)")
	require.NoError(err)
	err = cat.AddRule(resolved.Rules[0], "+reachable(X, Y) <- edge(X, Y)")
	require.Error(err)
}

func TestCatalogVersionBumpsOnMutation(t *testing.T) {
	require := require.New(t)
	cat := catalog.New(nil)
	v0 := cat.Version()
	resolveSource(t, cat, `rel edge(src: string, dst: string)`)
	require.Greater(cat.Version(), v0)
}

func TestIndexLifecycle(t *testing.T) {
	require := require.New(t)
	cat := catalog.New(nil)
	err := cat.DefineIndex(catalog.IndexDef{Name: "idx", Relation: "doc", Column: "embedding", Metric: catalog.MetricCosine})
	require.NoError(err)

	err = cat.DefineIndex(catalog.IndexDef{Name: "idx", Relation: "doc", Column: "embedding", Metric: catalog.MetricCosine})
	require.Error(err)

	require.NoError(cat.DropIndex("idx"))
	require.Error(cat.DropIndex("idx"))
}

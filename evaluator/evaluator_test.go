package evaluator_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inputlayer/inputlayer/catalog"
	"github.com/inputlayer/inputlayer/evaluator"
	"github.com/inputlayer/inputlayer/lang"
	"github.com/inputlayer/inputlayer/storage"
	"github.com/inputlayer/inputlayer/value"
)

func newEvaluator(t *testing.T, cat *catalog.Catalog) *evaluator.Evaluator {
	t.Helper()
	dir := t.TempDir()

	wal, err := storage.OpenWAL(filepath.Join(dir, "wal.log"), storage.DurabilityImmediate, 0, nil)
	require.NoError(t, err)
	t.Cleanup(func() { wal.Close() })

	meta, err := storage.OpenMetadata(dir)
	require.NoError(t, err)
	t.Cleanup(func() { meta.Close() })

	bw := storage.NewBatchWriter(dir)
	return evaluator.New(cat, wal, bw, meta, 0, nil)
}

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

func reachabilityCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat := catalog.New(nil)
	prog, err := lang.Parse(`rel edge(src: string, dst: string)
rel reachable(src: string, dst: string)`)
	require.NoError(t, err)
	_, err = catalog.Resolve(prog, cat)
	require.NoError(t, err)

	addRule(t, cat, `+reachable(X, Y) <- edge(X, Y)`)
	addRule(t, cat, `+reachable(X, Z) <- edge(X, Y), reachable(Y, Z)`)
	return cat
}

func assertEdge(src, dst string, delta int64) storage.Record {
	kind := storage.RecordAssert
	if delta < 0 {
		kind = storage.RecordRetract
	}
	return storage.Record{Kind: kind, Relation: "edge", Tuple: value.NewTuple(value.String(src), value.String(dst)), Delta: delta}
}

func TestCommitMaintainsRecursiveDerivedRelation(t *testing.T) {
	require := require.New(t)
	cat := reachabilityCatalog(t)
	eval := newEvaluator(t, cat)
	ctx := context.Background()

	seq, err := eval.Commit(ctx, []storage.Record{
		assertEdge("a", "b", 1),
		assertEdge("b", "c", 1),
		assertEdge("c", "d", 1),
	})
	require.NoError(err)
	require.EqualValues(3, seq)

	rows, err := eval.Materialize(ctx, "reachable")
	require.NoError(err)
	require.Len(rows, 6, "a->b,c,d; b->c,d; c->d")

	edges, err := eval.Materialize(ctx, "edge")
	require.NoError(err)
	require.Len(edges, 3)
}

func TestQueryBoundAgainstRecursivePredicateUsesMagicSets(t *testing.T) {
	require := require.New(t)
	cat := reachabilityCatalog(t)
	eval := newEvaluator(t, cat)
	ctx := context.Background()

	_, err := eval.Commit(ctx, []storage.Record{
		assertEdge("a", "b", 1),
		assertEdge("b", "c", 1),
		assertEdge("c", "d", 1),
		assertEdge("x", "y", 1),
	})
	require.NoError(err)

	rows, err := eval.Query(ctx, lang.Query{Atom: lang.Atom{
		Predicate: "reachable",
		Args:      []lang.Term{lang.Const(value.String("a")), lang.Var("Y")},
	}})
	require.NoError(err)
	require.Len(rows, 3, "a reaches b, c, d; the unrelated x->y edge must not leak in")

	seen := map[string]bool{}
	for _, r := range rows {
		dst, _ := r.At(1).AsString()
		seen[dst] = true
	}
	require.True(seen["b"])
	require.True(seen["c"])
	require.True(seen["d"])
}

func TestCommitRetractionShrinksDerivedRelation(t *testing.T) {
	require := require.New(t)
	cat := reachabilityCatalog(t)
	eval := newEvaluator(t, cat)
	ctx := context.Background()

	_, err := eval.Commit(ctx, []storage.Record{
		assertEdge("a", "b", 1),
		assertEdge("b", "c", 1),
	})
	require.NoError(err)
	rows, err := eval.Materialize(ctx, "reachable")
	require.NoError(err)
	require.Len(rows, 3)

	_, err = eval.Commit(ctx, []storage.Record{assertEdge("b", "c", -1)})
	require.NoError(err)
	rows, err = eval.Materialize(ctx, "reachable")
	require.NoError(err)
	require.Len(rows, 1, "only a->b should survive once b->c is retracted")
}

func TestSubscribeReceivesNetChangeBatch(t *testing.T) {
	require := require.New(t)
	cat := reachabilityCatalog(t)
	eval := newEvaluator(t, cat)
	ctx := context.Background()

	ch, cancel := eval.Subscribe("reachable")
	defer cancel()

	_, err := eval.Commit(ctx, []storage.Record{assertEdge("a", "b", 1)})
	require.NoError(err)

	select {
	case batch := <-ch:
		require.Len(batch, 1)
		require.EqualValues(1, batch[0].Delta)
	default:
		t.Fatal("expected a subscriber notification after commit")
	}
}

func TestCreateIndexBackfillsFromExistingRows(t *testing.T) {
	require := require.New(t)
	cat := catalog.New(nil)
	schema := value.Schema{
		{Name: "id", Type: value.Type{Base: value.KindString}},
		{Name: "embedding", Type: value.Type{Base: value.KindVectorF32, Dim: 2}},
	}
	require.NoError(cat.DefineRelation("doc", schema))

	eval := newEvaluator(t, cat)
	ctx := context.Background()

	_, err := eval.Commit(ctx, []storage.Record{
		{Kind: storage.RecordAssert, Relation: "doc", Tuple: value.NewTuple(value.String("p1"), value.VectorF32([]float32{0, 0})), Delta: 1},
		{Kind: storage.RecordAssert, Relation: "doc", Tuple: value.NewTuple(value.String("p2"), value.VectorF32([]float32{10, 10})), Delta: 1},
	})
	require.NoError(err)

	require.NoError(eval.CreateIndex(catalog.IndexDef{
		Name: "doc_embedding_idx", Relation: "doc", Column: "embedding", Metric: catalog.MetricEuclidean,
	}))

	_, err = eval.Commit(ctx, []storage.Record{
		{Kind: storage.RecordAssert, Relation: "doc", Tuple: value.NewTuple(value.String("p3"), value.VectorF32([]float32{1, 1})), Delta: 1},
	})
	require.NoError(err)

	rows, err := eval.Materialize(ctx, "doc")
	require.NoError(err)
	require.Len(rows, 3, "index creation and later commits must not disturb the relation's own extension")
}

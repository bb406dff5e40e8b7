package inputlayer_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	inputlayer "github.com/inputlayer/inputlayer"
	"github.com/inputlayer/inputlayer/config"
)

func newEngine(t *testing.T) *inputlayer.Engine {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.CheckpointEvery = 0
	return inputlayer.NewEngine(cfg, nil)
}

func openSession(t *testing.T, engine *inputlayer.Engine, kgName string) *inputlayer.Session {
	t.Helper()
	_, err := engine.CreateKG(kgName)
	require.NoError(t, err)
	session, err := engine.OpenSession(kgName, "root", "")
	require.NoError(t, err)
	t.Cleanup(session.Close)
	return session
}

func TestCreateKGIsIdempotentlyListed(t *testing.T) {
	require := require.New(t)
	engine := newEngine(t)

	_, err := engine.CreateKG("alpha")
	require.NoError(err)
	_, err = engine.CreateKG("alpha")
	require.Error(err, "creating the same KG twice must fail")

	require.Equal([]string{"alpha"}, engine.ListKGs())
}

func TestExecuteCommitsFactsAndAnswersQuery(t *testing.T) {
	require := require.New(t)
	engine := newEngine(t)
	session := openSession(t, engine, "graph")
	ctx := context.Background()

	_, err := session.Execute(ctx, "rel edge(src: string, dst: string)")
	require.NoError(err)

	result, err := session.Execute(ctx, `+edge("a", "b")`)
	require.NoError(err)
	require.EqualValues(1, result.CommittedSeq)

	result, err = session.Execute(ctx, `?edge(X, Y)`)
	require.NoError(err)
	require.Len(result.Queries, 1)
	require.Len(result.Queries[0].Rows, 1)
}

func TestExecuteMaintainsRecursiveRuleAcrossCommits(t *testing.T) {
	require := require.New(t)
	engine := newEngine(t)
	session := openSession(t, engine, "graph")
	ctx := context.Background()

	_, err := session.Execute(ctx, `rel edge(src: string, dst: string)
rel reachable(src: string, dst: string)`)
	require.NoError(err)

	_, err = session.Execute(ctx, `+reachable(X, Y) <- edge(X, Y)`)
	require.NoError(err)
	_, err = session.Execute(ctx, `+reachable(X, Z) <- edge(X, Y), reachable(Y, Z)`)
	require.NoError(err)

	_, err = session.Execute(ctx, `+edge[("a", "b"), ("b", "c")]`)
	require.NoError(err)

	result, err := session.Execute(ctx, `?reachable(X, Y)`)
	require.NoError(err)
	require.Len(result.Queries[0].Rows, 3, "a->b, b->c, a->c")
}

func TestDefineSessionRuleIsTornDownOnClose(t *testing.T) {
	require := require.New(t)
	engine := newEngine(t)
	_, err := engine.CreateKG("graph")
	require.NoError(err)

	s1, err := engine.OpenSession("graph", "root", "")
	require.NoError(err)
	ctx := context.Background()

	_, err = s1.Execute(ctx, `rel edge(src: string, dst: string)
rel derived(src: string, dst: string)`)
	require.NoError(err)
	_, err = s1.Execute(ctx, `+edge("a", "b")`)
	require.NoError(err)

	require.NoError(s1.DefineSessionRule(`+derived(X, Y) <- edge(X, Y)`))

	result, err := s1.Execute(ctx, `?derived(X, Y)`)
	require.NoError(err)
	require.Len(result.Queries[0].Rows, 1, "session-scoped rule should be visible within its own session")

	s1.Close()

	s2, err := engine.OpenSession("graph", "root", "")
	require.NoError(err)
	defer s2.Close()

	result, err = s2.Execute(ctx, `?derived(X, Y)`)
	require.NoError(err)
	require.Len(result.Queries[0].Rows, 0, "session-scoped rule must not survive the session that defined it")
}

func TestStatusReportsCatalogAndCommitState(t *testing.T) {
	require := require.New(t)
	engine := newEngine(t)
	session := openSession(t, engine, "graph")
	ctx := context.Background()

	_, err := session.Execute(ctx, "rel fact(x: int)")
	require.NoError(err)
	_, err = session.Execute(ctx, "+fact(1)")
	require.NoError(err)

	result, err := session.Execute(ctx, ".status")
	require.NoError(err)
	require.NotNil(result.Status)
	require.Equal("graph", result.Status.KG)
	require.EqualValues(1, result.Status.CommitSeq)
}

func TestReopeningKGRestoresFactsAndRules(t *testing.T) {
	require := require.New(t)
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.CheckpointEvery = 0
	ctx := context.Background()

	engine1 := inputlayer.NewEngine(cfg, nil)
	_, err := engine1.CreateKG("graph")
	require.NoError(err)
	s1, err := engine1.OpenSession("graph", "root", "")
	require.NoError(err)

	_, err = s1.Execute(ctx, `rel edge(src: string, dst: string)
rel reachable(src: string, dst: string)`)
	require.NoError(err)
	_, err = s1.Execute(ctx, `+reachable(X, Y) <- edge(X, Y)`)
	require.NoError(err)
	_, err = s1.Execute(ctx, `+edge("a", "b")`)
	require.NoError(err)
	s1.Close()
	require.NoError(engine1.Close())

	engine2 := inputlayer.NewEngine(cfg, nil)
	s2, err := engine2.OpenSession("graph", "root", "")
	require.NoError(err)
	defer s2.Close()

	result, err := s2.Execute(ctx, `?reachable(X, Y)`)
	require.NoError(err)
	require.Len(result.Queries[0].Rows, 1, "facts and rules must survive a process restart via checkpoint+WAL replay")
}

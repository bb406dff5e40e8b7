package storage_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inputlayer/inputlayer/storage"
)

func TestMetadataCatalogSnapshotWriteTempRename(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()
	meta, err := storage.OpenMetadata(dir)
	require.NoError(err)
	defer meta.Close()

	_, err = meta.ReadCatalog()
	require.Error(err, "no catalog has ever been written yet")

	snap := storage.CatalogSnapshot{Relations: []byte("rel edge(src: string, dst: string)"), Rules: []byte("+path(X,Y) <- edge(X,Y)")}
	require.NoError(meta.WriteCatalog(snap))

	got, err := meta.ReadCatalog()
	require.NoError(err)
	require.Equal(snap.Relations, got.Relations)
	require.Equal(snap.Rules, got.Rules)

	snap2 := storage.CatalogSnapshot{Relations: []byte("rel node(id: string)"), Rules: nil}
	require.NoError(meta.WriteCatalog(snap2))
	got2, err := meta.ReadCatalog()
	require.NoError(err)
	require.Equal(snap2.Relations, got2.Relations)
}

func TestMetadataActiveSegmentsRoundTrips(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()
	meta, err := storage.OpenMetadata(dir)
	require.NoError(err)
	defer meta.Close()

	seq, segs, err := meta.ActiveSegments()
	require.NoError(err)
	require.Zero(seq)
	require.Empty(segs)

	want := []storage.Segment{{Relation: "edge", Path: "edge-1.seg", Seq: 1}}
	require.NoError(meta.CommitSegments(1, want))

	gotSeq, gotSegs, err := meta.ActiveSegments()
	require.NoError(err)
	require.EqualValues(1, gotSeq)
	require.Equal(want, gotSegs)
}

func TestMetadataGrantsScopedByPrincipal(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()
	meta, err := storage.OpenMetadata(dir)
	require.NoError(err)
	defer meta.Close()

	require.NoError(meta.PutGrant(storage.Grant{Principal: "alice", Relation: "edge", Perm: "read"}))
	require.NoError(meta.PutGrant(storage.Grant{Principal: "alice", Relation: "person", Perm: "write"}))
	require.NoError(meta.PutGrant(storage.Grant{Principal: "bob", Relation: "edge", Perm: "read"}))

	aliceGrants, err := meta.Grants("alice")
	require.NoError(err)
	require.Len(aliceGrants, 2)

	require.NoError(meta.RevokeGrant("alice", "edge"))
	aliceGrants, err = meta.Grants("alice")
	require.NoError(err)
	require.Len(aliceGrants, 1)
	require.Equal("person", aliceGrants[0].Relation)

	bobGrants, err := meta.Grants("bob")
	require.NoError(err)
	require.Len(bobGrants, 1)
}

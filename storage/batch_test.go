package storage_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inputlayer/inputlayer/storage"
	"github.com/inputlayer/inputlayer/value"
)

func TestBatchWriterRoundTripsRelationExtensions(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()
	bw := storage.NewBatchWriter(dir)

	extensions := map[string][]value.Tuple{
		"person": {
			value.NewTuple(value.String("alice"), value.Int(30)),
			value.NewTuple(value.String("bob"), value.Int(40)),
			value.NewTuple(value.String("alice"), value.Int(31)),
		},
		"edge": {
			value.NewTuple(value.String("a"), value.String("b")),
		},
	}
	segments, err := bw.WriteCheckpoint(42, extensions)
	require.NoError(err)
	require.Len(segments, 2)

	byRelation := map[string]storage.Segment{}
	for _, s := range segments {
		byRelation[s.Relation] = s
		require.EqualValues(42, s.Seq)
	}

	personRows, err := storage.ReadSegment(byRelation["person"].Path)
	require.NoError(err)
	require.Len(personRows, 3)
	require.True(value.Equal(value.String("alice"), personRows[0].At(0)))

	edgeRows, err := storage.ReadSegment(byRelation["edge"].Path)
	require.NoError(err)
	require.Len(edgeRows, 1)
}

func TestBatchWriterHandlesEmptyRelation(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()
	bw := storage.NewBatchWriter(dir)

	segments, err := bw.WriteCheckpoint(1, map[string][]value.Tuple{"empty": nil})
	require.NoError(err)
	require.Len(segments, 1)

	rows, err := storage.ReadSegment(segments[0].Path)
	require.NoError(err)
	require.Empty(rows)
}

func TestBatchWriterDeduplicatesStringsViaDictionary(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()
	bw := storage.NewBatchWriter(dir)

	rows := make([]value.Tuple, 100)
	for i := range rows {
		rows[i] = value.NewTuple(value.String("east"), value.Int(int64(i)))
	}
	segments, err := bw.WriteCheckpoint(1, map[string][]value.Tuple{"sale": rows})
	require.NoError(err)

	got, err := storage.ReadSegment(segments[0].Path)
	require.NoError(err)
	require.Len(got, 100)
	for _, r := range got {
		require.True(value.Equal(value.String("east"), r.At(0)))
	}
}

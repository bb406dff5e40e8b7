package storage_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inputlayer/inputlayer/storage"
	"github.com/inputlayer/inputlayer/value"
)

func TestRecoverReplaysCheckpointThenTrailingWAL(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()

	meta, err := storage.OpenMetadata(dir)
	require.NoError(err)
	defer meta.Close()

	bw := storage.NewBatchWriter(dir)
	segments, err := bw.WriteCheckpoint(2, map[string][]value.Tuple{
		"edge": {value.NewTuple(value.String("a"), value.String("b"))},
	})
	require.NoError(err)
	require.NoError(meta.CommitSegments(2, segments))

	wal, err := storage.OpenWAL(filepath.Join(dir, "wal.log"), storage.DurabilityImmediate, 0, nil)
	require.NoError(err)
	defer wal.Close()
	require.NoError(wal.Append([]storage.Record{
		{Seq: 1, Kind: storage.RecordAssert, Relation: "edge", Tuple: value.NewTuple(value.String("a"), value.String("b")), Delta: 1},
		{Seq: 2, Kind: storage.RecordAssert, Relation: "edge", Tuple: value.NewTuple(value.String("b"), value.String("c")), Delta: 1},
		{Seq: 3, Kind: storage.RecordAssert, Relation: "edge", Tuple: value.NewTuple(value.String("c"), value.String("d")), Delta: 1},
	}))

	var applied []storage.Record
	resumeSeq, err := storage.Recover(meta, wal, nil, func(relation string, rec storage.Record) error {
		applied = append(applied, rec)
		return nil
	})
	require.NoError(err)
	require.EqualValues(3, resumeSeq)

	require.Len(applied, 2, "the edge(a,b) row comes back once via the checkpoint segment, not again from wal seq 1 or 2; only wal seq 3 is replayed on top")
	require.EqualValues(2, applied[0].Seq)
	require.EqualValues(3, applied[1].Seq)
}

func TestRecoverWithNoCheckpointReplaysFullWAL(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()

	meta, err := storage.OpenMetadata(dir)
	require.NoError(err)
	defer meta.Close()

	wal, err := storage.OpenWAL(filepath.Join(dir, "wal.log"), storage.DurabilityImmediate, 0, nil)
	require.NoError(err)
	defer wal.Close()
	require.NoError(wal.Append([]storage.Record{
		{Seq: 1, Kind: storage.RecordAssert, Relation: "fact", Tuple: value.NewTuple(value.Int(1)), Delta: 1},
		{Seq: 2, Kind: storage.RecordAssert, Relation: "fact", Tuple: value.NewTuple(value.Int(2)), Delta: 1},
	}))

	var applied int
	resumeSeq, err := storage.Recover(meta, wal, nil, func(relation string, rec storage.Record) error {
		applied++
		return nil
	})
	require.NoError(err)
	require.Equal(2, applied)
	require.EqualValues(2, resumeSeq)
}

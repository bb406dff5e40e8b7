package storage_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/inputlayer/inputlayer/storage"
	"github.com/inputlayer/inputlayer/value"
)

func rec(seq int64, relation string, tuple value.Tuple, delta int64) storage.Record {
	kind := storage.RecordAssert
	if delta < 0 {
		kind = storage.RecordRetract
	}
	return storage.Record{Seq: seq, Kind: kind, Relation: relation, Tuple: tuple, Delta: delta}
}

func TestWALAppendAndReplayRoundTrips(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()
	wal, err := storage.OpenWAL(filepath.Join(dir, "wal.log"), storage.DurabilityImmediate, 0, nil)
	require.NoError(err)
	defer wal.Close()

	records := []storage.Record{
		rec(1, "edge", value.NewTuple(value.String("a"), value.String("b")), 1),
		rec(2, "edge", value.NewTuple(value.String("b"), value.String("c")), 1),
		rec(3, "edge", value.NewTuple(value.String("a"), value.String("b")), -1),
	}
	require.NoError(wal.Append(records))

	var got []storage.Record
	require.NoError(wal.Replay(func(r storage.Record) error {
		got = append(got, r)
		return nil
	}))
	require.Len(got, 3)
	for i, r := range got {
		require.Equal(records[i].Seq, r.Seq)
		require.Equal(records[i].Relation, r.Relation)
		require.Equal(records[i].Delta, r.Delta)
		require.True(value.Equal(records[i].Tuple.At(0), r.Tuple.At(0)))
	}
}

func TestWALReplayStopsAtTornTail(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")
	wal, err := storage.OpenWAL(path, storage.DurabilityImmediate, 0, nil)
	require.NoError(err)

	require.NoError(wal.Append([]storage.Record{
		rec(1, "fact", value.NewTuple(value.Int(1)), 1),
		rec(2, "fact", value.NewTuple(value.Int(2)), 1),
	}))
	require.NoError(wal.Close())

	info, err := os.Stat(path)
	require.NoError(err)
	require.NoError(os.Truncate(path, info.Size()-2))

	wal2, err := storage.OpenWAL(path, storage.DurabilityImmediate, 0, nil)
	require.NoError(err)
	defer wal2.Close()

	var got []storage.Record
	require.NoError(wal2.Replay(func(r storage.Record) error {
		got = append(got, r)
		return nil
	}))
	require.Len(got, 1, "the torn trailing record must be silently discarded, not surfaced as an error")
	require.EqualValues(1, got[0].Seq)
}

func TestWALTruncateBeforeDropsOldRecordsOnly(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()
	wal, err := storage.OpenWAL(filepath.Join(dir, "wal.log"), storage.DurabilityImmediate, 0, nil)
	require.NoError(err)
	defer wal.Close()

	require.NoError(wal.Append([]storage.Record{
		rec(1, "fact", value.NewTuple(value.Int(1)), 1),
		rec(2, "fact", value.NewTuple(value.Int(2)), 1),
		rec(3, "fact", value.NewTuple(value.Int(3)), 1),
	}))
	require.NoError(wal.TruncateBefore(2))

	var got []int64
	require.NoError(wal.Replay(func(r storage.Record) error {
		got = append(got, r.Seq)
		return nil
	}))
	require.Equal([]int64{3}, got)
}

func TestWALGroupDurabilitySkipsSyncWithinWindow(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()
	wal, err := storage.OpenWAL(filepath.Join(dir, "wal.log"), storage.DurabilityGroup, time.Hour, nil)
	require.NoError(err)
	defer wal.Close()

	require.NoError(wal.Append([]storage.Record{rec(1, "fact", value.NewTuple(value.Int(1)), 1)}))
	require.NoError(wal.Append([]storage.Record{rec(2, "fact", value.NewTuple(value.Int(2)), 1)}))

	var got []int64
	require.NoError(wal.Replay(func(r storage.Record) error {
		got = append(got, r.Seq)
		return nil
	}))
	require.Equal([]int64{1, 2}, got, "group durability still appends to the file; only fsync timing differs")
}

package hnsw_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inputlayer/inputlayer/hnsw"
	"github.com/inputlayer/inputlayer/value"
)

func insertGrid(ix *hnsw.Index, n int) {
	for i := 0; i < n; i++ {
		x := float32(i)
		ix.Insert(hnsw.Item{ID: value.Int(int64(i)), Vector: []float32{x, 0}})
	}
}

func TestSearchFindsNearestNeighborsInOrder(t *testing.T) {
	require := require.New(t)
	ix := hnsw.New(hnsw.MetricEuclidean, 4, 32)
	insertGrid(ix, 50)

	res, err := ix.Search([]float32{20, 0}, 3, 0, false)
	require.NoError(err)
	require.Len(res, 3)
	ids := []int64{}
	for _, r := range res {
		v, _ := r.Row.AsInt()
		ids = append(ids, v)
	}
	require.Contains(ids, int64(20))
	require.True(res[0].Distance <= res[1].Distance)
	require.True(res[1].Distance <= res[2].Distance)
}

func TestDeleteTombstonesAndExcludesFromSearch(t *testing.T) {
	require := require.New(t)
	ix := hnsw.New(hnsw.MetricEuclidean, 4, 32)
	insertGrid(ix, 20)

	removed := ix.Delete(value.Int(10))
	require.True(removed)

	res, err := ix.Search([]float32{10, 0}, 5, 0, false)
	require.NoError(err)
	for _, r := range res {
		v, _ := r.Row.AsInt()
		require.NotEqual(int64(10), v, "tombstoned vector must not appear in results")
	}
}

func TestWithinRadiusExcludesFarNeighbors(t *testing.T) {
	require := require.New(t)
	ix := hnsw.New(hnsw.MetricEuclidean, 4, 32)
	insertGrid(ix, 30)

	res, err := ix.Search([]float32{15, 0}, 30, 2, true)
	require.NoError(err)
	for _, r := range res {
		require.LessOrEqual(r.Distance, 2.0)
	}
}

func TestCompactRemovesTombstonedNodes(t *testing.T) {
	require := require.New(t)
	ix := hnsw.New(hnsw.MetricEuclidean, 4, 32)
	insertGrid(ix, 10)
	require.True(ix.Delete(value.Int(3)))
	ix.Compact()

	res, err := ix.Search([]float32{3, 0}, 5, 0, false)
	require.NoError(err)
	for _, r := range res {
		v, _ := r.Row.AsInt()
		require.NotEqual(int64(3), v)
	}
}

func TestCosineMetricRanksByAngleNotMagnitude(t *testing.T) {
	require := require.New(t)
	ix := hnsw.New(hnsw.MetricCosine, 4, 32)
	ix.Insert(hnsw.Item{ID: value.String("same-direction"), Vector: []float32{100, 0}})
	ix.Insert(hnsw.Item{ID: value.String("orthogonal"), Vector: []float32{0, 1}})

	res, err := ix.Search([]float32{1, 0}, 1, 0, false)
	require.NoError(err)
	require.Len(res, 1)
	s, _ := res[0].Row.AsString()
	require.Equal("same-direction", s)
}

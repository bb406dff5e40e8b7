// Package dataflow lowers optimized IR into operators over weighted
// streams: sequences of (tuple, delta) records where delta is a
// non-zero signed integer encoding a change to a multiset. Joins,
// antijoins, aggregates and distinct maintain indexed arrangements so
// that a small input delta produces a small output delta rather than
// forcing a full recompute.
package dataflow

import "github.com/inputlayer/inputlayer/value"

// WeightedTuple is one record of a weighted stream: Delta is the net
// change in the tuple's multiplicity, never zero.
type WeightedTuple struct {
	Tuple value.Tuple
	Delta int64
}

// Batch is an ordered group of weighted tuples traveling through the
// dataflow together, e.g. the deltas introduced by a single commit.
type Batch []WeightedTuple

// Coalesce merges same-tuple entries within a batch (summing deltas)
// and drops any whose net delta is zero, so operators never see a
// tuple appear twice or a no-op change.
func Coalesce(batch Batch) Batch {
	byHash := map[uint64]*WeightedTuple{}
	order := []uint64{}
	for _, wt := range batch {
		h := wt.Tuple.Hash64()
		if existing, ok := byHash[h]; ok {
			existing.Delta += wt.Delta
			continue
		}
		cp := wt
		byHash[h] = &cp
		order = append(order, h)
	}
	out := make(Batch, 0, len(order))
	for _, h := range order {
		if byHash[h].Delta != 0 {
			out = append(out, *byHash[h])
		}
	}
	return out
}

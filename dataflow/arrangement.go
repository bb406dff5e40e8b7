package dataflow

import (
	"github.com/pilosa/pilosa/roaring"

	"github.com/inputlayer/inputlayer/value"
)

// entry is one row currently present in an arrangement, with its net
// multiplicity.
type entry struct {
	tuple  value.Tuple
	weight int64
}

// Arrangement is an indexed materialization of a relation's current
// contents keyed on a column set (the join/antijoin/aggregate key).
// Each operator builds and owns its own Arrangements; an instance is
// not shared between operators.
type Arrangement struct {
	keyCols  []int
	byHash   map[uint64]*entry // full-row hash -> entry, for exact dedup
	byKey    map[uint64][]uint64 // key hash -> row hashes sharing that key
	refCount int

	// distinctIDs backs the boolean-semiring fast path: every full row
	// ever seen gets a dense integer id, and presence/absence (weight
	// clamped to {0,1}) is tracked in a roaring bitmap instead of a
	// per-row map entry walk, which is the cheap path a Distinct over a
	// set-semantics IDB relation takes.
	distinctIDs map[uint64]uint64
	nextID      uint64
	present     *roaring.Bitmap
}

// NewArrangement creates an arrangement indexed on keyCols (nil for a
// key-less full-row index, used by Distinct).
func NewArrangement(keyCols []int) *Arrangement {
	return &Arrangement{
		keyCols:     keyCols,
		byHash:      map[uint64]*entry{},
		byKey:       map[uint64][]uint64{},
		distinctIDs: map[uint64]uint64{},
		present:     roaring.NewBitmap(),
	}
}

func (a *Arrangement) Retain() { a.refCount++ }
func (a *Arrangement) Release() { a.refCount-- }

func (a *Arrangement) keyHash(t value.Tuple) uint64 {
	if len(a.keyCols) == 0 {
		return t.Hash64()
	}
	projected := t.Project(a.keyCols...)
	return projected.Hash64()
}

// Apply folds a batch of deltas into the arrangement, returning the
// net change per distinct row (rows whose multiplicity changed sign
// across zero are reported once with their new net delta so downstream
// consumers see a consistent view).
func (a *Arrangement) Apply(batch Batch) Batch {
	var out Batch
	for _, wt := range batch {
		h := wt.Tuple.Hash64()
		e, existed := a.byHash[h]
		before := int64(0)
		if existed {
			before = e.weight
		} else {
			e = &entry{tuple: wt.Tuple}
			a.byHash[h] = e
			kh := a.keyHash(wt.Tuple)
			a.byKey[kh] = append(a.byKey[kh], h)
		}
		e.weight += wt.Delta
		after := e.weight

		if before == 0 && after != 0 {
			id := a.assignID(h)
			a.present.Add(id)
		} else if before != 0 && after == 0 {
			if id, ok := a.distinctIDs[h]; ok {
				a.present.Remove(id)
			}
		}

		if before != after {
			out = append(out, WeightedTuple{Tuple: wt.Tuple, Delta: after - before})
		}
		if after == 0 {
			delete(a.byHash, h)
			kh := a.keyHash(wt.Tuple)
			rows := a.byKey[kh]
			for i, rh := range rows {
				if rh == h {
					a.byKey[kh] = append(rows[:i], rows[i+1:]...)
					break
				}
			}
		}
	}
	return out
}

func (a *Arrangement) assignID(rowHash uint64) uint64 {
	if id, ok := a.distinctIDs[rowHash]; ok {
		return id
	}
	id := a.nextID
	a.nextID++
	a.distinctIDs[rowHash] = id
	return id
}

// Lookup returns every currently-present row sharing key's hash, for a
// join/antijoin probe.
func (a *Arrangement) Lookup(key value.Tuple) []entry {
	kh := key.Hash64()
	var out []entry
	for _, rh := range a.byKey[kh] {
		if e, ok := a.byHash[rh]; ok && e.weight != 0 {
			out = append(out, *e)
		}
	}
	return out
}

// KeyCount reports the total multiplicity of every row sharing key's
// hash, used by Antijoin to test "does any row exist at this key".
func (a *Arrangement) KeyCount(key value.Tuple) int64 {
	var total int64
	for _, e := range a.Lookup(key) {
		total += e.weight
	}
	return total
}

// Extension returns every row currently present with non-zero weight,
// as a Batch, for Materialize and for seeding a fresh arrangement from
// a checkpoint segment.
func (a *Arrangement) Extension() Batch {
	out := make(Batch, 0, len(a.byHash))
	for _, e := range a.byHash {
		if e.weight != 0 {
			out = append(out, WeightedTuple{Tuple: e.tuple, Delta: e.weight})
		}
	}
	return out
}

// Cardinality reports the number of distinct rows present, for planner
// statistics refresh.
func (a *Arrangement) Cardinality() int64 {
	return int64(a.present.Count())
}

// WeightOf returns t's current net multiplicity (0 if absent), for a
// caller that needs to know whether a row crossed the presence/absence
// threshold across an Apply call (e.g. the evaluator deciding whether
// to insert or delete a row in a vector index).
func (a *Arrangement) WeightOf(t value.Tuple) int64 {
	e, ok := a.byHash[t.Hash64()]
	if !ok {
		return 0
	}
	return e.weight
}

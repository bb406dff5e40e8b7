package evaluator

import (
	"github.com/pkg/errors"

	"github.com/inputlayer/inputlayer/catalog"
	"github.com/inputlayer/inputlayer/dataflow"
	"github.com/inputlayer/inputlayer/errs"
	"github.com/inputlayer/inputlayer/hnsw"
	"github.com/inputlayer/inputlayer/value"
)

// defaultM and defaultEfConstruction are the HNSW build parameters
// every freshly created index uses (catalog.IndexDef carries no tuning
// fields): reasonable middle-of-the-road defaults for an index whose
// workload isn't known ahead of time.
const (
	defaultM              = 16
	defaultEfConstruction = 200
)

func toHNSWMetric(m catalog.IndexMetric) hnsw.Metric {
	switch m {
	case catalog.MetricCosine:
		return hnsw.MetricCosine
	case catalog.MetricDot:
		return hnsw.MetricDot
	case catalog.MetricManhattan:
		return hnsw.MetricManhattan
	default:
		return hnsw.MetricEuclidean
	}
}

// rowIdentity packs a full row into a single Value the hnsw package can
// hash and return: a vector search's result is a neighbor *row*, not
// just the indexed column, so the value inserted as an hnsw.Item's ID
// is the whole tuple re-packed as a List.
func rowIdentity(t value.Tuple) value.Value { return value.List(t.Values) }

// vectorOf extracts a []float32 from a vector-typed Value. VectorI8 is
// widened to float32 so both index column types share one hnsw.Index
// implementation.
func vectorOf(v value.Value) ([]float32, bool) {
	if f32, ok := v.AsVectorF32(); ok {
		return f32, true
	}
	if i8, ok := v.AsVectorI8(); ok {
		out := make([]float32, len(i8))
		for i, b := range i8 {
			out[i] = float32(b)
		}
		return out, true
	}
	return nil, false
}

// CreateIndex registers def in the catalog, builds an empty HNSW index
// for it, and backfills it from the relation's currently maintained
// extension (if any rows already exist).
func (e *Evaluator) CreateIndex(def catalog.IndexDef) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ensureCompiled(); err != nil {
		return err
	}
	schema, ok := e.cat.LookupRelation(def.Relation)
	if !ok {
		return errs.ErrUnknownRelation.New(def.Relation)
	}
	col := schema.IndexOf(def.Column)
	if col < 0 {
		return errs.ErrUnknownRelation.New(def.Relation + "." + def.Column)
	}
	if err := e.cat.DefineIndex(def); err != nil {
		return err
	}

	idx := hnsw.New(toHNSWMetric(def.Metric), defaultM, defaultEfConstruction)
	if arr := e.arrangements[def.Relation]; arr != nil {
		for _, wt := range arr.Extension() {
			vec, ok := vectorOf(wt.Tuple.At(col))
			if !ok {
				continue
			}
			idx.Insert(hnsw.Item{ID: rowIdentity(wt.Tuple), Vector: vec})
		}
	}
	e.indexes[def.Name] = idx
	return nil
}

// DropIndex removes a named index from both the catalog and the live
// evaluator.
func (e *Evaluator) DropIndex(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.cat.DropIndex(name); err != nil {
		return err
	}
	delete(e.indexes, name)
	return nil
}

// resolveVectorIndex implements dataflow.VectorIndexResolver against
// this evaluator's live hnsw indexes, for compile.go to wire into a
// VectorSearchOp.
func (e *Evaluator) resolveVectorIndex(name string) (dataflow.VectorIndex, error) {
	idx, ok := e.indexes[name]
	if !ok {
		return nil, errs.ErrNoSuchIndex.New(name)
	}
	return &vectorIndexAdapter{idx: idx}, nil
}

// vectorIndexAdapter narrows an *hnsw.Index to the dataflow package's
// VectorIndex interface, unwrapping the query Value into the raw
// []float32 hnsw.Index.Search expects and translating its results back
// into dataflow.VectorNeighbor.
type vectorIndexAdapter struct {
	idx *hnsw.Index
}

func (a *vectorIndexAdapter) Search(query value.Value, k int64, radius float64, hasRadius bool) ([]dataflow.VectorNeighbor, error) {
	vec, ok := vectorOf(query)
	if !ok {
		return nil, errors.New("evaluator: vector search query column is not a vector value")
	}
	results, err := a.idx.Search(vec, k, radius, hasRadius)
	if err != nil {
		return nil, err
	}
	out := make([]dataflow.VectorNeighbor, len(results))
	for i, r := range results {
		out[i] = dataflow.VectorNeighbor{Row: r.Row, Distance: r.Distance}
	}
	return out, nil
}

// indexRelationChanges keeps every HNSW index attached to relation in
// step with a batch of net deltas already applied to that relation's
// Arrangement: a row crossing from absent to present is inserted, one
// crossing from present to absent is tombstoned. before carries each
// touched tuple's pre-Apply weight (keyed by Tuple.Hash64), since the
// net batch alone only says a row changed, not whether it crossed the
// presence threshold.
func (e *Evaluator) indexRelationChanges(relation string, net dataflow.Batch, before map[uint64]int64) {
	if len(net) == 0 {
		return
	}
	indexes := e.cat.IndexesOn(relation)
	if len(indexes) == 0 {
		return
	}
	schema, ok := e.cat.LookupRelation(relation)
	if !ok {
		return
	}
	for _, def := range indexes {
		idx, ok := e.indexes[def.Name]
		if !ok {
			continue
		}
		col := schema.IndexOf(def.Column)
		if col < 0 {
			continue
		}
		for _, wt := range net {
			h := wt.Tuple.Hash64()
			wasPresent := before[h] != 0
			isPresent := before[h]+wt.Delta != 0
			if !wasPresent && isPresent {
				vec, ok := vectorOf(wt.Tuple.At(col))
				if !ok {
					continue
				}
				idx.Insert(hnsw.Item{ID: rowIdentity(wt.Tuple), Vector: vec})
			} else if wasPresent && !isPresent {
				idx.Delete(rowIdentity(wt.Tuple))
			}
		}
	}
}

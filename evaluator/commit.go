package evaluator

import (
	"context"

	"github.com/opentracing/opentracing-go"

	"github.com/inputlayer/inputlayer/dataflow"
	"github.com/inputlayer/inputlayer/storage"
	"github.com/inputlayer/inputlayer/value"
)

// Commit durably appends deltas to the WAL, applies them to their base
// relations' Arrangements, runs the compiled dataflow to quiescence,
// and applies every derived relation's resulting deltas to its own
// Arrangement — maintaining every IDB relation's extension as a
// by-product of the EDB write rather than recomputing it on demand.
// It returns the sequence number assigned to this commit.
func (e *Evaluator) Commit(ctx context.Context, deltas []storage.Record) (int64, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "evaluator.Commit")
	defer span.Finish()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ensureCompiled(); err != nil {
		return 0, err
	}

	seed := map[string]dataflow.Batch{}
	records := make([]storage.Record, len(deltas))
	for i, d := range deltas {
		e.seq++
		d.Seq = e.seq
		records[i] = d
		seed[d.Relation] = append(seed[d.Relation], dataflow.WeightedTuple{Tuple: d.Tuple, Delta: d.Delta})
	}
	if err := e.wal.Append(records); err != nil {
		return 0, err
	}

	for relation, batch := range seed {
		e.applyToRelation(relation, batch)
	}

	produced, err := runStrata(e.strata, seed)
	if err != nil {
		return 0, err
	}
	for relation, batch := range produced {
		e.applyToRelation(relation, batch)
	}

	e.sinceCheckpoint++
	if e.checkpointEvery > 0 && e.sinceCheckpoint >= e.checkpointEvery {
		if err := e.checkpointLocked(); err != nil {
			return e.seq, err
		}
	}
	return e.seq, nil
}

// applyToRelation folds batch into relation's maintained Arrangement,
// keeps any attached HNSW indexes in step with the rows that crossed
// the presence/absence threshold, and forwards the net change to every
// live Subscribe channel.
func (e *Evaluator) applyToRelation(relation string, batch dataflow.Batch) {
	if len(batch) == 0 {
		return
	}
	arr := e.arrangementFor(relation)

	before := make(map[uint64]int64, len(batch))
	for _, wt := range batch {
		before[wt.Tuple.Hash64()] = arr.WeightOf(wt.Tuple)
	}

	net := arr.Apply(batch)
	e.indexRelationChanges(relation, net, before)
	e.notifySubscribers(relation, net)
	e.cat.UpdateStats(relation, int64(len(arr.Extension())), e.seq)
}

// Checkpoint forces an immediate checkpoint regardless of the
// configured interval (the session layer's `.compact` meta-command
// drives this directly).
func (e *Evaluator) Checkpoint() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.checkpointLocked()
}

// checkpointLocked flushes every relation's current extension to a
// fresh segment, records the new active segment list, and
// truncates the WAL of everything the segment now durably covers. The
// caller must already hold e.mu.
func (e *Evaluator) checkpointLocked() error {
	if err := e.wal.Flush(); err != nil {
		return err
	}

	extensions := make(map[string][]value.Tuple, len(e.arrangements))
	for relation, arr := range e.arrangements {
		rows := make([]value.Tuple, 0)
		for _, wt := range arr.Extension() {
			rows = append(rows, wt.Tuple)
		}
		extensions[relation] = rows
	}

	seq := e.seq
	segments, err := e.batchWriter.WriteCheckpoint(seq, extensions)
	if err != nil {
		return err
	}
	if err := e.meta.CommitSegments(seq, segments); err != nil {
		return err
	}
	if err := e.wal.TruncateBefore(seq); err != nil {
		return err
	}
	e.sinceCheckpoint = 0
	return nil
}

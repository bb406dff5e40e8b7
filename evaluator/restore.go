package evaluator

import (
	"github.com/inputlayer/inputlayer/dataflow"
	"github.com/inputlayer/inputlayer/storage"
)

// Restore rebuilds every relation's maintained Arrangement (and any
// attached HNSW index) from a KG's durable storage — the last
// checkpoint's segments, followed by every WAL record written after
// it — and resumes the commit sequence counter from where recovery
// left off. The session layer calls this once when opening an
// existing KG, before any Commit, Query, or Materialize call.
func (e *Evaluator) Restore() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ensureCompiled(); err != nil {
		return err
	}

	seq, err := storage.Recover(e.meta, e.wal, e.log, func(relation string, rec storage.Record) error {
		e.applyToRelation(relation, dataflow.Batch{{Tuple: rec.Tuple, Delta: rec.Delta}})
		return nil
	})
	if err != nil {
		return err
	}
	e.seq = seq
	return nil
}

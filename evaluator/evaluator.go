// Package evaluator drives a KG's compiled dataflow to quiescence on
// every commit, maintains one Arrangement per relation as that
// relation's durable current extension, and keeps any HNSW indexes
// attached to a relation's vector columns in step with it. It is the
// incremental evaluator described for the commit/query/materialize/
// subscribe surface: compilation (analyzer + planner + dataflow) is
// redone only when the catalog's version counter advances.
package evaluator

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/inputlayer/inputlayer/analyzer"
	"github.com/inputlayer/inputlayer/catalog"
	"github.com/inputlayer/inputlayer/dataflow"
	"github.com/inputlayer/inputlayer/hnsw"
	"github.com/inputlayer/inputlayer/lang"
	"github.com/inputlayer/inputlayer/planner"
	"github.com/inputlayer/inputlayer/storage"
)

// compiledStratum is one analyzer-computed stratum, already lowered to
// an IterativeScope of compiled operators. Non-recursive strata run
// through the same IterativeScope machinery as recursive ones: a
// stratum with no internal feedback simply reaches quiescence after
// its first round.
type compiledStratum struct {
	predicates []string
	recursive  bool
	scope      *dataflow.IterativeScope
}

// Evaluator is the incremental evaluator for a single KG: it owns the
// compiled dataflow graph, the Arrangement maintaining each relation's
// current extension, the HNSW indexes attached to vector columns, and
// the WAL/checkpoint machinery backing durability.
type Evaluator struct {
	mu  sync.Mutex
	log *logrus.Entry

	cat *catalog.Catalog
	cse *planner.CSEIndex

	wal         *storage.WAL
	batchWriter *storage.BatchWriter
	meta        *storage.Metadata

	arrangements map[string]*dataflow.Arrangement
	indexes      map[string]*hnsw.Index

	strata          []*compiledStratum
	compiledVersion int64

	seq             int64
	sinceCheckpoint int64
	checkpointEvery int64

	subscribers map[string][]chan dataflow.Batch
}

// New builds an Evaluator over an already-populated catalog and opened
// storage layer. checkpointEvery is the number of commits between
// automatic checkpoints (0 disables automatic checkpointing; the
// session layer can still call Checkpoint explicitly, e.g. for
// `.compact`).
func New(cat *catalog.Catalog, wal *storage.WAL, batchWriter *storage.BatchWriter, meta *storage.Metadata, checkpointEvery int64, log *logrus.Entry) *Evaluator {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Evaluator{
		log:             log,
		cat:             cat,
		cse:             planner.NewCSEIndex(),
		wal:             wal,
		batchWriter:     batchWriter,
		meta:            meta,
		arrangements:    map[string]*dataflow.Arrangement{},
		indexes:         map[string]*hnsw.Index{},
		checkpointEvery: checkpointEvery,
		subscribers:     map[string][]chan dataflow.Batch{},
	}
}

// Seq reports the last committed sequence number.
func (e *Evaluator) Seq() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seq
}

// ensureCompiled recompiles the stratum pipeline if the catalog's rule
// set has changed since the last compile. Arrangements are preserved
// across a recompile keyed by relation name, so adding a rule clause
// never loses an already-maintained relation's extension.
func (e *Evaluator) ensureCompiled() error {
	version := e.cat.Version()
	if e.strata != nil && version == e.compiledVersion {
		return nil
	}

	strata, err := compileCatalog(e.cat, e.cse, e.resolveVectorIndex)
	if err != nil {
		return err
	}

	for name := range e.cat.AllRules() {
		if _, ok := e.arrangements[name]; !ok {
			e.arrangements[name] = dataflow.NewArrangement(nil)
		}
	}
	for _, name := range e.cat.RelationNames() {
		if _, ok := e.arrangements[name]; !ok {
			e.arrangements[name] = dataflow.NewArrangement(nil)
		}
	}

	e.strata = strata
	e.compiledVersion = version
	return nil
}

// compileCatalog plans and compiles every stratum of cat's current
// rule set, in dependency order. It is a standalone function (rather
// than an Evaluator method) so a one-shot bound query (query.go) can
// compile a scratch catalog through the exact same path without
// touching the live Evaluator's compiled state.
func compileCatalog(cat *catalog.Catalog, cse *planner.CSEIndex, vectors dataflow.VectorIndexResolver) ([]*compiledStratum, error) {
	graph := analyzer.BuildGraph(cat)
	strat, err := analyzer.Stratify(graph)
	if err != nil {
		return nil, err
	}

	rulesByHead := map[string][]*lang.Rule{}
	for head, entries := range cat.AllRules() {
		for _, entry := range entries {
			rulesByHead[head] = append(rulesByHead[head], entry.Rule)
		}
	}

	strata := make([]*compiledStratum, 0, len(strat.Components))
	for i, comp := range strat.Components {
		predicates := make([]string, 0, len(comp))
		for _, name := range comp {
			if _, ok := rulesByHead[name]; ok {
				predicates = append(predicates, name)
			}
		}
		if len(predicates) == 0 {
			continue
		}
		sort.Strings(predicates)

		planned, err := planner.PlanStratum(predicates, rulesByHead, cat, cse)
		if err != nil {
			return nil, err
		}

		compiler := dataflow.NewCompiler(vectors)
		operators := make(map[string]dataflow.Operator, len(planned))
		for _, p := range planned {
			op, err := compiler.Compile(p.Node)
			if err != nil {
				return nil, err
			}
			operators[p.Predicate] = op
		}

		strata = append(strata, &compiledStratum{
			predicates: predicates,
			recursive:  strat.IsRecursiveStratum(i),
			scope:      dataflow.NewIterativeScope(operators),
		})
	}
	return strata, nil
}

// runStrata executes every stratum in dependency order, threading each
// stratum's fixpoint output forward into every later stratum's seed
// set (a stratum's body may reference a relation several strata below
// it directly), and returns every predicate's total accumulated delta
// across the whole run.
func runStrata(strata []*compiledStratum, seed map[string]dataflow.Batch) (map[string]dataflow.Batch, error) {
	pending := map[string]dataflow.Batch{}
	for rel, b := range seed {
		pending[rel] = append(pending[rel], b...)
	}

	produced := map[string]dataflow.Batch{}
	for _, st := range strata {
		result, err := st.scope.Run(pending)
		if err != nil {
			return nil, err
		}
		for pred, batch := range result {
			produced[pred] = append(produced[pred], batch...)
			pending[pred] = append(pending[pred], batch...)
		}
	}
	return produced, nil
}

// arrangementFor returns the relation's maintained Arrangement,
// creating an empty one if this is the first reference seen (e.g. a
// relation declared but never yet committed to).
func (e *Evaluator) arrangementFor(relation string) *dataflow.Arrangement {
	arr, ok := e.arrangements[relation]
	if !ok {
		arr = dataflow.NewArrangement(nil)
		e.arrangements[relation] = arr
	}
	return arr
}

// Package inputlayer is the top-level session and API layer: an Engine
// owns the registry of knowledge graphs a process serves, a Session is
// a single authenticated client's handle onto one KG, and Execute
// dispatches a parsed-and-resolved statement batch to the catalog,
// evaluator, and storage layers underneath — the seam between
// statement-level handling and the query-processing pipeline.
package inputlayer

import (
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/inputlayer/inputlayer/auth"
	"github.com/inputlayer/inputlayer/catalog"
	"github.com/inputlayer/inputlayer/config"
	"github.com/inputlayer/inputlayer/errs"
	"github.com/inputlayer/inputlayer/evaluator"
	"github.com/inputlayer/inputlayer/storage"
)

// Engine is the process-wide registry of knowledge graphs. All
// create/drop/use traffic is serialized through one mutex; once a KG
// is open, traffic against it runs concurrently, gated only by the KG's
// own Catalog and Evaluator locks.
type Engine struct {
	mu  sync.Mutex
	cfg config.Config
	log *logrus.Entry

	kgs map[string]*KG
}

// NewEngine returns an Engine with no KGs open yet.
func NewEngine(cfg config.Config, log *logrus.Entry) *Engine {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Engine{cfg: cfg, log: log, kgs: map[string]*KG{}}
}

// CreateKG provisions a brand-new, empty knowledge graph on disk and
// registers it. KGExists if name is already registered or its data
// directory already exists from a previous run.
func (e *Engine) CreateKG(name string) (*KG, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.kgs[name]; ok {
		return nil, errs.ErrKGExists.New(name)
	}
	dir := filepath.Join(e.cfg.DataDir, name)
	if _, err := os.Stat(dir); err == nil {
		return nil, errs.ErrKGExists.New(name)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "inputlayer: create kg directory %s", dir)
	}

	kg, err := e.open(name, dir, false)
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	e.kgs[name] = kg
	e.log.WithField("kg", name).Info("inputlayer: created knowledge graph")
	return kg, nil
}

// UseKG returns the named KG, opening it from disk (replaying its
// catalog snapshot and WAL) on first reference in this process.
func (e *Engine) UseKG(name string) (*KG, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if kg, ok := e.kgs[name]; ok {
		return kg, nil
	}
	dir := filepath.Join(e.cfg.DataDir, name)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, errs.ErrNoSuchKG.New(name)
	}

	kg, err := e.open(name, dir, true)
	if err != nil {
		return nil, err
	}
	e.kgs[name] = kg
	e.log.WithField("kg", name).Info("inputlayer: opened knowledge graph")
	return kg, nil
}

// DropKG closes and permanently deletes a knowledge graph's on-disk
// state. NoSuchKG if it is not currently registered (it must be
// Use'd, even implicitly via Create, before it can be dropped).
func (e *Engine) DropKG(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	kg, ok := e.kgs[name]
	if !ok {
		return errs.ErrNoSuchKG.New(name)
	}
	kg.wal.Close()
	kg.meta.Close()
	delete(e.kgs, name)
	e.log.WithField("kg", name).Info("inputlayer: dropped knowledge graph")
	return os.RemoveAll(kg.dir)
}

// Close flushes and closes every KG currently open in this Engine,
// without deleting any on-disk state — the counterpart to CreateKG for
// a clean process shutdown, as opposed to DropKG which discards data.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var firstErr error
	for name, kg := range e.kgs {
		if err := kg.close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(e.kgs, name)
	}
	return firstErr
}

// ListKGs returns every currently registered KG name, sorted.
func (e *Engine) ListKGs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.kgs))
	for name := range e.kgs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// open builds a KG bundle rooted at dir. When existing is true it first
// replays a persisted catalog snapshot (if any) and then rebuilds every
// relation's maintained extension from the checkpoint segments and WAL
// tail via Evaluator.Restore; a freshly created KG skips both, since
// there is nothing yet to replay.
func (e *Engine) open(name, dir string, existing bool) (*KG, error) {
	wal, err := storage.OpenWAL(filepath.Join(dir, "wal.log"), e.cfg.DurabilityPolicy(), e.cfg.GroupWindow, e.log)
	if err != nil {
		return nil, errors.Wrap(err, "inputlayer: open wal")
	}
	meta, err := storage.OpenMetadata(dir)
	if err != nil {
		wal.Close()
		return nil, errors.Wrap(err, "inputlayer: open metadata")
	}
	bw := storage.NewBatchWriter(dir)

	kg := &KG{
		name: name,
		dir:  dir,
		cat:  catalog.New(e.log),
		auth: auth.None{},
		wal:  wal,
		meta: meta,
		bw:   bw,
	}

	if existing {
		snap, err := meta.ReadCatalog()
		if err != nil && !os.IsNotExist(err) {
			wal.Close()
			meta.Close()
			return nil, errors.Wrap(err, "inputlayer: read catalog snapshot")
		}
		if err == nil {
			if err := kg.loadSnapshot(snap); err != nil {
				wal.Close()
				meta.Close()
				return nil, errors.Wrap(err, "inputlayer: replay catalog snapshot")
			}
		}
	}

	kg.eval = evaluator.New(kg.cat, wal, bw, meta, e.cfg.CheckpointEvery, e.log)
	if existing {
		if err := kg.eval.Restore(); err != nil {
			wal.Close()
			meta.Close()
			return nil, errors.Wrap(err, "inputlayer: restore evaluator state")
		}
	}
	return kg, nil
}

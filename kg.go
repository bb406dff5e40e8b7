package inputlayer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/inputlayer/inputlayer/auth"
	"github.com/inputlayer/inputlayer/catalog"
	"github.com/inputlayer/inputlayer/evaluator"
	"github.com/inputlayer/inputlayer/lang"
	"github.com/inputlayer/inputlayer/storage"
)

// KG is one tenant's isolated knowledge graph: its own catalog,
// incremental evaluator, storage (WAL, checkpoint segments, metadata),
// and access-control list. An Engine holds many KGs; nothing is shared
// between them except the process they run in.
type KG struct {
	name string
	dir  string

	cat  *catalog.Catalog
	eval *evaluator.Evaluator
	auth auth.Auth

	wal  *storage.WAL
	meta *storage.Metadata
	bw   *storage.BatchWriter

	mu        sync.Mutex
	ddlSource []string // canonical source of every applied TypeDecl/RelDecl, for catalog snapshot persistence
}

// Name returns the KG's registered name.
func (kg *KG) Name() string { return kg.name }

// Catalog exposes the KG's name table, e.g. for the session dispatcher's
// ACL checks and meta-command handling.
func (kg *KG) Catalog() *catalog.Catalog { return kg.cat }

// Evaluator exposes the KG's incremental evaluator.
func (kg *KG) Evaluator() *evaluator.Evaluator { return kg.eval }

func (kg *KG) close() error {
	var firstErr error
	if err := kg.eval.Checkpoint(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := kg.wal.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := kg.meta.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// recordDDL appends every TypeDecl/RelDecl in resolved to the KG's
// running schema log (in canonical, re-parseable form) and flushes a
// fresh catalog snapshot, so a later reopen can rebuild the catalog
// without replaying the full WAL.
func (kg *KG) recordDDL(resolved *catalog.ResolvedProgram) error {
	if len(resolved.TypeDecls) == 0 && len(resolved.RelDecls) == 0 {
		return nil
	}
	kg.mu.Lock()
	for _, d := range resolved.TypeDecls {
		kg.ddlSource = append(kg.ddlSource, typeDeclSource(d))
	}
	for _, d := range resolved.RelDecls {
		kg.ddlSource = append(kg.ddlSource, relDeclSource(d))
	}
	kg.mu.Unlock()
	return kg.persistCatalogSnapshot()
}

// persistCatalogSnapshot durably writes the KG's current schema and
// permanent (non-session-scoped) rule set, so Recover can rebuild the
// catalog on reopen before replaying the WAL into it.
func (kg *KG) persistCatalogSnapshot() error {
	kg.mu.Lock()
	relations := strings.Join(kg.ddlSource, "\n")
	kg.mu.Unlock()

	var rules strings.Builder
	for _, entries := range kg.cat.AllRules() {
		for _, e := range entries {
			if strings.HasPrefix(e.Source, "session:") {
				continue // session-scoped rules are ephemeral, never persisted
			}
			rules.WriteString(e.Source)
			rules.WriteString("\n")
		}
	}

	return kg.meta.WriteCatalog(storage.CatalogSnapshot{
		Relations: []byte(relations),
		Rules:     []byte(rules.String()),
	})
}

// loadSnapshot replays a previously persisted catalog snapshot's
// schema and rule declarations into kg.cat, one canonical statement
// per line, ahead of the WAL/segment replay that rebuilds relation
// extensions.
func (kg *KG) loadSnapshot(snap storage.CatalogSnapshot) error {
	for _, line := range splitNonEmpty(string(snap.Relations)) {
		prog, err := lang.Parse(line)
		if err != nil {
			return err
		}
		if _, err := catalog.Resolve(prog, kg.cat); err != nil {
			return err
		}
		kg.ddlSource = append(kg.ddlSource, line)
	}
	for _, line := range splitNonEmpty(string(snap.Rules)) {
		prog, err := lang.Parse(line)
		if err != nil {
			return err
		}
		resolved, err := catalog.Resolve(prog, kg.cat)
		if err != nil {
			return err
		}
		for _, r := range resolved.Rules {
			if err := kg.cat.AddRule(r, line); err != nil {
				return err
			}
		}
	}
	return nil
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// typeDeclSource renders a resolved TypeDecl back into the canonical
// `type Name: ...` source the parser accepts, for catalog snapshot
// persistence.
func typeDeclSource(d *lang.TypeDecl) string {
	if d.Record != nil {
		fields := make([]string, len(d.Record.Fields))
		for i, f := range d.Record.Fields {
			fields[i] = fmt.Sprintf("%s: %s", f.Name, f.Type)
		}
		return fmt.Sprintf("type %s: { %s }", d.Name, strings.Join(fields, ", "))
	}
	if d.Refinement != "" {
		return fmt.Sprintf("type %s: %s(%s)", d.Name, d.Base, d.Refinement)
	}
	return fmt.Sprintf("type %s: %s", d.Name, d.Base)
}

// relDeclSource renders a resolved RelDecl back into the canonical
// `rel Name(...)` source the parser accepts.
func relDeclSource(d *lang.RelDecl) string {
	if d.AsRecord != "" {
		return fmt.Sprintf("rel %s: %s", d.Name, d.AsRecord)
	}
	cols := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		cols[i] = fmt.Sprintf("%s: %s", c.Name, c.Type)
	}
	return fmt.Sprintf("rel %s(%s)", d.Name, strings.Join(cols, ", "))
}

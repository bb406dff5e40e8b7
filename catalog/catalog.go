// Package catalog holds the per-KG name table: types, relation
// schemas, rule clauses keyed by head predicate, indexes, ACL entries,
// and the monotonic version counter the planner caches its output
// against. It is the source of truth consulted by every later stage
// of the pipeline.
package catalog

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/inputlayer/inputlayer/auth"
	"github.com/inputlayer/inputlayer/errs"
	"github.com/inputlayer/inputlayer/lang"
	"github.com/inputlayer/inputlayer/value"
)

// RelationStats carries cardinality estimates the planner's join-order
// cost model consults. Updated as commits land; approximate by design.
type RelationStats struct {
	RowCount    int64
	LastUpdated int64 // commit sequence at last stats refresh
}

// IndexMetric enumerates the supported HNSW distance metrics.
type IndexMetric string

const (
	MetricCosine    IndexMetric = "cosine"
	MetricEuclidean IndexMetric = "euclidean"
	MetricDot       IndexMetric = "dot"
	MetricManhattan IndexMetric = "manhattan"
)

// IndexDef describes a named secondary index attached to a
// (relation, column) pair.
type IndexDef struct {
	Name     string
	Relation string
	Column   string
	Metric   IndexMetric
}

// RuleEntry is one parsed-and-resolved rule clause, grouped under its
// head predicate. A predicate may have many clauses (Union semantics).
type RuleEntry struct {
	Rule   *lang.Rule
	Source string // original rule text, for .rule list
}

// Catalog is the per-KG name table. All mutation goes through its
// methods so the version counter stays consistent with content.
type Catalog struct {
	mu sync.RWMutex

	log *logrus.Entry

	types     map[string]value.Type
	relations map[string]value.Schema
	rules     map[string][]RuleEntry // head predicate -> clauses
	indexes   map[string]IndexDef
	stats     map[string]*RelationStats
	acl       *auth.ACL

	version int64
}

// New returns an empty catalog with the builtin scalar types pre-seeded.
func New(log *logrus.Entry) *Catalog {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	c := &Catalog{
		log:       log,
		types:     map[string]value.Type{},
		relations: map[string]value.Schema{},
		rules:     map[string][]RuleEntry{},
		indexes:   map[string]IndexDef{},
		stats:     map[string]*RelationStats{},
		acl:       auth.NewACL(),
	}
	for _, base := range []string{"int", "float", "string", "bool", "timestamp"} {
		c.types[base] = value.Type{Base: baseKind(base), Name: base}
	}
	return c
}

func baseKind(name string) value.Kind {
	switch name {
	case "int":
		return value.KindInt
	case "float":
		return value.KindFloat
	case "string":
		return value.KindString
	case "bool":
		return value.KindBool
	case "timestamp":
		return value.KindTimestamp
	default:
		return value.KindUnit
	}
}

// Version returns the current monotonic catalog version. Planner
// output is cached keyed on this value.
func (c *Catalog) Version() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

func (c *Catalog) bump() {
	c.version++
	c.log.WithField("version", c.version).Debug("catalog version bumped")
}

// ACL exposes the catalog's access-control list for the session layer.
func (c *Catalog) ACL() *auth.ACL { return c.acl }

// LookupType returns a declared or builtin type by name.
func (c *Catalog) LookupType(name string) (value.Type, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.types[name]
	return t, ok
}

// DefineType registers a new named type. Redefinition overwrites and
// bumps the version; callers are expected to have already checked for
// conflicts where that matters (e.g. session-scoped ephemeral types
// never touch the persistent catalog).
func (c *Catalog) DefineType(name string, t value.Type) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.types[name] = t
	c.bump()
}

// LookupRelation returns a relation's schema.
func (c *Catalog) LookupRelation(name string) (value.Schema, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.relations[name]
	return s, ok
}

// DefineRelation registers a new relation schema. If the relation
// already exists with a different schema this is a SchemaConflict,
// since relations are append-only in their structure (I4); same-shape
// redeclaration is a no-op.
func (c *Catalog) DefineRelation(name string, schema value.Schema) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.relations[name]; ok {
		if existing.Equal(schema) {
			return nil
		}
		return errs.ErrSchemaConflict.New(name)
	}
	c.relations[name] = schema
	c.stats[name] = &RelationStats{}
	c.bump()
	return nil
}

// RelationNames returns all declared relation names.
func (c *Catalog) RelationNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.relations))
	for name := range c.relations {
		out = append(out, name)
	}
	return out
}

// Stats returns the cardinality estimate for a relation, or a zeroed
// one if none has been recorded yet.
func (c *Catalog) Stats(relation string) RelationStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if s, ok := c.stats[relation]; ok {
		return *s
	}
	return RelationStats{}
}

// UpdateStats records a fresh cardinality estimate, e.g. after a commit
// or a checkpoint.
func (c *Catalog) UpdateStats(relation string, rowCount, commitSeq int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats[relation] = &RelationStats{RowCount: rowCount, LastUpdated: commitSeq}
}

// Rules returns the clauses for a head predicate.
func (c *Catalog) Rules(predicate string) []RuleEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]RuleEntry(nil), c.rules[predicate]...)
}

// AllRules returns every clause in the catalog, grouped by predicate.
func (c *Catalog) AllRules() map[string][]RuleEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string][]RuleEntry, len(c.rules))
	for k, v := range c.rules {
		out[k] = append([]RuleEntry(nil), v...)
	}
	return out
}

// AddRule appends a clause to its head predicate's list. Exact textual
// duplicates are rejected with DuplicateRule.
func (c *Catalog) AddRule(rule *lang.Rule, source string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.rules[rule.Head.Predicate] {
		if existing.Source == source {
			return errs.ErrDuplicateRule.New(rule.Head.Predicate)
		}
	}
	c.rules[rule.Head.Predicate] = append(c.rules[rule.Head.Predicate], RuleEntry{Rule: rule, Source: source})
	c.bump()
	return nil
}

// DropRule removes every clause for a head predicate.
func (c *Catalog) DropRule(predicate string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rules, predicate)
	c.bump()
}

// RemoveRuleEntry removes exactly the clause matching source under
// predicate, leaving any other clauses on that head untouched — used
// to tear down a single session-scoped rule without disturbing
// clauses other sessions (or the KG itself) contributed to the same
// predicate.
func (c *Catalog) RemoveRuleEntry(predicate, source string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := c.rules[predicate]
	for i, e := range entries {
		if e.Source == source {
			c.rules[predicate] = append(entries[:i], entries[i+1:]...)
			c.bump()
			return
		}
	}
}

// ClearRules removes all rule clauses in the catalog.
func (c *Catalog) ClearRules() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rules = map[string][]RuleEntry{}
	c.bump()
}

// DefineIndex registers a new index definition.
func (c *Catalog) DefineIndex(def IndexDef) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.indexes[def.Name]; ok {
		return errs.ErrIndexExists.New(def.Name)
	}
	c.indexes[def.Name] = def
	c.bump()
	return nil
}

// DropIndex removes a named index.
func (c *Catalog) DropIndex(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.indexes[name]; !ok {
		return errs.ErrNoSuchIndex.New(name)
	}
	delete(c.indexes, name)
	c.bump()
	return nil
}

// Index returns a named index definition.
func (c *Catalog) Index(name string) (IndexDef, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	idx, ok := c.indexes[name]
	return idx, ok
}

// IndexesOn returns every index attached to a relation, for the
// planner's VectorSearch lowering and for invalidation on schema change.
func (c *Catalog) IndexesOn(relation string) []IndexDef {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []IndexDef
	for _, idx := range c.indexes {
		if idx.Relation == relation {
			out = append(out, idx)
		}
	}
	return out
}

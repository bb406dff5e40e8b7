package inputlayer

import (
	"github.com/inputlayer/inputlayer/auth"
	"github.com/inputlayer/inputlayer/lang"
	"github.com/inputlayer/inputlayer/value"
)

// QueryResult pairs a query's atom with the rows it produced, in the
// order queries appeared in the executed statement batch.
type QueryResult struct {
	Atom lang.Atom
	Rows []value.Tuple
}

// RuleDescriptor describes one installed rule clause, as returned by
// `.rule list`.
type RuleDescriptor struct {
	Predicate string
	Source    string
}

// RelationStatus is one relation's row count, as reported by `.status`.
type RelationStatus struct {
	Name     string
	RowCount int64
}

// StatusReport is the structured response to `.status`.
type StatusReport struct {
	KG             string
	CatalogVersion int64
	CommitSeq      int64
	Relations      []RelationStatus
	Principals     map[string]auth.Permission
}

// StatementResult aggregates whatever a batch of statements produced:
// a commit sequence if any facts were asserted/retracted, one entry per
// query in the batch, rule descriptors for `.rule list`, KG names for
// `.kg list`, and a status report for `.status`. Fields not relevant to
// the executed batch are left at their zero value.
type StatementResult struct {
	CommittedSeq int64
	Queries      []QueryResult
	Rules        []RuleDescriptor
	KGs          []string
	Status       *StatusReport
}

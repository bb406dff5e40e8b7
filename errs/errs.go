// Package errs defines the tagged error kinds returned at the engine
// boundary. Every kind is a *errors.Kind value; call sites produce an
// error with Kind.New(args...), which satisfies the standard error
// interface while remaining identifiable via errors.Is.
package errs

import "gopkg.in/src-d/go-errors.v1"

var (
	ErrParse                = errors.NewKind("parse error at line %d, column %d: %s")
	ErrUnknownRelation      = errors.NewKind("unknown relation: %s")
	ErrUnknownType          = errors.NewKind("unknown type: %s")
	ErrArityMismatch        = errors.NewKind("arity mismatch: expected %d, got %d")
	ErrTypeMismatch         = errors.NewKind("type mismatch at position %d: expected %s, got %s")
	ErrSchemaConflict       = errors.NewKind("schema conflict for relation: %s")
	ErrLegacyOperator       = errors.NewKind("':=' is no longer supported, use '<-' instead")
	ErrUnsafeRule           = errors.NewKind("unsafe rule: variable %s is not range-restricted")
	ErrNotStratifiable      = errors.NewKind("rule set is not stratifiable, cycle: %s")
	ErrDuplicateRule        = errors.NewKind("duplicate rule: %s")
	ErrNoSuchKG             = errors.NewKind("no such knowledge graph: %s")
	ErrKGExists             = errors.NewKind("knowledge graph already exists: %s")
	ErrNoSuchIndex          = errors.NewKind("no such index: %s")
	ErrIndexExists          = errors.NewKind("index already exists: %s")
	ErrAuth                 = errors.NewKind("authentication failed")
	ErrTimeout              = errors.NewKind("operation timed out")
	ErrStorageIO            = errors.NewKind("storage i/o error: %s")
	ErrWALCorruption        = errors.NewKind("wal corruption detected at sequence %d")
	ErrInternal             = errors.NewKind("internal error: %s")
	ErrNoSuchSession        = errors.NewKind("no such session: %s")
	ErrAmbiguousColumn      = errors.NewKind("ambiguous column: %s")
	ErrRecordSugarMismatch  = errors.NewKind("record syntax is only valid for record-typed relations: %s")
)

package inputlayer

import (
	"context"
	"fmt"

	"github.com/inputlayer/inputlayer/auth"
	"github.com/inputlayer/inputlayer/catalog"
	"github.com/inputlayer/inputlayer/errs"
	"github.com/inputlayer/inputlayer/lang"
	"github.com/inputlayer/inputlayer/storage"
	"github.com/inputlayer/inputlayer/value"
)

// Execute parses source as a batch of statements, resolves it against
// the session's KG (which mutates the catalog in place for any
// TypeDecl/RelDecl statements, exactly as catalog.Resolve always does),
// and applies every resulting effect in order: facts and retractions
// become one Commit against the evaluator, rule clauses are added
// directly to the KG's permanent catalog, queries run against the
// maintained extensions, and meta-commands dispatch by kind. Rules
// added this way outlive the session; call DefineSessionRule instead
// for a rule scoped to this session's lifetime.
func (s *Session) Execute(ctx context.Context, source string) (*StatementResult, error) {
	prog, err := lang.Parse(source)
	if err != nil {
		return nil, err
	}
	resolved, err := catalog.Resolve(prog, s.kg.cat)
	if err != nil {
		return nil, err
	}

	if len(resolved.TypeDecls) > 0 || len(resolved.RelDecls) > 0 {
		if !s.perm.Has(auth.PermAdmin) {
			return nil, errs.ErrAuth.New()
		}
		if err := s.kg.recordDDL(resolved); err != nil {
			return nil, err
		}
	}

	result := &StatementResult{}

	if len(resolved.Facts) > 0 || len(resolved.Retracts) > 0 {
		if !s.perm.Has(auth.PermWrite) {
			return nil, errs.ErrAuth.New()
		}
		records, err := factRecords(resolved)
		if err != nil {
			return nil, err
		}
		seq, err := s.kg.eval.Commit(ctx, records)
		if err != nil {
			return nil, err
		}
		result.CommittedSeq = seq
	}

	if len(resolved.Rules) > 0 {
		if !s.perm.Has(auth.PermAdmin) {
			return nil, errs.ErrAuth.New()
		}
		for _, r := range resolved.Rules {
			if err := s.kg.cat.AddRule(r, source); err != nil {
				return nil, err
			}
		}
		if err := s.kg.persistCatalogSnapshot(); err != nil {
			return nil, err
		}
	}

	for _, q := range resolved.Queries {
		if !s.perm.Has(auth.PermRead) {
			return nil, errs.ErrAuth.New()
		}
		rows, err := s.kg.eval.Query(ctx, *q)
		if err != nil {
			return nil, err
		}
		result.Queries = append(result.Queries, QueryResult{Atom: q.Atom, Rows: rows})
	}

	for _, meta := range resolved.Metas {
		if err := s.dispatchMeta(ctx, meta, result); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// DefineSessionRule parses a single rule statement and installs it as
// a session-scoped overlay: visible to every query against this
// session's KG for as long as the session stays open, and removed
// automatically on Close without disturbing the KG's own rules or any
// other session's. Use Execute instead for a rule meant to outlive the
// session.
func (s *Session) DefineSessionRule(source string) error {
	if !s.perm.Has(auth.PermWrite) {
		return errs.ErrAuth.New()
	}
	prog, err := lang.Parse(source)
	if err != nil {
		return err
	}
	resolved, err := catalog.Resolve(prog, s.kg.cat)
	if err != nil {
		return err
	}
	if len(resolved.Rules) == 0 {
		return errs.ErrInternal.New("DefineSessionRule: statement did not parse to a rule")
	}
	for _, r := range resolved.Rules {
		tagged := s.taggedSource(source)
		if err := s.kg.cat.AddRule(r, tagged); err != nil {
			return err
		}
		s.trackRule(r.Head.Predicate, tagged)
	}
	return nil
}

// factRecords converts a resolved program's fact assertions and
// retractions into the storage.Record batch Evaluator.Commit expects.
// Resolution guarantees every FactAssert argument is already a
// constant; a FactRetract argument that resolved to a variable or
// wildcard cannot be turned into a concrete tuple to retract, so that
// is rejected here rather than silently matching every row.
func factRecords(resolved *catalog.ResolvedProgram) ([]storage.Record, error) {
	var records []storage.Record
	for _, fa := range resolved.Facts {
		for _, tuple := range fa.Tuples {
			vals := make([]value.Value, len(tuple))
			for i, term := range tuple {
				vals[i] = term.Const
			}
			records = append(records, storage.Record{
				Kind:     storage.RecordAssert,
				Relation: fa.Relation,
				Tuple:    value.NewTuple(vals...),
				Delta:    1,
			})
		}
	}
	for _, fr := range resolved.Retracts {
		vals := make([]value.Value, len(fr.Args))
		for i, term := range fr.Args {
			if term.Kind != lang.TermConst {
				return nil, errs.ErrInternal.New(fmt.Sprintf("retraction of %s requires fully-constant arguments", fr.Relation))
			}
			vals[i] = term.Const
		}
		records = append(records, storage.Record{
			Kind:     storage.RecordRetract,
			Relation: fr.Relation,
			Tuple:    value.NewTuple(vals...),
			Delta:    -1,
		})
	}
	return records, nil
}

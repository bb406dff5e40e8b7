package inputlayer

import (
	"context"

	"github.com/inputlayer/inputlayer/auth"
	"github.com/inputlayer/inputlayer/catalog"
	"github.com/inputlayer/inputlayer/errs"
	"github.com/inputlayer/inputlayer/lang"
)

// dispatchMeta applies one resolved meta-command to the session's
// engine/KG, filling in whichever field of result the command produces.
func (s *Session) dispatchMeta(ctx context.Context, meta *lang.MetaCommand, result *StatementResult) error {
	switch meta.Kind {
	case lang.MetaKGCreate:
		if !s.perm.Has(auth.PermAdmin) {
			return errs.ErrAuth.New()
		}
		if _, err := s.engine.CreateKG(meta.Name); err != nil {
			return err
		}
		result.KGs = s.engine.ListKGs()
		return nil

	case lang.MetaKGUse:
		kg, err := s.engine.UseKG(meta.Name)
		if err != nil {
			return err
		}
		s.switchKG(kg)
		return nil

	case lang.MetaKGDrop:
		if !s.perm.Has(auth.PermAdmin) {
			return errs.ErrAuth.New()
		}
		if err := s.engine.DropKG(meta.Name); err != nil {
			return err
		}
		result.KGs = s.engine.ListKGs()
		return nil

	case lang.MetaKGList:
		result.KGs = s.engine.ListKGs()
		return nil

	case lang.MetaCompact:
		if !s.perm.Has(auth.PermWrite) {
			return errs.ErrAuth.New()
		}
		return s.kg.eval.Checkpoint()

	case lang.MetaRuleList:
		if !s.perm.Has(auth.PermRead) {
			return errs.ErrAuth.New()
		}
		all := s.kg.cat.AllRules()
		for predicate, entries := range all {
			if meta.Name != "" && meta.Name != predicate {
				continue
			}
			for _, e := range entries {
				result.Rules = append(result.Rules, RuleDescriptor{Predicate: predicate, Source: e.Source})
			}
		}
		return nil

	case lang.MetaRuleDrop:
		if !s.perm.Has(auth.PermAdmin) {
			return errs.ErrAuth.New()
		}
		s.kg.cat.DropRule(meta.Name)
		return s.kg.persistCatalogSnapshot()

	case lang.MetaRuleClear:
		if !s.perm.Has(auth.PermAdmin) {
			return errs.ErrAuth.New()
		}
		s.kg.cat.ClearRules()
		return s.kg.persistCatalogSnapshot()

	case lang.MetaStatus:
		if !s.perm.Has(auth.PermRead) {
			return errs.ErrAuth.New()
		}
		result.Status = s.kg.statusReport()
		return nil

	case lang.MetaIndexCreate:
		if !s.perm.Has(auth.PermAdmin) {
			return errs.ErrAuth.New()
		}
		return s.kg.eval.CreateIndex(catalog.IndexDef{
			Name:     meta.Name,
			Relation: meta.Relation,
			Column:   meta.Column,
			Metric:   catalog.IndexMetric(meta.Metric),
		})

	case lang.MetaIndexDrop:
		if !s.perm.Has(auth.PermAdmin) {
			return errs.ErrAuth.New()
		}
		return s.kg.eval.DropIndex(meta.Name)

	default:
		return errs.ErrInternal.New("unhandled meta-command kind")
	}
}

// switchKG moves the session onto a different KG, first tearing down
// whatever session-scoped rules it had installed against the KG it is
// leaving — those rules belong to that KG's catalog and make no sense
// carried across.
func (s *Session) switchKG(kg *KG) {
	s.Close()
	s.kg = kg
}

// statusReport builds the structured response to `.status`: catalog
// version, last committed sequence, a per-relation row count, and the
// ACL's current principal grants.
func (kg *KG) statusReport() *StatusReport {
	names := kg.cat.RelationNames()
	relations := make([]RelationStatus, 0, len(names))
	for _, name := range names {
		stats := kg.cat.Stats(name)
		relations = append(relations, RelationStatus{Name: name, RowCount: stats.RowCount})
	}
	return &StatusReport{
		KG:             kg.name,
		CatalogVersion: kg.cat.Version(),
		CommitSeq:      kg.eval.Seq(),
		Relations:      relations,
		Principals:     kg.cat.ACL().Principals(),
	}
}
